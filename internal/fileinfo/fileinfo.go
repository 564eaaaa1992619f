// Package fileinfo derives a usable filename and a media category from a URL
// and optional MIME type, and formats byte counts for human display.
package fileinfo

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
)

// Category is the media category used to pick the upload transport.
type Category int

const (
	CategoryDocument Category = iota
	CategoryPhoto
	CategoryVideo
	CategoryAudio
)

func (c Category) String() string {
	switch c {
	case CategoryPhoto:
		return "photo"
	case CategoryVideo:
		return "video"
	case CategoryAudio:
		return "audio"
	default:
		return "document"
	}
}

// ParseCategory maps a stored category name back to its Category value.
// Unknown names fall back to document.
func ParseCategory(s string) Category {
	switch strings.ToLower(s) {
	case "photo":
		return CategoryPhoto
	case "video":
		return CategoryVideo
	case "audio":
		return CategoryAudio
	default:
		return CategoryDocument
	}
}

var (
	photoExtensions = map[string]struct{}{
		"jpg": {}, "jpeg": {}, "png": {}, "gif": {}, "webp": {}, "bmp": {}, "tiff": {},
	}
	videoExtensions = map[string]struct{}{
		"mp4": {}, "avi": {}, "mov": {}, "mkv": {}, "webm": {}, "m4v": {}, "3gp": {},
	}
	audioExtensions = map[string]struct{}{
		"mp3": {}, "wav": {}, "flac": {}, "ogg": {}, "aac": {}, "m4a": {}, "wma": {},
	}
)

// ResolveFilename extracts a filename from the URL path, falling back to the
// filename/file/name query parameters and finally to a generated name.
// It never fails: any input yields a non-empty name.
func ResolveFilename(rawURL string) string {
	fallback := fmt.Sprintf("file_%d", time.Now().Unix())

	u, err := url.Parse(rawURL)
	if err != nil {
		return fallback
	}

	decodedPath := u.Path
	if unescaped, err := url.PathUnescape(u.Path); err == nil {
		decodedPath = unescaped
	}

	filename := path.Base(decodedPath)
	if filename == "." || filename == "/" {
		filename = ""
	}

	if filename == "" || !strings.Contains(filename, ".") {
		query := u.Query()
		for _, param := range []string{"filename", "file", "name"} {
			if v := query.Get(param); v != "" {
				filename = v

				break
			}
		}
	}

	if filename == "" || !strings.Contains(filename, ".") {
		return fallback
	}

	return filename
}

// Classify determines the category for a filename, preferring the file
// extension and falling back to the MIME type's top-level token.
func Classify(filename, contentType string) Category {
	if idx := strings.LastIndex(filename, "."); idx >= 0 && idx < len(filename)-1 {
		ext := strings.ToLower(filename[idx+1:])

		if _, ok := photoExtensions[ext]; ok {
			return CategoryPhoto
		}

		if _, ok := videoExtensions[ext]; ok {
			return CategoryVideo
		}

		if _, ok := audioExtensions[ext]; ok {
			return CategoryAudio
		}
	}

	switch {
	case strings.HasPrefix(contentType, "image/"):
		return CategoryPhoto
	case strings.HasPrefix(contentType, "video/"):
		return CategoryVideo
	case strings.HasPrefix(contentType, "audio/"):
		return CategoryAudio
	}

	return CategoryDocument
}

var sizeUnits = []string{"B", "KB", "MB", "GB"}

// FormatSize converts a byte count to a human readable string using 1024
// steps, capped at GB.
func FormatSize(bytes int64) string {
	if bytes == 0 {
		return "0 B"
	}

	size := float64(bytes)
	unit := 0

	for size >= 1024 && unit < len(sizeUnits)-1 {
		size /= 1024
		unit++
	}

	return fmt.Sprintf("%.1f %s", size, sizeUnits[unit])
}
