package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestProbeHead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodHead, r.Method)
		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Length", "1048576")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(5 * time.Second)

	result, err := client.Probe(context.Background(), srv.URL+"/movie.mp4")
	require.NoError(t, err)
	require.Equal(t, int64(1048576), result.Size)
	require.True(t, result.SizeKnown())
	require.Equal(t, "video/mp4", result.ContentType)
	require.Equal(t, srv.URL+"/movie.mp4", result.ResolvedURL)
}

func TestProbeFallsBackToRangedGet(t *testing.T) {
	var sawRange string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)

			return
		}

		sawRange = r.Header.Get("Range")
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Range", "bytes 0-1/4096")
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write([]byte("ab"))
	}))
	defer srv.Close()

	client := NewClient(5 * time.Second)

	result, err := client.Probe(context.Background(), srv.URL+"/doc.pdf")
	require.NoError(t, err)
	require.Equal(t, "bytes=0-1", sawRange)
	require.Equal(t, int64(4096), result.Size)
	require.Equal(t, "application/pdf", result.ContentType)
}

func TestProbeFollowsRedirects(t *testing.T) {
	final := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
	}))
	defer final.Close()

	redirecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, final.URL+"/image.png", http.StatusFound)
	}))
	defer redirecting.Close()

	client := NewClient(5 * time.Second)

	result, err := client.Probe(context.Background(), redirecting.URL)
	require.NoError(t, err)
	require.Equal(t, final.URL+"/image.png", result.ResolvedURL)
	require.Equal(t, "image/png", result.ContentType)
}

func TestProbeMissingContentLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(5 * time.Second)

	result, err := client.Probe(context.Background(), srv.URL)
	require.NoError(t, err)
	require.False(t, result.SizeKnown())
	require.Equal(t, SizeUnknown, result.Size)
}

func TestProbeFailsWhenBothAttemptsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewClient(5 * time.Second)

	_, err := client.Probe(context.Background(), srv.URL)
	require.Error(t, err)
}

func TestParseContentRangeSize(t *testing.T) {
	require.Equal(t, int64(12345), parseContentRangeSize("bytes 0-1/12345"))
	require.Equal(t, SizeUnknown, parseContentRangeSize("bytes 0-1/*"))
	require.Equal(t, SizeUnknown, parseContentRangeSize(""))
}
