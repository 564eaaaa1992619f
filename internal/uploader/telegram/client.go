// Package telegram uploads finished transfers to a chat via the Telegram Bot
// API. The buffer is sent as multipart form data straight from memory.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/mwaiseghegift/tg-utils-bot/internal/fileinfo"
	"github.com/mwaiseghegift/tg-utils-bot/internal/logctx"
	"github.com/mwaiseghegift/tg-utils-bot/internal/relay"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const defaultBaseURL = "https://api.telegram.org"

type Client struct {
	baseURL        string
	token          string
	chatID         string
	maxInlinePhoto int64
	httpClient     *http.Client
}

// NewClient creates a Telegram uploader for the given bot token and chat.
// Photos larger than maxInlinePhoto are sent as documents to stay within the
// inline photo limit.
func NewClient(token, chatID string, maxInlinePhoto int64) *Client {
	return &Client{
		baseURL:        defaultBaseURL,
		token:          token,
		chatID:         chatID,
		maxInlinePhoto: maxInlinePhoto,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// NewClientWithBaseURL is like NewClient but targets a custom API host.
func NewClientWithBaseURL(baseURL, token, chatID string, maxInlinePhoto int64) *Client {
	c := NewClient(token, chatID, maxInlinePhoto)
	c.baseURL = baseURL

	return c
}

// apiResponse is the envelope every Bot API call returns.
type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Upload sends the buffer with the transport matching its category.
func (c *Client) Upload(ctx context.Context, req *relay.UploadRequest) error {
	logger := logctx.LoggerFromContext(ctx)

	method, field := c.route(req)

	logger.Info("uploading to telegram",
		"method", method,
		"filename", req.Filename,
		"size", fileinfo.FormatSize(int64(len(req.Data))),
	)

	var body bytes.Buffer

	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("chat_id", c.chatID); err != nil {
		return fmt.Errorf("failed to write chat_id field: %w", err)
	}

	if req.Caption != "" {
		if err := writer.WriteField("caption", req.Caption); err != nil {
			return fmt.Errorf("failed to write caption field: %w", err)
		}
	}

	part, err := writer.CreateFormFile(field, req.Filename)
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(req.Data); err != nil {
		return fmt.Errorf("failed to write file data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return fmt.Errorf("failed to build upload request: %w", err)
	}

	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send upload request: %w", err)
	}

	defer resp.Body.Close()

	var apiResp apiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&apiResp); err != nil {
		return fmt.Errorf("failed to decode api response (HTTP %d): %w", resp.StatusCode, err)
	}

	if !apiResp.OK {
		return fmt.Errorf("telegram api rejected %s (HTTP %d): %s", method, resp.StatusCode, apiResp.Description)
	}

	logger.Info("uploaded to telegram", "method", method, "filename", req.Filename)

	return nil
}

// route picks the Bot API method and form field for the category.
func (c *Client) route(req *relay.UploadRequest) (method, field string) {
	switch req.Category {
	case fileinfo.CategoryPhoto:
		if int64(len(req.Data)) <= c.maxInlinePhoto {
			return "sendPhoto", "photo"
		}

		// Oversized photos still deliver, just without inline preview.
		return "sendDocument", "document"
	case fileinfo.CategoryVideo:
		return "sendVideo", "video"
	case fileinfo.CategoryAudio:
		return "sendAudio", "audio"
	default:
		return "sendDocument", "document"
	}
}
