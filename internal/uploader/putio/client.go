// Package putio uploads finished transfers to a Put.io folder, as an
// alternative destination to Telegram.
package putio

import (
	"bytes"
	"context"
	"fmt"

	"github.com/mwaiseghegift/tg-utils-bot/internal/logctx"
	"github.com/mwaiseghegift/tg-utils-bot/internal/relay"
	"github.com/putdotio/go-putio"
	"golang.org/x/oauth2"
)

type Client struct {
	putioClient *putio.Client
	folder      string
}

// NewClient creates a Put.io uploader that places files in the named folder
// (empty means the root folder).
func NewClient(token, folder string) *Client {
	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	oauthClient := oauth2.NewClient(context.Background(), tokenSource)

	return &Client{
		putioClient: putio.NewClient(oauthClient),
		folder:      folder,
	}
}

// Authenticate verifies the token by fetching account info.
func (c *Client) Authenticate(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx)

	user, err := c.putioClient.Account.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to get account info: %w", err)
	}

	logger.InfoContext(ctx, "authenticated with Put.io", "user", user.Username)

	return nil
}

// Upload stores the buffer as a file in the configured folder. The category
// is informational only; Put.io keeps everything as plain files.
func (c *Client) Upload(ctx context.Context, req *relay.UploadRequest) error {
	logger := logctx.LoggerFromContext(ctx).With("filename", req.Filename, "folder", c.folder)

	var dirID int64

	if c.folder != "" {
		var err error

		dirID, err = c.findDirectoryID(ctx, c.folder)
		if err != nil {
			return fmt.Errorf("failed to find upload folder: %w", err)
		}
	}

	logger.InfoContext(ctx, "uploading file to Put.io", "size_bytes", len(req.Data), "category", req.Category.String())

	if _, err := c.putioClient.Files.Upload(ctx, bytes.NewReader(req.Data), req.Filename, dirID); err != nil {
		return fmt.Errorf("failed to upload file: %w", err)
	}

	logger.InfoContext(ctx, "uploaded file to Put.io")

	return nil
}

func (c *Client) findDirectoryID(ctx context.Context, folder string) (int64, error) {
	search, err := c.putioClient.Files.Search(ctx, folder, 1)
	if err != nil {
		return 0, fmt.Errorf("error searching for directory: %w", err)
	}

	if len(search.Files) == 0 {
		return 0, fmt.Errorf("directory not found: %s", folder)
	}

	if !search.Files[0].IsDir() {
		return 0, fmt.Errorf("search result is not a directory: %s", folder)
	}

	return search.Files[0].ID, nil
}
