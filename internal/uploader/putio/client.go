// Package putio implements the put.io upload backend.
package putio

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/putdotio/go-putio"
	"golang.org/x/oauth2"

	"tablodl/internal/logctx"
)

type Client struct {
	putioClient  *putio.Client
	parentFolder string

	mu       sync.Mutex
	parentID int64
	resolved bool
}

// NewClient builds a put.io backend. parentFolder names an existing folder
// on the account; empty means the account root.
func NewClient(token, parentFolder string) *Client {
	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	oauthClient := oauth2.NewClient(context.Background(), tokenSource)

	return &Client{
		putioClient:  putio.NewClient(oauthClient),
		parentFolder: parentFolder,
	}
}

func (c *Client) Name() string { return "putio" }

// Authenticate verifies the token against the account endpoint.
func (c *Client) Authenticate(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx)

	logger.InfoContext(ctx, "authenticating with put.io")

	user, err := c.putioClient.Account.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to get account info: %w", err)
	}

	logger.InfoContext(ctx, "authenticated with put.io", "user", user.Username)

	return nil
}

// Upload pushes one file through the files upload API and returns the
// created file id.
func (c *Client) Upload(ctx context.Context, r io.Reader, name string, size int64) (string, error) {
	parentID, err := c.folderID(ctx)
	if err != nil {
		return "", err
	}

	upload, err := c.putioClient.Files.Upload(ctx, r, name, parentID)
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}

	if upload.File == nil {
		return "", fmt.Errorf("put.io did not return a file for %s", name)
	}

	return strconv.FormatInt(upload.File.ID, 10), nil
}

// folderID resolves the configured parent folder once; parallel uploads
// share the result.
func (c *Client) folderID(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resolved {
		return c.parentID, nil
	}

	if c.parentFolder == "" {
		c.resolved = true

		return 0, nil
	}

	search, err := c.putioClient.Files.Search(ctx, c.parentFolder, 1)
	if err != nil {
		return 0, fmt.Errorf("failed to search for folder %s: %w", c.parentFolder, err)
	}

	if len(search.Files) == 0 {
		return 0, fmt.Errorf("folder not found: %s", c.parentFolder)
	}

	if !search.Files[0].IsDir() {
		return 0, fmt.Errorf("search result is not a folder: %s", c.parentFolder)
	}

	c.parentID = search.Files[0].ID
	c.resolved = true

	return c.parentID, nil
}
