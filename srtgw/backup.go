package srtgw

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/visual-alchemy/blackgate-project/gateway"
)

// RestoreFailedMessage is reported when a rejected restore carries no message.
const RestoreFailedMessage = "failed to restore backup"

// Opener hands a download URL to a new browsing context: a browser tab, a
// redirect, or a file fetch.
type Opener interface {
	Open(ctx context.Context, url string) error
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, url string) error

func (f OpenerFunc) Open(ctx context.Context, url string) error { return f(ctx, url) }

// ExportBackup returns the configuration export as the backend sent it.
func (c *Client) ExportBackup(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "/api/backup/export", &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// CreateDownloadLink issues a one-shot link to the JSON configuration export.
func (c *Client) CreateDownloadLink(ctx context.Context) (*BackupLink, error) {
	var link BackupLink
	if err := c.get(ctx, "/api/backup/create-download-link", &link); err != nil {
		return nil, err
	}
	return &link, nil
}

// CreateBackupDownloadLink issues a one-shot link to the binary .backup file.
func (c *Client) CreateBackupDownloadLink(ctx context.Context) (*BackupLink, error) {
	var link BackupLink
	if err := c.get(ctx, "/api/backup/create-backup-download-link", &link); err != nil {
		return nil, err
	}
	return &link, nil
}

// Download opens the configuration export link with o.
func (c *Client) Download(ctx context.Context, o Opener) error {
	link, err := c.CreateDownloadLink(ctx)
	if err != nil {
		return err
	}
	return c.open(ctx, o, link)
}

// DownloadBackup opens the binary backup link with o.
func (c *Client) DownloadBackup(ctx context.Context, o Opener) error {
	link, err := c.CreateBackupDownloadLink(ctx)
	if err != nil {
		return err
	}
	return c.open(ctx, o, link)
}

func (c *Client) open(ctx context.Context, o Opener, link *BackupLink) error {
	if link.DownloadLink == "" {
		return fmt.Errorf("srtgw: backend returned an empty download link")
	}
	return o.Open(ctx, c.BaseURL()+link.DownloadLink)
}

// Restore uploads a backup file as application/octet-stream. A rejection
// carries the backend's error message, or RestoreFailedMessage when it has none.
func (c *Client) Restore(ctx context.Context, backup io.Reader) (Result, error) {
	const path = "/api/restore"
	resp, err := c.gw.AuthFetch(ctx, path, &gateway.Options{
		Method: http.MethodPost,
		Header: http.Header{"Content-Type": {"application/octet-stream"}},
		Body:   backup,
	})
	if err != nil {
		return nil, fmt.Errorf("srtgw POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("srtgw read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var body struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &body) != nil || body.Error == "" {
			return nil, &APIError{
				StatusCode: resp.StatusCode,
				Method:     http.MethodPost,
				Path:       path,
				Message:    RestoreFailedMessage,
			}
		}
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Method:     http.MethodPost,
			Path:       path,
			Message:    body.Error,
			Condition:  parseCondition(body.Error),
		}
	}

	if !isJSON(resp) || len(data) == 0 {
		return successResult(), nil
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, &DecodeError{Method: http.MethodPost, Path: path, Err: err}
	}
	return res, nil
}
