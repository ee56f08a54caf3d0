// Package dropbox is a minimal HTTP client for the parts of the Dropbox v2
// API this tool needs: recursive folder listing, per-path revision listing
// and revision content download.
package dropbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"packrat-go/internal/populate"
	"packrat-go/internal/replay"
	"packrat-go/internal/retry"
)

const (
	defaultAPIBase     = "https://api.dropboxapi.com"
	defaultContentBase = "https://content.dropboxapi.com"
)

// APIError is a permanent per-call failure reported by the API (e.g. a path
// that cannot be listed). It is never retried.
type APIError struct {
	StatusCode int
	Summary    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dropbox api error (status %d): %s", e.StatusCode, e.Summary)
}

// ServerError is a server-side failure (5xx or rate limiting) that the retry
// policy treats as transient.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("dropbox server error (status %d)", e.StatusCode)
}

// Transient marks the error as retriable.
func (e *ServerError) Transient() bool { return true }

// Client calls the Dropbox API. Every call is wrapped in the retry policy:
// transient failures back off and retry indefinitely.
type Client struct {
	Token       string
	HTTPClient  *http.Client
	APIBase     string
	ContentBase string
	Retry       retry.Policy
}

// NewClient creates a Client with default endpoints and retry policy.
func NewClient(token string) *Client {
	return &Client{
		Token:       token,
		HTTPClient:  &http.Client{},
		APIBase:     defaultAPIBase,
		ContentBase: defaultContentBase,
		Retry:       retry.Default(),
	}
}

// Wire types. Entries are discriminated by the ".tag" field.

type listFolderRequest struct {
	Path                  string `json:"path"`
	Recursive             bool   `json:"recursive"`
	IncludeDeleted        bool   `json:"include_deleted"`
	IncludeMountedFolders bool   `json:"include_mounted_folders"`
}

type listFolderContinueRequest struct {
	Cursor string `json:"cursor"`
}

type metadataEntry struct {
	Tag         string `json:".tag"`
	PathDisplay string `json:"path_display"`
}

type listFolderResponse struct {
	Entries []metadataEntry `json:"entries"`
	Cursor  string          `json:"cursor"`
	HasMore bool            `json:"has_more"`
}

type listRevisionsRequest struct {
	Path  string `json:"path"`
	Limit int    `json:"limit"`
}

type symlinkInfo struct {
	Target string `json:"target"`
}

type revisionEntry struct {
	Rev            string       `json:"rev"`
	ServerModified time.Time    `json:"server_modified"`
	Size           int64        `json:"size"`
	ContentHash    string       `json:"content_hash"`
	IsDownloadable bool         `json:"is_downloadable"`
	SymlinkInfo    *symlinkInfo `json:"symlink_info,omitempty"`
}

type listRevisionsResponse struct {
	Entries       []revisionEntry `json:"entries"`
	IsDeleted     bool            `json:"is_deleted"`
	ServerDeleted time.Time       `json:"server_deleted"`
}

// ListEntries streams the full recursive listing of the account, including
// deleted entries, one page at a time.
func (c *Client) ListEntries(ctx context.Context, fn func(populate.Entry) error) error {
	var page listFolderResponse
	err := c.rpc(ctx, "/2/files/list_folder", listFolderRequest{
		Path:                  "",
		Recursive:             true,
		IncludeDeleted:        true,
		IncludeMountedFolders: true,
	}, &page)
	if err != nil {
		return err
	}

	for {
		for _, entry := range page.Entries {
			e := populate.Entry{
				Path:     entry.PathDisplay,
				IsFolder: entry.Tag == "folder",
			}
			if err := fn(e); err != nil {
				return err
			}
		}

		if !page.HasMore {
			return nil
		}

		cursor := page.Cursor
		page = listFolderResponse{}
		if err := c.rpc(ctx, "/2/files/list_folder/continue", listFolderContinueRequest{Cursor: cursor}, &page); err != nil {
			return err
		}
	}
}

// ListRevisions returns the revision history of one path. API refusals are
// reported as *populate.PathUnavailableError so the crawler can record them.
func (c *Client) ListRevisions(ctx context.Context, path string) (*populate.History, error) {
	var resp listRevisionsResponse
	err := c.rpc(ctx, "/2/files/list_revisions", listRevisionsRequest{Path: path, Limit: 100}, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return nil, &populate.PathUnavailableError{Reason: apiErr.Summary}
		}
		return nil, err
	}

	history := &populate.History{
		Deleted:       resp.IsDeleted,
		ServerDeleted: resp.ServerDeleted,
	}
	for _, rev := range resp.Entries {
		r := populate.Revision{
			Revision:       rev.Rev,
			ServerModified: rev.ServerModified,
			Size:           rev.Size,
			ContentHash:    rev.ContentHash,
			IsDownloadable: rev.IsDownloadable,
		}
		if rev.SymlinkInfo != nil {
			r.SymlinkTarget = rev.SymlinkInfo.Target
		}
		history.Revisions = append(history.Revisions, r)
	}
	return history, nil
}

// Fetch downloads the content of the given revision into destPath. The whole
// download is inside the retry loop, so a connection dropped mid-transfer
// starts over.
func (c *Client) Fetch(ctx context.Context, revision string, destPath string) error {
	arg, err := json.Marshal(struct {
		Path string `json:"path"`
	}{Path: "rev:" + revision})
	if err != nil {
		return fmt.Errorf("encoding download arg: %w", err)
	}

	return c.Retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ContentBase+"/2/files/download", nil)
		if err != nil {
			return fmt.Errorf("building download request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.Token)
		req.Header.Set("Dropbox-API-Arg", string(arg))

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return fmt.Errorf("downloading revision %q: %w", revision, err)
		}
		defer resp.Body.Close()

		if err := c.checkStatus(resp); err != nil {
			return err
		}

		f, err := os.Create(destPath)
		if err != nil {
			return fmt.Errorf("creating %q: %w", destPath, err)
		}
		if _, err := io.Copy(f, resp.Body); err != nil {
			f.Close()
			return fmt.Errorf("writing %q: %w", destPath, err)
		}
		return f.Close()
	})
}

// rpc performs one JSON API call, retrying transient failures.
func (c *Client) rpc(ctx context.Context, path string, request any, response any) error {
	body, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("encoding request for %s: %w", path, err)
	}

	return c.Retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBase+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("building request for %s: %w", path, err)
		}
		req.Header.Set("Authorization", "Bearer "+c.Token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return fmt.Errorf("calling %s: %w", path, err)
		}
		defer resp.Body.Close()

		if err := c.checkStatus(resp); err != nil {
			return err
		}

		if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
			return fmt.Errorf("decoding response from %s: %w", path, err)
		}
		return nil
	})
}

// checkStatus maps a non-2xx response to the error taxonomy: 5xx and rate
// limiting are transient, everything else is a permanent API error.
func (c *Client) checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		io.Copy(io.Discard, resp.Body)
		return &ServerError{StatusCode: resp.StatusCode}
	}

	summary := fmt.Sprintf("status %d", resp.StatusCode)
	var apiBody struct {
		ErrorSummary string `json:"error_summary"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiBody); err == nil && apiBody.ErrorSummary != "" {
		summary = apiBody.ErrorSummary
	}
	return &APIError{StatusCode: resp.StatusCode, Summary: summary}
}

// Compile-time checks against the consumer contracts
var (
	_ populate.Remote = (*Client)(nil)
	_ replay.Fetcher  = (*Client)(nil)
)
