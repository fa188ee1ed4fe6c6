// Package fetch implements the remote-resource side of the expander (C2):
// downloading a URL to a local cache path the first time it is referenced,
// grounded on the original orchestrator's download_file/FetchedResource
// pair (skip re-downloading an existing cache file, log instead of fail).
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Client downloads remote resources into a local cache directory.
type Client struct {
	HTTP *http.Client
}

// NewClient returns a Client with a bounded-timeout http.Client, since no
// request ever needs to outlive the plan/expand phase that triggers it.
func NewClient() *Client {
	return &Client{HTTP: &http.Client{Timeout: 30 * time.Second}}
}

// Fetch downloads url to dest if dest does not already exist. An existing
// file is left untouched and logged at info level rather than re-fetched,
// matching the original implementation's "won't download again" behavior.
func (c *Client) Fetch(ctx context.Context, logger log.Logger, url, dest string) (string, error) {
	if _, err := os.Stat(dest); err == nil {
		level.Info(logger).Log("msg", "cached resource already present, not re-fetching", "url", url, "path", dest)

		return dest, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("checking cache path %s: %w", dest, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("building request for %s: %w", url, err)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching %s: unexpected status %s", url, resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("creating cache directory for %s: %w", dest, err)
	}

	tmp := dest + ".download"

	out, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("creating cache file %s: %w", tmp, err)
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(tmp)

		return "", fmt.Errorf("writing cache file %s: %w", tmp, err)
	}

	if err := out.Close(); err != nil {
		os.Remove(tmp)

		return "", fmt.Errorf("closing cache file %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)

		return "", fmt.Errorf("installing cache file %s: %w", dest, err)
	}

	return dest, nil
}
