// download.go - Download von Dataset-Dateien mit Wiederaufnahme
// Unterstuetzt Progress-Callbacks, Revisions und parallele Downloads.
package huggingface

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Download-Konstanten
const (
	DefaultChunkSize   = 1024 * 1024
	MaxDownloadRetries = 3
	DownloadRetryDelay = 2 * time.Second
	DefaultParallelism = 4
)

// ProgressCallback wird nach jedem geschriebenen Block aufgerufen
type ProgressCallback func(filename string, n int64)

// DownloadOptions steuert Download
type DownloadOptions struct {
	// Revision ist Branch, Tag oder Commit (Standard "main")
	Revision    string
	Parallelism int
	Progress    ProgressCallback
}

// Download laedt files aus dem Dataset-Repository repoID in den Cache und
// gibt die lokalen Pfade in derselben Reihenfolge zurueck. Bereits
// vorhandene Dateien werden nicht erneut geladen.
func (c *Client) Download(ctx context.Context, repoID string, files []string, opts DownloadOptions) ([]string, error) {
	if err := validateRepoID(repoID); err != nil {
		return nil, err
	}
	revision := opts.Revision
	if revision == "" {
		revision = "main"
	}

	for _, name := range files {
		if name == "" || strings.Contains(name, "..") {
			return nil, fmt.Errorf("%w: invalid file name %q", ErrRepoNotFound, name)
		}
	}

	paths := make([]string, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.Parallelism, 1))
	for i, name := range files {
		if p, ok := c.Cached(repoID, revision, name); ok {
			slog.Debug("using cached file", "repo", repoID, "file", name, "path", p)
			paths[i] = p
			continue
		}

		g.Go(func() error {
			target := c.cachePath(repoID, revision, name)
			progress := func(n int64) {
				if opts.Progress != nil {
					opts.Progress(name, n)
				}
			}
			if err := c.downloadWithRetry(ctx, c.resolveURL(repoID, revision, name), target, progress); err != nil {
				return fmt.Errorf("%s/%s: %w", repoID, name, err)
			}
			paths[i] = target
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

func (c *Client) downloadWithRetry(ctx context.Context, url, targetPath string, progressFn func(int64)) error {
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return err
	}

	var lastErr error
	for attempt := range MaxDownloadRetries {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(DownloadRetryDelay):
			}
		}

		err := c.doDownload(ctx, url, targetPath, progressFn)
		if err == nil {
			return nil
		}
		// Antworten des Hubs aendern sich durch Wiederholen nicht
		if errors.Is(err, ErrRepoNotFound) || errors.Is(err, ErrUnauthorized) || ctx.Err() != nil {
			return err
		}
		slog.Warn("download failed, retrying", "url", url, "attempt", attempt+1, "error", err)
		lastErr = err
	}
	return fmt.Errorf("download failed after %d attempts: %w", MaxDownloadRetries, lastErr)
}

// doDownload setzt einen abgebrochenen Download ueber einen Range-Header fort
func (c *Client) doDownload(ctx context.Context, url, targetPath string, progressFn func(int64)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)

	var existingSize int64
	tmpPath := targetPath + ".download"
	if stat, err := os.Stat(tmpPath); err == nil {
		existingSize = stat.Size()
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", existingSize))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.handleResponseError(resp); err != nil {
		return err
	}
	if resp.StatusCode == http.StatusOK {
		// Server ignoriert Range
		existingSize = 0
	}

	flags := os.O_WRONLY | os.O_CREATE
	if existingSize > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(tmpPath, flags, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	buf := make([]byte, DefaultChunkSize)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, err := file.Write(buf[:n]); err != nil {
				return err
			}
			progressFn(int64(n))
		}
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return err
		}
	}

	if err := file.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, targetPath)
}
