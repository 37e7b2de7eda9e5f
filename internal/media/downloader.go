// Package media stores inbound attachments on local disk. The bridge serves
// media over plain HTTP; we just fetch and file it.
package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const (
	fetchTimeout = 30 * time.Second
	maxMediaSize = 64 << 20 // 64 MiB
)

// Downloader fetches media URLs into a local directory.
type Downloader struct {
	dir    string
	client *http.Client
}

// NewDownloader creates a Downloader writing into dir.
func NewDownloader(dir string) (*Downloader, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &Downloader{
		dir:    dir,
		client: &http.Client{Timeout: fetchTimeout},
	}, nil
}

// Download fetches one URL and returns the local file path. Filenames are
// random; the original extension is kept for type sniffing downstream.
func (d *Downloader) Download(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build media request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch media: unexpected status %d", resp.StatusCode)
	}

	name := uuid.NewString() + path.Ext(url)
	dest := filepath.Join(d.dir, name)

	f, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create media file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, io.LimitReader(resp.Body, maxMediaSize)); err != nil {
		_ = os.Remove(dest)
		return "", fmt.Errorf("write media file: %w", err)
	}
	return dest, nil
}
