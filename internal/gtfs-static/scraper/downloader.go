package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nextstop-data/internal/common/errs"
	"github.com/nextstop-data/internal/common/logger"
)

// HTTPStore reads the static object store over HTTP. Each city folder has
// an index.json listing its objects.
type HTTPStore struct {
	baseURL    string
	client     *http.Client
	logger     logger.Logger
	maxRetries uint64

	initialInterval time.Duration
}

func NewHTTPStore(baseURL string, maxRetries uint64, logger logger.Logger) *HTTPStore {
	return &HTTPStore{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 5 * time.Minute, // Large files may take time
		},
		logger:          logger,
		maxRetries:      maxRetries,
		initialInterval: time.Second,
	}
}

func (d *HTTPStore) objectURL(parts ...string) (string, error) {
	u, err := url.JoinPath(d.baseURL, parts...)
	if err != nil {
		return "", fmt.Errorf("building object url: %w", errs.ErrInvalidEndpoint)
	}
	return u, nil
}

func (d *HTTPStore) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.initialInterval
	b.MaxElapsedTime = 2 * time.Minute
	return backoff.WithContext(backoff.WithMaxRetries(b, d.maxRetries), ctx)
}

// Download fetches prefix/name into destPath through a temp file, retrying
// transport failures and 5xx responses with exponential backoff.
func (d *HTTPStore) Download(ctx context.Context, prefix, name, destPath string) error {
	src, err := d.objectURL(prefix, name)
	if err != nil {
		return err
	}

	d.logger.Info("Starting download", "url", src, "dest", destPath)

	written, err := backoff.RetryNotifyWithData(
		func() (int64, error) { return d.download(ctx, src, destPath) },
		d.newBackOff(ctx),
		func(err error, wait time.Duration) {
			d.logger.Warn("Download failed, retrying", "url", src, "wait", wait, "error", err)
		},
	)
	if err != nil {
		return err
	}

	d.logger.Info("Download completed",
		"url", src,
		"dest", destPath,
		"size_bytes", written)
	return nil
}

func (d *HTTPStore) download(ctx context.Context, src, destPath string) (int64, error) {
	destDir := filepath.Dir(destPath)
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return 0, backoff.Permanent(fmt.Errorf("creating destination directory: %w", err))
	}

	tempFile, err := os.CreateTemp(destDir, "gtfs_download_*.tmp")
	if err != nil {
		return 0, backoff.Permanent(fmt.Errorf("creating temp file: %w", err))
	}
	tempPath := tempFile.Name()
	defer os.Remove(tempPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		tempFile.Close()
		return 0, backoff.Permanent(fmt.Errorf("creating request: %w", errs.ErrInvalidEndpoint))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		tempFile.Close()
		return 0, fmt.Errorf("executing request: %w: %w", errs.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		tempFile.Close()
		statusErr := fmt.Errorf("unexpected status code %d: %w", resp.StatusCode, errs.ErrTransport)
		if resp.StatusCode < 500 {
			return 0, backoff.Permanent(statusErr)
		}
		return 0, statusErr
	}

	written, err := d.copyWithProgress(tempFile, resp.Body, resp.ContentLength)
	tempFile.Close()
	if err != nil {
		return written, fmt.Errorf("downloading file: %w: %w", errs.ErrTransport, err)
	}

	if err := os.Rename(tempPath, destPath); err != nil {
		return written, backoff.Permanent(fmt.Errorf("moving file to destination: %w", err))
	}
	return written, nil
}

func (d *HTTPStore) copyWithProgress(dst io.Writer, src io.Reader, totalSize int64) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64
	lastLog := time.Now()

	for {
		nr, err := src.Read(buf)
		if nr > 0 {
			nw, err := dst.Write(buf[0:nr])
			if err != nil {
				return written, err
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}
			written += int64(nw)

			// Log progress every 5 seconds
			if time.Since(lastLog) > 5*time.Second && totalSize > 0 {
				progress := float64(written) / float64(totalSize) * 100
				d.logger.Debug("Download progress",
					"progress_percent", fmt.Sprintf("%.1f", progress),
					"bytes_downloaded", written,
					"total_bytes", totalSize)
				lastLog = time.Now()
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return written, err
		}
	}

	return written, nil
}
