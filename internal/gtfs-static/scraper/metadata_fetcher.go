package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/nextstop-data/internal/common/errs"
)

const indexFile = "index.json"

// storeIndex is the listing document kept in every city folder.
type storeIndex struct {
	Items []struct {
		Name string `json:"name"`
		Size int64  `json:"size,omitempty"`
	} `json:"items"`
}

// List fetches <base>/<prefix>/index.json and returns the listed names.
func (d *HTTPStore) List(ctx context.Context, prefix string) ([]string, error) {
	src, err := d.objectURL(prefix, indexFile)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", errs.ErrInvalidEndpoint)
	}

	d.logger.Debug("Listing static files", "url", src, "prefix", prefix)

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Error("Failed to execute request", "url", src, "error", err)
		return nil, fmt.Errorf("executing request to %s: %w: %w", src, errs.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		d.logger.Error("Store returned error status",
			"status_code", resp.StatusCode,
			"url", src,
			"response_body", string(body))
		return nil, fmt.Errorf("store returned status %d: %w", resp.StatusCode, errs.ErrTransport)
	}

	var index storeIndex
	if err := json.NewDecoder(resp.Body).Decode(&index); err != nil {
		return nil, fmt.Errorf("decoding index: %w: %w", errs.ErrDecode, err)
	}

	names := make([]string, 0, len(index.Items))
	for _, item := range index.Items {
		names = append(names, item.Name)
	}

	d.logger.Info("Static files listed", "prefix", prefix, "count", len(names))
	return names, nil
}
