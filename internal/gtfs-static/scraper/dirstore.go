package scraper

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nextstop-data/internal/common/errs"
)

// DirStore serves a local mirror of the object store: one sub-directory
// per city prefix.
type DirStore struct {
	root string
}

func NewDirStore(root string) *DirStore {
	return &DirStore{root: root}
}

func (s *DirStore) List(ctx context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, prefix))
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w: %w", prefix, errs.ErrTransport, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func (s *DirStore) Download(ctx context.Context, prefix, name, destPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	src, err := os.Open(filepath.Join(s.root, prefix, filepath.Base(name)))
	if err != nil {
		return fmt.Errorf("opening %s/%s: %w: %w", prefix, name, errs.ErrTransport, err)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("creating destination directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(destPath), "gtfs_download_*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return fmt.Errorf("copying %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), destPath)
}
