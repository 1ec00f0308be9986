package scraper

import (
	"context"

	"github.com/nextstop-data/internal/gtfs-static/importer"
	"github.com/nextstop-data/pkg/gtfs-static/models"
)

// Lister returns the object names stored under prefix.
type Lister interface {
	List(ctx context.Context, prefix string) ([]string, error)
}

// Downloader copies prefix/name from the remote store to destPath.
type Downloader interface {
	Download(ctx context.Context, prefix, name, destPath string) error
}

type RemoteStore interface {
	Lister
	Downloader
}

// CityStore is where sync progress is read and recorded.
type CityStore interface {
	Get(id string) (models.City, bool)
	UpdateSyncState(id string, date models.FileDate, fileName string) error
}

type Importer interface {
	Import(ctx context.Context, cityID string, file models.RemoteFile, path string) (importer.Result, error)
}

// Alerter is told about files that could not be applied.
type Alerter interface {
	SendSyncFailure(ctx context.Context, cityID, fileName string, cause error) error
}

type Scheduler interface {
	Start(ctx context.Context) error
	Stop() error
}
