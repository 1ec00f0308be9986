package models

import (
	"fmt"
	"strings"
)

// Static file types published to the object store.
const (
	FileTypeTrips  = "trips"
	FileTypeStops  = "stops"
	FileTypeRoutes = "routes"
	FileTypeShapes = "shapes"
)

// RemoteFile describes one dated static file in the object store, named
// <prefix>[_<fileType>]_<yyyymmdd>.json. FileType is empty when the name
// carries none.
type RemoteFile struct {
	Name     string   `json:"name"`
	Prefix   string   `json:"prefix"`
	FileType string   `json:"fileType"`
	Date     FileDate `json:"date"`
	Size     int64    `json:"size,omitempty"`
}

// ParseRemoteFile splits an object name into its parts. The prefix must
// equal cityPrefix; names that do not follow the convention are rejected.
func ParseRemoteFile(name, cityPrefix string) (RemoteFile, error) {
	base := name
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	if !strings.HasSuffix(base, ".json") {
		return RemoteFile{}, fmt.Errorf("file %q: not a json file", name)
	}
	if !strings.HasPrefix(base, cityPrefix+"_") {
		return RemoteFile{}, fmt.Errorf("file %q: expected prefix %q", name, cityPrefix)
	}

	rest := strings.TrimPrefix(strings.TrimSuffix(base, ".json"), cityPrefix+"_")
	parts := strings.Split(rest, "_")

	date, err := ParseFileDate(parts[len(parts)-1])
	if err != nil {
		return RemoteFile{}, fmt.Errorf("file %q: expected <prefix>[_<type>]_<yyyymmdd>: %w", name, err)
	}

	var fileType string
	if len(parts) > 1 {
		fileType = parts[len(parts)-2]
	}

	return RemoteFile{
		Name:     base,
		Prefix:   cityPrefix,
		FileType: fileType,
		Date:     date,
	}, nil
}
