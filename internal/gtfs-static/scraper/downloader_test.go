package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextstop-data/internal/common/errs"
	"github.com/nextstop-data/internal/common/logger"
)

func newStoreServer(t *testing.T, failures int32) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/toulouse/index.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[{"name":"toulouse_stops_20240501.json","size":2},{"name":"toulouse_trips_20240501.json"}]}`))
	})
	mux.HandleFunc("/toulouse/toulouse_stops_20240501.json", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= failures {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &calls
}

func testStore(url string) *HTTPStore {
	s := NewHTTPStore(url, 3, logger.Nop())
	s.initialInterval = time.Millisecond
	return s
}

func TestHTTPStoreList(t *testing.T) {
	srv, _ := newStoreServer(t, 0)

	names, err := testStore(srv.URL).List(context.Background(), "toulouse")
	require.NoError(t, err)
	assert.Equal(t, []string{"toulouse_stops_20240501.json", "toulouse_trips_20240501.json"}, names)

	_, err = testStore(srv.URL).List(context.Background(), "nancy")
	assert.ErrorIs(t, err, errs.ErrTransport)
}

func TestHTTPStoreDownloadRetries(t *testing.T) {
	srv, calls := newStoreServer(t, 2)
	dest := filepath.Join(t.TempDir(), "toulouse", "toulouse_stops_20240501.json")

	err := testStore(srv.URL).Download(context.Background(), "toulouse", "toulouse_stops_20240501.json", dest)
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))

	body, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(body))

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(dest), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestHTTPStoreDownloadGivesUp(t *testing.T) {
	srv, calls := newStoreServer(t, 100)
	dest := filepath.Join(t.TempDir(), "f.json")

	err := testStore(srv.URL).Download(context.Background(), "toulouse", "toulouse_stops_20240501.json", dest)
	assert.ErrorIs(t, err, errs.ErrTransport)
	assert.Equal(t, int32(4), atomic.LoadInt32(calls), "first attempt plus three retries")
	assert.NoFileExists(t, dest)
}

func TestHTTPStoreDownloadNotFoundIsPermanent(t *testing.T) {
	srv, _ := newStoreServer(t, 0)
	dest := filepath.Join(t.TempDir(), "f.json")

	start := time.Now()
	err := testStore(srv.URL).Download(context.Background(), "toulouse", "missing.json", dest)
	assert.ErrorIs(t, err, errs.ErrTransport)
	assert.Less(t, time.Since(start), time.Second)
}
