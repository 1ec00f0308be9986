package consumer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"github.com/nextstop-data/internal/common/config"
	"github.com/nextstop-data/internal/common/errs"
	"github.com/nextstop-data/internal/common/logger"
	"github.com/nextstop-data/internal/gtfs-realtime/processor"
	"github.com/nextstop-data/pkg/gtfs-static/models"
)

func newTestConsumer() *Consumer {
	cfg := config.GTFSRealtimeConfig{PollingInterval: time.Second, RequestTimeout: 5 * time.Second}
	return NewConsumer(cfg, processor.NewProcessor(logger.Nop()), logger.Nop())
}

func feedBytes(t *testing.T) []byte {
	t.Helper()
	msg := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{GtfsRealtimeVersion: proto.String("2.0"), Timestamp: proto.Uint64(1700000000)},
		Entity: []*gtfs.FeedEntity{{
			Id: proto.String("e1"),
			TripUpdate: &gtfs.TripUpdate{
				Trip: &gtfs.TripDescriptor{TripId: proto.String("123_A"), RouteId: proto.String("2441_M10")},
				StopTimeUpdate: []*gtfs.TripUpdate_StopTimeUpdate{{
					StopId:    proto.String("1122233"),
					Departure: &gtfs.TripUpdate_StopTimeEvent{Time: proto.Int64(1700000180)},
				}},
			},
		}},
	}
	b, err := proto.Marshal(msg)
	require.NoError(t, err)
	return b
}

func sydney(url string) models.City {
	return models.City{
		ID:       "sydney",
		Name:     "Sydney",
		Realtime: true,
		APIKey:   "apikey secret",
		FeedURLs: map[string]string{"bus": url},
	}
}

func TestFetchSnapshotSetsAuthorizationAndDecodes(t *testing.T) {
	body := feedBytes(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "apikey secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/x-protobuf", r.Header.Get("Accept"))
		w.Write(body)
	}))
	defer srv.Close()

	snap, err := newTestConsumer().FetchSnapshot(context.Background(), sydney(srv.URL), "bus")
	require.NoError(t, err)
	assert.Equal(t, "sydney", snap.CityID)
	assert.Equal(t, "bus", snap.Feed)
	require.Len(t, snap.Entities, 1)
	assert.Equal(t, "123_A", snap.Entities[0].TripUpdate.TripID)
	assert.EqualValues(t, 1700000000, snap.HeaderTime.Unix())
}

func TestFetchSnapshotNotModifiedReusesCache(t *testing.T) {
	body := feedBytes(t)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Write(body)
	}))
	defer srv.Close()

	c := newTestConsumer()
	first, err := c.FetchSnapshot(context.Background(), sydney(srv.URL), "bus")
	require.NoError(t, err)
	second, err := c.FetchSnapshot(context.Background(), sydney(srv.URL), "bus")
	require.NoError(t, err)

	assert.EqualValues(t, 2, calls.Load())
	assert.NotEqual(t, first.ID, second.ID)
	assert.Len(t, second.Entities, 1)
}

func TestFetchSnapshotErrors(t *testing.T) {
	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte{0xff, 0xff, 0xff, 0xff})
	}))
	defer garbage.Close()
	unavailable := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer unavailable.Close()

	noKey := sydney(garbage.URL)
	noKey.APIKey = "  "

	tests := []struct {
		name string
		city models.City
		feed string
		want error
	}{
		{name: "unknown feed", city: sydney(garbage.URL), feed: "tram", want: errs.ErrInvalidEndpoint},
		{name: "bad url", city: sydney("ftp://feeds"), feed: "bus", want: errs.ErrInvalidEndpoint},
		{name: "missing key", city: noKey, feed: "bus", want: errs.ErrMissingCredential},
		{name: "http status", city: sydney(unavailable.URL), feed: "bus", want: errs.ErrTransport},
		{name: "connection refused", city: sydney("http://127.0.0.1:1"), feed: "bus", want: errs.ErrTransport},
		{name: "decode", city: sydney(garbage.URL), feed: "bus", want: errs.ErrDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestConsumer().FetchSnapshot(context.Background(), tt.city, tt.feed)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
