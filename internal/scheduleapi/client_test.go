package scheduleapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextstop-data/internal/common/config"
	"github.com/nextstop-data/internal/common/errs"
	"github.com/nextstop-data/internal/common/logger"
	"github.com/nextstop-data/pkg/gtfs-static/models"
)

const tisseoBody = `{"departures":{"departure":[
	{"dateTime":"2024-05-01 12:10:00","line":{"id":"line:61","shortName":"L1"},"destination":[{"name":"Sept Deniers"}]},
	{"dateTime":"2024-05-01 12:03:00","line":{"id":"line:12","shortName":"A"},"destination":[{"name":"Balma-Gramont"},{"name":"ignored"}]},
	{"dateTime":"2024-05-01 11:59:00","line":{"id":"line:12","shortName":"A"},"destination":[{"name":"Basso Cambo"}]},
	{"dateTime":"not a date","line":{"id":"line:12","shortName":"A"},"destination":[{"name":"Basso Cambo"}]},
	{"dateTime":"2024-05-01 12:20:00","destination":[{"name":"No line"}]},
	{"dateTime":"2024-05-01 12:20:00","line":{"id":"line:1","shortName":"B"},"destination":[]}
]}}`

var capitole = models.Stop{StopID: "stop_point:SP_1", StopName: "Capitole", StopLat: 43.6045, StopLon: 1.444}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, models.City, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(config.ScheduleAPIConfig{CacheSize: 10, CacheTTL: time.Minute}, time.Second, logger.Nop(), nil)
	c.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	city := models.City{ID: "toulouse", Name: "Toulouse", ScheduleAPI: srv.URL + "/v2/stops_schedules.json", APIKey: "k"}
	return c, city, &calls
}

func TestDepartures(t *testing.T) {
	var query string
	c, city, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		w.Write([]byte(tisseoBody))
	})

	events, err := c.Departures(context.Background(), city, capitole)
	require.NoError(t, err)
	assert.Contains(t, query, "stopPointId=stop_point%3ASP_1")
	assert.Contains(t, query, "key=k")

	require.Len(t, events, 2)
	assert.Equal(t, "A", events[0].BusNumber)
	assert.Equal(t, "line:12", events[0].RouteID)
	assert.Equal(t, "Balma-Gramont", events[0].Headsign)
	assert.Equal(t, "3 min", events[0].ArrivalText)
	assert.Equal(t, "Capitole", events[0].StopName)
	require.NotNil(t, events[0].StopPoint)
	assert.Equal(t, "L1", events[1].BusNumber)
	assert.Equal(t, "10 min", events[1].ArrivalText)

	c.now = func() time.Time { return time.Date(2024, 5, 1, 12, 5, 0, 0, time.UTC) }
	events, err = c.Departures(context.Background(), city, capitole)
	require.NoError(t, err)
	require.Len(t, events, 1, "cached entries are filtered against the current time")
	assert.Equal(t, "5 min", events[0].ArrivalText)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestDeparturesErrors(t *testing.T) {
	c, city, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("stopPointId") {
		case "down":
			w.WriteHeader(http.StatusBadGateway)
		case "garbled":
			w.Write([]byte(`{"departures":`))
		default:
			w.Write([]byte(`{"expirationDate":"2024-05-01"}`))
		}
	})
	ctx := context.Background()

	_, err := c.Departures(ctx, city, models.Stop{StopID: "down"})
	assert.ErrorIs(t, err, errs.ErrTransport)

	_, err = c.Departures(ctx, city, models.Stop{StopID: "garbled"})
	assert.ErrorIs(t, err, errs.ErrDecode)

	_, err = c.Departures(ctx, city, models.Stop{StopID: "empty"})
	assert.ErrorIs(t, err, errs.ErrDecode)

	noKey := city
	noKey.APIKey = ""
	_, err = c.Departures(ctx, noKey, models.Stop{StopID: "x"})
	assert.ErrorIs(t, err, errs.ErrMissingCredential)

	noAPI := city
	noAPI.ID, noAPI.ScheduleAPI = "sydney", ""
	_, err = c.Departures(ctx, noAPI, models.Stop{StopID: "x"})
	assert.True(t, errs.IsConfiguration(err))
}
