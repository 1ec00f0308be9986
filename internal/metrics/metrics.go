package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry. A nil *Collector is valid and records
// nothing, which keeps instrumentation optional in tests.
type Collector struct {
	reg *prometheus.Registry

	FeedPolls        *prometheus.CounterVec // labels: feed, result
	SnapshotEntities *prometheus.GaugeVec   // labels: feed
	LateSnapshots    prometheus.Counter
	SyncFiles        *prometheus.CounterVec // labels: result
	SyncRuns         *prometheus.CounterVec // labels: result
	CatalogRecords   *prometheus.GaugeVec   // labels: kind
	DeriveDuration   *prometheus.HistogramVec
	ScheduleAPICalls *prometheus.CounterVec // labels: result
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		FeedPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nextstop_feed_polls_total",
			Help: "Realtime feed polls by feed and result.",
		}, []string{"feed", "result"}),
		SnapshotEntities: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nextstop_snapshot_entities",
			Help: "Entities in the latest published snapshot.",
		}, []string{"feed"}),
		LateSnapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nextstop_late_snapshots_total",
			Help: "Snapshots discarded because their city was no longer active.",
		}),
		SyncFiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nextstop_static_sync_files_total",
			Help: "Static files handled by sync, by result.",
		}, []string{"result"}),
		SyncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nextstop_static_sync_runs_total",
			Help: "Static sync runs, by result.",
		}, []string{"result"}),
		CatalogRecords: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nextstop_catalog_records",
			Help: "Records in the active catalog partition.",
		}, []string{"kind"}),
		DeriveDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nextstop_derive_duration_seconds",
			Help:    "Duration of event derivation.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		}, []string{"kind"}),
		ScheduleAPICalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nextstop_schedule_api_calls_total",
			Help: "Alternate schedule API lookups, by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.FeedPolls, c.SnapshotEntities, c.LateSnapshots,
		c.SyncFiles, c.SyncRuns, c.CatalogRecords,
		c.DeriveDuration, c.ScheduleAPICalls,
	)
	return c
}

func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

func (c *Collector) ObservePoll(feed string, err error, entities int) {
	if c == nil {
		return
	}
	if err != nil {
		c.FeedPolls.WithLabelValues(feed, "error").Inc()
		return
	}
	c.FeedPolls.WithLabelValues(feed, "ok").Inc()
	c.SnapshotEntities.WithLabelValues(feed).Set(float64(entities))
}

func (c *Collector) LateSnapshot() {
	if c == nil {
		return
	}
	c.LateSnapshots.Inc()
}

func (c *Collector) SyncFile(result string) {
	if c == nil {
		return
	}
	c.SyncFiles.WithLabelValues(result).Inc()
}

func (c *Collector) SyncRun(err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.SyncRuns.WithLabelValues("error").Inc()
		return
	}
	c.SyncRuns.WithLabelValues("ok").Inc()
}

func (c *Collector) SetCatalog(trips, stops, routes int) {
	if c == nil {
		return
	}
	c.CatalogRecords.WithLabelValues("trips").Set(float64(trips))
	c.CatalogRecords.WithLabelValues("stops").Set(float64(stops))
	c.CatalogRecords.WithLabelValues("routes").Set(float64(routes))
}

func (c *Collector) ObserveDerive(kind string, started time.Time) {
	if c == nil {
		return
	}
	c.DeriveDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}

func (c *Collector) ScheduleAPICall(result string) {
	if c == nil {
		return
	}
	c.ScheduleAPICalls.WithLabelValues(result).Inc()
}
