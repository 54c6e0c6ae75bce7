package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecordsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "f1i_records_ingested_total",
		Help: "Live records received per category",
	}, []string{"category"})

	RecordsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "f1i_records_dropped_total",
		Help: "Live records that could not be decoded or stored",
	}, []string{"category", "reason"})

	RefreshTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "f1i_refresh_ticks_total",
		Help: "Refresh loop iterations",
	})

	RefreshFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "f1i_refresh_failures_total",
		Help: "Refresh loop iterations that failed",
	})

	RefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "f1i_refresh_duration_seconds",
		Help:    "Duration of one refresh iteration",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0},
	})

	PresenterErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "f1i_presenter_errors_total",
		Help: "Presentation failures by presenter",
	}, []string{"presenter"})

	RenderErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "f1i_render_errors_total",
		Help: "Views that could not be rendered",
	}, []string{"view"})

	FetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "f1i_openf1_fetch_duration_seconds",
		Help:    "Latency of OpenF1 REST requests",
		Buckets: []float64{0.05, 0.1, 0.2, 0.5, 1.0, 2.0, 5.0},
	}, []string{"endpoint"})

	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "f1i_websocket_clients",
		Help: "Currently connected websocket clients",
	})
)
