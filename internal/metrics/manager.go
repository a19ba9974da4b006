package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Manager struct {
	// counters
	CounterRequests        *prometheus.CounterVec
	CounterSessionsStarted prometheus.Counter
	CounterSessionsClosed  *prometheus.CounterVec
	CounterSets            *prometheus.CounterVec
	CounterReconciles      *prometheus.CounterVec
	CounterRecordItems     prometheus.Counter
	CounterPersistFailures prometheus.Counter

	// gauges
	GaugeLiveSessions prometheus.Gauge

	// histograms
	HistRequestDuration   prometheus.Histogram
	HistReconcileDuration prometheus.Histogram
}

func NewTestManager() *Manager {
	return NewManager("eruna", "test", prometheus.NewRegistry())
}

func NewTestManagerAndRegistry() (*Manager, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewManager("eruna", "test", reg), reg
}

func NewManager(namespace, subsystem string, reg prometheus.Registerer) *Manager {
	factory := promauto.With(reg)

	counterRequests := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request",
		Help:      "The total number of incoming requests",
	}, []string{"method", "status"})
	counterSessionsStarted := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "sessions_started",
		Help:      "The total number of sessions started",
	})
	counterSessionsClosed := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "sessions_closed",
		Help:      "The total number of sessions that left the active state, by final status",
	}, []string{"status"})
	counterSets := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "sets",
		Help:      "The total number of sets recorded, by outcome",
	}, []string{"outcome"})
	counterReconciles := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "reconciles",
		Help:      "The total number of session reconciliations, by result",
	}, []string{"result"})
	counterRecordItems := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "record_items_written",
		Help:      "The total number of record entries written to the backend",
	})
	counterPersistFailures := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "snapshot_persist_failures",
		Help:      "The total number of failed session snapshot writes",
	})

	gaugeLiveSessions := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "live_sessions",
		Help:      "Current number of sessions held in the store",
	})

	histReqDuration := factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Buckets: []float64{
				0.0001, 0.0005, 0.001, 0.005, 0.01,
				0.05, 0.1, 0.5, 1, 5, 10,
			},
			Name: "request_duration_seconds",
			Help: "Total duration of requests in seconds",
		},
	)
	histReconcileDuration := factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Buckets: []float64{
				0.01, 0.05, 0.1, 0.25, 0.5,
				1, 2.5, 5, 10, 30, 60,
			},
			Name: "reconcile_duration_seconds",
			Help: "Duration of writing a finished session to the backend",
		},
	)

	return &Manager{
		CounterRequests:        counterRequests,
		CounterSessionsStarted: counterSessionsStarted,
		CounterSessionsClosed:  counterSessionsClosed,
		CounterSets:            counterSets,
		CounterReconciles:      counterReconciles,
		CounterRecordItems:     counterRecordItems,
		CounterPersistFailures: counterPersistFailures,
		GaugeLiveSessions:      gaugeLiveSessions,
		HistRequestDuration:    histReqDuration,
		HistReconcileDuration:  histReconcileDuration,
	}
}
