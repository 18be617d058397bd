package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	connectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "typewire",
			Subsystem: "sessions",
			Name:      "connections_total",
			Help:      "Connections accepted, by session type and handshake outcome.",
		},
		[]string{"type", "outcome"},
	)
	connectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "typewire",
			Subsystem: "sessions",
			Name:      "connections_active",
			Help:      "Currently open sessions.",
		},
	)
	messagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "typewire",
			Subsystem: "dispatch",
			Name:      "messages_total",
			Help:      "Inbound messages dispatched, by action and outcome.",
		},
		[]string{"action", "outcome"},
	)
	dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "typewire",
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Handler execution time in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"action"},
	)
	broadcastsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "typewire",
			Subsystem: "groups",
			Name:      "broadcasts_total",
			Help:      "Broadcast fan-out operations.",
		},
	)
	broadcastRecipients = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "typewire",
			Subsystem: "groups",
			Name:      "broadcast_recipients_total",
			Help:      "Individual broadcast deliveries.",
		},
	)
	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "typewire",
			Subsystem: "events",
			Name:      "dispatched_total",
			Help:      "Out-of-band events dispatched, by outcome.",
		},
		[]string{"outcome"},
	)
)

// RegisterMetrics installs the collectors exactly once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			connectionsTotal, connectionsActive,
			messagesTotal, dispatchDuration,
			broadcastsTotal, broadcastRecipients,
			eventsTotal,
		)
	})
}

// Dispatch and event outcomes.
const (
	OutcomeOK         = "ok"
	OutcomeInvalid    = "invalid"
	OutcomeError      = "error"
	OutcomeDropped    = "dropped"
	OutcomeAccepted   = "accepted"
	OutcomeRejected   = "rejected"
	OutcomeAuthFailed = "auth_failed"
)

func RecordConnection(sessionType, outcome string) {
	RegisterMetrics()
	connectionsTotal.WithLabelValues(sessionType, outcome).Inc()
}

func SessionOpened() {
	RegisterMetrics()
	connectionsActive.Inc()
}

func SessionClosed() {
	RegisterMetrics()
	connectionsActive.Dec()
}

func RecordMessage(action, outcome string, duration time.Duration) {
	RegisterMetrics()
	messagesTotal.WithLabelValues(action, outcome).Inc()
	dispatchDuration.WithLabelValues(action).Observe(duration.Seconds())
}

func RecordBroadcast(recipients int) {
	RegisterMetrics()
	broadcastsTotal.Inc()
	broadcastRecipients.Add(float64(recipients))
}

func RecordEvent(outcome string) {
	RegisterMetrics()
	eventsTotal.WithLabelValues(outcome).Inc()
}
