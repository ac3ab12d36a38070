package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	activeActivities = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "idlerealm",
		Subsystem: "idle",
		Name:      "active_activities",
		Help:      "Activities currently registered with a live timer.",
	})

	reconciliationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "idlerealm",
		Subsystem: "idle",
		Name:      "reconciliations_total",
		Help:      "Offline reconciliations run, by activity kind.",
	}, []string{"kind"})

	offlineRepsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "idlerealm",
		Subsystem: "idle",
		Name:      "offline_repetitions_total",
		Help:      "Repetitions credited by offline reconciliation, by kind.",
	}, []string{"kind"})

	combatTicksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "idlerealm",
		Subsystem: "combat",
		Name:      "offline_ticks_total",
		Help:      "Ticks simulated by the offline combat loop.",
	})

	wsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "idlerealm",
		Subsystem: "ws",
		Name:      "connections",
		Help:      "Open websocket connections.",
	})

	dbQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "idlerealm",
		Subsystem: "db",
		Name:      "queue_depth",
		Help:      "Requests waiting for the sqlite writer goroutine.",
	})
)

func init() {
	prometheus.MustRegister(
		activeActivities,
		reconciliationsTotal,
		offlineRepsTotal,
		combatTicksTotal,
		wsConnections,
		dbQueueDepth,
	)
}

func ActivityRegistered()   { activeActivities.Inc() }
func ActivityUnregistered() { activeActivities.Dec() }

// RecordReconciliation counts one reconciled activity and the
// repetitions it credited.
func RecordReconciliation(kind string, reps int) {
	reconciliationsTotal.WithLabelValues(kind).Inc()
	if reps > 0 {
		offlineRepsTotal.WithLabelValues(kind).Add(float64(reps))
	}
}

func RecordCombatTicks(n int64) {
	if n > 0 {
		combatTicksTotal.Add(float64(n))
	}
}

func WSConnected()    { wsConnections.Inc() }
func WSDisconnected() { wsConnections.Dec() }

func SetDBQueueDepth(n int) { dbQueueDepth.Set(float64(n)) }
