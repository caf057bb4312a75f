package failover

import "github.com/prometheus/client_golang/prometheus"

const namespace = "loanpipe"
const subsystem = "failover"

type metrics struct {
	secondaryServed prometheus.Counter
	unavailable     prometheus.Counter
	replayed        prometheus.Counter
	resyncRuns      prometheus.Counter
	pending         prometheus.Gauge
}

func newMetrics() *metrics {
	return &metrics{
		secondaryServed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "secondary_total",
			Help:      "Operations answered by the secondary store.",
		}),
		unavailable: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "unavailable_total",
			Help:      "Operations neither store answered.",
		}),
		replayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "replayed_total",
			Help:      "Queued updates replayed onto the primary.",
		}),
		resyncRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "resync_runs_total",
			Help:      "Resync passes started.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pending_updates",
			Help:      "Updates applied on the secondary awaiting replay.",
		}),
	}
}

func (m *metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.secondaryServed,
		m.unavailable,
		m.replayed,
		m.resyncRuns,
		m.pending,
	}
}
