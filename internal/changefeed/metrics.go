package changefeed

import "github.com/prometheus/client_golang/prometheus"

var (
	statuses = []Status{StatusSubscribed, StatusError, StatusTimedOut, StatusClosed}

	statusGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "counters",
		Subsystem: "changefeed",
		Name:      "status",
		Help:      "Current state of the change feed connection; 1 for the current state, 0 otherwise",
	}, []string{"status"})

	changes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "counters",
		Subsystem: "changefeed",
		Name:      "changes_total",
		Help:      "Total changes received from the change feed",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(statusGauge, changes)
}

func setStatusMetric(current Status) {
	for _, s := range statuses {
		if s == current {
			statusGauge.WithLabelValues(string(s)).Set(1)
		} else {
			statusGauge.WithLabelValues(string(s)).Set(0)
		}
	}
}
