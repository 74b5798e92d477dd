package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var relayed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "counters",
	Subsystem: "relay",
	Name:      "events_total",
	Help:      "Total number of change events relayed, by sink and result.",
}, []string{"sink", "result"})
