package pubsub

import "github.com/prometheus/client_golang/prometheus"

var (
	subscribers = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "counters",
		Subsystem: "pubsub",
		Name:      "subscribers",
		Help:      "Total current subscribers",
	}, []string{"broker"})

	published = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "counters",
		Subsystem: "pubsub",
		Name:      "published_total",
		Help:      "Total events published",
	}, []string{"broker"})

	dropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "counters",
		Subsystem: "pubsub",
		Name:      "dropped_subscribers_total",
		Help:      "Total subscribers unsubscribed because their buffer was full",
	}, []string{"broker"})
)

func init() {
	prometheus.MustRegister(subscribers, published, dropped)
}
