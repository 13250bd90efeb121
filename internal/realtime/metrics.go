package realtime

import "github.com/prometheus/client_golang/prometheus"

var (
	eventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livechat_realtime_events_published_total",
			Help: "Realtime events published, by driver and event type.",
		},
		[]string{"driver", "type"},
	)
	eventsDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livechat_realtime_events_delivered_total",
			Help: "Realtime events handed to subscribers, by channel kind.",
		},
		[]string{"channel"},
	)
	activeSubscriptions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "livechat_realtime_subscriptions",
			Help: "Currently open realtime subscriptions, by channel kind.",
		},
		[]string{"channel"},
	)
	mirrorFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "livechat_realtime_mirror_failures_total",
			Help: "Events that could not be mirrored to Kafka.",
		},
	)
)

func init() {
	prometheus.MustRegister(eventsPublished, eventsDelivered, activeSubscriptions, mirrorFailures)
}
