package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsRelayedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "livechat_outbox_events_relayed_total",
			Help: "Outbox events published to the bus and deleted",
		},
	)

	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livechat_webhook_deliveries_total",
			Help: "Webhook delivery attempts by outcome",
		},
		[]string{"outcome"}, // success|failure|dropped
	)

	JobsEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livechat_delivery_jobs_enqueued_total",
			Help: "Delivery jobs enqueued by kind",
		},
		[]string{"kind"}, // initial|retry|reaped
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		EventsRelayedTotal,
		DeliveriesTotal,
		JobsEnqueuedTotal,
	)
}
