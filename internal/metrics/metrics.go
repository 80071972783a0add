// Package metrics exposes prometheus instruments for the daemon.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	MessagesApplied = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pigeon_sync_messages_applied_total",
		Help: "Messages appended to the in-memory chat collection",
	})
	DuplicatesDiscarded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pigeon_sync_duplicates_discarded_total",
		Help: "Incoming message events discarded as duplicates or self-echoes",
	})
	Refreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pigeon_sync_refreshes_total",
		Help: "Full refreshes by outcome",
	}, []string{"result"})
	WsClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pigeon_ws_clients",
		Help: "Connected websocket event stream clients",
	})
	MessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pigeon_outbox_messages_sent_total",
		Help: "Outbox messages successfully persisted to the backend",
	})
)

func init() {
	prometheus.MustRegister(MessagesApplied, DuplicatesDiscarded, Refreshes, WsClients, MessagesSent)
}
