package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingestion outcome counters
var (
	IngestCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_ingest_created_total",
		Help: "Orders created by webhook ingestion.",
	})
	IngestUpdated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_ingest_updated_total",
		Help: "Re-deliveries applied as restricted updates.",
	})
	IngestRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_ingest_rejected_total",
		Help: "Webhook payloads rejected by validation.",
	})
)

// StreamClients tracks currently connected live sync streams
var StreamClients = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "sync_stream_clients",
	Help: "Connected server-sent event streams.",
})
