package metrics

import "expvar"

var (
	RelayEvents        = expvar.NewInt("relay_events")
	RelayNotFound      = expvar.NewInt("relay_not_found")
	RelayNotifications = expvar.NewInt("relay_notifications")
	RelayStoreWrites   = expvar.NewInt("relay_store_writes")

	// RelayFailures is keyed by error kind.
	RelayFailures = expvar.NewMap("relay_failures")
	// RelayOutcomes is keyed by outcome (created, updated, closed, not_found).
	RelayOutcomes = expvar.NewMap("relay_outcomes")

	// latency of the outbound notification call
	NotifyLatencyLastMs  = expvar.NewInt("relay_notify_latency_last_ms")
	NotifyLatencyTotalMs = expvar.NewInt("relay_notify_latency_total_ms")
	NotifyLatencySamples = expvar.NewInt("relay_notify_latency_samples")

	KafkaMessages = expvar.NewInt("relay_kafka_messages")
	KafkaDLQ      = expvar.NewInt("relay_kafka_dlq")
)
