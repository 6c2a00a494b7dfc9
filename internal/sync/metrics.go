package sync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters land on the default registry, which the observability manager
// already serves through its Prometheus handler.
var (
	refetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_sync_refetch_total",
		Help: "Full order refetches by outcome.",
	}, []string{"outcome"})

	debounceFires = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_sync_debounce_fires_total",
		Help: "Debounce channel firings by channel.",
	}, []string{"channel"})

	rollbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_sync_rollback_total",
		Help: "Optimistic mutations rolled back after a remote failure.",
	}, []string{"mutation"})
)
