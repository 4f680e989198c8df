package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "upstream",
		Name:      "requests_total",
		Help:      "Upstream API requests by operation and outcome.",
	}, []string{"operation", "outcome"})

	DebounceScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "debounce",
		Name:      "scheduled_total",
		Help:      "Quantity writes scheduled on the debounced write queue.",
	})

	DebounceFlushed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "debounce",
		Name:      "flushed_total",
		Help:      "Quantity writes actually sent upstream after coalescing.",
	})

	OptimisticReverts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "sync",
		Name:      "optimistic_reverts_total",
		Help:      "Optimistic mutations reverted by an authoritative reload.",
	})

	Migrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "sync",
		Name:      "migrations_total",
		Help:      "Guest data migrations by result.",
	}, []string{"kind", "result"})

	GuestStoreSelfHeals = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "guest_store",
		Name:      "self_heals_total",
		Help:      "Corrupt guest store payloads wiped and reset to empty.",
	})
)
