// Package metrics exposes Prometheus metrics for the swap coordinator:
// swap lifecycle counters, auction outcomes, refund scans and an HTTP
// middleware for the relayer API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SwapsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "swapcoord",
		Subsystem: "swaps",
		Name:      "completed_total",
		Help:      "Swaps that reached Completed with both escrows resolved",
	})

	SwapsRefunded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "swapcoord",
		Subsystem: "swaps",
		Name:      "refunded_total",
		Help:      "Swaps fully refunded on both sides",
	})

	SwapsRefunding = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "swapcoord",
		Subsystem: "swaps",
		Name:      "refunding_total",
		Help:      "Swaps routed to the refund path after funding",
	})

	SwapsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "swapcoord",
		Subsystem: "swaps",
		Name:      "failed_total",
		Help:      "Swaps that failed before any fund movement",
	})

	SwapDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "swapcoord",
		Subsystem: "swaps",
		Name:      "duration_seconds",
		Help:      "Wall time from swap creation to completion",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})

	BidsSubmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "swapcoord",
		Subsystem: "auction",
		Name:      "bids_submitted_total",
		Help:      "Bids accepted or rejected by the bidding engine",
	}, []string{"outcome"})

	AuctionsResolved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "swapcoord",
		Subsystem: "auction",
		Name:      "resolved_total",
		Help:      "Auction resolutions by outcome (won, no_eligible_bid)",
	}, []string{"outcome"})

	RefundScans = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "swapcoord",
		Subsystem: "refund",
		Name:      "scans_total",
		Help:      "Refund watcher scan passes",
	})

	RefundsIssued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "swapcoord",
		Subsystem: "refund",
		Name:      "issued_total",
		Help:      "Escrow refunds issued per chain",
	}, []string{"chain"})
)

// Register installs all coordinator metrics on reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		SwapsCompleted,
		SwapsRefunded,
		SwapsRefunding,
		SwapsFailed,
		SwapDuration,
		BidsSubmitted,
		AuctionsResolved,
		RefundScans,
		RefundsIssued,
		httpRequestsTotal,
		httpRequestDuration,
	)
}
