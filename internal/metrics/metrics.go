package metrics

import "github.com/prometheus/client_golang/prometheus"

// NewMatchesGeneratedTotal returns a Prometheus counter for the number of match candidates produced
func NewMatchesGeneratedTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "matches_generated_total",
		Help: "Total number of match candidates produced by the matching engine",
	})
}

// NewMatchConflictsTotal returns a Prometheus counter for losing concurrent accept attempts
func NewMatchConflictsTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "match_conflicts_total",
		Help: "Total number of accept attempts rejected because a sibling match won",
	})
}

// NewEscrowReleasedTotal returns a Prometheus counter for released escrow transactions
func NewEscrowReleasedTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "escrow_released_total",
		Help: "Total number of escrow transactions released to deliverers",
	})
}

// NewEscrowRefundedTotal returns a Prometheus counter for refunded escrow transactions
func NewEscrowRefundedTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "escrow_refunded_total",
		Help: "Total number of escrow transactions refunded to clients",
	})
}

// NewSweepExpiredTotal returns a Prometheus counter for rows expired by the sweeper
func NewSweepExpiredTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sweep_expired_total",
		Help: "Total number of announcements and matches expired by the sweeper",
	})
}

// NewOutboxDispatchedTotal returns a Prometheus counter for dispatched outbox rows
func NewOutboxDispatchedTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_dispatched_total",
		Help: "Total number of outbox effects dispatched by the worker",
	})
}

// NewGatewayRetriesTotal returns a Prometheus counter for the number of retry attempts performed by gateways
func NewGatewayRetriesTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_retries_total",
		Help: "Total number of retry attempts performed by gateways",
	})
}

// NewRateLimitExceededTotal returns a Prometheus counter for the number of rejected HTTP requests due to rate limiting
func NewRateLimitExceededTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rate_limit_exceeded_total",
		Help: "Total number of rejected HTTP requests due to rate limiting",
	})
}
