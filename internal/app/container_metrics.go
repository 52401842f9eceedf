package app

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/dig"

	"crowdship-engine/internal/metrics"
)

type countersOut struct {
	dig.Out

	MatchesGenerated  prometheus.Counter `name:"matches_generated_total"`
	MatchConflicts    prometheus.Counter `name:"match_conflicts_total"`
	EscrowReleased    prometheus.Counter `name:"escrow_released_total"`
	EscrowRefunded    prometheus.Counter `name:"escrow_refunded_total"`
	SweepExpired      prometheus.Counter `name:"sweep_expired_total"`
	OutboxDispatched  prometheus.Counter `name:"outbox_dispatched_total"`
	GatewayRetries    prometheus.Counter `name:"gateway_retries_total"`
	RateLimitExceeded prometheus.Counter `name:"rate_limit_exceeded_total"`
}

var (
	countersOnce sync.Once
	counters     countersOut
)

// newCounters registers the engine counters once and hands them out to
// consumers by name. Registration is process-wide; rebuilding a container
// must not re-register.
func newCounters() countersOut {
	countersOnce.Do(func() { counters = buildCounters() })
	return counters
}

func buildCounters() countersOut {
	out := countersOut{
		MatchesGenerated:  metrics.NewMatchesGeneratedTotal(),
		MatchConflicts:    metrics.NewMatchConflictsTotal(),
		EscrowReleased:    metrics.NewEscrowReleasedTotal(),
		EscrowRefunded:    metrics.NewEscrowRefundedTotal(),
		SweepExpired:      metrics.NewSweepExpiredTotal(),
		OutboxDispatched:  metrics.NewOutboxDispatchedTotal(),
		GatewayRetries:    metrics.NewGatewayRetriesTotal(),
		RateLimitExceeded: metrics.NewRateLimitExceededTotal(),
	}
	prometheus.MustRegister(
		out.MatchesGenerated, out.MatchConflicts,
		out.EscrowReleased, out.EscrowRefunded,
		out.SweepExpired, out.OutboxDispatched,
		out.GatewayRetries, out.RateLimitExceeded,
	)
	return out
}
