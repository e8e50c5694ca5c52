// Package metrics registers the Prometheus instruments the service exports
// on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TokensIssued counts minted attendance tokens (reused polling tokens
	// are not re-counted).
	TokensIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_tokens_issued_total",
		Help: "Attendance tokens minted.",
	})

	// Confirms counts check-in confirmations by outcome
	// (present, late, token_invalid, token_used, not_enrolled, duplicate, error).
	Confirms = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_confirms_total",
		Help: "Check-in confirmations by outcome.",
	}, []string{"outcome"})

	// TokensReaped counts tokens removed by the background sweep.
	TokensReaped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_tokens_reaped_total",
		Help: "Stale or used tokens deleted by the reaper.",
	})
)
