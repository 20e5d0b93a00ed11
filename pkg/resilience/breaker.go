// Package resilience wraps outbound calls in circuit breakers.
package resilience

import (
	"log/slog"

	"github.com/abgdnv/storefront/pkg/config"
	"github.com/sony/gobreaker/v2"
)

const defaultHalfOpenRequests = 3

// NewCircuitBreaker returns a breaker that opens after more than cfg.ConsecutiveFailures failures in a row, or when
// the failure rate of the current window is above cfg.ErrorRatePercent. isSuccessful decides which errors count as
// failures; errors caused by the caller (validation, not found) should not trip the breaker.
func NewCircuitBreaker[T any](name string, cfg config.CircuitBreakerConfig, isSuccessful func(error) bool, logger *slog.Logger) *gobreaker.CircuitBreaker[T] {
	halfOpen := cfg.HalfOpenRequests
	if halfOpen == 0 {
		halfOpen = defaultHalfOpenRequests
	}
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: halfOpen,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			total := counts.TotalSuccesses + counts.TotalFailures
			return counts.ConsecutiveFailures > cfg.ConsecutiveFailures ||
				(total > cfg.ConsecutiveFailures &&
					float64(counts.TotalFailures)/float64(total)*100 > float64(cfg.ErrorRatePercent))
		},
		IsSuccessful: isSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}
	return gobreaker.NewCircuitBreaker[T](st)
}
