package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// RetryConfig configures exponential backoff between retry attempts.
type RetryConfig struct {
	InitialInterval     time.Duration // First retry delay (default 100ms)
	MaxInterval         time.Duration // Delay ceiling (default 10s)
	Multiplier          float64       // Backoff multiplier (default 2.0)
	RandomizationFactor float64       // Jitter factor (default 0.5)
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// newBackOff builds the backoff policy for one task's retry sequence.
func newBackOff(cfg RetryConfig) *backoff.ExponentialBackOff {
	p := backoff.NewExponentialBackOff()
	p.InitialInterval = cfg.InitialInterval
	p.MaxInterval = cfg.MaxInterval
	p.Multiplier = cfg.Multiplier
	p.RandomizationFactor = cfg.RandomizationFactor
	p.MaxElapsedTime = 0 // attempt count is bounded by the task's MaxRetries
	return p
}

// retryDelay returns the backoff delay before the given 1-based attempt.
func retryDelay(cfg RetryConfig, attempt int) time.Duration {
	p := newBackOff(cfg)
	d := p.NextBackOff()
	for i := 1; i < attempt; i++ {
		next := p.NextBackOff()
		if next == backoff.Stop {
			break
		}
		d = next
	}
	return d
}

// BreakerRegistry manages one circuit breaker per agent type, so a
// misbehaving worker pool fails fast instead of burning every task's retry
// budget against it.
type BreakerRegistry struct {
	mu       sync.Mutex
	log      zerolog.Logger
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakerRegistry creates an empty registry.
func NewBreakerRegistry(log zerolog.Logger) *BreakerRegistry {
	return &BreakerRegistry{
		log:      log,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Get returns the breaker for the agent type, creating it on first use.
func (r *BreakerRegistry) Get(agentType string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[agentType]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        agentType,
		MaxRequests: 3, // test requests allowed while half-open
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.log.Warn().
				Str("agent_type", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
		IsSuccessful: func(err error) bool {
			// User cancellation is not an agent failure.
			if err == nil {
				return true
			}
			return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})
	r.breakers[agentType] = cb
	return cb
}
