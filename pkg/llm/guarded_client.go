package llm

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// GuardedClient wraps a ChatClient with a circuit breaker. Calls made while
// the circuit is open fail fast with ErrorTypeCircuitOpen.
type GuardedClient struct {
	inner   ChatClient
	breaker *CircuitBreaker
	logger  *zap.Logger
}

// NewGuardedClient wraps inner with a breaker built from cfg.
func NewGuardedClient(inner ChatClient, cfg CircuitBreakerConfig, logger *zap.Logger) *GuardedClient {
	return &GuardedClient{
		inner:   inner,
		breaker: NewCircuitBreaker(cfg),
		logger:  logger.Named("llm-breaker"),
	}
}

// Chat implements ChatClient.
func (g *GuardedClient) Chat(ctx context.Context, messages []Message, opts ChatOptions) (*ChatResult, error) {
	if err := g.breaker.Allow(); err != nil {
		g.logger.Warn("LLM call rejected by circuit breaker", zap.Error(err))
		return nil, err
	}

	result, err := g.inner.Chat(ctx, messages, opts)
	if err != nil {
		// Cancellation says nothing about provider health, except that a
		// cancelled probe must not leave the circuit half-open. A deadline
		// counts: the provider did not answer in time.
		if !errors.Is(ctx.Err(), context.Canceled) || g.breaker.State() == CircuitHalfOpen {
			if g.breaker.RecordFailure() {
				g.logger.Error("LLM circuit breaker tripped",
					zap.Int("consecutive_failures", g.breaker.ConsecutiveFailures()),
					zap.Error(err))
			}
		}
		return nil, err
	}

	g.breaker.RecordSuccess()
	return result, nil
}

// GetModel implements ChatClient.
func (g *GuardedClient) GetModel() string {
	return g.inner.GetModel()
}

// Breaker exposes the underlying breaker for health reporting.
func (g *GuardedClient) Breaker() *CircuitBreaker {
	return g.breaker
}
