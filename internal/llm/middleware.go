package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"

	"golang.org/x/time/rate"

	"synthmigrate/internal/retry"
)

// Middleware decorates an LLMClient to inject cross-cutting concerns
// (rate limiting, retries, logging).
type Middleware func(LLMClient) LLMClient

// Wrap applies middlewares in left-to-right order.
// Example: Wrap(inner, A, B) => A(B(inner))
func Wrap(inner LLMClient, mws ...Middleware) LLMClient {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// -------- Rate Limiting --------

// RateLimit limits request rate with a token bucket.
// If rps <= 0, the limiter is effectively disabled.
func RateLimit(rps float64, burst int) Middleware {
	return func(next LLMClient) LLMClient {
		if rps <= 0 {
			return &rateLimited{next: next}
		}
		if burst < 1 {
			burst = 1
		}
		return &rateLimited{next: next, rl: rate.NewLimiter(rate.Limit(rps), burst)}
	}
}

type rateLimited struct {
	next LLMClient
	rl   *rate.Limiter // nil when disabled
}

func (c *rateLimited) Name() string { return c.next.Name() }
func (c *rateLimited) Close() error { return c.next.Close() }
func (c *rateLimited) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	if c.rl != nil {
		if err := c.rl.Wait(ctx); err != nil {
			return nil, fmt.Errorf("llm rate limit: %w", err)
		}
	}
	return c.next.GenerateJSON(ctx, prompt, input)
}

// -------- Retry with exponential backoff --------

// Retry retries GenerateJSON following policy. Errors wrapped with
// retry.Permanent (malformed responses, client errors) are returned at once.
func Retry(policy retry.Policy) Middleware {
	return func(next LLMClient) LLMClient {
		return &retrying{next: next, policy: policy}
	}
}

type retrying struct {
	next   LLMClient
	policy retry.Policy
}

func (r *retrying) Name() string { return r.next.Name() }
func (r *retrying) Close() error { return r.next.Close() }
func (r *retrying) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	var out json.RawMessage
	err := r.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		raw, err := r.next.GenerateJSON(ctx, prompt, input)
		if err != nil {
			return err
		}
		out = raw
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// -------- Logging --------

type ctxKeyPhase struct{}

// WithPhase tags ctx with the step issuing the model call; it only shows up
// in logs.
func WithPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, ctxKeyPhase{}, phase)
}

func phaseFrom(ctx context.Context) string {
	if s, ok := ctx.Value(ctxKeyPhase{}).(string); ok {
		return s
	}
	return "unknown"
}

// WithLogging logs request size and errors. Provide a custom logger or nil
// to use log.Default().
func WithLogging(logger *log.Logger) Middleware {
	if logger == nil {
		logger = log.Default()
	}
	return func(next LLMClient) LLMClient {
		return &logging{next: next, log: logger}
	}
}

type logging struct {
	next LLMClient
	log  *log.Logger
}

func (l *logging) Name() string { return l.next.Name() }
func (l *logging) Close() error { return l.next.Close() }
func (l *logging) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	in, _ := json.Marshal(input)
	l.log.Printf("LLM request (%s, %s): %d bytes", phaseFrom(ctx), l.next.Name(), len(prompt)+len(in))
	raw, err := l.next.GenerateJSON(ctx, prompt, input)
	if err != nil {
		l.log.Printf("LLM error (%s): %v", phaseFrom(ctx), err)
	}
	return raw, err
}

// -------- Call counting --------

// Counter records how many calls reached the wrapped client.
type Counter struct{ n atomic.Int64 }

func (c *Counter) Calls() int64 { return c.n.Load() }

// Count returns a middleware that increments c on every call.
func Count(c *Counter) Middleware {
	return func(next LLMClient) LLMClient {
		return &counting{next: next, c: c}
	}
}

type counting struct {
	next LLMClient
	c    *Counter
}

func (c *counting) Name() string { return c.next.Name() }
func (c *counting) Close() error { return c.next.Close() }
func (c *counting) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	c.c.n.Add(1)
	return c.next.GenerateJSON(ctx, prompt, input)
}
