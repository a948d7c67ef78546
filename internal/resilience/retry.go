// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package resilience wraps fallible external calls (generation, embedding,
// knowledge store query and insert) with bounded exponential backoff, and
// defines the error kinds those calls fail with.
package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/Stellven/KBSkills/pkg/types"
)

// Operation names used in retry events and metrics.
const (
	OpLLM           = "LLM"
	OpEmbedding     = "Embedding"
	OpKnowledgeBase = "KnowledgeBase"
	OpGraphInsert   = "GraphInsert"
)

const maxMessageLen = 200

// RetryEvent describes one retry: the attempt that failed and how long the
// wrapper waits before the next one.
type RetryEvent struct {
	Operation string
	Attempt   int
	ErrType   string
	Message   string
	Wait      time.Duration
}

// Policy is a retry policy for one named operation.
type Policy struct {
	Operation   string
	MaxAttempts int
	Multiplier  time.Duration
	MinWait     time.Duration
	MaxWait     time.Duration

	// Notify, when set, receives every retry event. Do calls it from the
	// caller's goroutine; callers sharing a policy across goroutines must
	// serialize it themselves.
	Notify func(RetryEvent)

	// Logger receives a warning per retry. Nil means slog.Default().
	Logger *slog.Logger
}

// NewPolicy builds a policy for operation from cfg, filling zero fields
// with the defaults.
func NewPolicy(operation string, cfg types.RetryConfig) Policy {
	def := types.DefaultRetryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = def.Multiplier
	}
	if cfg.MinWait <= 0 {
		cfg.MinWait = def.MinWait
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = def.MaxWait
	}
	return Policy{
		Operation:   operation,
		MaxAttempts: cfg.MaxAttempts,
		Multiplier:  cfg.Multiplier,
		MinWait:     cfg.MinWait,
		MaxWait:     cfg.MaxWait,
	}
}

// WithOperation returns a copy of p renamed to operation.
func (p Policy) WithOperation(operation string) Policy {
	p.Operation = operation
	return p
}

// Backoff returns the wait after the given failed attempt (1-based).
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	wait := p.Multiplier
	for i := 1; i < attempt && (p.MaxWait <= 0 || wait < p.MaxWait); i++ {
		if wait > math.MaxInt64/2 {
			wait = math.MaxInt64
			break
		}
		wait *= 2
	}
	if wait < p.MinWait {
		wait = p.MinWait
	}
	if p.MaxWait > 0 && wait > p.MaxWait {
		wait = p.MaxWait
	}
	return wait
}

// sleep waits for d or until ctx is done. Tests override it to avoid real sleeps.
var sleep = func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do calls op until it succeeds or p.MaxAttempts is reached. Every error is
// retried. After the last attempt the error from op is returned as is.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		zero T
		err  error
	)
	for attempt := 1; ; attempt++ {
		var v T
		v, err = op(ctx)
		if err == nil {
			return v, nil
		}
		if attempt >= attempts {
			return zero, err
		}

		ev := RetryEvent{
			Operation: p.Operation,
			Attempt:   attempt,
			ErrType:   fmt.Sprintf("%T", err),
			Message:   truncate(err.Error(), maxMessageLen),
			Wait:      p.Backoff(attempt),
		}
		logger.Warn("retrying call",
			"operation", ev.Operation,
			"attempt", ev.Attempt,
			"max_attempts", attempts,
			"error_type", ev.ErrType,
			"error", ev.Message,
			"wait", ev.Wait)
		if p.Notify != nil {
			p.Notify(ev)
		}

		if serr := sleep(ctx, ev.Wait); serr != nil {
			return zero, serr
		}
	}
}

// Run is Do for operations without a result.
func Run(ctx context.Context, p Policy, op func(context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
