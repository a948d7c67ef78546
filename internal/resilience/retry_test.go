// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Stellven/KBSkills/pkg/types"
)

var slept []time.Duration

func TestMain(m *testing.M) {
	// Record waits instead of sleeping.
	sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	os.Exit(m.Run())
}

type transientError struct{ n int }

func (e *transientError) Error() string { return fmt.Sprintf("transient error (call %d)", e.n) }

func testPolicy(events *[]RetryEvent) Policy {
	p := NewPolicy(OpLLM, types.RetryConfig{})
	p.Notify = func(ev RetryEvent) { *events = append(*events, ev) }
	return p
}

func TestDo_FailTwiceThenSucceed(t *testing.T) {
	var events []RetryEvent
	calls := 0

	got, err := Do(context.Background(), testPolicy(&events), func(context.Context) (string, error) {
		calls++
		if calls <= 2 {
			return "", &transientError{n: calls}
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
	require.Len(t, events, 2)

	assert.Equal(t, OpLLM, events[0].Operation)
	assert.Equal(t, 1, events[0].Attempt)
	assert.Equal(t, "*resilience.transientError", events[0].ErrType)
	assert.Equal(t, "transient error (call 1)", events[0].Message)
	assert.Equal(t, 2*time.Second, events[0].Wait)
	assert.Equal(t, 2, events[1].Attempt)
	assert.Equal(t, 4*time.Second, events[1].Wait)
}

func TestDo_ExhaustionReturnsOriginalError(t *testing.T) {
	var events []RetryEvent
	sentinel := errors.New("boom")
	calls := 0

	_, err := Do(context.Background(), testPolicy(&events), func(context.Context) (int, error) {
		calls++
		return 0, sentinel
	})

	assert.Same(t, sentinel, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, events, 2)
}

func TestDo_PreservesErrorKind(t *testing.T) {
	var events []RetryEvent
	_, err := Do(context.Background(), testPolicy(&events), func(context.Context) (int, error) {
		return 0, EmbeddingError(errors.New("quota"))
	})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindEmbedding))
	assert.ErrorIs(t, err, ErrKBSkills)
}

func TestDo_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var events []RetryEvent
	calls := 0
	_, err := Do(ctx, testPolicy(&events), func(context.Context) (int, error) {
		calls++
		return 0, errors.New("fail")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDo_SingleAttempt(t *testing.T) {
	p := Policy{Operation: "x", MaxAttempts: 0}
	calls := 0
	_, err := Do(context.Background(), p, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("fail")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRun(t *testing.T) {
	var events []RetryEvent
	calls := 0
	err := Run(context.Background(), testPolicy(&events), func(context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("once")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestBackoff(t *testing.T) {
	p := Policy{Multiplier: 2 * time.Second, MinWait: 2 * time.Second, MaxWait: 30 * time.Second}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{40, 30 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Backoff(tt.attempt), "attempt %d", tt.attempt)
	}

	low := Policy{Multiplier: 100 * time.Millisecond, MinWait: time.Second, MaxWait: 15 * time.Second}
	assert.Equal(t, time.Second, low.Backoff(1))
	assert.Equal(t, time.Second, low.Backoff(2))
	assert.Equal(t, 1600*time.Millisecond, low.Backoff(5))
}

func TestBackoff_Uncapped(t *testing.T) {
	p := Policy{Multiplier: time.Second}
	assert.Equal(t, time.Second, p.Backoff(1))
	assert.Equal(t, 2*time.Second, p.Backoff(2))
	assert.Equal(t, 8*time.Second, p.Backoff(4))
	assert.Equal(t, time.Duration(math.MaxInt64), p.Backoff(200))
}

func TestDo_TruncatesMessage(t *testing.T) {
	var events []RetryEvent
	long := strings.Repeat("x", 500)
	calls := 0
	_, _ = Do(context.Background(), testPolicy(&events), func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New(long)
		}
		return 1, nil
	})
	require.Len(t, events, 1)
	assert.Len(t, events[0].Message, 200)
}

func TestErrorKinds(t *testing.T) {
	base := errors.New("underlying")
	tests := []struct {
		name string
		err  error
		kind Kind
		msg  string
	}{
		{"llm", LLMError(base), KindLLM, "llm error: underlying"},
		{"embedding", EmbeddingError(base), KindEmbedding, "embedding error: underlying"},
		{"knowledge base", KnowledgeBaseError(base), KindKnowledgeBase, "knowledge base error: underlying"},
		{"ingestion", IngestionError(base), KindIngestion, "ingestion error: underlying"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, IsKind(tt.err, tt.kind))
			assert.ErrorIs(t, tt.err, ErrKBSkills)
			assert.ErrorIs(t, tt.err, base)
			assert.Equal(t, tt.msg, tt.err.Error())

			wrapped := fmt.Errorf("stage: %w", tt.err)
			assert.True(t, IsKind(wrapped, tt.kind))
		})
	}
	assert.False(t, IsKind(base, KindLLM))
	assert.False(t, IsKind(LLMError(base), KindEmbedding))
}
