// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Stellven/KBSkills/internal/resilience"
)

func TestObserveRetry(t *testing.T) {
	r := NewRecorder()
	r.ObserveRetry(resilience.RetryEvent{Operation: resilience.OpLLM, Attempt: 1})
	r.ObserveRetry(resilience.RetryEvent{Operation: resilience.OpLLM, Attempt: 2})
	r.ObserveRetry(resilience.RetryEvent{Operation: resilience.OpKnowledgeBase, Attempt: 1})

	assert.Equal(t, 2.0, testutil.ToFloat64(r.retries.WithLabelValues(resilience.OpLLM)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.retries.WithLabelValues(resilience.OpKnowledgeBase)))
}

func TestObserveStage(t *testing.T) {
	r := NewRecorder()
	r.ObserveStage("decompose", 1500*time.Millisecond, nil)
	r.ObserveStage("retrieve", 200*time.Millisecond, errors.New("one query failed"))

	assert.Equal(t, 0.0, testutil.ToFloat64(r.stageFailures.WithLabelValues("decompose")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stageFailures.WithLabelValues("retrieve")))
	assert.Equal(t, 2, testutil.CollectAndCount(r.stageDuration))
}

func TestSummary(t *testing.T) {
	r := NewRecorder()
	r.ObserveRetry(resilience.RetryEvent{Operation: resilience.OpLLM})
	r.ObserveStage("decompose", 1500*time.Millisecond, nil)

	lines, err := r.Summary()
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "retries")
	assert.Contains(t, lines[0], "LLM")
	assert.Contains(t, lines[1], "decompose")
	assert.Contains(t, lines[1], "1.5s")
}

func TestSummary_Empty(t *testing.T) {
	lines, err := NewRecorder().Summary()
	require.NoError(t, err)
	assert.Empty(t, lines)
}
