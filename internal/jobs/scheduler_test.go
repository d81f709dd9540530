package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingExpirer struct {
	mu       sync.Mutex
	runs     int
	failures int
	timeout  time.Duration
}

func (c *countingExpirer) ExpirePending(_ context.Context, timeout time.Duration) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs++
	c.timeout = timeout
	if c.failures > 0 {
		c.failures--
		return 0, errors.New("store down")
	}
	return 1, nil
}

func (c *countingExpirer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runs
}

func TestPendingCallExpirer_Schedule(t *testing.T) {
	j := NewPendingCallExpirer(&countingExpirer{}, 2*time.Minute, 30*time.Second, nil)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, now.Add(30*time.Second), j.NextRun(now))
	assert.Equal(t, "pending-call-expirer", j.Name())
}

func TestPendingCallExpirer_PassesTimeout(t *testing.T) {
	exp := &countingExpirer{}
	j := NewPendingCallExpirer(exp, 2*time.Minute, time.Second, nil)
	require.NoError(t, j.Run(context.Background()))
	assert.Equal(t, 2*time.Minute, exp.timeout)
}

func TestScheduler_RunsUntilCancelled(t *testing.T) {
	exp := &countingExpirer{}
	s := NewScheduler(nil)
	s.Register(NewPendingCallExpirer(exp, time.Minute, 10*time.Millisecond, nil))
	require.Equal(t, 1, s.Len())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return exp.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestScheduler_RetriesFailedRun(t *testing.T) {
	exp := &countingExpirer{failures: 1}
	s := NewScheduler(nil)
	s.retries = []time.Duration{time.Millisecond}

	err := s.runWithRetry(context.Background(), NewPendingCallExpirer(exp, time.Minute, time.Hour, nil))
	require.NoError(t, err)
	assert.Equal(t, 2, exp.count())

	exp.failures = 5
	err = s.runWithRetry(context.Background(), NewPendingCallExpirer(exp, time.Minute, time.Hour, nil))
	assert.Error(t, err)
}

func TestScheduler_NoJobsBlocksUntilCancel(t *testing.T) {
	s := NewScheduler(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.NoError(t, s.Run(ctx))
}
