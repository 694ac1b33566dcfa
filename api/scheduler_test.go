package api

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingReloader struct {
	calls atomic.Int32
	err   error
}

func (r *countingReloader) Reload(context.Context) error {
	r.calls.Add(1)
	return r.err
}

func TestReloadScheduler_RunsImmediatelyAndOnTick(t *testing.T) {
	// GIVEN: A scheduler with a short interval
	r := &countingReloader{}
	s := NewReloadScheduler(r, 10*time.Millisecond, zerolog.Nop())

	// WHEN: It runs for a while
	s.Start()
	require.Eventually(t, func() bool { return r.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	s.Stop()

	// THEN: No reload happens after Stop
	after := r.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, r.calls.Load())
}

func TestReloadScheduler_Disabled(t *testing.T) {
	r := &countingReloader{}
	s := NewReloadScheduler(r, time.Millisecond, zerolog.Nop())
	s.Enabled = false

	s.Start()
	time.Sleep(10 * time.Millisecond)
	s.Stop()

	assert.Zero(t, r.calls.Load())
}

func TestReloadScheduler_StartStopAreIdempotent(t *testing.T) {
	r := &countingReloader{}
	s := NewReloadScheduler(r, time.Hour, zerolog.Nop())

	s.Start()
	s.Start()
	require.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, time.Millisecond)
	s.Stop()
	s.Stop()

	// Restart after a stop.
	s.Start()
	require.Eventually(t, func() bool { return r.calls.Load() == 2 }, time.Second, time.Millisecond)
	s.Stop()
}

func TestReloadScheduler_RunNowReturnsError(t *testing.T) {
	boom := errors.New("backend down")
	s := NewReloadScheduler(&countingReloader{err: boom}, time.Hour, zerolog.Nop())

	assert.ErrorIs(t, s.RunNow(), boom)
}
