package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paycore/internal/config"
)

func TestScheduler_ExecutesDueSchedules(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	var ids []string
	for _, customer := range []string{"C1", "C2", "C3"} {
		rp, err := h.engine.Recurring.Setup(ctx, monthly(customer, h.clock.Now().Add(-31*day)))
		require.NoError(t, err)
		ids = append(ids, rp.ID)
	}
	notDue, err := h.engine.Recurring.Setup(ctx, monthly("C4", h.clock.Now()))
	require.NoError(t, err)

	scheduler := NewScheduler(h.engine.Recurring, config.SchedulerConfig{
		PollInterval: 10 * time.Millisecond,
		Workers:      2,
	}, nil)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	assert.Eventually(t, func() bool {
		for _, id := range ids {
			rp, err := h.engine.Recurring.Get(ctx, id)
			if err != nil || rp.ExecutionCount != 1 {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)

	scheduler.Stop()
	assert.Zero(t, scheduler.InFlight())

	rp, err := h.engine.Recurring.Get(ctx, notDue.ID)
	require.NoError(t, err)
	assert.Zero(t, rp.ExecutionCount)
	assert.Empty(t, rp.Executions)
}

func TestScheduler_SweepDoesNotQueueTwice(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.Recurring.Setup(ctx, monthly("C1", h.clock.Now().Add(-31*day)))
	require.NoError(t, err)

	// Workers are not started, so the first job stays in flight.
	scheduler := NewScheduler(h.engine.Recurring, config.SchedulerConfig{Workers: 1}, nil)

	queued, err := scheduler.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, queued)

	queued, err = scheduler.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, queued)
	assert.Equal(t, 1, scheduler.InFlight())
}

func TestScheduler_SweepSkipsWhenQueueFull(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := h.engine.Recurring.Setup(ctx, monthly("C1", h.clock.Now().Add(-31*day)))
		require.NoError(t, err)
	}

	// One worker gives a queue of four.
	scheduler := NewScheduler(h.engine.Recurring, config.SchedulerConfig{Workers: 1}, nil)
	queued, err := scheduler.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, queued)
	assert.Equal(t, 4, scheduler.InFlight())
}

func TestScheduler_StopIsIdempotent(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	scheduler := NewScheduler(h.engine.Recurring, config.SchedulerConfig{PollInterval: time.Hour}, nil)
	scheduler.Stop()
	scheduler.Start(context.Background())
	scheduler.Start(context.Background())
	scheduler.Stop()
	scheduler.Stop()

	rps, err := h.engine.Recurring.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rps)
}
