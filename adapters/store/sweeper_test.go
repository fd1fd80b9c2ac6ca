package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleSweep(t *testing.T) {
	var mu sync.Mutex
	now := time.Now()
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	s := NewMemoryStore().WithClock(clock)
	require.NoError(t, s.Put(context.Background(), newChallenge("1", now), time.Minute))
	require.NoError(t, s.InvalidateToken(context.Background(), "rid-1", time.Minute))

	scheduler, err := gocron.NewScheduler()
	require.NoError(t, err)
	t.Cleanup(func() { _ = scheduler.Shutdown() })

	job, err := ScheduleSweep(scheduler, s, 10*time.Millisecond, nil)
	require.NoError(t, err)
	assert.Equal(t, SweepJobName, job.Name())

	scheduler.Start()

	// nothing is past retention yet
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, s.Len())

	mu.Lock()
	now = now.Add(10 * time.Minute)
	mu.Unlock()

	assert.Eventually(t, func() bool { return s.Len() == 0 }, 2*time.Second, 10*time.Millisecond)

	invalidated, err := s.IsTokenInvalidated(context.Background(), "rid-1")
	require.NoError(t, err)
	assert.False(t, invalidated)
}
