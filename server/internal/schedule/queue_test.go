package schedule

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestInterval_Empty(t *testing.T) {
	q := New(time.Second)
	_, ok := q.Interval()
	assert.False(t, ok, "empty queue should not schedule")
}

func TestInterval_ScalesWithJobs(t *testing.T) {
	q := New(time.Second)
	q.Enqueue("a", 0, func(context.Context) {})
	q.Enqueue("b", 0, func(context.Context) {})

	d, ok := q.Interval()
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, d)
}

func TestInterval_StretchedToCost(t *testing.T) {
	q := New(time.Second)
	q.Enqueue("slow", 5*time.Second, func(context.Context) {})

	d, ok := q.Interval()
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, d)
}

func TestEnqueue_ReplacesSameID(t *testing.T) {
	q := New(time.Second)
	var hits []string
	q.Enqueue("a", 0, func(context.Context) { hits = append(hits, "old") })
	q.Enqueue("a", 0, func(context.Context) { hits = append(hits, "new") })

	assert.Equal(t, 1, q.Len())
	q.Tick(context.Background())
	assert.Equal(t, []string{"new"}, hits)
}

func TestTick_RunsInOrder(t *testing.T) {
	q := New(time.Second)
	var hits []string
	for _, id := range []string{"a", "b", "c"} {
		id := id
		q.Enqueue(id, 0, func(context.Context) { hits = append(hits, id) })
	}
	q.Tick(context.Background())
	assert.Equal(t, []string{"a", "b", "c"}, hits)
}

func TestDequeue(t *testing.T) {
	q := New(time.Second)
	q.Enqueue("a", 0, func(context.Context) {})
	assert.True(t, q.Dequeue("a"))
	assert.False(t, q.Dequeue("a"))
	assert.Equal(t, 0, q.Len())
}

func TestPause_HoldsJobs(t *testing.T) {
	q := New(time.Second)
	ran := false
	q.Enqueue("a", 0, func(context.Context) { ran = true })

	q.Pause()
	q.Pause()
	q.Tick(context.Background())
	assert.False(t, ran, "job ran while paused")
	_, ok := q.Interval()
	assert.False(t, ok)

	q.Resume()
	assert.True(t, q.Paused(), "pauses should nest")
	q.Resume()
	q.Resume() // extra resume is harmless
	q.Tick(context.Background())
	assert.True(t, ran)
}

func TestRun_FiresAndStops(t *testing.T) {
	q := New(5 * time.Millisecond)
	var n atomic.Int32
	q.Enqueue("a", 0, func(context.Context) { n.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		q.Run(ctx)
	}()

	require.Eventually(t, func() bool { return n.Load() >= 3 }, 2*time.Second, time.Millisecond)
	cancel()
	wg.Wait()
}

func TestRun_IdleUntilEnqueued(t *testing.T) {
	q := New(5 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		q.Run(ctx)
		close(done)
	}()

	var n atomic.Int32
	time.Sleep(10 * time.Millisecond)
	q.Enqueue("late", 0, func(context.Context) { n.Add(1) })
	require.Eventually(t, func() bool { return n.Load() >= 1 }, 2*time.Second, time.Millisecond)

	cancel()
	<-done
}
