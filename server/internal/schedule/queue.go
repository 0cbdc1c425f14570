package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultActionPeriod is the per-job share of the queue period.
const DefaultActionPeriod = 2 * time.Second

type job struct {
	id   string
	cost time.Duration
	fn   func(context.Context)
}

// Queue is a periodic job queue. It is safe for concurrent use.
type Queue struct {
	actionPeriod time.Duration

	mu     sync.Mutex
	jobs   []*job
	paused int
	wake   chan struct{}
}

// New creates a Queue. A non-positive actionPeriod selects DefaultActionPeriod.
func New(actionPeriod time.Duration) *Queue {
	if actionPeriod <= 0 {
		actionPeriod = DefaultActionPeriod
	}
	return &Queue{
		actionPeriod: actionPeriod,
		wake:         make(chan struct{}, 1),
	}
}

// Enqueue adds fn under id, replacing an existing job with the same id.
// cost is how long one run of fn takes.
func (q *Queue) Enqueue(id string, cost time.Duration, fn func(context.Context)) {
	q.mu.Lock()
	replaced := false
	for i, j := range q.jobs {
		if j.id == id {
			q.jobs[i] = &job{id: id, cost: cost, fn: fn}
			replaced = true
			break
		}
	}
	if !replaced {
		q.jobs = append(q.jobs, &job{id: id, cost: cost, fn: fn})
	}
	n := len(q.jobs)
	q.mu.Unlock()

	slog.Debug("schedule: job enqueued", "id", id, "jobs", n)
	q.kick()
}

// Dequeue removes the job with id and reports whether it existed.
func (q *Queue) Dequeue(id string) bool {
	q.mu.Lock()
	found := false
	for i, j := range q.jobs {
		if j.id == id {
			q.jobs = append(q.jobs[:i], q.jobs[i+1:]...)
			found = true
			break
		}
	}
	q.mu.Unlock()

	if found {
		slog.Debug("schedule: job dequeued", "id", id)
		q.kick()
	}
	return found
}

// Pause holds all jobs until a matching Resume. Pauses nest.
func (q *Queue) Pause() {
	q.mu.Lock()
	q.paused++
	q.mu.Unlock()
	q.kick()
}

// Resume releases one Pause. Extra calls are ignored.
func (q *Queue) Resume() {
	q.mu.Lock()
	if q.paused > 0 {
		q.paused--
	}
	q.mu.Unlock()
	q.kick()
}

// Paused reports whether jobs are currently held.
func (q *Queue) Paused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused > 0
}

// Len returns the number of queued jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Interval returns the current period and false when nothing should run.
func (q *Queue) Interval() (time.Duration, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 || q.paused > 0 {
		return 0, false
	}
	period := q.actionPeriod * time.Duration(len(q.jobs))
	var total time.Duration
	for _, j := range q.jobs {
		total += j.cost
	}
	if total > period {
		period = total
	}
	return period, true
}

// Tick runs every queued job once, in order, unless the queue is paused.
func (q *Queue) Tick(ctx context.Context) {
	q.mu.Lock()
	if q.paused > 0 {
		q.mu.Unlock()
		return
	}
	jobs := make([]*job, len(q.jobs))
	copy(jobs, q.jobs)
	q.mu.Unlock()

	for _, j := range jobs {
		if ctx.Err() != nil || q.Paused() {
			return
		}
		j.fn(ctx)
	}
}

// Run drives the queue until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) {
	for {
		var tick <-chan time.Time
		var t *time.Timer
		if d, ok := q.Interval(); ok {
			t = time.NewTimer(d)
			tick = t.C
		}

		select {
		case <-ctx.Done():
			if t != nil {
				t.Stop()
			}
			return
		case <-q.wake:
			if t != nil {
				t.Stop()
			}
		case <-tick:
			q.Tick(ctx)
		}
	}
}

func (q *Queue) kick() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
