// Package schedule implements the delayed-task queue driving per-alert check
// cycles. Each armed check is an independent unit of work executed by any
// available worker; re-arming goes through Schedule rather than a task
// re-enqueueing itself.
package schedule

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CheckFunc runs one check cycle for an alert.
type CheckFunc func(ctx context.Context, alertID uuid.UUID)

type task struct {
	alertID uuid.UUID
	fireAt  time.Time
	seq     uint64
}

type taskHeap []*task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].fireAt.Equal(h[j].fireAt) {
		return h[i].seq < h[j].seq
	}
	return h[i].fireAt.Before(h[j].fireAt)
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(*task)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Queue is a fire-time ordered delayed-task queue.
type Queue struct {
	logger zerolog.Logger

	mu      sync.Mutex
	tasks   taskHeap
	pending map[uuid.UUID]int
	seq     uint64

	wake chan struct{}
}

// NewQueue constructs an empty queue.
func NewQueue(logger zerolog.Logger) *Queue {
	return &Queue{
		logger:  logger.With().Str("component", "schedule").Logger(),
		pending: make(map[uuid.UUID]int),
		wake:    make(chan struct{}, 1),
	}
}

// Schedule arms a check for the alert after the given delay. Negative delays
// fire immediately.
func (q *Queue) Schedule(alertID uuid.UUID, delay time.Duration) {
	if delay < 0 {
		delay = 0
	}

	q.mu.Lock()
	q.seq++
	heap.Push(&q.tasks, &task{alertID: alertID, fireAt: time.Now().Add(delay), seq: q.seq})
	q.pending[alertID]++
	q.mu.Unlock()

	q.logger.Debug().Stringer("alert_id", alertID).Dur("delay", delay).Msg("check armed")

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Pending reports whether the alert has at least one armed check that has not
// fired yet.
func (q *Queue) Pending(alertID uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending[alertID] > 0
}

// Len returns the number of armed checks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Run blocks, dispatching due checks to a pool of workers until ctx is
// cancelled.
func (q *Queue) Run(ctx context.Context, workers int, check CheckFunc) error {
	if check == nil {
		return errors.New("schedule: check func is required")
	}
	if workers <= 0 {
		workers = 1
	}

	work := make(chan uuid.UUID)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case alertID, ok := <-work:
					if !ok {
						return
					}
					check(ctx, alertID)
				}
			}
		}()
	}

	err := q.dispatch(ctx, work)
	close(work)
	wg.Wait()
	return err
}

func (q *Queue) dispatch(ctx context.Context, work chan<- uuid.UUID) error {
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		q.mu.Lock()
		var delay time.Duration
		hasNext := len(q.tasks) > 0
		if hasNext {
			delay = time.Until(q.tasks[0].fireAt)
		}
		q.mu.Unlock()

		if hasNext && delay <= 0 {
			alertID, ok := q.popDue()
			if !ok {
				continue
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case work <- alertID:
			}
			continue
		}

		if hasNext {
			timer.Reset(delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-q.wake:
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
			case <-timer.C:
			}
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.wake:
		}
	}
}

func (q *Queue) popDue() (uuid.UUID, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 || q.tasks[0].fireAt.After(time.Now()) {
		return uuid.UUID{}, false
	}

	item := heap.Pop(&q.tasks).(*task)
	if q.pending[item.alertID] <= 1 {
		delete(q.pending, item.alertID)
	} else {
		q.pending[item.alertID]--
	}
	return item.alertID, true
}
