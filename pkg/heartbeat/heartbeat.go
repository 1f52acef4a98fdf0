package heartbeat

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/cuemby/ghmirror/pkg/log"
)

const (
	// checkInterval is how often the runner looks for completion or a
	// stall while the task is in flight.
	checkInterval = time.Second

	// stallAfter is how long the task may go without reporting
	// progress before it is cancelled.
	stallAfter = 5 * time.Minute
)

// Runner executes one task at a time on a helper goroutine and cancels
// it when it stops reporting progress. It exists for the rare upstream
// request that is accepted but never answered and never times out in
// the HTTP layer underneath.
type Runner[T any] struct {
	checkInterval time.Duration
	stallAfter    time.Duration
	clock         clockwork.Clock

	mu       sync.Mutex
	lastBeat time.Time
}

// NewRunner creates a runner with the default progress bound
func NewRunner[T any]() *Runner[T] {
	return &Runner[T]{
		checkInterval: checkInterval,
		stallAfter:    stallAfter,
		clock:         clockwork.NewRealClock(),
	}
}

// Run executes task on a helper goroutine. The task receives a ping
// callback and must call it whenever it completes a unit of its work.
//
// Run returns the task's value with ok true on completion, and the
// task's error unchanged when it fails. When the task goes longer than
// the progress bound without pinging, its context is cancelled and Run
// returns ok false with no error: a stall is a fact about the upstream,
// not a fault in the task.
func (r *Runner[T]) Run(ctx context.Context, task func(ctx context.Context, ping func()) (T, error)) (T, bool, error) {
	var zero T

	r.mu.Lock()
	r.lastBeat = r.clock.Now()
	r.mu.Unlock()

	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		value, err := task(taskCtx, r.ping)
		done <- outcome{value: value, err: err}
	}()

	for {
		select {
		case result := <-done:
			if result.err != nil {
				return zero, false, result.err
			}
			return result.value, true, nil
		case <-ctx.Done():
			return zero, false, ctx.Err()
		case <-r.clock.After(r.checkInterval):
		}

		r.mu.Lock()
		stalled := r.clock.Since(r.lastBeat) > r.stallAfter
		r.mu.Unlock()
		if !stalled {
			continue
		}

		// Completion beats a stall observed on the same check.
		select {
		case result := <-done:
			if result.err != nil {
				return zero, false, result.err
			}
			return result.value, true, nil
		default:
		}

		log.WithComponent("heartbeat").Warn().
			Dur("stallAfter", r.stallAfter).
			Msg("Task reported no progress, cancelling it")
		cancel()
		return zero, false, nil
	}
}

// ping records that the task just completed a unit of work
func (r *Runner[T]) ping() {
	r.mu.Lock()
	r.lastBeat = r.clock.Now()
	r.mu.Unlock()
}
