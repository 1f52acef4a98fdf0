package worker

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/cuemby/ghmirror/pkg/events"
	"github.com/cuemby/ghmirror/pkg/gh"
	"github.com/cuemby/ghmirror/pkg/log"
	"github.com/cuemby/ghmirror/pkg/queue"
	"github.com/cuemby/ghmirror/pkg/storage"
	"github.com/cuemby/ghmirror/pkg/types"
)

const defaultWorkers = 5

// Config holds worker pool configuration
type Config struct {
	Queue  *queue.WorkQueue
	Store  storage.Store
	Client gh.Client

	// Filter is the optional ingestion filter. Nil accepts everything.
	Filter types.Filter

	// Broker receives an issue.changed event for every detected issue
	// change. Optional.
	Broker *events.Broker

	// ChangeLog receives one line per detected issue change. Optional.
	ChangeLog io.Writer

	// Workers is the number of worker goroutines. Defaults to 5.
	Workers int
}

// Pool runs the workers that drain the work queue. Each worker polls
// owner, repository, issue and user units in that order, mirrors the
// unit into the store, and feeds discovered child work back into the
// queue. A watchdog per worker cancels units that run for too long.
type Pool struct {
	queue     *queue.WorkQueue
	store     storage.Store
	client    gh.Client
	filter    types.Filter
	broker    *events.Broker
	changeLog io.Writer
	workers   int
	clock     clockwork.Clock

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a worker pool
func NewPool(cfg Config) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Pool{
		queue:     cfg.Queue,
		store:     cfg.Store,
		client:    cfg.Client,
		filter:    cfg.Filter,
		broker:    cfg.Broker,
		changeLog: cfg.ChangeLog,
		workers:   workers,
		clock:     clockwork.NewRealClock(),
	}
}

// Start launches the worker goroutines
func (p *Pool) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.runWorker(ctx, i)
	}

	logger := log.WithComponent("worker")
	logger.Info().Int("workers", p.workers).Msg("Started worker pool")
}

// Stop cancels all workers and waits for them to finish their current
// unit
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// runWorker drains the queue until the pool stops or the queue stops
// accepting work
func (p *Pool) runWorker(ctx context.Context, id int) {
	defer p.wg.Done()

	logger := log.WithWorker(id)
	dog := newWatchdog(p.clock, logger, func() { p.publishStall(id) })
	go dog.run(ctx)

	for p.queue.WaitForAvailableWork(ctx) {
		if err := p.dispatch(ctx, dog, logger); err != nil {
			logger.Error().Err(err).Msg("Worker stopping after queue accounting mismatch")
			return
		}
	}
}

// dispatch polls one unit of work, preferring owners over repositories
// over issues over users, and processes it. The returned error is only
// non-nil when releasing the unit back to the queue fails, which means
// queue accounting is broken and the worker must stop.
func (p *Pool) dispatch(ctx context.Context, dog *watchdog, logger zerolog.Logger) error {
	if w, ok := p.queue.PollOwner(); ok {
		ul := logger.With().Str("owner", w.Owner.String()).Logger()
		return p.runUnit(ctx, dog, ul, w,
			func(ctx context.Context) error { return p.processOwner(ctx, w) },
			func() { p.queue.AddOwner(w) })
	}

	if w, ok := p.queue.PollRepository(); ok {
		ul := logger.With().Str("owner", w.Owner.String()).Str("repo", w.Name).Logger()
		return p.runUnit(ctx, dog, ul, w,
			func(ctx context.Context) error { return p.processRepo(ctx, w) },
			func() { p.queue.AddRepository(w) })
	}

	if w, ok := p.queue.PollIssue(); ok {
		ul := logger.With().Str("owner", w.Owner.String()).Str("repo", w.RepoName).Int("issue", w.Number).Logger()
		return p.runUnit(ctx, dog, ul, w,
			func(ctx context.Context) error { return p.processIssue(ctx, w) },
			func() { p.queue.AddIssue(w) })
	}

	if w, ok := p.queue.PollUser(); ok {
		ul := logger.With().Str("user", w.Login).Logger()
		return p.runUnit(ctx, dog, ul, w,
			func(ctx context.Context) error { return p.processUser(ctx, w) },
			func() { p.queue.AddUserRetry(w.Login) })
	}

	return nil
}

// runUnit processes a single unit under the watchdog. A failed unit is
// logged and requeued for another attempt. The unit is always released
// back to the queue afterwards, whether it succeeded or not.
func (p *Pool) runUnit(ctx context.Context, dog *watchdog, logger zerolog.Logger, w queue.Work, process func(context.Context) error, requeue func()) error {
	unitCtx, cancelUnit := context.WithCancel(ctx)
	defer cancelUnit()

	dog.begin(cancelUnit)
	err := process(unitCtx)
	dog.reset()

	if err != nil {
		logger.Error().Err(err).Msg("Work unit failed, requeueing it")
		requeue()
	}

	if err := p.queue.MarkProcessed(w); err != nil {
		return fmt.Errorf("failed to release work unit: %w", err)
	}
	return nil
}

// publishStall reports a watchdog cancellation on the broker
func (p *Pool) publishStall(worker int) {
	if p.broker == nil {
		return
	}
	p.broker.Publish(&events.Event{
		Type:     events.EventWorkerStalled,
		Message:  fmt.Sprintf("worker %d cancelled a stalled unit", worker),
		Metadata: map[string]string{"worker": strconv.Itoa(worker)},
	})
}
