package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/cuemby/ghmirror/pkg/events"
	"github.com/cuemby/ghmirror/pkg/heartbeat"
	"github.com/cuemby/ghmirror/pkg/log"
	"github.com/cuemby/ghmirror/pkg/queue"
	"github.com/cuemby/ghmirror/pkg/scan"
	"github.com/cuemby/ghmirror/pkg/storage"
)

const (
	// tickInterval is how often the scheduler wakes for a cycle
	tickInterval = 20 * time.Second

	// fullScanHour is the local hour of day during which the daily
	// full scan is started
	fullScanHour = 3

	// eventScanQueueCeiling: event scans only run while the queue
	// holds at most this much outstanding work
	eventScanQueueCeiling = 10
)

// DefaultEventScanInterval applies to targets without a configured
// event-scan cadence
const DefaultEventScanInterval = time.Minute

// Target is one configured owner together with its event-scan cadence
type Target struct {
	// Work identifies the owner. For owners configured through the
	// individual repository list it carries the pre-resolved
	// repositories.
	Work queue.OwnerWork

	// Interval is the time between event scans of this target. Zero
	// or negative means the default.
	Interval time.Duration
}

// Config holds scheduler configuration
type Config struct {
	Queue   *queue.WorkQueue
	Store   storage.Store
	Scanner *scan.Scanner

	// Data is the in-memory processed-event set shared with the
	// scanner. The scheduler clears it when a full scan starts.
	Data *scan.Data

	// Targets are the owners kept mirrored
	Targets []Target

	// Broker receives scan lifecycle events. Optional.
	Broker *events.Broker
}

// Scheduler is the single loop that drives the ingestion cycle: it
// starts the daily full scan, runs per-owner event scans while the
// queue is quiet, and detects when a full scan has drained.
//
// Only the scheduler moves the full-scan flags; workers and the
// event scanner never touch them.
type Scheduler struct {
	queue   *queue.WorkQueue
	store   storage.Store
	scanner *scan.Scanner
	data    *scan.Data
	targets []Target
	broker  *events.Broker
	clock   clockwork.Clock

	fullScanRequested  atomic.Bool
	fullScanInProgress atomic.Bool

	// owned by the run loop
	deadlines   []time.Time
	scannedDays map[int]bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler
func NewScheduler(cfg Config) *Scheduler {
	targets := make([]Target, len(cfg.Targets))
	copy(targets, cfg.Targets)
	for i := range targets {
		if targets[i].Interval <= 0 {
			targets[i].Interval = DefaultEventScanInterval
		}
	}
	return &Scheduler{
		queue:       cfg.Queue,
		store:       cfg.Store,
		scanner:     cfg.Scanner,
		data:        cfg.Data,
		targets:     targets,
		broker:      cfg.Broker,
		clock:       clockwork.NewRealClock(),
		deadlines:   make([]time.Time, len(targets)),
		scannedDays: make(map[int]bool),
	}
}

// Start begins the scheduler loop
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.run(ctx)

	log.WithComponent("scheduler").Info().Int("targets", len(s.targets)).Msg("Started scheduler")
}

// Stop stops the scheduler loop and waits for the current cycle to
// finish
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// RequestFullScan asks for a full scan outside the daily schedule. The
// request is consumed on the next tick; at most one full scan starts
// per calendar day.
func (s *Scheduler) RequestFullScan() {
	s.fullScanRequested.Store(true)
}

// FullScanInProgress reports whether a full scan has started and has
// not yet drained
func (s *Scheduler) FullScanInProgress() bool {
	return s.fullScanInProgress.Load()
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	logger := log.WithComponent("scheduler")
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(tickInterval):
		}
		s.tick(ctx, logger)
	}
}

// tick runs one scheduling cycle. Errors are logged and the next tick
// tries again.
func (s *Scheduler) tick(ctx context.Context, logger zerolog.Logger) {
	now := s.clock.Now()

	// A full scan is complete once it started and the queue drained.
	// The processed-event set stays as it is: it was cleared when the
	// scan started, and everything added since is knowledge about
	// events the mirrored state already covers.
	if s.fullScanInProgress.Load() && s.queue.AvailableWork()+s.queue.ActiveResources() == 0 {
		s.fullScanInProgress.Store(false)
		logger.Info().Msg("Full scan was detected as complete")
		s.publish(events.EventFullScanCompleted, "full scan complete", nil)
	}

	fullScanRequired := now.Hour() == fullScanHour || !s.store.IsInitialized() || !s.hasLastFullScanStart(logger)

	if !fullScanRequired && !s.fullScanInProgress.Load() &&
		s.queue.AvailableWork()+s.queue.ActiveResources() <= eventScanQueueCeiling {
		if s.runDueEventScans(ctx, logger, now) {
			fullScanRequired = true
		}
	}

	if s.fullScanRequested.Swap(false) {
		fullScanRequired = true
	}

	if fullScanRequired && !s.fullScanInProgress.Load() {
		s.beginFullScan(logger, now)
	}
}

// runDueEventScans scans every target whose deadline has elapsed and
// reports whether any of them demanded a full scan. Deadlines advance
// on each attempt, successful or not.
func (s *Scheduler) runDueEventScans(ctx context.Context, logger zerolog.Logger, now time.Time) bool {
	lastFullScan, found, err := s.store.GetInt64(storage.KeyLastFullScanStart)
	if err != nil || !found {
		if err != nil {
			logger.Error().Err(err).Msg("Failed to read the last full scan time")
		}
		return false
	}

	promoted := false
	for i := range s.targets {
		if now.Before(s.deadlines[i]) {
			continue
		}
		s.deadlines[i] = now.Add(s.targets[i].Interval)

		target := s.targets[i]
		ownerName := target.Work.Owner.String()
		s.publish(events.EventEventScanStarted, "event scan of "+ownerName, map[string]string{"owner": ownerName})

		runner := heartbeat.NewRunner[*scan.Result]()
		res, finished, err := runner.Run(ctx, func(ctx context.Context, ping func()) (*scan.Result, error) {
			return s.scanner.Scan(ctx, target.Work, lastFullScan, ping)
		})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return promoted
			}
			logger.Error().Err(err).Str("owner", ownerName).Msg("Event scan failed")
			continue
		}
		if !finished {
			logger.Warn().Str("owner", ownerName).Msg("Event scan reported no progress and was cancelled")
			continue
		}

		if res.FullScanRequired && !promoted {
			logger.Info().Str("owner", ownerName).Msg("Setting full scan required based on event scan")
			promoted = true
		}
		if len(res.NewFingerprints) > 0 {
			if err := s.store.AddProcessedEvents(res.NewFingerprints); err != nil {
				logger.Error().Err(err).Str("owner", ownerName).Msg("Failed to persist processed event fingerprints")
			}
		}
		s.publish(events.EventEventScanCompleted, "event scan of "+ownerName, map[string]string{"owner": ownerName})
	}
	return promoted
}

// beginFullScan starts a full scan unless one already began this
// calendar day. Clearing the processed-event set here, at the start,
// hands the event scanner a clean slate while the scan drains.
func (s *Scheduler) beginFullScan(logger zerolog.Logger, now time.Time) {
	dayKey := now.Year()*1000 + now.YearDay()
	if s.scannedDays[dayKey] {
		return
	}

	if !s.store.IsInitialized() {
		if err := s.store.Initialize(); err != nil {
			logger.Error().Err(err).Msg("Failed to initialize the store")
			return
		}
	}
	if err := s.store.PutInt64(storage.KeyLastFullScanStart, now.UnixMilli()); err != nil {
		logger.Error().Err(err).Msg("Failed to persist the full scan start time")
		return
	}
	if err := s.store.ClearProcessedEvents(); err != nil {
		logger.Error().Err(err).Msg("Failed to clear processed event fingerprints")
		return
	}
	s.data.Clear()
	s.scannedDays[dayKey] = true

	logger.Info().Msg("Beginning full scan")

	for _, target := range s.targets {
		s.queue.AddOwner(target.Work)
	}
	s.fullScanInProgress.Store(true)
	s.publish(events.EventFullScanStarted, "full scan started", nil)
}

func (s *Scheduler) hasLastFullScanStart(logger zerolog.Logger) bool {
	_, found, err := s.store.GetInt64(storage.KeyLastFullScanStart)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to read the last full scan time")
		return false
	}
	return found
}

func (s *Scheduler) publish(kind events.EventType, message string, metadata map[string]string) {
	if s.broker == nil {
		return
	}
	s.broker.Publish(&events.Event{Type: kind, Message: message, Metadata: metadata})
}
