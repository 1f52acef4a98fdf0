package engine

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/cuemby/ghmirror/pkg/events"
	"github.com/cuemby/ghmirror/pkg/gh"
	"github.com/cuemby/ghmirror/pkg/log"
	"github.com/cuemby/ghmirror/pkg/queue"
	"github.com/cuemby/ghmirror/pkg/scan"
	"github.com/cuemby/ghmirror/pkg/scheduler"
	"github.com/cuemby/ghmirror/pkg/storage"
	"github.com/cuemby/ghmirror/pkg/types"
	"github.com/cuemby/ghmirror/pkg/worker"
)

// resolveRetryDelay is the pause before retrying target resolution
// after an upstream failure. Startup keeps retrying until it succeeds.
const resolveRetryDelay = time.Minute

// IndividualRepo is one repository mirrored on its own, outside any
// fully mirrored owner.
type IndividualRepo struct {
	// Name is the owner-qualified "owner/repo" name
	Name string

	// EventScanInterval overrides the time between event scans of the
	// repository's owner. Zero means the global default.
	EventScanInterval time.Duration
}

// Config holds engine configuration
type Config struct {
	// GitHub is the upstream connection. Ignored when Client is set.
	GitHub gh.Config

	// Client overrides the upstream client. Intended for tests.
	Client gh.Client

	// Orgs and Users are the owners whose repositories are all kept
	// mirrored. IndividualRepos are single repositories mirrored
	// without the rest of their owner; their owners must not also
	// appear in Orgs or Users.
	Orgs            []string
	Users           []string
	IndividualRepos []IndividualRepo

	// DBPath is the content store directory. Ignored when Store is
	// set, in which case the caller keeps ownership of the store.
	DBPath string
	Store  storage.Store

	// RequestsPerHour is the hourly upstream request budget used for
	// quota-blind pacing. PauseBetweenRequests is the per-request
	// pause applied while the quota is healthy.
	RequestsPerHour      int
	PauseBetweenRequests time.Duration

	// EventScanInterval is the default time between event scans per
	// owner. Zero means one minute.
	EventScanInterval time.Duration

	// Filter is the optional ingestion filter. Nil accepts everything.
	Filter types.Filter

	// ChangeLog receives one line per detected issue change. Optional.
	ChangeLog io.Writer

	// Workers is the number of queue workers. Defaults to 5.
	Workers int
}

// Engine owns the full ingestion pipeline: the content store, the
// upstream client, the paced work queue, the worker pool, the event
// scanner and the scheduler that drives them. New wires the parts
// together, Start resolves the configured targets upstream and begins
// mirroring, Stop shuts everything down in reverse order.
type Engine struct {
	store     storage.Store
	ownsStore bool
	client    gh.Client
	queue     *queue.WorkQueue
	broker    *events.Broker
	data      *scan.Data
	scanner   *scan.Scanner
	pool      *worker.Pool
	sched     *scheduler.Scheduler

	orgs       []string
	users      []string
	individual []IndividualRepo
	interval   time.Duration
	targets    []scheduler.Target

	clock clockwork.Clock
}

// New creates an engine from cfg. It refuses configurations whose
// individual repositories overlap the organization or user lists, and
// it reconciles the store against the configured targets, which moves
// the store contents aside when the targets have changed.
func New(cfg Config) (*Engine, error) {
	individualNames := make([]string, 0, len(cfg.IndividualRepos))
	for _, ir := range cfg.IndividualRepos {
		owner, _, ok := strings.Cut(ir.Name, "/")
		if !ok || owner == "" {
			return nil, fmt.Errorf("individual repository %q is not owner-qualified", ir.Name)
		}
		for _, org := range cfg.Orgs {
			if owner == org {
				return nil, fmt.Errorf("individual repository %q belongs to configured organization %q", ir.Name, org)
			}
		}
		for _, user := range cfg.Users {
			if owner == user {
				return nil, fmt.Errorf("individual repository %q belongs to configured user %q", ir.Name, user)
			}
		}
		individualNames = append(individualNames, ir.Name)
	}

	store := cfg.Store
	ownsStore := false
	if store == nil {
		fs, err := storage.NewFileStore(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create store: %w", err)
		}
		cached, err := storage.NewCachedStore(fs)
		if err != nil {
			return nil, fmt.Errorf("failed to create store cache: %w", err)
		}
		store = cached
		ownsStore = true
	}

	broker := events.NewBroker()
	broker.Start()

	wasInitialized := store.IsInitialized()
	if err := store.ReconcileConfiguration(cfg.Orgs, cfg.Users, individualNames); err != nil {
		broker.Stop()
		return nil, fmt.Errorf("failed to reconcile store configuration: %w", err)
	}
	if wasInitialized && !store.IsInitialized() {
		broker.Publish(&events.Event{
			Type:    events.EventStoreReset,
			Message: "configured targets changed, store contents moved aside",
		})
	}

	client := cfg.Client
	if client == nil {
		c, err := gh.NewClient(cfg.GitHub)
		if err != nil {
			broker.Stop()
			return nil, fmt.Errorf("failed to create upstream client: %w", err)
		}
		client = c
	}

	q := queue.NewWorkQueue(queue.Config{
		RequestsPerHour:      cfg.RequestsPerHour,
		PauseBetweenRequests: cfg.PauseBetweenRequests,
		Quota:                client.LastQuota,
	})

	seed, err := store.ProcessedEvents()
	if err != nil {
		broker.Stop()
		return nil, fmt.Errorf("failed to load processed events: %w", err)
	}
	data := scan.NewData(seed)

	interval := cfg.EventScanInterval
	if interval <= 0 {
		interval = scheduler.DefaultEventScanInterval
	}

	e := &Engine{
		store:      store,
		ownsStore:  ownsStore,
		client:     client,
		queue:      q,
		broker:     broker,
		data:       data,
		scanner:    scan.NewScanner(q, client, data),
		orgs:       cfg.Orgs,
		users:      cfg.Users,
		individual: cfg.IndividualRepos,
		interval:   interval,
		clock:      clockwork.NewRealClock(),
	}
	e.pool = worker.NewPool(worker.Config{
		Queue:     q,
		Store:     store,
		Client:    client,
		Filter:    cfg.Filter,
		Broker:    broker,
		ChangeLog: cfg.ChangeLog,
		Workers:   cfg.Workers,
	})
	return e, nil
}

// Start resolves the configured targets against the upstream server and
// starts the worker pool and the scheduler. Resolution retries
// indefinitely on upstream errors; ctx only bounds the resolution
// phase, component shutdown stays with Stop.
func (e *Engine) Start(ctx context.Context) error {
	targets, err := e.resolveTargets(ctx)
	if err != nil {
		return err
	}
	e.targets = targets

	e.sched = scheduler.NewScheduler(scheduler.Config{
		Queue:   e.queue,
		Store:   e.store,
		Scanner: e.scanner,
		Data:    e.data,
		Targets: targets,
		Broker:  e.broker,
	})

	e.pool.Start()
	e.sched.Start()

	logger := log.WithComponent("engine")
	logger.Info().
		Int("targets", len(targets)).
		Msg("Started mirror engine")
	return nil
}

// Stop shuts the engine down: the scheduler first so no new work is
// queued, then the queue and workers, then the event broker.
func (e *Engine) Stop() {
	if e.sched != nil {
		e.sched.Stop()
	}
	e.queue.StopAccepting()
	e.pool.Stop()
	e.broker.Stop()

	logger := log.WithComponent("engine")
	if e.ownsStore {
		if err := e.store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close store")
		}
	}
	logger.Info().Msg("Stopped mirror engine")
}

// RequestFullScan asks the scheduler to start a full scan on its next
// cycle. Before Start it does nothing.
func (e *Engine) RequestFullScan() {
	if e.sched != nil {
		e.sched.RequestFullScan()
	}
}

// FullScanInProgress reports whether a full scan is currently running
func (e *Engine) FullScanInProgress() bool {
	return e.sched != nil && e.sched.FullScanInProgress()
}

// Store returns the content store
func (e *Engine) Store() storage.Store {
	return e.store
}

// Queue returns the work queue
func (e *Engine) Queue() *queue.WorkQueue {
	return e.queue
}

// Broker returns the event broker
func (e *Engine) Broker() *events.Broker {
	return e.broker
}

// LastQuota returns the most recently observed upstream quota snapshot,
// nil when none has been seen or quotas are unenforced
func (e *Engine) LastQuota() *gh.QuotaSnapshot {
	return e.client.LastQuota()
}

// ProcessedEventCount returns the size of the in-memory processed-event
// set
func (e *Engine) ProcessedEventCount() int {
	return e.data.Size()
}

// Targets returns the resolved targets. Empty before Start succeeds.
func (e *Engine) Targets() []scheduler.Target {
	out := make([]scheduler.Target, len(e.targets))
	copy(out, e.targets)
	return out
}

// resolveTargets retries resolveOnce until it succeeds or ctx is done.
// A mirror that cannot reach its upstream yet is expected to wait, not
// to give up, so every failure just logs and sleeps.
func (e *Engine) resolveTargets(ctx context.Context) ([]scheduler.Target, error) {
	logger := log.WithComponent("engine")
	for {
		targets, err := e.resolveOnce(ctx, logger)
		if err == nil {
			return targets, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Error().Err(err).
			Dur("retry_in", resolveRetryDelay).
			Msg("Failed to resolve configured targets, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-e.clock.After(resolveRetryDelay):
		}
	}
}

// resolveOnce probes the request quota and resolves every configured
// owner and repository upstream. Individual repositories are grouped
// into one target per owner; the owner kind comes from the repository
// response. When several repositories of one owner configure different
// event-scan intervals the shortest one wins.
func (e *Engine) resolveOnce(ctx context.Context, logger zerolog.Logger) ([]scheduler.Target, error) {
	quota, err := e.client.Quota(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read request quota: %w", err)
	}
	if quota == nil {
		logger.Info().Msg("Upstream does not enforce request quotas")
	} else {
		logger.Info().
			Int64("remaining", quota.Remaining).
			Int64("limit", quota.TotalLimit).
			Msg("Upstream request quota")
	}

	targets := make([]scheduler.Target, 0, len(e.orgs)+len(e.users)+len(e.individual))

	for _, name := range e.orgs {
		if _, err := e.client.Organization(ctx, name); err != nil {
			return nil, fmt.Errorf("failed to resolve organization %s: %w", name, err)
		}
		targets = append(targets, scheduler.Target{
			Work:     queue.OwnerWork{Owner: types.OrgOwner(name)},
			Interval: e.interval,
		})
	}

	for _, name := range e.users {
		if _, err := e.client.User(ctx, name); err != nil {
			return nil, fmt.Errorf("failed to resolve user %s: %w", name, err)
		}
		targets = append(targets, scheduler.Target{
			Work:     queue.OwnerWork{Owner: types.UserOwner(name)},
			Interval: e.interval,
		})
	}

	grouped := make([]scheduler.Target, 0, len(e.individual))
	index := make(map[string]int)
	for _, ir := range e.individual {
		ownerName, repoName, _ := strings.Cut(ir.Name, "/")
		repo, err := e.client.Repository(ctx, ownerName, repoName)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve repository %s: %w", ir.Name, err)
		}

		interval := ir.EventScanInterval
		if interval <= 0 {
			interval = e.interval
		}

		if i, ok := index[ownerName]; ok {
			grouped[i].Work.Repos = append(grouped[i].Work.Repos, *repo)
			if interval < grouped[i].Interval {
				grouped[i].Interval = interval
			}
			continue
		}

		owner := types.UserOwner(ownerName)
		if repo.OwnerIsOrg {
			owner = types.OrgOwner(ownerName)
		}
		index[ownerName] = len(grouped)
		grouped = append(grouped, scheduler.Target{
			Work:     queue.OwnerWork{Owner: owner, Repos: []gh.Repo{*repo}},
			Interval: interval,
		})
	}
	targets = append(targets, grouped...)

	logger.Info().Int("targets", len(targets)).Msg("Resolved configured targets")
	return targets, nil
}
