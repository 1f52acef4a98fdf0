package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/cuemby/ghmirror/pkg/gh"
	"github.com/cuemby/ghmirror/pkg/log"
)

// Estimated upstream requests consumed by processing one unit of each
// kind. Used to advance the pacing deadline after a poll.
const (
	estimateOwner = 5
	estimateRepo  = 20
	estimateIssue = 3
	estimateUser  = 1
)

const (
	// workPollInterval is the wait slice used while blocking for the
	// pacing deadline or for pending work.
	workPollInterval = 20 * time.Millisecond

	// quietPollInterval is how often WaitForQuiet rechecks the queue.
	quietPollInterval = 100 * time.Millisecond

	// quotaReserve is subtracted from the remaining-request count
	// before pacing, leaving headroom for other clients of the same
	// credentials.
	quotaReserve = 250

	// maxQuotaWaitSeconds caps a single quota-aware pacing wait.
	maxQuotaWaitSeconds = 10
)

// QuotaFunc reports the most recent upstream quota snapshot. A nil
// return means no snapshot is currently known and the queue falls back
// to quota-blind pacing for that poll.
type QuotaFunc func() *gh.QuotaSnapshot

// Config holds the pacing settings for a WorkQueue
type Config struct {
	// RequestsPerHour is the hourly request budget used for
	// quota-blind pacing.
	RequestsPerHour int

	// PauseBetweenRequests is the per-request pause applied while the
	// quota is healthy.
	PauseBetweenRequests time.Duration

	// Quota, when non-nil, supplies quota snapshots for quota-aware
	// pacing. Nil means the upstream server does not report quotas.
	Quota QuotaFunc
}

// WorkQueue holds the pending mirror work as four FIFO lists, one per
// kind, plus the set of units currently being processed. Additions are
// deduplicated against pending work by structural key; users are
// additionally deduplicated against a process-lifetime seen set.
//
// The queue owns the pacing deadline: polls return nothing until the
// deadline passes, and every successful poll advances it by the polled
// kind's estimated request cost.
type WorkQueue struct {
	mu        sync.Mutex
	owners    []OwnerWork
	repos     []RepoWork
	issues    []IssueWork
	users     []UserWork
	pending   map[string]struct{}
	active    map[string]int
	activeN   int
	seenUsers map[string]struct{}
	stopped   bool

	nextWorkAvailableAt time.Time

	requestsPerHour int
	pausePerRequest time.Duration
	quota           QuotaFunc

	clock clockwork.Clock
}

// NewWorkQueue creates an empty queue paced by cfg
func NewWorkQueue(cfg Config) *WorkQueue {
	return &WorkQueue{
		pending:         make(map[string]struct{}),
		active:          make(map[string]int),
		seenUsers:       make(map[string]struct{}),
		requestsPerHour: cfg.RequestsPerHour,
		pausePerRequest: cfg.PauseBetweenRequests,
		quota:           cfg.Quota,
		clock:           clockwork.NewRealClock(),
	}
}

// AddOwner enqueues owner work unless an identical unit is pending
func (q *WorkQueue) AddOwner(w OwnerWork) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.admitLocked(w.key()) {
		return
	}
	q.owners = append(q.owners, w)
}

// AddRepository enqueues repository work unless an identical unit is
// pending
func (q *WorkQueue) AddRepository(w RepoWork) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.admitLocked(w.key()) {
		return
	}
	q.repos = append(q.repos, w)
}

// AddIssue enqueues issue work unless an identical unit is pending
func (q *WorkQueue) AddIssue(w IssueWork) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.admitLocked(w.key()) {
		return
	}
	q.issues = append(q.issues, w)
}

// AddUser enqueues user work. The login is skipped when it is pending
// or has already been enqueued at any point in this process.
func (q *WorkQueue) AddUser(login string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	w := UserWork{Login: login}
	if _, seen := q.seenUsers[login]; seen {
		return
	}
	if !q.admitLocked(w.key()) {
		return
	}
	q.seenUsers[login] = struct{}{}
	q.users = append(q.users, w)
}

// AddUserRetry re-enqueues user work after a processing failure. It
// bypasses the seen set but still deduplicates against pending work.
func (q *WorkQueue) AddUserRetry(login string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	w := UserWork{Login: login}
	if !q.admitLocked(w.key()) {
		return
	}
	q.seenUsers[login] = struct{}{}
	q.users = append(q.users, w)
}

// admitLocked records key as pending, or reports false when it already
// is.
func (q *WorkQueue) admitLocked(key string) bool {
	if _, ok := q.pending[key]; ok {
		return false
	}
	q.pending[key] = struct{}{}
	return true
}

// PollOwner removes and returns the oldest pending owner unit. It
// returns false when none is pending, the pacing deadline has not
// passed, or the queue is stopped.
func (q *WorkQueue) PollOwner() (OwnerWork, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.pollableLocked() || len(q.owners) == 0 {
		return OwnerWork{}, false
	}
	q.advanceDeadlineLocked(estimateOwner)
	w := q.owners[0]
	q.owners = q.owners[1:]
	q.takeLocked(w)
	return w, true
}

// PollRepository removes and returns the oldest pending repository unit
func (q *WorkQueue) PollRepository() (RepoWork, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.pollableLocked() || len(q.repos) == 0 {
		return RepoWork{}, false
	}
	q.advanceDeadlineLocked(estimateRepo)
	w := q.repos[0]
	q.repos = q.repos[1:]
	q.takeLocked(w)
	return w, true
}

// PollIssue removes and returns the oldest pending issue unit
func (q *WorkQueue) PollIssue() (IssueWork, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.pollableLocked() || len(q.issues) == 0 {
		return IssueWork{}, false
	}
	q.advanceDeadlineLocked(estimateIssue)
	w := q.issues[0]
	q.issues = q.issues[1:]
	q.takeLocked(w)
	return w, true
}

// PollUser removes and returns the oldest pending user unit
func (q *WorkQueue) PollUser() (UserWork, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.pollableLocked() || len(q.users) == 0 {
		return UserWork{}, false
	}
	q.advanceDeadlineLocked(estimateUser)
	w := q.users[0]
	q.users = q.users[1:]
	q.takeLocked(w)
	return w, true
}

// takeLocked moves a polled unit from pending to active. The active
// entry is a count: a unit re-added and re-polled while still in
// flight is active twice, and each completion unwinds one.
func (q *WorkQueue) takeLocked(w Work) {
	delete(q.pending, w.key())
	q.active[w.key()]++
	q.activeN++
}

// MarkProcessed removes one active instance of w. An error means w was
// never polled, or was already marked, and the caller's bookkeeping is
// broken beyond local repair.
func (q *WorkQueue) MarkProcessed(w Work) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	key := w.key()
	n := q.active[key]
	if n == 0 {
		return fmt.Errorf("work unit was not active: %s", key)
	}
	if n == 1 {
		delete(q.active, key)
	} else {
		q.active[key] = n - 1
	}
	q.activeN--
	return nil
}

// AvailableWork returns the number of pending units across all kinds
func (q *WorkQueue) AvailableWork() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.owners) + len(q.repos) + len(q.issues) + len(q.users)
}

// ActiveResources returns the number of units polled but not yet marked
// processed
func (q *WorkQueue) ActiveResources() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.activeN
}

// StopAccepting turns off further polling. Pending work stays queued
// and units already in flight may still be marked processed or
// re-added by their worker's failure path.
func (q *WorkQueue) StopAccepting() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopped = true
}

// WaitForAvailableWork blocks until the pacing deadline has passed and
// at least one unit is pending. It returns false when ctx is cancelled
// or the queue is stopped.
func (q *WorkQueue) WaitForAvailableWork(ctx context.Context) bool {
	for {
		q.mu.Lock()
		stopped := q.stopped
		ready := q.deadlinePassedLocked() && q.availableLocked() > 0
		q.mu.Unlock()
		if stopped {
			return false
		}
		if ready {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-q.clock.After(workPollInterval):
		}
	}
}

// WaitIfNeeded advances the pacing deadline by the cost of an estimated
// number of requests the caller is about to spend, then blocks until
// the deadline passes. Callers that consume upstream requests outside
// the poll path use this to stay inside the same pacing gate.
func (q *WorkQueue) WaitIfNeeded(ctx context.Context, estimatedRequests int) {
	q.mu.Lock()
	q.advanceDeadlineLocked(estimatedRequests)
	deadline := q.nextWorkAvailableAt
	q.mu.Unlock()

	for q.clock.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return
		case <-q.clock.After(workPollInterval):
		}
	}
}

// WaitForQuiet blocks until the queue has been fully drained, pending
// and active both empty, for an uninterrupted quiet period. Used by
// tests and batch callers to detect that a scan has settled.
func (q *WorkQueue) WaitForQuiet(ctx context.Context, quiet time.Duration) {
	lastBusy := q.clock.Now()
	for {
		q.mu.Lock()
		busy := q.availableLocked() > 0 || q.activeN > 0
		q.mu.Unlock()
		if busy {
			lastBusy = q.clock.Now()
		} else if q.clock.Since(lastBusy) >= quiet {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-q.clock.After(quietPollInterval):
		}
	}
}

func (q *WorkQueue) pollableLocked() bool {
	return !q.stopped && q.deadlinePassedLocked()
}

func (q *WorkQueue) deadlinePassedLocked() bool {
	return q.clock.Now().After(q.nextWorkAvailableAt)
}

func (q *WorkQueue) availableLocked() int {
	return len(q.owners) + len(q.repos) + len(q.issues) + len(q.users)
}

// advanceDeadlineLocked moves the pacing deadline to now plus the cost
// of the estimated requests. The deadline is always computed from now,
// never accumulated, so idle time is not banked as burst allowance.
func (q *WorkQueue) advanceDeadlineLocked(estimatedRequests int) {
	q.nextWorkAvailableAt = q.clock.Now().Add(q.pauseFor(estimatedRequests))
}

// pauseFor computes the pacing pause for an estimated number of
// requests, quota-aware when a snapshot is available and quota-blind
// otherwise.
func (q *WorkQueue) pauseFor(estimatedRequests int) time.Duration {
	if q.quota != nil {
		if snapshot := q.quota(); snapshot != nil {
			return q.quotaPause(snapshot, estimatedRequests)
		}
	}
	if q.requestsPerHour <= 0 {
		return 0
	}
	return time.Duration(estimatedRequests) * (time.Hour / time.Duration(q.requestsPerHour))
}

// quotaPause paces against the live quota snapshot. It compares the
// seconds left in the quota window against the seconds the remaining
// requests would last at the target hourly rate, and waits out up to
// ten seconds of the shortfall. With no shortfall the configured
// per-request pause applies.
func (q *WorkQueue) quotaPause(snapshot *gh.QuotaSnapshot, estimatedRequests int) time.Duration {
	secondsRemaining := snapshot.SecondsToReset
	if secondsRemaining < 0 {
		secondsRemaining = 0
	}
	remaining := snapshot.Remaining - quotaReserve
	if remaining <= 0 {
		remaining = 1
	}
	if snapshot.TotalLimit <= 0 {
		return time.Duration(estimatedRequests) * q.pausePerRequest
	}
	targetRPS := float64(snapshot.TotalLimit) / 3600.0
	wait := secondsRemaining - int64(float64(remaining)/targetRPS)
	if wait < 0 {
		wait = 0
	}
	if wait > maxQuotaWaitSeconds {
		wait = maxQuotaWaitSeconds
	}
	if wait == 0 {
		return time.Duration(estimatedRequests) * q.pausePerRequest
	}
	log.WithComponent("queue").Debug().
		Int64("waitSeconds", wait).
		Int64("remaining", snapshot.Remaining).
		Int64("secondsToReset", snapshot.SecondsToReset).
		Msg("Throttling against upstream quota")
	return time.Duration(wait) * time.Second
}
