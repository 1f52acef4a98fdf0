/*
Package queue holds the pending mirror work and paces how fast workers
may take it against the upstream request budget.

The queue manages four FIFO lists, one per unit kind, plus an active
set of units polled but not yet marked processed. It is the single
throttle point of the mirror: every poll, and every voluntary
WaitIfNeeded from the event scanner, advances one shared pacing
deadline, and no work is handed out before that deadline passes.

# Architecture

	┌────────────────── WORK QUEUE ──────────────────┐
	│                                                │
	│  pending lists             active set          │
	│  ┌──────────────┐          ┌──────────────┐    │
	│  │ OwnerWork    │  poll    │ units polled │    │
	│  │ RepoWork     │ ───────► │ but not yet  │    │
	│  │ IssueWork    │          │ processed    │    │
	│  │ UserWork     │ ◄─────── └──────────────┘    │
	│  └──────────────┘  requeue                     │
	│         ▲                                      │
	│         │ add (deduplicated by key)            │
	│                                                │
	│  pacing deadline: nextWorkAvailableAt          │
	│  ┌──────────────────────────────────────┐      │
	│  │ quota-aware: shortfall vs reset,     │      │
	│  │   capped at 10s, reserve of 250      │      │
	│  │ quota-blind: estimate × hour/budget  │      │
	│  └──────────────────────────────────────┘      │
	└────────────────────────────────────────────────┘

# Core Components

WorkQueue:
  - Four FIFO lists with structural-key deduplication against pending
    work only; a unit being processed may be re-added
  - User logins are also deduplicated against a process-lifetime seen
    set, so each user is fetched at most once per process;
    AddUserRetry bypasses the seen set for failure requeues
  - MarkProcessed must match a prior poll; a mismatch returns an error
    the caller cannot repair locally

Work kinds:
  - OwnerWork: resolve one configured target's repositories; carries
    pre-resolved repos for the individual-repository list
  - RepoWork: scan one repository's issues
  - IssueWork: mirror one issue with comments and events
  - UserWork: mirror one user account

# Pacing

The deadline is always recomputed from now, never accumulated, so idle
periods do not bank burst allowance. Each poll kind advances it by an
estimated request cost: owners 5, repositories 20, issues 3, users 1.

With a quota snapshot available, the wait is the shortfall between the
seconds left in the quota window and the seconds the remaining requests
would last at the target hourly rate, clamped to at most ten seconds.
A reserve of 250 requests is kept back. When there is no shortfall the
configured per-request pause applies instead. Without a snapshot the
queue paces blindly at the configured hourly budget.

# Usage

	q := queue.NewWorkQueue(queue.Config{
		RequestsPerHour:      5000,
		PauseBetweenRequests: 500 * time.Millisecond,
		Quota:                client.LastQuota,
	})

	q.AddOwner(queue.OwnerWork{Owner: types.OrgOwner("acme")})

	for q.WaitForAvailableWork(ctx) {
		if w, ok := q.PollOwner(); ok {
			process(w)
			q.MarkProcessed(w)
		}
	}

# Integration Points

  - pkg/worker: polls units, marks them processed, requeues failures
  - pkg/scan: calls WaitIfNeeded to pace its own feed reads
  - pkg/scheduler: watches AvailableWork and ActiveResources to detect
    that a scan has drained
  - pkg/gh: supplies quota snapshots through Client.LastQuota

# Important Notes

  - AvailableWork()==0 and ActiveResources()==0 together are the drain
    sentinel; pending-only checks miss units still in flight
  - StopAccepting stops polling but not adding, so failure paths can
    still requeue in-flight work during shutdown
  - All waits are slices of 20ms (100ms for WaitForQuiet) against the
    injected clock; tests substitute a fake clock

# See Also

  - pkg/worker: the pool that consumes this queue
  - pkg/scheduler: enqueues owners and watches the drain sentinel
*/
package queue
