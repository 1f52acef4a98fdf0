/*
Package worker runs the pool of goroutines that drain the work queue
and mirror upstream resources into the store.

Workers poll units in a fixed preference order: owners before
repositories before issues before users. Processing a unit usually
discovers child work, which is fed straight back into the queue, so a
full scan fans out from a handful of owner units into the complete
resource tree. Failed units are requeued and retried; the queue's
deduplication keeps the retry traffic bounded.

# Architecture

	┌─────────────────── WORKER POOL ───────────────────┐
	│                                                   │
	│   worker 0..n           watchdog per worker       │
	│  ┌────────────┐        ┌────────────────────┐     │
	│  │ poll unit  │ begin  │ checks every 15s,  │     │
	│  │ process    │ ─────► │ cancels units that │     │
	│  │ mark done  │ reset  │ run over 2 minutes │     │
	│  └────────────┘        └────────────────────┘     │
	│        │                                          │
	│        ▼                                          │
	│  owner ──► repositories ──► issues ──► users      │
	│    (each step persists and queues the next)       │
	└───────────────────────────────────────────────────┘

# Core Components

Pool:
  - Fixed set of worker goroutines, five unless configured otherwise
  - Start launches the workers, Stop cancels them and waits for the
    in-flight units to finish
  - A worker stops on its own only when releasing a unit back to the
    queue fails, which means queue accounting is broken

Processing:
  - processOwner resolves the owner's repositories and persists the
    repository list under the owner's name
  - processRepo walks all issues, open and closed, skipping pull
    requests, and persists the repository record with the smallest and
    largest accepted issue numbers
  - processIssue mirrors one issue with comments and its event log,
    queues the reporter and assignees as user work, and appends a
    resource change event when the mirrored document differs from the
    stored one
  - processUser fetches and persists one user account

# Usage

	pool := worker.NewPool(worker.Config{
		Queue:  q,
		Store:  store,
		Client: client,
	})
	pool.Start()
	defer pool.Stop()

# Integration Points

  - pkg/queue: the single source of work and the pacing authority
  - pkg/storage: every mirrored resource is written through the store
  - pkg/gh: all upstream reads go through the platform client
  - pkg/events: detected issue changes are published on the broker

# Important Notes

  - Absent user references are persisted as the ghost sentinel, never
    as an empty string
  - Issue change detection compares canonical JSON, so key order and
    null-valued fields cannot produce spurious change events
  - The watchdog cancels a stuck unit's context; the unit then fails,
    is requeued, and is retried by any worker

# See Also

  - pkg/scan: the event scanner that queues targeted issue work
  - pkg/scheduler: decides when scans start and enqueues the owners
*/
package worker
