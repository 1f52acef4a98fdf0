/*
Package scheduler drives the ingestion cycle. A single loop with a 20
second heartbeat decides, each tick, whether to start the daily full
scan, whether to run per-owner event scans, and whether a running full
scan has drained.

# Architecture

	┌───────────────────── SCHEDULER TICK ──────────────────────┐
	│                                                           │
	│  1. full scan in progress and queue drained?              │
	│       → mark complete (processed events stay: they were   │
	│         cleared when the scan started)                    │
	│                                                           │
	│  2. fullScanRequired = daily hour reached                 │
	│       ∨ store not initialized                             │
	│       ∨ no recorded full-scan start                       │
	│                                                           │
	│  3. not required and queue nearly drained (≤ 10)?         │
	│       → event-scan each owner past its deadline,          │
	│         wrapped in a heartbeat runner;                    │
	│         a feed without proof promotes fullScanRequired;   │
	│         new fingerprints are persisted                    │
	│                                                           │
	│  4. externally requested? → fullScanRequired              │
	│                                                           │
	│  5. required, none running, none begun today?             │
	│       → initialize store, persist lastFullScanStart,      │
	│         clear processed events, enqueue every owner       │
	│                                                           │
	└───────────────────────────────────────────────────────────┘

# Core Components

Scheduler:
  - Start runs the loop, Stop cancels it and waits for the current
    cycle
  - RequestFullScan sets a flag consumed on the next tick
  - Owns the full-scan flags; workers and the event scanner never
    mutate them

Target:
  - One configured owner plus its event-scan interval. Individual
    repositories may override the global cadence.

# Usage

	s := scheduler.NewScheduler(scheduler.Config{
		Queue:   q,
		Store:   store,
		Scanner: scanner,
		Data:    data,
		Targets: targets,
		Broker:  broker,
	})
	s.Start()
	defer s.Stop()

# Integration Points

  - pkg/scan: each due target is scanned through a heartbeat runner;
    the verdict and fingerprints come back as a scan.Result
  - pkg/queue: full scans are started by enqueueing OwnerWork; the
    drain condition reads availableWork and activeResources
  - pkg/storage: lastFullScanStart and the processed-event set are
    persisted across restarts
  - pkg/events: full-scan and event-scan lifecycle events are
    published when a broker is configured

# Important Notes

  - At most one full scan starts per calendar day, keyed by local
    year and day of year. A RequestFullScan on a day that already
    started one is a no-op.
  - The daily hour forces fullScanRequired for every tick within it;
    the calendar-day key is what keeps that to a single scan
  - Event-scan deadlines advance on each attempt, successful or not,
    so a failing owner cannot monopolize the loop
  - A stalled event scan is cancelled by the heartbeat runner and
    treated as no new information for that tick

# See Also

  - pkg/scan: what an event scan looks at and what it returns
  - pkg/worker: the pool that drains what the scheduler enqueues
*/
package scheduler
