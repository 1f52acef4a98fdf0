/*
Package scan decides which issues changed since the last scan by
walking the upstream activity feeds, and enqueues work for exactly
those issues. Full scans are expensive; the event scan is how the
mirror stays current between them, and how it proves to the scheduler
that a full scan is unavoidable when the feeds fall short.

# Architecture

	┌──────────────────── EVENT SCAN (one owner) ───────────────────┐
	│                                                               │
	│  feed 1: owner activity        feed 2..n: per-repo            │
	│  stream (or per-repo for       issue-events streams           │
	│  individual targets)                                          │
	│        │                             │                        │
	│        ▼                             ▼                        │
	│  fingerprint each event, newest first                         │
	│    ├─ seen before → streak++  (20 in a row → store is         │
	│    │                           current, bail out)             │
	│    ├─ older than lastFullScanStart → store is current,        │
	│    │                           bail out                       │
	│    └─ new → scan entry (repo, issue number)                   │
	│        │                                                      │
	│        ▼                                                      │
	│  resolve entries through per-scan issue cache,                │
	│  follow repository moves, dedupe (repo, issue),               │
	│  enqueue IssueWork ── unless a full scan is required          │
	│                                                               │
	└────────────── fingerprints → Data (+ persisted) ──────────────┘

# Core Components

Scanner:
  - Scan walks one owner's feeds and returns the newly seen
    fingerprints plus whether a full scan is required
  - Each feed defaults to "full scan required" and only a bailout
    clears it: a 20-long streak of already-processed events, or an
    event older than the last full scan start
  - Feeds are independent: an upstream fault drops one feed's
    contribution and the scan moves on

Data:
  - The processed-fingerprint set, bounded to 1000 entries with FIFO
    eviction, seeded from the store and cleared at full-scan start

# Usage

	seed, _ := store.ProcessedEvents()
	data := scan.NewData(seed)
	scanner := scan.NewScanner(q, client, data)

	res, err := scanner.Scan(ctx, queue.OwnerWork{Owner: owner}, lastFullScanStart, ping)
	if err != nil { ... }
	if res.FullScanRequired { ... }
	store.AddProcessedEvents(res.NewFingerprints)

# Integration Points

  - pkg/scheduler: runs Scan per owner inside a heartbeat runner,
    promotes FullScanRequired, persists NewFingerprints
  - pkg/queue: receives the IssueWork units; WaitIfNeeded paces the
    scanner's own feed reads
  - pkg/gh: provides the activity and issue-events feeds and issue
    fetches

# Important Notes

  - Administrative issue-event kinds (subscribed, mentioned) and all
    pull-request-derived events are dropped before fingerprinting
  - A repository move is detected by an issue id mismatch on refetch
    and followed through the issue URL; a cross-owner move surfaces
    ErrCrossOwnerMove and aborts the scan, keeping the fingerprints
    collected so far
  - When FullScanRequired is set the issue units are not enqueued (the
    imminent full scan covers them) but the fingerprints still count
    as knowledge

# See Also

  - pkg/scheduler: decides when scans run and what their verdict means
  - pkg/worker: processes the enqueued issue units
*/
package scan
