/*
Package engine composes the whole ingestion pipeline behind one handle.
An Engine owns the content store, the upstream client, the paced work
queue, the worker pool, the event scanner and the scheduler; callers
construct it from a Config, start it, and hand it to the API layer.

# Architecture

	                  ┌──────────────────────────┐
	  Config ──New──▶ │          Engine          │
	                  │                          │
	                  │  store ◀── reconcile     │
	                  │  client ── quota ──┐     │
	                  │  queue ◀── pacing ─┘     │
	                  │  broker                  │
	                  │  scanner / data          │
	                  │  worker pool             │
	                  │  scheduler ◀── targets   │
	                  └──────────┬───────────────┘
	                             │
	            Start: resolve targets upstream
	                   (retry every minute, never give up)
	                   then start workers and scheduler

# Core Components

Engine:
  - New validates the target lists, wires every component and
    reconciles the store against the configured targets
  - Start resolves organizations, users and individual repositories
    upstream, then begins mirroring
  - Stop shuts down scheduler, queue, workers and broker in order
  - RequestFullScan and FullScanInProgress delegate to the scheduler

IndividualRepo:
  - One owner-qualified repository mirrored without the rest of its
    owner, with an optional event-scan interval override

# Usage

	e, err := engine.New(engine.Config{
		GitHub: gh.Config{Server: "github.com", Password: token},
		Orgs:   []string{"acme"},
		DBPath: "/var/lib/ghmirror",
	})
	if err != nil {
		return err
	}
	if err := e.Start(ctx); err != nil {
		return err
	}
	defer e.Stop()

# Integration Points

  - pkg/storage: creates a cache-fronted file store at DBPath unless
    the caller supplies one; configuration drift quarantines contents
  - pkg/gh: one client serves the quota probe, target resolution and
    all mirror fetches
  - pkg/queue: pacing is wired to the client's last-observed quota
  - pkg/scheduler: resolved targets carry the owner kind and, for
    individual repositories, the pre-resolved repository list

# Important Notes

  - Individual repositories whose owner also appears in Orgs or Users
    are refused at construction time
  - Target resolution retries indefinitely; an unreachable upstream
    delays startup instead of failing it. Cancel the Start context to
    abort.
  - The owner kind of an individual repository comes from the
    repository response, so user-owned repositories are scanned
    through the user feed
  - When several repositories of one owner configure different
    event-scan intervals the shortest one wins
*/
package engine
