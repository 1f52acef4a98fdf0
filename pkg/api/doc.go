/*
Package api implements the mirror's HTTP read API.

The api package is the interface external clients use to read mirrored
GitHub resources without spending upstream quota. It serves the cached
store over plain REST+JSON, guards every resource route with a
pre-shared key, and exposes unauthenticated health and metrics
endpoints for probes and scrapers.

# Architecture

The API server is a thin layer over the engine's store:

	┌──────────────────────── CLIENT ────────────────────────────┐
	│                                                             │
	│  ┌──────────────────────────────────────────────┐          │
	│  │       HTTP Client (pkg/client or curl)        │          │
	│  │  - Authorization: <pre-shared key>            │          │
	│  └──────────────────┬───────────────────────────┘          │
	└─────────────────────┼──────────────────────────────────────┘
	                      │ HTTP (default :8080)
	                      │
	┌─────────────────────▼──── MIRROR PROCESS ──────────────────┐
	│                                                             │
	│  ┌──────────────────────────────────────────────┐          │
	│  │          HTTP API Server (pkg/api)            │          │
	│  │  - instrument: counts + durations             │          │
	│  │  - limit: per-client token bucket             │          │
	│  │  - requireKey: pre-shared key check           │          │
	│  │  - resource handlers                          │          │
	│  └──────────────────┬───────────────────────────┘          │
	│                     │                                       │
	│  ┌──────────────────▼───────────────────────────┐          │
	│  │          Engine → CachedStore                 │          │
	│  │  - reads served from cache or disk            │          │
	│  │  - full scan trigger on demand                │          │
	│  └──────────────────────────────────────────────┘          │
	└─────────────────────────────────────────────────────────────┘

# Routes

Resource routes (pre-shared key required):

  - GET /organization/{name}: one mirrored organization
  - GET /user-repositories/{name}: a user account's repository list
  - GET /repository/{ownerType}/{ownerName}/{repoName}: one repository
  - GET /issue/{ownerType}/{ownerName}/{repoName}/{issueNumber}: one issue
  - GET /bulk/issue/{ownerType}/{ownerName}/{repoName}: many issues, by
    start/end range or comma-separated issueList (400 without either)
  - GET /user/{loginName}: one user account
  - GET /resourceChangeEvent?since=ms: change log entries at or after
    since, oldest first
  - POST /fullScan: schedule a full scan, answers 202

{ownerType} is "org" or "user"; anything else is a 400. Absent
documents answer 404 with no body.

Open routes:

  - GET /health: aggregate component health, 503 when unhealthy
  - GET /ready: critical components (store, engine, api), 503 when not
  - GET /live: process liveness
  - GET /metrics: Prometheus exposition

# Authentication

Every resource request must carry the pre-shared key in the
Authorization header. The comparison is case-insensitive. A request
that fails the check is held for one second before the 401 is written,
which keeps brute-force key guessing impractically slow. There are no
per-route permissions; the key grants read access to everything.

# Rate Limiting

When Config.ClientRateLimit is set, each client address gets a token
bucket (golang.org/x/time/rate). Clients are identified by
X-Forwarded-For, then X-Real-IP, then the connection address. Over-limit
requests answer 429 before the key check runs.

# Usage

	eng, err := engine.New(engineCfg)
	if err != nil {
		return err
	}

	server := api.NewServer(eng, api.Config{
		Addr:         ":8080",
		PresharedKey: key,
	})

	// Blocks until ctx is cancelled, then drains in-flight requests
	return server.Start(ctx)

# Integration Points

This package integrates with:

  - pkg/engine: store reads and the full scan trigger
  - pkg/metrics: request instrumentation, health and metrics endpoints
  - pkg/client: the typed client for these routes
  - cmd/ghmirror: the serve command runs this server under errgroup

# Important Notes

  - Reads go through the cached store, so a hot document never touches
    disk twice in a row
  - Bulk range reads probe every number in the range; absent issues are
    skipped, not reported
  - The change-event read deletes log files past the retention window
    as a side effect, so polling clients double as garbage collectors
  - Shutdown waits up to ten seconds for in-flight requests
*/
package api
