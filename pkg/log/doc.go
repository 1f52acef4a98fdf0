/*
Package log provides structured logging for the mirror using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper functions
for common logging patterns. All logs include timestamps and support filtering
by severity level. A rolling file writer backs the optional on-disk activity
log that records every mirrored resource change.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                           │
	│  ┌────────────────────────────────────────────┐           │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘           │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐           │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("scheduler")               │          │
	│  │  - WithOwner("argoproj-labs")               │          │
	│  │  - WithRepo("argoproj-labs", "gitops")      │          │
	│  │  - WithWorker(3)                            │          │
	│  └──────────────────┬─────────────────────────┘           │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐           │
	│  │          Outputs                            │          │
	│  │  - Console (development)                    │          │
	│  │  - JSON to stdout (production)              │          │
	│  │  - RollingWriter (change activity log)      │          │
	│  └────────────────────────────────────────────┘           │
	└──────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all mirror packages

Configuration:
  - Level: debug/info/warn/error threshold
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination

Context Loggers:
  - WithComponent: scheduler, worker, scan, store, api
  - WithOwner / WithRepo: the upstream target being processed
  - WithWorker: worker pool slot

RollingWriter:
  - Numbered files ghmirror-<n>.log in a configured directory
  - Rolls at 50MB, retains current and previous file only
  - Removes files left behind by previous processes
  - Used for the full-JSON record of each issue change

# Usage

Initializing the logger:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Simple logging:

	log.Info("full scan started")
	log.Warn("event feed returned out-of-order timestamps")

Structured logging:

	log.Logger.Info().
		Str("owner", "jgwest").
		Str("repo", "rogue-cloud").
		Int("issue", 26).
		Msg("issue persisted")

Component loggers:

	schedLog := log.WithComponent("scheduler")
	schedLog.Debug().Int64("available", n).Msg("queue drained check")

Rolling change log:

	w, err := log.NewRollingWriter("/var/log/ghmirror")
	if err != nil {
		return err
	}
	changeLog := zerolog.New(w).With().Timestamp().Logger()
	changeLog.Info().RawJSON("issue", body).Msg("issue changed")

# Important Notes

  - Before Init the global logger has no writer, so anything logged is
    discarded. Tests rely on this; the serve command calls Init first.
  - The RollingWriter is safe for concurrent use; writes that fail close
    the current file and retry on a fresh one.
  - Never log credentials or the pre-shared key.
*/
package log
