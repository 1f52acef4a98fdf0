/*
Package events provides an in-memory event broker for the mirror's
pub/sub messaging.

The events package implements a lightweight event bus for broadcasting
engine lifecycle events to interested subscribers. It enables loose
coupling between the scheduler, the worker pool, and the observers that
react to scans and issue changes (metrics, the rolling change log).

# Architecture

Non-blocking pub/sub messaging with buffered channels:

	┌──────────────────── EVENT BROKER ──────────────────────┐
	│                                                        │
	│  ┌────────────────────────────────────────────┐        │
	│  │              Event Broker                  │        │
	│  │  - In-memory message bus                   │        │
	│  │  - Topic-agnostic (all events broadcast)   │        │
	│  │  - Non-blocking publish                    │        │
	│  └──────────────────┬─────────────────────────┘        │
	│                     │                                  │
	│  ┌──────────────────▼─────────────────────────┐        │
	│  │          Event Distribution                │        │
	│  │                                            │        │
	│  │  Publisher → Event Channel (buffer: 100)   │        │
	│  │       ↓                                    │        │
	│  │  Broadcast Loop                            │        │
	│  │       ↓                                    │        │
	│  │  Subscriber Channels (buffer: 50 each)     │        │
	│  └──────────────────┬─────────────────────────┘        │
	│                     │                                  │
	│  ┌──────────────────▼─────────────────────────┐        │
	│  │           Event Types                      │        │
	│  │                                            │        │
	│  │  Scan Events:                              │        │
	│  │    - scan.full.started                     │        │
	│  │    - scan.full.completed                   │        │
	│  │    - scan.event.started                    │        │
	│  │    - scan.event.completed                  │        │
	│  │                                            │        │
	│  │  Data Events:                              │        │
	│  │    - issue.changed                         │        │
	│  │    - store.reset                           │        │
	│  │                                            │        │
	│  │  Health Events:                            │        │
	│  │    - worker.stalled                        │        │
	│  └────────────────────────────────────────────┘        │
	└────────────────────────────────────────────────────────┘

# Core Components

Broker:
  - Owns the central event channel and the subscriber set
  - Start launches the distribution loop, Stop ends it
  - Publish never blocks the caller beyond the central buffer

Subscriber:
  - A buffered channel handed out by Subscribe
  - A full subscriber buffer drops the event for that subscriber only;
    slow observers never stall the ingestion pipeline
  - Unsubscribe removes and closes the channel

Event:
  - ID (assigned on publish when empty), type, timestamp
  - Message for humans, Metadata for machine fields (owner, repo,
    issue, uuid)

# Usage

Publishing:

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	broker.Publish(&events.Event{
		Type:    events.EventIssueChanged,
		Message: "Issue content changed",
		Metadata: map[string]string{
			"owner": "argoproj-labs",
			"repo":  "applicationset",
			"issue": "222",
		},
	})

Subscribing:

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	for event := range sub {
		switch event.Type {
		case events.EventIssueChanged:
			// record the change
		case events.EventFullScanCompleted:
			// update scan metrics
		}
	}

# Important Notes

  - Delivery is best effort. Observers that must not miss data read
    from the store, not from the broker.
  - Events published after Stop are discarded
  - Metadata maps are shared with every subscriber, treat them as
    read-only

# See Also

  - pkg/engine for the publishers
  - pkg/metrics for the metrics subscriber
  - pkg/scheduler for scan lifecycle publishing
*/
package events
