package metrics

import (
	"time"

	"github.com/cuemby/ghmirror/pkg/engine"
	"github.com/cuemby/ghmirror/pkg/events"
)

// collectInterval is how often the collector samples engine state
const collectInterval = 15 * time.Second

// Collector samples engine state into the gauges and folds broker
// events into the counters
type Collector struct {
	engine *engine.Engine
	stopCh chan struct{}
}

// NewCollector creates a metrics collector for the engine
func NewCollector(e *engine.Engine) *Collector {
	return &Collector{
		engine: e,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	sub := c.engine.Broker().Subscribe()
	ticker := time.NewTicker(collectInterval)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case event := <-sub:
				if event != nil {
					c.record(event)
				}
			case <-c.stopCh:
				ticker.Stop()
				c.engine.Broker().Unsubscribe(sub)
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	q := c.engine.Queue()
	QueueAvailableWork.Set(float64(q.AvailableWork()))
	QueueActiveResources.Set(float64(q.ActiveResources()))

	if c.engine.FullScanInProgress() {
		FullScanInProgress.Set(1)
	} else {
		FullScanInProgress.Set(0)
	}
	ProcessedEvents.Set(float64(c.engine.ProcessedEventCount()))

	if c.engine.Store().IsInitialized() {
		StoreInitialized.Set(1)
	} else {
		StoreInitialized.Set(0)
	}

	if quota := c.engine.LastQuota(); quota != nil {
		UpstreamQuotaRemaining.Set(float64(quota.Remaining))
		UpstreamQuotaLimit.Set(float64(quota.TotalLimit))
	}
}

// record folds one broker event into the counters. Worker health flips
// unhealthy on a stall and back to healthy once work provably flows
// again.
func (c *Collector) record(event *events.Event) {
	switch event.Type {
	case events.EventFullScanStarted:
		FullScansTotal.Inc()
	case events.EventEventScanStarted:
		EventScansTotal.Inc()
	case events.EventIssueChanged:
		IssueChangesTotal.Inc()
		UpdateComponent("workers", true, "")
	case events.EventStoreReset:
		StoreResetsTotal.Inc()
	case events.EventWorkerStalled:
		WorkerStallsTotal.Inc()
		UpdateComponent("workers", false, event.Message)
	case events.EventFullScanCompleted, events.EventEventScanCompleted:
		UpdateComponent("workers", true, "")
	}
}
