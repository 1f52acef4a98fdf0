package worker

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const (
	// watchdogInterval is how often a watchdog checks its worker's
	// in-flight unit
	watchdogInterval = 15 * time.Second

	// unitTimeout is how long a single unit may run before the watchdog
	// cancels it
	unitTimeout = 2 * time.Minute
)

// watchdog cancels a worker's in-flight unit once it has run for longer
// than unitTimeout. Each worker owns one watchdog; begin and reset
// bracket every unit. onStall, when non-nil, runs after each
// cancellation.
type watchdog struct {
	clock   clockwork.Clock
	logger  zerolog.Logger
	onStall func()

	mu       sync.Mutex
	expireAt time.Time
	cancel   context.CancelFunc
}

func newWatchdog(clock clockwork.Clock, logger zerolog.Logger, onStall func()) *watchdog {
	return &watchdog{clock: clock, logger: logger, onStall: onStall}
}

// begin starts timing a unit. cancel is invoked if the unit is still
// running after unitTimeout.
func (d *watchdog) begin(cancel context.CancelFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.expireAt = d.clock.Now().Add(unitTimeout)
	d.cancel = cancel
}

// reset marks the unit as finished
func (d *watchdog) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.expireAt = time.Time{}
	d.cancel = nil
}

// run checks the in-flight unit every watchdogInterval and cancels it
// once its deadline has passed. The deadline is cleared after firing so
// a unit is cancelled at most once.
func (d *watchdog) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.clock.After(watchdogInterval):
		}

		d.mu.Lock()
		fired := false
		if !d.expireAt.IsZero() && d.clock.Now().After(d.expireAt) {
			d.logger.Warn().Msg("Work unit ran past its deadline, cancelling it")
			if d.cancel != nil {
				d.cancel()
			}
			d.expireAt = time.Time{}
			d.cancel = nil
			fired = true
		}
		d.mu.Unlock()

		if fired && d.onStall != nil {
			d.onStall()
		}
	}
}
