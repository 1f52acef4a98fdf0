/*
Package heartbeat guards a long-running task with a progress deadline.

The runner exists for one failure mode: an upstream endpoint accepts a
request and then never answers, without tripping any HTTP timeout in
the client libraries underneath. A task wrapped in a runner must report
progress as it works; a task that goes quiet past the bound is
cancelled and treated as having produced nothing.

# Core Components

Runner:
  - Generic over the task's result type
  - Runs the task on a helper goroutine with a derived context
  - Checks once per second for completion or a stall
  - Cancels the task after five minutes without a ping
  - A stall returns ok false with no error; task errors propagate
    unchanged; completion observed on the same check as a stall wins

# Usage

	runner := heartbeat.NewRunner[*scan.Result]()

	result, ok, err := runner.Run(ctx, func(ctx context.Context, ping func()) (*scan.Result, error) {
		return scanner.ScanOwner(ctx, owner, ping)
	})
	if err != nil {
		return err
	}
	if !ok {
		// the scan stalled, treat this tick as uninformative
	}

# Integration Points

  - pkg/scheduler: wraps every event-scan run; a stalled scan yields no
    new information for the tick
  - pkg/scan: pings after each feed page it finishes

# See Also

  - pkg/worker: the per-worker watchdog, which guards individual queue
    units on a shorter bound
*/
package heartbeat
