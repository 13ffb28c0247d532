package progress

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultHeartbeatPeriod is how often the background worker emits a
// liveness event during the long evaluation sub-step.
const DefaultHeartbeatPeriod = 30 * time.Second

// DefaultJoinTimeout bounds how long Stop waits for the worker to exit.
const DefaultJoinTimeout = 5 * time.Second

// Heartbeat is a background worker with a strictly scoped lifetime: started
// immediately before the one long-running evaluation sub-step and stopped on
// every exit path. It holds no state beyond a stop flag and a counter.
type Heartbeat struct {
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	beats    atomic.Int64
}

// StartHeartbeat launches the worker. beat is invoked once per period with
// the 1-based beat count until Stop is called.
func StartHeartbeat(period time.Duration, beat func(count int)) *Heartbeat {
	if period <= 0 {
		period = DefaultHeartbeatPeriod
	}
	h := &Heartbeat{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go func() {
		defer close(h.done)
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-h.stop:
				return
			case <-ticker.C:
				count := int(h.beats.Add(1))
				if beat != nil {
					beat(count)
				}
			}
		}
	}()
	return h
}

// Stop signals the worker and joins it with a bounded timeout. It is safe to
// call more than once. The second return reports whether the worker exited
// within the timeout.
func (h *Heartbeat) Stop(joinTimeout time.Duration) (int, bool) {
	if h == nil {
		return 0, true
	}
	if joinTimeout <= 0 {
		joinTimeout = DefaultJoinTimeout
	}
	h.stopOnce.Do(func() { close(h.stop) })

	timer := time.NewTimer(joinTimeout)
	defer timer.Stop()
	select {
	case <-h.done:
		return int(h.beats.Load()), true
	case <-timer.C:
		return int(h.beats.Load()), false
	}
}

// Beats returns the number of heartbeats emitted so far.
func (h *Heartbeat) Beats() int {
	if h == nil {
		return 0
	}
	return int(h.beats.Load())
}
