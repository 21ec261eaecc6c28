package timectrl

import (
	"context"
	"sync"
	"time"
)

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime waits one wall-clock Tick between steps.
	RealTime Mode = iota
	// Accelerated steps as fast as listeners return.
	Accelerated
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case RealTime:
		return "realtime"
	case Accelerated:
		return "accelerated"
	default:
		return "unknown"
	}
}

// TimeController drives the grid tick loop and notifies registered
// listeners once per step, in registration order, from a single goroutine.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	currentTime time.Time
	steps       uint64

	listeners []func(time.Time)
}

// NewTimeController constructs a controller.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
	}
}

// Now returns the current simulation time.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// Steps returns how many ticks have been delivered so far.
func (tc *TimeController) Steps() uint64 {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.steps
}

// AddListener registers a callback invoked on every tick. Listeners added
// after Start take effect from the next tick.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	if fn == nil {
		return
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

// Start runs the controller in a separate goroutine until ctx is cancelled
// or, when duration > 0, until duration of simulation time has elapsed.
// The returned channel is closed when the loop exits.
func (tc *TimeController) Start(ctx context.Context, duration time.Duration) <-chan struct{} {
	if ctx == nil {
		ctx = context.Background()
	}
	done := make(chan struct{})
	go func() {
		defer close(done)

		tc.mu.Lock()
		simTime := tc.StartTime
		tc.currentTime = simTime
		tick := tc.Tick
		mode := tc.Mode
		tc.mu.Unlock()

		if tick <= 0 {
			return
		}

		var wait <-chan time.Time
		if mode == RealTime {
			ticker := time.NewTicker(tick)
			defer ticker.Stop()
			wait = ticker.C
		}

		elapsed := time.Duration(0)
		for {
			if duration > 0 && elapsed >= duration {
				return
			}

			if wait != nil {
				select {
				case <-ctx.Done():
					return
				case <-wait:
				}
			} else if ctx.Err() != nil {
				return
			}

			simTime = simTime.Add(tick)
			elapsed += tick

			tc.mu.Lock()
			tc.currentTime = simTime
			tc.steps++
			listeners := append([]func(time.Time){}, tc.listeners...)
			tc.mu.Unlock()

			for _, fn := range listeners {
				fn(simTime)
			}
		}
	}()
	return done
}
