// internal/scheduler/scheduler.go
// Package scheduler provides the self-correcting periodic executor that
// drives the collection tick.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/Spin-gaming/webrtcperf/internal/logging"
)

// Callback is the function invoked on every tick. The supplied time is the
// tick start. Errors are logged and never stop the schedule.
type Callback func(ctx context.Context, now time.Time) error

// Scheduler invokes a callback at a target interval, compensating for the
// callback's own execution latency. Ticks are strictly serialized: the next
// tick is only armed after the previous callback has returned, so two
// invocations can never be in flight at once. Sustained callback overruns
// shift the schedule rather than stack invocations.
type Scheduler struct {
	interval time.Duration
	callback Callback

	mu     sync.Mutex
	stopCh chan struct{}
	doneCh chan struct{}
}

// New returns a stopped Scheduler ticking every interval.
func New(interval time.Duration, callback Callback) *Scheduler {
	return &Scheduler{
		interval: interval,
		callback: callback,
	}
}

// Start begins the periodic schedule. The first invocation happens one
// interval after Start. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.run(s.stopCh, s.doneCh)
}

// Stop cancels the pending tick and waits for an in-flight callback to
// return. Calling Stop on a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	<-s.doneCh
	s.stopCh = nil
	s.doneCh = nil
}

func (s *Scheduler) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	var last time.Time
	var errorSum time.Duration
	delay := s.interval

	for {
		timer := time.NewTimer(delay)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		now := time.Now()
		if !last.IsZero() {
			errorSum += clampDuration(now.Sub(last)-s.interval, s.interval)
			errorSum = clampDuration(errorSum, s.interval)
		}
		last = now
		// Halving the accumulated error avoids oscillating around the
		// target interval.
		delay = s.interval - errorSum/2
		if delay < 0 {
			delay = 0
		}

		s.invoke(now)
	}
}

func (s *Scheduler) invoke(now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			logging.LogEvent("[SCHEDULER] tick callback panic: %v", r)
		}
	}()
	start := time.Now()
	if err := s.callback(context.Background(), now); err != nil {
		logging.LogEvent("[SCHEDULER] tick callback error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > s.interval {
		logging.LogEvent("[SCHEDULER] tick took %v, longer than the %v interval", elapsed, s.interval)
	}
}

func clampDuration(d, limit time.Duration) time.Duration {
	if d > limit {
		return limit
	}
	if d < -limit {
		return -limit
	}
	return d
}
