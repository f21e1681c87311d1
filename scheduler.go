package ipsync

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// State is the scheduler's current phase.
type State int32

const (
	// StateIdle means the scheduler is waiting for the next recheck interval.
	StateIdle State = iota
	// StateTicking means a reconciliation pass is in flight.
	StateTicking
	// StateBackoff means the last pass failed and the scheduler is delaying
	// the retry.
	StateBackoff
	// StateTerminated means the scheduler has stopped, either on shutdown or
	// on a fatal failure.
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTicking:
		return "ticking"
	case StateBackoff:
		return "backoff"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// TickFunc runs one reconciliation pass.
type TickFunc func(context.Context) Outcome

func newScheduler(tick TickFunc, interval, maxBackoff time.Duration, logger logrus.FieldLogger) *scheduler {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = interval
	policy.Multiplier = 2
	// deterministic delays keep failure behavior predictable
	policy.RandomizationFactor = 0
	policy.MaxInterval = maxBackoff
	// never give up on transient failures; fatal ones terminate the loop
	policy.MaxElapsedTime = 0
	policy.Reset()
	return &scheduler{
		tick:     tick,
		interval: interval,
		policy:   policy,
		logger:   logger,
	}
}

// scheduler drives one reconciler from a single goroutine, so ticks can
// never overlap: the next timer arming always happens after the current
// pass has returned.
type scheduler struct {
	tick     TickFunc
	interval time.Duration
	policy   *backoff.ExponentialBackOff
	logger   logrus.FieldLogger
	state    atomic.Int32
	attempt  int
}

// State reports the scheduler's current phase.
func (s *scheduler) State() State {
	return State(s.state.Load())
}

func (s *scheduler) setState(st State) {
	s.state.Store(int32(st))
}

// Run ticks immediately, then on every recheck interval, backing off after
// transient failures. It returns nil when ctx is canceled and the fatal
// error when a pass reports one.
func (s *scheduler) Run(ctx context.Context) error {
	s.setState(StateIdle)
	defer s.setState(StateTerminated)

	// no initial wait: validate the record as soon as the process starts
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		s.setState(StateTicking)
		outcome := s.tick(ctx)
		if ctx.Err() != nil && outcome.Kind != FatalFailure {
			return nil
		}

		switch outcome.Kind {
		case NoChangeNeeded:
			s.logger.WithField("ip", outcome.NewIP).Debug("public IP has not changed")
			s.recover()
			s.setState(StateIdle)
			timer.Reset(s.interval)
		case Updated:
			s.logger.WithFields(logrus.Fields{
				"old_ip": outcome.OldIP,
				"new_ip": outcome.NewIP,
			}).Info("record updated")
			s.recover()
			s.setState(StateIdle)
			timer.Reset(s.interval)
		case TransientFailure:
			s.attempt++
			delay := s.policy.NextBackOff()
			s.logger.WithFields(logrus.Fields{
				"reason":   outcome.Err.Error(),
				"attempt":  s.attempt,
				"retry_in": delay,
			}).Warn("reconciliation failed")
			s.setState(StateBackoff)
			timer.Reset(delay)
		case FatalFailure:
			s.logger.WithField("reason", outcome.Err.Error()).Error("reconciliation cannot succeed; terminating")
			return outcome.Err
		}
	}
}

// recover resets the failure counter and backoff after any successful pass,
// logging the restoration distinctly so operators can see it.
func (s *scheduler) recover() {
	if s.attempt > 0 {
		s.logger.WithField("failed_attempts", s.attempt).Info("recovered after transient failures")
	}
	s.attempt = 0
	s.policy.Reset()
}
