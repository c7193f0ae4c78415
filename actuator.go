package main

import (
	"sync"
	"sync/atomic"
	"time"
)

// Actuator owns the servo and serialises its motion: at most one pattern
// plays at a time, and a trigger arriving mid-motion is dropped, not queued.
// Overlapping motions would fight the mechanism, so this is the one piece of
// locking the whole system needs.
type Actuator struct {
	servo   ServoDriver
	pattern StrikePattern
	rest    int
	logger  *EventLogger

	state atomic.Int32 // ActuatorState

	mu   sync.Mutex
	done chan struct{} // closed when the current motion finishes
}

func NewActuator(servo ServoDriver, cfg ServoConfig, logger *EventLogger) *Actuator {
	return &Actuator{
		servo:   servo,
		pattern: cfg.strikePattern(),
		rest:    cfg.RestAngle,
		logger:  logger,
	}
}

// State reports Idle or Striking.
func (a *Actuator) State() ActuatorState {
	return ActuatorState(a.state.Load())
}

// Home moves the servo to its rest angle. Called once at startup so the
// first strike sweeps from a known position.
func (a *Actuator) Home() error {
	return a.servo.SetAngle(a.rest)
}

// Strike plays the configured strike motion. It reports whether the trigger
// was accepted; false means a motion was already in flight and the trigger
// was dropped.
func (a *Actuator) Strike() bool {
	return a.Play(a.pattern)
}

// Play runs an arbitrary motion sequence under the same single-motion rule
// as Strike. The motion runs asynchronously and always to completion; there
// is no cancellation.
func (a *Actuator) Play(p StrikePattern) bool {
	if len(p.Steps) == 0 {
		return false
	}
	if !a.state.CompareAndSwap(int32(ActuatorIdle), int32(ActuatorStriking)) {
		a.logger.Log("strike dropped: motion in flight")
		return false
	}
	done := make(chan struct{})
	a.mu.Lock()
	a.done = done
	a.mu.Unlock()
	go a.run(p, done)
	return true
}

func (a *Actuator) run(p StrikePattern, done chan struct{}) {
	defer close(done)
	defer a.state.Store(int32(ActuatorIdle))
	for _, step := range p.Steps {
		if err := a.servo.SetAngle(step.Angle); err != nil {
			// No recovery path is defined for actuator faults; log and keep
			// walking the sequence so the state machine still completes.
			a.logger.Log("servo write failed at %d degrees: %v", step.Angle, err)
		}
		time.Sleep(step.Hold)
	}
}

// Wait blocks until the most recently accepted motion finishes. Returns
// immediately if nothing was ever played.
func (a *Actuator) Wait() {
	a.mu.Lock()
	done := a.done
	a.mu.Unlock()
	if done != nil {
		<-done
	}
}
