package core

import "time"

// HomingReason explains a homing outcome.
type HomingReason uint8

const (
	HomingSuccess HomingReason = iota
	HomingTimeout
	HomingBusy
)

// HomingResult is created and consumed within a single homing invocation;
// it is never persisted across commands.
type HomingResult struct {
	Succeeded bool
	Reason    HomingReason
}

// HomingConfig holds the sensorless-homing policy values.
type HomingConfig struct {
	Threshold       uint8         // stall-guard sensitivity during the seek
	Velocity        int32         // seek speed, microsteps per second
	BackoffVelocity int32         // backoff speed, microsteps per second
	Backoff         time.Duration // backoff drive duration
	Timeout         time.Duration // give up seeking after this long
	PollInterval    time.Duration // stall-fusion sampling cadence
}

// DefaultHomingConfig returns the production homing parameters.
func DefaultHomingConfig() HomingConfig {
	return HomingConfig{
		Threshold:       10,
		Velocity:        20000,
		BackoffVelocity: 10000,
		Backoff:         200 * time.Millisecond,
		Timeout:         5000 * time.Millisecond,
		PollInterval:    10 * time.Millisecond,
	}
}

// Home drives the motor in the requested direction until the fused stall
// predicate fires, then backs off for a fixed duration. It blocks the
// control goroutine for up to Timeout+Backoff; no other command is serviced
// meanwhile, which is why callers must reject motion commands first.
//
// Home leaves the stall-guard threshold and currents as configured for the
// seek. Callers that want the idle policy back must issue
// ResetToSafeCurrent afterward; the routine deliberately does not do it.
func (s *Supervisor) Home(forward bool) HomingResult {
	if s.state.Moving {
		return HomingResult{Succeeded: false, Reason: HomingBusy}
	}

	dir := int32(1)
	if !forward {
		dir = -1
	}
	cfg := s.cfg.Homing

	s.driver.SetStallGuardThreshold(cfg.Threshold)
	s.driver.Enable()
	s.state.Enabled = true
	s.driver.MoveAtVelocity(dir * cfg.Velocity)
	s.state.Moving = true
	s.state.Velocity = dir * cfg.Velocity
	debugPrintln("homing: seeking at " + itoa(int(dir*cfg.Velocity)))

	start := s.clock.Now()
	stalled := false
	for s.clock.Now().Sub(start) < cfg.Timeout {
		if s.ReadStall().Stalled() {
			stalled = true
			break
		}
		s.clock.Sleep(cfg.PollInterval)
	}

	if !stalled {
		// The stall was never confirmed, so reversing could be unsafe or
		// meaningless. Just stop.
		s.driver.MoveAtVelocity(0)
		s.state.Moving = false
		s.state.Velocity = 0
		debugPrintln("homing: timed out")
		return HomingResult{Succeeded: false, Reason: HomingTimeout}
	}

	s.driver.MoveAtVelocity(0)
	s.driver.MoveAtVelocity(-dir * cfg.BackoffVelocity)
	s.clock.Sleep(cfg.Backoff)
	s.driver.MoveAtVelocity(0)
	s.state.Moving = false
	s.state.Velocity = 0
	debugPrintln("homing: stall found, backed off")
	return HomingResult{Succeeded: true, Reason: HomingSuccess}
}
