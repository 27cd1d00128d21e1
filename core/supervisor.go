package core

import (
	"time"

	"steppilot/protocol"
)

// Config holds the supervisor's compiled-in policy values.
type Config struct {
	// Safe-current policy applied whenever the motor transitions to
	// stopped or disabled. Keeping these low bounds the thermal risk of
	// sustained current into an idle or stalled coil.
	SafeRunCurrent  uint8 // percent
	SafeHoldCurrent uint8 // percent

	// Direction-reversal self-test: while moving, autonomously negate the
	// velocity every ReversalInterval. Used for mechanical exercising only
	// and disabled by default.
	ReversalSelfTest bool
	ReversalInterval time.Duration

	Homing HomingConfig
}

// DefaultConfig returns the production policy values.
func DefaultConfig() Config {
	return Config{
		SafeRunCurrent:   10,
		SafeHoldCurrent:  5,
		ReversalSelfTest: false,
		ReversalInterval: 3000 * time.Millisecond,
		Homing:           DefaultHomingConfig(),
	}
}

// MotorState is the supervisor-owned motion state. It is mutated only by
// command handlers and the homing routine, all on the single control
// goroutine.
type MotorState struct {
	Enabled      bool
	Moving       bool
	Velocity     int32 // microsteps per second, signed
	LastReversal time.Time
}

// Supervisor owns the motor state and applies validated host commands to
// the driver. All validation happens before any hardware effect.
type Supervisor struct {
	driver DriverHAL
	diag   DiagReader
	clock  Clock
	cfg    Config
	state  MotorState
}

// NewSupervisor builds a supervisor around a driver, the stall-indicator
// input, and a clock. A nil diag reader is treated as never asserted.
func NewSupervisor(driver DriverHAL, diag DiagReader, clock Clock, cfg Config) *Supervisor {
	if diag == nil {
		diag = func() bool { return false }
	}
	return &Supervisor{
		driver: driver,
		diag:   diag,
		clock:  clock,
		cfg:    cfg,
	}
}

// State returns a copy of the current motor state.
func (s *Supervisor) State() MotorState {
	return s.state
}

// ReadStall samples both stall inputs.
func (s *Supervisor) ReadStall() StallReading {
	return StallReading{
		SGResult: s.driver.GetStallGuardResult(),
		Diag:     s.diag(),
	}
}

// Dispatch validates and applies one decoded command, returning exactly one
// response. Validation failures never touch the driver.
func (s *Supervisor) Dispatch(cmd protocol.Command) protocol.Response {
	switch cmd.Code {
	case protocol.CmdEnable:
		return s.handleEnable(cmd)
	case protocol.CmdSetHardwareEnablePin:
		return s.handleSetHardwareEnablePin(cmd)
	case protocol.CmdHardwareDisabled:
		return s.handleHardwareDisabled()
	case protocol.CmdEnableAnalogCurrentScaling:
		s.driver.EnableAnalogCurrentScaling()
		return protocol.OK("analog current scaling enabled")
	case protocol.CmdDisableAutomaticCurrentScaling:
		s.driver.DisableAutomaticCurrentScaling()
		return protocol.OK("automatic current scaling disabled")
	case protocol.CmdEnableAutomaticCurrentScaling:
		s.driver.EnableAutomaticCurrentScaling()
		return protocol.OK("automatic current scaling enabled")
	case protocol.CmdEnableAutomaticGradientAdaptation:
		s.driver.EnableAutomaticGradientAdaptation()
		return protocol.OK("automatic gradient adaptation enabled")
	case protocol.CmdSetPwmOffset:
		return s.handleSetPwmOffset(cmd)
	case protocol.CmdSetPwmGradient:
		return s.handleSetPwmGradient(cmd)
	case protocol.CmdSetRunCurrent:
		return s.handleSetRunCurrent(cmd)
	case protocol.CmdSetHoldCurrent:
		return s.handleSetHoldCurrent(cmd)
	case protocol.CmdSetStandstillMode:
		return s.handleSetStandstillMode(cmd)
	case protocol.CmdSetStallGuardThreshold:
		return s.handleSetStallGuardThreshold(cmd)
	case protocol.CmdSetMicrostepsPerStep:
		return s.handleSetMicrostepsPerStep(cmd)
	case protocol.CmdSetMicrostepsPerStepPowerOfTwo:
		return s.handleSetMicrostepsPerStepPowerOfTwo(cmd)
	case protocol.CmdMoveAtVelocity:
		return s.handleMoveAtVelocity(cmd)
	case protocol.CmdMoveUsingStepDirInterface:
		s.driver.MoveUsingStepDirInterface()
		return protocol.OK("step/dir interface selected")
	case protocol.CmdIsSetupAndCommunicating:
		return s.handleIsSetupAndCommunicating()
	case protocol.CmdSetReplyDelay:
		return s.handleSetReplyDelay(cmd)
	case protocol.CmdGetStallGuardResult:
		return protocol.OKValue("stall guard result", int64(s.driver.GetStallGuardResult()))
	case protocol.CmdIsStandingStill:
		return s.handleIsStandingStill()
	case protocol.CmdSensorlessHoming:
		return s.handleSensorlessHoming(cmd)
	case protocol.CmdResetToSafeCurrent:
		s.resetToSafeCurrent()
		return protocol.OK("safe current applied")
	default:
		return protocol.Fail("unknown command code " + itoa(int(cmd.Code)))
	}
}

// intInRange extracts an integer value and validates its range. The second
// result is the failure response when validation did not pass.
func intInRange(cmd protocol.Command, name string, min, max int64) (int64, *protocol.Response) {
	v, ok := cmd.IntValue()
	if !ok {
		r := protocol.Fail(name + " expects an integer value")
		return 0, &r
	}
	if v < min || v > max {
		r := protocol.Fail(name + " out of range " + itoa64(min) + ".." +
			itoa64(max) + ": " + itoa64(v))
		return 0, &r
	}
	return v, nil
}

func (s *Supervisor) handleEnable(cmd protocol.Command) protocol.Response {
	v, fail := intInRange(cmd, "enable", 0, 1)
	if fail != nil {
		return *fail
	}

	if v == 1 {
		s.driver.Enable()
		s.state.Enabled = true
		return protocol.OK("driver enabled")
	}

	// Disabling always stops motion and re-applies the safe-current
	// policy, even when the motor was already stopped.
	s.stopMotion()
	s.driver.Disable()
	s.state.Enabled = false
	return protocol.OK("driver disabled")
}

func (s *Supervisor) handleSetHardwareEnablePin(cmd protocol.Command) protocol.Response {
	v, fail := intInRange(cmd, "hardware enable pin", 0, 255)
	if fail != nil {
		return *fail
	}
	s.driver.SetHardwareEnablePin(uint8(v))
	return protocol.OK("hardware enable pin set")
}

func (s *Supervisor) handleHardwareDisabled() protocol.Response {
	if s.driver.HardwareDisabled() {
		return protocol.OKValue("hardware disabled", 1)
	}
	return protocol.OKValue("hardware enabled", 0)
}

func (s *Supervisor) handleSetPwmOffset(cmd protocol.Command) protocol.Response {
	v, fail := intInRange(cmd, "pwm offset", 0, 255)
	if fail != nil {
		return *fail
	}
	s.driver.SetPwmOffset(uint8(v))
	return protocol.OK("pwm offset set")
}

func (s *Supervisor) handleSetPwmGradient(cmd protocol.Command) protocol.Response {
	v, fail := intInRange(cmd, "pwm gradient", 0, 255)
	if fail != nil {
		return *fail
	}
	s.driver.SetPwmGradient(uint8(v))
	return protocol.OK("pwm gradient set")
}

func (s *Supervisor) handleSetRunCurrent(cmd protocol.Command) protocol.Response {
	v, fail := intInRange(cmd, "run current", 0, 100)
	if fail != nil {
		return *fail
	}
	s.driver.SetRunCurrent(uint8(v))
	return protocol.OK("run current set")
}

func (s *Supervisor) handleSetHoldCurrent(cmd protocol.Command) protocol.Response {
	v, fail := intInRange(cmd, "hold current", 0, 100)
	if fail != nil {
		return *fail
	}
	s.driver.SetHoldCurrent(uint8(v))
	return protocol.OK("hold current set")
}

func (s *Supervisor) handleSetStandstillMode(cmd protocol.Command) protocol.Response {
	v, fail := intInRange(cmd, "standstill mode", 0, 3)
	if fail != nil {
		return *fail
	}
	s.driver.SetStandstillMode(StandstillMode(v))
	return protocol.OK("standstill mode set")
}

func (s *Supervisor) handleSetStallGuardThreshold(cmd protocol.Command) protocol.Response {
	v, fail := intInRange(cmd, "stall guard threshold", 0, 255)
	if fail != nil {
		return *fail
	}
	s.driver.SetStallGuardThreshold(uint8(v))
	return protocol.OK("stall guard threshold set")
}

func (s *Supervisor) handleSetMicrostepsPerStep(cmd protocol.Command) protocol.Response {
	v, ok := cmd.IntValue()
	if !ok {
		return protocol.Fail("microsteps per step expects an integer value")
	}
	if v < 1 || v > 64 || v&(v-1) != 0 {
		return protocol.Fail("microsteps per step must be a power of two up to 64: " + itoa64(v))
	}
	s.driver.SetMicrostepsPerStep(uint16(v))
	return protocol.OK("microsteps per step set")
}

func (s *Supervisor) handleSetMicrostepsPerStepPowerOfTwo(cmd protocol.Command) protocol.Response {
	v, fail := intInRange(cmd, "microstep exponent", 0, 6)
	if fail != nil {
		return *fail
	}
	s.driver.SetMicrostepsPerStepPowerOfTwo(uint8(v))
	return protocol.OK("microstep exponent set")
}

// Velocity bounds. The driver's velocity register is signed 24-bit;
// anything wider would truncate into a different speed or direction.
const (
	minVelocity = -1 << 23
	maxVelocity = 1<<23 - 1
)

func (s *Supervisor) handleMoveAtVelocity(cmd protocol.Command) protocol.Response {
	v, fail := intInRange(cmd, "velocity", minVelocity, maxVelocity)
	if fail != nil {
		return *fail
	}

	if v == 0 {
		s.stopMotion()
		return protocol.OK("motion stopped")
	}

	// moving implies enabled; refuse to command motion into a disabled
	// driver rather than silently violating that.
	if !s.state.Enabled {
		return protocol.Fail("driver is disabled, enable before moving")
	}

	s.driver.MoveAtVelocity(int32(v))
	s.state.Moving = true
	s.state.Velocity = int32(v)
	s.state.LastReversal = s.clock.Now()
	return protocol.OK("moving at velocity " + itoa(int(v)))
}

func (s *Supervisor) handleIsSetupAndCommunicating() protocol.Response {
	if s.driver.IsSetupAndCommunicating() {
		return protocol.OKValue("driver setup and communicating", 1)
	}
	return protocol.OKValue("driver not communicating", 0)
}

func (s *Supervisor) handleSetReplyDelay(cmd protocol.Command) protocol.Response {
	v, fail := intInRange(cmd, "reply delay", 0, 15)
	if fail != nil {
		return *fail
	}
	s.driver.SetReplyDelay(uint8(v))
	return protocol.OK("reply delay set")
}

func (s *Supervisor) handleIsStandingStill() protocol.Response {
	if s.driver.StandingStill() {
		return protocol.OKValue("standing still", 1)
	}
	return protocol.OKValue("in motion", 0)
}

func (s *Supervisor) handleSensorlessHoming(cmd protocol.Command) protocol.Response {
	forward, ok := cmd.BoolValue()
	if !ok {
		return protocol.Fail("homing direction expects a boolean or 0/1 value")
	}

	result := s.Home(forward)
	switch result.Reason {
	case HomingBusy:
		return protocol.Fail("busy: motion already in progress")
	case HomingTimeout:
		return protocol.Fail("homing timed out before stall was detected")
	default:
		return protocol.OK("homing complete")
	}
}

// stopMotion commands zero velocity, clears the motion state, and applies
// the safe-current policy. Every path that leaves the motor stopped funnels
// through here so no stop can leave high current into an idle coil.
func (s *Supervisor) stopMotion() {
	s.driver.MoveAtVelocity(0)
	s.state.Moving = false
	s.state.Velocity = 0
	s.resetToSafeCurrent()
}

// resetToSafeCurrent forces the low-current idle policy: reduced run/hold
// current and zeroed PWM tuning offsets.
func (s *Supervisor) resetToSafeCurrent() {
	s.driver.SetRunCurrent(s.cfg.SafeRunCurrent)
	s.driver.SetHoldCurrent(s.cfg.SafeHoldCurrent)
	s.driver.SetPwmOffset(0)
	s.driver.SetPwmGradient(0)
}

// MaintainMotion evaluates the direction-reversal self-test. Called once
// per main-loop iteration; a no-op unless the mode is active and the motor
// is moving.
func (s *Supervisor) MaintainMotion() {
	if !s.cfg.ReversalSelfTest || !s.state.Moving {
		return
	}
	now := s.clock.Now()
	if now.Sub(s.state.LastReversal) < s.cfg.ReversalInterval {
		return
	}
	s.state.Velocity = -s.state.Velocity
	s.state.LastReversal = now
	s.driver.MoveAtVelocity(s.state.Velocity)
	debugPrintln("reversal self-test: velocity " + itoa(int(s.state.Velocity)))
}
