package core

// StandstillMode selects how the driver treats the coils while the motor is
// not moving.
type StandstillMode uint8

const (
	StandstillNormal StandstillMode = iota
	StandstillFreewheeling
	StandstillStrongBraking
	StandstillBraking
)

// DriverHAL is the abstract stepper-driver interface that core code uses.
// Target code registers the real UART-backed TMC2209 implementation; tests
// use a call-recording mock. Every supervisor command maps to exactly one
// of these operations.
type DriverHAL interface {
	// Power and enable control
	Enable()
	Disable()
	SetHardwareEnablePin(pin uint8)
	HardwareDisabled() bool

	// Current and tuning registers
	SetRunCurrent(percent uint8)  // 0-100
	SetHoldCurrent(percent uint8) // 0-100
	SetPwmOffset(v uint8)
	SetPwmGradient(v uint8)
	SetStandstillMode(mode StandstillMode)
	SetStallGuardThreshold(v uint8)
	EnableAnalogCurrentScaling()
	DisableAutomaticCurrentScaling()
	EnableAutomaticCurrentScaling()
	EnableAutomaticGradientAdaptation()

	// Microstepping
	SetMicrostepsPerStep(n uint16)
	SetMicrostepsPerStepPowerOfTwo(exponent uint8)

	// Motion
	MoveAtVelocity(microstepsPerSecond int32)
	MoveUsingStepDirInterface()

	// Communication
	SetReplyDelay(v uint8)
	IsSetupAndCommunicating() bool

	// Status reads
	GetStallGuardResult() uint16
	StandingStill() bool
}

// DiagReader reads the dedicated stall-indicator signal (the driver's DIAG
// output routed to a GPIO input). True means asserted.
type DiagReader func() bool
