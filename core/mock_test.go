package core

import (
	"time"
)

// mockDriver records every capability call so tests can assert that
// validation failures produce zero hardware effects and that motion
// sequences happen in the exact expected order.
type mockDriver struct {
	calls []string

	sgResult     func() uint16
	standstill   bool
	hwDisabled   bool
	setupHealthy bool
}

func newMockDriver() *mockDriver {
	return &mockDriver{
		sgResult:     func() uint16 { return 1023 },
		setupHealthy: true,
	}
}

func (m *mockDriver) record(call string) {
	m.calls = append(m.calls, call)
}

// callsNamed returns the arguments of every recorded call with the given
// name, in order.
func (m *mockDriver) callsNamed(name string) []string {
	var out []string
	for _, c := range m.calls {
		if len(c) > len(name) && c[:len(name)] == name && c[len(name)] == '(' {
			out = append(out, c[len(name)+1:len(c)-1])
		}
	}
	return out
}

func (m *mockDriver) Enable()                      { m.record("Enable()") }
func (m *mockDriver) Disable()                     { m.record("Disable()") }
func (m *mockDriver) SetHardwareEnablePin(p uint8) { m.record("SetHardwareEnablePin(" + itoa(int(p)) + ")") }
func (m *mockDriver) HardwareDisabled() bool       { m.record("HardwareDisabled()"); return m.hwDisabled }
func (m *mockDriver) SetRunCurrent(p uint8)        { m.record("SetRunCurrent(" + itoa(int(p)) + ")") }
func (m *mockDriver) SetHoldCurrent(p uint8)       { m.record("SetHoldCurrent(" + itoa(int(p)) + ")") }
func (m *mockDriver) SetPwmOffset(v uint8)         { m.record("SetPwmOffset(" + itoa(int(v)) + ")") }
func (m *mockDriver) SetPwmGradient(v uint8)       { m.record("SetPwmGradient(" + itoa(int(v)) + ")") }
func (m *mockDriver) SetStandstillMode(mode StandstillMode) {
	m.record("SetStandstillMode(" + itoa(int(mode)) + ")")
}
func (m *mockDriver) SetStallGuardThreshold(v uint8) {
	m.record("SetStallGuardThreshold(" + itoa(int(v)) + ")")
}
func (m *mockDriver) EnableAnalogCurrentScaling()    { m.record("EnableAnalogCurrentScaling()") }
func (m *mockDriver) DisableAutomaticCurrentScaling() { m.record("DisableAutomaticCurrentScaling()") }
func (m *mockDriver) EnableAutomaticCurrentScaling()  { m.record("EnableAutomaticCurrentScaling()") }
func (m *mockDriver) EnableAutomaticGradientAdaptation() {
	m.record("EnableAutomaticGradientAdaptation()")
}
func (m *mockDriver) SetMicrostepsPerStep(n uint16) {
	m.record("SetMicrostepsPerStep(" + itoa(int(n)) + ")")
}
func (m *mockDriver) SetMicrostepsPerStepPowerOfTwo(e uint8) {
	m.record("SetMicrostepsPerStepPowerOfTwo(" + itoa(int(e)) + ")")
}
func (m *mockDriver) MoveAtVelocity(v int32)       { m.record("MoveAtVelocity(" + itoa(int(v)) + ")") }
func (m *mockDriver) MoveUsingStepDirInterface()   { m.record("MoveUsingStepDirInterface()") }
func (m *mockDriver) SetReplyDelay(v uint8)        { m.record("SetReplyDelay(" + itoa(int(v)) + ")") }
func (m *mockDriver) IsSetupAndCommunicating() bool {
	m.record("IsSetupAndCommunicating()")
	return m.setupHealthy
}
func (m *mockDriver) GetStallGuardResult() uint16 {
	m.record("GetStallGuardResult()")
	return m.sgResult()
}
func (m *mockDriver) StandingStill() bool         { m.record("StandingStill()"); return m.standstill }

// fakeClock is a manually advanced clock. Sleep moves time forward, so the
// blocking homing routine runs instantly in tests.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(0, 0)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(d time.Duration) { c.now = c.now.Add(d) }

func (c *fakeClock) elapsedSince(t time.Time) time.Duration { return c.now.Sub(t) }
