//go:build rp2040

package main

import (
	"machine"
	"time"

	"steppilot/core"
)

// TMC2209 drives one TMC2209 over its single-wire UART interface and
// implements core.DriverHAL. Write-only registers are shadowed so field
// updates do not need read-modify-write over the wire.
type TMC2209 struct {
	uart *machine.UART
	addr uint8

	enPin    machine.Pin
	hasEnPin bool

	stepDir *StepDirBackend

	// Shadow registers
	gconf     uint32
	chopconf  uint32
	pwmconf   uint32
	iholdIrun uint32
	slaveconf uint32
}

const uartReplyTimeout = 10 * time.Millisecond

// NewTMC2209 configures the UART and writes the base register setup the
// supervisor expects: UART control of current and microstepping, StealthChop
// with interpolation, and VACTUAL velocity mode idle.
func NewTMC2209(uart *machine.UART, tx, rx machine.Pin, addr uint8) *TMC2209 {
	uart.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       tx,
		RX:       rx,
	})

	d := &TMC2209{
		uart: uart,
		addr: addr,

		gconf:    gconfPdnDisable | gconfMstepRegSelect | gconfMultistepFilt,
		chopconf: 3 | chopconfIntpol, // toff=3, 256 microsteps
		pwmconf:  pwmconfAutoscale | pwmconfAutograd,
	}

	d.writeRegister(regGCONF, d.gconf)
	d.writeRegister(regCHOPCONF, d.chopconf)
	d.writeRegister(regPWMCONF, d.pwmconf)
	d.writeRegister(regTPOWERDOWN, 20)
	d.writeRegister(regVACTUAL, 0)
	return d
}

// AttachStepDir hands the driver a step/dir pulse generator for
// MoveUsingStepDirInterface.
func (d *TMC2209) AttachStepDir(b *StepDirBackend) {
	d.stepDir = b
}

// ---- core.DriverHAL ----

func (d *TMC2209) Enable() {
	d.chopconf = (d.chopconf &^ uint32(chopconfToffMask)) | 3
	d.writeRegister(regCHOPCONF, d.chopconf)
	if d.hasEnPin {
		d.enPin.Low() // EN is active low
	}
}

func (d *TMC2209) Disable() {
	if d.stepDir != nil {
		d.stepDir.Stop()
	}
	d.chopconf &^= uint32(chopconfToffMask)
	d.writeRegister(regCHOPCONF, d.chopconf)
	if d.hasEnPin {
		d.enPin.High()
	}
}

func (d *TMC2209) SetHardwareEnablePin(pin uint8) {
	d.enPin = machine.Pin(pin)
	d.enPin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	d.enPin.High() // start disabled until Enable is commanded
	d.hasEnPin = true
}

func (d *TMC2209) HardwareDisabled() bool {
	ioin, ok := d.readRegister(regIOIN)
	if !ok {
		return true
	}
	return ioin&ioinEnn != 0
}

func (d *TMC2209) SetRunCurrent(percent uint8) {
	d.setCurrentField(irunShift, percent)
}

func (d *TMC2209) SetHoldCurrent(percent uint8) {
	d.setCurrentField(iholdShift, percent)
}

func (d *TMC2209) setCurrentField(shift uint, percent uint8) {
	setting := uint32(percent) * currentMax / 100
	d.iholdIrun = (d.iholdIrun &^ (uint32(0x1F) << shift)) | (setting << shift)
	d.writeRegister(regIHOLDIRUN, d.iholdIrun)
}

func (d *TMC2209) SetPwmOffset(v uint8) {
	d.pwmconf = (d.pwmconf &^ uint32(0xFF<<pwmconfOfsShift)) | (uint32(v) << pwmconfOfsShift)
	d.writeRegister(regPWMCONF, d.pwmconf)
}

func (d *TMC2209) SetPwmGradient(v uint8) {
	d.pwmconf = (d.pwmconf &^ uint32(0xFF<<pwmconfGradShift)) | (uint32(v) << pwmconfGradShift)
	d.writeRegister(regPWMCONF, d.pwmconf)
}

func (d *TMC2209) SetStandstillMode(mode core.StandstillMode) {
	d.pwmconf = (d.pwmconf &^ uint32(pwmconfFreewheelMask)) |
		(uint32(mode) << pwmconfFreewheelShift)
	d.writeRegister(regPWMCONF, d.pwmconf)
}

func (d *TMC2209) SetStallGuardThreshold(v uint8) {
	d.writeRegister(regSGTHRS, uint32(v))
	// StallGuard needs CoolStep gated on; open the velocity window fully.
	d.writeRegister(regTCOOLTHRS, 0xFFFFF)
}

func (d *TMC2209) EnableAnalogCurrentScaling() {
	d.gconf |= gconfIScaleAnalog
	d.writeRegister(regGCONF, d.gconf)
}

func (d *TMC2209) DisableAutomaticCurrentScaling() {
	d.pwmconf &^= uint32(pwmconfAutoscale)
	d.writeRegister(regPWMCONF, d.pwmconf)
}

func (d *TMC2209) EnableAutomaticCurrentScaling() {
	d.pwmconf |= pwmconfAutoscale
	d.writeRegister(regPWMCONF, d.pwmconf)
}

func (d *TMC2209) EnableAutomaticGradientAdaptation() {
	// Gradient adaptation only works with autoscale on.
	d.pwmconf |= pwmconfAutograd | pwmconfAutoscale
	d.writeRegister(regPWMCONF, d.pwmconf)
}

func (d *TMC2209) SetMicrostepsPerStep(n uint16) {
	var exponent uint8
	for n > 1 {
		n >>= 1
		exponent++
	}
	d.SetMicrostepsPerStepPowerOfTwo(exponent)
}

func (d *TMC2209) SetMicrostepsPerStepPowerOfTwo(exponent uint8) {
	// MRES 0 means 256 microsteps, 8 means full step.
	mres := uint32(8-exponent) << chopconfMresShift
	d.chopconf = (d.chopconf &^ uint32(chopconfMresMask)) | mres
	d.writeRegister(regCHOPCONF, d.chopconf)
}

func (d *TMC2209) MoveAtVelocity(microstepsPerSecond int32) {
	// While step/dir mode is active the PIO backend owns pulse
	// generation; VACTUAL stays parked at zero.
	if d.stepDir != nil && d.stepDir.Active() {
		d.stepDir.SetVelocity(microstepsPerSecond)
		return
	}
	d.writeRegister(regVACTUAL, uint32(microstepsPerSecond)&vactualMask)
}

func (d *TMC2209) MoveUsingStepDirInterface() {
	// VACTUAL zero returns step control to the STEP/DIR inputs; from here
	// on velocity commands route through the PIO pulse generator until
	// the driver is disabled.
	d.writeRegister(regVACTUAL, 0)
	if d.stepDir != nil {
		d.stepDir.Activate()
	}
}

func (d *TMC2209) SetReplyDelay(v uint8) {
	d.slaveconf = uint32(v&0x0F) << slaveconfSendDelayShift
	d.writeRegister(regSLAVECONF, d.slaveconf)
}

// IsSetupAndCommunicating rewrites GCONF and checks that the driver's
// interface transmission counter advanced.
func (d *TMC2209) IsSetupAndCommunicating() bool {
	before, ok := d.readRegister(regIFCNT)
	if !ok {
		return false
	}
	d.writeRegister(regGCONF, d.gconf)
	after, ok := d.readRegister(regIFCNT)
	if !ok {
		return false
	}
	return uint8(after) == uint8(before)+1
}

func (d *TMC2209) GetStallGuardResult() uint16 {
	v, ok := d.readRegister(regSGRESULT)
	if !ok {
		return 0
	}
	return uint16(v & sgResultMask)
}

func (d *TMC2209) StandingStill() bool {
	v, ok := d.readRegister(regDRVSTATUS)
	if !ok {
		return false
	}
	return v&drvStatusStst != 0
}

// ---- UART datagrams ----

func (d *TMC2209) writeRegister(reg uint8, value uint32) {
	var buf [8]byte
	buf[0] = 0x05
	buf[1] = d.addr
	buf[2] = reg | 0x80
	buf[3] = byte(value >> 24)
	buf[4] = byte(value >> 16)
	buf[5] = byte(value >> 8)
	buf[6] = byte(value)
	buf[7] = crc8(buf[:7])
	d.uart.Write(buf[:])
	d.drainEcho(len(buf))
}

func (d *TMC2209) readRegister(reg uint8) (uint32, bool) {
	var req [4]byte
	req[0] = 0x05
	req[1] = d.addr
	req[2] = reg
	req[3] = crc8(req[:3])
	d.uart.Write(req[:])
	d.drainEcho(len(req))

	var reply [8]byte
	if !d.readFull(reply[:]) {
		return 0, false
	}
	if reply[0] != 0x05 || reply[2] != reg || crc8(reply[:7]) != reply[7] {
		return 0, false
	}
	return uint32(reply[3])<<24 | uint32(reply[4])<<16 |
		uint32(reply[5])<<8 | uint32(reply[6]), true
}

// drainEcho discards our own transmitted bytes, which the single-wire bus
// loops straight back into the receiver.
func (d *TMC2209) drainEcho(n int) {
	var buf [8]byte
	d.readFull(buf[:n])
}

func (d *TMC2209) readFull(buf []byte) bool {
	deadline := time.Now().Add(uartReplyTimeout)
	for i := range buf {
		for d.uart.Buffered() == 0 {
			if time.Now().After(deadline) {
				return false
			}
			time.Sleep(100 * time.Microsecond)
		}
		b, err := d.uart.ReadByte()
		if err != nil {
			return false
		}
		buf[i] = b
	}
	return true
}

// crc8 computes the TMC UART checksum (x^8 + x^2 + x + 1, LSB first).
func crc8(data []byte) byte {
	var crc byte
	for _, b := range data {
		for i := 0; i < 8; i++ {
			if (crc>>7)^(b&0x01) != 0 {
				crc = (crc << 1) ^ 0x07
			} else {
				crc <<= 1
			}
			b >>= 1
		}
	}
	return crc
}
