// Package stepper is the host-side client for the supervisor firmware. It
// speaks the line-delimited JSON command protocol over a serial port and
// exposes one typed method per command code.
package stepper

import (
	"bufio"
	"errors"
	"fmt"
	"time"

	"steppilot/host/serial"
	"steppilot/protocol"
)

// ErrNoResponse is returned when the firmware sent nothing before the read
// timed out or the stream ended.
var ErrNoResponse = errors.New("no response from firmware")

// Client drives one supervisor firmware over a serial port.
//
// The firmware interleaves unsolicited status reports with command
// responses. Status reports carry an empty message; responses always set
// one, which is how the client tells them apart.
type Client struct {
	port   serial.Port
	reader *bufio.Reader

	// LastStatus is updated from every status report skipped while
	// waiting for a response.
	LastStatus protocol.Status
}

// Connect opens the port and waits for the firmware boot banner. The
// firmware resets when the port opens on most boards, so the banner doubles
// as the ready signal.
func Connect(cfg *serial.Config) (*Client, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}

	c := New(port)
	// Give the board time to come out of reset before expecting output.
	time.Sleep(2 * time.Second)
	if _, err := c.reader.ReadString('\n'); err != nil {
		port.Close()
		return nil, fmt.Errorf("no boot banner: %w", err)
	}
	return c, nil
}

// New wraps an already-open port. Used by tests and by callers that manage
// the banner themselves.
func New(port serial.Port) *Client {
	return &Client{
		port:   port,
		reader: bufio.NewReader(port),
	}
}

// Close closes the underlying port.
func (c *Client) Close() error {
	return c.port.Close()
}

// Do sends one command and returns the firmware's response to it,
// skipping any interleaved bare status reports.
func (c *Client) Do(cmd protocol.Command) (protocol.Response, error) {
	line, err := protocol.AppendCommand(nil, cmd)
	if err != nil {
		return protocol.Response{}, err
	}
	if _, err := c.port.Write(line); err != nil {
		return protocol.Response{}, fmt.Errorf("write command: %w", err)
	}

	for {
		raw, err := c.reader.ReadString('\n')
		if err != nil {
			return protocol.Response{}, fmt.Errorf("%w: %v", ErrNoResponse, err)
		}

		resp, err := protocol.DecodeResponse([]byte(raw))
		if err != nil {
			// Noise on the line; keep waiting for a parseable reply.
			continue
		}
		if resp.Message == "" {
			if st, err := protocol.DecodeStatus([]byte(raw)); err == nil {
				c.LastStatus = st
			}
			continue
		}
		return resp, nil
	}
}

func (c *Client) doInt(code protocol.CommandCode, v int64) (protocol.Response, error) {
	return c.Do(protocol.NewIntCommand(code, v))
}

func (c *Client) doBare(code protocol.CommandCode) (protocol.Response, error) {
	return c.Do(protocol.NewCommand(code))
}

// Enable enables or disables the stepper driver.
func (c *Client) Enable(enable bool) (protocol.Response, error) {
	v := int64(0)
	if enable {
		v = 1
	}
	return c.doInt(protocol.CmdEnable, v)
}

// Disable disables the stepper driver.
func (c *Client) Disable() (protocol.Response, error) {
	return c.doInt(protocol.CmdEnable, 0)
}

// SetHardwareEnablePin selects the GPIO wired to the driver's EN input.
func (c *Client) SetHardwareEnablePin(pin uint8) (protocol.Response, error) {
	return c.doInt(protocol.CmdSetHardwareEnablePin, int64(pin))
}

// HardwareDisabled reports whether the driver hardware is disabled.
func (c *Client) HardwareDisabled() (bool, error) {
	resp, err := c.doBare(protocol.CmdHardwareDisabled)
	if err != nil {
		return false, err
	}
	return resp.Value == 1, nil
}

// EnableAnalogCurrentScaling enables analog current scaling.
func (c *Client) EnableAnalogCurrentScaling() (protocol.Response, error) {
	return c.doBare(protocol.CmdEnableAnalogCurrentScaling)
}

// DisableAutomaticCurrentScaling disables automatic current scaling.
func (c *Client) DisableAutomaticCurrentScaling() (protocol.Response, error) {
	return c.doBare(protocol.CmdDisableAutomaticCurrentScaling)
}

// EnableAutomaticCurrentScaling enables automatic current scaling.
func (c *Client) EnableAutomaticCurrentScaling() (protocol.Response, error) {
	return c.doBare(protocol.CmdEnableAutomaticCurrentScaling)
}

// EnableAutomaticGradientAdaptation enables automatic gradient adaptation.
func (c *Client) EnableAutomaticGradientAdaptation() (protocol.Response, error) {
	return c.doBare(protocol.CmdEnableAutomaticGradientAdaptation)
}

// SetPwmOffset sets the PWM offset (0-255).
func (c *Client) SetPwmOffset(v uint8) (protocol.Response, error) {
	return c.doInt(protocol.CmdSetPwmOffset, int64(v))
}

// SetPwmGradient sets the PWM gradient (0-255).
func (c *Client) SetPwmGradient(v uint8) (protocol.Response, error) {
	return c.doInt(protocol.CmdSetPwmGradient, int64(v))
}

// SetRunCurrent sets the run current percentage (0-100).
func (c *Client) SetRunCurrent(percent uint8) (protocol.Response, error) {
	return c.doInt(protocol.CmdSetRunCurrent, int64(percent))
}

// SetHoldCurrent sets the hold current percentage (0-100).
func (c *Client) SetHoldCurrent(percent uint8) (protocol.Response, error) {
	return c.doInt(protocol.CmdSetHoldCurrent, int64(percent))
}

// SetStandstillMode sets the coil behavior at standstill (0-3).
func (c *Client) SetStandstillMode(mode uint8) (protocol.Response, error) {
	return c.doInt(protocol.CmdSetStandstillMode, int64(mode))
}

// SetStallGuardThreshold sets the stall-guard sensitivity (0-255).
func (c *Client) SetStallGuardThreshold(v uint8) (protocol.Response, error) {
	return c.doInt(protocol.CmdSetStallGuardThreshold, int64(v))
}

// SetMicrostepsPerStep sets the microstep divisor (power of two).
func (c *Client) SetMicrostepsPerStep(n uint16) (protocol.Response, error) {
	return c.doInt(protocol.CmdSetMicrostepsPerStep, int64(n))
}

// SetMicrostepsPerStepPowerOfTwo sets the divisor by exponent (0-6).
func (c *Client) SetMicrostepsPerStepPowerOfTwo(e uint8) (protocol.Response, error) {
	return c.doInt(protocol.CmdSetMicrostepsPerStepPowerOfTwo, int64(e))
}

// MoveAtVelocity commands velocity-mode motion in signed microsteps per
// second. Zero stops the motor.
func (c *Client) MoveAtVelocity(v int32) (protocol.Response, error) {
	return c.doInt(protocol.CmdMoveAtVelocity, int64(v))
}

// StopMoving stops the motor.
func (c *Client) StopMoving() (protocol.Response, error) {
	return c.MoveAtVelocity(0)
}

// MoveUsingStepDirInterface switches motion control to step/dir signals.
func (c *Client) MoveUsingStepDirInterface() (protocol.Response, error) {
	return c.doBare(protocol.CmdMoveUsingStepDirInterface)
}

// IsSetupAndCommunicating reports driver communication health.
func (c *Client) IsSetupAndCommunicating() (bool, error) {
	resp, err := c.doBare(protocol.CmdIsSetupAndCommunicating)
	if err != nil {
		return false, err
	}
	return resp.Value == 1, nil
}

// SetReplyDelay configures the driver's reply spacing.
func (c *Client) SetReplyDelay(v uint8) (protocol.Response, error) {
	return c.doInt(protocol.CmdSetReplyDelay, int64(v))
}

// GetStallGuardResult reads the stall-guard magnitude.
func (c *Client) GetStallGuardResult() (uint16, error) {
	resp, err := c.doBare(protocol.CmdGetStallGuardResult)
	if err != nil {
		return 0, err
	}
	if !resp.Success {
		return 0, errors.New(resp.Message)
	}
	return uint16(resp.Value), nil
}

// IsStandingStill reports whether the motor is at standstill.
func (c *Client) IsStandingStill() (bool, error) {
	resp, err := c.doBare(protocol.CmdIsStandingStill)
	if err != nil {
		return false, err
	}
	return resp.Value == 1, nil
}

// SensorlessHoming runs the blocking homing probe in the given direction.
// The firmware services nothing else until it returns, so this can take
// several seconds. Issue ResetToSafeCurrent afterward: homing leaves the
// seek currents configured.
func (c *Client) SensorlessHoming(forward bool) (protocol.Response, error) {
	return c.Do(protocol.NewBoolCommand(protocol.CmdSensorlessHoming, forward))
}

// ResetToSafeCurrent forces the firmware's low-current idle policy.
func (c *Client) ResetToSafeCurrent() (protocol.Response, error) {
	return c.doBare(protocol.CmdResetToSafeCurrent)
}
