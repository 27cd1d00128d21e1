// Package protocol implements the line-delimited JSON command protocol
// spoken between the host and the stepper supervisor firmware.
//
// One command per line, host to firmware:
//
//	{"CommandCode": 9, "Value": 50}
//
// One response or status report per line, firmware to host:
//
//	{"success": true, "message": "run current set", "value": -1}
//
// Status reports reuse the response shape and add sgResult/diag fields;
// hosts that only look at success/message/value ignore them.
package protocol

import (
	"encoding/json"
	"errors"
	"strconv"
)

// CommandCode identifies a host-issued operation. The numeric values are
// part of the wire protocol and must not be reordered.
type CommandCode uint8

const (
	CmdEnable CommandCode = iota
	CmdSetHardwareEnablePin
	CmdHardwareDisabled
	CmdEnableAnalogCurrentScaling
	CmdDisableAutomaticCurrentScaling
	CmdEnableAutomaticCurrentScaling
	CmdEnableAutomaticGradientAdaptation
	CmdSetPwmOffset
	CmdSetPwmGradient
	CmdSetRunCurrent
	CmdSetHoldCurrent
	CmdSetStandstillMode
	CmdSetStallGuardThreshold
	CmdSetMicrostepsPerStep
	CmdSetMicrostepsPerStepPowerOfTwo
	CmdMoveAtVelocity
	CmdMoveUsingStepDirInterface
	CmdIsSetupAndCommunicating
	CmdSetReplyDelay
	CmdGetStallGuardResult
	CmdIsStandingStill
	CmdSensorlessHoming
	CmdResetToSafeCurrent
)

// Output line budgets. A response that would serialize past MaxLineLen is a
// firmware bug (message text too long), not bad input, and is treated as
// fatal by the reporting path.
const (
	MaxLineLen    = 192
	MaxMessageLen = 128
)

var (
	ErrMalformedPayload   = errors.New("malformed command payload")
	ErrMissingCommandCode = errors.New("missing CommandCode field")
	ErrLineOverflow       = errors.New("encoded line exceeds output budget")
)

// UnknownCodeError reports a CommandCode outside the representable range.
// Converting such a value to CommandCode would alias it onto a real command,
// so decoding rejects it and preserves the original value for the failure
// message.
type UnknownCodeError struct {
	Code int64
}

func (e *UnknownCodeError) Error() string {
	return "unknown command code " + strconv.FormatInt(e.Code, 10)
}

// Command is a decoded host command. Value is kept as the raw JSON token;
// the handler for each code asserts the expected shape via IntValue or
// BoolValue.
type Command struct {
	Code  CommandCode
	Value json.RawMessage
}

// NewCommand builds a value-less command (read-only / no-argument codes).
func NewCommand(code CommandCode) Command {
	return Command{Code: code}
}

// NewIntCommand builds a command carrying an integer value.
func NewIntCommand(code CommandCode, v int64) Command {
	raw, _ := json.Marshal(v)
	return Command{Code: code, Value: raw}
}

// NewBoolCommand builds a command carrying a boolean value.
func NewBoolCommand(code CommandCode, v bool) Command {
	raw, _ := json.Marshal(v)
	return Command{Code: code, Value: raw}
}

// HasValue reports whether the command carried a Value field at all.
func (c Command) HasValue() bool {
	return len(c.Value) > 0
}

// IntValue returns the command value as an integer. The second result is
// false when no value was sent or the token is not an integer.
func (c Command) IntValue() (int64, bool) {
	if !c.HasValue() {
		return 0, false
	}
	var v int64
	if err := json.Unmarshal(c.Value, &v); err != nil {
		return 0, false
	}
	return v, true
}

// BoolValue returns the command value as a boolean. JSON true/false and the
// integers 0/1 are both accepted, matching what hosts actually send.
func (c Command) BoolValue() (bool, bool) {
	if !c.HasValue() {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(c.Value, &b); err == nil {
		return b, true
	}
	if v, ok := c.IntValue(); ok && (v == 0 || v == 1) {
		return v == 1, true
	}
	return false, false
}

type commandEnvelope struct {
	CommandCode *int64          `json:"CommandCode"`
	Value       json.RawMessage `json:"Value"`
}

// DecodeCommand parses one inbound line. It fails with ErrMalformedPayload
// when the line is not a JSON object, ErrMissingCommandCode when the
// command-code field is absent, and UnknownCodeError when the code cannot
// fit a CommandCode. Value-shape checking is left to handlers.
func DecodeCommand(line []byte) (Command, error) {
	var env commandEnvelope
	if err := json.Unmarshal(line, &env); err != nil {
		return Command{}, ErrMalformedPayload
	}
	if env.CommandCode == nil {
		return Command{}, ErrMissingCommandCode
	}
	code := *env.CommandCode
	if code < 0 || code > 255 {
		return Command{}, &UnknownCodeError{Code: code}
	}
	return Command{Code: CommandCode(code), Value: env.Value}, nil
}

// AppendCommand serializes a command line, including the newline
// terminator. Used by the host-side client.
func AppendCommand(dst []byte, c Command) ([]byte, error) {
	env := struct {
		CommandCode int64           `json:"CommandCode"`
		Value       json.RawMessage `json:"Value,omitempty"`
	}{CommandCode: int64(c.Code), Value: c.Value}

	line, err := json.Marshal(env)
	if err != nil {
		return dst, err
	}
	dst = append(dst, line...)
	return append(dst, '\n'), nil
}

// Response is the firmware's reply to one command. Value defaults to -1
// when the command has no meaningful numeric result.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Value   int64  `json:"value"`
}

// OK builds a successful response with no numeric result.
func OK(message string) Response {
	return Response{Success: true, Message: message, Value: -1}
}

// OKValue builds a successful response carrying a numeric result.
func OKValue(message string, value int64) Response {
	return Response{Success: true, Message: message, Value: value}
}

// Fail builds a failure response. No hardware effect may precede it.
func Fail(message string) Response {
	return Response{Success: false, Message: message, Value: -1}
}

// Status is the per-iteration outbound report: the last command's response
// (or a bare placeholder) augmented with the fused stall inputs.
type Status struct {
	Response
	SGResult uint32 `json:"sgResult"`
	Diag     bool   `json:"diag"`
}

type statusEnvelope struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Value    int64  `json:"value"`
	SGResult uint32 `json:"sgResult"`
	Diag     bool   `json:"diag"`
}

// AppendResponse serializes a response line into dst. maxLine is the
// configured output budget; a line that would exceed it yields
// ErrLineOverflow with dst unchanged. Overflow is never truncated into a
// corrupted frame.
func AppendResponse(dst []byte, r Response, maxLine int) ([]byte, error) {
	if len(r.Message) > MaxMessageLen {
		return dst, ErrLineOverflow
	}
	line, err := json.Marshal(r)
	if err != nil {
		return dst, err
	}
	if len(line)+1 > maxLine {
		return dst, ErrLineOverflow
	}
	dst = append(dst, line...)
	return append(dst, '\n'), nil
}

// AppendStatus serializes a status line into dst under the same budget
// rules as AppendResponse.
func AppendStatus(dst []byte, st Status, maxLine int) ([]byte, error) {
	if len(st.Message) > MaxMessageLen {
		return dst, ErrLineOverflow
	}
	line, err := json.Marshal(statusEnvelope{
		Success:  st.Success,
		Message:  st.Message,
		Value:    st.Value,
		SGResult: st.SGResult,
		Diag:     st.Diag,
	})
	if err != nil {
		return dst, err
	}
	if len(line)+1 > maxLine {
		return dst, ErrLineOverflow
	}
	dst = append(dst, line...)
	return append(dst, '\n'), nil
}

// DecodeResponse parses one firmware line on the host side. Unknown fields
// (sgResult, diag) are ignored, so it accepts both responses and status
// reports.
func DecodeResponse(line []byte) (Response, error) {
	var r Response
	if err := json.Unmarshal(line, &r); err != nil {
		return Response{}, ErrMalformedPayload
	}
	return r, nil
}

// DecodeStatus parses a full status line including the stall fields.
func DecodeStatus(line []byte) (Status, error) {
	var env statusEnvelope
	if err := json.Unmarshal(line, &env); err != nil {
		return Status{}, ErrMalformedPayload
	}
	return Status{
		Response: Response{Success: env.Success, Message: env.Message, Value: env.Value},
		SGResult: env.SGResult,
		Diag:     env.Diag,
	}, nil
}
