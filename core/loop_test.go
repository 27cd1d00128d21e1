package core

import (
	"bytes"
	"testing"

	"steppilot/protocol"
)

// fakeConsole queues inbound lines and records every outbound write.
type fakeConsole struct {
	inbound [][]byte
	written [][]byte
}

func (c *fakeConsole) push(line string) {
	c.inbound = append(c.inbound, []byte(line))
}

func (c *fakeConsole) PollLine() ([]byte, bool) {
	if len(c.inbound) == 0 {
		return nil, false
	}
	line := c.inbound[0]
	c.inbound = c.inbound[1:]
	return line, true
}

func (c *fakeConsole) Write(line []byte) error {
	c.written = append(c.written, bytes.Clone(line))
	return nil
}

func (c *fakeConsole) lastStatus(t *testing.T) protocol.Status {
	t.Helper()
	if len(c.written) == 0 {
		t.Fatal("No status line written")
	}
	st, err := protocol.DecodeStatus(c.written[len(c.written)-1])
	if err != nil {
		t.Fatalf("Status line undecodable: %v", err)
	}
	return st
}

func newTestLoop(t *testing.T) (*Loop, *fakeConsole, *mockDriver) {
	t.Helper()
	drv := newMockDriver()
	clk := newFakeClock()
	sup := NewSupervisor(drv, nil, clk, DefaultConfig())
	console := &fakeConsole{}
	loop := NewLoop(sup, console, clk, nil)
	return loop, console, drv
}

func TestLoopBareStatusOnIdle(t *testing.T) {
	loop, console, drv := newTestLoop(t)
	drv.sgResult = func() uint16 { return 700 }

	loop.RunOnce()
	if len(console.written) != 1 {
		t.Fatalf("Expected one status line, got %d", len(console.written))
	}
	st := console.lastStatus(t)
	if !st.Success || st.Message != "" || st.Value != -1 {
		t.Errorf("Bare status carries response payload: %+v", st)
	}
	if st.SGResult != 700 || st.Diag {
		t.Errorf("Stall fields wrong: %+v", st)
	}
}

func TestLoopAugmentsResponseOnce(t *testing.T) {
	loop, console, _ := newTestLoop(t)

	console.push(`{"CommandCode": 9, "Value": 50}`)
	loop.RunOnce()
	st := console.lastStatus(t)
	if !st.Success || st.Message != "run current set" {
		t.Errorf("Augmented status: %+v", st)
	}

	// One-shot flag: the next idle iteration goes back to a bare line.
	loop.RunOnce()
	st = console.lastStatus(t)
	if st.Message != "" {
		t.Errorf("Second iteration still augmented: %+v", st)
	}
}

func TestLoopMalformedLine(t *testing.T) {
	loop, console, drv := newTestLoop(t)

	console.push("this is not json")
	loop.RunOnce()

	if len(console.written) != 1 {
		t.Fatalf("Expected exactly one response line, got %d", len(console.written))
	}
	st := console.lastStatus(t)
	if st.Success || st.Message != "malformed command line" {
		t.Errorf("Malformed-line status: %+v", st)
	}
	if got := drv.callsNamed("MoveAtVelocity"); len(got) != 0 {
		t.Errorf("Driver touched by malformed line: %v", got)
	}
	// Stall sampling for the status line is the only permitted driver
	// access.
	for _, c := range drv.calls {
		if c != "GetStallGuardResult()" {
			t.Errorf("Unexpected driver call: %s", c)
		}
	}
}

func TestLoopOutOfRangeCommandCode(t *testing.T) {
	// 256 would alias onto Enable and 271 onto MoveAtVelocity if the code
	// were narrowed to uint8. Both must fail, echo the sent value, and
	// leave the driver untouched.
	tests := []struct {
		line string
		want string
	}{
		{`{"CommandCode": 256, "Value": 1}`, "unknown command code 256"},
		{`{"CommandCode": 271, "Value": 5000}`, "unknown command code 271"},
		{`{"CommandCode": -1}`, "unknown command code -1"},
	}

	for _, tt := range tests {
		loop, console, drv := newTestLoop(t)
		console.push(tt.line)
		loop.RunOnce()

		st := console.lastStatus(t)
		if st.Success || st.Message != tt.want {
			t.Errorf("%s: status %+v, want failure %q", tt.line, st, tt.want)
		}
		for _, c := range drv.calls {
			if c != "GetStallGuardResult()" {
				t.Errorf("%s: driver touched: %s", tt.line, c)
			}
		}
	}
}

func TestLoopMissingCommandCode(t *testing.T) {
	loop, console, _ := newTestLoop(t)

	console.push(`{"Value": 1}`)
	loop.RunOnce()
	st := console.lastStatus(t)
	if st.Success || st.Message != "missing CommandCode field" {
		t.Errorf("Missing-code status: %+v", st)
	}
}

func TestLoopProcessesOneCommandPerIteration(t *testing.T) {
	loop, console, drv := newTestLoop(t)

	console.push(`{"CommandCode": 0, "Value": 1}`)
	console.push(`{"CommandCode": 9, "Value": 50}`)

	loop.RunOnce()
	if got := drv.callsNamed("SetRunCurrent"); len(got) != 0 {
		t.Error("Second command dispatched in first iteration")
	}

	loop.RunOnce()
	if got := drv.callsNamed("SetRunCurrent"); len(got) != 1 {
		t.Errorf("Second command not dispatched: %v", drv.calls)
	}
}

func TestLoopFatalEncodingOverflow(t *testing.T) {
	loop, console, _ := newTestLoop(t)

	var fatalErr error
	fatalCalls := 0
	loop.fatal = func(err error) {
		fatalErr = err
		fatalCalls++
	}
	loop.SetLineBudget(16) // too small for any status line

	loop.RunOnce()
	if fatalCalls != 1 || fatalErr != protocol.ErrLineOverflow {
		t.Fatalf("Fatal hook: calls=%d err=%v", fatalCalls, fatalErr)
	}
	if len(console.written) != 0 {
		t.Error("Truncated or partial line reached the console")
	}

	// The reporting path stays halted; nothing further is emitted and the
	// hook does not fire again.
	loop.RunOnce()
	loop.RunOnce()
	if fatalCalls != 1 || len(console.written) != 0 {
		t.Errorf("Loop kept running after fatal: calls=%d written=%d", fatalCalls, len(console.written))
	}
}
