package core

import (
	"testing"
	"time"

	"steppilot/protocol"
)

func TestHomingStallDetected(t *testing.T) {
	drv := newMockDriver()
	clk := newFakeClock()
	sup := NewSupervisor(drv, nil, clk, DefaultConfig())

	// Healthy load until the motor hits the hard stop at t=1200ms.
	start := clk.Now()
	drv.sgResult = func() uint16 {
		if clk.elapsedSince(start) >= 1200*time.Millisecond {
			return 200
		}
		return 1023
	}

	result := sup.Home(true)
	if !result.Succeeded || result.Reason != HomingSuccess {
		t.Fatalf("Home = %+v", result)
	}

	// Seek forward, then exactly stop, reverse backoff, stop.
	moves := drv.callsNamed("MoveAtVelocity")
	want := []string{"20000", "0", "-10000", "0"}
	if len(moves) != len(want) {
		t.Fatalf("MoveAtVelocity sequence = %v, want %v", moves, want)
	}
	for i := range want {
		if moves[i] != want[i] {
			t.Errorf("Move %d = %s, want %s", i, moves[i], want[i])
		}
	}

	// Seek preparation: lowered sensitivity, then enable.
	if got := drv.callsNamed("SetStallGuardThreshold"); len(got) != 1 || got[0] != "10" {
		t.Errorf("SetStallGuardThreshold calls = %v", got)
	}

	st := sup.State()
	if st.Moving || st.Velocity != 0 || !st.Enabled {
		t.Errorf("State after homing: %+v", st)
	}
}

func TestHomingReverseDirection(t *testing.T) {
	drv := newMockDriver()
	clk := newFakeClock()
	sup := NewSupervisor(drv, nil, clk, DefaultConfig())
	drv.sgResult = func() uint16 { return 0 } // stalled immediately

	result := sup.Home(false)
	if !result.Succeeded {
		t.Fatalf("Home = %+v", result)
	}

	moves := drv.callsNamed("MoveAtVelocity")
	want := []string{"-20000", "0", "10000", "0"}
	if len(moves) != len(want) {
		t.Fatalf("MoveAtVelocity sequence = %v, want %v", moves, want)
	}
	for i := range want {
		if moves[i] != want[i] {
			t.Errorf("Move %d = %s, want %s", i, moves[i], want[i])
		}
	}
}

func TestHomingTimeout(t *testing.T) {
	drv := newMockDriver()
	clk := newFakeClock()
	sup := NewSupervisor(drv, nil, clk, DefaultConfig())
	// Stall never asserts.
	drv.sgResult = func() uint16 { return 1023 }

	start := clk.Now()
	result := sup.Home(true)
	if result.Succeeded || result.Reason != HomingTimeout {
		t.Fatalf("Home = %+v", result)
	}

	elapsed := clk.elapsedSince(start)
	timeout := DefaultHomingConfig().Timeout
	poll := DefaultHomingConfig().PollInterval
	if elapsed < timeout || elapsed > timeout+poll {
		t.Errorf("Gave up after %v, want %v (±%v)", elapsed, timeout, poll)
	}

	// Stop without backoff: the stall was never confirmed, so reversing
	// is not allowed.
	moves := drv.callsNamed("MoveAtVelocity")
	want := []string{"20000", "0"}
	if len(moves) != len(want) {
		t.Fatalf("MoveAtVelocity sequence = %v, want %v", moves, want)
	}

	st := sup.State()
	if st.Moving || st.Velocity != 0 {
		t.Errorf("State after timeout: %+v", st)
	}
}

func TestHomingRejectedWhileMoving(t *testing.T) {
	drv := newMockDriver()
	clk := newFakeClock()
	sup := NewSupervisor(drv, nil, clk, DefaultConfig())

	sup.Dispatch(protocol.NewIntCommand(protocol.CmdEnable, 1))
	sup.Dispatch(protocol.NewIntCommand(protocol.CmdMoveAtVelocity, 5000))
	stateBefore := sup.State()
	callsBefore := len(drv.calls)

	resp := sup.Dispatch(protocol.NewBoolCommand(protocol.CmdSensorlessHoming, true))
	if resp.Success {
		t.Error("Homing while moving must fail")
	}
	if resp.Message != "busy: motion already in progress" {
		t.Errorf("Message = %q", resp.Message)
	}
	if sup.State() != stateBefore {
		t.Errorf("MotorState changed: %+v != %+v", sup.State(), stateBefore)
	}
	if len(drv.calls) != callsBefore {
		t.Errorf("Driver touched during rejected homing: %v", drv.calls[callsBefore:])
	}
}

func TestHomingDiagPinTriggersStall(t *testing.T) {
	drv := newMockDriver()
	clk := newFakeClock()
	drv.sgResult = func() uint16 { return 1023 } // register never trips

	start := time.Time{}
	diag := func() bool { return clk.now.Sub(start) >= 500*time.Millisecond }
	sup := NewSupervisor(drv, diag, clk, DefaultConfig())
	start = clk.Now()

	result := sup.Home(true)
	if !result.Succeeded {
		t.Fatalf("Home = %+v", result)
	}
	moves := drv.callsNamed("MoveAtVelocity")
	if len(moves) != 4 {
		t.Errorf("Expected full stop/backoff/stop sequence, got %v", moves)
	}
}

func TestHomingCommandResponses(t *testing.T) {
	drv := newMockDriver()
	clk := newFakeClock()
	sup := NewSupervisor(drv, nil, clk, DefaultConfig())
	drv.sgResult = func() uint16 { return 0 }

	resp := sup.Dispatch(protocol.NewBoolCommand(protocol.CmdSensorlessHoming, true))
	if !resp.Success || resp.Message != "homing complete" {
		t.Errorf("Success response: %+v", resp)
	}

	drv.sgResult = func() uint16 { return 1023 }
	resp = sup.Dispatch(protocol.NewIntCommand(protocol.CmdSensorlessHoming, 0))
	if resp.Success || resp.Message != "homing timed out before stall was detected" {
		t.Errorf("Timeout response: %+v", resp)
	}

	resp = sup.Dispatch(protocol.NewCommand(protocol.CmdSensorlessHoming))
	if resp.Success {
		t.Error("Missing direction must fail")
	}
}
