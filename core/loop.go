package core

import (
	"errors"
	"time"

	"steppilot/protocol"
)

// Console is the byte transport the main loop talks to the host over.
// PollLine is non-blocking: it returns false when no complete command line
// has arrived yet.
type Console interface {
	PollLine() ([]byte, bool)
	Write(line []byte) error
}

// Banner is the single line printed when the loop starts. Hosts read it
// after opening the port to confirm the firmware is up.
const Banner = "steppilot stepper supervisor ready"

// DefaultLoopInterval paces the cooperative main loop between iterations.
const DefaultLoopInterval = 100 * time.Millisecond

// Loop is the single-threaded cooperative scheduler. Each iteration
// dispatches at most one host command, evaluates the reversal self-test,
// samples the stall inputs, and emits exactly one status line.
type Loop struct {
	sup      *Supervisor
	console  Console
	clock    Clock
	interval time.Duration

	// One-shot: set when a command was dispatched this iteration, consumed
	// when the status line is emitted.
	pending     protocol.Response
	havePending bool

	// Output budget. Overflow is a programming error (message text too
	// long), handled by the fatal hook, never by truncation.
	lineBudget int
	scratch    []byte
	fatal      func(error)
	halted     bool
}

// NewLoop wires the main loop. fatal is invoked once if response encoding
// overflows the line budget; afterwards the reporting path stays halted.
// A nil fatal falls back to the platform debug writer.
func NewLoop(sup *Supervisor, console Console, clock Clock, fatal func(error)) *Loop {
	if fatal == nil {
		fatal = func(err error) {
			debugPrintln("fatal encoding error: " + err.Error())
		}
	}
	return &Loop{
		sup:        sup,
		console:    console,
		clock:      clock,
		interval:   DefaultLoopInterval,
		lineBudget: protocol.MaxLineLen,
		scratch:    make([]byte, 0, protocol.MaxLineLen),
		fatal:      fatal,
	}
}

// SetInterval overrides the idle pacing between iterations.
func (l *Loop) SetInterval(d time.Duration) {
	l.interval = d
}

// SetLineBudget overrides the configured output-buffer size.
func (l *Loop) SetLineBudget(n int) {
	l.lineBudget = n
}

// Run executes the loop forever. It never returns on firmware targets.
func (l *Loop) Run() {
	l.console.Write(append([]byte(Banner), '\n'))
	for {
		l.RunOnce()
		l.clock.Sleep(l.interval)
	}
}

// RunOnce executes a single loop iteration. Split out for tests and for
// targets that interleave other work.
func (l *Loop) RunOnce() {
	if l.halted {
		return
	}

	if line, ok := l.console.PollLine(); ok {
		l.pending = l.dispatchLine(line)
		l.havePending = true
	}

	l.sup.MaintainMotion()

	reading := l.sup.ReadStall()
	st := protocol.Status{
		Response: protocol.Response{Success: true, Value: -1},
		SGResult: uint32(reading.SGResult),
		Diag:     reading.Diag,
	}
	if l.havePending {
		st.Response = l.pending
		l.havePending = false
	}

	out, err := protocol.AppendStatus(l.scratch[:0], st, l.lineBudget)
	if err != nil {
		// Fail loud and stop: corrupted frames must never reach the host.
		l.halted = true
		l.fatal(err)
		return
	}
	l.console.Write(out)
}

// dispatchLine decodes and dispatches one command line. Decode failures
// short-circuit into a failure response without touching the supervisor.
func (l *Loop) dispatchLine(line []byte) protocol.Response {
	cmd, err := protocol.DecodeCommand(line)
	if err == nil {
		return l.sup.Dispatch(cmd)
	}
	var unknown *protocol.UnknownCodeError
	switch {
	case errors.As(err, &unknown):
		return protocol.Fail(unknown.Error())
	case err == protocol.ErrMissingCommandCode:
		return protocol.Fail("missing CommandCode field")
	default:
		return protocol.Fail("malformed command line")
	}
}
