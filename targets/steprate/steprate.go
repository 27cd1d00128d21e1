// Package steprate converts step rates into the operands of the PIO
// pulse-train program. Kept free of hardware imports so the conversion
// math is testable off-target.
package steprate

const (
	// State-machine tick rate: 125MHz system clock behind the /1000
	// divider configured on the state machine.
	TickHz = 125000

	// Fixed instruction cost per pulse in the PIO program (high phase,
	// low phase, and loop bookkeeping), before the programmed delay.
	baseTicks = 10

	// Pulse trains are sized to roughly this many batches per second so
	// a velocity change takes effect within one batch.
	batchesPerSecond = 20
)

// DelayTicks converts a step rate into the 8-bit inter-pulse delay
// operand. Rates past what the operand can express clamp to the nearest
// achievable rate.
func DelayTicks(stepsPerSecond int32) uint8 {
	if stepsPerSecond <= 0 {
		return 0
	}
	d := int32(TickHz)/stepsPerSecond - baseTicks
	if d < 0 {
		d = 0
	}
	if d > 255 {
		d = 255
	}
	return uint8(d)
}

// BatchCount sizes one queued pulse train, clamped to the 16-bit count
// operand and never below a single step.
func BatchCount(stepsPerSecond int32) uint16 {
	n := stepsPerSecond / batchesPerSecond
	if n < 1 {
		n = 1
	}
	if n > 65535 {
		n = 65535
	}
	return uint16(n)
}

// SplitVelocity splits a signed velocity into the PIO direction bit and a
// non-negative step rate.
func SplitVelocity(v int32) (reverse bool, rate int32) {
	if v < 0 {
		return true, -v
	}
	return false, v
}
