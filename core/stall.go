package core

// StallRegisterThreshold is the stall-guard magnitude at or below which the
// motor is considered stalled. Low magnitudes mean high mechanical load.
const StallRegisterThreshold = 480

// StallReading is one fused sample of the two stall inputs: the driver's
// stall-guard register and the dedicated DIAG signal level. Readings are
// recomputed on demand and never persisted.
type StallReading struct {
	SGResult uint16
	Diag     bool
}

// Stalled reports the fused stall predicate: either input alone declares
// the stall.
func (r StallReading) Stalled() bool {
	return r.SGResult <= StallRegisterThreshold || r.Diag
}
