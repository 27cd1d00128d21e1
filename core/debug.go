package core

// DebugWriter is a function type for writing debug messages. Platform code
// injects a writer that prints to its diagnostic channel (defaults to a
// no-op so tests and host builds stay quiet).
type DebugWriter func(string)

var debugPrintln DebugWriter = func(string) {}

// SetDebugWriter sets the platform-specific debug output function.
func SetDebugWriter(writer DebugWriter) {
	if writer == nil {
		writer = func(string) {}
	}
	debugPrintln = writer
}
