package protocol

// RxBuffer is a ring buffer that accumulates raw serial bytes and hands out
// complete newline-terminated command lines. The serial reader goroutine
// writes into it; the main loop polls NextLine between iterations.
type RxBuffer struct {
	buf   []byte
	read  int
	write int
	size  int
}

// NewRxBuffer creates an RxBuffer with the given capacity. Capacity should
// comfortably exceed MaxLineLen so a burst of commands cannot stall the
// reader.
func NewRxBuffer(capacity int) *RxBuffer {
	return &RxBuffer{
		buf:  make([]byte, capacity),
		size: capacity,
	}
}

// Write appends data to the buffer, returning the number of bytes stored.
// When the buffer is full the remainder is dropped; the clipped line will
// fail to decode and be reported as a protocol error, which is preferable
// to blocking the serial reader.
func (r *RxBuffer) Write(data []byte) int {
	written := 0
	for _, b := range data {
		next := (r.write + 1) % r.size
		if next == r.read {
			break
		}
		r.buf[r.write] = b
		r.write = next
		written++
	}
	return written
}

// Available returns the number of buffered bytes.
func (r *RxBuffer) Available() int {
	if r.write >= r.read {
		return r.write - r.read
	}
	return r.size - r.read + r.write
}

// NextLine pops one complete line into dst, excluding the newline
// terminator. A trailing carriage return is stripped so both "\n" and
// "\r\n" hosts work. Returns false when no complete line is buffered yet.
// Lines longer than dst are clipped to len(dst).
func (r *RxBuffer) NextLine(dst []byte) (int, bool) {
	end := -1
	for i, pos := 0, r.read; pos != r.write; i, pos = i+1, (pos+1)%r.size {
		if r.buf[pos] == '\n' {
			end = i
			break
		}
	}
	if end < 0 {
		return 0, false
	}

	n := 0
	for i := 0; i < end; i++ {
		b := r.buf[r.read]
		r.read = (r.read + 1) % r.size
		if n < len(dst) {
			dst[n] = b
			n++
		}
	}
	r.read = (r.read + 1) % r.size // consume the newline itself

	if n > 0 && dst[n-1] == '\r' {
		n--
	}
	return n, true
}

// Reset discards all buffered data.
func (r *RxBuffer) Reset() {
	r.read = 0
	r.write = 0
}
