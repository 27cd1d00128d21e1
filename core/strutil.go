package core

// itoa converts an integer to a string without pulling in the fmt package,
// which matters for flash footprint on small targets.
func itoa(n int) string {
	return itoa64(int64(n))
}

// itoa64 is the full-width variant. Command payloads are int64 on the wire,
// so echoing them must not truncate on 32-bit targets.
func itoa64(n int64) string {
	if n == 0 {
		return "0"
	}

	// Negate via uint64 so the minimum int64 keeps its magnitude.
	negative := n < 0
	u := uint64(n)
	if negative {
		u = -u
	}

	var buf [20]byte
	pos := len(buf)
	for u > 0 {
		pos--
		buf[pos] = byte('0' + u%10)
		u /= 10
	}
	if negative {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}
