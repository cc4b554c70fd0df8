package core

// itoa converts an integer to a string without using fmt package
// This is a lightweight alternative for embedded systems
func itoa(n int) string {
	if n == 0 {
		return "0"
	}

	negative := n < 0
	if negative {
		n = -n
	}

	// Count digits
	temp := n
	digits := 0
	for temp > 0 {
		digits++
		temp /= 10
	}

	// Add space for negative sign
	if negative {
		digits++
	}

	// Build string from right to left
	buf := make([]byte, digits)
	pos := digits - 1

	for n > 0 {
		buf[pos] = byte('0' + n%10)
		n /= 10
		pos--
	}

	if negative {
		buf[0] = '-'
	}

	return string(buf)
}

// hex32 formats v as "0x" and 8 uppercase digits for debug output
func hex32(v uint32) string {
	return "0x" + string(U32ToHex(v))
}

// cString returns p up to its first NUL or 0xFF byte (erased flash)
func cString(p []byte) []byte {
	for i, b := range p {
		if b == 0x00 || b == 0xFF {
			return p[:i]
		}
	}
	return p
}
