package core

// Align moves buf[start:start+n] right by 0..3 bytes so that it begins on a
// 4-byte boundary of buf and returns the new start. buf must have room for
// the shift past the payload. Bytes are copied from the end so the overlap
// is never overwritten before it is read.
func Align(buf []byte, start, n int) int {
	shift := (4 - start%4) % 4
	if shift == 0 {
		return start
	}
	for i := start + n - 1; i >= start; i-- {
		buf[i+shift] = buf[i]
	}
	return start + shift
}
