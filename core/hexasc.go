package core

const hexDigits = "0123456789ABCDEF"

// U16ToHex returns v as 4 uppercase hex digits.
func U16ToHex(v uint16) []byte {
	out := make([]byte, 4)
	for i := 3; i >= 0; i-- {
		out[i] = hexDigits[v&0x0F]
		v >>= 4
	}
	return out
}

// U32ToHex returns v as 8 uppercase hex digits.
func U32ToHex(v uint32) []byte {
	out := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		out[i] = hexDigits[v&0x0F]
		v >>= 4
	}
	return out
}

// HexEncode returns p as uppercase hex, two digits per byte.
func HexEncode(p []byte) []byte {
	out := make([]byte, 2*len(p))
	for i, b := range p {
		out[2*i] = hexDigits[b>>4]
		out[2*i+1] = hexDigits[b&0x0F]
	}
	return out
}

// HexToU32 parses exactly len(s) hex digits. Both cases are accepted; any
// other character, an empty string or more than 8 digits fail.
func HexToU32(s []byte) (uint32, bool) {
	if len(s) == 0 || len(s) > 8 {
		return 0, false
	}
	var v uint32
	for _, c := range s {
		var d byte
		switch {
		case c >= '0' && c <= '9':
			d = c - '0'
		case c >= 'A' && c <= 'F':
			d = c - 'A' + 10
		case c >= 'a' && c <= 'f':
			d = c - 'a' + 10
		default:
			return 0, false
		}
		v = v<<4 | uint32(d)
	}
	return v, true
}

// hexFields splits "<a>,<b>" with fixed digit counts, as READ and RQRC
// send them.
func hexFields(data []byte, first, second int) (uint32, uint32, bool) {
	if len(data) < first+1+second || data[first] != ',' {
		return 0, 0, false
	}
	a, ok := HexToU32(data[:first])
	if !ok {
		return 0, 0, false
	}
	b, ok := HexToU32(data[first+1 : first+1+second])
	if !ok {
		return 0, 0, false
	}
	return a, b, true
}
