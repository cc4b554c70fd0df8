package client

import (
	"github.com/pkg/errors"

	"hitagi/core"
)

// DecodeIMEI renders a packed READ_IMEI reply as 15 decimal digits. The
// device leaves the check digit at 0; see CheckDigit.
func DecodeIMEI(b []byte) (string, error) {
	if len(b) != core.IMEIReplySize {
		// The device sends the reply as text, so a zero byte cuts it short.
		return "", errors.Errorf("client: IMEI reply is %d bytes, want %d", len(b), core.IMEIReplySize)
	}
	if b[0] != 0x08 || b[1]&0x0F != 0x0A {
		return "", errors.Errorf("client: IMEI reply header % X", b[:2])
	}

	nibbles := make([]byte, 0, 15)
	nibbles = append(nibbles, b[1]>>4)
	for _, v := range b[2:] {
		nibbles = append(nibbles, v&0x0F, v>>4)
	}
	digits := make([]byte, 15)
	for i, n := range nibbles[:15] {
		if n > 9 {
			return "", errors.Errorf("client: IMEI digit %d is 0x%X", i+1, n)
		}
		digits[i] = '0' + n
	}
	return string(digits), nil
}

// CheckDigit returns the Luhn check digit for the first 14 digits of imei.
func CheckDigit(imei string) byte {
	body := imei
	if len(body) > 14 {
		body = body[:14]
	}
	sum := 0
	double := true
	for i := len(body) - 1; i >= 0; i-- {
		d := int(body[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return '0' + byte((10-sum%10)%10)
}

// WithCheckDigit replaces the last digit of a 15 digit IMEI with its Luhn
// check digit.
func WithCheckDigit(imei string) string {
	if len(imei) != 15 {
		return imei
	}
	return imei[:14] + string(CheckDigit(imei))
}
