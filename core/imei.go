package core

import "errors"

// IMEI layout inside the Intel OTP dump returned by flash.ReadOTP.
const (
	imeiOTPOffset = 8 // user protection register, words 0x85..0x88
	imeiWords     = 4
	imeiDigits    = 14

	// IMEIReplySize is the length of the packed READ_IMEI reply.
	IMEIReplySize = 9
	imeiLength    = 0x08 // identity length byte
	imeiType      = 0x0A // odd digit count, type IMEI
)

// ErrIMEIInvalid is returned when the OTP dump is too short to hold the
// user protection register.
var ErrIMEIInvalid = errors.New("core: OTP does not contain a valid IMEI")

// PackIMEI builds the READ_IMEI reply from the user protection register of an
// Intel OTP dump. The register holds 14 BCD digits, big-endian per word and
// masked with the matching UID word. The reply is the 3GPP mobile identity
// layout: a length byte, the type nibble, then the digits low nibble first.
// The check digit nibble is always 0; hosts compute it.
func PackIMEI(otp []byte, uid [8]uint16) ([]byte, error) {
	if len(otp) < imeiOTPOffset+2*imeiWords {
		return nil, ErrIMEIInvalid
	}

	var packed [2 * imeiWords]byte
	for i := 0; i < imeiWords; i++ {
		w := uint16(otp[imeiOTPOffset+2*i]) | uint16(otp[imeiOTPOffset+2*i+1])<<8
		packed[2*i] = byte(w>>8) ^ byte(uid[i])
		packed[2*i+1] = byte(w) ^ byte(uid[i]>>8)
	}

	resp := make([]byte, IMEIReplySize)
	resp[0] = imeiLength
	resp[1] = imeiType
	for i, b := range packed[:imeiDigits/2] {
		resp[1+i] |= b << 4
		resp[2+i] = b >> 4
	}
	return resp, nil
}
