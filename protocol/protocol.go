// Package protocol implements the Motorola Flash Protocol framing
package protocol

import "fmt"

// Version is reported by the RQSW command
const Version = "Hitagi 0.3"

// Control bytes
const (
	NUL = 0x00
	STX = 0x02
	ETX = 0x03
	RS  = 0x1E
)

// Protocol constants
const (
	// MaxCommandLen is the longest command name; the device buffer holds 12
	// bytes including the terminator.
	MaxCommandLen = 11

	LengthFieldSize = 2

	MinBinSize = 8
	MaxBinSize = 8192

	// MaxAckSize bounds the ACK payload including the terminator.
	MaxAckSize = 32

	// MaxReadResponse bounds READ replies: size field + data + checksum.
	MaxReadResponse = 0x500

	// RxBufferSize is the device receive data buffer.
	RxBufferSize = MaxBinSize + 128

	// TxBufferSize is the device transmit buffer; frames stay 16 bytes short of it.
	TxBufferSize = 2048
	TxHeadroom   = 16

	// AlignSlack is the extra room a data buffer needs so a binary payload
	// can be shifted right onto a 4-byte boundary.
	AlignSlack = 3
)

// Error codes carried by an ERR frame
const (
	ErrInvalidPacketSize = 0x84
	ErrUnknownCommand    = 0x85
	ErrDataInvalid       = 0x8B
)

// Response tags
const (
	TagAck = "ACK"
	TagErr = "ERR"
	TagBin = "BIN"
)

// ErrorName returns the symbolic name of a device error code.
func ErrorName(code byte) string {
	switch code {
	case ErrInvalidPacketSize:
		return "invalid packet size"
	case ErrUnknownCommand:
		return "unknown command"
	case ErrDataInvalid:
		return "invalid data"
	}
	return fmt.Sprintf("error 0x%02X", code)
}

// FramingError is returned by the reassembler for a frame it refuses to
// deliver. Code is the ERR code the device answers with.
type FramingError struct {
	Command string
	Length  int
	Code    byte
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("protocol: %s frame with bad length %d: %s", e.Command, e.Length, ErrorName(e.Code))
}

// Checksum is the 8-bit additive checksum of a binary field: both length
// bytes followed by the payload.
func Checksum(payload []byte) byte {
	n := len(payload)
	sum := byte(n>>8) + byte(n)
	for _, b := range payload {
		sum += b
	}
	return sum
}
