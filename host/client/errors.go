package client

import (
	"fmt"

	"hitagi/protocol"
)

// DeviceError is an ERR reply.
type DeviceError struct {
	Command string
	Code    byte
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device rejected %s: %s (0x%02X)", e.Command, protocol.ErrorName(e.Code), e.Code)
}

// ReplyError is a reply with an unexpected tag or payload.
type ReplyError struct {
	Command string
	Tag     string
	Data    []byte
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("unexpected reply to %s: %s %q", e.Command, e.Tag, e.Data)
}

// ChecksumError reports a READ reply whose checksum does not match its data.
type ChecksumError struct {
	Addr      uint32
	Want, Got byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("read at 0x%08X: checksum 0x%02X, computed 0x%02X", e.Addr, e.Want, e.Got)
}
