package core

import "hitagi/flash"

// EraseMode selects what BIN does with its payload. ERASE increments it as
// a raw counter; only the four defined values have a meaning.
type EraseMode uint32

const (
	EraseNone        EraseMode = iota // copy to memory
	EraseWriteBlock                   // unlock, erase, program word by word
	EraseWriteBuffer                  // unlock, erase, buffered program
	EraseOnly                         // unlock, erase
)

func (m EraseMode) String() string {
	switch m {
	case EraseNone:
		return "none"
	case EraseWriteBlock:
		return "write-block"
	case EraseWriteBuffer:
		return "write-buffer"
	case EraseOnly:
		return "erase-only"
	}
	return "unknown(" + itoa(int(m)) + ")"
}

// Flashing reports whether BIN targets flash in this mode.
func (m EraseMode) Flashing() bool {
	return m != EraseNone
}

// Session is the state shared by the handlers: the erase mode and the
// address the next BIN payload goes to.
type Session struct {
	Mode   EraseMode
	Cursor uint32
}

// Reset puts the flash in read mode and the erase mode back to None.
func (s *Session) Reset(d flash.Driver) error {
	s.Mode = EraseNone
	if d == nil {
		return nil
	}
	return d.Init()
}

// Advance moves the cursor past n payload bytes (n/2 words).
func (s *Session) Advance(n int) {
	s.Cursor += uint32(n/2) * 2
}
