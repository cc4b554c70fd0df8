// Package memory models the physical address space the bootloader works on.
//
// On the phone every address the host sends is dereferenced directly. Here the
// address space is a set of bounds-checked regions (RAM, the NOR flash window,
// SoC registers) so the same handlers run on hardware glue, in the emulator and
// in tests.
package memory

import (
	"errors"
	"fmt"
)

var (
	ErrOverlap   = errors.New("memory: region overlaps an existing mapping")
	ErrEmptySize = errors.New("memory: region has zero size")
)

// Window is a (base, size) slice of the 32-bit address space.
type Window struct {
	Base uint32
	Size uint32
}

// End returns the first address past the window. It is 64-bit so a window
// touching 0xFFFFFFFF does not wrap.
func (w Window) End() uint64 {
	return uint64(w.Base) + uint64(w.Size)
}

// Contains reports whether addr lies inside the window.
func (w Window) Contains(addr uint32) bool {
	return addr >= w.Base && uint64(addr) < w.End()
}

// ContainsRange reports whether the n bytes starting at addr lie inside the window.
func (w Window) ContainsRange(addr uint32, n uint32) bool {
	if n == 0 {
		return w.Contains(addr)
	}
	return addr >= w.Base && uint64(addr)+uint64(n) <= w.End()
}

// Offset returns addr relative to the window base.
func (w Window) Offset(addr uint32) uint32 {
	return addr - w.Base
}

func (w Window) overlaps(o Window) bool {
	return uint64(w.Base) < o.End() && uint64(o.Base) < w.End()
}

func (w Window) String() string {
	return fmt.Sprintf("[0x%08X,0x%08X)", w.Base, w.End())
}

// Region is one device mapped into the address space. Addresses passed to
// the accessors are absolute and already checked against Window().
type Region interface {
	Window() Window
	Read8(addr uint32) byte
	Write8(addr uint32, v byte)
	Read16(addr uint32) uint16
	Write16(addr uint32, v uint16)
}

// FaultError is returned for an access no region claims.
type FaultError struct {
	Addr  uint32
	Write bool
}

func (e *FaultError) Error() string {
	op := "read"
	if e.Write {
		op = "write"
	}
	return fmt.Sprintf("memory: %s fault at 0x%08X", op, e.Addr)
}

// IsFault returns true if the error is a FaultError.
func IsFault(err error) bool {
	var fe *FaultError
	return errors.As(err, &fe)
}
