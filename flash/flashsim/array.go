// Package flashsim simulates the two NOR flash families at bus-cycle level.
//
// The chips decode the same command sequences the real parts do, report
// busy status for a configurable number of reads, and keep NOR semantics
// (programming can only clear bits, erase sets a whole sector to 0xFFFF).
// They implement memory.Region so they can be mapped into an emulated
// address space and flash.Bus so drivers can talk to them directly.
package flashsim

import "hitagi/memory"

// DefaultLatency is the number of status reads an operation stays busy.
const DefaultLatency = 3

// Stats counts completed operations.
type Stats struct {
	Erases         int
	WordPrograms   int
	BufferPrograms int
	BusyReads      int
	CommandErrors  int
}

// array is the storage and sector layout both chips share.
type array struct {
	win    memory.Window
	words  []uint16
	params []memory.Window

	// Latency is how many status reads report busy after an operation.
	Latency int
	Stats   Stats
}

func newArray(base, size uint32, params ...memory.Window) array {
	a := array{
		win:     memory.Window{Base: base, Size: size},
		words:   make([]uint16, size/2),
		params:  params,
		Latency: DefaultLatency,
	}
	for i := range a.words {
		a.words[i] = 0xFFFF
	}
	return a
}

func (a *array) Window() memory.Window {
	return a.win
}

// sector returns the erase block containing addr.
func (a *array) sector(addr uint32) memory.Window {
	size := uint32(0x20000)
	for _, p := range a.params {
		if p.Contains(addr) {
			size = 0x8000
			break
		}
	}
	off := a.win.Offset(addr) &^ (size - 1)
	return memory.Window{Base: a.win.Base + off, Size: size}
}

func (a *array) index(addr uint32) int {
	return int(a.win.Offset(addr) / 2)
}

func (a *array) erase(sec memory.Window) {
	first := a.index(sec.Base)
	for i := first; i < first+int(sec.Size/2); i++ {
		a.words[i] = 0xFFFF
	}
	a.Stats.Erases++
}

// program applies NOR semantics: only 1 -> 0 transitions happen.
func (a *array) program(addr uint32, v uint16) uint16 {
	i := a.index(addr)
	a.words[i] &= v
	a.Stats.WordPrograms++
	return a.words[i]
}

// Word returns the array content at addr regardless of chip state.
func (a *array) Word(addr uint32) uint16 {
	return a.words[a.index(addr&^1)]
}

// Load copies p into the array at addr bypassing the command interface,
// the way a factory programmer would.
func (a *array) Load(addr uint32, p []byte) {
	for i := 0; i < len(p); i++ {
		at := addr + uint32(i)
		w := &a.words[a.index(at&^1)]
		if at&1 == 0 {
			*w = *w&0xFF00 | uint16(p[i])
		} else {
			*w = *w&0x00FF | uint16(p[i])<<8
		}
	}
}

// Dump returns n bytes of array content starting at addr.
func (a *array) Dump(addr uint32, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		at := addr + uint32(i)
		w := a.words[a.index(at&^1)]
		if at&1 == 0 {
			out[i] = byte(w)
		} else {
			out[i] = byte(w >> 8)
		}
	}
	return out
}

// byteOf picks the addressed byte out of a little-endian halfword.
func byteOf(w uint16, addr uint32) byte {
	if addr&1 == 0 {
		return byte(w)
	}
	return byte(w >> 8)
}
