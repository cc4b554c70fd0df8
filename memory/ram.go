package memory

import "encoding/binary"

// RAM is a plain byte-addressable region. Half-words are little-endian like
// the ARM core on the SoC.
type RAM struct {
	win  Window
	data []byte
}

// NewRAM allocates size bytes of RAM at base.
func NewRAM(base, size uint32) *RAM {
	return &RAM{
		win:  Window{Base: base, Size: size},
		data: make([]byte, size),
	}
}

func (r *RAM) Window() Window {
	return r.win
}

func (r *RAM) Read8(addr uint32) byte {
	return r.data[r.win.Offset(addr)]
}

func (r *RAM) Write8(addr uint32, v byte) {
	r.data[r.win.Offset(addr)] = v
}

func (r *RAM) Read16(addr uint32) uint16 {
	off := r.win.Offset(addr)
	return binary.LittleEndian.Uint16(r.data[off : off+2])
}

func (r *RAM) Write16(addr uint32, v uint16) {
	off := r.win.Offset(addr)
	binary.LittleEndian.PutUint16(r.data[off:off+2], v)
}

// Bytes exposes the backing store.
func (r *RAM) Bytes() []byte {
	return r.data
}
