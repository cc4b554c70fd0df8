package protocol

import (
	"runtime"
	"sync"
)

// FifoBuffer is a circular byte buffer
type FifoBuffer struct {
	buf   []byte
	read  int
	write int
	size  int
}

// NewFifoBuffer creates a new FifoBuffer holding capacity-1 bytes
func NewFifoBuffer(capacity int) *FifoBuffer {
	return &FifoBuffer{
		buf:  make([]byte, capacity),
		size: capacity,
	}
}

// Write appends data to the FIFO buffer
func (f *FifoBuffer) Write(data []byte) int {
	written := 0
	for _, b := range data {
		nextWrite := (f.write + 1) % f.size
		if nextWrite == f.read {
			// Buffer full
			break
		}
		f.buf[f.write] = b
		f.write = nextWrite
		written++
	}
	return written
}

// Read reads up to len(data) bytes from the FIFO buffer
func (f *FifoBuffer) Read(data []byte) int {
	read := 0
	for i := range data {
		if f.read == f.write {
			// Buffer empty
			break
		}
		data[i] = f.buf[f.read]
		f.read = (f.read + 1) % f.size
		read++
	}
	return read
}

// Available returns the number of bytes available for reading
func (f *FifoBuffer) Available() int {
	if f.write >= f.read {
		return f.write - f.read
	}
	return f.size - f.read + f.write
}

// Free returns the number of bytes available for writing
func (f *FifoBuffer) Free() int {
	return f.size - f.Available() - 1
}

// IsEmpty returns true if the buffer is empty
func (f *FifoBuffer) IsEmpty() bool {
	return f.read == f.write
}

// Reset clears the buffer
func (f *FifoBuffer) Reset() {
	f.read = 0
	f.write = 0
}

// pipeDir is one direction of a Pipe. Every packet written is recorded so
// tests can look at the chunking.
type pipeDir struct {
	mu      sync.Mutex
	fifo    *FifoBuffer
	packets [][]byte
	maxRead int
}

// PipeEnd is one side of an in-memory USB link.
type PipeEnd struct {
	rx *pipeDir
	tx *pipeDir
}

// NewPipe returns two connected link ends. Each direction buffers size
// bytes; Transmit reports busy while the peer has no room for the packet.
func NewPipe(size int) (device, host *PipeEnd) {
	d2h := &pipeDir{fifo: NewFifoBuffer(size + 1)}
	h2d := &pipeDir{fifo: NewFifoBuffer(size + 1)}
	return &PipeEnd{rx: h2d, tx: d2h}, &PipeEnd{rx: d2h, tx: h2d}
}

func (p *PipeEnd) Transmit(b []byte) bool {
	d := p.tx
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fifo.Free() < len(b) {
		return false
	}
	d.fifo.Write(b)
	d.packets = append(d.packets, append([]byte(nil), b...))
	return true
}

func (p *PipeEnd) Receive(b []byte) int {
	d := p.rx
	d.mu.Lock()
	if d.maxRead > 0 && len(b) > d.maxRead {
		b = b[:d.maxRead]
	}
	n := d.fifo.Read(b)
	d.mu.Unlock()
	if n == 0 {
		runtime.Gosched()
	}
	return n
}

// SetMaxRead limits every Receive on this end to n bytes, like a USB OUT
// endpoint delivering one packet at a time.
func (p *PipeEnd) SetMaxRead(n int) {
	p.rx.mu.Lock()
	p.rx.maxRead = n
	p.rx.mu.Unlock()
}

// Sent returns a copy of the packets transmitted from this end.
func (p *PipeEnd) Sent() [][]byte {
	p.tx.mu.Lock()
	defer p.tx.mu.Unlock()
	out := make([][]byte, len(p.tx.packets))
	copy(out, p.tx.packets)
	return out
}
