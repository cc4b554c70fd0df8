package protocol

import (
	"bytes"
	"context"
)

// windowSize is the receive window the link is read into. Frames are copied
// out of it as they are parsed, so it only has to hold a few link reads.
const windowSize = 512

// BinaryField describes a command whose data field is a 2-byte big-endian
// length followed by raw bytes instead of ETX-terminated text.
type BinaryField struct {
	Command string
	Min     int
	Max     int
	Even    bool

	// Trailer is the number of bytes following the payload (checksum, ETX)
	// that are consumed with the frame.
	Trailer int
}

// DeviceBinaryFields is what the bootloader expects from the host: BIN with
// an 8..8192 byte even payload, then checksum and ETX.
var DeviceBinaryFields = []BinaryField{
	{Command: TagBin, Min: MinBinSize, Max: MaxBinSize, Even: true, Trailer: 2},
}

// HostBinaryFields is what the host expects from the bootloader: READ
// replies with a payload, checksum and ETX.
var HostBinaryFields = []BinaryField{
	{Command: "READ", Min: 0, Max: MaxReadResponse, Trailer: 2},
}

func (f BinaryField) valid(n int) bool {
	if n < f.Min || n > f.Max {
		return false
	}
	return !f.Even || n%2 == 0
}

// Frame is one reassembled inbound frame. Data and Buffer alias the
// reassembler's storage and are only valid until the next call to Next.
type Frame struct {
	Command string

	// Data is nil for "STX cmd ETX". For binary fields it starts with the
	// 2-byte length.
	Data []byte

	// Buffer is the whole data buffer Data lives in, starting at Data's
	// first byte, with room for AlignSlack more bytes past the payload.
	Buffer []byte

	// Trailer holds the bytes after a binary payload.
	Trailer []byte
}

// Binary reports whether the frame carries a length-prefixed payload.
func (f *Frame) Binary() bool {
	return f.Trailer != nil
}

// Payload returns the bytes after the length field of a binary frame.
func (f *Frame) Payload() []byte {
	if len(f.Data) < LengthFieldSize {
		return nil
	}
	return f.Data[LengthFieldSize:]
}

// Reassembler turns arbitrarily sized link reads into frames. Bytes read past
// the end of a frame are kept for the next call.
type Reassembler struct {
	link    Link
	binary  []BinaryField
	service func()

	in         [windowSize]byte
	start, end int

	name    [MaxCommandLen + 1]byte
	data    []byte
	trailer [4]byte
}

// NewReassembler creates a reassembler with an RxBufferSize data buffer.
func NewReassembler(link Link, binary []BinaryField) *Reassembler {
	return NewReassemblerSize(link, binary, RxBufferSize)
}

// NewReassemblerSize creates a reassembler whose data buffer holds dataSize
// bytes plus alignment slack.
func NewReassemblerSize(link Link, binary []BinaryField, dataSize int) *Reassembler {
	return &Reassembler{
		link:   link,
		binary: binary,
		data:   make([]byte, dataSize+AlignSlack),
	}
}

// SetServiceCallback sets the function called on every empty link read
func (r *Reassembler) SetServiceCallback(fn func()) {
	r.service = fn
}

// Buffered returns the number of bytes read but not yet parsed.
func (r *Reassembler) Buffered() int {
	return r.end - r.start
}

// fill reads at least one more byte into the window.
func (r *Reassembler) fill(ctx context.Context) error {
	if r.start == r.end {
		r.start, r.end = 0, 0
	} else if r.end == len(r.in) {
		r.end = copy(r.in[:], r.in[r.start:r.end])
		r.start = 0
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := linkErr(r.link); err != nil {
			return err
		}
		if n := r.link.Receive(r.in[r.end:]); n > 0 {
			r.end += n
			return nil
		}
		if r.service != nil {
			r.service()
		}
	}
}

func (r *Reassembler) next(ctx context.Context) (byte, error) {
	if r.start == r.end {
		if err := r.fill(ctx); err != nil {
			return 0, err
		}
	}
	b := r.in[r.start]
	r.start++
	return b, nil
}

// take copies exactly len(dst) bytes out of the window.
func (r *Reassembler) take(ctx context.Context, dst []byte) error {
	for len(dst) > 0 {
		if r.start == r.end {
			if err := r.fill(ctx); err != nil {
				return err
			}
		}
		n := copy(dst, r.in[r.start:r.end])
		r.start += n
		dst = dst[n:]
	}
	return nil
}

func (r *Reassembler) binaryField(cmd string) (BinaryField, bool) {
	for _, f := range r.binary {
		if f.Command == cmd {
			return f, true
		}
	}
	return BinaryField{}, false
}

// Next blocks until a complete frame has been received. A *FramingError
// means the frame was dropped; the caller reports it and calls Next again.
func (r *Reassembler) Next(ctx context.Context) (Frame, error) {
	// Everything up to and including STX is noise.
	for {
		if i := bytes.IndexByte(r.in[r.start:r.end], STX); i >= 0 {
			r.start += i + 1
			break
		}
		r.start = r.end
		if err := r.fill(ctx); err != nil {
			return Frame{}, err
		}
	}

	// A name that fills the buffer is one byte longer than any command and
	// never matches; the excess is consumed.
	n := 0
	var term byte
	for {
		b, err := r.next(ctx)
		if err != nil {
			return Frame{}, err
		}
		if b == ETX || b == RS {
			term = b
			break
		}
		if n < len(r.name) {
			r.name[n] = b
			n++
		}
	}
	cmd := string(r.name[:n])

	if term == ETX {
		return Frame{Command: cmd}, nil
	}
	if f, ok := r.binaryField(cmd); ok {
		return r.readBinary(ctx, cmd, f)
	}
	return r.readText(ctx, cmd)
}

func (r *Reassembler) readBinary(ctx context.Context, cmd string, f BinaryField) (Frame, error) {
	if err := r.take(ctx, r.data[:LengthFieldSize]); err != nil {
		return Frame{}, err
	}
	size := int(r.data[0])<<8 | int(r.data[1])
	end := LengthFieldSize + size
	if !f.valid(size) || end > len(r.data)-AlignSlack || f.Trailer > len(r.trailer) {
		return Frame{}, &FramingError{Command: cmd, Length: size, Code: ErrInvalidPacketSize}
	}
	if err := r.take(ctx, r.data[LengthFieldSize:end]); err != nil {
		return Frame{}, err
	}
	trailer := r.trailer[:f.Trailer]
	if err := r.take(ctx, trailer); err != nil {
		return Frame{}, err
	}
	return Frame{
		Command: cmd,
		Data:    r.data[:end],
		Buffer:  r.data,
		Trailer: trailer,
	}, nil
}

func (r *Reassembler) readText(ctx context.Context, cmd string) (Frame, error) {
	max := len(r.data) - AlignSlack
	n := 0
	for {
		b, err := r.next(ctx)
		if err != nil {
			return Frame{}, err
		}
		if b == ETX {
			break
		}
		if n == max {
			return Frame{}, &FramingError{Command: cmd, Length: n + 1, Code: ErrInvalidPacketSize}
		}
		r.data[n] = b
		n++
	}
	return Frame{
		Command: cmd,
		Data:    r.data[:n],
		Buffer:  r.data,
	}, nil
}
