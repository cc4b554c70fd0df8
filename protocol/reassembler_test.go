package protocol

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

// scriptLink hands out its data chunk bytes at a time, reporting an empty
// read every idle calls, and cancels the test context once drained.
type scriptLink struct {
	data   []byte
	chunk  int
	idle   int
	calls  int
	cancel context.CancelFunc
	sent   [][]byte
}

func (l *scriptLink) Transmit(p []byte) bool {
	l.sent = append(l.sent, append([]byte(nil), p...))
	return true
}

func (l *scriptLink) Receive(p []byte) int {
	l.calls++
	if l.idle > 0 && l.calls%(l.idle+1) != 0 {
		return 0
	}
	if len(l.data) == 0 {
		if l.cancel != nil {
			l.cancel()
		}
		return 0
	}
	n := l.chunk
	if n <= 0 || n > len(l.data) {
		n = len(l.data)
	}
	n = copy(p, l.data[:n])
	l.data = l.data[n:]
	return n
}

func newScript(t *testing.T, data []byte, chunk int) (*scriptLink, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return &scriptLink{data: data, chunk: chunk, cancel: cancel}, ctx
}

func binFrame(payload []byte) []byte {
	f := []byte{STX, 'B', 'I', 'N', RS, byte(len(payload) >> 8), byte(len(payload))}
	f = append(f, payload...)
	return append(f, Checksum(payload), ETX)
}

func TestReassemblerTextFrames(t *testing.T) {
	stream := []byte("noise\x02ADDR\x1e10000000\x03\x02ERASE\x03junk\x02RQRC\x1e10000000,10000003\x03")

	for _, chunk := range []int{0, 1, 3, 16} {
		link, ctx := newScript(t, stream, chunk)
		r := NewReassembler(link, DeviceBinaryFields)

		f, err := r.Next(ctx)
		if err != nil {
			t.Fatalf("chunk %d: Next failed: %v", chunk, err)
		}
		if f.Command != "ADDR" || string(f.Data) != "10000000" {
			t.Errorf("chunk %d: expected ADDR 10000000, got %q %q", chunk, f.Command, f.Data)
		}
		if f.Binary() {
			t.Errorf("chunk %d: text frame reported as binary", chunk)
		}

		f, err = r.Next(ctx)
		if err != nil {
			t.Fatalf("chunk %d: Next failed: %v", chunk, err)
		}
		if f.Command != "ERASE" || f.Data != nil {
			t.Errorf("chunk %d: expected ERASE without data, got %q %v", chunk, f.Command, f.Data)
		}

		f, err = r.Next(ctx)
		if err != nil {
			t.Fatalf("chunk %d: Next failed: %v", chunk, err)
		}
		if f.Command != "RQRC" || string(f.Data) != "10000000,10000003" {
			t.Errorf("chunk %d: expected RQRC data, got %q %q", chunk, f.Command, f.Data)
		}

		if _, err := r.Next(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("chunk %d: expected context.Canceled at end of stream, got %v", chunk, err)
		}
	}
}

func TestReassemblerBinaryPayloadWithControlBytes(t *testing.T) {
	payload := []byte{STX, ETX, RS, 0x00, ETX, ETX, 0xFF, STX, 0x10, 0x20}
	stream := append(binFrame(payload), []byte("\x02RQFI\x03")...)

	for _, chunk := range []int{0, 1, 5} {
		link, ctx := newScript(t, stream, chunk)
		r := NewReassembler(link, DeviceBinaryFields)

		f, err := r.Next(ctx)
		if err != nil {
			t.Fatalf("chunk %d: Next failed: %v", chunk, err)
		}
		if f.Command != "BIN" || !f.Binary() {
			t.Fatalf("chunk %d: expected binary BIN frame, got %q", chunk, f.Command)
		}
		if f.Data[0] != 0 || f.Data[1] != byte(len(payload)) {
			t.Errorf("chunk %d: length prefix not kept: % X", chunk, f.Data[:2])
		}
		if !bytes.Equal(f.Payload(), payload) {
			t.Errorf("chunk %d: payload mismatch: % X", chunk, f.Payload())
		}
		if len(f.Trailer) != 2 || f.Trailer[0] != Checksum(payload) || f.Trailer[1] != ETX {
			t.Errorf("chunk %d: unexpected trailer % X", chunk, f.Trailer)
		}
		if len(f.Buffer) < len(f.Data)+AlignSlack {
			t.Errorf("chunk %d: buffer has no alignment slack", chunk)
		}

		f, err = r.Next(ctx)
		if err != nil {
			t.Fatalf("chunk %d: Next failed: %v", chunk, err)
		}
		if f.Command != "RQFI" {
			t.Errorf("chunk %d: expected RQFI after BIN, got %q", chunk, f.Command)
		}
	}
}

func TestReassemblerBadBinLength(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"too short", 7},
		{"odd", 9},
		{"too long", MaxBinSize + 2},
		{"zero", 0},
	}
	for _, tt := range tests {
		stream := []byte{STX, 'B', 'I', 'N', RS, byte(tt.size >> 8), byte(tt.size), 0x11, 0x22}
		stream = append(stream, []byte("\x02ERASE\x03")...)
		link, ctx := newScript(t, stream, 0)
		r := NewReassembler(link, DeviceBinaryFields)

		_, err := r.Next(ctx)
		var fe *FramingError
		if !errors.As(err, &fe) {
			t.Fatalf("%s: expected FramingError, got %v", tt.name, err)
		}
		if fe.Code != ErrInvalidPacketSize || fe.Length != tt.size {
			t.Errorf("%s: unexpected error %+v", tt.name, fe)
		}

		f, err := r.Next(ctx)
		if err != nil || f.Command != "ERASE" {
			t.Errorf("%s: expected to resync on ERASE, got %q %v", tt.name, f.Command, err)
		}
	}
}

func TestReassemblerBoundarySizes(t *testing.T) {
	for _, size := range []int{MinBinSize, MaxBinSize} {
		payload := bytes.Repeat([]byte{0xA5}, size)
		link, ctx := newScript(t, binFrame(payload), 32)
		r := NewReassembler(link, DeviceBinaryFields)

		f, err := r.Next(ctx)
		if err != nil {
			t.Fatalf("size %d: Next failed: %v", size, err)
		}
		if len(f.Payload()) != size {
			t.Errorf("size %d: got %d payload bytes", size, len(f.Payload()))
		}
	}
}

func TestReassemblerOverlongCommand(t *testing.T) {
	link, ctx := newScript(t, []byte("\x02ABCDEFGHIJKLMNOP\x03"), 4)
	r := NewReassembler(link, DeviceBinaryFields)

	f, err := r.Next(ctx)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if f.Command != "ABCDEFGHIJKL" {
		t.Errorf("Expected name cut to 12 bytes, got %q", f.Command)
	}
}

func TestReassemblerTextOverflow(t *testing.T) {
	link, ctx := newScript(t, []byte("\x02X\x1e12345\x03\x02Y\x1e1234\x03"), 0)
	r := NewReassemblerSize(link, DeviceBinaryFields, 4)

	_, err := r.Next(ctx)
	var fe *FramingError
	if !errors.As(err, &fe) || fe.Command != "X" {
		t.Fatalf("Expected FramingError for X, got %v", err)
	}

	f, err := r.Next(ctx)
	if err != nil || f.Command != "Y" || string(f.Data) != "1234" {
		t.Errorf("Expected Y 1234 after overflow, got %q %q %v", f.Command, f.Data, err)
	}
}

func TestReassemblerServiceOnIdle(t *testing.T) {
	link, ctx := newScript(t, []byte("\x02RQHW\x03"), 2)
	link.idle = 2
	r := NewReassembler(link, DeviceBinaryFields)
	services := 0
	r.SetServiceCallback(func() { services++ })

	f, err := r.Next(ctx)
	if err != nil || f.Command != "RQHW" {
		t.Fatalf("Expected RQHW, got %q %v", f.Command, err)
	}
	// Three reads were needed, each preceded by two empty ones.
	if services != 6 {
		t.Errorf("Expected 6 service calls, got %d", services)
	}
}

func TestReassemblerHostReadReply(t *testing.T) {
	data := bytes.Repeat([]byte{ETX}, 0x10)
	payload := append([]byte{0x00, 0x10}, data...)
	payload = append(payload, Checksum(data))

	link, ctx := newScript(t, nil, 16)
	enc := NewEncoder(link, 16)
	enc.SendBinPacket("READ", payload)
	for _, p := range link.sent {
		link.data = append(link.data, p...)
	}

	r := NewReassembler(link, HostBinaryFields)
	f, err := r.Next(ctx)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if !bytes.Equal(f.Payload(), data) {
		t.Errorf("READ data mismatch: % X", f.Payload())
	}
	if f.Trailer[0] != Checksum(data) || f.Trailer[1] != ETX {
		t.Errorf("Unexpected trailer % X", f.Trailer)
	}
}

func TestStreamLink(t *testing.T) {
	var buf bytes.Buffer
	l := NewStreamLink(&buf)

	if !l.Transmit([]byte("abc")) || !l.Transmit(nil) {
		t.Fatal("Transmit failed")
	}
	p := make([]byte, 8)
	if n := l.Receive(p); n != 3 || string(p[:n]) != "abc" {
		t.Errorf("Expected abc, got %q", p[:n])
	}
	// bytes.Buffer reports io.EOF when drained; that is an empty read.
	if n := l.Receive(p); n != 0 {
		t.Errorf("Expected empty read, got %d", n)
	}
	if l.Err() != nil {
		t.Errorf("EOF must not be latched, got %v", l.Err())
	}
}
