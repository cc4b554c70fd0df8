package protocol

import (
	"bytes"
	"context"
	"testing"
)

func joined(packets [][]byte) []byte {
	var out []byte
	for _, p := range packets {
		out = append(out, p...)
	}
	return out
}

func TestEncoderTextPacket(t *testing.T) {
	link := &scriptLink{}
	enc := NewEncoder(link, 16)
	enc.SendPacket("RSRC", []byte("000A"))

	want := []byte("\x02RSRC\x1e000A\x03")
	if len(link.sent) != 1 {
		t.Fatalf("Expected 1 packet, got %d", len(link.sent))
	}
	if !bytes.Equal(link.sent[0], want) {
		t.Errorf("Expected % X, got % X", want, link.sent[0])
	}
}

func TestEncoderNoData(t *testing.T) {
	link := &scriptLink{}
	NewEncoder(link, 16).SendPacket("ACK", nil)
	if got := joined(link.sent); !bytes.Equal(got, []byte("\x02ACK\x03")) {
		t.Errorf("Expected frame without RS, got % X", got)
	}
}

func TestEncoderZeroLengthPacket(t *testing.T) {
	tests := []struct {
		packetSize int
		dataLen    int
		packets    []int
	}{
		// STX + "ACK" + RS + data + ETX = dataLen + 6
		{16, 10, []int{16, 0}},
		{16, 9, []int{15}},
		{16, 26, []int{16, 16, 0}},
		{32, 26, []int{32, 0}},
		{32, 27, []int{32, 1}},
	}
	for _, tt := range tests {
		link := &scriptLink{}
		enc := NewEncoder(link, tt.packetSize)
		enc.SendPacket(TagAck, bytes.Repeat([]byte{'A'}, tt.dataLen))

		if len(link.sent) != len(tt.packets) {
			t.Errorf("size %d/%d: expected %d packets, got %d", tt.packetSize, tt.dataLen, len(tt.packets), len(link.sent))
			continue
		}
		for i, n := range tt.packets {
			if len(link.sent[i]) != n {
				t.Errorf("size %d/%d: packet %d has %d bytes, want %d", tt.packetSize, tt.dataLen, i, len(link.sent[i]), n)
			}
		}
	}
}

func TestEncoderTextStopsAtNUL(t *testing.T) {
	link := &scriptLink{}
	NewEncoder(link, 32).SendPacket("RSVN", []byte("AB\x00CD"))
	if got := joined(link.sent); !bytes.Equal(got, []byte("\x02RSVN\x1eAB\x03")) {
		t.Errorf("Expected payload cut at NUL, got % X", got)
	}
}

func TestEncoderBinKeepsNUL(t *testing.T) {
	link := &scriptLink{}
	NewEncoder(link, 32).SendBinPacket("READ", []byte{0x00, 0x03, 0x02})
	want := []byte{STX, 'R', 'E', 'A', 'D', RS, 0x00, 0x03, 0x02, ETX}
	if got := joined(link.sent); !bytes.Equal(got, want) {
		t.Errorf("Expected % X, got % X", want, got)
	}
}

func TestEncoderTruncates(t *testing.T) {
	link := &scriptLink{}
	enc := NewEncoder(link, 32)
	enc.SendBinPacket("READ", make([]byte, 3000))

	got := joined(link.sent)
	if len(got) != TxBufferSize-TxHeadroom+1 {
		t.Errorf("Expected frame of %d bytes, got %d", TxBufferSize-TxHeadroom+1, len(got))
	}
	if got[len(got)-1] != ETX {
		t.Errorf("Truncated frame must still end with ETX, got 0x%02X", got[len(got)-1])
	}
}

func TestEncoderAck(t *testing.T) {
	link := &scriptLink{}
	enc := NewEncoder(link, 64)

	enc.SendAck("ADDR", []byte("10000000"))
	enc.SendAck("BIN", nil)
	enc.SendAck("ERASE", bytes.Repeat([]byte{'9'}, 40))

	frames := bytes.Split(joined(link.sent), []byte{ETX})
	if string(frames[0]) != "\x02ACK\x1eADDR,10000000" {
		t.Errorf("Unexpected ADDR ack %q", frames[0])
	}
	if string(frames[1]) != "\x02ACK\x1eBIN" {
		t.Errorf("Unexpected BIN ack %q", frames[1])
	}
	want := "\x02ACK\x1eERASE," + string(bytes.Repeat([]byte{'9'}, MaxAckSize-1-6))
	if string(frames[2]) != want {
		t.Errorf("Expected ack truncated to %d bytes, got %q", MaxAckSize-1, frames[2])
	}
}

func TestEncoderError(t *testing.T) {
	link := &scriptLink{}
	NewEncoder(link, 16).SendError(ErrUnknownCommand)
	want := []byte{STX, 'E', 'R', 'R', RS, 0x85, ETX}
	if got := joined(link.sent); !bytes.Equal(got, want) {
		t.Errorf("Expected % X, got % X", want, got)
	}
}

type busyLink struct {
	scriptLink
	busy int
}

func (l *busyLink) Transmit(p []byte) bool {
	if l.busy > 0 {
		l.busy--
		return false
	}
	return l.scriptLink.Transmit(p)
}

func TestEncoderRetriesBusyLink(t *testing.T) {
	link := &busyLink{busy: 3}
	enc := NewEncoder(link, 16)
	services := 0
	enc.SetServiceCallback(func() { services++ })

	enc.SendPacket("ACK", []byte("BIN"))
	if services != 3 {
		t.Errorf("Expected 3 service calls while busy, got %d", services)
	}
	if len(link.sent) != 1 {
		t.Errorf("Expected the packet to go out once, got %d", len(link.sent))
	}
}

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		tag  string
		data []byte
	}{
		{"RQFI", nil},
		{"ADDR", []byte("10000000")},
		{"READ", []byte("10000000,0010")},
		// Frame length is a multiple of the packet size.
		{"RSRC", []byte("012345678")},
		{"RSSN", []byte("0123456789ABCDEF012345678")},
	}
	for _, packetSize := range []int{16, 32} {
		for _, c := range cases {
			link := &scriptLink{}
			NewEncoder(link, packetSize).SendPacket(c.tag, c.data)
			if n := len(joined(link.sent)); n%packetSize == 0 && len(link.sent[len(link.sent)-1]) != 0 {
				t.Errorf("%s/%d: missing zero-length packet", c.tag, packetSize)
			}

			ctx, cancel := context.WithCancel(context.Background())
			link.data = joined(link.sent)
			link.chunk = packetSize
			link.cancel = cancel
			f, err := NewReassembler(link, DeviceBinaryFields).Next(ctx)
			cancel()
			if err != nil {
				t.Fatalf("%s/%d: Next failed: %v", c.tag, packetSize, err)
			}
			if f.Command != c.tag || !bytes.Equal(f.Data, c.data) || (f.Data == nil) != (c.data == nil) {
				t.Errorf("%s/%d: round trip gave %q %q", c.tag, packetSize, f.Command, f.Data)
			}
		}
	}
}

func TestChecksum(t *testing.T) {
	if got := Checksum([]byte{1, 2, 3, 4}); got != 0x0E {
		t.Errorf("Expected 0x0E, got 0x%02X", got)
	}
	if got := Checksum(make([]byte, 0x1FE)); got != 0xFF {
		t.Errorf("Expected length bytes only, got 0x%02X", got)
	}
}
