package core

import (
	"bytes"
	"errors"
	"testing"

	"hitagi/protocol"
)

func TestCommandTable(t *testing.T) {
	table := NewCommandTable()

	// Register a command
	var called bool
	handler := func(cmd *Command, f *protocol.Frame) error {
		called = true
		return nil
	}

	cmd := table.Register("RQSW", "RSSW", handler)
	if cmd.Name != "RQSW" || cmd.Tag != "RSSW" {
		t.Errorf("Expected RQSW/RSSW, got %s/%s", cmd.Name, cmd.Tag)
	}

	// Verify command can be retrieved
	got, ok := table.Lookup("RQSW")
	if !ok || got != cmd {
		t.Error("Failed to retrieve registered command")
	}

	// Test dispatch
	if err := table.Dispatch(&protocol.Frame{Command: "RQSW"}); err != nil {
		t.Errorf("Dispatch failed: %v", err)
	}
	if !called {
		t.Error("Command handler was not called")
	}

	// Test unknown command
	err := table.Dispatch(&protocol.Frame{Command: "FOO"})
	var ce *CommandError
	if !errors.As(err, &ce) || ce.Code != protocol.ErrUnknownCommand {
		t.Errorf("Expected unknown command error, got %v", err)
	}
}

func TestCommandTableFirstMatchWins(t *testing.T) {
	table := NewCommandTable()

	var hits []int
	table.Register("ERASE", protocol.TagAck, func(*Command, *protocol.Frame) error { hits = append(hits, 1); return nil })
	table.Register("ERASE", protocol.TagAck, func(*Command, *protocol.Frame) error { hits = append(hits, 2); return nil })

	if err := table.Dispatch(&protocol.Frame{Command: "ERASE"}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if len(hits) != 1 || hits[0] != 1 {
		t.Errorf("Expected only the first handler, got %v", hits)
	}
	if table.Count() != 2 {
		t.Errorf("Expected 2 entries, got %d", table.Count())
	}
}

func TestCommandTableExactMatch(t *testing.T) {
	table := NewCommandTable()
	table.Register("READ", "READ", func(*Command, *protocol.Frame) error { return nil })

	for _, name := range []string{"read", "REA", "READ_OTP", "READ ", ""} {
		if _, ok := table.Lookup(name); ok {
			t.Errorf("Expected %q not to match READ", name)
		}
	}
}

func TestCommandTableNilHandler(t *testing.T) {
	table := NewCommandTable()
	table.Register("RQHW", "RSHW", nil)

	var ce *CommandError
	if err := table.Dispatch(&protocol.Frame{Command: "RQHW"}); !errors.As(err, &ce) {
		t.Errorf("Expected a command error for a nil handler, got %v", err)
	}
}

func TestCommandErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := invalid(&Command{Name: "READ"}, cause)

	if !errors.Is(err, cause) {
		t.Error("Expected CommandError to unwrap to its cause")
	}
	if err.Error() != "READ: invalid data: boom" {
		t.Errorf("Unexpected message %q", err.Error())
	}
}

func TestStandardCommandSet(t *testing.T) {
	h := newHarness(t)
	want := []string{
		"ADDR", "BIN", "ERASE", "READ", "RQRC", "RQFI", "READ_OTP", "READ_IMEI",
		"RQHW", "RQVN", "RQSW", "RQSN", "RESTART", "POWER_DOWN",
	}

	names := h.b.Commands().Names()
	if len(names) != len(want) {
		t.Fatalf("Expected %d commands, got %v", len(want), names)
	}
	for i, name := range want {
		if names[i] != name {
			t.Errorf("Command %d: expected %s, got %s", i, name, names[i])
		}
		if len(name) > protocol.MaxCommandLen {
			t.Errorf("Command %s is longer than %d bytes", name, protocol.MaxCommandLen)
		}
	}
}

func TestHexHelpers(t *testing.T) {
	if got := string(U16ToHex(0x0A)); got != "000A" {
		t.Errorf("Expected 000A, got %s", got)
	}
	if got := string(U32ToHex(0x0089880C)); got != "0089880C" {
		t.Errorf("Expected 0089880C, got %s", got)
	}
	if got := string(HexEncode([]byte{0x00, 0xAB, 0x7F})); got != "00AB7F" {
		t.Errorf("Expected 00AB7F, got %s", got)
	}

	tests := []struct {
		in   string
		want uint32
		ok   bool
	}{
		{"10000000", 0x10000000, true},
		{"deadBEEF", 0xDEADBEEF, true},
		{"0010", 0x10, true},
		{"", 0, false},
		{"1000000G", 0, false},
		{"123456789", 0, false},
		{"12 4", 0, false},
	}
	for _, tt := range tests {
		got, ok := HexToU32([]byte(tt.in))
		if ok != tt.ok || got != tt.want {
			t.Errorf("HexToU32(%q) = 0x%X, %v; want 0x%X, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestHexFields(t *testing.T) {
	a, b, ok := hexFields([]byte("10000000,0010"), 8, 4)
	if !ok || a != 0x10000000 || b != 0x10 {
		t.Errorf("Expected 0x10000000,0x10, got 0x%X,0x%X %v", a, b, ok)
	}
	if _, _, ok := hexFields([]byte("10000000;0010"), 8, 4); ok {
		t.Error("Expected missing comma to fail")
	}
	if _, _, ok := hexFields([]byte("10000000,00"), 8, 4); ok {
		t.Error("Expected short second field to fail")
	}
}

func TestAlign(t *testing.T) {
	tests := []struct {
		start     int
		wantStart int
	}{
		{0, 0},
		{1, 4},
		{2, 4},
		{3, 4},
		{4, 4},
		{6, 8},
	}
	for _, tt := range tests {
		buf := make([]byte, 32)
		for i := range buf {
			buf[i] = 0xEE
		}
		payload := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09}
		copy(buf[tt.start:], payload)

		got := Align(buf, tt.start, len(payload))
		if got != tt.wantStart {
			t.Errorf("start %d: expected aligned start %d, got %d", tt.start, tt.wantStart, got)
			continue
		}
		if got%4 != 0 {
			t.Errorf("start %d: result %d not 4-byte aligned", tt.start, got)
		}
		for i, b := range payload {
			if buf[got+i] != b {
				t.Errorf("start %d: byte %d expected 0x%02X, got 0x%02X", tt.start, i, b, buf[got+i])
			}
		}
		if buf[got+len(payload)] != 0xEE {
			t.Errorf("start %d: byte past the payload was overwritten", tt.start)
		}
	}
}

func TestPackIMEI(t *testing.T) {
	otp := make([]byte, 272)
	copy(otp[8:], []byte{0x86, 0x53, 0x00, 0x57, 0x26, 0x51, 0x00, 0x88})
	want := []byte{0x08, 0x3A, 0x65, 0x78, 0x05, 0x10, 0x65, 0x82, 0x08}

	got, err := PackIMEI(otp, [8]uint16{})
	if err != nil {
		t.Fatalf("PackIMEI failed: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Expected % X, got % X", want, got)
	}

	// The same digits masked with a UID pack identically.
	uid := [8]uint16{0x1234, 0xA5A5, 0x0F0F, 0x00FF}
	masked := append([]byte{}, otp...)
	for i := 0; i < 4; i++ {
		masked[8+2*i+1] ^= byte(uid[i])
		masked[8+2*i] ^= byte(uid[i] >> 8)
	}
	got, err = PackIMEI(masked, uid)
	if err != nil || !bytes.Equal(got, want) {
		t.Errorf("Expected masked IMEI % X, got % X %v", want, got, err)
	}
}

func TestPackIMEICheckNibble(t *testing.T) {
	// The high nibble of the last byte is the check digit slot; it stays 0
	// whatever the register holds.
	otp := make([]byte, 272)
	for i := 8; i < 16; i++ {
		otp[i] = 0x99
	}
	got, err := PackIMEI(otp, [8]uint16{})
	if err != nil {
		t.Fatalf("PackIMEI failed: %v", err)
	}
	if got[8] != 0x09 {
		t.Errorf("Expected last byte 0x09, got 0x%02X", got[8])
	}
	if got[1] != 0x9A {
		t.Errorf("Expected type byte 0x9A, got 0x%02X", got[1])
	}
}

func TestPackIMEIShortOTP(t *testing.T) {
	if _, err := PackIMEI(make([]byte, 10), [8]uint16{}); !errors.Is(err, ErrIMEIInvalid) {
		t.Errorf("Expected ErrIMEIInvalid for short OTP, got %v", err)
	}
}

func TestEraseModeString(t *testing.T) {
	if EraseWriteBuffer.String() != "write-buffer" {
		t.Errorf("Expected write-buffer, got %s", EraseWriteBuffer)
	}
	if EraseMode(7).String() != "unknown(7)" {
		t.Errorf("Expected unknown(7), got %s", EraseMode(7))
	}
}
