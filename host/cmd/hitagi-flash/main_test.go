package main

import (
	"testing"

	"hitagi/core"
)

func TestParseUint32(t *testing.T) {
	tests := []struct {
		in   string
		want uint32
		ok   bool
	}{
		{"0x10000000", 0x10000000, true},
		{"4096", 4096, true},
		{"0X1f", 0x1F, true},
		{"zz", 0, false},
		{"0x100000000", 0, false},
	}
	for _, tt := range tests {
		got, err := parseUint32("value", tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("%s: expected 0x%X ok=%v, got 0x%X err=%v", tt.in, tt.want, tt.ok, got, err)
		}
	}
}

func TestParseHex32(t *testing.T) {
	for _, in := range []string{"1F800", "0x1F800", " 1f800 "} {
		got, err := parseHex32("offset", in)
		if err != nil || got != 0x1F800 {
			t.Errorf("%q: expected 0x1F800, got 0x%X %v", in, got, err)
		}
	}
	if _, err := parseHex32("offset", "0x"); err == nil {
		t.Error("Expected bare prefix to fail")
	}
}

func TestParseMode(t *testing.T) {
	tests := map[string]core.EraseMode{
		"ram":    core.EraseNone,
		"block":  core.EraseWriteBlock,
		"Buffer": core.EraseWriteBuffer,
		"erase":  core.EraseOnly,
	}
	for in, want := range tests {
		got, err := parseMode(in)
		if err != nil || got != want {
			t.Errorf("%s: expected %s, got %s %v", in, want, got, err)
		}
	}
	if _, err := parseMode("fast"); err == nil {
		t.Error("Expected unknown mode to fail")
	}
}
