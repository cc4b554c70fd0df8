package neptune

import (
	"testing"

	"hitagi/flash"
	"hitagi/flash/flashsim"
	"hitagi/memory"
)

type board struct {
	space *memory.Space
	wdog  *Watchdog
	rtc   *memory.RAM
	p     *Platform

	resets    int
	shutdowns int
}

func newBoard(t *testing.T) *board {
	t.Helper()
	b := &board{
		space: memory.NewSpace(),
		wdog:  NewWatchdog(),
		rtc:   NewRTCScratch(),
	}
	b.wdog.OnReset = func() { b.resets++ }
	b.wdog.OnShutdown = func() { b.shutdowns++ }
	b.space.MustMap(b.wdog)
	b.space.MustMap(b.rtc)
	b.space.MustMap(NewSystemID([UIDWords]uint16{0xA000, 1, 2, 3, 4, 5, 6, 0xA007}, 0x0102))
	b.p = NewPlatform(b.space, LTE2)
	return b
}

func TestPlatformInit(t *testing.T) {
	b := newBoard(t)
	b.p.Init()

	if b.wdog.WCR() != WCRInit {
		t.Errorf("Expected WCR 0x%04X, got 0x%04X", WCRInit, b.wdog.WCR())
	}
	if b.wdog.Services != 1 {
		t.Errorf("Expected 1 service, got %d", b.wdog.Services)
	}

	b.p.ServiceWatchdog()
	b.p.ServiceWatchdog()
	if b.wdog.Services != 3 {
		t.Errorf("Expected 3 services, got %d", b.wdog.Services)
	}
	if b.resets != 0 || b.shutdowns != 0 {
		t.Error("Init must not reset or shut down")
	}
}

func TestWatchdogServiceSequence(t *testing.T) {
	w := NewWatchdog()
	w.Write16(WatchdogWSR, WSRService2)
	w.Write16(WatchdogWSR, WSRService1)
	w.Write16(WatchdogWSR, 0x1234)
	w.Write16(WatchdogWSR, WSRService2)
	if w.Services != 0 {
		t.Errorf("Expected out-of-order writes to be ignored, got %d services", w.Services)
	}
	w.Write16(WatchdogWSR, WSRService1)
	w.Write16(WatchdogWSR, WSRService2)
	if w.Services != 1 {
		t.Errorf("Expected 1 service, got %d", w.Services)
	}
}

func TestPlatformReboot(t *testing.T) {
	b := newBoard(t)
	b.p.Init()
	b.p.Reboot()

	if b.resets != 1 {
		t.Errorf("Expected 1 reset, got %d", b.resets)
	}
	if got := b.rtc.Read16(RTCPCRAM0); got != PCRAMSoftwareReset {
		t.Errorf("Expected PCRAM0 0x%02X, got 0x%04X", PCRAMSoftwareReset, got)
	}
	if b.wdog.WCR()&WCRSoftwareReset == 0 {
		t.Error("Expected SRS to read back as 1 after the reset")
	}
}

func TestPlatformRebootKeepsHigherPCRAM(t *testing.T) {
	b := newBoard(t)
	b.rtc.Write16(RTCPCRAM0, 0x0020)
	b.p.Reboot()

	if got := b.rtc.Read16(RTCPCRAM0); got != 0x0020 {
		t.Errorf("Expected PCRAM0 untouched, got 0x%04X", got)
	}
}

func TestPlatformPowerDown(t *testing.T) {
	b := newBoard(t)
	b.p.Init()
	b.p.PowerDown()

	if b.shutdowns != 1 || b.resets != 0 {
		t.Errorf("Expected shutdown only, got %d shutdowns %d resets", b.shutdowns, b.resets)
	}
}

func TestSystemIDLayout(t *testing.T) {
	b := newBoard(t)
	hi, _ := b.space.Read16(UIDAddr + 14)
	lo, _ := b.space.Read16(UIDAddr)
	rev, _ := b.space.Read16(RevAddr)

	if hi != 0xA000 || lo != 0xA007 {
		t.Errorf("Expected UID[0] at the top, got hi 0x%04X lo 0x%04X", hi, lo)
	}
	if rev != 0x0102 {
		t.Errorf("Expected revision 0x0102, got 0x%04X", rev)
	}
}

func TestFlavor(t *testing.T) {
	tests := []struct {
		in     string
		flavor Flavor
		packet int
	}{
		{"lte1", LTE1, 16},
		{"LTE2", LTE2, 32},
		{"", LTE1, 16},
	}
	for _, tt := range tests {
		f, err := ParseFlavor(tt.in)
		if err != nil {
			t.Errorf("ParseFlavor(%q) failed: %v", tt.in, err)
			continue
		}
		if f != tt.flavor || f.PacketSize() != tt.packet {
			t.Errorf("ParseFlavor(%q) = %s/%d, want %s/%d", tt.in, f, f.PacketSize(), tt.flavor, tt.packet)
		}
	}
	if _, err := ParseFlavor("lte3"); err == nil {
		t.Error("Expected error for unknown flavor")
	}
}

func TestPlatformFlashServicesWatchdog(t *testing.T) {
	b := newBoard(t)
	chip := flashsim.NewIntelChip(FlashBase, 0x400000)
	b.space.MustMap(chip)

	d, err := b.p.NewFlash(flash.Intel, chip, chip.Window(), 0)
	if err != nil {
		t.Fatalf("NewFlash failed: %v", err)
	}
	if err := d.Unlock(FlashBase); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if err := d.Erase(FlashBase); err != nil {
		t.Fatalf("Erase failed: %v", err)
	}
	if b.wdog.Services == 0 {
		t.Error("Expected the erase poll to service the watchdog")
	}

	cfg := b.p.Config(nil, d)
	if cfg.PacketSize != 32 || cfg.Machine != b.p || cfg.UIDAddr != UIDAddr || cfg.Flash != d {
		t.Errorf("Unexpected engine config %+v", cfg)
	}
}
