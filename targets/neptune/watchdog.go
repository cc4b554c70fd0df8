package neptune

import "hitagi/memory"

// Watchdog models the WCR/WSR register pair for emulation. Clearing SRS or
// WDA in WCR calls OnReset or OnShutdown.
type Watchdog struct {
	wcr   uint16
	armed bool

	// Services counts completed 0x5555/0xAAAA sequences.
	Services int

	OnReset    func()
	OnShutdown func()
}

// NewWatchdog returns the block in its reset state.
func NewWatchdog() *Watchdog {
	return &Watchdog{wcr: WCRSoftwareReset | WCRAssertWdog}
}

func (w *Watchdog) Window() memory.Window {
	return memory.Window{Base: WatchdogWCR, Size: 4}
}

// WCR returns the control register.
func (w *Watchdog) WCR() uint16 {
	return w.wcr
}

func (w *Watchdog) Read8(addr uint32) byte {
	v := w.Read16(addr &^ 1)
	if addr&1 != 0 {
		return byte(v >> 8)
	}
	return byte(v)
}

// Write8 is ignored; the registers only decode halfword writes.
func (w *Watchdog) Write8(addr uint32, v byte) {}

func (w *Watchdog) Read16(addr uint32) uint16 {
	if addr == WatchdogWCR {
		return w.wcr
	}
	return 0
}

func (w *Watchdog) Write16(addr uint32, v uint16) {
	switch addr {
	case WatchdogWCR:
		w.writeWCR(v)
	case WatchdogWSR:
		switch {
		case v == WSRService1:
			w.armed = true
		case v == WSRService2 && w.armed:
			w.armed = false
			w.Services++
		default:
			w.armed = false
		}
	}
}

func (w *Watchdog) writeWCR(v uint16) {
	w.wcr = v
	if v&WCRSoftwareReset == 0 {
		// SRS self-clears back to 1 after asserting the reset.
		w.wcr |= WCRSoftwareReset
		if w.OnReset != nil {
			w.OnReset()
		}
	}
	if v&WCRAssertWdog == 0 && w.OnShutdown != nil {
		w.OnShutdown()
	}
}
