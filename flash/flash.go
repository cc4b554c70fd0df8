// Package flash drives the parallel NOR flash behind the SoC's external bus.
//
// Two incompatible command sets are supported: the Intel/ST/Numonyx family
// (StrataFlash Wireless L30) and the AMD/Fujitsu/Spansion family (S71WS-N).
// Both speak 16-bit words through a Bus and must never be unified: the
// command sequences are different hardware protocols.
//
// Every status poll is a bounded loop that calls the watchdog service
// callback on each iteration. The SoC watchdog reboots the phone if a sector
// erase runs without it.
package flash

import (
	"errors"
	"fmt"
	"strings"

	"hitagi/memory"
)

// StartAddress is where the flash window is mapped on Neptune LTE/LTE2.
const StartAddress = 0x10000000

// DefaultSize is the 32 MiB window of the S71WS/L30 parts used on these phones.
const DefaultSize = 0x2000000

const (
	ParameterBlockSize = 0x8000
	MainBlockSize      = 0x20000

	// MaxBufferWords is the hardware write-buffer limit of both families.
	MaxBufferWords = 32

	// DefaultPollLimit bounds every status poll loop.
	DefaultPollLimit = 1 << 24
)

var ErrPollTimeout = errors.New("flash: status poll limit exceeded")

// Family selects the chip command set.
type Family uint8

const (
	Intel Family = iota
	AMD
)

func (f Family) String() string {
	switch f {
	case Intel:
		return "intel"
	case AMD:
		return "amd"
	default:
		return fmt.Sprintf("family(%d)", uint8(f))
	}
}

// ParseFamily converts a config string ("intel", "amd") to a Family.
func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "intel", "st", "numonyx":
		return Intel, nil
	case "amd", "spansion", "fujitsu":
		return AMD, nil
	}
	return 0, fmt.Errorf("flash: unknown chip family %q", s)
}

// Bus is the volatile 16-bit view of the flash window. Writes are command
// or data cycles, reads return array data, status or IDs depending on the
// chip state.
type Bus interface {
	Read16(addr uint32) uint16
	Write16(addr uint32, v uint16)
}

// Driver is the chip-level capability set used by the BIN handler and the
// identification commands. All calls are synchronous.
type Driver interface {
	Family() Family

	// Init puts the chip into read-array mode.
	Init() error

	// Unlock clears the block lock bit of the block containing addr.
	Unlock(addr uint32) error

	// Erase erases the sector containing addr.
	Erase(addr uint32) error

	// WriteBlock programs one word at a time, skipping 0xFFFF words.
	WriteBlock(addr uint32, words []uint16) error

	// WriteBuffer programs in bursts of at most MaxBufferWords words.
	WriteBuffer(addr uint32, words []uint16) error

	// Geometry returns the offset of addr inside its erase block.
	Geometry(addr uint32) uint32

	// PartID returns the chip identification code.
	PartID(addr uint32) uint32

	// ReadOTP returns the one-time-programmable area.
	ReadOTP(addr uint32) ([]byte, error)
}

// Options configures a driver.
type Options struct {
	// Window limits every access. Defaults to StartAddress/DefaultSize.
	Window memory.Window

	// PollLimit bounds status polls; 0 polls forever like the ROM code.
	PollLimit int

	// Service is called on every poll iteration and between programmed words.
	Service func()
}

// Option is a functional option for New.
type Option func(*Options)

// WithWindow sets the flash window.
func WithWindow(w memory.Window) Option {
	return func(o *Options) {
		o.Window = w
	}
}

// WithPollLimit bounds the status poll loops.
func WithPollLimit(n int) Option {
	return func(o *Options) {
		if n >= 0 {
			o.PollLimit = n
		}
	}
}

// WithWatchdog sets the watchdog service callback.
func WithWatchdog(service func()) Option {
	return func(o *Options) {
		o.Service = service
	}
}

func defaultOptions() Options {
	return Options{
		Window:    memory.Window{Base: StartAddress, Size: DefaultSize},
		PollLimit: DefaultPollLimit,
	}
}

// New returns the driver for family.
func New(family Family, bus Bus, opts ...Option) (Driver, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	c := chip{bus: bus, opts: o}
	switch family {
	case Intel:
		return &IntelDriver{chip: c}, nil
	case AMD:
		return &AMDDriver{chip: c}, nil
	}
	return nil, fmt.Errorf("flash: unsupported family %s", family)
}

// StatusError reports a failed erase/program together with the raw status
// word the chip returned.
type StatusError struct {
	Op     string
	Addr   uint32
	Status uint16
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("flash: %s at 0x%08X failed: status 0x%04X", e.Op, e.Addr, e.Status)
}

// WindowError is returned for an access outside the flash window.
type WindowError struct {
	Op     string
	Addr   uint32
	Window memory.Window
}

func (e *WindowError) Error() string {
	return fmt.Sprintf("flash: %s at 0x%08X outside window %s", e.Op, e.Addr, e.Window)
}

// chip holds what both families share: the bus, the window and the poll
// loop with its watchdog hook.
type chip struct {
	bus  Bus
	opts Options
}

func (c *chip) check(op string, addr uint32, n int) error {
	if addr&1 != 0 || !c.opts.Window.ContainsRange(addr, uint32(n)) {
		return &WindowError{Op: op, Addr: addr, Window: c.opts.Window}
	}
	return nil
}

func (c *chip) service() {
	if c.opts.Service != nil {
		c.opts.Service()
	}
}

// poll calls done until it reports true, servicing the watchdog between
// attempts.
func (c *chip) poll(op string, addr uint32, done func() bool) error {
	for i := 0; c.opts.PollLimit == 0 || i < c.opts.PollLimit; i++ {
		if done() {
			return nil
		}
		c.service()
	}
	return fmt.Errorf("%s at 0x%08X: %w", op, addr, ErrPollTimeout)
}

// cmd returns the absolute address of a word-offset command register.
func (c *chip) cmd(wordOffset uint32) uint32 {
	return c.opts.Window.Base + wordOffset*2
}

// geometry is addr % blockSize where parameter regions use the small block.
func geometry(addr uint32, params ...memory.Window) uint32 {
	blockSize := uint32(MainBlockSize)
	for _, w := range params {
		if w.Contains(addr) {
			blockSize = ParameterBlockSize
			break
		}
	}
	return addr & (blockSize - 1)
}

// Words reinterprets a byte payload as the 16-bit words a halfword load on
// the little-endian core sees. A trailing odd byte is dropped.
func Words(p []byte) []uint16 {
	w := make([]uint16, len(p)/2)
	for i := range w {
		w[i] = uint16(p[2*i]) | uint16(p[2*i+1])<<8
	}
	return w
}
