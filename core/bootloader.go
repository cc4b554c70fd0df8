package core

import (
	"context"
	"errors"

	"hitagi/flash"
	"hitagi/memory"
	"hitagi/protocol"
)

var (
	// ErrRestart is returned by Run after RESTART was acknowledged.
	ErrRestart = errors.New("core: restart requested")

	// ErrPowerDown is returned by Run after POWER_DOWN was acknowledged.
	ErrPowerDown = errors.New("core: power down requested")

	errNoMemory = errors.New("core: no memory space configured")
	errNoLink   = errors.New("core: no link configured")
)

// DefaultResetDelay is the number of watchdog services spun between the
// RESTART/POWER_DOWN acknowledgement and the machine action.
const DefaultResetDelay = 0x10000

// versionLen bounds the bootloader version string read by RQVN.
const versionLen = 32

// Config describes the platform the engine runs on.
type Config struct {
	Link       protocol.Link
	PacketSize int

	// Memory is the physical address space READ, RQRC and RAM uploads use.
	Memory *memory.Space

	// Flash is the chip driver for flashing BIN uploads; nil leaves only
	// RAM uploads working.
	Flash     flash.Driver
	FlashBase uint32

	Machine Machine

	UIDAddr     uint32 // 8 x 16-bit unique id words
	RevAddr     uint32 // 16-bit hardware revision
	VersionAddr uint32 // NUL or 0xFF terminated bootloader version
	IMEIAddr    uint32 // flash block whose OTP holds the IMEI

	// ResetDelay is spun after acknowledging RESTART or POWER_DOWN.
	ResetDelay int
}

// Bootloader is the protocol engine: one reassembler, one encoder, the
// command table and the session state.
type Bootloader struct {
	cfg     Config
	mem     *memory.Space
	flash   flash.Driver
	machine Machine

	rx      *protocol.Reassembler
	enc     *protocol.Encoder
	table   *CommandTable
	session Session

	readBuf [protocol.MaxReadResponse]byte
}

// New validates cfg and builds the engine with the standard command set.
func New(cfg Config) (*Bootloader, error) {
	if cfg.Link == nil {
		return nil, errNoLink
	}
	if cfg.Memory == nil {
		return nil, errNoMemory
	}
	if cfg.Machine == nil {
		cfg.Machine = nopMachine{}
	}
	if cfg.FlashBase == 0 {
		cfg.FlashBase = flash.StartAddress
	}
	if cfg.ResetDelay < 0 {
		cfg.ResetDelay = 0
	}

	b := &Bootloader{
		cfg:     cfg,
		mem:     cfg.Memory,
		flash:   cfg.Flash,
		machine: cfg.Machine,
		rx:      protocol.NewReassembler(cfg.Link, protocol.DeviceBinaryFields),
		enc:     protocol.NewEncoder(cfg.Link, cfg.PacketSize),
		table:   NewCommandTable(),
	}
	b.rx.SetServiceCallback(b.service)
	b.enc.SetServiceCallback(b.service)
	b.registerCommands()
	return b, nil
}

// Session returns the live session state.
func (b *Bootloader) Session() *Session {
	return &b.session
}

// Commands returns the command table.
func (b *Bootloader) Commands() *CommandTable {
	return b.table
}

func (b *Bootloader) service() {
	b.machine.ServiceWatchdog()
}

// Run resets the session and serves frames until ctx is cancelled, the link
// fails, or a RESTART/POWER_DOWN completes.
func (b *Bootloader) Run(ctx context.Context) error {
	if err := b.session.Reset(b.flash); err != nil {
		return err
	}
	DebugPrintln("[HITAGI] " + protocol.Version + " ready")

	for {
		f, err := b.rx.Next(ctx)
		if err != nil {
			var fe *protocol.FramingError
			if errors.As(err, &fe) {
				DebugPrintln("[HITAGI] " + fe.Error())
				b.enc.SendError(fe.Code)
				continue
			}
			return err
		}
		b.service()
		if err := b.Dispatch(&f); err != nil {
			return err
		}
	}
}

// Dispatch runs the handler for f. Command errors are answered with an ERR
// frame and swallowed; anything else ends Run.
func (b *Bootloader) Dispatch(f *protocol.Frame) error {
	err := b.table.Dispatch(f)
	if err == nil {
		return nil
	}
	var ce *CommandError
	if errors.As(err, &ce) {
		DebugPrintln("[HITAGI] " + ce.Error())
		b.enc.SendError(ce.Code)
		return nil
	}
	return err
}

// readUID returns the unique id words, most significant first.
func (b *Bootloader) readUID() ([8]uint16, error) {
	var uid [8]uint16
	for k := range uid {
		w, err := b.mem.Read16(b.cfg.UIDAddr + uint32(2*(7-k)))
		if err != nil {
			return uid, err
		}
		uid[k] = w
	}
	return uid, nil
}

func (b *Bootloader) delay() {
	for i := 0; i < b.cfg.ResetDelay; i++ {
		b.service()
	}
}
