package main

import (
	"fmt"
	"os"

	"github.com/golang/glog"

	"hitagi/core"
	"hitagi/flash"
	"hitagi/flash/flashsim"
	"hitagi/memory"
	"hitagi/protocol"
	"hitagi/targets/neptune"
)

// chip is a simulated flash part as both the memory map and the driver see it.
type chip interface {
	memory.Region
	Load(addr uint32, p []byte)
	Dump(addr uint32, n int) []byte
}

// Phone is an emulated Neptune board.
type Phone struct {
	Space    *memory.Space
	RAM      *memory.RAM
	Chip     chip
	Watchdog *neptune.Watchdog
	Platform *neptune.Platform
	Driver   flash.Driver

	// Resets and Shutdowns count watchdog-triggered events.
	Resets    int
	Shutdowns int
}

// NewPhone builds the memory map described by cfg and initialises the
// platform the way the boot code does.
func NewPhone(cfg *Config) (*Phone, error) {
	flavor, err := neptune.ParseFlavor(cfg.Flavor)
	if err != nil {
		return nil, err
	}
	family, err := flash.ParseFamily(cfg.FlashFamily)
	if err != nil {
		return nil, err
	}
	uid, err := cfg.ParseUID()
	if err != nil {
		return nil, err
	}

	p := &Phone{
		Space:    memory.NewSpace(),
		RAM:      memory.NewRAM(cfg.RAMBase, cfg.RAMSize),
		Watchdog: neptune.NewWatchdog(),
	}
	switch family {
	case flash.Intel:
		p.Chip = flashsim.NewIntelChip(neptune.FlashBase, cfg.FlashSize)
	case flash.AMD:
		p.Chip = flashsim.NewAMDChip(neptune.FlashBase, cfg.FlashSize)
	}

	if cfg.FlashImage != "" {
		img, err := os.ReadFile(cfg.FlashImage)
		if err != nil {
			return nil, err
		}
		if uint32(len(img)) > cfg.FlashSize {
			return nil, fmt.Errorf("emulator: flash image is 0x%X bytes, chip is 0x%X", len(img), cfg.FlashSize)
		}
		p.Chip.Load(neptune.FlashBase, img)
	}
	if cfg.BootVersion != "" {
		p.Chip.Load(neptune.VersionAddr, append([]byte(cfg.BootVersion), 0))
	}

	p.Watchdog.OnReset = func() {
		p.Resets++
		glog.Info("watchdog: software reset asserted")
	}
	p.Watchdog.OnShutdown = func() {
		p.Shutdowns++
		glog.Info("watchdog: wdog_b asserted, power off")
	}

	for _, r := range []memory.Region{
		p.RAM,
		p.Chip,
		p.Watchdog,
		neptune.NewRTCScratch(),
		neptune.NewSystemID(uid, cfg.Revision),
	} {
		if err := p.Space.Map(r); err != nil {
			return nil, fmt.Errorf("emulator: map %s: %w", r.Window(), err)
		}
	}

	p.Platform = neptune.NewPlatform(p.Space, flavor)
	p.Platform.Init()

	p.Driver, err = p.Platform.NewFlash(family, p.Chip, p.Chip.Window(), cfg.PollLimit)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Bootloader returns the protocol engine for this phone on link.
func (p *Phone) Bootloader(link protocol.Link) (*core.Bootloader, error) {
	return core.New(p.Platform.Config(link, p.Driver))
}
