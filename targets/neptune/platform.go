package neptune

import (
	"hitagi/core"
	"hitagi/flash"
	"hitagi/memory"
	"hitagi/protocol"
)

// Platform drives the SoC registers through the memory space. It implements
// core.Machine.
type Platform struct {
	mem    *memory.Space
	flavor Flavor
}

// NewPlatform returns a platform using mem for register access.
func NewPlatform(mem *memory.Space, flavor Flavor) *Platform {
	return &Platform{mem: mem, flavor: flavor}
}

// Flavor returns the SoC generation.
func (p *Platform) Flavor() Flavor {
	return p.flavor
}

// Init enables the watchdog with a 32 s timeout and services it once.
func (p *Platform) Init() {
	p.write16(WatchdogWCR, WCRInit)
	p.ServiceWatchdog()
}

func (p *Platform) ServiceWatchdog() {
	p.write16(WatchdogWSR, WSRService1)
	p.write16(WatchdogWSR, WSRService2)
}

// Reboot marks the next boot as a software reset in RTC scratch RAM and
// asserts the watchdog reset.
func (p *Platform) Reboot() {
	if p.readPCRAM0() < PCRAMSoftwareReset {
		p.write16(RTCPCRAM0, PCRAMSoftwareReset)
		p.write16(RTCPCRAM0+2, 0)
	}
	p.write16(WatchdogWCR, p.read16(WatchdogWCR)&^WCRSoftwareReset)
}

// PowerDown asserts the wdog_b output, which cuts the power supply.
func (p *Platform) PowerDown() {
	p.write16(WatchdogWCR, p.read16(WatchdogWCR)&^WCRAssertWdog)
}

// NewFlash builds the flash driver with the watchdog serviced in every
// poll loop.
func (p *Platform) NewFlash(family flash.Family, bus flash.Bus, window memory.Window, pollLimit int) (flash.Driver, error) {
	return flash.New(family, bus,
		flash.WithWindow(window),
		flash.WithPollLimit(pollLimit),
		flash.WithWatchdog(p.ServiceWatchdog))
}

// Config returns the engine configuration for this platform.
func (p *Platform) Config(link protocol.Link, d flash.Driver) core.Config {
	return core.Config{
		Link:        link,
		PacketSize:  p.flavor.PacketSize(),
		Memory:      p.mem,
		Flash:       d,
		FlashBase:   FlashBase,
		Machine:     p,
		UIDAddr:     UIDAddr,
		RevAddr:     RevAddr,
		VersionAddr: VersionAddr,
		IMEIAddr:    IMEIAddr,
		ResetDelay:  core.DefaultResetDelay,
	}
}

// Register accesses on real hardware cannot fault. In an emulated map an
// unmapped register is dropped.
func (p *Platform) write16(addr uint32, v uint16) {
	_ = p.mem.Write16(addr, v)
}

func (p *Platform) read16(addr uint32) uint16 {
	v, _ := p.mem.Read16(addr)
	return v
}

func (p *Platform) readPCRAM0() uint32 {
	return uint32(p.read16(RTCPCRAM0)) | uint32(p.read16(RTCPCRAM0+2))<<16
}

// NewSystemID returns the UID and revision registers preloaded with uid
// (most significant word first) and rev.
func NewSystemID(uid [UIDWords]uint16, rev uint16) *memory.RAM {
	r := memory.NewRAM(UIDAddr, RevAddr+2-UIDAddr)
	for k, w := range uid {
		r.Write16(UIDAddr+uint32(2*(UIDWords-1-k)), w)
	}
	r.Write16(RevAddr, rev)
	return r
}

// NewRTCScratch returns the PCRAM0 register.
func NewRTCScratch() *memory.RAM {
	return memory.NewRAM(RTCPCRAM0, 4)
}
