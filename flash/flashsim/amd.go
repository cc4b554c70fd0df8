package flashsim

import "hitagi/memory"

type amdState uint8

const (
	amdRead amdState = iota
	amdUnlock1
	amdUnlock2
	amdEraseSetup
	amdEraseUnlock1
	amdEraseUnlock2
	amdProgramData
	amdBufferCount
	amdBufferData
	amdBufferConfirm
	amdSecSiExit
)

const amdSecSiWords = 64

// AMDChip is an S71WS-N style chip with eight 32 KiB parameter sectors at
// both ends of the array. Status is reported by DQ7 data polling and DQ6
// toggling on the address being programmed or erased.
type AMDChip struct {
	array

	// Autoselect codes at word offsets 0x00, 0x01, 0x0E and 0x0F.
	Manufacturer uint16
	DeviceID     [3]uint16

	state      amdState
	autoselect bool
	secsi      bool
	secsiData  [amdSecSiWords]uint16
	protected  map[uint32]bool

	busy     int
	busyAddr uint32
	busyData uint16
	toggle   uint16

	bufSector memory.Window
	bufCount  int
	buf       []bufferedWord
}

// NewAMDChip creates an erased chip at base.
func NewAMDChip(base, size uint32) *AMDChip {
	c := &AMDChip{
		array: newArray(base, size,
			memory.Window{Base: base, Size: 0x20000},
			memory.Window{Base: base + size - 0x20000, Size: 0x20000},
		),
		Manufacturer: 0x0001,
		DeviceID:     [3]uint16{0x227E, 0x2230, 0x2200},
		protected:    make(map[uint32]bool),
	}
	for i := range c.secsiData {
		c.secsiData[i] = 0xFFFF
	}
	return c
}

// Protect makes the sector containing addr ignore program and erase.
func (c *AMDChip) Protect(addr uint32) {
	c.protected[c.sector(addr).Base] = true
}

// SetSecSi stores a Secured Silicon Sector word.
func (c *AMDChip) SetSecSi(word int, v uint16) {
	c.secsiData[word] = v
}

func (c *AMDChip) Read8(addr uint32) byte {
	return byteOf(c.Read16(addr&^1), addr)
}

// Write8 is not a valid flash cycle on a 16-bit bus; it is dropped.
func (c *AMDChip) Write8(addr uint32, v byte) {}

// cmdOffset decodes the word address lines the command decoder looks at.
func (c *AMDChip) cmdOffset(addr uint32) uint32 {
	return (c.win.Offset(addr) / 2) & 0x7FF
}

func (c *AMDChip) Read16(addr uint32) uint16 {
	if c.busy > 0 && addr == c.busyAddr {
		c.busy--
		c.Stats.BusyReads++
		c.toggle ^= 0x40
		return (^c.busyData & 0x80) | c.toggle
	}
	if c.autoselect {
		switch (c.win.Offset(addr) / 2) & 0xFF {
		case 0x00:
			return c.Manufacturer
		case 0x01:
			return c.DeviceID[0]
		case 0x0E:
			return c.DeviceID[1]
		case 0x0F:
			return c.DeviceID[2]
		}
		return 0
	}
	if c.secsi {
		if w := c.win.Offset(addr) / 2; w < amdSecSiWords {
			return c.secsiData[w]
		}
	}
	return c.words[c.index(addr)]
}

func (c *AMDChip) start(addr uint32, expect uint16) {
	c.busy = c.Latency
	c.busyAddr = addr
	c.busyData = expect
}

// idle returns to the read mode the chip was in before a command sequence.
func (c *AMDChip) idle() {
	c.state = amdRead
}

func (c *AMDChip) Write16(addr uint32, v uint16) {
	off := c.cmdOffset(addr)

	switch c.state {
	case amdRead:
		switch {
		case v == 0xF0:
			c.autoselect = false
		case v == 0xAA && off == 0x555:
			c.state = amdUnlock1
		}

	case amdUnlock1:
		if v == 0x55 && off == 0x2AA {
			c.state = amdUnlock2
			return
		}
		c.Stats.CommandErrors++
		c.idle()

	case amdUnlock2:
		c.idle()
		switch {
		case v == 0x25:
			c.bufSector = c.sector(addr)
			c.state = amdBufferCount
		case v == 0xF0:
			c.autoselect = false
		case off != 0x555:
			c.Stats.CommandErrors++
		case v == 0x80:
			c.state = amdEraseSetup
		case v == 0xA0:
			c.state = amdProgramData
		case v == 0x90 && c.secsi:
			c.state = amdSecSiExit
		case v == 0x90:
			c.autoselect = true
		case v == 0x88:
			c.secsi = true
		default:
			c.Stats.CommandErrors++
		}

	case amdEraseSetup:
		c.idle()
		if v == 0xAA && off == 0x555 {
			c.state = amdEraseUnlock1
		}

	case amdEraseUnlock1:
		c.idle()
		if v == 0x55 && off == 0x2AA {
			c.state = amdEraseUnlock2
		}

	case amdEraseUnlock2:
		c.idle()
		switch {
		case v == 0x30:
			sec := c.sector(addr)
			if c.protected[sec.Base] {
				return
			}
			c.erase(sec)
			c.start(addr, 0xFFFF)
		case v == 0x10 && off == 0x555:
			for a := c.win.Base; uint64(a) < c.win.End(); {
				sec := c.sector(a)
				if !c.protected[sec.Base] {
					c.erase(sec)
				}
				a += sec.Size
			}
			c.start(addr, 0xFFFF)
		default:
			c.Stats.CommandErrors++
		}

	case amdProgramData:
		c.idle()
		if c.protected[c.sector(addr).Base] {
			return
		}
		c.program(addr, v)
		c.start(addr, v)

	case amdBufferCount:
		c.bufCount = int(v) + 1
		c.buf = c.buf[:0]
		if c.bufCount > 32 || !c.bufSector.Contains(addr) {
			c.Stats.CommandErrors++
			c.idle()
			return
		}
		c.state = amdBufferData

	case amdBufferData:
		if !c.bufSector.Contains(addr) {
			c.Stats.CommandErrors++
			c.idle()
			return
		}
		c.buf = append(c.buf, bufferedWord{addr: addr, data: v})
		if len(c.buf) == c.bufCount {
			c.state = amdBufferConfirm
		}

	case amdBufferConfirm:
		c.idle()
		if v != 0x29 || !c.bufSector.Contains(addr) {
			c.Stats.CommandErrors++
			return
		}
		if c.protected[c.bufSector.Base] {
			return
		}
		var last bufferedWord
		for _, w := range c.buf {
			c.program(w.addr, w.data)
			last = w
		}
		c.Stats.BufferPrograms++
		c.start(last.addr, last.data)

	case amdSecSiExit:
		c.idle()
		if v == 0x00 {
			c.secsi = false
		}
	}
}
