package flashsim

import "hitagi/memory"

type intelState uint8

const (
	intelReadArray intelState = iota
	intelReadStatus
	intelReadID
	intelEraseConfirm
	intelLockConfirm
	intelProgramData
	intelBufferCount
	intelBufferData
	intelBufferConfirm
)

const (
	srReady    = 0x80
	srErase    = 0x20
	srProgram  = 0x10
	srLocked   = 0x02
	srSequence = srErase | srProgram

	intelPRFirst = 0x80
	intelPRLast  = 0x109
)

type bufferedWord struct {
	addr uint32
	data uint16
}

// IntelChip is an L30-style bottom-boot chip: four 32 KiB parameter blocks
// followed by 128 KiB main blocks. All blocks are locked at power-up.
type IntelChip struct {
	array

	Manufacturer uint16
	Device       uint16

	state   intelState
	status  uint16
	busy    int
	idBlock uint32
	locked  map[uint32]bool
	pr      [intelPRLast - intelPRFirst + 1]uint16

	bufSector memory.Window
	bufCount  int
	buf       []bufferedWord
}

// NewIntelChip creates an erased, fully locked chip at base.
func NewIntelChip(base, size uint32) *IntelChip {
	c := &IntelChip{
		array:        newArray(base, size, memory.Window{Base: base, Size: 0x20000}),
		Manufacturer: 0x0089,
		Device:       0x880C,
		status:       srReady,
		locked:       make(map[uint32]bool),
	}
	for i := range c.pr {
		c.pr[i] = 0xFFFF
	}
	c.LockAll()
	return c
}

// LockAll sets every block lock bit, as after power-up.
func (c *IntelChip) LockAll() {
	for off := uint32(0); off < c.win.Size; {
		sec := c.sector(c.win.Base + off)
		c.locked[sec.Base] = true
		off += sec.Size
	}
}

// Locked reports the lock bit of the block containing addr.
func (c *IntelChip) Locked(addr uint32) bool {
	return c.locked[c.sector(addr).Base]
}

// SetProtection stores a protection register word. Offsets are word offsets
// in identifier space (0x80 lock register 0 .. 0x109 end of PR16).
func (c *IntelChip) SetProtection(offset int, v uint16) {
	c.pr[offset-intelPRFirst] = v
}

func (c *IntelChip) Read8(addr uint32) byte {
	return byteOf(c.Read16(addr&^1), addr)
}

// Write8 is not a valid flash cycle on a 16-bit bus; it is dropped.
func (c *IntelChip) Write8(addr uint32, v byte) {}

func (c *IntelChip) Read16(addr uint32) uint16 {
	switch c.state {
	case intelReadArray:
		return c.words[c.index(addr)]
	case intelReadID:
		return c.identifier(addr)
	}
	if c.busy > 0 {
		c.busy--
		c.Stats.BusyReads++
		return c.status &^ srReady
	}
	return c.status | srReady
}

func (c *IntelChip) identifier(addr uint32) uint16 {
	off := int(c.win.Offset(addr)-c.win.Offset(c.idBlock)) / 2
	switch {
	case off == 0:
		return c.Manufacturer
	case off == 1:
		return c.Device
	case off == 2:
		if c.locked[c.idBlock] {
			return 1
		}
		return 0
	case off >= intelPRFirst && off <= intelPRLast:
		return c.pr[off-intelPRFirst]
	}
	return 0
}

func (c *IntelChip) fail(bits uint16) {
	c.status |= bits
	c.Stats.CommandErrors++
	c.state = intelReadStatus
}

func (c *IntelChip) complete() {
	c.busy = c.Latency
	c.state = intelReadStatus
}

func (c *IntelChip) Write16(addr uint32, v uint16) {
	switch c.state {
	case intelEraseConfirm:
		if v != 0xD0 {
			c.fail(srSequence)
			return
		}
		sec := c.sector(addr)
		if c.locked[sec.Base] {
			c.fail(srErase | srLocked)
			return
		}
		c.erase(sec)
		c.complete()
		return

	case intelLockConfirm:
		sec := c.sector(addr)
		switch v {
		case 0xD0:
			delete(c.locked, sec.Base)
		case 0x01, 0x2F:
			c.locked[sec.Base] = true
		default:
			c.fail(srSequence)
			return
		}
		c.state = intelReadStatus
		return

	case intelProgramData:
		if c.Locked(addr) {
			c.fail(srProgram | srLocked)
			return
		}
		c.program(addr, v)
		c.complete()
		return

	case intelBufferCount:
		c.bufCount = int(v) + 1
		if c.bufCount > 32 {
			c.fail(srSequence)
			return
		}
		c.bufSector = c.sector(addr)
		c.buf = c.buf[:0]
		c.state = intelBufferData
		return

	case intelBufferData:
		if !c.bufSector.Contains(addr) {
			c.fail(srSequence)
			return
		}
		c.buf = append(c.buf, bufferedWord{addr: addr, data: v})
		if len(c.buf) == c.bufCount {
			c.state = intelBufferConfirm
		}
		return

	case intelBufferConfirm:
		if v != 0xD0 || !c.bufSector.Contains(addr) {
			c.fail(srSequence)
			return
		}
		if c.locked[c.bufSector.Base] {
			c.fail(srProgram | srLocked)
			return
		}
		for _, w := range c.buf {
			c.program(w.addr, w.data)
		}
		c.Stats.BufferPrograms++
		c.complete()
		return
	}

	switch v {
	case 0xFF:
		c.state = intelReadArray
	case 0x50:
		c.status = srReady
	case 0x70:
		c.state = intelReadStatus
	case 0x90:
		c.idBlock = c.sector(addr).Base
		c.state = intelReadID
	case 0x20:
		c.state = intelEraseConfirm
	case 0x40, 0x10:
		c.state = intelProgramData
	case 0x60:
		c.state = intelLockConfirm
	case 0xE8:
		// The buffer is refused while a sequence error is pending.
		if c.status&srSequence != 0 {
			c.state = intelReadStatus
			return
		}
		c.state = intelBufferCount
	default:
		c.fail(srSequence)
	}
}
