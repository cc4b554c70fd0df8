package flash

import "hitagi/memory"

// AMD-like (AMD, Fujitsu, Spansion) 16-bit chips.
//
// References: Spansion S71WS-N datasheet, "How to Use Spansion LLD v5.13 to
// Implement a Flash Driver".

const (
	amdCmdReg1 = 0x555
	amdCmdReg2 = 0x2AA

	// DQ7 data polling bit.
	amdDataDone = 0x80

	amdCmdRead          = 0xF0
	amdCmdSetupErase    = 0x80
	amdCmdSetupWrite    = 0xA0
	amdCmdSetupWriteBuf = 0x25
	amdCmdConfirmBuf    = 0x29
	amdCmdEraseSector   = 0x30
	amdCmdUnlock1       = 0xAA
	amdCmdUnlock2       = 0x55
	amdCmdPartID        = 0x90
	amdCmdSecSiEnter    = 0x88
	amdCmdSecSiExit     = 0x90
	amdCmdSecSiExit2    = 0x00

	amdOTPWords = 64

	amdParams1Start = 0x10000000
	amdParams1End   = 0x10020000
	amdParams2Start = 0x11FE0000
	amdParams2End   = 0x12000000
)

// AMDDriver programs AMD-style command set chips.
type AMDDriver struct {
	chip
}

func (d *AMDDriver) Family() Family { return AMD }

func (d *AMDDriver) Init() error {
	d.reset(d.opts.Window.Base)
	return nil
}

func (d *AMDDriver) reset(addr uint32) {
	d.bus.Write16(addr, amdCmdRead)
}

func (d *AMDDriver) unlockCycles() {
	d.bus.Write16(d.cmd(amdCmdReg1), amdCmdUnlock1)
	d.bus.Write16(d.cmd(amdCmdReg2), amdCmdUnlock2)
}

// wait polls DQ7 at addr until it matches the expected data, then reads the
// location once more and compares the whole word.
func (d *AMDDriver) wait(op string, addr uint32, data uint16) error {
	word := d.bus.Read16(addr)
	err := d.poll(op, addr, func() bool {
		if word&amdDataDone == data&amdDataDone {
			return true
		}
		word = d.bus.Read16(addr)
		return false
	})
	if err != nil {
		return err
	}
	word = d.bus.Read16(addr)
	if word != data {
		return &StatusError{Op: op, Addr: addr, Status: word}
	}
	return nil
}

// Unlock is a no-op: these parts have no per-block lock to clear before
// erase.
func (d *AMDDriver) Unlock(addr uint32) error {
	return d.check("unlock", addr, 2)
}

func (d *AMDDriver) Erase(addr uint32) error {
	if err := d.check("erase", addr, 2); err != nil {
		return err
	}
	d.unlockCycles()
	d.bus.Write16(d.cmd(amdCmdReg1), amdCmdSetupErase)
	d.unlockCycles()
	d.bus.Write16(addr, amdCmdEraseSector)

	err := d.wait("erase", addr, 0xFFFF)
	d.reset(addr)
	return err
}

func (d *AMDDriver) WriteBlock(addr uint32, words []uint16) error {
	if err := d.check("write block", addr, 2*len(words)); err != nil {
		return err
	}
	for i, word := range words {
		if word == 0xFFFF {
			continue
		}
		dst := addr + uint32(2*i)
		d.unlockCycles()
		d.bus.Write16(d.cmd(amdCmdReg1), amdCmdSetupWrite)
		d.bus.Write16(dst, word)

		d.service()
		if err := d.wait("write block", dst, word); err != nil {
			d.reset(addr)
			return err
		}
	}
	d.reset(addr)
	return nil
}

func (d *AMDDriver) WriteBuffer(addr uint32, words []uint16) error {
	if err := d.check("write buffer", addr, 2*len(words)); err != nil {
		return err
	}
	for src := 0; src < len(words); {
		n := len(words) - src
		if n > MaxBufferWords {
			n = MaxBufferWords
		}
		start := addr + uint32(2*src)
		last := start + uint32(2*(n-1))

		d.unlockCycles()
		d.bus.Write16(start, amdCmdSetupWriteBuf)
		d.bus.Write16(start, uint16(n-1))
		for i := 0; i < n; i++ {
			d.bus.Write16(start+uint32(2*i), words[src+i])
		}
		d.bus.Write16(start, amdCmdConfirmBuf)

		if err := d.wait("write buffer", last, words[src+n-1]); err != nil {
			// Write-buffer-abort reset before returning to read mode.
			d.unlockCycles()
			d.bus.Write16(d.cmd(amdCmdReg1), amdCmdRead)
			d.reset(addr)
			return err
		}
		d.service()
		src += n
	}
	d.reset(addr)
	return nil
}

// Geometry uses 8 parameter sectors of 0x8000 at both ends of the 32 MiB
// array and 0x20000 sectors in between.
func (d *AMDDriver) Geometry(addr uint32) uint32 {
	return geometry(addr,
		memory.Window{Base: amdParams1Start, Size: amdParams1End - amdParams1Start},
		memory.Window{Base: amdParams2Start, Size: amdParams2End - amdParams2Start},
	)
}

// PartID returns the three autoselect device ID bytes, cycle 1 in bits 23-16.
func (d *AMDDriver) PartID(addr uint32) uint32 {
	reg := func(off uint32) uint32 { return addr + 2*off }

	d.bus.Write16(reg(amdCmdReg1), amdCmdUnlock1)
	d.bus.Write16(reg(amdCmdReg2), amdCmdUnlock2)
	d.bus.Write16(reg(amdCmdReg1), amdCmdPartID)

	id := uint32(d.bus.Read16(reg(0x01))&0xFF) << 16
	id |= uint32(d.bus.Read16(reg(0x0E))&0xFF) << 8
	id |= uint32(d.bus.Read16(reg(0x0F)) & 0xFF)

	d.reset(addr)
	return id
}

// ReadOTP reads the 128-byte Secured Silicon Sector.
func (d *AMDDriver) ReadOTP(addr uint32) ([]byte, error) {
	if err := d.check("read otp", addr, 2*amdOTPWords); err != nil {
		return nil, err
	}
	d.unlockCycles()
	d.bus.Write16(d.cmd(amdCmdReg1), amdCmdSecSiEnter)

	out := make([]byte, 2*amdOTPWords)
	for i := 0; i < amdOTPWords; i++ {
		w := d.bus.Read16(addr + uint32(2*i))
		out[2*i] = byte(w)
		out[2*i+1] = byte(w >> 8)
		d.service()
	}

	d.unlockCycles()
	d.bus.Write16(d.cmd(amdCmdReg1), amdCmdSecSiExit)
	d.bus.Write16(d.opts.Window.Base, amdCmdSecSiExit2)
	return out, nil
}
