package flash

import "hitagi/memory"

// Intel-like (Intel, ST, Numonyx) 16-bit chips.
//
// Reference: Numonyx StrataFlash Wireless Memory (L30) datasheet.

const (
	intelStatusReady = 0x80
	// SR.5 erase error, SR.4 program error, SR.3 VPP low, SR.1 block locked.
	intelStatusErrors = 0x3A
	// SR.5|SR.4 set together mean an improper command sequence.
	intelStatusSequence = 0x30
	// Any of these set means the buffered program has finished.
	intelStatusBufferDone = 0xBC

	intelCmdErase       = 0x20
	intelCmdWrite       = 0x40
	intelCmdClear       = 0x50
	intelCmdLock        = 0x60
	intelCmdPartID      = 0x90
	intelCmdConfirm     = 0xD0
	intelCmdWriteBuffer = 0xE8
	intelCmdRead        = 0xFF

	// Protection register word offsets in identifier space.
	intelPRLock0     = 0x80
	intelPRLock1     = 0x89
	intelPR64Words   = 4 // 64 bits
	intelPR128Words  = 8 // 128 bits
	intelPRExtended  = 16
	intelOTPSize     = 8 + 8 + 256
	intelParamsStart = 0x10000000
	intelParamsEnd   = 0x10020000
)

// IntelDriver programs Intel-style command set chips.
type IntelDriver struct {
	chip
}

func (d *IntelDriver) Family() Family { return Intel }

func (d *IntelDriver) Init() error {
	d.reset(d.opts.Window.Base)
	return nil
}

// reset clears the status register and returns to read-array mode.
func (d *IntelDriver) reset(addr uint32) {
	d.bus.Write16(addr, intelCmdClear)
	d.bus.Write16(addr, intelCmdRead)
}

// wait polls the status register at addr until the write state machine is
// ready and returns the final status.
func (d *IntelDriver) wait(op string, addr uint32) (uint16, error) {
	var status uint16
	err := d.poll(op, addr, func() bool {
		status = d.bus.Read16(addr)
		return status&intelStatusReady == intelStatusReady
	})
	return status, err
}

func (d *IntelDriver) Unlock(addr uint32) error {
	if err := d.check("unlock", addr, 2); err != nil {
		return err
	}
	d.bus.Write16(addr, intelCmdLock)
	d.bus.Write16(addr, intelCmdConfirm)
	return nil
}

func (d *IntelDriver) Erase(addr uint32) error {
	if err := d.check("erase", addr, 2); err != nil {
		return err
	}
	d.bus.Write16(addr, intelCmdErase)
	d.bus.Write16(addr, intelCmdConfirm)

	status, err := d.wait("erase", addr)
	d.reset(addr)
	if err != nil {
		return err
	}
	if status&intelStatusErrors != 0 {
		return &StatusError{Op: "erase", Addr: addr, Status: status}
	}
	return nil
}

func (d *IntelDriver) WriteBlock(addr uint32, words []uint16) error {
	if err := d.check("write block", addr, 2*len(words)); err != nil {
		return err
	}
	for i, word := range words {
		if word == 0xFFFF {
			continue
		}
		dst := addr + uint32(2*i)
		d.bus.Write16(dst, intelCmdWrite)
		d.bus.Write16(dst, word)

		status, err := d.wait("write block", dst)
		if err != nil {
			d.reset(addr)
			return err
		}
		if status&intelStatusErrors != 0 {
			d.reset(addr)
			return &StatusError{Op: "write block", Addr: dst, Status: status}
		}
		d.service()
	}
	d.reset(addr)
	return nil
}

func (d *IntelDriver) WriteBuffer(addr uint32, words []uint16) error {
	if err := d.check("write buffer", addr, 2*len(words)); err != nil {
		return err
	}
	for src := 0; src < len(words); {
		n := len(words) - src
		if n > MaxBufferWords {
			n = MaxBufferWords
		}
		start := addr + uint32(2*src)

		// Request the buffer; a stale sequence error has to be cleared first.
		err := d.poll("write buffer", start, func() bool {
			d.bus.Write16(start, intelCmdWriteBuffer)
			status := d.bus.Read16(start)
			if status&intelStatusSequence != 0 {
				d.bus.Write16(start, intelCmdClear)
				return false
			}
			return status&intelStatusReady == intelStatusReady
		})
		if err != nil {
			d.reset(addr)
			return err
		}

		d.bus.Write16(start, uint16(n-1))
		for i := 0; i < n; i++ {
			d.bus.Write16(start+uint32(2*i), words[src+i])
		}
		d.bus.Write16(start, intelCmdConfirm)

		var status uint16
		err = d.poll("write buffer", start, func() bool {
			status = d.bus.Read16(start)
			return status&intelStatusBufferDone != 0
		})
		if err != nil {
			d.reset(addr)
			return err
		}
		if status&intelStatusErrors != 0 {
			d.reset(addr)
			return &StatusError{Op: "write buffer", Addr: start, Status: status}
		}
		d.service()
		src += n
	}
	d.reset(addr)
	return nil
}

// Geometry uses 4 parameter blocks of 0x8000 at the bottom of the array and
// 0x20000 main blocks above them.
func (d *IntelDriver) Geometry(addr uint32) uint32 {
	return geometry(addr, memory.Window{Base: intelParamsStart, Size: intelParamsEnd - intelParamsStart})
}

// PartID returns (manufacturer << 16) | device.
func (d *IntelDriver) PartID(addr uint32) uint32 {
	d.bus.Write16(addr, intelCmdPartID)
	vendor := d.bus.Read16(addr)
	device := d.bus.Read16(addr + 2)
	d.reset(addr)
	return uint32(vendor)<<16 | uint32(device)
}

// ReadOTP reads the protection registers: 8 bytes factory PR0, 8 bytes user
// PR0, then 256 bytes of PR1-PR16. Words are stored little-endian.
func (d *IntelDriver) ReadOTP(addr uint32) ([]byte, error) {
	if err := d.check("read otp", addr, 2*(intelPRLock1+1+intelPRExtended*intelPR128Words)); err != nil {
		return nil, err
	}
	out := make([]byte, intelOTPSize)
	put := func(off int, w uint16) {
		out[off] = byte(w)
		out[off+1] = byte(w >> 8)
	}

	pr0 := addr + 2*(intelPRLock0+1)
	for i := 0; i < intelPR64Words; i++ {
		reg := pr0 + uint32(2*i)
		d.bus.Write16(reg, intelCmdPartID)
		put(2*i, d.bus.Read16(reg))
		put(8+2*i, d.bus.Read16(reg+2*intelPR64Words))
		d.service()
		d.reset(reg)
	}

	pr1 := addr + 2*(intelPRLock1+1)
	for i := 0; i < intelPRExtended*intelPR128Words; i++ {
		reg := pr1 + uint32(2*i)
		d.bus.Write16(reg, intelCmdPartID)
		put(16+2*i, d.bus.Read16(reg))
		d.service()
		d.reset(reg)
	}
	return out, nil
}
