package core

import (
	"errors"

	"hitagi/flash"
	"hitagi/protocol"
)

// Response tags of the query commands
const (
	tagRead = "READ"
	tagRQRC = "RSRC"
	tagRQFI = "RSFI"
	tagOTP  = "READ_OTP"
	tagIMEI = "READ_IMEI"
	tagRQHW = "RSHW"
	tagRQVN = "RSVN"
	tagRQSW = "RSSW"
	tagRQSN = "RSSN"
)

const (
	addrDigits = 8
	sizeDigits = 4
	minReadLen = 0x10
)

var (
	errBadAddress = errors.New("malformed address")
	errBadRange   = errors.New("empty or reversed range")
	errBadSize    = errors.New("read size out of range")
	errNoFlash    = errors.New("no flash driver")
	errNotIntel   = errors.New("IMEI is only stored in Intel OTP")
)

// registerCommands fills the command table. Order only matters for
// duplicate names, where the first entry wins.
func (b *Bootloader) registerCommands() {
	t := b.table
	t.Register("ADDR", protocol.TagAck, b.handleAddr)
	t.Register("BIN", protocol.TagAck, b.handleBin)
	t.Register("ERASE", protocol.TagAck, b.handleErase)
	t.Register("READ", tagRead, b.handleRead)
	t.Register("RQRC", tagRQRC, b.handleRQRC)
	t.Register("RQFI", tagRQFI, b.handleRQFI)
	t.Register("READ_OTP", tagOTP, b.handleReadOTP)
	t.Register("READ_IMEI", tagIMEI, b.handleReadIMEI)
	t.Register("RQHW", tagRQHW, b.handleRQHW)
	t.Register("RQVN", tagRQVN, b.handleRQVN)
	t.Register("RQSW", tagRQSW, b.handleRQSW)
	t.Register("RQSN", tagRQSN, b.handleRQSN)
	t.Register("RESTART", protocol.TagAck, b.handleRestart)
	t.Register("POWER_DOWN", protocol.TagAck, b.handlePowerDown)
}

// handleAddr sets the address cursor: ADDR <8 hex digits>
func (b *Bootloader) handleAddr(cmd *Command, f *protocol.Frame) error {
	if len(f.Data) < addrDigits {
		return invalid(cmd, errBadAddress)
	}
	addr, ok := HexToU32(f.Data[:addrDigits])
	if !ok || addr&1 != 0 {
		return invalid(cmd, errBadAddress)
	}
	b.session.Cursor = addr
	b.enc.SendAck(cmd.Name, f.Data)
	return nil
}

// handleBin stores one uploaded block at the cursor. The ACK goes out before
// anything is written so the host can stage the next block; write failures
// are only logged.
func (b *Bootloader) handleBin(cmd *Command, f *protocol.Frame) error {
	payload := f.Payload()
	n := len(payload)
	if len(f.Trailer) > 0 && f.Trailer[0] != protocol.Checksum(payload) {
		DebugPrintln("[BIN] checksum mismatch at " + hex32(b.session.Cursor))
	}

	b.enc.SendAck(cmd.Name, nil)

	start := Align(f.Buffer, protocol.LengthFieldSize, n)
	data := f.Buffer[start : start+n]
	addr := b.session.Cursor

	if !b.session.Mode.Flashing() {
		if err := b.mem.Write(addr, data); err != nil {
			DebugPrintln("[BIN] " + err.Error())
		}
	} else if !b.program(addr, data) {
		return nil
	}
	b.session.Advance(n)
	return nil
}

// program unlocks and, at a block start, erases before writing data with
// the current erase mode. It returns false for a mode that has no write
// method; the cursor then stays where it is.
func (b *Bootloader) program(addr uint32, data []byte) bool {
	d := b.flash
	if d == nil {
		DebugPrintln("[BIN] " + errNoFlash.Error())
		return true
	}
	logErr := func(op string, err error) {
		if err != nil {
			DebugPrintln("[BIN] " + op + " " + hex32(addr) + ": " + err.Error())
		}
	}

	logErr("unlock", d.Unlock(addr))
	if d.Geometry(addr) == 0 {
		logErr("erase", d.Erase(addr))
	}

	switch b.session.Mode {
	case EraseWriteBlock:
		logErr("write block", d.WriteBlock(addr, flash.Words(data)))
	case EraseWriteBuffer:
		logErr("write buffer", d.WriteBuffer(addr, flash.Words(data)))
	case EraseOnly:
	default:
		DebugPrintln("[BIN] no write method for mode " + b.session.Mode.String())
		return false
	}
	return true
}

// handleErase steps the erase mode counter and reports it.
func (b *Bootloader) handleErase(cmd *Command, f *protocol.Frame) error {
	b.session.Mode++
	b.enc.SendAck(cmd.Name, U16ToHex(uint16(b.session.Mode)))
	return nil
}

// handleRead answers READ <addr>,<size> with size, data and checksum.
func (b *Bootloader) handleRead(cmd *Command, f *protocol.Frame) error {
	addr, size, ok := hexFields(f.Data, addrDigits, sizeDigits)
	if !ok {
		return invalid(cmd, errBadAddress)
	}
	if size < minReadLen || int(size) > len(b.readBuf)-3 {
		return invalid(cmd, errBadSize)
	}

	resp := b.readBuf[:size+3]
	resp[0] = byte(size >> 8)
	resp[1] = byte(size)
	data := resp[2 : 2+size]
	for i := range data {
		v, err := b.mem.Read8(addr + uint32(i))
		if err != nil {
			return invalid(cmd, err)
		}
		data[i] = v
		b.service()
	}
	resp[2+size] = protocol.Checksum(data)

	b.enc.SendBinPacket(cmd.Tag, resp)
	return nil
}

// handleRQRC sums the bytes of [start, end] into 16 bits.
func (b *Bootloader) handleRQRC(cmd *Command, f *protocol.Frame) error {
	start, end, ok := hexFields(f.Data, addrDigits, addrDigits)
	if !ok {
		return invalid(cmd, errBadAddress)
	}
	if end <= start {
		return invalid(cmd, errBadRange)
	}

	var sum uint16
	for addr := start; ; addr++ {
		v, err := b.mem.Read8(addr)
		if err != nil {
			return invalid(cmd, err)
		}
		sum += uint16(v)
		b.service()
		if addr == end {
			break
		}
	}

	b.enc.SendPacket(cmd.Tag, U16ToHex(sum))
	return nil
}

func (b *Bootloader) handleRQFI(cmd *Command, f *protocol.Frame) error {
	if b.flash == nil {
		return invalid(cmd, errNoFlash)
	}
	b.enc.SendPacket(cmd.Tag, U32ToHex(b.flash.PartID(b.cfg.FlashBase)))
	return nil
}

func (b *Bootloader) handleReadOTP(cmd *Command, f *protocol.Frame) error {
	if b.flash == nil {
		return invalid(cmd, errNoFlash)
	}
	otp, err := b.flash.ReadOTP(b.cfg.FlashBase)
	if err != nil {
		return invalid(cmd, err)
	}
	b.enc.SendPacket(cmd.Tag, HexEncode(otp))
	return nil
}

func (b *Bootloader) handleReadIMEI(cmd *Command, f *protocol.Frame) error {
	if b.flash == nil {
		return invalid(cmd, errNoFlash)
	}
	if b.flash.Family() != flash.Intel {
		return invalid(cmd, errNotIntel)
	}
	otp, err := b.flash.ReadOTP(b.cfg.IMEIAddr)
	if err != nil {
		return invalid(cmd, err)
	}
	uid, err := b.readUID()
	if err != nil {
		return invalid(cmd, err)
	}
	imei, err := PackIMEI(otp, uid)
	if err != nil {
		return invalid(cmd, err)
	}
	// Text packet: a zero byte ends the reply early.
	b.enc.SendPacket(cmd.Tag, imei)
	return nil
}

func (b *Bootloader) handleRQHW(cmd *Command, f *protocol.Frame) error {
	rev, err := b.mem.Read16(b.cfg.RevAddr)
	if err != nil {
		return invalid(cmd, err)
	}
	b.enc.SendPacket(cmd.Tag, U16ToHex(rev))
	return nil
}

func (b *Bootloader) handleRQVN(cmd *Command, f *protocol.Frame) error {
	var buf [versionLen]byte
	if err := b.mem.Read(b.cfg.VersionAddr, buf[:]); err != nil {
		return invalid(cmd, err)
	}
	b.enc.SendPacket(cmd.Tag, cString(buf[:]))
	return nil
}

func (b *Bootloader) handleRQSW(cmd *Command, f *protocol.Frame) error {
	b.enc.SendPacket(cmd.Tag, []byte(protocol.Version))
	return nil
}

func (b *Bootloader) handleRQSN(cmd *Command, f *protocol.Frame) error {
	uid, err := b.readUID()
	if err != nil {
		return invalid(cmd, err)
	}
	resp := make([]byte, 0, 4*len(uid))
	for _, w := range uid {
		resp = append(resp, U16ToHex(w)...)
	}
	b.enc.SendPacket(cmd.Tag, resp)
	return nil
}

func (b *Bootloader) handleRestart(cmd *Command, f *protocol.Frame) error {
	b.enc.SendAck(cmd.Name, nil)
	b.delay()
	b.machine.Reboot()
	return ErrRestart
}

func (b *Bootloader) handlePowerDown(cmd *Command, f *protocol.Frame) error {
	b.enc.SendAck(cmd.Name, nil)
	b.delay()
	b.machine.PowerDown()
	return ErrPowerDown
}
