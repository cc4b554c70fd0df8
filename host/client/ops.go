package client

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"hitagi/core"
	"hitagi/protocol"
)

const minRead = 0x10

// Info is what the identification commands report.
type Info struct {
	Software string
	Boot     string
	Hardware uint16
	PartID   uint32
	UID      string
}

// Addr sets the device address cursor.
func (c *Client) Addr(ctx context.Context, addr uint32) error {
	want := fmt.Sprintf("%08X", addr)
	got, err := c.ack(ctx, "ADDR", []byte(want))
	if err != nil {
		return err
	}
	if got != want {
		return errors.Errorf("client: ADDR echoed %q, sent %q", got, want)
	}
	return nil
}

// Erase steps the device erase mode and returns the new raw value.
func (c *Client) Erase(ctx context.Context) (uint16, error) {
	s, err := c.ack(ctx, "ERASE", nil)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, errors.Wrapf(err, "client: ERASE reply %q", s)
	}
	c.mode = uint16(v)
	return c.mode, nil
}

// Mode returns the erase mode the device last reported.
func (c *Client) Mode() core.EraseMode {
	return core.EraseMode(c.mode)
}

// SetMode issues ERASE until the device reports mode. The counter never
// goes back; a lower mode needs a device restart.
func (c *Client) SetMode(ctx context.Context, mode core.EraseMode) error {
	if uint32(c.mode) > uint32(mode) {
		return errors.Errorf("client: erase mode is %s, cannot go back to %s", core.EraseMode(c.mode), mode)
	}
	for uint32(c.mode) < uint32(mode) {
		if _, err := c.Erase(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Bin uploads one block to the address cursor. The device acknowledges it
// before the data is written.
func (c *Client) Bin(ctx context.Context, payload []byte) error {
	if len(payload) < protocol.MinBinSize || len(payload) > protocol.MaxBinSize || len(payload)%2 != 0 {
		return errors.Errorf("client: BIN payload of %d bytes", len(payload))
	}
	c.send(BinFrame(payload))
	rep, err := c.wait(ctx, protocol.TagBin)
	if err != nil {
		return err
	}
	if rep.tag != protocol.TagAck {
		return &ReplyError{Command: protocol.TagBin, Tag: rep.tag, Data: rep.data}
	}
	_, err = ackData(protocol.TagBin, rep)
	return err
}

// Write uploads data at addr with the given erase mode. Blocks are padded
// with 0xFF to an even length of at least 8 bytes. In the flashing modes the
// device erases a block when a BIN starts on its first byte, so addr should
// be block aligned.
func (c *Client) Write(ctx context.Context, addr uint32, data []byte, mode core.EraseMode) error {
	if addr&1 != 0 {
		return errors.Errorf("client: odd address 0x%08X", addr)
	}
	if err := c.SetMode(ctx, mode); err != nil {
		return err
	}
	if err := c.Addr(ctx, addr); err != nil {
		return err
	}

	for off := 0; off < len(data); off += c.blockSize {
		end := off + c.blockSize
		if end > len(data) {
			end = len(data)
		}
		if err := c.Bin(ctx, pad(data[off:end])); err != nil {
			return errors.Wrapf(err, "client: block at 0x%08X", addr+uint32(off))
		}
		c.report(end, len(data))
	}
	glog.V(1).Infof("client: wrote %d bytes at 0x%08X in %s mode", len(data), addr, mode)
	return nil
}

func pad(block []byte) []byte {
	n := len(block) + len(block)%2
	if n < protocol.MinBinSize {
		n = protocol.MinBinSize
	}
	if n == len(block) {
		return block
	}
	out := make([]byte, n)
	copy(out, block)
	for i := len(block); i < n; i++ {
		out[i] = 0xFF
	}
	return out
}

// Read reads size bytes at addr in READ-sized chunks, checking each reply
// checksum.
func (c *Client) Read(ctx context.Context, addr uint32, size int) ([]byte, error) {
	out := make([]byte, 0, size)
	for len(out) < size {
		n := size - len(out)
		if n > DefaultReadChunk {
			n = DefaultReadChunk
		}
		req := n
		if req < minRead {
			req = minRead
		}
		at := addr + uint32(len(out))
		data, err := c.read(ctx, at, req)
		if err != nil {
			return nil, err
		}
		out = append(out, data[:n]...)
		c.report(len(out), size)
	}
	return out, nil
}

func (c *Client) read(ctx context.Context, addr uint32, size int) ([]byte, error) {
	rep, err := c.call(ctx, "READ", []byte(fmt.Sprintf("%08X,%04X", addr, size)), "READ")
	if err != nil {
		return nil, err
	}
	if len(rep.data) != protocol.LengthFieldSize+size || len(rep.trailer) < 1 {
		return nil, &ReplyError{Command: "READ", Tag: rep.tag, Data: rep.data}
	}
	data := rep.data[protocol.LengthFieldSize:]
	if sum := protocol.Checksum(data); sum != rep.trailer[0] {
		return nil, &ChecksumError{Addr: addr, Want: rep.trailer[0], Got: sum}
	}
	return data, nil
}

// Checksum returns the device's 16-bit byte sum over [start, end].
func (c *Client) Checksum(ctx context.Context, start, end uint32) (uint16, error) {
	rep, err := c.call(ctx, "RQRC", []byte(fmt.Sprintf("%08X,%08X", start, end)), "RSRC")
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(string(rep.data), 16, 16)
	if err != nil {
		return 0, errors.Wrapf(err, "client: RSRC %q", rep.data)
	}
	return uint16(v), nil
}

// Sum16 is the checksum RQRC computes, for comparison on the host.
func Sum16(p []byte) uint16 {
	var s uint16
	for _, b := range p {
		s += uint16(b)
	}
	return s
}

// Verify compares the device checksum of [addr, addr+len(data)) with data.
func (c *Client) Verify(ctx context.Context, addr uint32, data []byte) error {
	if len(data) < 2 {
		return errors.New("client: verify needs at least 2 bytes")
	}
	got, err := c.Checksum(ctx, addr, addr+uint32(len(data))-1)
	if err != nil {
		return err
	}
	if want := Sum16(data); got != want {
		return errors.Errorf("client: verify at 0x%08X: device sum 0x%04X, image sum 0x%04X", addr, got, want)
	}
	return nil
}

// PartID returns the flash identification code.
func (c *Client) PartID(ctx context.Context) (uint32, error) {
	s, err := c.text(ctx, "RQFI", "RSFI")
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "client: RSFI %q", s)
	}
	return uint32(v), nil
}

// OTP returns the flash one-time-programmable area.
func (c *Client) OTP(ctx context.Context) ([]byte, error) {
	s, err := c.text(ctx, "READ_OTP", "READ_OTP")
	if err != nil {
		return nil, err
	}
	otp, err := hex.DecodeString(s)
	return otp, errors.Wrap(err, "client: READ_OTP")
}

// IMEI returns the IMEI stored in the flash OTP as the device reports it,
// with the check digit left at 0.
func (c *Client) IMEI(ctx context.Context) (string, error) {
	rep, err := c.call(ctx, "READ_IMEI", nil, "READ_IMEI")
	if err != nil {
		return "", err
	}
	return DecodeIMEI(rep.data)
}

// Info runs the identification commands.
func (c *Client) Info(ctx context.Context) (*Info, error) {
	var info Info
	var err error
	if info.Software, err = c.text(ctx, "RQSW", "RSSW"); err != nil {
		return nil, err
	}
	if info.Boot, err = c.text(ctx, "RQVN", "RSVN"); err != nil {
		return nil, err
	}
	hw, err := c.text(ctx, "RQHW", "RSHW")
	if err != nil {
		return nil, err
	}
	v, err := strconv.ParseUint(hw, 16, 16)
	if err != nil {
		return nil, errors.Wrapf(err, "client: RSHW %q", hw)
	}
	info.Hardware = uint16(v)
	if info.UID, err = c.text(ctx, "RQSN", "RSSN"); err != nil {
		return nil, err
	}
	// Boards without a flash driver reject RQFI; the rest is still useful.
	if info.PartID, err = c.PartID(ctx); err != nil {
		var de *DeviceError
		if !errors.As(err, &de) {
			return nil, err
		}
		glog.Warningf("client: %v", err)
	}
	return &info, nil
}

// Restart acknowledges and reboots the device. The erase mode starts over.
func (c *Client) Restart(ctx context.Context) error {
	_, err := c.ack(ctx, "RESTART", nil)
	c.mode = 0
	return err
}

// PowerDown acknowledges and switches the device off.
func (c *Client) PowerDown(ctx context.Context) error {
	_, err := c.ack(ctx, "POWER_DOWN", nil)
	c.mode = 0
	return err
}

func (c *Client) text(ctx context.Context, command, tag string) (string, error) {
	rep, err := c.call(ctx, command, nil, tag)
	if err != nil {
		return "", err
	}
	return string(rep.data), nil
}

func (c *Client) report(done, total int) {
	if c.progress != nil {
		c.progress(done, total)
	}
}
