// Package usb talks to a phone in flash mode over its bulk endpoint pair.
package usb

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/gousb"
	pkgerrors "github.com/pkg/errors"
)

// Motorola flash mode identifiers
const (
	DefaultVendor  gousb.ID = 0x22B8
	DefaultProduct gousb.ID = 0x2823
)

// DefaultReadTimeout bounds a single bulk IN transfer. Receive reports an
// empty read when it expires.
const DefaultReadTimeout = 50 * time.Millisecond

// Link is a protocol.Link over libusb bulk transfers. IN data is read in
// whole packets and handed out as Receive asks for it.
type Link struct {
	ctx   *gousb.Context
	dev   *gousb.Device
	done  func()
	in    *gousb.InEndpoint
	out   *gousb.OutEndpoint
	rxBuf []byte
	rx    []byte

	ReadTimeout time.Duration

	mu  sync.Mutex
	err error
}

// ParseID parses "VID:PID" in hex.
func ParseID(s string) (vendor, product gousb.ID, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, errors.New("usb: want VID:PID, got " + s)
	}
	v, err := strconv.ParseUint(parts[0], 16, 16)
	if err != nil {
		return 0, 0, pkgerrors.Wrap(err, "usb: vendor id")
	}
	p, err := strconv.ParseUint(parts[1], 16, 16)
	if err != nil {
		return 0, 0, pkgerrors.Wrap(err, "usb: product id")
	}
	return gousb.ID(v), gousb.ID(p), nil
}

// Open finds the single device with vendor:product and claims the first
// interface that has a bulk IN and a bulk OUT endpoint.
func Open(vendor, product gousb.ID) (l *Link, err error) {
	ctx := gousb.NewContext()
	defer func() {
		if err != nil {
			ctx.Close()
		}
	}()

	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == vendor && desc.Product == product
	})
	if err != nil {
		for _, d := range devs {
			d.Close()
		}
		return nil, pkgerrors.Wrap(err, "usb: open devices")
	}
	if len(devs) == 0 {
		return nil, pkgerrors.Errorf("usb: no device %s:%s in flash mode", vendor, product)
	}
	if len(devs) != 1 {
		for _, d := range devs {
			d.Close()
		}
		return nil, pkgerrors.Errorf("usb: found %d devices %s:%s", len(devs), vendor, product)
	}
	dev := devs[0]
	dev.SetAutoDetach(true)

	intf, done, err := dev.DefaultInterface()
	if err != nil {
		dev.Close()
		return nil, pkgerrors.Wrap(err, "usb: claim interface")
	}

	l = &Link{ctx: ctx, dev: dev, done: done, ReadTimeout: DefaultReadTimeout}
	for _, ed := range intf.Setting.Endpoints {
		if ed.TransferType != gousb.TransferTypeBulk {
			continue
		}
		if ed.Direction == gousb.EndpointDirectionIn && l.in == nil {
			if l.in, err = intf.InEndpoint(ed.Number); err != nil {
				break
			}
		} else if ed.Direction == gousb.EndpointDirectionOut && l.out == nil {
			if l.out, err = intf.OutEndpoint(ed.Number); err != nil {
				break
			}
		}
	}
	if err == nil && (l.in == nil || l.out == nil) {
		err = errors.New("usb: interface lacks a bulk IN/OUT pair")
	}
	if err != nil {
		done()
		dev.Close()
		return nil, err
	}
	l.rxBuf = make([]byte, 8*l.in.Desc.MaxPacketSize)
	return l, nil
}

// Close releases the interface and the device.
func (l *Link) Close() error {
	l.done()
	err := l.dev.Close()
	if cerr := l.ctx.Close(); err == nil {
		err = cerr
	}
	return err
}

// PacketSize is the OUT endpoint packet size.
func (l *Link) PacketSize() int {
	return l.out.Desc.MaxPacketSize
}

// Transmit sends one packet; a zero-length p is sent as a ZLP. Errors are
// latched and the packet is dropped.
func (l *Link) Transmit(p []byte) bool {
	if l.Err() != nil {
		return true
	}
	if _, err := l.out.Write(p); err != nil {
		l.setErr(pkgerrors.Wrap(err, "usb: bulk out"))
	}
	return true
}

// Receive returns buffered IN data or waits up to ReadTimeout for more.
func (l *Link) Receive(p []byte) int {
	if len(l.rx) == 0 {
		if l.Err() != nil {
			return 0
		}
		ctx, cancel := context.WithTimeout(context.Background(), l.ReadTimeout)
		n, err := l.in.ReadContext(ctx, l.rxBuf)
		cancel()
		if err != nil && !isTimeout(err) {
			l.setErr(pkgerrors.Wrap(err, "usb: bulk in"))
		}
		if n <= 0 {
			return 0
		}
		l.rx = l.rxBuf[:n]
	}
	n := copy(p, l.rx)
	l.rx = l.rx[n:]
	return n
}

// Err returns the first transfer error.
func (l *Link) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *Link) setErr(err error) {
	l.mu.Lock()
	if l.err == nil {
		l.err = err
	}
	l.mu.Unlock()
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, gousb.TransferTimedOut) ||
		errors.Is(err, gousb.TransferCancelled)
}
