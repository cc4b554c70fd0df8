// hitagi-flash talks to a phone running the Hitagi bootloader.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"hitagi/core"
	"hitagi/host/client"
	"hitagi/host/serial"
	"hitagi/host/usb"
	"hitagi/protocol"
)

var (
	usbID      string
	serialDev  string
	baud       int
	timeout    time.Duration
	blockSize  int
	noProgress bool
)

var rootCmd = &cobra.Command{
	Use:           "hitagi-flash",
	Short:         "Flash and inspect Motorola phones through the Hitagi bootloader",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&usbID, "usb", "", "USB device as VID:PID (default 22B8:2823)")
	pf.StringVar(&serialDev, "serial", "", "serial device instead of USB")
	pf.IntVar(&baud, "baud", 115200, "serial baud rate")
	pf.DurationVar(&timeout, "timeout", client.DefaultTimeout, "reply timeout")
	pf.IntVar(&blockSize, "block-size", client.DefaultBlockSize, "BIN payload size")
	pf.BoolVar(&noProgress, "no-progress", false, "hide progress bars")
	pf.AddGoFlagSet(flag.CommandLine)
}

func main() {
	defer glog.Flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		glog.Flush()
		os.Exit(1)
	}
}

// session is an open device connection.
type session struct {
	*client.Client
	link io.Closer
	bar  *progressbar.ProgressBar
}

func (s *session) Close() {
	s.Client.Close()
	if err := s.link.Close(); err != nil {
		glog.Warningf("close link: %v", err)
	}
}

// progress starts a bar the client's progress callback drives.
func (s *session) progress(total int, desc string) {
	if noProgress {
		s.bar = nil
		return
	}
	s.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(os.Stderr) }),
	)
}

func (s *session) report(done, total int) {
	if s.bar != nil {
		s.bar.Set(done)
	}
}

func open() (*session, error) {
	s := &session{}
	var (
		link       protocol.Link
		packetSize = client.DefaultPacketSize
	)

	if serialDev != "" {
		cfg := serial.DefaultConfig(serialDev)
		cfg.Baud = baud
		port, err := serial.Open(cfg)
		if err != nil {
			return nil, err
		}
		if err := port.Flush(); err != nil {
			glog.Warningf("flush %s: %v", serialDev, err)
		}
		link, s.link = protocol.NewStreamLink(port), port
		glog.Infof("connected to %s at %d baud", serialDev, baud)
	} else {
		vid, pid := usb.DefaultVendor, usb.DefaultProduct
		if usbID != "" {
			var err error
			if vid, pid, err = usb.ParseID(usbID); err != nil {
				return nil, err
			}
		}
		l, err := usb.Open(vid, pid)
		if err != nil {
			return nil, err
		}
		link, s.link = l, l
		packetSize = l.PacketSize()
		glog.Infof("connected to USB %s:%s, %d byte packets", vid, pid, packetSize)
	}

	s.Client = client.New(link,
		client.WithTimeout(timeout),
		client.WithPacketSize(packetSize),
		client.WithBlockSize(blockSize),
		client.WithProgress(s.report),
	)
	return s, nil
}

// withDevice wraps a command body that needs a connection.
func withDevice(fn func(ctx context.Context, s *session, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := open()
		if err != nil {
			return err
		}
		defer s.Close()
		return fn(cmd.Context(), s, args)
	}
}

// parseUint32 accepts decimal or 0x-prefixed hex.
func parseUint32(name, s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "bad %s %q", name, s)
	}
	return uint32(v), nil
}

// parseHex32 accepts hex with or without a 0x prefix.
func parseHex32(name, s string) (uint32, error) {
	t := strings.TrimSpace(s)
	if len(t) > 2 && (t[:2] == "0x" || t[:2] == "0X") {
		t = t[2:]
	}
	v, err := strconv.ParseUint(t, 16, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "bad %s %q", name, s)
	}
	return uint32(v), nil
}

func parseMode(s string) (core.EraseMode, error) {
	switch strings.ToLower(s) {
	case "ram", "none":
		return core.EraseNone, nil
	case "block":
		return core.EraseWriteBlock, nil
	case "buffer":
		return core.EraseWriteBuffer, nil
	case "erase":
		return core.EraseOnly, nil
	}
	return 0, errors.Errorf("unknown mode %q, want ram, block, buffer or erase", s)
}
