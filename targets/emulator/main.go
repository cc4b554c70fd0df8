// hitagi-emu runs the bootloader on an emulated Neptune phone and serves the
// flash protocol on a serial device, such as one end of a pty pair.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/golang/glog"

	"hitagi/core"
	"hitagi/host/serial"
	"hitagi/protocol"
)

var (
	configPath = flag.String("config", "", "JSON configuration file")
	device     = flag.String("device", "", "Serial device path (overrides config)")
	debug      = flag.Bool("debug", false, "Log bootloader debug output")
)

func main() {
	flag.Parse()
	defer glog.Flush()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		glog.Flush()
		os.Exit(1)
	}
}

func run() error {
	cfg := DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = LoadConfigFile(*configPath); err != nil {
			return err
		}
	}
	if *device != "" {
		cfg.Device = *device
	}

	core.SetDebugWriter(func(s string) { glog.Info(s) })
	core.SetDebugEnabled(cfg.Debug || *debug)

	phone, err := NewPhone(cfg)
	if err != nil {
		return err
	}
	glog.Infof("emulating %s with %s flash, 0x%X bytes", cfg.Flavor, phone.Driver.Family(), cfg.FlashSize)

	port, err := serial.Open(&serial.Config{Device: cfg.Device, Baud: cfg.Baud, ReadTimeout: 50})
	if err != nil {
		return err
	}
	defer port.Close()
	link := protocol.NewStreamLink(port)

	b, err := phone.Bootloader(link)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	glog.Infof("serving on %s", cfg.Device)
	err = serve(ctx, b)
	if lerr := link.Err(); lerr != nil {
		glog.Errorf("link: %v", lerr)
	}
	return err
}

// serve runs sessions until power down. A restart starts a fresh session on
// the same link and memory, like the boot ROM loading the bootloader again.
func serve(ctx context.Context, b *core.Bootloader) error {
	for {
		err := b.Run(ctx)
		switch {
		case errors.Is(err, core.ErrRestart):
			glog.Info("restart")
		case errors.Is(err, core.ErrPowerDown):
			glog.Info("power down")
			return nil
		case errors.Is(err, context.Canceled):
			return nil
		default:
			return err
		}
	}
}
