package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"hitagi/core"
	"hitagi/host/client"
	"hitagi/host/image"
)

// Segments closer than this are written as one upload.
const mergeGap = 0x1000

var (
	writeAddr    string
	writeMode    string
	writeVerify  bool
	writeRestart bool

	imeiCheckDigit bool
)

func init() {
	writeCmd.Flags().StringVar(&writeAddr, "addr", "0x10000000", "load address of raw images")
	writeCmd.Flags().StringVar(&writeMode, "mode", "block", "ram, block, buffer or erase")
	writeCmd.Flags().BoolVar(&writeVerify, "verify", true, "compare checksums after writing")
	writeCmd.Flags().BoolVar(&writeRestart, "restart", false, "restart the phone when done")
	imeiCmd.Flags().BoolVar(&imeiCheckDigit, "check-digit", false, "replace the trailing 0 with the Luhn check digit")

	rootCmd.AddCommand(infoCmd, readCmd, writeCmd, checksumCmd, otpCmd, imeiCmd, restartCmd, poweroffCmd, packCmd)
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print bootloader and hardware identification",
	Args:  cobra.NoArgs,
	RunE: withDevice(func(ctx context.Context, s *session, args []string) error {
		info, err := s.Info(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Software:  %s\n", info.Software)
		fmt.Printf("Boot:      %s\n", info.Boot)
		fmt.Printf("Hardware:  0x%04X\n", info.Hardware)
		fmt.Printf("UID:       %s\n", info.UID)
		if info.PartID != 0 {
			fmt.Printf("Flash ID:  0x%08X\n", info.PartID)
		}
		return nil
	}),
}

var readCmd = &cobra.Command{
	Use:   "read ADDR SIZE OUT",
	Short: "Dump memory to a file (.hex for Intel HEX)",
	Args:  cobra.ExactArgs(3),
	RunE: withDevice(func(ctx context.Context, s *session, args []string) error {
		addr, err := parseUint32("address", args[0])
		if err != nil {
			return err
		}
		size, err := parseUint32("size", args[1])
		if err != nil {
			return err
		}
		if size == 0 {
			return errors.New("size must not be zero")
		}

		s.progress(int(size), "Reading")
		data, err := s.Read(ctx, addr, int(size))
		if err != nil {
			return err
		}

		out := args[2]
		f, err := os.Create(out)
		if err != nil {
			return errors.Wrap(err, "create output")
		}
		defer f.Close()
		if format, _ := image.FormatOf(out); format == image.IntelHex {
			img := &image.Image{Segments: []image.Segment{{Addr: addr, Data: data}}}
			err = img.WriteHex(f)
		} else {
			_, err = f.Write(data)
		}
		if err != nil {
			return errors.Wrapf(err, "write %s", out)
		}
		glog.Infof("read %d bytes at 0x%08X into %s", size, addr, out)
		return f.Close()
	}),
}

var writeCmd = &cobra.Command{
	Use:   "write FILE",
	Short: "Upload an image (raw, .hex, optionally .xz compressed)",
	Long: `Upload an image to RAM or flash.

Flash modes erase a block when an upload starts on its first byte, so flash
images should start on a block boundary.`,
	Args: cobra.ExactArgs(1),
	RunE: withDevice(func(ctx context.Context, s *session, args []string) error {
		base, err := parseUint32("address", writeAddr)
		if err != nil {
			return err
		}
		mode, err := parseMode(writeMode)
		if err != nil {
			return err
		}
		img, err := image.Load(args[0], base)
		if err != nil {
			return err
		}
		img.Merge(mergeGap)

		for _, seg := range img.Segments {
			s.progress(len(seg.Data), fmt.Sprintf("0x%08X", seg.Addr))
			if err := s.Write(ctx, seg.Addr, seg.Data, mode); err != nil {
				return err
			}
		}
		if writeVerify && mode != core.EraseOnly {
			for _, seg := range img.Segments {
				if err := s.Verify(ctx, seg.Addr, seg.Data); err != nil {
					return err
				}
			}
			fmt.Println("Verified.")
		}
		if writeRestart {
			return s.Restart(ctx)
		}
		return nil
	}),
}

var checksumCmd = &cobra.Command{
	Use:   "checksum START END",
	Short: "Print the 16-bit byte sum of [START, END]",
	Args:  cobra.ExactArgs(2),
	RunE: withDevice(func(ctx context.Context, s *session, args []string) error {
		start, err := parseUint32("start", args[0])
		if err != nil {
			return err
		}
		end, err := parseUint32("end", args[1])
		if err != nil {
			return err
		}
		sum, err := s.Checksum(ctx, start, end)
		if err != nil {
			return err
		}
		fmt.Printf("0x%04X\n", sum)
		return nil
	}),
}

var otpCmd = &cobra.Command{
	Use:   "otp",
	Short: "Dump the flash OTP area",
	Args:  cobra.NoArgs,
	RunE: withDevice(func(ctx context.Context, s *session, args []string) error {
		otp, err := s.OTP(ctx)
		if err != nil {
			return err
		}
		fmt.Print(hex.Dump(otp))
		return nil
	}),
}

var imeiCmd = &cobra.Command{
	Use:   "imei",
	Short: "Print the IMEI stored in flash OTP",
	Args:  cobra.NoArgs,
	RunE: withDevice(func(ctx context.Context, s *session, args []string) error {
		imei, err := s.IMEI(ctx)
		if err != nil {
			return err
		}
		if imeiCheckDigit {
			imei = client.WithCheckDigit(imei)
		}
		fmt.Println(imei)
		return nil
	}),
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Reboot the phone",
	Args:  cobra.NoArgs,
	RunE: withDevice(func(ctx context.Context, s *session, args []string) error {
		return s.Restart(ctx)
	}),
}

var poweroffCmd = &cobra.Command{
	Use:     "poweroff",
	Aliases: []string{"power-down"},
	Short:   "Switch the phone off",
	Args:    cobra.NoArgs,
	RunE: withDevice(func(ctx context.Context, s *session, args []string) error {
		return s.PowerDown(ctx)
	}),
}

var packCmd = &cobra.Command{
	Use:   "pack HEAD LOADER SIGN OFFSET OUT",
	Short: "Build a signed RAM loader image",
	Long: fmt.Sprintf(`Concatenate HEAD and LOADER, pad with 0xFF up to OFFSET and append SIGN.
OFFSET is hex with or without 0x. LTE2 loaders use offset 0x%X.`, image.DefaultSignOffset),
	Args: cobra.ExactArgs(5),
	RunE: func(cmd *cobra.Command, args []string) error {
		var parts [3][]byte
		for i := range parts {
			b, err := os.ReadFile(args[i])
			if err != nil {
				return errors.Wrap(err, "pack")
			}
			parts[i] = b
		}
		off, err := parseHex32("offset", args[3])
		if err != nil {
			return err
		}
		out, err := image.Pack(parts[0], parts[1], parts[2], int(off))
		if err != nil {
			return err
		}
		if err := os.WriteFile(args[4], out, 0o644); err != nil {
			return errors.Wrap(err, "pack")
		}
		fmt.Printf("%s: %d bytes, sign at 0x%X\n", args[4], len(out), off)
		return nil
	},
}
