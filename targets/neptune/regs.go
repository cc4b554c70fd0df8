// Package neptune describes the Motorola Neptune LTE/LTE2 baseband SoC the
// bootloader runs on: register addresses, the watchdog-based reset and
// shutdown sequences, and the defaults the protocol engine needs.
package neptune

import (
	"fmt"
	"strings"
)

// Watchdog block
const (
	WatchdogWCR = 0x24849000 // control
	WatchdogWSR = 0x24849002 // service

	// WCRInit is a 32 s timeout with WOE, WDA, SRS, WDE and WDBG set.
	WCRInit = 0x7E76

	WCRSoftwareReset = 0x0010 // SRS, active low
	WCRAssertWdog    = 0x0020 // WDA, active low

	WSRService1 = 0x5555
	WSRService2 = 0xAAAA
)

// RTC scratch register checked by the boot ROM after a reset.
const (
	RTCPCRAM0 = 0x2484300C

	// PCRAMSoftwareReset makes the next boot a software reset.
	PCRAMSoftwareReset = 0x0A
)

// Identification registers
const (
	UIDAddr  = 0x24850000 // 8 x 16-bit, UID[127:112] at the highest address
	UIDWords = 8
	RevAddr  = 0x24850010
)

// Flash layout defaults
const (
	FlashBase = 0x10000000

	// VersionAddr holds the NUL terminated bootloader version string.
	VersionAddr = FlashBase + 0x200

	// IMEIAddr is the flash block whose OTP carries the IMEI.
	IMEIAddr = 0x10240000
)

// Flavor selects between the two Neptune generations. They differ in the
// USB endpoint buffer size.
type Flavor uint8

const (
	LTE1 Flavor = iota
	LTE2
)

func (f Flavor) String() string {
	switch f {
	case LTE1:
		return "lte1"
	case LTE2:
		return "lte2"
	}
	return fmt.Sprintf("flavor(%d)", uint8(f))
}

// PacketSize is the USB bulk endpoint packet size.
func (f Flavor) PacketSize() int {
	if f == LTE2 {
		return 32
	}
	return 16
}

// ParseFlavor accepts "lte1" and "lte2" in any case.
func ParseFlavor(s string) (Flavor, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lte1", "lte", "":
		return LTE1, nil
	case "lte2":
		return LTE2, nil
	}
	return 0, fmt.Errorf("neptune: unknown flavor %q", s)
}
