package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"hitagi/flash"
	"hitagi/targets/neptune"
)

// Config describes the emulated phone and the serial device it serves on.
type Config struct {
	Device string `json:"device"`
	Baud   int    `json:"baud"`

	Flavor      string `json:"flavor"`       // lte1 or lte2
	FlashFamily string `json:"flash_family"` // intel or amd
	FlashSize   uint32 `json:"flash_size"`
	RAMBase     uint32 `json:"ram_base"`
	RAMSize     uint32 `json:"ram_size"`

	// FlashImage is loaded at the start of flash.
	FlashImage  string `json:"flash_image"`
	BootVersion string `json:"boot_version"`

	// UID is 32 hex digits, most significant word first.
	UID      string `json:"uid"`
	Revision uint16 `json:"revision"`

	PollLimit int  `json:"poll_limit"`
	Debug     bool `json:"debug"`
}

// LoadConfig parses a JSON configuration and fills in defaults
func LoadConfig(jsonData []byte) (*Config, error) {
	var config Config

	err := json.Unmarshal(jsonData, &config)
	if err != nil {
		return nil, err
	}

	applyDefaults(&config)

	return &config, config.validate()
}

// LoadConfigFile reads a configuration file
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return LoadConfig(data)
}

// DefaultConfig returns an LTE2 phone with a 32 MiB Intel chip
func DefaultConfig() *Config {
	config := &Config{}
	applyDefaults(config)
	return config
}

// applyDefaults fills in missing configuration values
func applyDefaults(config *Config) {
	if config.Device == "" {
		config.Device = "/dev/ttyACM0"
	}
	if config.Baud == 0 {
		config.Baud = 115200
	}
	if config.Flavor == "" {
		config.Flavor = "lte2"
	}
	if config.FlashFamily == "" {
		config.FlashFamily = "intel"
	}
	if config.FlashSize == 0 {
		config.FlashSize = flash.DefaultSize
	}

	// Internal RAM the boot ROM loads RAMDLDs into
	if config.RAMBase == 0 {
		config.RAMBase = 0x03FC0000
	}
	if config.RAMSize == 0 {
		config.RAMSize = 0x40000
	}

	if config.BootVersion == "" && config.FlashImage == "" {
		config.BootVersion = "R3443H1_G_0A.65.0BR"
	}
	if config.UID == "" {
		config.UID = strings.Repeat("0", 32)
	}
	if config.Revision == 0 {
		config.Revision = 0x0042
	}
	if config.PollLimit == 0 {
		config.PollLimit = flash.DefaultPollLimit
	}
}

func (c *Config) validate() error {
	if _, err := neptune.ParseFlavor(c.Flavor); err != nil {
		return err
	}
	if _, err := flash.ParseFamily(c.FlashFamily); err != nil {
		return err
	}
	if c.FlashSize%0x20000 != 0 || c.FlashSize < 0x40000 {
		return fmt.Errorf("config: flash_size 0x%X is not a multiple of 128 KiB", c.FlashSize)
	}
	if c.RAMBase&1 != 0 || c.RAMSize&1 != 0 {
		return fmt.Errorf("config: RAM at 0x%08X size 0x%X must be halfword aligned", c.RAMBase, c.RAMSize)
	}
	_, err := c.ParseUID()
	return err
}

// ParseUID returns the unique id words, most significant first.
func (c *Config) ParseUID() ([neptune.UIDWords]uint16, error) {
	var uid [neptune.UIDWords]uint16
	b, err := hex.DecodeString(c.UID)
	if err != nil || len(b) != 2*neptune.UIDWords {
		return uid, fmt.Errorf("config: uid %q is not %d hex digits", c.UID, 4*neptune.UIDWords)
	}
	for i := range uid {
		uid[i] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
	}
	return uid, nil
}
