// SPDX-License-Identifier: MIT
// Copyright (c) 2021 Brian Starkey <stark3y@gmail.com>

// Package config holds a small TOML database of known PCI devices, used to
// put friendly names against the raw vendor:device IDs a decoded ROM
// reports.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

type Device struct {
	VendorID uint16 `toml:"vendor_id"`
	DeviceID uint16 `toml:"device_id"`
	Name     string `toml:"name,omitempty"`
	Kind     string `toml:"kind,omitempty"`
}

func (d *Device) String() string {
	var s string
	s += fmt.Sprintf("Device 0x%04x:0x%04x:\n", d.VendorID, d.DeviceID)
	if len(d.Name) > 0 {
		s += fmt.Sprintf("   Name: %s\n", d.Name)
	}
	if len(d.Kind) > 0 {
		s += fmt.Sprintf("   Kind: %s\n", d.Kind)
	}
	return s
}

type Config struct {
	Devices []*Device `toml:"device,omitempty"`
}

func (c *Config) String() string {
	var s string
	for _, d := range c.Devices {
		s += d.String()
	}
	return s
}

// Lookup finds the entry for a vendor:device pair, or nil.
func (c *Config) Lookup(vendor, device uint16) *Device {
	for _, d := range c.Devices {
		if d.VendorID == vendor && d.DeviceID == device {
			return d
		}
	}
	return nil
}

func LoadFile(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, errors.Wrap(err, "parsing device database")
	}
	return &cfg, nil
}
