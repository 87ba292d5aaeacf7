// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package sensor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Device performs one raw acquisition and returns the frame's text lines.
type Device interface {
	ReadFrame() ([]string, error)
}

// W1Device reads a DS18B20 through the Linux w1-gpio/w1-therm sysfs
// interface. The device folder is looked up on every read so a sensor
// plugged in after startup is picked up.
type W1Device struct {
	BaseDir string
	Glob    string
}

func NewW1Device(baseDir, glob string) *W1Device {
	return &W1Device{BaseDir: baseDir, Glob: glob}
}

func (d *W1Device) path() (string, error) {
	matches, err := filepath.Glob(filepath.Join(d.BaseDir, d.Glob))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: no device matching %s", ErrDeviceUnavailable, filepath.Join(d.BaseDir, d.Glob))
	}
	// only one sensor per zone is supported
	return filepath.Join(matches[0], "w1_slave"), nil
}

func (d *W1Device) ReadFrame() ([]string, error) {
	p, err := d.path()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	return splitFrame(string(data)), nil
}

func splitFrame(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func (d *W1Device) String() string {
	return "w1:" + filepath.Join(d.BaseDir, d.Glob)
}
