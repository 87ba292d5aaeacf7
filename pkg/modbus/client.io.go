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

package modbus

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
)

// ReadFloat reads a named register and returns its engineering value
// (scale and offset applied). Bool registers read as 0 or 1.
func (c *Client) ReadFloat(ctx context.Context, name string) (float64, error) {
	reg, ok := c.config.Registers[name]
	if !ok {
		return 0, fmt.Errorf("register %q not configured", name)
	}
	n, err := registerCount(reg.DataType)
	if err != nil {
		return 0, err
	}
	raw, err := c.ReadRegisters(ctx, reg.Address, n)
	if err != nil {
		return 0, fmt.Errorf("read register %q: %w", name, err)
	}
	return decodeValue(reg, raw)
}

// WriteFloat writes an engineering value into a named writable register.
func (c *Client) WriteFloat(ctx context.Context, name string, value float64) error {
	reg, ok := c.config.Registers[name]
	if !ok {
		return fmt.Errorf("register %q not configured", name)
	}
	if !reg.Writable {
		return fmt.Errorf("register %q is not writable", name)
	}
	raw, n, err := encodeValue(reg, value)
	if err != nil {
		return fmt.Errorf("register %q: %w", name, err)
	}
	c.log.Debug("write register %q <- %v", name, value)
	if err := c.WriteRegisters(ctx, reg.Address, n, raw); err != nil {
		return fmt.Errorf("write register %q: %w", name, err)
	}
	return nil
}

func registerCount(dataType string) (uint16, error) {
	switch dataType {
	case "uint16", "int16", "bool":
		return 1, nil
	case "float32":
		return 2, nil
	default:
		return 0, fmt.Errorf("unsupported data type %q", dataType)
	}
}

func decodeValue(reg RegisterDef, raw []byte) (float64, error) {
	n, err := registerCount(reg.DataType)
	if err != nil {
		return 0, err
	}
	if len(raw) < int(n)*2 {
		return 0, fmt.Errorf("short register data: %d bytes", len(raw))
	}

	var v float64
	switch reg.DataType {
	case "bool":
		if binary.BigEndian.Uint16(raw) != 0 {
			return 1, nil
		}
		return 0, nil
	case "uint16":
		v = float64(binary.BigEndian.Uint16(raw))
	case "int16":
		v = float64(int16(binary.BigEndian.Uint16(raw)))
	case "float32":
		v = float64(math.Float32frombits(binary.BigEndian.Uint32(raw)))
	}
	if reg.Scale != 0 {
		v = v*reg.Scale + reg.Offset
	}
	return v, nil
}

func encodeValue(reg RegisterDef, value float64) ([]byte, uint16, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, 0, fmt.Errorf("value %v is not finite", value)
	}
	if reg.Scale != 0 {
		value = (value - reg.Offset) / reg.Scale
	}

	switch reg.DataType {
	case "float32":
		if math.Abs(value) > math.MaxFloat32 {
			return nil, 0, fmt.Errorf("value %v out of float32 range", value)
		}
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, math.Float32bits(float32(value)))
		return buf, 2, nil

	case "int16":
		ival := math.Round(value)
		if ival < math.MinInt16 || ival > math.MaxInt16 {
			return nil, 0, fmt.Errorf("value %v out of int16 range", value)
		}
		return uint16Bytes(uint16(int16(ival))), 1, nil

	case "uint16":
		ival := math.Round(value)
		if ival < 0 || ival > math.MaxUint16 {
			return nil, 0, fmt.Errorf("value %v out of uint16 range", value)
		}
		return uint16Bytes(uint16(ival)), 1, nil

	case "bool":
		if value != 0 {
			return uint16Bytes(math.MaxUint16), 1, nil
		}
		return uint16Bytes(0), 1, nil

	default:
		return nil, 0, fmt.Errorf("unsupported data type %q", reg.DataType)
	}
}

func uint16Bytes(v uint16) []byte {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, v)
	return buf
}
