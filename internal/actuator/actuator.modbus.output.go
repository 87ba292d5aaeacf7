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

package actuator

import (
	"context"
	"fmt"
	"math"
	"time"
)

// RegisterIO is the part of the modbus client used by RegisterOutput.
type RegisterIO interface {
	WriteFloat(ctx context.Context, name string, value float64) error
	ReadFloat(ctx context.Context, name string) (float64, error)
}

// RegisterOutput drives a PWM channel on a remote I/O module through a
// named holding register.
type RegisterOutput struct {
	io       RegisterIO
	register string
	timeout  time.Duration
	verify   bool
}

func NewRegisterOutput(io RegisterIO, register string) *RegisterOutput {
	return &RegisterOutput{io: io, register: register, timeout: 3 * time.Second}
}

// WithVerify reads the register back after every write and fails when the
// module reports a different duty.
func (o *RegisterOutput) WithVerify(on bool) *RegisterOutput {
	o.verify = on
	return o
}

func (o *RegisterOutput) WithTimeout(d time.Duration) *RegisterOutput {
	o.timeout = d
	return o
}

func (o *RegisterOutput) SetDuty(duty float64) error {
	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	if err := o.io.WriteFloat(ctx, o.register, duty); err != nil {
		return err
	}
	if !o.verify {
		return nil
	}
	got, err := o.io.ReadFloat(ctx, o.register)
	if err != nil {
		return fmt.Errorf("verify %s: %w", o.register, err)
	}
	// registers may hold integer percent
	if math.Abs(got-duty) > 0.5 {
		return fmt.Errorf("verify %s: wrote %.1f, read back %.1f", o.register, duty, got)
	}
	return nil
}

func (o *RegisterOutput) String() string {
	return "modbus:" + o.register
}
