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
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"thermoreg/pkg/logger"
)

// Output is one PWM channel. Duty is a percentage in [0, 100].
type Output interface {
	SetDuty(duty float64) error
}

// State is the last successfully commanded pair.
type State struct {
	HeatDuty float64 `json:"heat_duty"`
	CoolDuty float64 `json:"cool_duty"`
}

// Driver owns the heating and cooling outputs. All reads and writes of the
// pair happen under one lock, and the two channels are never non-zero
// together, neither in State nor on the hardware.
type Driver struct {
	mu    sync.Mutex
	heat  Output
	cool  Output
	state State
	log   *logger.Logger
}

func NewDriver(heat, cool Output) *Driver {
	return &Driver{
		heat: heat,
		cool: cool,
		log:  logger.New("Actuator"),
	}
}

func normalize(duty float64) (float64, error) {
	if math.IsNaN(duty) {
		return 0, fmt.Errorf("%w: NaN", ErrInvalidDuty)
	}
	return math.Max(0, math.Min(100, duty)), nil
}

// SetHeat writes the heating channel. It fails with ErrConflict when the
// cooling channel is currently non-zero and duty is positive.
func (d *Driver) SetHeat(duty float64) error {
	duty, err := normalize(duty)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if duty > 0 && d.state.CoolDuty > 0 {
		return fmt.Errorf("%w: heat %.1f%% while cool is %.1f%%", ErrConflict, duty, d.state.CoolDuty)
	}
	return d.write(d.heat, "heat", duty, &d.state.HeatDuty)
}

// SetCool writes the cooling channel. It fails with ErrConflict when the
// heating channel is currently non-zero and duty is positive.
func (d *Driver) SetCool(duty float64) error {
	duty, err := normalize(duty)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if duty > 0 && d.state.HeatDuty > 0 {
		return fmt.Errorf("%w: cool %.1f%% while heat is %.1f%%", ErrConflict, duty, d.state.HeatDuty)
	}
	return d.write(d.cool, "cool", duty, &d.state.CoolDuty)
}

// Command sets both channels as one operation. The channel being driven to
// zero is written first.
func (d *Driver) Command(heat, cool float64) error {
	heat, err := normalize(heat)
	if err != nil {
		return err
	}
	cool, err = normalize(cool)
	if err != nil {
		return err
	}
	if heat > 0 && cool > 0 {
		return fmt.Errorf("%w: heat %.1f%%, cool %.1f%%", ErrConflict, heat, cool)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if heat == 0 {
		if err := d.write(d.heat, "heat", 0, &d.state.HeatDuty); err != nil {
			return err
		}
		return d.write(d.cool, "cool", cool, &d.state.CoolDuty)
	}
	if err := d.write(d.cool, "cool", 0, &d.state.CoolDuty); err != nil {
		return err
	}
	return d.write(d.heat, "heat", heat, &d.state.HeatDuty)
}

// write must be called with d.mu held.
func (d *Driver) write(out Output, name string, duty float64, slot *float64) error {
	if err := out.SetDuty(duty); err != nil {
		d.log.Error("%s output <- %.1f%%: %v", name, duty, err)
		return fmt.Errorf("%w: %s output: %v", ErrWriteFailure, name, err)
	}
	if *slot != duty {
		d.log.Debug("%s output %.1f%% -> %.1f%%", name, *slot, duty)
	}
	*slot = duty
	return nil
}

func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Off drives both outputs to zero.
func (d *Driver) Off() error {
	return d.Command(0, 0)
}

// Close switches both outputs off and releases any output that holds a
// resource.
func (d *Driver) Close() error {
	errs := []error{d.Off()}
	for _, out := range []Output{d.heat, d.cool} {
		if c, ok := out.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
