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

package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"thermoreg/internal/actuator"
	"thermoreg/internal/config"
	"thermoreg/internal/sensor"
	"thermoreg/internal/simplant"
	"thermoreg/pkg/modbus"
)

// hardware is the sensor and output pair selected by the config, plus the
// backends that must be released on exit.
type hardware struct {
	reader  *sensor.Reader
	device  sensor.Device
	driver  *actuator.Driver
	plant   *simplant.Plant
	closers []func() error

	// live register view, modbus backend only
	registerPage http.Handler
}

func (hw *hardware) simPlant(conf *config.Config) (*simplant.Plant, error) {
	if hw.plant != nil {
		return hw.plant, nil
	}
	pl, err := simplant.New(simplant.ParamsFromConfig(conf.Simulation))
	if err != nil {
		return nil, err
	}
	hw.plant = pl
	return pl, nil
}

func openSensor(conf *config.Config, hw *hardware) error {
	if conf.Sensor.Simulate {
		pl, err := hw.simPlant(conf)
		if err != nil {
			return err
		}
		hw.device = pl
	} else {
		hw.device = sensor.NewW1Device(conf.Sensor.BaseDir, conf.Sensor.DeviceGlob)
	}
	hw.reader = sensor.NewReader(hw.device).WithRetry(
		time.Duration(conf.Sensor.RetryIntervalMs)*time.Millisecond,
		conf.Sensor.MaxRetries,
	)
	return nil
}

func openOutputs(conf *config.Config, hw *hardware) error {
	oc := conf.Outputs
	var heat, cool actuator.Output

	switch oc.Backend {
	case "rpio":
		board, err := actuator.OpenBoard(oc.PWMFrequencyHz)
		if err != nil {
			return err
		}
		hw.closers = append(hw.closers, board.Close)
		heat, cool = board.Output(oc.HeatPin), board.Output(oc.CoolPin)

	case "modbus":
		mconf, err := modbus.LoadConfig(conf.Resolve(oc.ModbusMap))
		if err != nil {
			return fmt.Errorf("modbus map: %w", err)
		}
		client := modbus.NewClient(mconf)
		hw.closers = append(hw.closers, func() error { client.Close(); return nil })
		heat = actuator.NewRegisterOutput(client, oc.HeatRegister).WithVerify(oc.VerifyWrites)
		cool = actuator.NewRegisterOutput(client, oc.CoolRegister).WithVerify(oc.VerifyWrites)
		hw.registerPage = modbus.NewRegisterPage(mconf, client)

	case "sim":
		pl, err := hw.simPlant(conf)
		if err != nil {
			return err
		}
		heat, cool = pl.HeatOutput(), pl.CoolOutput()

	default:
		return fmt.Errorf("unknown output backend %q", oc.Backend)
	}

	hw.driver = actuator.NewDriver(heat, cool)
	return nil
}

func openHardware(conf *config.Config, outputs bool) (*hardware, error) {
	hw := &hardware{}
	if err := openSensor(conf, hw); err != nil {
		return nil, err
	}
	if outputs {
		if err := openOutputs(conf, hw); err != nil {
			return nil, err
		}
	}
	return hw, nil
}

// release frees the backends and leaves the outputs as they are.
func (hw *hardware) release() error {
	var errs []error
	for i := len(hw.closers) - 1; i >= 0; i-- {
		errs = append(errs, hw.closers[i]())
	}
	hw.closers = nil
	return errors.Join(errs...)
}

// shutdown switches both outputs off, then releases the backends.
func (hw *hardware) shutdown() error {
	var errs []error
	if hw.driver != nil {
		errs = append(errs, hw.driver.Close())
	}
	errs = append(errs, hw.release())
	return errors.Join(errs...)
}

func (hw *hardware) describe(w io.Writer) {
	fmt.Fprintf(w, "sensor: %v\n", hw.device)
}
