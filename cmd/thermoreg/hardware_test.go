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
	"context"
	"path/filepath"
	"testing"

	"thermoreg/internal/actuator"
	"thermoreg/internal/config"
	"thermoreg/internal/control"
	"thermoreg/pkg/modbus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShippedConfigs(t *testing.T) {
	conf, err := config.LoadFile(filepath.Join("..", "..", "var/config/thermoreg.json"))
	require.NoError(t, err)
	assert.Equal(t, "rpio", conf.Outputs.Backend)
	assert.Equal(t, 10, conf.Sensor.MaxRetries)

	mconf, err := modbus.LoadConfig(filepath.Join("..", "..", conf.Outputs.ModbusMap))
	require.NoError(t, err)
	assert.True(t, mconf.Registers[conf.Outputs.HeatRegister].Writable)
	assert.True(t, mconf.Registers[conf.Outputs.CoolRegister].Writable)
}

func TestSimulatedHardware(t *testing.T) {
	conf := &config.Config{}
	conf.ApplyDefaults()
	conf.Sensor.Simulate = true
	conf.Sensor.RetryIntervalMs = 1
	conf.Outputs.Backend = "sim"
	conf.Simulation.NotReadyPerSample = 2

	hw, err := openHardware(conf, true)
	require.NoError(t, err)
	require.NotNil(t, hw.plant)

	loop := control.NewLoop(hw.reader, hw.driver)
	res, err := loop.Apply(context.Background(), 22)
	require.NoError(t, err)
	assert.Equal(t, control.Heating, res.Status)
	assert.InDelta(t, 40, hw.driver.State().HeatDuty, 0.1)
	assert.InDelta(t, 40, hw.plant.Probe()["heat_duty"], 0.1)

	require.NoError(t, hw.shutdown())
	assert.Equal(t, actuator.State{}, hw.driver.State())
	assert.Equal(t, 0.0, hw.plant.Probe()["heat_duty"])
}

func TestUnknownBackend(t *testing.T) {
	conf := &config.Config{}
	conf.ApplyDefaults()
	conf.Outputs.Backend = "gpiod"
	_, err := openHardware(conf, true)
	assert.Error(t, err)
}
