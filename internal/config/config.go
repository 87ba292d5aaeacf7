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

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"thermoreg/pkg/eventbus"
)

type SensorConfig struct {
	// 1-Wire sysfs root and the device folder pattern (DS18B20 family 28)
	BaseDir    string `json:"base_dir"`
	DeviceGlob string `json:"device_glob"`

	RetryIntervalMs int `json:"retry_interval_ms"`
	MaxRetries      int `json:"max_retries"`

	// Simulate replaces the sensor with the built-in room model.
	Simulate bool `json:"simulate"`
}

type ControlConfig struct {
	Gain         float64 `json:"gain"`
	MinSetpointC float64 `json:"min_setpoint_c"`
	MaxSetpointC float64 `json:"max_setpoint_c"`
}

type OutputsConfig struct {
	// "rpio", "modbus" or "sim"
	Backend string `json:"backend"`

	HeatPin        int `json:"heat_pin"`
	CoolPin        int `json:"cool_pin"`
	PWMFrequencyHz int `json:"pwm_frequency_hz"`

	ModbusMap    string `json:"modbus_map"`
	HeatRegister string `json:"heat_register"`
	CoolRegister string `json:"cool_register"`
	VerifyWrites bool   `json:"verify_writes"`
}

type SamplingConfig struct {
	IntervalSeconds int `json:"interval_seconds"`
}

type RecorderConfig struct {
	CSVDir string `json:"csv_dir"`

	EmonCMSAddr   string `json:"emoncms_addr"`
	EmonCMSApiKey string `json:"emoncms_apikey"`
	EmonCMSNode   string `json:"emoncms_node"`

	MQTTBroker string `json:"mqtt_broker"`
	MQTTTopic  string `json:"mqtt_topic"`

	KafkaBrokers []string `json:"kafka_brokers"`
	KafkaTopic   string   `json:"kafka_topic"`
}

type SimulationConfig struct {
	StartC            float64 `json:"start_c"`
	AmbientC          float64 `json:"ambient_c"`
	LossPerSecond     float64 `json:"loss_per_second"`
	HeaterCPerSecond  float64 `json:"heater_c_per_second"`
	CoolerCPerSecond  float64 `json:"cooler_c_per_second"`
	NotReadyPerSample int     `json:"not_ready_per_sample"`
}

type HTTPConfig struct {
	Addr string `json:"addr"`
}

type LoggingConfig struct {
	MaxBytes int64 `json:"max_bytes"`
}

type Config struct {
	Sensor     SensorConfig     `json:"sensor"`
	Control    ControlConfig    `json:"control"`
	Outputs    OutputsConfig    `json:"outputs"`
	Sampling   SamplingConfig   `json:"sampling"`
	Recorder   RecorderConfig   `json:"recorder"`
	Simulation SimulationConfig `json:"simulation"`
	HTTP       HTTPConfig       `json:"http"`
	Logging    LoggingConfig    `json:"logging"`

	// not loaded from file, but added here to
	// pass to all services alongside config
	EventBus *eventbus.Bus `json:"-"`
	RootDir  string        `json:"-"`
}

// LoadFile reads the JSON config at path. A missing file yields the
// defaults, so a bare install on the Pi starts with the stock wiring.
func LoadFile(path string) (*Config, error) {
	var c Config
	f, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("open config: %w", err)
	default:
		defer f.Close()
		if err := json.NewDecoder(f).Decode(&c); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) ApplyDefaults() {
	if c.Sensor.BaseDir == "" {
		c.Sensor.BaseDir = "/sys/bus/w1/devices"
	}
	if c.Sensor.DeviceGlob == "" {
		c.Sensor.DeviceGlob = "28*"
	}
	if c.Sensor.RetryIntervalMs == 0 {
		c.Sensor.RetryIntervalMs = 200
	}
	if c.Sensor.MaxRetries == 0 {
		// ~2 s of retries, well past the 750 ms worst-case conversion
		c.Sensor.MaxRetries = 10
	}
	if c.Control.Gain == 0 {
		c.Control.Gain = 10
	}
	if c.Control.MinSetpointC == 0 {
		c.Control.MinSetpointC = 5
	}
	if c.Control.MaxSetpointC == 0 {
		c.Control.MaxSetpointC = 35
	}
	if c.Outputs.Backend == "" {
		c.Outputs.Backend = "rpio"
	}
	if c.Outputs.HeatPin == 0 {
		c.Outputs.HeatPin = 18 // PWM0
	}
	if c.Outputs.CoolPin == 0 {
		c.Outputs.CoolPin = 13 // PWM1
	}
	if c.Outputs.PWMFrequencyHz == 0 {
		c.Outputs.PWMFrequencyHz = 1000
	}
	if c.Outputs.ModbusMap == "" {
		c.Outputs.ModbusMap = "var/config/outputs.modbus.yml"
	}
	if c.Outputs.HeatRegister == "" {
		c.Outputs.HeatRegister = "heat_pwm"
	}
	if c.Outputs.CoolRegister == "" {
		c.Outputs.CoolRegister = "cool_pwm"
	}
	if c.Sampling.IntervalSeconds == 0 {
		c.Sampling.IntervalSeconds = 60
	}
	if c.Recorder.EmonCMSNode == "" {
		c.Recorder.EmonCMSNode = "thermoreg"
	}
	if c.Recorder.MQTTTopic == "" {
		c.Recorder.MQTTTopic = "thermoreg/samples"
	}
	if c.Recorder.KafkaTopic == "" {
		c.Recorder.KafkaTopic = "thermoreg.samples"
	}
	if c.Simulation.StartC == 0 {
		c.Simulation.StartC = 18
	}
	if c.Simulation.AmbientC == 0 {
		c.Simulation.AmbientC = 15
	}
	if c.Simulation.LossPerSecond == 0 {
		c.Simulation.LossPerSecond = 0.001
	}
	if c.Simulation.HeaterCPerSecond == 0 {
		c.Simulation.HeaterCPerSecond = 0.01
	}
	if c.Simulation.CoolerCPerSecond == 0 {
		c.Simulation.CoolerCPerSecond = 0.01
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":5000"
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Control.Gain <= 0 {
		errs = append(errs, fmt.Errorf("control.gain must be positive, got %v", c.Control.Gain))
	}
	if c.Control.MinSetpointC >= c.Control.MaxSetpointC {
		errs = append(errs, fmt.Errorf("control.min_setpoint_c (%v) must be below max_setpoint_c (%v)",
			c.Control.MinSetpointC, c.Control.MaxSetpointC))
	}
	if c.Sensor.MaxRetries < 0 || c.Sensor.RetryIntervalMs < 0 {
		errs = append(errs, errors.New("sensor retry settings must not be negative"))
	}
	if c.Sampling.IntervalSeconds < 0 {
		errs = append(errs, errors.New("sampling.interval_seconds must not be negative"))
	}
	switch c.Outputs.Backend {
	case "rpio", "modbus", "sim":
	default:
		errs = append(errs, fmt.Errorf("outputs.backend %q is not one of rpio, modbus, sim", c.Outputs.Backend))
	}
	if c.Outputs.Backend == "rpio" && c.Outputs.HeatPin == c.Outputs.CoolPin {
		errs = append(errs, errors.New("outputs.heat_pin and cool_pin must differ"))
	}
	return errors.Join(errs...)
}

// Resolve turns a root-relative path from the config into an absolute one.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.RootDir, p)
}
