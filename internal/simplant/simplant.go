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

// Package simplant is a first-order room model standing in for the
// 1-Wire sensor and both PWM outputs on a bench without hardware.
package simplant

import (
	"errors"
	"math"
	"sync"
	"time"

	"thermoreg/internal/config"
	"thermoreg/internal/sensor"
)

var ErrNegativeRate = errors.New("simplant: rates must not be negative")

type Params struct {
	StartC   float64
	AmbientC float64
	// fraction of the indoor/ambient difference lost per second
	LossPerSecond float64
	// temperature change per second at 100% duty
	HeaterCPerSecond float64
	CoolerCPerSecond float64
	// not-ready frames returned before every ready one
	NotReadyPerSample int
}

func ParamsFromConfig(c config.SimulationConfig) Params {
	return Params{
		StartC:            c.StartC,
		AmbientC:          c.AmbientC,
		LossPerSecond:     c.LossPerSecond,
		HeaterCPerSecond:  c.HeaterCPerSecond,
		CoolerCPerSecond:  c.CoolerCPerSecond,
		NotReadyPerSample: c.NotReadyPerSample,
	}
}

func (p Params) Validate() error {
	if p.LossPerSecond < 0 || p.HeaterCPerSecond < 0 || p.CoolerCPerSecond < 0 || p.NotReadyPerSample < 0 {
		return ErrNegativeRate
	}
	return nil
}

type Plant struct {
	mu       sync.Mutex
	p        Params
	tempC    float64
	heat     float64
	cool     float64
	last     time.Time
	notReady int
	now      func() time.Time
}

func New(p Params) (*Plant, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return newPlant(p, time.Now), nil
}

func newPlant(p Params, now func() time.Time) *Plant {
	return &Plant{p: p, tempC: p.StartC, now: now, last: now()}
}

// advance must be called with mu held.
func (pl *Plant) advance() {
	t := pl.now()
	dt := t.Sub(pl.last).Seconds()
	pl.last = t
	if dt <= 0 {
		return
	}
	pl.tempC += (pl.p.AmbientC - pl.tempC) * (1 - math.Exp(-pl.p.LossPerSecond*dt))
	pl.tempC += pl.heat / 100 * pl.p.HeaterCPerSecond * dt
	pl.tempC -= pl.cool / 100 * pl.p.CoolerCPerSecond * dt
}

// ReadFrame implements sensor.Device.
func (pl *Plant) ReadFrame() ([]string, error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.advance()
	if pl.notReady < pl.p.NotReadyPerSample {
		pl.notReady++
		return sensor.FormatFrame(pl.tempC, false), nil
	}
	pl.notReady = 0
	return sensor.FormatFrame(pl.tempC, true), nil
}

func (pl *Plant) Temperature() float64 {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.advance()
	return pl.tempC
}

func (pl *Plant) setDuty(slot *float64, duty float64) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.advance()
	*slot = duty
}

// Output is one simulated PWM channel.
type Output struct {
	pl   *Plant
	slot *float64
}

func (o Output) SetDuty(duty float64) error {
	o.pl.setDuty(o.slot, duty)
	return nil
}

func (pl *Plant) HeatOutput() Output { return Output{pl: pl, slot: &pl.heat} }
func (pl *Plant) CoolOutput() Output { return Output{pl: pl, slot: &pl.cool} }

// Probe reports the model state for the host monitor page.
func (pl *Plant) Probe() map[string]any {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.advance()
	return map[string]any{
		"room_c":    math.Round(pl.tempC*1000) / 1000,
		"ambient_c": pl.p.AmbientC,
		"heat_duty": pl.heat,
		"cool_duty": pl.cool,
	}
}

func (pl *Plant) String() string {
	return "simulated room"
}
