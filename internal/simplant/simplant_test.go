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

package simplant

import (
	"context"
	"testing"
	"time"

	"thermoreg/internal/actuator"
	"thermoreg/internal/control"
	"thermoreg/internal/sensor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }
func (c *clock) step(d time.Duration) { c.t = c.t.Add(d) }

func newTestPlant(p Params) (*Plant, *clock) {
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return newPlant(p, c.now), c
}

func TestDriftsToAmbient(t *testing.T) {
	pl, c := newTestPlant(Params{StartC: 22, AmbientC: 10, LossPerSecond: 0.01})
	c.step(time.Hour)
	assert.InDelta(t, 10, pl.Temperature(), 0.01)
}

func TestHeaterAndCooler(t *testing.T) {
	pl, c := newTestPlant(Params{StartC: 20, AmbientC: 20, HeaterCPerSecond: 0.1, CoolerCPerSecond: 0.05})

	require.NoError(t, pl.HeatOutput().SetDuty(50))
	c.step(10 * time.Second)
	assert.InDelta(t, 20.5, pl.Temperature(), 1e-9)

	require.NoError(t, pl.HeatOutput().SetDuty(0))
	require.NoError(t, pl.CoolOutput().SetDuty(100))
	c.step(10 * time.Second)
	assert.InDelta(t, 20.0, pl.Temperature(), 1e-9)
}

func TestNotReadyFrames(t *testing.T) {
	pl, _ := newTestPlant(Params{StartC: 19.5, NotReadyPerSample: 2})

	r := sensor.NewReader(pl).WithRetry(time.Millisecond, 5)
	s, err := r.Read(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 19.5, s.ValueC, 0.001)

	_, err = sensor.NewReader(pl).WithRetry(time.Millisecond, 1).Read(context.Background())
	assert.ErrorIs(t, err, sensor.ErrDeviceTimeout)
}

func TestClosedLoopConverges(t *testing.T) {
	pl, c := newTestPlant(Params{
		StartC: 15, AmbientC: 12, LossPerSecond: 0.0005,
		HeaterCPerSecond: 0.2, CoolerCPerSecond: 0.2,
	})
	loop := control.NewLoop(sensor.NewReader(pl), actuator.NewDriver(pl.HeatOutput(), pl.CoolOutput()))

	for range 240 {
		_, err := loop.Apply(context.Background(), 21)
		require.NoError(t, err)
		c.step(30 * time.Second)
	}
	// proportional only: settles just below target where heat equals loss
	assert.InDelta(t, 21, pl.Temperature(), 0.5)
	assert.Less(t, pl.Temperature(), 21.0)
}

func TestValidate(t *testing.T) {
	_, err := New(Params{LossPerSecond: -1})
	assert.ErrorIs(t, err, ErrNegativeRate)
}
