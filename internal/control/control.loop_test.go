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

package control

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"thermoreg/internal/actuator"
	"thermoreg/internal/events"
	"thermoreg/internal/sensor"
	"thermoreg/pkg/eventbus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type fakeReader struct {
	mu    sync.Mutex
	value float64
	err   error
	reads int
}

func (r *fakeReader) set(v float64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.value, r.err = v, err
}

func (r *fakeReader) Read(ctx context.Context) (sensor.Sample, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	if r.err != nil {
		return sensor.Sample{}, r.err
	}
	return sensor.Sample{ID: "s", ValueC: r.value, CapturedAt: time.Now()}, nil
}

type channel struct {
	mu     sync.Mutex
	duty   float64
	writes int
	fail   error
}

func (c *channel) SetDuty(d float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.duty = d
	c.writes++
	return nil
}

type LoopSuite struct {
	suite.Suite
	reader *fakeReader
	heat   *channel
	cool   *channel
	driver *actuator.Driver
	bus    *eventbus.Bus
	loop   *Loop
}

func (s *LoopSuite) SetupTest() {
	s.reader = &fakeReader{}
	s.heat = &channel{}
	s.cool = &channel{}
	s.driver = actuator.NewDriver(s.heat, s.cool)
	s.bus = eventbus.New()
	s.loop = NewLoop(s.reader, s.driver).WithBus(s.bus)
}

func (s *LoopSuite) TearDownTest() {
	s.bus.Close()
}

func (s *LoopSuite) apply(current, target float64) Result {
	s.reader.set(current, nil)
	res, err := s.loop.Apply(context.Background(), target)
	s.Require().NoError(err)
	return res
}

func (s *LoopSuite) TestHeating() {
	res := s.apply(18, 22)
	s.Equal(Heating, res.Status)
	s.InDelta(40, res.HeatDuty, 1e-9)
	s.Zero(res.CoolDuty)
	s.InDelta(40, s.heat.duty, 1e-9)
	s.Zero(s.cool.duty)
	s.Equal(actuator.State{HeatDuty: 40}, s.driver.State())
}

func (s *LoopSuite) TestCooling() {
	res := s.apply(26, 20)
	s.Equal(Cooling, res.Status)
	s.Zero(res.HeatDuty)
	s.InDelta(60, res.CoolDuty, 1e-9)
	s.Equal(actuator.State{CoolDuty: 60}, s.driver.State())
}

func (s *LoopSuite) TestCoolingSaturates() {
	res := s.apply(25, 5)
	s.Equal(Cooling, res.Status)
	s.InDelta(100, res.CoolDuty, 1e-9)
}

func (s *LoopSuite) TestIdleZerosBoth() {
	s.apply(18, 22)
	res := s.apply(21, 21)
	s.Equal(Idle, res.Status)
	s.Equal(actuator.State{}, s.driver.State())
	s.Zero(s.heat.duty)
	s.Zero(s.cool.duty)
}

func (s *LoopSuite) TestHeatToCoolSwitch() {
	s.apply(18, 22)
	res := s.apply(24, 22)
	s.Equal(Cooling, res.Status)
	s.Equal(actuator.State{CoolDuty: 20}, s.driver.State())
}

func (s *LoopSuite) TestSensorFailureLeavesOutputs() {
	s.apply(18, 22)
	heatWrites := s.heat.writes

	s.reader.set(0, sensor.ErrDeviceUnavailable)
	res, err := s.loop.Apply(context.Background(), 22)
	s.ErrorIs(err, sensor.ErrDeviceUnavailable)
	s.Equal(Unknown, res.Status)
	s.Nil(res.CurrentC)
	s.InDelta(40, res.HeatDuty, 1e-9)
	s.Equal(heatWrites, s.heat.writes)
	s.Equal(actuator.State{HeatDuty: 40}, s.driver.State())

	s.reader.set(0, sensor.ErrDeviceTimeout)
	_, err = s.loop.Apply(context.Background(), 22)
	s.ErrorIs(err, sensor.ErrDeviceTimeout)
	s.Equal(actuator.State{HeatDuty: 40}, s.driver.State())
}

func (s *LoopSuite) TestActuatorFailureReported() {
	s.apply(26, 20)
	s.cool.fail = errors.New("stuck relay")

	s.reader.set(18, nil)
	res, err := s.loop.Apply(context.Background(), 22)
	s.ErrorIs(err, actuator.ErrWriteFailure)
	s.Equal(Heating, res.Status)
	s.Equal(actuator.State{CoolDuty: 60}, s.driver.State())
	s.InDelta(60, res.CoolDuty, 1e-9)
	s.Zero(res.HeatDuty)
}

func (s *LoopSuite) TestInvalidTarget() {
	_, err := s.loop.Apply(context.Background(), math.NaN())
	s.ErrorIs(err, ErrInvalidTarget)
	s.Zero(s.reader.reads)
}

func (s *LoopSuite) TestObserveDoesNotActuate() {
	s.reader.set(18, nil)
	res, err := s.loop.Observe(context.Background(), 22)
	s.Require().NoError(err)
	s.Equal(Heating, res.Status)
	s.Require().NotNil(res.CurrentC)
	s.InDelta(18, *res.CurrentC, 1e-9)
	s.Zero(s.heat.writes)
	s.Zero(s.cool.writes)
}

func (s *LoopSuite) TestPublishesControlUpdates() {
	ch, unsub := s.bus.Subscribe(context.Background(), events.TopicControl, false)
	defer unsub()

	s.apply(18, 22)
	ev := (<-ch).(events.ControlUpdate)
	s.Equal("Heating", ev.Status)
	s.True(ev.Applied)
	s.InDelta(40, ev.HeatDuty, 1e-9)

	s.reader.set(0, sensor.ErrMalformedFrame)
	_, _ = s.loop.Apply(context.Background(), 22)
	ev = (<-ch).(events.ControlUpdate)
	s.Equal("Unknown", ev.Status)
	s.False(ev.Applied)
	s.NotEmpty(ev.Error)
}

func (s *LoopSuite) TestMemoryless() {
	first := s.apply(20, 21)
	s.apply(30, 21)
	again := s.apply(20, 21)
	s.Equal(first.Status, again.Status)
	s.Equal(first.HeatDuty, again.HeatDuty)
}

func TestLoopSuite(t *testing.T) {
	suite.Run(t, new(LoopSuite))
}

func TestConcurrentApplyKeepsExclusion(t *testing.T) {
	reader := &fakeReader{}
	driver := actuator.NewDriver(&channel{}, &channel{})
	loop := NewLoop(reader, driver)

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for range 100 {
				reader.set(rand.Float64()*40, nil)
				_, err := loop.Apply(context.Background(), 15+rand.Float64()*10)
				assert.NoError(t, err)
				st := driver.State()
				assert.False(t, st.HeatDuty > 0 && st.CoolDuty > 0)
			}
		})
	}
	wg.Wait()
}

func TestDecideProperty(t *testing.T) {
	loop := NewLoop(&fakeReader{}, actuator.NewDriver(&channel{}, &channel{}))
	r := rand.New(rand.NewPCG(7, 11))
	for range 10000 {
		c, tg := r.Float64()*60-10, r.Float64()*60-10
		st, heat, cool := loop.Decide(c, tg)
		require.False(t, heat > 0 && cool > 0)
		require.GreaterOrEqual(t, heat, 0.0)
		require.LessOrEqual(t, heat, 100.0)
		require.GreaterOrEqual(t, cool, 0.0)
		require.LessOrEqual(t, cool, 100.0)
		require.Equal(t, Classify(c, tg), st)
	}
}
