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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProportionalCompute(t *testing.T) {
	p := NewProportional(DefaultGain)
	cases := []struct {
		name            string
		current, target float64
		want            float64
	}{
		{"heat_18_to_22", 18, 22, 40},
		{"full_scale", 0, 100, 100},
		{"clamped_high", 10, 30, 100},
		{"at_target", 21, 21, 0},
		{"negative_error", 26, 20, 0},
		{"fractional", 20.5, 21, 5},
		{"nan_current", math.NaN(), 20, 0},
		{"inf_target", 20, math.Inf(1), 100},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.InDelta(t, c.want, p.Compute(c.current, c.target), 1e-9)
		})
	}
}

func TestNewProportionalDefaultsGain(t *testing.T) {
	assert.Equal(t, DefaultGain, NewProportional(0).Gain)
	assert.Equal(t, DefaultGain, NewProportional(math.NaN()).Gain)
	assert.Equal(t, 4.0, NewProportional(4).Gain)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, Heating, Classify(18, 22))
	assert.Equal(t, Cooling, Classify(26, 20))
	assert.Equal(t, Idle, Classify(21.5, 21.5))
	assert.Equal(t, Unknown, Classify(math.NaN(), 21))
	assert.Equal(t, "Heating", Heating.String())
	assert.Equal(t, "Status(42)", Status(42).String())
}
