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

import "math"

// DefaultGain maps one degree of error to 10% duty.
const DefaultGain = 10.0

// Calculator turns a (current, target) pair into a duty cycle in [0, 100].
// It is single-sided: a non-positive error gives 0.
type Calculator interface {
	Compute(current, target float64) float64
}

// Proportional is the default calculator: (target - current) * Gain,
// clamped to [0, 100].
type Proportional struct {
	Gain float64
}

func NewProportional(gain float64) Proportional {
	if gain <= 0 || math.IsNaN(gain) || math.IsInf(gain, 0) {
		gain = DefaultGain
	}
	return Proportional{Gain: gain}
}

func (p Proportional) Compute(current, target float64) float64 {
	duty := (target - current) * p.Gain
	if math.IsNaN(duty) {
		return 0
	}
	return math.Max(0, math.Min(100, duty))
}
