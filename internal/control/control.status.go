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

import "fmt"

type Status int

const (
	Unknown Status = iota
	Idle
	Heating
	Cooling
)

var statusNames = map[Status]string{
	Unknown: "Unknown",
	Idle:    "Idle",
	Heating: "Heating",
	Cooling: "Cooling",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Classify compares a reading against a target. Equality is exact.
func Classify(current, target float64) Status {
	switch {
	case current < target:
		return Heating
	case current > target:
		return Cooling
	case current == target:
		return Idle
	}
	// NaN on either side
	return Unknown
}
