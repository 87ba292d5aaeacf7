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

import "errors"

var (
	// ErrWriteFailure wraps any error returned by a hardware output.
	ErrWriteFailure = errors.New("actuator: write failure")

	// ErrConflict is returned when a request would leave both heating and
	// cooling outputs non-zero at the same time.
	ErrConflict = errors.New("actuator: heat and cool both requested")

	ErrInvalidDuty = errors.New("actuator: invalid duty cycle")
)
