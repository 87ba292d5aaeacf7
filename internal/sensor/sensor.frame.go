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

package sensor

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	readyMarker = "YES"
	tempField   = "t="

	// DS18B20 measurement range
	minPlausibleC = -55.0
	maxPlausibleC = 125.0
)

// ParseFrame decodes one w1_slave frame:
//
//	72 01 4b 46 7f ff 0e 10 57 : crc=57 YES
//	72 01 4b 46 7f ff 0e 10 57 t=23125
//
// It returns errNotReady when the first line lacks the ready marker.
func ParseFrame(lines []string) (float64, error) {
	if len(lines) == 0 {
		return 0, fmt.Errorf("%w: empty frame", ErrMalformedFrame)
	}
	if !strings.HasSuffix(strings.TrimSpace(lines[0]), readyMarker) {
		return 0, errNotReady
	}
	if len(lines) < 2 {
		return 0, fmt.Errorf("%w: missing data line", ErrMalformedFrame)
	}

	pos := strings.Index(lines[1], tempField)
	if pos == -1 {
		return 0, fmt.Errorf("%w: no %q field in %q", ErrMalformedFrame, tempField, lines[1])
	}
	milli, err := strconv.ParseInt(strings.TrimSpace(lines[1][pos+len(tempField):]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	v := float64(milli) / 1000.0
	if v < minPlausibleC || v > maxPlausibleC {
		return 0, fmt.Errorf("%w: %.3f°C outside sensor range", ErrMalformedFrame, v)
	}
	return v, nil
}

// FormatFrame renders a frame the way the w1 driver does; the simulated
// device and tests use it.
func FormatFrame(tempC float64, ready bool) []string {
	marker := "NO"
	if ready {
		marker = readyMarker
	}
	const raw = "72 01 4b 46 7f ff 0e 10 57"
	return []string{
		fmt.Sprintf("%s : crc=57 %s", raw, marker),
		fmt.Sprintf("%s %s%d", raw, tempField, int64(math.Round(tempC*1000))),
	}
}
