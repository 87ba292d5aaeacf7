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

import (
	"fmt"
	"math"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"
)

// pwmRange is the PWM cycle length, so one step equals one percent.
const pwmRange = 100

// Board owns the memory-mapped GPIO range of a Raspberry Pi.
type Board struct {
	mu     sync.Mutex
	freqHz int
	open   bool
}

// OpenBoard maps /dev/gpiomem. Outputs created from the board run their
// PWM at freqHz.
func OpenBoard(freqHz int) (*Board, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open gpio: %w", err)
	}
	return &Board{freqHz: freqHz, open: true}, nil
}

// Output puts a hardware-PWM capable pin (12, 13, 18 or 19) in PWM mode
// and starts it at 0%.
func (b *Board) Output(pin int) *PinOutput {
	p := rpio.Pin(pin)
	p.Mode(rpio.Pwm)
	p.Freq(b.freqHz * pwmRange)
	p.DutyCycle(0, pwmRange)
	return &PinOutput{board: b, pin: p}
}

func (b *Board) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return nil
	}
	b.open = false
	return rpio.Close()
}

type PinOutput struct {
	board *Board
	pin   rpio.Pin
}

func (o *PinOutput) SetDuty(duty float64) error {
	o.board.mu.Lock()
	defer o.board.mu.Unlock()
	if !o.board.open {
		return fmt.Errorf("gpio%d: board closed", o.pin)
	}
	o.pin.DutyCycle(uint32(math.Round(duty)), pwmRange)
	return nil
}

func (o *PinOutput) String() string {
	return fmt.Sprintf("gpio%d", o.pin)
}
