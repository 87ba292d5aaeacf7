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

package events

import (
	"thermoreg/pkg/eventbus"
	"time"
)

var (
	TopicControl eventbus.Topic = "control"
	TopicSample  eventbus.Topic = "sample"
)

// ControlUpdate is published after every control decision, applied or not.
type ControlUpdate struct {
	Status   string    `json:"status"`
	CurrentC *float64  `json:"current_temp"`
	TargetC  float64   `json:"target_temp"`
	HeatDuty float64   `json:"heat_duty"`
	CoolDuty float64   `json:"cool_duty"`
	Applied  bool      `json:"applied"`
	Error    string    `json:"error,omitempty"`
	Time     time.Time `json:"time"`
}

// SampleUpdate is published by the sampling task for every cycle.
type SampleUpdate struct {
	ID       string    `json:"id,omitempty"`
	ValueC   float64   `json:"temp"`
	Recorded bool      `json:"recorded"`
	Error    string    `json:"error,omitempty"`
	Time     time.Time `json:"timestamp"`
}
