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

package modbus

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"thermoreg/pkg/logger"
)

// Value is the live value of one register, for display.
type Value struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Value       *float64 `json:"value,omitempty"`
	Error       string   `json:"error,omitempty"`
	Writable    bool     `json:"writable"`
}

type ValueReader interface {
	ReadFloat(ctx context.Context, name string) (float64, error)
}

// RegisterPage serves the current value of every register in the map as
// JSON. It is read-only; writes go through the owner of the device.
type RegisterPage struct {
	config *Config
	src    ValueReader
	log    *logger.Logger
}

func NewRegisterPage(config *Config, src ValueReader) *RegisterPage {
	return &RegisterPage{config: config, src: src, log: logger.New("ModbusWeb")}
}

func (p *RegisterPage) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	names := make([]string, 0, len(p.config.Registers))
	for name := range p.config.Registers {
		names = append(names, name)
	}
	sort.Strings(names)

	values := make([]Value, 0, len(names))
	for _, name := range names {
		reg := p.config.Registers[name]
		v := Value{ID: name, Description: reg.Description, Writable: reg.Writable}
		if f, err := p.src.ReadFloat(ctx, name); err != nil {
			v.Error = err.Error()
		} else {
			v.Value = &f
		}
		values = append(values, v)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(values); err != nil {
		p.log.Error("failed to encode register values: %v", err)
	}
}
