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

package recorder

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"thermoreg/internal/sensor"
)

const (
	csvTimeLayout = "2006-01-02T15:04:05.000Z07:00"
	csvFileLayout = "2006-01-02"
)

var csvHeader = []string{"id", "timestamp", "temp_c"}

// CSV appends samples to one file per day, <dir>/YYYY-MM-DD.csv.
type CSV struct {
	mu      sync.Mutex
	dir     string
	current *os.File
	writer  *csv.Writer
	curDate string
}

func NewCSV(dir string) (*CSV, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create data dir: %w", err)
	}
	return &CSV{dir: dir}, nil
}

func (d *CSV) Record(_ context.Context, s sensor.Sample) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	t := s.CapturedAt.Local()
	dateStr := t.Format(csvFileLayout)
	if d.curDate != dateStr || d.current == nil {
		if err := d.rollTo(dateStr); err != nil {
			return err
		}
	}

	d.writer.Write([]string{
		s.ID,
		t.Format(csvTimeLayout),
		strconv.FormatFloat(s.ValueC, 'f', 3, 64),
	})
	d.writer.Flush()
	if err := d.writer.Error(); err != nil {
		// csv.Writer errors are sticky; reopen on the next sample
		d.closeLocked()
		return err
	}
	return nil
}

func (d *CSV) rollTo(dateStr string) error {
	d.closeLocked()
	path := filepath.Join(d.dir, dateStr+".csv")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	d.current = f
	d.writer = csv.NewWriter(f)
	d.curDate = dateStr
	if info.Size() == 0 {
		d.writer.Write(csvHeader)
	}
	return nil
}

func (d *CSV) closeLocked() error {
	var err error
	if d.writer != nil {
		d.writer.Flush()
		err = d.writer.Error()
		d.writer = nil
	}
	if d.current != nil {
		if cerr := d.current.Close(); err == nil {
			err = cerr
		}
		d.current = nil
	}
	return err
}

func (d *CSV) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeLocked()
}

func (d *CSV) String() string {
	return "csv:" + d.dir
}
