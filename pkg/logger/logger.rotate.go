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

package logger

import (
	"os"
	"sync"
)

// rotatingFile keeps one backup (<name>.1) and starts a fresh file once the
// current one grows past maxBytes.
type rotatingFile struct {
	mu       sync.Mutex
	name     string
	maxBytes int64
	size     int64
	f        *os.File
}

func openRotating(name string, maxBytes int64) (*rotatingFile, error) {
	r := &rotatingFile{name: name, maxBytes: maxBytes}
	if err := r.open(os.O_CREATE | os.O_WRONLY | os.O_APPEND); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *rotatingFile) open(flags int) error {
	f, err := os.OpenFile(r.name, flags, 0644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	r.f = f
	r.size = info.Size()
	return nil
}

func (r *rotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return 0, os.ErrClosed
	}
	if r.size > 0 && r.size+int64(len(p)) > r.maxBytes {
		if err := r.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := r.f.Write(p)
	r.size += int64(n)
	return n, err
}

func (r *rotatingFile) rotate() error {
	r.f.Close()
	if err := os.Rename(r.name, r.name+".1"); err != nil && !os.IsNotExist(err) {
		return err
	}
	return r.open(os.O_CREATE | os.O_WRONLY | os.O_TRUNC)
}

// truncate empties the current file in place; the backup is left alone.
func (r *rotatingFile) truncate() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f != nil {
		r.f.Close()
	}
	return r.open(os.O_CREATE | os.O_WRONLY | os.O_TRUNC)
}

func (r *rotatingFile) Name() string {
	return r.name
}

func (r *rotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}
