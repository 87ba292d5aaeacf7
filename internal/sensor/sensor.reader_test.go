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
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedDevice reports "not ready" notReady times, then a ready frame.
type scriptedDevice struct {
	mu       sync.Mutex
	notReady int
	tempC    float64
	err      error
	calls    int

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (d *scriptedDevice) ReadFrame() ([]string, error) {
	n := d.inFlight.Add(1)
	defer d.inFlight.Add(-1)
	for {
		m := d.maxInFlight.Load()
		if n <= m || d.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(time.Millisecond)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	if d.calls <= d.notReady {
		return FormatFrame(d.tempC, false), nil
	}
	return FormatFrame(d.tempC, true), nil
}

func (d *scriptedDevice) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func TestReadReady(t *testing.T) {
	dev := &scriptedDevice{tempC: 21.5}
	s, err := NewReader(dev).Read(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 21.5, s.ValueC, 1e-9)
	assert.NotEmpty(t, s.ID)
	assert.False(t, s.CapturedAt.IsZero())
	assert.Equal(t, 1, dev.Calls())
}

func TestReadRetriesUntilReady(t *testing.T) {
	const interval = 20 * time.Millisecond
	dev := &scriptedDevice{tempC: 19.25, notReady: 3}
	r := NewReader(dev).WithRetry(interval, 5)

	start := time.Now()
	s, err := r.Read(context.Background())
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.InDelta(t, 19.25, s.ValueC, 1e-9)
	assert.Equal(t, 4, dev.Calls())
	assert.GreaterOrEqual(t, elapsed, 3*interval)
	assert.Less(t, elapsed, 3*interval+time.Second)
}

func TestReadRetryBound(t *testing.T) {
	t.Run("exactly_at_bound", func(t *testing.T) {
		dev := &scriptedDevice{tempC: 20, notReady: 2}
		_, err := NewReader(dev).WithRetry(time.Millisecond, 2).Read(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 3, dev.Calls())
	})
	t.Run("never_ready", func(t *testing.T) {
		dev := &scriptedDevice{tempC: 20, notReady: 1 << 30}
		_, err := NewReader(dev).WithRetry(time.Millisecond, 2).Read(context.Background())
		assert.ErrorIs(t, err, ErrDeviceTimeout)
		assert.Equal(t, 3, dev.Calls())
	})
}

func TestReadCanceled(t *testing.T) {
	dev := &scriptedDevice{tempC: 20, notReady: 1 << 30}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := NewReader(dev).WithRetry(10*time.Millisecond, 1000).Read(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrDeviceTimeout)
}

func TestReadDeadlineBeforeRetryBound(t *testing.T) {
	dev := &scriptedDevice{tempC: 20, notReady: 1 << 30}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewReader(dev).WithRetry(20*time.Millisecond, 10).Read(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrDeviceTimeout)
	assert.Less(t, dev.Calls(), 11)
}

func TestReadCanceledByCaller(t *testing.T) {
	dev := &scriptedDevice{tempC: 20, notReady: 1 << 30}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(25*time.Millisecond, cancel)

	_, err := NewReader(dev).WithRetry(10*time.Millisecond, 1000).Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrDeviceTimeout)
}

func TestReadDeviceUnavailable(t *testing.T) {
	dev := &scriptedDevice{err: errors.New("no such file or directory")}
	_, err := NewReader(dev).WithRetry(time.Millisecond, 5).Read(context.Background())
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
	assert.Equal(t, 1, dev.Calls(), "unavailable device must not be retried")
}

func TestReadMalformedNotRetried(t *testing.T) {
	dev := &malformedDevice{}
	_, err := NewReader(dev).WithRetry(time.Millisecond, 5).Read(context.Background())
	assert.ErrorIs(t, err, ErrMalformedFrame)
	assert.Equal(t, 1, dev.calls)
}

type malformedDevice struct{ calls int }

func (d *malformedDevice) ReadFrame() ([]string, error) {
	d.calls++
	return []string{"aa : crc=57 YES", "aa"}, nil
}

func TestReadSerializesConcurrentCallers(t *testing.T) {
	dev := &scriptedDevice{tempC: 20}
	r := NewReader(dev)

	var wg sync.WaitGroup
	for range 16 {
		wg.Go(func() {
			_, err := r.Read(context.Background())
			assert.NoError(t, err)
		})
	}
	wg.Wait()

	assert.Equal(t, 16, dev.Calls())
	assert.EqualValues(t, 1, dev.maxInFlight.Load())
}

func TestW1Device(t *testing.T) {
	base := t.TempDir()
	dev := NewW1Device(base, "28*")

	_, err := dev.ReadFrame()
	require.ErrorIs(t, err, ErrDeviceUnavailable)

	folder := filepath.Join(base, "28-0316a2795aff")
	require.NoError(t, os.Mkdir(folder, 0755))
	_, err = dev.ReadFrame()
	require.ErrorIs(t, err, ErrDeviceUnavailable, "folder without w1_slave")

	require.NoError(t, os.WriteFile(filepath.Join(folder, "w1_slave"), []byte(readyFrame+"\n"), 0644))
	frame, err := dev.ReadFrame()
	require.NoError(t, err)
	require.Len(t, frame, 2)

	s, err := NewReader(dev).Read(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 23.125, s.ValueC, 1e-9)
}
