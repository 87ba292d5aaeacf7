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
	"fmt"
	"sync"
	"time"

	"thermoreg/pkg/logger"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
)

// Sample is one validated reading. Ownership passes to whoever records it.
type Sample struct {
	ID         string
	ValueC     float64
	CapturedAt time.Time
}

// Reader turns raw device frames into samples. Concurrent Read calls are
// serialized: only one raw-read-and-retry sequence touches the device at a
// time.
type Reader struct {
	mu         sync.Mutex
	dev        Device
	interval   time.Duration
	maxRetries int
	now        func() time.Time
	log        *logger.Logger
}

func NewReader(dev Device) *Reader {
	return &Reader{
		dev:        dev,
		interval:   200 * time.Millisecond,
		maxRetries: 10,
		now:        time.Now,
		log:        logger.New("Sensor"),
	}
}

// WithRetry sets the not-ready wait and how many extra acquisitions are
// attempted before giving up with ErrDeviceTimeout.
func (r *Reader) WithRetry(interval time.Duration, maxRetries int) *Reader {
	r.interval = interval
	r.maxRetries = maxRetries
	return r
}

// Read acquires one sample. It blocks while the device reports not ready,
// for at most maxRetries waits of the retry interval, or until ctx ends.
func (r *Reader) Read(ctx context.Context) (Sample, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		value    float64
		attempts int
	)
	op := func() error {
		attempts++
		lines, err := r.dev.ReadFrame()
		if err != nil {
			if !errors.Is(err, ErrDeviceUnavailable) {
				err = fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
			}
			return backoff.Permanent(err)
		}
		v, err := ParseFrame(lines)
		if errors.Is(err, errNotReady) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		value = v
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.interval), uint64(r.maxRetries)),
		ctx,
	)
	err := backoff.Retry(op, policy)

	switch {
	case err == nil:
	case errors.Is(err, errNotReady) && attempts > r.maxRetries:
		return Sample{}, fmt.Errorf("%w (%d attempts, %v apart)", ErrDeviceTimeout, attempts, r.interval)
	case errors.Is(err, errNotReady):
		// backoff gives up early when the deadline is closer than the next
		// wait, before ctx itself reports done
		ctxErr := ctx.Err()
		if ctxErr == nil {
			ctxErr = context.DeadlineExceeded
		}
		return Sample{}, fmt.Errorf("sensor read aborted after %d attempts: %w", attempts, ctxErr)
	default:
		r.log.Debug("read failed after %d attempts: %v", attempts, err)
		return Sample{}, err
	}

	if attempts > 1 {
		r.log.Debug("ready after %d attempts", attempts)
	}
	return Sample{
		ID:         uuid.NewString(),
		ValueC:     value,
		CapturedAt: r.now(),
	}, nil
}
