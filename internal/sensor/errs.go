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

import "errors"

var (
	// ErrDeviceUnavailable means the sensor device could not be found or
	// read at all. It is never retried.
	ErrDeviceUnavailable = errors.New("sensor: device unavailable")

	// ErrMalformedFrame means the device answered with a ready frame that
	// carries no parsable temperature.
	ErrMalformedFrame = errors.New("sensor: malformed frame")

	// ErrDeviceTimeout means the device kept reporting "not ready" for the
	// whole retry budget.
	ErrDeviceTimeout = errors.New("sensor: device not ready before retry limit")

	// errNotReady drives the retry loop and never leaves this package.
	errNotReady = errors.New("sensor: conversion not ready")
)
