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
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

type Logger struct {
	prefix string
	logger *log.Logger
}

var (
	baseMu       sync.RWMutex
	baseWriter   io.Writer = os.Stdout
	logFile      *rotatingFile
	debugEnabled bool
	debugMu      sync.RWMutex
)

// DefaultMaxBytes is the log size that triggers a rotation when Init is
// given a non-positive limit.
const DefaultMaxBytes int64 = 1 << 20

// Init sets up the base logger writing to stdout and a size-rotated log
// file. Debug output is enabled at startup when the DEBUG env var is set.
// Calling Init again replaces the file.
func Init(logPath string, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return err
	}
	f, err := openRotating(logPath, maxBytes)
	if err != nil {
		return err
	}

	baseMu.Lock()
	if logFile != nil {
		logFile.Close()
	}
	logFile = f
	baseWriter = io.MultiWriter(os.Stdout, f)
	baseMu.Unlock()

	if os.Getenv("DEBUG") != "" {
		EnableDebug(true)
	}
	return nil
}

// Close cleans up the log file (call on shutdown)
func Close() {
	baseMu.Lock()
	defer baseMu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	baseWriter = os.Stdout
}

// EnableDebug dynamically turns debug logging on/off
func EnableDebug(on bool) {
	debugMu.Lock()
	debugEnabled = on
	debugMu.Unlock()
}

// IsDebug returns current debug state
func IsDebug() bool {
	debugMu.RLock()
	defer debugMu.RUnlock()
	return debugEnabled
}

// forward always writes to the current base sink, so loggers created
// before Init (or before a log clear) follow the file.
type forward struct{}

func (forward) Write(p []byte) (int, error) {
	baseMu.RLock()
	w := baseWriter
	baseMu.RUnlock()
	return w.Write(p)
}

// Writer exposes the shared sink, for libraries that want an io.Writer
// (http access logs).
func Writer() io.Writer {
	return forward{}
}

func New(prefix string) *Logger {
	return &Logger{
		prefix: prefix,
		logger: log.New(forward{}, "", log.LstdFlags),
	}
}

func (l *Logger) Info(fmtstr string, v ...any) {
	l.logger.Printf("[%s] INFO: %s", l.prefix, fmt.Sprintf(fmtstr, v...))
}

func (l *Logger) Warn(fmtstr string, v ...any) {
	l.logger.Printf("[%s] WARN: %s", l.prefix, fmt.Sprintf(fmtstr, v...))
}

func (l *Logger) Error(fmtstr string, v ...any) {
	l.withCaller("ERROR", fmt.Sprintf(fmtstr, v...))
}

func (l *Logger) Fatal(fmtstr string, v ...any) {
	formatted := fmt.Sprintf(fmtstr, v...)
	l.withCaller("FATAL", formatted)
	panic(formatted)
}

func (l *Logger) Debug(fmtstr string, v ...any) {
	if !IsDebug() {
		return
	}
	l.logger.Printf("[%s] DEBUG: %s", l.prefix, fmt.Sprintf(fmtstr, v...))
}

func (l *Logger) withCaller(level, msg string) {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		l.logger.Printf("[%s] %s: %s", l.prefix, level, msg)
		return
	}
	l.logger.Printf("[%s] %s: (%s:%d) %s", l.prefix, level, filepath.Base(file), line, msg)
}
