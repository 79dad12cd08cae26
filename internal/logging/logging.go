// Package logging provides the process log backend, based around the
// go-logging package, plus a bounded in-memory ring sink that callers can
// snapshot or subscribe to.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/op/go-logging.v1"
)

const format = "%{time:15:04:05.000} %{level:.4s} %{module}: %{message}"

// Backend is a log backend. Records are written to the configured output and
// mirrored into the ring sink.
type Backend struct {
	logging.LeveledBackend

	ring *Ring
	w    io.WriteCloser
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// New constructs a Backend. If file is empty records go to stderr; if disable
// is set the output is discarded but the ring sink still captures records.
func New(file string, level string, disable bool) (*Backend, error) {
	lvl, err := logLevelFromString(level)
	if err != nil {
		return nil, err
	}

	b := &Backend{ring: NewRing(DefaultRingCap)}
	switch {
	case disable:
		b.w = nopCloser{io.Discard}
	case file == "":
		b.w = nopCloser{os.Stderr}
	default:
		f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, fmt.Errorf("logging: failed to open log file: %w", err)
		}
		b.w = f
	}

	base := logging.NewLogBackend(b.w, "", 0)
	formatted := logging.NewBackendFormatter(base, logging.MustStringFormatter(format))
	multi := logging.MultiLogger(formatted, b.ring)
	multi.SetLevel(lvl, "")
	b.LeveledBackend = multi
	return b, nil
}

// GetLogger returns a per-module logger that writes to the backend.
func (b *Backend) GetLogger(module string) *logging.Logger {
	l := logging.MustGetLogger(module)
	l.SetBackend(b.LeveledBackend)
	return l
}

// Ring returns the bounded record sink shared by all loggers of this backend.
func (b *Backend) Ring() *Ring {
	return b.ring
}

// Close closes the underlying log output.
func (b *Backend) Close() error {
	return b.w.Close()
}

func logLevelFromString(level string) (logging.Level, error) {
	if level == "" {
		return logging.NOTICE, nil
	}
	lvl, err := logging.LogLevel(level)
	if err != nil {
		return lvl, errors.New("logging: invalid level: " + level)
	}
	return lvl, nil
}
