package core

import (
	"io"

	"github.com/rs/zerolog"
)

type Log interface {
	Info() *zerolog.Event
	Debug() *zerolog.Event
	Warn() *zerolog.Event
	Error() *zerolog.Event
}

type zlog struct {
	l zerolog.Logger
}

func (z zlog) Info() *zerolog.Event  { return z.l.Info() }
func (z zlog) Debug() *zerolog.Event { return z.l.Debug() }
func (z zlog) Warn() *zerolog.Event  { return z.l.Warn() }
func (z zlog) Error() *zerolog.Event { return z.l.Error() }

// NewLogger wraps a zerolog logger writing to w.
func NewLogger(w io.Writer) Log {
	return zlog{l: zerolog.New(w).With().Timestamp().Logger()}
}

// NopLogger discards everything.
func NopLogger() Log {
	return zlog{l: zerolog.Nop()}
}
