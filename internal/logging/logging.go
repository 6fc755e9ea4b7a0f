// Package logging builds the zerolog logger used by the CLI and carries it
// through contexts.
package logging

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ham-dashboard/ham-client/internal/errors"
)

// ParseLevel parses debug, info, warn, error (any case). The empty string
// is info.
func ParseLevel(s string) (zerolog.Level, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil {
		return zerolog.NoLevel, errors.CreateWithCause(errors.CodeInvalidConfig, err).WithPath("log_level")
	}
	return lvl, nil
}

// New returns a console logger writing to w at the given level.
func New(w io.Writer, level string, noColor bool) (zerolog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), err
	}
	out := zerolog.ConsoleWriter{Out: w, NoColor: noColor, TimeFormat: time.TimeOnly}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}

// NewContextWithLogger returns a context carrying logger.
func NewContextWithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return logger.WithContext(ctx)
}

// GetFromContext returns the logger stored in ctx, or a disabled logger.
func GetFromContext(ctx context.Context) zerolog.Logger {
	return *zerolog.Ctx(ctx)
}
