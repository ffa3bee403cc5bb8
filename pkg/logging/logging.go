package logging

import (
	"errors"
	"io"
	"log/slog"
	"os"
)

// Name is the name of the application that the logger is for.
type Name string

// Config is the configuration for a logger.
type Config struct {
	// name is the name of the application.
	name Name

	// w is the writer that the logger writes to.
	w io.Writer
}

// NewConfig creates a new logging configuration.
func NewConfig(name Name) *Config {
	return &Config{
		name: name,
		w:    os.Stdout,
	}
}

// CommonLogger creates the common logger for the application. The logger is
// also set as the slog default so that packages logging through slog directly
// share the same handler.
func CommonLogger(c *Config) (*slog.Logger, error) {
	if c.name == "" {
		return nil, errors.New("logging config has no application name")
	}

	h := slog.NewJSONHandler(c.w, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})

	l := slog.New(h).With(slog.String(KeyAppName, string(c.name)))
	slog.SetDefault(l)
	return l, nil
}
