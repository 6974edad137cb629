// Package logger wraps logrus with the level/format configuration
// conventions used across the service; output always goes to stdout.
package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is a thin wrapper around logrus.Logger so call sites depend on a
// local type rather than the third-party package directly.
type Logger struct {
	*logrus.Logger
}

// Config controls level and format. The output destination is not
// configurable: New always writes to os.Stdout.
type Config struct {
	Level  string `env:"LOG_LEVEL"`
	Format string `env:"LOG_FORMAT"`
}

// New builds a Logger from Config, defaulting to info/text.
func New(cfg Config) *Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	l.SetOutput(os.Stdout)
	return &Logger{Logger: l}
}

// NewDefault returns an info-level text logger. The component argument is
// not applied to its entries; Component tags entries with a component field.
func NewDefault(component string) *Logger {
	l := New(Config{Level: "info", Format: "text"})
	return &Logger{Logger: l.Logger}
}

// Component returns a logrus.Entry pre-tagged with a component field.
func (l *Logger) Component(name string) *logrus.Entry {
	return l.WithField("component", name)
}
