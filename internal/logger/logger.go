// Package logger provides a lightweight, centralized logging facility
// with configurable verbosity levels.
//
// Design goals:
//   - Simple API (Errorf, Warnf, Infof, Debugf, Tracef)
//   - Centralized verbosity control
//   - Zero formatting logic at call sites
//
// Output goes through a single logrus logger writing to stderr, so the
// format (text or json) can be switched without touching call sites.
//
// Verbosity levels (in increasing order):
//
//	Error < Info < Debug < Trace
//
// Example usage:
//
//	logger.SetVerbosity(2) // Debug
//	logger.Infof("computing %d quotes", n)
//	logger.Debugf("spot=%f rate=%f", spot, rate)
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Level represents a logging verbosity level.
// Higher values mean more verbose logging.
type Level int

const (
	Error Level = iota // Error logs only critical failures.
	Info               // Info logs high-level application progress.
	Debug              // Debug logs detailed diagnostic information.
	Trace              // Trace logs very fine-grained execution details.
)

var base = newBase()

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetVerbosity sets the global logging verbosity.
// Typically called once during application startup
// (e.g. after parsing CLI flags). Out of range values are clamped.
func SetVerbosity(v int) {
	switch Level(v) {
	case Error:
		// warnings are kept at the quietest setting
		base.SetLevel(logrus.WarnLevel)
	case Info:
		base.SetLevel(logrus.InfoLevel)
	case Debug:
		base.SetLevel(logrus.DebugLevel)
	default:
		if v < 0 {
			base.SetLevel(logrus.WarnLevel)
			return
		}
		base.SetLevel(logrus.TraceLevel)
	}
}

// Init configures level and output format from configuration values.
// level is one of trace, debug, info, warn, error; format is text or json.
func Init(level, format string) {
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base.SetLevel(lvl)

	if strings.ToLower(format) == "json" {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// SetOutput redirects log output, mostly useful in tests.
func SetOutput(w io.Writer) {
	base.SetOutput(w)
}

// WithField returns an entry carrying a structured field.
func WithField(key string, value any) *logrus.Entry {
	return base.WithField(key, value)
}

// Errorf logs an error-level message.
// Use this for failures that require attention.
func Errorf(format string, args ...any) {
	base.Errorf(format, args...)
}

// Warnf logs a recoverable problem.
func Warnf(format string, args ...any) {
	base.Warnf(format, args...)
}

// Infof logs an informational message.
// Use this for major lifecycle events.
func Infof(format string, args ...any) {
	base.Infof(format, args...)
}

// Debugf logs debugging information.
func Debugf(format string, args ...any) {
	base.Debugf(format, args...)
}

// Tracef logs very detailed execution traces.
// Use this sparingly due to high volume.
func Tracef(format string, args ...any) {
	base.Tracef(format, args...)
}
