// Package logging builds the process logger: zerolog writing JSON lines to a
// log file and a console writer at the same time.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

const permission = 0o664

// Build collects the logger outputs before Make opens them.
type Build struct {
	writers []io.Writer
	path    string
	level   zerolog.Level
	console bool
}

// Log is a built logger and the file it owns.
type Log struct {
	Logger  zerolog.Logger
	LogFile *os.File
}

// New starts a logger build at info level with no outputs.
func New() *Build {
	return &Build{level: zerolog.InfoLevel}
}

// FromPath appends JSON lines to the file at path, creating its directory.
func (b *Build) FromPath(path string) *Build {
	b.path = path
	return b
}

// FromWriter adds w as a JSON output.
func (b *Build) FromWriter(w io.Writer) *Build {
	if w != nil {
		b.writers = append(b.writers, w)
	}
	return b
}

// Console adds a human-readable writer on stdout.
func (b *Build) Console() *Build {
	b.console = true
	return b
}

// Level sets the minimum level.
func (b *Build) Level(l zerolog.Level) *Build {
	b.level = l
	return b
}

// Make opens the outputs and returns the logger. With no output configured
// the logger discards everything.
func (b *Build) Make() (*Log, error) {
	out := &Log{}
	writers := append([]io.Writer(nil), b.writers...)

	if b.path != "" {
		if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(b.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, permission)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out.LogFile = f
		writers = append(writers, zerolog.SyncWriter(f))
	}
	if b.console {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006-01-02 15:04:05"})
	}

	var w io.Writer
	switch len(writers) {
	case 0:
		w = io.Discard
	case 1:
		w = writers[0]
	default:
		w = zerolog.MultiLevelWriter(writers...)
	}

	out.Logger = zerolog.New(w).Level(b.level).With().Timestamp().Logger()
	return out, nil
}

// Close closes the log file, if any.
func (l *Log) Close() error {
	if l == nil || l.LogFile == nil {
		return nil
	}
	return l.LogFile.Close()
}

// ParseLevel maps LOG_LEVEL values, including WARNING and CRITICAL, to a
// zerolog level. Unknown values fall back to info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	case "CRITICAL", "FATAL":
		return zerolog.FatalLevel
	case "TRACE":
		return zerolog.TraceLevel
	}
	return zerolog.InfoLevel
}
