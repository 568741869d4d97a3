// Package logging configures the zerolog logger shared by the process.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/rs/zerolog"
)

// Options selects the log sinks.
type Options struct {
	Level string
	// FilePath enables logging to a file when non-empty.
	FilePath string
	// GraylogAddress enables GELF forwarding when non-empty.
	GraylogAddress string
	// Console disables the stderr console writer when false.
	Console bool
}

// LogFilePath builds a session log file path under logsDir.
func LogFilePath(logsDir string, sessionStart time.Time) string {
	return filepath.Join(logsDir, fmt.Sprintf("spaceship.%s.log", sessionStart.Format("20060102_150405")))
}

// Setup builds the root logger from the given options. The returned closer
// releases the file handle, if any.
func Setup(opts Options) (zerolog.Logger, func() error, error) {
	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var writers []io.Writer
	closer := func() error { return nil }

	if opts.Console {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	if opts.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0o755); err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("creating log dir: %w", err)
		}
		file, err := os.OpenFile(opts.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("opening log file: %w", err)
		}
		writers = append(writers, file)
		closer = file.Close
	}

	if opts.GraylogAddress != "" {
		gelfWriter, err := gelf.NewWriter(opts.GraylogAddress)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("connecting to graylog: %w", err)
		}
		writers = append(writers, gelfWriter)
	}

	if len(writers) == 0 {
		return zerolog.Nop().Level(level), closer, nil
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().Timestamp().Logger()
	return logger, closer, nil
}
