package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

var (
	log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime}).
		Level(zerolog.InfoLevel).With().Timestamp().Logger()

	DebugEnabled = false

	console io.Writer = os.Stderr
	logFile *os.File
)

// InitLogging sets up logging based on configuration. Console output goes to
// stderr; when logPath is set every record is also appended to it as JSON.
func InitLogging(debugMode bool, logPath string) error {
	DebugEnabled = debugMode
	console = os.Stderr

	if logPath != "" {
		logDir := filepath.Dir(logPath)
		err := os.MkdirAll(logDir, 0o755)
		if err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}

		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}

		logFile = f
	}

	rebuild()

	return nil
}

// SetConsole sends human readable records to w. The log file, if any, keeps
// receiving JSON. Loggers already returned by With keep their old output.
func SetConsole(w io.Writer) {
	console = w
	rebuild()
}

func rebuild() {
	level := zerolog.InfoLevel
	if DebugEnabled {
		level = zerolog.DebugLevel
	}

	var out io.Writer = zerolog.ConsoleWriter{Out: console, TimeFormat: time.DateTime}
	if logFile != nil {
		out = zerolog.MultiLevelWriter(out, logFile)
	}

	log = zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// Close closes the log file if open.
func Close() {
	if logFile != nil {
		logFile.Close()
		logFile = nil
		rebuild()
	}
}

// With returns a child logger tagged with a component name.
func With(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

func Infof(format string, v ...interface{}) {
	log.Info().Msgf(format, v...)
}

// Errorf logs an error message.
func Errorf(format string, v ...interface{}) {
	log.Error().Msgf(format, v...)
}

func Debugf(format string, v ...interface{}) {
	log.Debug().Msgf(format, v...)
}

func Warnf(format string, v ...interface{}) {
	log.Warn().Msgf(format, v...)
}
