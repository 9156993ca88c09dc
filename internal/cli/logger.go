package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/flowlock/flowlock/internal/logging"
)

const (
	logsDir         = "logs"
	cliLogFileName  = "flowlock.log"
	logMaxSizeMB    = 10
	logMaxBackups   = 5
	logMaxAgeDays   = 30
	logCompress     = true
	flowlockHomeDir = ".flowlock"
)

// zerologConfigOnce ensures zerolog's global field names are set exactly once.
var zerologConfigOnce sync.Once //nolint:gochecknoglobals // one-time configuration

func configureZerologGlobals() {
	zerologConfigOnce.Do(func() {
		zerolog.TimestampFieldName = "ts"
		zerolog.MessageFieldName = "event"
	})
}

// InitLogger configures a zerolog.Logger per the verbosity flags:
// verbose selects debug level, quiet selects warn level, otherwise
// info. Output is a console writer on a TTY without NO_COLOR, JSON to
// stderr otherwise; both are duplicated to a rotating log file under
// ~/.flowlock/logs, filtered through the sensitive-data redaction
// writer. A log-file failure degrades to console-only output rather
// than failing the command.
func InitLogger(verbose, quiet bool) zerolog.Logger {
	configureZerologGlobals()

	level := selectLevel(verbose, quiet)
	hook := logging.NewSensitiveDataHook()
	console := selectOutput()

	var writer io.Writer = console
	if fileWriter, err := createLogFileWriter(); err == nil {
		writer = zerolog.MultiLevelWriter(console, fileWriter)
	}

	return zerolog.New(writer).Level(level).Hook(hook).With().Timestamp().Logger()
}

func selectLevel(verbose, quiet bool) zerolog.Level {
	switch {
	case verbose:
		return zerolog.DebugLevel
	case quiet:
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}

func selectOutput() io.Writer {
	if term.IsTerminal(int(os.Stderr.Fd())) && os.Getenv("NO_COLOR") == "" {
		return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}
	return os.Stderr
}

func createLogFileWriter() (io.Writer, error) {
	home, err := flowlockHome()
	if err != nil {
		return nil, err
	}

	logDir := filepath.Join(home, logsDir)
	if err := os.MkdirAll(logDir, 0o750); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	lj := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, cliLogFileName),
		MaxSize:    logMaxSizeMB,
		MaxBackups: logMaxBackups,
		MaxAge:     logMaxAgeDays,
		Compress:   logCompress,
	}
	return logging.NewFilteringWriter(lj), nil
}

func flowlockHome() (string, error) {
	if home := os.Getenv("FLOWLOCK_HOME"); home != "" {
		return home, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get user home directory: %w", err)
	}
	return filepath.Join(home, flowlockHomeDir), nil
}
