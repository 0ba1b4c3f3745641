// Package log implements the logger used by all the components
// It writes to stdout and to a file in the state directory
package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/eduvpn/eduvpn-core/internal/util"
	"github.com/go-errors/errors"
	"github.com/sirupsen/logrus"
)

// Logger is the global logger
// It logs to stdout only until Init is called
var Logger = New()

// FileLogger is a leveled logger that optionally also writes to a file
type FileLogger struct {
	*logrus.Logger
	file *os.File
}

// Level is the level of logging
type Level int8

const (
	// LevelNotSet means no level set, logging is disabled
	LevelNotSet Level = iota
	// LevelDebug is for messages that are there for debugging
	LevelDebug
	// LevelInfo is for messages that provide additional information
	LevelInfo
	// LevelWarning is to provide a warning, the app still functions
	LevelWarning
	// LevelError is for a generic error, some functionality might not work
	LevelError
	// LevelFatal is for errors where the app cannot function correctly
	LevelFatal
)

func (e Level) String() string {
	switch e {
	case LevelNotSet:
		return "NOTSET"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a level string such as "debug" or "WARNING"
func ParseLevel(s string) (Level, error) {
	if s == "" {
		return LevelInfo, nil
	}
	l, err := logrus.ParseLevel(s)
	if err != nil {
		return LevelNotSet, errors.WrapPrefix(err, fmt.Sprintf("invalid log level: '%s'", s), 0)
	}
	switch l {
	case logrus.TraceLevel, logrus.DebugLevel:
		return LevelDebug, nil
	case logrus.InfoLevel:
		return LevelInfo, nil
	case logrus.WarnLevel:
		return LevelWarning, nil
	case logrus.ErrorLevel:
		return LevelError, nil
	default:
		return LevelFatal, nil
	}
}

func (e Level) logrus() logrus.Level {
	switch e {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelInfo:
		return logrus.InfoLevel
	case LevelWarning:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	default:
		// fatal and not set
		// logrus fatal exits the process so we never log at that level
		return logrus.PanicLevel
	}
}

// New creates a logger that writes info messages to stdout
func New() *FileLogger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		DisableColors: true,
		FullTimestamp: true,
	})
	return &FileLogger{Logger: l}
}

func (logger *FileLogger) filename(directory string) string {
	return filepath.Join(directory, "log")
}

// Init initializes the logger with a level and a directory where the log file is stored
func (logger *FileLogger) Init(level Level, directory string) error {
	if err := util.EnsureDirectory(directory); err != nil {
		return errors.WrapPrefix(err, "failed creating log", 0)
	}
	f, err := os.OpenFile(
		logger.filename(directory),
		os.O_RDWR|os.O_CREATE|os.O_APPEND,
		0o600,
	)
	if err != nil {
		return errors.WrapPrefix(err, "failed creating log", 0)
	}
	logger.Close()
	logger.file = f
	logger.SetOutput(io.MultiWriter(os.Stdout, f))
	logger.SetLevel(level.logrus())
	return nil
}

// Security returns an entry that is marked as security relevant
// Verification failures are logged through this so that they can be told apart from network failures
func (logger *FileLogger) Security() *logrus.Entry {
	return logger.WithField("security", true)
}

// Close closes the log file if one is open
func (logger *FileLogger) Close() {
	if logger.file == nil {
		return
	}
	_ = logger.file.Close()
	logger.file = nil
	logger.SetOutput(os.Stdout)
}
