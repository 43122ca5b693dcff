package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Logger is the process-wide instance; nil until Init.
	Logger *logrus.Logger
	logMu  sync.Mutex
)

// Config controls log level, destination and rotation.
type Config struct {
	Level      string // debug, info, warn, error
	OutputFile string // optional; empty means stdout only
	MaxSize    int    // megabytes before rotation
	MaxBackups int    // rotated files kept
	MaxAge     int    // days rotated files kept
	Compress   bool
}

// Init sets up the global logger. Output always goes to stdout; when
// OutputFile is set it is duplicated into a rotated file.
func Init(config Config) error {
	logMu.Lock()
	defer logMu.Unlock()

	logger := logrus.New()

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "06-01-02 15:04:05",
	})

	writers := []io.Writer{os.Stdout}
	if config.OutputFile != "" {
		if err := os.MkdirAll(filepath.Dir(config.OutputFile), 0o755); err != nil {
			return err
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   config.OutputFile,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		})
	}
	out := io.MultiWriter(writers...)
	logger.SetOutput(out)

	// Mirror onto the global logrus instance so package-level
	// logrus.WithField callers land in the same file.
	logrus.SetOutput(out)
	logrus.SetLevel(level)

	Logger = logger
	return nil
}

// InitDefault initializes with info level to stdout only.
func InitDefault() error {
	return Init(Config{Level: "info"})
}

func Debugf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Debugf(format, args...)
	}
}

func Infof(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Infof(format, args...)
	}
}

func Warnf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Warnf(format, args...)
	}
}

func Errorf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Errorf(format, args...)
	}
}

// WithField returns an entry with one extra field.
func WithField(key string, value interface{}) *logrus.Entry {
	if Logger != nil {
		return Logger.WithField(key, value)
	}
	return logrus.NewEntry(logrus.New())
}

// WithFields returns an entry with extra fields.
func WithFields(fields logrus.Fields) *logrus.Entry {
	if Logger != nil {
		return Logger.WithFields(fields)
	}
	return logrus.NewEntry(logrus.New())
}
