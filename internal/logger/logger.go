package logger

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents a logging level
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// LogFormat represents the output format
type LogFormat string

const (
	FormatJSON LogFormat = "json"
	FormatText LogFormat = "text"
)

// Config represents logger configuration
type Config struct {
	Level      LogLevel  `yaml:"level" json:"level"`
	Format     LogFormat `yaml:"format" json:"format"`
	Output     string    `yaml:"output" json:"output"` // stdout, stderr, file
	Filename   string    `yaml:"filename" json:"filename"`
	MaxSize    int       `yaml:"max_size" json:"max_size"` // MB per file
	MaxAge     int       `yaml:"max_age" json:"max_age"`   // days to keep
	MaxBackups int       `yaml:"max_backups" json:"max_backups"`
	Compress   bool      `yaml:"compress" json:"compress"`
}

// DefaultConfig is the configuration used when none is supplied
var DefaultConfig = Config{
	Level:      LevelInfo,
	Format:     FormatJSON,
	Output:     "stdout",
	MaxSize:    100,
	MaxAge:     30,
	MaxBackups: 10,
	Compress:   true,
}

// Logger is the structured logging interface used across the pipeline
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})

	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger

	SetLevel(level LogLevel)
	GetLevel() LogLevel
}

// StructuredLogger implements Logger on top of logrus
type StructuredLogger struct {
	logger *logrus.Logger
	entry  *logrus.Entry
	config Config
	mu     sync.RWMutex
}

// NewLogger creates a new structured logger
func NewLogger(config Config) Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(string(config.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if config.Format == FormatText {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	}

	switch config.Output {
	case "stderr":
		logger.SetOutput(os.Stderr)
	case "file":
		if config.Filename == "" {
			config.Filename = "logs/pulsehub.log"
		}
		if err := os.MkdirAll(filepath.Dir(config.Filename), 0755); err != nil {
			logger.SetOutput(os.Stdout)
		} else {
			logger.SetOutput(&lumberjack.Logger{
				Filename:   config.Filename,
				MaxSize:    config.MaxSize,
				MaxAge:     config.MaxAge,
				MaxBackups: config.MaxBackups,
				Compress:   config.Compress,
			})
		}
	default:
		logger.SetOutput(os.Stdout)
	}

	return &StructuredLogger{
		logger: logger,
		entry:  logrus.NewEntry(logger),
		config: config,
	}
}

// Debug logs a debug-level message
func (l *StructuredLogger) Debug(msg string, fields ...interface{}) {
	l.logWithFields(logrus.DebugLevel, msg, fields...)
}

// Info logs an info-level message
func (l *StructuredLogger) Info(msg string, fields ...interface{}) {
	l.logWithFields(logrus.InfoLevel, msg, fields...)
}

// Warn logs a warn-level message
func (l *StructuredLogger) Warn(msg string, fields ...interface{}) {
	l.logWithFields(logrus.WarnLevel, msg, fields...)
}

// Error logs an error-level message
func (l *StructuredLogger) Error(msg string, fields ...interface{}) {
	l.logWithFields(logrus.ErrorLevel, msg, fields...)
}

// WithField returns a logger with one extra field attached
func (l *StructuredLogger) WithField(key string, value interface{}) Logger {
	return &StructuredLogger{
		logger: l.logger,
		entry:  l.entry.WithField(key, value),
		config: l.config,
	}
}

// WithFields returns a logger with extra fields attached
func (l *StructuredLogger) WithFields(fields map[string]interface{}) Logger {
	return &StructuredLogger{
		logger: l.logger,
		entry:  l.entry.WithFields(fields),
		config: l.config,
	}
}

// SetLevel changes the logging level
func (l *StructuredLogger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()

	logrusLevel, err := logrus.ParseLevel(string(level))
	if err != nil {
		return
	}
	l.logger.SetLevel(logrusLevel)
	l.config.Level = level
}

// GetLevel returns the current logging level
func (l *StructuredLogger) GetLevel() LogLevel {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config.Level
}

// logWithFields interprets trailing arguments as alternating key/value pairs
func (l *StructuredLogger) logWithFields(level logrus.Level, msg string, fields ...interface{}) {
	entry := l.entry
	if len(fields) > 0 {
		logrusFields := make(logrus.Fields)
		for i := 0; i+1 < len(fields); i += 2 {
			key, ok := fields[i].(string)
			if !ok {
				continue
			}
			logrusFields[key] = fields[i+1]
		}
		entry = entry.WithFields(logrusFields)
	}
	entry.Log(level, msg)
}

// Nop returns a logger that discards everything, for tests
func Nop() Logger {
	logger := logrus.New()
	logger.SetOutput(nopWriter{})
	return &StructuredLogger{
		logger: logger,
		entry:  logrus.NewEntry(logger),
		config: DefaultConfig,
	}
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
