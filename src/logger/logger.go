package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// -----------------------------------------------------------------------------

// Options configures the shared logrus backend.
type Options struct {
	Level      string // DEBUG, INFO, WARNING, ERROR
	OutputFile string // optional; empty means console only
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var (
	base   = newBase()
	baseMu sync.RWMutex
)

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	return l
}

// -----------------------------------------------------------------------------

// Init configures level and outputs for every Logger created before or after
// the call.
func Init(opts Options) error {
	baseMu.Lock()
	defer baseMu.Unlock()

	base.SetLevel(ParseLevel(opts.Level))

	writers := []io.Writer{os.Stdout}
	if opts.OutputFile != "" {
		if err := os.MkdirAll(filepath.Dir(opts.OutputFile), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		maxSize := opts.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 50
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.OutputFile,
			MaxSize:    maxSize,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		})
	}
	base.SetOutput(io.MultiWriter(writers...))
	return nil
}

// -----------------------------------------------------------------------------

// SetOutput redirects all loggers, mainly for tests.
func SetOutput(w io.Writer) {
	baseMu.Lock()
	defer baseMu.Unlock()
	base.SetOutput(w)
}

// -----------------------------------------------------------------------------

// ParseLevel accepts the CLI spelling (WARNING) as well as logrus names.
func ParseLevel(level string) logrus.Level {
	lvl := strings.ToLower(strings.TrimSpace(level))
	if lvl == "warning" {
		lvl = "warn"
	}
	parsed, err := logrus.ParseLevel(lvl)
	if err != nil {
		return logrus.InfoLevel
	}
	return parsed
}

// -----------------------------------------------------------------------------

// Logger provides component-scoped logging functionality
type Logger struct {
	name  string
	entry *logrus.Entry
}

// -----------------------------------------------------------------------------

// NewLogger creates a new Logger instance
func NewLogger(name string) *Logger {
	return &Logger{
		name:  name,
		entry: logrus.NewEntry(base).WithField("component", name),
	}
}

// -----------------------------------------------------------------------------

// Name returns the component name.
func (l *Logger) Name() string {
	return l.name
}

// -----------------------------------------------------------------------------

// With returns a child logger carrying an extra field.
func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{name: l.name, entry: l.entry.WithField(key, value)}
}

// -----------------------------------------------------------------------------

// Debug logs diagnostic messages
func (l *Logger) Debug(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

// -----------------------------------------------------------------------------

// Warning logs recoverable problems
func (l *Logger) Warning(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

// -----------------------------------------------------------------------------

// Info logs informational messages
func (l *Logger) Info(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

// -----------------------------------------------------------------------------

// Error logs error messages
func (l *Logger) Error(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

// -----------------------------------------------------------------------------

// Critical logs critical errors and exits the application
func (l *Logger) Critical(format string, args ...interface{}) {
	l.entry.Fatalf(format, args...)
}
