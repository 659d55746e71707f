package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"aerialcapture/internal/config"
)

// Log file names, one per level.
const (
	InfoFile    = "info.log"
	WarningFile = "warning.log"
	ErrorFile   = "error.log"
)

// Logger provides leveled logging (debug/info/warning/error) to rotating files and stdout/stderr.
type Logger struct {
	log    *logrus.Logger
	logDir string
	files  map[logrus.Level]*lumberjack.Logger
	mu     sync.Mutex
}

// NewLogger creates a Logger and ensures the log directory exists.
func NewLogger(cfg *config.Config) (*Logger, error) {
	if err := os.MkdirAll(cfg.LogDirectory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	l := &Logger{
		log:    logrus.New(),
		logDir: cfg.LogDirectory,
	}
	l.setupLoggers(cfg.LogLevel)
	return l, nil
}

// Discard returns a Logger that drops everything. Used by tests and tools.
func Discard() *Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &Logger{log: log}
}

// setupLoggers wires the console output and the per-level file hook.
func (l *Logger) setupLoggers(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.log.SetLevel(lvl)
	l.log.SetFormatter(&formatter.Formatter{
		TimestampFormat: "2006-01-02 15:04:05.000",
		HideKeys:        false,
		NoColors:        true,
	})
	l.log.SetOutput(os.Stdout)

	l.files = map[logrus.Level]*lumberjack.Logger{
		logrus.InfoLevel:  l.openLogFile(InfoFile),
		logrus.WarnLevel:  l.openLogFile(WarningFile),
		logrus.ErrorLevel: l.openLogFile(ErrorFile),
	}
	l.log.AddHook(&levelFileHook{files: l.files})
}

// openLogFile returns a rotating writer for a log file.
func (l *Logger) openLogFile(filename string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Join(l.logDir, filename),
		MaxSize:    50,
		MaxBackups: 3,
		MaxAge:     14,
		LocalTime:  true,
	}
}

// Debug writes a formatted debug-level log entry.
func (l *Logger) Debug(format string, v ...interface{}) {
	l.log.Debugf(format, v...)
}

// Info writes a formatted info-level log entry.
func (l *Logger) Info(format string, v ...interface{}) {
	l.log.Infof(format, v...)
}

// Warning writes a formatted warning-level log entry.
func (l *Logger) Warning(format string, v ...interface{}) {
	l.log.Warnf(format, v...)
}

// Error writes a formatted error-level log entry.
func (l *Logger) Error(format string, v ...interface{}) {
	l.log.Errorf(format, v...)
}

// Dir returns the directory holding the level files.
func (l *Logger) Dir() string {
	return l.logDir
}

// CleanLogs truncates the specified log file.
func (l *Logger) CleanLogs(fileName string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logDir == "" {
		return nil
	}
	for _, f := range l.files {
		if filepath.Base(f.Filename) == fileName {
			// Close so the next write reopens the truncated file.
			f.Close()
		}
	}

	filePath := filepath.Join(l.logDir, fileName)
	if err := os.Truncate(filePath, 0); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to truncate %s: %w", fileName, err)
	}
	l.log.Infof("Log file %s has been cleared", fileName)
	return nil
}

// Close flushes and closes the level files.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var firstErr error
	for _, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// levelFileHook copies each entry into the file of its level. Debug goes to the info file,
// fatal and panic to the error file.
type levelFileHook struct {
	files map[logrus.Level]*lumberjack.Logger
}

func (h *levelFileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *levelFileHook) Fire(entry *logrus.Entry) error {
	level := entry.Level
	switch level {
	case logrus.DebugLevel, logrus.TraceLevel:
		level = logrus.InfoLevel
	case logrus.FatalLevel, logrus.PanicLevel:
		level = logrus.ErrorLevel
	}

	w, ok := h.files[level]
	if !ok {
		return nil
	}
	line, err := entry.Bytes()
	if err != nil {
		return err
	}
	_, err = w.Write(line)
	return err
}
