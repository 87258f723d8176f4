// Package logger provides a process-wide log sink. Nothing is written
// until Init or SetOutput is called, so library consumers that never
// configure logging stay silent.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// Level controls which messages reach the sink.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	mu        sync.Mutex
	sink      *log.Logger
	logFile   *os.File
	threshold = LevelInfo
)

// Init directs log output to the given file, creating it if needed.
func Init(logPath string) error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	logFile = f
	sink = log.New(f, "", log.Ltime|log.Lmicroseconds)
	return nil
}

// SetOutput directs log output to an arbitrary writer. Used by the CLI
// for stderr logging and by tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	sink = log.New(w, "", log.Ltime|log.Lmicroseconds)
}

// ParseLevel maps a level name to its Level, defaulting to info.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// SetLevel sets the minimum level that will be written.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()

	threshold = l
}

// Close closes the log file if Init opened one.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	sink = nil
}

func write(l Level, prefix, format string, v ...interface{}) {
	mu.Lock()
	defer mu.Unlock()

	if sink != nil && l >= threshold {
		sink.Printf(prefix+format, v...)
	}
}

// Debug logs a debug message.
func Debug(format string, v ...interface{}) {
	write(LevelDebug, "[DEBUG] ", format, v...)
}

// Info logs an info message.
func Info(format string, v ...interface{}) {
	write(LevelInfo, "[INFO] ", format, v...)
}

// Warn logs a warning message.
func Warn(format string, v ...interface{}) {
	write(LevelWarn, "[WARN] ", format, v...)
}

// Error logs an error message.
func Error(format string, v ...interface{}) {
	write(LevelError, "[ERROR] ", format, v...)
}

// GetWriter returns the underlying writer for subprocess output.
func GetWriter() io.Writer {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		return logFile
	}
	return io.Discard
}
