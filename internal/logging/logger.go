package logging

// Leveled logging for the echo client: every line goes to the session log
// file and Info/Error lines are also surfaced on the console.

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// LogLevel represents the logging level
type LogLevel int

const (
	LogLevelSilent LogLevel = iota
	LogLevelError
	LogLevelInfo
	LogLevelVerbose
	LogLevelDebug
)

// TimeLayout is the timestamp prefix of every text log line.
const TimeLayout = "2006-01-02 15:04:05.000"

// ParseLevel maps a level name to a LogLevel.
func ParseLevel(name string) (LogLevel, error) {
	switch name {
	case "silent":
		return LogLevelSilent, nil
	case "error":
		return LogLevelError, nil
	case "", "info":
		return LogLevelInfo, nil
	case "verbose":
		return LogLevelVerbose, nil
	case "debug":
		return LogLevelDebug, nil
	}
	return LogLevelInfo, fmt.Errorf("unknown log level %q", name)
}

// Logger provides leveled logging to a file and the console
type Logger struct {
	mu     sync.Mutex
	level  LogLevel
	format string
	file   *os.File
	out    io.Writer // file sink, nil when logging to console only
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
}

// NewLogger creates a new text logger
func NewLogger(level LogLevel, logFile string) (*Logger, error) {
	return NewLoggerWithOptions(level, logFile, "text")
}

// NewLoggerWithOptions creates a logger writing "text" or "json" lines.
func NewLoggerWithOptions(level LogLevel, logFile, format string) (*Logger, error) {
	if format == "" {
		format = "text"
	}
	if format != "text" && format != "json" {
		return nil, fmt.Errorf("unknown log format %q", format)
	}

	l := &Logger{
		level:  level,
		format: format,
		stdout: os.Stdout,
		stderr: os.Stderr,
		now:    time.Now,
	}

	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("create log file: %w", err)
		}
		l.file = file
		l.out = file
	}

	return l, nil
}

// SetConsole redirects console output. A nil writer silences that stream.
func (l *Logger) SetConsole(stdout, stderr io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stdout = stdout
	l.stderr = stderr
}

// Close closes the logger and flushes all data
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		l.out = nil
		return err
	}
	return nil
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	if l.GetLevel() >= LogLevelError {
		l.write("ERROR", fmt.Sprintf(format, v...))
	}
}

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) {
	if l.GetLevel() >= LogLevelInfo {
		l.write("INFO", fmt.Sprintf(format, v...))
	}
}

// Verbose logs a verbose message
func (l *Logger) Verbose(format string, v ...interface{}) {
	if l.GetLevel() >= LogLevelVerbose {
		l.write("VERBOSE", fmt.Sprintf(format, v...))
	}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	if l.GetLevel() >= LogLevelDebug {
		l.write("DEBUG", fmt.Sprintf(format, v...))
	}
}

func (l *Logger) write(label, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	line := l.formatLine(label, msg)

	// Unbuffered file writes: a line that was logged survives a kill.
	if l.out != nil {
		_, _ = io.WriteString(l.out, line)
	}

	switch label {
	case "ERROR":
		if l.stderr != nil {
			_, _ = io.WriteString(l.stderr, line)
		}
	case "INFO":
		if l.stdout != nil {
			_, _ = io.WriteString(l.stdout, line)
		}
	default:
		if l.stdout != nil && l.level >= LogLevelVerbose {
			_, _ = io.WriteString(l.stdout, line)
		}
	}
}

func (l *Logger) formatLine(label, msg string) string {
	ts := l.now()
	if l.format == "json" {
		data, err := json.Marshal(struct {
			Time    string `json:"time"`
			Level   string `json:"level"`
			Message string `json:"message"`
		}{
			Time:    ts.Format(time.RFC3339Nano),
			Level:   levelLabel(label),
			Message: msg,
		})
		if err == nil {
			return string(data) + "\n"
		}
	}
	return fmt.Sprintf("%s - %s - %s\n", ts.Format(TimeLayout), label, msg)
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLevel returns the current logging level
func (l *Logger) GetLevel() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// LogStartup logs the session parameters
func (l *Logger) LogStartup(host string, port, size int, interval time.Duration, count int, timeout time.Duration) {
	l.Verbose("  Target: %s:%d", host, port)
	l.Verbose("  Payload size: %d bytes", size)
	l.Verbose("  Interval: %s", interval)
	if count == 0 {
		l.Verbose("  Count: unbounded")
	} else {
		l.Verbose("  Count: %d", count)
	}
	l.Verbose("  Timeout: %s", timeout)
}

// LogHex logs hex data (for debug level)
func (l *Logger) LogHex(label string, data []byte) {
	if l.GetLevel() >= LogLevelDebug {
		hexStr := fmt.Sprintf("%x", data)
		// Format as hex with spaces every 2 bytes
		formatted := make([]byte, 0, len(hexStr)+len(hexStr)/2)
		for i := 0; i < len(hexStr); i += 2 {
			if i > 0 {
				formatted = append(formatted, ' ')
			}
			formatted = append(formatted, hexStr[i:i+2]...)
		}
		l.Debug("%s: %s", label, formatted)
	}
}

func levelLabel(label string) string {
	switch label {
	case "ERROR":
		return "error"
	case "VERBOSE":
		return "verbose"
	case "DEBUG":
		return "debug"
	default:
		return "info"
	}
}
