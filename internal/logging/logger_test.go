package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestLogger(t *testing.T, level LogLevel) (*Logger, string, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.log")
	l, err := NewLogger(level, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var stdout, stderr bytes.Buffer
	l.SetConsole(&stdout, &stderr)
	return l, path, &stdout, &stderr
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	return string(data)
}

func TestNewLogger(t *testing.T) {
	t.Run("no file", func(t *testing.T) {
		l, err := NewLogger(LogLevelInfo, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer l.Close()
		if l.level != LogLevelInfo {
			t.Errorf("level = %d, want %d", l.level, LogLevelInfo)
		}
		if l.file != nil {
			t.Error("file should be nil when no path given")
		}
	})

	t.Run("with file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "test.log")
		l, err := NewLogger(LogLevelDebug, path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer l.Close()
		if l.file == nil {
			t.Error("file should not be nil")
		}
	})

	t.Run("invalid path", func(t *testing.T) {
		_, err := NewLogger(LogLevelInfo, "/nonexistent/dir/test.log")
		if err == nil {
			t.Error("expected error for invalid path")
		}
	})

	t.Run("invalid format", func(t *testing.T) {
		_, err := NewLoggerWithOptions(LogLevelInfo, "", "xml")
		if err == nil {
			t.Error("expected error for unknown format")
		}
	})
}

func TestLoggerLineFormat(t *testing.T) {
	l, path, _, _ := newTestLogger(t, LogLevelInfo)
	l.now = func() time.Time { return time.Date(2024, 3, 1, 12, 30, 45, 123456789, time.Local) }

	l.Info("Connected to %s", "10.0.0.1:7")
	l.Close()

	want := "2024-03-01 12:30:45.123 - INFO - Connected to 10.0.0.1:7\n"
	if got := readLog(t, path); got != want {
		t.Errorf("log line = %q, want %q", got, want)
	}
}

func TestLoggerLevels(t *testing.T) {
	l, path, stdout, stderr := newTestLogger(t, LogLevelInfo)

	l.Error("error msg")
	l.Info("info msg")
	l.Verbose("verbose msg")
	l.Debug("debug msg")
	l.Close()

	content := readLog(t, path)
	if !strings.Contains(content, "ERROR - error msg") {
		t.Error("log should contain error message")
	}
	if !strings.Contains(content, "INFO - info msg") {
		t.Error("log should contain info message")
	}
	if strings.Contains(content, "verbose msg") || strings.Contains(content, "debug msg") {
		t.Error("log should NOT contain verbose/debug messages at Info level")
	}

	if !strings.Contains(stdout.String(), "info msg") {
		t.Error("info should be surfaced on stdout")
	}
	if !strings.Contains(stderr.String(), "error msg") {
		t.Error("error should be surfaced on stderr")
	}
	if strings.Contains(stdout.String(), "error msg") {
		t.Error("error should not be duplicated on stdout")
	}
}

func TestLoggerSilentLevel(t *testing.T) {
	l, path, stdout, stderr := newTestLogger(t, LogLevelSilent)

	l.Error("should not appear")
	l.Info("should not appear")
	l.Close()

	if len(strings.TrimSpace(readLog(t, path))) > 0 {
		t.Error("silent logger should produce no file output")
	}
	if stdout.Len() > 0 || stderr.Len() > 0 {
		t.Error("silent logger should produce no console output")
	}
}

func TestLoggerDebugLevel(t *testing.T) {
	l, path, stdout, _ := newTestLogger(t, LogLevelDebug)

	l.Error("e")
	l.Info("i")
	l.Verbose("v")
	l.Debug("d")
	l.Close()

	content := readLog(t, path)
	for _, want := range []string{"ERROR - e", "INFO - i", "VERBOSE - v", "DEBUG - d"} {
		if !strings.Contains(content, want) {
			t.Errorf("log should contain %q", want)
		}
	}
	if !strings.Contains(stdout.String(), "DEBUG - d") {
		t.Error("debug lines should reach the console at debug level")
	}
}

func TestLoggerAppendsToExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	if err := os.WriteFile(path, []byte("earlier\n"), 0644); err != nil {
		t.Fatal(err)
	}
	l, err := NewLogger(LogLevelInfo, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	l.SetConsole(nil, nil)
	l.Info("later")
	l.Close()

	content := readLog(t, path)
	if !strings.HasPrefix(content, "earlier\n") || !strings.Contains(content, "later") {
		t.Errorf("log should be appended, got %q", content)
	}
}

func TestLoggerJSONFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	l, err := NewLoggerWithOptions(LogLevelError, path, "json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	l.SetConsole(nil, nil)

	l.Error("test message")
	l.Close()

	content := readLog(t, path)
	if !strings.Contains(content, `"level":"error"`) {
		t.Errorf("JSON output should contain level, got: %s", content)
	}
	if !strings.Contains(content, `"message":"test message"`) {
		t.Errorf("JSON output should contain message, got: %s", content)
	}
}

func TestSetGetLevel(t *testing.T) {
	l, _ := NewLogger(LogLevelInfo, "")
	defer l.Close()

	if l.GetLevel() != LogLevelInfo {
		t.Errorf("GetLevel() = %d, want %d", l.GetLevel(), LogLevelInfo)
	}

	l.SetLevel(LogLevelDebug)
	if l.GetLevel() != LogLevelDebug {
		t.Errorf("GetLevel() = %d, want %d", l.GetLevel(), LogLevelDebug)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"":        LogLevelInfo,
		"silent":  LogLevelSilent,
		"error":   LogLevelError,
		"info":    LogLevelInfo,
		"verbose": LogLevelVerbose,
		"debug":   LogLevelDebug,
	}
	for name, want := range tests {
		got, err := ParseLevel(name)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %d, %v; want %d", name, got, err, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("ParseLevel should reject unknown names")
	}
}

func TestLogStartup(t *testing.T) {
	l, path, _, _ := newTestLogger(t, LogLevelVerbose)

	l.LogStartup("10.0.0.50", 7, 64, time.Second, 0, 5*time.Second)
	l.Close()

	content := readLog(t, path)
	for _, want := range []string{"10.0.0.50:7", "64 bytes", "unbounded", "5s"} {
		if !strings.Contains(content, want) {
			t.Errorf("startup log should contain %q", want)
		}
	}
}

func TestLogHex(t *testing.T) {
	l, path, _, _ := newTestLogger(t, LogLevelDebug)

	l.LogHex("packet", []byte{0xDE, 0xAD, 0xBE, 0xEF})
	l.Close()

	if content := readLog(t, path); !strings.Contains(content, "de ad be ef") {
		t.Errorf("should contain hex dump, got: %s", content)
	}
}

func TestLogHex_SkipsAtLowLevel(t *testing.T) {
	l, path, _, _ := newTestLogger(t, LogLevelInfo)

	l.LogHex("packet", []byte{0xDE, 0xAD})
	l.Close()

	if len(strings.TrimSpace(readLog(t, path))) > 0 {
		t.Error("LogHex at Info level should produce no output")
	}
}

func TestClose_NilFile(t *testing.T) {
	l, _ := NewLogger(LogLevelInfo, "")
	if err := l.Close(); err != nil {
		t.Errorf("Close with nil file should not error: %v", err)
	}
}

func TestLevelLabel(t *testing.T) {
	if levelLabel("ERROR") != "error" {
		t.Errorf("levelLabel(ERROR) = %q, want %q", levelLabel("ERROR"), "error")
	}
	if levelLabel("INFO") != "info" {
		t.Errorf("levelLabel(INFO) = %q, want %q", levelLabel("INFO"), "info")
	}
}
