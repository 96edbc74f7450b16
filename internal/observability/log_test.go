package observability

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"
)

func captureStderr(fn func()) string {
	old := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w

	fn()

	w.Close()
	os.Stderr = old

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String()
}

func TestProgressLogEnabled(t *testing.T) {
	out := captureStderr(func() {
		p := NewProgress(true)
		p.Log("hello %s", "world")
	})

	if !strings.Contains(out, "hello world") {
		t.Errorf("expected 'hello world' in output, got %q", out)
	}
}

func TestProgressLogDisabled(t *testing.T) {
	out := captureStderr(func() {
		p := NewProgress(false)
		p.Log("should not appear")
	})

	if out != "" {
		t.Errorf("quiet mode should produce no output, got %q", out)
	}
}

func TestNewLoggerVerboseEnablesDebug(t *testing.T) {
	logger, err := NewLogger(true)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if !logger.Core().Enabled(-1) { // zapcore.DebugLevel == -1
		t.Error("expected debug level to be enabled when verbose=true")
	}
}

func TestNewLoggerQuietDisablesDebug(t *testing.T) {
	logger, err := NewLogger(false)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if logger.Core().Enabled(-1) {
		t.Error("expected debug level to be disabled when verbose=false")
	}
}
