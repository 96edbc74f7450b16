// Package observability builds the zap loggers every long-lived and
// one-shot command in this repo logs through. The supervisor and the
// heartbeat ticker take a shared *zap.Logger so the claim loop and the
// heartbeat write to one sink; the runner's monitor goroutine does not
// log.
package observability

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process-wide logger for the `start` supervisor.
// verbose lowers the level to debug; otherwise
// only info-and-above is emitted. Output is a human-readable console
// encoding to stderr, matching the teacher's Progress writing
// elapsed-prefixed lines to stderr rather than a machine-parsed format.
func NewLogger(verbose bool) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	cfg.EncoderConfig.TimeKey = "" // the console encoder's own timestamp is redundant with elapsed-prefixed one-shot logs

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("observability: build logger: %w", err)
	}
	return logger, nil
}

// Progress is the elapsed-since-start stderr logger used by the one-shot
// `enroll` command — the same shape as the
// teacher's output.Progress, upgraded to report through Log as well as to
// carry a quiet flag, since those commands have no use for zap's
// structured fields or level filtering.
type Progress struct {
	enabled bool
	start   time.Time
}

// NewProgress returns a Progress reporter. Pass enabled=false to silence
// it entirely (a --quiet flag).
func NewProgress(enabled bool) *Progress {
	return &Progress{enabled: enabled, start: time.Now()}
}

// Log prints one elapsed-prefixed line to stderr if enabled.
func (p *Progress) Log(format string, args ...any) {
	if !p.enabled {
		return
	}
	elapsed := time.Since(p.start).Round(time.Millisecond)
	fmt.Fprintf(os.Stderr, "[%s] %s\n", elapsed, fmt.Sprintf(format, args...))
}
