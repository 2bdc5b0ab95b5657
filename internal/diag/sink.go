// Package diag carries the fire-and-forget diagnostics used by both
// execution contexts: a bounded local error log for the background path and
// the heartbeat ring kept for support.
package diag

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Sink receives diagnostic reports. Implementations must never block the
// caller on network I/O; the background path reports from a context that may
// have only seconds of runtime left.
type Sink interface {
	Report(ctx context.Context, scope string, err error)
}

// FileSink writes structured reports to a size-bounded rotating local file.
type FileSink struct {
	logger *zap.Logger
}

// NewFileSink builds a sink logging to logDir. Rotation caps make the log
// bounded: nothing here grows without limit during long offline periods.
func NewFileSink(logDir string) (*FileSink, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}
	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(logDir, "stopalarm.log"),
		MaxSize:    5, // MB
		MaxBackups: 3,
		MaxAge:     14, // days
		Compress:   true,
	})
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), w, zap.InfoLevel)
	return &FileSink{logger: zap.New(core)}, nil
}

// Report records a scoped failure. Errors raised while logging are dropped;
// a diagnostics failure must never surface on the background path.
func (s *FileSink) Report(_ context.Context, scope string, err error) {
	if s == nil || s.logger == nil || err == nil {
		return
	}
	s.logger.Error("background failure", zap.String("scope", scope), zap.Error(err))
}

// Close flushes buffered log entries.
func (s *FileSink) Close() error {
	if s == nil || s.logger == nil {
		return nil
	}
	return s.logger.Sync()
}

// NopSink discards every report.
type NopSink struct{}

// Report implements Sink.
func (NopSink) Report(context.Context, string, error) {}
