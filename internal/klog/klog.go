// Package klog binds the core's structured logger to a
// platform.ConsoleSink. Biscuit treats the console as just another
// fd (see its dummyfops/fd_stdout); we keep that shape but log
// through zap rather than fmt.Printf so subsystems get levels and
// structured fields.
package klog

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a logger that writes to sink at the given level
// ("debug", "info", "warn", "error"). An unrecognized level defaults
// to info.
func New(sink io.Writer, level string) *zap.Logger {
	lvl := zapcore.InfoLevel
	_ = lvl.UnmarshalText([]byte(level))

	enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	})
	core := zapcore.NewCore(enc, zapcore.AddSync(sink), lvl)
	return zap.New(core)
}

// Nop returns a logger that discards everything, for tests that don't
// care about log output.
func Nop() *zap.Logger { return zap.NewNop() }
