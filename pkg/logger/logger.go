// Package logger provides opinionated logging capabilities for verity
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns a human readable console logger. It writes to stderr so
// that stdout stays reserved for answers.
func NewLogger(debug bool) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	return newLogger(zapcore.NewConsoleEncoder(encoderConfig), debug)
}

// NewJSONLogger returns a structured logger for long running servers.
func NewJSONLogger(debug bool) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return newLogger(zapcore.NewJSONEncoder(encoderConfig), debug)
}

func newLogger(encoder zapcore.Encoder, debug bool) *zap.Logger {
	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), level)

	return zap.New(core, zap.AddCaller())
}
