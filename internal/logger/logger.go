package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Log *zap.Logger

// Init builds the global logger. Encoding is "json" for production or
// "console" for local runs; unknown levels fall back to info.
func Init(level, encoding string) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	if encoding != "console" {
		encoding = "json"
	}

	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder

	cfg := zap.Config{
		Encoding:         encoding,
		Level:            zap.NewAtomicLevelAt(lvl),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig:    enc,
	}

	l, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	Log = l
}

// L returns the global logger, falling back to a no-op logger so code
// paths used in tests do not need Init.
func L() *zap.Logger {
	if Log == nil {
		return zap.NewNop()
	}
	return Log
}
