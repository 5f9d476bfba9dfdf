package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Cfg struct {
	Level string
	JSON  bool
	Debug bool
}

// New builds the process logger. The returned level can be changed at
// runtime, e.g. on config reload.
func New(c Cfg) (*zap.Logger, zap.AtomicLevel) {
	cfg := zap.NewProductionConfig()
	if !c.JSON {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(c.Level, c.Debug))
	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop(), cfg.Level
	}
	return l, cfg.Level
}

// ParseLevel falls back to info on unknown levels. Debug mode always wins.
func ParseLevel(level string, debug bool) zapcore.Level {
	if debug {
		return zapcore.DebugLevel
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel
	}
	return l
}
