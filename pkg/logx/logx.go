package logx

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	level = zap.NewAtomicLevelAt(zap.InfoLevel)
	sugar = newLogger().Sugar()
)

func newLogger() *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = level
	cfg.DisableCaller = true
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// SetLevel accepts debug, info, warn or error. Unknown values keep the current level.
func SetLevel(l string) {
	switch strings.ToLower(l) {
	case "debug": level.SetLevel(zap.DebugLevel)
	case "info": level.SetLevel(zap.InfoLevel)
	case "warn": level.SetLevel(zap.WarnLevel)
	case "error": level.SetLevel(zap.ErrorLevel)
	}
}

// Enabled reports whether messages at l would be written.
func Enabled(l string) bool {
	var zl zapcore.Level
	if err := zl.UnmarshalText([]byte(strings.ToLower(l))); err != nil {
		return false
	}
	return level.Enabled(zl)
}

func Debugf(f string, a ...any) { sugar.Debugf(f, a...) }
func Infof(f string, a ...any)  { sugar.Infof(f, a...) }
func Warnf(f string, a ...any)  { sugar.Warnf(f, a...) }
func Errorf(f string, a ...any) { sugar.Errorf(f, a...) }

// Infow logs a message with structured key/value pairs.
func Infow(msg string, kv ...any) { sugar.Infow(msg, kv...) }

func Sync() { _ = sugar.Sync() }
