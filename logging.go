package smithy

import (
	"go.uber.org/zap"
)

// Logger is the structured logger used by the runtime. Arguments after msg
// are alternating keys and values.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// DebugConfig selects which categories of debug logging are emitted.
type DebugConfig struct {
	Enabled      bool
	LogHooks     bool
	LogAttempts  bool
	LogRetries   bool
	LogIdentity  bool
	LogRateLimit bool
}

// DefaultDebugConfig logs retries and attempts but not individual hooks.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		Enabled:     true,
		LogAttempts: true,
		LogRetries:  true,
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// NopLogger discards everything.
func NopLogger() Logger {
	return nopLogger{}
}

// ZapLogger adapts a zap logger.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger wraps l. A nil logger yields a no-op zap logger.
func NewZapLogger(l *zap.Logger) *ZapLogger {
	if l == nil {
		l = zap.NewNop()
	}
	return &ZapLogger{sugar: l.Sugar()}
}

// NewDevelopmentLogger builds a human-readable zap logger at debug level.
func NewDevelopmentLogger() (*ZapLogger, error) {
	l, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return NewZapLogger(l), nil
}

func (z *ZapLogger) Debug(msg string, keysAndValues ...any) { z.sugar.Debugw(msg, keysAndValues...) }
func (z *ZapLogger) Info(msg string, keysAndValues ...any)  { z.sugar.Infow(msg, keysAndValues...) }
func (z *ZapLogger) Warn(msg string, keysAndValues ...any)  { z.sugar.Warnw(msg, keysAndValues...) }
func (z *ZapLogger) Error(msg string, keysAndValues ...any) { z.sugar.Errorw(msg, keysAndValues...) }

// Sync flushes buffered log entries.
func (z *ZapLogger) Sync() error {
	return z.sugar.Sync()
}

// loggerFrom returns the logger and debug flags stored in the bag. Debug
// categories are all off unless a DebugConfig with Enabled is stored.
func loggerFrom(cfg *ConfigBag) (Logger, DebugConfig) {
	logger := LoadOr[Logger](cfg, nil)
	if logger == nil {
		logger = nopLogger{}
	}
	debug, ok := Load[*DebugConfig](cfg)
	if !ok || debug == nil || !debug.Enabled {
		return logger, DebugConfig{}
	}
	return logger, *debug
}
