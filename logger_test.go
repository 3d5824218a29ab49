package smithy

import (
	"context"
	"net/http"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observedLogger(level zapcore.Level) (*ZapLogger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return NewZapLogger(zap.New(core)), logs
}

func TestNopLoggerLevels(t *testing.T) {
	logger := NopLogger()

	logger.Debug("debug message")
	logger.Info("info message", "key", "value")
	logger.Warn("warn message")
	logger.Error("error message")
}

func TestZapLoggerFields(t *testing.T) {
	logger, logs := observedLogger(zapcore.DebugLevel)

	logger.Info("Starting attempt", "service", "things", "attempt", 2)

	entries := logs.FilterMessage("Starting attempt").All()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["service"] != "things" {
		t.Errorf("Expected service=things, got %v", fields["service"])
	}
	if fields["attempt"] != int64(2) {
		t.Errorf("Expected attempt=2, got %v", fields["attempt"])
	}
	if err := logger.Sync(); err != nil {
		t.Errorf("Expected Sync to succeed, got %v", err)
	}
}

func TestNewZapLoggerNil(t *testing.T) {
	logger := NewZapLogger(nil)
	logger.Error("dropped")
}

func TestLoggerFromDebugConfig(t *testing.T) {
	tests := []struct {
		name     string
		debug    *DebugConfig
		expected DebugConfig
	}{
		{"absent", nil, DebugConfig{}},
		{"disabled", &DebugConfig{LogHooks: true}, DebugConfig{}},
		{"default", DefaultDebugConfig(), *DefaultDebugConfig()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfigBag()
			if tt.debug != nil {
				StorePut(cfg.InterceptorState(), tt.debug)
			}
			logger, debug := loggerFrom(cfg)
			if _, ok := logger.(nopLogger); !ok {
				t.Errorf("Expected the nop logger without a configured one, got %T", logger)
			}
			if debug != tt.expected {
				t.Errorf("Expected %+v, got %+v", tt.expected, debug)
			}
		})
	}
}

func TestInvocationFailureIsLogged(t *testing.T) {
	logger, logs := observedLogger(zapcore.InfoLevel)
	client := NewClient(
		WithServiceName("things"),
		WithHTTPConnector(newReplayConnector(respond(http.StatusNotFound, ""))),
		WithEndpointURL("http://localhost"),
		WithLogger(logger),
	)

	if _, err := getThing(t, client).Invoke(context.Background(), testInput{Name: "a"}); err == nil {
		t.Fatal("Expected the invocation to fail")
	}

	entries := logs.FilterMessage("Invocation failed").All()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 failure entry, got %d", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Errorf("Expected warn level, got %s", entries[0].Level)
	}
	if got := entries[0].ContextMap()["type"]; got != ErrorTypeService {
		t.Errorf("Expected type=%s, got %v", ErrorTypeService, got)
	}
}

func TestSupersededInterceptorErrorIsLogged(t *testing.T) {
	logger, logs := observedLogger(zapcore.DebugLevel)
	first := HookFunc("first", HookReadBeforeExecution, func(*InterceptorContext, *RuntimeComponents, *ConfigBag) error {
		return errTest("first")
	})
	second := HookFunc("second", HookReadBeforeExecution, func(*InterceptorContext, *RuntimeComponents, *ConfigBag) error {
		return errTest("second")
	})
	op := mustBuild(t, newTestOperation(&captureConnector{}, first, second).
		Config(func(l *Layer) { StorePut[Logger](l, logger) }))

	if _, err := op.Invoke(context.Background(), testInput{Name: "a"}); err == nil {
		t.Fatal("Expected the invocation to fail")
	}
	if n := logs.FilterMessage("Interceptor error superseded by a later error").FilterLevelExact(zapcore.ErrorLevel).Len(); n != 1 {
		t.Errorf("Expected 1 superseded error entry, got %d", n)
	}
}

func TestDebugHookLogging(t *testing.T) {
	logger, logs := observedLogger(zapcore.DebugLevel)
	op := mustBuild(t, newTestOperation(&captureConnector{}, &hookRecorder{}).
		Config(func(l *Layer) {
			StorePut[Logger](l, logger)
			StorePut(l, &DebugConfig{Enabled: true, LogHooks: true, LogAttempts: true})
		}))

	if _, err := op.Invoke(context.Background(), testInput{Name: "a"}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if n := logs.FilterMessage("Running interceptor").FilterField(zap.String("interceptor", "hookRecorder")).Len(); n != len(Hooks()) {
		t.Errorf("Expected %d hook entries for the recorder, got %d", len(Hooks()), n)
	}
	if n := logs.FilterMessage("Starting attempt").Len(); n != 1 {
		t.Errorf("Expected 1 attempt entry, got %d", n)
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
