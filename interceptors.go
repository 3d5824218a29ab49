package smithy

import (
	"fmt"
)

// Hook names a point in the request lifecycle where interceptors run.
type Hook int

const (
	HookReadBeforeExecution Hook = iota
	HookModifyBeforeSerialization
	HookReadBeforeSerialization
	HookReadAfterSerialization
	HookModifyBeforeRetryLoop
	HookReadBeforeAttempt
	HookModifyBeforeSigning
	HookReadBeforeSigning
	HookReadAfterSigning
	HookModifyBeforeTransmit
	HookReadBeforeTransmit
	HookReadAfterTransmit
	HookModifyBeforeDeserialization
	HookReadBeforeDeserialization
	HookReadAfterDeserialization
	HookModifyBeforeAttemptCompletion
	HookReadAfterAttempt
	HookModifyBeforeCompletion
	HookReadAfterExecution

	hookCount
)

var hookNames = [hookCount]string{
	"read_before_execution",
	"modify_before_serialization",
	"read_before_serialization",
	"read_after_serialization",
	"modify_before_retry_loop",
	"read_before_attempt",
	"modify_before_signing",
	"read_before_signing",
	"read_after_signing",
	"modify_before_transmit",
	"read_before_transmit",
	"read_after_transmit",
	"modify_before_deserialization",
	"read_before_deserialization",
	"read_after_deserialization",
	"modify_before_attempt_completion",
	"read_after_attempt",
	"modify_before_completion",
	"read_after_execution",
}

func (h Hook) String() string {
	if h < 0 || h >= hookCount {
		return fmt.Sprintf("Hook(%d)", int(h))
	}
	return hookNames[h]
}

// Hooks returns every hook in execution order.
func Hooks() []Hook {
	hooks := make([]Hook, hookCount)
	for i := range hooks {
		hooks[i] = Hook(i)
	}
	return hooks
}

// HookNone is returned by FailureRedirect for the final hook.
const HookNone Hook = -1

// failureRedirect maps each hook to the hook that runs next when it fails.
// Operation-scoped hooks jump to operation cleanup, attempt-scoped hooks jump
// to attempt cleanup, and each cleanup hook falls through to its read
// companion.
var failureRedirect = [hookCount]Hook{
	HookReadBeforeExecution:           HookModifyBeforeCompletion,
	HookModifyBeforeSerialization:     HookModifyBeforeCompletion,
	HookReadBeforeSerialization:       HookModifyBeforeCompletion,
	HookReadAfterSerialization:        HookModifyBeforeCompletion,
	HookModifyBeforeRetryLoop:         HookModifyBeforeCompletion,
	HookReadBeforeAttempt:             HookModifyBeforeAttemptCompletion,
	HookModifyBeforeSigning:           HookModifyBeforeAttemptCompletion,
	HookReadBeforeSigning:             HookModifyBeforeAttemptCompletion,
	HookReadAfterSigning:              HookModifyBeforeAttemptCompletion,
	HookModifyBeforeTransmit:          HookModifyBeforeAttemptCompletion,
	HookReadBeforeTransmit:            HookModifyBeforeAttemptCompletion,
	HookReadAfterTransmit:             HookModifyBeforeAttemptCompletion,
	HookModifyBeforeDeserialization:   HookModifyBeforeAttemptCompletion,
	HookReadBeforeDeserialization:     HookModifyBeforeAttemptCompletion,
	HookReadAfterDeserialization:      HookModifyBeforeAttemptCompletion,
	HookModifyBeforeAttemptCompletion: HookReadAfterAttempt,
	HookReadAfterAttempt:              HookModifyBeforeCompletion,
	HookModifyBeforeCompletion:        HookReadAfterExecution,
	HookReadAfterExecution:            HookNone,
}

// FailureRedirect returns the hook that runs next after h fails. For
// read_after_attempt the retry strategy is consulted first and may start
// another attempt instead.
func FailureRedirect(h Hook) Hook {
	if h < 0 || h >= hookCount {
		return HookNone
	}
	return failureRedirect[h]
}

// IsAttemptHook reports whether h runs once per attempt.
func (h Hook) IsAttemptHook() bool {
	return h >= HookReadBeforeAttempt && h <= HookReadAfterAttempt
}

// Interceptor observes or modifies an invocation at each hook. Returning an
// error fails the invocation according to FailureRedirect; every interceptor
// registered for the hook still runs.
type Interceptor interface {
	Name() string
	Intercept(hook Hook, ictx *InterceptorContext, rc *RuntimeComponents, cfg *ConfigBag) error
}

// HookHandler handles a single hook.
type HookHandler func(ictx *InterceptorContext, rc *RuntimeComponents, cfg *ConfigBag) error

type hookFunc struct {
	name  string
	hooks map[Hook]HookHandler
}

// HookFunc returns an interceptor that runs fn at hook and ignores every other
// hook.
func HookFunc(name string, hook Hook, fn HookHandler) Interceptor {
	return &hookFunc{name: name, hooks: map[Hook]HookHandler{hook: fn}}
}

// HookFuncs returns an interceptor with one handler per listed hook.
func HookFuncs(name string, handlers map[Hook]HookHandler) Interceptor {
	return &hookFunc{name: name, hooks: handlers}
}

func (h *hookFunc) Name() string { return h.name }

func (h *hookFunc) Intercept(hook Hook, ictx *InterceptorContext, rc *RuntimeComponents, cfg *ConfigBag) error {
	fn, ok := h.hooks[hook]
	if !ok {
		return nil
	}
	return fn(ictx, rc, cfg)
}

// disabledInterceptor is stored in the config bag to switch an interceptor off
// for an invocation.
type disabledInterceptor struct {
	name  string
	cause string
}

// DisableInterceptor turns off the named interceptor for invocations that
// load this layer.
func DisableInterceptor(layer *Layer, name, cause string) {
	StoreAppend(layer, disabledInterceptor{name: name, cause: cause})
}

func isDisabled(cfg *ConfigBag, name string) bool {
	for _, d := range LoadAll[disabledInterceptor](cfg) {
		if d.name == name {
			return true
		}
	}
	return false
}

// runHook runs every interceptor registered for hook in registration order.
// When several fail, the last error is returned and earlier ones are logged.
func runHook(hook Hook, ictx *InterceptorContext, rc *RuntimeComponents, cfg *ConfigBag) error {
	logger, debug := loggerFrom(cfg)
	var last error
	for _, interceptor := range rc.Interceptors() {
		name := interceptor.Name()
		if isDisabled(cfg, name) {
			continue
		}
		if debug.LogHooks {
			logger.Debug("Running interceptor", "hook", hook.String(), "interceptor", name)
		}
		err := interceptor.Intercept(hook, ictx, rc, cfg)
		if err == nil {
			continue
		}
		if last != nil {
			logger.Error("Interceptor error superseded by a later error", "hook", hook.String(), "error", last.Error())
		}
		last = &InterceptorError{Hook: hook, Interceptor: name, Err: err}
	}
	return last
}
