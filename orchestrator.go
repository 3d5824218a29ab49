package smithy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RequestSerializer turns an operation input into an HTTP request. The
// request URL is completed by the resolved endpoint before signing.
type RequestSerializer interface {
	SerializeInput(input TypeErasedBox, cfg *ConfigBag) (*http.Request, error)
}

// RequestSerializerFunc adapts a function to RequestSerializer.
type RequestSerializerFunc func(input TypeErasedBox, cfg *ConfigBag) (*http.Request, error)

func (f RequestSerializerFunc) SerializeInput(input TypeErasedBox, cfg *ConfigBag) (*http.Request, error) {
	return f(input, cfg)
}

// ResponseDeserializer turns a response with a fully read body into an
// output or a modeled error.
type ResponseDeserializer interface {
	DeserializeNonstreaming(resp *http.Response, body []byte) (TypeErasedBox, error)
}

// StreamingResponseDeserializer is implemented by deserializers that can
// produce output without the body being buffered first. Returning ok=false
// falls back to DeserializeNonstreaming.
type StreamingResponseDeserializer interface {
	DeserializeStreaming(resp *http.Response) (out TypeErasedBox, err error, ok bool)
}

// ResponseDeserializerFunc adapts a function to ResponseDeserializer.
type ResponseDeserializerFunc func(resp *http.Response, body []byte) (TypeErasedBox, error)

func (f ResponseDeserializerFunc) DeserializeNonstreaming(resp *http.Response, body []byte) (TypeErasedBox, error) {
	return f(resp, body)
}

// Metadata names the invoked operation. It is stored in the interceptor
// state for the duration of an invocation.
type Metadata struct {
	Service   string
	Operation string
}

// StopPoint lets an invocation end early.
type StopPoint int

const (
	// StopPointNone runs the invocation to completion.
	StopPointNone StopPoint = iota
	// StopPointBeforeTransmit signs the request and stops without sending it.
	StopPointBeforeTransmit
)

// Invoke runs one operation: it applies plugins, serializes input, and runs
// attempts until the retry strategy stops, returning the output or a
// *ClientError.
func Invoke(ctx context.Context, service, operation string, input TypeErasedBox, plugins *RuntimePlugins) (TypeErasedBox, error) {
	ictx, err := InvokeWithStopPoint(ctx, service, operation, input, plugins, StopPointNone)
	if err != nil {
		return TypeErasedBox{}, err
	}
	out, _, _ := ictx.OutputOrError()
	return out, nil
}

// InvokeWithStopPoint is Invoke with the option to stop before transmit. It
// returns the interceptor context so that the signed request can be read.
func InvokeWithStopPoint(ctx context.Context, service, operation string, input TypeErasedBox, plugins *RuntimePlugins, stop StopPoint) (*InterceptorContext, error) {
	if plugins == nil {
		plugins = NewRuntimePlugins()
	}
	inv := &invocation{
		meta: Metadata{Service: service, Operation: operation},
		cfg:  NewConfigBag(),
		ictx: NewInterceptorContext(input),
		stop: stop,
	}
	StorePut(inv.cfg.InterceptorState(), inv.meta)
	StorePut(inv.cfg.InterceptorState(), TraceParent{Context: ctx})

	err := inv.applyConfiguration(plugins)
	inv.started = inv.now()
	if err != nil {
		return nil, &ClientError{
			Type:      ErrorTypeConstructionFailure,
			Message:   "applying runtime plugins failed",
			Cause:     err,
			Service:   service,
			Operation: operation,
			Timestamp: inv.started,
		}
	}
	inv.logger, inv.debug = loggerFrom(inv.cfg)
	inv.metrics, _ = Load[*MetricsCollector](inv.cfg)
	inv.metrics.RecordInvocationStart(service, operation)

	timeouts := LoadOr(inv.cfg, TimeoutConfig{})
	opCtx, cancel := withTimeout(ctx, inv.rc.Sleeper(), timeouts.OperationTimeout, operationTimeoutScope)
	defer cancel()
	inv.attemptTimeout = timeouts.OperationAttemptTimeout

	inv.execute(opCtx)
	return inv.ictx, inv.finalize()
}

type invocation struct {
	meta    Metadata
	cfg     *ConfigBag
	ictx    *InterceptorContext
	rc      *RuntimeComponents
	stop    StopPoint
	started time.Time

	logger  Logger
	debug   DebugConfig
	metrics *MetricsCollector

	attemptTimeout time.Duration
	attempts       int
	retrying       bool
	stopped        bool
}

// now reads the configured time source, falling back to the wall clock when
// the plugins could not be applied.
func (inv *invocation) now() time.Time {
	if inv.rc != nil {
		return inv.rc.TimeSource().Now()
	}
	return time.Now()
}

func (inv *invocation) applyConfiguration(plugins *RuntimePlugins) error {
	client, err := plugins.ApplyClientConfiguration(inv.cfg)
	if err != nil {
		return fmt.Errorf("client runtime plugin: %w", err)
	}
	merged, err := plugins.ApplyOperationConfiguration(inv.cfg, client)
	if err != nil {
		return fmt.Errorf("operation runtime plugin: %w", err)
	}
	inv.rc, err = merged.Build()
	return err
}

// stepScope decides where a failing step redirects to.
type stepScope int

const (
	operationScope stepScope = iota
	attemptScope
	cleanupScope
)

// step is one instruction of the invocation program. Hook steps run
// interceptors; work steps do the orchestrator's own work.
type step struct {
	hook  Hook
	name  string
	scope stepScope
	run   func(inv *invocation, ctx context.Context) error
}

func hookStep(h Hook, scope stepScope) step {
	return step{hook: h, name: h.String(), scope: scope}
}

func workStep(name string, scope stepScope, run func(*invocation, context.Context) error) step {
	return step{hook: HookNone, name: name, scope: scope, run: run}
}

// program lists every step of an invocation in execution order. Failures
// jump to the hook given by FailureRedirect; work steps jump to the cleanup
// hook of their scope.
var program = []step{
	hookStep(HookReadBeforeExecution, operationScope),
	hookStep(HookModifyBeforeSerialization, operationScope),
	hookStep(HookReadBeforeSerialization, operationScope),
	workStep("serialize", operationScope, (*invocation).serialize),
	hookStep(HookReadAfterSerialization, operationScope),
	hookStep(HookModifyBeforeRetryLoop, operationScope),
	workStep("initial request", operationScope, (*invocation).initialRequest),

	hookStep(HookReadBeforeAttempt, attemptScope),
	workStep("resolve endpoint", attemptScope, (*invocation).resolveEndpoint),
	hookStep(HookModifyBeforeSigning, attemptScope),
	hookStep(HookReadBeforeSigning, attemptScope),
	workStep("sign", attemptScope, (*invocation).sign),
	hookStep(HookReadAfterSigning, attemptScope),
	hookStep(HookModifyBeforeTransmit, attemptScope),
	hookStep(HookReadBeforeTransmit, attemptScope),
	workStep("transmit", attemptScope, (*invocation).transmit),
	hookStep(HookReadAfterTransmit, attemptScope),
	hookStep(HookModifyBeforeDeserialization, attemptScope),
	hookStep(HookReadBeforeDeserialization, attemptScope),
	workStep("deserialize", attemptScope, (*invocation).deserialize),
	hookStep(HookReadAfterDeserialization, attemptScope),
	hookStep(HookModifyBeforeAttemptCompletion, cleanupScope),
	hookStep(HookReadAfterAttempt, cleanupScope),

	workStep("retry decision", cleanupScope, (*invocation).decideRetry),
	hookStep(HookModifyBeforeCompletion, cleanupScope),
	hookStep(HookReadAfterExecution, cleanupScope),
}

var (
	hookIndex    = map[Hook]int{}
	attemptFirst int
	attemptLast  int
	retryIndex   int
)

func init() {
	for i, s := range program {
		if s.hook != HookNone {
			hookIndex[s.hook] = i
		}
		if s.name == "retry decision" {
			retryIndex = i
		}
	}
	attemptFirst = hookIndex[HookReadBeforeAttempt]
	attemptLast = hookIndex[HookReadAfterAttempt]
}

// redirect returns the program index to continue at after s fails.
func (s step) redirect() int {
	var target Hook
	switch {
	case s.hook == HookReadAfterAttempt:
		return retryIndex
	case s.hook != HookNone:
		target = FailureRedirect(s.hook)
	case s.scope == attemptScope:
		target = HookModifyBeforeAttemptCompletion
	default:
		target = HookModifyBeforeCompletion
	}
	if target == HookNone {
		return len(program)
	}
	return hookIndex[target]
}

// execute runs the program. Attempt steps run under the attempt context,
// which is created on entry to the attempt range and cancelled on exit.
func (inv *invocation) execute(opCtx context.Context) {
	var (
		attemptCtx    context.Context
		cancelAttempt context.CancelFunc
	)
	endAttempt := func() {
		if cancelAttempt != nil {
			cancelAttempt()
			attemptCtx, cancelAttempt = nil, nil
		}
	}
	defer endAttempt()

	pc := 0
	for pc < len(program) {
		s := program[pc]
		inAttempt := pc >= attemptFirst && pc <= attemptLast
		if inAttempt && attemptCtx == nil {
			attemptCtx, cancelAttempt = withTimeout(opCtx, inv.rc.Sleeper(), inv.attemptTimeout, attemptTimeoutScope)
			inv.beginAttempt()
		}
		if !inAttempt {
			endAttempt()
		}
		ctx := opCtx
		if inAttempt {
			ctx = attemptCtx
		}

		if s.name == "transmit" && inv.stop == StopPointBeforeTransmit {
			inv.stopped = true
			pc = hookIndex[HookModifyBeforeAttemptCompletion]
			continue
		}

		err := inv.runStep(ctx, s)
		if err != nil {
			inv.ictx.SetError(err)
			if inv.debug.LogHooks || s.hook == HookNone {
				inv.logger.Debug("Step failed", "step", s.name, "phase", inv.ictx.Phase().String(), "error", err.Error())
			}
			pc = s.redirect()
			continue
		}
		if pc == retryIndex && inv.retrying {
			inv.retrying = false
			pc = attemptFirst
			continue
		}
		pc++
	}
}

// runStep runs s unless the context has already timed out. Cleanup steps run
// regardless so interceptors observe the failure. Once a response has arrived
// a timeout only surfaces through a step that fails, so a response received
// in time is never thrown away.
func (inv *invocation) runStep(ctx context.Context, s step) error {
	if s.scope != cleanupScope && inv.ictx.Response() == nil {
		if te := timeoutCause(ctx); te != nil {
			return te
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	var err error
	if s.hook != HookNone {
		err = runHook(s.hook, inv.ictx, inv.rc, inv.cfg)
	} else {
		err = s.run(inv, ctx)
	}
	if err != nil && s.scope != cleanupScope {
		if te := timeoutCause(ctx); te != nil {
			return te
		}
	}
	return err
}

func (inv *invocation) beginAttempt() {
	inv.attempts++
	StorePut(inv.cfg.InterceptorState(), RequestAttempts(inv.attempts))
	StoreOrUnset[Endpoint](inv.cfg.InterceptorState(), nil)
	if inv.debug.LogAttempts {
		inv.logger.Debug("Starting attempt", "service", inv.meta.Service, "operation", inv.meta.Operation, "attempt", inv.attempts)
	}
}

func (inv *invocation) serialize(_ context.Context) error {
	inv.ictx.enter(PhaseSerialization)
	serializer, ok := Load[RequestSerializer](inv.cfg)
	if !ok {
		return errors.New("no request serializer was configured")
	}
	input, _ := inv.ictx.TakeInput()
	req, err := serializer.SerializeInput(input, inv.cfg)
	if err != nil {
		return err
	}
	inv.ictx.SetRequest(req)
	inv.ictx.enter(PhaseBeforeTransmit)
	return nil
}

// initialRequest asks the retry strategy for the first attempt, waits when
// it asks for a delay, and saves the request every attempt starts from.
func (inv *invocation) initialRequest(ctx context.Context) error {
	decision, err := inv.rc.RetryStrategy().ShouldAttemptInitialRequest(inv.rc, inv.cfg)
	if err != nil {
		return err
	}
	if !decision.Yes() {
		return ErrInitialRequestDenied
	}
	if d, ok := decision.Delay(); ok && d > 0 {
		if err := inv.rc.Sleeper().Sleep(ctx, d); err != nil {
			return err
		}
	}
	return inv.ictx.saveCheckpoint()
}

func (inv *invocation) resolveEndpoint(ctx context.Context) error {
	return orchestrateEndpoint(ctx, inv.ictx, inv.rc, inv.cfg)
}

func (inv *invocation) sign(ctx context.Context) error {
	return orchestrateAuth(ctx, inv.ictx, inv.rc, inv.cfg)
}

func (inv *invocation) transmit(ctx context.Context) error {
	inv.ictx.enter(PhaseTransmit)
	req := inv.ictx.Request()
	if req == nil {
		return errors.New("no request to transmit")
	}
	resp, err := inv.rc.HTTPConnector().Call(ctx, req)
	if err != nil {
		return ClassifyConnectorError(err)
	}
	inv.ictx.SetResponse(resp)
	inv.ictx.enter(PhaseBeforeDeserialization)
	return nil
}

func (inv *invocation) deserialize(_ context.Context) error {
	inv.ictx.enter(PhaseDeserialization)
	deserializer, ok := Load[ResponseDeserializer](inv.cfg)
	if !ok {
		return ResponseError(errors.New("no response deserializer was configured"))
	}
	resp := inv.ictx.Response()

	if streaming, ok := deserializer.(StreamingResponseDeserializer); ok {
		if out, err, ok := streaming.DeserializeStreaming(resp); ok {
			return inv.setOutputOrError(out, err)
		}
	}
	body, err := readBody(resp)
	if err != nil {
		return ResponseError(fmt.Errorf("reading response body: %w", err))
	}
	out, err := deserializer.DeserializeNonstreaming(resp, body)
	return inv.setOutputOrError(out, err)
}

// setOutputOrError records what the deserializer produced. A modeled error is
// the attempt's result just like an output, so the attempt carries on to
// read_after_deserialization.
func (inv *invocation) setOutputOrError(out TypeErasedBox, err error) error {
	if err != nil {
		var oe *OrchestratorError
		if !errors.As(err, &oe) {
			err = OperationError(err)
		}
		inv.ictx.SetError(err)
	} else {
		inv.ictx.SetOutput(out)
	}
	inv.ictx.enter(PhaseAfterDeserialization)
	return nil
}

// readBody buffers the body and puts a replayable copy back on resp so the
// raw response stays readable after the invocation.
func readBody(resp *http.Response) ([]byte, error) {
	if resp == nil || resp.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

// decideRetry consults the retry strategy after an attempt. A positive
// decision rewinds the request and sleeps before the program jumps back to
// the first attempt step.
func (inv *invocation) decideRetry(ctx context.Context) error {
	if inv.stopped {
		return nil
	}
	if te := timeoutCause(ctx); te != nil {
		return nil
	}
	if ctx.Err() != nil {
		return nil
	}
	decision, err := inv.rc.RetryStrategy().ShouldAttemptRetry(inv.ictx, inv.rc, inv.cfg)
	if err != nil {
		return err
	}
	if !decision.Yes() {
		return nil
	}
	reason := "retry"
	if r := classifyRetry(inv.rc, inv.ictx); r != nil {
		reason = r.String()
	}
	if d, ok := decision.Delay(); ok && d > 0 {
		if err := inv.rc.Sleeper().Sleep(ctx, d); err != nil {
			if te := timeoutCause(ctx); te != nil {
				return te
			}
			return err
		}
	}
	if !inv.ictx.rewind() {
		return errors.New("the request cannot be retried because it was never checkpointed")
	}
	inv.metrics.RecordRetry(inv.meta.Service, inv.meta.Operation, reason)
	inv.retrying = true
	return nil
}

// finalize converts the context's result into the value returned to the
// caller.
func (inv *invocation) finalize() error {
	duration := inv.now().Sub(inv.started)
	oe := inv.ictx.Err()
	if oe == nil {
		inv.metrics.RecordInvocationEnd(inv.meta.Service, inv.meta.Operation, "", duration)
		return nil
	}

	ce := &ClientError{
		Type:      errorTypeFor(oe),
		Message:   "invocation failed during " + oe.Phase.String(),
		Cause:     oe.Err,
		Raw:       inv.ictx.LastResponse(),
		Service:   inv.meta.Service,
		Operation: inv.meta.Operation,
		Attempt:   inv.attempts,
		Timestamp: inv.started,
		Duration:  duration,
	}
	if ce.Raw != nil {
		ce.StatusCode = ce.Raw.StatusCode
	}
	if rc, ok := Load[RetryConfig](inv.cfg); ok {
		ce.MaxAttempts = rc.MaxAttempts
	}
	if id, ok := Load[InvocationID](inv.cfg); ok {
		ce.InvocationID = string(id)
	}
	inv.metrics.RecordInvocationEnd(inv.meta.Service, inv.meta.Operation, ce.Type, duration)
	inv.logger.Warn("Invocation failed",
		"service", inv.meta.Service,
		"operation", inv.meta.Operation,
		"type", ce.Type,
		"attempts", inv.attempts,
		"error", oe.Error(),
	)
	return ce
}
