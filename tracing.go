package smithy

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "github.com/awslabs/smithy-rs-sub000"

// invocationSpan is the span covering one invocation.
type invocationSpan struct {
	span trace.Span
}

// TracingInterceptor opens one span per invocation and adds an event per
// attempt. The span ends in read_after_execution with the final outcome.
type TracingInterceptor struct {
	tracer trace.Tracer
}

// NewTracingInterceptor returns an interceptor using tp. A nil provider
// records nothing.
func NewTracingInterceptor(tp trace.TracerProvider) *TracingInterceptor {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &TracingInterceptor{tracer: tp.Tracer(tracerName)}
}

func (t *TracingInterceptor) Name() string { return "TracingInterceptor" }

func (t *TracingInterceptor) Intercept(hook Hook, ictx *InterceptorContext, _ *RuntimeComponents, cfg *ConfigBag) error {
	switch hook {
	case HookReadBeforeExecution:
		meta, _ := Load[Metadata](cfg)
		parent := LoadOr(cfg, TraceParent{Context: context.Background()})
		_, span := t.tracer.Start(parent.Context, meta.Service+"."+meta.Operation,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("rpc.service", meta.Service),
				attribute.String("rpc.method", meta.Operation),
			),
		)
		StorePut(cfg.InterceptorState(), invocationSpan{span: span})

	case HookReadBeforeAttempt:
		if s, ok := Load[invocationSpan](cfg); ok {
			attempt := LoadOr[RequestAttempts](cfg, 1)
			s.span.AddEvent("attempt", trace.WithAttributes(attribute.Int("attempt", int(attempt))))
		}

	case HookReadAfterTransmit:
		if s, ok := Load[invocationSpan](cfg); ok {
			if resp := ictx.Response(); resp != nil {
				s.span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
			}
		}

	case HookReadAfterExecution:
		s, ok := Load[invocationSpan](cfg)
		if !ok {
			return nil
		}
		if id, ok := Load[InvocationID](cfg); ok {
			s.span.SetAttributes(attribute.String("smithy.invocation_id", string(id)))
		}
		s.span.SetAttributes(attribute.Int("smithy.attempts", int(LoadOr[RequestAttempts](cfg, 0))))
		if oe := ictx.Err(); oe != nil {
			s.span.RecordError(oe)
			s.span.SetStatus(codes.Error, errorTypeFor(oe))
		} else {
			s.span.SetStatus(codes.Ok, "")
		}
		s.span.End()
	}
	return nil
}

// TraceParent carries the caller's context into the config bag so the
// invocation span becomes its child.
type TraceParent struct {
	Context context.Context
}
