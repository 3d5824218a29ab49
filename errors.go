package smithy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error types carried by ClientError.
const (
	ErrorTypeConstructionFailure = "ConstructionFailure"
	ErrorTypeDispatchFailure     = "DispatchFailure"
	ErrorTypeResponse            = "ResponseError"
	ErrorTypeService             = "ServiceError"
)

// Sentinel errors
var (
	// ErrOutOfTokens is returned when the client rate limiter cannot grant a send.
	ErrOutOfTokens = errors.New("smithy: the client rate limiter is out of tokens")

	// ErrRetryQuotaExhausted is returned when the retry quota has no tokens for another retry.
	ErrRetryQuotaExhausted = errors.New("smithy: retry quota exhausted")

	// ErrNoMatchingAuthScheme is returned when no auth option has both a scheme and an identity resolver.
	ErrNoMatchingAuthScheme = errors.New("smithy: no auth scheme matched the resolved auth options")

	// ErrIdentityResolverTimedOut is returned when an identity load exceeds its timeout.
	ErrIdentityResolverTimedOut = errors.New("smithy: identity resolver timed out")

	// ErrInitialRequestDenied is returned when the retry strategy refuses the first attempt.
	ErrInitialRequestDenied = errors.New("smithy: retry strategy disallowed the initial request")
)

// ClientError is the error returned to callers of Invoke. It always carries the
// last raw HTTP response when one was received.
type ClientError struct {
	Type         string
	Message      string
	Cause        error
	Raw          *http.Response
	StatusCode   int
	Service      string
	Operation    string
	InvocationID string
	Attempt      int
	MaxAttempts  int
	Timestamp    time.Time
	Duration     time.Duration
}

// Error implements error interface.
func (e *ClientError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.Operation != "" {
		msg = fmt.Sprintf("[%s.%s] %s", e.Service, e.Operation, msg)
	}
	if e.Attempt > 0 && e.MaxAttempts > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempt, e.MaxAttempts)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ClientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types for errors.Is.
func (e *ClientError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*ClientError); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// IsServiceError reports whether the deserializer produced a modeled error.
func (e *ClientError) IsServiceError() bool {
	return e != nil && e.Type == ErrorTypeService
}

// ServiceErr returns the modeled error when the failure is a service error.
func (e *ClientError) ServiceErr() error {
	if !e.IsServiceError() {
		return nil
	}
	return e.Cause
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *ClientError) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Error Type: %s\n", e.Type)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	if e.Service != "" {
		info += fmt.Sprintf("Service: %s\n", e.Service)
	}
	if e.Operation != "" {
		info += fmt.Sprintf("Operation: %s\n", e.Operation)
	}
	if e.InvocationID != "" {
		info += fmt.Sprintf("Invocation ID: %s\n", e.InvocationID)
	}
	if e.StatusCode > 0 {
		info += fmt.Sprintf("Status Code: %d\n", e.StatusCode)
	}
	if e.Attempt > 0 {
		info += fmt.Sprintf("Attempt: %d/%d\n", e.Attempt, e.MaxAttempts)
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Duration > 0 {
		info += fmt.Sprintf("Duration: %v\n", e.Duration)
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}

// ConnectorErrorKind classifies transport failures.
type ConnectorErrorKind int

const (
	ConnectorErrorOther ConnectorErrorKind = iota
	ConnectorErrorTimeout
	ConnectorErrorIO
	ConnectorErrorUser
)

func (k ConnectorErrorKind) String() string {
	switch k {
	case ConnectorErrorTimeout:
		return "timeout"
	case ConnectorErrorIO:
		return "io"
	case ConnectorErrorUser:
		return "user"
	default:
		return "other"
	}
}

// ConnectorError is returned by HTTP connectors.
type ConnectorError struct {
	Kind ConnectorErrorKind
	Err  error
}

func (e *ConnectorError) Error() string {
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *ConnectorError) Unwrap() error { return e.Err }

// IsTimeout reports whether the transport timed out.
func (e *ConnectorError) IsTimeout() bool { return e.Kind == ConnectorErrorTimeout }

// IsIO reports whether the transport failed with an io error.
func (e *ConnectorError) IsIO() bool { return e.Kind == ConnectorErrorIO }

// InterceptorError is an error raised by an interceptor hook.
type InterceptorError struct {
	Hook        Hook
	Interceptor string
	Err         error
}

func (e *InterceptorError) Error() string {
	if e.Interceptor == "" {
		return fmt.Sprintf("%s interceptor error: %v", e.Hook, e.Err)
	}
	return fmt.Sprintf("%s interceptor error in %s: %v", e.Hook, e.Interceptor, e.Err)
}

func (e *InterceptorError) Unwrap() error { return e.Err }

// TimeoutError reports that an operation or attempt ran past its configured
// timeout.
type TimeoutError struct {
	Scope   string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timeout occurred after %v", e.Scope, e.Timeout)
}

// TimedOutError reports an identity load that exceeded its timeout.
type TimedOutError struct {
	Timeout time.Duration
}

func (e *TimedOutError) Error() string {
	return fmt.Sprintf("identity resolver timed out after %v", e.Timeout)
}

func (e *TimedOutError) Unwrap() error { return ErrIdentityResolverTimedOut }

// OrchestratorErrorKind describes where an orchestrator error came from.
type OrchestratorErrorKind int

const (
	OrchestratorErrorOther OrchestratorErrorKind = iota
	OrchestratorErrorInterceptor
	OrchestratorErrorOperation
	OrchestratorErrorTimeout
	OrchestratorErrorConnector
	OrchestratorErrorResponse
)

// OrchestratorError is the error stored in the interceptor context while an
// invocation runs. It is converted to a ClientError when the invocation ends.
type OrchestratorError struct {
	Kind  OrchestratorErrorKind
	Phase Phase
	Err   error
}

func (e *OrchestratorError) Error() string {
	return e.Err.Error()
}

func (e *OrchestratorError) Unwrap() error { return e.Err }

// OperationError wraps a modeled error returned by a deserializer.
func OperationError(err error) *OrchestratorError {
	return &OrchestratorError{Kind: OrchestratorErrorOperation, Err: err}
}

// ResponseError wraps a failure to handle a received response.
func ResponseError(err error) *OrchestratorError {
	return &OrchestratorError{Kind: OrchestratorErrorResponse, Err: err}
}

func asOrchestratorError(err error, phase Phase) *OrchestratorError {
	var oe *OrchestratorError
	if errors.As(err, &oe) {
		if oe.Phase == PhaseUnset {
			oe.Phase = phase
		}
		return oe
	}
	kind := OrchestratorErrorOther
	var (
		ie *InterceptorError
		ce *ConnectorError
	)
	switch {
	case errors.As(err, &ie):
		kind = OrchestratorErrorInterceptor
	case errors.As(err, &ce):
		kind = OrchestratorErrorConnector
	case errors.As(err, new(*TimeoutError)), errors.Is(err, context.DeadlineExceeded):
		kind = OrchestratorErrorTimeout
	}
	return &OrchestratorError{Kind: kind, Phase: phase, Err: err}
}

// errorTypeFor maps an orchestrator error onto the caller-facing error type.
func errorTypeFor(oe *OrchestratorError) string {
	switch oe.Kind {
	case OrchestratorErrorOperation:
		return ErrorTypeService
	case OrchestratorErrorConnector:
		return ErrorTypeDispatchFailure
	case OrchestratorErrorTimeout:
		if oe.Phase <= PhaseSerialization {
			return ErrorTypeConstructionFailure
		}
		return ErrorTypeDispatchFailure
	case OrchestratorErrorResponse:
		return ErrorTypeResponse
	}
	var authErr *AuthError
	if errors.As(oe.Err, &authErr) {
		return ErrorTypeConstructionFailure
	}
	switch {
	case oe.Phase <= PhaseSerialization:
		return ErrorTypeConstructionFailure
	case oe.Phase <= PhaseTransmit:
		return ErrorTypeDispatchFailure
	default:
		return ErrorTypeResponse
	}
}

// IsTransient determines if an error represents a transient failure that might
// succeed on retry: connector timeouts and io errors, 5xx responses and
// throttling.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrOutOfTokens) {
		return true
	}
	var ce *ConnectorError
	if errors.As(err, &ce) {
		return ce.IsTimeout() || ce.IsIO()
	}
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		switch clientErr.Type {
		case ErrorTypeResponse, ErrorTypeService:
			return clientErr.StatusCode >= 500 || clientErr.StatusCode == http.StatusTooManyRequests
		}
	}
	return false
}
