package smithy

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrorKind is the retry-relevant category of a failed attempt.
type ErrorKind int

const (
	// ErrorKindTransient is a failure that is likely to go away on its own,
	// such as a connection reset or a timeout.
	ErrorKindTransient ErrorKind = iota
	// ErrorKindThrottling means the service asked the client to slow down.
	ErrorKindThrottling
	// ErrorKindServer is a 5xx response the service flagged as retryable.
	ErrorKindServer
	// ErrorKindClient is a modeled error the service flagged as retryable.
	ErrorKindClient
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindTransient:
		return "transient"
	case ErrorKindThrottling:
		return "throttling"
	case ErrorKindServer:
		return "server"
	case ErrorKindClient:
		return "client"
	default:
		return "unknown"
	}
}

// RetryReason explains why an attempt may be retried. Either Kind applies, or
// Explicit is set and the service asked for a specific Delay.
type RetryReason struct {
	Kind     ErrorKind
	Explicit bool
	Delay    time.Duration
}

// RetryForError returns a reason of the given kind.
func RetryForError(kind ErrorKind) *RetryReason {
	return &RetryReason{Kind: kind}
}

// RetryExplicit returns a reason carrying a service-provided delay.
func RetryExplicit(d time.Duration) *RetryReason {
	return &RetryReason{Explicit: true, Delay: d}
}

func (r *RetryReason) String() string {
	if r == nil {
		return "none"
	}
	if r.Explicit {
		return "explicit"
	}
	return r.Kind.String()
}

// ClassifyRetry inspects a failed attempt. A nil reason means the classifier
// has no opinion.
type ClassifyRetry interface {
	Name() string
	ClassifyRetry(ictx *InterceptorContext) *RetryReason
}

// ErrorCoder is implemented by modeled errors that carry a service error code.
type ErrorCoder interface {
	ErrorCode() string
}

// RetryHinter is implemented by modeled errors that know whether they can be
// retried.
type RetryHinter interface {
	RetryableKind() (ErrorKind, bool)
}

// classifyRetry returns the first classification produced by the registered
// classifiers, or nil when the attempt succeeded or nothing matched.
func classifyRetry(rc *RuntimeComponents, ictx *InterceptorContext) *RetryReason {
	if !ictx.IsFailed() {
		return nil
	}
	for _, c := range rc.RetryClassifiers() {
		if reason := c.ClassifyRetry(ictx); reason != nil {
			return reason
		}
	}
	return nil
}

// DefaultRetryableStatusCodes are the statuses HTTPStatusCodeClassifier
// treats as transient by default.
var DefaultRetryableStatusCodes = []int{
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// HTTPStatusCodeClassifier treats configured status codes as transient.
type HTTPStatusCodeClassifier struct {
	codes []int
}

// NewHTTPStatusCodeClassifier returns a classifier for codes, or for
// DefaultRetryableStatusCodes when none are given.
func NewHTTPStatusCodeClassifier(codes ...int) *HTTPStatusCodeClassifier {
	if len(codes) == 0 {
		codes = DefaultRetryableStatusCodes
	}
	return &HTTPStatusCodeClassifier{codes: codes}
}

func (c *HTTPStatusCodeClassifier) Name() string { return "HTTP Status Code" }

func (c *HTTPStatusCodeClassifier) ClassifyRetry(ictx *InterceptorContext) *RetryReason {
	resp := ictx.Response()
	if resp == nil {
		return nil
	}
	for _, code := range c.codes {
		if resp.StatusCode == code {
			return RetryForError(ErrorKindTransient)
		}
	}
	return nil
}

var (
	throttlingErrorCodes = map[string]struct{}{
		"Throttling":                             {},
		"ThrottlingException":                    {},
		"ThrottledException":                     {},
		"RequestThrottledException":              {},
		"TooManyRequestsException":               {},
		"ProvisionedThroughputExceededException": {},
		"TransactionInProgressException":         {},
		"RequestLimitExceeded":                   {},
		"BandwidthLimitExceeded":                 {},
		"LimitExceededException":                 {},
		"RequestThrottled":                       {},
		"SlowDown":                               {},
		"PriorRequestNotComplete":                {},
		"EC2ThrottledException":                  {},
	}
	transientErrorCodes = map[string]struct{}{
		"RequestTimeout":          {},
		"RequestTimeoutException": {},
	}
)

// ModeledErrorClassifier classifies modeled errors by their retry hint or
// their error code.
type ModeledErrorClassifier struct{}

func (ModeledErrorClassifier) Name() string { return "Modeled Error" }

func (ModeledErrorClassifier) ClassifyRetry(ictx *InterceptorContext) *RetryReason {
	oe := ictx.Err()
	if oe == nil || oe.Kind != OrchestratorErrorOperation {
		return nil
	}
	var hinter RetryHinter
	if errors.As(oe.Err, &hinter) {
		if kind, ok := hinter.RetryableKind(); ok {
			return RetryForError(kind)
		}
	}
	var coder ErrorCoder
	if errors.As(oe.Err, &coder) {
		code := coder.ErrorCode()
		if _, ok := throttlingErrorCodes[code]; ok {
			return RetryForError(ErrorKindThrottling)
		}
		if _, ok := transientErrorCodes[code]; ok {
			return RetryForError(ErrorKindTransient)
		}
	}
	return nil
}

// ThrottlingStatusClassifier treats 429 responses as throttling.
type ThrottlingStatusClassifier struct{}

func (ThrottlingStatusClassifier) Name() string { return "Throttling Status" }

func (ThrottlingStatusClassifier) ClassifyRetry(ictx *InterceptorContext) *RetryReason {
	if resp := ictx.Response(); resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		return RetryForError(ErrorKindThrottling)
	}
	return nil
}

// ConnectorErrorClassifier treats transport timeouts, io errors and attempt
// timeouts as transient.
type ConnectorErrorClassifier struct{}

func (ConnectorErrorClassifier) Name() string { return "Connector Error" }

func (ConnectorErrorClassifier) ClassifyRetry(ictx *InterceptorContext) *RetryReason {
	oe := ictx.Err()
	if oe == nil {
		return nil
	}
	var ce *ConnectorError
	if errors.As(oe, &ce) && (ce.IsTimeout() || ce.IsIO()) {
		return RetryForError(ErrorKindTransient)
	}
	var te *TimeoutError
	if errors.As(oe, &te) && te.Scope == attemptTimeoutScope {
		return RetryForError(ErrorKindTransient)
	}
	return nil
}

// RetryAfterClassifier honors a Retry-After header on throttled or
// unavailable responses.
type RetryAfterClassifier struct {
	// Now is used to evaluate HTTP-date values; it defaults to time.Now.
	Now func() time.Time
}

func (RetryAfterClassifier) Name() string { return "Retry-After" }

func (c RetryAfterClassifier) ClassifyRetry(ictx *InterceptorContext) *RetryReason {
	resp := ictx.Response()
	if resp == nil {
		return nil
	}
	if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != http.StatusServiceUnavailable {
		return nil
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	if d := parseRetryAfter(resp.Header.Get("Retry-After"), now()); d > 0 {
		return RetryExplicit(d)
	}
	return nil
}

// parseRetryAfter reads a Retry-After value given as seconds or as an HTTP
// date. Values above one hour are capped.
func parseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if seconds > 0 {
			delay := time.Duration(seconds) * time.Second
			if delay > time.Hour {
				delay = time.Hour
			}
			return delay
		}
		return 0
	}

	if t, err := http.ParseTime(value); err == nil {
		delay := t.Sub(now)
		if delay > 0 && delay <= time.Hour {
			return delay
		}
	}

	return 0
}

// DefaultRetryClassifiers returns the classifiers installed by the standard
// retry configuration, in evaluation order.
func DefaultRetryClassifiers() []ClassifyRetry {
	return []ClassifyRetry{
		RetryAfterClassifier{},
		ModeledErrorClassifier{},
		ThrottlingStatusClassifier{},
		ConnectorErrorClassifier{},
		NewHTTPStatusCodeClassifier(),
	}
}
