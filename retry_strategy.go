package smithy

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/awslabs/smithy-rs-sub000/internal/backoff"
)

// ShouldAttempt is a retry strategy's decision about the next attempt.
type ShouldAttempt struct {
	yes   bool
	delay time.Duration
	timed bool
}

var (
	// AttemptYes starts the next attempt immediately.
	AttemptYes = ShouldAttempt{yes: true}
	// AttemptNo stops the retry loop.
	AttemptNo = ShouldAttempt{}
)

// AttemptYesAfterDelay starts the next attempt after d.
func AttemptYesAfterDelay(d time.Duration) ShouldAttempt {
	return ShouldAttempt{yes: true, delay: d, timed: true}
}

// Yes reports whether another attempt should be made.
func (s ShouldAttempt) Yes() bool { return s.yes }

// Delay returns the wait before the next attempt, if the decision carries one.
func (s ShouldAttempt) Delay() (time.Duration, bool) { return s.delay, s.timed }

func (s ShouldAttempt) String() string {
	switch {
	case !s.yes:
		return "No"
	case s.timed:
		return fmt.Sprintf("YesAfterDelay(%v)", s.delay)
	default:
		return "Yes"
	}
}

// RetryStrategy decides whether to send the first request and whether to
// retry after each attempt.
type RetryStrategy interface {
	ShouldAttemptInitialRequest(rc *RuntimeComponents, cfg *ConfigBag) (ShouldAttempt, error)
	ShouldAttemptRetry(ictx *InterceptorContext, rc *RuntimeComponents, cfg *ConfigBag) (ShouldAttempt, error)
}

// RequestAttempts is the number of the attempt in progress, starting at 1. The
// orchestrator keeps it in the interceptor state.
type RequestAttempts int

// RetryMode selects the retry behavior.
type RetryMode string

const (
	RetryModeStandard RetryMode = "standard"
	RetryModeAdaptive RetryMode = "adaptive"
)

// RetryConfig configures the standard retry strategy.
type RetryConfig struct {
	Mode           RetryMode
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// DisableJitter makes backoff delays deterministic.
	DisableJitter bool
}

// DefaultRetryConfig returns standard mode with three attempts.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Mode:           RetryModeStandard,
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     20 * time.Second,
	}
}

// Validate reports the first invalid field.
func (c RetryConfig) Validate() error {
	switch {
	case c.Mode != RetryModeStandard && c.Mode != RetryModeAdaptive:
		return fmt.Errorf("retry mode %q is not one of %q or %q", c.Mode, RetryModeStandard, RetryModeAdaptive)
	case c.MaxAttempts < 1:
		return fmt.Errorf("max attempts must be at least 1, got %d", c.MaxAttempts)
	case c.InitialBackoff < 0 || c.MaxBackoff < 0:
		return fmt.Errorf("backoff durations cannot be negative")
	case c.MaxBackoff < c.InitialBackoff:
		return fmt.Errorf("max backoff %v is less than initial backoff %v", c.MaxBackoff, c.InitialBackoff)
	}
	return nil
}

// NeverRetryStrategy sends one attempt and never retries.
type NeverRetryStrategy struct{}

func (NeverRetryStrategy) ShouldAttemptInitialRequest(*RuntimeComponents, *ConfigBag) (ShouldAttempt, error) {
	return AttemptYes, nil
}

func (NeverRetryStrategy) ShouldAttemptRetry(*InterceptorContext, *RuntimeComponents, *ConfigBag) (ShouldAttempt, error) {
	return AttemptNo, nil
}

// FixedDelayRetryStrategy retries classified failures after a constant delay.
type FixedDelayRetryStrategy struct {
	Delay       time.Duration
	MaxAttempts int
}

// NewFixedDelayRetryStrategy returns a strategy with four attempts.
func NewFixedDelayRetryStrategy(delay time.Duration) *FixedDelayRetryStrategy {
	return &FixedDelayRetryStrategy{Delay: delay, MaxAttempts: 4}
}

func (s *FixedDelayRetryStrategy) ShouldAttemptInitialRequest(*RuntimeComponents, *ConfigBag) (ShouldAttempt, error) {
	return AttemptYes, nil
}

func (s *FixedDelayRetryStrategy) ShouldAttemptRetry(ictx *InterceptorContext, rc *RuntimeComponents, cfg *ConfigBag) (ShouldAttempt, error) {
	if !ictx.IsFailed() {
		return AttemptNo, nil
	}
	attempts := LoadOr[RequestAttempts](cfg, 1)
	if int(attempts) >= s.MaxAttempts {
		return AttemptNo, nil
	}
	if classifyRetry(rc, ictx) == nil {
		return AttemptNo, nil
	}
	return AttemptYesAfterDelay(s.Delay), nil
}

const (
	defaultRetryQuotaCapacity = 500
	retryCost                 = 5
	timeoutRetryCost          = 10
	successRefund             = 1
)

// RetryQuota is a token bucket shared by all invocations of a client. Every
// retry spends tokens; successes give them back.
type RetryQuota struct {
	sem      *semaphore.Weighted
	capacity int64

	mu   sync.Mutex
	held int64

	metrics *MetricsCollector
}

// NewRetryQuota returns a quota holding capacity tokens.
func NewRetryQuota(capacity int64) *RetryQuota {
	return &RetryQuota{sem: semaphore.NewWeighted(capacity), capacity: capacity}
}

// TryAcquire takes cost tokens without blocking.
func (q *RetryQuota) TryAcquire(cost int64) bool {
	if !q.sem.TryAcquire(cost) {
		return false
	}
	q.mu.Lock()
	q.held += cost
	available := q.capacity - q.held
	q.mu.Unlock()
	q.metrics.RecordRetryQuota(available)
	return true
}

// Release returns up to n tokens to the quota.
func (q *RetryQuota) Release(n int64) {
	q.mu.Lock()
	if n > q.held {
		n = q.held
	}
	q.held -= n
	available := q.capacity - q.held
	q.mu.Unlock()
	if n > 0 {
		q.sem.Release(n)
	}
	q.metrics.RecordRetryQuota(available)
}

// Available returns the number of tokens left.
func (q *RetryQuota) Available() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.capacity - q.held
}

// retryPermit is the number of quota tokens spent on the retry in progress.
type retryPermit int64

// StandardRetryStrategy retries classified failures with exponential backoff,
// bounded by MaxAttempts and by a shared retry quota. In adaptive mode it also
// drives the client rate limiter found in the config bag.
type StandardRetryStrategy struct {
	config     RetryConfig
	calculator *backoff.Calculator
	quota      *RetryQuota
}

// NewStandardRetryStrategy returns a strategy for config. A nil quota gets a
// private one with the default capacity.
func NewStandardRetryStrategy(config RetryConfig, quota *RetryQuota) *StandardRetryStrategy {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if quota == nil {
		quota = NewRetryQuota(defaultRetryQuotaCapacity)
	}
	return &StandardRetryStrategy{
		config:     config,
		calculator: backoff.FullJitter(),
		quota:      quota,
	}
}

// Config returns the retry configuration.
func (s *StandardRetryStrategy) Config() RetryConfig { return s.config }

// Quota returns the retry quota.
func (s *StandardRetryStrategy) Quota() *RetryQuota { return s.quota }

// ShouldAttemptInitialRequest always sends. In adaptive mode the send waits
// for the client rate limiter to have a token.
func (s *StandardRetryStrategy) ShouldAttemptInitialRequest(rc *RuntimeComponents, cfg *ConfigBag) (ShouldAttempt, error) {
	if limiter, ok := Load[*ClientRateLimiter](cfg); ok && limiter != nil {
		if wait := limiter.ReserveTokens(rc.TimeSource().Now(), 1); wait > 0 {
			return AttemptYesAfterDelay(wait), nil
		}
	}
	return AttemptYes, nil
}

func (s *StandardRetryStrategy) ShouldAttemptRetry(ictx *InterceptorContext, rc *RuntimeComponents, cfg *ConfigBag) (ShouldAttempt, error) {
	logger, debug := loggerFrom(cfg)
	reason := classifyRetry(rc, ictx)
	now := rc.TimeSource().Now()

	limiter, adaptive := Load[*ClientRateLimiter](cfg)
	adaptive = adaptive && limiter != nil
	if adaptive {
		limiter.UpdateRateLimiter(now, isThrottling(ictx, reason))
	}

	if !ictx.IsFailed() {
		if permit, ok := Load[retryPermit](cfg); ok && permit > 0 {
			s.quota.Release(int64(permit))
		} else {
			s.quota.Release(successRefund)
		}
		return AttemptNo, nil
	}
	if reason == nil {
		return AttemptNo, nil
	}

	attempts := int(LoadOr[RequestAttempts](cfg, 1))
	if attempts >= s.config.MaxAttempts {
		if debug.LogRetries {
			logger.Info("Not retrying: max attempts reached", "attempts", attempts, "maxAttempts", s.config.MaxAttempts)
		}
		return AttemptNo, nil
	}

	cost := int64(retryCost)
	if isTimeoutFailure(ictx) {
		cost = timeoutRetryCost
	}
	if !s.quota.TryAcquire(cost) {
		logger.Warn("Not retrying: retry quota exhausted", "attempts", attempts, "available", s.quota.Available())
		return AttemptNo, nil
	}
	StorePut(cfg.InterceptorState(), retryPermit(cost))

	delay := s.backoff(attempts, reason)
	if adaptive {
		if wait := limiter.ReserveTokens(now, 1); wait > delay {
			if debug.LogRetries {
				logger.Info("Client rate limiter delays the retry", "attempt", attempts+1, "wait", wait)
			}
			delay = wait
		}
	}
	if debug.LogRetries {
		logger.Info("Scheduling retry", "attempt", attempts+1, "reason", reason.String(), "backoff", delay)
	}
	return AttemptYesAfterDelay(delay), nil
}

func (s *StandardRetryStrategy) backoff(attempts int, reason *RetryReason) time.Duration {
	if reason.Explicit {
		return reason.Delay
	}
	jitter := 1.0
	if s.config.DisableJitter {
		jitter = 0
	}
	return s.calculator.Calculate(attempts-1, s.config.InitialBackoff, s.config.MaxBackoff, 2.0, jitter)
}

func isThrottling(ictx *InterceptorContext, reason *RetryReason) bool {
	if reason != nil && !reason.Explicit && reason.Kind == ErrorKindThrottling {
		return true
	}
	resp := ictx.Response()
	return ictx.IsFailed() && resp != nil && resp.StatusCode == http.StatusTooManyRequests
}

func isTimeoutFailure(ictx *InterceptorContext) bool {
	oe := ictx.Err()
	if oe == nil {
		return false
	}
	if oe.Kind == OrchestratorErrorTimeout {
		return true
	}
	var ce *ConnectorError
	return errors.As(oe, &ce) && ce.IsTimeout()
}
