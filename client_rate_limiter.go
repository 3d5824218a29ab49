package smithy

import (
	"math"
	"sync"
	"time"
)

const (
	minFillRate   = 0.5
	minCapacity   = 1.0
	smooth        = 0.8
	beta          = 0.7
	scaleConstant = 0.4
)

// ClientRateLimiter is an adaptive token bucket. It stays out of the way until
// the first throttling response, then limits the sending rate with a cubic
// curve: a multiplicative decrease on every throttle and a cubic recovery
// while requests succeed.
//
// One limiter is owned by a Client and shared by its invocations.
type ClientRateLimiter struct {
	mu sync.Mutex

	tokenRefillRate       float64
	maximumBucketCapacity float64
	currentBucketCapacity float64
	timeOfLastRefill      float64
	hasRefilled           bool
	tokensPerSecond       float64
	previousTimeBucket    float64
	requestCount          uint64
	enableThrottling      bool
	rateAtLastThrottle    float64
	timeOfLastThrottle    float64
	timeWindow            float64
	calculatedRate        float64

	name    string
	metrics *MetricsCollector
}

// NewClientRateLimiter returns a disabled limiter whose clock starts at now.
func NewClientRateLimiter(now time.Time) *ClientRateLimiter {
	ts := unixSeconds(now)
	l := newClientRateLimiter()
	l.timeOfLastThrottle = ts
	l.previousTimeBucket = math.Floor(ts)
	return l
}

func newClientRateLimiter() *ClientRateLimiter {
	return &ClientRateLimiter{
		maximumBucketCapacity: math.MaxFloat64,
		name:                  "default",
	}
}

// WithMetrics reports the fill rate and capacity under name after every update.
func (l *ClientRateLimiter) WithMetrics(name string, mc *MetricsCollector) *ClientRateLimiter {
	l.name = name
	l.metrics = mc
	return l
}

func unixSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

// AcquirePermissionToSendRequest takes amount tokens from the bucket. It
// always succeeds until throttling has been observed, and fails with
// ErrOutOfTokens when the bucket holds less than amount.
func (l *ClientRateLimiter) AcquirePermissionToSendRequest(now time.Time, amount float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enableThrottling {
		return nil
	}

	l.refill(unixSeconds(now))
	if l.currentBucketCapacity < amount {
		return ErrOutOfTokens
	}
	l.currentBucketCapacity -= amount
	return nil
}

// ReserveTokens takes amount tokens, letting the bucket go into debt, and
// returns how long the caller has to wait for the refill to cover that debt.
// It returns zero until throttling has been observed.
func (l *ClientRateLimiter) ReserveTokens(now time.Time, amount float64) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enableThrottling {
		return 0
	}

	l.refill(unixSeconds(now))
	l.currentBucketCapacity -= amount
	if l.currentBucketCapacity >= 0 {
		return 0
	}
	wait := -l.currentBucketCapacity / math.Max(l.tokenRefillRate, minFillRate)
	return time.Duration(math.Ceil(wait * float64(time.Second)))
}

// UpdateRateLimiter feeds the outcome of a response into the limiter.
func (l *ClientRateLimiter) UpdateRateLimiter(now time.Time, isThrottlingError bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := unixSeconds(now)
	l.updateTokensRetrievedPerSecond(ts)

	if isThrottlingError {
		rateToUse := l.tokensPerSecond
		if l.enableThrottling {
			rateToUse = math.Min(l.tokensPerSecond, l.tokenRefillRate)
		}
		l.rateAtLastThrottle = rateToUse
		l.calculateTimeWindow()
		l.timeOfLastThrottle = ts
		l.calculatedRate = cubicThrottle(rateToUse)
		l.enableThrottling = true
	} else {
		l.calculateTimeWindow()
		l.calculatedRate = l.cubicSuccess(ts)
	}

	newRate := math.Min(l.calculatedRate, 2*l.tokensPerSecond)
	l.updateBucketRefillRate(ts, newRate)
	l.metrics.RecordRateLimiter(l.name, l.tokenRefillRate, l.currentBucketCapacity)
}

// ThrottlingEnabled reports whether a throttling response has been seen.
func (l *ClientRateLimiter) ThrottlingEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enableThrottling
}

// Rates returns the smoothed observed sending rate and the current refill rate.
func (l *ClientRateLimiter) Rates() (tokensPerSecond, refillRate float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tokensPerSecond, l.tokenRefillRate
}

func (l *ClientRateLimiter) refill(ts float64) {
	if l.hasRefilled {
		fill := (ts - l.timeOfLastRefill) * l.tokenRefillRate
		l.currentBucketCapacity = math.Min(l.maximumBucketCapacity, l.currentBucketCapacity+fill)
	}
	l.timeOfLastRefill = ts
	l.hasRefilled = true
}

func (l *ClientRateLimiter) updateBucketRefillRate(ts, newFillRate float64) {
	l.refill(ts)

	l.tokenRefillRate = math.Max(newFillRate, minFillRate)
	l.maximumBucketCapacity = math.Max(newFillRate, minCapacity)
	l.currentBucketCapacity = math.Min(l.currentBucketCapacity, l.maximumBucketCapacity)
}

// updateTokensRetrievedPerSecond smooths the observed request rate over
// half-second buckets.
func (l *ClientRateLimiter) updateTokensRetrievedPerSecond(ts float64) {
	nextTimeBucket := math.Floor(ts*2) / 2
	l.requestCount++

	if nextTimeBucket > l.previousTimeBucket {
		currentRate := float64(l.requestCount) / (nextTimeBucket - l.previousTimeBucket)
		l.tokensPerSecond = currentRate*smooth + l.tokensPerSecond*(1-smooth)
		l.requestCount = 0
		l.previousTimeBucket = nextTimeBucket
	}
}

func (l *ClientRateLimiter) calculateTimeWindow() {
	base := (l.rateAtLastThrottle * (1 - beta)) / scaleConstant
	l.timeWindow = math.Pow(base, 1.0/3.0)
}

func (l *ClientRateLimiter) cubicSuccess(ts float64) float64 {
	dt := ts - l.timeOfLastThrottle - l.timeWindow
	return scaleConstant*(dt*dt*dt) + l.rateAtLastThrottle
}

func cubicThrottle(rateToUse float64) float64 {
	return rateToUse * beta
}
