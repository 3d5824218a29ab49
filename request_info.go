package smithy

import (
	"fmt"
	"strings"
	"time"
)

const requestInfoHeader = "amz-sdk-request"

// RequestInfoInterceptor sends the attempt number, the attempt limit and the
// client-side TTL in the amz-sdk-request header, and a User-Agent when the
// request has none.
type RequestInfoInterceptor struct{}

func (RequestInfoInterceptor) Name() string { return "RequestInfoInterceptor" }

func (RequestInfoInterceptor) Intercept(hook Hook, ictx *InterceptorContext, rc *RuntimeComponents, cfg *ConfigBag) error {
	if hook != HookModifyBeforeTransmit {
		return nil
	}
	req := ictx.Request()
	if req == nil {
		return nil
	}
	parts := []string{fmt.Sprintf("attempt=%d", LoadOr[RequestAttempts](cfg, 1))}
	if retry, ok := Load[RetryConfig](cfg); ok {
		parts = append(parts, fmt.Sprintf("max=%d", retry.MaxAttempts))
	}
	if timeouts, ok := Load[TimeoutConfig](cfg); ok && timeouts.OperationAttemptTimeout > 0 {
		parts = append(parts, "ttl="+formatTTL(rc.TimeSource().Now().Add(timeouts.OperationAttemptTimeout)))
	}
	req.Header.Set(requestInfoHeader, strings.Join(parts, "; "))
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent())
	}
	return nil
}

func formatTTL(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}
