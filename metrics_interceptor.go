package smithy

import (
	"time"
)

// attemptStarted is the time the current attempt began, by the component
// time source.
type attemptStarted time.Time

// MetricsInterceptor records per-attempt metrics: attempt count and duration
// and the status code of every response received.
type MetricsInterceptor struct {
	metrics *MetricsCollector
}

// NewMetricsInterceptor returns an interceptor that records into mc.
func NewMetricsInterceptor(mc *MetricsCollector) *MetricsInterceptor {
	return &MetricsInterceptor{metrics: mc}
}

func (m *MetricsInterceptor) Name() string { return "MetricsInterceptor" }

func (m *MetricsInterceptor) Intercept(hook Hook, ictx *InterceptorContext, rc *RuntimeComponents, cfg *ConfigBag) error {
	meta, _ := Load[Metadata](cfg)
	switch hook {
	case HookReadBeforeAttempt:
		StorePut(cfg.InterceptorState(), attemptStarted(rc.TimeSource().Now()))
	case HookReadAfterTransmit:
		if resp := ictx.Response(); resp != nil {
			m.metrics.RecordResponse(meta.Service, meta.Operation, resp.StatusCode)
		}
	case HookReadAfterAttempt:
		started, ok := Load[attemptStarted](cfg)
		if !ok {
			return nil
		}
		m.metrics.RecordAttempt(meta.Service, meta.Operation, rc.TimeSource().Now().Sub(time.Time(started)))
	}
	return nil
}
