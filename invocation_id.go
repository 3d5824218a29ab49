package smithy

import (
	"github.com/google/uuid"
)

const invocationIDHeader = "amz-sdk-invocation-id"

// InvocationID identifies every attempt of one invocation. It is stored in
// the interceptor state and sent in the amz-sdk-invocation-id header.
type InvocationID string

// InvocationIDGenerator creates invocation IDs. Tests store a fixed generator
// in the config bag.
type InvocationIDGenerator interface {
	GenerateInvocationID() (InvocationID, error)
}

// UUIDInvocationIDGenerator generates random v4 UUIDs.
type UUIDInvocationIDGenerator struct{}

func (UUIDInvocationIDGenerator) GenerateInvocationID() (InvocationID, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return InvocationID(id.String()), nil
}

// PredefinedInvocationIDGenerator hands out a fixed list of IDs in order and
// then repeats the last one.
type PredefinedInvocationIDGenerator struct {
	ids  []InvocationID
	next int
}

// NewPredefinedInvocationIDGenerator returns a generator for ids.
func NewPredefinedInvocationIDGenerator(ids ...InvocationID) *PredefinedInvocationIDGenerator {
	return &PredefinedInvocationIDGenerator{ids: ids}
}

func (g *PredefinedInvocationIDGenerator) GenerateInvocationID() (InvocationID, error) {
	if len(g.ids) == 0 {
		return "", nil
	}
	id := g.ids[min(g.next, len(g.ids)-1)]
	g.next++
	return id, nil
}

// InvocationIDInterceptor generates one ID per invocation before the retry
// loop and adds it to every attempt.
type InvocationIDInterceptor struct{}

func (InvocationIDInterceptor) Name() string { return "InvocationIDInterceptor" }

func (InvocationIDInterceptor) Intercept(hook Hook, ictx *InterceptorContext, _ *RuntimeComponents, cfg *ConfigBag) error {
	switch hook {
	case HookModifyBeforeRetryLoop:
		var gen InvocationIDGenerator = UUIDInvocationIDGenerator{}
		if g, ok := Load[InvocationIDGenerator](cfg); ok {
			gen = g
		}
		if req := ictx.Request(); req != nil {
			if existing := req.Header.Get(invocationIDHeader); existing != "" {
				StorePut(cfg.InterceptorState(), InvocationID(existing))
				return nil
			}
		}
		id, err := gen.GenerateInvocationID()
		if err != nil {
			return err
		}
		StorePut(cfg.InterceptorState(), id)
	case HookModifyBeforeTransmit:
		id, ok := Load[InvocationID](cfg)
		if !ok || id == "" {
			return nil
		}
		if req := ictx.Request(); req != nil && req.Header.Get(invocationIDHeader) == "" {
			req.Header.Set(invocationIDHeader, string(id))
		}
	}
	return nil
}
