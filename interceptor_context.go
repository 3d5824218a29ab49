package smithy

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
)

// Phase is a stage of request execution. Phases only move forward within an
// attempt; a retry rewinds to PhaseBeforeTransmit.
type Phase int

const (
	PhaseUnset Phase = iota
	PhaseBeforeSerialization
	PhaseSerialization
	PhaseBeforeTransmit
	PhaseTransmit
	PhaseBeforeDeserialization
	PhaseDeserialization
	PhaseAfterDeserialization
)

var phaseNames = [...]string{
	PhaseUnset:                 "Unset",
	PhaseBeforeSerialization:   "BeforeSerialization",
	PhaseSerialization:         "Serialization",
	PhaseBeforeTransmit:        "BeforeTransmit",
	PhaseTransmit:              "Transmit",
	PhaseBeforeDeserialization: "BeforeDeserialization",
	PhaseDeserialization:       "Deserialization",
	PhaseAfterDeserialization:  "AfterDeserialization",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("Phase(%d)", int(p))
	}
	return phaseNames[p]
}

// InterceptorContext holds the state of one invocation: the input before
// serialization, the request, the response, and finally the output or error.
type InterceptorContext struct {
	phase Phase

	input    TypeErasedBox
	hasInput bool

	request    *http.Request
	checkpoint *requestCheckpoint

	response     *http.Response
	lastResponse *http.Response

	output    TypeErasedBox
	err       *OrchestratorError
	hasResult bool
}

type requestCheckpoint struct {
	req  *http.Request
	body []byte
}

// NewInterceptorContext starts a context holding input.
func NewInterceptorContext(input TypeErasedBox) *InterceptorContext {
	return &InterceptorContext{
		phase:    PhaseBeforeSerialization,
		input:    input,
		hasInput: true,
	}
}

// Phase returns the current phase.
func (c *InterceptorContext) Phase() Phase {
	return c.phase
}

// Input returns the operation input. It is only available before serialization.
func (c *InterceptorContext) Input() (TypeErasedBox, bool) {
	return c.input, c.hasInput
}

// SetInput replaces the operation input.
func (c *InterceptorContext) SetInput(input TypeErasedBox) {
	c.input = input
	c.hasInput = true
}

// TakeInput removes the input from the context and returns it.
func (c *InterceptorContext) TakeInput() (TypeErasedBox, bool) {
	in, ok := c.input, c.hasInput
	c.input, c.hasInput = TypeErasedBox{}, false
	return in, ok
}

// Request returns the transmittable request, or nil before serialization.
func (c *InterceptorContext) Request() *http.Request {
	return c.request
}

// SetRequest replaces the request.
func (c *InterceptorContext) SetRequest(req *http.Request) {
	c.request = req
}

// Response returns the response of the current attempt, or nil.
func (c *InterceptorContext) Response() *http.Response {
	return c.response
}

// SetResponse replaces the response of the current attempt.
func (c *InterceptorContext) SetResponse(resp *http.Response) {
	c.response = resp
	if resp != nil {
		c.lastResponse = resp
	}
}

// LastResponse returns the most recent raw response received by any attempt.
func (c *InterceptorContext) LastResponse() *http.Response {
	return c.lastResponse
}

// OutputOrError returns the deserialized output or the recorded failure.
// ok is false when neither has been produced yet.
func (c *InterceptorContext) OutputOrError() (output TypeErasedBox, err error, ok bool) {
	if !c.hasResult {
		return TypeErasedBox{}, nil, false
	}
	if c.err != nil {
		return TypeErasedBox{}, c.err, true
	}
	return c.output, nil, true
}

// SetOutput records a successful result.
func (c *InterceptorContext) SetOutput(out TypeErasedBox) {
	c.output, c.err, c.hasResult = out, nil, true
}

// SetError records a failure, replacing any earlier one.
func (c *InterceptorContext) SetError(err error) {
	if err == nil {
		return
	}
	c.output = TypeErasedBox{}
	c.err = asOrchestratorError(err, c.phase)
	c.hasResult = true
}

// IsFailed reports whether a failure has been recorded.
func (c *InterceptorContext) IsFailed() bool {
	return c.hasResult && c.err != nil
}

// Err returns the recorded failure, if any.
func (c *InterceptorContext) Err() *OrchestratorError {
	return c.err
}

func (c *InterceptorContext) enter(p Phase) {
	if p < c.phase {
		panic(fmt.Sprintf("smithy: cannot move from phase %s back to %s", c.phase, p))
	}
	c.phase = p
}

// saveCheckpoint keeps a replayable copy of the serialized request so every
// attempt starts from the same request.
func (c *InterceptorContext) saveCheckpoint() error {
	if c.request == nil {
		return nil
	}
	cp := &requestCheckpoint{req: c.request.Clone(c.request.Context())}
	if c.request.Body != nil && c.request.Body != http.NoBody {
		body, err := io.ReadAll(c.request.Body)
		if err != nil {
			return fmt.Errorf("buffering request body: %w", err)
		}
		_ = c.request.Body.Close()
		cp.body = body
		c.request.Body = io.NopCloser(bytes.NewReader(body))
		c.request.GetBody = cp.getBody
		c.request.ContentLength = int64(len(body))
	}
	c.checkpoint = cp
	return nil
}

func (cp *requestCheckpoint) getBody() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(cp.body)), nil
}

// rewind restores the checkpointed request and clears per-attempt state.
// It reports false when there is no checkpoint to rewind to.
func (c *InterceptorContext) rewind() bool {
	if c.checkpoint == nil {
		return false
	}
	req := c.checkpoint.req.Clone(c.checkpoint.req.Context())
	if c.checkpoint.body != nil {
		req.Body, _ = c.checkpoint.getBody()
		req.GetBody = c.checkpoint.getBody
		req.ContentLength = int64(len(c.checkpoint.body))
	}
	c.request = req
	c.response = nil
	c.output, c.err, c.hasResult = TypeErasedBox{}, nil, false
	c.phase = PhaseBeforeTransmit
	return true
}
