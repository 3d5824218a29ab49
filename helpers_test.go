package smithy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
)

func epochSecs(secs int64) time.Time {
	return time.Unix(secs, 0).UTC()
}

// testComponents builds runtime components around the given clock and
// sleeper with inert defaults for everything else.
func testComponents(t *testing.T, ts TimeSource, sleeper Sleeper) *RuntimeComponents {
	t.Helper()
	rc, err := NewRuntimeComponentsBuilder("test").
		SetHTTPConnector(HTTPConnectorFunc(func(context.Context, *http.Request) (*http.Response, error) {
			return nil, errors.New("no connector in this test")
		})).
		SetEndpointResolver(NewStaticURIEndpointResolver("http://localhost")).
		SetAuthSchemeOptionResolver(NewStaticAuthSchemeOptionResolver(NoAuthSchemeID)).
		SetIdentityCache(NoCache{}).
		SetRetryStrategy(NeverRetryStrategy{}).
		SetTimeSource(ts).
		SetSleeper(sleeper).
		Build()
	if err != nil {
		t.Fatalf("Expected test components to build, got %v", err)
	}
	return rc
}

func textResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// replayConnector answers with scripted responses in order and records every
// request it saw.
type replayConnector struct {
	mu        sync.Mutex
	responses []func(*http.Request) (*http.Response, error)
	requests  []*http.Request
}

func newReplayConnector(responses ...func(*http.Request) (*http.Response, error)) *replayConnector {
	return &replayConnector{responses: responses}
}

func respond(status int, body string) func(*http.Request) (*http.Response, error) {
	return func(*http.Request) (*http.Response, error) {
		return textResponse(status, body), nil
	}
}

func (c *replayConnector) Call(_ context.Context, req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if len(c.responses) == 0 {
		return nil, errors.New("replay connector: no more responses")
	}
	next := c.responses[0]
	c.responses = c.responses[1:]
	resp, err := next(req)
	if resp != nil {
		resp.Request = req
	}
	return resp, err
}

func (c *replayConnector) Requests() []*http.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*http.Request(nil), c.requests...)
}

// captureConnector records the last request and answers 200.
type captureConnector struct {
	mu   sync.Mutex
	last *http.Request
}

func (c *captureConnector) Call(_ context.Context, req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	c.last = req
	c.mu.Unlock()
	resp := textResponse(http.StatusOK, "")
	resp.Request = req
	return resp, nil
}

func (c *captureConnector) Last() *http.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

type testInput struct {
	Name string
}

type testOutput struct {
	Body string
}

func testSerializer(in testInput, _ *ConfigBag) (*http.Request, error) {
	return http.NewRequest(http.MethodPost, "/things/"+in.Name, strings.NewReader("input="+in.Name))
}

func testDeserializer(resp *http.Response, body []byte) (testOutput, error) {
	if resp.StatusCode >= 300 {
		return testOutput{}, &statusError{code: resp.StatusCode}
	}
	return testOutput{Body: string(body)}, nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string { return http.StatusText(e.code) }
