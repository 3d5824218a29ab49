package smithy

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"
)

// HTTPConnector sends a request and returns the response. Implementations
// must honor ctx cancellation and should return *ConnectorError so failures
// can be classified for retries.
type HTTPConnector interface {
	Call(ctx context.Context, req *http.Request) (*http.Response, error)
}

// HTTPConnectorFunc adapts a function to HTTPConnector.
type HTTPConnectorFunc func(ctx context.Context, req *http.Request) (*http.Response, error)

// Call calls f.
func (f HTTPConnectorFunc) Call(ctx context.Context, req *http.Request) (*http.Response, error) {
	return f(ctx, req)
}

// HTTPClientConnector sends requests with a net/http client.
type HTTPClientConnector struct {
	client *http.Client
}

// NewHTTPClientConnector wraps client. A nil client gets a client whose
// transport applies the connect and read timeouts from cfg.
func NewHTTPClientConnector(client *http.Client, timeouts TimeoutConfig) *HTTPClientConnector {
	if client == nil {
		dialer := &net.Dialer{Timeout: timeouts.ConnectTimeout, KeepAlive: 30 * time.Second}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.DialContext = dialer.DialContext
		transport.ResponseHeaderTimeout = timeouts.ReadTimeout
		client = &http.Client{Transport: transport}
	}
	return &HTTPClientConnector{client: client}
}

// Call sends req and classifies any transport error.
func (c *HTTPClientConnector) Call(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := c.client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, ClassifyConnectorError(err)
	}
	return resp, nil
}

// ClassifyConnectorError wraps a transport error in a ConnectorError with the
// matching kind.
func ClassifyConnectorError(err error) *ConnectorError {
	var ce *ConnectorError
	if errors.As(err, &ce) {
		return ce
	}
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &ConnectorError{Kind: ConnectorErrorTimeout, Err: err}
	case errors.As(err, &netErr) && netErr.Timeout():
		return &ConnectorError{Kind: ConnectorErrorTimeout, Err: err}
	case errors.Is(err, context.Canceled):
		return &ConnectorError{Kind: ConnectorErrorUser, Err: err}
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.EPIPE):
		return &ConnectorError{Kind: ConnectorErrorIO, Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &ConnectorError{Kind: ConnectorErrorIO, Err: err}
	}
	return &ConnectorError{Kind: ConnectorErrorOther, Err: err}
}
