package smithy

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Endpoint is where a request is sent.
type Endpoint struct {
	URL        string
	Headers    http.Header
	Properties map[string]any
}

// EndpointResolverParams carries the operation's endpoint parameters through
// the config bag.
type EndpointResolverParams struct {
	TypeErasedBox
}

// EndpointResolver resolves an endpoint from operation parameters.
type EndpointResolver interface {
	ResolveEndpoint(ctx context.Context, params EndpointResolverParams) (Endpoint, error)
}

// EndpointResolverFunc adapts a function to EndpointResolver.
type EndpointResolverFunc func(ctx context.Context, params EndpointResolverParams) (Endpoint, error)

func (f EndpointResolverFunc) ResolveEndpoint(ctx context.Context, params EndpointResolverParams) (Endpoint, error) {
	return f(ctx, params)
}

// StaticURIEndpointResolver always resolves to the same URL.
type StaticURIEndpointResolver struct {
	endpoint Endpoint
}

// NewStaticURIEndpointResolver returns a resolver for uri.
func NewStaticURIEndpointResolver(uri string) *StaticURIEndpointResolver {
	return &StaticURIEndpointResolver{endpoint: Endpoint{URL: uri}}
}

// HTTPLocalhost returns a resolver for http://localhost:port.
func HTTPLocalhost(port int) *StaticURIEndpointResolver {
	return NewStaticURIEndpointResolver(fmt.Sprintf("http://localhost:%d", port))
}

// ResolveEndpoint returns the configured endpoint.
func (r *StaticURIEndpointResolver) ResolveEndpoint(context.Context, EndpointResolverParams) (Endpoint, error) {
	return r.endpoint, nil
}

// EndpointPrefix is prepended to the endpoint host when present in the bag.
type EndpointPrefix string

// applyEndpoint points req at ep. The endpoint path is prepended to the
// request path and endpoint headers are added to the request.
func applyEndpoint(req *http.Request, ep Endpoint, prefix EndpointPrefix) error {
	u, err := url.Parse(ep.URL)
	if err != nil {
		return fmt.Errorf("endpoint %q is not a valid URI: %w", ep.URL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("endpoint %q must include a scheme and host", ep.URL)
	}
	req.URL.Scheme = u.Scheme
	req.URL.Host = string(prefix) + u.Host
	req.Host = req.URL.Host
	base := strings.TrimSuffix(u.Path, "/")
	if base != "" {
		path := req.URL.Path
		if path != "" && !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		req.URL.Path = base + path
		req.URL.RawPath = ""
	}
	if u.RawQuery != "" {
		if req.URL.RawQuery == "" {
			req.URL.RawQuery = u.RawQuery
		} else {
			req.URL.RawQuery = u.RawQuery + "&" + req.URL.RawQuery
		}
	}
	for name, values := range ep.Headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	return nil
}

func orchestrateEndpoint(ctx context.Context, ictx *InterceptorContext, rc *RuntimeComponents, cfg *ConfigBag) error {
	params, _ := Load[EndpointResolverParams](cfg)
	ep, err := rc.EndpointResolver().ResolveEndpoint(ctx, params)
	if err != nil {
		return fmt.Errorf("resolving endpoint: %w", err)
	}
	prefix, _ := Load[EndpointPrefix](cfg)
	req := ictx.Request()
	if req == nil {
		return fmt.Errorf("no request available to apply endpoint to")
	}
	if err := applyEndpoint(req, ep, prefix); err != nil {
		return err
	}
	StorePut(cfg.InterceptorState(), ep)
	return nil
}
