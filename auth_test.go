package smithy

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"
)

type tokenIdentity struct {
	Token string
}

// authPlugin registers the given schemes with a static option list.
func authPlugin(options []AuthSchemeID, schemes map[AuthSchemeID]IdentityResolver, signer Signer) RuntimePlugin {
	components := NewRuntimeComponentsBuilder("auth").
		SetAuthSchemeOptionResolver(NewStaticAuthSchemeOptionResolver(options...))
	for id, resolver := range schemes {
		components.AddAuthScheme(NewAuthScheme(id, signer))
		components.AddIdentityResolver(id, resolver)
	}
	return NewStaticRuntimePlugin().WithRuntimeComponents(components)
}

func tokenResolver(token string) IdentityResolver {
	return IdentityResolverFunc(func(context.Context, *RuntimeComponents, *ConfigBag) (Identity, error) {
		return NewIdentity(tokenIdentity{Token: token}, time.Time{}), nil
	})
}

var headerSigner = SignerFunc(func(req *http.Request, identity Identity, settings AuthSchemeEndpointConfig, _ *RuntimeComponents, _ *ConfigBag) error {
	token, ok := IdentityData[tokenIdentity](identity)
	if !ok {
		return errors.New("unexpected identity")
	}
	req.Header.Set("Authorization", "Token "+token.Token)
	if region, ok := settings["signingRegion"].(string); ok {
		req.Header.Set("X-Signing-Region", region)
	}
	return nil
})

func TestAuthNoMatchingScheme(t *testing.T) {
	conn := &captureConnector{}
	op := mustBuild(t, newTestOperation(conn).
		RuntimePlugin(authPlugin([]AuthSchemeID{"sigv9"}, nil, headerSigner)))

	_, err := op.Invoke(context.Background(), testInput{Name: "a"})
	if !errors.Is(err, ErrNoMatchingAuthScheme) {
		t.Fatalf("Expected ErrNoMatchingAuthScheme, got %v", err)
	}
	ce := asClientError(t, err)
	if ce.Type != ErrorTypeConstructionFailure {
		t.Errorf("Expected %s, got %s", ErrorTypeConstructionFailure, ce.Type)
	}
	var authErr *AuthError
	if !errors.As(err, &authErr) || authErr.Stage != "scheme selection" {
		t.Errorf("Expected a scheme selection AuthError, got %v", authErr)
	}
	if conn.Last() != nil {
		t.Error("Expected no request to be sent")
	}
}

func TestAuthPicksFirstUsableOption(t *testing.T) {
	conn := &captureConnector{}
	op := mustBuild(t, newTestOperation(conn).
		RuntimePlugin(authPlugin(
			[]AuthSchemeID{"missing", "token-b", "token-a"},
			map[AuthSchemeID]IdentityResolver{
				"token-a": tokenResolver("a"),
				"token-b": tokenResolver("b"),
			},
			headerSigner,
		)))

	if _, err := op.Invoke(context.Background(), testInput{Name: "a"}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got := conn.Last().Header.Get("Authorization"); got != "Token b" {
		t.Errorf("Expected 'Token b', got %q", got)
	}
}

func TestAuthSchemeOnlyRegisteredWithoutResolverIsSkipped(t *testing.T) {
	conn := &captureConnector{}
	components := NewRuntimeComponentsBuilder("auth").
		SetAuthSchemeOptionResolver(NewStaticAuthSchemeOptionResolver("orphan", "token")).
		AddAuthScheme(NewAuthScheme("orphan", headerSigner)).
		AddAuthScheme(NewAuthScheme("token", headerSigner)).
		AddIdentityResolver("token", tokenResolver("t"))
	op := mustBuild(t, newTestOperation(conn).
		RuntimePlugin(NewStaticRuntimePlugin().WithRuntimeComponents(components)))

	if _, err := op.Invoke(context.Background(), testInput{Name: "a"}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got := conn.Last().Header.Get("Authorization"); got != "Token t" {
		t.Errorf("Expected 'Token t', got %q", got)
	}
}

func TestAuthEndpointSettingsReachSigner(t *testing.T) {
	conn := &captureConnector{}
	resolver := EndpointResolverFunc(func(context.Context, EndpointResolverParams) (Endpoint, error) {
		return Endpoint{
			URL: "https://things.example.com",
			Properties: map[string]any{
				"authSchemes": []map[string]any{
					{"name": "other", "signingRegion": "us-west-2"},
					{"name": "token", "signingRegion": "eu-central-1"},
				},
			},
		}, nil
	})
	op := mustBuild(t, newTestOperation(conn).
		RuntimePlugin(authPlugin([]AuthSchemeID{"token"}, map[AuthSchemeID]IdentityResolver{"token": tokenResolver("t")}, headerSigner)).
		RuntimePlugin(NewStaticRuntimePlugin().WithRuntimeComponents(NewRuntimeComponentsBuilder("endpoint").SetEndpointResolver(resolver))))

	if _, err := op.Invoke(context.Background(), testInput{Name: "a"}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got := conn.Last().Header.Get("X-Signing-Region"); got != "eu-central-1" {
		t.Errorf("Expected eu-central-1, got %q", got)
	}
}

func TestAuthFailures(t *testing.T) {
	failingResolver := IdentityResolverFunc(func(context.Context, *RuntimeComponents, *ConfigBag) (Identity, error) {
		return Identity{}, errors.New("no credentials")
	})
	failingSigner := SignerFunc(func(*http.Request, Identity, AuthSchemeEndpointConfig, *RuntimeComponents, *ConfigBag) error {
		return errors.New("bad key")
	})

	tests := []struct {
		name     string
		resolver IdentityResolver
		signer   Signer
		stage    string
	}{
		{"identity resolution", failingResolver, headerSigner, "identity resolution"},
		{"signing", tokenResolver("t"), failingSigner, "signing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := &hookRecorder{}
			op := mustBuild(t, newTestOperation(&captureConnector{}, recorder).
				RuntimePlugin(authPlugin([]AuthSchemeID{"token"}, map[AuthSchemeID]IdentityResolver{"token": tt.resolver}, tt.signer)))

			_, err := op.Invoke(context.Background(), testInput{Name: "a"})
			var authErr *AuthError
			if !errors.As(err, &authErr) {
				t.Fatalf("Expected an AuthError, got %v", err)
			}
			if authErr.Stage != tt.stage || authErr.SchemeID != "token" {
				t.Errorf("Expected stage %q for scheme token, got %q for %q", tt.stage, authErr.Stage, authErr.SchemeID)
			}
			if ce := asClientError(t, err); ce.Type != ErrorTypeConstructionFailure {
				t.Errorf("Expected %s, got %s", ErrorTypeConstructionFailure, ce.Type)
			}
			hooks := recorder.Hooks()
			if hooks[len(hooks)-1] != HookReadAfterExecution {
				t.Errorf("Expected cleanup hooks to run, got %v", hooks)
			}
		})
	}
}

func TestAuthSchemeIsRecorded(t *testing.T) {
	var selected AuthSchemeID
	capture := HookFunc("capture", HookReadAfterSigning, func(_ *InterceptorContext, _ *RuntimeComponents, cfg *ConfigBag) error {
		selected, _ = Load[AuthSchemeID](cfg)
		return nil
	})
	op := mustBuild(t, newTestOperation(&captureConnector{}, capture).
		RuntimePlugin(authPlugin([]AuthSchemeID{"token"}, map[AuthSchemeID]IdentityResolver{"token": tokenResolver("t")}, headerSigner)))

	if _, err := op.Invoke(context.Background(), testInput{Name: "a"}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if selected != "token" {
		t.Errorf("Expected the selected scheme to be stored, got %q", selected)
	}
}

func TestAuthResolvesIdentityOncePerAttempt(t *testing.T) {
	var calls atomic.Int32
	resolver := IdentityResolverFunc(func(context.Context, *RuntimeComponents, *ConfigBag) (Identity, error) {
		calls.Add(1)
		return NewIdentity(tokenIdentity{Token: "t"}, time.Time{}), nil
	})
	clock, sleeper := NewInstantTimeAndSleep(epochSecs(0))
	conn := newReplayConnector(respond(http.StatusServiceUnavailable, ""), respond(http.StatusOK, ""))
	op := mustBuild(t, newTestOperation(conn).
		StandardRetry(deterministicRetryConfig()).
		RetryClassifiers(DefaultRetryClassifiers()...).
		TimeSource(clock).
		SleepImpl(sleeper).
		RuntimePlugin(authPlugin([]AuthSchemeID{"token"}, map[AuthSchemeID]IdentityResolver{"token": resolver}, headerSigner)))

	if _, err := op.Invoke(context.Background(), testInput{Name: "a"}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("Expected 2 resolutions without an identity cache, got %d", n)
	}
	for i, req := range conn.Requests() {
		if req.Header.Get("Authorization") != "Token t" {
			t.Errorf("Expected request %d to be signed", i)
		}
	}
}
