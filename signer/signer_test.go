package signer

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	smithy "github.com/awslabs/smithy-rs-sub000"
	"github.com/awslabs/smithy-rs-sub000/credentials"
)

var signingDate = time.Date(2024, 3, 9, 17, 45, 30, 0, time.UTC)

func testComponents(t *testing.T) *smithy.RuntimeComponents {
	t.Helper()
	clock, sleeper := smithy.NewInstantTimeAndSleep(signingDate)
	rc, err := smithy.NewRuntimeComponentsBuilder("signer test").
		SetHTTPConnector(smithy.HTTPConnectorFunc(func(context.Context, *http.Request) (*http.Response, error) {
			return nil, errors.New("not used")
		})).
		SetEndpointResolver(smithy.NewStaticURIEndpointResolver("https://example.com")).
		SetAuthSchemeOptionResolver(smithy.NewStaticAuthSchemeOptionResolver(HMACAuthSchemeID)).
		SetIdentityCache(smithy.NoCache{}).
		SetRetryStrategy(smithy.NeverRetryStrategy{}).
		SetTimeSource(clock).
		SetSleeper(sleeper).
		Build()
	if err != nil {
		t.Fatalf("Expected components to build, got %v", err)
	}
	return rc
}

func newRequest(t *testing.T, body string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, "https://example.com/things/a%20b?z=1&a=2&a=1", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

func credsIdentity(token string) smithy.Identity {
	return smithy.NewIdentity(credentials.Credentials{AccessKeyID: "AKID", SecretAccessKey: "secret", SessionToken: token}, time.Time{})
}

func TestHMACSignsRequest(t *testing.T) {
	rc := testComponents(t)
	req := newRequest(t, `{"hello":"world"}`)

	if err := NewHMAC("things").SignHTTPRequest(req, credsIdentity(""), nil, rc, nil); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if got := req.Header.Get(HeaderDate); got != "20240309T174530Z" {
		t.Errorf("Expected date header 20240309T174530Z, got %s", got)
	}
	if got := req.Header.Get(HeaderContentSHA256); got != hashHex([]byte(`{"hello":"world"}`)) {
		t.Errorf("Expected payload hash, got %s", got)
	}
	auth := req.Header.Get("Authorization")
	wantPrefix := "SMITHY-HMAC-SHA256 Credential=AKID/20240309/things, SignedHeaders=content-type;host;x-smithy-content-sha256;x-smithy-date, Signature="
	if !strings.HasPrefix(auth, wantPrefix) {
		t.Errorf("Expected authorization prefix %q, got %q", wantPrefix, auth)
	}
	if req.Header.Get(HeaderSecurityToken) != "" {
		t.Error("Expected no security token header without a session token")
	}
}

func TestHMACIsDeterministicAndVerifies(t *testing.T) {
	rc := testComponents(t)
	signer := NewHMAC("things")

	first := newRequest(t, "payload")
	second := newRequest(t, "payload")
	if err := signer.SignHTTPRequest(first, credsIdentity("tok"), nil, rc, nil); err != nil {
		t.Fatal(err)
	}
	if err := signer.SignHTTPRequest(second, credsIdentity("tok"), nil, rc, nil); err != nil {
		t.Fatal(err)
	}
	if first.Header.Get("Authorization") != second.Header.Get("Authorization") {
		t.Error("Expected identical signatures for identical requests")
	}
	if first.Header.Get(HeaderSecurityToken) != "tok" {
		t.Errorf("Expected session token header, got %q", first.Header.Get(HeaderSecurityToken))
	}

	creds := credentials.Credentials{AccessKeyID: "AKID", SecretAccessKey: "secret"}
	if err := signer.Verify(first, creds); err != nil {
		t.Errorf("Expected signature to verify, got %v", err)
	}

	creds.SecretAccessKey = "other"
	if err := signer.Verify(second, creds); !errors.Is(err, ErrSignatureMismatch) {
		t.Errorf("Expected ErrSignatureMismatch for a wrong secret, got %v", err)
	}
}

func TestHMACBodyStillReadable(t *testing.T) {
	req := newRequest(t, "payload")
	req.GetBody = nil
	if err := NewHMAC("things").SignHTTPRequest(req, credsIdentity(""), nil, testComponents(t), nil); err != nil {
		t.Fatal(err)
	}
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, req.Body); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "payload" {
		t.Errorf("Expected body to survive signing, got %q", buf.String())
	}
}

func TestHMACSigningNameOverride(t *testing.T) {
	req := newRequest(t, "")
	settings := smithy.AuthSchemeEndpointConfig{"signingName": "override"}
	if err := NewHMAC("things").SignHTTPRequest(req, credsIdentity(""), settings, testComponents(t), nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(req.Header.Get("Authorization"), "/20240309/override,") {
		t.Errorf("Expected endpoint signing name in scope, got %s", req.Header.Get("Authorization"))
	}
}

func TestHMACRejectsWrongIdentity(t *testing.T) {
	tests := []struct {
		name     string
		identity smithy.Identity
	}{
		{name: "token", identity: smithy.NewIdentity(Token{Value: "t"}, time.Time{})},
		{name: "incomplete", identity: smithy.NewIdentity(credentials.Credentials{AccessKeyID: "AKID"}, time.Time{})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := NewHMAC("svc").SignHTTPRequest(newRequest(t, ""), tt.identity, nil, nil, nil); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}

func TestDeriveKeyIsScoped(t *testing.T) {
	a, _ := deriveKey("secret", "20240309", "things")
	b, _ := deriveKey("secret", "20240310", "things")
	c, _ := deriveKey("secret", "20240309", "others")
	if string(a) == string(b) || string(a) == string(c) {
		t.Error("Expected keys to differ by date and service")
	}
	if len(a) != 32 {
		t.Errorf("Expected 32 byte key, got %d", len(a))
	}
}

func TestCanonicalQuerySorted(t *testing.T) {
	req := newRequest(t, "")
	if got := canonicalQuery(req.URL); got != "a=1&a=2&z=1" {
		t.Errorf("Expected a=1&a=2&z=1, got %s", got)
	}
	if got := canonicalPath(req.URL); got != "/things/a%20b" {
		t.Errorf("Expected escaped path, got %s", got)
	}
}

func TestMLDSASignAndVerify(t *testing.T) {
	key, err := GenerateMLDSAKey("key-1")
	if err != nil {
		t.Fatal(err)
	}
	rc := testComponents(t)
	req := newRequest(t, "payload")

	identity, err := MLDSAKeyResolver(key).ResolveIdentity(context.Background(), rc, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := NewMLDSA("things").SignHTTPRequest(req, identity, nil, rc, nil); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if req.Header.Get(HeaderKeyID) != "key-1" {
		t.Errorf("Expected key id header key-1, got %s", req.Header.Get(HeaderKeyID))
	}
	if req.Header.Get(HeaderSignature) == "" {
		t.Fatal("Expected signature header")
	}
	if err := VerifyMLDSA(req, "things", key.Public); err != nil {
		t.Errorf("Expected signature to verify, got %v", err)
	}

	other, err := GenerateMLDSAKey("key-2")
	if err != nil {
		t.Fatal(err)
	}
	if err := VerifyMLDSA(req, "things", other.Public); !errors.Is(err, ErrSignatureMismatch) {
		t.Errorf("Expected ErrSignatureMismatch with another key, got %v", err)
	}
}

func TestMLDSARejectsWrongIdentity(t *testing.T) {
	err := NewMLDSA("svc").SignHTTPRequest(newRequest(t, ""), credsIdentity(""), nil, nil, nil)
	if err == nil {
		t.Error("Expected an error for a credentials identity")
	}
}

func TestBearer(t *testing.T) {
	scheme := BearerAuthScheme()
	if scheme.SchemeID() != "http-bearer-auth" {
		t.Errorf("Expected http-bearer-auth, got %s", scheme.SchemeID())
	}

	identity, err := StaticTokenResolver(Token{Value: "abc"}).ResolveIdentity(context.Background(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	req := newRequest(t, "")
	if err := scheme.Signer().SignHTTPRequest(req, identity, nil, nil, nil); err != nil {
		t.Fatal(err)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer abc" {
		t.Errorf("Expected Bearer abc, got %s", got)
	}

	if _, err := StaticTokenResolver(Token{}).ResolveIdentity(context.Background(), nil, nil); err == nil {
		t.Error("Expected an error for an empty token")
	}
	if err := (Bearer{}).SignHTTPRequest(req, credsIdentity(""), nil, nil, nil); err == nil {
		t.Error("Expected an error for a non-token identity")
	}
	if strings.Contains(Token{Value: "abc"}.String(), "abc") {
		t.Error("Expected token String to redact the value")
	}
}
