// Package credentials provides access-key credentials and the providers that
// load them, plus the adapter that plugs a provider into the identity cache.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Credentials is an access key pair with an optional session token.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Expires         time.Time
	ProviderName    string
}

// HasExpiry reports whether the credentials expire.
func (c Credentials) HasExpiry() bool {
	return !c.Expires.IsZero()
}

// String never prints the secret or the session token.
func (c Credentials) String() string {
	expiry := "never"
	if c.HasExpiry() {
		expiry = c.Expires.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("Credentials{provider_name: %q, access_key_id: %q, secret_access_key: \"** redacted **\", expires: %s}",
		c.ProviderName, c.AccessKeyID, expiry)
}

// Provider loads credentials.
type Provider interface {
	ProvideCredentials(ctx context.Context) (Credentials, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (Credentials, error)

// ProvideCredentials calls f.
func (f ProviderFunc) ProvideCredentials(ctx context.Context) (Credentials, error) {
	return f(ctx)
}

// ErrorKind tells a caller whether trying another provider makes sense.
type ErrorKind int

const (
	// CredentialsNotLoaded means the provider had nothing to offer; a chain
	// moves on to the next provider.
	CredentialsNotLoaded ErrorKind = iota
	// InvalidConfiguration means the source exists but is malformed.
	InvalidConfiguration
	// ProviderError is any other failure of the source.
	ProviderError
	// ProviderTimedOut means loading took too long.
	ProviderTimedOut
)

func (k ErrorKind) String() string {
	switch k {
	case CredentialsNotLoaded:
		return "credentials not loaded"
	case InvalidConfiguration:
		return "invalid configuration"
	case ProviderError:
		return "provider error"
	case ProviderTimedOut:
		return "provider timed out"
	default:
		return "unknown"
	}
}

// Error is returned by providers.
type Error struct {
	Kind     ErrorKind
	Provider string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Provider == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Provider, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NotLoaded returns a CredentialsNotLoaded error.
func NotLoaded(provider, message string) *Error {
	return &Error{Kind: CredentialsNotLoaded, Provider: provider, Message: message}
}

// IsNotLoaded reports whether err is a CredentialsNotLoaded error.
func IsNotLoaded(err error) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Kind == CredentialsNotLoaded
}

// StaticProvider always returns the same credentials.
type StaticProvider struct {
	Value Credentials
}

// NewStaticProvider returns a provider for a fixed key pair.
func NewStaticProvider(accessKeyID, secretAccessKey, sessionToken string) StaticProvider {
	return StaticProvider{Value: Credentials{
		AccessKeyID:     accessKeyID,
		SecretAccessKey: secretAccessKey,
		SessionToken:    sessionToken,
		ProviderName:    "Static",
	}}
}

// ProvideCredentials returns the static value, or an InvalidConfiguration
// error when the key pair is incomplete.
func (p StaticProvider) ProvideCredentials(context.Context) (Credentials, error) {
	if p.Value.AccessKeyID == "" || p.Value.SecretAccessKey == "" {
		return Credentials{}, &Error{Kind: InvalidConfiguration, Provider: "Static", Message: "access key id and secret access key are required"}
	}
	creds := p.Value
	if creds.ProviderName == "" {
		creds.ProviderName = "Static"
	}
	return creds, nil
}
