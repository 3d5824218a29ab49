package signer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	smithy "github.com/awslabs/smithy-rs-sub000"
)

// BearerAuthSchemeID is the scheme id for bearer tokens.
const BearerAuthSchemeID smithy.AuthSchemeID = "http-bearer-auth"

// Token is a bearer token identity.
type Token struct {
	Value   string
	Expires time.Time
}

func (t Token) String() string {
	return "Token{** redacted **}"
}

// Bearer writes the token into the Authorization header.
type Bearer struct{}

// BearerAuthScheme pairs the bearer scheme id with Bearer.
func BearerAuthScheme() smithy.AuthScheme {
	return smithy.NewAuthScheme(BearerAuthSchemeID, Bearer{})
}

// StaticTokenResolver resolves token on every call.
func StaticTokenResolver(token Token) smithy.IdentityResolver {
	return smithy.IdentityResolverFunc(func(context.Context, *smithy.RuntimeComponents, *smithy.ConfigBag) (smithy.Identity, error) {
		if token.Value == "" {
			return smithy.Identity{}, errors.New("bearer token is empty")
		}
		return smithy.NewIdentity(token, token.Expires), nil
	})
}

// SignHTTPRequest sets Authorization: Bearer <token>.
func (Bearer) SignHTTPRequest(req *http.Request, identity smithy.Identity, _ smithy.AuthSchemeEndpointConfig, _ *smithy.RuntimeComponents, _ *smithy.ConfigBag) error {
	token, ok := smithy.IdentityData[Token](identity)
	if !ok {
		return fmt.Errorf("bearer signer: expected token identity, got %T", identity.Data())
	}
	if token.Value == "" {
		return errors.New("bearer signer: token is empty")
	}
	req.Header.Set("Authorization", "Bearer "+token.Value)
	return nil
}
