package signer

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"

	smithy "github.com/awslabs/smithy-rs-sub000"
	"github.com/awslabs/smithy-rs-sub000/credentials"
)

// HMACAuthSchemeID is the scheme id for HMAC signing.
const HMACAuthSchemeID smithy.AuthSchemeID = "smithy-hmac-sha256"

const hmacAlgorithm = "SMITHY-HMAC-SHA256"

// ErrSignatureMismatch is returned by Verify when a signature does not match.
var ErrSignatureMismatch = errors.New("signature mismatch")

// HMAC signs requests with access-key credentials. The signing key is derived
// per date and service with HKDF-SHA256, so a leaked signature key is only
// valid for one service on one day.
type HMAC struct {
	Service string
}

// NewHMAC returns a signer scoped to service.
func NewHMAC(service string) *HMAC {
	return &HMAC{Service: service}
}

// HMACAuthScheme returns the auth scheme for service.
func HMACAuthScheme(service string) smithy.AuthScheme {
	return smithy.NewAuthScheme(HMACAuthSchemeID, NewHMAC(service))
}

// SignHTTPRequest signs req with the credentials held by identity.
func (h *HMAC) SignHTTPRequest(req *http.Request, identity smithy.Identity, settings smithy.AuthSchemeEndpointConfig, rc *smithy.RuntimeComponents, _ *smithy.ConfigBag) error {
	creds, ok := smithy.IdentityData[credentials.Credentials](identity)
	if !ok {
		return fmt.Errorf("hmac signer: expected credentials identity, got %T", identity.Data())
	}
	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		return errors.New("hmac signer: credentials are incomplete")
	}

	hash, err := payloadHash(req)
	if err != nil {
		return fmt.Errorf("hmac signer: hash payload: %w", err)
	}
	now := signingTime(rc)
	service := signingName(settings, h.Service)
	signed := stamp(req, now, hash, creds.SessionToken)

	signature, err := hmacSignature(creds.SecretAccessKey, service, now, canonicalRequest(req, signed, hash))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		hmacAlgorithm, creds.AccessKeyID, scope(now, service), strings.Join(signed, ";"), signature))
	return nil
}

// Verify recomputes the signature of a request signed by SignHTTPRequest.
func (h *HMAC) Verify(req *http.Request, creds credentials.Credentials) error {
	auth := req.Header.Get("Authorization")
	parsed, err := parseAuthorization(auth)
	if err != nil {
		return err
	}
	now, err := time.Parse(timestampFormat, req.Header.Get(HeaderDate))
	if err != nil {
		return fmt.Errorf("hmac signer: parse %s: %w", HeaderDate, err)
	}
	hash, err := payloadHash(req)
	if err != nil {
		return err
	}
	if hash != req.Header.Get(HeaderContentSHA256) {
		return fmt.Errorf("hmac signer: payload hash: %w", ErrSignatureMismatch)
	}
	service := h.Service
	if parts := strings.Split(parsed.credential, "/"); len(parts) == 3 {
		service = parts[2]
	}

	want, err := hmacSignature(creds.SecretAccessKey, service, now, canonicalRequest(req, parsed.signedHeaders, hash))
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(want), []byte(parsed.signature)) {
		return ErrSignatureMismatch
	}
	return nil
}

func scope(now time.Time, service string) string {
	return now.Format(dateFormat) + "/" + service
}

// deriveKey returns HKDF-SHA256(secret, salt=date, info=service).
func deriveKey(secret, date, service string) ([]byte, error) {
	reader := hkdf.New(sha256.New, []byte(secret), []byte(date), []byte(service))
	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("hmac signer: derive key: %w", err)
	}
	return key, nil
}

func hmacSignature(secret, service string, now time.Time, canonical string) (string, error) {
	key, err := deriveKey(secret, now.Format(dateFormat), service)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(stringToSign(hmacAlgorithm, now, scope(now, service), canonical)))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

type authorization struct {
	credential    string
	signedHeaders []string
	signature     string
}

func parseAuthorization(header string) (authorization, error) {
	rest, ok := strings.CutPrefix(header, hmacAlgorithm+" ")
	if !ok {
		return authorization{}, fmt.Errorf("hmac signer: unexpected authorization %q", header)
	}
	var a authorization
	for _, field := range strings.Split(rest, ", ") {
		k, v, _ := strings.Cut(field, "=")
		switch k {
		case "Credential":
			a.credential = v
		case "SignedHeaders":
			a.signedHeaders = strings.Split(v, ";")
		case "Signature":
			a.signature = v
		}
	}
	if a.credential == "" || a.signature == "" || len(a.signedHeaders) == 0 {
		return authorization{}, fmt.Errorf("hmac signer: incomplete authorization %q", header)
	}
	return a, nil
}

// StaticCredentialsResolver resolves the same key pair every time.
func StaticCredentialsResolver(accessKeyID, secretAccessKey string) smithy.IdentityResolver {
	return smithy.IdentityResolverFunc(func(ctx context.Context, _ *smithy.RuntimeComponents, _ *smithy.ConfigBag) (smithy.Identity, error) {
		creds, err := credentials.NewStaticProvider(accessKeyID, secretAccessKey, "").ProvideCredentials(ctx)
		if err != nil {
			return smithy.Identity{}, err
		}
		return smithy.NewIdentity(creds, time.Time{}), nil
	})
}
