package signer

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudflare/circl/sign/mldsa/mldsa65"

	smithy "github.com/awslabs/smithy-rs-sub000"
)

// MLDSAAuthSchemeID is the scheme id for ML-DSA-65 key-pair signing.
const MLDSAAuthSchemeID smithy.AuthSchemeID = "smithy-mldsa65"

const mldsaAlgorithm = "SMITHY-MLDSA65"

// MLDSAKey is the identity used by the MLDSA signer.
type MLDSAKey struct {
	ID      string
	Private *mldsa65.PrivateKey
	Public  *mldsa65.PublicKey
}

// GenerateMLDSAKey creates a fresh key pair named id.
func GenerateMLDSAKey(id string) (*MLDSAKey, error) {
	pub, priv, err := mldsa65.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("generate ml-dsa-65 key: %w", err)
	}
	return &MLDSAKey{ID: id, Private: priv, Public: pub}, nil
}

// MLDSA signs the canonical request with an ML-DSA-65 private key.
type MLDSA struct {
	Service string
}

// NewMLDSA returns a signer scoped to service.
func NewMLDSA(service string) *MLDSA {
	return &MLDSA{Service: service}
}

// MLDSAAuthScheme returns the auth scheme for service.
func MLDSAAuthScheme(service string) smithy.AuthScheme {
	return smithy.NewAuthScheme(MLDSAAuthSchemeID, NewMLDSA(service))
}

// MLDSAKeyResolver resolves key as a non-expiring identity.
func MLDSAKeyResolver(key *MLDSAKey) smithy.IdentityResolver {
	return smithy.IdentityResolverFunc(func(context.Context, *smithy.RuntimeComponents, *smithy.ConfigBag) (smithy.Identity, error) {
		return smithy.NewIdentity(key, time.Time{}), nil
	})
}

// SignHTTPRequest signs req and writes the signature and key id headers.
func (m *MLDSA) SignHTTPRequest(req *http.Request, identity smithy.Identity, settings smithy.AuthSchemeEndpointConfig, rc *smithy.RuntimeComponents, _ *smithy.ConfigBag) error {
	key, ok := smithy.IdentityData[*MLDSAKey](identity)
	if !ok || key == nil || key.Private == nil {
		return fmt.Errorf("mldsa signer: expected ML-DSA key identity, got %T", identity.Data())
	}

	hash, err := payloadHash(req)
	if err != nil {
		return fmt.Errorf("mldsa signer: hash payload: %w", err)
	}
	now := signingTime(rc)
	service := signingName(settings, m.Service)
	signed := stamp(req, now, hash, "")
	msg := stringToSign(mldsaAlgorithm, now, scope(now, service), canonicalRequest(req, signed, hash))

	sig := make([]byte, mldsa65.SignatureSize)
	if err := mldsa65.SignTo(key.Private, []byte(msg), nil, false, sig); err != nil {
		return fmt.Errorf("mldsa signer: %w", err)
	}
	req.Header.Set(HeaderKeyID, key.ID)
	req.Header.Set(HeaderSignature, base64.StdEncoding.EncodeToString(sig))
	req.Header.Set("Authorization", fmt.Sprintf("%s KeyId=%s, Scope=%s, SignedHeaders=%s",
		mldsaAlgorithm, key.ID, scope(now, service), strings.Join(signed, ";")))
	return nil
}

// VerifyMLDSA checks a request signed by MLDSA against pub.
func VerifyMLDSA(req *http.Request, service string, pub *mldsa65.PublicKey) error {
	sig, err := base64.StdEncoding.DecodeString(req.Header.Get(HeaderSignature))
	if err != nil {
		return fmt.Errorf("mldsa signer: decode signature: %w", err)
	}
	now, err := time.Parse(timestampFormat, req.Header.Get(HeaderDate))
	if err != nil {
		return fmt.Errorf("mldsa signer: parse %s: %w", HeaderDate, err)
	}
	hash, err := payloadHash(req)
	if err != nil {
		return err
	}
	if hash != req.Header.Get(HeaderContentSHA256) {
		return errors.New("mldsa signer: payload hash mismatch")
	}

	_, rest, _ := strings.Cut(req.Header.Get("Authorization"), "SignedHeaders=")
	if rest == "" {
		return errors.New("mldsa signer: missing signed headers")
	}
	msg := stringToSign(mldsaAlgorithm, now, scope(now, service), canonicalRequest(req, strings.Split(rest, ";"), hash))
	if !mldsa65.Verify(pub, []byte(msg), nil, sig) {
		return ErrSignatureMismatch
	}
	return nil
}
