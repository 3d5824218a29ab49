// Package signer holds request signers for the smithy runtime: an HMAC-SHA256
// signer with HKDF-scoped keys, an ML-DSA-65 key-pair signer and a bearer
// token signer.
package signer

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	smithy "github.com/awslabs/smithy-rs-sub000"
)

const (
	HeaderDate          = "X-Smithy-Date"
	HeaderContentSHA256 = "X-Smithy-Content-Sha256"
	HeaderSecurityToken = "X-Smithy-Security-Token"
	HeaderSignature     = "X-Smithy-Signature"
	HeaderKeyID         = "X-Smithy-Key-Id"

	timestampFormat = "20060102T150405Z"
	dateFormat      = "20060102"
)

var emptyPayloadHash = hashHex(nil)

func hashHex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// signingTime reads the clock from the runtime components so tests with a
// manual time source produce stable signatures.
func signingTime(rc *smithy.RuntimeComponents) time.Time {
	if rc != nil && rc.TimeSource() != nil {
		return rc.TimeSource().Now().UTC()
	}
	return time.Now().UTC()
}

// payloadHash hashes the request body and leaves the body readable again.
func payloadHash(req *http.Request) (string, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return emptyPayloadHash, nil
	}
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return "", err
		}
		defer body.Close()
		data, err := io.ReadAll(body)
		if err != nil {
			return "", err
		}
		return hashHex(data), nil
	}

	data, err := io.ReadAll(req.Body)
	if err != nil {
		return "", err
	}
	_ = req.Body.Close()
	req.Body = io.NopCloser(bytes.NewReader(data))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return hashHex(data), nil
}

// stamp writes the date and payload hash headers and returns the signed
// header names in canonical order.
func stamp(req *http.Request, now time.Time, hash, sessionToken string) []string {
	req.Header.Set(HeaderDate, now.Format(timestampFormat))
	req.Header.Set(HeaderContentSHA256, hash)
	if sessionToken != "" {
		req.Header.Set(HeaderSecurityToken, sessionToken)
	}

	names := []string{"host", strings.ToLower(HeaderDate), strings.ToLower(HeaderContentSHA256)}
	if sessionToken != "" {
		names = append(names, strings.ToLower(HeaderSecurityToken))
	}
	if req.Header.Get("Content-Type") != "" {
		names = append(names, "content-type")
	}
	sort.Strings(names)
	return names
}

func canonicalRequest(req *http.Request, signed []string, hash string) string {
	var b strings.Builder
	b.WriteString(req.Method)
	b.WriteByte('\n')
	b.WriteString(canonicalPath(req.URL))
	b.WriteByte('\n')
	b.WriteString(canonicalQuery(req.URL))
	b.WriteByte('\n')
	for _, name := range signed {
		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(headerValue(req, name))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.WriteString(strings.Join(signed, ";"))
	b.WriteByte('\n')
	b.WriteString(hash)
	return b.String()
}

func canonicalPath(u *url.URL) string {
	p := u.EscapedPath()
	if p == "" {
		return "/"
	}
	return p
}

func canonicalQuery(u *url.URL) string {
	values := u.Query()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		vs := append([]string(nil), values[k]...)
		sort.Strings(vs)
		for _, v := range vs {
			parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
		}
	}
	return strings.Join(parts, "&")
}

func headerValue(req *http.Request, name string) string {
	if name == "host" {
		if req.Host != "" {
			return req.Host
		}
		return req.URL.Host
	}
	values := req.Header.Values(name)
	trimmed := make([]string, len(values))
	for i, v := range values {
		trimmed[i] = strings.Join(strings.Fields(v), " ")
	}
	return strings.Join(trimmed, ",")
}

func stringToSign(algorithm string, now time.Time, scope, canonical string) string {
	return strings.Join([]string{
		algorithm,
		now.Format(timestampFormat),
		scope,
		hashHex([]byte(canonical)),
	}, "\n")
}

// signingName lets an endpoint override the service name used in the scope.
func signingName(settings smithy.AuthSchemeEndpointConfig, fallback string) string {
	if name, ok := settings["signingName"].(string); ok && name != "" {
		return name
	}
	return fallback
}
