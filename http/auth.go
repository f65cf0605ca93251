package http

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"net/url"
	"strings"
	"time"

	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

// JWTAuthProvider mints short-lived bearer tokens for facilitators that
// authenticate API access with signed JWTs. It supports ECDSA (ES256) keys
// in PEM form and Ed25519 (EdDSA) keys in base64 form.
type JWTAuthProvider struct {
	keyID  string
	signer jose.Signer
	ttl    time.Duration
}

// NewJWTAuthProvider creates a provider from an API key ID and its private
// key material. PEM-encoded keys are signed with ES256; base64-encoded
// 64-byte keys are treated as Ed25519 and signed with EdDSA.
func NewJWTAuthProvider(keyID, keySecret string) (*JWTAuthProvider, error) {
	if keyID == "" || keySecret == "" {
		return nil, fmt.Errorf("key ID and secret are required")
	}

	var signingKey interface{}
	var algorithm jose.SignatureAlgorithm

	if strings.Contains(keySecret, "BEGIN") {
		block, _ := pem.Decode([]byte(keySecret))
		if block == nil {
			return nil, fmt.Errorf("failed to parse PEM key")
		}
		key, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse EC private key: %w", err)
		}
		signingKey = key
		algorithm = jose.ES256
	} else {
		decoded, err := base64.StdEncoding.DecodeString(keySecret)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 key: %w", err)
		}
		if len(decoded) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("Ed25519 key must be %d bytes, got %d", ed25519.PrivateKeySize, len(decoded))
		}
		signingKey = ed25519.PrivateKey(decoded)
		algorithm = jose.EdDSA
	}

	nonce, err := freshHeaderNonce()
	if err != nil {
		return nil, err
	}

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: algorithm, Key: signingKey},
		(&jose.SignerOptions{}).
			WithType("JWT").
			WithHeader("kid", keyID).
			WithHeader("nonce", nonce),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT signer: %w", err)
	}

	return &JWTAuthProvider{
		keyID:  keyID,
		signer: signer,
		ttl:    2 * time.Minute,
	}, nil
}

type authClaims struct {
	jwt.Claims
	URIs []string `json:"uris"`
}

// GetAuthorizationHeader implements AuthorizationProvider, returning a
// Bearer token bound to the request method and URI.
func (p *JWTAuthProvider) GetAuthorizationHeader(ctx context.Context, method, requestURL string) (string, error) {
	parsed, err := url.Parse(requestURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse request URL: %w", err)
	}

	now := time.Now()
	claims := authClaims{
		Claims: jwt.Claims{
			Subject:   p.keyID,
			Issuer:    "x402",
			NotBefore: jwt.NewNumericDate(now),
			Expiry:    jwt.NewNumericDate(now.Add(p.ttl)),
		},
		URIs: []string{fmt.Sprintf("%s %s%s", method, parsed.Host, parsed.Path)},
	}

	token, err := jwt.Signed(p.signer).Claims(claims).CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}

	return "Bearer " + token, nil
}

// StaticAuthProvider returns a fixed Authorization header value, for
// facilitators authenticated with plain API tokens.
type StaticAuthProvider string

func (s StaticAuthProvider) GetAuthorizationHeader(ctx context.Context, method, requestURL string) (string, error) {
	return string(s), nil
}

func freshHeaderNonce() (string, error) {
	var nonce [16]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return hex.EncodeToString(nonce[:]), nil
}
