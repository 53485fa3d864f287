package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// downloadClaims is the payload bound into a report download token. The
// artifact path travels inside the signed payload, so a token can never be
// replayed against a different job's file.
type downloadClaims struct {
	JobID     string `json:"jid"`
	Path      string `json:"pth"`
	ExpiresAt int64  `json:"exp"`
}

// SignedURLSigner mints and validates report download tokens. Tokens are
// two base64url segments, claims and an HMAC-SHA256 over them, joined by a
// dot.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl}
}

// Generate returns a signed token for the job's stored artifact.
func (s *SignedURLSigner) Generate(jobID, relPath string) (string, time.Time, error) {
	if jobID == "" || relPath == "" {
		return "", time.Time{}, fmt.Errorf("jobID and relPath required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}

	expiresAt := time.Now().Add(s.ttl)
	payload, err := json.Marshal(downloadClaims{JobID: jobID, Path: relPath, ExpiresAt: expiresAt.Unix()})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("encode download claims: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(payload)
	return encoded + "." + s.sign(encoded), expiresAt, nil
}

// Parse validates a token and returns the embedded job and artifact path.
// When allowExpired is true the timestamp check is skipped, which the
// artifact sweeper uses to map stale tokens back to files.
func (s *SignedURLSigner) Parse(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	encoded, signature, ok := strings.Cut(token, ".")
	if !ok || encoded == "" {
		return "", "", time.Time{}, fmt.Errorf("invalid token format")
	}
	if !hmac.Equal([]byte(s.sign(encoded)), []byte(signature)) {
		return "", "", time.Time{}, fmt.Errorf("invalid token signature")
	}

	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("decode download claims: %w", err)
	}
	var claims downloadClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return "", "", time.Time{}, fmt.Errorf("unmarshal download claims: %w", err)
	}

	expiresAt = time.Unix(claims.ExpiresAt, 0)
	if !allowExpired && time.Now().After(expiresAt) {
		return "", "", time.Time{}, fmt.Errorf("token expired")
	}
	return claims.JobID, claims.Path, expiresAt, nil
}

func (s *SignedURLSigner) sign(encoded string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(encoded))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
