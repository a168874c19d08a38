// Package blob holds the presigned-URL collaborator contract. Real object
// storage (S3 or compatible) presigns on its own side; this package only
// defines what the core consumes, plus a local HMAC presigner so the
// service runs end to end without cloud credentials.
package blob

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// PresignedURL is a time-limited URL for one object operation.
type PresignedURL struct {
	URL       string
	ExpiresAt time.Time
	Method    string
}

// Presigner mints time-limited object URLs.
type Presigner interface {
	PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (PresignedURL, error)
	PresignPut(ctx context.Context, bucket, key, contentType string, ttl time.Duration) (PresignedURL, error)
}

// LocalPresigner signs URLs against a shared secret for development runs. A
// gateway holding the same secret can verify them with VerifyURL.
type LocalPresigner struct {
	baseURL string
	secret  []byte
	now     func() time.Time
}

// NewLocalPresigner builds a presigner rooted at baseURL.
func NewLocalPresigner(baseURL, secret string) (*LocalPresigner, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("blob: base URL is required")
	}
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("blob: signing secret is required")
	}
	return &LocalPresigner{baseURL: baseURL, secret: []byte(secret), now: time.Now}, nil
}

// WithNow overrides the clock. Test hook.
func (p *LocalPresigner) WithNow(fn func() time.Time) *LocalPresigner {
	if fn != nil {
		p.now = fn
	}
	return p
}

func (p *LocalPresigner) PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (PresignedURL, error) {
	return p.presign("GET", bucket, key, ttl)
}

func (p *LocalPresigner) PresignPut(ctx context.Context, bucket, key, contentType string, ttl time.Duration) (PresignedURL, error) {
	return p.presign("PUT", bucket, key, ttl)
}

func (p *LocalPresigner) presign(method, bucket, key string, ttl time.Duration) (PresignedURL, error) {
	if bucket == "" || key == "" {
		return PresignedURL{}, errors.New("blob: bucket and key are required")
	}
	if ttl <= 0 {
		return PresignedURL{}, errors.New("blob: ttl must be positive")
	}
	exp := p.now().UTC().Add(ttl)
	sig := p.signature(method, bucket, key, exp.Unix())

	q := url.Values{}
	q.Set("expires", strconv.FormatInt(exp.Unix(), 10))
	q.Set("signature", sig)
	u := fmt.Sprintf("%s/%s/%s?%s", p.baseURL, url.PathEscape(bucket), escapeKey(key), q.Encode())
	return PresignedURL{URL: u, ExpiresAt: exp, Method: method}, nil
}

// VerifyURL checks a previously minted signature and deadline.
func (p *LocalPresigner) VerifyURL(method, bucket, key, signature string, expiresUnix int64) bool {
	if p.now().UTC().Unix() >= expiresUnix {
		return false
	}
	expected := p.signature(method, bucket, key, expiresUnix)
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (p *LocalPresigner) signature(method, bucket, key string, expiresUnix int64) string {
	mac := hmac.New(sha256.New, p.secret)
	fmt.Fprintf(mac, "%s\n%s\n%s\n%d", method, bucket, key, expiresUnix)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
