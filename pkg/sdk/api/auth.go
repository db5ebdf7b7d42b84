package api

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrNoSession is returned when an authenticated call is attempted before a
// valid bearer token has been obtained. Callers are expected to fail fast.
var ErrNoSession = errors.New("api: no valid session")

// tokenRefreshMargin renews the bearer token slightly before expiry so that
// in-flight requests never race the deadline.
const tokenRefreshMargin = 30 * time.Second

// Signer produces per-request Ed25519 signature headers.
type Signer struct {
	priv ed25519.PrivateKey
}

// NewSigner wraps an Ed25519 private key.
func NewSigner(priv ed25519.PrivateKey) (*Signer, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, errors.Errorf("api: bad ed25519 key length %d", len(priv))
	}
	return &Signer{priv: priv}, nil
}

// PublicKey returns the base64 public key the venue identifies us by.
func (s *Signer) PublicKey() string {
	pub := s.priv.Public().(ed25519.PublicKey)
	return base64.StdEncoding.EncodeToString(pub)
}

// Sign signs `<timestamp>\n<method>\n<path>\n<body>` and returns the
// per-request headers the venue verifies.
func (s *Signer) Sign(method, path string, body []byte, ts time.Time) map[string]string {
	stamp := strconv.FormatInt(ts.UnixMilli(), 10)
	payload := stamp + "\n" + method + "\n" + path + "\n" + string(body)
	sig := ed25519.Sign(s.priv, []byte(payload))
	return map[string]string{
		"X-API-Key":   s.PublicKey(),
		"X-Timestamp": stamp,
		"X-Signature": base64.StdEncoding.EncodeToString(sig),
	}
}

// tokenSource exchanges a signed challenge for a bearer token and caches it
// until close to expiry.
type tokenSource struct {
	mu      sync.Mutex
	client  *Client
	token   string
	expires time.Time
}

// Token returns a valid bearer token, refreshing if needed.
func (t *tokenSource) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && time.Until(t.expires) > tokenRefreshMargin {
		return t.token, nil
	}

	var out TokenResponse
	if err := t.client.doSigned(ctx, "POST", "/v1/auth/token", nil, &out); err != nil {
		return "", errors.Wrap(err, "token exchange failed")
	}
	if out.Token == "" {
		return "", ErrNoSession
	}
	t.token = out.Token
	t.expires = time.Unix(out.ExpiresAt, 0)
	return t.token, nil
}

// Authenticated reports whether a usable session exists without forcing a
// refresh. Used by the controller's STARTING check.
func (t *tokenSource) Authenticated() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.token != "" && time.Until(t.expires) > 0
}

func (t *tokenSource) invalidate() {
	t.mu.Lock()
	t.token = ""
	t.expires = time.Time{}
	t.mu.Unlock()
}
