package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/makerbot/gomaker/pkg/ratelimit"
)

var log = logrus.WithField("module", "api")

// Client is the low-level REST client. It signs every request with the
// Ed25519 key and attaches the bearer token once a session exists.
type Client struct {
	rc      *resty.Client
	signer  *Signer
	tokens  *tokenSource
	limiter *ratelimit.TokenBucket // caps mutating calls (place/cancel)
}

// NewClient builds a client for the venue REST endpoint.
// resty picks up HTTP(S)_PROXY from the environment automatically.
func NewClient(baseURL string, signer *Signer) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")

	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(10 * time.Second).
		SetRetryAfter(func(client *resty.Client, resp *resty.Response) (time.Duration, error) {
			// honour Retry-After on 429
			if resp.StatusCode() == http.StatusTooManyRequests {
				if ra := resp.Header().Get("Retry-After"); ra != "" {
					if d, err := time.ParseDuration(ra + "s"); err == nil {
						return d, nil
					}
				}
				return 10 * time.Second, nil
			}
			return 0, nil
		})

	c := &Client{
		rc:     rc,
		signer: signer,
		// venue allows 20 order mutations per second with small bursts
		limiter: ratelimit.NewTokenBucket(10, 20),
	}
	c.tokens = &tokenSource{client: c}
	return c
}

// Authenticated reports whether a live session token is held.
func (c *Client) Authenticated() bool {
	return c.tokens.Authenticated()
}

// Login forces a token exchange up front so the controller can fail fast
// before it starts quoting.
func (c *Client) Login(ctx context.Context) error {
	_, err := c.tokens.Token(ctx)
	return err
}

// Token returns the current bearer token, refreshing it if needed. The
// websocket feed uses it to authenticate the orders channel subscription.
func (c *Client) Token(ctx context.Context) (string, error) {
	return c.tokens.Token(ctx)
}

// doSigned performs a request with signature headers but no bearer token
// (used by the token exchange itself).
func (c *Client) doSigned(ctx context.Context, method, path string, body any, out any) error {
	return c.do(ctx, method, path, body, out, false)
}

// doAuthed performs a request with both signature headers and bearer token.
func (c *Client) doAuthed(ctx context.Context, method, path string, body any, out any) error {
	return c.do(ctx, method, path, body, out, true)
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any, withToken bool) error {
	if method != http.MethodGet && c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return errors.Wrap(err, "rate limit wait")
		}
	}

	var raw []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshal request")
		}
		raw = b
	}

	req := c.rc.R().SetContext(ctx)
	req.SetHeader("Accept", "application/json")
	if raw != nil {
		req.SetHeader("Content-Type", "application/json")
		req.SetBody(raw)
	}
	for k, v := range c.signer.Sign(method, path, raw, time.Now()) {
		req.SetHeader(k, v)
	}
	if withToken {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return err
		}
		req.SetHeader("Authorization", "Bearer "+token)
	}
	if out != nil {
		req.SetResult(out)
	}
	req.SetError(&APIError{})

	var resp *resty.Response
	var err error
	switch method {
	case http.MethodGet:
		resp, err = req.Get(path)
	case http.MethodPost:
		resp, err = req.Post(path)
	case http.MethodDelete:
		resp, err = req.Delete(path)
	default:
		return errors.Errorf("unsupported method %s", method)
	}
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	if resp.IsSuccess() {
		return nil
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		// session expired server-side; next call re-exchanges
		c.tokens.invalidate()
	}
	if apiErr, ok := resp.Error().(*APIError); ok && apiErr.Message != "" {
		log.Debugf("%s %s -> %d %s", method, path, resp.StatusCode(), apiErr.Message)
		return errors.Wrapf(apiErr, "%s %s (%d)", method, path, resp.StatusCode())
	}
	return errors.Errorf("%s %s: http %d: %s", method, path, resp.StatusCode(), resp.String())
}
