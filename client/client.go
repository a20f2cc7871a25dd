// Package client runs the full signed registration pipeline: canonicalize
// the payload, sign it with a fresh timestamp, assemble the request, send it
// and classify the response.
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	c, err := client.New(cfg, client.WithObserver(client.NewLogObserver(nil)))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := c.RegisterContact(ctx, client.Contact{
//	    Phone:     "+79001112233",
//	    OSConsent: true,
//	}, request.Overrides{})
//
// Every defined response of the service comes back as an outcome.Outcome;
// only malformed payloads, a missing secret and transport failures are
// errors. A Client is safe for concurrent use.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vitalvas/contactsig/canonical"
	"github.com/vitalvas/contactsig/config"
	"github.com/vitalvas/contactsig/outcome"
	"github.com/vitalvas/contactsig/request"
	"github.com/vitalvas/contactsig/signature"
)

// Client sends signed registration requests. All fields are fixed at
// construction.
type Client struct {
	endpoint    string
	credential  request.Credential
	options     request.Options
	timeout     time.Duration
	httpClient  *http.Client
	clock       signature.Clock
	observer    Observer
	maxAttempts int
	backoff     time.Duration
	bodyLimit   int64
	attemptID   func() string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sends requests through hc instead of a client built on a
// clone of http.DefaultTransport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTransport builds the HTTP client on base. Configure base for proxy,
// TLS and connection pool settings.
func WithTransport(base *http.Transport) Option {
	return func(c *Client) { c.httpClient = newHTTPClient(base) }
}

// WithClock sets the signing clock.
func WithClock(clock signature.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithObserver sets the pipeline observer.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithTimeout bounds each send attempt. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRetry allows up to maxAttempts sends when the transport fails,
// waiting backoff between them. Every retry is signed again.
func WithRetry(maxAttempts int, backoff time.Duration) Option {
	return func(c *Client) {
		c.maxAttempts = max(maxAttempts, 1)
		c.backoff = backoff
	}
}

// WithBodyLimit caps how many response bytes are read.
func WithBodyLimit(n int64) Option {
	return func(c *Client) { c.bodyLimit = n }
}

// WithAttemptID replaces the attempt ID generator.
func WithAttemptID(fn func() string) Option {
	return func(c *Client) { c.attemptID = fn }
}

// New returns a Client for cfg. It fails when cfg does not validate.
func New(cfg config.Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		endpoint:    cfg.Endpoint(),
		credential:  cfg.Credential(),
		options:     cfg.RequestOptions(),
		timeout:     cfg.Timeout,
		clock:       signature.SystemClock,
		observer:    NopObserver{},
		maxAttempts: 1,
		bodyLimit:   outcome.DefaultBodyLimit,
		attemptID:   newAttemptID,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = newHTTPClient(nil)
	}

	if c.clock == nil {
		c.clock = signature.SystemClock
	}

	if c.observer == nil {
		c.observer = NopObserver{}
	}

	if c.attemptID == nil {
		c.attemptID = newAttemptID
	}

	return c, nil
}

// Endpoint returns the registration URL the client posts to.
func (c *Client) Endpoint() string { return c.endpoint }

// RegisterContact sends contact.
func (c *Client) RegisterContact(ctx context.Context, contact Contact, overrides request.Overrides) (outcome.Outcome, error) {
	return c.Register(ctx, contact.Payload(), overrides)
}

// Register sends payload and returns the classified response. payload is
// anything canonical.Canonicalize accepts; use *canonical.Payload to control
// field order.
//
// Transport failures are returned wrapped in ErrTransport after the retry
// budget is spent. Serialization errors and a missing secret are returned
// immediately.
func (c *Client) Register(ctx context.Context, payload any, overrides request.Overrides) (outcome.Outcome, error) {
	var lastErr error

	for n := 1; n <= c.maxAttempts; n++ {
		if n > 1 && c.backoff > 0 {
			timer := time.NewTimer(c.backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return outcome.Outcome{}, errors.Join(lastErr, ctx.Err())
			case <-timer.C:
			}
		}

		result, err := c.attempt(ctx, Attempt{ID: c.attemptID(), Number: n}, payload, overrides)
		if err == nil {
			return result, nil
		}

		if !errors.Is(err, ErrTransport) {
			return outcome.Outcome{}, err
		}

		lastErr = err

		if ctx.Err() != nil {
			break
		}
	}

	return outcome.Outcome{}, lastErr
}

// Prepare runs the pipeline up to the assembled request without sending
// it.
func (c *Client) Prepare(ctx context.Context, payload any, overrides request.Overrides) (*request.SignedRequest, signature.Material, error) {
	return c.prepare(ctx, Attempt{ID: c.attemptID(), Number: 1}, payload, overrides)
}

func (c *Client) prepare(ctx context.Context, attempt Attempt, payload any, overrides request.Overrides) (*request.SignedRequest, signature.Material, error) {
	enc, err := canonical.Canonicalize(payload)
	if err != nil {
		return nil, signature.Material{}, err
	}

	c.observer.PreSign(ctx, attempt, enc)

	material, sig, err := signature.Sign(enc.Canonical, c.credential.SecretKey, c.clock)
	if err != nil {
		return nil, signature.Material{}, err
	}

	signed, err := request.Build(c.endpoint, c.credential, material.Timestamp, sig, enc.Send, c.options, overrides)
	if err != nil {
		return nil, signature.Material{}, err
	}

	return signed, material, nil
}

func (c *Client) attempt(ctx context.Context, attempt Attempt, payload any, overrides request.Overrides) (outcome.Outcome, error) {
	signed, material, err := c.prepare(ctx, attempt, payload, overrides)
	if err != nil {
		return outcome.Outcome{}, err
	}

	c.observer.PreSend(ctx, attempt, signed, material)

	result, err := c.send(ctx, signed)
	c.observer.PostResponse(ctx, attempt, result, err)

	return result, err
}

func (c *Client) send(ctx context.Context, signed *request.SignedRequest) (outcome.Outcome, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := signed.HTTPRequest(ctx)
	if err != nil {
		return outcome.Outcome{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return outcome.Outcome{}, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	result, err := outcome.ClassifyResponse(resp, c.bodyLimit)
	if err != nil {
		if errors.Is(err, outcome.ErrBodyTooLarge) {
			return outcome.Outcome{}, err
		}

		return outcome.Outcome{}, fmt.Errorf("%w: reading response: %w", ErrTransport, err)
	}

	return result, nil
}

// newHTTPClient returns a client on base, or on a clone of
// http.DefaultTransport when base is nil. Redirects are not followed: a
// redirected POST would replay the signed headers.
func newHTTPClient(base *http.Transport) *http.Client {
	var rt http.RoundTripper
	if base != nil {
		rt = base
	} else {
		rt = http.DefaultTransport.(*http.Transport).Clone()
	}

	return &http.Client{
		Transport: rt,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func newAttemptID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}
