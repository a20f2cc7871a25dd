package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"

	"github.com/vitalvas/contactsig/canonical"
	"github.com/vitalvas/contactsig/config"
	"github.com/vitalvas/contactsig/request"
	"github.com/vitalvas/contactsig/signature"
)

var (
	// ErrNoBody is returned by Transport for a request without a JSON body.
	ErrNoBody = errors.New("client: request has no body to sign")

	// ErrMethodNotAllowed is returned by Transport for a request that is not
	// a POST.
	ErrMethodNotAllowed = errors.New("client: only POST requests can be signed")
)

type overridesKey struct{}

// WithOverrides returns a context that makes Transport apply overrides to
// requests carrying it.
func WithOverrides(ctx context.Context, overrides request.Overrides) context.Context {
	return context.WithValue(ctx, overridesKey{}, overrides)
}

// OverridesFromContext returns the overrides stored by WithOverrides.
func OverridesFromContext(ctx context.Context) request.Overrides {
	if o, ok := ctx.Value(overridesKey{}).(request.Overrides); ok {
		return o
	}

	return request.Overrides{}
}

// Transport is an http.RoundTripper that signs outgoing JSON requests.
// It lets code that already owns an *http.Client talk to the service
// without going through Client.
//
// Every RoundTrip re-reads the body, re-canonicalizes it and signs it with
// the current time, so a request replayed by an outer retry layer always
// carries a fresh timestamp and signature. The body is sent in its send
// form; the request URL is used as is. Caller headers are copied onto the
// signed request except those the signing sets itself, which always win.
// Methods other than POST are rejected with ErrMethodNotAllowed.
type Transport struct {
	base       http.RoundTripper
	credential request.Credential
	options    request.Options
	clock      signature.Clock
}

// NewTransport returns a signing Transport for cfg that delegates to base.
// When base is nil, a clone of http.DefaultTransport is used.
func NewTransport(base *http.Transport, cfg config.Config, clock signature.Clock) (*Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var rt http.RoundTripper
	if base != nil {
		rt = base
	} else {
		rt = http.DefaultTransport.(*http.Transport).Clone()
	}

	if clock == nil {
		clock = signature.SystemClock
	}

	return &Transport{
		base:       rt,
		credential: cfg.Credential(),
		options:    cfg.RequestOptions(),
		clock:      clock,
	}, nil
}

// RoundTrip signs a copy of req and sends it through the base transport.
// req itself is not modified; its body is consumed and closed.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodPost {
		if req.Body != nil {
			req.Body.Close()
		}

		return nil, fmt.Errorf("%w: %s", ErrMethodNotAllowed, req.Method)
	}

	body, err := readBody(req)
	if err != nil {
		return nil, err
	}

	payload, err := canonical.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", canonical.ErrSerialization, err)
	}

	enc, err := canonical.Canonicalize(payload)
	if err != nil {
		return nil, err
	}

	material, sig, err := signature.Sign(enc.Canonical, t.credential.SecretKey, t.clock)
	if err != nil {
		return nil, err
	}

	ctx := req.Context()

	signed, err := request.Build(req.URL.String(), t.credential, material.Timestamp, sig, enc.Send, t.options, OverridesFromContext(ctx))
	if err != nil {
		return nil, err
	}

	out, err := signed.HTTPRequest(ctx)
	if err != nil {
		return nil, err
	}

	copyHeaders(out.Header, req.Header)

	return t.base.RoundTrip(out)
}

// copyHeaders adds the entries of src whose names dst does not already
// carry. Content-Length is derived from the signed body and never copied.
func copyHeaders(dst, src http.Header) {
	for name, values := range src {
		if _, ok := dst[name]; ok || name == "Content-Length" {
			continue
		}

		dst[name] = slices.Clone(values)
	}
}

// readBody returns the request body, preferring a fresh copy from GetBody
// so the caller's reader is left untouched. The original body is closed.
func readBody(req *http.Request) ([]byte, error) {
	if req.Body != nil {
		defer req.Body.Close()
	}

	var (
		data []byte
		err  error
	)

	switch {
	case req.GetBody != nil:
		var rc io.ReadCloser
		if rc, err = req.GetBody(); err != nil {
			return nil, err
		}
		defer rc.Close()

		data, err = io.ReadAll(rc)
	case req.Body != nil:
		data, err = io.ReadAll(req.Body)
	}

	if err != nil {
		return nil, err
	}

	if len(data) == 0 {
		return nil, ErrNoBody
	}

	return data, nil
}
