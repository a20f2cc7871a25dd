// Package request assembles the signed HTTP request for the contact
// registration endpoint.
//
// Build takes the output of the signer and a credential and produces an
// immutable SignedRequest. No network I/O happens here; HTTPRequest turns a
// SignedRequest into an *http.Request for whatever transport the caller
// uses.
package request

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/vitalvas/contactsig/signature"
)

// Header names set on every request.
const (
	HeaderAuthorization = "Authorization"
	HeaderTimestamp     = "X-Timestamp"
	HeaderSignature     = "X-Signature"
	HeaderContentType   = "Content-Type"
	HeaderUserAgent     = "User-Agent"
	HeaderOrigin        = "Origin"
	HeaderReferer       = "Referer"
)

const (
	// ContentTypeJSON is the request body media type.
	ContentTypeJSON = "application/json"

	// DefaultUserAgent is sent unless Options.UserAgent is set. The remote
	// edge filter rejects non-browser agents.
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"

	// DefaultBaseURL is the production service root.
	DefaultBaseURL = "https://p.newpeople.pro/api"

	// RegisterPath is the contact registration endpoint below the base URL.
	RegisterPath = "/external/contact/register"
)

// InvalidToken replaces the bearer token when Overrides.UseInvalidToken is
// set.
const InvalidToken = "INVALID_TOKEN"

// InvalidSignature replaces the signature when Overrides.UseInvalidSignature
// is set. It has the length of a real signature.
var InvalidSignature = strings.Repeat("0", signature.Length)

// Endpoint returns the registration URL below baseURL. Trailing slashes on
// baseURL are ignored; an empty baseURL means DefaultBaseURL.
func Endpoint(baseURL string) string {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return strings.TrimRight(baseURL, "/") + RegisterPath
}

// Options holds optional request headers.
type Options struct {
	// Origin is sent as the Origin header when non-empty.
	Origin string

	// Referer is sent as the Referer header when non-empty.
	Referer string

	// UserAgent overrides DefaultUserAgent.
	UserAgent string
}

// Overrides deliberately corrupt the authentication headers so the remote
// service's rejection paths can be exercised. Neither changes the timestamp
// or the body.
type Overrides struct {
	// UseInvalidToken sends InvalidToken instead of the bearer token.
	UseInvalidToken bool

	// UseInvalidSignature sends InvalidSignature instead of the computed
	// signature.
	UseInvalidSignature bool
}

// SignedRequest is one fully assembled POST request. It is immutable; the
// accessors return copies.
type SignedRequest struct {
	url    string
	header http.Header
	body   []byte
}

// Build assembles a SignedRequest for target from the signer output and the
// send form of the body.
func Build(target string, cred Credential, timestamp int64, sig string, body []byte, opts Options, overrides Overrides) (*SignedRequest, error) {
	if err := cred.Validate(); err != nil {
		return nil, err
	}

	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}

	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q must be an absolute http(s) url", ErrInvalidURL, target)
	}

	token := cred.BearerToken
	if overrides.UseInvalidToken {
		token = InvalidToken
	}

	if overrides.UseInvalidSignature {
		sig = InvalidSignature
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	header := make(http.Header, 7)
	header.Set(HeaderAuthorization, "Bearer "+token)
	header.Set(HeaderTimestamp, signature.FormatTimestamp(timestamp))
	header.Set(HeaderSignature, sig)
	header.Set(HeaderContentType, ContentTypeJSON)
	header.Set(HeaderUserAgent, userAgent)

	if opts.Origin != "" {
		header.Set(HeaderOrigin, opts.Origin)
	}

	if opts.Referer != "" {
		header.Set(HeaderReferer, opts.Referer)
	}

	for name, values := range header {
		for _, v := range values {
			if !httpguts.ValidHeaderFieldValue(v) {
				return nil, fmt.Errorf("%w: %s", ErrInvalidHeader, name)
			}
		}
	}

	return &SignedRequest{
		url:    u.String(),
		header: header,
		body:   bytes.Clone(body),
	}, nil
}

// Method is always POST.
func (r *SignedRequest) Method() string { return http.MethodPost }

// URL returns the target URL.
func (r *SignedRequest) URL() string { return r.url }

// Header returns a copy of the request headers.
func (r *SignedRequest) Header() http.Header { return r.header.Clone() }

// Body returns a copy of the request body.
func (r *SignedRequest) Body() []byte { return bytes.Clone(r.body) }

// HTTPRequest returns a new *http.Request carrying r. Each call returns an
// independent request with its own body reader and GetBody set.
func (r *SignedRequest) HTTPRequest(ctx context.Context) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(r.body))
	if err != nil {
		return nil, err
	}

	req.Header = r.header.Clone()

	return req, nil
}
