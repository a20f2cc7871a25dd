// Package outcome maps a registration response to one of a fixed set of
// results.
//
// Every defined response of the remote service is a value, not an error:
//
//	201        Accepted
//	400        ValidationFailed
//	401, 403   Unauthorized
//	422        Conflict (duplicate submission)
//	otherwise  UnexpectedStatus
//
// Classify is pure and total. A body that is not JSON is kept as text so a
// malformed response never prevents classification.
package outcome

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Kind is the semantic class of a response.
type Kind int

const (
	// UnexpectedStatus is any status outside the documented set.
	UnexpectedStatus Kind = iota

	// Accepted means the contact was registered (201).
	Accepted

	// ValidationFailed means the payload was rejected (400).
	ValidationFailed

	// Unauthorized means the token or signature was rejected (401, 403).
	Unauthorized

	// Conflict means the contact was already submitted (422).
	Conflict
)

var kindNames = map[Kind]string{
	UnexpectedStatus: "unexpected_status",
	Accepted:         "accepted",
	ValidationFailed: "validation_failed",
	Unauthorized:     "unauthorized",
	Conflict:         "conflict",
}

// String returns the snake_case name of k.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return fmt.Sprintf("kind(%d)", int(k))
}

// KindOf returns the Kind for an HTTP status code.
func KindOf(status int) Kind {
	switch status {
	case http.StatusCreated:
		return Accepted
	case http.StatusBadRequest:
		return ValidationFailed
	case http.StatusUnauthorized, http.StatusForbidden:
		return Unauthorized
	case http.StatusUnprocessableEntity:
		return Conflict
	default:
		return UnexpectedStatus
	}
}

// Outcome is the classified response.
type Outcome struct {
	Kind Kind

	// StatusCode is the HTTP status the outcome was derived from.
	StatusCode int

	// Data is the decoded JSON body, or the body as a string when it is not
	// valid JSON.
	Data any

	// Raw is the response body as received.
	Raw []byte

	// Header holds the response headers when classified by
	// ClassifyResponse.
	Header http.Header
}

// OK reports whether the contact was accepted.
func (o Outcome) OK() bool { return o.Kind == Accepted }

// Success returns the top-level "success" flag of a JSON object body. The
// second result is false when the body has no boolean "success" field.
func (o Outcome) Success() (bool, bool) {
	obj, ok := o.Data.(map[string]any)
	if !ok {
		return false, false
	}

	v, ok := obj["success"].(bool)

	return v, ok
}

// String summarises the outcome for logs.
func (o Outcome) String() string {
	return fmt.Sprintf("%s (%d)", o.Kind, o.StatusCode)
}

// Classify derives the Outcome for status and body.
func Classify(status int, body []byte) Outcome {
	return Outcome{
		Kind:       KindOf(status),
		StatusCode: status,
		Data:       decodeBody(body),
		Raw:        bytes.Clone(body),
	}
}

// DefaultBodyLimit caps how much of a response body ClassifyResponse reads.
const DefaultBodyLimit = 1 << 20

// ErrBodyTooLarge is returned when a response body exceeds the read limit.
var ErrBodyTooLarge = errors.New("outcome: response body too large")

// ClassifyResponse reads at most limit bytes of resp.Body and classifies the
// response. A limit of zero or less means DefaultBodyLimit. The body is not
// closed.
func ClassifyResponse(resp *http.Response, limit int64) (Outcome, error) {
	if limit <= 0 {
		limit = DefaultBodyLimit
	}

	var body []byte
	if resp.Body != nil {
		data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
		if err != nil {
			return Outcome{}, err
		}

		if int64(len(data)) > limit {
			return Outcome{}, fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, limit)
		}

		body = data
	}

	o := Classify(resp.StatusCode, body)
	o.Header = resp.Header.Clone()

	return o, nil
}

// decodeBody returns the JSON value in body, or body as text. An empty body
// decodes to the empty string.
func decodeBody(body []byte) any {
	trimmed := bytes.TrimSpace(body)
	if !json.Valid(trimmed) {
		return string(body)
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return string(body)
	}

	return v
}
