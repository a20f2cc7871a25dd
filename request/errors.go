package request

import "errors"

var (
	// ErrMissingToken is returned when the credential has no bearer token.
	ErrMissingToken = errors.New("request: bearer token must not be empty")

	// ErrInvalidURL is returned when the target URL is not an absolute
	// http or https URL.
	ErrInvalidURL = errors.New("request: invalid target url")

	// ErrInvalidHeader is returned when a header value contains bytes that
	// are not allowed in an HTTP field value.
	ErrInvalidHeader = errors.New("request: invalid header value")
)
