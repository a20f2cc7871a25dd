package signature

import "errors"

var (
	// ErrMissingSecret is returned when signing is attempted without a
	// secret key.
	ErrMissingSecret = errors.New("signature: secret key must not be empty")

	// ErrInvalidTimestamp is returned when the clock reports a time before
	// the Unix epoch.
	ErrInvalidTimestamp = errors.New("signature: timestamp must not be negative")

	// ErrMalformedSignature is returned when a signature is not a
	// 64-character hex string.
	ErrMalformedSignature = errors.New("signature: malformed signature")

	// ErrSignatureMismatch is returned when a signature does not match the
	// signing material.
	ErrSignatureMismatch = errors.New("signature: signature mismatch")
)
