// Package signature computes the HMAC-SHA256 request signature.
//
// The signed message is the decimal Unix timestamp, a single '.', and the
// canonical request body:
//
//	1700000000.{"phone":"+79001112233","os_consent":true}
//
// The signature is the lowercase hex HMAC-SHA256 of that message keyed with
// the shared secret. The secret never appears in the message or the output.
package signature

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// Length is the number of hex characters in a signature.
const Length = sha256.Size * 2

// Material is the input of one signature. Build it fresh for every send
// attempt; it is never reused across requests.
type Material struct {
	// Timestamp is the signing time in seconds since the Unix epoch.
	Timestamp int64

	// CanonicalBody is the canonical request body.
	CanonicalBody []byte

	// Payload is "<Timestamp>.<CanonicalBody>", the exact bytes the HMAC
	// is computed over.
	Payload []byte
}

// NewMaterial assembles signing material for timestamp and canonical. The
// body is copied.
func NewMaterial(timestamp int64, canonical []byte) Material {
	ts := FormatTimestamp(timestamp)

	payload := make([]byte, 0, len(ts)+1+len(canonical))
	payload = append(payload, ts...)
	payload = append(payload, '.')
	payload = append(payload, canonical...)

	return Material{
		Timestamp:     timestamp,
		CanonicalBody: bytes.Clone(canonical),
		Payload:       payload,
	}
}

// FormatTimestamp renders timestamp the way it is signed and sent in the
// X-Timestamp header: decimal seconds with no padding.
func FormatTimestamp(timestamp int64) string {
	return strconv.FormatInt(timestamp, 10)
}

// Sign reads the current time from clock, builds the signing material for
// canonical and returns it together with its hex signature. A nil clock
// means SystemClock.
func Sign(canonical, secret []byte, clock Clock) (Material, string, error) {
	if len(secret) == 0 {
		return Material{}, "", ErrMissingSecret
	}

	if clock == nil {
		clock = SystemClock
	}

	ts := clock.Now().Unix()
	if ts < 0 {
		return Material{}, "", fmt.Errorf("%w: %d", ErrInvalidTimestamp, ts)
	}

	m := NewMaterial(ts, canonical)

	return m, Compute(m, secret), nil
}

// Compute returns the lowercase hex HMAC-SHA256 of m.Payload keyed with
// secret. The same material and secret always produce the same result.
func Compute(m Material, secret []byte) string {
	return hex.EncodeToString(mac(secret, m.Payload))
}

// Verify recomputes the signature for m and compares it with sig in
// constant time. It does not judge timestamp freshness.
func Verify(m Material, secret []byte, sig string) error {
	if len(sig) != Length {
		return fmt.Errorf("%w: want %d hex characters, got %d", ErrMalformedSignature, Length, len(sig))
	}

	if _, err := hex.DecodeString(sig); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedSignature, err)
	}

	if !hmac.Equal([]byte(Compute(m, secret)), []byte(sig)) {
		return ErrSignatureMismatch
	}

	return nil
}

func mac(key, message []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(message)

	return h.Sum(nil)
}
