package request

import "fmt"

// Credential is the bearer token and shared secret issued by the remote
// service. Load it once and treat it as read-only; it is safe to share
// between goroutines.
type Credential struct {
	// BearerToken is sent in the Authorization header.
	BearerToken string

	// SecretKey keys the request HMAC. It is never transmitted.
	SecretKey []byte
}

// Validate reports whether the credential can authenticate a request.
func (c Credential) Validate() error {
	if c.BearerToken == "" {
		return ErrMissingToken
	}

	return nil
}

// String redacts both fields so a credential can be logged safely.
func (c Credential) String() string {
	return fmt.Sprintf("Credential{BearerToken: %s, SecretKey: [%d bytes]}", Redact(c.BearerToken), len(c.SecretKey))
}

// redactPrefix is how many leading characters Redact keeps.
const redactPrefix = 6

// Redact keeps a short prefix of s and hides the rest.
func Redact(s string) string {
	if s == "" {
		return `""`
	}

	if len(s) <= redactPrefix {
		return "***"
	}

	return s[:redactPrefix] + "***"
}
