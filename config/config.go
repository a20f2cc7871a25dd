// Package config loads the settings the registration client needs: the
// service base URL, the credential pair and the optional Origin/Referer
// headers.
//
// Values come from an optional YAML file and are then overridden by
// environment variables:
//
//	EXTERNAL_BASE_URL     base_url
//	EXTERNAL_HASH_TOKEN   hash_token
//	EXTERNAL_SECRET_KEY   secret_key
//	EXTERNAL_ORIGIN       origin
//	EXTERNAL_REFERER      referer
//	EXTERNAL_USER_AGENT   user_agent
//	EXTERNAL_TIMEOUT      timeout
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vitalvas/contactsig/request"
)

// Environment variable names.
const (
	EnvBaseURL   = "EXTERNAL_BASE_URL"
	EnvToken     = "EXTERNAL_HASH_TOKEN"
	EnvSecret    = "EXTERNAL_SECRET_KEY"
	EnvOrigin    = "EXTERNAL_ORIGIN"
	EnvReferer   = "EXTERNAL_REFERER"
	EnvUserAgent = "EXTERNAL_USER_AGENT"
	EnvTimeout   = "EXTERNAL_TIMEOUT"
)

// PlaceholderSecret is the secret shipped in example configuration. It is
// treated as not configured.
const PlaceholderSecret = "REPLACE_WITH_YOUR_SECRET_KEY"

// DefaultTimeout bounds a single send attempt.
const DefaultTimeout = 30 * time.Second

var (
	// ErrMissingToken is returned by Validate when no bearer token is set.
	ErrMissingToken = errors.New("config: " + EnvToken + " is not set")

	// ErrInvalidTimeout is returned when the timeout is negative or cannot
	// be parsed.
	ErrInvalidTimeout = errors.New("config: invalid timeout")
)

// Config is the client configuration. Build it once at startup and pass it
// by value.
type Config struct {
	BaseURL     string        `yaml:"base_url"`
	BearerToken string        `yaml:"hash_token"`
	SecretKey   string        `yaml:"secret_key"`
	Origin      string        `yaml:"origin"`
	Referer     string        `yaml:"referer"`
	UserAgent   string        `yaml:"user_agent"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		BaseURL: request.DefaultBaseURL,
		Timeout: DefaultTimeout,
	}
}

// Load reads path as YAML when it is non-empty, applies the process
// environment and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading %s: %w", path, err)
		}

		if cfg, err = Parse(data); err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
	}

	cfg, err := cfg.WithEnv(os.LookupEnv)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Parse decodes YAML on top of Default. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

// WithEnv returns a copy of c with every variable that lookup reports as
// set applied on top. The token and secret are taken byte for byte; other
// values are trimmed.
func (c Config) WithEnv(lookup LookupFunc) (Config, error) {
	strs := []struct {
		key  string
		dst  *string
		trim bool
	}{
		{EnvBaseURL, &c.BaseURL, true},
		{EnvToken, &c.BearerToken, false},
		{EnvSecret, &c.SecretKey, false},
		{EnvOrigin, &c.Origin, true},
		{EnvReferer, &c.Referer, true},
		{EnvUserAgent, &c.UserAgent, true},
	}

	for _, s := range strs {
		v, ok := lookup(s.key)
		if !ok {
			continue
		}

		if s.trim {
			v = strings.TrimSpace(v)
		}

		*s.dst = v
	}

	if v, ok := lookup(EnvTimeout); ok && strings.TrimSpace(v) != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s: %w", ErrInvalidTimeout, EnvTimeout, err)
		}

		c.Timeout = d
	}

	return c, nil
}

// Validate checks the settings required at startup.
func (c Config) Validate() error {
	if c.BearerToken == "" {
		return ErrMissingToken
	}

	if c.Timeout < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTimeout, c.Timeout)
	}

	return nil
}

// SecretConfigured reports whether a real secret key is present. Requests
// sent without one fail signature checks; callers should warn.
func (c Config) SecretConfigured() bool {
	return c.SecretKey != "" && c.SecretKey != PlaceholderSecret
}

// Endpoint returns the registration URL.
func (c Config) Endpoint() string {
	return request.Endpoint(c.BaseURL)
}

// Credential returns the credential pair.
func (c Config) Credential() request.Credential {
	return request.Credential{
		BearerToken: c.BearerToken,
		SecretKey:   []byte(c.SecretKey),
	}
}

// RequestOptions returns the optional request headers.
func (c Config) RequestOptions() request.Options {
	return request.Options{
		Origin:    c.Origin,
		Referer:   c.Referer,
		UserAgent: c.UserAgent,
	}
}

// String redacts the credential.
func (c Config) String() string {
	return fmt.Sprintf("Config{BaseURL: %s, Credential: %s, Origin: %q, Referer: %q, Timeout: %s}",
		c.BaseURL, c.Credential(), c.Origin, c.Referer, c.Timeout)
}
