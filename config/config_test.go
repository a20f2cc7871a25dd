package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapLookup(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

// clearEnv unsets every variable Load reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()

	for _, key := range []string{EnvBaseURL, EnvToken, EnvSecret, EnvOrigin, EnvReferer, EnvUserAgent, EnvTimeout} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestParse(t *testing.T) {
	t.Run("full document", func(t *testing.T) {
		cfg, err := Parse([]byte(`
base_url: https://example.com/api/
hash_token: token-123
secret_key: s3cr3t
origin: https://shop.example.com
referer: https://shop.example.com/form
user_agent: agent/1.0
timeout: 5s
`))
		require.NoError(t, err)

		assert.Equal(t, Config{
			BaseURL:     "https://example.com/api/",
			BearerToken: "token-123",
			SecretKey:   "s3cr3t",
			Origin:      "https://shop.example.com",
			Referer:     "https://shop.example.com/form",
			UserAgent:   "agent/1.0",
			Timeout:     5 * time.Second,
		}, cfg)
		assert.Equal(t, "https://example.com/api/external/contact/register", cfg.Endpoint())
	})

	t.Run("empty document keeps defaults", func(t *testing.T) {
		cfg, err := Parse(nil)
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("unknown key rejected", func(t *testing.T) {
		_, err := Parse([]byte("hash_tokn: x\n"))
		assert.Error(t, err)
	})

	t.Run("bad duration rejected", func(t *testing.T) {
		_, err := Parse([]byte("timeout: soon\n"))
		assert.Error(t, err)
	})
}

func TestWithEnv(t *testing.T) {
	t.Run("environment overrides file values", func(t *testing.T) {
		base := Config{BaseURL: "https://file.example/api", BearerToken: "file-token", Timeout: time.Second}

		cfg, err := base.WithEnv(mapLookup(map[string]string{
			EnvToken:   "env-token",
			EnvSecret:  "env-secret",
			EnvOrigin:  " https://o.example ",
			EnvTimeout: "250ms",
		}))
		require.NoError(t, err)

		assert.Equal(t, "https://file.example/api", cfg.BaseURL)
		assert.Equal(t, "env-token", cfg.BearerToken)
		assert.Equal(t, "env-secret", cfg.SecretKey)
		assert.Equal(t, "https://o.example", cfg.Origin)
		assert.Empty(t, cfg.Referer)
		assert.Equal(t, 250*time.Millisecond, cfg.Timeout)

		assert.Equal(t, "file-token", base.BearerToken)
	})

	t.Run("credentials are not trimmed", func(t *testing.T) {
		cfg, err := Config{}.WithEnv(mapLookup(map[string]string{
			EnvToken:   " padded-token\t",
			EnvSecret:  "  secret with spaces \n",
			EnvBaseURL: "\thttps://env.example/api\n",
		}))
		require.NoError(t, err)

		assert.Equal(t, " padded-token\t", cfg.BearerToken)
		assert.Equal(t, "  secret with spaces \n", cfg.SecretKey)
		assert.Equal(t, []byte("  secret with spaces \n"), cfg.Credential().SecretKey)
		assert.Equal(t, "https://env.example/api", cfg.BaseURL)
	})

	t.Run("set but empty clears value", func(t *testing.T) {
		cfg, err := Config{Origin: "x"}.WithEnv(mapLookup(map[string]string{EnvOrigin: ""}))
		require.NoError(t, err)
		assert.Empty(t, cfg.Origin)
	})

	t.Run("invalid timeout", func(t *testing.T) {
		_, err := Default().WithEnv(mapLookup(map[string]string{EnvTimeout: "forever"}))
		assert.ErrorIs(t, err, ErrInvalidTimeout)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{name: "valid", cfg: Config{BearerToken: "t"}},
		{name: "missing token", cfg: Config{SecretKey: "s"}, wantErr: ErrMissingToken},
		{name: "negative timeout", cfg: Config{BearerToken: "t", Timeout: -time.Second}, wantErr: ErrInvalidTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}

			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSecretConfigured(t *testing.T) {
	assert.False(t, Config{}.SecretConfigured())
	assert.False(t, Config{SecretKey: PlaceholderSecret}.SecretConfigured())
	assert.True(t, Config{SecretKey: "real"}.SecretConfigured())
}

func TestConversions(t *testing.T) {
	cfg := Config{
		BearerToken: "token-value-123",
		SecretKey:   "s3cr3t",
		Origin:      "https://o.example",
		Referer:     "https://r.example",
		UserAgent:   "ua",
	}

	cred := cfg.Credential()
	assert.Equal(t, "token-value-123", cred.BearerToken)
	assert.Equal(t, []byte("s3cr3t"), cred.SecretKey)

	opts := cfg.RequestOptions()
	assert.Equal(t, "https://o.example", opts.Origin)
	assert.Equal(t, "https://r.example", opts.Referer)
	assert.Equal(t, "ua", opts.UserAgent)

	s := cfg.String()
	assert.NotContains(t, s, "token-value-123")
	assert.NotContains(t, s, "s3cr3t")
}

func TestLoad(t *testing.T) {
	clearEnv(t)

	t.Run("file and environment", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("hash_token: file-token\nsecret_key: file-secret\n"), 0o600))

		t.Setenv(EnvSecret, "env-secret")

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "file-token", cfg.BearerToken)
		assert.Equal(t, "env-secret", cfg.SecretKey)
		assert.Equal(t, DefaultTimeout, cfg.Timeout)
	})

	t.Run("environment only", func(t *testing.T) {
		t.Setenv(EnvToken, "env-token")
		t.Setenv(EnvBaseURL, "https://env.example/api")

		cfg, err := Load("")
		require.NoError(t, err)

		assert.Equal(t, "env-token", cfg.BearerToken)
		assert.Equal(t, "https://env.example/api/external/contact/register", cfg.Endpoint())
	})

	t.Run("missing token fails startup", func(t *testing.T) {
		t.Setenv(EnvToken, "")

		_, err := Load("")
		assert.ErrorIs(t, err, ErrMissingToken)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}
