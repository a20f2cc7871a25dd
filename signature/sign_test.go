package signature

import (
	"bytes"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hexSignature = regexp.MustCompile(`^[0-9a-f]{64}$`)

const (
	goldenBody      = `{"phone":"+79001112233","os_consent":true,"first_name":"Ivan"}`
	goldenSecret    = "s3cr3t"
	goldenTimestamp = 1700000000
	goldenSignature = "1fac651c2f2355dea198f7ca7eb66da608e96cdbf98281da6a7cf47da8c56d67"
)

func TestNewMaterial(t *testing.T) {
	tests := []struct {
		name      string
		timestamp int64
		body      string
		want      string
	}{
		{name: "typical", timestamp: goldenTimestamp, body: goldenBody, want: "1700000000." + goldenBody},
		{name: "zero", timestamp: 0, body: "{}", want: "0.{}"},
		{name: "empty body", timestamp: 42, body: "", want: "42."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMaterial(tt.timestamp, []byte(tt.body))

			assert.Equal(t, tt.timestamp, m.Timestamp)
			assert.Equal(t, tt.body, string(m.CanonicalBody))
			assert.Equal(t, tt.want, string(m.Payload))
		})
	}

	t.Run("body is copied", func(t *testing.T) {
		body := []byte("{}")
		m := NewMaterial(1, body)
		body[0] = 'x'

		assert.Equal(t, "{}", string(m.CanonicalBody))
		assert.Equal(t, "1.{}", string(m.Payload))
	})

	t.Run("header prefix matches signed prefix", func(t *testing.T) {
		m := NewMaterial(goldenTimestamp, []byte(goldenBody))

		assert.Equal(t, "1700000000", FormatTimestamp(goldenTimestamp))
		assert.True(t, bytes.HasPrefix(m.Payload, []byte(FormatTimestamp(m.Timestamp)+".")))
	})
}

func TestSign(t *testing.T) {
	clock := FixedClock(time.Unix(goldenTimestamp, 0))

	t.Run("golden value", func(t *testing.T) {
		m, sig, err := Sign([]byte(goldenBody), []byte(goldenSecret), clock)
		require.NoError(t, err)

		assert.Equal(t, int64(goldenTimestamp), m.Timestamp)
		assert.Equal(t, "1700000000."+goldenBody, string(m.Payload))
		assert.Equal(t, goldenSignature, sig)
	})

	t.Run("unicode body golden value", func(t *testing.T) {
		body := `{"phone":"+79001112233","os_consent":true,"first_name":"Тест","comment":"a<b & c"}`

		_, sig, err := Sign([]byte(body), []byte(goldenSecret), clock)
		require.NoError(t, err)
		assert.Equal(t, "dbc0defdf818eec604e6dcdb9bb564a6f39034ffc887efd9db207a4d16c331b7", sig)
	})

	t.Run("sub-second precision is truncated", func(t *testing.T) {
		m, sig, err := Sign([]byte(goldenBody), []byte(goldenSecret), FixedClock(time.Unix(goldenTimestamp, 999_999_999)))
		require.NoError(t, err)

		assert.Equal(t, int64(goldenTimestamp), m.Timestamp)
		assert.Equal(t, goldenSignature, sig)
	})

	t.Run("deterministic", func(t *testing.T) {
		_, first, err := Sign([]byte(goldenBody), []byte(goldenSecret), clock)
		require.NoError(t, err)

		_, second, err := Sign([]byte(goldenBody), []byte(goldenSecret), clock)
		require.NoError(t, err)

		assert.Equal(t, first, second)
	})

	t.Run("lowercase hex of fixed length", func(t *testing.T) {
		_, sig, err := Sign([]byte(goldenBody), []byte(goldenSecret), nil)
		require.NoError(t, err)

		assert.Len(t, sig, Length)
		assert.Regexp(t, hexSignature, sig)
	})

	t.Run("nil clock uses wall clock", func(t *testing.T) {
		before := time.Now().Unix()
		m, _, err := Sign([]byte(goldenBody), []byte(goldenSecret), nil)
		require.NoError(t, err)
		after := time.Now().Unix()

		assert.GreaterOrEqual(t, m.Timestamp, before)
		assert.LessOrEqual(t, m.Timestamp, after)
	})

	t.Run("empty secret", func(t *testing.T) {
		_, _, err := Sign([]byte(goldenBody), nil, clock)
		assert.ErrorIs(t, err, ErrMissingSecret)
	})

	t.Run("time before epoch", func(t *testing.T) {
		_, _, err := Sign([]byte(goldenBody), []byte(goldenSecret), FixedClock(time.Unix(-10, 0)))
		assert.ErrorIs(t, err, ErrInvalidTimestamp)
	})

	t.Run("secret does not appear in output", func(t *testing.T) {
		secret := "very-distinct-secret-value"

		m, sig, err := Sign([]byte(goldenBody), []byte(secret), clock)
		require.NoError(t, err)

		assert.NotContains(t, string(m.Payload), secret)
		assert.NotContains(t, sig, secret)
	})
}

func TestSignSensitivity(t *testing.T) {
	base := NewMaterial(goldenTimestamp, []byte(goldenBody))
	want := Compute(base, []byte(goldenSecret))
	require.Equal(t, goldenSignature, want)

	t.Run("timestamp one second later", func(t *testing.T) {
		got := Compute(NewMaterial(goldenTimestamp+1, []byte(goldenBody)), []byte(goldenSecret))
		assert.Equal(t, "2c3053ac01ecefc9a8dda65720ce9936cd4996ef2cdd8d47f01fe258d9c30c99", got)
		assert.NotEqual(t, want, got)
	})

	t.Run("every single byte flip", func(t *testing.T) {
		body := []byte(goldenBody)
		for i := range body {
			mutated := []byte(goldenBody)
			mutated[i] ^= 0x01

			got := Compute(NewMaterial(goldenTimestamp, mutated), []byte(goldenSecret))
			assert.NotEqual(t, want, got, "byte %d", i)
		}
	})

	t.Run("different secret", func(t *testing.T) {
		assert.NotEqual(t, want, Compute(base, []byte(goldenSecret+"x")))
	})
}

func TestVerify(t *testing.T) {
	m := NewMaterial(goldenTimestamp, []byte(goldenBody))

	tests := []struct {
		name    string
		sig     string
		wantErr error
	}{
		{name: "valid", sig: goldenSignature},
		{name: "all zero", sig: strings.Repeat("0", Length), wantErr: ErrSignatureMismatch},
		{name: "uppercase", sig: strings.ToUpper(goldenSignature), wantErr: ErrSignatureMismatch},
		{name: "too short", sig: goldenSignature[:63], wantErr: ErrMalformedSignature},
		{name: "empty", sig: "", wantErr: ErrMalformedSignature},
		{name: "not hex", sig: strings.Repeat("z", Length), wantErr: ErrMalformedSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(m, []byte(goldenSecret), tt.sig)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}

			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestClockFunc(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	assert.Equal(t, at, FixedClock(at).Now())
	assert.Equal(t, at, ClockFunc(func() time.Time { return at }).Now())
}
