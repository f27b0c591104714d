package vault

import (
	"bytes"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFileCredentialSourceToken(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/var/run/token", []byte("  sa-jwt\n"), 0o600))

	source := NewFileCredentialSource(fs, "/var/run/token", discardLogger())

	token, err := source.Token()
	require.NoError(t, err)
	assert.Equal(t, "sa-jwt", token)
}

func TestFileCredentialSourcePicksUpRotation(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/var/run/token", []byte("first"), 0o600))

	source := NewFileCredentialSource(fs, "/var/run/token", discardLogger())

	token, err := source.Token()
	require.NoError(t, err)
	assert.Equal(t, "first", token)

	require.NoError(t, afero.WriteFile(fs, "/var/run/token", []byte("second"), 0o600))

	token, err = source.Token()
	require.NoError(t, err)
	assert.Equal(t, "second", token)
}

func TestFileCredentialSourceErrors(t *testing.T) {
	tests := []struct {
		name     string
		contents *string
	}{
		{name: "missing file", contents: nil},
		{name: "empty file", contents: strPtr("")},
		{name: "whitespace only", contents: strPtr(" \n\t")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			if tt.contents != nil {
				require.NoError(t, afero.WriteFile(fs, "/var/run/token", []byte(*tt.contents), 0o600))
			}

			source := NewFileCredentialSource(fs, "/var/run/token", discardLogger())

			_, err := source.Token()
			assert.Error(t, err)
		})
	}
}

func TestFileCredentialSourceWarnsOnExpiredToken(t *testing.T) {
	claims := jwt.RegisteredClaims{
		Subject:   "system:serviceaccount:vault:vault-unsealer",
		IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/var/run/token", []byte(expired), 0o600))

	var buf bytes.Buffer
	source := NewFileCredentialSource(fs, "/var/run/token", slog.New(slog.NewTextHandler(&buf, nil)))

	// An expired token is still handed out: the server's rejection is the
	// authoritative verdict.
	token, err := source.Token()
	require.NoError(t, err)
	assert.Equal(t, expired, token)
	assert.Contains(t, buf.String(), "expired")
}

func TestFileCredentialSourceToleratesOpaqueToken(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/var/run/token", []byte("opaque-not-a-jwt"), 0o600))

	var buf bytes.Buffer
	source := NewFileCredentialSource(fs, "/var/run/token", slog.New(slog.NewTextHandler(&buf, nil)))

	token, err := source.Token()
	require.NoError(t, err)
	assert.Equal(t, "opaque-not-a-jwt", token)
	assert.Contains(t, buf.String(), "not a parseable JWT")
}

func strPtr(s string) *string { return &s }
