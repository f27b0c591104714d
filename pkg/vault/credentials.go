package vault

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/afero"
)

// FileCredentialSource reads a service-account JWT from a mounted file.
//
// The file is read on every Token call so kubelet-rotated tokens are picked
// up without a restart. The filesystem is injected so tests can run against
// an in-memory one.
type FileCredentialSource struct {
	fs   afero.Fs
	path string
	log  *slog.Logger
}

// NewFileCredentialSource returns a source reading the token at path.
func NewFileCredentialSource(fs afero.Fs, path string, log *slog.Logger) *FileCredentialSource {
	return &FileCredentialSource{fs: fs, path: path, log: log}
}

// Token returns the current contents of the token file, trimmed of
// surrounding whitespace. An expired token is still returned; the login
// rejection downstream is the authoritative signal, the warning here just
// makes the cause obvious in the logs.
func (c *FileCredentialSource) Token() (string, error) {
	raw, err := afero.ReadFile(c.fs, c.path)
	if err != nil {
		return "", fmt.Errorf("reading service account token %s: %w", c.path, err)
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", fmt.Errorf("service account token %s is empty", c.path)
	}
	c.warnIfExpired(token)
	return token, nil
}

// warnIfExpired inspects the token's exp claim without verifying the
// signature. Verification belongs to the server; we only hold the token,
// not the key it was signed with.
func (c *FileCredentialSource) warnIfExpired(token string) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		c.log.Warn("service account token is not a parseable JWT", "path", c.path, "err", err)
		return
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return
	}
	if time.Now().After(exp.Time) {
		c.log.Warn("service account token is expired, login will likely be rejected",
			"path", c.path, "expiredAt", exp.Time)
	}
}
