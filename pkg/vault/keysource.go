package vault

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// loginPath is the Kubernetes auth endpoint on the primary node, relative to
// /v1/ like every logical path.
const loginPath = "auth/kubernetes/login"

// CredentialSource supplies the short-lived identity token submitted on
// login. Implementations must return the freshest token available; the key
// source never caches it.
type CredentialSource interface {
	Token() (string, error)
}

// KeySourceConfig locates the unseal key shares on the primary node.
type KeySourceConfig struct {
	// PrimaryAddr is the base address of the trusted, already-unsealed node.
	PrimaryAddr string
	// AuthRole is the Kubernetes auth role the identity token logs in as.
	AuthRole string
	// Namespace scopes the key read; empty sends no namespace header.
	Namespace string
	// KeysPath is the KV v2 path holding the shares, e.g.
	// "secret/data/vault-unseal-keys".
	KeysPath string
}

// KeySource fetches the unseal key share collection from the primary node.
//
// Every FetchUnsealKeys call performs a full fresh login + read: shares may
// be rotated at any time and stale key material must not be trusted, so
// neither the session token nor the shares are ever cached. The token lives
// exactly as long as the call and is discarded with the client.
type KeySource struct {
	cfg    KeySourceConfig
	dialer *Dialer
	creds  CredentialSource
}

// NewKeySource wires a key source against the primary node.
func NewKeySource(cfg KeySourceConfig, dialer *Dialer, creds CredentialSource) *KeySource {
	return &KeySource{cfg: cfg, dialer: dialer, creds: creds}
}

// FetchUnsealKeys logs in to the primary with the identity token and the
// configured role, then reads the share collection from the configured KV v2
// path. Share values are returned ordered by share name.
//
// The KV payload arrives as a JSON object, which carries no order on the
// wire; sorting by share name (key1, key2, ...) restores the order the
// operator wrote the shares in. Digit runs in names compare numerically, so
// key10 follows key9. Callers must preserve this order.
func (s *KeySource) FetchUnsealKeys(ctx context.Context) ([]string, error) {
	client, err := s.dialer.Dial(s.cfg.PrimaryAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuth, err)
	}

	token, err := s.login(ctx, client)
	if err != nil {
		return nil, err
	}
	client.api.SetToken(token)
	// The namespace header applies to the key read only; the login above went
	// out before it was set.
	if s.cfg.Namespace != "" {
		client.api.SetNamespace(s.cfg.Namespace)
	}

	secret, err := client.api.Logical().ReadWithContext(ctx, s.cfg.KeysPath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrKeyFetch, s.cfg.KeysPath, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("%w: no secret at %s", ErrKeyFetch, s.cfg.KeysPath)
	}

	// KV v2 nests the stored fields one level down under "data".
	inner, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a versioned key-value secret", ErrKeyFetch, s.cfg.KeysPath)
	}

	names := make([]string, 0, len(inner))
	for name := range inner {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return naturalLess(names[i], names[j]) })

	keys := make([]string, 0, len(names))
	for _, name := range names {
		share, ok := inner[name].(string)
		if !ok {
			return nil, fmt.Errorf("%w: share %q at %s is not a string", ErrKeyFetch, name, s.cfg.KeysPath)
		}
		keys = append(keys, share)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: %s holds no shares", ErrKeyFetch, s.cfg.KeysPath)
	}

	return keys, nil
}

// login exchanges the identity token for a primary-node session token. One
// network round trip, no retry; the caller decides whether to try again.
func (s *KeySource) login(ctx context.Context, client *Client) (string, error) {
	jwt, err := s.creds.Token()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuth, err)
	}

	secret, err := client.api.Logical().WriteWithContext(ctx, loginPath, map[string]interface{}{
		"jwt":  jwt,
		"role": s.cfg.AuthRole,
	})
	if err != nil {
		return "", fmt.Errorf("%w: login as role %q: %v", ErrAuth, s.cfg.AuthRole, err)
	}
	if secret == nil || secret.Auth == nil || secret.Auth.ClientToken == "" {
		return "", fmt.Errorf("%w: login response carries no client token", ErrAuth)
	}

	return secret.Auth.ClientToken, nil
}

// naturalLess orders share names with embedded digit runs compared by numeric
// value, so key10 sorts after key9 rather than after key1. Names that differ
// only in leading zeros fall back to lexical order.
func naturalLess(a, b string) bool {
	x, y := a, b
	for len(x) > 0 && len(y) > 0 {
		if isDigit(x[0]) && isDigit(y[0]) {
			xRun, xRest := leadingDigits(x)
			yRun, yRest := leadingDigits(y)
			if c := compareDigitRuns(xRun, yRun); c != 0 {
				return c < 0
			}
			x, y = xRest, yRest
			continue
		}
		if x[0] != y[0] {
			return x[0] < y[0]
		}
		x, y = x[1:], y[1:]
	}
	if len(x) != len(y) {
		return len(x) < len(y)
	}
	return a < b
}

func leadingDigits(s string) (run, rest string) {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return s[:i], s[i:]
}

// compareDigitRuns compares two digit strings by numeric value without
// parsing them, so run length is unbounded.
func compareDigitRuns(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		return len(a) - len(b)
	}
	return strings.Compare(a, b)
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }
