// Package vault talks to the secret-storage nodes: it probes seal state,
// submits unseal key shares to targets, and retrieves fresh key shares from
// the trusted primary node. All wire traffic goes through the official API
// client; errors are classified into the package sentinels.
package vault

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/vault/api"
)

// requestTimeout bounds every outbound call, probes and submissions alike.
const requestTimeout = 30 * time.Second

// Dialer builds per-node clients over one shared HTTP client, so every call
// carries the same TLS policy and timeout and pooled connections are reused
// across sweeps. Clients themselves are cheap and short-lived: one per target
// per reconcile attempt.
type Dialer struct {
	httpClient *http.Client
}

// NewDialer returns a Dialer. With tlsSkipVerify set, certificate validation
// is disabled on every connection the dialer's clients make.
func NewDialer(tlsSkipVerify bool) *Dialer {
	return &Dialer{
		httpClient: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: tlsSkipVerify},
			},
			Timeout: requestTimeout,
		},
	}
}

// Dial returns a client for the node at addr. The client carries no token;
// seal-status and unseal are unauthenticated endpoints.
func (d *Dialer) Dial(addr string) (*Client, error) {
	client, err := api.NewClient(&api.Config{
		Address:    addr,
		HttpClient: d.httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", addr, err)
	}
	// NewClient absorbs ambient VAULT_* environment state: the configured
	// address loses to VAULT_ADDR, and VAULT_TOKEN / VAULT_NAMESPACE are
	// attached to every request. Pin the dialed address and strip the rest;
	// callers set a token or namespace explicitly when a call needs one.
	if err := client.SetAddress(addr); err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", addr, err)
	}
	client.ClearToken()
	client.ClearNamespace()

	return &Client{api: client, addr: addr}, nil
}

// Client issues seal-status probes and unseal submissions against one node.
type Client struct {
	api  *api.Client
	addr string
}

// Addr returns the node base address this client was dialed for.
func (c *Client) Addr() string {
	return c.addr
}

// SealStatus queries the node's seal-status endpoint. It has no side effects
// beyond the read. Connection failures map to ErrUnreachable, error responses
// to ErrProtocol.
func (c *Client) SealStatus(ctx context.Context) (*SealStatus, error) {
	resp, err := c.api.Sys().SealStatusWithContext(ctx)
	if err != nil {
		return nil, classifyNodeErr("seal status", c.addr, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: empty seal status from %s", ErrProtocol, c.addr)
	}
	return newSealStatus(resp), nil
}

// SubmitUnsealKey submits a single key share and returns the node's seal
// state after the submission, which tells the caller whether to keep going.
func (c *Client) SubmitUnsealKey(ctx context.Context, key string) (*SealStatus, error) {
	resp, err := c.api.Sys().UnsealWithContext(ctx, key)
	if err != nil {
		return nil, classifyNodeErr("unseal", c.addr, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: empty unseal response from %s", ErrProtocol, c.addr)
	}
	return newSealStatus(resp), nil
}

// classifyNodeErr separates transport failures from responses the node
// actually produced: the API client wraps the latter in *api.ResponseError.
func classifyNodeErr(op, addr string, err error) error {
	var respErr *api.ResponseError
	if errors.As(err, &respErr) {
		return fmt.Errorf("%w: %s on %s: %v", ErrProtocol, op, addr, err)
	}
	return fmt.Errorf("%w: %s on %s: %v", ErrUnreachable, op, addr, err)
}
