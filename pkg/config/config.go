// Package config defines the process configuration for the auto-unsealer.
// The Config is built once at startup from flags and environment values and
// is passed into components explicitly; nothing reads configuration ambiently
// after that.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Defaults mirror a plain single-cluster deployment: a primary node on
// localhost, the conventional service-account token mount and the usual KV v2
// location for the unseal shares.
const (
	DefaultPrimaryAddr  = "http://127.0.0.1:8200"
	DefaultPollInterval = 10 * time.Second
	DefaultAuthRole     = "vault-unsealer"
	DefaultKeysPath     = "secret/data/vault-unseal-keys"
	DefaultJWTPath      = "/var/run/secrets/kubernetes.io/serviceaccount/token"

	DefaultPodNamespace     = "vault"
	DefaultPodLabelSelector = "app.kubernetes.io/name=vault,component=server"
	DefaultPodScheme        = "http"
	DefaultPodPort          = "8200"

	DefaultListenAddr  = ":8080"
	DefaultMetricsAddr = "127.0.0.1:8090"
)

// Config is the full, read-once configuration of the unsealer process.
type Config struct {
	// PrimaryAddr is the address of the already-unsealed node trusted to
	// serve the unseal key shares.
	PrimaryAddr string
	// Targets are the base addresses of the nodes to keep unsealed.
	Targets []string
	// PollInterval is the pause between two sweeps over all targets.
	PollInterval time.Duration

	// AuthRole is the Kubernetes auth role submitted together with the
	// service-account JWT when logging in to the primary node.
	AuthRole string
	// VaultNamespace scopes the key read on the primary; empty means the
	// root namespace and no namespace header is sent.
	VaultNamespace string
	// KeysPath is the KV v2 location of the unseal key shares, relative to
	// /v1/ on the primary (e.g. "secret/data/vault-unseal-keys").
	KeysPath string
	// JWTPath is the file the service-account JWT is mounted at.
	JWTPath string
	// TLSSkipVerify disables certificate validation on every outbound call.
	TLSSkipVerify bool

	// DiscoverPods enables per-sweep target discovery through the
	// Kubernetes API in addition to the static Targets list.
	DiscoverPods bool
	// PodNamespace, PodLabelSelector, PodScheme and PodPort shape the
	// addresses built from discovered pods: scheme://podIP:port.
	PodNamespace     string
	PodLabelSelector string
	PodScheme        string
	PodPort          string

	// ListenAddr serves /health and /ready; MetricsAddr serves Prometheus
	// metrics. An empty MetricsAddr disables the metrics listener.
	ListenAddr  string
	MetricsAddr string
}

// ParseTargets splits a comma-separated address list, trimming whitespace and
// dropping empty entries, preserving the configured order.
func ParseTargets(raw string) []string {
	var targets []string
	for _, part := range strings.Split(raw, ",") {
		if addr := strings.TrimSpace(part); addr != "" {
			targets = append(targets, addr)
		}
	}
	return targets
}

// Validate reports configuration errors that make the process useless. An
// empty target list is deliberately not one of them: the scheduler stays up
// and warns, so targets can appear later through pod discovery.
func (c *Config) Validate() error {
	if c.PrimaryAddr == "" {
		return errors.New("primary node address must not be empty")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", c.PollInterval)
	}
	if c.AuthRole == "" {
		return errors.New("auth role must not be empty")
	}
	if c.KeysPath == "" {
		return errors.New("unseal keys path must not be empty")
	}
	if c.JWTPath == "" {
		return errors.New("service-account JWT path must not be empty")
	}
	if c.DiscoverPods {
		if c.PodNamespace == "" {
			return errors.New("pod namespace must not be empty when discovery is enabled")
		}
		if c.PodLabelSelector == "" {
			return errors.New("pod label selector must not be empty when discovery is enabled")
		}
		if c.PodScheme != "http" && c.PodScheme != "https" {
			return fmt.Errorf("pod scheme must be http or https, got %q", c.PodScheme)
		}
		if c.PodPort == "" {
			return errors.New("pod port must not be empty when discovery is enabled")
		}
	}
	return nil
}
