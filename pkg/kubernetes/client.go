// Package kubernetes resolves unseal targets from cluster pod metadata, so
// the unsealer follows pods as a stateful set scales or reschedules.
package kubernetes

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// DiscoveryConfig shapes the addresses built from discovered pods.
type DiscoveryConfig struct {
	// Namespace to list pods in.
	Namespace string
	// LabelSelector picks the pods that are unseal targets.
	LabelSelector string
	// Scheme and Port complete each pod IP into a base address.
	Scheme string
	Port   string
}

// Client lists cluster pods and turns them into target node addresses.
type Client struct {
	clientset kubernetes.Interface
	cfg       DiscoveryConfig
	log       *slog.Logger
}

// NewClient creates a discovery client using in-cluster configuration,
// falling back to the local kubeconfig when running outside a cluster.
func NewClient(cfg DiscoveryConfig, log *slog.Logger) (*Client, error) {
	restCfg, err := rest.InClusterConfig()
	if err != nil {
		kubeconfig := os.Getenv("KUBECONFIG")
		if kubeconfig == "" {
			if home := os.Getenv("HOME"); home != "" {
				kubeconfig = filepath.Join(home, ".kube", "config")
			}
		}

		restCfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("failed to get kubeconfig: %w", err)
		}
	}

	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes client: %w", err)
	}

	return &Client{clientset: clientset, cfg: cfg, log: log}, nil
}

// NewClientWithInterface creates a discovery client over a provided
// clientset.
func NewClientWithInterface(clientset kubernetes.Interface, cfg DiscoveryConfig, log *slog.Logger) *Client {
	return &Client{clientset: clientset, cfg: cfg, log: log}
}

// DiscoverTargets lists pods matching the configured label selector and
// returns one base address per pod with an assigned IP. Pods still waiting
// for an IP are skipped; they will show up on a later sweep.
func (c *Client) DiscoverTargets(ctx context.Context) ([]string, error) {
	pods, err := c.clientset.CoreV1().Pods(c.cfg.Namespace).List(ctx, metav1.ListOptions{
		LabelSelector: c.cfg.LabelSelector,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods in namespace %s: %w", c.cfg.Namespace, err)
	}

	var targets []string
	for _, pod := range pods.Items {
		if pod.Status.PodIP == "" {
			c.log.Debug("skipping pod without an assigned IP", "pod", pod.Name)
			continue
		}
		addr := fmt.Sprintf("%s://%s", c.cfg.Scheme, net.JoinHostPort(pod.Status.PodIP, c.cfg.Port))
		c.log.Debug("discovered target pod", "pod", pod.Name, "addr", addr)
		targets = append(targets, addr)
	}

	return targets, nil
}
