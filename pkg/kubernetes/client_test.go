package kubernetes

import (
	"context"
	"io"
	"log/slog"
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func testPod(name, ip string, labels map[string]string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: "vault",
			Labels:    labels,
		},
		Status: corev1.PodStatus{
			PodIP: ip,
		},
	}
}

func TestDiscoverTargets(t *testing.T) {
	clientset := fake.NewSimpleClientset()

	serverLabels := map[string]string{
		"app.kubernetes.io/name": "vault",
		"component":              "server",
	}

	pods := []*corev1.Pod{
		testPod("vault-0", "10.0.0.1", serverLabels),
		testPod("vault-1", "10.0.0.2", serverLabels),
		// Scheduled but no IP assigned yet.
		testPod("vault-2", "", serverLabels),
		// Different workload in the same namespace.
		testPod("vault-agent-injector", "10.0.0.9", map[string]string{
			"app.kubernetes.io/name": "vault-agent-injector",
		}),
	}

	for _, pod := range pods {
		_, err := clientset.CoreV1().Pods("vault").Create(context.Background(), pod, metav1.CreateOptions{})
		if err != nil {
			t.Fatalf("failed to create test pod: %v", err)
		}
	}

	client := NewClientWithInterface(clientset, DiscoveryConfig{
		Namespace:     "vault",
		LabelSelector: "app.kubernetes.io/name=vault,component=server",
		Scheme:        "http",
		Port:          "8200",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	targets, err := client.DiscoverTargets(context.Background())
	if err != nil {
		t.Fatalf("failed to discover targets: %v", err)
	}

	if len(targets) != 2 {
		t.Errorf("expected 2 targets, got %d: %v", len(targets), targets)
	}

	expected := map[string]bool{
		"http://10.0.0.1:8200": true,
		"http://10.0.0.2:8200": true,
	}
	for _, target := range targets {
		if !expected[target] {
			t.Errorf("unexpected target address: %s", target)
		}
	}
}

func TestDiscoverTargetsHTTPSScheme(t *testing.T) {
	clientset := fake.NewSimpleClientset()

	_, err := clientset.CoreV1().Pods("vault").Create(context.Background(),
		testPod("vault-0", "10.0.0.1", map[string]string{"component": "server"}),
		metav1.CreateOptions{})
	if err != nil {
		t.Fatalf("failed to create test pod: %v", err)
	}

	client := NewClientWithInterface(clientset, DiscoveryConfig{
		Namespace:     "vault",
		LabelSelector: "component=server",
		Scheme:        "https",
		Port:          "8200",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	targets, err := client.DiscoverTargets(context.Background())
	if err != nil {
		t.Fatalf("failed to discover targets: %v", err)
	}

	if len(targets) != 1 || targets[0] != "https://10.0.0.1:8200" {
		t.Errorf("expected [https://10.0.0.1:8200], got %v", targets)
	}
}
