package vault

import "github.com/hashicorp/vault/api"

// SealStatus is a snapshot of a node's seal state. It is fetched once per
// reconcile attempt and never cached across attempts.
type SealStatus struct {
	// Sealed indicates whether the node is currently sealed.
	// A sealed node cannot process any requests until unsealed.
	Sealed bool `json:"sealed"`

	// Initialized indicates whether the node has been initialized.
	// An uninitialized node has no master key yet and cannot be unsealed.
	Initialized bool `json:"initialized"`

	// Threshold is the number of key shares required to reconstruct the
	// master key. Zero when the node did not report one.
	Threshold int `json:"t"`

	// Progress is the number of shares the node has accepted so far in the
	// current reconstruction attempt.
	Progress int `json:"progress"`
}

func newSealStatus(resp *api.SealStatusResponse) *SealStatus {
	return &SealStatus{
		Sealed:      resp.Sealed,
		Initialized: resp.Initialized,
		Threshold:   resp.T,
		Progress:    resp.Progress,
	}
}
