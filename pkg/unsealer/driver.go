// Package unsealer contains the reconcile state machine that drives sealed
// nodes back to unsealed, and the poll scheduler that runs it over every
// configured target.
package unsealer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Napuu/quorum-vault-auto-unsealer/pkg/vault"
)

// ErrPartialUnseal reports a reconcile attempt that ran out of key shares
// while the target was still sealed. Soft: the target keeps its progress
// server-side and the next poll cycle continues from there.
var ErrPartialUnseal = errors.New("key shares exhausted before threshold")

// defaultThreshold caps submissions when a target's status omits the
// threshold.
const defaultThreshold = 3

// State classifies how a reconcile attempt ended.
type State string

const (
	// StateAlreadyUnsealed means the probe found nothing to do.
	StateAlreadyUnsealed State = "already_unsealed"
	// StateUnsealed means this attempt brought the target to unsealed.
	StateUnsealed State = "unsealed"
	// StatePartiallySubmitted means shares ran out with the target still
	// sealed; retried on the next cycle.
	StatePartiallySubmitted State = "partially_submitted"
	// StateFailed means the attempt stopped on an error, recorded in
	// Outcome.Err.
	StateFailed State = "failed"
)

// Outcome reports the result of one reconcile attempt on one target.
type Outcome struct {
	State     State
	Target    string
	Submitted int
	Err       error
}

// Node is the slice of a target node the driver drives: one status probe and
// one share submission at a time.
type Node interface {
	SealStatus(ctx context.Context) (*vault.SealStatus, error)
	SubmitUnsealKey(ctx context.Context, key string) (*vault.SealStatus, error)
}

// DialFunc connects to the node at addr.
type DialFunc func(addr string) (Node, error)

// KeyFetcher supplies a fresh ordered set of unseal key shares.
type KeyFetcher interface {
	FetchUnsealKeys(ctx context.Context) ([]string, error)
}

// Driver reconciles one target at a time. It holds no per-target state;
// every attempt starts from a fresh probe.
type Driver struct {
	keys KeyFetcher
	dial DialFunc
	log  *slog.Logger
}

// NewDriver wires the reconcile state machine.
func NewDriver(keys KeyFetcher, dial DialFunc, log *slog.Logger) *Driver {
	return &Driver{keys: keys, dial: dial, log: log}
}

// Reconcile drives the target toward unsealed and reports how it went. It
// never returns an error: every failure is folded into the outcome so that
// one target cannot abort a sweep.
//
// Key shares are fetched only after a probe confirms the target is sealed
// and initialized, and are submitted strictly in the order the key source
// returned them. The node tracks reconstruction progress between calls, so
// submissions are sequential and stop the moment a response reports
// unsealed.
func (d *Driver) Reconcile(ctx context.Context, target string) Outcome {
	log := d.log.With("target", target)

	node, err := d.dial(target)
	if err != nil {
		return Outcome{State: StateFailed, Target: target, Err: err}
	}

	status, err := node.SealStatus(ctx)
	if err != nil {
		return Outcome{State: StateFailed, Target: target, Err: err}
	}
	if !status.Sealed {
		return Outcome{State: StateAlreadyUnsealed, Target: target}
	}
	if !status.Initialized {
		return Outcome{State: StateFailed, Target: target, Err: vault.ErrUninitialized}
	}

	keys, err := d.keys.FetchUnsealKeys(ctx)
	if err != nil {
		return Outcome{State: StateFailed, Target: target, Err: err}
	}

	required := status.Threshold
	if required <= 0 {
		log.Warn("target did not report an unseal threshold, assuming default",
			"default", defaultThreshold)
		required = defaultThreshold
	}
	budget := required
	if budget > len(keys) {
		budget = len(keys)
	}

	submitted := 0
	for _, key := range keys[:budget] {
		after, err := node.SubmitUnsealKey(ctx, key)
		if err != nil {
			// The node keeps whatever progress the accepted shares made;
			// the next cycle picks up from there.
			return Outcome{State: StateFailed, Target: target, Submitted: submitted, Err: err}
		}
		submitted++
		if !after.Sealed {
			return Outcome{State: StateUnsealed, Target: target, Submitted: submitted}
		}
		log.Info("unseal progress",
			"progress", after.Progress, "threshold", after.Threshold, "submitted", submitted)
	}

	return Outcome{
		State:     StatePartiallySubmitted,
		Target:    target,
		Submitted: submitted,
		Err:       fmt.Errorf("%w: submitted %d, threshold %d", ErrPartialUnseal, submitted, required),
	}
}
