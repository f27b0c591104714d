package unsealer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// DiscoverFunc resolves additional target addresses, typically from pod
// discovery. Nil disables dynamic resolution.
type DiscoverFunc func(ctx context.Context) ([]string, error)

// TargetResolver produces the current target set: the static configured
// addresses unioned with whatever discovery finds. The same resolver feeds
// the poll scheduler and the readiness endpoint, so both always agree on
// which nodes count.
type TargetResolver struct {
	static   []string
	discover DiscoverFunc
	log      *slog.Logger
}

// NewTargetResolver builds a resolver over the static address list and an
// optional discovery source.
func NewTargetResolver(static []string, discover DiscoverFunc, log *slog.Logger) *TargetResolver {
	return &TargetResolver{static: static, discover: discover, log: log}
}

// Resolve returns the deduplicated target set, static addresses first in
// configured order, discovered ones after in sorted order. When discovery
// fails the static set is still returned alongside the error, so callers can
// choose between degrading and refusing.
func (r *TargetResolver) Resolve(ctx context.Context) ([]string, error) {
	targets := make([]string, 0, len(r.static))
	seen := make(map[string]struct{}, len(r.static))
	for _, t := range r.static {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		targets = append(targets, t)
	}

	if r.discover == nil {
		return targets, nil
	}

	discovered, err := r.discover(ctx)
	if err != nil {
		return targets, fmt.Errorf("target discovery: %w", err)
	}

	sort.Strings(discovered)
	for _, t := range discovered {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		targets = append(targets, t)
	}

	r.log.Debug("resolved targets", "static", len(r.static), "discovered", len(discovered), "total", len(targets))
	return targets, nil
}
