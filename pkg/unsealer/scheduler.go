package unsealer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/Napuu/quorum-vault-auto-unsealer/pkg/metrics"
	"github.com/Napuu/quorum-vault-auto-unsealer/pkg/vault"
)

// Reconciler drives one target toward unsealed.
type Reconciler interface {
	Reconcile(ctx context.Context, target string) Outcome
}

// SchedulerConfig carries everything a Scheduler needs beyond the reconciler.
type SchedulerConfig struct {
	Interval time.Duration
	Resolver *TargetResolver
	Metrics  *metrics.Metrics
	Log      *slog.Logger
}

// Scheduler sweeps every resolvable target once per interval. At most one
// sweep is in flight at a time: a tick that fires while the previous sweep
// is still running is skipped, so a slow or hung target cannot pile up
// duplicate unseal attempts against its siblings.
type Scheduler struct {
	driver   Reconciler
	interval time.Duration
	resolver *TargetResolver
	metrics  *metrics.Metrics
	log      *slog.Logger

	sweeping atomic.Bool
	wg       sync.WaitGroup
}

// NewScheduler builds the poll loop around driver.
func NewScheduler(driver Reconciler, cfg SchedulerConfig) *Scheduler {
	return &Scheduler{
		driver:   driver,
		interval: cfg.Interval,
		resolver: cfg.Resolver,
		metrics:  cfg.Metrics,
		log:      cfg.Log,
	}
}

// Run sweeps once immediately, then on every tick until ctx is cancelled.
// It returns after any in-flight sweep has finished.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("starting unseal poll loop", "interval", s.interval)

	s.launchSweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.log.Info("unseal poll loop stopped")
			return
		case <-ticker.C:
			s.launchSweep(ctx)
		}
	}
}

// launchSweep starts a sweep goroutine unless one is already running.
func (s *Scheduler) launchSweep(ctx context.Context) {
	if !s.sweeping.CompareAndSwap(false, true) {
		s.log.Warn("previous sweep still running, skipping this cycle")
		s.metrics.SweepsSkippedTotal.Inc()
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.sweeping.Store(false)
		s.RunSweep(ctx)
	}()
}

// RunSweep resolves the current target set and reconciles each target in
// turn. No outcome or error aborts the loop; each target is handled on its
// own.
func (s *Scheduler) RunSweep(ctx context.Context) {
	s.metrics.SweepsTotal.Inc()

	targets, err := s.resolver.Resolve(ctx)
	if err != nil {
		s.log.Error("target discovery failed, sweeping static targets only", "err", err)
	}
	s.metrics.Targets.Set(float64(len(targets)))
	if len(targets) == 0 {
		s.log.Warn("no targets to reconcile, set target addresses or enable pod discovery")
		return
	}

	for _, target := range targets {
		if ctx.Err() != nil {
			return
		}
		s.observe(s.driver.Reconcile(ctx, target))
	}
}

func (s *Scheduler) observe(o Outcome) {
	s.metrics.ReconcileOutcomes.WithLabelValues(string(o.State)).Inc()
	s.metrics.KeySubmissions.Add(float64(o.Submitted))

	log := s.log.With("target", o.Target, "submitted", o.Submitted)
	switch o.State {
	case StateAlreadyUnsealed:
		log.Debug("target already unsealed")
	case StateUnsealed:
		log.Info("target unsealed")
	case StatePartiallySubmitted:
		log.Warn("unseal incomplete, retrying next cycle", "err", o.Err)
	case StateFailed:
		if errors.Is(o.Err, vault.ErrAuth) || errors.Is(o.Err, vault.ErrKeyFetch) {
			s.metrics.KeyFetchFailures.Inc()
		}
		log.Error("reconcile failed", "err", o.Err)
	}
}
