package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"wager/internal/metrics"
)

const (
	SweepExpireContests     = "expire_contests"
	SweepAccrueInterest     = "accrue_interest"
	SweepCleanupProofs      = "cleanup_proofs"
	SweepExpirePropositions = "expire_propositions"
	SweepResolveSteals      = "resolve_steals"
)

// SweepFunc processes every due entity as of now and reports how many changed.
type SweepFunc func(ctx context.Context, now time.Time) (int, error)

// Sweeper is the single entry point for time-driven work. The scheduler, the
// CLI, the lambda and the admin API all go through Run.
type Sweeper struct {
	sweeps map[string]SweepFunc
	logger *slog.Logger
	now    func() time.Time
}

func NewSweeper(logger *slog.Logger, matcher *MatcherService, contests *ContestService, proofs *ProofService, steals *StealService, debts *DebtService) *Sweeper {
	return &Sweeper{
		sweeps: map[string]SweepFunc{
			SweepExpireContests:     contests.ExpireOverdueContests,
			SweepAccrueInterest:     debts.AccrueAllInterest,
			SweepCleanupProofs:      proofs.CleanupExpiredProofs,
			SweepExpirePropositions: matcher.ExpireOverduePropositions,
			SweepResolveSteals:      steals.ResolveExpiredSteals,
		},
		logger: logger,
		now:    time.Now,
	}
}

func (s *Sweeper) Names() []string {
	names := make([]string, 0, len(s.sweeps))
	for name := range s.sweeps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Sweeper) Run(ctx context.Context, name string) (int, error) {
	sweep, ok := s.sweeps[name]
	if !ok {
		return 0, fmt.Errorf("sweep %q: %w", name, ErrNotFound)
	}
	started := s.now()
	count, err := sweep(ctx, started)
	metrics.SweepItems.WithLabelValues(name).Add(float64(count))
	if err != nil {
		failures := entityErrors(err)
		metrics.SweepRuns.WithLabelValues(name, "error").Inc()
		metrics.SweepFailures.WithLabelValues(name).Add(float64(len(failures)))
		for _, failure := range failures {
			s.logger.Error("sweep item failed", "sweep", name, "error", failure)
		}
		s.logger.Error("sweep failed", "sweep", name, "processed", count, "failed", len(failures))
		return count, err
	}
	metrics.SweepRuns.WithLabelValues(name, "ok").Inc()
	s.logger.Info("sweep completed", "sweep", name, "processed", count, "took", time.Since(started).String())
	return count, nil
}

// entityErrors splits a joined sweep error into its per-entity parts.
func entityErrors(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}

// RunAll runs every sweep and returns the first error after trying them all.
func (s *Sweeper) RunAll(ctx context.Context) (map[string]int, error) {
	results := make(map[string]int, len(s.sweeps))
	var firstErr error
	for _, name := range s.Names() {
		count, err := s.Run(ctx, name)
		results[name] = count
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return results, firstErr
}
