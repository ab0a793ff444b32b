// Package recon settles pending sale tracking entries against the batch
// ledger. Each entry settles in its own transaction; one broken entry never
// blocks the rest of a sweep.
package recon

import (
	"context"
	"errors"
	"fmt"
	"log"

	"stokraja/backend/internal/domain"
	"stokraja/backend/internal/projector"
	"stokraja/backend/internal/store"
)

const DefaultSweepLimit = 500

type Engine struct {
	repo      store.Repository
	projector *projector.Projector
}

func NewEngine(repo store.Repository, proj *projector.Projector) *Engine {
	return &Engine{repo: repo, projector: proj}
}

// Sweep settles pending entries within the given scope. On-demand callers
// must scope by company or store; unbounded sweeps are reserved for the
// scheduler via SweepAll.
func (e *Engine) Sweep(ctx context.Context, scope domain.ReconcileScope) (domain.SweepResult, error) {
	if scope.CompanyID == "" && scope.StoreID == "" {
		return domain.SweepResult{}, fmt.Errorf("%w: reconciliation scope requires company or store", store.ErrInvalidInput)
	}
	return e.sweep(ctx, scope)
}

// SweepAll is the scheduler entry point: every pending entry regardless of
// company, capped at limit per run.
func (e *Engine) SweepAll(ctx context.Context, limit int) (domain.SweepResult, error) {
	return e.sweep(ctx, domain.ReconcileScope{Limit: limit})
}

func (e *Engine) sweep(ctx context.Context, scope domain.ReconcileScope) (domain.SweepResult, error) {
	if scope.Limit < 1 {
		scope.Limit = DefaultSweepLimit
	}

	pending, err := e.repo.ListPendingTracking(ctx, scope.CompanyID, scope.StoreID, scope.Limit)
	if err != nil {
		return domain.SweepResult{}, err
	}

	processed := 0
	for _, entry := range pending {
		if err := ctx.Err(); err != nil {
			return domain.SweepResult{Status: "aborted", Processed: processed}, err
		}

		outcome, err := e.repo.ReconcileEntry(ctx, entry.ID)
		if err != nil {
			// Conflicts are transient: the entry stays pending and the next
			// sweep retries it. Anything else is flagged so operators see it.
			if errors.Is(err, store.ErrConflict) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				log.Printf("[recon] entry %s deferred: %v", entry.ID, err)
				continue
			}
			log.Printf("[recon] WARN: entry %s failed: %v", entry.ID, err)
			if markErr := e.repo.MarkTrackingError(ctx, entry.ID, err.Error()); markErr != nil {
				log.Printf("[recon] WARN: could not mark entry %s as error: %v", entry.ID, markErr)
			}
			continue
		}
		if outcome.Skipped {
			continue
		}

		processed++
		if _, err := e.projector.Recompute(ctx, entry.StoreID, entry.ProductID); err != nil {
			log.Printf("[recon] WARN: summary recompute failed store=%s product=%s: %v", entry.StoreID, entry.ProductID, err)
		}
	}

	return domain.SweepResult{Status: "completed", Processed: processed}, nil
}
