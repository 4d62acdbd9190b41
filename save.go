package modelsync

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jward/modelsync/internal/reconcile"
)

// SaveAll renders every file of the scope.
func (e *Engine) SaveAll(ctx context.Context) (reconcile.SaveResult, error) {
	return e.save(ctx, true)
}

// SaveChanged renders only the files owning entity sources changed by
// Update since the last save.
func (e *Engine) SaveChanged(ctx context.Context) (reconcile.SaveResult, error) {
	return e.save(ctx, false)
}

func (e *Engine) save(ctx context.Context, all bool) (res reconcile.SaveResult, err error) {
	ctx, span := e.startSpan(ctx, "modelsync.save")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.Bool("modelsync.save_all", all))

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return res, ErrNotLoaded
	}

	if all {
		res, err = e.rec.SaveAll(ctx, e.state)
	} else {
		pending := e.pending()
		if len(pending) == 0 {
			return res, nil
		}
		res, err = e.rec.SaveAffected(ctx, e.state, pending)
	}
	if err != nil {
		return res, fmt.Errorf("modelsync: save: %w", err)
	}
	clear(e.dirty)

	e.metrics.written.Add(ctx, int64(len(res.Written)))
	e.metrics.deleted.Add(ctx, int64(len(res.Deleted)))
	span.SetAttributes(
		attribute.Int("modelsync.files_written", len(res.Written)),
		attribute.Int("modelsync.files_deleted", len(res.Deleted)),
	)
	e.refreshCache()
	return res, nil
}

// CheckConsistency compares the live registry, the provenance index and
// the partitions with a scan of the disk. It has no side effects.
func (e *Engine) CheckConsistency() reconcile.ConsistencyReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.CheckConsistency(e.state)
}

// Verify renders the partitions in memory and lists the files whose saved
// form would differ from the disk. Components named in volatile are
// ignored.
func (e *Engine) Verify(volatile []string) ([]reconcile.Mismatch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return nil, ErrNotLoaded
	}
	return e.rec.Verify(e.state, volatile)
}
