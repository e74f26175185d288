package usecase

import (
	"context"
	"log/slog"
	"sort"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
	"github.com/kirillkom/evidence-rag/internal/core/ports"
)

// DetectChanges partitions the current path->fingerprint set against the
// prior state. Paths are compared by identity, so a path removed and re-added
// with identical content resolves to unchanged.
func DetectChanges(current map[string]string, prior *domain.RepositorySyncState) domain.ChangePartition {
	var part domain.ChangePartition
	if prior == nil || prior.Files == nil {
		for path := range current {
			part.Added = append(part.Added, path)
		}
		sort.Strings(part.Added)
		return part
	}

	for path, fp := range current {
		rec, ok := prior.Files[path]
		switch {
		case !ok:
			part.Added = append(part.Added, path)
		case rec.Fingerprint != fp:
			part.Modified = append(part.Modified, path)
		}
	}
	for path := range prior.Files {
		if _, ok := current[path]; !ok {
			part.Deleted = append(part.Deleted, path)
		}
	}

	sort.Strings(part.Added)
	sort.Strings(part.Modified)
	sort.Strings(part.Deleted)
	return part
}

type ChangeDetector struct {
	store  ports.SyncStateStore
	logger *slog.Logger
}

func NewChangeDetector(store ports.SyncStateStore, logger *slog.Logger) *ChangeDetector {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChangeDetector{store: store, logger: logger}
}

// Detect fingerprints items, loads the prior state and partitions the
// changes. A load failure other than not-found degrades to an empty prior
// (everything added) and reports degraded; the stored state is then unknown
// and must not be overwritten by the caller.
func (d *ChangeDetector) Detect(
	ctx context.Context,
	sourceID string,
	items []domain.SourceItem,
) (partition domain.ChangePartition, prior *domain.RepositorySyncState, degraded bool) {
	current := make(map[string]string, len(items))
	for _, item := range items {
		current[item.Path] = Fingerprint(item.Content)
	}

	prior, err := d.store.Load(ctx, sourceID)
	if err != nil {
		if !domain.IsKind(err, domain.ErrNotFound) {
			d.logger.Warn("sync_state_load_failed",
				"source_id", sourceID,
				"error", err,
			)
			degraded = true
		}
		prior = nil
	}

	return DetectChanges(current, prior), prior, degraded
}
