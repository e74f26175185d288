package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
	"github.com/kirillkom/evidence-rag/internal/core/ports"
)

const (
	defaultDeleteBatchSize = 100
	defaultEmbedBatchSize  = 32
)

type SyncOptions struct {
	DeleteBatchSize int
	EmbedBatchSize  int
	Workers         int
}

func (o SyncOptions) withDefaults() SyncOptions {
	if o.DeleteBatchSize <= 0 {
		o.DeleteBatchSize = defaultDeleteBatchSize
	}
	if o.EmbedBatchSize <= 0 {
		o.EmbedBatchSize = defaultEmbedBatchSize
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
	return o
}

type SyncUseCase struct {
	sources   map[string]ports.SourceEnumerator
	store     ports.SyncStateStore
	detector  *ChangeDetector
	extractor ports.TextExtractor
	chunker   ports.Chunker
	embedder  ports.Embedder
	vectorDB  ports.VectorStore
	opts      SyncOptions
	locks     *KeyedLocker
	logger    *slog.Logger
	now       func() time.Time
}

func NewSyncUseCase(
	sources map[string]ports.SourceEnumerator,
	store ports.SyncStateStore,
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	embedder ports.Embedder,
	vectorDB ports.VectorStore,
	opts SyncOptions,
	logger *slog.Logger,
) *SyncUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncUseCase{
		sources:   sources,
		store:     store,
		detector:  NewChangeDetector(store, logger),
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		vectorDB:  vectorDB,
		opts:      opts.withDefaults(),
		locks:     NewKeyedLocker(),
		logger:    logger,
		now:       time.Now,
	}
}

// SourceIDs returns the registered source identities in sorted order.
func (uc *SyncUseCase) SourceIDs() []string {
	ids := make([]string, 0, len(uc.sources))
	for id := range uc.sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SyncSource enumerates, detects and applies changes for one source, then
// commits the resulting state in one write. Concurrent runs for the same
// source are rejected with ErrSyncInProgress.
func (uc *SyncUseCase) SyncSource(ctx context.Context, sourceID string) (*domain.SyncReport, error) {
	enumerator, ok := uc.sources[sourceID]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "sync source", fmt.Errorf("unknown source %q", sourceID))
	}

	unlock, ok := uc.locks.TryLock(sourceID)
	if !ok {
		return nil, domain.WrapError(domain.ErrSyncInProgress, "sync source", fmt.Errorf("source %q", sourceID))
	}
	defer unlock()

	return uc.syncLocked(ctx, sourceID, enumerator)
}

// SyncSourceWait is SyncSource for queued and scheduled triggers: it waits
// for a running sync of the same source to finish instead of failing.
func (uc *SyncUseCase) SyncSourceWait(ctx context.Context, sourceID string) (*domain.SyncReport, error) {
	enumerator, ok := uc.sources[sourceID]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "sync source", fmt.Errorf("unknown source %q", sourceID))
	}

	unlock, err := uc.locks.Lock(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("wait for sync of %s: %w", sourceID, err)
	}
	defer unlock()

	return uc.syncLocked(ctx, sourceID, enumerator)
}

func (uc *SyncUseCase) syncLocked(
	ctx context.Context,
	sourceID string,
	enumerator ports.SourceEnumerator,
) (*domain.SyncReport, error) {
	started := uc.now()
	snapshot, err := enumerator.Enumerate(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate source %s: %w", sourceID, err)
	}

	items := make(map[string]domain.SourceItem, len(snapshot.Items))
	for _, item := range snapshot.Items {
		if item.Path == "" {
			continue
		}
		items[item.Path] = item
	}
	unique := make([]domain.SourceItem, 0, len(items))
	for _, item := range items {
		unique = append(unique, item)
	}

	partition, prior, degraded := uc.detector.Detect(ctx, sourceID, unique)
	stats, next := uc.Apply(ctx, sourceID, prior, partition, items)
	next.Revision = snapshot.Revision

	report := &domain.SyncReport{
		SourceID:  sourceID,
		Revision:  snapshot.Revision,
		Partition: partition,
		Stats:     stats,
		Degraded:  degraded,
	}

	if degraded {
		// Keep the stored record: its vector ids are the only way a later
		// run can find and delete what this run could not see.
		report.Duration = uc.now().Sub(started)
		uc.logger.Warn("sync_state_not_committed",
			"source_id", sourceID,
			"revision", snapshot.Revision,
			"vectors_upserted", stats.VectorsUpserted,
			"duration_ms", report.Duration.Milliseconds(),
		)
		return report, nil
	}

	if prior != nil && partition.IsEmpty() && prior.Revision == snapshot.Revision {
		report.Duration = uc.now().Sub(started)
		uc.logger.Info("sync_noop", "source_id", sourceID, "revision", snapshot.Revision)
		return report, nil
	}

	next.UpdatedAt = uc.now().UTC()
	if err := uc.store.Save(ctx, next); err != nil {
		return report, fmt.Errorf("save sync state %s: %w", sourceID, err)
	}

	report.Duration = uc.now().Sub(started)
	uc.logger.Info("sync_completed",
		"source_id", sourceID,
		"revision", snapshot.Revision,
		"added", stats.Added,
		"modified", stats.Modified,
		"deleted", stats.Deleted,
		"unchanged", stats.Unchanged,
		"vectors_upserted", stats.VectorsUpserted,
		"vectors_deleted", stats.VectorsDeleted,
		"errors", len(stats.Errors),
		"duration_ms", report.Duration.Milliseconds(),
	)
	return report, nil
}

// SourceStatus returns the committed state of a registered source.
func (uc *SyncUseCase) SourceStatus(ctx context.Context, sourceID string) (*domain.RepositorySyncState, error) {
	if _, ok := uc.sources[sourceID]; !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "source status", fmt.Errorf("unknown source %q", sourceID))
	}
	state, err := uc.store.Load(ctx, sourceID)
	if domain.IsKind(err, domain.ErrNotFound) {
		// Registered but never synced.
		return &domain.RepositorySyncState{SourceID: sourceID, Files: map[string]domain.FileRecord{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load sync state %s: %w", sourceID, err)
	}
	return state, nil
}

type pendingDelete struct {
	id   string
	path string
}

type indexOutcome struct {
	path   string
	record *domain.FileRecord
	err    *domain.SyncItemError
}

// Apply executes a change partition and returns the next state. Vectors of
// deleted and modified paths are removed before any replacement is written;
// per-item failures are collected in the stats and never abort the run.
func (uc *SyncUseCase) Apply(
	ctx context.Context,
	sourceID string,
	prior *domain.RepositorySyncState,
	partition domain.ChangePartition,
	items map[string]domain.SourceItem,
) (domain.SyncStats, *domain.RepositorySyncState) {
	next := prior.Clone()
	if next == nil {
		next = &domain.RepositorySyncState{SourceID: sourceID, Files: make(map[string]domain.FileRecord)}
	}
	next.SourceID = sourceID

	var stats domain.SyncStats
	stats.Unchanged = len(items) - len(partition.Added) - len(partition.Modified)
	if stats.Unchanged < 0 {
		stats.Unchanged = 0
	}

	failedDeletes := uc.deleteStale(ctx, next, partition, &stats)

	for _, p := range partition.Deleted {
		if _, failed := failedDeletes[p]; failed {
			continue
		}
		delete(next.Files, p)
		stats.Deleted++
	}

	toIndex := make([]string, 0, len(partition.Added)+len(partition.Modified))
	modified := make(map[string]struct{}, len(partition.Modified))
	toIndex = append(toIndex, partition.Added...)
	for _, p := range partition.Modified {
		if _, failed := failedDeletes[p]; failed {
			continue
		}
		modified[p] = struct{}{}
		toIndex = append(toIndex, p)
	}
	sort.Strings(toIndex)

	outcomes := make([]indexOutcome, len(toIndex))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.opts.Workers)
	for i, p := range toIndex {
		g.Go(func() error {
			outcomes[i] = uc.indexItem(gctx, sourceID, items[p])
			return nil
		})
	}
	_ = g.Wait()

	for _, out := range outcomes {
		_, isModified := modified[out.path]
		if out.err != nil {
			stats.Errors = append(stats.Errors, *out.err)
			if isModified {
				// Old vectors are gone; forgetting the record makes the next
				// run re-add the path.
				delete(next.Files, out.path)
			}
			continue
		}
		next.Files[out.path] = *out.record
		stats.VectorsUpserted += len(out.record.VectorIDs)
		if isModified {
			stats.Modified++
		} else {
			stats.Added++
		}
	}

	return stats, next
}

// deleteStale removes the vectors of deleted and modified paths in bounded
// batches. Paths touched by a failed batch keep a record listing exactly the
// IDs that are still present; they are returned so callers skip them.
func (uc *SyncUseCase) deleteStale(
	ctx context.Context,
	next *domain.RepositorySyncState,
	partition domain.ChangePartition,
	stats *domain.SyncStats,
) map[string]struct{} {
	stalePaths := make([]string, 0, len(partition.Deleted)+len(partition.Modified))
	stalePaths = append(stalePaths, partition.Deleted...)
	stalePaths = append(stalePaths, partition.Modified...)
	sort.Strings(stalePaths)

	var pending []pendingDelete
	for _, p := range stalePaths {
		for _, id := range next.Files[p].VectorIDs {
			pending = append(pending, pendingDelete{id: id, path: p})
		}
	}

	removed := make(map[string]struct{}, len(pending))
	failed := make(map[string]struct{})
	batchSize := uc.opts.DeleteBatchSize
	for start := 0; start < len(pending); start += batchSize {
		end := min(start+batchSize, len(pending))
		batch := pending[start:end]
		ids := make([]string, len(batch))
		for i, pd := range batch {
			ids[i] = pd.id
		}

		if err := uc.vectorDB.Delete(ctx, ids); err != nil {
			for _, pd := range batch {
				if _, seen := failed[pd.path]; seen {
					continue
				}
				failed[pd.path] = struct{}{}
				stats.Errors = append(stats.Errors, domain.SyncItemError{
					Path:      pd.path,
					Operation: "delete",
					Error:     err.Error(),
				})
			}
			uc.logger.Warn("sync_delete_batch_failed", "source_id", next.SourceID, "ids", len(ids), "error", err)
			continue
		}
		for _, id := range ids {
			removed[id] = struct{}{}
		}
		stats.VectorsDeleted += len(ids)
	}

	for p := range failed {
		rec := next.Files[p]
		remaining := make([]string, 0, len(rec.VectorIDs))
		for _, id := range rec.VectorIDs {
			if _, ok := removed[id]; !ok {
				remaining = append(remaining, id)
			}
		}
		rec.VectorIDs = remaining
		next.Files[p] = rec
	}
	return failed
}

func (uc *SyncUseCase) indexItem(ctx context.Context, sourceID string, item domain.SourceItem) indexOutcome {
	fail := func(op string, err error) indexOutcome {
		uc.logger.Warn("sync_item_failed", "source_id", sourceID, "path", item.Path, "operation", op, "error", err)
		return indexOutcome{path: item.Path, err: &domain.SyncItemError{Path: item.Path, Operation: op, Error: err.Error()}}
	}

	fingerprint := Fingerprint(item.Content)
	text, err := uc.extractor.Extract(ctx, item.Path, item.Content)
	if err != nil {
		return fail("extract", err)
	}

	chunks := uc.chunker.Split(text)
	vectors, err := uc.embedChunks(ctx, chunks)
	if err != nil {
		return fail("embed", err)
	}

	points := make([]domain.VectorPoint, len(chunks))
	ids := make([]string, len(chunks))
	for i, chunk := range chunks {
		ids[i] = VectorID(sourceID, item.Path, fingerprint, i)
		points[i] = domain.VectorPoint{
			ID:     ids[i],
			Vector: vectors[i],
			Text:   chunk,
			Metadata: domain.NodeMetadata{
				SourceID:    sourceID,
				Path:        item.Path,
				Title:       path.Base(item.Path),
				ChunkIndex:  i,
				Fingerprint: fingerprint,
			},
		}
	}

	if len(points) > 0 {
		if err := uc.vectorDB.Upsert(ctx, points); err != nil {
			if delErr := uc.vectorDB.Delete(ctx, ids); delErr != nil {
				uc.logger.Warn("sync_upsert_cleanup_failed", "source_id", sourceID, "path", item.Path, "error", delErr)
			}
			return fail("upsert", err)
		}
	}

	return indexOutcome{
		path: item.Path,
		record: &domain.FileRecord{
			Path:        item.Path,
			Fingerprint: fingerprint,
			Size:        item.Size,
			ModifiedAt:  item.ModifiedAt,
			VectorIDs:   ids,
			IndexedAt:   uc.now().UTC(),
		},
	}
}

func (uc *SyncUseCase) embedChunks(ctx context.Context, chunks []string) ([][]float32, error) {
	out := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += uc.opts.EmbedBatchSize {
		end := min(start+uc.opts.EmbedBatchSize, len(chunks))
		vectors, err := uc.embedder.Embed(ctx, chunks[start:end])
		if err != nil {
			return nil, err
		}
		if len(vectors) != end-start {
			return nil, domain.WrapError(
				domain.ErrPermanent,
				"embed chunks",
				fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), end-start),
			)
		}
		out = append(out, vectors...)
	}
	return out, nil
}

var errNoSources = errors.New("no sources configured")

// SyncAll runs SyncSource for every registered source and joins the errors.
func (uc *SyncUseCase) SyncAll(ctx context.Context) ([]*domain.SyncReport, error) {
	ids := uc.SourceIDs()
	if len(ids) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "sync all", errNoSources)
	}
	reports := make([]*domain.SyncReport, 0, len(ids))
	var errs []error
	for _, id := range ids {
		report, err := uc.SyncSource(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		reports = append(reports, report)
	}
	return reports, errors.Join(errs...)
}
