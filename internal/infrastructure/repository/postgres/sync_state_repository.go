package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
)

// SyncStateRepository keeps one row per source with the per-file records
// serialized into a JSONB column.
type SyncStateRepository struct {
	db *sql.DB
}

func NewSyncStateRepository(db *sql.DB) *SyncStateRepository {
	return &SyncStateRepository{db: db}
}

func (r *SyncStateRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS sync_states (
	source_id TEXT PRIMARY KEY,
	revision TEXT NOT NULL DEFAULT '',
	files JSONB NOT NULL DEFAULT '{}'::jsonb,
	file_count INTEGER NOT NULL DEFAULT 0,
	vector_count INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *SyncStateRepository) Load(ctx context.Context, sourceID string) (*domain.RepositorySyncState, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT revision, files, updated_at
FROM sync_states
WHERE source_id = $1
`, sourceID)

	var (
		revision  string
		filesRaw  []byte
		updatedAt time.Time
	)
	if err := row.Scan(&revision, &filesRaw, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "load sync state", fmt.Errorf("source %s", sourceID))
		}
		return nil, domain.WrapError(domain.ErrTransient, "load sync state", err)
	}

	files := make(map[string]domain.FileRecord)
	if len(filesRaw) > 0 {
		if err := json.Unmarshal(filesRaw, &files); err != nil {
			return nil, domain.WrapError(domain.ErrPermanent, "load sync state", fmt.Errorf("decode files: %w", err))
		}
	}
	return &domain.RepositorySyncState{
		SourceID:  sourceID,
		Revision:  revision,
		Files:     files,
		UpdatedAt: updatedAt.UTC(),
	}, nil
}

// Save replaces the stored state of the source in a single statement, so a
// reader never observes a partially written state.
func (r *SyncStateRepository) Save(ctx context.Context, state *domain.RepositorySyncState) error {
	if state == nil || state.SourceID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "save sync state", errors.New("source id is required"))
	}
	files := state.Files
	if files == nil {
		files = map[string]domain.FileRecord{}
	}
	filesRaw, err := json.Marshal(files)
	if err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "save sync state", fmt.Errorf("encode files: %w", err))
	}
	updatedAt := state.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO sync_states (source_id, revision, files, file_count, vector_count, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (source_id) DO UPDATE SET
	revision = EXCLUDED.revision,
	files = EXCLUDED.files,
	file_count = EXCLUDED.file_count,
	vector_count = EXCLUDED.vector_count,
	updated_at = EXCLUDED.updated_at
`, state.SourceID, state.Revision, filesRaw, len(files), state.VectorCount(), updatedAt)
	if err != nil {
		return domain.WrapError(domain.ErrTransient, "save sync state", err)
	}
	return nil
}
