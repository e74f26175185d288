// Package localfs persists sync state as one JSON file per source.
package localfs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
)

type Storage struct {
	basePath string
	mu       sync.Mutex
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/state"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: basePath}, nil
}

func (s *Storage) Load(_ context.Context, sourceID string) (*domain.RepositorySyncState, error) {
	raw, err := os.ReadFile(s.path(sourceID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrNotFound, "load sync state", fmt.Errorf("source %s", sourceID))
		}
		return nil, domain.WrapError(domain.ErrTransient, "load sync state", err)
	}
	var state domain.RepositorySyncState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, domain.WrapError(domain.ErrPermanent, "load sync state", fmt.Errorf("decode %s: %w", sourceID, err))
	}
	if state.Files == nil {
		state.Files = map[string]domain.FileRecord{}
	}
	state.SourceID = sourceID
	return &state, nil
}

// Save writes to a temp file and renames it over the previous state so a
// crash leaves either the old or the new state on disk.
func (s *Storage) Save(_ context.Context, state *domain.RepositorySyncState) error {
	if state == nil || state.SourceID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "save sync state", errors.New("source id is required"))
	}
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "save sync state", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.basePath, ".state-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmpName, s.path(state.SourceID)); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

func (s *Storage) path(sourceID string) string {
	return filepath.Join(s.basePath, url.PathEscape(sourceID)+".json")
}
