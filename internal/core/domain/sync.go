package domain

import "time"

// SourceItem is one enumerated item of a tracked source.
type SourceItem struct {
	Path       string
	Content    []byte
	Size       int64
	ModifiedAt time.Time
}

type SourceSnapshot struct {
	SourceID string
	Revision string
	Items    []SourceItem
}

type FileRecord struct {
	Path        string    `json:"path"`
	Fingerprint string    `json:"fingerprint"`
	Size        int64     `json:"size"`
	ModifiedAt  time.Time `json:"modified_at"`
	VectorIDs   []string  `json:"vector_ids"`
	IndexedAt   time.Time `json:"indexed_at"`
}

type RepositorySyncState struct {
	SourceID  string                `json:"source_id"`
	Revision  string                `json:"revision"`
	Files     map[string]FileRecord `json:"files"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// Clone returns a deep copy so a sync run can build the next state without
// touching the state it was loaded from.
func (s *RepositorySyncState) Clone() *RepositorySyncState {
	if s == nil {
		return nil
	}
	out := &RepositorySyncState{
		SourceID:  s.SourceID,
		Revision:  s.Revision,
		UpdatedAt: s.UpdatedAt,
		Files:     make(map[string]FileRecord, len(s.Files)),
	}
	for path, rec := range s.Files {
		rec.VectorIDs = append([]string(nil), rec.VectorIDs...)
		out.Files[path] = rec
	}
	return out
}

func (s *RepositorySyncState) VectorCount() int {
	if s == nil {
		return 0
	}
	total := 0
	for _, rec := range s.Files {
		total += len(rec.VectorIDs)
	}
	return total
}

type ChangePartition struct {
	Added    []string `json:"added"`
	Modified []string `json:"modified"`
	Deleted  []string `json:"deleted"`
}

func (p ChangePartition) IsEmpty() bool {
	return len(p.Added) == 0 && len(p.Modified) == 0 && len(p.Deleted) == 0
}

func (p ChangePartition) Total() int {
	return len(p.Added) + len(p.Modified) + len(p.Deleted)
}

type SyncItemError struct {
	Path      string `json:"path"`
	Operation string `json:"operation"`
	Error     string `json:"error"`
}

type SyncStats struct {
	Added           int             `json:"added"`
	Modified        int             `json:"modified"`
	Deleted         int             `json:"deleted"`
	Unchanged       int             `json:"unchanged"`
	VectorsUpserted int             `json:"vectors_upserted"`
	VectorsDeleted  int             `json:"vectors_deleted"`
	Errors          []SyncItemError `json:"errors,omitempty"`
}

type SyncReport struct {
	SourceID  string          `json:"source_id"`
	Revision  string          `json:"revision"`
	Partition ChangePartition `json:"partition"`
	Stats     SyncStats       `json:"stats"`
	Duration  time.Duration   `json:"duration"`
	// Degraded is set when the prior state could not be loaded; the run
	// upserted everything but left the stored state untouched.
	Degraded bool `json:"degraded,omitempty"`
}
