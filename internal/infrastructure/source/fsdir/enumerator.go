// Package fsdir enumerates the regular files below a directory.
package fsdir

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
)

const defaultMaxFileSize = 10 << 20

type Options struct {
	// Extensions limits enumeration to these lower-case extensions. Empty
	// means every file.
	Extensions  []string
	MaxFileSize int64
}

type Enumerator struct {
	sourceID string
	root     string
	exts     map[string]struct{}
	maxSize  int64
}

func New(sourceID, root string, opts Options) *Enumerator {
	e := &Enumerator{
		sourceID: sourceID,
		root:     root,
		maxSize:  opts.MaxFileSize,
	}
	if e.maxSize <= 0 {
		e.maxSize = defaultMaxFileSize
	}
	if len(opts.Extensions) > 0 {
		e.exts = make(map[string]struct{}, len(opts.Extensions))
		for _, ext := range opts.Extensions {
			ext = strings.ToLower(strings.TrimSpace(ext))
			if ext != "" && !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			e.exts[ext] = struct{}{}
		}
	}
	return e
}

// Enumerate walks the tree skipping hidden entries, symlinks and files over
// the size limit. Paths are slash separated and relative to the root. A
// plain directory has no revision, so the snapshot revision is empty.
func (e *Enumerator) Enumerate(ctx context.Context) (domain.SourceSnapshot, error) {
	snapshot := domain.SourceSnapshot{SourceID: e.sourceID}
	info, err := os.Stat(e.root)
	if err != nil {
		return snapshot, domain.WrapError(domain.ErrNotFound, "enumerate directory", err)
	}
	if !info.IsDir() {
		return snapshot, domain.WrapError(domain.ErrInvalidInput, "enumerate directory", fmt.Errorf("%s is not a directory", e.root))
	}

	err = filepath.WalkDir(e.root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p != e.root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if e.exts != nil {
			if _, ok := e.exts[strings.ToLower(path.Ext(d.Name()))]; !ok {
				return nil
			}
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		if fi.Size() > e.maxSize {
			return nil
		}
		content, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(e.root, p)
		if err != nil {
			return err
		}
		snapshot.Items = append(snapshot.Items, domain.SourceItem{
			Path:       filepath.ToSlash(rel),
			Content:    content,
			Size:       fi.Size(),
			ModifiedAt: fi.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return domain.SourceSnapshot{SourceID: e.sourceID}, domain.WrapError(domain.ErrTransient, "enumerate directory", err)
	}
	return snapshot, nil
}
