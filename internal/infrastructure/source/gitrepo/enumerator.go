// Package gitrepo enumerates the files committed at a git reference.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/kirillkom/evidence-rag/internal/core/domain"
)

const defaultMaxFileSize = 10 << 20

type Options struct {
	// Branch selects a local branch; empty means HEAD.
	Branch      string
	Extensions  []string
	MaxFileSize int64
}

// Enumerator reads committed content only, so uncommitted edits in the
// working tree are invisible until they are committed. The snapshot
// revision is the commit hash.
type Enumerator struct {
	sourceID string
	repoPath string
	branch   string
	exts     map[string]struct{}
	maxSize  int64
}

func New(sourceID, repoPath string, opts Options) *Enumerator {
	e := &Enumerator{
		sourceID: sourceID,
		repoPath: repoPath,
		branch:   strings.TrimSpace(opts.Branch),
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

func (e *Enumerator) Enumerate(ctx context.Context) (domain.SourceSnapshot, error) {
	snapshot := domain.SourceSnapshot{SourceID: e.sourceID}

	repo, err := git.PlainOpenWithOptions(e.repoPath, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return snapshot, domain.WrapError(domain.ErrNotFound, "enumerate git", fmt.Errorf("%s: %w", e.repoPath, err))
		}
		return snapshot, domain.WrapError(domain.ErrTransient, "enumerate git", err)
	}

	ref, err := e.resolve(repo)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			// Nothing committed yet.
			return snapshot, nil
		}
		return snapshot, domain.WrapError(domain.ErrInvalidInput, "enumerate git", err)
	}
	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return snapshot, domain.WrapError(domain.ErrTransient, "enumerate git", fmt.Errorf("load commit %s: %w", ref.Hash(), err))
	}
	tree, err := commit.Tree()
	if err != nil {
		return snapshot, domain.WrapError(domain.ErrTransient, "enumerate git", fmt.Errorf("load tree: %w", err))
	}

	modified := commit.Committer.When.UTC()
	err = tree.Files().ForEach(func(f *object.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !f.Mode.IsFile() || f.Size > e.maxSize || hidden(f.Name) {
			return nil
		}
		if e.exts != nil {
			if _, ok := e.exts[strings.ToLower(path.Ext(f.Name))]; !ok {
				return nil
			}
		}
		content, err := readBlob(f)
		if err != nil {
			return fmt.Errorf("read %s: %w", f.Name, err)
		}
		snapshot.Items = append(snapshot.Items, domain.SourceItem{
			Path:       f.Name,
			Content:    content,
			Size:       f.Size,
			ModifiedAt: modified,
		})
		return nil
	})
	if err != nil {
		return domain.SourceSnapshot{SourceID: e.sourceID}, domain.WrapError(domain.ErrTransient, "enumerate git", err)
	}
	snapshot.Revision = ref.Hash().String()
	return snapshot, nil
}

func (e *Enumerator) resolve(repo *git.Repository) (*plumbing.Reference, error) {
	if e.branch == "" {
		return repo.Head()
	}
	return repo.Reference(plumbing.NewBranchReferenceName(e.branch), true)
}

func readBlob(f *object.File) ([]byte, error) {
	r, err := f.Reader()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func hidden(name string) bool {
	for _, part := range strings.Split(name, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}
