// Package docstore is the versioned content-addressed store of land-title
// documents: an append-only commit log over a working tree of canonical
// JSON files. Branching is disabled; a single head pointer advances one
// commit at a time.
//
// The tree lives at <base>/data with the commit-log metadata under
// <base>/data/.log.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/filesystem"

	"github.com/offenes-grundbuch/registry/internal/models"
)

const (
	logDirName = ".log"
	remoteName = "writer"
)

// ErrNotFound is returned when a document does not exist in the tree.
var ErrNotFound = errors.New("document not found")

// Author identifies the committing user.
type Author struct {
	Name  string
	Email string
}

// FileWrite is one staged document file: a tree-relative path and its
// canonical content.
type FileWrite struct {
	Path    string
	Content []byte
}

// Store wraps the document tree and its commit log.
type Store struct {
	dataDir string

	// mu serialises commits; the log admits one writer at a time.
	mu   sync.Mutex
	repo *git.Repository
}

// Open opens the store at dataDir, initialising an empty log if absent.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dataDir, logDirName), 0o755); err != nil {
		return nil, fmt.Errorf("create docstore dirs: %w", err)
	}

	storage := filesystem.NewStorage(osfs.New(filepath.Join(dataDir, logDirName)), cache.NewObjectLRUDefault())
	wt := osfs.New(dataDir)

	repo, err := git.Open(storage, wt)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = git.Init(storage, wt)
	}
	if err != nil {
		return nil, fmt.Errorf("open docstore log: %w", err)
	}
	return &Store{dataDir: dataDir, repo: repo}, nil
}

// worktree returns the working tree with the log directory excluded from
// status scans.
func (s *Store) worktree() (*git.Worktree, error) {
	w, err := s.repo.Worktree()
	if err != nil {
		return nil, err
	}
	w.Excludes = append(w.Excludes, gitignore.ParsePattern("/"+logDirName+"/", nil))
	return w, nil
}

// Commit writes the staged files and appends one commit with the given
// author and message. When the resulting tree equals the current tree the
// head is returned unchanged and noop is true.
func (s *Store) Commit(ctx context.Context, author Author, message string, files []FileWrite) (id string, noop bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := s.worktree()
	if err != nil {
		return "", false, err
	}

	for _, f := range files {
		abs := filepath.Join(s.dataDir, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return "", false, fmt.Errorf("create document dir: %w", err)
		}
		if err := os.WriteFile(abs, f.Content, 0o644); err != nil {
			return "", false, fmt.Errorf("write document %s: %w", f.Path, err)
		}
		if _, err := w.Add(f.Path); err != nil {
			return "", false, fmt.Errorf("stage document %s: %w", f.Path, err)
		}
	}

	status, err := w.Status()
	if err != nil {
		return "", false, err
	}
	if status.IsClean() {
		head, err := s.headLocked()
		if err != nil {
			return "", false, err
		}
		return head, true, nil
	}

	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	hash, err := w.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  author.Name,
			Email: author.Email,
			When:  time.Now(),
		},
	})
	if err != nil {
		return "", false, fmt.Errorf("commit changeset: %w", err)
	}
	return hash.String(), false, nil
}

// ReadDoc returns the stored canonical form at a tree-relative path.
func (s *Store) ReadDoc(path string) ([]byte, error) {
	content, err := os.ReadFile(filepath.Join(s.dataDir, filepath.FromSlash(path)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return content, err
}

// Head returns the current head commit id, or "" for an empty log.
func (s *Store) Head() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headLocked()
}

func (s *Store) headLocked() (string, error) {
	ref, err := s.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return ref.Hash().String(), nil
}

// History returns the commits touching a tree-relative path, newest
// first.
func (s *Store) History(path string) ([]models.Commit, error) {
	iter, err := s.repo.Log(&git.LogOptions{FileName: &path})
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, nil
		}
		return nil, err
	}
	defer iter.Close()

	var commits []models.Commit
	err = iter.ForEach(func(c *object.Commit) error {
		commit := models.Commit{
			ID:          c.Hash.String(),
			AuthorName:  c.Author.Name,
			AuthorEmail: c.Author.Email,
			Message:     c.Message,
			Time:        c.Author.When,
		}
		if c.NumParents() > 0 {
			commit.Parent = c.ParentHashes[0].String()
		}
		commits = append(commits, commit)
		return nil
	})
	return commits, err
}

// Walk calls fn for every document file in the working tree with its
// tree-relative path and content. Used to rebuild the search index.
func (s *Store) Walk(fn func(path string, content []byte) error) error {
	return filepath.Walk(s.dataDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == logDirName {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(s.dataDir, p)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		return fn(filepath.ToSlash(rel), content)
	})
}

// Pull fetches the writer's main branch into the local tree.
// remoteDataDir is the writer's data directory as seen from this node
// (the shared mount); the commit log it pulls from lives under its .log
// subdirectory. Repeating a pull when already up-to-date is a no-op; a
// cancelled pull leaves the on-disk state unchanged.
func (s *Store) Pull(ctx context.Context, remoteDataDir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureRemote(filepath.Join(remoteDataDir, logDirName)); err != nil {
		return err
	}

	w, err := s.worktree()
	if err != nil {
		return err
	}

	err = w.PullContext(ctx, &git.PullOptions{
		RemoteName: remoteName,
		Force:      true,
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	return err
}

// ensureRemote points the writer remote at remoteURL, replacing a stale
// address left by an earlier topology.
func (s *Store) ensureRemote(remoteURL string) error {
	remote, err := s.repo.Remote(remoteName)
	if err == nil {
		if cfg := remote.Config(); len(cfg.URLs) == 1 && cfg.URLs[0] == remoteURL {
			return nil
		}
		if err := s.repo.DeleteRemote(remoteName); err != nil {
			return err
		}
	} else if !errors.Is(err, git.ErrRemoteNotFound) {
		return err
	}

	_, err = s.repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: remoteName,
		URLs: []string{remoteURL},
	})
	return err
}

// DataDir returns the working tree path.
func (s *Store) DataDir() string { return s.dataDir }

// Export streams a gzip'd tar archive of the current tree (log metadata
// excluded), used by followers when bootstrapping.
func (s *Store) Export(ctx context.Context, w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return exportTree(ctx, s.dataDir, w)
}
