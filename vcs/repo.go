// Package vcs wraps go-git with the small contract the task lifecycle needs:
// stage everything, commit only when something is staged, and create tags
// that do not depend on a commit having been produced.
package vcs

import (
	"errors"
	"fmt"
	"strings"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Author identifies the committer for loop-generated commits.
type Author struct {
	Name  string
	Email string
}

// DefaultAuthor is used when no author is configured.
var DefaultAuthor = Author{Name: "anvil", Email: "anvil@localhost"}

// Repo is a handle on the project's git repository.
type Repo struct {
	repo   *git.Repository
	author Author
}

// Open opens the repository at path, initializing one if none exists.
func Open(path string, author Author) (*Repo, error) {
	if author.Name == "" {
		author = DefaultAuthor
	}
	repo, err := git.PlainOpen(path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = git.PlainInit(path, false)
	}
	if err != nil {
		return nil, fmt.Errorf("vcs: open %s: %w", path, err)
	}
	return &Repo{repo: repo, author: author}, nil
}

// AddAll stages every pending change in the worktree.
func (r *Repo) AddAll() error {
	w, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("vcs: worktree: %w", err)
	}
	if err := w.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return fmt.Errorf("vcs: add: %w", err)
	}
	return nil
}

// Commit commits the staged changes. When the stage matches HEAD it is a
// safe no-op: committed is false and err is nil. On a repository with no
// commits yet an empty root commit is created so that tags have a target.
func (r *Repo) Commit(message string) (hash plumbing.Hash, committed bool, err error) {
	w, err := r.repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, false, fmt.Errorf("vcs: worktree: %w", err)
	}

	status, err := w.Status()
	if err != nil {
		return plumbing.ZeroHash, false, fmt.Errorf("vcs: status: %w", err)
	}

	hasHead := true
	if _, err := r.repo.Head(); errors.Is(err, plumbing.ErrReferenceNotFound) {
		hasHead = false
	}

	if status.IsClean() && hasHead {
		return plumbing.ZeroHash, false, nil
	}

	opts := &git.CommitOptions{
		Author: &object.Signature{
			Name:  r.author.Name,
			Email: r.author.Email,
			When:  time.Now(),
		},
		AllowEmptyCommits: !hasHead,
	}
	hash, err = w.Commit(message, opts)
	if errors.Is(err, git.ErrEmptyCommit) {
		return plumbing.ZeroHash, false, nil
	}
	if err != nil {
		return plumbing.ZeroHash, false, fmt.Errorf("vcs: commit: %w", err)
	}
	return hash, true, nil
}

// Checkpoint stages everything and commits it. A clean worktree is a safe
// no-op.
func (r *Repo) Checkpoint(message string) error {
	if err := r.AddAll(); err != nil {
		return err
	}
	_, _, err := r.Commit(message)
	return err
}

// Tag creates a lightweight tag pointing at HEAD. If the tag already exists
// its current target is returned, so re-tagging without intervening commits
// is idempotent.
func (r *Repo) Tag(name string) (plumbing.Hash, error) {
	head, err := r.repo.Head()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("vcs: tag %s: no HEAD: %w", name, err)
	}

	_, err = r.repo.CreateTag(name, head.Hash(), nil)
	if errors.Is(err, git.ErrTagExists) {
		ref, err := r.repo.Tag(name)
		if err != nil {
			return plumbing.ZeroHash, fmt.Errorf("vcs: resolve existing tag %s: %w", name, err)
		}
		return ref.Hash(), nil
	}
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("vcs: tag %s: %w", name, err)
	}
	return head.Hash(), nil
}

// HasTag reports whether the named tag exists.
func (r *Repo) HasTag(name string) bool {
	_, err := r.repo.Tag(name)
	return err == nil
}

// ListTags returns all tag names, short form.
func (r *Repo) ListTags() ([]string, error) {
	iter, err := r.repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("vcs: tags: %w", err)
	}
	var names []string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		names = append(names, ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("vcs: iterate tags: %w", err)
	}
	return names, nil
}

// Log returns up to depth one-line commit descriptions, newest first.
func (r *Repo) Log(depth int) ([]string, error) {
	iter, err := r.repo.Log(&git.LogOptions{})
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("vcs: log: %w", err)
	}
	defer iter.Close()

	var lines []string
	for depth <= 0 || len(lines) < depth {
		c, err := iter.Next()
		if err != nil {
			break
		}
		subject := strings.SplitN(c.Message, "\n", 2)[0]
		lines = append(lines, fmt.Sprintf("%s %s", c.Hash.String()[:8], subject))
	}
	return lines, nil
}
