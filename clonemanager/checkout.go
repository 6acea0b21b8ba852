/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package clonemanager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"slices"
	"time"

	"chainguard.dev/formatbot/metrics"
	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.opentelemetry.io/otel/attribute"
)

// ErrIdentityNotConfigured is returned by Reconcile when the checkout has no
// commit identity.
var ErrIdentityNotConfigured = errors.New("git identity not configured")

// Outcome is the action Reconcile took.
type Outcome int

const (
	OutcomeNoop Outcome = iota
	OutcomeCommitted
	OutcomeAmended
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoop:
		return "noop"
	case OutcomeCommitted:
		return "committed"
	case OutcomeAmended:
		return "amended"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// DiffResult reports whether the working tree differs from HEAD. ExitCode
// follows `git diff --exit-code`: 0 when clean, 1 when different.
type DiffResult struct {
	Changed  bool
	ExitCode int
}

// Checkout is a working tree prepared by a Manager.
type Checkout struct {
	manager *Manager
	dir     string
	repo    *git.Repository
}

// Dir returns the absolute path of the working tree.
func (c *Checkout) Dir() string {
	return c.dir
}

// Repo returns the underlying git repository.
func (c *Checkout) Repo() *git.Repository {
	return c.repo
}

// ConfigureIdentity records the bot identity as user.name and user.email in
// the repository config.
func (c *Checkout) ConfigureIdentity() error {
	cfg, err := c.repo.Config()
	if err != nil {
		return fmt.Errorf("reading repo config: %w", err)
	}
	cfg.User.Name, cfg.User.Email = c.manager.Identity()
	if err := c.repo.SetConfig(cfg); err != nil {
		return fmt.Errorf("writing repo config: %w", err)
	}
	return nil
}

// TrackedFiles yields the slash separated paths of the files in the HEAD
// tree. Directories and submodules are skipped.
func (c *Checkout) TrackedFiles(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		tree, err := c.headTree()
		if err != nil {
			yield("", err)
			return
		}

		walker := object.NewTreeWalker(tree, true, nil)
		defer walker.Close()
		for {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			name, entry, err := walker.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", fmt.Errorf("walking tree: %w", err))
				return
			}
			if !entry.Mode.IsFile() {
				continue
			}
			if !yield(name, nil) {
				return
			}
		}
	}
}

func (c *Checkout) headTree() (*object.Tree, error) {
	head, err := c.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}
	commit, err := c.repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("getting commit object: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("getting tree: %w", err)
	}
	return tree, nil
}

// Diff compares the working tree and index with HEAD. Untracked files are
// ignored.
func (c *Checkout) Diff() (DiffResult, error) {
	changed, err := c.changedPaths()
	if err != nil {
		return DiffResult{}, err
	}
	if len(changed) == 0 {
		return DiffResult{}, nil
	}
	return DiffResult{Changed: true, ExitCode: 1}, nil
}

// changedPaths returns the tracked paths that differ from HEAD, sorted.
func (c *Checkout) changedPaths() ([]string, error) {
	wt, err := c.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("getting worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("getting worktree status: %w", err)
	}

	var paths []string
	for path, fs := range status {
		if fs.Worktree == git.Untracked || fs.Staging == git.Untracked {
			continue
		}
		if fs.Worktree != git.Unmodified || fs.Staging != git.Unmodified {
			paths = append(paths, path)
		}
	}
	slices.Sort(paths)
	return paths, nil
}

// Reconcile persists formatting drift. Without drift nothing happens. With
// drift the modified tracked files are staged and either committed on top of
// HEAD and pushed, or folded into HEAD and force pushed when amend is set.
func (c *Checkout) Reconcile(ctx context.Context, changed, amend bool) (_ Outcome, err error) {
	log := clog.FromContext(ctx)
	if !changed {
		log.Info("Working tree matches HEAD, nothing to commit")
		return OutcomeNoop, nil
	}

	ctx, phase := metrics.StartPhase(ctx, "commit", attribute.Bool("amend", amend))
	defer func() { phase.End(err) }()

	committer, err := c.signature()
	if err != nil {
		return OutcomeNoop, err
	}

	head, err := c.repo.Head()
	if err != nil {
		return OutcomeNoop, fmt.Errorf("resolving HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return OutcomeNoop, fmt.Errorf("HEAD is not a branch: %s", head.Name())
	}

	wt, err := c.repo.Worktree()
	if err != nil {
		return OutcomeNoop, fmt.Errorf("getting worktree: %w", err)
	}
	if err := c.stage(ctx, wt); err != nil {
		return OutcomeNoop, err
	}

	opts := &git.CommitOptions{
		Author:    committer,
		Committer: committer,
		Signer:    c.manager.signer,
	}
	message := c.manager.identity
	outcome := OutcomeCommitted
	if amend {
		prev, err := c.repo.CommitObject(head.Hash())
		if err != nil {
			return OutcomeNoop, fmt.Errorf("getting HEAD commit: %w", err)
		}
		author := prev.Author
		opts.Author = &author
		opts.Amend = true
		message = prev.Message
		outcome = OutcomeAmended
	}

	hash, err := wt.Commit(message, opts)
	if err != nil {
		return OutcomeNoop, fmt.Errorf("committing: %w", err)
	}
	log.Infof("Created commit %s (%s)", hash, outcome)

	if err := c.push(ctx, head.Name(), amend); err != nil {
		return OutcomeNoop, err
	}
	return outcome, nil
}

func (c *Checkout) signature() (*object.Signature, error) {
	cfg, err := c.repo.Config()
	if err != nil {
		return nil, fmt.Errorf("reading repo config: %w", err)
	}
	if cfg.User.Name == "" || cfg.User.Email == "" {
		return nil, ErrIdentityNotConfigured
	}
	return &object.Signature{
		Name:  cfg.User.Name,
		Email: cfg.User.Email,
		When:  time.Now(),
	}, nil
}

// stage adds modified tracked files to the index and records deletions.
func (c *Checkout) stage(ctx context.Context, wt *git.Worktree) error {
	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("getting worktree status: %w", err)
	}

	log := clog.FromContext(ctx)
	for path, fs := range status {
		switch fs.Worktree {
		case git.Untracked, git.Unmodified:
			continue
		case git.Deleted:
			if _, err := wt.Remove(path); err != nil {
				return fmt.Errorf("staging removal of %s: %w", path, err)
			}
		default:
			if _, err := wt.Add(path); err != nil {
				return fmt.Errorf("staging %s: %w", path, err)
			}
		}
		log.With("path", path).Debug("Staged formatted file")
	}
	return nil
}

func (c *Checkout) push(ctx context.Context, ref plumbing.ReferenceName, force bool) error {
	log := clog.FromContext(ctx)

	auth, err := c.manager.authForRemote()
	if err != nil {
		return fmt.Errorf("getting token: %w", err)
	}

	refSpec := gitconfig.RefSpec(fmt.Sprintf("%s:%s", ref, ref))
	if force {
		log.Infof("Force pushing to %s", refSpec)
	} else {
		log.Infof("Pushing to %s", refSpec)
	}

	if err := c.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: git.DefaultRemoteName,
		RefSpecs:   []gitconfig.RefSpec{refSpec},
		Auth:       auth,
		Force:      force,
	}); err != nil {
		if errors.Is(err, git.NoErrAlreadyUpToDate) {
			log.Info("Branch already up to date")
			return nil
		}
		return fmt.Errorf("pushing %s: %w", ref, err)
	}
	return nil
}
