/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package clonemanager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"chainguard.dev/formatbot/metrics"
	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"
)

// DefaultServerURL is the git host used when none is configured.
const DefaultServerURL = "https://github.com"

// EmailDomain is appended to identities that lack one.
const EmailDomain = "automation.bot"

// repoURL resolves the remote git URL for a repository full name. Tests can
// override this to provide local filesystem paths.
var repoURL = defaultRemoteURL

// Manager clones repositories on behalf of the bot identity.
type Manager struct {
	tokenSource oauth2.TokenSource
	identity    string
	signer      git.Signer
	serverURL   string
}

// Option configures a Manager.
type Option func(*Manager)

// WithServerURL points the Manager at a GitHub Enterprise host.
func WithServerURL(u string) Option {
	return func(m *Manager) {
		if u = strings.TrimRight(strings.TrimSpace(u), "/"); u != "" {
			m.serverURL = u
		}
	}
}

// New constructs a Manager. The provided OAuth2 token source must allow cloning
// and pushing to the targeted repository. Identity is used as the commit author
// name and, when it lacks a domain, suffixed with @automation.bot for the
// email. The signer may be nil when commits should not be signed.
func New(_ context.Context, tokenSource oauth2.TokenSource, identity string, signer git.Signer, opts ...Option) (*Manager, error) {
	if tokenSource == nil {
		return nil, errors.New("token source cannot be nil")
	}

	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, errors.New("identity cannot be empty")
	}

	m := &Manager{
		tokenSource: tokenSource,
		identity:    identity,
		signer:      signer,
		serverURL:   DefaultServerURL,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Identity returns the commit author name and email of the bot.
func (m *Manager) Identity() (name, email string) {
	email = m.identity
	if !strings.Contains(email, "@") {
		email = fmt.Sprintf("%s@%s", email, EmailDomain)
	}
	return m.identity, email
}

// Clone checks out a single branch of fullName ("owner/repo") into dir. A
// depth of zero fetches the full history. When no branch of that name exists
// the tag of that name is tried, so a tag push can be checked too.
func (m *Manager) Clone(ctx context.Context, dir, fullName, branch string, depth int) (_ *Checkout, err error) {
	switch {
	case dir == "":
		return nil, errors.New("clone directory cannot be empty")
	case fullName == "":
		return nil, errors.New("repository name cannot be empty")
	case branch == "":
		return nil, errors.New("branch cannot be empty")
	case depth < 0:
		return nil, fmt.Errorf("invalid clone depth %d", depth)
	}

	ctx, phase := metrics.StartPhase(ctx, "clone",
		attribute.String("repository", fullName),
		attribute.String("branch", branch),
		attribute.Int("depth", depth))
	defer func() { phase.End(err) }()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating clone dir: %w", err)
	}

	remote := repoURL(m.serverURL, fullName)
	clog.FromContext(ctx).Infof("Cloning repository %s (%s, depth %d) into %s", remote, branch, depth, dir)

	auth, err := m.authForRemote()
	if err != nil {
		return nil, fmt.Errorf("getting token: %w", err)
	}

	var repo *git.Repository
	for _, ref := range []plumbing.ReferenceName{
		plumbing.NewBranchReferenceName(branch),
		plumbing.NewTagReferenceName(branch),
	} {
		repo, err = git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
			URL:           remote,
			ReferenceName: ref,
			SingleBranch:  true,
			Depth:         depth,
			Auth:          auth,
		})
		if err == nil || !isMissingRef(err) {
			break
		}
		clog.FromContext(ctx).Debugf("Reference %s not found on %s", ref, remote)
	}
	if err != nil {
		return nil, fmt.Errorf("cloning repository %s: %w", fullName, err)
	}

	return m.checkout(dir, repo)
}

// Open wraps an existing checkout containing dir.
func (m *Manager) Open(_ context.Context, dir string) (*Checkout, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("opening repo: %w", err)
	}
	return m.checkout(dir, repo)
}

func (m *Manager) checkout(dir string, repo *git.Repository) (*Checkout, error) {
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("getting worktree: %w", err)
	}
	root := wt.Filesystem.Root()
	if root == "" {
		root = dir
	}
	return &Checkout{manager: m, dir: root, repo: repo}, nil
}

func isMissingRef(err error) bool {
	var noMatch git.NoMatchingRefSpecError
	return errors.As(err, &noMatch) || errors.Is(err, plumbing.ErrReferenceNotFound)
}

// authForRemote returns nil when the token is empty so that public or local
// remotes are accessed anonymously.
func (m *Manager) authForRemote() (transport.AuthMethod, error) {
	token, err := m.tokenSource.Token()
	if err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, nil
	}

	return &githttp.BasicAuth{
		Username: "x-access-token",
		Password: token.AccessToken,
	}, nil
}

func defaultRemoteURL(serverURL, fullName string) string {
	return fmt.Sprintf("%s/%s", serverURL, fullName)
}
