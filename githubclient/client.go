/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package githubclient builds authenticated GitHub API clients and token
// sources for the bot.
package githubclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v84/github"
	"golang.org/x/oauth2"
)

// DefaultAPIURL is the public GitHub REST endpoint.
const DefaultAPIURL = "https://api.github.com"

// App identifies a GitHub App installation.
type App struct {
	ID             int64
	InstallationID int64
	PrivateKeyPath string
}

func (a App) configured() bool {
	return a.ID != 0 || a.InstallationID != 0 || a.PrivateKeyPath != ""
}

// TokenSource returns the credentials the bot acts with. A configured App
// takes precedence over the static token.
func TokenSource(ctx context.Context, token string, app App, apiURL string) (oauth2.TokenSource, error) {
	if !app.configured() {
		if token == "" {
			return nil, errors.New("a GitHub token or GitHub App installation is required")
		}
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}), nil
	}

	if app.ID == 0 || app.InstallationID == 0 || app.PrivateKeyPath == "" {
		return nil, errors.New("GitHub App authentication needs the app ID, installation ID and private key")
	}
	itr, err := ghinstallation.NewKeyFromFile(http.DefaultTransport, app.ID, app.InstallationID, app.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("loading GitHub App key: %w", err)
	}
	if apiURL != "" {
		itr.BaseURL = strings.TrimRight(apiURL, "/")
	}
	return oauth2.ReuseTokenSource(nil, &installationTokenSource{ctx: ctx, itr: itr}), nil
}

type installationTokenSource struct {
	ctx context.Context
	itr *ghinstallation.Transport
}

func (s *installationTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.itr.Token(s.ctx)
	if err != nil {
		return nil, fmt.Errorf("minting installation token: %w", err)
	}
	expiry, _, err := s.itr.Expiry()
	if err != nil {
		return nil, fmt.Errorf("reading installation token expiry: %w", err)
	}
	return &oauth2.Token{AccessToken: tok, Expiry: expiry}, nil
}

// NewClient returns a REST client authenticated with ts. A non-default
// apiURL points the client at a GitHub Enterprise server.
func NewClient(ctx context.Context, ts oauth2.TokenSource, apiURL string) (*github.Client, error) {
	client := github.NewClient(oauth2.NewClient(ctx, ts))
	if apiURL == "" || strings.TrimRight(apiURL, "/") == DefaultAPIURL {
		return client, nil
	}

	base, err := url.Parse(strings.TrimRight(apiURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parsing API URL %q: %w", apiURL, err)
	}
	client.BaseURL = base
	return client, nil
}

// API adapts a REST client to the calls the bot makes.
type API struct {
	client *github.Client
}

// NewAPI wraps client.
func NewAPI(client *github.Client) *API {
	return &API{client: client}
}

// GetPullRequest fetches a pull request.
func (a *API) GetPullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, error) {
	pr, _, err := a.client.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, fmt.Errorf("getting %s/%s#%d: %w", owner, repo, number, err)
	}
	return pr, nil
}

// CreateComment posts body on the conversation of an issue or pull request.
func (a *API) CreateComment(ctx context.Context, owner, repo string, number int, body string) error {
	if _, _, err := a.client.Issues.CreateComment(ctx, owner, repo, number, &github.IssueComment{
		Body: github.Ptr(body),
	}); err != nil {
		return fmt.Errorf("commenting on %s/%s#%d: %w", owner, repo, number, err)
	}
	return nil
}
