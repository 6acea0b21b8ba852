/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package gitsign signs the bot's commits with sigstore keyless
// certificates obtained from the ambient CI identity.
package gitsign

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	gogit "github.com/go-git/go-git/v5"
	"github.com/sigstore/cosign/v2/pkg/providers"
	"github.com/sigstore/gitsign/pkg/fulcio"
	"github.com/sigstore/gitsign/pkg/gitsign"
	"github.com/sigstore/gitsign/pkg/rekor"
	"github.com/sigstore/sigstore/pkg/oauthflow"
	"golang.org/x/oauth2"

	// The bot runs as a GitHub Action, so only the Actions OIDC provider is
	// registered.
	_ "github.com/sigstore/cosign/v2/pkg/providers/github"
)

// ErrNoProvider is returned when no ambient OIDC identity is available, for
// example when the workflow lacks the id-token permission.
var ErrNoProvider = errors.New("no sigstore providers enabled")

// Options selects the sigstore instance.
type Options struct {
	FulcioURL string
	RekorURL  string
	Issuer    string
	ClientID  string
	Audience  string
}

// PublicGood is the public sigstore instance.
var PublicGood = Options{
	FulcioURL: "https://fulcio.sigstore.dev",
	RekorURL:  "https://rekor.sigstore.dev",
	Issuer:    "https://oauth2.sigstore.dev/auth",
	ClientID:  "sigstore",
	Audience:  "sigstore",
}

// NewSigner returns a commit signer backed by opts. Zero fields fall back to
// PublicGood.
func NewSigner(ctx context.Context, opts Options) (gogit.Signer, error) {
	if !providers.Enabled(ctx) {
		return nil, ErrNoProvider
	}
	opts = opts.withDefaults()

	fulcio, err := fulcio.NewClient(opts.FulcioURL, fulcio.OIDCOptions{
		ClientID: opts.ClientID,
		Issuer:   opts.Issuer,
		TokenGetter: &providerTokenGetter{
			ctx:      ctx,
			audience: opts.Audience,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating fulcio client: %w", err)
	}
	rekor, err := rekor.NewWithOptions(ctx, opts.RekorURL)
	if err != nil {
		return nil, fmt.Errorf("creating rekor client: %w", err)
	}
	return gitsign.NewSigner(ctx, fulcio, rekor)
}

func (o Options) withDefaults() Options {
	if o.FulcioURL == "" {
		o.FulcioURL = PublicGood.FulcioURL
	}
	if o.RekorURL == "" {
		o.RekorURL = PublicGood.RekorURL
	}
	if o.Issuer == "" {
		o.Issuer = PublicGood.Issuer
	}
	if o.ClientID == "" {
		o.ClientID = PublicGood.ClientID
	}
	if o.Audience == "" {
		o.Audience = PublicGood.Audience
	}
	return o
}

type providerTokenGetter struct {
	ctx      context.Context
	audience string
}

func (p *providerTokenGetter) GetIDToken(_ *oidc.Provider, _ oauth2.Config) (*oauthflow.OIDCIDToken, error) {
	token, err := providers.Provide(p.ctx, p.audience)
	if err != nil {
		return nil, fmt.Errorf("provide token: %w", err)
	}
	return idToken(token)
}

func idToken(token string) (*oauthflow.OIDCIDToken, error) {
	payload, err := decodeJWTPayload(token)
	if err != nil {
		return nil, err
	}
	subject, err := oauthflow.SubjectFromUnverifiedToken(payload)
	if err != nil {
		return nil, fmt.Errorf("extract subject: %w", err)
	}
	return &oauthflow.OIDCIDToken{RawString: token, Subject: subject}, nil
}

func decodeJWTPayload(token string) ([]byte, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, errors.New("invalid jwt format")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return payload, nil
}
