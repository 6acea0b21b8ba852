/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"chainguard.dev/formatbot/clonemanager"
	"chainguard.dev/formatbot/reconcilers/formatreconciler"
	"chainguard.dev/formatbot/report"
	"github.com/chainguard-dev/clog"
)

// CommandCmd handles `@bot format [--amend]` pull request comments.
type CommandCmd struct{}

func (c *CommandCmd) Run(ctx context.Context, cli *CLI) error {
	r, err := cli.resolve(ctx)
	if err != nil {
		return err
	}
	if r.env.EventName != formatreconciler.EventIssueComment {
		return formatreconciler.ProtocolError(fmt.Errorf("this action is only compatible with '%s' events, got %q", formatreconciler.EventIssueComment, r.env.EventName))
	}
	return cli.dispatch(ctx, r, formatreconciler.ModeCommand)
}

// CheckCmd verifies the formatting of a pushed branch.
type CheckCmd struct{}

func (c *CheckCmd) Run(ctx context.Context, cli *CLI) error {
	r, err := cli.resolve(ctx)
	if err != nil {
		return err
	}
	return cli.dispatch(ctx, r, formatreconciler.ModeCheck)
}

func (c *CLI) dispatch(ctx context.Context, r *run, mode formatreconciler.Mode) error {
	event, err := formatreconciler.LoadEvent(r.env.EventName, r.env.EventPath)
	if err != nil {
		return err
	}
	rec, err := c.reconciler(ctx, r)
	if err != nil {
		return err
	}

	clog.FromContext(ctx).With("mode", string(mode), "event", r.env.EventName).Info("Dispatching event")
	code, err := rec.Dispatch(ctx, mode, event)
	c.code = code
	return err
}

// ListCmd prints the tracked files of the workspace checkout that each
// formatter would process.
type ListCmd struct {
	Table bool `help:"Render the listing as a table."`

	stdout io.Writer
}

func (l *ListCmd) Run(ctx context.Context, cli *CLI) error {
	r, err := cli.resolve(ctx)
	if err != nil {
		return err
	}
	jobs, err := cli.jobs(r, false)
	if err != nil {
		return err
	}

	mgr, err := clonemanager.New(ctx, anonymous, r.cfg.BotName, nil)
	if err != nil {
		return formatreconciler.ConfigError(err)
	}
	co, err := mgr.Open(ctx, r.workspace)
	if err != nil {
		return formatreconciler.ConfigError(fmt.Errorf("workspace %s is not a git checkout: %w", r.workspace, err))
	}

	listing, err := report.Collect(ctx, co, jobs)
	if err != nil {
		return formatreconciler.ExternalError(err)
	}
	out := l.stdout
	if out == nil {
		out = os.Stdout
	}
	if l.Table {
		return listing.WriteTable(out)
	}
	return listing.WriteText(out)
}
