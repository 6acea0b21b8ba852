/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package formatreconciler drives the formatting bot from GitHub events. It
// handles the two flows the bot supports:
//
//  1. check: a push event clones the pushed branch, formats it and reports
//     drift through the exit code of the run.
//  2. command: a pull request comment such as `@bot format --amend` clones
//     the pull request head, formats it and reconciles the drift by
//     committing, amending, or doing nothing.
//
// Failures are classified with Error kinds so that the single exit handler
// of the binary can pick a log level and exit code.
//
// # Basic Usage
//
//	mgr, err := clonemanager.New(ctx, tokenSource, bot, signer)
//	rec := formatreconciler.New(
//	    workspace,
//	    formatreconciler.ManagerCloner(mgr),
//	    githubclient.NewAPI(gh),
//	    command.NewParser(bot),
//	    []formatter.Job{native, script},
//	)
//
//	event, err := formatreconciler.LoadEvent(env.EventName, env.EventPath)
//	code, err := rec.Dispatch(ctx, formatreconciler.ModeCommand, event)
package formatreconciler
