/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package main implements formatbot, a CI bot that keeps C, C++ and Python
// sources formatted with clang-format and black.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"chainguard.dev/formatbot/metrics"
	"chainguard.dev/formatbot/reconcilers/formatreconciler"
	"github.com/alecthomas/kong"
	"github.com/chainguard-dev/clog"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	var cli CLI
	kctx := kong.Parse(&cli, options()...)

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cli.level()})))

	kctx.BindTo(ctx, (*context.Context)(nil))
	err := kctx.Run(&cli)

	if err := metrics.Push(ctx, cli.Pushgateway, "formatbot"); err != nil {
		clog.WarnContextf(ctx, "pushing metrics: %v", err)
	}

	code := exitCode(ctx, err, cli.code)
	cancel()
	os.Exit(code)
}

// exitCode logs err at the level its kind warrants and returns the process
// exit code. Without an error the code recorded by the command is used.
func exitCode(ctx context.Context, err error, code int) int {
	switch formatreconciler.KindOf(err) {
	case 0:
		return code
	case formatreconciler.KindIgnored:
		clog.InfoContextf(ctx, "Ignoring comment: %v", err)
	case formatreconciler.KindConfig:
		clog.ErrorContextf(ctx, "Invalid configuration: %v", err)
	case formatreconciler.KindProtocol:
		clog.ErrorContextf(ctx, "Cannot handle event: %v", err)
	default:
		clog.ErrorContextf(ctx, "Error: %v", err)
	}
	return formatreconciler.ExitCode(err)
}
