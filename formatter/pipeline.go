/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package formatter

import (
	"context"
	"fmt"
	"iter"

	"chainguard.dev/formatbot/metrics"
	"chainguard.dev/formatbot/selector"
	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel/attribute"
)

// Lister produces the tracked files of a checkout.
type Lister interface {
	TrackedFiles(ctx context.Context) iter.Seq2[string, error]
}

// Job binds a formatter to the filter selecting its files.
type Job struct {
	Formatter Formatter
	Filter    selector.Filter
}

// Pipeline formats a checkout with each of its jobs in order.
type Pipeline struct {
	Runner *Runner
	Jobs   []Job
}

// Summary counts the files formatted per formatter name.
type Summary map[string]int

// Run executes every job against a fresh listing of the tracked files. Each
// job waits for all of its invocations before the next one starts, so Run
// returning means the working tree is no longer being modified.
func (p *Pipeline) Run(ctx context.Context, lister Lister) (_ Summary, err error) {
	ctx, phase := metrics.StartPhase(ctx, "format", attribute.Int("jobs", len(p.Jobs)))
	defer func() { phase.End(err) }()

	filters := make([]selector.Filter, 0, len(p.Jobs))
	for _, j := range p.Jobs {
		filters = append(filters, j.Filter)
	}

	log := clog.FromContext(ctx)
	summary := make(Summary, len(p.Jobs))
	for i, j := range p.Jobs {
		paths := selector.Select(lister.TrackedFiles(ctx), j.Filter)
		if i == 0 && len(filters) > 1 {
			paths = reportOverlap(ctx, paths, filters)
		}

		n, err := p.Runner.RunAll(ctx, paths, j.Formatter)
		summary[j.Formatter.Name] += n
		if err != nil {
			return summary, fmt.Errorf("formatting with %s: %w", j.Formatter.Name, err)
		}
		log.Infof("Formatted %d files with %s", n, j.Formatter.Name)
	}
	return summary, nil
}

// reportOverlap logs the paths that more than one job will format.
func reportOverlap(ctx context.Context, paths iter.Seq2[string, error], filters []selector.Filter) iter.Seq2[string, error] {
	log := clog.FromContext(ctx)
	return func(yield func(string, error) bool) {
		for path, err := range paths {
			if err == nil && selector.Overlap(path, filters...) {
				log.With("path", path).Debug("File selected by more than one formatter")
			}
			if !yield(path, err) {
				return
			}
		}
	}
}
