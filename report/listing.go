/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package report renders the files the bot would format.
package report

import (
	"context"
	"fmt"
	"io"
	"slices"

	"chainguard.dev/formatbot/formatter"
	"chainguard.dev/formatbot/selector"
)

// Entry is one file selected for a formatter.
type Entry struct {
	Formatter string
	Path      string
}

// Listing holds the selected files in job order.
type Listing []Entry

// Collect selects the tracked files of lister for every job. A file matched
// by several jobs appears once per job.
func Collect(ctx context.Context, lister formatter.Lister, jobs []formatter.Job) (Listing, error) {
	var out Listing
	for _, j := range jobs {
		for path, err := range selector.Select(lister.TrackedFiles(ctx), j.Filter) {
			if err != nil {
				return nil, fmt.Errorf("listing files for %s: %w", j.Formatter.Name, err)
			}
			out = append(out, Entry{Formatter: j.Formatter.Name, Path: path})
		}
	}
	return out, nil
}

// WriteText prints one path per line.
func (l Listing) WriteText(w io.Writer) error {
	for _, e := range l {
		if _, err := fmt.Fprintln(w, e.Path); err != nil {
			return err
		}
	}
	return nil
}

// WriteTable prints a markdown table with one row per path and one column per
// formatter. A path selected by several formatters shares a single row.
func (l Listing) WriteTable(w io.Writer) error {
	var formatters, paths []string
	selected := map[string]map[string]bool{}
	for _, e := range l {
		if !slices.Contains(formatters, e.Formatter) {
			formatters = append(formatters, e.Formatter)
		}
		if selected[e.Path] == nil {
			selected[e.Path] = map[string]bool{}
			paths = append(paths, e.Path)
		}
		selected[e.Path][e.Formatter] = true
	}

	table := newSelectionTable(formatters, w)
	for _, p := range paths {
		row := []string{p}
		for _, f := range formatters {
			mark := ""
			if selected[p][f] {
				mark = selectedMark
			}
			row = append(row, mark)
		}
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}
