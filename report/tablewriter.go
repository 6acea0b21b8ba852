/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package report

import (
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

// selectedMark fills the formatter columns of the paths they select.
const selectedMark = "yes"

// newSelectionTable creates a GitHub flavored markdown table with a left
// aligned path column followed by one centered column per formatter, so the
// listing can be pasted into a pull request comment as is.
func newSelectionTable(formatters []string, w io.Writer) *tablewriter.Table {
	headers := append([]string{"Path"}, formatters...)
	align := make([]tw.Align, len(headers))
	align[0] = tw.AlignLeft
	for i := 1; i < len(align); i++ {
		align[i] = tw.AlignCenter
	}

	cfg := tablewriter.Config{
		Header: tw.CellConfig{
			Alignment:  tw.CellAlignment{PerColumn: align},
			Formatting: tw.CellFormatting{AutoFormat: tw.Off},
		},
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{PerColumn: align},
		},
		Behavior: tw.Behavior{TrimSpace: tw.On},
	}
	return tablewriter.NewTable(w,
		tablewriter.WithConfig(cfg),
		tablewriter.WithHeader(headers),
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
	)
}
