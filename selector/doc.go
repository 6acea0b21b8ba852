/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package selector picks the tracked files a formatter should run over.
//
// A Filter pairs an include Set with an exclude Set. A path is selected when it
// matches at least one include pattern and no exclude pattern; exclusion always
// wins, and the order of patterns within either set is irrelevant. Patterns use
// shell-glob semantics (`*`, `**`, `?`, character classes and `{a,b}`
// alternation) and are matched against the full slash-separated path relative
// to the repository root.
//
// Select is lazy: it consumes the tracked file listing as it is produced, so
// formatting can start before the listing is complete.
package selector
