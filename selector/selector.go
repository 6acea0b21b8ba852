/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package selector

import (
	"fmt"
	"iter"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Set is an ordered list of validated glob patterns.
type Set []string

// Compile validates patterns and returns them as a Set. Blank entries are
// dropped so that an empty comma-separated flag yields an empty Set.
func Compile(patterns []string) (Set, error) {
	set := make(Set, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid glob pattern %q", p)
		}
		set = append(set, p)
	}
	return set, nil
}

// MustCompile is like Compile but panics on an invalid pattern.
func MustCompile(patterns ...string) Set {
	set, err := Compile(patterns)
	if err != nil {
		panic(err)
	}
	return set
}

// Matches reports whether path matches any pattern in the set.
func (s Set) Matches(path string) bool {
	for _, p := range s {
		// Patterns were validated by Compile, so the error is always nil.
		if ok, _ := doublestar.Match(p, path); ok {
			return true
		}
	}
	return false
}

// Filter selects paths that match Include and do not match Exclude.
type Filter struct {
	Include Set
	Exclude Set
}

// Match reports whether path is selected by the filter.
func (f Filter) Match(path string) bool {
	return f.Include.Matches(path) && !f.Exclude.Matches(path)
}

// Select lazily yields the paths of seq selected by f. Listing errors are
// passed through unchanged and end the sequence.
func Select(seq iter.Seq2[string, error], f Filter) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for path, err := range seq {
			if err != nil {
				yield("", err)
				return
			}
			if !f.Match(path) {
				continue
			}
			if !yield(path, nil) {
				return
			}
		}
	}
}

// Paths adapts a fixed list of paths to the sequence shape consumed by Select.
func Paths(paths []string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, p := range paths {
			if !yield(p, nil) {
				return
			}
		}
	}
}

// Overlap reports whether path is selected by more than one of filters. Such
// files are formatted once per matching formatter.
func Overlap(path string, filters ...Filter) bool {
	n := 0
	for _, f := range filters {
		if f.Match(path) {
			n++
		}
	}
	return n > 1
}
