/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package formatter

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ActionClangFormatDir holds the versioned clang-format binaries shipped in
// the GitHub Action image.
const ActionClangFormatDir = "/clang-format"

// ErrNotFound is returned when a formatter binary cannot be located.
var ErrNotFound = errors.New("formatter binary not found")

// Formatter describes an external formatter invocation. Args is the fixed
// argument template; the file path is appended to it for every file.
type Formatter struct {
	Name string
	Path string
	Args []string
}

// ClangFormat returns a Formatter that rewrites files in place with the
// clang-format binary at path.
func ClangFormat(path string) Formatter {
	return Formatter{Name: "clang-format", Path: path, Args: []string{"-i"}}
}

// Black returns a Formatter that rewrites files in place with the black
// binary at path.
func Black(path string) Formatter {
	return Formatter{Name: "black", Path: path}
}

// Command returns the argument vector used to format file.
func (f Formatter) Command(file string) []string {
	args := make([]string, 0, len(f.Args)+1)
	args = append(args, f.Args...)
	return append(args, file)
}

func (f Formatter) String() string {
	return fmt.Sprintf("%s (%s)", f.Name, f.Path)
}

// lookPath is swapped out by tests.
var lookPath = defaultLookPath

func defaultLookPath(name string) (string, error) { return exec.LookPath(name) }

// Resolve locates a formatter binary. An explicit override wins; otherwise
// the first candidate that exists is used, and finally the binary is looked up
// on PATH by name. The returned path is verified to exist.
func Resolve(name, override string, candidates ...string) (string, error) {
	if override != "" {
		return existing(name, override)
	}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	path, err := lookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrNotFound, name, err)
	}
	return existing(name, path)
}

// ResolveClangFormat locates clang-format. Inside the GitHub Action the
// versioned binary under ActionClangFormatDir is required; elsewhere the
// binary on PATH is used.
func ResolveClangFormat(version, override string, inAction bool) (string, error) {
	if override == "" && inAction {
		path := filepath.Join(ActionClangFormatDir, "clang-format-"+strings.TrimSpace(version))
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("%w: no clang-format version %s", ErrNotFound, version)
		}
		return path, nil
	}
	return Resolve("clang-format", override)
}

// ResolveBlack locates the black python formatter.
func ResolveBlack(override string) (string, error) {
	return Resolve("black", override)
}

func existing(name, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %s at %s: %w", ErrNotFound, name, path, err)
	}
	return path, nil
}
