/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package formatter

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"chainguard.dev/formatbot/selector"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// trimScript strips trailing whitespace from its last argument in place.
const trimScript = `#!/bin/sh
for last; do :; done
case "$last" in
*bad*) echo "cannot format $last" >&2; exit 3 ;;
esac
sed 's/[[:space:]]*$//' "$last" > "$last.fmt" && mv "$last.fmt" "$last"
`

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-formatter")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return dir
}

func readTree(t *testing.T, dir string, names ...string) map[string]string {
	t.Helper()
	got := make(map[string]string, len(names))
	for _, name := range names {
		b, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(name)))
		require.NoError(t, err)
		got[name] = string(b)
	}
	return got
}

func TestFormatterCommand(t *testing.T) {
	tests := []struct {
		name string
		f    Formatter
		want []string
	}{{
		name: "clang-format edits in place",
		f:    ClangFormat("/usr/bin/clang-format"),
		want: []string{"-i", "src/main.c"},
	}, {
		name: "black takes the bare path",
		f:    Black("/usr/bin/black"),
		want: []string{"src/main.c"},
	}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.f.Command("src/main.c")); diff != "" {
				t.Errorf("Command() mismatch (-want +got):\n%s", diff)
			}
		})
	}

	// The template must not be aliased between invocations.
	f := Formatter{Name: "x", Path: "x", Args: make([]string, 1, 4)}
	a, b := f.Command("a"), f.Command("b")
	if a[1] != "a" || b[1] != "b" {
		t.Errorf("Command() results alias each other: %v %v", a, b)
	}
}

func TestRunAll(t *testing.T) {
	ctx := context.Background()
	dir := writeTree(t, map[string]string{
		"main.c":      "int main() {}   \n",
		"lib/util.c":  "void f() {}\t\n",
		"lib/skip.py": "x = 1   \n",
	})
	f := Formatter{Name: "trim", Path: writeScript(t, trimScript), Args: []string{"-i"}}

	var stderr bytes.Buffer
	r := &Runner{Dir: dir, Stderr: &stderr}
	n, err := r.RunAll(ctx, selector.Paths([]string{"main.c", "lib/util.c"}), f)
	if err != nil {
		t.Fatalf("RunAll() = %v, stderr: %s", err, stderr.String())
	}
	if n != 2 {
		t.Errorf("RunAll() formatted %d files, want 2", n)
	}

	want := map[string]string{
		"main.c":      "int main() {}\n",
		"lib/util.c":  "void f() {}\n",
		"lib/skip.py": "x = 1   \n",
	}
	if diff := cmp.Diff(want, readTree(t, dir, "main.c", "lib/util.c", "lib/skip.py")); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}
}

func TestRunAllIdempotent(t *testing.T) {
	ctx := context.Background()
	dir := writeTree(t, map[string]string{
		"a.c": "a  \nb\t\n",
		"b.c": "c\n",
	})
	f := Formatter{Name: "trim", Path: writeScript(t, trimScript)}
	r := &Runner{Dir: dir, Jobs: 2}
	paths := []string{"a.c", "b.c"}

	if _, err := r.RunAll(ctx, selector.Paths(paths), f); err != nil {
		t.Fatalf("first RunAll() = %v", err)
	}
	first := readTree(t, dir, paths...)

	if _, err := r.RunAll(ctx, selector.Paths(paths), f); err != nil {
		t.Fatalf("second RunAll() = %v", err)
	}
	if diff := cmp.Diff(first, readTree(t, dir, paths...)); diff != "" {
		t.Errorf("second run changed the tree (-first +second):\n%s", diff)
	}
}

func TestRunAllFailureAborts(t *testing.T) {
	ctx := context.Background()
	dir := writeTree(t, map[string]string{
		"bad.c":   "x  \n",
		"after.c": "y  \n",
	})
	f := Formatter{Name: "trim", Path: writeScript(t, trimScript)}

	var stderr bytes.Buffer
	r := &Runner{Dir: dir, Jobs: 1, Stderr: &stderr}
	n, err := r.RunAll(ctx, selector.Paths([]string{"bad.c", "after.c"}), f)

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("RunAll() = %v, want *ExitError", err)
	}
	if exitErr.Code != 3 || exitErr.Path != "bad.c" || exitErr.Formatter != "trim" {
		t.Errorf("ExitError = %+v", exitErr)
	}
	if n != 0 {
		t.Errorf("formatted %d files, want 0", n)
	}
	if got := readTree(t, dir, "after.c")["after.c"]; got != "y  \n" {
		t.Errorf("after.c was formatted after the failure: %q", got)
	}
	if !strings.Contains(stderr.String(), "cannot format bad.c") {
		t.Errorf("stderr = %q, want formatter diagnostics", stderr.String())
	}
}

func TestRunAllListingError(t *testing.T) {
	boom := errors.New("tree walk failed")
	seq := func(yield func(string, error) bool) {
		yield("", boom)
	}
	r := &Runner{Dir: t.TempDir()}
	_, err := r.RunAll(context.Background(), seq, Formatter{Name: "none", Path: "/nonexistent"})
	if !errors.Is(err, boom) {
		t.Errorf("RunAll() = %v, want %v", err, boom)
	}
}

func TestRunAllMissingBinary(t *testing.T) {
	dir := writeTree(t, map[string]string{"a.c": "a\n"})
	r := &Runner{Dir: dir}
	_, err := r.RunAll(context.Background(), selector.Paths([]string{"a.c"}), Formatter{Name: "missing", Path: filepath.Join(dir, "nope")})
	if err == nil {
		t.Fatal("RunAll() with missing binary: expected error")
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		t.Errorf("RunAll() = %v, want a start failure rather than an exit status", err)
	}
}

type staticLister []string

func (l staticLister) TrackedFiles(context.Context) iter.Seq2[string, error] {
	return selector.Paths(l)
}

func TestPipelineRun(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"main.c":         "int x;  \n",
		"include/api.h":  "int y;  \n",
		"tools/gen.py":   "z = 1  \n",
		"vendor/lib.c":   "int v;  \n",
		"docs/README.md": "hi  \n",
	})
	script := writeScript(t, trimScript)

	p := &Pipeline{
		Runner: &Runner{Dir: dir},
		Jobs: []Job{{
			Formatter: Formatter{Name: "native", Path: script, Args: []string{"-i"}},
			Filter: selector.Filter{
				Include: selector.MustCompile("**/*.c", "**/*.h"),
				Exclude: selector.MustCompile("vendor/**"),
			},
		}, {
			Formatter: Formatter{Name: "script", Path: script},
			Filter: selector.Filter{
				Include: selector.MustCompile("**/*.py", "include/**"),
				Exclude: selector.MustCompile("vendor/**"),
			},
		}},
	}

	lister := staticLister{"main.c", "include/api.h", "tools/gen.py", "vendor/lib.c", "docs/README.md"}
	summary, err := p.Run(context.Background(), lister)
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}

	// include/api.h matches both filters and is formatted by both.
	if diff := cmp.Diff(Summary{"native": 2, "script": 2}, summary); diff != "" {
		t.Errorf("Run() summary mismatch (-want +got):\n%s", diff)
	}

	want := map[string]string{
		"main.c":         "int x;\n",
		"include/api.h":  "int y;\n",
		"tools/gen.py":   "z = 1\n",
		"vendor/lib.c":   "int v;  \n",
		"docs/README.md": "hi  \n",
	}
	if diff := cmp.Diff(want, readTree(t, dir, "main.c", "include/api.h", "tools/gen.py", "vendor/lib.c", "docs/README.md")); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}
}

func TestPipelineStopsOnFailure(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"bad.c":  "x  \n",
		"run.py": "y  \n",
	})
	script := writeScript(t, trimScript)
	p := &Pipeline{
		Runner: &Runner{Dir: dir, Stderr: &bytes.Buffer{}},
		Jobs: []Job{{
			Formatter: Formatter{Name: "native", Path: script},
			Filter:    selector.Filter{Include: selector.MustCompile("**/*.c")},
		}, {
			Formatter: Formatter{Name: "script", Path: script},
			Filter:    selector.Filter{Include: selector.MustCompile("**/*.py")},
		}},
	}

	_, err := p.Run(context.Background(), staticLister{"bad.c", "run.py"})
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("Run() = %v, want *ExitError", err)
	}
	if got := readTree(t, dir, "run.py")["run.py"]; got != "y  \n" {
		t.Errorf("script job ran after native failure: %q", got)
	}
}

func TestResolve(t *testing.T) {
	bin := writeScript(t, "#!/bin/sh\n")

	t.Run("override", func(t *testing.T) {
		got, err := Resolve("black", bin)
		require.NoError(t, err)
		if got != bin {
			t.Errorf("Resolve() = %q, want %q", got, bin)
		}
	})

	t.Run("missing override", func(t *testing.T) {
		_, err := Resolve("black", filepath.Join(t.TempDir(), "black"))
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Resolve() = %v, want ErrNotFound", err)
		}
	})

	t.Run("first existing candidate", func(t *testing.T) {
		got, err := Resolve("clang-format", "", filepath.Join(t.TempDir(), "missing"), bin)
		require.NoError(t, err)
		if got != bin {
			t.Errorf("Resolve() = %q, want %q", got, bin)
		}
	})

	t.Run("PATH lookup", func(t *testing.T) {
		lookPath = func(string) (string, error) { return bin, nil }
		t.Cleanup(func() { lookPath = defaultLookPath })
		got, err := ResolveBlack("")
		require.NoError(t, err)
		if got != bin {
			t.Errorf("ResolveBlack() = %q, want %q", got, bin)
		}
	})

	t.Run("not on PATH", func(t *testing.T) {
		lookPath = func(name string) (string, error) { return "", errors.New("executable file not found in $PATH") }
		t.Cleanup(func() { lookPath = defaultLookPath })
		_, err := ResolveClangFormat("10", "", false)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("ResolveClangFormat() = %v, want ErrNotFound", err)
		}
	})

	t.Run("action image version", func(t *testing.T) {
		if _, err := os.Stat(ActionClangFormatDir); err == nil {
			t.Skip("running inside the action image")
		}
		_, err := ResolveClangFormat("10", "", true)
		if !errors.Is(err, ErrNotFound) || !strings.Contains(err.Error(), "version 10") {
			t.Errorf("ResolveClangFormat() = %v, want missing version 10", err)
		}
	})
}
