/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package formatter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"chainguard.dev/formatbot/metrics"
	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"
)

// ExitError reports a formatter invocation that exited with a non-zero status.
type ExitError struct {
	Formatter string
	Path      string
	Code      int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with status %d formatting %s", e.Formatter, e.Code, e.Path)
}

// Runner executes formatter invocations inside a working directory.
type Runner struct {
	// Dir is the working directory of every invocation; selected paths are
	// relative to it.
	Dir string

	// Jobs bounds the number of concurrent invocations. Zero means the
	// available parallelism.
	Jobs int

	// Stdout and Stderr receive the formatter output. They default to the
	// process's own streams.
	Stdout io.Writer
	Stderr io.Writer
}

// NewRunner returns a Runner for dir sized to the available parallelism.
func NewRunner(dir string) *Runner {
	return &Runner{Dir: dir}
}

func (r *Runner) jobs() int {
	if r.Jobs > 0 {
		return r.Jobs
	}
	return runtime.GOMAXPROCS(0)
}

// RunAll formats every path of paths with f and returns the number of files
// formatted. It returns once all started invocations have exited. The first
// failure (a listing error, a process that cannot start, or a non-zero exit)
// stops the run and is returned.
func (r *Runner) RunAll(ctx context.Context, paths iter.Seq2[string, error], f Formatter) (int, error) {
	stdout, stderr := r.writers()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.jobs())

	var formatted atomic.Int64
	var listErr error
	for path, err := range paths {
		if err != nil {
			listErr = fmt.Errorf("listing files: %w", err)
			break
		}
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := r.run(gctx, f, path, stdout, stderr); err != nil {
				metrics.RecordFormatterFailure(f.Name)
				return err
			}
			metrics.RecordFormatted(f.Name)
			formatted.Add(1)
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = listErr
	}
	return int(formatted.Load()), err
}

func (r *Runner) run(ctx context.Context, f Formatter, path string, stdout, stderr io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	args := f.Command(path)
	clog.FromContext(ctx).Infof("Running: %s %s", f.Path, strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, f.Path, args...)
	cmd.Dir = r.Dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			return &ExitError{Formatter: f.Name, Path: path, Code: exitErr.ExitCode()}
		}
		return fmt.Errorf("running %s on %s: %w", f.Name, path, err)
	}
	return nil
}

func (r *Runner) writers() (io.Writer, io.Writer) {
	stdout, stderr := r.Stdout, r.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return guard(stdout), guard(stderr)
}

// guard serializes writes from concurrent processes. Files are handed to the
// child processes directly and need no locking.
func guard(w io.Writer) io.Writer {
	if _, ok := w.(*os.File); ok {
		return w
	}
	return &lockedWriter{w: w}
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
