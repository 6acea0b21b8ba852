/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package formatreconciler

import (
	"context"
	"errors"
	"fmt"

	"chainguard.dev/formatbot/clonemanager"
	"chainguard.dev/formatbot/command"
	"chainguard.dev/formatbot/formatter"
	"chainguard.dev/formatbot/metrics"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
	"go.opentelemetry.io/otel/attribute"
)

// Workspace is a prepared checkout the bot formats and reconciles.
type Workspace interface {
	formatter.Lister
	Dir() string
	ConfigureIdentity() error
	Diff() (clonemanager.DiffResult, error)
	Reconcile(ctx context.Context, changed, amend bool) (clonemanager.Outcome, error)
}

// Cloner hydrates a branch of a repository into dir.
type Cloner interface {
	Clone(ctx context.Context, dir, fullName, branch string, depth int) (Workspace, error)
}

// ClonerFunc adapts a function to the Cloner interface.
type ClonerFunc func(ctx context.Context, dir, fullName, branch string, depth int) (Workspace, error)

func (f ClonerFunc) Clone(ctx context.Context, dir, fullName, branch string, depth int) (Workspace, error) {
	return f(ctx, dir, fullName, branch, depth)
}

// ManagerCloner clones through a clonemanager.Manager.
func ManagerCloner(m *clonemanager.Manager) Cloner {
	return ClonerFunc(func(ctx context.Context, dir, fullName, branch string, depth int) (Workspace, error) {
		return m.Clone(ctx, dir, fullName, branch, depth)
	})
}

// GitHub is the subset of the GitHub API the command flow needs.
type GitHub interface {
	GetPullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, error)
	CreateComment(ctx context.Context, owner, repo string, number int, body string) error
}

// Reconciler runs the check and command flows.
type Reconciler struct {
	workspace   string
	cloner      Cloner
	gh          GitHub
	parser      *command.Parser
	jobs        []formatter.Job
	parallelism int
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithParallelism bounds the concurrent formatter invocations. Zero uses the
// available parallelism.
func WithParallelism(n int) Option {
	return func(r *Reconciler) {
		r.parallelism = n
	}
}

// New creates a Reconciler that clones into workspace and formats with jobs
// in order.
func New(workspace string, cloner Cloner, gh GitHub, parser *command.Parser, jobs []formatter.Job, opts ...Option) *Reconciler {
	r := &Reconciler{
		workspace: workspace,
		cloner:    cloner,
		gh:        gh,
		parser:    parser,
		jobs:      jobs,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dispatch runs mode against event and returns the exit code of the run.
// Check forwards the diff exit code; command exits 0 on success.
func (r *Reconciler) Dispatch(ctx context.Context, mode Mode, event any) (code int, err error) {
	outcome := "ok"
	defer func() {
		if err != nil {
			outcome = KindOf(err).String()
		}
		metrics.RecordRun(string(mode), outcome)
	}()

	switch mode {
	case ModeCheck:
		ev, ok := event.(*github.PushEvent)
		if !ok {
			err := ProtocolError(fmt.Errorf("check requires a %s event, got %T", EventPush, event))
			return ExitCode(err), err
		}
		code, err := r.Check(ctx, ev)
		if err != nil {
			return ExitCode(err), err
		}
		if code != 0 {
			outcome = "drift"
		}
		return code, nil

	case ModeCommand:
		ev, ok := event.(*github.IssueCommentEvent)
		if !ok {
			err := ProtocolError(fmt.Errorf("this action is only compatible with '%s' events, got %T", EventIssueComment, event))
			return ExitCode(err), err
		}
		if err := r.Command(ctx, ev); err != nil {
			return ExitCode(err), err
		}
		return 0, nil

	default:
		err := ConfigError(fmt.Errorf("unknown mode %q", mode))
		return ExitCode(err), err
	}
}

// Check clones the pushed branch, formats it and returns the diff exit code:
// 0 when the branch is formatted, 1 when it is not.
func (r *Reconciler) Check(ctx context.Context, ev *github.PushEvent) (_ int, err error) {
	ref := ev.GetRef()
	fullName := ev.GetRepo().GetFullName()
	if ref == "" || fullName == "" {
		return 0, ProtocolError(errors.New("push event is missing the ref or repository"))
	}
	branch := RefToBranch(ref)

	ctx, phase := metrics.StartPhase(ctx, "check",
		attribute.String("repository", fullName),
		attribute.String("branch", branch))
	defer func() { phase.End(err) }()

	log := clog.FromContext(ctx).With("repository", fullName, "branch", branch)
	ctx = clog.WithLogger(ctx, log)

	ws, err := r.prepare(ctx, fullName, branch, 1)
	if err != nil {
		return 0, err
	}

	res, err := ws.Diff()
	if err != nil {
		return 0, ExternalError(fmt.Errorf("evaluating diff: %w", err))
	}
	if res.Changed {
		log.Warn("Branch is not formatted")
	} else {
		log.Info("Branch is formatted")
	}
	return res.ExitCode, nil
}

// Command handles a pull request comment addressed to the bot.
func (r *Reconciler) Command(ctx context.Context, ev *github.IssueCommentEvent) (err error) {
	issue := ev.GetIssue()
	if !issue.IsPullRequest() {
		return ProtocolError(errors.New("the bot only works with pull request comments"))
	}

	cmd, err := r.parser.Parse(ev.GetComment().GetBody())
	if errors.Is(err, command.ErrNotForBot) {
		return Ignored(fmt.Errorf("the command must start with %s", r.parser.Mention()))
	}

	owner := ev.GetRepo().GetOwner().GetLogin()
	repo := ev.GetRepo().GetName()
	number := issue.GetNumber()

	ctx, phase := metrics.StartPhase(ctx, "command",
		attribute.String("repository", owner+"/"+repo),
		attribute.Int("number", number))
	defer func() { phase.End(err) }()

	log := clog.FromContext(ctx).With("repository", owner+"/"+repo, "number", number)
	ctx = clog.WithLogger(ctx, log)

	pr, prErr := r.gh.GetPullRequest(ctx, owner, repo, number)
	if prErr != nil {
		return ExternalError(fmt.Errorf("fetching pull request: %w", prErr))
	}

	var usage *command.UsageError
	if errors.As(err, &usage) {
		log.With("error", usage.Err).Info("Rejected command, posting usage")
		if err := r.gh.CreateComment(ctx, owner, repo, number, usage.Usage); err != nil {
			return ExternalError(fmt.Errorf("posting usage: %w", err))
		}
		return ProtocolError(usage)
	}
	if err != nil {
		return ProtocolError(err)
	}

	head := pr.GetHead()
	fullName, branch := head.GetRepo().GetFullName(), head.GetRef()
	if fullName == "" || branch == "" {
		return ProtocolError(errors.New("pull request head is missing the repository or branch"))
	}

	// Amending needs the parent of HEAD.
	depth := 1
	if cmd.Amend {
		depth = 2
	}

	log = log.With("head", fullName+":"+branch, "amend", cmd.Amend)
	ctx = clog.WithLogger(ctx, log)
	log.Infof("Running %s", cmd.Verb)

	ws, err := r.prepare(ctx, fullName, branch, depth)
	if err != nil {
		return err
	}

	res, err := ws.Diff()
	if err != nil {
		return ExternalError(fmt.Errorf("evaluating diff: %w", err))
	}

	outcome, err := ws.Reconcile(ctx, res.Changed, cmd.Amend)
	if err != nil {
		return ExternalError(fmt.Errorf("reconciling formatting: %w", err))
	}
	log.With("outcome", outcome.String()).Info("Pull request reconciled")
	return nil
}

// prepare clones the branch, configures the bot identity and formats the
// checkout. It returns once every formatter invocation has exited.
func (r *Reconciler) prepare(ctx context.Context, fullName, branch string, depth int) (Workspace, error) {
	ws, err := r.cloner.Clone(ctx, r.workspace, fullName, branch, depth)
	if err != nil {
		return nil, ExternalError(fmt.Errorf("cloning %s: %w", fullName, err))
	}
	if err := ws.ConfigureIdentity(); err != nil {
		return nil, ExternalError(fmt.Errorf("configuring identity: %w", err))
	}

	p := &formatter.Pipeline{
		Runner: &formatter.Runner{Dir: ws.Dir(), Jobs: r.parallelism},
		Jobs:   r.jobs,
	}
	summary, err := p.Run(ctx, ws)
	if err != nil {
		return nil, ExternalError(err)
	}
	for name, n := range summary {
		clog.FromContext(ctx).With("formatter", name, "files", n).Debug("Formatter finished")
	}
	return ws, nil
}
