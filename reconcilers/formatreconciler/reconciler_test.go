/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package formatreconciler

import (
	"context"
	"errors"
	"iter"
	"os"
	"path/filepath"
	"testing"

	"chainguard.dev/formatbot/clonemanager"
	"chainguard.dev/formatbot/command"
	"chainguard.dev/formatbot/formatter"
	"chainguard.dev/formatbot/selector"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-github/v84/github"
	"github.com/stretchr/testify/require"
)

type cloneCall struct {
	Dir, FullName, Branch string
	Depth                 int
}

type reconcileCall struct {
	Changed, Amend bool
}

type fakeWorkspace struct {
	dir        string
	files      []string
	diff       clonemanager.DiffResult
	identity   bool
	reconciled []reconcileCall
}

func (w *fakeWorkspace) Dir() string { return w.dir }

func (w *fakeWorkspace) TrackedFiles(context.Context) iter.Seq2[string, error] {
	return selector.Paths(w.files)
}

func (w *fakeWorkspace) ConfigureIdentity() error {
	w.identity = true
	return nil
}

func (w *fakeWorkspace) Diff() (clonemanager.DiffResult, error) { return w.diff, nil }

func (w *fakeWorkspace) Reconcile(_ context.Context, changed, amend bool) (clonemanager.Outcome, error) {
	if !w.identity {
		return clonemanager.OutcomeNoop, clonemanager.ErrIdentityNotConfigured
	}
	w.reconciled = append(w.reconciled, reconcileCall{Changed: changed, Amend: amend})
	switch {
	case !changed:
		return clonemanager.OutcomeNoop, nil
	case amend:
		return clonemanager.OutcomeAmended, nil
	default:
		return clonemanager.OutcomeCommitted, nil
	}
}

type fakeCloner struct {
	ws    *fakeWorkspace
	err   error
	calls []cloneCall
}

func (c *fakeCloner) Clone(_ context.Context, dir, fullName, branch string, depth int) (Workspace, error) {
	c.calls = append(c.calls, cloneCall{Dir: dir, FullName: fullName, Branch: branch, Depth: depth})
	if c.err != nil {
		return nil, c.err
	}
	return c.ws, nil
}

type fakeGitHub struct {
	pr       *github.PullRequest
	prErr    error
	fetched  int
	comments []string
}

func (g *fakeGitHub) GetPullRequest(_ context.Context, owner, repo string, number int) (*github.PullRequest, error) {
	g.fetched++
	return g.pr, g.prErr
}

func (g *fakeGitHub) CreateComment(_ context.Context, owner, repo string, number int, body string) error {
	g.comments = append(g.comments, body)
	return nil
}

func pushEvent(ref string) *github.PushEvent {
	return &github.PushEvent{
		Ref:  github.Ptr(ref),
		Repo: &github.PushEventRepository{FullName: github.Ptr("octo/widgets")},
	}
}

func commentEvent(body string, pr bool) *github.IssueCommentEvent {
	issue := &github.Issue{Number: github.Ptr(7)}
	if pr {
		issue.PullRequestLinks = &github.PullRequestLinks{URL: github.Ptr("https://api.github.com/repos/octo/widgets/pulls/7")}
	}
	return &github.IssueCommentEvent{
		Issue:   issue,
		Comment: &github.IssueComment{Body: github.Ptr(body)},
		Repo: &github.Repository{
			Name:  github.Ptr("widgets"),
			Owner: &github.User{Login: github.Ptr("octo")},
		},
	}
}

func headPR() *github.PullRequest {
	return &github.PullRequest{
		Number: github.Ptr(7),
		Head: &github.PullRequestBranch{
			Ref:  github.Ptr("feature"),
			Repo: &github.Repository{FullName: github.Ptr("fork/widgets")},
		},
	}
}

func newTestReconciler(cl Cloner, gh GitHub, jobs ...formatter.Job) *Reconciler {
	return New("/workspace", cl, gh, command.NewParser("bot"), jobs)
}

func TestRefToBranch(t *testing.T) {
	tests := []struct {
		ref, want string
	}{
		{"refs/heads/main", "main"},
		{"refs/heads/feature/x", "feature/x"},
		{"refs/tags/v1.2.3", "v1.2.3"},
		{"refs/pull/1/merge", "refs/pull/1/merge"},
		{"main", "main"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := RefToBranch(tt.ref); got != tt.want {
			t.Errorf("RefToBranch(%q) = %q, want %q", tt.ref, got, tt.want)
		}
	}
}

func TestLoadEvent(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		return path
	}
	push := write("push.json", `{"ref":"refs/heads/main","repository":{"full_name":"octo/widgets"}}`)
	comment := write("comment.json", `{"action":"created","issue":{"number":7,"pull_request":{"url":"https://api.github.com/repos/octo/widgets/pulls/7"}},"comment":{"body":"@bot format"}}`)

	ev, err := LoadEvent(EventPush, push)
	require.NoError(t, err)
	pe, ok := ev.(*github.PushEvent)
	if !ok {
		t.Fatalf("LoadEvent(push) = %T, want *github.PushEvent", ev)
	}
	if pe.GetRef() != "refs/heads/main" || pe.GetRepo().GetFullName() != "octo/widgets" {
		t.Errorf("push event = %+v", pe)
	}

	ev, err = LoadEvent(EventIssueComment, comment)
	require.NoError(t, err)
	ce, ok := ev.(*github.IssueCommentEvent)
	if !ok {
		t.Fatalf("LoadEvent(issue_comment) = %T, want *github.IssueCommentEvent", ev)
	}
	if !ce.GetIssue().IsPullRequest() || ce.GetComment().GetBody() != "@bot format" {
		t.Errorf("comment event = %+v", ce)
	}

	for name, tc := range map[string]struct{ event, path string }{
		"unknown event": {"not_an_event", push},
		"missing file":  {EventPush, filepath.Join(dir, "missing.json")},
		"no event name": {"", push},
		"bad payload":   {EventPush, write("bad.json", "{")},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadEvent(tc.event, tc.path)
			if KindOf(err) != KindProtocol {
				t.Errorf("LoadEvent() = %v, want a protocol error", err)
			}
		})
	}
}

func TestCheckForwardsExitCode(t *testing.T) {
	for _, diff := range []clonemanager.DiffResult{
		{},
		{Changed: true, ExitCode: 1},
	} {
		ws := &fakeWorkspace{dir: t.TempDir(), diff: diff}
		cl := &fakeCloner{ws: ws}
		r := newTestReconciler(cl, &fakeGitHub{})

		code, err := r.Dispatch(context.Background(), ModeCheck, pushEvent("refs/heads/main"))
		require.NoError(t, err)
		if code != diff.ExitCode {
			t.Errorf("Dispatch() = %d, want %d", code, diff.ExitCode)
		}
		want := []cloneCall{{Dir: "/workspace", FullName: "octo/widgets", Branch: "main", Depth: 1}}
		if d := cmp.Diff(want, cl.calls); d != "" {
			t.Errorf("clone calls mismatch (-want +got):\n%s", d)
		}
		if !ws.identity {
			t.Error("identity was not configured")
		}
		if len(ws.reconciled) != 0 {
			t.Errorf("check reconciled the workspace: %v", ws.reconciled)
		}
	}
}

func TestCheckTagPush(t *testing.T) {
	cl := &fakeCloner{ws: &fakeWorkspace{dir: t.TempDir()}}
	r := newTestReconciler(cl, &fakeGitHub{})

	if _, err := r.Check(context.Background(), pushEvent("refs/tags/v1.0.0")); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if got := cl.calls[0].Branch; got != "v1.0.0" {
		t.Errorf("cloned %q, want v1.0.0", got)
	}
}

func TestCheckCloneFailure(t *testing.T) {
	cl := &fakeCloner{err: errors.New("authentication required")}
	r := newTestReconciler(cl, &fakeGitHub{})

	code, err := r.Dispatch(context.Background(), ModeCheck, pushEvent("refs/heads/main"))
	if KindOf(err) != KindExternal || code != 1 {
		t.Errorf("Dispatch() = %d, %v; want 1 and an external error", code, err)
	}
}

func TestCheckFormatterFailure(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(t.TempDir(), "broken-format")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nexit 2\n"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.c"), []byte("int x;\n"), 0o644))

	ws := &fakeWorkspace{dir: dir, files: []string{"main.c", "README.md"}}
	r := newTestReconciler(&fakeCloner{ws: ws}, &fakeGitHub{}, formatter.Job{
		Formatter: formatter.Formatter{Name: "broken", Path: script},
		Filter:    selector.Filter{Include: selector.MustCompile("**/*.c")},
	})

	_, err := r.Check(context.Background(), pushEvent("refs/heads/main"))
	var exitErr *formatter.ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 2 {
		t.Fatalf("Check() = %v, want a formatter exit error", err)
	}
	if KindOf(err) != KindExternal {
		t.Errorf("KindOf() = %v, want %v", KindOf(err), KindExternal)
	}
}

func TestCommand(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		pr          bool
		diff        clonemanager.DiffResult
		wantKind    Kind
		wantClone   []cloneCall
		wantRecon   []reconcileCall
		wantComment bool
		wantFetched int
	}{{
		name:        "format with drift commits",
		body:        "@bot format",
		pr:          true,
		diff:        clonemanager.DiffResult{Changed: true, ExitCode: 1},
		wantClone:   []cloneCall{{Dir: "/workspace", FullName: "fork/widgets", Branch: "feature", Depth: 1}},
		wantRecon:   []reconcileCall{{Changed: true}},
		wantFetched: 1,
	}, {
		name:        "amend clones two commits",
		body:        "@bot format --amend",
		pr:          true,
		diff:        clonemanager.DiffResult{Changed: true, ExitCode: 1},
		wantClone:   []cloneCall{{Dir: "/workspace", FullName: "fork/widgets", Branch: "feature", Depth: 2}},
		wantRecon:   []reconcileCall{{Changed: true, Amend: true}},
		wantFetched: 1,
	}, {
		name:        "formatted branch is a no-op",
		body:        "@bot format",
		pr:          true,
		wantClone:   []cloneCall{{Dir: "/workspace", FullName: "fork/widgets", Branch: "feature", Depth: 1}},
		wantRecon:   []reconcileCall{{}},
		wantFetched: 1,
	}, {
		name:        "unknown verb posts usage",
		body:        "@bot frobnicate",
		pr:          true,
		wantKind:    KindProtocol,
		wantComment: true,
		wantFetched: 1,
	}, {
		name:     "comment not for the bot",
		body:     "not for the bot",
		pr:       true,
		wantKind: KindIgnored,
	}, {
		name:     "issue comment",
		body:     "@bot format",
		wantKind: KindProtocol,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := &fakeWorkspace{dir: t.TempDir(), diff: tt.diff}
			cl := &fakeCloner{ws: ws}
			gh := &fakeGitHub{pr: headPR()}
			r := newTestReconciler(cl, gh)

			code, err := r.Dispatch(context.Background(), ModeCommand, commentEvent(tt.body, tt.pr))
			if got := KindOf(err); got != tt.wantKind {
				t.Fatalf("Dispatch() error = %v (kind %v), want kind %v", err, got, tt.wantKind)
			}
			if wantCode := ExitCode(err); code != wantCode {
				t.Errorf("Dispatch() code = %d, want %d", code, wantCode)
			}
			if d := cmp.Diff(tt.wantClone, cl.calls); d != "" {
				t.Errorf("clone calls mismatch (-want +got):\n%s", d)
			}
			if d := cmp.Diff(tt.wantRecon, ws.reconciled); d != "" {
				t.Errorf("reconcile calls mismatch (-want +got):\n%s", d)
			}
			if gh.fetched != tt.wantFetched {
				t.Errorf("fetched pull request %d times, want %d", gh.fetched, tt.wantFetched)
			}

			var want []string
			if tt.wantComment {
				want = []string{command.Usage("bot")}
			}
			if d := cmp.Diff(want, gh.comments); d != "" {
				t.Errorf("comments mismatch (-want +got):\n%s", d)
			}
		})
	}
}

func TestCommandPullRequestError(t *testing.T) {
	cl := &fakeCloner{ws: &fakeWorkspace{}}
	gh := &fakeGitHub{prErr: errors.New("404 Not Found")}
	r := newTestReconciler(cl, gh)

	err := r.Command(context.Background(), commentEvent("@bot format", true))
	if KindOf(err) != KindExternal {
		t.Errorf("Command() = %v, want an external error", err)
	}
	if len(cl.calls) != 0 {
		t.Errorf("cloned after a failed pull request fetch: %v", cl.calls)
	}
}

func TestDispatchModeMismatch(t *testing.T) {
	r := newTestReconciler(&fakeCloner{}, &fakeGitHub{})
	ctx := context.Background()

	if _, err := r.Dispatch(ctx, ModeCheck, commentEvent("@bot format", true)); KindOf(err) != KindProtocol {
		t.Errorf("check with a comment event = %v, want a protocol error", err)
	}
	if _, err := r.Dispatch(ctx, ModeCommand, pushEvent("refs/heads/main")); KindOf(err) != KindProtocol {
		t.Errorf("command with a push event = %v, want a protocol error", err)
	}
	if _, err := r.Dispatch(ctx, Mode("list"), pushEvent("refs/heads/main")); KindOf(err) != KindConfig {
		t.Errorf("unknown mode = %v, want a config error", err)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
		kind Kind
	}{
		{"nil", nil, 0, 0},
		{"plain", errors.New("boom"), 1, KindExternal},
		{"ignored", Ignored(errors.New("not for us")), 1, KindIgnored},
		{"custom code", &Error{Kind: KindConfig, Code: 2, Err: errors.New("bad flag")}, 2, KindConfig},
		{"kind is kept", ExternalError(ProtocolError(errors.New("x"))), 1, KindProtocol},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
			if got := KindOf(tt.err); got != tt.kind {
				t.Errorf("KindOf() = %v, want %v", got, tt.kind)
			}
		})
	}
}
