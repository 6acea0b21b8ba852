/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"chainguard.dev/formatbot/clonemanager"
	"chainguard.dev/formatbot/command"
	"chainguard.dev/formatbot/config"
	"chainguard.dev/formatbot/formatter"
	"chainguard.dev/formatbot/githubclient"
	"chainguard.dev/formatbot/gitsign"
	"chainguard.dev/formatbot/reconcilers/formatreconciler"
	"chainguard.dev/formatbot/selector"
	"github.com/alecthomas/kong"
	"github.com/chainguard-dev/clog"
	gogit "github.com/go-git/go-git/v5"
	"golang.org/x/oauth2"
)

// CLI is the command line of formatbot.
type CLI struct {
	GitHubToken string `name:"github-token" env:"GITHUB_TOKEN" help:"Token used to clone, push and comment."`

	ClangFormatVersion  string `default:"${clang_format_version}" xor:"clang" help:"clang-format version shipped in the action image."`
	ClangFormatOverride string `type:"path" xor:"clang" help:"Path of the clang-format binary to use instead."`
	BlackOverride       string `type:"path" help:"Path of the black binary to use instead of the one on PATH."`

	Include   []string `default:"${default_include}" sep:"," help:"Comma separated globs of C and C++ files."`
	PyInclude []string `name:"py-include" aliases:"py_include" default:"${default_py_include}" sep:"," help:"Comma separated globs of Python files."`
	Exclude   []string `sep:"," help:"Comma separated globs excluded from formatting."`

	BotName     string `default:"${default_bot_name}" help:"Name the bot is mentioned by and commits as."`
	Jobs        int    `short:"j" help:"Concurrent formatter processes (0 uses every CPU)."`
	Config      string `type:"path" help:"YAML settings file (default: ${default_settings} in the workspace)."`
	LogLevel    string `default:"info" enum:"debug,info,warn,error" help:"Log level."`
	SignCommits bool   `help:"Sign bot commits with sigstore keyless certificates."`
	Pushgateway string `env:"FORMATBOT_PUSHGATEWAY" help:"Prometheus Pushgateway receiving run metrics."`

	AppID          int64  `name:"app-id" env:"GITHUB_APP_ID" help:"GitHub App ID to authenticate as."`
	InstallationID int64  `name:"installation-id" env:"GITHUB_APP_INSTALLATION_ID" help:"GitHub App installation ID."`
	AppPrivateKey  string `name:"app-private-key" type:"path" env:"GITHUB_APP_PRIVATE_KEY_PATH" help:"GitHub App private key file."`

	Command CommandCmd `cmd:"" help:"Handle a pull request comment addressed to the bot."`
	Check   CheckCmd   `cmd:"" help:"Fail when the pushed branch is not formatted."`
	List    ListCmd    `cmd:"" help:"List the files of the workspace that would be formatted."`

	code int `kong:"-"`
}

func options() []kong.Option {
	return []kong.Option{
		kong.Name("formatbot"),
		kong.Description("Keeps C, C++ and Python sources formatted."),
		kong.Vars{
			"clang_format_version": config.DefaultClangFormatVersion,
			"default_include":      config.DefaultInclude,
			"default_py_include":   config.DefaultPyInclude,
			"default_bot_name":     config.DefaultBotName,
			"default_settings":     config.DefaultSettingsPath,
		},
		kong.UsageOnError(),
	}
}

func (c *CLI) level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func (c *CLI) formatting() config.Formatting {
	return config.Formatting{
		BotName:            c.BotName,
		ClangFormatVersion: c.ClangFormatVersion,
		Include:            c.Include,
		PyInclude:          c.PyInclude,
		Exclude:            c.Exclude,
		Jobs:               c.Jobs,
		SignCommits:        c.SignCommits,
	}
}

// run is the resolved configuration shared by the subcommands.
type run struct {
	env       *config.Env
	workspace string
	cfg       config.Formatting
	native    selector.Filter
	script    selector.Filter
}

func (c *CLI) resolve(ctx context.Context) (*run, error) {
	env, err := config.LoadEnv(ctx)
	if err != nil {
		return nil, formatreconciler.ConfigError(err)
	}
	workspace, err := env.WorkspaceDir()
	if err != nil {
		return nil, formatreconciler.ConfigError(fmt.Errorf("resolving workspace: %w", err))
	}

	settings, err := c.settings(workspace)
	if err != nil {
		return nil, formatreconciler.ConfigError(err)
	}
	f := settings.Apply(c.formatting())
	if f.Jobs < 0 {
		return nil, formatreconciler.ConfigError(fmt.Errorf("--jobs must not be negative, got %d", f.Jobs))
	}

	exclude, err := selector.Compile(f.Exclude)
	if err != nil {
		return nil, formatreconciler.ConfigError(fmt.Errorf("--exclude: %w", err))
	}
	include, err := selector.Compile(f.Include)
	if err != nil {
		return nil, formatreconciler.ConfigError(fmt.Errorf("--include: %w", err))
	}
	pyInclude, err := selector.Compile(f.PyInclude)
	if err != nil {
		return nil, formatreconciler.ConfigError(fmt.Errorf("--py-include: %w", err))
	}

	clog.FromContext(ctx).With("bot", f.BotName, "workspace", workspace).Debug("Resolved configuration")
	return &run{
		env:       env,
		workspace: workspace,
		cfg:       f,
		native:    selector.Filter{Include: include, Exclude: exclude},
		script:    selector.Filter{Include: pyInclude, Exclude: exclude},
	}, nil
}

// settings loads the explicit settings file, or the default one when it
// exists in the workspace.
func (c *CLI) settings(workspace string) (*config.Settings, error) {
	path, explicit := c.Config, c.Config != ""
	if !explicit {
		path = filepath.Join(workspace, config.DefaultSettingsPath)
	}
	s, err := config.LoadSettings(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return nil, nil
	}
	return s, err
}

// jobs pairs the formatters with their filters, clang-format first. With
// resolve unset the binaries are not looked up.
func (c *CLI) jobs(r *run, resolve bool) ([]formatter.Job, error) {
	clang := formatter.ClangFormat("")
	black := formatter.Black("")
	if resolve {
		path, err := formatter.ResolveClangFormat(r.cfg.ClangFormatVersion, c.ClangFormatOverride, r.env.InAction())
		if err != nil {
			return nil, formatreconciler.ConfigError(err)
		}
		clang.Path = path

		if path, err = formatter.ResolveBlack(c.BlackOverride); err != nil {
			return nil, formatreconciler.ConfigError(err)
		}
		black.Path = path
	}
	return []formatter.Job{
		{Formatter: clang, Filter: r.native},
		{Formatter: black, Filter: r.script},
	}, nil
}

// reconciler wires the clone manager, GitHub client and formatters.
func (c *CLI) reconciler(ctx context.Context, r *run) (*formatreconciler.Reconciler, error) {
	jobs, err := c.jobs(r, true)
	if err != nil {
		return nil, err
	}

	ts, err := githubclient.TokenSource(ctx, c.GitHubToken, githubclient.App{
		ID:             c.AppID,
		InstallationID: c.InstallationID,
		PrivateKeyPath: c.AppPrivateKey,
	}, r.env.APIURL)
	if err != nil {
		return nil, formatreconciler.ConfigError(err)
	}

	var signer gogit.Signer
	if r.cfg.SignCommits {
		if signer, err = gitsign.NewSigner(ctx, gitsign.Options{}); err != nil {
			return nil, formatreconciler.ConfigError(fmt.Errorf("creating commit signer: %w", err))
		}
	}

	mgr, err := clonemanager.New(ctx, ts, r.cfg.BotName, signer, clonemanager.WithServerURL(r.env.ServerURL))
	if err != nil {
		return nil, formatreconciler.ConfigError(err)
	}

	gh, err := githubclient.NewClient(ctx, ts, r.env.APIURL)
	if err != nil {
		return nil, formatreconciler.ConfigError(err)
	}

	return formatreconciler.New(
		r.workspace,
		formatreconciler.ManagerCloner(mgr),
		githubclient.NewAPI(gh),
		command.NewParser(r.cfg.BotName),
		jobs,
		formatreconciler.WithParallelism(r.cfg.Jobs),
	), nil
}

// anonymous is used where no remote is contacted.
var anonymous = oauth2.StaticTokenSource(&oauth2.Token{})
