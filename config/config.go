/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package config loads the CI environment and the optional settings file of
// the bot.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultBotName is the mention the bot answers to and its git identity.
	DefaultBotName = "cpp-py-formatter"

	// DefaultClangFormatVersion selects the clang-format binary shipped in
	// the action image.
	DefaultClangFormatVersion = "10"

	// DefaultInclude lists the C and C++ sources formatted by clang-format.
	DefaultInclude = "**/*.c,**/*.h,**/*.C,**/*.H,**/*.cpp,**/*.hpp,**/*.cxx,**/*.hxx,**/*.c++,**/*.h++,**/*.cc,**/*.hh"

	// DefaultPyInclude lists the Python sources formatted by black.
	DefaultPyInclude = "**/*.py"

	// DefaultSettingsPath is looked up relative to the workspace.
	DefaultSettingsPath = ".github/formatbot.yaml"
)

// Env is the GitHub Actions environment of a run.
type Env struct {
	EventName string `env:"GITHUB_EVENT_NAME"`
	EventPath string `env:"GITHUB_EVENT_PATH"`
	Workspace string `env:"GITHUB_WORKSPACE"`
	Action    string `env:"GITHUB_ACTION"`
	ServerURL string `env:"GITHUB_SERVER_URL,default=https://github.com"`
	APIURL    string `env:"GITHUB_API_URL,default=https://api.github.com"`
}

// InAction reports whether the bot runs as a GitHub Action step.
func (e *Env) InAction() bool {
	return e.Action != ""
}

// WorkspaceDir returns the checkout directory, defaulting to the current
// directory outside of Actions.
func (e *Env) WorkspaceDir() (string, error) {
	if e.Workspace != "" {
		return e.Workspace, nil
	}
	return os.Getwd()
}

// LoadEnv reads the environment of the process.
func LoadEnv(ctx context.Context) (*Env, error) {
	return LoadEnvFrom(ctx, envconfig.OsLookuper())
}

// LoadEnvFrom reads the environment from l.
func LoadEnvFrom(ctx context.Context, l envconfig.Lookuper) (*Env, error) {
	var env Env
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &env,
		Lookuper: l,
	}); err != nil {
		return nil, fmt.Errorf("processing environment: %w", err)
	}
	return &env, nil
}

// Formatting is the effective formatting configuration of a run.
type Formatting struct {
	BotName            string
	ClangFormatVersion string
	Include            []string
	PyInclude          []string
	Exclude            []string
	Jobs               int
	SignCommits        bool
}

// Defaults is the configuration used when neither flags nor the settings
// file say otherwise.
func Defaults() Formatting {
	return Formatting{
		BotName:            DefaultBotName,
		ClangFormatVersion: DefaultClangFormatVersion,
		Include:            SplitList(DefaultInclude),
		PyInclude:          SplitList(DefaultPyInclude),
	}
}

// SplitList splits a comma separated pattern list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Settings is the optional YAML settings file. Unset fields leave the flag
// values alone.
type Settings struct {
	BotName            string   `yaml:"bot_name,omitempty"`
	ClangFormatVersion string   `yaml:"clang_format_version,omitempty"`
	Include            []string `yaml:"include,omitempty"`
	PyInclude          []string `yaml:"py_include,omitempty"`
	Exclude            []string `yaml:"exclude,omitempty"`
	Jobs               *int     `yaml:"jobs,omitempty"`
	SignCommits        *bool    `yaml:"sign_commits,omitempty"`
}

// LoadSettings reads the settings file at path. A missing file is reported
// with an error wrapping fs.ErrNotExist.
func LoadSettings(path string) (*Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening settings: %w", err)
	}
	defer f.Close()

	var s Settings
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return &s, nil
		}
		return nil, fmt.Errorf("parsing settings %s: %w", path, err)
	}
	if s.Jobs != nil && *s.Jobs < 0 {
		return nil, fmt.Errorf("parsing settings %s: jobs must not be negative", path)
	}
	return &s, nil
}

// Apply layers s under f: a field still at its default value takes the
// settings value. Explicit flags therefore win over the settings file, which
// wins over the defaults.
func (s *Settings) Apply(f Formatting) Formatting {
	if s == nil {
		return f
	}
	d := Defaults()

	if f.BotName == d.BotName && s.BotName != "" {
		f.BotName = s.BotName
	}
	if f.ClangFormatVersion == d.ClangFormatVersion && s.ClangFormatVersion != "" {
		f.ClangFormatVersion = s.ClangFormatVersion
	}
	if slices.Equal(f.Include, d.Include) && len(s.Include) > 0 {
		f.Include = s.Include
	}
	if slices.Equal(f.PyInclude, d.PyInclude) && len(s.PyInclude) > 0 {
		f.PyInclude = s.PyInclude
	}
	if len(f.Exclude) == 0 && len(s.Exclude) > 0 {
		f.Exclude = s.Exclude
	}
	if f.Jobs == d.Jobs && s.Jobs != nil {
		f.Jobs = *s.Jobs
	}
	if !f.SignCommits && s.SignCommits != nil {
		f.SignCommits = *s.SignCommits
	}
	return f
}
