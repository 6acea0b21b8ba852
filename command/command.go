/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package command parses the chat commands addressed to the bot in pull
// request comments.
package command

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/anmitsu/go-shlex"
)

// ErrNotForBot is returned for comments that do not start with the bot
// mention. Such comments are ignored without a reply.
var ErrNotForBot = errors.New("comment is not addressed to the bot")

// Verb is the action requested of the bot.
type Verb string

// VerbFormat reformats the pull request branch.
const VerbFormat Verb = "format"

// Command is a well-formed request to the bot.
type Command struct {
	Verb  Verb
	Amend bool
}

// UsageError rejects a comment addressed to the bot that is not a valid
// command. Usage holds the reply to post on the pull request.
type UsageError struct {
	Usage string
	Err   error
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("invalid command: %v", e.Err)
}

func (e *UsageError) Unwrap() error {
	return e.Err
}

// Usage renders the fenced usage block for bot.
func Usage(bot string) string {
	return fmt.Sprintf("```\nUSAGE:\n    @%s format [--amend]\n\nFLAGS:\n    --amend    Amends the previous commit with formatting\n```", bot)
}

// grammar is the kong model of the chat command line.
type grammar struct {
	Format struct {
		Amend bool `help:"Amends the previous commit with formatting"`
	} `cmd:"" help:"Formats the pull request branch."`
}

// Parser recognizes commands addressed to one bot.
type Parser struct {
	bot string
}

// NewParser returns a Parser for comments mentioning @bot.
func NewParser(bot string) *Parser {
	return &Parser{bot: bot}
}

// Mention returns the prefix a comment needs to be addressed to the bot.
func (p *Parser) Mention() string {
	return "@" + p.bot
}

// Parse reads a comment body. Bodies whose first word is not the bot mention
// yield ErrNotForBot; anything else that is not exactly `format [--amend]`
// yields a *UsageError.
func (p *Parser) Parse(body string) (*Command, error) {
	if !strings.HasPrefix(body, p.Mention()) {
		return nil, ErrNotForBot
	}

	// The mention plays the role of the program name.
	words, err := shlex.Split(body, true)
	if err != nil {
		return nil, p.usage(fmt.Errorf("splitting comment: %w", err))
	}
	if len(words) == 0 || words[0] != p.Mention() {
		return nil, ErrNotForBot
	}
	words = words[1:]
	if err := checkSwitches(words); err != nil {
		return nil, p.usage(err)
	}

	var g grammar
	k, err := kong.New(&g,
		kong.Name(p.Mention()),
		kong.NoDefaultHelp(),
		kong.Writers(io.Discard, io.Discard),
		kong.Exit(func(int) {}),
	)
	if err != nil {
		return nil, fmt.Errorf("building command grammar: %w", err)
	}

	kctx, err := k.Parse(words)
	if err != nil {
		return nil, p.usage(err)
	}

	switch kctx.Command() {
	case string(VerbFormat):
		return &Command{Verb: VerbFormat, Amend: g.Format.Amend}, nil
	default:
		return nil, p.usage(fmt.Errorf("unknown command %q", kctx.Command()))
	}
}

// checkSwitches rejects what kong tolerates for boolean flags: an explicit
// value (--amend=false) and repetition.
func checkSwitches(words []string) error {
	seen := map[string]bool{}
	for _, w := range words {
		if w == "--" {
			return nil
		}
		name, _, hasValue := strings.Cut(w, "=")
		if !strings.HasPrefix(name, "--") {
			continue
		}
		if hasValue {
			return fmt.Errorf("flag %s does not take a value", name)
		}
		if seen[name] {
			return fmt.Errorf("flag %s given more than once", name)
		}
		seen[name] = true
	}
	return nil
}

func (p *Parser) usage(err error) *UsageError {
	return &UsageError{Usage: Usage(p.bot), Err: err}
}
