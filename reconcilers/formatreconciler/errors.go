/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package formatreconciler

import "errors"

// Kind classifies a failed run.
type Kind int

const (
	// KindConfig covers invalid flags, patterns, or missing formatter
	// binaries.
	KindConfig Kind = iota + 1
	// KindProtocol covers events that cannot be acted on and rejected
	// commands.
	KindProtocol
	// KindExternal covers failures of git, formatters, or the GitHub API.
	KindExternal
	// KindIgnored marks comments that were not addressed to the bot.
	KindIgnored
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindProtocol:
		return "protocol"
	case KindExternal:
		return "external"
	case KindIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

// Error carries the kind and exit code of a failure up to the exit handler.
type Error struct {
	Kind Kind
	Code int
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func classify(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: kind, Code: 1, Err: err}
}

// ConfigError marks err as a configuration failure. Errors that already
// carry a kind keep it.
func ConfigError(err error) error { return classify(KindConfig, err) }

// ProtocolError marks err as an unusable event or a rejected command.
func ProtocolError(err error) error { return classify(KindProtocol, err) }

// ExternalError marks err as a failure of an external tool or service.
func ExternalError(err error) error { return classify(KindExternal, err) }

// Ignored marks err as a comment the bot should not react to.
func Ignored(err error) error { return classify(KindIgnored, err) }

// KindOf returns the kind of err, defaulting to KindExternal for errors
// without one. It returns zero for nil.
func KindOf(err error) Kind {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindExternal
}

// ExitCode maps err to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) && e.Code != 0 {
		return e.Code
	}
	return 1
}
