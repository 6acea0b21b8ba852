/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package formatreconciler

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/go-github/v84/github"
)

// Mode selects the flow a run executes.
type Mode string

const (
	ModeCheck   Mode = "check"
	ModeCommand Mode = "command"
)

// Event names accepted by the modes.
const (
	EventPush         = "push"
	EventIssueComment = "issue_comment"
)

// RefToBranch strips the refs/heads/ or refs/tags/ prefix from ref. Other
// refs are returned unchanged.
func RefToBranch(ref string) string {
	for _, prefix := range []string{"refs/heads/", "refs/tags/"} {
		if after, ok := strings.CutPrefix(ref, prefix); ok {
			return after
		}
	}
	return ref
}

// LoadEvent reads the webhook payload at path and decodes it as the event
// named name.
func LoadEvent(name, path string) (any, error) {
	if name == "" {
		return nil, ProtocolError(fmt.Errorf("event name is not set"))
	}
	if path == "" {
		return nil, ProtocolError(fmt.Errorf("event path is not set"))
	}

	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, ProtocolError(fmt.Errorf("reading event payload: %w", err))
	}

	event, err := github.ParseWebHook(name, payload)
	if err != nil {
		return nil, ProtocolError(fmt.Errorf("decoding %s event: %w", name, err))
	}
	return event, nil
}
