/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package clonemanager prepares git checkouts for the formatting bot. A
// Manager is configured with the GitHub token source and commit identity of
// the bot, and hands out Checkout handles that:
//   - Hydrate a single branch of a repository into a caller supplied directory,
//     optionally shallow.
//   - List the files tracked at HEAD.
//   - Report whether the working tree drifted from HEAD.
//   - Reconcile drift by doing nothing, committing and pushing, or amending
//     HEAD and force pushing.
package clonemanager
