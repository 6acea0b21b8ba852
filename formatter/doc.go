/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package formatter runs external formatter binaries over selected files.
//
// Each file is formatted by its own process, with the file path appended to
// the formatter's argument template. Invocations are independent and run
// concurrently on a bounded pool sized to the available parallelism. A single
// failing invocation aborts the whole run: no new processes are started, the
// running ones are killed, and the first error is returned.
//
// A Pipeline groups the formatters of a run. Pipeline.Run returns only once
// every invocation has finished, which makes it the barrier before the
// working tree is compared with HEAD.
package formatter
