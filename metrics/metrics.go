/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package metrics records run telemetry: Prometheus counters that can be
// pushed to a Pushgateway at the end of a run, and OpenTelemetry spans around
// each phase of the pipeline.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	filesFormatted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formatbot_files_formatted_total",
			Help: "Total number of files successfully formatted",
		},
		[]string{"formatter"},
	)

	formatterFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formatbot_formatter_failures_total",
			Help: "Total number of formatter invocations that failed",
		},
		[]string{"formatter"},
	)

	runs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formatbot_runs_total",
			Help: "Total number of runs by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	phaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "formatbot_phase_duration_seconds",
			Help:    "Duration of each run phase",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"phase", "status"},
	)
)

// RecordFormatted counts a file formatted by formatter.
func RecordFormatted(formatter string) {
	filesFormatted.WithLabelValues(formatter).Inc()
}

// RecordFormatterFailure counts a failed invocation of formatter.
func RecordFormatterFailure(formatter string) {
	formatterFailures.WithLabelValues(formatter).Inc()
}

// RecordRun counts a completed run.
func RecordRun(mode, outcome string) {
	runs.WithLabelValues(mode, outcome).Inc()
}

// Push sends the default registry to the Pushgateway at url under job. A
// blank url disables pushing.
func Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(prometheus.DefaultGatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("pushing metrics to %s: %w", url, err)
	}
	return nil
}
