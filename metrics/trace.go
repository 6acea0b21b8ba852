/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const instrumentationName = "chainguard.dev/formatbot"

// Phase tracks one phase of a run as a span and a duration observation.
type Phase struct {
	name  string
	start time.Time
	span  oteltrace.Span
}

// StartPhase opens a span named "formatbot.<name>" and returns a context
// carrying it.
func StartPhase(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, *Phase) {
	tr := otel.Tracer(instrumentationName,
		oteltrace.WithInstrumentationVersion("1.0.0"))
	ctx, span := tr.Start(ctx, "formatbot."+name, oteltrace.WithAttributes(attrs...))
	return ctx, &Phase{name: name, start: time.Now(), span: span}
}

// End closes the phase, marking the span as failed when err is non-nil.
func (p *Phase) End(err error) {
	status := "ok"
	if err != nil {
		status = "error"
		p.span.RecordError(err)
		p.span.SetStatus(codes.Error, err.Error())
	}
	phaseDuration.WithLabelValues(p.name, status).Observe(time.Since(p.start).Seconds())
	p.span.End()
}
