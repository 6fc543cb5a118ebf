// Package observability carries operation metrics and trace spans for the
// sample repository and the CLI. Recorders and tracers are pluggable; the
// no-op implementations are the defaults.
package observability

import (
	"context"
	"time"
)

// MetricsRecorder receives the outcome of every instrumented operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer opens a span per instrumented operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is closed with the operation's error, nil on success.
type TraceSpan interface {
	End(err error)
}

type noopRecorder struct{}

func (noopRecorder) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// NoopRecorder discards observations.
func NoopRecorder() MetricsRecorder { return noopRecorder{} }

// NoopTracer opens spans that record nothing.
func NoopTracer() Tracer { return noopTracer{} }

// Instrument runs fn inside a span and reports its duration and outcome to
// rec. Nil rec or tracer are treated as no-ops.
func Instrument(ctx context.Context, rec MetricsRecorder, tracer Tracer, operation string, fn func(context.Context) error) error {
	if rec == nil {
		rec = noopRecorder{}
	}
	if tracer == nil {
		tracer = noopTracer{}
	}
	start := time.Now()
	ctx, span := tracer.Start(ctx, operation)
	err := fn(ctx)
	span.End(err)
	rec.Observe(ctx, operation, err == nil, time.Since(start))
	return err
}

// Multi fans observations out to every non-nil recorder.
func Multi(recs ...MetricsRecorder) MetricsRecorder {
	out := make(multiRecorder, 0, len(recs))
	for _, r := range recs {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

type multiRecorder []MetricsRecorder

func (m multiRecorder) Observe(ctx context.Context, operation string, success bool, d time.Duration) {
	for _, r := range m {
		r.Observe(ctx, operation, success, d)
	}
}
