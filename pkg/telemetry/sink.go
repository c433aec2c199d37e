package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/taskloop/taskloop/pkg/engine"
)

// RunSink translates execution events into metric updates and spans. The
// run is strictly sequential, so open spans form a stack: run, iteration,
// pass, with task completions recorded as events on the pass span.
type RunSink struct {
	metrics *Metrics
	tracer  *Tracer

	root context.Context
	open []spanFrame
}

// spanFrame pairs an open span with its context, so a new span always
// starts from the context of the innermost still-open span rather than
// from an already-ended sibling.
type spanFrame struct {
	ctx  context.Context
	span trace.Span
}

// NewRunSink creates a sink over the given collectors. Either may be nil.
func NewRunSink(ctx context.Context, metrics *Metrics, tracer *Tracer) *RunSink {
	if ctx == nil {
		ctx = context.Background()
	}
	return &RunSink{metrics: metrics, tracer: tracer, root: ctx}
}

// Publish implements engine.EventSink.
func (s *RunSink) Publish(ev engine.Event) {
	switch ev.Type {
	case engine.EventRunStarted:
		s.push(func(ctx context.Context) (context.Context, trace.Span) {
			return s.tracer.StartRunSpan(ctx, ev.RunID, ev.TaskDir)
		})

	case engine.EventIterationStarted:
		if s.metrics != nil {
			s.metrics.RecordIterationStarted()
		}
		// Iterations do not overlap; close the previous one first.
		s.popTo(1)
		s.push(func(ctx context.Context) (context.Context, trace.Span) {
			return s.tracer.StartIterationSpan(ctx, ev.Iteration)
		})

	case engine.EventPassStarted:
		s.popTo(2)
		s.push(func(ctx context.Context) (context.Context, trace.Span) {
			return s.tracer.StartPassSpan(ctx, ev.Try, ev.MaxTries)
		})

	case engine.EventTaskCompleted:
		if s.metrics != nil {
			s.metrics.RecordTaskCompleted(ev.Task, string(ev.Outcome), ev.Duration)
		}
		if span := s.top(); span != nil {
			span.AddEvent("task.completed", trace.WithAttributes(
				attribute.String("task.name", ev.Task),
				attribute.String("task.outcome", string(ev.Outcome)),
				attribute.Int64("task.duration_ms", ev.Duration.Milliseconds()),
			))
		}

	case engine.EventHaltInvoked:
		if s.metrics != nil {
			s.metrics.RecordHaltInvoked()
		}
		if span := s.top(); span != nil {
			span.AddEvent("halt.invoked")
		}

	case engine.EventPassCompleted:
		if s.metrics != nil {
			s.metrics.RecordPassCompleted(string(ev.Status))
		}
		if span := s.top(); span != nil {
			span.SetAttributes(attribute.String("pass.status", string(ev.Status)))
			if ev.Status == engine.PassSucceeded {
				RecordSuccess(span)
			}
		}
		s.popTo(2)

	case engine.EventRunCompleted:
		status := "succeeded"
		if ev.Failed {
			status = "failed"
		}
		if s.metrics != nil {
			s.metrics.RecordRunCompleted(status)
		}
		if len(s.open) > 0 {
			run := s.open[0].span
			run.SetAttributes(attribute.String("run.status", status))
			if ev.Failed {
				RecordError(run, engine.ErrRunFailed)
			} else {
				RecordSuccess(run)
			}
		}
		s.popTo(0)
	}
}

// push opens a span under the innermost open span and grows the stack; a
// nil tracer keeps the stack empty so the remaining bookkeeping degrades to
// metrics only.
func (s *RunSink) push(start func(context.Context) (context.Context, trace.Span)) {
	if s.tracer == nil {
		return
	}
	parent := s.root
	if len(s.open) > 0 {
		parent = s.open[len(s.open)-1].ctx
	}
	ctx, span := start(parent)
	s.open = append(s.open, spanFrame{ctx: ctx, span: span})
}

// popTo ends open spans until depth spans remain.
func (s *RunSink) popTo(depth int) {
	for len(s.open) > depth {
		s.open[len(s.open)-1].span.End()
		s.open = s.open[:len(s.open)-1]
	}
}

func (s *RunSink) top() trace.Span {
	if len(s.open) == 0 {
		return nil
	}
	return s.open[len(s.open)-1].span
}
