// Package otel provides OpenTelemetry integration for engine notifications.
package otel

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pace-labs/wodflow/core"
	"github.com/pace-labs/wodflow/runtime"
)

// TracingHandler translates engine notifications into OpenTelemetry spans.
// It maintains maps of active run and block spans, creating and ending them
// based on notification kind.
type TracingHandler struct {
	tracer trace.Tracer

	mu         sync.RWMutex
	runSpans   map[string]trace.Span      // runID -> span
	runCtxs    map[string]context.Context // runID -> context (for child spans)
	blockSpans map[string]trace.Span      // runID:blockKey -> span
}

// NewTracingHandler creates a new TracingHandler that uses the given tracer
// to create spans from notifications.
func NewTracingHandler(tracer trace.Tracer) *TracingHandler {
	return &TracingHandler{
		tracer:     tracer,
		runSpans:   make(map[string]trace.Span),
		runCtxs:    make(map[string]context.Context),
		blockSpans: make(map[string]trace.Span),
	}
}

// Handle processes a notification and creates or ends spans accordingly.
// It satisfies runtime.NotificationHandler.
func (h *TracingHandler) Handle(n runtime.Notification) {
	switch n.Kind {
	case runtime.NotificationRunStarted:
		h.handleRunStarted(n)
	case runtime.NotificationBlockPushed:
		h.handleBlockPushed(n)
	case runtime.NotificationBlockAdvanced:
		h.handleBlockAdvanced(n)
	case runtime.NotificationOutputEmitted:
		h.handleOutputEmitted(n)
	case runtime.NotificationBlockPopped:
		h.handleBlockPopped(n)
	case runtime.NotificationRunFinished:
		h.handleRunFinished(n)
	}
}

// handleRunStarted creates a root span for the run.
func (h *TracingHandler) handleRunStarted(n runtime.Notification) {
	programName := ""
	if name, ok := n.Payload["label"]; ok {
		if s, ok := name.(string); ok {
			programName = s
		}
	}

	spanName := "run:" + n.RunID
	if programName != "" {
		spanName = "run:" + programName
	}

	ctx, span := h.tracer.Start(context.Background(), spanName,
		trace.WithAttributes(
			attribute.String("wodflow.run_id", n.RunID),
		),
		trace.WithTimestamp(n.Time),
	)

	if programName != "" {
		span.SetAttributes(attribute.String("wodflow.program", programName))
	}

	h.mu.Lock()
	h.runSpans[n.RunID] = span
	h.runCtxs[n.RunID] = ctx
	h.mu.Unlock()
}

// handleBlockPushed creates a child span under the run span.
func (h *TracingHandler) handleBlockPushed(n runtime.Notification) {
	h.mu.RLock()
	parentCtx, ok := h.runCtxs[n.RunID]
	h.mu.RUnlock()

	if !ok {
		// No parent run span; start from background context.
		parentCtx = context.Background()
	}

	spanName := "block:" + n.Label
	if n.Label == "" {
		spanName = "block:" + string(n.Block)
	}

	_, span := h.tracer.Start(parentCtx, spanName,
		trace.WithAttributes(
			attribute.String("wodflow.run_id", n.RunID),
			attribute.String("wodflow.block", string(n.Block)),
			attribute.Int("wodflow.statement", int(n.Statement)),
			attribute.Int("wodflow.depth", n.Depth),
		),
		trace.WithTimestamp(n.Time),
	)

	key := n.RunID + ":" + string(n.Block)
	h.mu.Lock()
	h.blockSpans[key] = span
	h.mu.Unlock()
}

// handleBlockAdvanced adds a span event on the block span.
func (h *TracingHandler) handleBlockAdvanced(n runtime.Notification) {
	key := n.RunID + ":" + string(n.Block)

	h.mu.RLock()
	span, ok := h.blockSpans[key]
	h.mu.RUnlock()

	if !ok {
		return
	}

	span.AddEvent("advanced", trace.WithTimestamp(n.Time))
}

// handleOutputEmitted adds a span event on the emitting block's span.
func (h *TracingHandler) handleOutputEmitted(n runtime.Notification) {
	key := n.RunID + ":" + string(n.Block)

	h.mu.RLock()
	span, ok := h.blockSpans[key]
	h.mu.RUnlock()

	if !ok {
		return
	}

	attrs := []attribute.KeyValue{}
	if typ, found := n.Payload["type"]; found {
		if s, ok := typ.(string); ok {
			attrs = append(attrs, attribute.String("wodflow.output_type", s))
		}
	}

	span.AddEvent("output", trace.WithTimestamp(n.Time), trace.WithAttributes(attrs...))
}

// handleBlockPopped ends the block span. A forced pop ends the span with
// error status; every other completion reason is a normal ending.
func (h *TracingHandler) handleBlockPopped(n runtime.Notification) {
	key := n.RunID + ":" + string(n.Block)

	h.mu.Lock()
	span, ok := h.blockSpans[key]
	if ok {
		delete(h.blockSpans, key)
	}
	h.mu.Unlock()

	if ok {
		reason := ""
		if r, found := n.Payload["reason"]; found {
			if s, ok := r.(string); ok {
				reason = s
			}
		}
		span.SetAttributes(attribute.String("wodflow.reason", reason))
		if reason == string(core.ReasonForcedPop) {
			span.SetStatus(codes.Error, "forced pop")
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End(trace.WithTimestamp(n.Time))
	}
}

// handleRunFinished ends the root run span.
func (h *TracingHandler) handleRunFinished(n runtime.Notification) {
	h.mu.Lock()
	span, ok := h.runSpans[n.RunID]
	if ok {
		delete(h.runSpans, n.RunID)
		delete(h.runCtxs, n.RunID)
	}
	h.mu.Unlock()

	if ok {
		if outputs, found := n.Payload["outputs"]; found {
			if c, ok := outputs.(int); ok {
				span.SetAttributes(attribute.Int("wodflow.outputs", c))
			}
		}
		span.SetStatus(codes.Ok, "")
		span.End(trace.WithTimestamp(n.Time))
	}
}

// ActiveSpanContext returns the SpanContext for the active block span
// identified by runID and block. Returns an empty SpanContext if not found.
func (h *TracingHandler) ActiveSpanContext(runID string, block core.BlockKey) trace.SpanContext {
	key := runID + ":" + string(block)

	h.mu.RLock()
	span, ok := h.blockSpans[key]
	h.mu.RUnlock()

	if !ok {
		return trace.SpanContext{}
	}
	return span.SpanContext()
}

// ActiveRunSpanContext returns the SpanContext for the active run span
// identified by runID. Returns an empty SpanContext if not found.
func (h *TracingHandler) ActiveRunSpanContext(runID string) trace.SpanContext {
	h.mu.RLock()
	span, ok := h.runSpans[runID]
	h.mu.RUnlock()

	if !ok {
		return trace.SpanContext{}
	}
	return span.SpanContext()
}
