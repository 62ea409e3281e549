package otel

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/pace-labs/wodflow/runtime"
)

// MetricsHandler translates engine notifications into OpenTelemetry metrics.
// It records counters for runs, block transitions, and outputs, plus
// duration histograms computed from push/pop and start/finish pairs.
type MetricsHandler struct {
	runsStarted   metric.Int64Counter
	runsFinished  metric.Int64Counter
	blocksPushed  metric.Int64Counter
	blocksPopped  metric.Int64Counter
	outputs       metric.Int64Counter
	blockDuration metric.Float64Histogram
	runDuration   metric.Float64Histogram

	mu         sync.Mutex
	runStarts  map[string]time.Time // runID -> start time
	pushTimes  map[string]time.Time // runID:blockKey -> push time
	pushLabels map[string]string    // runID:blockKey -> label
}

// NewMetricsHandler creates a MetricsHandler that uses the given meter to
// create the instruments it records to.
func NewMetricsHandler(meter metric.Meter) (*MetricsHandler, error) {
	runsStarted, err := meter.Int64Counter("wodflow.runs.started",
		metric.WithDescription("Number of runs started"),
	)
	if err != nil {
		return nil, err
	}

	runsFinished, err := meter.Int64Counter("wodflow.runs.finished",
		metric.WithDescription("Number of runs finished"),
	)
	if err != nil {
		return nil, err
	}

	blocksPushed, err := meter.Int64Counter("wodflow.blocks.pushed",
		metric.WithDescription("Number of blocks pushed onto the stack"),
	)
	if err != nil {
		return nil, err
	}

	blocksPopped, err := meter.Int64Counter("wodflow.blocks.popped",
		metric.WithDescription("Number of blocks popped from the stack"),
	)
	if err != nil {
		return nil, err
	}

	outputs, err := meter.Int64Counter("wodflow.outputs.emitted",
		metric.WithDescription("Number of output statements emitted"),
	)
	if err != nil {
		return nil, err
	}

	blockDur, err := meter.Float64Histogram("wodflow.block.duration",
		metric.WithDescription("Time a block spent on the stack in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	runDur, err := meter.Float64Histogram("wodflow.run.duration",
		metric.WithDescription("Duration of a run in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &MetricsHandler{
		runsStarted:   runsStarted,
		runsFinished:  runsFinished,
		blocksPushed:  blocksPushed,
		blocksPopped:  blocksPopped,
		outputs:       outputs,
		blockDuration: blockDur,
		runDuration:   runDur,
		runStarts:     make(map[string]time.Time),
		pushTimes:     make(map[string]time.Time),
		pushLabels:    make(map[string]string),
	}, nil
}

// Handle processes a notification and records the appropriate metrics.
// It satisfies runtime.NotificationHandler.
func (h *MetricsHandler) Handle(n runtime.Notification) {
	switch n.Kind {
	case runtime.NotificationRunStarted:
		h.handleRunStarted(n)
	case runtime.NotificationBlockPushed:
		h.handleBlockPushed(n)
	case runtime.NotificationBlockPopped:
		h.handleBlockPopped(n)
	case runtime.NotificationOutputEmitted:
		h.handleOutputEmitted(n)
	case runtime.NotificationRunFinished:
		h.handleRunFinished(n)
	}
}

// handleRunStarted increments the run counter and records the start time.
func (h *MetricsHandler) handleRunStarted(n runtime.Notification) {
	h.mu.Lock()
	h.runStarts[n.RunID] = n.Time
	h.mu.Unlock()

	h.runsStarted.Add(context.Background(), 1)
}

// handleBlockPushed increments the push counter and records the push time.
func (h *MetricsHandler) handleBlockPushed(n runtime.Notification) {
	key := n.RunID + ":" + string(n.Block)
	h.mu.Lock()
	h.pushTimes[key] = n.Time
	h.pushLabels[key] = n.Label
	h.mu.Unlock()

	h.blocksPushed.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("label", n.Label),
	))
}

// handleBlockPopped increments the pop counter and records how long the
// block was on the stack.
func (h *MetricsHandler) handleBlockPopped(n runtime.Notification) {
	key := n.RunID + ":" + string(n.Block)
	h.mu.Lock()
	pushed, ok := h.pushTimes[key]
	label := h.pushLabels[key]
	if ok {
		delete(h.pushTimes, key)
		delete(h.pushLabels, key)
	}
	h.mu.Unlock()

	reason := ""
	if r, found := n.Payload["reason"]; found {
		if s, isStr := r.(string); isStr {
			reason = s
		}
	}

	ctx := context.Background()
	h.blocksPopped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))

	if ok {
		h.blockDuration.Record(ctx, n.Time.Sub(pushed).Seconds(), metric.WithAttributes(
			attribute.String("label", label),
		))
	}
}

// handleOutputEmitted increments the output counter.
func (h *MetricsHandler) handleOutputEmitted(n runtime.Notification) {
	typ := ""
	if v, found := n.Payload["type"]; found {
		if s, ok := v.(string); ok {
			typ = s
		}
	}
	h.outputs.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("type", typ),
	))
}

// handleRunFinished increments the run counter and records the run duration.
func (h *MetricsHandler) handleRunFinished(n runtime.Notification) {
	h.mu.Lock()
	started, ok := h.runStarts[n.RunID]
	if ok {
		delete(h.runStarts, n.RunID)
	}
	h.mu.Unlock()

	ctx := context.Background()
	h.runsFinished.Add(ctx, 1)

	if ok {
		h.runDuration.Record(ctx, n.Time.Sub(started).Seconds(), metric.WithAttributes(
			attribute.String("run_id", n.RunID),
		))
	}
}
