package otel

import (
	"github.com/pace-labs/wodflow/runtime"
)

// EnrichHandler wraps a NotificationHandler with OpenTelemetry trace context.
// As notifications flow through, it looks up the active span from the
// TracingHandler and populates the TraceID and SpanID fields.
//
// For block-level notifications (where Block is set), the block span is
// checked first. If no block span is found, it falls back to the run-level
// span. When no span is active, the notification passes through unchanged.
func EnrichHandler(next runtime.NotificationHandler, tracing *TracingHandler) runtime.NotificationHandler {
	return func(n runtime.Notification) {
		// For block-level notifications, try the block span first.
		if n.Block != "" {
			sc := tracing.ActiveSpanContext(n.RunID, n.Block)
			if sc.IsValid() {
				n.TraceID = sc.TraceID().String()
				n.SpanID = sc.SpanID().String()
			}
		}
		// Fallback to run-level span.
		if n.TraceID == "" && n.RunID != "" {
			sc := tracing.ActiveRunSpanContext(n.RunID)
			if sc.IsValid() {
				n.TraceID = sc.TraceID().String()
				n.SpanID = sc.SpanID().String()
			}
		}
		next(n)
	}
}
