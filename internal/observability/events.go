package observability

import "context"

type EventEnvelope struct {
	EventType string `json:"event_type"`
	EventName string `json:"event_name"`
	Payload   any    `json:"payload"`
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

// HeadersFromContext builds bus headers from the request id and span in ctx.
func HeadersFromContext(ctx context.Context) map[string]string {
	return BuildHeaders(RequestIDFromContext(ctx), TraceIDFromContext(ctx))
}
