package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/hashicorp/go-hclog"

	"github.com/ragchat/gateway/internal/orchestrator"
)

// writeSSE frames events onto w as `data: <json>\n\n`, per SPEC_FULL.md's
// event envelope, ending with the literal `data: {"type":"done"}\n\n` once
// the source channel closes (or an `error` event, whichever happens
// first). Flushes after every event so partial chunks reach the client as
// they're produced, not buffered until the response completes. Returns the
// last event type seen, so the caller can report stream outcome metrics.
func writeSSE(w http.ResponseWriter, logger hclog.Logger, events <-chan orchestrator.Event) orchestrator.EventType {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher, canFlush := w.(http.Flusher)

	var last orchestrator.EventType
	for ev := range events {
		last = ev.Type
		data, err := json.Marshal(ev)
		if err != nil {
			logger.Error("failed marshaling stream event", "type", ev.Type, "error", err)
			continue
		}
		if _, err := w.Write([]byte("data: ")); err != nil {
			return last
		}
		if _, err := w.Write(data); err != nil {
			return last
		}
		if _, err := w.Write([]byte("\n\n")); err != nil {
			return last
		}
		if canFlush {
			flusher.Flush()
		}
	}
	return last
}
