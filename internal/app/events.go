package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nahum29/tiendita/internal/shared"
)

// EventSource yields change events until ctx ends.
type EventSource interface {
	Subscribe(ctx context.Context) (<-chan shared.ChangeEvent, error)
}

// eventsHandler streams change events as server-sent events so open screens
// refresh after a sale or payment. Streams end at the request timeout and
// EventSource clients reconnect.
func eventsHandler(source EventSource, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}
		events, err := source.Subscribe(r.Context())
		if err != nil {
			logger.Warn("subscribe change events", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		for evt := range events {
			raw, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, raw); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
