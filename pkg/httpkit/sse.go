package httpkit

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v5"
)

// SSEEventKind enumerates the run-stream event names.
type SSEEventKind string

const (
	SSEMetadata SSEEventKind = "metadata"
	SSEValues   SSEEventKind = "values"
	SSEMessages SSEEventKind = "messages"
	SSEUpdates  SSEEventKind = "updates"
	SSEError    SSEEventKind = "error"
	SSEEnd      SSEEventKind = "end"
)

// SSEWriter frames Server-Sent Events for run streaming (§4.6). Message
// payloads are deltas, never cumulative content — callers are responsible
// for only sending the incremental piece.
type SSEWriter struct {
	c       echo.Context
	flusher http.Flusher
}

// NewSSEWriter sets the required streaming headers and returns a writer
// ready for Send calls. Must be called before any other response write.
func NewSSEWriter(c echo.Context) *SSEWriter {
	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	h.Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)
	flusher, _ := c.Response().Writer.(http.Flusher)
	return &SSEWriter{c: c, flusher: flusher}
}

// Send writes one event frame and flushes it immediately so clients see it
// without buffering delay.
func (w *SSEWriter) Send(kind SSEEventKind, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w.c.Response(), "event: %s\ndata: %s\n\n", kind, payload); err != nil {
		return err
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}

// SendError frames a terminal error event; callers should stop writing
// after this and let the handler return.
func (w *SSEWriter) SendError(message string) error {
	return w.Send(SSEError, ErrorBody{Detail: message})
}

// End frames the stream-closing event.
func (w *SSEWriter) End() error {
	return w.Send(SSEEnd, map[string]any{})
}
