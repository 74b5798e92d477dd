package http

import (
	"fmt"
	"io"
	"net/http"
)

// WriteSSEEvent writes a server-sent-event to w.
func WriteSSEEvent(w io.Writer, data []byte, event string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

// StartSSE writes the headers of a server-sent-events response, returning
// an error if the response writer does not support flushing.
func StartSSE(w http.ResponseWriter) (http.Flusher, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming unsupported")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "\r\n")
	flusher.Flush()
	return flusher, nil
}
