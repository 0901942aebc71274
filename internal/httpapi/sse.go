package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/MimeLyc/video-sub-translator/internal/service"
)

const streamBuffer = 64

type streamMessage struct {
	name string
	data any
}

// handleEventStream relays pipeline events and terminal commands as SSE.
// Commands are observed, not consumed, so pollers still see them.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.events == nil {
		writeError(w, http.StatusNotImplemented, "event stream is not configured")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	messages := make(chan streamMessage, streamBuffer)
	offer := func(m streamMessage) {
		// slow clients lose messages instead of stalling the job
		select {
		case messages <- m:
		default:
		}
	}
	unsubscribe := s.events.Subscribe(service.ObserverFunc(func(e service.Event) {
		offer(streamMessage{name: string(e.Kind), data: e})
	}))
	defer unsubscribe()
	removeTap := s.processor.Commands().Tap(func(cmd service.Command) {
		offer(streamMessage{name: "command", data: cmd})
	})
	defer removeTap()

	send := func(m streamMessage) bool {
		payload, err := json.Marshal(m.data)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", m.name, payload); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if rec, ok := s.processor.Current(); ok {
		if !send(streamMessage{name: "current", data: rec}) {
			return
		}
	} else {
		if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
			return
		}
		flusher.Flush()
	}

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case m := <-messages:
			if !send(m) {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
