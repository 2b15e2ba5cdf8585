package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const streamHeartbeat = 25 * time.Second

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	f, ok := s.dashboard.Figures()
	if !ok {
		ErrorResponse(http.StatusServiceUnavailable, "Dashboard is warming up", "figures not computed yet").
			Header("Retry-After", "1").
			Write(w)
		return
	}
	OK("Dashboard figures", f).Write(w)
}

// handleDashboardStream pushes every new set of figures as a "figures"
// event until the client disconnects or the server shuts down.
func (s *Server) handleDashboardStream(w http.ResponseWriter, r *http.Request) {
	stream, ok := newEventStream(w)
	if !ok {
		ErrorResponse(http.StatusInternalServerError, "Streaming unsupported", "response cannot be flushed").Write(w)
		return
	}
	updates, stop := s.dashboard.Watch()
	defer stop()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case f := <-updates:
			if err := stream.send("figures", f); err != nil {
				s.logger.DebugContext(r.Context(), "Dashboard stream closed", "error", err)
				return
			}
		case <-heartbeat.C:
			if err := stream.ping(); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		case <-s.streams:
			return
		}
	}
}

// eventStream writes Server-Sent Events.
type eventStream struct {
	w http.ResponseWriter
	f http.Flusher
}

func newEventStream(w http.ResponseWriter) (*eventStream, bool) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	f.Flush()
	return &eventStream{w: w, f: f}, true
}

func (e *eventStream) send(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	e.f.Flush()
	return nil
}

func (e *eventStream) ping() error {
	if _, err := fmt.Fprint(e.w, ": ping\n\n"); err != nil {
		return err
	}
	e.f.Flush()
	return nil
}
