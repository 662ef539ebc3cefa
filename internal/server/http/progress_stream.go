package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	// ssePollInterval is how often the stream samples pass progress.
	ssePollInterval = 250 * time.Millisecond
	// sseMaxDuration is the maximum time an SSE stream may remain open.
	sseMaxDuration = 1 * time.Hour
)

// sseEvent represents an event sent via SSE.
type sseEvent struct {
	EventType string           `json:"event_type"`
	Progress  progressResponse `json:"progress"`
	Timestamp time.Time        `json:"timestamp"`
}

// streamProgress handles GET /api/v1/progress. It streams pass progress as
// server-sent events until the current pass completes or the client leaves.
func (s *Server) streamProgress(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Long-lived stream; lift the server write deadline for this response.
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	last := s.store.Progress()
	sendSSEEvent(w, flusher, sseEvent{
		EventType: "stream_started",
		Progress:  domainProgressToResponse(last),
		Timestamp: time.Now(),
	})
	if last.IsComplete {
		sendSSEEvent(w, flusher, sseEvent{
			EventType: "completed",
			Progress:  domainProgressToResponse(last),
			Timestamp: time.Now(),
		})
		return
	}

	deadlineTimer := time.NewTimer(sseMaxDuration)
	defer deadlineTimer.Stop()
	ticker := time.NewTicker(ssePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case <-deadlineTimer.C:
			sendSSEEvent(w, flusher, sseEvent{
				EventType: "timeout",
				Progress:  domainProgressToResponse(last),
				Timestamp: time.Now(),
			})
			return

		case <-ticker.C:
			current := s.store.Progress()
			if current == last {
				continue
			}
			last = current

			eventType := "progress_update"
			if current.IsComplete {
				eventType = "completed"
			}
			sendSSEEvent(w, flusher, sseEvent{
				EventType: eventType,
				Progress:  domainProgressToResponse(current),
				Timestamp: time.Now(),
			})
			if current.IsComplete {
				return
			}
		}
	}
}

// sendSSEEvent writes a single SSE event to the response writer.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event sseEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.EventType, data)
	flusher.Flush()
}
