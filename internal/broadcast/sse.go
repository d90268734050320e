package broadcast

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/banshee-data/queue.report/internal/monitoring"
	"github.com/banshee-data/queue.report/internal/timeutil"
)

// DefaultHeartbeat is the interval between keep-alive comments.
const DefaultHeartbeat = 30 * time.Second

// SSEHandler streams hub messages as Server-Sent Events.
type SSEHandler struct {
	Hub       *Hub
	Heartbeat time.Duration
	Clock     timeutil.Clock
}

func (s *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	clock := s.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	heartbeat := s.Heartbeat
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

	id, c := s.Hub.Subscribe()
	defer s.Hub.Unsubscribe(id)

	if err := writeEvent(w, Message{Type: TypeConnected, Timestamp: clock.Now()}); err != nil {
		return
	}
	flusher.Flush()

	ticker := clock.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case m, ok := <-c:
			if !ok {
				return
			}
			if err := writeEvent(w, m); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C():
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, m Message) error {
	b, err := json.Marshal(m)
	if err != nil {
		monitoring.Logf("broadcast: failed to encode %s message: %v", m.Type, err)
		return nil
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", b)
	return err
}
