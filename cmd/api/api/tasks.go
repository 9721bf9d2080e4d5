package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/armoureye/intake/lib/pipeline"
)

// ListTasks returns every live pipeline task.
func (s *ApiService) ListTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tasks": s.Pipeline.Tasks()})
}

// GetTask returns one task by id.
func (s *ApiService) GetTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.Pipeline.Task(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// TaskEvents streams task state snapshots as server-sent events until the
// task reaches a terminal state or the client disconnects.
func (s *ApiService) TaskEvents(w http.ResponseWriter, r *http.Request) {
	ch, ok := s.Pipeline.Subscribe(r.Context(), chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	stream := pipeline.ToSSEReader(ch)
	defer stream.Close()

	buf := make([]byte, 4096)
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			_ = rc.Flush()
		}
		if err != nil {
			return
		}
	}
}

// ListMessages returns the live status banners.
func (s *ApiService) ListMessages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"messages": s.Pipeline.Messages()})
}
