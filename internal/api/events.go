package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aidanlsb/dendrite/internal/store"
	"github.com/aidanlsb/dendrite/internal/syncer"
)

type event struct {
	name string
	data any
}

// Events handles GET /api/notes/{id}/events. The stream sends a "status"
// event on every sync status change, a "note" event with every pushed
// snapshot, "deleted" when the note is removed and "error" (then closes)
// when the subscription fails.
func (s *Server) Events(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	if _, ok := s.ws.Get(id); !ok {
		s.writeError(w, r, errNotVisible(id))
		return
	}

	events := make(chan event, 32)
	done := make(chan struct{})
	send := func(ev event) {
		select {
		case events <- ev:
		case <-done:
		}
	}

	rec := syncer.New(s.ws.Store(), s.ws,
		syncer.WithLogger(s.logger),
		syncer.OnStatus(func(st syncer.Status) {
			send(event{"status", map[string]string{"status": st.String()}})
		}),
		syncer.OnUpdate(func(snap store.Snapshot) {
			if snap.Exists {
				send(event{"note", snap.Note})
			} else {
				send(event{"deleted", map[string]string{"id": snap.Path.NoteID}})
			}
		}),
		syncer.OnError(func(err error) {
			send(event{"error", map[string]string{"message": err.Error()}})
		}),
	)
	// The status event of Open is sent while nothing reads yet; the
	// buffer absorbs it.
	if err := rec.Open(id); err != nil {
		close(done)
		s.writeError(w, r, err)
		return
	}
	defer func() {
		close(done)
		rec.Close()
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			if err := writeEvent(w, ev); err != nil {
				s.logger.Debug("event stream closed", "note", id, "error", err)
				return
			}
			flusher.Flush()
			if ev.name == "error" {
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

func writeEvent(w http.ResponseWriter, ev event) error {
	data, err := json.Marshal(ev.data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, data)
	return err
}

func errNotVisible(id string) error {
	return fmt.Errorf("%w: %s", syncer.ErrNotVisible, id)
}
