package convwatch

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/convwatch/convwatch/conversation"
	"github.com/hazyhaar/convwatch/shield"
)

// Handler returns the panel API with the default middleware stack.
func (w *Watcher) Handler() http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultAPIStack(w.logger) {
		r.Use(mw)
	}
	w.RegisterHTTP(r)
	return r
}

// RegisterHTTP mounts the panel API on r:
//
//	GET  /health
//	GET  /api/conversations
//	GET  /api/conversations/{convID}?q=&fuzzy=1
//	POST /api/commands
//	GET  /api/events   (WebSocket stream of updates)
func (w *Watcher) RegisterHTTP(r chi.Router) {
	r.Get("/health", func(rw http.ResponseWriter, _ *http.Request) {
		writeJSON(rw, http.StatusOK, map[string]any{"status": "ok", "pages": len(w.Pages()), "clients": w.hub.Clients()})
	})
	r.Get("/api/conversations", w.handleList)
	r.Get("/api/conversations/{convID}", w.handleGet)
	r.Post("/api/commands", w.handleCommand)
	r.Handle("/api/events", w.hub)
}

func (w *Watcher) handleList(rw http.ResponseWriter, r *http.Request) {
	list, err := w.store.List(r.Context())
	if err != nil {
		writeError(rw, http.StatusInternalServerError, err)
		return
	}
	if list == nil {
		list = []conversation.Summary{}
	}
	writeJSON(rw, http.StatusOK, list)
}

func (w *Watcher) handleGet(rw http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "convID")
	snap, err := w.store.Load(r.Context(), convID)
	if err != nil {
		writeError(rw, http.StatusInternalServerError, err)
		return
	}
	if snap == nil {
		writeError(rw, http.StatusNotFound, errors.New("conversation not found"))
		return
	}

	if q := r.URL.Query().Get("q"); q != "" {
		items, err := w.store.Search(r.Context(), convID, q, r.URL.Query().Get("fuzzy") == "1")
		if err != nil {
			writeError(rw, http.StatusInternalServerError, err)
			return
		}
		if items == nil {
			items = []conversation.MessageItem{}
		}
		snap.Items = items
	}
	writeJSON(rw, http.StatusOK, snap)
}

func (w *Watcher) handleCommand(rw http.ResponseWriter, r *http.Request) {
	var cmd conversation.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeError(rw, http.StatusBadRequest, err)
		return
	}
	resp := w.Handle(r.Context(), cmd)
	code := http.StatusOK
	if !resp.OK && errors.Is(w.resolveErr(cmd), ErrNoPage) {
		code = http.StatusNotFound
	}
	writeJSON(rw, code, resp)
}

// resolveErr reports why a command has no target, or nil.
func (w *Watcher) resolveErr(cmd conversation.Command) error {
	_, err := w.resolve(cmd)
	return err
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
