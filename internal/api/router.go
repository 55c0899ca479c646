// Package api provides the HTTP control surface for the bot: health,
// queue inspection and pause/resume, strategy reload, and recent signals.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"tradebotv1/internal/engine"
	"tradebotv1/internal/queue"
	"tradebotv1/internal/store/sqlite"
)

// Deps are the collaborators the router exposes.
type Deps struct {
	Engine *engine.Engine
	Queue  *queue.Queue
	Store  *sqlite.Store
}

// NewRouter sets up HTTP routes for the API server.
func NewRouter(d Deps) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":            "ok",
			"active_strategies": d.Engine.ActiveCount(),
			"queue_paused":      d.Queue.Paused(),
		})
	})

	mux.HandleFunc("/api/v1/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"queue":      d.Queue.Stats(),
			"strategies": d.Engine.ActiveIDs(),
		})
	})

	mux.HandleFunc("/api/v1/queue/jobs/", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[len("/api/v1/queue/jobs/"):]
		job, ok := d.Queue.Job(id)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown job"})
			return
		}
		writeJSON(w, http.StatusOK, job)
	})

	mux.HandleFunc("/api/v1/queue/pause", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		d.Queue.Pause()
		log.Printf("[api] queue paused")
		writeJSON(w, http.StatusOK, map[string]bool{"paused": true})
	})

	mux.HandleFunc("/api/v1/queue/resume", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		d.Queue.Resume()
		log.Printf("[api] queue resumed")
		writeJSON(w, http.StatusOK, map[string]bool{"paused": false})
	})

	// Reload one strategy (?id=...) or every ACTIVE strategy.
	mux.HandleFunc("/api/v1/strategies/reload", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		ctx := r.Context()

		if id := r.URL.Query().Get("id"); id != "" {
			if err := d.Engine.Reload(ctx, id); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"reloaded": id})
			return
		}

		cfgs, err := d.Store.ListActive(ctx)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		reloaded := 0
		for _, cfg := range cfgs {
			if err := d.Engine.Reload(ctx, cfg.ID); err != nil {
				log.Printf("[api] reload %s failed: %v", cfg.ID, err)
				continue
			}
			reloaded++
		}
		writeJSON(w, http.StatusOK, map[string]int{"reloaded": reloaded})
	})

	mux.HandleFunc("/api/v1/signals", func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
				limit = n
			}
		}
		sigs, err := d.Store.RecentSignals(r.Context(), limit)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, sigs)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
