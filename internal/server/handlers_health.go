package server

import (
	"net/http"

	"github.com/uptrace/bun"

	"github.com/GustavPetterssonBjorklund/Statix/internal/buildinfo"
)

// HandleHealth serves GET /health.
func HandleHealth() http.HandlerFunc {
	version := buildinfo.Resolve().Version
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "version": version})
	}
}

// HandleDBHealth serves GET /db/health with a live ping.
func HandleDBHealth(db *bun.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]bool{"ok": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}
