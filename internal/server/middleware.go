package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/GustavPetterssonBjorklund/Statix/internal/identity"
	"github.com/GustavPetterssonBjorklund/Statix/internal/metrics"
)

type contextKey string

const snapshotKey contextKey = "identity.snapshot"

// SnapshotFrom returns the authenticated identity stored by RequireAuth.
func SnapshotFrom(ctx context.Context) *identity.Snapshot {
	snap, _ := ctx.Value(snapshotKey).(*identity.Snapshot)
	return snap
}

// bearerToken extracts the plaintext from an Authorization: Bearer header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// RequireAuth resolves the bearer and stashes the identity snapshot in the
// request context. Missing or invalid bearers end the request with 401.
func RequireAuth(ids *identity.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bearer := bearerToken(r)
			if bearer == "" {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing bearer token"})
				return
			}
			snap, err := ids.Authenticate(r.Context(), bearer)
			if err != nil {
				writeError(w, r, err)
				return
			}
			ctx := context.WithValue(r.Context(), snapshotKey, snap)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin gates the /auth/users|roles|permissions surface on the admin
// role. Must run after RequireAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap := SnapshotFrom(r.Context())
		if snap == nil || !snap.IsAdmin() {
			writeJSON(w, http.StatusForbidden, errorBody{Error: "admin role required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequestLogger emits one zerolog line per request and feeds the request
// counter.
func RequestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				// Hijacked connections (websocket upgrades) never write
				// a status through the wrapper.
				status = http.StatusSwitchingProtocols
			}
			metrics.HTTPRequestsTotal.
				WithLabelValues(r.Method, strconv.Itoa(status/100*100)).Inc()
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}
