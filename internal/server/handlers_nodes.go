package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/GustavPetterssonBjorklund/Statix/internal/identity"
	"github.com/GustavPetterssonBjorklund/Statix/internal/nodeauth"
	"github.com/GustavPetterssonBjorklund/Statix/internal/repository"
	"github.com/GustavPetterssonBjorklund/Statix/internal/roster"
)

const defaultMetricsLimit = 60

// HandleListNodes serves GET /nodes. Callers holding only per-node read
// codes see the readable subset.
func HandleListNodes(nodes repository.NodeRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := SnapshotFrom(r.Context())
		if !snap.CanReadAnyNode() {
			writeJSON(w, http.StatusForbidden, errorBody{Error: "nodes:read required"})
			return
		}

		stats, err := nodes.ListWithStats(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}

		views := make([]roster.NodeView, 0, len(stats))
		for i := range stats {
			if snap.CanReadNode(stats[i].ID) {
				views = append(views, roster.NewNodeView(&stats[i]))
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"nodes": views})
	}
}

// HandleNodeMetrics serves GET /nodes/{nodeID}/metrics?limit=60.
func HandleNodeMetrics(nodes repository.NodeRepository, metricsRepo repository.MetricRepository) http.HandlerFunc {
	type metricRow struct {
		Ts        int64     `json:"ts"`
		CPU       float64   `json:"cpu"`
		MemUsed   int64     `json:"memUsed"`
		MemTotal  int64     `json:"memTotal"`
		DiskUsed  int64     `json:"diskUsed"`
		DiskTotal int64     `json:"diskTotal"`
		NetRx     int64     `json:"netRx"`
		NetTx     int64     `json:"netTx"`
		CreatedAt time.Time `json:"createdAt"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		nodeID := chi.URLParam(r, "nodeID")
		snap := SnapshotFrom(r.Context())
		if !snap.CanReadNode(nodeID) {
			writeJSON(w, http.StatusForbidden, errorBody{Error: "node read permission required"})
			return
		}
		if _, err := nodes.GetByID(r.Context(), nodeID); err != nil {
			writeError(w, r, err)
			return
		}

		limit := defaultMetricsLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeBadRequest(w, "limit must be an integer")
				return
			}
			limit = parsed
		}

		rows, err := metricsRepo.ListRecent(r.Context(), nodeID, limit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		out := make([]metricRow, 0, len(rows))
		for _, m := range rows {
			out = append(out, metricRow{
				Ts: m.Ts, CPU: m.CPU,
				MemUsed: m.MemUsed, MemTotal: m.MemTotal,
				DiskUsed: m.DiskUsed, DiskTotal: m.DiskTotal,
				NetRx: m.NetRx, NetTx: m.NetTx,
				CreatedAt: m.CreatedAt,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"nodeId": nodeID, "metrics": out})
	}
}

// HandleCreateNode serves POST /nodes/create. The enrollment token plaintext
// appears in this response and nowhere else, ever.
func HandleCreateNode(nodeAuth *nodeauth.Service) http.HandlerFunc {
	type request struct {
		Name string `json:"name"`
	}
	type response struct {
		ID        string    `json:"id"`
		Name      *string   `json:"name"`
		CreatedAt time.Time `json:"createdAt"`
		Token     string    `json:"token"`
		EnvFile   string    `json:"envFile"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		snap := SnapshotFrom(r.Context())
		if !snap.Can(identity.PermNodesCreate) {
			writeJSON(w, http.StatusForbidden, errorBody{Error: "nodes:create required"})
			return
		}

		var req request
		if err := decodeJSON(r, &req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
		var name *string
		if req.Name != "" {
			name = &req.Name
		}

		created, err := nodeAuth.CreateNode(r.Context(), name, snap.UserID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, response{
			ID:        created.Node.ID,
			Name:      created.Node.Name,
			CreatedAt: created.Node.CreatedAt,
			Token:     created.Token,
			EnvFile:   created.EnvFile,
		})
	}
}

// HandleDeleteNode serves DELETE /nodes/{nodeID}. Authenticated callers get
// 404 for unknown ids and 403 for missing permissions, in that contract.
func HandleDeleteNode(nodeAuth *nodeauth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		nodeID := chi.URLParam(r, "nodeID")
		snap := SnapshotFrom(r.Context())
		if !snap.CanWriteNode(nodeID) {
			writeJSON(w, http.StatusForbidden, errorBody{Error: "node write permission required"})
			return
		}
		if err := nodeAuth.DeleteNode(r.Context(), nodeID, snap.UserID); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleRenameNode serves PATCH /nodes/{nodeID}. A null name clears it.
func HandleRenameNode(nodes repository.NodeRepository) http.HandlerFunc {
	type request struct {
		Name *string `json:"name"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		nodeID := chi.URLParam(r, "nodeID")
		snap := SnapshotFrom(r.Context())
		if !snap.CanWriteNode(nodeID) {
			writeJSON(w, http.StatusForbidden, errorBody{Error: "node write permission required"})
			return
		}

		var req request
		if err := decodeJSON(r, &req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
		updated, err := nodes.UpdateName(r.Context(), nodeID, req.Name)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id":        updated.ID,
			"name":      updated.Name,
			"updatedAt": updated.UpdatedAt,
		})
	}
}

// HandleNodeExchange serves POST /nodes/auth/exchange, the unauthenticated
// endpoint agents trade their enrollment token on.
func HandleNodeExchange(nodeAuth *nodeauth.Service) http.HandlerFunc {
	type request struct {
		NodeID    string `json:"nodeId"`
		NodeToken string `json:"nodeToken"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := decodeJSON(r, &req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
		if req.NodeID == "" || req.NodeToken == "" {
			writeBadRequest(w, "nodeId and nodeToken are required")
			return
		}

		creds, err := nodeAuth.Exchange(r.Context(), req.NodeID, req.NodeToken)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"mqtt": creds})
	}
}
