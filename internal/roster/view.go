package roster

import (
	"time"

	"github.com/GustavPetterssonBjorklund/Statix/internal/db/models"
)

// NodeView is the wire projection of one roster entry, shared by the
// websocket snapshot and GET /nodes.
type NodeView struct {
	ID            string          `json:"id"`
	Name          *string         `json:"name"`
	LastSeenAt    *time.Time      `json:"lastSeenAt"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	PublishCount  int64           `json:"publishCount"`
	LastPublishAt *int64          `json:"lastPublishAt"`
	LatestMetric  *MetricView     `json:"latestMetric"`
	SystemInfo    *SystemInfoView `json:"systemInfo"`
}

// MetricView is one sample without storage bookkeeping.
type MetricView struct {
	Ts        int64   `json:"ts"`
	CPU       float64 `json:"cpu"`
	MemUsed   int64   `json:"memUsed"`
	MemTotal  int64   `json:"memTotal"`
	DiskUsed  int64   `json:"diskUsed"`
	DiskTotal int64   `json:"diskTotal"`
	NetRx     int64   `json:"netRx"`
	NetTx     int64   `json:"netTx"`
}

// SystemInfoView is the stored inventory with its change-detection hash.
type SystemInfoView struct {
	Hash       string         `json:"hash"`
	ReportedTs int64          `json:"reportedTs"`
	Info       map[string]any `json:"info"`
}

// NewNodeView flattens a stats row into its wire shape.
func NewNodeView(n *models.NodeWithStats) NodeView {
	view := NodeView{
		ID:            n.ID,
		Name:          n.Name,
		LastSeenAt:    n.LastSeenAt,
		CreatedAt:     n.CreatedAt,
		UpdatedAt:     n.UpdatedAt,
		PublishCount:  n.PublishCount,
		LastPublishAt: n.LastPublishAt,
	}
	if m := n.LatestMetric; m != nil {
		view.LatestMetric = &MetricView{
			Ts:        m.Ts,
			CPU:       m.CPU,
			MemUsed:   m.MemUsed,
			MemTotal:  m.MemTotal,
			DiskUsed:  m.DiskUsed,
			DiskTotal: m.DiskTotal,
			NetRx:     m.NetRx,
			NetTx:     m.NetTx,
		}
	}
	if si := n.SystemInfo; si != nil {
		var info map[string]any
		if raw, ok := si.Payload["info"].(map[string]any); ok {
			info = raw
		}
		view.SystemInfo = &SystemInfoView{
			Hash:       si.Hash,
			ReportedTs: si.ReportedTs,
			Info:       info,
		}
	}
	return view
}

// NewNodeViews maps a stats listing, always returning a non-nil slice so the
// JSON encodes as [] rather than null.
func NewNodeViews(nodes []models.NodeWithStats) []NodeView {
	views := make([]NodeView, 0, len(nodes))
	for i := range nodes {
		views = append(views, NewNodeView(&nodes[i]))
	}
	return views
}
