package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Node is a registered fleet member. The ID is a ULID assigned at creation.
// AuthTokenHash is the SHA-256 hex of the node's enrollment token; the
// plaintext is returned once by POST /nodes/create and never stored. The
// mqtt_* columns reserve room for per-node broker credential rotation; the
// current exchange hands out shared credentials and leaves them empty.
type Node struct {
	bun.BaseModel `bun:"table:nodes,alias:n"`

	ID                    string     `bun:"id,pk"`
	Name                  *string    `bun:"name"`
	AuthTokenHash         *string    `bun:"auth_token_hash,unique"`
	MQTTUsername          *string    `bun:"mqtt_username"`
	MQTTPasswordHash      *string    `bun:"mqtt_password_hash"`
	MQTTPasswordExpiresAt *time.Time `bun:"mqtt_password_expires_at"`
	LastSeenAt            *time.Time `bun:"last_seen_at"`
	CreatedAt             time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt             time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

// Metric is one telemetry sample. Rows are append-only; ID is the insert
// order, Ts is the agent-reported epoch-millisecond sample time.
type Metric struct {
	bun.BaseModel `bun:"table:metrics,alias:m"`

	ID        int64     `bun:"id,pk,autoincrement"`
	NodeID    string    `bun:"node_id,notnull"` // FK to nodes(id), cascade
	Ts        int64     `bun:"ts,notnull"`      // epoch ms, agent clock
	CPU       float64   `bun:"cpu,notnull"`
	MemUsed   int64     `bun:"mem_used,notnull"`
	MemTotal  int64     `bun:"mem_total,notnull"`
	DiskUsed  int64     `bun:"disk_used,notnull"`
	DiskTotal int64     `bun:"disk_total,notnull"`
	NetRx     int64     `bun:"net_rx,notnull"`
	NetTx     int64     `bun:"net_tx,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// NodeSystemInfo is the latest hardware/software inventory for a node,
// one row per node, replaced only when the agent-computed hash changes.
type NodeSystemInfo struct {
	bun.BaseModel `bun:"table:node_system_info,alias:nsi"`

	NodeID     string    `bun:"node_id,pk"` // FK to nodes(id), cascade
	Hash       string    `bun:"hash,notnull"`
	Payload    JSONMap   `bun:"payload,type:jsonb"`
	ReportedTs int64     `bun:"reported_ts,notnull"` // epoch ms, agent clock
	UpdatedAt  time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// NodeWithStats is the roster/list projection of a node: the row itself plus
// publish counters, the newest sample and the current inventory. Not a table.
type NodeWithStats struct {
	Node

	PublishCount  int64           `json:"publishCount"`
	LastPublishAt *int64          `json:"lastPublishAt"` // epoch ms of newest sample
	LatestMetric  *Metric         `json:"latestMetric"`
	SystemInfo    *NodeSystemInfo `json:"systemInfo"`
}
