package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/GustavPetterssonBjorklund/Statix/internal/db/models"
	"github.com/uptrace/bun"
)

// BunNodeRepository implements NodeRepository using Bun ORM
type BunNodeRepository struct {
	db *bun.DB
}

// NewBunNodeRepository creates a new Bun-based node repository
func NewBunNodeRepository(db *bun.DB) *BunNodeRepository {
	return &BunNodeRepository{db: db}
}

// Create inserts a new node
func (r *BunNodeRepository) Create(ctx context.Context, node *models.Node) error {
	_, err := r.db.NewInsert().
		Model(node).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}
	return nil
}

// GetByID retrieves a node by ID
func (r *BunNodeRepository) GetByID(ctx context.Context, id string) (*models.Node, error) {
	node := new(models.Node)
	err := r.db.NewSelect().
		Model(node).
		Where("n.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get node: %w", err)
	}
	return node, nil
}

// UpdateName renames a node and returns the updated row
func (r *BunNodeRepository) UpdateName(ctx context.Context, id string, name *string) (*models.Node, error) {
	res, err := r.db.NewUpdate().
		Model((*models.Node)(nil)).
		Set("name = ?", name).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("update node name: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

// Delete removes a node; metrics and system info cascade away with it
func (r *BunNodeRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.NewDelete().
		Model((*models.Node)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete node: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// metricAggRow carries per-node aggregate columns for the stats query.
type metricAggRow struct {
	NodeID string `bun:"node_id"`
	Count  int64  `bun:"publish_count"`
	LastTs int64  `bun:"last_ts"`
}

// ListWithStats returns every node joined with its publish counters, the
// newest metric sample and the current inventory, newest node first. Built
// from separate portable queries and stitched in memory: the roster is small
// (one row per fleet member) and this avoids dialect-specific lateral joins.
func (r *BunNodeRepository) ListWithStats(ctx context.Context) ([]models.NodeWithStats, error) {
	var nodes []models.Node
	err := r.db.NewSelect().
		Model(&nodes).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}

	var aggs []metricAggRow
	err = r.db.NewSelect().
		Model((*models.Metric)(nil)).
		ColumnExpr("node_id").
		ColumnExpr("COUNT(*) AS publish_count").
		ColumnExpr("MAX(ts) AS last_ts").
		Group("node_id").
		Scan(ctx, &aggs)
	if err != nil {
		return nil, fmt.Errorf("aggregate metrics: %w", err)
	}
	aggByNode := make(map[string]metricAggRow, len(aggs))
	for _, a := range aggs {
		aggByNode[a.NodeID] = a
	}

	// Newest sample per node: MAX(id) is the last insert in the series.
	var latest []models.Metric
	err = r.db.NewSelect().
		Model(&latest).
		Where("m.id IN (SELECT MAX(id) FROM metrics GROUP BY node_id)").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest metrics: %w", err)
	}
	latestByNode := make(map[string]*models.Metric, len(latest))
	for i := range latest {
		latestByNode[latest[i].NodeID] = &latest[i]
	}

	var infos []models.NodeSystemInfo
	if err := r.db.NewSelect().Model(&infos).Scan(ctx); err != nil {
		return nil, fmt.Errorf("list system info: %w", err)
	}
	infoByNode := make(map[string]*models.NodeSystemInfo, len(infos))
	for i := range infos {
		infoByNode[infos[i].NodeID] = &infos[i]
	}

	out := make([]models.NodeWithStats, 0, len(nodes))
	for _, n := range nodes {
		stats := models.NodeWithStats{Node: n}
		if agg, ok := aggByNode[n.ID]; ok {
			stats.PublishCount = agg.Count
			lastTs := agg.LastTs
			stats.LastPublishAt = &lastTs
		}
		stats.LatestMetric = latestByNode[n.ID]
		stats.SystemInfo = infoByNode[n.ID]
		out = append(out, stats)
	}
	return out, nil
}
