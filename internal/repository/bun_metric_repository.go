package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/GustavPetterssonBjorklund/Statix/internal/db/models"
	"github.com/uptrace/bun"
)

const (
	// ListRecent limit bounds.
	minMetricLimit = 1
	maxMetricLimit = 300
)

// BunMetricRepository implements MetricRepository using Bun ORM
type BunMetricRepository struct {
	db *bun.DB
}

// NewBunMetricRepository creates a new Bun-based metric repository
func NewBunMetricRepository(db *bun.DB) *BunMetricRepository {
	return &BunMetricRepository{db: db}
}

// Append inserts one sample and advances the node's last_seen_at in the same
// transaction. The node row is the FK parent, so a vanished node surfaces as
// zero updated rows and the insert is rolled back with ErrNotFound.
func (r *BunMetricRepository) Append(ctx context.Context, metric *models.Metric) error {
	err := r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.Node)(nil)).
			Set("last_seen_at = ?", time.UnixMilli(metric.Ts).UTC()).
			Set("updated_at = ?", time.Now().UTC()).
			Where("id = ?", metric.NodeID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("touch node: %w", err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return ErrNotFound
		}

		if _, err := tx.NewInsert().Model(metric).Exec(ctx); err != nil {
			return fmt.Errorf("insert metric: %w", err)
		}
		return nil
	})
	if err != nil {
		if err == ErrNotFound {
			return ErrNotFound
		}
		return fmt.Errorf("append metric: %w", err)
	}
	return nil
}

// ListRecent returns the newest samples in ascending ts order so charts can
// render them left to right. The limit is clamped to [1, 300].
func (r *BunMetricRepository) ListRecent(ctx context.Context, nodeID string, limit int) ([]models.Metric, error) {
	if limit < minMetricLimit {
		limit = minMetricLimit
	}
	if limit > maxMetricLimit {
		limit = maxMetricLimit
	}

	var metrics []models.Metric
	err := r.db.NewSelect().
		Model(&metrics).
		Where("node_id = ?", nodeID).
		Order("ts DESC", "id DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list recent metrics: %w", err)
	}

	// Reverse into ascending order.
	for i, j := 0, len(metrics)-1; i < j; i, j = i+1, j-1 {
		metrics[i], metrics[j] = metrics[j], metrics[i]
	}
	return metrics, nil
}
