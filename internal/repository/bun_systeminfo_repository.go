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

// BunSystemInfoRepository implements SystemInfoRepository using Bun ORM
type BunSystemInfoRepository struct {
	db *bun.DB
}

// NewBunSystemInfoRepository creates a new Bun-based system info repository
func NewBunSystemInfoRepository(db *bun.DB) *BunSystemInfoRepository {
	return &BunSystemInfoRepository{db: db}
}

// Upsert stores the inventory when its hash differs from the current row and
// advances the node's last_seen_at either way, in one transaction. Retained
// broker messages mean the same inventory arrives again on every subscribe;
// the hash short-circuit keeps those redeliveries from churning the table.
func (r *BunSystemInfoRepository) Upsert(ctx context.Context, info *models.NodeSystemInfo) (bool, error) {
	changed := false
	err := r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.Node)(nil)).
			Set("last_seen_at = ?", time.UnixMilli(info.ReportedTs).UTC()).
			Set("updated_at = ?", time.Now().UTC()).
			Where("id = ?", info.NodeID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("touch node: %w", err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return ErrNotFound
		}

		existing := new(models.NodeSystemInfo)
		err = tx.NewSelect().
			Model(existing).
			Where("node_id = ?", info.NodeID).
			Scan(ctx)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			existing = nil
		case err != nil:
			return fmt.Errorf("get system info: %w", err)
		}

		if existing != nil && existing.Hash == info.Hash {
			return nil
		}

		info.UpdatedAt = time.Now().UTC()
		_, err = tx.NewInsert().
			Model(info).
			On("CONFLICT (node_id) DO UPDATE").
			Set("hash = EXCLUDED.hash").
			Set("payload = EXCLUDED.payload").
			Set("reported_ts = EXCLUDED.reported_ts").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("upsert system info: %w", err)
		}
		changed = true
		return nil
	})
	if err != nil {
		if err == ErrNotFound {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("upsert system info: %w", err)
	}
	return changed, nil
}

// GetByNodeID retrieves the node's current inventory
func (r *BunSystemInfoRepository) GetByNodeID(ctx context.Context, nodeID string) (*models.NodeSystemInfo, error) {
	info := new(models.NodeSystemInfo)
	err := r.db.NewSelect().
		Model(info).
		Where("node_id = ?", nodeID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get system info: %w", err)
	}
	return info, nil
}
