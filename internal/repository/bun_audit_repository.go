package repository

import (
	"context"
	"fmt"

	"github.com/GustavPetterssonBjorklund/Statix/internal/db/models"
	"github.com/uptrace/bun"
)

// BunAuditLogRepository implements AuditLogRepository using Bun ORM
type BunAuditLogRepository struct {
	db *bun.DB
}

// NewBunAuditLogRepository creates a new Bun-based audit log repository
func NewBunAuditLogRepository(db *bun.DB) *BunAuditLogRepository {
	return &BunAuditLogRepository{db: db}
}

// Record appends one audit event
func (r *BunAuditLogRepository) Record(ctx context.Context, entry *models.AuditLog) error {
	_, err := r.db.NewInsert().
		Model(entry).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("record audit event: %w", err)
	}
	return nil
}
