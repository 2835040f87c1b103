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

// BunAuthTokenRepository implements AuthTokenRepository using Bun ORM
type BunAuthTokenRepository struct {
	db *bun.DB
}

// NewBunAuthTokenRepository creates a new Bun-based auth token repository
func NewBunAuthTokenRepository(db *bun.DB) *BunAuthTokenRepository {
	return &BunAuthTokenRepository{db: db}
}

// Create inserts a new auth token
func (r *BunAuthTokenRepository) Create(ctx context.Context, token *models.AuthToken) error {
	_, err := r.db.NewInsert().
		Model(token).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create auth token: %w", err)
	}
	return nil
}

// Rotate deletes the user's outstanding unconsumed tokens of the same type
// and inserts the replacement in one transaction, so at most one token of a
// given type is live per user.
func (r *BunAuthTokenRepository) Rotate(ctx context.Context, token *models.AuthToken) error {
	err := r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewDelete().
			Model((*models.AuthToken)(nil)).
			Where("user_id = ?", token.UserID).
			Where("type = ?", token.Type).
			Where("consumed_at IS NULL").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("clear outstanding tokens: %w", err)
		}

		if _, err := tx.NewInsert().Model(token).Exec(ctx); err != nil {
			return fmt.Errorf("insert token: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("rotate auth token: %w", err)
	}
	return nil
}

// GetUsableByHash returns the token only if it is unconsumed and unexpired
func (r *BunAuthTokenRepository) GetUsableByHash(ctx context.Context, tokenHash string, now time.Time) (*models.AuthToken, error) {
	token := new(models.AuthToken)
	err := r.db.NewSelect().
		Model(token).
		Where("token_hash = ?", tokenHash).
		Where("consumed_at IS NULL").
		Where("expires_at > ?", now).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get usable token: %w", err)
	}
	return token, nil
}

// ActiveForUser returns the user's unconsumed, unexpired tokens of the given
// type, newest first
func (r *BunAuthTokenRepository) ActiveForUser(ctx context.Context, userID, tokenType string, now time.Time) ([]models.AuthToken, error) {
	var tokens []models.AuthToken
	err := r.db.NewSelect().
		Model(&tokens).
		Where("user_id = ?", userID).
		Where("type = ?", tokenType).
		Where("consumed_at IS NULL").
		Where("expires_at > ?", now).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("active tokens for user: %w", err)
	}
	return tokens, nil
}

// Consume marks a token used; a consumed token never validates again
func (r *BunAuthTokenRepository) Consume(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.NewUpdate().
		Model((*models.AuthToken)(nil)).
		Set("consumed_at = ?", at).
		Where("id = ?", id).
		Where("consumed_at IS NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("consume token: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}
