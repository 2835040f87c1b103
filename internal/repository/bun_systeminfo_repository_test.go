package repository

import (
	"context"
	"testing"
	"time"

	"github.com/GustavPetterssonBjorklund/Statix/internal/db/bunx"
	"github.com/GustavPetterssonBjorklund/Statix/internal/db/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inventory(nodeID, hash string, ts int64) *models.NodeSystemInfo {
	return &models.NodeSystemInfo{
		NodeID:     nodeID,
		Hash:       hash,
		Payload:    models.JSONMap{"hostname": "host-a", "hash": hash},
		ReportedTs: ts,
	}
}

func TestSystemInfoRepository_UpsertLifecycle(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	nodes := NewBunNodeRepository(db)
	infos := NewBunSystemInfoRepository(db)
	ctx := context.Background()

	node := createTestNode(t, db, "")

	// First report inserts.
	changed, err := infos.Upsert(ctx, inventory(node.ID, "hash-1", 1000))
	require.NoError(t, err)
	assert.True(t, changed)

	// Same hash again: node is touched but the row is untouched.
	changed, err = infos.Upsert(ctx, inventory(node.ID, "hash-1", 2000))
	require.NoError(t, err)
	assert.False(t, changed)

	stored, err := infos.GetByNodeID(ctx, node.ID)
	require.NoError(t, err)
	assert.Equal(t, "hash-1", stored.Hash)
	assert.Equal(t, int64(1000), stored.ReportedTs, "unchanged hash must not rewrite the row")

	got, err := nodes.GetByID(ctx, node.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastSeenAt)
	assert.Equal(t, time.UnixMilli(2000).UTC(), got.LastSeenAt.UTC(), "redelivery still proves liveness")

	// New hash replaces the row.
	changed, err = infos.Upsert(ctx, inventory(node.ID, "hash-2", 3000))
	require.NoError(t, err)
	assert.True(t, changed)

	stored, err = infos.GetByNodeID(ctx, node.ID)
	require.NoError(t, err)
	assert.Equal(t, "hash-2", stored.Hash)
	assert.Equal(t, int64(3000), stored.ReportedTs)

	// Still exactly one row per node.
	count, err := db.NewSelect().Model((*models.NodeSystemInfo)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSystemInfoRepository_UpsertUnknownNode(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	infos := NewBunSystemInfoRepository(db)

	_, err := infos.Upsert(context.Background(), inventory(bunx.NewULID(), "h", 1000))
	assert.ErrorIs(t, err, ErrNotFound)
}
