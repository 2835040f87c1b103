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

// sampleMetric builds a plausible metric row for the given node and ts.
func sampleMetric(nodeID string, ts int64) *models.Metric {
	return &models.Metric{
		NodeID:    nodeID,
		Ts:        ts,
		CPU:       0.25,
		MemUsed:   2 << 30,
		MemTotal:  8 << 30,
		DiskUsed:  10 << 30,
		DiskTotal: 100 << 30,
		NetRx:     1024,
		NetTx:     512,
	}
}

func TestMetricRepository_AppendTouchesNode(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	nodes := NewBunNodeRepository(db)
	metrics := NewBunMetricRepository(db)
	ctx := context.Background()

	node := createTestNode(t, db, "")
	ts := time.Now().UnixMilli()

	require.NoError(t, metrics.Append(ctx, sampleMetric(node.ID, ts)))

	got, err := nodes.GetByID(ctx, node.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastSeenAt)
	assert.Equal(t, time.UnixMilli(ts).UTC(), got.LastSeenAt.UTC())
}

func TestMetricRepository_AppendUnknownNode(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	metrics := NewBunMetricRepository(db)

	err := metrics.Append(context.Background(), sampleMetric(bunx.NewULID(), 1000))
	assert.ErrorIs(t, err, ErrNotFound)

	// The failed append must not leave a partial row behind.
	count, err := db.NewSelect().Model((*models.Metric)(nil)).Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMetricRepository_ListRecentOrderAndClamp(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	metrics := NewBunMetricRepository(db)
	ctx := context.Background()

	node := createTestNode(t, db, "")
	base := int64(1_700_000_000_000)
	for i := 0; i < 5; i++ {
		require.NoError(t, metrics.Append(ctx, sampleMetric(node.ID, base+int64(i)*1000)))
	}

	// Newest three, returned oldest-first.
	rows, err := metrics.ListRecent(ctx, node.ID, 3)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, base+2000, rows[0].Ts)
	assert.Equal(t, base+3000, rows[1].Ts)
	assert.Equal(t, base+4000, rows[2].Ts)

	// Zero and negative limits clamp up to one row.
	rows, err = metrics.ListRecent(ctx, node.ID, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, base+4000, rows[0].Ts)

	rows, err = metrics.ListRecent(ctx, node.ID, -5)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	// Oversized limits clamp down to the cap; with 5 rows we just get all 5
	// in ascending order.
	rows, err = metrics.ListRecent(ctx, node.ID, 100000)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, base, rows[0].Ts)
	assert.Equal(t, base+4000, rows[4].Ts)
}

func TestMetricRepository_ListRecentEmptyNode(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	metrics := NewBunMetricRepository(db)

	rows, err := metrics.ListRecent(context.Background(), bunx.NewULID(), 60)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
