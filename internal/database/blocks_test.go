package database

import (
	"context"
	"testing"

	"agenda/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlocks(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	day := mustDate(t, "2025-10-23")

	full := &models.Block{Date: day, Type: models.BlockFullDay, Time: "09:00"}
	require.NoError(t, db.CreateBlock(ctx, full))
	assert.Empty(t, full.Time, "full day blocks carry no time")

	single := &models.Block{Date: day, Type: models.BlockSingleSlot, Time: "14:00"}
	require.NoError(t, db.CreateBlock(ctx, single))
	// без дедупликации
	require.NoError(t, db.CreateBlock(ctx, &models.Block{Date: day, Type: models.BlockSingleSlot, Time: "14:00"}))

	blocks, err := db.GetBlocksByDate(ctx, day)
	require.NoError(t, err)
	require.Len(t, blocks, 3)
	assert.Equal(t, day, blocks[0].Date)
	assert.True(t, blocks[1].Matches(models.BlockSingleSlot, "14:00"))

	other, err := db.GetBlocksByDate(ctx, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Empty(t, other)

	require.NoError(t, db.DeleteBlock(ctx, full.ID))
	assert.ErrorIs(t, db.DeleteBlock(ctx, full.ID), ErrNotFound)

	blocks, err = db.GetBlocksByDate(ctx, day)
	require.NoError(t, err)
	assert.Len(t, blocks, 2)
}
