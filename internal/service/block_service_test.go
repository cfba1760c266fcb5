package service

import (
	"context"
	"errors"
	"io"
	"testing"

	"agenda/internal/database"
	"agenda/internal/domain"
	"agenda/internal/events"
	"agenda/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestBlockService(repo domain.Repository, conn domain.Connectivity, bus domain.EventPublisher) *BlockService {
	logger := zerolog.New(io.Discard)
	return NewBlockService(repo, NewDayViews(repo), conn, bus, template, &logger)
}

func TestBlockService_CreateBlock(t *testing.T) {
	ctx := context.Background()

	t.Run("SingleSlot", func(t *testing.T) {
		db := setupDB(t)
		bus := new(mockEventBus)
		svc := newTestBlockService(db, nil, bus)
		bus.On("PublishJSON", events.EventBlockCreated, mock.AnythingOfType("events.BlockEventPayload")).Return(nil).Once()

		bl, err := svc.CreateBlock(ctx, testDate, models.BlockSingleSlot, "10:00")
		require.NoError(t, err)
		assert.NotZero(t, bl.ID)
		assert.Equal(t, "10:00", bl.Time)
		bus.AssertExpectations(t)

		blocks, err := svc.ListBlocks(ctx, testDate)
		require.NoError(t, err)
		require.Len(t, blocks, 1)
	})

	t.Run("NoDeduplication", func(t *testing.T) {
		db := setupDB(t)
		svc := newTestBlockService(db, nil, nil)
		_, err := svc.CreateBlock(ctx, testDate, models.BlockSingleSlot, "10:00")
		require.NoError(t, err)
		_, err = svc.CreateBlock(ctx, testDate, models.BlockSingleSlot, "10:00")
		require.NoError(t, err)

		blocks, err := svc.ListBlocks(ctx, testDate)
		require.NoError(t, err)
		assert.Len(t, blocks, 2)
	})

	t.Run("FullDayIgnoresTime", func(t *testing.T) {
		svc := newTestBlockService(setupDB(t), nil, nil)
		bl, err := svc.CreateBlock(ctx, testDate, models.BlockFullDay, "10:00")
		require.NoError(t, err)
		assert.Empty(t, bl.Time)
	})

	t.Run("Invalid", func(t *testing.T) {
		svc := newTestBlockService(setupDB(t), nil, nil)
		_, err := svc.CreateBlock(ctx, testDate, models.BlockSingleSlot, "")
		assert.True(t, domain.IsValidation(err))
		_, err = svc.CreateBlock(ctx, testDate, models.BlockSingleSlot, "13:00")
		assert.True(t, domain.IsValidation(err))
		_, err = svc.CreateBlock(ctx, testDate, "week", "")
		assert.True(t, domain.IsValidation(err))
	})

	t.Run("Offline", func(t *testing.T) {
		svc := newTestBlockService(setupDB(t), offline(), nil)
		_, err := svc.CreateBlock(ctx, testDate, models.BlockFullDay, "")
		assert.True(t, domain.IsOffline(err))

		blocks, err := svc.ListBlocks(ctx, testDate)
		require.NoError(t, err)
		assert.Empty(t, blocks)
	})
}

func TestBlockService_RemoveBlock(t *testing.T) {
	ctx := context.Background()

	t.Run("BySlot", func(t *testing.T) {
		db := setupDB(t)
		svc := newTestBlockService(db, nil, nil)
		require.NoError(t, db.CreateBlock(ctx, &models.Block{Date: testDate, Type: models.BlockSingleSlot, Time: "09:00"}))
		require.NoError(t, db.CreateBlock(ctx, &models.Block{Date: testDate, Type: models.BlockSingleSlot, Time: "10:00"}))

		// the day is not loaded yet: removal loads it first
		require.NoError(t, svc.RemoveBlock(ctx, testDate, models.BlockSingleSlot, "10:00"))

		blocks, err := db.GetBlocksByDate(ctx, testDate)
		require.NoError(t, err)
		require.Len(t, blocks, 1)
		assert.Equal(t, "09:00", blocks[0].Time)
		assert.Len(t, svc.views.Cell(testDate).Get().Blocks, 1)
	})

	t.Run("FullDay", func(t *testing.T) {
		db := setupDB(t)
		svc := newTestBlockService(db, nil, nil)
		require.NoError(t, db.CreateBlock(ctx, &models.Block{Date: testDate, Type: models.BlockFullDay}))

		require.NoError(t, svc.RemoveBlock(ctx, testDate, models.BlockFullDay, ""))
		blocks, err := db.GetBlocksByDate(ctx, testDate)
		require.NoError(t, err)
		assert.Empty(t, blocks)
	})

	t.Run("NoMatch", func(t *testing.T) {
		db := setupDB(t)
		svc := newTestBlockService(db, nil, nil)
		require.NoError(t, db.CreateBlock(ctx, &models.Block{Date: testDate, Type: models.BlockSingleSlot, Time: "09:00"}))

		err := svc.RemoveBlock(ctx, testDate, models.BlockSingleSlot, "11:00")
		assert.True(t, domain.IsNotFound(err))
		err = svc.RemoveBlock(ctx, testDate, models.BlockFullDay, "")
		assert.True(t, domain.IsNotFound(err))
	})

	t.Run("RemoteFailureReverts", func(t *testing.T) {
		repo := &failingRepo{DB: setupDB(t), deleteErr: errors.New("locked")}
		svc := newTestBlockService(repo, nil, nil)
		require.NoError(t, repo.CreateBlock(ctx, &models.Block{Date: testDate, Type: models.BlockFullDay}))

		err := svc.RemoveBlock(ctx, testDate, models.BlockFullDay, "")
		assert.True(t, domain.IsRemote(err))
		assert.Len(t, svc.views.Cell(testDate).Get().Blocks, 1)
	})

	t.Run("AlreadyGone", func(t *testing.T) {
		repo := &failingRepo{DB: setupDB(t), deleteErr: database.ErrNotFound}
		svc := newTestBlockService(repo, nil, nil)
		require.NoError(t, repo.CreateBlock(ctx, &models.Block{Date: testDate, Type: models.BlockFullDay}))

		err := svc.RemoveBlock(ctx, testDate, models.BlockFullDay, "")
		assert.True(t, domain.IsNotFound(err))
		assert.False(t, svc.views.Cell(testDate).Get().Loaded)
	})

	t.Run("Offline", func(t *testing.T) {
		svc := newTestBlockService(setupDB(t), offline(), nil)
		err := svc.RemoveBlock(ctx, testDate, models.BlockFullDay, "")
		assert.True(t, domain.IsOffline(err))
	})
}
