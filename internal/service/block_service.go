package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"agenda/internal/availability"
	"agenda/internal/database"
	"agenda/internal/domain"
	"agenda/internal/events"
	"agenda/internal/logging"
	"agenda/internal/models"

	"github.com/rs/zerolog"
)

type BlockService struct {
	repo     domain.BlockRepository
	views    *DayViews
	conn     domain.Connectivity
	events   domain.EventPublisher
	template []string
	logger   *zerolog.Logger
}

func NewBlockService(repo domain.BlockRepository, views *DayViews, conn domain.Connectivity, bus domain.EventPublisher, template []string, logger *zerolog.Logger) *BlockService {
	if len(template) == 0 {
		template = models.DefaultSlotTemplate
	}
	return &BlockService{
		repo:     repo,
		views:    views,
		conn:     conn,
		events:   bus,
		template: template,
		logger:   logging.Component(logger, "block_service"),
	}
}

func (s *BlockService) ListBlocks(ctx context.Context, date time.Time) ([]*models.Block, error) {
	if !online(s.conn) {
		s.views.Clear(date)
		return []*models.Block{}, nil
	}
	view, err := s.views.Load(ctx, date)
	if err != nil {
		return nil, s.remote("load blocks", err)
	}
	return view.Blocks, nil
}

// CreateBlock inserts a block without checking for an identical one.
func (s *BlockService) CreateBlock(ctx context.Context, date time.Time, blockType, slot string) (*models.Block, error) {
	if !online(s.conn) {
		return nil, domain.Offline("block the schedule")
	}
	slot, err := s.validate(blockType, slot)
	if err != nil {
		return nil, err
	}

	block := &models.Block{Date: models.DateOf(date), Type: blockType, Time: slot}
	err = s.views.Cell(date).Update(ctx,
		func(d DayView) DayView { return d.withBlock(block) },
		func(d DayView) DayView { return d.dropBlock(block) },
		func(ctx context.Context) error { return s.repo.CreateBlock(ctx, block) })
	if err != nil {
		return nil, s.remote("create block", err)
	}

	s.logger.Info().Int64("block_id", block.ID).Str("date", block.Date.Format(models.DateLayout)).
		Str("type", blockType).Str("time", slot).Msg("block created")
	publish(s.events, s.logger, events.EventBlockCreated, blockPayload(block))
	return block, nil
}

// RemoveBlock deletes the block matching (date, type[, time]) in the loaded day.
func (s *BlockService) RemoveBlock(ctx context.Context, date time.Time, blockType, slot string) error {
	if !online(s.conn) {
		return domain.Offline("remove a block")
	}
	slot, err := s.validate(blockType, slot)
	if err != nil {
		return err
	}

	view, err := s.views.Ensure(ctx, date)
	if err != nil {
		return s.remote("load blocks", err)
	}

	var target *models.Block
	for _, bl := range view.Blocks {
		if bl.Matches(blockType, slot) {
			target = bl
			break
		}
	}
	key := strings.TrimSpace(models.DateOf(date).Format(models.DateLayout) + " " + blockType + " " + slot)
	if target == nil {
		return domain.NotFound("block", key)
	}

	err = s.views.Cell(date).Update(ctx,
		func(d DayView) DayView { return d.withoutBlock(target.ID) },
		func(d DayView) DayView { return d.withBlock(target) },
		func(ctx context.Context) error { return s.repo.DeleteBlock(ctx, target.ID) })
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			s.views.Clear(date)
			return domain.NotFound("block", key)
		}
		return s.remote("remove block", err)
	}

	s.logger.Info().Int64("block_id", target.ID).Msg("block removed")
	publish(s.events, s.logger, events.EventBlockRemoved, blockPayload(target))
	return nil
}

// validate returns the normalized slot: empty for full day blocks.
func (s *BlockService) validate(blockType, slot string) (string, error) {
	switch blockType {
	case models.BlockFullDay:
		return "", nil
	case models.BlockSingleSlot:
		slot = strings.TrimSpace(slot)
		if !availability.InTemplate(s.template, slot) {
			return "", domain.Invalid("time", "not a slot of the schedule")
		}
		return slot, nil
	default:
		return "", domain.Invalid("type", "must be full_day or single_slot")
	}
}

func (s *BlockService) remote(op string, err error) error {
	s.logger.Error().Err(err).Str("op", op).Msg("remote call failed")
	return domain.Remote(op, err)
}

func blockPayload(b *models.Block) events.BlockEventPayload {
	return events.BlockEventPayload{
		BlockID: b.ID,
		Date:    b.Date.Format(models.DateLayout),
		Type:    b.Type,
		Time:    b.Time,
	}
}
