package database

import (
	"context"
	"fmt"
	"time"

	"agenda/internal/models"
)

func (db *DB) CreateBlock(ctx context.Context, block *models.Block) error {
	if block.Type == models.BlockFullDay {
		block.Time = ""
	}
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx,
		`INSERT INTO blocks (date, type, time, created_at) VALUES (?, ?, ?, ?)`,
		dateKey(block.Date), block.Type, block.Time, now)
	if err != nil {
		return fmt.Errorf("failed to create block: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	block.ID = id
	block.Date = models.DateOf(block.Date)
	block.CreatedAt = now
	return nil
}

func (db *DB) GetBlocksByDate(ctx context.Context, date time.Time) ([]*models.Block, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, date, type, time, created_at FROM blocks WHERE date = ? ORDER BY id ASC`,
		dateKey(date))
	if err != nil {
		return nil, fmt.Errorf("failed to get blocks by date: %w", err)
	}
	defer rows.Close()

	var blocks []*models.Block
	for rows.Next() {
		var b models.Block
		var dateStr string
		if err := rows.Scan(&b.ID, &dateStr, &b.Type, &b.Time, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan block: %w", err)
		}
		if b.Date, err = time.Parse(models.DateLayout, dateStr); err != nil {
			return nil, fmt.Errorf("failed to parse block date %s: %w", dateStr, err)
		}
		blocks = append(blocks, &b)
	}
	return blocks, rows.Err()
}

func (db *DB) DeleteBlock(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM blocks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete block: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("block %d: %w", id, ErrNotFound)
	}
	return nil
}
