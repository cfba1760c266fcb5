package models

import "time"

const (
	BlockFullDay    = "full_day"
	BlockSingleSlot = "single_slot"
)

// Block marks a whole day or a single slot as unavailable.
type Block struct {
	ID        int64     `json:"id"`
	Date      time.Time `json:"date"`
	Type      string    `json:"type"`
	Time      string    `json:"time,omitempty"` // single_slot only
	CreatedAt time.Time `json:"created_at"`
}

// Matches reports whether the block is the one addressed by (type, time).
// Time is ignored for full day blocks.
func (b *Block) Matches(blockType, slot string) bool {
	if b.Type != blockType {
		return false
	}
	if blockType == BlockFullDay {
		return true
	}
	return b.Time == slot
}

func ValidBlockType(t string) bool {
	return t == BlockFullDay || t == BlockSingleSlot
}
