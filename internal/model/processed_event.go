package model

import "time"

// ProcessedEvent records an external webhook or callback id that already took effect.
type ProcessedEvent struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	Source     string    `gorm:"column:source;size:32;not null;uniqueIndex:ux_processed_event,priority:1"`
	ExternalID string    `gorm:"column:external_id;size:128;not null;uniqueIndex:ux_processed_event,priority:2"`
	OrderID    uint64    `gorm:"column:order_id;index"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

func (ProcessedEvent) TableName() string {
	return "processed_events"
}

// Sequence is a named monotonic counter used for display numbers.
type Sequence struct {
	Name  string `gorm:"column:name;primaryKey;size:32"`
	Value uint64 `gorm:"column:value;not null;default:0"`
}

func (Sequence) TableName() string {
	return "sequences"
}
