package model

import "time"

// Slot is one row of the key-value table backing list persistence.
type Slot struct {
	Key       string `gorm:"primaryKey;column:slot_key"`
	Value     string `gorm:"type:text"`
	UpdatedAt time.Time
}
