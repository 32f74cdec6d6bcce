package model

import (
	"strconv"
	"time"
)

// User stores Telegram user metadata. Each user owns one list.
type User struct {
	ID         uint  `gorm:"primaryKey"`
	TelegramID int64 `gorm:"uniqueIndex"`
	FirstName  string
	LastName   string
	Username   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Owner is the scope segment used in the user's slot keys.
func (u User) Owner() string {
	return "tg" + strconv.FormatInt(u.TelegramID, 10)
}
