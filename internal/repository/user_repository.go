package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"list-manager/internal/model"
)

// UserRepository records who has talked to the bot. Each row owns one list;
// the daily reminder and the backup job walk the table to find every owner.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Remember stores the sender's Telegram profile keyed by TelegramID and returns
// the persisted row. Only the name fields of profile are taken; a row whose
// names already match is returned without a write.
func (r *UserRepository) Remember(ctx context.Context, profile model.User) (*model.User, error) {
	db := r.db.WithContext(ctx)
	var stored model.User
	err := db.Where("telegram_id = ?", profile.TelegramID).Take(&stored).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		fresh := model.User{
			TelegramID: profile.TelegramID,
			FirstName:  profile.FirstName,
			LastName:   profile.LastName,
			Username:   profile.Username,
		}
		if err := db.Create(&fresh).Error; err != nil {
			return nil, fmt.Errorf("create user %d: %w", profile.TelegramID, err)
		}
		return &fresh, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user %d: %w", profile.TelegramID, err)
	}

	if sameNames(stored, profile) {
		return &stored, nil
	}
	stored.FirstName, stored.LastName, stored.Username = profile.FirstName, profile.LastName, profile.Username
	names := map[string]any{"first_name": stored.FirstName, "last_name": stored.LastName, "username": stored.Username}
	if err := db.Model(&stored).Updates(names).Error; err != nil {
		return nil, fmt.Errorf("update user %d: %w", profile.TelegramID, err)
	}
	return &stored, nil
}

func sameNames(a, b model.User) bool {
	return a.FirstName == b.FirstName && a.LastName == b.LastName && a.Username == b.Username
}

// ListAll returns every owner, oldest first.
func (r *UserRepository) ListAll(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).Order("id").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}
