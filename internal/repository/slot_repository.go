package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"list-manager/internal/model"
)

// DefaultQuotaBytes is the size limit of a single slot value.
const DefaultQuotaBytes = 5 << 20

// ErrQuotaExceeded is returned when a value would not fit the slot quota.
var ErrQuotaExceeded = errors.New("slot quota exceeded")

// SlotRepository is a string key-value store over the slots table.
type SlotRepository struct {
	db    *gorm.DB
	quota int
}

// NewSlotRepository returns a repository rejecting values above quota bytes.
// A non-positive quota means DefaultQuotaBytes.
func NewSlotRepository(db *gorm.DB, quota int) *SlotRepository {
	if quota <= 0 {
		quota = DefaultQuotaBytes
	}
	return &SlotRepository{db: db, quota: quota}
}

// Get returns the value at key and whether it exists.
func (r *SlotRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var slot model.Slot
	err := r.db.WithContext(ctx).Where("slot_key = ?", key).First(&slot).Error
	switch {
	case err == nil:
		return slot.Value, true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return "", false, nil
	default:
		return "", false, fmt.Errorf("get slot %q: %w", key, err)
	}
}

// Set writes value at key, replacing any previous value.
func (r *SlotRepository) Set(ctx context.Context, key, value string) error {
	if len(key)+len(value) > r.quota {
		return fmt.Errorf("set slot %q (%d bytes): %w", key, len(value), ErrQuotaExceeded)
	}
	slot := model.Slot{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slot_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&slot).Error
	if err != nil {
		return fmt.Errorf("set slot %q: %w", key, err)
	}
	return nil
}

// Remove deletes key; removing an absent key is not an error.
func (r *SlotRepository) Remove(ctx context.Context, key string) error {
	if err := r.db.WithContext(ctx).Where("slot_key = ?", key).Delete(&model.Slot{}).Error; err != nil {
		return fmt.Errorf("remove slot %q: %w", key, err)
	}
	return nil
}

// Keys lists stored keys starting with prefix, in key order.
func (r *SlotRepository) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	q := r.db.WithContext(ctx).Model(&model.Slot{})
	if prefix != "" {
		q = q.Where("slot_key LIKE ? ESCAPE '\\'", escapeLike(prefix)+"%")
	}
	if err := q.Order("slot_key ASC").Pluck("slot_key", &keys).Error; err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return keys, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
