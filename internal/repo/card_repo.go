package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/flashcard-market/internal/domain"
)

// CreateCard appends c to its set. When c.Position is zero the card is placed
// after the current last card.
func CreateCard(ctx context.Context, db *gorm.DB, c *domain.Card) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if c.Position == 0 {
			var maxPos int
			if err := tx.Model(&domain.Card{}).
				Where("set_id = ?", c.SetID).
				Select("COALESCE(MAX(position), 0)").
				Scan(&maxPos).Error; err != nil {
				return err
			}
			c.Position = maxPos + 1
		}
		return tx.Create(c).Error
	})
}

// GetCard fetches a card by id, or ErrNotFound.
func GetCard(ctx context.Context, db *gorm.DB, id uint) (*domain.Card, error) {
	var c domain.Card
	if err := db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateCard applies fields to card id. Returns ErrNotFound when no row matched.
func UpdateCard(ctx context.Context, db *gorm.DB, id uint, fields map[string]any) error {
	res := db.WithContext(ctx).
		Model(&domain.Card{}).
		Where("id = ?", id).
		Updates(fields)
	return affectedOrNotFound(res)
}

// DeleteCard removes card id. Returns ErrNotFound when no row matched.
func DeleteCard(ctx context.Context, db *gorm.DB, id uint) error {
	return affectedOrNotFound(db.WithContext(ctx).Delete(&domain.Card{}, id))
}
