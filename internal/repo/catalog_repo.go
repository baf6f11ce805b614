// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file covers the two catalog resources, categories and
// tags, which are small admin-curated tables read far more than written.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/flashcard-market/internal/domain"
	"github.com/tbourn/flashcard-market/internal/query"
)

// ListCategories returns one page of categories.
func ListCategories(ctx context.Context, db *gorm.DB, cfg *query.ListQueryConfig, p query.Params) (*query.Page[domain.Category], error) {
	return query.Paginate[domain.Category](ctx, db, cfg, p)
}

// GetCategory fetches a category by id, or ErrNotFound.
func GetCategory(ctx context.Context, db *gorm.DB, id uint) (*domain.Category, error) {
	var c domain.Category
	if err := db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateCategory inserts c. A taken name returns ErrDuplicate.
func CreateCategory(ctx context.Context, db *gorm.DB, c *domain.Category) error {
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// RenameCategory sets the name of category id.
func RenameCategory(ctx context.Context, db *gorm.DB, id uint, name string) error {
	res := db.WithContext(ctx).
		Model(&domain.Category{}).
		Where("id = ?", id).
		Update("name", name)
	if res.Error != nil && isUniqueViolation(res.Error) {
		return ErrDuplicate
	}
	return affectedOrNotFound(res)
}

// DeleteCategory removes category id; its sets keep existing with a NULL
// category.
func DeleteCategory(ctx context.Context, db *gorm.DB, id uint) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.Set{}).
			Where("category_id = ?", id).
			Update("category_id", nil).Error; err != nil {
			return err
		}
		return affectedOrNotFound(tx.Delete(&domain.Category{}, id))
	})
}

// ListTags returns one page of tags.
func ListTags(ctx context.Context, db *gorm.DB, cfg *query.ListQueryConfig, p query.Params) (*query.Page[domain.Tag], error) {
	return query.Paginate[domain.Tag](ctx, db, cfg, p)
}

// CreateTag inserts t. A taken name returns ErrDuplicate.
func CreateTag(ctx context.Context, db *gorm.DB, t *domain.Tag) error {
	if err := db.WithContext(ctx).Create(t).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}
