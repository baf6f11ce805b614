// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for flashcard sets
// and their tag associations.
//
// Error semantics:
//   - When a set is not found, functions return gorm.ErrRecordNotFound
//     (exported here as ErrNotFound).
//   - On DB errors the raw gorm error is propagated.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/flashcard-market/internal/domain"
	"github.com/tbourn/flashcard-market/internal/query"
)

// ListSets returns one page of sets filtered and sorted as cfg allows.
func ListSets(ctx context.Context, db *gorm.DB, cfg *query.ListQueryConfig, p query.Params, base ...query.Condition) (*query.Page[domain.Set], error) {
	return query.Paginate[domain.Set](ctx, db, cfg, p, base...)
}

// GetSet fetches a set by id with the named associations preloaded.
// With no preloads only the set row is read.
func GetSet(ctx context.Context, db *gorm.DB, id uint, preloads ...string) (*domain.Set, error) {
	q := db.WithContext(ctx)
	for _, p := range preloads {
		if p == "Cards" {
			q = q.Preload("Cards", func(db *gorm.DB) *gorm.DB {
				return db.Order("position ASC, id ASC")
			})
			continue
		}
		q = q.Preload(p)
	}
	var s domain.Set
	if err := q.First(&s, id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSet inserts s.
func CreateSet(ctx context.Context, db *gorm.DB, s *domain.Set) error {
	return db.WithContext(ctx).Omit("Educator", "Category", "Tags", "Cards").Create(s).Error
}

// UpdateSet applies the column/value pairs in fields to set id.
// Returns ErrNotFound when no row matched.
func UpdateSet(ctx context.Context, db *gorm.DB, id uint, fields map[string]any) error {
	if len(fields) == 0 {
		var n int64
		if err := db.WithContext(ctx).Model(&domain.Set{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	}
	res := db.WithContext(ctx).
		Model(&domain.Set{}).
		Where("id = ?", id).
		Updates(fields)
	return affectedOrNotFound(res)
}

// DeleteSet removes set id. Cards, likes, purchases and history rows go with
// it through ON DELETE CASCADE.
func DeleteSet(ctx context.Context, db *gorm.DB, id uint) error {
	res := db.WithContext(ctx).Delete(&domain.Set{}, id)
	return affectedOrNotFound(res)
}

// ReplaceSetTags replaces the tags of set id with tagIDs in one transaction.
// Unknown tag ids return ErrNotFound.
func ReplaceSetTags(ctx context.Context, db *gorm.DB, id uint, tagIDs []uint) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		s := domain.Set{ID: id}
		if len(tagIDs) == 0 {
			return tx.Model(&s).Association("Tags").Clear()
		}
		var tags []domain.Tag
		if err := tx.Where("id IN ?", tagIDs).Find(&tags).Error; err != nil {
			return err
		}
		if len(tags) != len(uniq(tagIDs)) {
			return ErrNotFound
		}
		return tx.Model(&s).Association("Tags").Replace(tags)
	})
}

func uniq(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
