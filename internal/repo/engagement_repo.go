// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the per-user relationship tables that
// drive access decisions and personal listings: likes, purchases,
// subscriptions and view history.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/flashcard-market/internal/domain"
	"github.com/tbourn/flashcard-market/internal/query"
)

// ---- likes ----

// CreateLike records that userID likes setID. A second like returns ErrDuplicate.
func CreateLike(ctx context.Context, db *gorm.DB, userID, setID uint) (*domain.Like, error) {
	l := &domain.Like{UserID: userID, SetID: setID, CreatedAt: time.Now().UTC()}
	if err := db.WithContext(ctx).Omit("Set").Create(l).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return l, nil
}

// DeleteLike removes the like of userID on setID. Returns ErrNotFound when
// there was none.
func DeleteLike(ctx context.Context, db *gorm.DB, userID, setID uint) error {
	res := db.WithContext(ctx).
		Where("user_id = ? AND set_id = ?", userID, setID).
		Delete(&domain.Like{})
	return affectedOrNotFound(res)
}

// CountLikes returns how many users like setID.
func CountLikes(ctx context.Context, db *gorm.DB, setID uint) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Like{}).Where("set_id = ?", setID).Count(&n).Error
	return n, err
}

// ListLikes returns one page of the likes matching base.
func ListLikes(ctx context.Context, db *gorm.DB, cfg *query.ListQueryConfig, p query.Params, base ...query.Condition) (*query.Page[domain.Like], error) {
	return query.Paginate[domain.Like](ctx, db, cfg, p, base...)
}

// ---- purchases ----

// HasPurchase reports whether userID bought setID.
func HasPurchase(ctx context.Context, db *gorm.DB, userID, setID uint) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Purchase{}).
		Where("user_id = ? AND set_id = ?", userID, setID).
		Count(&n).Error
	return n > 0, err
}

// CreatePurchase inserts p. A second purchase of the same set by the same
// user returns ErrDuplicate.
func CreatePurchase(ctx context.Context, db *gorm.DB, p *domain.Purchase) error {
	if p.Date.IsZero() {
		p.Date = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Omit("Set").Create(p).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetPurchase fetches a purchase by id with its set, or ErrNotFound.
func GetPurchase(ctx context.Context, db *gorm.DB, id uint) (*domain.Purchase, error) {
	var p domain.Purchase
	if err := db.WithContext(ctx).Preload("Set").First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPurchases returns one page of the purchases matching base.
func ListPurchases(ctx context.Context, db *gorm.DB, cfg *query.ListQueryConfig, p query.Params, base ...query.Condition) (*query.Page[domain.Purchase], error) {
	return query.Paginate[domain.Purchase](ctx, db, cfg, p, base...)
}

// ---- subscriptions ----

// HasSubscription reports whether userID subscribes to educatorID.
func HasSubscription(ctx context.Context, db *gorm.DB, userID, educatorID uint) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Subscription{}).
		Where("user_id = ? AND educator_id = ?", userID, educatorID).
		Count(&n).Error
	return n > 0, err
}

// CreateSubscription subscribes userID to educatorID. A repeated subscription
// returns ErrDuplicate.
func CreateSubscription(ctx context.Context, db *gorm.DB, userID, educatorID uint) (*domain.Subscription, error) {
	s := &domain.Subscription{UserID: userID, EducatorID: educatorID, Date: time.Now().UTC()}
	if err := db.WithContext(ctx).Omit("Educator").Create(s).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return s, nil
}

// DeleteSubscription ends the subscription of userID to educatorID.
func DeleteSubscription(ctx context.Context, db *gorm.DB, userID, educatorID uint) error {
	res := db.WithContext(ctx).
		Where("user_id = ? AND educator_id = ?", userID, educatorID).
		Delete(&domain.Subscription{})
	return affectedOrNotFound(res)
}

// ListSubscriptions returns one page of the subscriptions matching base.
func ListSubscriptions(ctx context.Context, db *gorm.DB, cfg *query.ListQueryConfig, p query.Params, base ...query.Condition) (*query.Page[domain.Subscription], error) {
	return query.Paginate[domain.Subscription](ctx, db, cfg, p, base...)
}

// ---- history ----

// RecordView upserts the last view time of setID by userID.
func RecordView(ctx context.Context, db *gorm.DB, userID, setID uint, at time.Time) error {
	h := &domain.ViewHistory{UserID: userID, SetID: setID, ViewedAt: at.UTC()}
	return db.WithContext(ctx).
		Omit("Set").
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "set_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"viewed_at"}),
		}).
		Create(h).Error
}

// ListHistory returns one page of the view history matching base.
func ListHistory(ctx context.Context, db *gorm.DB, cfg *query.ListQueryConfig, p query.Params, base ...query.Condition) (*query.Page[domain.ViewHistory], error) {
	return query.Paginate[domain.ViewHistory](ctx, db, cfg, p, base...)
}
