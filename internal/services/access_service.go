// Package services – SetAccessService
//
// This file implements the monetization access-decision engine. For a
// (set, user) pair it resolves exactly one grant (owned, admin, free,
// purchased, subscribed) or a structured denial, reading fresh state from
// the store on every call.
//
// Resolution order, first match wins:
//
//  1. validate ids
//  2. load set; missing -> SET_NOT_FOUND, hidden -> SET_HIDDEN
//  3. free set -> free, anonymous callers included
//  4. anonymous caller -> denial
//  5. owner -> owned; admin role -> admin
//  6. priced set with a purchase -> purchased
//  7. subscriber-only set with a subscription to the educator -> subscribed
//  8. denial with reason SUBSCRIBER_ONLY or PREMIUM
//
// Ownership and admin are resolved before any purchase or subscription so an
// educator previewing their own priced set never needs a purchase row. Hidden
// is resolved before ownership: even the owner receives SET_HIDDEN.
//
// The verdict is per caller and is never cached.
package services

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/flashcard-market/internal/domain"
)

// AccessErrorCode classifies why an access check could not produce a verdict.
type AccessErrorCode string

const (
	AccessInvalidSetID  AccessErrorCode = "INVALID_SET_ID"
	AccessInvalidUserID AccessErrorCode = "INVALID_USER_ID"
	AccessSetNotFound   AccessErrorCode = "SET_NOT_FOUND"
	AccessSetHidden     AccessErrorCode = "SET_HIDDEN"
	AccessUserNotFound  AccessErrorCode = "USER_NOT_FOUND"
)

// AccessError is returned by CheckAccess for malformed ids and for sets or
// users that cannot be resolved. A denial is not an error; it is a verdict
// with HasAccess=false.
type AccessError struct {
	Code AccessErrorCode
	Msg  string
}

func (e *AccessError) Error() string { return string(e.Code) + ": " + e.Msg }

// AccessStore is the read-only view of the resource store the engine needs.
type AccessStore interface {
	GetSet(ctx context.Context, db *gorm.DB, id uint) (*domain.Set, error)
	GetUser(ctx context.Context, db *gorm.DB, id uint) (*domain.User, error)
	HasPurchase(ctx context.Context, db *gorm.DB, userID, setID uint) (bool, error)
	HasSubscription(ctx context.Context, db *gorm.DB, userID, educatorID uint) (bool, error)
}

// SetAccessService decides who may view the content of a set.
type SetAccessService struct {
	DB    *gorm.DB
	Store AccessStore
}

// NewSetAccessService constructs a SetAccessService.
func NewSetAccessService(db *gorm.DB, store AccessStore) *SetAccessService {
	return &SetAccessService{DB: db, Store: store}
}

const (
	msgSubscriberOnly = "This set is available to subscribers of its educator."
	msgPremium        = "This set must be purchased to view its content."
)

// CheckAccess resolves the verdict for setID and the optional userID (nil for
// anonymous callers). Store failures are returned wrapped; they are never
// turned into a denial.
func (s *SetAccessService) CheckAccess(ctx context.Context, setID int64, userID *int64) (*domain.AccessVerdict, error) {
	tr := otel.Tracer("services/SetAccessService")
	ctx, span := tr.Start(ctx, "CheckAccess",
		trace.WithAttributes(
			attribute.Int64("set.id", setID),
			attribute.Bool("user.anonymous", userID == nil),
		),
	)
	defer span.End()

	v, err := s.checkAccess(ctx, setID, userID)
	if err != nil {
		var ae *AccessError
		if !errors.As(err, &ae) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "access check failed")
		}
		return nil, err
	}
	span.SetAttributes(
		attribute.Bool("access.granted", v.HasAccess),
		attribute.String("access.set_type", string(v.SetType)),
	)
	return v, nil
}

func (s *SetAccessService) checkAccess(ctx context.Context, setID int64, userID *int64) (*domain.AccessVerdict, error) {
	if setID <= 0 {
		return nil, &AccessError{Code: AccessInvalidSetID, Msg: "set id must be a positive integer"}
	}
	if userID != nil && *userID <= 0 {
		return nil, &AccessError{Code: AccessInvalidUserID, Msg: "user id must be a positive integer"}
	}

	set, err := s.Store.GetSet(ctx, s.DB, uint(setID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &AccessError{Code: AccessSetNotFound, Msg: "set not found"}
		}
		return nil, fmt.Errorf("load set %d: %w", setID, err)
	}
	if set.Hidden {
		return nil, &AccessError{Code: AccessSetHidden, Msg: "set not found"}
	}

	if set.IsFree() {
		return grant(set, domain.SetTypeFree), nil
	}
	if userID == nil {
		return deny(set), nil
	}
	uid := uint(*userID)

	if set.EducatorID == uid {
		return grant(set, domain.SetTypeOwned), nil
	}
	user, err := s.Store.GetUser(ctx, s.DB, uid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &AccessError{Code: AccessUserNotFound, Msg: "user not found"}
		}
		return nil, fmt.Errorf("load user %d: %w", uid, err)
	}
	if user.IsAdmin() {
		return grant(set, domain.SetTypeAdmin), nil
	}

	if set.IsPremium() {
		ok, err := s.Store.HasPurchase(ctx, s.DB, uid, set.ID)
		if err != nil {
			return nil, fmt.Errorf("check purchase: %w", err)
		}
		if ok {
			return grant(set, domain.SetTypePurchased), nil
		}
	}
	if set.IsSubscriberOnly {
		ok, err := s.Store.HasSubscription(ctx, s.DB, uid, set.EducatorID)
		if err != nil {
			return nil, fmt.Errorf("check subscription: %w", err)
		}
		if ok {
			return grant(set, domain.SetTypeSubscribed), nil
		}
	}
	return deny(set), nil
}

func grant(set *domain.Set, t domain.SetType) *domain.AccessVerdict {
	return &domain.AccessVerdict{HasAccess: true, SetType: t, SetTitle: set.Title, SetID: set.ID}
}

func deny(set *domain.Set) *domain.AccessVerdict {
	price := set.Price
	v := &domain.AccessVerdict{
		HasAccess: false,
		SetType:   domain.SetTypePremium,
		Reason:    domain.ReasonPremium,
		Message:   msgPremium,
		Price:     &price,
		SetTitle:  set.Title,
		SetID:     set.ID,
	}
	if set.IsSubscriberOnly {
		v.SetType = domain.SetTypeSubscriber
		v.Reason = domain.ReasonSubscriberOnly
		v.Message = msgSubscriberOnly
	}
	return v
}
