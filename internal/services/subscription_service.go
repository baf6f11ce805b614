package services

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/flashcard-market/internal/cache"
	"github.com/tbourn/flashcard-market/internal/domain"
	"github.com/tbourn/flashcard-market/internal/query"
	"github.com/tbourn/flashcard-market/internal/repo"
)

// SubscriptionService manages subscriptions of users to educators. An active
// subscription opens every subscriber-only set of the educator.
type SubscriptionService struct {
	DB       *gorm.DB
	Cache    *cache.Cache
	CacheTTL time.Duration
	Listings *Listings
}

// NewSubscriptionService constructs a SubscriptionService.
func NewSubscriptionService(db *gorm.DB, c *cache.Cache, listings *Listings) *SubscriptionService {
	return &SubscriptionService{DB: db, Cache: c, CacheTTL: c.DefaultTTL(), Listings: listings}
}

func (s *SubscriptionService) span(ctx context.Context, op string, educatorID uint) (context.Context, trace.Span) {
	return otel.Tracer("services/SubscriptionService").Start(ctx, op,
		trace.WithAttributes(attribute.Int64("educator.id", int64(educatorID))),
	)
}

// Subscribe subscribes userID to educatorID.
func (s *SubscriptionService) Subscribe(ctx context.Context, userID, educatorID uint) (*domain.Subscription, error) {
	ctx, span := s.span(ctx, "Subscribe", educatorID)
	defer span.End()

	if userID == 0 {
		return nil, ErrUnauthenticated
	}
	if userID == educatorID {
		return nil, ErrSelfSubscribe
	}
	if _, err := repo.GetUser(ctx, s.DB, educatorID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	sub, err := repo.CreateSubscription(ctx, s.DB, userID, educatorID)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrAlreadySubscribed
		}
		return nil, err
	}
	invalidate(s.Cache, resSubscription)
	return sub, nil
}

// Unsubscribe ends the subscription of userID to educatorID.
func (s *SubscriptionService) Unsubscribe(ctx context.Context, userID, educatorID uint) error {
	ctx, span := s.span(ctx, "Unsubscribe", educatorID)
	defer span.End()

	if userID == 0 {
		return ErrUnauthenticated
	}
	if err := repo.DeleteSubscription(ctx, s.DB, userID, educatorID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotSubscribed
		}
		return err
	}
	invalidate(s.Cache, resSubscription)
	return nil
}

// ListMine returns one page of the subscriptions of userID.
func (s *SubscriptionService) ListMine(ctx context.Context, userID uint, p query.Params) (*query.Page[domain.Subscription], error) {
	if userID == 0 {
		return nil, ErrUnauthenticated
	}
	key, err := listKey(resSubscription, "mine", s.Listings.Subscriptions, p, strconv.FormatUint(uint64(userID), 10))
	if err != nil {
		return nil, err
	}
	return cache.GetOrLoad(ctx, s.Cache, key, s.CacheTTL, func(ctx context.Context) (*query.Page[domain.Subscription], error) {
		return repo.ListSubscriptions(ctx, s.DB, s.Listings.Subscriptions, p, query.Eq("user_id", userID))
	})
}
