// Package services – PurchaseService
//
// A purchase grants permanent access to a priced set. The amount stored is
// the price of the set at the time of purchase. Requests that carry an
// Idempotency-Key are recorded together with the purchase, so a retry with
// the same key returns the original purchase instead of failing or charging
// again.
package services

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
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

// PurchaseService sells priced sets.
type PurchaseService struct {
	DB       *gorm.DB
	Cache    *cache.Cache
	CacheTTL time.Duration
	Listings *Listings

	// IdempotencyTTL is how long a purchase can be replayed by its key.
	IdempotencyTTL time.Duration

	Now func() time.Time
}

// NewPurchaseService constructs a PurchaseService with a 24h replay window.
func NewPurchaseService(db *gorm.DB, c *cache.Cache, listings *Listings) *PurchaseService {
	return &PurchaseService{
		DB:             db,
		Cache:          c,
		CacheTTL:       c.DefaultTTL(),
		Listings:       listings,
		IdempotencyTTL: 24 * time.Hour,
		Now:            time.Now,
	}
}

// Purchase buys setID for userID. replay is true when idemKey matched an
// earlier successful purchase, which is returned unchanged.
func (s *PurchaseService) Purchase(ctx context.Context, userID, setID uint, idemKey string) (p *domain.Purchase, replay bool, err error) {
	ctx, span := otel.Tracer("services/PurchaseService").Start(ctx, "Purchase",
		trace.WithAttributes(
			attribute.Int64("set.id", int64(setID)),
			attribute.Int64("user.id", int64(userID)),
		),
	)
	defer span.End()

	if userID == 0 {
		return nil, false, ErrUnauthenticated
	}
	idemKey = strings.TrimSpace(idemKey)

	if idemKey != "" {
		prev, err := s.replay(ctx, userID, setID, idemKey)
		if err != nil {
			return nil, false, err
		}
		if prev != nil {
			return prev, true, nil
		}
	}

	set, err := loadVisibleSet(ctx, s.DB, setID)
	if err != nil {
		return nil, false, err
	}
	if !set.IsPremium() {
		return nil, false, ErrNotPurchasable
	}
	if set.EducatorID == userID {
		return nil, false, ErrOwnSet
	}
	owned, err := repo.HasPurchase(ctx, s.DB, userID, setID)
	if err != nil {
		return nil, false, err
	}
	if owned {
		return nil, false, ErrAlreadyPurchased
	}

	p = &domain.Purchase{
		UserID: userID,
		SetID:  set.ID,
		Amount: set.Price,
		Date:   s.Now().UTC(),
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.CreatePurchase(ctx, tx, p); err != nil {
			return err
		}
		if idemKey == "" {
			return nil
		}
		_, err := repo.CreateIdempotency(ctx, tx, userID, setID, idemKey, p.ID, http.StatusCreated, s.IdempotencyTTL)
		return err
	})
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, false, ErrAlreadyPurchased
		}
		return nil, false, err
	}

	invalidate(s.Cache, resPurchase)
	p.Set = set
	return p, false, nil
}

// HasReplay reports whether idemKey would replay an earlier purchase.
func (s *PurchaseService) HasReplay(ctx context.Context, userID, setID uint, idemKey string) (bool, error) {
	_, err := repo.GetIdempotency(ctx, s.DB, userID, setID, idemKey, s.Now().UTC())
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// ListMine returns one page of the purchases of userID with their sets.
func (s *PurchaseService) ListMine(ctx context.Context, userID uint, p query.Params) (*query.Page[domain.Purchase], error) {
	if userID == 0 {
		return nil, ErrUnauthenticated
	}
	key, err := listKey(resPurchase, "mine", s.Listings.Purchases, p, strconv.FormatUint(uint64(userID), 10))
	if err != nil {
		return nil, err
	}
	return cache.GetOrLoad(ctx, s.Cache, key, s.CacheTTL, func(ctx context.Context) (*query.Page[domain.Purchase], error) {
		return repo.ListPurchases(ctx, s.DB, s.Listings.Purchases, p, query.Eq("user_id", userID))
	})
}

// PurgeExpired removes idempotency records past their window.
func (s *PurchaseService) PurgeExpired(ctx context.Context) (int64, error) {
	return repo.PurgeExpiredIdempotency(ctx, s.DB, s.Now().UTC())
}

func (s *PurchaseService) replay(ctx context.Context, userID, setID uint, key string) (*domain.Purchase, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, userID, setID, key, s.Now().UTC())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p, err := repo.GetPurchase(ctx, s.DB, rec.PurchaseID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// The set was deleted since; the purchase went with it.
		return nil, nil
	}
	return p, err
}
