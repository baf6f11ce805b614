// Package services – SetService
//
// This file implements SetService, which owns flashcard sets: public
// listings, metadata reads, gated content reads, authoring and tagging.
//
// Listings and metadata reads go through the read-through cache. Only data
// that is identical for every caller is stored under a shared key: hidden
// sets are never cached, and the access-gated content read is never cached.
// Every write evicts all "Set:" entries before it returns.
package services

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/flashcard-market/internal/cache"
	"github.com/tbourn/flashcard-market/internal/domain"
	"github.com/tbourn/flashcard-market/internal/query"
	"github.com/tbourn/flashcard-market/internal/repo"
)

// maxPrice is the largest price numeric(10,2) can hold.
var maxPrice = decimal.RequireFromString("99999999.99")

// SetInput carries the fields of a new set.
type SetInput struct {
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	CategoryID       *uint           `json:"categoryId"`
	Price            decimal.Decimal `json:"price"`
	IsSubscriberOnly bool            `json:"isSubscriberOnly"`
	Hidden           bool            `json:"hidden"`
	Featured         bool            `json:"featured"`
}

// SetPatch carries the fields to change on an existing set; nil means keep.
type SetPatch struct {
	Title            *string          `json:"title"`
	Description      *string          `json:"description"`
	CategoryID       *uint            `json:"categoryId"`
	ClearCategory    bool             `json:"clearCategory"`
	Price            *decimal.Decimal `json:"price"`
	IsSubscriberOnly *bool            `json:"isSubscriberOnly"`
	Hidden           *bool            `json:"hidden"`
	Featured         *bool            `json:"featured"`
}

// SetContent is the result of a content read. When Locked is true Set is nil
// and Access explains the denial.
type SetContent struct {
	Locked bool                  `json:"locked"`
	Access *domain.AccessVerdict `json:"access"`
	Set    *domain.Set           `json:"set,omitempty"`
}

// SetService coordinates set persistence, caching and access checks.
type SetService struct {
	DB       *gorm.DB
	Cache    *cache.Cache
	CacheTTL time.Duration
	Access   *SetAccessService
	Listings *Listings

	History *HistoryService

	// TitleMaxLen caps stored titles by rune length.
	TitleMaxLen int
}

// NewSetService constructs a SetService with default title rules.
func NewSetService(db *gorm.DB, c *cache.Cache, access *SetAccessService, listings *Listings) *SetService {
	return &SetService{
		DB:          db,
		Cache:       c,
		CacheTTL:    c.DefaultTTL(),
		Access:      access,
		Listings:    listings,
		History:     NewHistoryService(db, listings),
		TitleMaxLen: 120,
	}
}

func (s *SetService) tracer() trace.Tracer { return otel.Tracer("services/SetService") }

// List returns one page of visible sets. Results are cached per normalized
// parameter set.
func (s *SetService) List(ctx context.Context, p query.Params) (*query.Page[domain.Set], error) {
	ctx, span := s.tracer().Start(ctx, "List")
	defer span.End()

	key, err := listKey(resSet, "list", s.Listings.Sets, p)
	if err != nil {
		return nil, err
	}
	return cache.GetOrLoad(ctx, s.Cache, key, s.CacheTTL, func(ctx context.Context) (*query.Page[domain.Set], error) {
		return repo.ListSets(ctx, s.DB, s.Listings.Sets, p, query.Eq("hidden", false))
	})
}

// ListByEducator returns one page of the sets published by educatorID. The
// educator and admins also see hidden sets; those listings are not cached.
func (s *SetService) ListByEducator(ctx context.Context, educatorID, callerID uint, p query.Params) (*query.Page[domain.Set], error) {
	ctx, span := s.tracer().Start(ctx, "ListByEducator",
		trace.WithAttributes(attribute.Int64("educator.id", int64(educatorID))),
	)
	defer span.End()

	if _, err := repo.GetUser(ctx, s.DB, educatorID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	// The path decides the educator; a caller-supplied educatorId filter
	// would be AND-ed with it and must not reach the query or the key.
	p = p.Clone()
	delete(p, "educatorId")

	privileged := callerID == educatorID
	if !privileged {
		ok, err := isAdmin(ctx, s.DB, callerID)
		if err != nil {
			return nil, err
		}
		privileged = ok
	}
	if privileged {
		return repo.ListSets(ctx, s.DB, s.Listings.Sets, p, query.Eq("educator_id", educatorID))
	}

	key, err := listKey(resSet, "educator", s.Listings.Sets, p, strconv.FormatUint(uint64(educatorID), 10))
	if err != nil {
		return nil, err
	}
	return cache.GetOrLoad(ctx, s.Cache, key, s.CacheTTL, func(ctx context.Context) (*query.Page[domain.Set], error) {
		return repo.ListSets(ctx, s.DB, s.Listings.Sets, p, query.Eq("educator_id", educatorID), query.Eq("hidden", false))
	})
}

// Get returns the metadata of a set (never its cards). A hidden set is
// reported as ErrSetNotFound unless the caller owns it or is an admin.
func (s *SetService) Get(ctx context.Context, id, callerID uint) (*domain.Set, error) {
	ctx, span := s.tracer().Start(ctx, "Get", trace.WithAttributes(attribute.Int64("set.id", int64(id))))
	defer span.End()

	key := cache.Key(resSet, "get", map[string]string{"id": strconv.FormatUint(uint64(id), 10)})
	if v, ok := s.Cache.Get(key); ok {
		if set, ok := v.(*domain.Set); ok {
			return set, nil
		}
	}

	set, err := repo.GetSet(ctx, s.DB, id, "Category", "Tags")
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSetNotFound
		}
		return nil, err
	}
	if set.Hidden {
		if err := authorizeOwner(ctx, s.DB, callerID, set.EducatorID); err != nil {
			if errors.Is(err, ErrForbidden) || errors.Is(err, ErrUnauthenticated) {
				return nil, ErrSetNotFound
			}
			return nil, err
		}
		return set, nil
	}
	s.Cache.Set(key, set, s.CacheTTL)
	return set, nil
}

// CheckAccess exposes the access verdict for a set without reading content.
func (s *SetService) CheckAccess(ctx context.Context, setID int64, userID *int64) (*domain.AccessVerdict, error) {
	return s.Access.CheckAccess(ctx, setID, userID)
}

// Content returns the cards of a set when the caller may view them, or a
// locked result carrying the denial verdict. Successful reads by a known
// user are recorded in their view history.
func (s *SetService) Content(ctx context.Context, setID int64, userID *int64) (*SetContent, error) {
	ctx, span := s.tracer().Start(ctx, "Content", trace.WithAttributes(attribute.Int64("set.id", setID)))
	defer span.End()

	v, err := s.Access.CheckAccess(ctx, setID, userID)
	if err != nil {
		return nil, err
	}
	if !v.HasAccess {
		return &SetContent{Locked: true, Access: v}, nil
	}

	set, err := repo.GetSet(ctx, s.DB, uint(setID), "Cards", "Tags", "Category")
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &AccessError{Code: AccessSetNotFound, Msg: "set not found"}
		}
		return nil, err
	}

	if userID != nil && s.History != nil {
		if err := s.History.Record(ctx, uint(*userID), set.ID); err != nil {
			log.Warn().Err(err).Uint("set_id", set.ID).Msg("record view failed")
		}
	}
	return &SetContent{Locked: false, Access: v, Set: set}, nil
}

// Create publishes a new set owned by userID.
func (s *SetService) Create(ctx context.Context, userID uint, in SetInput) (*domain.Set, error) {
	ctx, span := s.tracer().Start(ctx, "Create")
	defer span.End()

	if userID == 0 {
		return nil, ErrUnauthenticated
	}
	title := clip(normalizeTitle(in.Title), s.TitleMaxLen)
	if title == "" {
		return nil, invalidField("title", "is required")
	}
	price, err := normalizePrice(in.Price)
	if err != nil {
		return nil, err
	}
	if err := s.checkCategory(ctx, in.CategoryID); err != nil {
		return nil, err
	}
	featured := false
	if in.Featured {
		if featured, err = isAdmin(ctx, s.DB, userID); err != nil {
			return nil, err
		}
	}

	set := &domain.Set{
		Title:            title,
		Description:      in.Description,
		EducatorID:       userID,
		CategoryID:       in.CategoryID,
		Price:            price,
		IsSubscriberOnly: in.IsSubscriberOnly,
		Hidden:           in.Hidden,
		Featured:         featured,
	}
	if err := repo.CreateSet(ctx, s.DB, set); err != nil {
		return nil, err
	}
	invalidate(s.Cache, resSet)
	return set, nil
}

// Update changes the fields of a set present in patch. Only the owner or an
// admin may update; only an admin may change Featured.
func (s *SetService) Update(ctx context.Context, userID, id uint, patch SetPatch) (*domain.Set, error) {
	ctx, span := s.tracer().Start(ctx, "Update", trace.WithAttributes(attribute.Int64("set.id", int64(id))))
	defer span.End()

	set, err := s.loadOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if patch.Title != nil {
		title := clip(normalizeTitle(*patch.Title), s.TitleMaxLen)
		if title == "" {
			return nil, invalidField("title", "is required")
		}
		fields["title"] = title
	}
	if patch.Description != nil {
		fields["description"] = *patch.Description
	}
	if patch.ClearCategory {
		fields["category_id"] = nil
	} else if patch.CategoryID != nil {
		if err := s.checkCategory(ctx, patch.CategoryID); err != nil {
			return nil, err
		}
		fields["category_id"] = *patch.CategoryID
	}
	if patch.Price != nil {
		price, err := normalizePrice(*patch.Price)
		if err != nil {
			return nil, err
		}
		fields["price"] = price
	}
	if patch.IsSubscriberOnly != nil {
		fields["is_subscriber_only"] = *patch.IsSubscriberOnly
	}
	if patch.Hidden != nil {
		fields["hidden"] = *patch.Hidden
	}
	if patch.Featured != nil {
		admin, err := isAdmin(ctx, s.DB, userID)
		if err != nil {
			return nil, err
		}
		if !admin {
			return nil, ErrForbidden
		}
		fields["featured"] = *patch.Featured
	}

	if err := repo.UpdateSet(ctx, s.DB, set.ID, fields); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSetNotFound
		}
		return nil, err
	}
	// Like and purchase pages embed set metadata.
	invalidate(s.Cache, resSet, resLike, resPurchase)
	return repo.GetSet(ctx, s.DB, set.ID, "Category", "Tags")
}

// Delete removes a set and, through cascades, its cards and relationships.
func (s *SetService) Delete(ctx context.Context, userID, id uint) error {
	ctx, span := s.tracer().Start(ctx, "Delete", trace.WithAttributes(attribute.Int64("set.id", int64(id))))
	defer span.End()

	if _, err := s.loadOwned(ctx, userID, id); err != nil {
		return err
	}
	if err := repo.DeleteSet(ctx, s.DB, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSetNotFound
		}
		return err
	}
	invalidate(s.Cache, resSet, resLike, resPurchase)
	return nil
}

// SetTags replaces the tags of a set.
func (s *SetService) SetTags(ctx context.Context, userID, id uint, tagIDs []uint) (*domain.Set, error) {
	ctx, span := s.tracer().Start(ctx, "SetTags", trace.WithAttributes(attribute.Int64("set.id", int64(id))))
	defer span.End()

	if _, err := s.loadOwned(ctx, userID, id); err != nil {
		return nil, err
	}
	if err := repo.ReplaceSetTags(ctx, s.DB, id, tagIDs); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTagNotFound
		}
		return nil, err
	}
	invalidate(s.Cache, resSet)
	return repo.GetSet(ctx, s.DB, id, "Category", "Tags")
}

// loadOwned fetches set id and checks that userID may modify it. A caller
// who may not see a hidden set gets ErrSetNotFound rather than ErrForbidden.
func (s *SetService) loadOwned(ctx context.Context, userID, id uint) (*domain.Set, error) {
	if userID == 0 {
		return nil, ErrUnauthenticated
	}
	set, err := repo.GetSet(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSetNotFound
		}
		return nil, err
	}
	if err := authorizeOwner(ctx, s.DB, userID, set.EducatorID); err != nil {
		if errors.Is(err, ErrForbidden) && set.Hidden {
			return nil, ErrSetNotFound
		}
		return nil, err
	}
	return set, nil
}

func (s *SetService) checkCategory(ctx context.Context, id *uint) error {
	if id == nil {
		return nil
	}
	if _, err := repo.GetCategory(ctx, s.DB, *id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCategoryNotFound
		}
		return err
	}
	return nil
}

// normalizePrice rounds to cents and checks the storable range.
func normalizePrice(p decimal.Decimal) (decimal.Decimal, error) {
	p = p.Round(2)
	if p.IsNegative() {
		return decimal.Zero, invalidField("price", "must be >= 0")
	}
	if p.GreaterThan(maxPrice) {
		return decimal.Zero, invalidField("price", "is too large")
	}
	return p, nil
}
