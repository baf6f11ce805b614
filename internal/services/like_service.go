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

// LikeStatus is returned by Like and Unlike.
type LikeStatus struct {
	SetID uint  `json:"setId"`
	Liked bool  `json:"liked"`
	Likes int64 `json:"likes"`
	// Changed is false when the call found the like already in the wanted state.
	Changed bool `json:"changed"`
}

// LikeService records which sets users like. Like and Unlike are
// idempotent.
type LikeService struct {
	DB       *gorm.DB
	Cache    *cache.Cache
	CacheTTL time.Duration
	Listings *Listings
}

// NewLikeService constructs a LikeService.
func NewLikeService(db *gorm.DB, c *cache.Cache, listings *Listings) *LikeService {
	return &LikeService{DB: db, Cache: c, CacheTTL: c.DefaultTTL(), Listings: listings}
}

// Like marks setID as liked by userID. Hidden sets cannot be liked.
func (s *LikeService) Like(ctx context.Context, userID, setID uint) (*LikeStatus, error) {
	ctx, span := otel.Tracer("services/LikeService").Start(ctx, "Like",
		trace.WithAttributes(attribute.Int64("set.id", int64(setID))),
	)
	defer span.End()

	if userID == 0 {
		return nil, ErrUnauthenticated
	}
	if _, err := loadVisibleSet(ctx, s.DB, setID); err != nil {
		return nil, err
	}

	changed := true
	if _, err := repo.CreateLike(ctx, s.DB, userID, setID); err != nil {
		if !errors.Is(err, repo.ErrDuplicate) {
			return nil, err
		}
		changed = false
	}
	if changed {
		invalidate(s.Cache, resLike)
	}
	return s.status(ctx, setID, true, changed)
}

// Unlike removes the like of userID on setID, if any.
func (s *LikeService) Unlike(ctx context.Context, userID, setID uint) (*LikeStatus, error) {
	ctx, span := otel.Tracer("services/LikeService").Start(ctx, "Unlike",
		trace.WithAttributes(attribute.Int64("set.id", int64(setID))),
	)
	defer span.End()

	if userID == 0 {
		return nil, ErrUnauthenticated
	}
	if _, err := repo.GetSet(ctx, s.DB, setID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSetNotFound
		}
		return nil, err
	}

	changed := true
	if err := repo.DeleteLike(ctx, s.DB, userID, setID); err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		changed = false
	}
	if changed {
		invalidate(s.Cache, resLike)
	}
	return s.status(ctx, setID, false, changed)
}

// ListMine returns one page of the likes of userID with their sets.
func (s *LikeService) ListMine(ctx context.Context, userID uint, p query.Params) (*query.Page[domain.Like], error) {
	if userID == 0 {
		return nil, ErrUnauthenticated
	}
	key, err := listKey(resLike, "mine", s.Listings.Likes, p, strconv.FormatUint(uint64(userID), 10))
	if err != nil {
		return nil, err
	}
	return cache.GetOrLoad(ctx, s.Cache, key, s.CacheTTL, func(ctx context.Context) (*query.Page[domain.Like], error) {
		return repo.ListLikes(ctx, s.DB, s.Listings.Likes, p, query.Eq("user_id", userID))
	})
}

func (s *LikeService) status(ctx context.Context, setID uint, liked, changed bool) (*LikeStatus, error) {
	n, err := repo.CountLikes(ctx, s.DB, setID)
	if err != nil {
		return nil, err
	}
	return &LikeStatus{SetID: setID, Liked: liked, Likes: n, Changed: changed}, nil
}
