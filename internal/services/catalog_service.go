// Package services – CategoryService and TagService
//
// Categories are curated by admins; tags may be created by any signed-in
// user. Both are read through the cache. Category names are title-cased in
// TitleLocale and tag names are case-folded, so "GoLang" and "golang" are the
// same tag.
package services

import (
	"context"
	"errors"
	"strconv"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/flashcard-market/internal/cache"
	"github.com/tbourn/flashcard-market/internal/domain"
	"github.com/tbourn/flashcard-market/internal/query"
	"github.com/tbourn/flashcard-market/internal/repo"
)

// CategoryService manages categories.
type CategoryService struct {
	DB       *gorm.DB
	Cache    *cache.Cache
	CacheTTL time.Duration
	Listings *Listings

	NameMaxLen  int
	TitleLocale language.Tag
}

// NewCategoryService constructs a CategoryService.
func NewCategoryService(db *gorm.DB, c *cache.Cache, listings *Listings) *CategoryService {
	return &CategoryService{
		DB:          db,
		Cache:       c,
		CacheTTL:    c.DefaultTTL(),
		Listings:    listings,
		NameMaxLen:  100,
		TitleLocale: language.English,
	}
}

// List returns one page of categories.
func (s *CategoryService) List(ctx context.Context, p query.Params) (*query.Page[domain.Category], error) {
	key, err := listKey(resCategory, "list", s.Listings.Categories, p)
	if err != nil {
		return nil, err
	}
	return cache.GetOrLoad(ctx, s.Cache, key, s.CacheTTL, func(ctx context.Context) (*query.Page[domain.Category], error) {
		return repo.ListCategories(ctx, s.DB, s.Listings.Categories, p)
	})
}

// Get returns one category.
func (s *CategoryService) Get(ctx context.Context, id uint) (*domain.Category, error) {
	key := cache.Key(resCategory, "get", map[string]string{"id": strconv.FormatUint(uint64(id), 10)})
	c, err := cache.GetOrLoad(ctx, s.Cache, key, s.CacheTTL, func(ctx context.Context) (*domain.Category, error) {
		return repo.GetCategory(ctx, s.DB, id)
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCategoryNotFound
	}
	return c, err
}

// Create adds a category. Admin only.
func (s *CategoryService) Create(ctx context.Context, userID uint, name string) (*domain.Category, error) {
	if err := requireAdmin(ctx, s.DB, userID); err != nil {
		return nil, err
	}
	name = s.normalize(name)
	if name == "" {
		return nil, invalidField("name", "is required")
	}
	c := &domain.Category{Name: name}
	if err := repo.CreateCategory(ctx, s.DB, c); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrDuplicateName
		}
		return nil, err
	}
	invalidate(s.Cache, resCategory)
	return c, nil
}

// Rename changes the name of a category. Admin only.
func (s *CategoryService) Rename(ctx context.Context, userID, id uint, name string) (*domain.Category, error) {
	if err := requireAdmin(ctx, s.DB, userID); err != nil {
		return nil, err
	}
	name = s.normalize(name)
	if name == "" {
		return nil, invalidField("name", "is required")
	}
	if err := repo.RenameCategory(ctx, s.DB, id, name); err != nil {
		switch {
		case errors.Is(err, repo.ErrDuplicate):
			return nil, ErrDuplicateName
		case errors.Is(err, gorm.ErrRecordNotFound):
			return nil, ErrCategoryNotFound
		}
		return nil, err
	}
	// Sets embed their category.
	invalidate(s.Cache, resCategory, resSet)
	return repo.GetCategory(ctx, s.DB, id)
}

// Delete removes a category; its sets become uncategorized. Admin only.
func (s *CategoryService) Delete(ctx context.Context, userID, id uint) error {
	if err := requireAdmin(ctx, s.DB, userID); err != nil {
		return err
	}
	if err := repo.DeleteCategory(ctx, s.DB, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCategoryNotFound
		}
		return err
	}
	invalidate(s.Cache, resCategory, resSet)
	return nil
}

func (s *CategoryService) normalize(name string) string {
	name = clip(normalizeTitle(name), s.NameMaxLen)
	return cases.Title(s.TitleLocale, cases.NoLower).String(name)
}

// TagService manages tags.
type TagService struct {
	DB       *gorm.DB
	Cache    *cache.Cache
	CacheTTL time.Duration
	Listings *Listings

	NameMaxLen int
}

// NewTagService constructs a TagService.
func NewTagService(db *gorm.DB, c *cache.Cache, listings *Listings) *TagService {
	return &TagService{DB: db, Cache: c, CacheTTL: c.DefaultTTL(), Listings: listings, NameMaxLen: 64}
}

// List returns one page of tags.
func (s *TagService) List(ctx context.Context, p query.Params) (*query.Page[domain.Tag], error) {
	key, err := listKey(resTag, "list", s.Listings.Tags, p)
	if err != nil {
		return nil, err
	}
	return cache.GetOrLoad(ctx, s.Cache, key, s.CacheTTL, func(ctx context.Context) (*query.Page[domain.Tag], error) {
		return repo.ListTags(ctx, s.DB, s.Listings.Tags, p)
	})
}

// Create adds a tag. Any authenticated user may create tags.
func (s *TagService) Create(ctx context.Context, userID uint, name string) (*domain.Tag, error) {
	if userID == 0 {
		return nil, ErrUnauthenticated
	}
	name = normalizeTagName(name, s.NameMaxLen)
	if name == "" {
		return nil, invalidField("name", "is required")
	}
	t := &domain.Tag{Name: name}
	if err := repo.CreateTag(ctx, s.DB, t); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrDuplicateName
		}
		return nil, err
	}
	invalidate(s.Cache, resTag)
	return t, nil
}

// normalizeTagName case-folds and collapses whitespace.
func normalizeTagName(name string, max int) string {
	return clip(cases.Fold().String(normalizeTitle(name)), max)
}
