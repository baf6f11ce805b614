package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/tbourn/flashcard-market/internal/cache"
	"github.com/tbourn/flashcard-market/internal/domain"
	"github.com/tbourn/flashcard-market/internal/query"
	"github.com/tbourn/flashcard-market/internal/repo"
)

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)

// normalizeTitle trims whitespace and collapses multiple spaces to one.
func normalizeTitle(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

// clip truncates s to max runes; max <= 0 disables clipping.
func clip(s string, max int) string {
	if max > 0 && utf8.RuneCountInString(s) > max {
		return string([]rune(s)[:max])
	}
	return s
}

// invalidField wraps ErrInvalidInput with the offending field name.
func invalidField(field, why string) error {
	return fmt.Errorf("%w: %s %s", ErrInvalidInput, field, why)
}

// invalidate evicts every cached entry of the given resources. It runs before
// the write returns so the next read never sees a stale entry.
func invalidate(c *cache.Cache, resources ...string) {
	for _, r := range resources {
		c.DeleteByPrefix(cache.Prefix(r))
	}
}

// listKey builds the cache key of a listing from the parameters that decide
// its query, so equivalent requests share one entry and unknown parameters
// cannot fork it. scope is folded into the op, never into the parameters the
// compiler reads.
func listKey(resource, op string, cfg *query.ListQueryConfig, p query.Params, scope ...string) (string, error) {
	kp, err := cfg.CacheParams(p)
	if err != nil {
		return "", err
	}
	for _, sc := range scope {
		op += "/" + sc
	}
	return cache.Key(resource, op, kp), nil
}

// isAdmin loads userID and reports whether it carries the admin role.
func isAdmin(ctx context.Context, db *gorm.DB, userID uint) (bool, error) {
	if userID == 0 {
		return false, nil
	}
	u, err := repo.GetUser(ctx, db, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return u.IsAdmin(), nil
}

// authorizeOwner allows the owner of a resource or an admin.
func authorizeOwner(ctx context.Context, db *gorm.DB, userID, ownerID uint) error {
	if userID == 0 {
		return ErrUnauthenticated
	}
	if userID == ownerID {
		return nil
	}
	ok, err := isAdmin(ctx, db, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

// requireAdmin allows admins only.
func requireAdmin(ctx context.Context, db *gorm.DB, userID uint) error {
	if userID == 0 {
		return ErrUnauthenticated
	}
	ok, err := isAdmin(ctx, db, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

// loadVisibleSet fetches a set that may be acted upon by users other than
// its owner: hidden sets are reported as missing.
func loadVisibleSet(ctx context.Context, db *gorm.DB, id uint) (*domain.Set, error) {
	s, err := repo.GetSet(ctx, db, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSetNotFound
		}
		return nil, err
	}
	if s.Hidden {
		return nil, ErrSetNotFound
	}
	return s, nil
}
