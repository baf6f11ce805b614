package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/flashcard-market/internal/cache"
	"github.com/tbourn/flashcard-market/internal/domain"
	"github.com/tbourn/flashcard-market/internal/repo"
)

// repoStore adapts the repo free functions to AccessStore.
type repoStore struct{}

func (repoStore) GetSet(ctx context.Context, db *gorm.DB, id uint) (*domain.Set, error) {
	return repo.GetSet(ctx, db, id)
}
func (repoStore) GetUser(ctx context.Context, db *gorm.DB, id uint) (*domain.User, error) {
	return repo.GetUser(ctx, db, id)
}
func (repoStore) HasPurchase(ctx context.Context, db *gorm.DB, userID, setID uint) (bool, error) {
	return repo.HasPurchase(ctx, db, userID, setID)
}
func (repoStore) HasSubscription(ctx context.Context, db *gorm.DB, userID, educatorID uint) (bool, error) {
	return repo.HasSubscription(ctx, db, userID, educatorID)
}

// market bundles every service over one in-memory database and cache.
type market struct {
	db       *gorm.DB
	cache    *cache.Cache
	listings *Listings

	sets     *SetService
	cards    *CardService
	cats     *CategoryService
	tags     *TagService
	likes    *LikeService
	purch    *PurchaseService
	subs     *SubscriptionService
	history  *HistoryService
	users    *UserService
	tokens   *TokenManager
}

func newMarket(t *testing.T) *market {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	cfg := cache.DefaultConfig()
	cfg.SweepInterval = 0
	c, err := cache.New(cfg)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	t.Cleanup(c.Close)

	tokens, err := NewTokenManager("test-secret", time.Hour, "flashcard-market")
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}

	l := NewListings(Limits{Default: 10, Max: 50})
	access := NewSetAccessService(db, repoStore{})
	users := NewUserService(db, tokens, "root@example.com")
	users.BcryptCost = 4 // bcrypt.MinCost

	return &market{
		db:       db,
		cache:    c,
		listings: l,
		sets:     NewSetService(db, c, access, l),
		cards:    NewCardService(db, c),
		cats:     NewCategoryService(db, c, l),
		tags:     NewTagService(db, c, l),
		likes:    NewLikeService(db, c, l),
		purch:    NewPurchaseService(db, c, l),
		subs:     NewSubscriptionService(db, c, l),
		history:  NewHistoryService(db, l),
		users:    users,
		tokens:   tokens,
	}
}

func (m *market) user(t *testing.T, name string, role uint) *domain.User {
	t.Helper()
	u := &domain.User{Username: name, Email: name + "@example.com", PasswordHash: "x", RoleID: role}
	if err := repo.CreateUser(context.Background(), m.db, u); err != nil {
		t.Fatalf("CreateUser(%s): %v", name, err)
	}
	return u
}

func (m *market) set(t *testing.T, owner uint, title, price string, subOnly bool) *domain.Set {
	t.Helper()
	s, err := m.sets.Create(context.Background(), owner, SetInput{
		Title:            title,
		Price:            decimal.RequireFromString(price),
		IsSubscriberOnly: subOnly,
	})
	if err != nil {
		t.Fatalf("Create(%s): %v", title, err)
	}
	return s
}

func ptr[T any](v T) *T { return &v }
