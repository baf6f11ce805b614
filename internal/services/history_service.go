package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/flashcard-market/internal/domain"
	"github.com/tbourn/flashcard-market/internal/query"
	"github.com/tbourn/flashcard-market/internal/repo"
)

// HistoryService keeps the last view time of every set a user opened.
// History changes on every content read, so it is never cached.
type HistoryService struct {
	DB       *gorm.DB
	Listings *Listings
	Now      func() time.Time
}

// NewHistoryService constructs a HistoryService.
func NewHistoryService(db *gorm.DB, listings *Listings) *HistoryService {
	return &HistoryService{DB: db, Listings: listings, Now: time.Now}
}

// Record stores that userID viewed setID now.
func (s *HistoryService) Record(ctx context.Context, userID, setID uint) error {
	if userID == 0 {
		return ErrUnauthenticated
	}
	return repo.RecordView(ctx, s.DB, userID, setID, s.Now())
}

// ListMine returns one page of the view history of userID, most recent first.
func (s *HistoryService) ListMine(ctx context.Context, userID uint, p query.Params) (*query.Page[domain.ViewHistory], error) {
	if userID == 0 {
		return nil, ErrUnauthenticated
	}
	return repo.ListHistory(ctx, s.DB, s.Listings.History, p, query.Eq("user_id", userID))
}
