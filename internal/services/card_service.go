package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/flashcard-market/internal/cache"
	"github.com/tbourn/flashcard-market/internal/domain"
	"github.com/tbourn/flashcard-market/internal/repo"
)

// CardInput carries the text of a card. Position 0 appends the card.
type CardInput struct {
	Front    string `json:"front"`
	Back     string `json:"back"`
	Position int    `json:"position"`
}

// CardPatch carries the card fields to change; nil means keep.
type CardPatch struct {
	Front    *string `json:"front"`
	Back     *string `json:"back"`
	Position *int    `json:"position"`
}

// CardService edits the cards of a set. Only the owner of the parent set or
// an admin may add, change or remove cards.
type CardService struct {
	DB    *gorm.DB
	Cache *cache.Cache

	// MaxSideRunes caps the length of each side of a card.
	MaxSideRunes int
}

// NewCardService constructs a CardService.
func NewCardService(db *gorm.DB, c *cache.Cache) *CardService {
	return &CardService{DB: db, Cache: c, MaxSideRunes: 4000}
}

// Add appends a card to setID.
func (s *CardService) Add(ctx context.Context, userID, setID uint, in CardInput) (*domain.Card, error) {
	set, err := repo.GetSet(ctx, s.DB, setID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSetNotFound
		}
		return nil, err
	}
	if err := s.authorize(ctx, userID, set); err != nil {
		return nil, err
	}

	front := strings.TrimSpace(in.Front)
	back := strings.TrimSpace(in.Back)
	if front == "" {
		return nil, invalidField("front", "is required")
	}
	if back == "" {
		return nil, invalidField("back", "is required")
	}
	if in.Position < 0 {
		return nil, invalidField("position", "must be >= 0")
	}

	c := &domain.Card{
		SetID:    set.ID,
		Front:    clip(front, s.MaxSideRunes),
		Back:     clip(back, s.MaxSideRunes),
		Position: in.Position,
	}
	if err := repo.CreateCard(ctx, s.DB, c); err != nil {
		return nil, err
	}
	invalidate(s.Cache, resSet)
	return c, nil
}

// Update changes a card.
func (s *CardService) Update(ctx context.Context, userID, cardID uint, patch CardPatch) (*domain.Card, error) {
	card, err := s.loadOwned(ctx, userID, cardID)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if patch.Front != nil {
		v := strings.TrimSpace(*patch.Front)
		if v == "" {
			return nil, invalidField("front", "is required")
		}
		fields["front"] = clip(v, s.MaxSideRunes)
	}
	if patch.Back != nil {
		v := strings.TrimSpace(*patch.Back)
		if v == "" {
			return nil, invalidField("back", "is required")
		}
		fields["back"] = clip(v, s.MaxSideRunes)
	}
	if patch.Position != nil {
		if *patch.Position < 0 {
			return nil, invalidField("position", "must be >= 0")
		}
		fields["position"] = *patch.Position
	}
	if len(fields) == 0 {
		return card, nil
	}

	if err := repo.UpdateCard(ctx, s.DB, card.ID, fields); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCardNotFound
		}
		return nil, err
	}
	invalidate(s.Cache, resSet)
	return repo.GetCard(ctx, s.DB, card.ID)
}

// Delete removes a card.
func (s *CardService) Delete(ctx context.Context, userID, cardID uint) error {
	card, err := s.loadOwned(ctx, userID, cardID)
	if err != nil {
		return err
	}
	if err := repo.DeleteCard(ctx, s.DB, card.ID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCardNotFound
		}
		return err
	}
	invalidate(s.Cache, resSet)
	return nil
}

func (s *CardService) loadOwned(ctx context.Context, userID, cardID uint) (*domain.Card, error) {
	card, err := repo.GetCard(ctx, s.DB, cardID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCardNotFound
		}
		return nil, err
	}
	set, err := repo.GetSet(ctx, s.DB, card.SetID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCardNotFound
		}
		return nil, err
	}
	if err := s.authorize(ctx, userID, set); err != nil {
		return nil, err
	}
	return card, nil
}

// authorize hides the existence of hidden sets from non-owners.
func (s *CardService) authorize(ctx context.Context, userID uint, set *domain.Set) error {
	err := authorizeOwner(ctx, s.DB, userID, set.EducatorID)
	if errors.Is(err, ErrForbidden) && set.Hidden {
		return ErrSetNotFound
	}
	return err
}
