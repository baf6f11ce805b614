package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/flashcard-market/internal/domain"
	"github.com/tbourn/flashcard-market/internal/http/middleware"
	"github.com/tbourn/flashcard-market/internal/query"
	"github.com/tbourn/flashcard-market/internal/services"
	"github.com/tbourn/flashcard-market/internal/utils"
)

//
// Service contracts (context-aware)
//

// SetService covers set metadata, authoring and content reads.
type SetService interface {
	List(ctx context.Context, p query.Params) (*query.Page[domain.Set], error)
	ListByEducator(ctx context.Context, educatorID, callerID uint, p query.Params) (*query.Page[domain.Set], error)
	Get(ctx context.Context, id, callerID uint) (*domain.Set, error)
	CheckAccess(ctx context.Context, setID int64, userID *int64) (*domain.AccessVerdict, error)
	Content(ctx context.Context, setID int64, userID *int64) (*services.SetContent, error)
	Create(ctx context.Context, userID uint, in services.SetInput) (*domain.Set, error)
	Update(ctx context.Context, userID, id uint, patch services.SetPatch) (*domain.Set, error)
	Delete(ctx context.Context, userID, id uint) error
	SetTags(ctx context.Context, userID, id uint, tagIDs []uint) (*domain.Set, error)
}

// CardService edits the cards of a set.
type CardService interface {
	Add(ctx context.Context, userID, setID uint, in services.CardInput) (*domain.Card, error)
	Update(ctx context.Context, userID, cardID uint, patch services.CardPatch) (*domain.Card, error)
	Delete(ctx context.Context, userID, cardID uint) error
}

// CategoryService curates categories.
type CategoryService interface {
	List(ctx context.Context, p query.Params) (*query.Page[domain.Category], error)
	Get(ctx context.Context, id uint) (*domain.Category, error)
	Create(ctx context.Context, userID uint, name string) (*domain.Category, error)
	Rename(ctx context.Context, userID, id uint, name string) (*domain.Category, error)
	Delete(ctx context.Context, userID, id uint) error
}

// TagService lists and creates tags.
type TagService interface {
	List(ctx context.Context, p query.Params) (*query.Page[domain.Tag], error)
	Create(ctx context.Context, userID uint, name string) (*domain.Tag, error)
}

// LikeService records likes.
type LikeService interface {
	Like(ctx context.Context, userID, setID uint) (*services.LikeStatus, error)
	Unlike(ctx context.Context, userID, setID uint) (*services.LikeStatus, error)
	ListMine(ctx context.Context, userID uint, p query.Params) (*query.Page[domain.Like], error)
}

// PurchaseService buys premium sets.
type PurchaseService interface {
	Purchase(ctx context.Context, userID, setID uint, idemKey string) (*domain.Purchase, bool, error)
	ListMine(ctx context.Context, userID uint, p query.Params) (*query.Page[domain.Purchase], error)
}

// SubscriptionService manages educator subscriptions.
type SubscriptionService interface {
	Subscribe(ctx context.Context, userID, educatorID uint) (*domain.Subscription, error)
	Unsubscribe(ctx context.Context, userID, educatorID uint) error
	ListMine(ctx context.Context, userID uint, p query.Params) (*query.Page[domain.Subscription], error)
}

// HistoryService lists recently viewed sets.
type HistoryService interface {
	ListMine(ctx context.Context, userID uint, p query.Params) (*query.Page[domain.ViewHistory], error)
}

// UserService manages accounts.
type UserService interface {
	Register(ctx context.Context, in services.RegisterInput) (*services.AuthResult, error)
	Login(ctx context.Context, email, password string) (*services.AuthResult, error)
	Me(ctx context.Context, userID uint) (*domain.User, error)
	SetRole(ctx context.Context, callerID, targetID, roleID uint) (*domain.User, error)
}

//
// Handler wiring
//

// Services bundles the dependencies of Handlers.
type Services struct {
	Sets          SetService
	Cards         CardService
	Categories    CategoryService
	Tags          TagService
	Likes         LikeService
	Purchases     PurchaseService
	Subscriptions SubscriptionService
	History       HistoryService
	Users         UserService
}

// Handlers groups every HTTP endpoint. It depends only on the service
// interfaces above.
type Handlers struct {
	sets  SetService
	cards CardService
	cats  CategoryService
	tags  TagService
	likes LikeService
	purch PurchaseService
	subs  SubscriptionService
	hist  HistoryService
	users UserService
}

// New binds handlers to their services.
func New(s Services) *Handlers {
	return &Handlers{
		sets:  s.Sets,
		cards: s.Cards,
		cats:  s.Categories,
		tags:  s.Tags,
		likes: s.Likes,
		purch: s.Purchases,
		subs:  s.Subscriptions,
		hist:  s.History,
		users: s.Users,
	}
}

//
// Helpers
//

// callerID returns the authenticated user or 0 for anonymous requests.
func callerID(c *gin.Context) uint {
	uid, _ := middleware.UserID(c)
	return uid
}

// callerPtr is the access engine's view of the caller: nil when anonymous.
func callerPtr(c *gin.Context) *int64 {
	uid, ok := middleware.UserID(c)
	if !ok {
		return nil
	}
	v := int64(uid)
	return &v
}

// pathID parses a positive :name path parameter, answering 400 otherwise.
func pathID(c *gin.Context, name string) (uint, bool) {
	id, valid := utils.ParseID(c.Param(name))
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeInvalidID, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

// listParams exposes the query string to the paginator. Unknown parameters
// are ignored by the compiler.
func listParams(c *gin.Context) query.Params {
	return query.ParamsFromValues(c.Request.URL.Query())
}

// bindJSON decodes the body, answering 400 on malformed input.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return false
	}
	return true
}
