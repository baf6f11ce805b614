// Engagement HTTP handlers: likes, purchases, subscriptions and the
// caller's own lists under /me.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/flashcard-market/internal/domain"
	"github.com/tbourn/flashcard-market/internal/http/middleware"
	"github.com/tbourn/flashcard-market/internal/query"
)

// HeaderIdempotentReplay is set on a purchase response that replays an
// earlier request with the same Idempotency-Key.
const HeaderIdempotentReplay = "Idempotent-Replayed"

// EducatorView is the public face of an educator. Email is never exposed to
// subscribers.
type EducatorView struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
}

// SubscriptionView is one entry of GET /me/subscriptions.
type SubscriptionView struct {
	ID         uint          `json:"id"`
	EducatorID uint          `json:"educatorId"`
	Date       time.Time     `json:"date"`
	Educator   *EducatorView `json:"educator,omitempty"`
}

func toSubscriptionView(s domain.Subscription) SubscriptionView {
	v := SubscriptionView{ID: s.ID, EducatorID: s.EducatorID, Date: s.Date}
	if s.Educator != nil {
		v.Educator = &EducatorView{ID: s.Educator.ID, Username: s.Educator.Username}
	}
	return v
}

// LikeSet godoc
// @ID          likeSet
// @Summary     Like a set
// @Description Idempotent: liking twice keeps one like and reports changed=false.
// @Tags        Engagement
// @Produce     json
// @Security    BearerAuth
// @Param       id   path  int  true  "Set ID"  minimum(1)
// @Success     200  {object}  services.LikeStatus
// @Failure     401  {object}  handlers.ErrorResponse  "Authentication required"
// @Failure     404  {object}  handlers.ErrorResponse  "Set not found"
// @Router      /sets/{id}/like [post]
func (h *Handlers) LikeSet(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	st, err := h.likes.Like(c.Request.Context(), callerID(c), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, st)
}

// UnlikeSet godoc
// @ID          unlikeSet
// @Summary     Remove a like
// @Tags        Engagement
// @Produce     json
// @Security    BearerAuth
// @Param       id   path  int  true  "Set ID"  minimum(1)
// @Success     200  {object}  services.LikeStatus
// @Failure     401  {object}  handlers.ErrorResponse  "Authentication required"
// @Failure     404  {object}  handlers.ErrorResponse  "Set not found"
// @Router      /sets/{id}/like [delete]
func (h *Handlers) UnlikeSet(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	st, err := h.likes.Unlike(c.Request.Context(), callerID(c), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, st)
}

// PurchaseSet godoc
// @ID          purchaseSet
// @Summary     Buy a premium set
// @Description The amount is the set's current price. Send Idempotency-Key to make retries safe: a repeated key for the same set answers 200 with the original purchase and Idempotent-Replayed: true.
// @Tags        Engagement
// @Produce     json
// @Security    BearerAuth
// @Param       id               path    int     true   "Set ID"  minimum(1)
// @Param       Idempotency-Key  header  string  false  "Retry key"  example(order-7f3a)
// @Success     201  {object}  domain.Purchase
// @Success     200  {object}  domain.Purchase  "Replayed"
// @Header      200  {string}  Idempotent-Replayed  "true"
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid Idempotency-Key"
// @Failure     401  {object}  handlers.ErrorResponse  "Authentication required"
// @Failure     404  {object}  handlers.ErrorResponse  "Set not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Already purchased, own set or not for sale"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Router      /sets/{id}/purchase [post]
func (h *Handlers) PurchaseSet(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	key, _ := middleware.GetIdempotencyKey(c)
	p, replay, err := h.purch.Purchase(c.Request.Context(), callerID(c), id, key)
	if err != nil {
		failErr(c, err)
		return
	}
	if replay {
		c.Header(HeaderIdempotentReplay, "true")
		ok(c, http.StatusOK, p)
		return
	}
	ok(c, http.StatusCreated, p)
}

// Subscribe godoc
// @ID          subscribe
// @Summary     Subscribe to an educator
// @Description Unlocks every subscriber-only set of the educator.
// @Tags        Engagement
// @Produce     json
// @Security    BearerAuth
// @Param       id   path  int  true  "Educator (user) ID"  minimum(1)
// @Success     201  {object}  handlers.SubscriptionView
// @Failure     400  {object}  handlers.ErrorResponse  "Self subscription"
// @Failure     404  {object}  handlers.ErrorResponse  "Educator not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Already subscribed"
// @Router      /educators/{id}/subscription [post]
func (h *Handlers) Subscribe(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	s, err := h.subs.Subscribe(c.Request.Context(), callerID(c), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, toSubscriptionView(*s))
}

// Unsubscribe godoc
// @ID          unsubscribe
// @Summary     End a subscription
// @Tags        Engagement
// @Security    BearerAuth
// @Param       id   path  int  true  "Educator (user) ID"  minimum(1)
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Not subscribed"
// @Router      /educators/{id}/subscription [delete]
func (h *Handlers) Unsubscribe(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	if err := h.subs.Unsubscribe(c.Request.Context(), callerID(c), id); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// ListMyPurchases godoc
// @ID          listMyPurchases
// @Summary     My purchases
// @Tags        Me
// @Produce     json
// @Security    BearerAuth
// @Param       page   query  int  false  "Page number"
// @Param       limit  query  int  false  "Items per page"
// @Success     200  {object}  query.Page[domain.Purchase]
// @Failure     401  {object}  handlers.ErrorResponse  "Authentication required"
// @Router      /me/purchases [get]
func (h *Handlers) ListMyPurchases(c *gin.Context) {
	page, err := h.purch.ListMine(c.Request.Context(), callerID(c), listParams(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, page)
}

// ListMySubscriptions godoc
// @ID          listMySubscriptions
// @Summary     My subscriptions
// @Tags        Me
// @Produce     json
// @Security    BearerAuth
// @Param       page   query  int  false  "Page number"
// @Param       limit  query  int  false  "Items per page"
// @Success     200  {object}  query.Page[handlers.SubscriptionView]
// @Failure     401  {object}  handlers.ErrorResponse  "Authentication required"
// @Router      /me/subscriptions [get]
func (h *Handlers) ListMySubscriptions(c *gin.Context) {
	page, err := h.subs.ListMine(c.Request.Context(), callerID(c), listParams(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, query.Map(page, toSubscriptionView))
}

// ListMyLikes godoc
// @ID          listMyLikes
// @Summary     Sets I liked
// @Tags        Me
// @Produce     json
// @Security    BearerAuth
// @Param       page   query  int  false  "Page number"
// @Param       limit  query  int  false  "Items per page"
// @Success     200  {object}  query.Page[domain.Like]
// @Failure     401  {object}  handlers.ErrorResponse  "Authentication required"
// @Router      /me/likes [get]
func (h *Handlers) ListMyLikes(c *gin.Context) {
	page, err := h.likes.ListMine(c.Request.Context(), callerID(c), listParams(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, page)
}

// ListMyHistory godoc
// @ID          listMyHistory
// @Summary     Recently viewed sets
// @Tags        Me
// @Produce     json
// @Security    BearerAuth
// @Param       page   query  int  false  "Page number"
// @Param       limit  query  int  false  "Items per page"
// @Success     200  {object}  query.Page[domain.ViewHistory]
// @Failure     401  {object}  handlers.ErrorResponse  "Authentication required"
// @Router      /me/history [get]
func (h *Handlers) ListMyHistory(c *gin.Context) {
	page, err := h.hist.ListMine(c.Request.Context(), callerID(c), listParams(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, page)
}
