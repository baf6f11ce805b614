package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/flashcard-market/internal/services"
)

// AddCard godoc
// @ID          addCard
// @Summary     Add a card to a set
// @Description Position 0 appends after the last card.
// @Tags        Cards
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path      int                 true  "Set ID"  minimum(1)
// @Param       body  body      services.CardInput  true  "Card"
// @Success     201   {object}  domain.Card
// @Failure     400   {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     403   {object}  handlers.ErrorResponse  "Not the owner"
// @Failure     404   {object}  handlers.ErrorResponse  "Set not found"
// @Router      /sets/{id}/cards [post]
func (h *Handlers) AddCard(c *gin.Context) {
	setID, valid := pathID(c, "id")
	if !valid {
		return
	}
	var in services.CardInput
	if !bindJSON(c, &in) {
		return
	}
	card, err := h.cards.Add(c.Request.Context(), callerID(c), setID, in)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, card)
}

// UpdateCard godoc
// @ID          updateCard
// @Summary     Edit a card
// @Tags        Cards
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path      int                 true  "Card ID"  minimum(1)
// @Param       body  body      services.CardPatch  true  "Changes"
// @Success     200   {object}  domain.Card
// @Failure     400   {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     403   {object}  handlers.ErrorResponse  "Not the owner"
// @Failure     404   {object}  handlers.ErrorResponse  "Card not found"
// @Router      /cards/{id} [put]
func (h *Handlers) UpdateCard(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var patch services.CardPatch
	if !bindJSON(c, &patch) {
		return
	}
	card, err := h.cards.Update(c.Request.Context(), callerID(c), id, patch)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, card)
}

// DeleteCard godoc
// @ID          deleteCard
// @Summary     Remove a card
// @Tags        Cards
// @Security    BearerAuth
// @Param       id   path  int  true  "Card ID"  minimum(1)
// @Success     204  {string}  string  "No Content"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the owner"
// @Failure     404  {object}  handlers.ErrorResponse  "Card not found"
// @Router      /cards/{id} [delete]
func (h *Handlers) DeleteCard(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	if err := h.cards.Delete(c.Request.Context(), callerID(c), id); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
