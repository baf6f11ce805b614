// Set HTTP handlers.
//
//   - GET    /sets                 (list, paginated, cached)
//   - GET    /sets/{id}            (metadata)
//   - GET    /sets/{id}/access     (access verdict)
//   - GET    /sets/{id}/content    (cards, or a locked payload)
//   - POST   /sets, PUT/DELETE /sets/{id}, PUT /sets/{id}/tags (owner or admin)
//   - GET    /educators/{id}/sets
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/flashcard-market/internal/http/middleware"
	"github.com/tbourn/flashcard-market/internal/services"
)

// SetTagsRequest replaces the tags of a set. An empty list clears them.
type SetTagsRequest struct {
	TagIDs []uint `json:"tagIds" example:"1,2"`
}

// ListSets godoc
// @ID          listSets
// @Summary     List public sets
// @Description Visible sets only. Filters: educatorId, categoryId, featured, isSubscriberOnly, title (substring), tag (comma list of tag names).
// @Tags        Sets
// @Produce     json
// @Param       page              query  int     false  "Page number"     minimum(1) default(1)
// @Param       limit             query  int     false  "Items per page"  minimum(1)
// @Param       sortBy            query  string  false  "Sort field"      example(createdAt)
// @Param       order             query  string  false  "ASC or DESC"     default(DESC)
// @Param       educatorId        query  int     false  "Educator filter"
// @Param       categoryId        query  int     false  "Category filter"
// @Param       featured          query  bool    false  "Featured filter"
// @Param       isSubscriberOnly  query  bool    false  "Subscriber-only filter"
// @Param       title             query  string  false  "Title contains"
// @Param       tag               query  string  false  "Tag names, comma separated"  example(go,sql)
// @Success     200  {object}  query.Page[domain.Set]
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid sort field"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sets [get]
func (h *Handlers) ListSets(c *gin.Context) {
	page, err := h.sets.List(c.Request.Context(), listParams(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, page)
}

// ListEducatorSets godoc
// @ID          listEducatorSets
// @Summary     List an educator's sets
// @Description Includes hidden sets when the caller is the educator or an admin.
// @Tags        Sets
// @Produce     json
// @Param       id     path   int     true   "Educator (user) ID"  minimum(1)
// @Param       page   query  int     false  "Page number"
// @Param       limit  query  int     false  "Items per page"
// @Success     200  {object}  query.Page[domain.Set]
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Router      /educators/{id}/sets [get]
func (h *Handlers) ListEducatorSets(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	page, err := h.sets.ListByEducator(c.Request.Context(), id, callerID(c), listParams(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, page)
}

// GetSet godoc
// @ID          getSet
// @Summary     Set metadata
// @Description Title, price and flags stay public even when the content is locked. Hidden sets are 404 except to their owner or an admin.
// @Tags        Sets
// @Produce     json
// @Param       id   path  int  true  "Set ID"  minimum(1)
// @Success     200  {object}  domain.Set
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid id"
// @Failure     404  {object}  handlers.ErrorResponse  "Set not found"
// @Router      /sets/{id} [get]
func (h *Handlers) GetSet(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	s, err := h.sets.Get(c.Request.Context(), id, callerID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, s)
}

// GetSetAccess godoc
// @ID          getSetAccess
// @Summary     Access verdict for the caller
// @Tags        Sets
// @Produce     json
// @Param       id   path  int  true  "Set ID"  minimum(1)
// @Success     200  {object}  domain.AccessVerdict
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid id"
// @Failure     404  {object}  handlers.ErrorResponse  "Set or user not found"
// @Router      /sets/{id}/access [get]
func (h *Handlers) GetSetAccess(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	v, err := h.sets.CheckAccess(c.Request.Context(), int64(id), callerPtr(c))
	if err != nil {
		failErr(c, err)
		return
	}
	middleware.ObserveVerdict(v)
	ok(c, http.StatusOK, v)
}

// GetSetContent godoc
// @ID          getSetContent
// @Summary     Set content
// @Description Returns the cards when the caller has access. A denial is not an error: the response is 200 with locked=true and the verdict explaining the price or subscription required.
// @Tags        Sets
// @Produce     json
// @Param       id   path  int  true  "Set ID"  minimum(1)
// @Success     200  {object}  services.SetContent
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid id"
// @Failure     404  {object}  handlers.ErrorResponse  "Set not found"
// @Router      /sets/{id}/content [get]
func (h *Handlers) GetSetContent(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	res, err := h.sets.Content(c.Request.Context(), int64(id), callerPtr(c))
	if err != nil {
		failErr(c, err)
		return
	}
	middleware.ObserveVerdict(res.Access)
	ok(c, http.StatusOK, res)
}

// CreateSet godoc
// @ID          createSet
// @Summary     Publish a set
// @Tags        Sets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      services.SetInput  true  "Set"
// @Success     201   {object}  domain.Set
// @Failure     400   {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     401   {object}  handlers.ErrorResponse  "Authentication required"
// @Router      /sets [post]
func (h *Handlers) CreateSet(c *gin.Context) {
	var in services.SetInput
	if !bindJSON(c, &in) {
		return
	}
	s, err := h.sets.Create(c.Request.Context(), callerID(c), in)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, s)
}

// UpdateSet godoc
// @ID          updateSet
// @Summary     Edit a set
// @Description Omitted fields are kept. Set clearCategory to remove the category.
// @Tags        Sets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path      int                true  "Set ID"  minimum(1)
// @Param       body  body      services.SetPatch  true  "Changes"
// @Success     200   {object}  domain.Set
// @Failure     400   {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     401   {object}  handlers.ErrorResponse  "Authentication required"
// @Failure     403   {object}  handlers.ErrorResponse  "Not the owner"
// @Failure     404   {object}  handlers.ErrorResponse  "Set not found"
// @Router      /sets/{id} [put]
func (h *Handlers) UpdateSet(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var patch services.SetPatch
	if !bindJSON(c, &patch) {
		return
	}
	s, err := h.sets.Update(c.Request.Context(), callerID(c), id, patch)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, s)
}

// DeleteSet godoc
// @ID          deleteSet
// @Summary     Delete a set
// @Tags        Sets
// @Security    BearerAuth
// @Param       id   path  int  true  "Set ID"  minimum(1)
// @Success     204  {string}  string  "No Content"
// @Failure     401  {object}  handlers.ErrorResponse  "Authentication required"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the owner"
// @Failure     404  {object}  handlers.ErrorResponse  "Set not found"
// @Router      /sets/{id} [delete]
func (h *Handlers) DeleteSet(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	if err := h.sets.Delete(c.Request.Context(), callerID(c), id); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// SetSetTags godoc
// @ID          setSetTags
// @Summary     Replace the tags of a set
// @Tags        Sets
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path      int                      true  "Set ID"  minimum(1)
// @Param       body  body      handlers.SetTagsRequest  true  "Tag IDs"
// @Success     200   {object}  domain.Set
// @Failure     403   {object}  handlers.ErrorResponse  "Not the owner"
// @Failure     404   {object}  handlers.ErrorResponse  "Set or tag not found"
// @Router      /sets/{id}/tags [put]
func (h *Handlers) SetSetTags(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req SetTagsRequest
	if !bindJSON(c, &req) {
		return
	}
	s, err := h.sets.SetTags(c.Request.Context(), callerID(c), id, req.TagIDs)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, s)
}
