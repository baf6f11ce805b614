package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// NameRequest names a category or tag.
type NameRequest struct {
	Name string `json:"name" example:"Computer Science"`
}

// ListCategories godoc
// @ID          listCategories
// @Summary     List categories
// @Tags        Catalog
// @Produce     json
// @Param       page   query  int     false  "Page number"
// @Param       limit  query  int     false  "Items per page"
// @Param       name   query  string  false  "Name contains"
// @Success     200  {object}  query.Page[domain.Category]
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid sort field"
// @Router      /categories [get]
func (h *Handlers) ListCategories(c *gin.Context) {
	page, err := h.cats.List(c.Request.Context(), listParams(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, page)
}

// GetCategory godoc
// @ID          getCategory
// @Summary     Get a category
// @Tags        Catalog
// @Produce     json
// @Param       id   path  int  true  "Category ID"  minimum(1)
// @Success     200  {object}  domain.Category
// @Failure     404  {object}  handlers.ErrorResponse  "Category not found"
// @Router      /categories/{id} [get]
func (h *Handlers) GetCategory(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	cat, err := h.cats.Get(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, cat)
}

// CreateCategory godoc
// @ID          createCategory
// @Summary     Create a category (admin)
// @Tags        Catalog
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.NameRequest  true  "Category"
// @Success     201   {object}  domain.Category
// @Failure     403   {object}  handlers.ErrorResponse  "Admin only"
// @Failure     409   {object}  handlers.ErrorResponse  "Name taken"
// @Router      /categories [post]
func (h *Handlers) CreateCategory(c *gin.Context) {
	var req NameRequest
	if !bindJSON(c, &req) {
		return
	}
	cat, err := h.cats.Create(c.Request.Context(), callerID(c), req.Name)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, cat)
}

// RenameCategory godoc
// @ID          renameCategory
// @Summary     Rename a category (admin)
// @Tags        Catalog
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path      int                   true  "Category ID"  minimum(1)
// @Param       body  body      handlers.NameRequest  true  "New name"
// @Success     200   {object}  domain.Category
// @Failure     403   {object}  handlers.ErrorResponse  "Admin only"
// @Failure     404   {object}  handlers.ErrorResponse  "Category not found"
// @Failure     409   {object}  handlers.ErrorResponse  "Name taken"
// @Router      /categories/{id} [put]
func (h *Handlers) RenameCategory(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req NameRequest
	if !bindJSON(c, &req) {
		return
	}
	cat, err := h.cats.Rename(c.Request.Context(), callerID(c), id, req.Name)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, cat)
}

// DeleteCategory godoc
// @ID          deleteCategory
// @Summary     Delete a category (admin)
// @Description Sets in the category become uncategorized.
// @Tags        Catalog
// @Security    BearerAuth
// @Param       id   path  int  true  "Category ID"  minimum(1)
// @Success     204  {string}  string  "No Content"
// @Failure     403  {object}  handlers.ErrorResponse  "Admin only"
// @Failure     404  {object}  handlers.ErrorResponse  "Category not found"
// @Router      /categories/{id} [delete]
func (h *Handlers) DeleteCategory(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	if err := h.cats.Delete(c.Request.Context(), callerID(c), id); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// ListTags godoc
// @ID          listTags
// @Summary     List tags
// @Tags        Catalog
// @Produce     json
// @Param       page   query  int     false  "Page number"
// @Param       limit  query  int     false  "Items per page"
// @Param       name   query  string  false  "Name contains"
// @Success     200  {object}  query.Page[domain.Tag]
// @Router      /tags [get]
func (h *Handlers) ListTags(c *gin.Context) {
	page, err := h.tags.List(c.Request.Context(), listParams(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, page)
}

// CreateTag godoc
// @ID          createTag
// @Summary     Create a tag
// @Description Names are case-folded; "GoLang" is stored as "golang".
// @Tags        Catalog
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.NameRequest  true  "Tag"
// @Success     201   {object}  domain.Tag
// @Failure     401   {object}  handlers.ErrorResponse  "Authentication required"
// @Failure     409   {object}  handlers.ErrorResponse  "Name taken"
// @Router      /tags [post]
func (h *Handlers) CreateTag(c *gin.Context) {
	var req NameRequest
	if !bindJSON(c, &req) {
		return
	}
	tg, err := h.tags.Create(c.Request.Context(), callerID(c), req.Name)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, tg)
}
