package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/flashcard-market/internal/services"
)

// RegisterRequest is the JSON payload for creating an account.
type RegisterRequest struct {
	Username string `json:"username" example:"ada"`
	Email    string `json:"email" example:"ada@example.com"`
	// Password is 8 to 72 bytes.
	Password string `json:"password" example:"correct-horse"`
}

// LoginRequest is the JSON payload for exchanging credentials for a token.
type LoginRequest struct {
	Email    string `json:"email" example:"ada@example.com"`
	Password string `json:"password" example:"correct-horse"`
}

// SetRoleRequest changes a user's role (1 member, 2 admin).
type SetRoleRequest struct {
	RoleID uint `json:"roleId" example:"2"`
}

// Register godoc
// @ID          register
// @Summary     Create an account
// @Description Registers a user and returns a bearer token. The configured admin email is granted the admin role.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.RegisterRequest  true  "Account"
// @Success     201   {object}  services.AuthResult
// @Failure     400   {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     409   {object}  handlers.ErrorResponse  "Email or username taken"
// @Router      /auth/register [post]
func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.users.Register(c.Request.Context(), services.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, res)
}

// Login godoc
// @ID          login
// @Summary     Log in
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.LoginRequest  true  "Credentials"
// @Success     200   {object}  services.AuthResult
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401   {object}  handlers.ErrorResponse  "Invalid credentials"
// @Router      /auth/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.users.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// Me godoc
// @ID          getMe
// @Summary     Current user
// @Tags        Users
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  domain.User
// @Failure     401  {object}  handlers.ErrorResponse  "Authentication required"
// @Router      /users/me [get]
func (h *Handlers) Me(c *gin.Context) {
	u, err := h.users.Me(c.Request.Context(), callerID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

// SetRole godoc
// @ID          setUserRole
// @Summary     Change a user's role (admin)
// @Tags        Users
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path      int                      true  "User ID"  minimum(1)
// @Param       body  body      handlers.SetRoleRequest  true  "Role"
// @Success     200   {object}  domain.User
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401   {object}  handlers.ErrorResponse  "Authentication required"
// @Failure     403   {object}  handlers.ErrorResponse  "Admin only"
// @Failure     404   {object}  handlers.ErrorResponse  "User not found"
// @Router      /users/{id}/role [put]
func (h *Handlers) SetRole(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req SetRoleRequest
	if !bindJSON(c, &req) {
		return
	}
	u, err := h.users.SetRole(c.Request.Context(), callerID(c), id, req.RoleID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}
