// Package services – UserService
//
// Accounts are created with a bcrypt password hash and authenticate with a
// signed access token. The account registered with AdminEmail, if set,
// becomes an admin; every other account starts as a member.
package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/tbourn/flashcard-market/internal/domain"
	"github.com/tbourn/flashcard-market/internal/repo"
)

const (
	minPasswordLen = 8
	// bcrypt ignores input past 72 bytes.
	maxPasswordBytes = 72
	maxUsernameLen   = 64
)

// RegisterInput carries a new account.
type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *domain.User `json:"user"`
}

// UserService manages accounts and authentication.
type UserService struct {
	DB         *gorm.DB
	Tokens     *TokenManager
	AdminEmail string
	BcryptCost int
}

// NewUserService constructs a UserService.
func NewUserService(db *gorm.DB, tokens *TokenManager, adminEmail string) *UserService {
	return &UserService{
		DB:         db,
		Tokens:     tokens,
		AdminEmail: strings.ToLower(strings.TrimSpace(adminEmail)),
		BcryptCost: bcrypt.DefaultCost,
	}
}

// Register creates an account and signs the caller in.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	ctx, span := otel.Tracer("services/UserService").Start(ctx, "Register")
	defer span.End()

	username := normalizeTitle(in.Username)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	switch {
	case username == "":
		return nil, invalidField("username", "is required")
	case utf8.RuneCountInString(username) > maxUsernameLen:
		return nil, invalidField("username", "is too long")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, invalidField("email", "is not a valid address")
	}
	if utf8.RuneCountInString(in.Password) < minPasswordLen {
		return nil, invalidField("password", "must be at least 8 characters")
	}
	if len(in.Password) > maxPasswordBytes {
		return nil, invalidField("password", "is too long")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.BcryptCost)
	if err != nil {
		return nil, err
	}
	u := &domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		RoleID:       domain.RoleMember,
	}
	if s.AdminEmail != "" && email == s.AdminEmail {
		u.RoleID = domain.RoleAdmin
	}
	if err := repo.CreateUser(ctx, s.DB, u); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return s.issue(u)
}

// Login checks the credentials and returns a fresh token.
func (s *UserService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	ctx, span := otel.Tracer("services/UserService").Start(ctx, "Login")
	defer span.End()

	u, err := repo.GetUserByEmail(ctx, s.DB, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.issue(u)
}

// Me returns the account of userID.
func (s *UserService) Me(ctx context.Context, userID uint) (*domain.User, error) {
	if userID == 0 {
		return nil, ErrUnauthenticated
	}
	u, err := repo.GetUser(ctx, s.DB, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// SetRole changes the role of targetID. Admin only.
func (s *UserService) SetRole(ctx context.Context, callerID, targetID, roleID uint) (*domain.User, error) {
	if err := requireAdmin(ctx, s.DB, callerID); err != nil {
		return nil, err
	}
	if roleID != domain.RoleMember && roleID != domain.RoleAdmin {
		return nil, invalidField("roleId", "must be 1 or 2")
	}
	if err := repo.UpdateUserRole(ctx, s.DB, targetID, roleID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return repo.GetUser(ctx, s.DB, targetID)
}

func (s *UserService) issue(u *domain.User) (*AuthResult, error) {
	tok, exp, err := s.Tokens.Issue(u)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: tok, ExpiresAt: exp, User: u}, nil
}
