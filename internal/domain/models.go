// Package domain defines the persistence models for the flashcard marketplace:
// users, flashcard sets, cards, categories, tags, likes, purchases,
// subscriptions and view history. These types are mapped with GORM and form
// the core data layer of the application.
//
// JSON field names are camelCase; their storage columns are snake_case and
// the translation between the two lives in package fieldmap.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role identifiers stored in User.RoleID.
const (
	RoleMember uint = 1
	RoleAdmin  uint = 2
)

// User is an account on the marketplace. Any user may publish sets and is
// then the "educator" of those sets. RoleAdmin bypasses every monetization
// check.
type User struct {
	ID           uint      `json:"id"        gorm:"primaryKey"`
	Username     string    `json:"username"  gorm:"type:varchar(64);not null;uniqueIndex:ux_users_username"`
	Email        string    `json:"email"     gorm:"type:varchar(255);not null;uniqueIndex:ux_users_email"`
	PasswordHash string    `json:"-"         gorm:"type:varchar(255);not null"`
	RoleID       uint      `json:"roleId"    gorm:"not null;default:1"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// IsAdmin reports whether the user carries the admin role.
func (u User) IsAdmin() bool { return u.RoleID == RoleAdmin }

// Category groups sets by subject.
type Category struct {
	ID        uint      `json:"id"        gorm:"primaryKey"`
	Name      string    `json:"name"      gorm:"type:varchar(100);not null;uniqueIndex:ux_categories_name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName returns the database table name for Category.
func (Category) TableName() string { return "categories" }

// Tag is a free-form label attached to sets through the set_tags join table.
type Tag struct {
	ID        uint      `json:"id"        gorm:"primaryKey"`
	Name      string    `json:"name"      gorm:"type:varchar(64);not null;uniqueIndex:ux_tags_name"`
	CreatedAt time.Time `json:"createdAt"`
}

// TableName returns the database table name for Tag.
func (Tag) TableName() string { return "tags" }

// Set is a flashcard set published by an educator.
//
// Monetization is driven by two independent flags:
//   - Price > 0 makes the set premium (purchasable).
//   - IsSubscriberOnly opens the set to subscribers of the educator.
//
// A set with Price == 0 and !IsSubscriberOnly is free. Hidden sets are never
// visible to anyone, owners and admins included, through the access engine.
type Set struct {
	ID               uint            `json:"id"               gorm:"primaryKey"`
	Title            string          `json:"title"            gorm:"type:varchar(255);not null"`
	Description      string          `json:"description"      gorm:"type:text"`
	EducatorID       uint            `json:"educatorId"       gorm:"not null;index:idx_sets_educator"`
	CategoryID       *uint           `json:"categoryId"       gorm:"index:idx_sets_category"`
	Price            decimal.Decimal `json:"price"            gorm:"type:numeric(10,2);not null;default:0"`
	IsSubscriberOnly bool            `json:"isSubscriberOnly" gorm:"not null;default:false"`
	Hidden           bool            `json:"hidden"           gorm:"not null;default:false;index:idx_sets_hidden"`
	Featured         bool            `json:"featured"         gorm:"not null;default:false"`
	CreatedAt        time.Time       `json:"createdAt"        gorm:"index:idx_sets_created"`
	UpdatedAt        time.Time       `json:"updatedAt"`

	Educator *User     `json:"educator,omitempty" gorm:"foreignKey:EducatorID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Category *Category `json:"category,omitempty" gorm:"foreignKey:CategoryID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
	Tags     []Tag     `json:"tags,omitempty"     gorm:"many2many:set_tags;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Cards    []Card    `json:"cards,omitempty"    gorm:"foreignKey:SetID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Set.
func (Set) TableName() string { return "sets" }

// IsFree reports whether the set is open to everyone, anonymous callers included.
func (s Set) IsFree() bool { return s.Price.IsZero() && !s.IsSubscriberOnly }

// IsPremium reports whether the set carries a price.
func (s Set) IsPremium() bool { return s.Price.IsPositive() }

// Card is a single question/answer pair inside a set.
type Card struct {
	ID        uint      `json:"id"        gorm:"primaryKey"`
	SetID     uint      `json:"setId"     gorm:"not null;index:idx_cards_set,priority:1"`
	Front     string    `json:"front"     gorm:"type:text;not null"`
	Back      string    `json:"back"      gorm:"type:text;not null"`
	Position  int       `json:"position"  gorm:"not null;default:0;index:idx_cards_set,priority:2"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName returns the database table name for Card.
func (Card) TableName() string { return "cards" }

// Like records that a user liked a set. One like per (user, set).
type Like struct {
	ID        uint      `json:"id"        gorm:"primaryKey"`
	UserID    uint      `json:"userId"    gorm:"not null;uniqueIndex:ux_likes_user_set,priority:1"`
	SetID     uint      `json:"setId"     gorm:"not null;uniqueIndex:ux_likes_user_set,priority:2;index:idx_likes_set"`
	CreatedAt time.Time `json:"createdAt"`

	Set *Set `json:"set,omitempty" gorm:"foreignKey:SetID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Like.
func (Like) TableName() string { return "likes" }

// Purchase grants permanent access to a priced set. Amount is the price paid
// at the time of purchase.
type Purchase struct {
	ID     uint            `json:"id"     gorm:"primaryKey"`
	UserID uint            `json:"userId" gorm:"not null;uniqueIndex:ux_purchases_user_set,priority:1"`
	SetID  uint            `json:"setId"  gorm:"not null;uniqueIndex:ux_purchases_user_set,priority:2"`
	Amount decimal.Decimal `json:"amount" gorm:"type:numeric(10,2);not null;default:0"`
	Date   time.Time       `json:"date"   gorm:"not null;index"`

	Set *Set `json:"set,omitempty" gorm:"foreignKey:SetID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Purchase.
func (Purchase) TableName() string { return "purchases" }

// Subscription grants access to every subscriber-only set of an educator for
// as long as the row exists.
type Subscription struct {
	ID         uint      `json:"id"         gorm:"primaryKey"`
	UserID     uint      `json:"userId"     gorm:"not null;uniqueIndex:ux_subscriptions_user_educator,priority:1"`
	EducatorID uint      `json:"educatorId" gorm:"not null;uniqueIndex:ux_subscriptions_user_educator,priority:2"`
	Date       time.Time `json:"date"       gorm:"not null"`

	Educator *User `json:"educator,omitempty" gorm:"foreignKey:EducatorID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Subscription.
func (Subscription) TableName() string { return "subscriptions" }

// ViewHistory keeps the last time a user opened the content of a set.
type ViewHistory struct {
	ID       uint      `json:"id"       gorm:"primaryKey"`
	UserID   uint      `json:"userId"   gorm:"not null;uniqueIndex:ux_history_user_set,priority:1"`
	SetID    uint      `json:"setId"    gorm:"not null;uniqueIndex:ux_history_user_set,priority:2"`
	ViewedAt time.Time `json:"viewedAt" gorm:"not null;index"`

	Set *Set `json:"set,omitempty" gorm:"foreignKey:SetID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ViewHistory.
func (ViewHistory) TableName() string { return "view_history" }
