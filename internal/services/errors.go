// Package services defines the business logic of the flashcard marketplace:
// access decisions, set and card authoring, catalog curation, purchases,
// subscriptions, likes, view history and accounts.
//
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
// Translation into HTTP status codes is performed at the handler layer.
package services

import "errors"

// Lookup errors.
var (
	// ErrSetNotFound indicates that the set does not exist or, for metadata
	// reads, that it is hidden from the caller.
	ErrSetNotFound = errors.New("set not found")

	// ErrCardNotFound indicates that the card does not exist.
	ErrCardNotFound = errors.New("card not found")

	// ErrCategoryNotFound indicates that the category does not exist.
	ErrCategoryNotFound = errors.New("category not found")

	// ErrTagNotFound is returned when a referenced tag id does not exist.
	ErrTagNotFound = errors.New("tag not found")

	// ErrUserNotFound indicates that the user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrNotSubscribed is returned when ending a subscription that does not exist.
	ErrNotSubscribed = errors.New("not subscribed to this educator")
)

// Authorization errors.
var (
	// ErrUnauthenticated is returned when an operation requires a caller identity.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrForbidden is returned when the caller is neither the owner of the
	// resource nor an admin.
	ErrForbidden = errors.New("not allowed to modify this resource")

	// ErrInvalidCredentials is returned by Login for an unknown email or a
	// wrong password; the two cases are not distinguished.
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// Validation and conflict errors.
var (
	// ErrInvalidInput is returned when a required field is blank or a value is
	// outside its allowed range. Wrapped errors carry the field name.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicateName is returned when a category or tag name is taken.
	ErrDuplicateName = errors.New("name already exists")

	// ErrEmailTaken is returned by Register when the email or username is in use.
	ErrEmailTaken = errors.New("email or username already registered")

	// ErrNotPurchasable is returned when buying a free or subscriber-only set
	// that carries no price.
	ErrNotPurchasable = errors.New("set is not for sale")

	// ErrOwnSet is returned when an educator tries to buy their own set.
	ErrOwnSet = errors.New("cannot purchase your own set")

	// ErrAlreadyPurchased is returned when the caller already owns a purchase
	// of the set.
	ErrAlreadyPurchased = errors.New("set already purchased")

	// ErrSelfSubscribe is returned when a user subscribes to themselves.
	ErrSelfSubscribe = errors.New("cannot subscribe to yourself")

	// ErrAlreadySubscribed is returned for a repeated subscription.
	ErrAlreadySubscribed = errors.New("already subscribed to this educator")
)
