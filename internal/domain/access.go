package domain

import "github.com/shopspring/decimal"

// SetType classifies how a caller relates to a set. The first five values
// describe grants; SetTypeSubscriber and SetTypePremium describe denials.
type SetType string

const (
	SetTypeOwned      SetType = "owned"
	SetTypeAdmin      SetType = "admin"
	SetTypeFree       SetType = "free"
	SetTypePurchased  SetType = "purchased"
	SetTypeSubscribed SetType = "subscribed"
	SetTypeSubscriber SetType = "subscriber"
	SetTypePremium    SetType = "premium"
)

// DenialReason explains why a verdict denies access.
type DenialReason string

const (
	ReasonSubscriberOnly DenialReason = "SUBSCRIBER_ONLY"
	ReasonPremium        DenialReason = "PREMIUM"
)

// AccessVerdict is the outcome of an access check for a (set, user) pair.
// It is computed per request and must never be stored under a shared cache key.
type AccessVerdict struct {
	HasAccess bool             `json:"hasAccess"`
	SetType   SetType          `json:"setType"`
	Reason    DenialReason     `json:"reason,omitempty"`
	Message   string           `json:"message,omitempty"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	SetTitle  string           `json:"setTitle"`
	SetID     uint             `json:"setId"`
}
