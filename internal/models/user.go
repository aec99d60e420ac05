package models

import (
	"encoding/json"
	"time"
)

// PayoutAccount is the slice of a user row needed to send transfers.
type PayoutAccount struct {
	UserID              string  `json:"user_id"`
	Email               string  `json:"email"`
	StripeAccountID     *string `json:"stripe_account_id,omitempty"`
	OnboardingCompleted bool    `json:"stripe_onboarding_completed"`
}

// CanReceiveTransfers reports whether a connected account exists and
// finished onboarding.
func (a PayoutAccount) CanReceiveTransfers() bool {
	return a.StripeAccountID != nil && *a.StripeAccountID != "" && a.OnboardingCompleted
}

// AccountStatus is what the Connect endpoints persist about an account.
type AccountStatus struct {
	AccountID        string
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool
	Capabilities     json.RawMessage
	Requirements     json.RawMessage
	UpdatedAt        time.Time
}

func (s AccountStatus) OnboardingComplete() bool {
	return s.ChargesEnabled && s.PayoutsEnabled
}

// AccountBalance is a connected account's balance in one currency.
type AccountBalance struct {
	Currency  string `json:"currency"`
	Available int64  `json:"available"`
	Pending   int64  `json:"pending"`
}
