package models

import (
	"errors"
	"strconv"
	"time"
)

type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "pending"
	PayoutProcessing PayoutStatus = "processing"
	PayoutCompleted  PayoutStatus = "completed"
	PayoutFailed     PayoutStatus = "failed"
)

func (s PayoutStatus) Valid() bool {
	switch s {
	case PayoutPending, PayoutProcessing, PayoutCompleted, PayoutFailed:
		return true
	}
	return false
}

const (
	// OwnerSharePercent labels payouts created from product sales.
	OwnerSharePercent = 30
	// DistributionSharePercent is the share sent on a manual admin distribution.
	DistributionSharePercent = 70
)

var (
	ErrPayoutExceedsTransaction = errors.New("payout amount exceeds transaction amount")
	ErrNonPositivePayout        = errors.New("payout amount must be > 0")
)

// Payout is money owed to a user from one transaction.
type Payout struct {
	ID               string       `json:"id"`
	TransactionID    string       `json:"transaction_id"`
	UserID           string       `json:"user_id"`
	Amount           int64        `json:"amount"`
	Currency         string       `json:"currency"`
	Percentage       int          `json:"percentage"`
	Status           PayoutStatus `json:"status"`
	StripeTransferID *string      `json:"stripe_transfer_id,omitempty"`
	Attempts         int          `json:"attempts"`
	TransferredAt    *time.Time   `json:"transferred_at,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
}

// Validate checks the payout against the amount of its source transaction.
func (p *Payout) Validate(transactionAmount int64) error {
	if p.Amount <= 0 {
		return ErrNonPositivePayout
	}
	if p.Amount > transactionAmount {
		return ErrPayoutExceedsTransaction
	}
	if p.Status == "" {
		p.Status = PayoutPending
	}
	return nil
}

// IdempotencyKey identifies one transfer attempt for the payout. The first
// attempt keeps the bare payout key so a replayed delivery maps onto the same
// provider request; later attempts follow a recorded failure and get their own.
func (p Payout) IdempotencyKey() string {
	if p.Attempts <= 1 {
		return "payout-" + p.ID
	}
	return "payout-" + p.ID + "-" + strconv.Itoa(p.Attempts)
}

// PayoutStats summarises a user's payouts.
type PayoutStats struct {
	TotalEarnings    int64 `json:"totalEarnings"`
	PendingPayouts   int64 `json:"pendingPayouts"`
	CompletedPayouts int64 `json:"completedPayouts"`
	ProductCount     int   `json:"productCount"`
}

// SummarizePayouts sums amounts overall and per status.
func SummarizePayouts(list []Payout) PayoutStats {
	var st PayoutStats
	for _, p := range list {
		st.TotalEarnings += p.Amount
		switch p.Status {
		case PayoutPending:
			st.PendingPayouts += p.Amount
		case PayoutCompleted:
			st.CompletedPayouts += p.Amount
		}
	}
	return st
}
