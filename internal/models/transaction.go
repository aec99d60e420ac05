package models

import "time"

type TransactionStatus string

const (
	TxnSucceeded TransactionStatus = "succeeded"
)

// Transaction is one recorded successful payment intent. Rows are never
// updated after insert.
type Transaction struct {
	ID                    string            `json:"id"`
	StripePaymentIntentID string            `json:"stripe_payment_intent_id"`
	ProductID             *string           `json:"product_id,omitempty"`
	BuyerEmail            string            `json:"buyer_email"`
	Amount                int64             `json:"amount"`
	Currency              string            `json:"currency"`
	Status                TransactionStatus `json:"status"`
	Metadata              map[string]string `json:"metadata"`
	CreatedAt             time.Time         `json:"created_at"`
}
