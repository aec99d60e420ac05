package models

import "time"

// RevenueAnalytics is the daily counter bucket for one owner and product.
type RevenueAnalytics struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	ProductID        *string   `json:"product_id,omitempty"`
	Date             time.Time `json:"date"`
	Revenue          int64     `json:"revenue"`
	PayoutAmount     int64     `json:"payout_amount"`
	TransactionCount int64     `json:"transaction_count"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ProductRevenue is the daily counter bucket for one product.
type ProductRevenue struct {
	ID            string    `json:"id"`
	ProductID     string    `json:"product_id"`
	Date          time.Time `json:"date"`
	Revenue       int64     `json:"revenue"`
	CustomerCount int64     `json:"customer_count"`
	UserShare     int64     `json:"user_share"`
}

// Day truncates t to its UTC calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
