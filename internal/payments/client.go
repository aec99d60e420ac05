package payments

import (
	"context"
	"time"

	"github.com/kazuya8222/embld-revenue/internal/models"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/account"
	"github.com/stripe/stripe-go/v81/balance"
	"github.com/stripe/stripe-go/v81/transfer"
)

type TransferRequest struct {
	Amount         int64
	Currency       string
	Destination    string
	TransferGroup  string
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

// Transfers moves funds to a connected account and returns the transfer id.
type Transfers interface {
	CreateTransfer(ctx context.Context, req TransferRequest) (string, error)
}

// Accounts reads connected account state from the provider.
type Accounts interface {
	GetAccountStatus(ctx context.Context, accountID string) (models.AccountStatus, error)
}

// Balances reads a connected account's balance.
type Balances interface {
	GetBalance(ctx context.Context, accountID, currency string) (models.AccountBalance, error)
}

// Client talks to the Stripe API with an explicit key instead of the
// package-level stripe.Key.
type Client struct {
	transfers *transfer.Client
	accounts  *account.Client
	balances  *balance.Client
}

func NewClient(secretKey string) *Client {
	backend := stripe.GetBackend(stripe.APIBackend)
	return &Client{
		transfers: &transfer.Client{B: backend, Key: secretKey},
		accounts:  &account.Client{B: backend, Key: secretKey},
		balances:  &balance.Client{B: backend, Key: secretKey},
	}
}

func (c *Client) CreateTransfer(ctx context.Context, req TransferRequest) (string, error) {
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(req.Amount),
		Currency:    stripe.String(req.Currency),
		Destination: stripe.String(req.Destination),
	}
	params.Context = ctx
	if req.TransferGroup != "" {
		params.TransferGroup = stripe.String(req.TransferGroup)
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	tr, err := c.transfers.New(params)
	if err != nil {
		return "", err
	}
	return tr.ID, nil
}

func (c *Client) GetAccountStatus(ctx context.Context, accountID string) (models.AccountStatus, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx
	acct, err := c.accounts.GetByID(accountID, params)
	if err != nil {
		return models.AccountStatus{}, err
	}
	return AccountStatusFrom(acct, time.Now().UTC()), nil
}

// GetBalance sums the account's available and pending funds in currency.
func (c *Client) GetBalance(ctx context.Context, accountID, currency string) (models.AccountBalance, error) {
	params := &stripe.BalanceParams{}
	params.Context = ctx
	params.SetStripeAccount(accountID)
	b, err := c.balances.Get(params)
	if err != nil {
		return models.AccountBalance{}, err
	}
	return BalanceIn(b, currency), nil
}

// BalanceIn picks the amounts for one currency out of a balance.
func BalanceIn(b *stripe.Balance, currency string) models.AccountBalance {
	out := models.AccountBalance{Currency: currency}
	for _, a := range b.Available {
		if a != nil && string(a.Currency) == currency {
			out.Available += a.Amount
		}
	}
	for _, a := range b.Pending {
		if a != nil && string(a.Currency) == currency {
			out.Pending += a.Amount
		}
	}
	return out
}
