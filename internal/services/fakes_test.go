package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kazuya8222/embld-revenue/internal/models"
	"github.com/kazuya8222/embld-revenue/internal/payments"
	repo "github.com/kazuya8222/embld-revenue/internal/repository"
	"go.uber.org/zap"
)

var fixedNow = time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

type fakeTransactions struct {
	mu        sync.Mutex
	rows      []models.Transaction
	createErr error
}

func (f *fakeTransactions) Create(_ context.Context, tx models.Transaction) (models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return models.Transaction{}, f.createErr
	}
	for _, r := range f.rows {
		if r.StripePaymentIntentID == tx.StripePaymentIntentID {
			return models.Transaction{}, fmt.Errorf("%w: transactions_stripe_payment_intent_id_key", repo.ErrDuplicate)
		}
	}
	tx.ID = fmt.Sprintf("txn-%d", len(f.rows)+1)
	tx.CreatedAt = fixedNow
	f.rows = append(f.rows, tx)
	return tx, nil
}

func (f *fakeTransactions) GetByID(_ context.Context, id string) (models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.ID == id {
			return r, nil
		}
	}
	return models.Transaction{}, repo.ErrNotFound
}

type fakePayouts struct {
	mu        sync.Mutex
	rows      []models.Payout
	createErr error
	// markErr fails both status updates; transferredErr only MarkTransferred.
	markErr        error
	transferredErr error
	claims         int
}

func (f *fakePayouts) Create(_ context.Context, p models.Payout) (models.Payout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return models.Payout{}, f.createErr
	}
	if p.ID == "" {
		p.ID = fmt.Sprintf("payout-%d", len(f.rows)+1)
	}
	p.CreatedAt = fixedNow
	f.rows = append(f.rows, p)
	return p, nil
}

func (f *fakePayouts) GetByID(_ context.Context, id string) (models.Payout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.ID == id {
			return r, nil
		}
	}
	return models.Payout{}, repo.ErrNotFound
}

func (f *fakePayouts) ListByStatus(_ context.Context, status models.PayoutStatus, limit int) ([]models.Payout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Payout
	for _, r := range f.rows {
		if r.Status == status && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakePayouts) ListByUser(_ context.Context, userID string, limit int) ([]models.Payout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Payout
	for i := len(f.rows) - 1; i >= 0 && len(out) < limit; i-- {
		if f.rows[i].UserID == userID {
			out = append(out, f.rows[i])
		}
	}
	return out, nil
}

func (f *fakePayouts) TotalByUser(_ context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total int64
	for _, r := range f.rows {
		if r.UserID == userID {
			total += r.Amount
		}
	}
	return total, nil
}

func (f *fakePayouts) Claim(_ context.Context, id string) (models.Payout, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rows {
		if f.rows[i].ID != id {
			continue
		}
		if st := f.rows[i].Status; st != models.PayoutPending && st != models.PayoutFailed {
			return models.Payout{}, false, nil
		}
		f.rows[i].Status = models.PayoutProcessing
		f.rows[i].Attempts++
		f.claims++
		return f.rows[i], true, nil
	}
	return models.Payout{}, false, nil
}

func (f *fakePayouts) update(id string, errOverride error, fn func(*models.Payout)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	if errOverride != nil {
		return errOverride
	}
	for i := range f.rows {
		if f.rows[i].ID == id {
			fn(&f.rows[i])
			return nil
		}
	}
	return repo.ErrNotFound
}

func (f *fakePayouts) MarkTransferred(_ context.Context, id, transferID string, at time.Time) error {
	return f.update(id, f.transferredErr, func(p *models.Payout) {
		p.Status = models.PayoutCompleted
		p.StripeTransferID = &transferID
		p.TransferredAt = &at
	})
}

func (f *fakePayouts) MarkFailed(_ context.Context, id string) error {
	return f.update(id, nil, func(p *models.Payout) {
		if p.Status != models.PayoutCompleted {
			p.Status = models.PayoutFailed
		}
	})
}

func (f *fakePayouts) CompleteByTransferID(_ context.Context, transferID, payoutID string, at time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for i := range f.rows {
		r := &f.rows[i]
		byTransfer := r.StripeTransferID != nil && *r.StripeTransferID == transferID
		byPayout := payoutID != "" && r.ID == payoutID && r.StripeTransferID == nil && r.Status != models.PayoutCompleted
		if !byTransfer && !byPayout {
			continue
		}
		tid := transferID
		r.Status = models.PayoutCompleted
		r.StripeTransferID = &tid
		r.TransferredAt = &at
		n++
	}
	return n, nil
}

func (f *fakePayouts) byID(id string) models.Payout {
	p, _ := f.GetByID(context.Background(), id)
	return p
}

type fakeAnalytics struct {
	mu       sync.Mutex
	users    map[string]*models.RevenueAnalytics
	products map[string]*models.ProductRevenue
	userErr  error
	prodErr  error
	rows     []models.RevenueAnalytics
}

func newFakeAnalytics() *fakeAnalytics {
	return &fakeAnalytics{users: map[string]*models.RevenueAnalytics{}, products: map[string]*models.ProductRevenue{}}
}

func userKey(userID string, productID *string, day time.Time) string {
	p := "<nil>"
	if productID != nil {
		p = *productID
	}
	return userID + "|" + p + "|" + models.Day(day).Format(time.DateOnly)
}

func (f *fakeAnalytics) AddUserRevenue(_ context.Context, userID string, productID *string, day time.Time, revenue, payout int64) (models.RevenueAnalytics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.userErr != nil {
		return models.RevenueAnalytics{}, f.userErr
	}
	k := userKey(userID, productID, day)
	row, ok := f.users[k]
	if !ok {
		row = &models.RevenueAnalytics{ID: k, UserID: userID, ProductID: productID, Date: models.Day(day)}
		f.users[k] = row
	}
	row.Revenue += revenue
	row.PayoutAmount += payout
	row.TransactionCount++
	return *row, nil
}

func (f *fakeAnalytics) AddProductRevenue(_ context.Context, productID string, day time.Time, revenue, userShare int64) (models.ProductRevenue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.prodErr != nil {
		return models.ProductRevenue{}, f.prodErr
	}
	k := productID + "|" + models.Day(day).Format(time.DateOnly)
	row, ok := f.products[k]
	if !ok {
		row = &models.ProductRevenue{ID: k, ProductID: productID, Date: models.Day(day)}
		f.products[k] = row
	}
	row.Revenue += revenue
	row.CustomerCount++
	row.UserShare += userShare
	return *row, nil
}

func (f *fakeAnalytics) ListUserRevenue(_ context.Context, userID string, productID *string, from, to time.Time) ([]models.RevenueAnalytics, error) {
	var out []models.RevenueAnalytics
	for _, r := range f.rows {
		if r.UserID != userID || r.Date.Before(from) || r.Date.After(to) {
			continue
		}
		if productID != nil && (r.ProductID == nil || *r.ProductID != *productID) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeAnalytics) CountUserProducts(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]bool{}
	for _, r := range f.users {
		if r.UserID == userID && r.ProductID != nil {
			seen[*r.ProductID] = true
		}
	}
	return len(seen), nil
}

type fakeUsers struct {
	mu        sync.Mutex
	accounts  map[string]models.PayoutAccount
	statuses  map[string]models.AccountStatus
	updateErr error
}

func newFakeUsers(accts ...models.PayoutAccount) *fakeUsers {
	f := &fakeUsers{accounts: map[string]models.PayoutAccount{}, statuses: map[string]models.AccountStatus{}}
	for _, a := range accts {
		f.accounts[a.UserID] = a
	}
	return f
}

func (f *fakeUsers) GetPayoutAccount(_ context.Context, userID string) (models.PayoutAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[userID]
	if !ok {
		return models.PayoutAccount{}, repo.ErrNotFound
	}
	return a, nil
}

func (f *fakeUsers) GetByStripeAccount(_ context.Context, accountID string) (models.PayoutAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.StripeAccountID != nil && *a.StripeAccountID == accountID {
			return a, nil
		}
	}
	return models.PayoutAccount{}, repo.ErrNotFound
}

func (f *fakeUsers) each(accountID string, fn func(*models.PayoutAccount)) int64 {
	var n int64
	for id, a := range f.accounts {
		if a.StripeAccountID != nil && *a.StripeAccountID == accountID {
			fn(&a)
			f.accounts[id] = a
			n++
		}
	}
	return n
}

func (f *fakeUsers) SetOnboardingCompleted(_ context.Context, accountID string, completed bool) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return 0, f.updateErr
	}
	return f.each(accountID, func(a *models.PayoutAccount) { a.OnboardingCompleted = completed }), nil
}

func (f *fakeUsers) UpdateAccountStatus(_ context.Context, s models.AccountStatus) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return 0, f.updateErr
	}
	f.statuses[s.AccountID] = s
	return f.each(s.AccountID, func(a *models.PayoutAccount) { a.OnboardingCompleted = s.OnboardingComplete() }), nil
}

func (f *fakeUsers) ClearStripeAccount(_ context.Context, accountID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.each(accountID, func(a *models.PayoutAccount) {
		a.StripeAccountID = nil
		a.OnboardingCompleted = false
	}), nil
}

func (f *fakeUsers) ListOnboarded(_ context.Context) ([]models.PayoutAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.PayoutAccount
	for _, a := range f.accounts {
		if a.CanReceiveTransfers() {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

type fakeAudit struct {
	mu   sync.Mutex
	logs []models.AuditLog
}

func (f *fakeAudit) Create(_ context.Context, l models.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, l)
	return nil
}

type fakeTransfers struct {
	mu    sync.Mutex
	calls []payments.TransferRequest
	err   error
	// gate, when set, holds every call until it is closed.
	gate chan struct{}
}

func (f *fakeTransfers) CreateTransfer(_ context.Context, req payments.TransferRequest) (string, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("tr_%d", len(f.calls)), nil
}

type fakeAccounts struct {
	status models.AccountStatus
	err    error
	calls  []string
}

func (f *fakeAccounts) GetAccountStatus(_ context.Context, accountID string) (models.AccountStatus, error) {
	f.calls = append(f.calls, accountID)
	if f.err != nil {
		return models.AccountStatus{}, f.err
	}
	return f.status, nil
}

type fakeBalances struct {
	balances map[string]models.AccountBalance
	err      error
}

func (f *fakeBalances) GetBalance(_ context.Context, accountID, currency string) (models.AccountBalance, error) {
	if f.err != nil {
		return models.AccountBalance{}, f.err
	}
	b := f.balances[accountID]
	b.Currency = currency
	return b, nil
}

func onboarded(userID, accountID string) models.PayoutAccount {
	return models.PayoutAccount{UserID: userID, Email: userID + "@example.com", StripeAccountID: &accountID, OnboardingCompleted: true}
}

func connectedOnly(userID, accountID string) models.PayoutAccount {
	return models.PayoutAccount{UserID: userID, Email: userID + "@example.com", StripeAccountID: &accountID}
}

type ledgerFixture struct {
	trx       *fakeTransactions
	payouts   *fakePayouts
	analytics *fakeAnalytics
	users     *fakeUsers
	transfers *fakeTransfers
	ledger    *LedgerService
	initiator *TransferInitiator
}

func newLedgerFixture(accts ...models.PayoutAccount) *ledgerFixture {
	f := &ledgerFixture{
		trx:       &fakeTransactions{},
		payouts:   &fakePayouts{},
		analytics: newFakeAnalytics(),
		users:     newFakeUsers(accts...),
		transfers: &fakeTransfers{},
	}
	log := zap.NewNop()
	f.initiator = NewTransferInitiator(f.users, f.payouts, f.transfers, log)
	f.initiator.now = clock
	f.ledger = NewLedgerService(f.trx, f.payouts, f.analytics, f.initiator, log)
	f.ledger.now = clock
	return f
}
