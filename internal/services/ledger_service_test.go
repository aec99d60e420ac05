package services

import (
	"context"
	"errors"
	"testing"

	"github.com/kazuya8222/embld-revenue/internal/models"
	"github.com/kazuya8222/embld-revenue/internal/payments"
)

func strPtr(s string) *string { return &s }

func payment(intent string, amount, share int64, owner string, product *string) payments.PaymentSucceeded {
	return payments.PaymentSucceeded{
		Envelope:        payments.Envelope{ID: "evt_" + intent, Type: "payment_intent.succeeded"},
		PaymentIntentID: intent,
		Amount:          amount,
		Currency:        "jpy",
		ReceiptEmail:    "buyer@example.com",
		Metadata:        map[string]string{"owner_user_id": owner},
		ProductID:       product,
		OwnerUserID:     owner,
		OwnerShare:      share,
	}
}

func stepByName(t *testing.T, out LedgerOutcome, name string) StepResult {
	t.Helper()
	for _, s := range out.Steps {
		if s.Step == name {
			return s
		}
	}
	t.Fatalf("step %q not reported; steps=%+v", name, out.Steps)
	return StepResult{}
}

func TestRecordPaymentWithoutOnboardedAccount(t *testing.T) {
	f := newLedgerFixture(connectedOnly("user-1", "acct_1"))

	out, err := f.ledger.RecordPayment(context.Background(), payment("pi_1", 1000, 300, "user-1", strPtr("prod_1")))
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	if len(f.trx.rows) != 1 || f.trx.rows[0].Amount != 1000 {
		t.Fatalf("transactions = %+v", f.trx.rows)
	}
	if len(f.payouts.rows) != 1 {
		t.Fatalf("payouts = %+v", f.payouts.rows)
	}
	p := f.payouts.rows[0]
	if p.Amount != 300 || p.Status != models.PayoutPending || p.Percentage != 30 {
		t.Fatalf("payout = %+v", p)
	}
	if p.Amount > f.trx.rows[0].Amount {
		t.Fatal("payout exceeds transaction")
	}
	if p.TransactionID != out.Transaction.ID || p.UserID != "user-1" {
		t.Fatalf("payout refs = %+v", p)
	}
	if len(f.transfers.calls) != 0 {
		t.Fatalf("unexpected transfer calls: %+v", f.transfers.calls)
	}
	if st := stepByName(t, out, StepTransfer); !st.Skipped {
		t.Fatalf("transfer step = %+v", st)
	}
	if len(out.FailedSteps()) != 0 {
		t.Fatalf("failed steps = %+v", out.FailedSteps())
	}
}

func TestRecordPaymentTransfersToOnboardedAccount(t *testing.T) {
	f := newLedgerFixture(onboarded("user-1", "acct_1"))

	out, err := f.ledger.RecordPayment(context.Background(), payment("pi_1", 1000, 300, "user-1", strPtr("prod_1")))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(f.transfers.calls) != 1 {
		t.Fatalf("transfer calls = %d", len(f.transfers.calls))
	}
	req := f.transfers.calls[0]
	if req.Amount != 300 || req.Currency != "jpy" || req.Destination != "acct_1" || req.TransferGroup != "pi_1" {
		t.Fatalf("transfer request = %+v", req)
	}
	if req.Metadata["product_id"] != "prod_1" || req.Metadata["user_id"] != "user-1" {
		t.Fatalf("transfer metadata = %+v", req.Metadata)
	}
	if req.IdempotencyKey != "payout-"+out.Payout.ID || req.Metadata[payments.MetaPayoutID] != out.Payout.ID {
		t.Fatalf("transfer key=%q metadata=%+v", req.IdempotencyKey, req.Metadata)
	}

	p := f.payouts.byID(out.Payout.ID)
	if p.Status != models.PayoutCompleted || p.StripeTransferID == nil || *p.StripeTransferID != "tr_1" {
		t.Fatalf("payout = %+v", p)
	}
	if p.TransferredAt == nil || !p.TransferredAt.Equal(fixedNow) {
		t.Fatalf("transferred_at = %v", p.TransferredAt)
	}
	if out.Payout.Status != models.PayoutCompleted {
		t.Fatalf("outcome payout = %+v", out.Payout)
	}
}

func TestRecordPaymentTransferFailureIsAcknowledged(t *testing.T) {
	f := newLedgerFixture(onboarded("user-1", "acct_1"))
	f.transfers.err = errors.New("insufficient platform balance")

	out, err := f.ledger.RecordPayment(context.Background(), payment("pi_1", 1000, 300, "user-1", nil))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	p := f.payouts.byID(out.Payout.ID)
	if p.Status != models.PayoutFailed || p.StripeTransferID != nil {
		t.Fatalf("payout = %+v", p)
	}
	if st := stepByName(t, out, StepTransfer); !st.Failed() {
		t.Fatalf("transfer step = %+v", st)
	}
}

func TestRecordPaymentIncrementsDailyAnalytics(t *testing.T) {
	f := newLedgerFixture()
	ctx := context.Background()
	product := strPtr("prod_1")

	if _, err := f.ledger.RecordPayment(ctx, payment("pi_1", 1000, 300, "user-1", product)); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := f.ledger.RecordPayment(ctx, payment("pi_2", 500, 150, "user-1", product)); err != nil {
		t.Fatalf("second: %v", err)
	}

	if len(f.analytics.users) != 1 {
		t.Fatalf("analytics rows = %d, want 1", len(f.analytics.users))
	}
	row := f.analytics.users[userKey("user-1", product, fixedNow)]
	if row.Revenue != 1500 || row.PayoutAmount != 450 || row.TransactionCount != 2 {
		t.Fatalf("analytics = %+v", row)
	}

	if len(f.analytics.products) != 1 {
		t.Fatalf("product rows = %d, want 1", len(f.analytics.products))
	}
	for _, pr := range f.analytics.products {
		if pr.Revenue != 1500 || pr.CustomerCount != 2 || pr.UserShare != 450 {
			t.Fatalf("product revenue = %+v", pr)
		}
	}
}

func TestRecordPaymentWithoutOwner(t *testing.T) {
	f := newLedgerFixture()

	out, err := f.ledger.RecordPayment(context.Background(), payment("pi_1", 1000, 0, "", strPtr("prod_1")))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(f.payouts.rows) != 0 || len(f.analytics.users) != 0 {
		t.Fatalf("owner rows written: payouts=%d analytics=%d", len(f.payouts.rows), len(f.analytics.users))
	}
	if out.Payout != nil {
		t.Fatalf("payout = %+v", out.Payout)
	}
	if st := stepByName(t, out, StepProductRevenue); st.Failed() || st.Skipped {
		t.Fatalf("product step = %+v", st)
	}
}

func TestRecordPaymentWithoutOwnerCreditsProductShare(t *testing.T) {
	f := newLedgerFixture()

	if _, err := f.ledger.RecordPayment(context.Background(), payment("pi_1", 1000, 300, "", strPtr("prod_1"))); err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(f.payouts.rows) != 0 || len(f.transfers.calls) != 0 {
		t.Fatal("payout written without owner")
	}
	pr := f.analytics.products["prod_1|2026-10-18"]
	if pr == nil || pr.Revenue != 1000 || pr.UserShare != 300 {
		t.Fatalf("product revenue = %+v", pr)
	}

	// A share larger than the amount is never credited.
	if _, err := f.ledger.RecordPayment(context.Background(), payment("pi_2", 1000, 1500, "", strPtr("prod_1"))); err != nil {
		t.Fatalf("record: %v", err)
	}
	if pr := f.analytics.products["prod_1|2026-10-18"]; pr.Revenue != 2000 || pr.UserShare != 300 {
		t.Fatalf("product revenue = %+v", pr)
	}
}

func TestRecordPaymentRejectsShareAboveAmount(t *testing.T) {
	f := newLedgerFixture(onboarded("user-1", "acct_1"))

	out, err := f.ledger.RecordPayment(context.Background(), payment("pi_1", 1000, 1500, "user-1", nil))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(f.payouts.rows) != 0 || len(f.transfers.calls) != 0 {
		t.Fatal("payout or transfer written for invalid share")
	}
	st := stepByName(t, out, StepPayout)
	if !errors.Is(st.Err, models.ErrPayoutExceedsTransaction) {
		t.Fatalf("payout step = %+v", st)
	}
}

func TestRecordPaymentTransactionFailureAborts(t *testing.T) {
	f := newLedgerFixture(onboarded("user-1", "acct_1"))
	f.trx.createErr = errors.New("connection refused")

	_, err := f.ledger.RecordPayment(context.Background(), payment("pi_1", 1000, 300, "user-1", strPtr("prod_1")))
	if err == nil {
		t.Fatal("expected error")
	}
	if len(f.payouts.rows) != 0 || len(f.analytics.users) != 0 || len(f.analytics.products) != 0 || len(f.transfers.calls) != 0 {
		t.Fatal("downstream writes after failed transaction insert")
	}
}

func TestRecordPaymentDuplicateIntent(t *testing.T) {
	f := newLedgerFixture()
	ctx := context.Background()

	if _, err := f.ledger.RecordPayment(ctx, payment("pi_1", 1000, 300, "user-1", nil)); err != nil {
		t.Fatalf("first: %v", err)
	}
	_, err := f.ledger.RecordPayment(ctx, payment("pi_1", 1000, 300, "user-1", nil))
	if !errors.Is(err, ErrAlreadyRecorded) {
		t.Fatalf("err=%v want ErrAlreadyRecorded", err)
	}
	if len(f.trx.rows) != 1 || len(f.payouts.rows) != 1 {
		t.Fatalf("rows: transactions=%d payouts=%d", len(f.trx.rows), len(f.payouts.rows))
	}
}

func TestRecordPaymentSecondaryFailuresAreReported(t *testing.T) {
	f := newLedgerFixture()
	f.payouts.createErr = errors.New("payouts down")
	f.analytics.prodErr = errors.New("product revenue down")

	out, err := f.ledger.RecordPayment(context.Background(), payment("pi_1", 1000, 300, "user-1", strPtr("prod_1")))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	failedSteps := map[string]bool{}
	for _, st := range out.FailedSteps() {
		failedSteps[st.Step] = true
	}
	if !failedSteps[StepPayout] || !failedSteps[StepProductRevenue] {
		t.Fatalf("failed steps = %+v", out.FailedSteps())
	}
	if st := stepByName(t, out, StepUserAnalytics); st.Failed() {
		t.Fatalf("analytics step = %+v", st)
	}
	if st := stepByName(t, out, StepTransfer); !st.Skipped {
		t.Fatalf("transfer step = %+v", st)
	}
}
