package payments

import (
	"encoding/json"
	"testing"

	"github.com/stripe/stripe-go/v81"
)

func event(t *testing.T, typ stripe.EventType, account string, obj string) stripe.Event {
	t.Helper()
	return stripe.Event{
		ID:      "evt_x",
		Type:    typ,
		Account: account,
		Created: 1760000000,
		Data:    &stripe.EventData{Raw: json.RawMessage(obj)},
	}
}

func TestDecode(t *testing.T) {
	t.Run("transfer created", func(t *testing.T) {
		got, err := Decode(event(t, stripe.EventTypeTransferCreated, "", `{"id":"tr_1","object":"transfer","amount":300,"destination":"acct_1"}`))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		tc, ok := got.(TransferCreated)
		if !ok || tc.TransferID != "tr_1" || tc.Amount != 300 || tc.Destination != "acct_1" {
			t.Fatalf("got %#v", got)
		}
		if tc.PayoutID != "" {
			t.Fatalf("payout id = %q", tc.PayoutID)
		}
	})

	t.Run("transfer created with payout metadata", func(t *testing.T) {
		got, err := Decode(event(t, stripe.EventTypeTransferCreated, "",
			`{"id":"tr_2","object":"transfer","amount":300,"transfer_group":"pi_1","metadata":{"payout_id":"p-1","user_id":"user-1"}}`))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		tc := got.(TransferCreated)
		if tc.PayoutID != "p-1" || tc.TransferGroup != "pi_1" {
			t.Fatalf("got %#v", tc)
		}
	})

	t.Run("account updated", func(t *testing.T) {
		got, err := Decode(event(t, stripe.EventTypeAccountUpdated, "", `{"id":"acct_1","object":"account","charges_enabled":true,"payouts_enabled":false,"details_submitted":true,"capabilities":{"transfers":"active"}}`))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		au, ok := got.(AccountUpdated)
		if !ok {
			t.Fatalf("got %T", got)
		}
		s := au.Status
		if s.AccountID != "acct_1" || !s.ChargesEnabled || s.PayoutsEnabled || !s.DetailsSubmitted {
			t.Fatalf("status = %+v", s)
		}
		if s.OnboardingComplete() {
			t.Fatal("onboarding should be incomplete")
		}
		if string(s.Capabilities) != `{"transfers":"active"}` {
			t.Fatalf("capabilities = %s", s.Capabilities)
		}
	})

	t.Run("person updated", func(t *testing.T) {
		got, err := Decode(event(t, stripe.EventTypePersonUpdated, "", `{"id":"person_1","object":"person","account":"acct_2"}`))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if pu, ok := got.(PersonUpdated); !ok || pu.AccountID != "acct_2" {
			t.Fatalf("got %#v", got)
		}
	})

	t.Run("external account uses event account", func(t *testing.T) {
		got, err := Decode(event(t, stripe.EventTypeAccountExternalAccountUpdated, "acct_3", `{"id":"ba_1","object":"bank_account"}`))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if ea, ok := got.(ExternalAccountUpdated); !ok || ea.AccountID != "acct_3" {
			t.Fatalf("got %#v", got)
		}
	})

	t.Run("deauthorized falls back to object account", func(t *testing.T) {
		got, err := Decode(event(t, stripe.EventTypeAccountApplicationDeauthorized, "", `{"id":"ca_1","object":"application","account":"acct_4"}`))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if ad, ok := got.(AccountDeauthorized); !ok || ad.AccountID != "acct_4" {
			t.Fatalf("got %#v", got)
		}
	})

	t.Run("unhandled type", func(t *testing.T) {
		got, err := Decode(event(t, "charge.refunded", "", `{"id":"ch_1"}`))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if ig, ok := got.(Ignored); !ok || ig.EventType() != "charge.refunded" {
			t.Fatalf("got %#v", got)
		}
	})

	t.Run("broken payment intent", func(t *testing.T) {
		if _, err := Decode(event(t, stripe.EventTypePaymentIntentSucceeded, "", `[]`)); err == nil {
			t.Fatal("expected decode error")
		}
	})
}

func TestParseShare(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"300", 300},
		{" 42 ", 42},
		{"", 0},
		{"abc", 0},
		{"12.5", 12},
		{"300.0", 300},
		{"300abc", 300},
		{"-5", -5},
		{"+7", 7},
		{"-", 0},
		{"99999999999999999999", 0},
	}
	for _, tt := range tests {
		if got := parseShare(tt.in); got != tt.want {
			t.Fatalf("parseShare(%q) = %d want %d", tt.in, got, tt.want)
		}
	}
}

func TestPaymentSucceededWithoutMetadata(t *testing.T) {
	got, err := Decode(event(t, stripe.EventTypePaymentIntentSucceeded, "", `{"id":"pi_2","object":"payment_intent","amount":500,"currency":"usd","receipt_email":"a@b.c"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	ps := got.(PaymentSucceeded)
	if ps.ProductID != nil || ps.OwnerUserID != "" || ps.OwnerShare != 0 {
		t.Fatalf("unexpected owner fields: %+v", ps)
	}
	if ps.ReceiptEmail != "a@b.c" || ps.Metadata == nil {
		t.Fatalf("got %+v", ps)
	}
}
