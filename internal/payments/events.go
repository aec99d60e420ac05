package payments

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kazuya8222/embld-revenue/internal/models"
	"github.com/stripe/stripe-go/v81"
)

// Event is a decoded webhook event. The concrete type tells the dispatcher
// which handler applies; Ignored covers every type this service does not act on.
type Event interface {
	EventID() string
	EventType() string
	isEvent()
}

// Envelope carries the provider event id and type.
type Envelope struct {
	ID   string
	Type string
}

func (e Envelope) EventID() string   { return e.ID }
func (e Envelope) EventType() string { return e.Type }
func (Envelope) isEvent()            {}

// PaymentSucceeded is payment_intent.succeeded.
type PaymentSucceeded struct {
	Envelope
	PaymentIntentID string
	Amount          int64
	Currency        string
	ReceiptEmail    string
	Metadata        map[string]string
	ProductID       *string
	OwnerUserID     string
	OwnerShare      int64
}

// TransferCreated is transfer.created.
type TransferCreated struct {
	Envelope
	TransferID    string
	Amount        int64
	Destination   string
	TransferGroup string
	// PayoutID comes from the transfer metadata set when the payout was sent.
	PayoutID string
}

// AccountUpdated is account.updated.
type AccountUpdated struct {
	Envelope
	Status models.AccountStatus
}

// PersonUpdated is person.updated; only the owning account is kept.
type PersonUpdated struct {
	Envelope
	AccountID string
}

// ExternalAccountUpdated is account.external_account.updated.
type ExternalAccountUpdated struct {
	Envelope
	AccountID string
}

// AccountDeauthorized is account.application.deauthorized.
type AccountDeauthorized struct {
	Envelope
	AccountID string
}

type Ignored struct {
	Envelope
}

const (
	metaProductID   = "product_id"
	metaOwnerUserID = "owner_user_id"
	metaOwnerShare  = "owner_share"
	MetaPayoutID    = "payout_id"
	unknownEmail    = "unknown"
)

// Decode converts a verified stripe event into an Event.
func Decode(evt stripe.Event) (Event, error) {
	meta := Envelope{ID: evt.ID, Type: string(evt.Type)}
	var raw json.RawMessage
	if evt.Data != nil {
		raw = evt.Data.Raw
	}

	switch evt.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent: %w", err)
		}
		return paymentSucceeded(meta, &pi), nil

	case stripe.EventTypeTransferCreated:
		var tr stripe.Transfer
		if err := json.Unmarshal(raw, &tr); err != nil {
			return nil, fmt.Errorf("decode transfer: %w", err)
		}
		out := TransferCreated{
			Envelope:      meta,
			TransferID:    tr.ID,
			Amount:        tr.Amount,
			TransferGroup: tr.TransferGroup,
			PayoutID:      tr.Metadata[MetaPayoutID],
		}
		if tr.Destination != nil {
			out.Destination = tr.Destination.ID
		}
		return out, nil

	case stripe.EventTypeAccountUpdated:
		status, err := accountStatusFromRaw(raw, time.Unix(evt.Created, 0).UTC())
		if err != nil {
			return nil, err
		}
		return AccountUpdated{Envelope: meta, Status: status}, nil

	case stripe.EventTypePersonUpdated:
		var p stripe.Person
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode person: %w", err)
		}
		return PersonUpdated{Envelope: meta, AccountID: firstNonEmpty(p.Account, evt.Account)}, nil

	case stripe.EventTypeAccountExternalAccountUpdated:
		return ExternalAccountUpdated{Envelope: meta, AccountID: evt.Account}, nil

	case stripe.EventTypeAccountApplicationDeauthorized:
		var obj struct {
			Account string `json:"account"`
		}
		_ = json.Unmarshal(raw, &obj)
		return AccountDeauthorized{Envelope: meta, AccountID: firstNonEmpty(evt.Account, obj.Account)}, nil
	}
	return Ignored{Envelope: meta}, nil
}

func paymentSucceeded(env Envelope, pi *stripe.PaymentIntent) PaymentSucceeded {
	md := pi.Metadata
	if md == nil {
		md = map[string]string{}
	}
	out := PaymentSucceeded{
		Envelope:        env,
		PaymentIntentID: pi.ID,
		Amount:          pi.Amount,
		Currency:        string(pi.Currency),
		ReceiptEmail:    pi.ReceiptEmail,
		Metadata:        md,
		OwnerUserID:     strings.TrimSpace(md[metaOwnerUserID]),
		OwnerShare:      parseShare(md[metaOwnerShare]),
	}
	if out.ReceiptEmail == "" {
		out.ReceiptEmail = unknownEmail
	}
	if p := strings.TrimSpace(md[metaProductID]); p != "" {
		out.ProductID = &p
	}
	return out
}

// parseShare reads the owner share in the smallest currency unit from the
// leading integer of s, so "300.0" and "300abc" both read as 300. Input with
// no leading digits counts as no share.
func parseShare(s string) int64 {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func accountStatusFromRaw(raw json.RawMessage, at time.Time) (models.AccountStatus, error) {
	var obj struct {
		ID               string          `json:"id"`
		ChargesEnabled   bool            `json:"charges_enabled"`
		PayoutsEnabled   bool            `json:"payouts_enabled"`
		DetailsSubmitted bool            `json:"details_submitted"`
		Capabilities     json.RawMessage `json:"capabilities"`
		Requirements     json.RawMessage `json:"requirements"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return models.AccountStatus{}, fmt.Errorf("decode account: %w", err)
	}
	return models.AccountStatus{
		AccountID:        obj.ID,
		ChargesEnabled:   obj.ChargesEnabled,
		PayoutsEnabled:   obj.PayoutsEnabled,
		DetailsSubmitted: obj.DetailsSubmitted,
		Capabilities:     obj.Capabilities,
		Requirements:     obj.Requirements,
		UpdatedAt:        at,
	}, nil
}

// AccountStatusFrom converts an account fetched from the API.
func AccountStatusFrom(acct *stripe.Account, at time.Time) models.AccountStatus {
	s := models.AccountStatus{
		AccountID:        acct.ID,
		ChargesEnabled:   acct.ChargesEnabled,
		PayoutsEnabled:   acct.PayoutsEnabled,
		DetailsSubmitted: acct.DetailsSubmitted,
		UpdatedAt:        at,
	}
	if acct.Capabilities != nil {
		s.Capabilities, _ = json.Marshal(acct.Capabilities)
	}
	if acct.Requirements != nil {
		s.Requirements, _ = json.Marshal(acct.Requirements)
	}
	return s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
