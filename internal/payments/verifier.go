package payments

import (
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v81/webhook"
)

var (
	ErrMissingSignature = errors.New("missing stripe signature")
	ErrInvalidSignature = errors.New("invalid stripe signature")
)

// Verifier checks the Stripe-Signature header of a webhook delivery against
// the endpoint secret.
type Verifier struct {
	secret    string
	tolerance time.Duration
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret, tolerance: webhook.DefaultTolerance}
}

// Verify returns ErrMissingSignature or ErrInvalidSignature for client side
// problems; any other error means the signed payload could not be decoded.
func (v *Verifier) Verify(payload []byte, signature string) (Event, error) {
	if signature == "" {
		return nil, ErrMissingSignature
	}
	evt, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return nil, fmt.Errorf("construct event: %w", err)
	}
	return Decode(evt)
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}
