package services

import "errors"

var (
	ErrAlreadyRecorded = errors.New("payment already recorded")
	ErrPayoutCompleted = errors.New("payout already completed")
	ErrNotOnboarded    = errors.New("user has not completed payout onboarding")
	ErrPayoutInFlight  = errors.New("payout transfer already in progress")
	ErrNoPayoutAccount = errors.New("user has no connected account")
)

// Step names reported in StepResult.
const (
	StepPayout         = "payout"
	StepUserAnalytics  = "revenue_analytics"
	StepProductRevenue = "product_revenue"
	StepTransfer       = "transfer"
)

// Transfer skip reasons.
const (
	ReasonNoRecipient  = "recipient not found"
	ReasonNotOnboarded = "recipient not onboarded"
	ReasonInFlight     = "payout already claimed"
)

// StepResult is the outcome of one best-effort bookkeeping step. A step
// either ran (Err nil on success) or was skipped with a reason.
type StepResult struct {
	Step    string
	Err     error
	Skipped bool
	Reason  string
}

func ok(step string) StepResult { return StepResult{Step: step} }

func failed(step string, err error) StepResult { return StepResult{Step: step, Err: err} }

func skipped(step, reason string) StepResult {
	return StepResult{Step: step, Skipped: true, Reason: reason}
}

func (r StepResult) Failed() bool { return r.Err != nil }
