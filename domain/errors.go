package domain

import "errors"

// Validation errors: structural eligibility failures. Surfaced verbatim to
// the caller and never retried.
var (
	ErrBookingNotFound   = errors.New("booking not found")
	ErrSwapNotFound      = errors.New("swap proposal not found")
	ErrNotSwapOwner      = errors.New("user does not own swap")
	ErrSwapNotOpen       = errors.New("swap is not open for proposals")
	ErrTargetNotOpen     = errors.New("target swap is not open for proposals")
	ErrOwnSwapProposal   = errors.New("cannot propose a swap against your own booking")
	ErrProposalExists    = errors.New("proposal already exists between these swaps")
	ErrExpiryNotInFuture = errors.New("proposal expiry must be in the future")
	ErrUnknownTermsKind  = errors.New("unknown proposal terms kind")
	ErrInvalidCashAmount = errors.New("cash offer amount must be greater than zero")
	ErrNoTargetSelected  = errors.New("proposal has no target booking selected")
	ErrNotProposer       = errors.New("only the proposer may cancel this proposal")
	ErrNotTargetOwner    = errors.New("only the target booking owner may respond to this proposal")
)

// Concurrency conflicts: reported distinctly from validation errors so a
// client can decide whether to retry.
var (
	ErrBookingNotAvailable = errors.New("booking is not available for locking")
	ErrSwapNotPending      = errors.New("swap proposal is not pending")
	ErrSwapExpired         = errors.New("swap proposal has expired")
)

// External-dependency failures, surfaced after internal retries are
// exhausted and local state is rolled back.
var (
	ErrNotarizationFailed = errors.New("notarization of swap transition failed")
	ErrTransferFailed     = errors.New("ownership transfer failed")
)
