package core

import "errors"

// Error kinds for every precondition the auction enforces. Operations wrap
// these with call-site context via fmt.Errorf("...: %w", ...); callers
// classify with errors.Is. A failed call leaves state untouched.
var (
	ErrNotInitialized        = errors.New("auction not initialized")
	ErrAlreadyInitialized    = errors.New("auction already initialized")
	ErrWrongPhase            = errors.New("operation not allowed in current phase")
	ErrDuplicateBid          = errors.New("bidder already has a bid slot")
	ErrBidNotFound           = errors.New("no bid for bidder")
	ErrAlreadyWithdrawn      = errors.New("bid already withdrawn")
	ErrAlreadyRevealed       = errors.New("bid already revealed")
	ErrCommitmentMismatch    = errors.New("reveal does not match stored commitment")
	ErrInsufficientDeposit   = errors.New("deposit or bid amount insufficient")
	ErrDuplicateItemInBundle = errors.New("duplicate item id in bundle")
	ErrItemNotFound          = errors.New("item not found")
	ErrAlreadySolved         = errors.New("winner determination already ran")
	ErrNotSolved             = errors.New("winner determination has not run")
	ErrAlreadyRefunded       = errors.New("deposit already refunded")
	ErrNotEligibleForRefund  = errors.New("bid not eligible for refund")
)
