package auctionapi

import (
	"errors"

	"github.com/cloudx-io/bundleauction/core"
)

// Error kinds as exposed at the boundary. Stable strings; clients dispatch
// on these rather than on error messages.
const (
	KindNotInitialized       = "not_initialized"
	KindAlreadyInitialized   = "already_initialized"
	KindWrongPhase           = "wrong_phase"
	KindDuplicateBid         = "duplicate_bid"
	KindBidNotFound          = "bid_not_found"
	KindAlreadyWithdrawn     = "already_withdrawn"
	KindAlreadyRevealed      = "already_revealed"
	KindCommitmentMismatch   = "commitment_mismatch"
	KindInsufficientDeposit  = "insufficient_deposit"
	KindDuplicateItem        = "duplicate_item_in_bundle"
	KindItemNotFound         = "item_not_found"
	KindAlreadySolved        = "already_solved"
	KindNotSolved            = "not_solved"
	KindAlreadyRefunded      = "already_refunded"
	KindNotEligibleForRefund = "not_eligible_for_refund"
	KindInvalidRequest       = "invalid_request"
)

// Kind maps an engine error to its boundary error kind. Errors outside the
// taxonomy classify as invalid_request.
func Kind(err error) string {
	switch {
	case errors.Is(err, core.ErrNotInitialized):
		return KindNotInitialized
	case errors.Is(err, core.ErrAlreadyInitialized):
		return KindAlreadyInitialized
	case errors.Is(err, core.ErrWrongPhase):
		return KindWrongPhase
	case errors.Is(err, core.ErrDuplicateBid):
		return KindDuplicateBid
	case errors.Is(err, core.ErrBidNotFound):
		return KindBidNotFound
	case errors.Is(err, core.ErrAlreadyWithdrawn):
		return KindAlreadyWithdrawn
	case errors.Is(err, core.ErrAlreadyRevealed):
		return KindAlreadyRevealed
	case errors.Is(err, core.ErrCommitmentMismatch):
		return KindCommitmentMismatch
	case errors.Is(err, core.ErrInsufficientDeposit):
		return KindInsufficientDeposit
	case errors.Is(err, core.ErrDuplicateItemInBundle):
		return KindDuplicateItem
	case errors.Is(err, core.ErrItemNotFound):
		return KindItemNotFound
	case errors.Is(err, core.ErrAlreadySolved):
		return KindAlreadySolved
	case errors.Is(err, core.ErrNotSolved):
		return KindNotSolved
	case errors.Is(err, core.ErrAlreadyRefunded):
		return KindAlreadyRefunded
	case errors.Is(err, core.ErrNotEligibleForRefund):
		return KindNotEligibleForRefund
	default:
		return KindInvalidRequest
	}
}
