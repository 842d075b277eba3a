package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// EligibleBid is a revealed, non-withdrawn bid as seen by winner
// determination: identity, the bundle it wants, and the revealed amount.
type EligibleBid struct {
	Bidder string
	Bundle []ItemID
	Amount decimal.Decimal
}

// GreedyOutcome is the full result of one greedy allocation pass.
type GreedyOutcome struct {
	// Winners lists accepted bidders in acceptance order (the order the
	// single pass walked them).
	Winners []string

	// WonBy maps each allocated item to the bidder that won it. Items
	// absent from the map stay with the auction's own identity.
	WonBy map[ItemID]string

	// TotalRevenue is the sum of accepted bid amounts.
	TotalRevenue decimal.Decimal
}

// DensityLess reports whether bid a ranks strictly after bid b under the
// descending value-density order with ascending-bidder tie-break. Density
// is amount/|bundle|; the comparison cross-multiplies
// (a.Amount*|b.Bundle| vs b.Amount*|a.Bundle|) so no division or rounding
// can perturb the order.
func DensityLess(a, b EligibleBid) bool {
	av := a.Amount.Mul(decimal.NewFromInt(int64(len(b.Bundle))))
	bv := b.Amount.Mul(decimal.NewFromInt(int64(len(a.Bundle))))
	if cmp := av.Cmp(bv); cmp != 0 {
		return cmp < 0
	}
	return a.Bidder > b.Bidder
}

// SolveGreedy runs the greedy value-density heuristic over the eligible
// bids: sort by descending density (ties broken by ascending bidder
// identity), then walk the order once, accepting every bid whose bundle is
// disjoint from all previously accepted bundles. Acceptance is never
// revisited, so the result approximates — and does not guarantee — maximum
// revenue, in exchange for a deterministic O(n log n) pass.
//
// The caller passes bids in any order; the fixed sort makes the outcome
// independent of it.
func SolveGreedy(bids []EligibleBid) *GreedyOutcome {
	ordered := make([]EligibleBid, len(bids))
	copy(ordered, bids)
	sort.Slice(ordered, func(i, j int) bool {
		return DensityLess(ordered[j], ordered[i])
	})

	outcome := &GreedyOutcome{
		Winners:      make([]string, 0, len(ordered)),
		WonBy:        make(map[ItemID]string),
		TotalRevenue: decimal.Zero,
	}

	allocated := make(map[ItemID]bool)
	for _, bid := range ordered {
		conflict := false
		for _, id := range bid.Bundle {
			if allocated[id] {
				conflict = true
				break
			}
		}
		if conflict {
			continue
		}
		for _, id := range bid.Bundle {
			allocated[id] = true
			outcome.WonBy[id] = bid.Bidder
		}
		outcome.Winners = append(outcome.Winners, bid.Bidder)
		outcome.TotalRevenue = outcome.TotalRevenue.Add(bid.Amount)
	}

	return outcome
}
