package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// ItemID identifies a single auctionable item.
type ItemID int64

// Item is one entry in the auction's item catalog. The catalog is fixed at
// initialization; only Holder changes, exactly once, when the item is
// allocated to a winning bidder.
type Item struct {
	ID          ItemID          `json:"id"`
	Description string          `json:"description"`
	MinBid      decimal.Decimal `json:"min_bid"`
	Holder      string          `json:"holder"`
}

// SealedBid is the per-bidder bid slot. A bidder has at most one slot for
// the lifetime of the auction. Bundle and Amount stay zero until a
// successful reveal; the boolean flags record the slot's position in the
// Committed → Revealed|Withdrawn → (Won|Lost) → Refunded lifecycle.
type SealedBid struct {
	Bidder     string          `json:"bidder"`
	Commitment string          `json:"commitment"` // hex SHA-256 digest stored at commit time
	Bundle     []ItemID        `json:"bundle,omitempty"`
	Deposit    decimal.Decimal `json:"deposit"`
	Amount     decimal.Decimal `json:"amount"`
	Revealed   bool            `json:"revealed"`
	Withdrawn  bool            `json:"withdrawn"`
	Won        bool            `json:"won"`
	Refunded   bool            `json:"refunded"`

	// Seq is the commit-order sequence number, assigned at commit time.
	// It is informational; winner determination tie-breaks on Bidder.
	Seq int `json:"seq"`
}

// AllocationResult is the outcome of winner determination. Produced exactly
// once per auction and immutable afterward.
type AllocationResult struct {
	// Winners lists winning bidder identities in acceptance order.
	Winners []string `json:"winners"`

	// TotalRevenue is the sum of winning bid amounts.
	TotalRevenue decimal.Decimal `json:"total_revenue"`
}

// AuctionInfo is a derived read-only summary of an auction instance.
type AuctionInfo struct {
	CommitEnd time.Time `json:"commit_end"`
	RevealEnd time.Time `json:"reveal_end"`
	ItemCount int       `json:"item_count"`
	BidCount  int       `json:"bid_count"`
	Solved    bool      `json:"solved"`
}
