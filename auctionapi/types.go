// Package auctionapi defines the JSON request, response, and view types of
// the auction's HTTP boundary, plus the mapping from engine errors to
// stable error kinds. Monetary amounts travel as decimal strings.
package auctionapi

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/bundleauction/auction"
	"github.com/cloudx-io/bundleauction/core"
)

// InitializeRequest sets up the auction: the item catalog and the two
// phase window durations.
type InitializeRequest struct {
	Items                 []ItemSpec `json:"items"`
	CommitDurationSeconds int64      `json:"commit_duration_seconds"`
	RevealDurationSeconds int64      `json:"reveal_duration_seconds"`
}

// ItemSpec is one catalog entry in an InitializeRequest.
type ItemSpec struct {
	ID          int64  `json:"id"`
	Description string `json:"description"`
	MinBid      string `json:"min_bid"`
}

// ItemSpecs converts the request catalog into engine item specs.
func (r InitializeRequest) ItemSpecs() ([]auction.ItemSpec, error) {
	specs := make([]auction.ItemSpec, 0, len(r.Items))
	for _, it := range r.Items {
		minBid, err := decimal.NewFromString(it.MinBid)
		if err != nil {
			return nil, fmt.Errorf("item %d: invalid min bid %q: %w", it.ID, it.MinBid, err)
		}
		specs = append(specs, auction.ItemSpec{
			ID:          core.ItemID(it.ID),
			Description: it.Description,
			MinBid:      minBid,
		})
	}
	return specs, nil
}

// CommitBidRequest commits a sealed bid: the digest and the attached
// deposit.
type CommitBidRequest struct {
	Bidder  string `json:"bidder"`
	Digest  string `json:"digest"`
	Deposit string `json:"deposit"`
}

// RevealBidRequest opens a sealed bid.
type RevealBidRequest struct {
	Bidder  string  `json:"bidder"`
	ItemIDs []int64 `json:"item_ids"`
	Amount  string  `json:"amount"`
	Nonce   string  `json:"nonce"`
}

// Bundle converts the request item ids into engine item ids.
func (r RevealBidRequest) Bundle() []core.ItemID {
	ids := make([]core.ItemID, len(r.ItemIDs))
	for i, id := range r.ItemIDs {
		ids[i] = core.ItemID(id)
	}
	return ids
}

// WithdrawBidRequest retires a committed bid during the commitment window.
type WithdrawBidRequest struct {
	Bidder string `json:"bidder"`
}

// AuctionView is the read-only auction summary.
type AuctionView struct {
	Phase     string    `json:"phase"`
	CommitEnd time.Time `json:"commit_end"`
	RevealEnd time.Time `json:"reveal_end"`
	ItemCount int       `json:"item_count"`
	BidCount  int       `json:"bid_count"`
	Solved    bool      `json:"solved"`
}

// NewAuctionView builds the summary view from the engine's info and phase.
func NewAuctionView(info core.AuctionInfo, phase core.Phase) AuctionView {
	return AuctionView{
		Phase:     string(phase),
		CommitEnd: info.CommitEnd,
		RevealEnd: info.RevealEnd,
		ItemCount: info.ItemCount,
		BidCount:  info.BidCount,
		Solved:    info.Solved,
	}
}

// ItemView is one catalog entry as exposed at the boundary.
type ItemView struct {
	ID          int64  `json:"id"`
	Description string `json:"description"`
	MinBid      string `json:"min_bid"`
	Holder      string `json:"holder"`
}

// NewItemView converts an engine item.
func NewItemView(item core.Item) ItemView {
	return ItemView{
		ID:          int64(item.ID),
		Description: item.Description,
		MinBid:      item.MinBid.String(),
		Holder:      item.Holder,
	}
}

// BidView is one bid slot as exposed at the boundary. The bundle and
// amount are only present once the bid has been revealed.
type BidView struct {
	Bidder    string  `json:"bidder"`
	Digest    string  `json:"digest"`
	ItemIDs   []int64 `json:"item_ids,omitempty"`
	Deposit   string  `json:"deposit"`
	Amount    string  `json:"amount,omitempty"`
	Revealed  bool    `json:"revealed"`
	Withdrawn bool    `json:"withdrawn"`
	Won       bool    `json:"won"`
	Refunded  bool    `json:"refunded"`
}

// NewBidView converts an engine bid slot.
func NewBidView(bid core.SealedBid) BidView {
	view := BidView{
		Bidder:    bid.Bidder,
		Digest:    bid.Commitment,
		Deposit:   bid.Deposit.String(),
		Revealed:  bid.Revealed,
		Withdrawn: bid.Withdrawn,
		Won:       bid.Won,
		Refunded:  bid.Refunded,
	}
	if bid.Revealed {
		view.Amount = bid.Amount.String()
		view.ItemIDs = make([]int64, len(bid.Bundle))
		for i, id := range bid.Bundle {
			view.ItemIDs[i] = int64(id)
		}
	}
	return view
}

// AllocationView is the winner-determination result.
type AllocationView struct {
	Winners      []string `json:"winners"`
	TotalRevenue string   `json:"total_revenue"`
}

// NewAllocationView converts an engine allocation result.
func NewAllocationView(result core.AllocationResult) AllocationView {
	return AllocationView{
		Winners:      result.Winners,
		TotalRevenue: result.TotalRevenue.String(),
	}
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Type    string `json:"type"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// NewErrorResponse builds the error body for err.
func NewErrorResponse(err error) ErrorResponse {
	return ErrorResponse{
		Type:    "error",
		Kind:    Kind(err),
		Message: err.Error(),
	}
}
