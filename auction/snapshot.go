package auction

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/bundleauction/core"
)

// Snapshot serializes the complete auction state to CBOR so a restarted
// process can resume a live auction. Amounts travel as canonical decimal
// strings to keep the encoding independent of the decimal library's
// internal representation.

type itemSnapshot struct {
	ID          int64  `cbor:"id"`
	Description string `cbor:"description"`
	MinBid      string `cbor:"min_bid"`
	Holder      string `cbor:"holder"`
}

type bidSnapshot struct {
	Bidder     string  `cbor:"bidder"`
	Commitment string  `cbor:"commitment"`
	Bundle     []int64 `cbor:"bundle,omitempty"`
	Deposit    string  `cbor:"deposit"`
	Amount     string  `cbor:"amount"`
	Revealed   bool    `cbor:"revealed"`
	Withdrawn  bool    `cbor:"withdrawn"`
	Won        bool    `cbor:"won"`
	Refunded   bool    `cbor:"refunded"`
	Seq        int     `cbor:"seq"`
}

type auctionSnapshot struct {
	Owner        string         `cbor:"owner"`
	Initialized  bool           `cbor:"initialized"`
	CommitEnd    time.Time      `cbor:"commit_end"`
	RevealEnd    time.Time      `cbor:"reveal_end"`
	Items        []itemSnapshot `cbor:"items"`
	Bids         []bidSnapshot  `cbor:"bids"`
	Solved       bool           `cbor:"solved"`
	Winners      []string       `cbor:"winners,omitempty"`
	TotalRevenue string         `cbor:"total_revenue,omitempty"`
}

// Snapshot encodes the auction's full state.
func (a *Auction) Snapshot() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := auctionSnapshot{
		Owner:       a.owner,
		Initialized: a.initialized,
		CommitEnd:   a.commitEnd,
		RevealEnd:   a.revealEnd,
		Solved:      a.solved,
	}
	for _, id := range a.itemOrder {
		item := a.items[id]
		snap.Items = append(snap.Items, itemSnapshot{
			ID:          int64(item.ID),
			Description: item.Description,
			MinBid:      item.MinBid.String(),
			Holder:      item.Holder,
		})
	}
	for _, bidder := range a.bidOrder {
		bid := a.bids[bidder]
		bundle := make([]int64, len(bid.Bundle))
		for i, id := range bid.Bundle {
			bundle[i] = int64(id)
		}
		snap.Bids = append(snap.Bids, bidSnapshot{
			Bidder:     bid.Bidder,
			Commitment: bid.Commitment,
			Bundle:     bundle,
			Deposit:    bid.Deposit.String(),
			Amount:     bid.Amount.String(),
			Revealed:   bid.Revealed,
			Withdrawn:  bid.Withdrawn,
			Won:        bid.Won,
			Refunded:   bid.Refunded,
			Seq:        bid.Seq,
		})
	}
	if a.solved {
		snap.Winners = append([]string(nil), a.result.Winners...)
		snap.TotalRevenue = a.result.TotalRevenue.String()
	}

	data, err := cbor.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// Restore rebuilds an auction from a Snapshot encoding. The collaborators
// (clock, treasury, event sink) come from cfg; cfg.Owner is ignored in
// favor of the snapshotted owner identity.
func Restore(data []byte, cfg Config) (*Auction, error) {
	var snap auctionSnapshot
	if err := cbor.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	cfg.Owner = snap.Owner
	a := New(cfg)
	a.initialized = snap.Initialized
	a.commitEnd = snap.CommitEnd
	a.revealEnd = snap.RevealEnd
	a.solved = snap.Solved

	for _, is := range snap.Items {
		minBid, err := decimal.NewFromString(is.MinBid)
		if err != nil {
			return nil, fmt.Errorf("decode snapshot: item %d min bid: %w", is.ID, err)
		}
		id := core.ItemID(is.ID)
		if _, ok := a.items[id]; ok {
			return nil, fmt.Errorf("decode snapshot: duplicate item id %d", is.ID)
		}
		a.items[id] = &core.Item{
			ID:          id,
			Description: is.Description,
			MinBid:      minBid,
			Holder:      is.Holder,
		}
		a.itemOrder = append(a.itemOrder, id)
	}

	for _, bs := range snap.Bids {
		deposit, err := decimal.NewFromString(bs.Deposit)
		if err != nil {
			return nil, fmt.Errorf("decode snapshot: bid %s deposit: %w", bs.Bidder, err)
		}
		amount, err := decimal.NewFromString(bs.Amount)
		if err != nil {
			return nil, fmt.Errorf("decode snapshot: bid %s amount: %w", bs.Bidder, err)
		}
		if _, ok := a.bids[bs.Bidder]; ok {
			return nil, fmt.Errorf("decode snapshot: duplicate bid for %s", bs.Bidder)
		}
		bundle := make([]core.ItemID, len(bs.Bundle))
		for i, id := range bs.Bundle {
			bundle[i] = core.ItemID(id)
		}
		a.bids[bs.Bidder] = &core.SealedBid{
			Bidder:     bs.Bidder,
			Commitment: bs.Commitment,
			Bundle:     bundle,
			Deposit:    deposit,
			Amount:     amount,
			Revealed:   bs.Revealed,
			Withdrawn:  bs.Withdrawn,
			Won:        bs.Won,
			Refunded:   bs.Refunded,
			Seq:        bs.Seq,
		}
		a.bidOrder = append(a.bidOrder, bs.Bidder)
	}

	if snap.Solved {
		revenue, err := decimal.NewFromString(snap.TotalRevenue)
		if err != nil {
			return nil, fmt.Errorf("decode snapshot: total revenue: %w", err)
		}
		a.result = &core.AllocationResult{
			Winners:      append([]string(nil), snap.Winners...),
			TotalRevenue: revenue,
		}
	}

	return a, nil
}
