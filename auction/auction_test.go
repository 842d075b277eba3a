package auction

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/bundleauction/core"
)

// testClock is a manually advanced clock so tests can cross phase
// boundaries without sleeping.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testAuction wires an auction with two items {1: min 10, 2: min 10},
// a one-hour commitment window and a one-hour reveal window.
func newTestAuction(t *testing.T) (*Auction, *testClock, *MemoryTreasury, *MemoryEvents) {
	t.Helper()
	clock := newTestClock()
	treasury := NewMemoryTreasury()
	events := NewMemoryEvents()
	a := New(Config{
		Owner:    "auction",
		Clock:    clock.Now,
		Treasury: treasury,
		Events:   events,
	})
	err := a.Initialize([]ItemSpec{
		{ID: 1, Description: "lot one", MinBid: decimal.NewFromInt(10)},
		{ID: 2, Description: "lot two", MinBid: decimal.NewFromInt(10)},
	}, time.Hour, time.Hour)
	assert.Nil(t, err)
	return a, clock, treasury, events
}

// commitSealed computes a commitment for the given reveal data and commits
// it with the given deposit.
func commitSealed(t *testing.T, a *Auction, bidder string, items []core.ItemID, amount, deposit decimal.Decimal, nonce string) {
	t.Helper()
	digest := core.ComputeBidCommitment(bidder, items, amount, nonce)
	err := a.CommitBid(bidder, digest, deposit)
	assert.Nil(t, err)
}

func TestAuction_FullLifecycle(t *testing.T) {
	a, clock, treasury, events := newTestAuction(t)

	// Bidder A wants the whole bundle for 100 (density 50), B wants item 1
	// for 60 (density 60), C wants item 2 for 40 (density 40).
	commitSealed(t, a, "bidder_a", []core.ItemID{1, 2}, decimal.NewFromInt(100), decimal.NewFromInt(100), "na")
	commitSealed(t, a, "bidder_b", []core.ItemID{1}, decimal.NewFromInt(60), decimal.NewFromInt(80), "nb")
	commitSealed(t, a, "bidder_c", []core.ItemID{2}, decimal.NewFromInt(40), decimal.NewFromInt(40), "nc")

	clock.Advance(time.Hour) // into reveal
	check.Equal(t, core.PhaseReveal, a.Phase())

	check.Nil(t, a.RevealBid("bidder_a", []core.ItemID{1, 2}, decimal.NewFromInt(100), "na"))
	check.Nil(t, a.RevealBid("bidder_b", []core.ItemID{1}, decimal.NewFromInt(60), "nb"))
	check.Nil(t, a.RevealBid("bidder_c", []core.ItemID{2}, decimal.NewFromInt(40), "nc"))

	clock.Advance(time.Hour) // closed
	check.Equal(t, core.PhaseClosed, a.Phase())

	result, err := a.SolveWinnerDetermination()
	assert.Nil(t, err)

	// B (60) outranks A (50); A is rejected for overlapping item 1; C (40)
	// takes the disjoint item 2.
	check.Equal(t, []string{"bidder_b", "bidder_c"}, result.Winners)
	check.True(t, result.TotalRevenue.Equal(decimal.NewFromInt(100)))

	item1, err := a.Item(1)
	assert.Nil(t, err)
	check.Equal(t, "bidder_b", item1.Holder)
	item2, err := a.Item(2)
	assert.Nil(t, err)
	check.Equal(t, "bidder_c", item2.Holder)

	winning, err := a.WinningBid(1)
	assert.Nil(t, err)
	check.Equal(t, "bidder_b", winning.Bidder)
	check.True(t, winning.Won)

	// The loser gets its deposit back, once.
	check.Nil(t, a.RefundLosingBid("bidder_a"))
	check.True(t, treasury.TotalPaid("bidder_a").Equal(decimal.NewFromInt(100)))
	check.True(t, treasury.TotalPaid("bidder_b").IsZero())
	check.True(t, treasury.TotalPaid("bidder_c").IsZero())

	// Event trail covers the whole lifecycle.
	types := make([]EventType, 0)
	for _, evt := range events.Events() {
		types = append(types, evt.Type)
	}
	check.Equal(t, []EventType{
		EventAuctionStarted,
		EventBidCommitted, EventBidCommitted, EventBidCommitted,
		EventBidRevealed, EventBidRevealed, EventBidRevealed,
		EventAuctionEnded,
	}, types)
}

func TestInitialize_Preconditions(t *testing.T) {
	clock := newTestClock()
	a := New(Config{Clock: clock.Now})
	items := []ItemSpec{{ID: 1, MinBid: decimal.NewFromInt(10)}}

	check.Equal(t, core.PhaseSetup, a.Phase())

	err := a.Initialize(nil, time.Hour, time.Hour)
	check.Error(t, err)

	err = a.Initialize([]ItemSpec{{ID: 1}, {ID: 1}}, time.Hour, time.Hour)
	check.Error(t, err)

	err = a.Initialize(items, 0, time.Hour)
	check.Error(t, err)

	err = a.Initialize([]ItemSpec{{ID: 1, MinBid: decimal.NewFromInt(-1)}}, time.Hour, time.Hour)
	check.Error(t, err)

	// None of the failures initialized the auction.
	check.Equal(t, core.PhaseSetup, a.Phase())

	check.Nil(t, a.Initialize(items, time.Hour, time.Hour))
	err = a.Initialize(items, time.Hour, time.Hour)
	check.True(t, errors.Is(err, core.ErrAlreadyInitialized))
}

func TestCommitBid_Preconditions(t *testing.T) {
	a, clock, _, _ := newTestAuction(t)
	deposit := decimal.NewFromInt(50)

	err := a.CommitBid("alice", "digest", decimal.Zero)
	check.True(t, errors.Is(err, core.ErrInsufficientDeposit))

	check.Nil(t, a.CommitBid("alice", "digest", deposit))

	err = a.CommitBid("alice", "other-digest", deposit)
	check.True(t, errors.Is(err, core.ErrDuplicateBid))

	bid, err := a.Bid("alice")
	assert.Nil(t, err)
	check.Equal(t, "digest", bid.Commitment)
	check.True(t, bid.Deposit.Equal(deposit))
	check.False(t, bid.Revealed)

	clock.Advance(time.Hour)
	err = a.CommitBid("bob", "digest", deposit)
	check.True(t, errors.Is(err, core.ErrWrongPhase))
}

func TestCommitBid_BeforeInitialize(t *testing.T) {
	a := New(Config{Clock: newTestClock().Now})
	err := a.CommitBid("alice", "digest", decimal.NewFromInt(10))
	check.True(t, errors.Is(err, core.ErrNotInitialized))
}

func TestRevealBid_Preconditions(t *testing.T) {
	a, clock, _, _ := newTestAuction(t)
	amount := decimal.NewFromInt(50)

	commitSealed(t, a, "alice", []core.ItemID{1}, amount, decimal.NewFromInt(60), "n")

	// Still in commitment phase.
	err := a.RevealBid("alice", []core.ItemID{1}, amount, "n")
	check.True(t, errors.Is(err, core.ErrWrongPhase))

	clock.Advance(time.Hour)

	err = a.RevealBid("nobody", []core.ItemID{1}, amount, "n")
	check.True(t, errors.Is(err, core.ErrBidNotFound))

	err = a.RevealBid("alice", nil, amount, "n")
	check.Error(t, err)

	err = a.RevealBid("alice", []core.ItemID{1, 1}, amount, "n")
	check.True(t, errors.Is(err, core.ErrDuplicateItemInBundle))

	err = a.RevealBid("alice", []core.ItemID{1, 99}, amount, "n")
	check.True(t, errors.Is(err, core.ErrItemNotFound))

	check.Nil(t, a.RevealBid("alice", []core.ItemID{1}, amount, "n"))
	err = a.RevealBid("alice", []core.ItemID{1}, amount, "n")
	check.True(t, errors.Is(err, core.ErrAlreadyRevealed))
}

func TestRevealBid_AmountChecks(t *testing.T) {
	a, clock, _, _ := newTestAuction(t)

	// Deposit 30 cannot cover a 50 bid.
	over := decimal.NewFromInt(50)
	commitSealed(t, a, "alice", []core.ItemID{1}, over, decimal.NewFromInt(30), "n")

	// Bid of exactly the bundle minimum (10) is not strictly above it.
	atMin := decimal.NewFromInt(10)
	commitSealed(t, a, "bob", []core.ItemID{1}, atMin, decimal.NewFromInt(30), "n")

	clock.Advance(time.Hour)

	err := a.RevealBid("alice", []core.ItemID{1}, over, "n")
	check.True(t, errors.Is(err, core.ErrInsufficientDeposit))

	err = a.RevealBid("bob", []core.ItemID{1}, atMin, "n")
	check.True(t, errors.Is(err, core.ErrInsufficientDeposit))
}

func TestRevealBid_CommitmentSoundness(t *testing.T) {
	a, clock, _, _ := newTestAuction(t)
	amount := decimal.NewFromInt(50)

	commitSealed(t, a, "alice", []core.ItemID{1, 2}, amount, decimal.NewFromInt(60), "n")
	clock.Advance(time.Hour)

	// Any single altered field fails with a commitment mismatch and leaves
	// the bid committed and un-revealed.
	cases := []struct {
		name   string
		bidder string
		items  []core.ItemID
		amount decimal.Decimal
		nonce  string
	}{
		{"different items", "alice", []core.ItemID{1}, amount, "n"},
		{"reordered items", "alice", []core.ItemID{2, 1}, amount, "n"},
		{"different amount", "alice", []core.ItemID{1, 2}, decimal.NewFromInt(51), "n"},
		{"different nonce", "alice", []core.ItemID{1, 2}, amount, "other"},
	}
	for _, tc := range cases {
		err := a.RevealBid(tc.bidder, tc.items, tc.amount, tc.nonce)
		check.True(t, errors.Is(err, core.ErrCommitmentMismatch))

		bid, err := a.Bid("alice")
		assert.Nil(t, err)
		check.False(t, bid.Revealed)
	}

	// A different identity cannot reveal on the committer's behalf: it has
	// no slot of its own, and the committer's digest binds the identity.
	err := a.RevealBid("mallory", []core.ItemID{1, 2}, amount, "n")
	check.True(t, errors.Is(err, core.ErrBidNotFound))

	// The honest reveal still goes through afterward.
	check.Nil(t, a.RevealBid("alice", []core.ItemID{1, 2}, amount, "n"))
}

func TestWithdrawBid_RefundsAndTerminates(t *testing.T) {
	a, clock, treasury, _ := newTestAuction(t)
	deposit := decimal.NewFromInt(70)

	commitSealed(t, a, "alice", []core.ItemID{1}, decimal.NewFromInt(50), deposit, "n")
	check.Nil(t, a.WithdrawBid("alice"))
	check.True(t, treasury.TotalPaid("alice").Equal(deposit))

	// Terminal: no second withdraw, no re-commit, no reveal, no refund.
	err := a.WithdrawBid("alice")
	check.True(t, errors.Is(err, core.ErrAlreadyWithdrawn))

	err = a.CommitBid("alice", "fresh-digest", deposit)
	check.True(t, errors.Is(err, core.ErrDuplicateBid))

	clock.Advance(time.Hour)
	err = a.RevealBid("alice", []core.ItemID{1}, decimal.NewFromInt(50), "n")
	check.True(t, errors.Is(err, core.ErrAlreadyWithdrawn))

	clock.Advance(time.Hour)
	_, err = a.SolveWinnerDetermination()
	assert.Nil(t, err)

	err = a.RefundLosingBid("alice")
	check.True(t, errors.Is(err, core.ErrNotEligibleForRefund))

	// The deposit left escrow exactly once.
	check.True(t, treasury.TotalPaid("alice").Equal(deposit))
}

func TestWithdrawBid_Preconditions(t *testing.T) {
	a, clock, _, _ := newTestAuction(t)

	err := a.WithdrawBid("nobody")
	check.True(t, errors.Is(err, core.ErrBidNotFound))

	commitSealed(t, a, "alice", []core.ItemID{1}, decimal.NewFromInt(50), decimal.NewFromInt(50), "n")
	clock.Advance(time.Hour)

	err = a.WithdrawBid("alice")
	check.True(t, errors.Is(err, core.ErrWrongPhase))
}

func TestSolve_PhaseAndIdempotence(t *testing.T) {
	a, clock, _, _ := newTestAuction(t)

	commitSealed(t, a, "alice", []core.ItemID{1}, decimal.NewFromInt(50), decimal.NewFromInt(50), "n")

	_, err := a.SolveWinnerDetermination()
	check.True(t, errors.Is(err, core.ErrWrongPhase))

	clock.Advance(time.Hour)
	check.Nil(t, a.RevealBid("alice", []core.ItemID{1}, decimal.NewFromInt(50), "n"))

	_, err = a.SolveWinnerDetermination()
	check.True(t, errors.Is(err, core.ErrWrongPhase))

	clock.Advance(time.Hour)
	first, err := a.SolveWinnerDetermination()
	assert.Nil(t, err)

	// Second solve fails and the stored result is untouched.
	_, err = a.SolveWinnerDetermination()
	check.True(t, errors.Is(err, core.ErrAlreadySolved))

	stored, err := a.Allocation()
	assert.Nil(t, err)
	check.Equal(t, first.Winners, stored.Winners)
	check.True(t, first.TotalRevenue.Equal(stored.TotalRevenue))
}

func TestSolve_IgnoresNonRevealedAndWithdrawn(t *testing.T) {
	a, clock, _, _ := newTestAuction(t)

	// alice never reveals; bob withdraws; carol reveals and wins.
	commitSealed(t, a, "alice", []core.ItemID{1}, decimal.NewFromInt(99), decimal.NewFromInt(99), "n1")
	commitSealed(t, a, "bob", []core.ItemID{1}, decimal.NewFromInt(80), decimal.NewFromInt(80), "n2")
	commitSealed(t, a, "carol", []core.ItemID{1}, decimal.NewFromInt(20), decimal.NewFromInt(20), "n3")
	check.Nil(t, a.WithdrawBid("bob"))

	clock.Advance(time.Hour)
	check.Nil(t, a.RevealBid("carol", []core.ItemID{1}, decimal.NewFromInt(20), "n3"))

	clock.Advance(time.Hour)
	result, err := a.SolveWinnerDetermination()
	assert.Nil(t, err)

	check.Equal(t, []string{"carol"}, result.Winners)
	check.True(t, result.TotalRevenue.Equal(decimal.NewFromInt(20)))

	// Non-revealed and withdrawn slots are never marked won or lost.
	alice, err := a.Bid("alice")
	assert.Nil(t, err)
	check.False(t, alice.Won)
	check.False(t, alice.Revealed)
}

func TestSolve_NoEligibleBids(t *testing.T) {
	a, clock, _, _ := newTestAuction(t)
	clock.Advance(2 * time.Hour)

	result, err := a.SolveWinnerDetermination()
	assert.Nil(t, err)
	check.Equal(t, 0, len(result.Winners))
	check.True(t, result.TotalRevenue.IsZero())

	// Unallocated items keep the auction's own identity as holder.
	item, err := a.Item(1)
	assert.Nil(t, err)
	check.Equal(t, "auction", item.Holder)

	_, err = a.WinningBid(1)
	check.True(t, errors.Is(err, core.ErrBidNotFound))
}

func TestRefund_Preconditions(t *testing.T) {
	a, clock, treasury, _ := newTestAuction(t)

	err := a.RefundLosingBid("alice")
	check.True(t, errors.Is(err, core.ErrNotSolved))

	commitSealed(t, a, "alice", []core.ItemID{1}, decimal.NewFromInt(50), decimal.NewFromInt(50), "n1")
	commitSealed(t, a, "bob", []core.ItemID{1}, decimal.NewFromInt(30), decimal.NewFromInt(30), "n2")
	clock.Advance(time.Hour)
	check.Nil(t, a.RevealBid("alice", []core.ItemID{1}, decimal.NewFromInt(50), "n1"))
	check.Nil(t, a.RevealBid("bob", []core.ItemID{1}, decimal.NewFromInt(30), "n2"))
	clock.Advance(time.Hour)
	_, err = a.SolveWinnerDetermination()
	assert.Nil(t, err)

	err = a.RefundLosingBid("nobody")
	check.True(t, errors.Is(err, core.ErrBidNotFound))

	// Winners never get their deposit back through the refund path.
	err = a.RefundLosingBid("alice")
	check.True(t, errors.Is(err, core.ErrNotEligibleForRefund))

	check.Nil(t, a.RefundLosingBid("bob"))
	err = a.RefundLosingBid("bob")
	check.True(t, errors.Is(err, core.ErrAlreadyRefunded))
	check.True(t, treasury.TotalPaid("bob").Equal(decimal.NewFromInt(30)))
}

func TestRefund_NonRevealedBidQualifies(t *testing.T) {
	a, clock, treasury, _ := newTestAuction(t)
	deposit := decimal.NewFromInt(42)

	// alice commits and goes silent; once closed she is irrevocably
	// non-revealed, but her escrowed deposit is still refundable.
	check.Nil(t, a.CommitBid("alice", "opaque-digest", deposit))
	clock.Advance(2 * time.Hour)

	_, err := a.SolveWinnerDetermination()
	assert.Nil(t, err)

	check.Nil(t, a.RefundLosingBid("alice"))
	check.True(t, treasury.TotalPaid("alice").Equal(deposit))
}

func TestAccessors(t *testing.T) {
	a, clock, _, _ := newTestAuction(t)

	info, err := a.Info()
	assert.Nil(t, err)
	check.Equal(t, 2, info.ItemCount)
	check.Equal(t, 0, info.BidCount)
	check.False(t, info.Solved)
	check.Equal(t, time.Hour, info.RevealEnd.Sub(info.CommitEnd))

	items, err := a.Items()
	assert.Nil(t, err)
	check.Equal(t, 2, len(items))
	check.Equal(t, core.ItemID(1), items[0].ID)
	check.Equal(t, core.ItemID(2), items[1].ID)

	_, err = a.Item(99)
	check.True(t, errors.Is(err, core.ErrItemNotFound))

	_, err = a.Bid("nobody")
	check.True(t, errors.Is(err, core.ErrBidNotFound))

	_, err = a.Allocation()
	check.True(t, errors.Is(err, core.ErrNotSolved))

	_, err = a.WinningBid(1)
	check.True(t, errors.Is(err, core.ErrNotSolved))

	commitSealed(t, a, "alice", []core.ItemID{1}, decimal.NewFromInt(50), decimal.NewFromInt(50), "n")
	info, err = a.Info()
	assert.Nil(t, err)
	check.Equal(t, 1, info.BidCount)

	clock.Advance(2 * time.Hour)
	_, err = a.SolveWinnerDetermination()
	assert.Nil(t, err)

	info, err = a.Info()
	assert.Nil(t, err)
	check.True(t, info.Solved)
}

func TestBid_ReturnsCopy(t *testing.T) {
	a, clock, _, _ := newTestAuction(t)
	amount := decimal.NewFromInt(50)

	commitSealed(t, a, "alice", []core.ItemID{1, 2}, amount, decimal.NewFromInt(60), "n")
	clock.Advance(time.Hour)
	check.Nil(t, a.RevealBid("alice", []core.ItemID{1, 2}, amount, "n"))

	bid, err := a.Bid("alice")
	assert.Nil(t, err)
	bid.Bundle[0] = 99

	again, err := a.Bid("alice")
	assert.Nil(t, err)
	check.Equal(t, core.ItemID(1), again.Bundle[0])
}

// readbackSink calls back into the emitting auction's read accessors on
// every event.
type readbackSink struct {
	auction *Auction
	phases  []core.Phase
}

func (s *readbackSink) Emit(evt Event) {
	s.phases = append(s.phases, s.auction.Phase())
	if evt.Bidder != "" {
		_, _ = s.auction.Bid(evt.Bidder)
	}
}

func TestEvents_SinkMayReadBackIntoAuction(t *testing.T) {
	clock := newTestClock()
	sink := &readbackSink{}
	a := New(Config{Owner: "auction", Clock: clock.Now, Events: sink})
	sink.auction = a

	err := a.Initialize([]ItemSpec{{ID: 1, MinBid: decimal.NewFromInt(10)}}, time.Hour, time.Hour)
	assert.Nil(t, err)

	amount := decimal.NewFromInt(50)
	commitSealed(t, a, "alice", []core.ItemID{1}, amount, amount, "n")
	assert.Nil(t, a.WithdrawBid("alice"))

	commitSealed(t, a, "bob", []core.ItemID{1}, amount, amount, "n")
	clock.Advance(time.Hour)
	assert.Nil(t, a.RevealBid("bob", []core.ItemID{1}, amount, "n"))
	clock.Advance(time.Hour)
	_, err = a.SolveWinnerDetermination()
	assert.Nil(t, err)

	// started, committed, withdrawn, committed, revealed, ended
	check.Equal(t, 6, len(sink.phases))
	check.Equal(t, core.PhaseCommitment, sink.phases[0])
	check.Equal(t, core.PhaseClosed, sink.phases[5])
}
