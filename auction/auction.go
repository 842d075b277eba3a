// Package auction implements a sealed-bid combinatorial auction: bidders
// commit hash commitments to bundle bids during a commitment window, reveal
// them during a reveal window, and a single greedy value-density pass picks
// a conflict-free winner set once the auction closes. Deposits are escrowed
// at commit time and released exactly once, through withdrawal or through a
// losing-bid refund.
package auction

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/bundleauction/core"
)

// Clock supplies the current time. Injectable so tests can drive phase
// transitions without sleeping.
type Clock func() time.Time

// Config carries the collaborators of an auction instance. Zero-value
// fields fall back to sensible defaults (time.Now, an in-memory treasury,
// a discarding event sink).
type Config struct {
	// Owner is the auction's own identity. It is the sentinel holder of
	// every unallocated item and must not collide with a bidder identity.
	Owner string

	Clock    Clock
	Treasury Treasury
	Events   EventSink
}

// ItemSpec describes one item of the catalog passed to Initialize.
type ItemSpec struct {
	ID          core.ItemID
	Description string
	MinBid      decimal.Decimal
}

// Auction is one auction instance. All state is owned exclusively by the
// instance; every operation runs under a single lock, so committed effects
// form a serialized log and a failed call leaves no partial state behind.
type Auction struct {
	mu       sync.Mutex
	owner    string
	clock    Clock
	treasury Treasury
	events   EventSink

	initialized bool
	commitEnd   time.Time
	revealEnd   time.Time

	items     map[core.ItemID]*core.Item
	itemOrder []core.ItemID

	bids     map[string]*core.SealedBid
	bidOrder []string

	solved bool
	result *core.AllocationResult
}

// New creates an auction instance in the setup phase. Initialize must be
// called before any bidding operation.
func New(cfg Config) *Auction {
	a := &Auction{
		owner:    cfg.Owner,
		clock:    cfg.Clock,
		treasury: cfg.Treasury,
		events:   cfg.Events,
		items:    make(map[core.ItemID]*core.Item),
		bids:     make(map[string]*core.SealedBid),
	}
	if a.owner == "" {
		a.owner = "auction"
	}
	if a.clock == nil {
		a.clock = time.Now
	}
	if a.treasury == nil {
		a.treasury = NewMemoryTreasury()
	}
	if a.events == nil {
		a.events = discardEvents{}
	}
	return a
}

// Initialize installs the item catalog and fixes the two phase-end
// timestamps from the given durations. One-time; a second call fails.
func (a *Auction) Initialize(items []ItemSpec, commitDuration, revealDuration time.Duration) error {
	a.mu.Lock()
	evt, err := a.initializeLocked(items, commitDuration, revealDuration)
	a.mu.Unlock()
	if err != nil {
		return err
	}
	a.events.Emit(evt)
	return nil
}

func (a *Auction) initializeLocked(items []ItemSpec, commitDuration, revealDuration time.Duration) (Event, error) {
	if a.initialized {
		return Event{}, fmt.Errorf("initialize: %w", core.ErrAlreadyInitialized)
	}
	if len(items) == 0 {
		return Event{}, fmt.Errorf("initialize: item catalog is empty")
	}
	if commitDuration <= 0 || revealDuration <= 0 {
		return Event{}, fmt.Errorf("initialize: phase durations must be positive")
	}
	catalog := make(map[core.ItemID]*core.Item, len(items))
	order := make([]core.ItemID, 0, len(items))
	for _, spec := range items {
		if _, ok := catalog[spec.ID]; ok {
			return Event{}, fmt.Errorf("initialize: duplicate item id %d", spec.ID)
		}
		if spec.MinBid.IsNegative() {
			return Event{}, fmt.Errorf("initialize: negative minimum bid for item %d", spec.ID)
		}
		catalog[spec.ID] = &core.Item{
			ID:          spec.ID,
			Description: spec.Description,
			MinBid:      spec.MinBid,
			Holder:      a.owner,
		}
		order = append(order, spec.ID)
	}
	a.items = catalog
	a.itemOrder = order

	now := a.clock()
	a.commitEnd = now.Add(commitDuration)
	a.revealEnd = a.commitEnd.Add(revealDuration)
	a.initialized = true

	return newEvent(EventAuctionStarted, now, func(evt *Event) {
		evt.ItemIDs = append([]core.ItemID(nil), a.itemOrder...)
		evt.CommitEnd = &a.commitEnd
		evt.RevealEnd = &a.revealEnd
	}), nil
}

// Phase returns the auction's current phase.
func (a *Auction) Phase() core.Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.phaseLocked()
}

func (a *Auction) phaseLocked() core.Phase {
	if !a.initialized {
		return core.PhaseSetup
	}
	return core.PhaseAt(a.commitEnd, a.revealEnd, a.clock())
}

// CommitBid stores a sealed-bid commitment for bidder and escrows the
// attached deposit. One slot per identity for the lifetime of the auction:
// a withdrawn slot never accepts a new commit.
func (a *Auction) CommitBid(bidder, digest string, deposit decimal.Decimal) error {
	a.mu.Lock()
	evt, err := a.commitBidLocked(bidder, digest, deposit)
	a.mu.Unlock()
	if err != nil {
		return err
	}
	a.events.Emit(evt)
	return nil
}

func (a *Auction) commitBidLocked(bidder, digest string, deposit decimal.Decimal) (Event, error) {
	if !a.initialized {
		return Event{}, fmt.Errorf("commit: %w", core.ErrNotInitialized)
	}
	if phase := a.phaseLocked(); phase != core.PhaseCommitment {
		return Event{}, fmt.Errorf("commit in %s phase: %w", phase, core.ErrWrongPhase)
	}
	if _, ok := a.bids[bidder]; ok {
		return Event{}, fmt.Errorf("commit for %s: %w", bidder, core.ErrDuplicateBid)
	}
	if bidder == "" || digest == "" {
		return Event{}, fmt.Errorf("commit: bidder and digest are required")
	}
	if !deposit.IsPositive() {
		return Event{}, fmt.Errorf("commit with deposit %s: %w", deposit, core.ErrInsufficientDeposit)
	}

	a.bids[bidder] = &core.SealedBid{
		Bidder:     bidder,
		Commitment: digest,
		Deposit:    deposit,
		Amount:     decimal.Zero,
		Seq:        len(a.bidOrder),
	}
	a.bidOrder = append(a.bidOrder, bidder)

	return newEvent(EventBidCommitted, a.clock(), func(evt *Event) {
		evt.Bidder = bidder
		evt.Digest = digest
		evt.Amount = &deposit
	}), nil
}

// RevealBid opens bidder's sealed bid. The revealed fields must hash to
// the stored commitment exactly; any mismatch fails the call and leaves
// the bid committed and un-revealed.
func (a *Auction) RevealBid(bidder string, itemIDs []core.ItemID, amount decimal.Decimal, nonce string) error {
	a.mu.Lock()
	evt, err := a.revealBidLocked(bidder, itemIDs, amount, nonce)
	a.mu.Unlock()
	if err != nil {
		return err
	}
	a.events.Emit(evt)
	return nil
}

func (a *Auction) revealBidLocked(bidder string, itemIDs []core.ItemID, amount decimal.Decimal, nonce string) (Event, error) {
	if !a.initialized {
		return Event{}, fmt.Errorf("reveal: %w", core.ErrNotInitialized)
	}
	if phase := a.phaseLocked(); phase != core.PhaseReveal {
		return Event{}, fmt.Errorf("reveal in %s phase: %w", phase, core.ErrWrongPhase)
	}
	bid, ok := a.bids[bidder]
	if !ok {
		return Event{}, fmt.Errorf("reveal for %s: %w", bidder, core.ErrBidNotFound)
	}
	if bid.Withdrawn {
		return Event{}, fmt.Errorf("reveal for %s: %w", bidder, core.ErrAlreadyWithdrawn)
	}
	if bid.Revealed {
		return Event{}, fmt.Errorf("reveal for %s: %w", bidder, core.ErrAlreadyRevealed)
	}
	if len(itemIDs) == 0 {
		return Event{}, fmt.Errorf("reveal: bundle is empty")
	}
	minTotal := decimal.Zero
	seen := make(map[core.ItemID]bool, len(itemIDs))
	for _, id := range itemIDs {
		if seen[id] {
			return Event{}, fmt.Errorf("reveal: item %d: %w", id, core.ErrDuplicateItemInBundle)
		}
		seen[id] = true
		item, ok := a.items[id]
		if !ok {
			return Event{}, fmt.Errorf("reveal: item %d: %w", id, core.ErrItemNotFound)
		}
		minTotal = minTotal.Add(item.MinBid)
	}
	if bid.Deposit.LessThan(amount) {
		return Event{}, fmt.Errorf("reveal: deposit %s does not cover bid %s: %w", bid.Deposit, amount, core.ErrInsufficientDeposit)
	}
	if amount.LessThanOrEqual(minTotal) {
		return Event{}, fmt.Errorf("reveal: bid %s does not exceed bundle minimum %s: %w", amount, minTotal, core.ErrInsufficientDeposit)
	}
	if core.ComputeBidCommitment(bidder, itemIDs, amount, nonce) != bid.Commitment {
		return Event{}, fmt.Errorf("reveal for %s: %w", bidder, core.ErrCommitmentMismatch)
	}

	bid.Bundle = append([]core.ItemID(nil), itemIDs...)
	bid.Amount = amount
	bid.Revealed = true

	return newEvent(EventBidRevealed, a.clock(), func(evt *Event) {
		evt.Bidder = bidder
		evt.ItemIDs = append([]core.ItemID(nil), itemIDs...)
		evt.Amount = &amount
	}), nil
}

// WithdrawBid retires bidder's committed bid during the commitment window
// and returns the full deposit. The slot becomes permanently terminal: no
// later commit, reveal, or allocation can touch it.
func (a *Auction) WithdrawBid(bidder string) error {
	a.mu.Lock()
	if !a.initialized {
		a.mu.Unlock()
		return fmt.Errorf("withdraw: %w", core.ErrNotInitialized)
	}
	if phase := a.phaseLocked(); phase != core.PhaseCommitment {
		a.mu.Unlock()
		return fmt.Errorf("withdraw in %s phase: %w", phase, core.ErrWrongPhase)
	}
	bid, ok := a.bids[bidder]
	if !ok {
		a.mu.Unlock()
		return fmt.Errorf("withdraw for %s: %w", bidder, core.ErrBidNotFound)
	}
	if bid.Withdrawn {
		a.mu.Unlock()
		return fmt.Errorf("withdraw for %s: %w", bidder, core.ErrAlreadyWithdrawn)
	}

	// Mutate before transferring so a reentrant call observes the terminal
	// slot and fails instead of draining the escrow twice.
	bid.Withdrawn = true
	deposit := bid.Deposit
	a.mu.Unlock()

	if err := a.treasury.Payout(bidder, deposit); err != nil {
		a.mu.Lock()
		bid.Withdrawn = false
		a.mu.Unlock()
		return fmt.Errorf("withdraw payout for %s: %w", bidder, err)
	}

	a.events.Emit(newEvent(EventBidWithdrawn, a.clock(), func(evt *Event) {
		evt.Bidder = bidder
		evt.Amount = &deposit
	}))
	return nil
}

// SolveWinnerDetermination runs the greedy value-density allocation exactly
// once, after the reveal window has closed. It marks winning bids, assigns
// item holders, and stores the immutable allocation result. No funds move
// here; settlement happens through RefundLosingBid.
func (a *Auction) SolveWinnerDetermination() (core.AllocationResult, error) {
	a.mu.Lock()
	result, evt, err := a.solveLocked()
	a.mu.Unlock()
	if err != nil {
		return core.AllocationResult{}, err
	}
	a.events.Emit(evt)
	return result, nil
}

func (a *Auction) solveLocked() (core.AllocationResult, Event, error) {
	if !a.initialized {
		return core.AllocationResult{}, Event{}, fmt.Errorf("solve: %w", core.ErrNotInitialized)
	}
	if a.solved {
		return core.AllocationResult{}, Event{}, fmt.Errorf("solve: %w", core.ErrAlreadySolved)
	}
	if phase := a.phaseLocked(); phase != core.PhaseClosed {
		return core.AllocationResult{}, Event{}, fmt.Errorf("solve in %s phase: %w", phase, core.ErrWrongPhase)
	}

	// Snapshot eligible bids in commit order; the solver's fixed sort makes
	// the outcome independent of that order anyway.
	eligible := make([]core.EligibleBid, 0, len(a.bidOrder))
	for _, bidder := range a.bidOrder {
		bid := a.bids[bidder]
		if !bid.Revealed || bid.Withdrawn {
			continue
		}
		eligible = append(eligible, core.EligibleBid{
			Bidder: bid.Bidder,
			Bundle: bid.Bundle,
			Amount: bid.Amount,
		})
	}

	outcome := core.SolveGreedy(eligible)

	for id, winner := range outcome.WonBy {
		if err := a.allocateLocked(id, winner); err != nil {
			return core.AllocationResult{}, Event{}, fmt.Errorf("solve: %w", err)
		}
	}
	for _, winner := range outcome.Winners {
		a.bids[winner].Won = true
	}

	a.result = &core.AllocationResult{
		Winners:      outcome.Winners,
		TotalRevenue: outcome.TotalRevenue,
	}
	a.solved = true

	evt := newEvent(EventAuctionEnded, a.clock(), func(evt *Event) {
		evt.Winners = append([]string(nil), outcome.Winners...)
		evt.TotalRevenue = &outcome.TotalRevenue
	})
	return a.resultCopyLocked(), evt, nil
}

// allocateLocked sets an item's holder. An item that already left the
// owner's hands cannot be allocated again.
func (a *Auction) allocateLocked(id core.ItemID, winner string) error {
	item, ok := a.items[id]
	if !ok {
		return fmt.Errorf("allocate item %d: %w", id, core.ErrItemNotFound)
	}
	if item.Holder != a.owner {
		return fmt.Errorf("allocate item %d: already held by %s", id, item.Holder)
	}
	item.Holder = winner
	return nil
}

// RefundLosingBid releases the escrowed deposit of a non-winning bid after
// winner determination. Callable by anyone on behalf of any bidder; all
// eligibility is decided by the target slot's stored state. A bid that was
// committed but never revealed is non-winning and qualifies too. Second
// calls fail and never re-transfer.
func (a *Auction) RefundLosingBid(bidder string) error {
	a.mu.Lock()
	if !a.solved {
		a.mu.Unlock()
		return fmt.Errorf("refund: %w", core.ErrNotSolved)
	}
	bid, ok := a.bids[bidder]
	if !ok {
		a.mu.Unlock()
		return fmt.Errorf("refund for %s: %w", bidder, core.ErrBidNotFound)
	}
	if bid.Withdrawn || bid.Won {
		a.mu.Unlock()
		return fmt.Errorf("refund for %s: %w", bidder, core.ErrNotEligibleForRefund)
	}
	if bid.Refunded {
		a.mu.Unlock()
		return fmt.Errorf("refund for %s: %w", bidder, core.ErrAlreadyRefunded)
	}

	// Same mutate-then-transfer discipline as WithdrawBid.
	bid.Refunded = true
	deposit := bid.Deposit
	a.mu.Unlock()

	if err := a.treasury.Payout(bidder, deposit); err != nil {
		a.mu.Lock()
		bid.Refunded = false
		a.mu.Unlock()
		return fmt.Errorf("refund payout for %s: %w", bidder, err)
	}
	return nil
}

// Info returns the derived read-only auction summary.
func (a *Auction) Info() (core.AuctionInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return core.AuctionInfo{}, fmt.Errorf("info: %w", core.ErrNotInitialized)
	}
	return core.AuctionInfo{
		CommitEnd: a.commitEnd,
		RevealEnd: a.revealEnd,
		ItemCount: len(a.itemOrder),
		BidCount:  len(a.bidOrder),
		Solved:    a.solved,
	}, nil
}

// Items returns the full item catalog in initialization order.
func (a *Auction) Items() ([]core.Item, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return nil, fmt.Errorf("items: %w", core.ErrNotInitialized)
	}
	items := make([]core.Item, 0, len(a.itemOrder))
	for _, id := range a.itemOrder {
		items = append(items, *a.items[id])
	}
	return items, nil
}

// Item returns a single catalog entry by id.
func (a *Auction) Item(id core.ItemID) (core.Item, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return core.Item{}, fmt.Errorf("item: %w", core.ErrNotInitialized)
	}
	item, ok := a.items[id]
	if !ok {
		return core.Item{}, fmt.Errorf("item %d: %w", id, core.ErrItemNotFound)
	}
	return *item, nil
}

// Bid returns the bid slot for a bidder identity.
func (a *Auction) Bid(bidder string) (core.SealedBid, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	bid, ok := a.bids[bidder]
	if !ok {
		return core.SealedBid{}, fmt.Errorf("bid for %s: %w", bidder, core.ErrBidNotFound)
	}
	return copyBid(bid), nil
}

// Allocation returns the winner-determination result; it fails until
// SolveWinnerDetermination has run.
func (a *Auction) Allocation() (core.AllocationResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.solved {
		return core.AllocationResult{}, fmt.Errorf("allocation: %w", core.ErrNotSolved)
	}
	return a.resultCopyLocked(), nil
}

// WinningBid returns the bid that won the given item. It fails before
// solving and for items no winning bundle covered.
func (a *Auction) WinningBid(id core.ItemID) (core.SealedBid, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.solved {
		return core.SealedBid{}, fmt.Errorf("winning bid: %w", core.ErrNotSolved)
	}
	item, ok := a.items[id]
	if !ok {
		return core.SealedBid{}, fmt.Errorf("winning bid for item %d: %w", id, core.ErrItemNotFound)
	}
	if item.Holder == a.owner {
		return core.SealedBid{}, fmt.Errorf("item %d is unallocated: %w", id, core.ErrBidNotFound)
	}
	return copyBid(a.bids[item.Holder]), nil
}

func (a *Auction) resultCopyLocked() core.AllocationResult {
	return core.AllocationResult{
		Winners:      append([]string(nil), a.result.Winners...),
		TotalRevenue: a.result.TotalRevenue,
	}
}

func copyBid(bid *core.SealedBid) core.SealedBid {
	out := *bid
	out.Bundle = append([]core.ItemID(nil), bid.Bundle...)
	return out
}
