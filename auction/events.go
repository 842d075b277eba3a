package auction

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/bundleauction/core"
)

// EventType names the notification kinds emitted at the auction boundary.
type EventType string

const (
	EventAuctionStarted EventType = "auction_started"
	EventBidCommitted   EventType = "bid_committed"
	EventBidRevealed    EventType = "bid_revealed"
	EventBidWithdrawn   EventType = "bid_withdrawn"
	EventAuctionEnded   EventType = "auction_ended"
)

// Event is one boundary notification. Only the fields relevant to the
// event type are populated.
type Event struct {
	ID   string    `json:"id"`
	Type EventType `json:"type"`
	Time time.Time `json:"time"`

	Bidder       string           `json:"bidder,omitempty"`
	Digest       string           `json:"digest,omitempty"`
	ItemIDs      []core.ItemID    `json:"item_ids,omitempty"`
	Amount       *decimal.Decimal `json:"amount,omitempty"`
	CommitEnd    *time.Time       `json:"commit_end,omitempty"`
	RevealEnd    *time.Time       `json:"reveal_end,omitempty"`
	Winners      []string         `json:"winners,omitempty"`
	TotalRevenue *decimal.Decimal `json:"total_revenue,omitempty"`
}

// EventSink receives boundary notifications. Events are emitted after the
// engine releases its lock, so a sink may read back from the emitting
// auction.
type EventSink interface {
	Emit(evt Event)
}

func newEvent(typ EventType, at time.Time, fill func(*Event)) Event {
	evt := Event{
		ID:   uuid.NewString(),
		Type: typ,
		Time: at,
	}
	if fill != nil {
		fill(&evt)
	}
	return evt
}

type discardEvents struct{}

func (discardEvents) Emit(Event) {}

// MemoryEvents buffers emitted events in order. The daemon exposes its
// contents through the read-only event feed.
type MemoryEvents struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryEvents creates an empty in-memory event feed.
func NewMemoryEvents() *MemoryEvents {
	return &MemoryEvents{}
}

// Emit appends evt to the feed.
func (m *MemoryEvents) Emit(evt Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
}

// Events returns a copy of the feed in emission order.
func (m *MemoryEvents) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}
