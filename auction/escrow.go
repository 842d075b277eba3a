package auction

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Treasury is the destination for escrow releases. The auction calls it
// exactly once per deposit, after the releasing disposition flag has been
// set on the bid slot.
type Treasury interface {
	Payout(recipient string, amount decimal.Decimal) error
}

// Payout is one recorded escrow release.
type Payout struct {
	Recipient string
	Amount    decimal.Decimal
	At        time.Time
}

// MemoryTreasury records payouts in memory. It is the default treasury and
// the one the tests inspect to pin the at-most-once release property.
type MemoryTreasury struct {
	mu      sync.Mutex
	payouts []Payout
}

// NewMemoryTreasury creates an empty in-memory treasury.
func NewMemoryTreasury() *MemoryTreasury {
	return &MemoryTreasury{}
}

// Payout records a release of escrowed funds to recipient.
func (tr *MemoryTreasury) Payout(recipient string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("payout to %s: non-positive amount %s", recipient, amount)
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.payouts = append(tr.payouts, Payout{
		Recipient: recipient,
		Amount:    amount,
		At:        time.Now(),
	})
	return nil
}

// Payouts returns a copy of all recorded payouts in order.
func (tr *MemoryTreasury) Payouts() []Payout {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]Payout(nil), tr.payouts...)
}

// TotalPaid sums every payout made to recipient.
func (tr *MemoryTreasury) TotalPaid(recipient string) decimal.Decimal {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	total := decimal.Zero
	for _, p := range tr.payouts {
		if p.Recipient == recipient {
			total = total.Add(p.Amount)
		}
	}
	return total
}
