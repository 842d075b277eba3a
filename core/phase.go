package core

import "time"

// Phase is the auction's lifecycle phase, derived purely from time.
type Phase string

const (
	// PhaseSetup is the phase before initialization has happened.
	PhaseSetup Phase = "setup"
	// PhaseCommitment is the window in which sealed bids may be committed
	// or withdrawn.
	PhaseCommitment Phase = "commitment"
	// PhaseReveal is the window in which committed bids may be revealed.
	PhaseReveal Phase = "reveal"
	// PhaseClosed is everything after the reveal window; winner
	// determination and refunds happen here.
	PhaseClosed Phase = "closed"
)

// PhaseAt derives the phase for time t from the two fixed phase bounds.
// Both bounds are exclusive upper bounds: t == commitEnd is already the
// reveal phase and t == revealEnd is already closed.
func PhaseAt(commitEnd, revealEnd, t time.Time) Phase {
	if t.Before(commitEnd) {
		return PhaseCommitment
	}
	if t.Before(revealEnd) {
		return PhaseReveal
	}
	return PhaseClosed
}
