// Package frequency implements the per-(client, campaign) frequency guard.
//
// The guard is advisory on its own: the scheduler re-checks the same rule
// inside the transaction that inserts the interaction, so two concurrent
// events cannot both slip past it. A capped candidate is a normal outcome,
// not an error.
package frequency

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/loyalty-core/internal/domain"
)

// InteractionSource answers the only question the guard asks: when was
// this (client, campaign) pair last contacted?
type InteractionSource interface {
	// LastInteraction returns the creation time of the most recent
	// interaction for the pair, or nil when none exists.
	LastInteraction(ctx context.Context, clientID, campaignID uuid.UUID) (*time.Time, error)
}

// Decision is the guard's verdict for one candidate.
type Decision struct {
	Allowed bool
	Reason  string
}

// Guard applies campaign recurrence policies.
type Guard struct {
	interactions InteractionSource
}

// NewGuard creates a frequency guard over the given interaction source.
func NewGuard(interactions InteractionSource) *Guard {
	return &Guard{interactions: interactions}
}

// Allow decides whether the campaign may contact the client now.
//
//   - recurrence disallowed: any prior interaction blocks, regardless of age
//   - recurrence allowed with interval: an interaction newer than
//     now-interval blocks
//   - otherwise: approved
func (g *Guard) Allow(ctx context.Context, clientID uuid.UUID, c domain.Campaign, now time.Time) (Decision, error) {
	last, err := g.interactions.LastInteraction(ctx, clientID, c.ID)
	if err != nil {
		return Decision{}, fmt.Errorf("last interaction: %w", err)
	}
	return Evaluate(c.Recurrence, last, now), nil
}

// Evaluate is the pure recurrence rule, shared with the scheduler's
// in-transaction re-check.
func Evaluate(r domain.Recurrence, last *time.Time, now time.Time) Decision {
	if last == nil {
		return Decision{Allowed: true}
	}
	if !r.AllowRepeat {
		return Decision{Reason: "campaign does not repeat"}
	}
	interval := r.Interval()
	if interval > 0 && last.After(now.Add(-interval)) {
		return Decision{Reason: fmt.Sprintf("last contact %s ago, interval %s", now.Sub(*last).Round(time.Minute), interval)}
	}
	return Decision{Allowed: true}
}
