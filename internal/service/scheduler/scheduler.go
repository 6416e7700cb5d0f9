// Package scheduler materializes approved trigger matches into durable,
// time-bucketed interaction rows.
//
// The frequency re-check and the insert happen inside one repository
// transaction, so the guard→insert sequence is race-free even when the
// same event arrives twice concurrently. Delivery is the dispatcher's
// job; the optional immediate hook is a fast path, never a requirement.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/loyalty-core/internal/domain"
)

// Repository is the data access contract for interactions.
type Repository interface {
	// CreateExclusive inserts the interaction iff the recurrence rule still
	// passes when re-evaluated inside the transaction, under a lock that
	// serializes concurrent attempts on the same (client, campaign) pair.
	// Returns false (and no error) when the pair is frequency-capped.
	CreateExclusive(ctx context.Context, in *domain.Interaction, r domain.Recurrence) (bool, error)
}

// Metadata carries trigger context onto the interaction row.
type Metadata struct {
	TriggerAmount *int64
}

// Scheduler turns (client, campaign) matches into interaction rows.
type Scheduler struct {
	repo Repository

	// OnImmediate, when set, is invoked after commit for interactions whose
	// send offset is zero, handing them straight to delivery instead of
	// waiting for the dispatcher's next pass.
	OnImmediate func(ctx context.Context, in *domain.Interaction)
}

// NewScheduler creates a scheduler backed by the given repository.
func NewScheduler(repo Repository) *Scheduler {
	return &Scheduler{repo: repo}
}

// Schedule persists an interaction for the match. Returns (nil, false, nil)
// when the frequency guard rejected the pair inside the transaction.
func (s *Scheduler) Schedule(ctx context.Context, clientID uuid.UUID, c domain.Campaign, meta Metadata) (*domain.Interaction, bool, error) {
	now := time.Now()
	due, block := DueAt(c.SendOffset, now)

	campaignID := c.ID
	in := &domain.Interaction{
		ID:             uuid.New(),
		ClientID:       clientID,
		CampaignID:     &campaignID,
		ScheduledDate:  due,
		TimeBlock:      block,
		DeliveryStatus: domain.DeliveryPending,
		TriggerAmount:  meta.TriggerAmount,
		CreatedAt:      now,
	}

	created, err := s.repo.CreateExclusive(ctx, in, c.Recurrence)
	if err != nil {
		return nil, false, fmt.Errorf("create interaction: %w", err)
	}
	if !created {
		// Frequency-capped is a normal outcome, no retry.
		log.Printf("[scheduler.Scheduler] frequency capped client=%s campaign=%s", clientID, c.ID)
		return nil, false, nil
	}

	if c.SendOffset.Immediate() && s.OnImmediate != nil {
		s.OnImmediate(ctx, in)
	}
	return in, true, nil
}

// DueAt computes when an interaction becomes due: now shifted by the
// offset, then snapped forward to the offset's fixed time-of-day block
// when one is configured. The returned block string is what the
// dispatcher's time-bucketed query matches on.
func DueAt(o domain.SendOffset, now time.Time) (time.Time, string) {
	due := now
	if o.Value > 0 {
		due = now.Add(o.Unit.Duration(o.Value))
	}
	if o.TimeBlock == "" {
		return due, due.Format("15:04")
	}

	var hh, mm int
	if _, err := fmt.Sscanf(o.TimeBlock, "%d:%d", &hh, &mm); err != nil {
		return due, due.Format("15:04")
	}
	snapped := time.Date(due.Year(), due.Month(), due.Day(), hh, mm, 0, 0, due.Location())
	if snapped.Before(due) {
		snapped = snapped.AddDate(0, 0, 1)
	}
	return snapped, o.TimeBlock
}
