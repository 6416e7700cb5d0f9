package trigger

import (
	"context"

	"github.com/google/uuid"
	"github.com/ignite/loyalty-core/internal/domain"
)

// CampaignSource provides active campaigns indexed by (organization,
// trigger type). Implementations must not scan all campaigns per event;
// the Postgres repository backs this with a composite index and the
// Cache decorator keeps hot organizations out of the database entirely.
type CampaignSource interface {
	// ListActive returns active campaigns of the organization whose trigger
	// type is one of the given types.
	ListActive(ctx context.Context, orgID uuid.UUID, types []domain.TriggerType) ([]domain.Campaign, error)
}

// ProfileSource provides the client read models needed by clock-tick
// fan-out triggers (birthday, recurring schedule).
type ProfileSource interface {
	// Get returns a client's profile, or nil when unknown.
	Get(ctx context.Context, clientID uuid.UUID) (*domain.ClientProfile, error)

	// ListByBirthday returns clients of the organization whose birthday
	// (month/day) matches.
	ListByBirthday(ctx context.Context, orgID uuid.UUID, month, day int) ([]domain.ClientProfile, error)

	// ListActive returns the organization's contactable clients, for
	// recurring-schedule fan-out.
	ListActive(ctx context.Context, orgID uuid.UUID) ([]domain.ClientProfile, error)
}
