package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/ignite/loyalty-core/internal/domain"
)

const profileColumns = `client_id, organization_id,
	COALESCE(birth_month, 0), COALESCE(birth_day, 0),
	purchase_count, lifetime_value, last_purchase_at,
	COALESCE(avg_purchase_gap_days, 0)`

// ProfileRepo reads the client profile table maintained by the sale
// ingestion flow.
type ProfileRepo struct{ db *sql.DB }

// NewProfileRepo creates a Postgres-backed profile repository.
func NewProfileRepo(db *sql.DB) *ProfileRepo { return &ProfileRepo{db: db} }

func scanProfile(scan func(...any) error) (*domain.ClientProfile, error) {
	var p domain.ClientProfile
	err := scan(&p.ClientID, &p.OrganizationID, &p.BirthMonth, &p.BirthDay,
		&p.PurchaseCount, &p.LifetimeValue, &p.LastPurchaseAt, &p.AvgPurchaseGapDays)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Get returns a client's profile, or nil when the client is unknown.
func (r *ProfileRepo) Get(ctx context.Context, clientID uuid.UUID) (*domain.ClientProfile, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM loyalty_clients WHERE client_id = $1`, clientID)
	p, err := scanProfile(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// ListByBirthday returns the organization's active clients born on the
// given month/day.
func (r *ProfileRepo) ListByBirthday(ctx context.Context, orgID uuid.UUID, month, day int) ([]domain.ClientProfile, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+profileColumns+`
		FROM loyalty_clients
		WHERE organization_id = $1 AND birth_month = $2 AND birth_day = $3 AND active = TRUE
	`, orgID, month, day)
	if err != nil {
		return nil, fmt.Errorf("list by birthday: %w", err)
	}
	return collectProfiles(rows)
}

// ListActive returns the organization's contactable clients.
func (r *ProfileRepo) ListActive(ctx context.Context, orgID uuid.UUID) ([]domain.ClientProfile, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+profileColumns+`
		FROM loyalty_clients
		WHERE organization_id = $1 AND active = TRUE
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list active clients: %w", err)
	}
	return collectProfiles(rows)
}

func collectProfiles(rows *sql.Rows) ([]domain.ClientProfile, error) {
	defer rows.Close()
	var out []domain.ClientProfile
	for rows.Next() {
		p, err := scanProfile(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
