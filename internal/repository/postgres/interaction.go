package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/loyalty-core/internal/domain"
	"github.com/ignite/loyalty-core/internal/service/frequency"
)

// InteractionRepo implements frequency.InteractionSource, the scheduler's
// repository and the dispatcher's queue queries.
type InteractionRepo struct{ db *sql.DB }

// NewInteractionRepo creates a Postgres-backed interaction repository.
func NewInteractionRepo(db *sql.DB) *InteractionRepo { return &InteractionRepo{db: db} }

const interactionColumns = `
	id, client_id, campaign_id, scheduled_date, time_block, executed_at,
	delivery_status, consumed_by_sale_id, trigger_amount, provider_message_id, created_at`

func scanInteraction(scan func(dest ...any) error) (*domain.Interaction, error) {
	var in domain.Interaction
	err := scan(&in.ID, &in.ClientID, &in.CampaignID, &in.ScheduledDate, &in.TimeBlock,
		&in.ExecutedAt, &in.DeliveryStatus, &in.ConsumedBySaleID, &in.TriggerAmount,
		&in.ProviderMessageID, &in.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &in, nil
}

// LastInteraction returns the most recent creation time for the pair,
// served by the (client_id, campaign_id, created_at) index.
func (r *InteractionRepo) LastInteraction(ctx context.Context, clientID, campaignID uuid.UUID) (*time.Time, error) {
	var last time.Time
	err := r.db.QueryRowContext(ctx, `
		SELECT created_at FROM loyalty_interactions
		WHERE client_id = $1 AND campaign_id = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, clientID, campaignID).Scan(&last)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last interaction: %w", err)
	}
	return &last, nil
}

// pairLockID derives the advisory lock key for a (client, campaign) pair.
func pairLockID(clientID, campaignID uuid.UUID) int64 {
	h := fnv.New64a()
	h.Write(clientID[:])
	h.Write(campaignID[:])
	return int64(h.Sum64())
}

// CreateExclusive re-evaluates the recurrence rule and inserts the
// interaction inside one transaction, under a pg_advisory_xact_lock on the
// (client, campaign) pair. Two concurrent qualifying events therefore
// cannot both schedule: the second waits on the lock and then sees the
// first's row.
func (r *InteractionRepo) CreateExclusive(ctx context.Context, in *domain.Interaction, rec domain.Recurrence) (bool, error) {
	if in.CampaignID == nil {
		return false, fmt.Errorf("interaction has no campaign")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, pairLockID(in.ClientID, *in.CampaignID)); err != nil {
		return false, fmt.Errorf("pair lock: %w", err)
	}

	var last *time.Time
	var lastAt time.Time
	err = tx.QueryRowContext(ctx, `
		SELECT created_at FROM loyalty_interactions
		WHERE client_id = $1 AND campaign_id = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, in.ClientID, *in.CampaignID).Scan(&lastAt)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return false, fmt.Errorf("re-check last interaction: %w", err)
	default:
		last = &lastAt
	}

	if d := frequency.Evaluate(rec, last, in.CreatedAt); !d.Allowed {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO loyalty_interactions
			(id, client_id, campaign_id, scheduled_date, time_block, delivery_status,
			 trigger_amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, in.ID, in.ClientID, in.CampaignID, in.ScheduledDate, in.TimeBlock,
		in.DeliveryStatus, in.TriggerAmount, in.CreatedAt); err != nil {
		return false, fmt.Errorf("insert interaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// ListDue returns unexecuted interactions due at or before now, for the
// dispatcher. Served by the partial index on (scheduled_date, time_block)
// WHERE executed_at IS NULL.
func (r *InteractionRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Interaction, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+interactionColumns+`
		FROM loyalty_interactions
		WHERE executed_at IS NULL AND scheduled_date <= $1
		ORDER BY scheduled_date ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due: %w", err)
	}
	defer rows.Close()

	var out []domain.Interaction
	for rows.Next() {
		in, err := scanInteraction(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		out = append(out, *in)
	}
	return out, rows.Err()
}

// MarkExecuted sets the idempotency gate after the transport accepted the
// message. The executed_at IS NULL condition makes redundant dispatcher
// passes harmless: only one marker ever lands.
func (r *InteractionRepo) MarkExecuted(ctx context.Context, id uuid.UUID, providerMessageID string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE loyalty_interactions
		SET executed_at = $1, delivery_status = 'sent', provider_message_id = NULLIF($2, '')
		WHERE id = $3 AND executed_at IS NULL
	`, at, providerMessageID, id)
	if err != nil {
		return false, fmt.Errorf("mark executed: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// MarkFailed records a delivery failure, leaving executed_at null so the
// next dispatcher pass retries.
func (r *InteractionRepo) MarkFailed(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE loyalty_interactions
		SET delivery_status = 'failed'
		WHERE id = $1 AND executed_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// List returns interactions filtered by optional client and campaign.
func (r *InteractionRepo) List(ctx context.Context, clientID, campaignID *uuid.UUID, limit int) ([]domain.Interaction, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + interactionColumns + ` FROM loyalty_interactions WHERE 1=1`
	args := []any{}
	idx := 1
	if clientID != nil {
		q += fmt.Sprintf(" AND client_id = $%d", idx)
		args = append(args, *clientID)
		idx++
	}
	if campaignID != nil {
		q += fmt.Sprintf(" AND campaign_id = $%d", idx)
		args = append(args, *campaignID)
		idx++
	}
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", idx)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	defer rows.Close()

	var out []domain.Interaction
	for rows.Next() {
		in, err := scanInteraction(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		out = append(out, *in)
	}
	return out, rows.Err()
}
