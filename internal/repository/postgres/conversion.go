package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/loyalty-core/internal/domain"
	"github.com/ignite/loyalty-core/internal/service/attribution"
)

// ConversionRepo implements attribution.Repository and the conversion read
// endpoints.
type ConversionRepo struct{ db *sql.DB }

// NewConversionRepo creates a Postgres-backed conversion repository.
func NewConversionRepo(db *sql.DB) *ConversionRepo { return &ConversionRepo{db: db} }

// Candidates joins unconsumed executed interactions with their campaign's
// attribution configuration. The widest window bound is applied in SQL;
// the engine re-applies each campaign's own window.
func (r *ConversionRepo) Candidates(ctx context.Context, clientID uuid.UUID, saleAt time.Time) ([]attribution.Candidate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT i.id, i.client_id, i.campaign_id, i.scheduled_date, i.time_block,
		       i.executed_at, i.delivery_status, i.consumed_by_sale_id, i.trigger_amount,
		       i.provider_message_id, i.created_at,
		       c.id, c.organization_id, c.attribution_model, c.attribution_window_days,
		       c.attribution_eligible
		FROM loyalty_interactions i
		JOIN loyalty_campaigns c ON c.id = i.campaign_id
		WHERE i.client_id = $1
		  AND i.executed_at IS NOT NULL
		  AND i.consumed_by_sale_id IS NULL
		  AND c.attribution_eligible = TRUE
		  AND i.created_at <= $2
		  AND i.created_at >= $2 - (c.attribution_window_days + 1) * INTERVAL '1 day'
	`, clientID, saleAt)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	var out []attribution.Candidate
	for rows.Next() {
		var cand attribution.Candidate
		in := &cand.Interaction
		c := &cand.Campaign
		if err := rows.Scan(&in.ID, &in.ClientID, &in.CampaignID, &in.ScheduledDate, &in.TimeBlock,
			&in.ExecutedAt, &in.DeliveryStatus, &in.ConsumedBySaleID, &in.TriggerAmount,
			&in.ProviderMessageID, &in.CreatedAt,
			&c.ID, &c.OrganizationID, &c.AttributionModel, &c.AttributionWindow,
			&c.AttributionEligible); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		out = append(out, cand)
	}
	return out, rows.Err()
}

// Commit writes the conversion rows and consumes their source interactions
// in one transaction. A consume that affects zero rows means a concurrent
// sale won the interaction; the whole commit rolls back.
func (r *ConversionRepo) Commit(ctx context.Context, conversions []domain.CampaignConversion, consumed []uuid.UUID, saleID uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, id := range consumed {
		res, err := tx.ExecContext(ctx, `
			UPDATE loyalty_interactions
			SET consumed_by_sale_id = $1
			WHERE id = $2 AND consumed_by_sale_id IS NULL
		`, saleID, id)
		if err != nil {
			return fmt.Errorf("consume interaction %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return fmt.Errorf("interaction %s already consumed", id)
		}
	}

	for _, cv := range conversions {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO loyalty_conversions
				(id, sale_id, interaction_id, campaign_id, client_id,
				 time_to_convert_seconds, revenue, classification, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, cv.ID, cv.SaleID, cv.InteractionID, cv.CampaignID, cv.ClientID,
			int64(cv.TimeToConvert.Seconds()), cv.Revenue, cv.Class, cv.CreatedAt); err != nil {
			return fmt.Errorf("insert conversion: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListByCampaign returns a campaign's conversions, newest first.
func (r *ConversionRepo) ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit int) ([]domain.CampaignConversion, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, sale_id, interaction_id, campaign_id, client_id,
		       time_to_convert_seconds, revenue, classification, created_at
		FROM loyalty_conversions
		WHERE campaign_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversions: %w", err)
	}
	defer rows.Close()

	var out []domain.CampaignConversion
	for rows.Next() {
		var cv domain.CampaignConversion
		var seconds int64
		if err := rows.Scan(&cv.ID, &cv.SaleID, &cv.InteractionID, &cv.CampaignID, &cv.ClientID,
			&seconds, &cv.Revenue, &cv.Class, &cv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversion: %w", err)
		}
		cv.TimeToConvert = time.Duration(seconds) * time.Second
		out = append(out, cv)
	}
	return out, rows.Err()
}

// RevenueByCampaign sums attributed revenue per campaign for reporting.
func (r *ConversionRepo) RevenueByCampaign(ctx context.Context, orgID uuid.UUID) (map[uuid.UUID]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT cv.campaign_id, SUM(cv.revenue)
		FROM loyalty_conversions cv
		JOIN loyalty_campaigns c ON c.id = cv.campaign_id
		WHERE c.organization_id = $1
		GROUP BY cv.campaign_id
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("revenue by campaign: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]int64)
	for rows.Next() {
		var id uuid.UUID
		var total int64
		if err := rows.Scan(&id, &total); err != nil {
			return nil, fmt.Errorf("scan revenue: %w", err)
		}
		out[id] = total
	}
	return out, rows.Err()
}
