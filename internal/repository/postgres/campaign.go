package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/ignite/loyalty-core/internal/domain"
	"github.com/lib/pq"
)

// CampaignRepo implements trigger.CampaignSource and the read endpoints,
// plus the minimal write path that keeps the cache invalidation honest.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

const campaignColumns = `
	id, organization_id, name, active, trigger_type, trigger_params,
	allow_repeat, interval_value, COALESCE(interval_unit, 'days'),
	send_offset_value, COALESCE(send_offset_unit, 'hours'), COALESCE(send_time_block, ''),
	attribution_model, attribution_window_days, attribution_eligible,
	reward, COALESCE(message_template, ''), COALESCE(template_id, ''),
	created_at, updated_at`

func scanCampaign(scan func(dest ...any) error) (*domain.Campaign, error) {
	var c domain.Campaign
	var rawParams, rawReward []byte
	err := scan(
		&c.ID, &c.OrganizationID, &c.Name, &c.Active, &c.TriggerType, &rawParams,
		&c.Recurrence.AllowRepeat, &c.Recurrence.IntervalValue, &c.Recurrence.IntervalUnit,
		&c.SendOffset.Value, &c.SendOffset.Unit, &c.SendOffset.TimeBlock,
		&c.AttributionModel, &c.AttributionWindow, &c.AttributionEligible,
		&rawReward, &c.MessageTemplate, &c.TemplateID,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Params, err = domain.DecodeTriggerParams(c.TriggerType, rawParams)
	if err != nil {
		return nil, fmt.Errorf("campaign %s: %w", c.ID, err)
	}
	if len(rawReward) > 0 && string(rawReward) != "null" {
		var rw domain.Reward
		if err := json.Unmarshal(rawReward, &rw); err != nil {
			return nil, fmt.Errorf("campaign %s reward: %w", c.ID, err)
		}
		c.Reward = &rw
	}
	return &c, nil
}

// ListActive returns the organization's active campaigns for the given
// trigger types via the (organization_id, trigger_type) index — one
// indexed query per event, never a full scan.
func (r *CampaignRepo) ListActive(ctx context.Context, orgID uuid.UUID, types []domain.TriggerType) ([]domain.Campaign, error) {
	typeStrs := make([]string, len(types))
	for i, t := range types {
		typeStrs[i] = string(t)
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+campaignColumns+`
		FROM loyalty_campaigns
		WHERE organization_id = $1 AND trigger_type = ANY($2) AND active = TRUE
	`, orgID, pq.Array(typeStrs))
	if err != nil {
		return nil, fmt.Errorf("list active campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows.Scan)
		if err != nil {
			// A single malformed campaign must not hide the others.
			log.Printf("[postgres.CampaignRepo] skip campaign: %v", err)
			continue
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *CampaignRepo) Get(ctx context.Context, orgID, id uuid.UUID) (*domain.Campaign, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+campaignColumns+`
		FROM loyalty_campaigns
		WHERE id = $1 AND organization_id = $2
	`, id, orgID)
	c, err := scanCampaign(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

// GetByID looks a campaign up without an organization scope, for the
// dispatcher resolving an interaction's template.
func (r *CampaignRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+campaignColumns+`
		FROM loyalty_campaigns
		WHERE id = $1
	`, id)
	c, err := scanCampaign(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

// Organizations returns the distinct organizations holding active
// campaigns, for the daily clock tick fan-out.
func (r *CampaignRepo) Organizations(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT organization_id FROM loyalty_campaigns WHERE active = TRUE`)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *CampaignRepo) List(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]domain.Campaign, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+campaignColumns+`
		FROM loyalty_campaigns
		WHERE organization_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, orgID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// Create inserts a campaign. Exists so the admin boundary has somewhere to
// land and so cache invalidation has a write path to hook.
func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	rawParams, err := domain.EncodeTriggerParams(c.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	var rawReward []byte
	if c.Reward != nil {
		if rawReward, err = json.Marshal(c.Reward); err != nil {
			return fmt.Errorf("encode reward: %w", err)
		}
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO loyalty_campaigns
			(id, organization_id, name, active, trigger_type, trigger_params,
			 allow_repeat, interval_value, interval_unit,
			 send_offset_value, send_offset_unit, send_time_block,
			 attribution_model, attribution_window_days, attribution_eligible,
			 reward, message_template, template_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	`, c.ID, c.OrganizationID, c.Name, c.Active, c.TriggerType, rawParams,
		c.Recurrence.AllowRepeat, c.Recurrence.IntervalValue, c.Recurrence.IntervalUnit,
		c.SendOffset.Value, c.SendOffset.Unit, c.SendOffset.TimeBlock,
		c.AttributionModel, c.AttributionWindow, c.AttributionEligible,
		rawReward, c.MessageTemplate, c.TemplateID)
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

// ProgramRepo implements pipeline.ProgramSource.
type ProgramRepo struct{ db *sql.DB }

// NewProgramRepo creates a Postgres-backed program repository.
func NewProgramRepo(db *sql.DB) *ProgramRepo { return &ProgramRepo{db: db} }

// GetActive returns the organization's active cashback program, or nil
// when none is configured.
func (r *ProgramRepo) GetActive(ctx context.Context, orgID uuid.UUID) (*domain.Program, error) {
	var p domain.Program
	err := r.db.QueryRowContext(ctx, `
		SELECT id, organization_id, name, active, percent, expiry_days, created_at, updated_at
		FROM loyalty_programs
		WHERE organization_id = $1 AND active = TRUE
		ORDER BY created_at DESC
		LIMIT 1
	`, orgID).Scan(&p.ID, &p.OrganizationID, &p.Name, &p.Active, &p.Percent, &p.ExpiryDays, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active program: %w", err)
	}
	return &p, nil
}
