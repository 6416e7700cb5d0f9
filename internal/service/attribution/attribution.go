// Package attribution links sales back to the campaign interactions that
// caused them.
//
// On each new sale the engine collects the client's prior attribution-
// eligible interactions still inside their campaign's window, selects the
// source per the campaign's model, classifies the conversion from the
// client's purchase rhythm, and persists the conversion rows together with
// the consumed-interaction marks in one transaction.
package attribution

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/loyalty-core/internal/domain"
)

// DefaultDormancyDays is the gap after which a returning buyer counts as
// reactivated rather than regular.
const DefaultDormancyDays = 90

// lateWindowShare marks the tail of the attribution window; conversions
// landing there classify as ATRASADA.
const lateWindowShare = 0.8

// Candidate pairs an interaction with its owning campaign's attribution
// configuration.
type Candidate struct {
	Interaction domain.Interaction
	Campaign    domain.Campaign
}

// SaleEvent is the attribution engine's view of a new sale. PurchaseCount
// includes this sale; PrevPurchaseAt and AvgGapDays describe the history
// before it.
type SaleEvent struct {
	SaleID         uuid.UUID
	ClientID       uuid.UUID
	OrganizationID uuid.UUID
	At             time.Time
	Revenue        int64
	PurchaseCount  int
	PrevPurchaseAt *time.Time
	AvgGapDays     float64
}

// Repository is the data access contract for attribution.
type Repository interface {
	// Candidates returns the client's delivered, attribution-eligible,
	// unconsumed interactions whose reference time falls before the sale, newest
	// first is not required; the engine orders them itself.
	Candidates(ctx context.Context, clientID uuid.UUID, saleAt time.Time) ([]Candidate, error)

	// Commit persists the conversions and marks the consumed interactions
	// with the sale id, atomically. An interaction already consumed by a
	// concurrent sale must fail the whole commit.
	Commit(ctx context.Context, conversions []domain.CampaignConversion, consumed []uuid.UUID, saleID uuid.UUID) error
}

// Engine decides and records attribution for sales.
type Engine struct {
	repo         Repository
	dormancyDays int
}

// NewEngine creates an attribution engine. dormancyDays <= 0 selects the
// default reactivation threshold.
func NewEngine(repo Repository, dormancyDays int) *Engine {
	if dormancyDays <= 0 {
		dormancyDays = DefaultDormancyDays
	}
	return &Engine{repo: repo, dormancyDays: dormancyDays}
}

// refTime is the moment an interaction starts counting against its window:
// execution when it happened, creation otherwise.
func refTime(in domain.Interaction) time.Time {
	if in.ExecutedAt != nil {
		return *in.ExecutedAt
	}
	return in.CreatedAt
}

// Attribute links the sale to its source interaction(s) per the owning
// campaign's model. Returns nil when no qualifying interaction exists —
// that is a no-op outcome, not an error.
func (e *Engine) Attribute(ctx context.Context, sale SaleEvent) ([]domain.CampaignConversion, error) {
	all, err := e.repo.Candidates(ctx, sale.ClientID, sale.At)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	// Keep only delivered candidates still inside their own campaign's
	// window. An interaction that never went out cannot have caused the
	// purchase.
	var qualified []Candidate
	for _, c := range all {
		if c.Interaction.ExecutedAt == nil {
			continue
		}
		age := sale.At.Sub(refTime(c.Interaction))
		if age >= 0 && age <= c.Campaign.WindowDuration() {
			qualified = append(qualified, c)
		}
	}
	if len(qualified) == 0 {
		return nil, nil
	}

	// The most recent touch decides which campaign's model governs this
	// sale. Ties break on lowest interaction id — deterministic, documented.
	sort.Slice(qualified, func(i, j int) bool {
		ti, tj := refTime(qualified[i].Interaction), refTime(qualified[j].Interaction)
		if ti.Equal(tj) {
			return qualified[i].Interaction.ID.String() < qualified[j].Interaction.ID.String()
		}
		return ti.After(tj)
	})
	winner := qualified[0]
	model := winner.Campaign.AttributionModel

	var ofCampaign []Candidate
	for _, c := range qualified {
		if c.Campaign.ID == winner.Campaign.ID {
			ofCampaign = append(ofCampaign, c)
		}
	}

	var conversions []domain.CampaignConversion
	var consumed []uuid.UUID

	switch model {
	case domain.FirstTouch:
		// Earliest touch of the campaign within the window; same tie rule.
		src := ofCampaign[0]
		for _, c := range ofCampaign[1:] {
			ts, tc := refTime(src.Interaction), refTime(c.Interaction)
			if tc.Before(ts) || (tc.Equal(ts) && c.Interaction.ID.String() < src.Interaction.ID.String()) {
				src = c
			}
		}
		conversions = append(conversions, e.conversion(sale, src, sale.Revenue))
		consumed = append(consumed, src.Interaction.ID)

	case domain.Linear:
		// Split evenly across every touch of the campaign; remainder cents
		// go to the earliest so the split sums exactly to the revenue.
		n := int64(len(ofCampaign))
		share := sale.Revenue / n
		remainder := sale.Revenue - share*n
		byAge := append([]Candidate(nil), ofCampaign...)
		sort.Slice(byAge, func(i, j int) bool {
			return refTime(byAge[i].Interaction).Before(refTime(byAge[j].Interaction))
		})
		for i, c := range byAge {
			rev := share
			if i == 0 {
				rev += remainder
			}
			conversions = append(conversions, e.conversion(sale, c, rev))
		}
		// Linear sends stay open for later sales; exclusivity is a
		// single-touch model rule.

	default: // LAST_TOUCH
		conversions = append(conversions, e.conversion(sale, winner, sale.Revenue))
		consumed = append(consumed, winner.Interaction.ID)
	}

	if err := e.repo.Commit(ctx, conversions, consumed, sale.SaleID); err != nil {
		return nil, fmt.Errorf("commit conversions: %w", err)
	}
	return conversions, nil
}

func (e *Engine) conversion(sale SaleEvent, c Candidate, revenue int64) domain.CampaignConversion {
	ttc := sale.At.Sub(refTime(c.Interaction))
	return domain.CampaignConversion{
		ID:            uuid.New(),
		SaleID:        sale.SaleID,
		InteractionID: c.Interaction.ID,
		CampaignID:    c.Campaign.ID,
		ClientID:      sale.ClientID,
		TimeToConvert: ttc,
		Revenue:       revenue,
		Class:         e.Classify(sale, ttc, c.Campaign.WindowDuration()),
		CreatedAt:     sale.At,
	}
}

// Classify derives the conversion class from the client's purchase history
// at sale time. Order matters: acquisition, reactivation and acceleration
// describe the buyer and win over the purely temporal ATRASADA, which in
// turn beats REGULAR.
func (e *Engine) Classify(sale SaleEvent, timeToConvert, window time.Duration) domain.ConversionClass {
	if sale.PurchaseCount <= 1 {
		return domain.ClassAquisicao
	}
	if sale.PrevPurchaseAt != nil {
		gap := sale.At.Sub(*sale.PrevPurchaseAt)
		if gap > time.Duration(e.dormancyDays)*24*time.Hour {
			return domain.ClassReativacao
		}
		if sale.AvgGapDays > 0 && gap < time.Duration(sale.AvgGapDays*float64(24*time.Hour)) {
			return domain.ClassAceleracao
		}
	}
	if window > 0 && float64(timeToConvert) > lateWindowShare*float64(window) {
		return domain.ClassAtrasada
	}
	return domain.ClassRegular
}
