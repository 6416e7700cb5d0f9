package trigger

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/loyalty-core/internal/domain"
)

// Match is one (campaign, client) candidate produced by evaluation.
// Amount carries the value that satisfied the trigger, for interaction
// metadata and message variables.
type Match struct {
	Campaign domain.Campaign
	ClientID uuid.UUID
	Amount   *int64
}

// Evaluator decides which campaigns fire for a business event.
type Evaluator struct {
	campaigns CampaignSource
	profiles  ProfileSource
}

// NewEvaluator creates an evaluator over the given sources.
func NewEvaluator(campaigns CampaignSource, profiles ProfileSource) *Evaluator {
	return &Evaluator{campaigns: campaigns, profiles: profiles}
}

// typesFor maps an event type to the trigger types it can satisfy, so the
// campaign lookup is a single indexed query per event.
func typesFor(t domain.EventType) []domain.TriggerType {
	switch t {
	case domain.EventSaleCompleted:
		return []domain.TriggerType{domain.TriggerFirstPurchase, domain.TriggerNthPurchase, domain.TriggerPurchaseValue}
	case domain.EventCashbackAccumulated:
		return []domain.TriggerType{domain.TriggerCashbackAccumulated, domain.TriggerCashbackTotal}
	case domain.EventSegmentEntered:
		return []domain.TriggerType{domain.TriggerSegmentEntry, domain.TriggerTimeInSegment}
	case domain.EventClockTick:
		return []domain.TriggerType{domain.TriggerBirthday, domain.TriggerRecurringSchedule}
	default:
		return nil
	}
}

// Evaluate returns the match candidates for the event. Per-campaign
// failures (bad params, fan-out query errors) are logged and skipped.
func (e *Evaluator) Evaluate(ctx context.Context, ev domain.Event) ([]Match, error) {
	types := typesFor(ev.Type)
	if len(types) == 0 {
		return nil, fmt.Errorf("unknown event type %q", ev.Type)
	}

	campaigns, err := e.campaigns.ListActive(ctx, ev.OrganizationID, types)
	if err != nil {
		return nil, fmt.Errorf("list active campaigns: %w", err)
	}

	var matches []Match
	for _, c := range campaigns {
		ms, err := e.evaluateCampaign(ctx, c, ev)
		if err != nil {
			log.Printf("[trigger.Evaluator] campaign %s (%s): %v", c.ID, c.TriggerType, err)
			continue
		}
		matches = append(matches, ms...)
	}
	return matches, nil
}

func (e *Evaluator) evaluateCampaign(ctx context.Context, c domain.Campaign, ev domain.Event) ([]Match, error) {
	switch p := c.Params.(type) {
	case domain.FirstPurchaseParams:
		if ev.PurchaseCount == 1 {
			return []Match{{Campaign: c, ClientID: ev.ClientID, Amount: &ev.Amount}}, nil
		}

	case domain.NthPurchaseParams:
		// Exact equality: the campaign celebrates the Nth purchase, it does
		// not fire on every purchase past N.
		if p.Count > 0 && ev.PurchaseCount == p.Count {
			return []Match{{Campaign: c, ClientID: ev.ClientID, Amount: &ev.Amount}}, nil
		}

	case domain.PurchaseValueParams:
		// Fires only on the event that crosses the threshold.
		if ev.LifetimeValue >= p.Threshold && ev.LifetimeValue-ev.Amount < p.Threshold {
			return []Match{{Campaign: c, ClientID: ev.ClientID, Amount: &ev.LifetimeValue}}, nil
		}

	case domain.CashbackAccumulatedParams:
		if ev.Type == domain.EventCashbackAccumulated && ev.Amount >= p.Minimum {
			return []Match{{Campaign: c, ClientID: ev.ClientID, Amount: &ev.Amount}}, nil
		}

	case domain.CashbackTotalParams:
		if ev.Type == domain.EventCashbackAccumulated && ev.NewAvailable >= p.Minimum {
			return []Match{{Campaign: c, ClientID: ev.ClientID, Amount: &ev.NewAvailable}}, nil
		}

	case domain.SegmentParams:
		if ev.SegmentID == nil || *ev.SegmentID != p.SegmentID {
			return nil, nil
		}
		if c.TriggerType == domain.TriggerTimeInSegment && ev.DaysInSegment < p.MinDays {
			return nil, nil
		}
		return []Match{{Campaign: c, ClientID: ev.ClientID}}, nil

	case domain.BirthdayParams:
		return e.birthdayMatches(ctx, c, ev)

	case domain.RecurringScheduleParams:
		if !scheduleDue(p, ev.At()) {
			return nil, nil
		}
		profiles, err := e.profiles.ListActive(ctx, c.OrganizationID)
		if err != nil {
			return nil, fmt.Errorf("list clients: %w", err)
		}
		matches := make([]Match, 0, len(profiles))
		for _, prof := range profiles {
			matches = append(matches, Match{Campaign: c, ClientID: prof.ClientID})
		}
		return matches, nil

	default:
		return nil, fmt.Errorf("no params decoded for trigger type %q", c.TriggerType)
	}
	return nil, nil
}

func (e *Evaluator) birthdayMatches(ctx context.Context, c domain.Campaign, ev domain.Event) ([]Match, error) {
	now := ev.At()
	profiles, err := e.profiles.ListByBirthday(ctx, c.OrganizationID, int(now.Month()), now.Day())
	if err != nil {
		return nil, fmt.Errorf("list birthdays: %w", err)
	}
	matches := make([]Match, 0, len(profiles))
	for _, prof := range profiles {
		matches = append(matches, Match{Campaign: c, ClientID: prof.ClientID})
	}
	return matches, nil
}

// scheduleDue reports whether a recurring schedule fires on the given day.
func scheduleDue(p domain.RecurringScheduleParams, now time.Time) bool {
	switch p.Frequency {
	case domain.ScheduleDaily:
		return true
	case domain.ScheduleWeekly:
		for _, d := range p.DaysOfWeek {
			if d == int(now.Weekday()) {
				return true
			}
		}
	case domain.ScheduleMonthly:
		for _, d := range p.DaysOfMonth {
			if d == now.Day() {
				return true
			}
		}
	}
	return false
}
