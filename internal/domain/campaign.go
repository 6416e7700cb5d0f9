package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TriggerType enumerates the business conditions that can fire a campaign.
type TriggerType string

const (
	TriggerFirstPurchase       TriggerType = "first_purchase"
	TriggerNthPurchase         TriggerType = "nth_purchase"
	TriggerPurchaseValue       TriggerType = "purchase_value_threshold"
	TriggerCashbackAccumulated TriggerType = "cashback_accumulated"
	TriggerCashbackTotal       TriggerType = "cashback_total"
	TriggerTimeInSegment       TriggerType = "time_in_segment"
	TriggerSegmentEntry        TriggerType = "segment_entry"
	TriggerBirthday            TriggerType = "birthday"
	TriggerRecurringSchedule   TriggerType = "recurring_schedule"
)

// TriggerParams is the sum type of per-trigger configuration payloads.
// Exactly one concrete variant exists per TriggerType; evaluation code
// switches exhaustively on the variant, never on loose maps.
type TriggerParams interface {
	triggerParams()
}

// FirstPurchaseParams configures a first_purchase trigger (no knobs).
type FirstPurchaseParams struct{}

// NthPurchaseParams fires when lifetime purchase count equals Count exactly.
type NthPurchaseParams struct {
	Count int `json:"count"`
}

// PurchaseValueParams fires when lifetime purchase value crosses Threshold.
type PurchaseValueParams struct {
	Threshold int64 `json:"threshold"`
}

// CashbackAccumulatedParams fires when a single accumulation >= Minimum.
type CashbackAccumulatedParams struct {
	Minimum int64 `json:"minimum"`
}

// CashbackTotalParams fires when the resulting available balance >= Minimum.
type CashbackTotalParams struct {
	Minimum int64 `json:"minimum"`
}

// SegmentParams configures segment_entry and time_in_segment triggers.
// MinDays is only meaningful for time_in_segment.
type SegmentParams struct {
	SegmentID string `json:"segment_id"`
	MinDays   int    `json:"min_days,omitempty"`
}

// BirthdayParams configures a birthday trigger (no knobs).
type BirthdayParams struct{}

// ScheduleFrequency enumerates recurring_schedule cadences.
type ScheduleFrequency string

const (
	ScheduleDaily   ScheduleFrequency = "daily"
	ScheduleWeekly  ScheduleFrequency = "weekly"
	ScheduleMonthly ScheduleFrequency = "monthly"
)

// RecurringScheduleParams configures a recurring_schedule trigger.
// DaysOfWeek uses time.Weekday numbering (Sunday=0); DaysOfMonth is 1-31.
type RecurringScheduleParams struct {
	Frequency   ScheduleFrequency `json:"frequency"`
	DaysOfWeek  []int             `json:"days_of_week,omitempty"`
	DaysOfMonth []int             `json:"days_of_month,omitempty"`
}

func (FirstPurchaseParams) triggerParams()       {}
func (NthPurchaseParams) triggerParams()         {}
func (PurchaseValueParams) triggerParams()       {}
func (CashbackAccumulatedParams) triggerParams() {}
func (CashbackTotalParams) triggerParams()       {}
func (SegmentParams) triggerParams()             {}
func (BirthdayParams) triggerParams()            {}
func (RecurringScheduleParams) triggerParams()   {}

// DecodeTriggerParams decodes the raw JSON params column into the variant
// matching the trigger type. Empty raw decodes to the zero variant.
func DecodeTriggerParams(t TriggerType, raw []byte) (TriggerParams, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	switch t {
	case TriggerFirstPurchase:
		var p FirstPurchaseParams
		return p, json.Unmarshal(raw, &p)
	case TriggerNthPurchase:
		var p NthPurchaseParams
		return p, json.Unmarshal(raw, &p)
	case TriggerPurchaseValue:
		var p PurchaseValueParams
		return p, json.Unmarshal(raw, &p)
	case TriggerCashbackAccumulated:
		var p CashbackAccumulatedParams
		return p, json.Unmarshal(raw, &p)
	case TriggerCashbackTotal:
		var p CashbackTotalParams
		return p, json.Unmarshal(raw, &p)
	case TriggerTimeInSegment, TriggerSegmentEntry:
		var p SegmentParams
		return p, json.Unmarshal(raw, &p)
	case TriggerBirthday:
		var p BirthdayParams
		return p, json.Unmarshal(raw, &p)
	case TriggerRecurringSchedule:
		var p RecurringScheduleParams
		return p, json.Unmarshal(raw, &p)
	default:
		return nil, fmt.Errorf("unknown trigger type %q", t)
	}
}

// EncodeTriggerParams marshals a variant back to its JSON column form.
func EncodeTriggerParams(p TriggerParams) ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p)
}

// IntervalUnit enumerates time units for recurrence intervals and send offsets.
type IntervalUnit string

const (
	UnitMinutes IntervalUnit = "minutes"
	UnitHours   IntervalUnit = "hours"
	UnitDays    IntervalUnit = "days"
	UnitWeeks   IntervalUnit = "weeks"
	UnitMonths  IntervalUnit = "months"
)

// Duration converts value+unit to a time.Duration. Months are approximated
// as 30 days; recurrence windows don't need calendar precision.
func (u IntervalUnit) Duration(value int) time.Duration {
	switch u {
	case UnitMinutes:
		return time.Duration(value) * time.Minute
	case UnitHours:
		return time.Duration(value) * time.Hour
	case UnitWeeks:
		return time.Duration(value) * 7 * 24 * time.Hour
	case UnitMonths:
		return time.Duration(value) * 30 * 24 * time.Hour
	default:
		return time.Duration(value) * 24 * time.Hour
	}
}

// Recurrence is a campaign's frequency-cap policy.
type Recurrence struct {
	AllowRepeat   bool         `json:"allow_repeat"`
	IntervalValue int          `json:"interval_value"`
	IntervalUnit  IntervalUnit `json:"interval_unit"`
}

// Interval returns the minimum gap between sends, or zero when the
// campaign has no interval configured.
func (r Recurrence) Interval() time.Duration {
	if r.IntervalValue <= 0 {
		return 0
	}
	return r.IntervalUnit.Duration(r.IntervalValue)
}

// SendOffset controls when a scheduled interaction becomes due, relative
// to the moment the trigger fired. TimeBlock, when set, snaps the due time
// to the next occurrence of a fixed time-of-day slot ("06:00", "12:00", ...).
type SendOffset struct {
	Value     int          `json:"value"`
	Unit      IntervalUnit `json:"unit"`
	TimeBlock string       `json:"time_block,omitempty"`
}

// Immediate reports whether the interaction is due as soon as it is created.
func (o SendOffset) Immediate() bool {
	return o.Value <= 0 && o.TimeBlock == ""
}

// AttributionModel enumerates how a conversion picks its source interaction.
type AttributionModel string

const (
	LastTouch  AttributionModel = "LAST_TOUCH"
	FirstTouch AttributionModel = "FIRST_TOUCH"
	Linear     AttributionModel = "LINEAR"
)

// RewardKind enumerates cashback reward calculation modes.
type RewardKind string

const (
	RewardFixed      RewardKind = "fixed"
	RewardPercentage RewardKind = "percentage"
)

// Reward is a campaign's cashback grant configuration.
type Reward struct {
	Kind       RewardKind `json:"kind"`
	Amount     int64      `json:"amount,omitempty"`  // cents, for fixed
	Percent    float64    `json:"percent,omitempty"` // 0-100, for percentage
	ExpiryDays int        `json:"expiry_days"`
}

// AmountFor computes the cashback granted for a sale of the given value.
func (r Reward) AmountFor(saleValue int64) int64 {
	switch r.Kind {
	case RewardFixed:
		return r.Amount
	case RewardPercentage:
		return int64(float64(saleValue) * r.Percent / 100.0)
	default:
		return 0
	}
}

// Campaign is a marketing rule owned by an organization. The core reads
// campaigns at evaluation time; mutation happens through the admin surface.
type Campaign struct {
	ID                  uuid.UUID        `json:"id" db:"id"`
	OrganizationID      uuid.UUID        `json:"organization_id" db:"organization_id"`
	Name                string           `json:"name" db:"name"`
	Active              bool             `json:"active" db:"active"`
	TriggerType         TriggerType      `json:"trigger_type" db:"trigger_type"`
	Params              TriggerParams    `json:"params" db:"params"`
	Recurrence          Recurrence       `json:"recurrence" db:"recurrence"`
	SendOffset          SendOffset       `json:"send_offset" db:"send_offset"`
	AttributionModel    AttributionModel `json:"attribution_model" db:"attribution_model"`
	AttributionWindow   int              `json:"attribution_window_days" db:"attribution_window_days"`
	AttributionEligible bool             `json:"attribution_eligible" db:"attribution_eligible"`
	Reward              *Reward          `json:"reward" db:"reward"`
	MessageTemplate     string           `json:"message_template" db:"message_template"`
	TemplateID          string           `json:"template_id" db:"template_id"`
	CreatedAt           time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at" db:"updated_at"`
}

// WindowDuration is the attribution window as a duration.
func (c *Campaign) WindowDuration() time.Duration {
	return time.Duration(c.AttributionWindow) * 24 * time.Hour
}
