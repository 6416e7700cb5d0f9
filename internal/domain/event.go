package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the business events the trigger pipeline consumes.
type EventType string

const (
	EventSaleCompleted       EventType = "sale_completed"
	EventCashbackAccumulated EventType = "cashback_accumulated"
	EventSegmentEntered      EventType = "segment_entered"
	EventClockTick           EventType = "clock_tick"
)

// Event is an inbound business event. Which fields are meaningful depends
// on Type:
//
//   - sale_completed: SaleID, Amount (sale value), PurchaseCount (lifetime,
//     including this sale), LifetimeValue (including this sale)
//   - cashback_accumulated: Amount (the increment), NewAvailable (resulting
//     available balance)
//   - segment_entered: SegmentID, DaysInSegment
//   - clock_tick: Now only (ClientID is Nil; the evaluator fans out)
type Event struct {
	Type           EventType  `json:"type"`
	ClientID       uuid.UUID  `json:"client_id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	SaleID         *uuid.UUID `json:"sale_id,omitempty"`
	Amount         int64      `json:"amount,omitempty"`
	NewAvailable   int64      `json:"new_available,omitempty"`
	LifetimeValue  int64      `json:"lifetime_value,omitempty"`
	PurchaseCount  int        `json:"purchase_count,omitempty"`
	SegmentID      *string    `json:"segment_id,omitempty"`
	DaysInSegment  int        `json:"days_in_segment,omitempty"`
	Now            time.Time  `json:"now,omitempty"`
}

// At returns the event's effective time: Now when carried, wall clock otherwise.
func (e Event) At() time.Time {
	if !e.Now.IsZero() {
		return e.Now
	}
	return time.Now()
}

// ClientProfile is the read model the evaluator and attribution engine
// consult about a client's purchase history. Maintained by the sale flow
// (out of scope); read-only here.
type ClientProfile struct {
	ClientID            uuid.UUID  `json:"client_id" db:"client_id"`
	OrganizationID      uuid.UUID  `json:"organization_id" db:"organization_id"`
	BirthMonth          int        `json:"birth_month" db:"birth_month"` // 1-12, 0 = unknown
	BirthDay            int        `json:"birth_day" db:"birth_day"`     // 1-31, 0 = unknown
	PurchaseCount       int        `json:"purchase_count" db:"purchase_count"`
	LifetimeValue       int64      `json:"lifetime_value" db:"lifetime_value"`
	LastPurchaseAt      *time.Time `json:"last_purchase_at" db:"last_purchase_at"`
	AvgPurchaseGapDays  float64    `json:"avg_purchase_gap_days" db:"avg_purchase_gap_days"`
}

// BirthdayIs reports whether the profile's birthday falls on the given day.
func (p *ClientProfile) BirthdayIs(t time.Time) bool {
	return p.BirthMonth == int(t.Month()) && p.BirthDay == t.Day()
}
