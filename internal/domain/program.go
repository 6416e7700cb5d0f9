package domain

import (
	"time"

	"github.com/google/uuid"
)

// Program is an organization's cashback program: the accrual rules that
// turn sale value into loyalty currency. An organization without an
// active program simply accrues nothing (a no-op, never an error).
type Program struct {
	ID             uuid.UUID `json:"id" db:"id"`
	OrganizationID uuid.UUID `json:"organization_id" db:"organization_id"`
	Name           string    `json:"name" db:"name"`
	Active         bool      `json:"active" db:"active"`
	Percent        float64   `json:"percent" db:"percent"` // share of sale value accrued, 0-100
	ExpiryDays     int       `json:"expiry_days" db:"expiry_days"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// AccrualFor computes the cashback earned on a sale of the given value.
func (p *Program) AccrualFor(saleValue int64) int64 {
	if p.Percent <= 0 {
		return 0
	}
	return int64(float64(saleValue) * p.Percent / 100.0)
}
