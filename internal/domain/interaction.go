package domain

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryStatus enumerates the outbound lifecycle of an interaction.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

// Interaction is one scheduled or executed campaign touch for a client.
// Created by the scheduler, executed by the dispatcher. ExecutedAt is the
// idempotency gate: it is set only after the transport confirms acceptance,
// and the dispatcher never re-processes a row with ExecutedAt set.
type Interaction struct {
	ID                uuid.UUID      `json:"id" db:"id"`
	ClientID          uuid.UUID      `json:"client_id" db:"client_id"`
	CampaignID        *uuid.UUID     `json:"campaign_id" db:"campaign_id"`
	ScheduledDate     time.Time      `json:"scheduled_date" db:"scheduled_date"`
	TimeBlock         string         `json:"time_block" db:"time_block"`
	ExecutedAt        *time.Time     `json:"executed_at" db:"executed_at"`
	DeliveryStatus    DeliveryStatus `json:"delivery_status" db:"delivery_status"`
	ConsumedBySaleID  *uuid.UUID     `json:"consumed_by_sale_id" db:"consumed_by_sale_id"`
	TriggerAmount     *int64         `json:"trigger_amount" db:"trigger_amount"`
	ProviderMessageID *string        `json:"provider_message_id" db:"provider_message_id"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
}

// Executed reports whether this interaction has already been delivered.
func (i *Interaction) Executed() bool { return i.ExecutedAt != nil }

// ConversionClass classifies a conversion by the client's purchase rhythm
// at sale time. Values follow the business vocabulary of the platform.
type ConversionClass string

const (
	ClassAquisicao  ConversionClass = "AQUISICAO"  // first purchase ever
	ClassReativacao ConversionClass = "REATIVACAO" // returned after dormancy
	ClassAceleracao ConversionClass = "ACELERACAO" // bought sooner than usual
	ClassRegular    ConversionClass = "REGULAR"
	ClassAtrasada   ConversionClass = "ATRASADA" // converted near the window's end
)

// CampaignConversion links a sale to the interaction judged to have caused
// it, carrying the revenue attributed to that interaction.
type CampaignConversion struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	SaleID        uuid.UUID       `json:"sale_id" db:"sale_id"`
	InteractionID uuid.UUID       `json:"interaction_id" db:"interaction_id"`
	CampaignID    uuid.UUID       `json:"campaign_id" db:"campaign_id"`
	ClientID      uuid.UUID       `json:"client_id" db:"client_id"`
	TimeToConvert time.Duration   `json:"time_to_convert" db:"time_to_convert"`
	Revenue       int64           `json:"revenue" db:"revenue"`
	Class         ConversionClass `json:"classification" db:"classification"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}
