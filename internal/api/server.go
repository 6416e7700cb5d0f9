// Package api is the HTTP boundary of the platform. Handlers translate
// between JSON and the service layer; domain rules live below, never here.
package api

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/loyalty-core/internal/domain"
	"github.com/redis/go-redis/v9"
)

// LedgerService is the slice of the ledger the API exposes.
type LedgerService interface {
	Accumulate(ctx context.Context, clientID, programID uuid.UUID, saleID *uuid.UUID, amount int64, expiryDays int) (*domain.LedgerTransaction, error)
	Redeem(ctx context.Context, clientID, programID uuid.UUID, saleID *uuid.UUID, amount int64) (*domain.LedgerTransaction, error)
	Balance(ctx context.Context, clientID, programID uuid.UUID) (*domain.Balance, error)
	Transactions(ctx context.Context, clientID, programID uuid.UUID, limit int) ([]domain.LedgerTransaction, error)
}

// EventSink feeds the trigger pipeline.
type EventSink interface {
	Process(ctx context.Context, ev domain.Event) error
}

// CampaignStore backs the campaign read endpoints plus the minimal write
// path that exists to hook cache invalidation.
type CampaignStore interface {
	List(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]domain.Campaign, error)
	Get(ctx context.Context, orgID, id uuid.UUID) (*domain.Campaign, error)
	Create(ctx context.Context, c *domain.Campaign) error
}

// CampaignCache is invalidated when a campaign is written.
type CampaignCache interface {
	Invalidate(ctx context.Context, orgID uuid.UUID)
}

// InteractionStore backs the interaction read endpoint.
type InteractionStore interface {
	List(ctx context.Context, clientID, campaignID *uuid.UUID, limit int) ([]domain.Interaction, error)
}

// ConversionStore backs the conversion read endpoints.
type ConversionStore interface {
	ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit int) ([]domain.CampaignConversion, error)
	RevenueByCampaign(ctx context.Context, orgID uuid.UUID) (map[uuid.UUID]int64, error)
}

// Server holds the handler dependencies.
type Server struct {
	ledger       LedgerService
	events       EventSink
	campaigns    CampaignStore
	cache        CampaignCache
	interactions InteractionStore
	conversions  ConversionStore

	db          *sql.DB
	redisClient *redis.Client
	startTime   time.Time
}

// NewServer wires the API. cache and redisClient may be nil.
func NewServer(ledger LedgerService, events EventSink, campaigns CampaignStore, cache CampaignCache,
	interactions InteractionStore, conversions ConversionStore, db *sql.DB, redisClient *redis.Client) *Server {
	return &Server{
		ledger:       ledger,
		events:       events,
		campaigns:    campaigns,
		cache:        cache,
		interactions: interactions,
		conversions:  conversions,
		db:           db,
		redisClient:  redisClient,
		startTime:    time.Now(),
	}
}
