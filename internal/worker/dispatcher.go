package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/loyalty-core/internal/delivery"
	"github.com/ignite/loyalty-core/internal/domain"
	"github.com/ignite/loyalty-core/internal/pkg/distlock"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultDispatchPollInterval = time.Minute
	DefaultDispatchBatchSize    = 200
	dispatchLockKey             = "dispatch:interactions"
	dispatchLockTTL             = 5 * time.Minute
)

// InteractionStore is the slice of the interaction repository the
// dispatcher needs.
type InteractionStore interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Interaction, error)
	MarkExecuted(ctx context.Context, id uuid.UUID, providerMessageID string, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID) error
}

// CampaignGetter resolves the campaign an interaction belongs to, for its
// message template.
type CampaignGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Campaign, error)
}

// ProfileGetter supplies template variables for one client.
type ProfileGetter interface {
	Get(ctx context.Context, clientID uuid.UUID) (*domain.ClientProfile, error)
}

// InteractionDispatcher polls for due, unexecuted interactions and sends
// them through the transport. An interaction is marked executed only after
// the provider accepts it; a failed send leaves executed_at null so the
// next poll retries it.
type InteractionDispatcher struct {
	store     InteractionStore
	campaigns CampaignGetter
	profiles  ProfileGetter
	transport delivery.Transport
	renderer  *delivery.Renderer
	limiter   *RateLimiter
	provider  string

	db           *sql.DB
	redisClient  *redis.Client
	workerID     string
	pollInterval time.Duration
	batchSize    int

	sent   int64
	failed int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewInteractionDispatcher wires the dispatcher. redisClient may be nil;
// locking then falls back to Postgres advisory locks and sends are not
// rate limited.
func NewInteractionDispatcher(store InteractionStore, campaigns CampaignGetter, profiles ProfileGetter,
	transport delivery.Transport, db *sql.DB, redisClient *redis.Client, provider string) *InteractionDispatcher {

	d := &InteractionDispatcher{
		store:        store,
		campaigns:    campaigns,
		profiles:     profiles,
		transport:    transport,
		renderer:     delivery.NewRenderer(),
		provider:     provider,
		db:           db,
		redisClient:  redisClient,
		workerID:     fmt.Sprintf("dispatcher-%s-%d", hostname(), time.Now().UnixNano()%10000),
		pollInterval: DefaultDispatchPollInterval,
		batchSize:    DefaultDispatchBatchSize,
	}
	if redisClient != nil {
		d.limiter = NewRateLimiter(redisClient, nil)
	}
	return d
}

// SetPollInterval overrides the polling cadence.
func (d *InteractionDispatcher) SetPollInterval(iv time.Duration) { d.pollInterval = iv }

// SetLimiter replaces the default rate limiter, for configured limits.
func (d *InteractionDispatcher) SetLimiter(rl *RateLimiter) { d.limiter = rl }

// Start begins the polling loop.
func (d *InteractionDispatcher) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher already running")
	}
	d.running = true
	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.mu.Unlock()

	log.Printf("[InteractionDispatcher] %s starting, poll interval %v", d.workerID, d.pollInterval)
	d.wg.Add(1)
	go d.loop()
	return nil
}

// Stop waits for the current batch to finish.
func (d *InteractionDispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
	log.Printf("[InteractionDispatcher] stopped. sent=%d failed=%d",
		atomic.LoadInt64(&d.sent), atomic.LoadInt64(&d.failed))
}

func (d *InteractionDispatcher) loop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.runOnce()
		}
	}
}

// runOnce claims the fleet lock and processes one batch of due
// interactions.
func (d *InteractionDispatcher) runOnce() {
	ctx, cancel := context.WithTimeout(d.ctx, 4*time.Minute)
	defer cancel()

	lock := distlock.NewLock(d.redisClient, d.db, dispatchLockKey, dispatchLockTTL)
	ok, err := lock.Acquire(ctx)
	if err != nil {
		log.Printf("[InteractionDispatcher] lock acquire: %v", err)
		return
	}
	if !ok {
		return
	}
	defer lock.Release(ctx)

	due, err := d.store.ListDue(ctx, time.Now(), d.batchSize)
	if err != nil {
		log.Printf("[InteractionDispatcher] list due: %v", err)
		return
	}

	for i := range due {
		if ctx.Err() != nil {
			return
		}
		if d.limiter != nil {
			allowed, wait, err := d.limiter.Allow(ctx, d.provider, 1)
			if err != nil {
				log.Printf("[InteractionDispatcher] rate limit: %v", err)
				return
			}
			if !allowed {
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return
				}
			}
		}
		if err := d.dispatch(ctx, &due[i]); err != nil {
			atomic.AddInt64(&d.failed, 1)
			log.Printf("[InteractionDispatcher] interaction %s: %v", due[i].ID, err)
			continue
		}
		atomic.AddInt64(&d.sent, 1)
	}
}

// Dispatch sends one interaction immediately. Exposed for the scheduler's
// zero-offset fast path; the poll loop remains the source of truth for
// anything this call fails to deliver.
func (d *InteractionDispatcher) Dispatch(ctx context.Context, in *domain.Interaction) error {
	return d.dispatch(ctx, in)
}

func (d *InteractionDispatcher) dispatch(ctx context.Context, in *domain.Interaction) error {
	body, err := d.message(ctx, in)
	if err != nil {
		return err
	}

	res, err := d.transport.Send(ctx, delivery.Message{
		ClientID:       in.ClientID,
		CampaignID:     campaignOrNil(in),
		Body:           body,
		IdempotencyKey: in.ID.String(),
	})
	if err != nil {
		// A timeout may have landed at the provider anyway; the
		// idempotency key lets us find out before giving up.
		if errors.Is(err, delivery.ErrDeliveryFailed) {
			if st, stErr := d.transport.Status(ctx, in.ID.String()); stErr == nil && st != nil && st.Accepted {
				res = st
				err = nil
			}
		}
		if err != nil {
			if mfErr := d.store.MarkFailed(ctx, in.ID); mfErr != nil {
				log.Printf("[InteractionDispatcher] mark failed %s: %v", in.ID, mfErr)
			}
			return err
		}
	}

	updated, err := d.store.MarkExecuted(ctx, in.ID, res.ProviderMessageID, time.Now())
	if err != nil {
		return fmt.Errorf("mark executed: %w", err)
	}
	if !updated {
		// Another dispatcher got here first. The provider deduplicated on
		// the idempotency key, so nothing was sent twice.
		log.Printf("[InteractionDispatcher] interaction %s already executed", in.ID)
	}
	return nil
}

// message renders the campaign template for the interaction's client.
// Interactions without a campaign or template get an empty body; the
// provider applies its default.
func (d *InteractionDispatcher) message(ctx context.Context, in *domain.Interaction) (string, error) {
	if in.CampaignID == nil {
		return "", nil
	}
	c, err := d.campaigns.GetByID(ctx, *in.CampaignID)
	if err != nil {
		return "", fmt.Errorf("load campaign: %w", err)
	}
	if c == nil || c.MessageTemplate == "" {
		return "", nil
	}

	vars := map[string]any{"client_id": in.ClientID.String()}
	if in.TriggerAmount != nil {
		vars["amount"] = *in.TriggerAmount
	}
	if p, err := d.profiles.Get(ctx, in.ClientID); err == nil && p != nil {
		vars["purchase_count"] = p.PurchaseCount
		vars["lifetime_value"] = p.LifetimeValue
	}

	body, err := d.renderer.Render(c.ID.String(), c.MessageTemplate, vars)
	if err != nil {
		// Render failures fall back to the raw template; a bad variable
		// must not strand the interaction forever.
		log.Printf("[InteractionDispatcher] render campaign %s: %v", c.ID, err)
	}
	return body, nil
}

func campaignOrNil(in *domain.Interaction) uuid.UUID {
	if in.CampaignID == nil {
		return uuid.Nil
	}
	return *in.CampaignID
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
