package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/loyalty-core/internal/domain"
	"github.com/redis/go-redis/v9"
)

// DefaultCacheTTL bounds campaign staleness. Triggers are re-evaluated on
// every qualifying event, so a few seconds of staleness is acceptable.
const DefaultCacheTTL = 30 * time.Second

// Cache decorates a CampaignSource with a per-(org, trigger type) Redis
// cache. A nil redis client degrades to pass-through.
type Cache struct {
	source CampaignSource
	redis  *redis.Client
	ttl    time.Duration
}

// NewCache creates a campaign cache in front of source.
func NewCache(source CampaignSource, client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{source: source, redis: client, ttl: ttl}
}

// cachedCampaign is the wire form of a campaign in Redis. Params are kept
// raw and re-decoded by trigger type on read, since TriggerParams is an
// interface.
type cachedCampaign struct {
	Campaign  domain.Campaign `json:"campaign"`
	RawParams json.RawMessage `json:"raw_params"`
}

func cacheKey(orgID uuid.UUID, t domain.TriggerType) string {
	return fmt.Sprintf("campaigns:%s:%s", orgID, t)
}

// ListActive returns active campaigns, serving each trigger type from
// Redis when fresh and falling back to the source on miss or error.
func (c *Cache) ListActive(ctx context.Context, orgID uuid.UUID, types []domain.TriggerType) ([]domain.Campaign, error) {
	if c.redis == nil {
		return c.source.ListActive(ctx, orgID, types)
	}

	var out []domain.Campaign
	var misses []domain.TriggerType
	for _, t := range types {
		cs, ok := c.get(ctx, orgID, t)
		if !ok {
			misses = append(misses, t)
			continue
		}
		out = append(out, cs...)
	}
	if len(misses) == 0 {
		return out, nil
	}

	fresh, err := c.source.ListActive(ctx, orgID, misses)
	if err != nil {
		return nil, err
	}
	byType := make(map[domain.TriggerType][]domain.Campaign, len(misses))
	for _, t := range misses {
		byType[t] = []domain.Campaign{}
	}
	for _, cc := range fresh {
		byType[cc.TriggerType] = append(byType[cc.TriggerType], cc)
	}
	for t, cs := range byType {
		c.put(ctx, orgID, t, cs)
		out = append(out, cs...)
	}
	return out, nil
}

// Invalidate drops the organization's cached campaign lists. Call it from
// the campaign write path.
func (c *Cache) Invalidate(ctx context.Context, orgID uuid.UUID) {
	if c.redis == nil {
		return
	}
	for _, t := range []domain.TriggerType{
		domain.TriggerFirstPurchase, domain.TriggerNthPurchase, domain.TriggerPurchaseValue,
		domain.TriggerCashbackAccumulated, domain.TriggerCashbackTotal,
		domain.TriggerTimeInSegment, domain.TriggerSegmentEntry,
		domain.TriggerBirthday, domain.TriggerRecurringSchedule,
	} {
		if err := c.redis.Del(ctx, cacheKey(orgID, t)).Err(); err != nil {
			log.Printf("[trigger.Cache] invalidate %s/%s: %v", orgID, t, err)
		}
	}
}

func (c *Cache) get(ctx context.Context, orgID uuid.UUID, t domain.TriggerType) ([]domain.Campaign, bool) {
	raw, err := c.redis.Get(ctx, cacheKey(orgID, t)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("[trigger.Cache] get %s/%s: %v", orgID, t, err)
		}
		return nil, false
	}
	var cached []cachedCampaign
	if err := json.Unmarshal(raw, &cached); err != nil {
		log.Printf("[trigger.Cache] decode %s/%s: %v", orgID, t, err)
		return nil, false
	}
	out := make([]domain.Campaign, 0, len(cached))
	for _, cc := range cached {
		params, err := domain.DecodeTriggerParams(cc.Campaign.TriggerType, cc.RawParams)
		if err != nil {
			log.Printf("[trigger.Cache] decode params %s: %v", cc.Campaign.ID, err)
			return nil, false
		}
		cc.Campaign.Params = params
		out = append(out, cc.Campaign)
	}
	return out, true
}

func (c *Cache) put(ctx context.Context, orgID uuid.UUID, t domain.TriggerType, campaigns []domain.Campaign) {
	cached := make([]cachedCampaign, 0, len(campaigns))
	for _, cc := range campaigns {
		raw, err := domain.EncodeTriggerParams(cc.Params)
		if err != nil {
			log.Printf("[trigger.Cache] encode params %s: %v", cc.ID, err)
			return
		}
		stripped := cc
		stripped.Params = nil
		cached = append(cached, cachedCampaign{Campaign: stripped, RawParams: raw})
	}
	data, err := json.Marshal(cached)
	if err != nil {
		log.Printf("[trigger.Cache] encode %s/%s: %v", orgID, t, err)
		return
	}
	if err := c.redis.Set(ctx, cacheKey(orgID, t), data, c.ttl).Err(); err != nil {
		log.Printf("[trigger.Cache] set %s/%s: %v", orgID, t, err)
	}
}
