package worker

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/loyalty-core/internal/domain"
)

// DefaultTickHour is the local hour at which daily triggers are evaluated.
const DefaultTickHour = 8

// OrgSource lists organizations that have active campaigns.
type OrgSource interface {
	Organizations(ctx context.Context) ([]uuid.UUID, error)
}

// EventSink consumes business events. Implemented by the pipeline
// processor.
type EventSink interface {
	Process(ctx context.Context, ev domain.Event) error
}

// ClockTicker emits one clock_tick event per organization once a day.
// The tick drives birthday, recurring-schedule and time-in-segment
// campaigns, which have no client event to react to.
type ClockTicker struct {
	orgs OrgSource
	sink EventSink
	hour int

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewClockTicker wires the ticker. hour < 0 uses DefaultTickHour.
func NewClockTicker(orgs OrgSource, sink EventSink, hour int) *ClockTicker {
	if hour < 0 || hour > 23 {
		hour = DefaultTickHour
	}
	return &ClockTicker{orgs: orgs, sink: sink, hour: hour}
}

// Start begins the daily loop.
func (t *ClockTicker) Start() error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = true
	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.mu.Unlock()

	log.Printf("[ClockTicker] starting, tick hour %02d:00", t.hour)
	t.wg.Add(1)
	go t.loop()
	return nil
}

// Stop cancels the loop.
func (t *ClockTicker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	t.mu.Unlock()

	t.cancel()
	t.wg.Wait()
	log.Printf("[ClockTicker] stopped")
}

func (t *ClockTicker) loop() {
	defer t.wg.Done()

	for {
		wait := t.untilNextTick(time.Now())
		timer := time.NewTimer(wait)
		select {
		case <-t.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			t.Tick(t.ctx, time.Now())
		}
	}
}

func (t *ClockTicker) untilNextTick(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), t.hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

// Tick fans one clock_tick out to every organization. Per-org failures
// are logged and do not stop the fan-out.
func (t *ClockTicker) Tick(ctx context.Context, now time.Time) {
	orgs, err := t.orgs.Organizations(ctx)
	if err != nil {
		log.Printf("[ClockTicker] list organizations: %v", err)
		return
	}
	for _, org := range orgs {
		ev := domain.Event{
			Type:           domain.EventClockTick,
			OrganizationID: org,
			Now:            now,
		}
		if err := t.sink.Process(ctx, ev); err != nil {
			log.Printf("[ClockTicker] org %s: %v", org, err)
		}
	}
}
