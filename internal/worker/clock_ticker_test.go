package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/loyalty-core/internal/domain"
)

type staticOrgs []uuid.UUID

func (s staticOrgs) Organizations(ctx context.Context) ([]uuid.UUID, error) { return s, nil }

type recordingSink struct {
	events []domain.Event
	errFor uuid.UUID
}

func (s *recordingSink) Process(ctx context.Context, ev domain.Event) error {
	s.events = append(s.events, ev)
	if ev.OrganizationID == s.errFor {
		return errors.New("boom")
	}
	return nil
}

func TestTickFansOutPerOrganization(t *testing.T) {
	orgA, orgB := uuid.New(), uuid.New()
	sink := &recordingSink{}
	ticker := NewClockTicker(staticOrgs{orgA, orgB}, sink, 8)

	now := time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC)
	ticker.Tick(context.Background(), now)

	if len(sink.events) != 2 {
		t.Fatalf("got %d events, want 2", len(sink.events))
	}
	for _, ev := range sink.events {
		if ev.Type != domain.EventClockTick {
			t.Fatalf("event type = %s", ev.Type)
		}
		if !ev.Now.Equal(now) {
			t.Fatalf("event time = %v, want %v", ev.Now, now)
		}
		if ev.ClientID != uuid.Nil {
			t.Fatal("clock ticks carry no client")
		}
	}
}

func TestTickContinuesPastFailingOrg(t *testing.T) {
	orgA, orgB := uuid.New(), uuid.New()
	sink := &recordingSink{errFor: orgA}
	ticker := NewClockTicker(staticOrgs{orgA, orgB}, sink, 8)

	ticker.Tick(context.Background(), time.Now())

	if len(sink.events) != 2 {
		t.Fatalf("got %d events, want both orgs despite one failing", len(sink.events))
	}
}

func TestUntilNextTick(t *testing.T) {
	ticker := NewClockTicker(staticOrgs{}, &recordingSink{}, 8)

	before := time.Date(2026, 3, 15, 6, 30, 0, 0, time.UTC)
	if got := ticker.untilNextTick(before); got != 90*time.Minute {
		t.Fatalf("before tick hour: %v", got)
	}

	after := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	if got := ticker.untilNextTick(after); got != 23*time.Hour {
		t.Fatalf("after tick hour: %v", got)
	}
}
