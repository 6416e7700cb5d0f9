package scheduler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/loyalty-core/internal/domain"
	"github.com/ignite/loyalty-core/internal/service/frequency"
	"github.com/ignite/loyalty-core/internal/service/scheduler"
)

// memInteractions re-checks the recurrence rule under its lock, the way
// the Postgres repository does with an advisory lock.
type memInteractions struct {
	mu   sync.Mutex
	rows []domain.Interaction
}

func (m *memInteractions) CreateExclusive(_ context.Context, in *domain.Interaction, r domain.Recurrence) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var last *time.Time
	for _, row := range m.rows {
		if row.ClientID == in.ClientID && row.CampaignID != nil && in.CampaignID != nil && *row.CampaignID == *in.CampaignID {
			if last == nil || row.CreatedAt.After(*last) {
				t := row.CreatedAt
				last = &t
			}
		}
	}
	if d := frequency.Evaluate(r, last, in.CreatedAt); !d.Allowed {
		return false, nil
	}
	m.rows = append(m.rows, *in)
	return true, nil
}

func TestScheduleOncePerNonRecurringCampaign(t *testing.T) {
	repo := &memInteractions{}
	s := scheduler.NewScheduler(repo)
	client := uuid.New()
	c := domain.Campaign{ID: uuid.New(), Recurrence: domain.Recurrence{AllowRepeat: false}}

	// Scenario C: many qualifying events, at most one interaction.
	created := 0
	for i := 0; i < 5; i++ {
		_, ok, err := s.Schedule(context.Background(), client, c, scheduler.Metadata{})
		if err != nil {
			t.Fatalf("schedule %d: %v", i, err)
		}
		if ok {
			created++
		}
	}
	if created != 1 {
		t.Errorf("created %d interactions, want 1", created)
	}
}

func TestConcurrentScheduleSingleWinner(t *testing.T) {
	repo := &memInteractions{}
	s := scheduler.NewScheduler(repo)
	client := uuid.New()
	c := domain.Campaign{ID: uuid.New(), Recurrence: domain.Recurrence{AllowRepeat: false}}

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := s.Schedule(context.Background(), client, c, scheduler.Metadata{})
			if err != nil {
				t.Errorf("schedule: %v", err)
				return
			}
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if created != 1 {
		t.Errorf("concurrent schedules created %d interactions, want 1", created)
	}
}

func TestImmediateHook(t *testing.T) {
	repo := &memInteractions{}
	s := scheduler.NewScheduler(repo)
	var dispatched *domain.Interaction
	s.OnImmediate = func(_ context.Context, in *domain.Interaction) { dispatched = in }

	c := domain.Campaign{ID: uuid.New(), Recurrence: domain.Recurrence{AllowRepeat: true}}
	in, ok, err := s.Schedule(context.Background(), uuid.New(), c, scheduler.Metadata{})
	if err != nil || !ok {
		t.Fatalf("schedule: ok=%v err=%v", ok, err)
	}
	if dispatched == nil || dispatched.ID != in.ID {
		t.Errorf("immediate hook not invoked for zero-offset campaign")
	}

	// Offset campaigns must not take the fast path.
	dispatched = nil
	c2 := domain.Campaign{ID: uuid.New(), SendOffset: domain.SendOffset{Value: 2, Unit: domain.UnitDays}}
	s.Schedule(context.Background(), uuid.New(), c2, scheduler.Metadata{})
	if dispatched != nil {
		t.Errorf("immediate hook invoked for offset campaign")
	}
}

func TestDueAt(t *testing.T) {
	now := time.Date(2026, 8, 29, 14, 30, 0, 0, time.UTC)

	// Plain offset, no block.
	due, block := scheduler.DueAt(domain.SendOffset{Value: 2, Unit: domain.UnitHours}, now)
	if !due.Equal(now.Add(2*time.Hour)) || block != "16:30" {
		t.Errorf("offset: due=%v block=%s", due, block)
	}

	// Block later today: snap forward same day.
	due, block = scheduler.DueAt(domain.SendOffset{TimeBlock: "18:00"}, now)
	want := time.Date(2026, 8, 29, 18, 0, 0, 0, time.UTC)
	if !due.Equal(want) || block != "18:00" {
		t.Errorf("same-day block: due=%v block=%s", due, block)
	}

	// Block already past: roll to tomorrow.
	due, _ = scheduler.DueAt(domain.SendOffset{TimeBlock: "06:00"}, now)
	want = time.Date(2026, 8, 30, 6, 0, 0, 0, time.UTC)
	if !due.Equal(want) {
		t.Errorf("next-day block: due=%v, want %v", due, want)
	}

	// Offset plus block: one day out, then snap to 06:00.
	due, _ = scheduler.DueAt(domain.SendOffset{Value: 1, Unit: domain.UnitDays, TimeBlock: "06:00"}, now)
	want = time.Date(2026, 8, 31, 6, 0, 0, 0, time.UTC)
	if !due.Equal(want) {
		t.Errorf("offset+block: due=%v, want %v", due, want)
	}
}
