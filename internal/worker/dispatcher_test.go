package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/loyalty-core/internal/delivery"
	"github.com/ignite/loyalty-core/internal/domain"
)

type fakeStore struct {
	mu       sync.Mutex
	due      []domain.Interaction
	executed map[uuid.UUID]string
	failed   map[uuid.UUID]int
}

func newFakeStore(due ...domain.Interaction) *fakeStore {
	return &fakeStore{
		due:      due,
		executed: make(map[uuid.UUID]string),
		failed:   make(map[uuid.UUID]int),
	}
}

func (s *fakeStore) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Interaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Interaction, 0, len(s.due))
	for _, in := range s.due {
		if _, done := s.executed[in.ID]; !done {
			out = append(out, in)
		}
	}
	return out, nil
}

func (s *fakeStore) MarkExecuted(ctx context.Context, id uuid.UUID, providerMessageID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, done := s.executed[id]; done {
		return false, nil
	}
	s.executed[id] = providerMessageID
	return true, nil
}

func (s *fakeStore) MarkFailed(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[id]++
	return nil
}

type fakeCampaigns struct {
	byID map[uuid.UUID]*domain.Campaign
}

func (c *fakeCampaigns) GetByID(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	return c.byID[id], nil
}

type fakeProfiles struct{}

func (fakeProfiles) Get(ctx context.Context, clientID uuid.UUID) (*domain.ClientProfile, error) {
	return &domain.ClientProfile{ClientID: clientID, PurchaseCount: 3, LifetimeValue: 50000}, nil
}

type fakeTransport struct {
	mu       sync.Mutex
	sent     []delivery.Message
	failKeys map[string]bool
	// status answers for keys the provider accepted despite a send error
	statusOK map[string]string
}

func (t *fakeTransport) Send(ctx context.Context, msg delivery.Message) (*delivery.Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failKeys[msg.IdempotencyKey] {
		return nil, delivery.ErrDeliveryFailed
	}
	t.sent = append(t.sent, msg)
	return &delivery.Result{Accepted: true, ProviderMessageID: "prov-" + msg.IdempotencyKey[:8]}, nil
}

func (t *fakeTransport) Status(ctx context.Context, key string) (*delivery.Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.statusOK[key]; ok {
		return &delivery.Result{Accepted: true, ProviderMessageID: id}, nil
	}
	return nil, nil
}

func newTestDispatcher(store *fakeStore, campaigns *fakeCampaigns, tr *fakeTransport) *InteractionDispatcher {
	if campaigns == nil {
		campaigns = &fakeCampaigns{byID: map[uuid.UUID]*domain.Campaign{}}
	}
	return &InteractionDispatcher{
		store:     store,
		campaigns: campaigns,
		profiles:  fakeProfiles{},
		transport: tr,
		renderer:  delivery.NewRenderer(),
		provider:  "test",
		batchSize: DefaultDispatchBatchSize,
	}
}

func interactionFor(campaignID *uuid.UUID) domain.Interaction {
	amount := int64(1500)
	return domain.Interaction{
		ID:             uuid.New(),
		ClientID:       uuid.New(),
		CampaignID:     campaignID,
		ScheduledDate:  time.Now().Add(-time.Minute),
		DeliveryStatus: domain.DeliveryPending,
		TriggerAmount:  &amount,
		CreatedAt:      time.Now().Add(-time.Hour),
	}
}

func TestDispatchRendersTemplate(t *testing.T) {
	campaignID := uuid.New()
	campaigns := &fakeCampaigns{byID: map[uuid.UUID]*domain.Campaign{
		campaignID: {
			ID:              campaignID,
			MessageTemplate: "Voce tem {{ amount | money }} de cashback!",
		},
	}}
	in := interactionFor(&campaignID)
	store := newFakeStore(in)
	tr := &fakeTransport{}
	d := newTestDispatcher(store, campaigns, tr)

	if err := d.dispatch(context.Background(), &in); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(tr.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(tr.sent))
	}
	if tr.sent[0].Body != "Voce tem 15.00 de cashback!" {
		t.Fatalf("body = %q", tr.sent[0].Body)
	}
	if tr.sent[0].IdempotencyKey != in.ID.String() {
		t.Fatalf("idempotency key = %q", tr.sent[0].IdempotencyKey)
	}
	if store.executed[in.ID] == "" {
		t.Fatal("interaction not marked executed")
	}
}

func TestDispatchFailureLeavesUnexecuted(t *testing.T) {
	in := interactionFor(nil)
	store := newFakeStore(in)
	tr := &fakeTransport{failKeys: map[string]bool{in.ID.String(): true}}
	d := newTestDispatcher(store, nil, tr)

	err := d.dispatch(context.Background(), &in)
	if !errors.Is(err, delivery.ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
	if _, done := store.executed[in.ID]; done {
		t.Fatal("failed send must not mark executed")
	}
	if store.failed[in.ID] != 1 {
		t.Fatalf("failed count = %d, want 1", store.failed[in.ID])
	}
}

func TestDispatchRecoversViaStatusLookup(t *testing.T) {
	in := interactionFor(nil)
	store := newFakeStore(in)
	tr := &fakeTransport{
		failKeys: map[string]bool{in.ID.String(): true},
		statusOK: map[string]string{in.ID.String(): "prov-recovered"},
	}
	d := newTestDispatcher(store, nil, tr)

	if err := d.dispatch(context.Background(), &in); err != nil {
		t.Fatalf("dispatch should recover via status lookup: %v", err)
	}
	if store.executed[in.ID] != "prov-recovered" {
		t.Fatalf("executed provider id = %q", store.executed[in.ID])
	}
}

func TestDispatchFailureIsolation(t *testing.T) {
	bad := interactionFor(nil)
	good := interactionFor(nil)
	store := newFakeStore(bad, good)
	tr := &fakeTransport{failKeys: map[string]bool{bad.ID.String(): true}}
	d := newTestDispatcher(store, nil, tr)

	due, _ := store.ListDue(context.Background(), time.Now(), 10)
	for i := range due {
		d.dispatch(context.Background(), &due[i])
	}

	if _, done := store.executed[good.ID]; !done {
		t.Fatal("good interaction should execute despite the bad one")
	}
	if _, done := store.executed[bad.ID]; done {
		t.Fatal("bad interaction must stay unexecuted")
	}
}

func TestDispatchAlreadyExecutedIsNoError(t *testing.T) {
	in := interactionFor(nil)
	store := newFakeStore(in)
	store.executed[in.ID] = "prov-earlier"
	tr := &fakeTransport{}
	d := newTestDispatcher(store, nil, tr)

	if err := d.dispatch(context.Background(), &in); err != nil {
		t.Fatalf("dispatch on executed row: %v", err)
	}
	if store.executed[in.ID] != "prov-earlier" {
		t.Fatal("existing execution record must not be overwritten")
	}
}
