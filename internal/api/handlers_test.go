package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/ignite/loyalty-core/internal/domain"
	"github.com/ignite/loyalty-core/internal/service/ledger"
)

type stubLedger struct {
	err     error
	balance domain.Balance
}

func (l *stubLedger) Accumulate(ctx context.Context, clientID, programID uuid.UUID, saleID *uuid.UUID, amount int64, expiryDays int) (*domain.LedgerTransaction, error) {
	if l.err != nil {
		return nil, l.err
	}
	return &domain.LedgerTransaction{ID: uuid.New(), ClientID: clientID, ProgramID: programID, Amount: amount}, nil
}

func (l *stubLedger) Redeem(ctx context.Context, clientID, programID uuid.UUID, saleID *uuid.UUID, amount int64) (*domain.LedgerTransaction, error) {
	if l.err != nil {
		return nil, l.err
	}
	return &domain.LedgerTransaction{ID: uuid.New(), ClientID: clientID, ProgramID: programID, Amount: amount}, nil
}

func (l *stubLedger) Balance(ctx context.Context, clientID, programID uuid.UUID) (*domain.Balance, error) {
	b := l.balance
	b.ClientID, b.ProgramID = clientID, programID
	return &b, nil
}

func (l *stubLedger) Transactions(ctx context.Context, clientID, programID uuid.UUID, limit int) ([]domain.LedgerTransaction, error) {
	return nil, nil
}

type stubSink struct{ got []domain.Event }

func (s *stubSink) Process(ctx context.Context, ev domain.Event) error {
	s.got = append(s.got, ev)
	return nil
}

type stubCampaigns struct {
	created  []*domain.Campaign
	byListID map[uuid.UUID]domain.Campaign
}

func (s *stubCampaigns) List(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]domain.Campaign, error) {
	var out []domain.Campaign
	for _, c := range s.byListID {
		if c.OrganizationID == orgID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *stubCampaigns) Get(ctx context.Context, orgID, id uuid.UUID) (*domain.Campaign, error) {
	if c, ok := s.byListID[id]; ok && c.OrganizationID == orgID {
		return &c, nil
	}
	return nil, nil
}

func (s *stubCampaigns) Create(ctx context.Context, c *domain.Campaign) error {
	c.ID = uuid.New()
	s.created = append(s.created, c)
	return nil
}

type stubCache struct{ invalidated []uuid.UUID }

func (s *stubCache) Invalidate(ctx context.Context, orgID uuid.UUID) {
	s.invalidated = append(s.invalidated, orgID)
}

type stubInteractions struct{}

func (stubInteractions) List(ctx context.Context, clientID, campaignID *uuid.UUID, limit int) ([]domain.Interaction, error) {
	return []domain.Interaction{}, nil
}

type stubConversions struct{}

func (stubConversions) ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit int) ([]domain.CampaignConversion, error) {
	return []domain.CampaignConversion{}, nil
}

func (stubConversions) RevenueByCampaign(ctx context.Context, orgID uuid.UUID) (map[uuid.UUID]int64, error) {
	return map[uuid.UUID]int64{}, nil
}

func newTestServer(l LedgerService, sink EventSink) (*Server, *stubCampaigns, *stubCache) {
	campaigns := &stubCampaigns{byListID: map[uuid.UUID]domain.Campaign{}}
	cache := &stubCache{}
	srv := NewServer(l, sink, campaigns, cache, stubInteractions{}, stubConversions{}, nil, nil)
	return srv, campaigns, cache
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestLedgerErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ledger.ErrInvalidAmount, http.StatusBadRequest},
		{ledger.ErrInsufficientBalance, http.StatusUnprocessableEntity},
		{ledger.ErrConcurrentConflict, http.StatusConflict},
		{nil, http.StatusCreated},
	}

	for _, tc := range cases {
		srv, _, _ := newTestServer(&stubLedger{err: tc.err}, &stubSink{})
		router := srv.Routes(nil)

		rec := postJSON(t, router, "/api/ledger/redeem", ledgerRequest{
			ClientID:  uuid.New(),
			ProgramID: uuid.New(),
			Amount:    500,
		})
		if rec.Code != tc.want {
			t.Errorf("err %v: status = %d, want %d", tc.err, rec.Code, tc.want)
		}
	}
}

func TestAccumulateRequiresIDs(t *testing.T) {
	srv, _, _ := newTestServer(&stubLedger{}, &stubSink{})
	router := srv.Routes(nil)

	rec := postJSON(t, router, "/api/ledger/accumulate", ledgerRequest{Amount: 100})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestEventAccepted(t *testing.T) {
	sink := &stubSink{}
	srv, _, _ := newTestServer(&stubLedger{}, sink)
	router := srv.Routes(nil)

	saleID := uuid.New()
	rec := postJSON(t, router, "/api/events", domain.Event{
		Type:           domain.EventSaleCompleted,
		ClientID:       uuid.New(),
		OrganizationID: uuid.New(),
		SaleID:         &saleID,
		Amount:         2000,
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	if len(sink.got) != 1 || sink.got[0].Type != domain.EventSaleCompleted {
		t.Fatalf("pipeline got %+v", sink.got)
	}
}

func TestEventValidation(t *testing.T) {
	srv, _, _ := newTestServer(&stubLedger{}, &stubSink{})
	router := srv.Routes(nil)

	// missing client for a client-scoped event
	rec := postJSON(t, router, "/api/events", domain.Event{
		Type:           domain.EventSaleCompleted,
		OrganizationID: uuid.New(),
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	// clock ticks have no client and must pass
	rec = postJSON(t, router, "/api/events", domain.Event{
		Type:           domain.EventClockTick,
		OrganizationID: uuid.New(),
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("clock tick status = %d, want 202", rec.Code)
	}
}

func TestCreateCampaignInvalidatesCache(t *testing.T) {
	srv, campaigns, cache := newTestServer(&stubLedger{}, &stubSink{})
	router := srv.Routes(nil)

	orgID := uuid.New()
	rec := postJSON(t, router, "/api/campaigns/", createCampaignRequest{
		OrganizationID: orgID,
		Name:           "welcome",
		Active:         true,
		TriggerType:    domain.TriggerNthPurchase,
		Params:         json.RawMessage(`{"count": 3}`),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if len(campaigns.created) != 1 {
		t.Fatalf("created %d campaigns", len(campaigns.created))
	}
	if p, ok := campaigns.created[0].Params.(domain.NthPurchaseParams); !ok || p.Count != 3 {
		t.Fatalf("params = %#v", campaigns.created[0].Params)
	}
	if len(cache.invalidated) != 1 || cache.invalidated[0] != orgID {
		t.Fatalf("cache invalidations = %v", cache.invalidated)
	}
}

func TestBalanceRead(t *testing.T) {
	srv, _, _ := newTestServer(&stubLedger{balance: domain.Balance{Available: 700, Accumulated: 1000, Redeemed: 300}}, &stubSink{})
	router := srv.Routes(nil)

	req := httptest.NewRequest(http.MethodGet,
		fmt.Sprintf("/api/balances/%s/%s", uuid.New(), uuid.New()), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var b domain.Balance
	if err := json.Unmarshal(rec.Body.Bytes(), &b); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b.Available != 700 {
		t.Fatalf("available = %d", b.Available)
	}
}

func TestInteractionsRequireFilter(t *testing.T) {
	srv, _, _ := newTestServer(&stubLedger{}, &stubSink{})
	router := srv.Routes(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/interactions", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 without filters", rec.Code)
	}
}
