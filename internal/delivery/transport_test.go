package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestHTTPTransportSend(t *testing.T) {
	var gotKey, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotKey = r.Header.Get("Idempotency-Key")
		gotAuth = r.Header.Get("Authorization")

		var msg Message
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			t.Errorf("decode body: %v", err)
		}
		json.NewEncoder(w).Encode(Result{Accepted: true, ProviderMessageID: "prov-42"})
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL, "secret", srv.Client())
	interactionID := uuid.New()
	res, err := tr.Send(context.Background(), Message{
		ClientID:       uuid.New(),
		CampaignID:     uuid.New(),
		Body:           "hello",
		IdempotencyKey: interactionID.String(),
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !res.Accepted || res.ProviderMessageID != "prov-42" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if gotKey != interactionID.String() {
		t.Fatalf("idempotency key = %q, want interaction id", gotKey)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("auth header = %q", gotAuth)
	}
}

func TestHTTPTransportSendRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"unknown client"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL, "secret", srv.Client())
	_, err := tr.Send(context.Background(), Message{IdempotencyKey: "k"})
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
}

func TestHTTPTransportStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/messages/known":
			json.NewEncoder(w).Encode(Result{Accepted: true, ProviderMessageID: "prov-7"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL, "secret", srv.Client())

	res, err := tr.Status(context.Background(), "known")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if res == nil || res.ProviderMessageID != "prov-7" {
		t.Fatalf("unexpected result: %+v", res)
	}

	res, err = tr.Status(context.Background(), "missing")
	if err != nil {
		t.Fatalf("status missing: %v", err)
	}
	if res != nil {
		t.Fatalf("expected nil for unknown key, got %+v", res)
	}
}
