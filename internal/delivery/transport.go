package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/loyalty-core/internal/pkg/httpretry"
)

// ErrDeliveryFailed wraps provider rejections and transport errors. The
// dispatcher treats it as retryable: the interaction stays unexecuted.
var ErrDeliveryFailed = errors.New("delivery failed")

// Message is one outbound campaign touch.
type Message struct {
	ClientID   uuid.UUID `json:"client_id"`
	CampaignID uuid.UUID `json:"campaign_id"`
	Body       string    `json:"body"`
	// IdempotencyKey is the interaction id. The provider deduplicates on
	// it, so a send retried after a timeout cannot double-deliver.
	IdempotencyKey string `json:"idempotency_key"`
}

// Result is the provider's acknowledgment of a send.
type Result struct {
	Accepted          bool   `json:"accepted"`
	ProviderMessageID string `json:"provider_message_id"`
}

// Transport sends messages to a provider.
type Transport interface {
	Send(ctx context.Context, msg Message) (*Result, error)
	// Status looks up a previous send by idempotency key. Used after a
	// timed-out Send to learn whether the provider accepted it.
	Status(ctx context.Context, idempotencyKey string) (*Result, error)
}

// HTTPTransport talks to the messaging provider's REST API with retry and
// backoff.
type HTTPTransport struct {
	baseURL string
	apiKey  string
	client  httpretry.HTTPDoer
}

// NewHTTPTransport builds a transport for the given provider endpoint.
// A nil doer gets the default retrying client.
func NewHTTPTransport(baseURL, apiKey string, doer httpretry.HTTPDoer) *HTTPTransport {
	if doer == nil {
		doer = httpretry.NewRetryClient(&http.Client{Timeout: 15 * time.Second}, 3)
	}
	return &HTTPTransport{baseURL: baseURL, apiKey: apiKey, client: doer}
}

// Send posts the message. Provider 4xx responses are permanent and come
// back as ErrDeliveryFailed without a result; the retrying client already
// handled transient 5xx.
func (t *HTTPTransport) Send(ctx context.Context, msg Message) (*Result, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Idempotency-Key", msg.IdempotencyKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: provider returned %d: %s", ErrDeliveryFailed, resp.StatusCode, bytes.TrimSpace(body))
	}

	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrDeliveryFailed, err)
	}
	return &res, nil
}

// Status asks the provider whether a message with this idempotency key was
// accepted. Returns nil when the provider has no record of it.
func (t *HTTPTransport) Status(ctx context.Context, idempotencyKey string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/v1/messages/"+idempotencyKey, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status lookup returned %d", ErrDeliveryFailed, resp.StatusCode)
	}

	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrDeliveryFailed, err)
	}
	return &res, nil
}
