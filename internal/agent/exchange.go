package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/GustavPetterssonBjorklund/Statix/internal/nodeauth"
)

const exchangeTimeout = 10 * time.Second

// ExchangeClient trades the node's enrollment token for broker credentials
// against POST /nodes/auth/exchange.
type ExchangeClient struct {
	baseURL string
	http    *http.Client
}

// ExchangeOption customizes the client.
type ExchangeOption func(*ExchangeClient)

// WithHTTPClient substitutes the pooled HTTP client, for tests.
func WithHTTPClient(c *http.Client) ExchangeOption {
	return func(e *ExchangeClient) { e.http = c }
}

// NewExchangeClient creates a client for the given API base URL.
func NewExchangeClient(baseURL string, opts ...ExchangeOption) *ExchangeClient {
	e := &ExchangeClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: exchangeTimeout},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Exchange presents the node credentials and returns the broker coordinates.
func (e *ExchangeClient) Exchange(ctx context.Context, nodeID, nodeToken string) (*nodeauth.BrokerCredentials, error) {
	body, err := json.Marshal(map[string]string{
		"nodeId":    nodeID,
		"nodeToken": nodeToken,
	})
	if err != nil {
		return nil, fmt.Errorf("encode exchange request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.baseURL+"/nodes/auth/exchange", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("exchange request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read exchange response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("exchange failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded struct {
		MQTT nodeauth.BrokerCredentials `json:"mqtt"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode exchange response: %w", err)
	}
	if decoded.MQTT.Host == "" || decoded.MQTT.Port == 0 {
		return nil, fmt.Errorf("exchange returned incomplete broker coordinates")
	}
	return &decoded.MQTT, nil
}
