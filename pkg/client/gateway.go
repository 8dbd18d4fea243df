package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Gateway intent statuses as reported by the payment provider. Anything not
// listed here is treated as still in flight by the reconciliation sweep.
const (
	IntentSucceeded  = "succeeded"
	IntentFailed     = "payment_failed"
	IntentCanceled   = "canceled"
	IntentExpired    = "expired"
	IntentProcessing = "processing"
	IntentAwaiting   = "awaiting_payment_method"
)

// PaymentIntent is the gateway's view of one payment attempt.
type PaymentIntent struct {
	ID            string
	Status        string
	Amount        int64
	Currency      string
	FailureReason string
}

// GatewayClient polls the external payment gateway by intent id. It is the
// reconciliation sweeper's safety-net source of truth for attempts whose
// webhook never arrived.
type GatewayClient struct {
	BaseURL    string
	apiKey     string
	HTTPClient *http.Client
}

func NewGatewayClient(baseURL, apiKey string, timeout time.Duration) *GatewayClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GatewayClient{
		BaseURL: baseURL,
		apiKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type intentEnvelope struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Status           string `json:"status"`
			Amount           int64  `json:"amount"`
			Currency         string `json:"currency"`
			LastPaymentError string `json:"last_payment_error,omitempty"`
		} `json:"attributes"`
	} `json:"data"`
}

func (c *GatewayClient) GetPaymentIntent(ctx context.Context, intentID string) (*PaymentIntent, error) {
	url := fmt.Sprintf("%s/v1/payment_intents/%s", c.BaseURL, intentID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway request: %w", err)
	}
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(c.apiKey+":")))
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway returned status %d for intent %s", resp.StatusCode, intentID)
	}

	var envelope intentEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode gateway response: %w", err)
	}

	return &PaymentIntent{
		ID:            envelope.Data.ID,
		Status:        envelope.Data.Attributes.Status,
		Amount:        envelope.Data.Attributes.Amount,
		Currency:      envelope.Data.Attributes.Currency,
		FailureReason: envelope.Data.Attributes.LastPaymentError,
	}, nil
}

// CreatePaymentIntent opens an intent with the gateway for the given amount
// in minor units. Called from checkout; the intent id is stored on the
// payment attempt and later used for webhook matching and reconciliation.
func (c *GatewayClient) CreatePaymentIntent(ctx context.Context, amount int64, currency string, description string) (*PaymentIntent, error) {
	url := fmt.Sprintf("%s/v1/payment_intents", c.BaseURL)

	payload := map[string]any{
		"data": map[string]any{
			"attributes": map[string]any{
				"amount":      amount,
				"currency":    currency,
				"description": description,
			},
		},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode intent request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway request: %w", err)
	}
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(c.apiKey+":")))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("gateway returned status %d creating intent", resp.StatusCode)
	}

	var envelope intentEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode gateway response: %w", err)
	}

	return &PaymentIntent{
		ID:       envelope.Data.ID,
		Status:   envelope.Data.Attributes.Status,
		Amount:   envelope.Data.Attributes.Amount,
		Currency: envelope.Data.Attributes.Currency,
	}, nil
}
