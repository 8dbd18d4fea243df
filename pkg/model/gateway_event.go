package model

import "encoding/json"

// Gateway webhook event types. Unknown types are acknowledged and recorded
// as ignored so the gateway stops retrying them.
const (
	GatewayEventPaymentSucceeded = "payment.succeeded"
	GatewayEventPaymentFailed    = "payment.failed"
	GatewayEventPaymentExpired   = "payment.expired"
	GatewayEventPaymentCanceled  = "payment.canceled"
)

// GatewayEvent is one inbound webhook notification from the payment
// gateway, already signature-verified by the time it is decoded.
type GatewayEvent struct {
	ID      string           `json:"id"`
	Type    string           `json:"type"`
	Created int64            `json:"created"`
	Data    GatewayEventData `json:"data"`
}

type GatewayEventData struct {
	IntentID      string `json:"intent_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// gatewayEnvelope is the gateway's native delivery shape: the event wraps a
// resource, and each layer nests its fields under attributes.
type gatewayEnvelope struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Type string `json:"type"`
			Data struct {
				ID         string `json:"id"`
				Attributes struct {
					PaymentIntentID string `json:"payment_intent_id"`
					Amount          int64  `json:"amount"`
					Currency        string `json:"currency"`
					FailureReason   string `json:"failure_reason,omitempty"`
				} `json:"attributes"`
			} `json:"data"`
		} `json:"attributes"`
	} `json:"data"`
}

// ParseGatewayEvent decodes a webhook body. The gateway delivers the nested
// attributes envelope; the flat shape is accepted as well so replayed or
// hand-crafted test deliveries keep working.
func ParseGatewayEvent(rawBody []byte) (*GatewayEvent, error) {
	var envelope gatewayEnvelope
	if err := json.Unmarshal(rawBody, &envelope); err != nil {
		return nil, err
	}
	if envelope.Data.Attributes.Type != "" {
		return &GatewayEvent{
			ID:   envelope.Data.ID,
			Type: envelope.Data.Attributes.Type,
			Data: GatewayEventData{
				IntentID:      envelope.Data.Attributes.Data.Attributes.PaymentIntentID,
				Amount:        envelope.Data.Attributes.Data.Attributes.Amount,
				Currency:      envelope.Data.Attributes.Data.Attributes.Currency,
				FailureReason: envelope.Data.Attributes.Data.Attributes.FailureReason,
			},
		}, nil
	}

	var event GatewayEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
