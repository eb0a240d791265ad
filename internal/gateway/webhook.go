package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// VerifySignature checks the HMAC-SHA256 hex signature the gateway sends
// over the raw webhook body.
func VerifySignature(body []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}

// WebhookEvent is the outer envelope of a gateway webhook delivery.
type WebhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object CheckoutSessionObject `json:"object"`
	} `json:"data"`
}

// CheckoutSessionObject is the checkout.session payload carried by
// checkout.session.completed events.
type CheckoutSessionObject struct {
	ID              string            `json:"id"`
	PaymentIntent   string            `json:"payment_intent"`
	ClientSecret    string            `json:"client_secret"`
	PaymentStatus   string            `json:"payment_status"`
	Metadata        map[string]string `json:"metadata"`
	CustomerDetails struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"customer_details"`
	Shipping struct {
		Address string `json:"address"`
	} `json:"shipping"`
}

// ParseWebhookEvent decodes and minimally validates a webhook body.
func ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("malformed webhook payload: %w", err)
	}
	if event.ID == "" || event.Type == "" {
		return nil, fmt.Errorf("webhook payload missing id or type")
	}
	return &event, nil
}
