package gateway

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Intent statuses as reported by the gateway. Only RequiresCapture intents
// may be captured; anything else is reported as a per-item failure.
const (
	IntentRequiresCapture = "requires_capture"
	IntentSucceeded       = "succeeded"
	IntentCanceled        = "canceled"
)

// CheckoutParams configures a hosted checkout session in manual capture
// mode: funds are authorized at completion, captured later by the admin
// approval flow.
type CheckoutParams struct {
	ItemID     uuid.UUID
	ItemName   string
	Quantity   int
	UnitPrice  decimal.Decimal
	Currency   string
	UserID     *uuid.UUID
	GuestEmail *string
	OrderRef   string
	SuccessURL string
	CancelURL  string
}

// CheckoutSession is the created hosted session reference.
type CheckoutSession struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// Intent is the gateway's live view of a payment intent.
type Intent struct {
	IntentID     string
	Status       string
	ClientSecret string
}

// Provider is the payment gateway collaborator. Implementations must be
// safe for concurrent use.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
	GetIntent(ctx context.Context, intentID string) (*Intent, error)
	CaptureIntent(ctx context.Context, intentID string) error
	RefundIntent(ctx context.Context, intentID string) error
}
