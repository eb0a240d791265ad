package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentIntentStatus string

const (
	IntentStatusRequiresCapture PaymentIntentStatus = "REQUIRES_CAPTURE"
	IntentStatusSucceeded       PaymentIntentStatus = "SUCCEEDED"
	IntentStatusFailed          PaymentIntentStatus = "FAILED"
)

type PreorderStatus string

const (
	PreorderStatusPending   PreorderStatus = "PENDING"
	PreorderStatusConfirmed PreorderStatus = "CONFIRMED"
	PreorderStatusCollected PreorderStatus = "COLLECTED"
	PreorderStatusRefunded  PreorderStatus = "REFUNDED"
)

// PaymentIntent mirrors an authorized-but-unsettled charge at the gateway.
// IntentID is the external gateway reference and is unique; webhook
// redelivery dedupes against it. Rows are never deleted.
type PaymentIntent struct {
	ID            uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	Provider      string              `gorm:"size:50;not null" json:"provider"`
	IntentID      string              `gorm:"size:255;uniqueIndex;not null" json:"intent_id"`
	ClientSecret  string              `gorm:"size:255" json:"-"`
	Status        PaymentIntentStatus `gorm:"size:30;not null;default:REQUIRES_CAPTURE;index" json:"status"`
	FailureReason string              `gorm:"type:text" json:"failure_reason,omitempty"`
	BillingName   string              `gorm:"size:255" json:"billing_name"`
	BillingEmail  string              `gorm:"size:255" json:"billing_email"`
	ShippingAddr  string              `gorm:"type:text" json:"shipping_address"`
	CreatedAt     time.Time           `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	CapturedAt    *time.Time          `json:"captured_at"`
}

func (PaymentIntent) TableName() string {
	return "payment_intents"
}

// Preorder is a committed order against a plushie item. UserID is nil for
// guest checkout, in which case GuestEmail is set.
type Preorder struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	UserID          *uuid.UUID      `gorm:"type:uuid;index" json:"user_id"`
	GuestEmail      *string         `gorm:"size:255" json:"guest_email,omitempty"`
	PlushieItemID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"plushie_item_id"`
	Quantity        int             `gorm:"not null" json:"quantity"`
	Price           decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	Status          PreorderStatus  `gorm:"size:30;not null;default:PENDING;index" json:"status"`
	PaymentIntentID *uuid.UUID      `gorm:"type:uuid;index" json:"payment_intent_id"`
	OrderRef        string          `gorm:"size:32;uniqueIndex;not null" json:"order_ref"`
	CreatedAt       time.Time       `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Preorder) TableName() string {
	return "preorders"
}

// WebhookEvent stores gateway webhook deliveries with deduplication
// metadata for idempotent processing.
type WebhookEvent struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Provider        string     `gorm:"size:50;not null;uniqueIndex:idx_webhook_provider_event,priority:1" json:"provider"`
	EventID         string     `gorm:"size:255;not null;uniqueIndex:idx_webhook_provider_event,priority:2" json:"event_id"`
	EventType       string     `gorm:"size:100;not null;index" json:"event_type"`
	Payload         string     `gorm:"type:text" json:"-"`
	ProcessedAt     *time.Time `json:"processed_at"`
	ProcessingError string     `gorm:"type:text" json:"processing_error,omitempty"`
	CreatedAt       time.Time  `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}

// CreateCheckoutRequest initiates a gateway checkout session in manual
// capture mode. GuestEmail is required when the caller is unauthenticated.
type CreateCheckoutRequest struct {
	PlushieItemID uuid.UUID `json:"plushie_item_id" binding:"required"`
	Quantity      int       `json:"quantity" binding:"required,min=1"`
	GuestEmail    string    `json:"guest_email"`
}

// CheckoutCompletedEvent is the parsed payload of a
// checkout.session.completed webhook delivery.
type CheckoutCompletedEvent struct {
	EventID       string
	IntentID      string
	ClientSecret  string
	PaymentStatus string
	PlushieItemID uuid.UUID
	Quantity      int
	UserID        *uuid.UUID
	GuestEmail    *string
	OrderRef      string
	BillingName   string
	BillingEmail  string
	ShippingAddr  string
	RawPayload    string
}

// CaptureFailure describes one preorder the batch capture could not settle.
type CaptureFailure struct {
	PreorderID uuid.UUID `json:"preorder_id"`
	Reason     string    `json:"reason"`
}

// CaptureReport is the aggregate result of an admin batch capture.
type CaptureReport struct {
	Success  bool             `json:"success"`
	Captured int              `json:"captured"`
	Failed   []CaptureFailure `json:"failed"`
}
