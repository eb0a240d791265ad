package handlers

import (
	"io"
	"log"
	"net/http"
	"strconv"

	"clauth/internal/config"
	"clauth/internal/gateway"
	"clauth/internal/models"
	"clauth/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type WebhookHandler struct {
	checkout *services.CheckoutService
	cfg      config.GatewayConfig
}

func NewWebhookHandler(checkout *services.CheckoutService, cfg config.GatewayConfig) *WebhookHandler {
	return &WebhookHandler{checkout: checkout, cfg: cfg}
}

// HandlePaymentWebhook consumes gateway events. Signature failures are
// rejected outright; once the signature checks out we answer 200 even when
// processing fails internally, to keep the gateway from redelivery storms,
// and log the failure instead.
// POST /webhooks/payment
func (h *WebhookHandler) HandlePaymentWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	if h.cfg.WebhookSecret != "" {
		sig := c.GetHeader("X-Webhook-Signature")
		if !gateway.VerifySignature(body, sig, h.cfg.WebhookSecret) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
			return
		}
	}

	event, err := gateway.ParseWebhookEvent(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}

	if event.Type != "checkout.session.completed" {
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	completed, err := parseCheckoutCompleted(event, body)
	if err != nil {
		log.Printf("[Webhook] Event %s has unusable payload: %v", event.ID, err)
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	if err := h.checkout.HandleCheckoutCompleted(c.Request.Context(), completed); err != nil {
		log.Printf("[Webhook] Processing failed for event %s: %v", event.ID, err)
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

func parseCheckoutCompleted(event *gateway.WebhookEvent, raw []byte) (*models.CheckoutCompletedEvent, error) {
	object := event.Data.Object

	itemID, err := uuid.Parse(object.Metadata["plushie_item_id"])
	if err != nil {
		return nil, err
	}

	quantity, err := strconv.Atoi(object.Metadata["quantity"])
	if err != nil {
		return nil, err
	}

	completed := &models.CheckoutCompletedEvent{
		EventID:       event.ID,
		IntentID:      object.PaymentIntent,
		ClientSecret:  object.ClientSecret,
		PaymentStatus: object.PaymentStatus,
		PlushieItemID: itemID,
		Quantity:      quantity,
		OrderRef:      object.Metadata["order_ref"],
		BillingName:   object.CustomerDetails.Name,
		BillingEmail:  object.CustomerDetails.Email,
		ShippingAddr:  object.Shipping.Address,
		RawPayload:    string(raw),
	}

	if rawUserID := object.Metadata["user_id"]; rawUserID != "" {
		userID, err := uuid.Parse(rawUserID)
		if err != nil {
			return nil, err
		}
		completed.UserID = &userID
	}
	if guestEmail := object.Metadata["guest_email"]; guestEmail != "" {
		completed.GuestEmail = &guestEmail
	}

	return completed, nil
}
