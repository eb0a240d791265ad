package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"clauth/internal/apperrors"
	"clauth/internal/config"
	"clauth/internal/gateway"
	"clauth/internal/models"
	"clauth/internal/repository"
	"clauth/internal/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CheckoutService couples checkout-session creation, webhook-driven
// preorder creation, and the admin batch capture that settles authorized
// funds once an item reaches its funding goal.
type CheckoutService struct {
	repo     *repository.Repository
	provider gateway.Provider
	cfg      config.GatewayConfig
}

func NewCheckoutService(repo *repository.Repository, provider gateway.Provider, cfg config.GatewayConfig) *CheckoutService {
	return &CheckoutService{repo: repo, provider: provider, cfg: cfg}
}

// CreateCheckout opens a gateway checkout session in manual capture mode.
// No local preorder rows are written here; those arrive via the completion
// webhook. user is nil for guest checkout, which requires a guest email.
func (cs *CheckoutService) CreateCheckout(ctx context.Context, user *models.AuthenticatedUser, req *models.CreateCheckoutRequest) (*gateway.CheckoutSession, error) {
	if req.Quantity < 1 {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "quantity must be at least 1")
	}
	if user == nil && req.GuestEmail == "" {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "guest checkout requires an email")
	}

	item, err := cs.repo.GetItemByID(ctx, req.PlushieItemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Wrap(apperrors.ErrNotFound, "item %s", req.PlushieItemID)
		}
		return nil, fmt.Errorf("failed to load item: %w", err)
	}

	if item.Status != models.ItemStatusPending {
		return nil, apperrors.Wrap(apperrors.ErrConflict, "item is no longer accepting preorders")
	}

	orderRef, err := utils.GenerateOrderRef()
	if err != nil {
		return nil, err
	}

	params := gateway.CheckoutParams{
		ItemID:     item.ID,
		ItemName:   item.Name,
		Quantity:   req.Quantity,
		UnitPrice:  item.Price,
		Currency:   "usd",
		OrderRef:   orderRef,
		SuccessURL: cs.cfg.SuccessURL,
		CancelURL:  cs.cfg.CancelURL,
	}
	if user != nil {
		params.UserID = &user.ID
	} else {
		params.GuestEmail = &req.GuestEmail
	}

	session, err := cs.provider.CreateCheckoutSession(ctx, params)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrUpstream, "gateway checkout failed: %v", err)
	}

	return session, nil
}

// HandleCheckoutCompleted processes one checkout.session.completed event.
// Idempotent against redelivery: the (provider, event_id) unique index
// short-circuits replays of deliveries that already processed, and the
// unique external intent id catches gateways that re-issue the event under
// a fresh id. A stored delivery whose processing previously failed is
// retried, so a transient failure does not burn the event id forever.
// One transaction creates the PaymentIntent, the Preorder, and the pledged
// increment together.
func (cs *CheckoutService) HandleCheckoutCompleted(ctx context.Context, event *models.CheckoutCompletedEvent) error {
	record := &models.WebhookEvent{
		ID:        uuid.New(),
		Provider:  cs.cfg.Provider,
		EventID:   event.EventID,
		EventType: "checkout.session.completed",
		Payload:   event.RawPayload,
		CreatedAt: time.Now(),
	}
	if err := cs.repo.CreateWebhookEvent(ctx, record); err != nil {
		if !repository.IsUniqueViolation(err) {
			return fmt.Errorf("failed to record webhook event: %w", err)
		}

		existing, lookupErr := cs.repo.GetWebhookEvent(ctx, cs.cfg.Provider, event.EventID)
		if lookupErr != nil {
			return fmt.Errorf("failed to load stored webhook event: %w", lookupErr)
		}
		if existing.ProcessedAt != nil {
			log.Printf("[Checkout] Ignoring redelivered webhook event %s", event.EventID)
			return nil
		}
		log.Printf("[Checkout] Retrying webhook event %s after earlier failure", event.EventID)
		record = existing
	}

	if err := cs.processCheckoutCompleted(ctx, event); err != nil {
		record.ProcessingError = err.Error()
		if updateErr := cs.repo.UpdateWebhookEvent(ctx, record); updateErr != nil {
			log.Printf("[Checkout] Failed to record webhook error: %v", updateErr)
		}
		return err
	}

	now := time.Now()
	record.ProcessedAt = &now
	record.ProcessingError = ""
	if err := cs.repo.UpdateWebhookEvent(ctx, record); err != nil {
		log.Printf("[Checkout] Failed to mark webhook processed: %v", err)
	}
	return nil
}

func (cs *CheckoutService) processCheckoutCompleted(ctx context.Context, event *models.CheckoutCompletedEvent) error {
	if event.IntentID == "" {
		return apperrors.Wrap(apperrors.ErrValidation, "event missing payment intent id")
	}
	if event.Quantity < 1 {
		return apperrors.Wrap(apperrors.ErrValidation, "event has invalid quantity")
	}

	existing, err := cs.repo.GetPaymentIntentByExternalID(ctx, event.IntentID)
	if err != nil {
		return fmt.Errorf("failed to check intent dedupe: %w", err)
	}
	if existing != nil {
		log.Printf("[Checkout] Intent %s already reconciled, skipping", event.IntentID)
		return nil
	}

	return cs.repo.Transaction(ctx, func(tx *repository.Repository) error {
		// Lock the item so the status check and the pledged increment see
		// a consistent row even against a concurrent admin cancellation.
		item, err := tx.LockItem(ctx, event.PlushieItemID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.Wrap(apperrors.ErrNotFound, "item %s", event.PlushieItemID)
			}
			return fmt.Errorf("failed to load item: %w", err)
		}
		if item.Status == models.ItemStatusCanceled {
			return apperrors.Wrap(apperrors.ErrConflict, "item %s is canceled", item.ID)
		}

		intent := &models.PaymentIntent{
			ID:           uuid.New(),
			Provider:     cs.cfg.Provider,
			IntentID:     event.IntentID,
			ClientSecret: event.ClientSecret,
			Status:       models.IntentStatusRequiresCapture,
			BillingName:  event.BillingName,
			BillingEmail: event.BillingEmail,
			ShippingAddr: event.ShippingAddr,
			CreatedAt:    time.Now(),
		}
		if err := tx.CreatePaymentIntent(ctx, intent); err != nil {
			if repository.IsUniqueViolation(err) {
				// Concurrent redelivery won the race; nothing to do
				return nil
			}
			return fmt.Errorf("failed to create payment intent: %w", err)
		}

		orderRef := event.OrderRef
		if orderRef == "" {
			generated, err := utils.GenerateOrderRef()
			if err != nil {
				return err
			}
			orderRef = generated
		}

		preorder := &models.Preorder{
			ID:              uuid.New(),
			UserID:          event.UserID,
			GuestEmail:      event.GuestEmail,
			PlushieItemID:   item.ID,
			Quantity:        event.Quantity,
			Price:           item.Price,
			Status:          models.PreorderStatusConfirmed,
			PaymentIntentID: &intent.ID,
			OrderRef:        orderRef,
			CreatedAt:       time.Now(),
		}
		if err := tx.CreatePreorder(ctx, preorder); err != nil {
			return fmt.Errorf("failed to create preorder: %w", err)
		}

		if err := tx.AdjustPledged(ctx, item.ID, event.Quantity); err != nil {
			return fmt.Errorf("failed to increment pledged: %w", err)
		}
		return nil
	})
}

// ApproveItem is the admin batch capture. Preconditions: item PENDING and
// pledged at goal. Each preorder's gateway call + ledger update is its own
// transaction; one failure never aborts the rest of the batch. The item is
// promoted to IN_PRODUCTION when at least one capture succeeded.
func (cs *CheckoutService) ApproveItem(ctx context.Context, itemID uuid.UUID) (*models.CaptureReport, error) {
	item, err := cs.repo.GetItemByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Wrap(apperrors.ErrNotFound, "item %s", itemID)
		}
		return nil, fmt.Errorf("failed to load item: %w", err)
	}

	if item.Status != models.ItemStatusPending {
		return nil, apperrors.Wrap(apperrors.ErrConflict, "item is not pending approval")
	}
	if item.Pledged < item.MinimumGoal {
		return nil, apperrors.Wrap(apperrors.ErrConflict, "goal not reached: %d of %d pledged", item.Pledged, item.MinimumGoal)
	}

	preorders, err := cs.repo.PreordersForCapture(ctx, itemID, []models.PreorderStatus{
		models.PreorderStatusPending,
		models.PreorderStatusConfirmed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list preorders: %w", err)
	}

	report := &models.CaptureReport{Failed: []models.CaptureFailure{}}
	for i := range preorders {
		if err := cs.captureOne(ctx, &preorders[i]); err != nil {
			log.Printf("[Checkout] Capture failed for preorder %s: %v", preorders[i].ID, err)
			report.Failed = append(report.Failed, models.CaptureFailure{
				PreorderID: preorders[i].ID,
				Reason:     err.Error(),
			})
			continue
		}
		report.Captured++
	}

	report.Success = report.Captured > 0
	if report.Success {
		if err := cs.repo.UpdateItemStatus(ctx, itemID, models.ItemStatusInProduction); err != nil {
			return nil, fmt.Errorf("failed to promote item: %w", err)
		}
	}

	log.Printf("[Checkout] Batch capture for item %s: %d captured, %d failed", itemID, report.Captured, len(report.Failed))
	return report, nil
}

// captureOne settles a single preorder: re-fetch the live intent, capture
// if capturable, then mark intent SUCCEEDED and preorder COLLECTED
// together. Gateway failures mark the intent FAILED with the reason and
// leave the preorder unchanged.
func (cs *CheckoutService) captureOne(ctx context.Context, preorder *models.Preorder) error {
	intent, err := cs.repo.GetPaymentIntentByID(ctx, *preorder.PaymentIntentID)
	if err != nil {
		return fmt.Errorf("payment record missing: %w", err)
	}
	if intent.Status == models.IntentStatusSucceeded {
		return fmt.Errorf("intent %s already settled", intent.IntentID)
	}

	callCtx, cancel := context.WithTimeout(ctx, cs.cfg.CaptureTimeout)
	defer cancel()

	live, err := cs.provider.GetIntent(callCtx, intent.IntentID)
	if err != nil {
		cs.markIntentFailed(ctx, intent, fmt.Sprintf("intent lookup failed: %v", err))
		return fmt.Errorf("intent lookup failed: %w", err)
	}
	if live.Status != gateway.IntentRequiresCapture {
		cs.markIntentFailed(ctx, intent, fmt.Sprintf("intent not capturable, gateway status %s", live.Status))
		return fmt.Errorf("intent not capturable, gateway status %s", live.Status)
	}

	if err := cs.provider.CaptureIntent(callCtx, intent.IntentID); err != nil {
		cs.markIntentFailed(ctx, intent, err.Error())
		return fmt.Errorf("capture failed: %w", err)
	}

	now := time.Now()
	return cs.repo.Transaction(ctx, func(tx *repository.Repository) error {
		intent.Status = models.IntentStatusSucceeded
		intent.FailureReason = ""
		intent.CapturedAt = &now
		if err := tx.UpdatePaymentIntent(ctx, intent); err != nil {
			return err
		}

		preorder.Status = models.PreorderStatusCollected
		return tx.UpdatePreorder(ctx, preorder)
	})
}

func (cs *CheckoutService) markIntentFailed(ctx context.Context, intent *models.PaymentIntent, reason string) {
	intent.Status = models.IntentStatusFailed
	intent.FailureReason = reason
	if err := cs.repo.UpdatePaymentIntent(ctx, intent); err != nil {
		log.Printf("[Checkout] Failed to record capture failure on intent %s: %v", intent.IntentID, err)
	}
}

// RefundPreorder issues a gateway refund then marks the preorder REFUNDED
// and the intent FAILED (terminal). The pledged counter is restored only
// when RefundRestoresPledged is configured; the historical default keeps
// goal-reached records intact.
func (cs *CheckoutService) RefundPreorder(ctx context.Context, preorderID uuid.UUID) error {
	preorder, err := cs.repo.GetPreorderByID(ctx, preorderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.Wrap(apperrors.ErrNotFound, "preorder %s", preorderID)
		}
		return fmt.Errorf("failed to load preorder: %w", err)
	}

	if preorder.Status == models.PreorderStatusRefunded {
		return apperrors.Wrap(apperrors.ErrConflict, "preorder already refunded")
	}
	if preorder.PaymentIntentID == nil {
		return apperrors.Wrap(apperrors.ErrConflict, "preorder has no payment record")
	}

	intent, err := cs.repo.GetPaymentIntentByID(ctx, *preorder.PaymentIntentID)
	if err != nil {
		return fmt.Errorf("payment record missing: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, cs.cfg.CaptureTimeout)
	defer cancel()

	if err := cs.provider.RefundIntent(callCtx, intent.IntentID); err != nil {
		return apperrors.Wrap(apperrors.ErrUpstream, "gateway refund failed: %v", err)
	}

	return cs.repo.Transaction(ctx, func(tx *repository.Repository) error {
		preorder.Status = models.PreorderStatusRefunded
		if err := tx.UpdatePreorder(ctx, preorder); err != nil {
			return err
		}

		intent.Status = models.IntentStatusFailed
		intent.FailureReason = "refunded"
		if err := tx.UpdatePaymentIntent(ctx, intent); err != nil {
			return err
		}

		if cs.cfg.RefundRestoresPledged {
			return tx.AdjustPledged(ctx, preorder.PlushieItemID, -preorder.Quantity)
		}
		return nil
	})
}

// CancelPreorder deletes an owner's preorder while it is still in a
// cancelable pre-capture state. The delete and the pledged decrement
// commit together or not at all.
func (cs *CheckoutService) CancelPreorder(ctx context.Context, user models.AuthenticatedUser, preorderID uuid.UUID) error {
	preorder, err := cs.repo.GetPreorderByID(ctx, preorderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.Wrap(apperrors.ErrNotFound, "preorder %s", preorderID)
		}
		return fmt.Errorf("failed to load preorder: %w", err)
	}

	owned := preorder.UserID != nil && *preorder.UserID == user.ID
	if !owned && !user.IsAdmin() {
		return apperrors.Wrap(apperrors.ErrForbidden, "not your preorder")
	}

	if preorder.Status != models.PreorderStatusPending && preorder.Status != models.PreorderStatusConfirmed {
		return apperrors.Wrap(apperrors.ErrConflict, "preorder is no longer cancelable")
	}

	if preorder.PaymentIntentID != nil {
		intent, err := cs.repo.GetPaymentIntentByID(ctx, *preorder.PaymentIntentID)
		if err != nil {
			return fmt.Errorf("payment record missing: %w", err)
		}
		if intent.Status == models.IntentStatusSucceeded {
			return apperrors.Wrap(apperrors.ErrConflict, "payment already captured, request a refund instead")
		}
	}

	return cs.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.DeletePreorder(ctx, preorder.ID); err != nil {
			return err
		}
		return tx.AdjustPledged(ctx, preorder.PlushieItemID, -preorder.Quantity)
	})
}
