package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"clauth/internal/apperrors"
	"clauth/internal/config"
	"clauth/internal/gateway"
	"clauth/internal/models"
	"clauth/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// fakeProvider is an in-memory gateway double. Intents default to
// requires_capture; failCapture forces per-intent capture errors.
type fakeProvider struct {
	mu          sync.Mutex
	statuses    map[string]string
	failCapture map[string]bool
	captured    []string
	refunded    []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		statuses:    make(map[string]string),
		failCapture: make(map[string]bool),
	}
}

func (f *fakeProvider) CreateCheckoutSession(ctx context.Context, params gateway.CheckoutParams) (*gateway.CheckoutSession, error) {
	return &gateway.CheckoutSession{
		SessionID: "cs_test_" + params.OrderRef,
		URL:       "https://pay.example.test/cs_test_" + params.OrderRef,
	}, nil
}

func (f *fakeProvider) GetIntent(ctx context.Context, intentID string) (*gateway.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.statuses[intentID]
	if !ok {
		status = gateway.IntentRequiresCapture
	}
	return &gateway.Intent{IntentID: intentID, Status: status}, nil
}

func (f *fakeProvider) CaptureIntent(ctx context.Context, intentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCapture[intentID] {
		return fmt.Errorf("card declined")
	}
	f.statuses[intentID] = gateway.IntentSucceeded
	f.captured = append(f.captured, intentID)
	return nil
}

func (f *fakeProvider) RefundIntent(ctx context.Context, intentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refunded = append(f.refunded, intentID)
	return nil
}

func newTestCheckoutService(repo *repository.Repository, provider gateway.Provider, restorePledged bool) *CheckoutService {
	return NewCheckoutService(repo, provider, config.GatewayConfig{
		Provider:              "testpay",
		CaptureTimeout:        2 * time.Second,
		SuccessURL:            "https://shop.example.test/success",
		CancelURL:             "https://shop.example.test/cancel",
		RefundRestoresPledged: restorePledged,
	})
}

func createTestItem(t *testing.T, db *gorm.DB, goal int) *models.PlushieItem {
	item := &models.PlushieItem{
		ID:          uuid.New(),
		Name:        "Moon Bunny",
		Slug:        "moon-bunny-" + uuid.NewString()[:8],
		Price:       decimal.NewFromFloat(29.99),
		MinimumGoal: goal,
		Status:      models.ItemStatusPending,
	}
	if err := db.Create(item).Error; err != nil {
		t.Fatalf("seed item: %v", err)
	}
	return item
}

func checkoutEvent(itemID uuid.UUID, eventID, intentID, orderRef string, quantity int, userID *uuid.UUID) *models.CheckoutCompletedEvent {
	return &models.CheckoutCompletedEvent{
		EventID:       eventID,
		IntentID:      intentID,
		PaymentStatus: "paid",
		PlushieItemID: itemID,
		Quantity:      quantity,
		UserID:        userID,
		OrderRef:      orderRef,
		BillingName:   "Test Buyer",
		BillingEmail:  "buyer@example.test",
		RawPayload:    `{"id":"` + eventID + `"}`,
	}
}

func reloadItem(t *testing.T, db *gorm.DB, id uuid.UUID) *models.PlushieItem {
	var item models.PlushieItem
	if err := db.Where("id = ?", id).First(&item).Error; err != nil {
		t.Fatalf("reload item: %v", err)
	}
	return &item
}

func TestCreateCheckoutValidation(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewRepository(db)
	service := newTestCheckoutService(repo, newFakeProvider(), false)
	ctx := context.Background()

	item := createTestItem(t, db, 10)

	_, err := service.CreateCheckout(ctx, nil, &models.CreateCheckoutRequest{
		PlushieItemID: item.ID, Quantity: 0, GuestEmail: "buyer@example.test",
	})
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("expected validation error for zero quantity, got %v", err)
	}

	_, err = service.CreateCheckout(ctx, nil, &models.CreateCheckoutRequest{
		PlushieItemID: item.ID, Quantity: 1,
	})
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("expected validation error for guest without email, got %v", err)
	}

	session, err := service.CreateCheckout(ctx, nil, &models.CreateCheckoutRequest{
		PlushieItemID: item.ID, Quantity: 1, GuestEmail: "buyer@example.test",
	})
	if err != nil {
		t.Fatalf("guest checkout failed: %v", err)
	}
	if session.URL == "" || session.SessionID == "" {
		t.Errorf("expected a populated session, got %+v", session)
	}

	// No local rows until the webhook lands
	var preorders int64
	db.Model(&models.Preorder{}).Count(&preorders)
	if preorders != 0 {
		t.Errorf("checkout must not create preorders, found %d", preorders)
	}
}

func TestCreateCheckoutRejectsClosedItem(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewRepository(db)
	service := newTestCheckoutService(repo, newFakeProvider(), false)

	item := createTestItem(t, db, 10)
	if err := db.Model(item).Update("status", models.ItemStatusInProduction).Error; err != nil {
		t.Fatalf("update item: %v", err)
	}

	_, err := service.CreateCheckout(context.Background(), nil, &models.CreateCheckoutRequest{
		PlushieItemID: item.ID, Quantity: 1, GuestEmail: "buyer@example.test",
	})
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("expected conflict for non-pending item, got %v", err)
	}
}

func TestHandleCheckoutCompletedCreatesLedgerRows(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewRepository(db)
	service := newTestCheckoutService(repo, newFakeProvider(), false)
	ctx := context.Background()

	item := createTestItem(t, db, 10)
	buyer := createTestUser(t, db, "buyer")

	event := checkoutEvent(item.ID, "evt_1", "pi_1", "CL-TEST0001", 2, &buyer.ID)
	if err := service.HandleCheckoutCompleted(ctx, event); err != nil {
		t.Fatalf("HandleCheckoutCompleted failed: %v", err)
	}

	var preorder models.Preorder
	if err := db.Where("order_ref = ?", "CL-TEST0001").First(&preorder).Error; err != nil {
		t.Fatalf("preorder not created: %v", err)
	}
	if preorder.Status != models.PreorderStatusConfirmed {
		t.Errorf("expected CONFIRMED, got %s", preorder.Status)
	}
	if preorder.Quantity != 2 {
		t.Errorf("expected quantity 2, got %d", preorder.Quantity)
	}
	if preorder.PaymentIntentID == nil {
		t.Fatal("preorder must reference its payment intent")
	}

	var intent models.PaymentIntent
	if err := db.Where("intent_id = ?", "pi_1").First(&intent).Error; err != nil {
		t.Fatalf("payment intent not created: %v", err)
	}
	if intent.Status != models.IntentStatusRequiresCapture {
		t.Errorf("intent should await capture, got %s", intent.Status)
	}

	if got := reloadItem(t, db, item.ID).Pledged; got != 2 {
		t.Errorf("expected pledged 2, got %d", got)
	}
}

func TestHandleCheckoutCompletedRedelivery(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewRepository(db)
	service := newTestCheckoutService(repo, newFakeProvider(), false)
	ctx := context.Background()

	item := createTestItem(t, db, 10)
	event := checkoutEvent(item.ID, "evt_1", "pi_1", "CL-TEST0001", 1, nil)
	guest := "buyer@example.test"
	event.GuestEmail = &guest

	// Same delivery twice
	if err := service.HandleCheckoutCompleted(ctx, event); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := service.HandleCheckoutCompleted(ctx, event); err != nil {
		t.Fatalf("redelivery must be swallowed: %v", err)
	}

	// Fresh event id, same underlying intent
	reissued := checkoutEvent(item.ID, "evt_2", "pi_1", "CL-TEST0002", 1, nil)
	reissued.GuestEmail = &guest
	if err := service.HandleCheckoutCompleted(ctx, reissued); err != nil {
		t.Fatalf("reissued event must be swallowed: %v", err)
	}

	var preorders int64
	db.Model(&models.Preorder{}).Count(&preorders)
	if preorders != 1 {
		t.Errorf("expected exactly one preorder, got %d", preorders)
	}
	if got := reloadItem(t, db, item.ID).Pledged; got != 1 {
		t.Errorf("pledged must be incremented exactly once, got %d", got)
	}
}

func TestHandleCheckoutCompletedRetriesAfterFailure(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewRepository(db)
	service := newTestCheckoutService(repo, newFakeProvider(), false)
	ctx := context.Background()

	// First delivery fails: the referenced item does not exist yet
	missingID := uuid.New()
	event := checkoutEvent(missingID, "evt_1", "pi_1", "CL-TEST0001", 1, nil)
	if err := service.HandleCheckoutCompleted(ctx, event); err == nil {
		t.Fatal("expected failure for an unknown item")
	}

	var record models.WebhookEvent
	if err := db.Where("event_id = ?", "evt_1").First(&record).Error; err != nil {
		t.Fatalf("delivery row not stored: %v", err)
	}
	if record.ProcessedAt != nil || record.ProcessingError == "" {
		t.Fatalf("failed delivery must stay unprocessed with a reason, got processed_at=%v error=%q",
			record.ProcessedAt, record.ProcessingError)
	}

	// The failure cause clears; the same event id must be retryable
	item := &models.PlushieItem{
		ID: missingID, Name: "Moon Bunny", Slug: "moon-bunny",
		Price: decimal.NewFromFloat(29.99), MinimumGoal: 5,
		Status: models.ItemStatusPending,
	}
	if err := db.Create(item).Error; err != nil {
		t.Fatalf("seed item: %v", err)
	}

	if err := service.HandleCheckoutCompleted(ctx, event); err != nil {
		t.Fatalf("redelivery after failure must reprocess: %v", err)
	}

	var preorders int64
	db.Model(&models.Preorder{}).Count(&preorders)
	if preorders != 1 {
		t.Errorf("expected the retried delivery to create the preorder, got %d", preorders)
	}
	if got := reloadItem(t, db, item.ID).Pledged; got != 1 {
		t.Errorf("expected pledged 1 after retry, got %d", got)
	}

	if err := db.Where("event_id = ?", "evt_1").First(&record).Error; err != nil {
		t.Fatalf("reload delivery row: %v", err)
	}
	if record.ProcessedAt == nil || record.ProcessingError != "" {
		t.Errorf("retried delivery must be marked processed with the error cleared, got processed_at=%v error=%q",
			record.ProcessedAt, record.ProcessingError)
	}

	// And a further redelivery is now a no-op
	if err := service.HandleCheckoutCompleted(ctx, event); err != nil {
		t.Fatalf("post-success redelivery: %v", err)
	}
	db.Model(&models.Preorder{}).Count(&preorders)
	if preorders != 1 {
		t.Errorf("expected one preorder after post-success redelivery, got %d", preorders)
	}
}

func TestApproveItemGoalNotReached(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewRepository(db)
	service := newTestCheckoutService(repo, newFakeProvider(), false)
	ctx := context.Background()

	item := createTestItem(t, db, 5)
	if err := service.HandleCheckoutCompleted(ctx, checkoutEvent(item.ID, "evt_1", "pi_1", "CL-TEST0001", 1, nil)); err != nil {
		t.Fatalf("seed preorder: %v", err)
	}

	_, err := service.ApproveItem(ctx, item.ID)
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("expected conflict below goal, got %v", err)
	}
	if got := reloadItem(t, db, item.ID).Status; got != models.ItemStatusPending {
		t.Errorf("item must stay PENDING below goal, got %s", got)
	}
}

func TestApproveItemBatchCapturePartialFailure(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewRepository(db)
	provider := newFakeProvider()
	service := newTestCheckoutService(repo, provider, false)
	ctx := context.Background()

	item := createTestItem(t, db, 2)
	if err := service.HandleCheckoutCompleted(ctx, checkoutEvent(item.ID, "evt_1", "pi_1", "CL-TEST0001", 1, nil)); err != nil {
		t.Fatalf("seed preorder 1: %v", err)
	}
	if err := service.HandleCheckoutCompleted(ctx, checkoutEvent(item.ID, "evt_2", "pi_2", "CL-TEST0002", 1, nil)); err != nil {
		t.Fatalf("seed preorder 2: %v", err)
	}

	provider.failCapture["pi_2"] = true

	report, err := service.ApproveItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("ApproveItem failed: %v", err)
	}

	if report.Captured != 1 || len(report.Failed) != 1 {
		t.Fatalf("expected 1 captured / 1 failed, got %d / %d", report.Captured, len(report.Failed))
	}
	if !report.Success {
		t.Error("a partially captured batch still counts as success")
	}

	// One failure must not block the item promotion
	if got := reloadItem(t, db, item.ID).Status; got != models.ItemStatusInProduction {
		t.Errorf("expected IN_PRODUCTION, got %s", got)
	}

	var captured models.PaymentIntent
	if err := db.Where("intent_id = ?", "pi_1").First(&captured).Error; err != nil {
		t.Fatalf("load intent: %v", err)
	}
	if captured.Status != models.IntentStatusSucceeded || captured.CapturedAt == nil {
		t.Errorf("captured intent should be SUCCEEDED with a timestamp, got %s", captured.Status)
	}

	var failed models.PaymentIntent
	if err := db.Where("intent_id = ?", "pi_2").First(&failed).Error; err != nil {
		t.Fatalf("load intent: %v", err)
	}
	if failed.Status != models.IntentStatusFailed || failed.FailureReason == "" {
		t.Errorf("failed intent should be FAILED with a reason, got %s %q", failed.Status, failed.FailureReason)
	}

	var collected models.Preorder
	if err := db.Where("order_ref = ?", "CL-TEST0001").First(&collected).Error; err != nil {
		t.Fatalf("load preorder: %v", err)
	}
	if collected.Status != models.PreorderStatusCollected {
		t.Errorf("captured preorder should be COLLECTED, got %s", collected.Status)
	}

	var stuck models.Preorder
	if err := db.Where("order_ref = ?", "CL-TEST0002").First(&stuck).Error; err != nil {
		t.Fatalf("load preorder: %v", err)
	}
	if stuck.Status != models.PreorderStatusConfirmed {
		t.Errorf("failed preorder must stay CONFIRMED for retry, got %s", stuck.Status)
	}
}

func TestRefundPreorderKeepsPledgedByDefault(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewRepository(db)
	provider := newFakeProvider()
	service := newTestCheckoutService(repo, provider, false)
	ctx := context.Background()

	item := createTestItem(t, db, 2)
	if err := service.HandleCheckoutCompleted(ctx, checkoutEvent(item.ID, "evt_1", "pi_1", "CL-TEST0001", 2, nil)); err != nil {
		t.Fatalf("seed preorder: %v", err)
	}

	var preorder models.Preorder
	if err := db.Where("order_ref = ?", "CL-TEST0001").First(&preorder).Error; err != nil {
		t.Fatalf("load preorder: %v", err)
	}

	if err := service.RefundPreorder(ctx, preorder.ID); err != nil {
		t.Fatalf("RefundPreorder failed: %v", err)
	}

	if len(provider.refunded) != 1 || provider.refunded[0] != "pi_1" {
		t.Errorf("expected one gateway refund of pi_1, got %v", provider.refunded)
	}

	if err := db.Where("id = ?", preorder.ID).First(&preorder).Error; err != nil {
		t.Fatalf("reload preorder: %v", err)
	}
	if preorder.Status != models.PreorderStatusRefunded {
		t.Errorf("expected REFUNDED, got %s", preorder.Status)
	}

	// Goal accounting is historical: refunds do not restore it by default
	if got := reloadItem(t, db, item.ID).Pledged; got != 2 {
		t.Errorf("pledged must stay at 2, got %d", got)
	}

	// A second refund is rejected
	if err := service.RefundPreorder(ctx, preorder.ID); !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("expected conflict on double refund, got %v", err)
	}
}

func TestRefundPreorderRestoresPledgedWhenConfigured(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewRepository(db)
	service := newTestCheckoutService(repo, newFakeProvider(), true)
	ctx := context.Background()

	item := createTestItem(t, db, 2)
	if err := service.HandleCheckoutCompleted(ctx, checkoutEvent(item.ID, "evt_1", "pi_1", "CL-TEST0001", 2, nil)); err != nil {
		t.Fatalf("seed preorder: %v", err)
	}

	var preorder models.Preorder
	if err := db.Where("order_ref = ?", "CL-TEST0001").First(&preorder).Error; err != nil {
		t.Fatalf("load preorder: %v", err)
	}

	if err := service.RefundPreorder(ctx, preorder.ID); err != nil {
		t.Fatalf("RefundPreorder failed: %v", err)
	}

	if got := reloadItem(t, db, item.ID).Pledged; got != 0 {
		t.Errorf("expected pledged restored to 0, got %d", got)
	}
}

func TestCancelPreorder(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewRepository(db)
	service := newTestCheckoutService(repo, newFakeProvider(), false)
	ctx := context.Background()

	item := createTestItem(t, db, 5)
	buyer := createTestUser(t, db, "buyer")
	stranger := createTestUser(t, db, "stranger")

	if err := service.HandleCheckoutCompleted(ctx, checkoutEvent(item.ID, "evt_1", "pi_1", "CL-TEST0001", 2, &buyer.ID)); err != nil {
		t.Fatalf("seed preorder: %v", err)
	}

	var preorder models.Preorder
	if err := db.Where("order_ref = ?", "CL-TEST0001").First(&preorder).Error; err != nil {
		t.Fatalf("load preorder: %v", err)
	}

	err := service.CancelPreorder(ctx, asUser(stranger), preorder.ID)
	if !errors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("expected forbidden for non-owner, got %v", err)
	}

	if err := service.CancelPreorder(ctx, asUser(buyer), preorder.ID); err != nil {
		t.Fatalf("owner cancel failed: %v", err)
	}

	var count int64
	db.Model(&models.Preorder{}).Where("id = ?", preorder.ID).Count(&count)
	if count != 0 {
		t.Error("canceled preorder must be deleted")
	}
	if got := reloadItem(t, db, item.ID).Pledged; got != 0 {
		t.Errorf("cancel must release the pledge, got %d", got)
	}
}

func TestCancelPreorderAfterCapture(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewRepository(db)
	service := newTestCheckoutService(repo, newFakeProvider(), false)
	ctx := context.Background()

	item := createTestItem(t, db, 2)
	buyer := createTestUser(t, db, "buyer")
	if err := service.HandleCheckoutCompleted(ctx, checkoutEvent(item.ID, "evt_1", "pi_1", "CL-TEST0001", 2, &buyer.ID)); err != nil {
		t.Fatalf("seed preorder: %v", err)
	}

	if _, err := service.ApproveItem(ctx, item.ID); err != nil {
		t.Fatalf("ApproveItem failed: %v", err)
	}

	var preorder models.Preorder
	if err := db.Where("order_ref = ?", "CL-TEST0001").First(&preorder).Error; err != nil {
		t.Fatalf("load preorder: %v", err)
	}

	// Funds are settled; the only way out now is a refund
	err := service.CancelPreorder(ctx, asUser(buyer), preorder.ID)
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("expected conflict after capture, got %v", err)
	}
}
