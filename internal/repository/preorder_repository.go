package repository

import (
	"context"
	"errors"

	"clauth/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetItemByID retrieves a plushie item by ID
func (r *Repository) GetItemByID(ctx context.Context, id uuid.UUID) (*models.PlushieItem, error) {
	var item models.PlushieItem
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// LockItem re-reads an item under FOR UPDATE inside a transaction so the
// pledged counter moves atomically with its triggering row mutation.
func (r *Repository) LockItem(ctx context.Context, id uuid.UUID) (*models.PlushieItem, error) {
	query := r.db.WithContext(ctx)
	if r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var item models.PlushieItem
	err := query.Where("id = ?", id).First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// CreateItem creates a plushie item
func (r *Repository) CreateItem(ctx context.Context, item *models.PlushieItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

// UpdateItemStatus transitions an item's lifecycle status
func (r *Repository) UpdateItemStatus(ctx context.Context, id uuid.UUID, status models.ItemStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.PlushieItem{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// AdjustPledged atomically adds delta to an item's pledged counter.
func (r *Repository) AdjustPledged(ctx context.Context, id uuid.UUID, delta int) error {
	return r.db.WithContext(ctx).
		Model(&models.PlushieItem{}).
		Where("id = ?", id).
		Update("pledged", gorm.Expr("pledged + ?", delta)).Error
}

// CreatePaymentIntent creates a payment intent row
func (r *Repository) CreatePaymentIntent(ctx context.Context, intent *models.PaymentIntent) error {
	return r.db.WithContext(ctx).Create(intent).Error
}

// GetPaymentIntentByID retrieves an intent by local ID
func (r *Repository) GetPaymentIntentByID(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&intent).Error
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

// GetPaymentIntentByExternalID retrieves an intent by its gateway
// reference, nil when unknown. The unique index on intent_id is the
// webhook redelivery dedupe key.
func (r *Repository) GetPaymentIntentByExternalID(ctx context.Context, intentID string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := r.db.WithContext(ctx).Where("intent_id = ?", intentID).First(&intent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &intent, nil
}

// UpdatePaymentIntent updates an intent row
func (r *Repository) UpdatePaymentIntent(ctx context.Context, intent *models.PaymentIntent) error {
	return r.db.WithContext(ctx).Save(intent).Error
}

// CreatePreorder creates a preorder row
func (r *Repository) CreatePreorder(ctx context.Context, preorder *models.Preorder) error {
	return r.db.WithContext(ctx).Create(preorder).Error
}

// GetPreorderByID retrieves a preorder by ID
func (r *Repository) GetPreorderByID(ctx context.Context, id uuid.UUID) (*models.Preorder, error) {
	var preorder models.Preorder
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&preorder).Error
	if err != nil {
		return nil, err
	}
	return &preorder, nil
}

// UpdatePreorder updates a preorder row
func (r *Repository) UpdatePreorder(ctx context.Context, preorder *models.Preorder) error {
	return r.db.WithContext(ctx).Save(preorder).Error
}

// DeletePreorder removes a preorder row
func (r *Repository) DeletePreorder(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.Preorder{}, "id = ?", id).Error
}

// PreordersForCapture lists an item's preorders in the given statuses that
// carry a payment record, oldest first. The batch capture walks these.
func (r *Repository) PreordersForCapture(ctx context.Context, itemID uuid.UUID, statuses []models.PreorderStatus) ([]models.Preorder, error) {
	var preorders []models.Preorder
	err := r.db.WithContext(ctx).
		Where("plushie_item_id = ? AND status IN ? AND payment_intent_id IS NOT NULL", itemID, statuses).
		Order("created_at ASC").
		Find(&preorders).Error
	return preorders, err
}

// CreateWebhookEvent inserts a webhook delivery row. A unique violation on
// (provider, event_id) means the gateway redelivered an event we already
// hold; callers treat that as "seen before".
func (r *Repository) CreateWebhookEvent(ctx context.Context, event *models.WebhookEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// GetWebhookEvent retrieves the stored delivery row for a (provider,
// event id) pair
func (r *Repository) GetWebhookEvent(ctx context.Context, provider, eventID string) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("provider = ? AND event_id = ?", provider, eventID).
		First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// UpdateWebhookEvent updates a webhook delivery row
func (r *Repository) UpdateWebhookEvent(ctx context.Context, event *models.WebhookEvent) error {
	return r.db.WithContext(ctx).Save(event).Error
}
