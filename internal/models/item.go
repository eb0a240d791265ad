package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ItemStatus string

const (
	ItemStatusPending      ItemStatus = "PENDING"
	ItemStatusInProduction ItemStatus = "IN_PRODUCTION"
	ItemStatusShipped      ItemStatus = "SHIPPED"
	ItemStatusCanceled     ItemStatus = "CANCELED"
)

// PlushieItem is a preorderable design. Pledged tracks cumulative committed
// preorder quantity against MinimumGoal; every preorder mutation adjusts it
// in the same transaction.
type PlushieItem struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string          `gorm:"size:255;not null" json:"name"`
	Slug        string          `gorm:"size:255;uniqueIndex;not null" json:"slug"`
	Description string          `gorm:"type:text" json:"description"`
	Price       decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	Pledged     int             `gorm:"not null;default:0" json:"pledged"`
	MinimumGoal int             `gorm:"not null" json:"minimum_goal"`
	Status      ItemStatus      `gorm:"size:30;not null;default:PENDING;index" json:"status"`
	CreatedAt   time.Time       `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (PlushieItem) TableName() string {
	return "plushie_items"
}
