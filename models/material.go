package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Material is a catalog lookup. Catalog CRUD lives in the admin surface;
// the ledger only reads unit of measure and default unit cost from here.
type Material struct {
	ID            int             `gorm:"primary_key" json:"id"`
	Name          string          `gorm:"size:150;not null" json:"name"`
	Sku           string          `gorm:"size:50;index" json:"sku"`
	UnitOfMeasure string          `gorm:"size:20;not null" json:"unit_of_measure"`
	UnitCost      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_cost"`
	IsActive      *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetMaterial(ctx context.Context, id int) (*Material, error) {
	return fetchById[Material](ctx, id)
}
