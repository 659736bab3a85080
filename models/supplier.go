package models

import (
	"context"
	"time"
)

type Supplier struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:150;not null" json:"name"`
	TaxId     string    `gorm:"size:20;index" json:"tax_id"`
	Phone     string    `gorm:"size:20" json:"phone"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetSupplier(ctx context.Context, id int) (*Supplier, error) {
	return fetchById[Supplier](ctx, id)
}
