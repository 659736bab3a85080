package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Project carries the assigned budget used by the budget-deviation scan.
type Project struct {
	ID        int             `gorm:"primary_key" json:"id"`
	Name      string          `gorm:"size:150;not null" json:"name"`
	Budget    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"budget"`
	IsActive  *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetProject(ctx context.Context, id int) (*Project, error) {
	return fetchById[Project](ctx, id)
}

func GetProjectsAll(ctx context.Context) ([]*Project, error) {
	return listAll[Project](ctx)
}
