package models

import (
	"context"
	"errors"
	"time"

	"github.com/eppcloud/epp_backend/config"
	"github.com/eppcloud/epp_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MaterialThreshold is the per-material behavioral configuration that
// drives the anomaly rules. A material without a threshold row simply has
// rule evaluation disabled; that is configuration, not an error.
type MaterialThreshold struct {
	ID                     int              `gorm:"primary_key" json:"id"`
	MaterialId             int              `gorm:"uniqueIndex;not null" json:"material_id"`
	ServiceLifeDays        int              `gorm:"not null" json:"service_life_days"`
	MinDaysBetweenRequests int              `gorm:"not null" json:"min_days_between_requests"`
	MaxMonthlyQty          *decimal.Decimal `gorm:"type:decimal(20,4)" json:"max_monthly_qty"`
	MaxQtyPerDelivery      *decimal.Decimal `gorm:"type:decimal(20,4)" json:"max_qty_per_delivery"`
	RequiresReturn         bool             `gorm:"not null;default:false" json:"requires_return"`
	AlertThresholdPct      decimal.Decimal  `gorm:"type:decimal(5,2);default:20" json:"alert_threshold_pct"`
	CreatedAt              time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewMaterialThreshold struct {
	MaterialId             int              `json:"material_id" binding:"required"`
	ServiceLifeDays        int              `json:"service_life_days" binding:"required"`
	MinDaysBetweenRequests int              `json:"min_days_between_requests"`
	MaxMonthlyQty          *decimal.Decimal `json:"max_monthly_qty"`
	MaxQtyPerDelivery      *decimal.Decimal `json:"max_qty_per_delivery"`
	RequiresReturn         bool             `json:"requires_return"`
	AlertThresholdPct      decimal.Decimal  `json:"alert_threshold_pct"`
}

func (input *NewMaterialThreshold) validate(ctx context.Context, id int) error {
	if input.ServiceLifeDays <= 0 {
		return errors.New("service life days must be positive")
	}
	if input.MinDaysBetweenRequests < 0 {
		return errors.New("minimum days between requests cannot be negative")
	}
	if input.MaxMonthlyQty != nil && !input.MaxMonthlyQty.IsPositive() {
		return errors.New("max monthly qty must be positive when set")
	}
	if input.MaxQtyPerDelivery != nil && !input.MaxQtyPerDelivery.IsPositive() {
		return errors.New("max qty per delivery must be positive when set")
	}
	if err := utils.ValidateResourceId[Material](ctx, input.MaterialId); err != nil {
		return errors.New("material not found")
	}
	if err := utils.ValidateUnique[MaterialThreshold](ctx, "material_id", input.MaterialId, id); err != nil {
		return errors.New("threshold already configured for material")
	}
	return nil
}

func CreateMaterialThreshold(ctx context.Context, input *NewMaterialThreshold) (*MaterialThreshold, error) {
	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	threshold := MaterialThreshold{
		MaterialId:             input.MaterialId,
		ServiceLifeDays:        input.ServiceLifeDays,
		MinDaysBetweenRequests: input.MinDaysBetweenRequests,
		MaxMonthlyQty:          input.MaxMonthlyQty,
		MaxQtyPerDelivery:      input.MaxQtyPerDelivery,
		RequiresReturn:         input.RequiresReturn,
		AlertThresholdPct:      input.AlertThresholdPct,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&threshold).Error; err != nil {
		return nil, err
	}
	return &threshold, nil
}

func UpdateMaterialThreshold(ctx context.Context, id int, input *NewMaterialThreshold) (*MaterialThreshold, error) {
	threshold, err := fetchById[MaterialThreshold](ctx, id)
	if err != nil {
		return nil, err
	}
	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(threshold).Updates(map[string]interface{}{
		"MaterialId":             input.MaterialId,
		"ServiceLifeDays":        input.ServiceLifeDays,
		"MinDaysBetweenRequests": input.MinDaysBetweenRequests,
		"MaxMonthlyQty":          input.MaxMonthlyQty,
		"MaxQtyPerDelivery":      input.MaxQtyPerDelivery,
		"RequiresReturn":         input.RequiresReturn,
		"AlertThresholdPct":      input.AlertThresholdPct,
	}).Error; err != nil {
		return nil, err
	}
	return threshold, nil
}

// GetMaterialThresholdForMaterial returns (nil, nil) when the material has
// no configuration; the detector treats that as rules disabled.
func GetMaterialThresholdForMaterial(ctx context.Context, tx *gorm.DB, materialId int) (*MaterialThreshold, error) {
	var threshold MaterialThreshold
	err := tx.WithContext(ctx).Where("material_id = ?", materialId).First(&threshold).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &threshold, nil
}

func GetMaterialThreshold(ctx context.Context, id int) (*MaterialThreshold, error) {
	threshold, err := fetchById[MaterialThreshold](ctx, id)
	if err != nil {
		return nil, utils.ErrConfigurationMissing
	}
	return threshold, nil
}

func GetMaterialThresholdsAll(ctx context.Context) ([]*MaterialThreshold, error) {
	return listAll[MaterialThreshold](ctx)
}
