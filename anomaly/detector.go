package anomaly

import (
	"context"
	"errors"

	"github.com/eppcloud/epp_backend/config"
	"github.com/eppcloud/epp_backend/models"
	"github.com/eppcloud/epp_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Detector runs the event-driven rules against every stock-consuming
// movement. It is wired in at startup via models.RegisterStockEventHook and
// therefore runs inside the same transaction as the delivery itself: an
// alert is either persisted with its delivery or not at all.
type Detector struct {
	rules []Rule
}

func NewDetector(rules []Rule) *Detector {
	return &Detector{rules: rules}
}

// HandleStockEvent is the hook body. A material without threshold
// configuration is silently skipped, and a rule raising the same alert
// twice for one delivery is absorbed by the dedupe in CreateAlertIfAbsent.
func (d *Detector) HandleStockEvent(ctx context.Context, tx *gorm.DB, event models.StockEvent) error {
	if !config.AnomalyRulesEnabled() {
		return nil
	}
	threshold, err := models.GetMaterialThresholdForMaterial(ctx, tx, event.MaterialId)
	if err != nil {
		return err
	}
	if threshold == nil {
		return nil
	}

	history, err := gatherHistory(ctx, tx, event)
	if err != nil {
		return err
	}

	logger := config.GetLogger()
	for _, rule := range d.rules {
		alert := rule.Evaluate(event, threshold, history)
		if alert == nil {
			continue
		}
		created, err := models.CreateAlertIfAbsent(ctx, tx, alert)
		if err != nil {
			return err
		}
		if created {
			logger.WithField("kind", alert.Kind).
				WithField("severity", alert.Severity).
				WithField("deliveryId", event.DeliveryId).
				Info("anomaly alert raised")
		}
	}
	return nil
}

// gatherHistory reads the employee's prior consumption of the same material
// once, inside the event's transaction, so every rule evaluates against the
// same snapshot.
func gatherHistory(ctx context.Context, tx *gorm.DB, event models.StockEvent) (History, error) {
	var history History

	// <= so a repeat delivery on the same date (the strongest premature and
	// frequency signal) still counts as history; the event's own row is
	// excluded by id.
	var previous models.Delivery
	err := tx.WithContext(ctx).
		Where("employee_id = ? AND material_id = ? AND delivery_date <= ? AND id <> ?",
			event.EmployeeId, event.MaterialId, event.Date, event.DeliveryId).
		Order("delivery_date desc, id desc").
		First(&previous).Error
	if err == nil {
		last := previous.DeliveryDate
		history.LastDeliveryDate = &last
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return history, err
	}

	monthStart, monthEnd := utils.MonthRange(event.Date.Year(), event.Date.Month())
	var row struct {
		Total decimal.Decimal
	}
	err = tx.WithContext(ctx).Model(&models.Delivery{}).
		Select("COALESCE(SUM(qty), 0) as total").
		Where("employee_id = ? AND material_id = ? AND delivery_date >= ? AND delivery_date < ? AND id <> ?",
			event.EmployeeId, event.MaterialId, monthStart, monthEnd, event.DeliveryId).
		Scan(&row).Error
	if err != nil {
		return history, err
	}
	history.MonthQtyBefore = row.Total
	return history, nil
}
