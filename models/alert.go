package models

import (
	"context"
	"fmt"
	"time"

	"github.com/eppcloud/epp_backend/config"
	"github.com/eppcloud/epp_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Alert is one finding of the anomaly detector. Event-driven alerts point
// at the delivery (and requisition line) that triggered them; periodic
// alerts carry a PeriodKey instead. Review moves Pending to Confirmed or
// Dismissed exactly once.
type Alert struct {
	ID                int              `gorm:"primary_key" json:"id"`
	Kind              AlertKind        `gorm:"size:30;index:idx_alerts_kind_delivery;index:idx_alerts_kind_period;not null" json:"kind"`
	Severity          AlertSeverity    `gorm:"size:10;not null" json:"severity"`
	EmployeeId        int              `gorm:"index;not null" json:"employee_id"`
	MaterialId        *int             `gorm:"index" json:"material_id"`
	WarehouseId       *int             `json:"warehouse_id"`
	ProjectId         *int             `gorm:"index" json:"project_id"`
	DeliveryId        *int             `gorm:"index:idx_alerts_kind_delivery" json:"delivery_id"`
	RequisitionId     *int             `json:"requisition_id"`
	RequisitionLineId *int             `gorm:"index" json:"requisition_line_id"`
	PeriodKey         *string          `gorm:"size:20;index:idx_alerts_kind_period" json:"period_key"`
	Description       string           `gorm:"size:500;not null" json:"description"`
	ExpectedValue     *string          `gorm:"size:50" json:"expected_value"`
	ActualValue       *string          `gorm:"size:50" json:"actual_value"`
	Deviation         *float64         `json:"deviation"`
	CostImpact        *decimal.Decimal `gorm:"type:decimal(20,4)" json:"cost_impact"`
	ReviewState       AlertReviewState `gorm:"size:10;index;not null;default:'Pending'" json:"review_state"`
	ReviewedBy        *int             `json:"reviewed_by"`
	ReviewedAt        *time.Time       `json:"reviewed_at"`
	Observations      *string          `gorm:"size:500" json:"observations"`
	CreatedAt         time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// CreateAlertIfAbsent persists an alert unless one with the same identity
// already exists. Identity is (kind, delivery) for event alerts and
// (kind, employee, period) for periodic ones; re-running the detector over
// the same input is therefore a no-op.
func CreateAlertIfAbsent(ctx context.Context, tx *gorm.DB, alert *Alert) (bool, error) {
	query := tx.WithContext(ctx).Model(&Alert{}).Where("kind = ?", alert.Kind)
	switch {
	case alert.DeliveryId != nil:
		query = query.Where("delivery_id = ?", *alert.DeliveryId)
	case alert.PeriodKey != nil:
		query = query.Where("employee_id = ? AND period_key = ?", alert.EmployeeId, *alert.PeriodKey)
		if alert.ProjectId != nil {
			query = query.Where("project_id = ?", *alert.ProjectId)
		}
	default:
		return false, fmt.Errorf("alert of kind %s has neither delivery nor period identity", alert.Kind)
	}

	var existing int64
	if err := query.Count(&existing).Error; err != nil {
		return false, err
	}
	if existing > 0 {
		return false, nil
	}
	alert.ReviewState = AlertReviewStatePending
	if err := tx.WithContext(ctx).Create(alert).Error; err != nil {
		return false, err
	}
	return true, nil
}

type ReviewAlertInput struct {
	State        string  `json:"state" binding:"required"`
	Observations *string `json:"observations"`
}

// ReviewAlert resolves a pending alert. The guarded UPDATE makes the review
// first-wins: a second reviewer gets AlreadyReviewed, never a silent
// overwrite.
func ReviewAlert(ctx context.Context, id int, input *ReviewAlertInput) (*Alert, error) {
	state, err := ParseAlertReviewState(input.State)
	if err != nil {
		return nil, err
	}
	userId, _ := utils.GetUserIdFromContext(ctx)
	now := time.Now().UTC()

	db := config.GetDB()
	result := db.WithContext(ctx).Model(&Alert{}).
		Where("id = ? AND review_state = ?", id, AlertReviewStatePending).
		Updates(map[string]interface{}{
			"review_state": state,
			"reviewed_by":  userId,
			"reviewed_at":  now,
			"observations": input.Observations,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		var alert Alert
		if err := db.WithContext(ctx).First(&alert, id).Error; err != nil {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, fmt.Errorf("alert %d is %s: %w", id, alert.ReviewState, utils.ErrAlreadyReviewed)
	}
	return fetchById[Alert](ctx, id)
}

// BulkReviewResult reports the outcome for one alert of a bulk review.
type BulkReviewResult struct {
	AlertId int    `json:"alert_id"`
	Ok      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

// BulkReviewAlerts applies the same decision to many alerts, one by one.
// Individual failures (already reviewed, missing) do not stop the batch.
func BulkReviewAlerts(ctx context.Context, ids []int, input *ReviewAlertInput) ([]BulkReviewResult, int, error) {
	if _, err := ParseAlertReviewState(input.State); err != nil {
		return nil, 0, err
	}
	results := make([]BulkReviewResult, 0, len(ids))
	succeeded := 0
	for _, id := range utils.UniqueSlice(ids) {
		if _, err := ReviewAlert(ctx, id, input); err != nil {
			results = append(results, BulkReviewResult{AlertId: id, Ok: false, Error: err.Error()})
			continue
		}
		results = append(results, BulkReviewResult{AlertId: id, Ok: true})
		succeeded++
	}
	return results, succeeded, nil
}

func GetAlert(ctx context.Context, id int) (*Alert, error) {
	return fetchById[Alert](ctx, id)
}

// GetPendingAlerts pages unreviewed alerts, most severe and newest first,
// optionally narrowed to one employee and one kind.
func GetPendingAlerts(ctx context.Context, employeeId *int, kind *AlertKind, offset int, limit int) ([]*Alert, error) {
	if limit <= 0 || limit > 100 {
		limit = config.SearchLimit
	}
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("review_state = ?", AlertReviewStatePending)
	if employeeId != nil && *employeeId != 0 {
		dbCtx = dbCtx.Where("employee_id = ?", *employeeId)
	}
	if kind != nil {
		dbCtx = dbCtx.Where("kind = ?", *kind)
	}
	var alerts []*Alert
	err := dbCtx.Order("field(severity, 'Critical', 'High', 'Medium', 'Low'), created_at desc").
		Offset(offset).Limit(limit).
		Find(&alerts).Error
	if err != nil {
		return nil, err
	}
	return alerts, nil
}

// CountPendingAlertsByEmployee returns unresolved alert counts for a set of
// employees, used by the ranking risk score.
func CountPendingAlertsByEmployee(ctx context.Context, employeeIds []int) (map[int]int, error) {
	counts := make(map[int]int, len(employeeIds))
	if len(employeeIds) == 0 {
		return counts, nil
	}
	type row struct {
		EmployeeId int
		Total      int
	}
	var rows []row
	db := config.GetDB()
	err := db.WithContext(ctx).Model(&Alert{}).
		Select("employee_id, count(*) as total").
		Where("review_state = ? AND employee_id IN ?", AlertReviewStatePending, employeeIds).
		Group("employee_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		counts[r.EmployeeId] = r.Total
	}
	return counts, nil
}
