package anomaly

import (
	"context"
	"fmt"
	"time"

	"github.com/eppcloud/epp_backend/config"
	"github.com/eppcloud/epp_backend/models"
	"github.com/eppcloud/epp_backend/models/reports"
	"github.com/eppcloud/epp_backend/utils"
	"github.com/shopspring/decimal"
)

func periodKey(year int, month time.Month) string {
	return fmt.Sprintf("%d-%02d", year, int(month))
}

// TopConsumerScan flags employees whose monthly consumption cost sits a
// configured number of standard deviations above their job-role peer group.
// Runs once per closed period; the period key makes re-runs idempotent.
func TopConsumerScan(ctx context.Context, year int, month time.Month) (int, error) {
	ranking, err := reports.GetConsumptionRanking(ctx, &reports.ConsumptionRankingInput{
		Year:  year,
		Month: int(month),
	})
	if err != nil {
		return 0, err
	}

	cutoff := config.TopConsumerStdDevs()
	period := periodKey(year, month)
	db := config.GetDB()
	raised := 0
	for _, entry := range ranking.Entries {
		if entry.DeviationStd < cutoff {
			continue
		}
		severity := models.AlertSeverityHigh
		if entry.DeviationStd >= cutoff+1 {
			severity = models.AlertSeverityCritical
		}
		deviation := entry.DeviationStd
		alert := &models.Alert{
			Kind:       models.AlertKindTopConsumer,
			Severity:   severity,
			EmployeeId: entry.EmployeeId,
			ProjectId:  entry.ProjectId,
			PeriodKey:  &period,
			Deviation:  &deviation,
			Description: fmt.Sprintf(
				"monthly consumption cost %s sits %.1f standard deviations above the %s peer group",
				entry.TotalCost.String(), entry.DeviationStd, entry.JobRole),
		}
		created, err := models.CreateAlertIfAbsent(ctx, db.WithContext(ctx), alert)
		if err != nil {
			return raised, err
		}
		if created {
			raised++
		}
	}
	return raised, nil
}

// BudgetDeviationScan compares each active project's monthly material spend
// against its assigned budget and raises one alert per project per period
// when the overrun exceeds the tolerated percentage.
func BudgetDeviationScan(ctx context.Context, year int, month time.Month) (int, error) {
	monthStart, monthEnd := utils.MonthRange(year, month)
	db := config.GetDB()

	type spendRow struct {
		ProjectId int
		Spend     decimal.Decimal
	}
	var rows []spendRow
	err := db.WithContext(ctx).Table("deliveries d").
		Select("e.project_id AS project_id, COALESCE(SUM(d.qty * l.unit_price), 0) AS spend").
		Joins("JOIN employees e ON e.id = d.employee_id").
		Joins("JOIN lots l ON l.id = d.lot_id").
		Where("e.project_id IS NOT NULL AND d.delivery_date >= ? AND d.delivery_date < ?", monthStart, monthEnd).
		Group("e.project_id").
		Scan(&rows).Error
	if err != nil {
		return 0, err
	}

	toleratedPct := decimal.NewFromFloat(config.BudgetDeviationPct())
	period := periodKey(year, month)
	raised := 0
	for _, row := range rows {
		project, err := models.GetProject(ctx, row.ProjectId)
		if err != nil || !project.Budget.IsPositive() {
			continue
		}
		limit := project.Budget.Mul(decimal.NewFromInt(100).Add(toleratedPct)).Div(decimal.NewFromInt(100))
		if row.Spend.LessThanOrEqual(limit) {
			continue
		}

		overrun := row.Spend.Sub(project.Budget)
		overrunPct := overrun.Div(project.Budget).Mul(decimal.NewFromInt(100))
		severity := models.AlertSeverityHigh
		if overrunPct.GreaterThanOrEqual(decimal.NewFromInt(50)) {
			severity = models.AlertSeverityCritical
		}
		projectId := row.ProjectId
		deviation := overrunPct.InexactFloat64()
		alert := &models.Alert{
			Kind:       models.AlertKindBudgetDeviation,
			Severity:   severity,
			ProjectId:  &projectId,
			PeriodKey:  &period,
			Deviation:  &deviation,
			CostImpact: &overrun,
			Description: fmt.Sprintf(
				"project %s spent %s against a budget of %s (%s%% over)",
				project.Name, row.Spend.String(), project.Budget.String(), overrunPct.StringFixed(1)),
		}
		created, err := models.CreateAlertIfAbsent(ctx, db.WithContext(ctx), alert)
		if err != nil {
			return raised, err
		}
		if created {
			raised++
		}
	}
	return raised, nil
}
