package anomaly

import (
	"fmt"
	"time"

	"github.com/eppcloud/epp_backend/models"
	"github.com/shopspring/decimal"
)

// History is the prior consumption context for the (employee, material)
// pair of the event being evaluated, gathered once by the detector and
// shared by every rule.
type History struct {
	// LastDeliveryDate is the most recent delivery of the same material to
	// the same employee strictly before the event, nil if first ever.
	LastDeliveryDate *time.Time
	// MonthQtyBefore is the quantity already delivered to the employee for
	// this material within the event's calendar month, excluding the event
	// itself.
	MonthQtyBefore decimal.Decimal
}

// Rule is one independent anomaly check. Evaluate is pure: it sees the
// event, the material's threshold configuration and the gathered history,
// and either produces an alert or stays silent. Rules never see the
// database.
type Rule interface {
	Kind() models.AlertKind
	Evaluate(event models.StockEvent, threshold *models.MaterialThreshold, history History) *models.Alert
}

// DefaultRules is the evaluation order for event-driven detection.
func DefaultRules() []Rule {
	return []Rule{
		prematureRequestRule{},
		frequencyExcessRule{},
		quantityExcessRule{},
	}
}

func baseAlert(kind models.AlertKind, severity models.AlertSeverity, event models.StockEvent, description string) *models.Alert {
	materialId := event.MaterialId
	warehouseId := event.WarehouseId
	deliveryId := event.DeliveryId
	return &models.Alert{
		Kind:              kind,
		Severity:          severity,
		EmployeeId:        event.EmployeeId,
		MaterialId:        &materialId,
		WarehouseId:       &warehouseId,
		DeliveryId:        &deliveryId,
		RequisitionId:     event.RequisitionId,
		RequisitionLineId: event.RequisitionLineId,
		Description:       description,
	}
}

// prematureRequestRule flags a delivery that arrives before the material's
// expected service life has run out. The earlier it is, the worse:
// under half the expected life is critical, under 80% high, the rest medium.
type prematureRequestRule struct{}

func (prematureRequestRule) Kind() models.AlertKind { return models.AlertKindPrematureRequest }

func (prematureRequestRule) Evaluate(event models.StockEvent, threshold *models.MaterialThreshold, history History) *models.Alert {
	if threshold.ServiceLifeDays <= 0 || history.LastDeliveryDate == nil {
		return nil
	}
	elapsedDays := event.Date.Sub(*history.LastDeliveryDate).Hours() / 24
	if elapsedDays < 0 {
		return nil
	}
	serviceLife := float64(threshold.ServiceLifeDays)
	if elapsedDays >= serviceLife {
		return nil
	}

	fraction := elapsedDays / serviceLife
	severity := models.AlertSeverityMedium
	switch {
	case fraction < 0.5:
		severity = models.AlertSeverityCritical
	case fraction < 0.8:
		severity = models.AlertSeverityHigh
	}
	description := fmt.Sprintf(
		"material delivered after %.0f of %d expected service-life days (%.0f%%)",
		elapsedDays, threshold.ServiceLifeDays, fraction*100)
	alert := baseAlert(models.AlertKindPrematureRequest, severity, event, description)
	expected := fmt.Sprintf("%d days", threshold.ServiceLifeDays)
	actual := fmt.Sprintf("%.0f days", elapsedDays)
	deviation := 1 - fraction
	alert.ExpectedValue = &expected
	alert.ActualValue = &actual
	alert.Deviation = &deviation
	return alert
}

// frequencyExcessRule flags a delivery that follows the previous one too
// closely, regardless of service life.
type frequencyExcessRule struct{}

func (frequencyExcessRule) Kind() models.AlertKind { return models.AlertKindFrequencyExcess }

func (frequencyExcessRule) Evaluate(event models.StockEvent, threshold *models.MaterialThreshold, history History) *models.Alert {
	if threshold.MinDaysBetweenRequests <= 0 || history.LastDeliveryDate == nil {
		return nil
	}
	elapsedDays := event.Date.Sub(*history.LastDeliveryDate).Hours() / 24
	if elapsedDays < 0 || elapsedDays >= float64(threshold.MinDaysBetweenRequests) {
		return nil
	}

	severity := models.AlertSeverityMedium
	if elapsedDays < float64(threshold.MinDaysBetweenRequests)/2 {
		severity = models.AlertSeverityHigh
	}
	description := fmt.Sprintf(
		"material delivered %.0f days after the previous delivery, minimum spacing is %d days",
		elapsedDays, threshold.MinDaysBetweenRequests)
	alert := baseAlert(models.AlertKindFrequencyExcess, severity, event, description)
	expected := fmt.Sprintf("%d days", threshold.MinDaysBetweenRequests)
	actual := fmt.Sprintf("%.0f days", elapsedDays)
	alert.ExpectedValue = &expected
	alert.ActualValue = &actual
	return alert
}

// quantityExcessRule flags deliveries that exceed the per-delivery cap or
// push the rolling monthly total past the monthly cap. Cost impact is the
// excess quantity priced at the lot's unit price.
type quantityExcessRule struct{}

func (quantityExcessRule) Kind() models.AlertKind { return models.AlertKindQuantityExcess }

func (quantityExcessRule) Evaluate(event models.StockEvent, threshold *models.MaterialThreshold, history History) *models.Alert {
	var excess decimal.Decimal
	var description, expected, actual string

	if threshold.MaxQtyPerDelivery != nil && event.Qty.GreaterThan(*threshold.MaxQtyPerDelivery) {
		excess = event.Qty.Sub(*threshold.MaxQtyPerDelivery)
		description = fmt.Sprintf("delivery of %s exceeds the per-delivery cap %s",
			event.Qty.String(), threshold.MaxQtyPerDelivery.String())
		expected, actual = threshold.MaxQtyPerDelivery.String(), event.Qty.String()
	} else if threshold.MaxMonthlyQty != nil {
		monthTotal := history.MonthQtyBefore.Add(event.Qty)
		if monthTotal.GreaterThan(*threshold.MaxMonthlyQty) {
			excess = monthTotal.Sub(*threshold.MaxMonthlyQty)
			if excess.GreaterThan(event.Qty) {
				excess = event.Qty
			}
			description = fmt.Sprintf("monthly total %s exceeds the monthly cap %s",
				monthTotal.String(), threshold.MaxMonthlyQty.String())
			expected, actual = threshold.MaxMonthlyQty.String(), monthTotal.String()
		}
	}
	if excess.IsZero() || description == "" {
		return nil
	}

	costImpact := excess.Mul(event.UnitPrice)
	severity := models.AlertSeverityMedium
	if threshold.MaxQtyPerDelivery != nil && excess.GreaterThanOrEqual(*threshold.MaxQtyPerDelivery) {
		severity = models.AlertSeverityHigh
	}
	alert := baseAlert(models.AlertKindQuantityExcess, severity, event, description)
	alert.ExpectedValue = &expected
	alert.ActualValue = &actual
	alert.CostImpact = &costImpact
	return alert
}
