package anomaly

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/eppcloud/epp_backend/config"
	"github.com/eppcloud/epp_backend/models"
	"github.com/eppcloud/epp_backend/utils"
	"github.com/shopspring/decimal"
)

var detectorOnce sync.Once

func detectorContext(t *testing.T) context.Context {
	t.Helper()
	if os.Getenv("INTEGRATION_TESTS") == "" {
		t.Skip("set INTEGRATION_TESTS=1 and database env vars to run")
	}
	detectorOnce.Do(func() {
		config.ConnectDatabaseWithRetry()
		models.MigrateTable()
	})
	ctx := utils.SetUserIdInContext(context.Background(), 1)
	return utils.SetIsAdminInContext(ctx, true)
}

func seedDetectorCatalog(t *testing.T, ctx context.Context) (materialId, warehouseId, supplierId, employeeId int) {
	t.Helper()
	db := config.GetDB()
	suffix := time.Now().UnixNano()

	material := models.Material{Name: fmt.Sprintf("gloves-%d", suffix), UnitOfMeasure: "pair"}
	if err := db.WithContext(ctx).Create(&material).Error; err != nil {
		t.Fatalf("create material: %v", err)
	}
	warehouse := models.Warehouse{Name: fmt.Sprintf("site-%d", suffix)}
	if err := db.WithContext(ctx).Create(&warehouse).Error; err != nil {
		t.Fatalf("create warehouse: %v", err)
	}
	supplier := models.Supplier{Name: fmt.Sprintf("safetyco-%d", suffix)}
	if err := db.WithContext(ctx).Create(&supplier).Error; err != nil {
		t.Fatalf("create supplier: %v", err)
	}
	employee := models.Employee{UserId: 1, FullName: fmt.Sprintf("fitter-%d", suffix), JobRole: "fitter"}
	if err := db.WithContext(ctx).Create(&employee).Error; err != nil {
		t.Fatalf("create employee: %v", err)
	}
	return material.ID, warehouse.ID, supplier.ID, employee.ID
}

// Two deliveries of the same material to the same employee on the same day:
// the second must see the first as history, both in the last-delivery date
// and in the monthly running total.
func TestGatherHistorySeesSameDateDelivery(t *testing.T) {
	ctx := detectorContext(t)
	materialId, warehouseId, supplierId, employeeId := seedDetectorCatalog(t, ctx)

	lot, _, err := models.RegisterLot(ctx, &models.NewLot{
		MaterialId:   materialId,
		WarehouseId:  warehouseId,
		SupplierId:   supplierId,
		PurchaseDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		UnitPrice:    decimal.RequireFromString("15"),
		Qty:          decimal.RequireFromString("10"),
	})
	if err != nil {
		t.Fatalf("register lot: %v", err)
	}

	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	first, _, err := models.CreateDelivery(ctx, &models.NewDelivery{
		EmployeeId:   employeeId,
		LotId:        lot.ID,
		Qty:          decimal.RequireFromString("2"),
		DeliveryDate: day,
	})
	if err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	second, _, err := models.CreateDelivery(ctx, &models.NewDelivery{
		EmployeeId:   employeeId,
		LotId:        lot.ID,
		Qty:          decimal.RequireFromString("2"),
		DeliveryDate: day,
	})
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}

	db := config.GetDB()
	history, err := gatherHistory(ctx, db.WithContext(ctx), models.StockEvent{
		EmployeeId:  employeeId,
		MaterialId:  materialId,
		WarehouseId: warehouseId,
		Qty:         decimal.RequireFromString("2"),
		UnitPrice:   decimal.RequireFromString("15"),
		Date:        day,
		DeliveryId:  second.ID,
	})
	if err != nil {
		t.Fatalf("gather history: %v", err)
	}
	if history.LastDeliveryDate == nil {
		t.Fatalf("same-date delivery %d not seen as history", first.ID)
	}
	if !history.LastDeliveryDate.Equal(day) {
		t.Fatalf("last delivery date = %s, want %s", history.LastDeliveryDate, day)
	}
	if !history.MonthQtyBefore.Equal(decimal.RequireFromString("2")) {
		t.Fatalf("month qty before = %s, want 2", history.MonthQtyBefore)
	}

	// zero elapsed days is well under any minimum spacing
	threshold := &models.MaterialThreshold{MinDaysBetweenRequests: 5}
	alert := frequencyExcessRule{}.Evaluate(models.StockEvent{
		EmployeeId:  employeeId,
		MaterialId:  materialId,
		WarehouseId: warehouseId,
		Qty:         decimal.RequireFromString("2"),
		Date:        day,
		DeliveryId:  second.ID,
	}, threshold, history)
	if alert == nil {
		t.Fatal("same-day repeat should trip the frequency rule")
	}
	if alert.Severity != models.AlertSeverityHigh {
		t.Fatalf("severity = %s, want High", alert.Severity)
	}
}
