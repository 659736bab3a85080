package models

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/eppcloud/epp_backend/config"
	"github.com/eppcloud/epp_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var integrationOnce sync.Once

// integrationContext connects to the test database once and returns a
// context acting as user 1. Tests are skipped unless INTEGRATION_TESTS is
// set, matching the rest of the suite.
func integrationContext(t *testing.T) context.Context {
	t.Helper()
	if os.Getenv("INTEGRATION_TESTS") == "" {
		t.Skip("set INTEGRATION_TESTS=1 and database env vars to run")
	}
	integrationOnce.Do(func() {
		config.ConnectDatabaseWithRetry()
		MigrateTable()
	})
	ctx := utils.SetUserIdInContext(context.Background(), 1)
	return utils.SetIsAdminInContext(ctx, true)
}

func seedCatalog(t *testing.T, ctx context.Context) (materialId, warehouseId, supplierId, employeeId int) {
	t.Helper()
	db := config.GetDB()
	suffix := time.Now().UnixNano()

	material := Material{Name: fmt.Sprintf("helmet-%d", suffix), UnitOfMeasure: "unit"}
	if err := db.WithContext(ctx).Create(&material).Error; err != nil {
		t.Fatalf("create material: %v", err)
	}
	warehouse := Warehouse{Name: fmt.Sprintf("central-%d", suffix)}
	if err := db.WithContext(ctx).Create(&warehouse).Error; err != nil {
		t.Fatalf("create warehouse: %v", err)
	}
	supplier := Supplier{Name: fmt.Sprintf("acme-%d", suffix)}
	if err := db.WithContext(ctx).Create(&supplier).Error; err != nil {
		t.Fatalf("create supplier: %v", err)
	}
	employee := Employee{UserId: 1, FullName: fmt.Sprintf("worker-%d", suffix), JobRole: "welder"}
	if err := db.WithContext(ctx).Create(&employee).Error; err != nil {
		t.Fatalf("create employee: %v", err)
	}
	return material.ID, warehouse.ID, supplier.ID, employee.ID
}

func registerTestLot(t *testing.T, ctx context.Context, materialId, warehouseId, supplierId int, qty string) *Lot {
	t.Helper()
	lot, _, err := RegisterLot(ctx, &NewLot{
		MaterialId:   materialId,
		WarehouseId:  warehouseId,
		SupplierId:   supplierId,
		PurchaseDate: time.Now().UTC(),
		UnitPrice:    decimal.RequireFromString("15"),
		Qty:          decimal.RequireFromString(qty),
	})
	if err != nil {
		t.Fatalf("register lot: %v", err)
	}
	return lot
}

func TestLotLedgerFlow(t *testing.T) {
	ctx := integrationContext(t)
	materialId, warehouseId, supplierId, employeeId := seedCatalog(t, ctx)

	lot := registerTestLot(t, ctx, materialId, warehouseId, supplierId, "10")
	record, err := GetStockRecord(ctx, warehouseId, materialId)
	if err != nil {
		t.Fatalf("get stock record: %v", err)
	}
	if !record.Existence.Equal(decimal.RequireFromString("10")) {
		t.Fatalf("existence after register = %s, want 10", record.Existence)
	}

	delivery, _, err := CreateDelivery(ctx, &NewDelivery{
		EmployeeId:   employeeId,
		LotId:        lot.ID,
		Qty:          decimal.RequireFromString("4"),
		DeliveryDate: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create delivery: %v", err)
	}

	fresh, err := GetLot(ctx, lot.ID)
	if err != nil {
		t.Fatalf("get lot: %v", err)
	}
	if !fresh.QtyAvailable.Equal(decimal.RequireFromString("6")) {
		t.Fatalf("lot available = %s, want 6", fresh.QtyAvailable)
	}
	record, _ = GetStockRecord(ctx, warehouseId, materialId)
	if !record.Existence.Equal(decimal.RequireFromString("6")) {
		t.Fatalf("existence after delivery = %s, want 6", record.Existence)
	}

	// over-consume must fail and leave the ledger untouched
	_, _, err = CreateDelivery(ctx, &NewDelivery{
		EmployeeId:   employeeId,
		LotId:        lot.ID,
		Qty:          decimal.RequireFromString("7"),
		DeliveryDate: time.Now().UTC(),
	})
	if !errors.Is(err, utils.ErrInsufficientStock) {
		t.Fatalf("over-consume error = %v, want InsufficientStock", err)
	}
	record, _ = GetStockRecord(ctx, warehouseId, materialId)
	if !record.Existence.Equal(decimal.RequireFromString("6")) {
		t.Fatalf("existence after failed delivery = %s, want 6", record.Existence)
	}

	// a partially consumed lot cannot be deleted
	if _, err := DeleteLot(ctx, lot.ID); !errors.Is(err, utils.ErrLotInUse) {
		t.Fatalf("delete consumed lot error = %v, want LotInUse", err)
	}

	// undo the delivery, then the lot is still referenced-free and deletable
	if _, err := DeleteDelivery(ctx, delivery.ID); err != nil {
		t.Fatalf("delete delivery: %v", err)
	}
	record, _ = GetStockRecord(ctx, warehouseId, materialId)
	if !record.Existence.Equal(decimal.RequireFromString("10")) {
		t.Fatalf("existence after reversal = %s, want 10", record.Existence)
	}
	if _, err := DeleteLot(ctx, lot.ID); err != nil {
		t.Fatalf("delete lot: %v", err)
	}
	record, _ = GetStockRecord(ctx, warehouseId, materialId)
	if !record.Existence.IsZero() {
		t.Fatalf("existence after lot delete = %s, want 0", record.Existence)
	}

	mismatches, err := VerifyLedgerConsistency(ctx, nil)
	if err != nil {
		t.Fatalf("verify ledger: %v", err)
	}
	for _, m := range mismatches {
		if m.WarehouseId == warehouseId && m.MaterialId == materialId {
			t.Fatalf("ledger mismatch for test pair: %+v", m)
		}
	}
}

func TestLedgerHoldBlocksMutations(t *testing.T) {
	ctx := integrationContext(t)
	materialId, warehouseId, supplierId, employeeId := seedCatalog(t, ctx)
	lot := registerTestLot(t, ctx, materialId, warehouseId, supplierId, "10")

	// simulate the drift the checker exists for: existence manipulated
	// outside the transaction discipline
	db := config.GetDB()
	if err := db.WithContext(ctx).Exec(
		"UPDATE stock_records SET existence = existence + 5 WHERE warehouse_id = ? AND material_id = ?",
		warehouseId, materialId).Error; err != nil {
		t.Fatalf("corrupt existence: %v", err)
	}

	mismatches, err := EnforceLedgerConsistency(ctx)
	if err != nil {
		t.Fatalf("enforce: %v", err)
	}
	found := false
	for _, m := range mismatches {
		if m.WarehouseId == warehouseId && m.MaterialId == materialId {
			found = true
		}
	}
	if !found {
		t.Fatal("corrupted pair not reported as mismatch")
	}

	// the held record refuses consumption
	_, _, err = CreateDelivery(ctx, &NewDelivery{
		EmployeeId:   employeeId,
		LotId:        lot.ID,
		Qty:          decimal.RequireFromString("1"),
		DeliveryDate: time.Now().UTC(),
	})
	if !errors.Is(err, utils.ErrLedgerInconsistent) {
		t.Fatalf("delivery on held record error = %v, want LedgerInconsistent", err)
	}

	// repair, re-run the check, and the hold lifts
	if err := db.WithContext(ctx).Exec(
		"UPDATE stock_records SET existence = existence - 5 WHERE warehouse_id = ? AND material_id = ?",
		warehouseId, materialId).Error; err != nil {
		t.Fatalf("repair existence: %v", err)
	}
	if _, err := EnforceLedgerConsistency(ctx); err != nil {
		t.Fatalf("enforce after repair: %v", err)
	}
	if _, _, err := CreateDelivery(ctx, &NewDelivery{
		EmployeeId:   employeeId,
		LotId:        lot.ID,
		Qty:          decimal.RequireFromString("1"),
		DeliveryDate: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("delivery after repair: %v", err)
	}
}

func TestAvailableLotsCursorScoped(t *testing.T) {
	ctx := integrationContext(t)
	materialId, warehouseId, supplierId, _ := seedCatalog(t, ctx)
	otherMaterialId, otherWarehouseId, otherSupplierId, _ := seedCatalog(t, ctx)

	registerTestLot(t, ctx, materialId, warehouseId, supplierId, "5")
	foreign := registerTestLot(t, ctx, otherMaterialId, otherWarehouseId, otherSupplierId, "5")

	// a cursor from another (material, warehouse) must be rejected, not
	// silently skew the page window
	if _, err := AvailableLots(ctx, materialId, warehouseId, foreign.ID, 10); err == nil {
		t.Fatal("cursor from foreign pair accepted")
	}

	lots, err := AvailableLots(ctx, materialId, warehouseId, 0, 10)
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(lots) != 1 {
		t.Fatalf("first page size = %d, want 1", len(lots))
	}
	next, err := AvailableLots(ctx, materialId, warehouseId, lots[0].ID, 10)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(next) != 0 {
		t.Fatalf("second page size = %d, want 0", len(next))
	}
}

func TestOverReversalRejected(t *testing.T) {
	ctx := integrationContext(t)
	materialId, warehouseId, supplierId, _ := seedCatalog(t, ctx)
	lot := registerTestLot(t, ctx, materialId, warehouseId, supplierId, "5")

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return ReverseLot(tx, lot.ID, decimal.RequireFromString("1"), time.Now().UTC())
	})
	if !errors.Is(err, utils.ErrOverReversal) {
		t.Fatalf("reversal on full lot error = %v, want OverReversal", err)
	}
}

func TestRequisitionLifecycle(t *testing.T) {
	ctx := integrationContext(t)
	materialId, warehouseId, supplierId, employeeId := seedCatalog(t, ctx)
	lot := registerTestLot(t, ctx, materialId, warehouseId, supplierId, "20")

	requisition, err := CreateRequisition(ctx, &NewRequisition{
		EmployeeId:  employeeId,
		WarehouseId: warehouseId,
		RequestDate: time.Now().UTC(),
		Lines: []NewRequisitionLine{
			{MaterialId: materialId, Qty: decimal.RequireFromString("3")},
		},
	})
	if err != nil {
		t.Fatalf("create requisition: %v", err)
	}
	if requisition.Status != RequisitionStatusPending {
		t.Fatalf("new requisition status = %s, want Pending", requisition.Status)
	}
	if requisition.Number == "" || requisition.SequenceNo == 0 {
		t.Fatalf("requisition number not assigned: %q seq=%d", requisition.Number, requisition.SequenceNo)
	}

	// delivering a pending requisition is an invalid transition
	_, _, err = DeliverRequisition(ctx, requisition.ID, &DeliverRequisitionInput{
		SignatureRef: "sig-1",
		DeliveryDate: time.Now().UTC(),
		Lines:        []DeliverRequisitionLine{{LineId: requisition.Lines[0].ID, LotId: lot.ID}},
	})
	if !errors.Is(err, utils.ErrInvalidTransition) {
		t.Fatalf("deliver pending error = %v, want InvalidTransition", err)
	}

	// rejection without a reason is refused
	if _, err := ApproveRequisition(ctx, requisition.ID, &ApproveRequisitionInput{Approved: false}); err == nil {
		t.Fatal("reject without reason should fail")
	}

	approved, err := ApproveRequisition(ctx, requisition.ID, &ApproveRequisitionInput{Approved: true})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != RequisitionStatusApproved {
		t.Fatalf("status = %s, want Approved", approved.Status)
	}

	// approving twice hits the guard
	if _, err := ApproveRequisition(ctx, requisition.ID, &ApproveRequisitionInput{Approved: true}); !errors.Is(err, utils.ErrInvalidTransition) {
		t.Fatalf("double approve error = %v, want InvalidTransition", err)
	}

	delivered, warnings, err := DeliverRequisition(ctx, requisition.ID, &DeliverRequisitionInput{
		SignatureRef: "sig-1",
		DeliveryDate: time.Now().UTC(),
		Lines:        []DeliverRequisitionLine{{LineId: requisition.Lines[0].ID, LotId: lot.ID}},
	})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	_ = warnings
	if delivered.Status != RequisitionStatusDelivered {
		t.Fatalf("status = %s, want Delivered", delivered.Status)
	}
	if delivered.Lines[0].DeliveryId == nil || delivered.Lines[0].LotId == nil {
		t.Fatal("delivered line missing lot/delivery linkage")
	}

	fresh, _ := GetLot(ctx, lot.ID)
	if !fresh.QtyAvailable.Equal(decimal.RequireFromString("17")) {
		t.Fatalf("lot available = %s, want 17", fresh.QtyAvailable)
	}

	// terminal: cancelling a delivered requisition fails
	if _, err := CancelRequisition(ctx, requisition.ID); !errors.Is(err, utils.ErrInvalidTransition) {
		t.Fatalf("cancel delivered error = %v, want InvalidTransition", err)
	}

	// the backing delivery cannot be deleted on its own
	if _, err := DeleteDelivery(ctx, *delivered.Lines[0].DeliveryId); !errors.Is(err, utils.ErrInvalidTransition) {
		t.Fatalf("delete requisition delivery error = %v, want InvalidTransition", err)
	}
}

func TestDeliverRequisitionAllOrNothing(t *testing.T) {
	ctx := integrationContext(t)
	materialId, warehouseId, supplierId, employeeId := seedCatalog(t, ctx)
	bigLot := registerTestLot(t, ctx, materialId, warehouseId, supplierId, "10")
	smallLot := registerTestLot(t, ctx, materialId, warehouseId, supplierId, "1")

	requisition, err := CreateRequisition(ctx, &NewRequisition{
		EmployeeId:  employeeId,
		WarehouseId: warehouseId,
		RequestDate: time.Now().UTC(),
		Lines: []NewRequisitionLine{
			{MaterialId: materialId, Qty: decimal.RequireFromString("2")},
			{MaterialId: materialId, Qty: decimal.RequireFromString("5")},
		},
	})
	if err != nil {
		t.Fatalf("create requisition: %v", err)
	}
	if _, err := ApproveRequisition(ctx, requisition.ID, &ApproveRequisitionInput{Approved: true}); err != nil {
		t.Fatalf("approve: %v", err)
	}

	// second line draws 5 from a lot holding 1: everything must roll back
	_, _, err = DeliverRequisition(ctx, requisition.ID, &DeliverRequisitionInput{
		SignatureRef: "sig-2",
		DeliveryDate: time.Now().UTC(),
		Lines: []DeliverRequisitionLine{
			{LineId: requisition.Lines[0].ID, LotId: bigLot.ID},
			{LineId: requisition.Lines[1].ID, LotId: smallLot.ID},
		},
	})
	var lineErr *utils.LineDeliveryError
	if !errors.As(err, &lineErr) {
		t.Fatalf("partial delivery error = %v, want LineDeliveryError", err)
	}
	if lineErr.LineNo != 2 {
		t.Fatalf("failing line = %d, want 2", lineErr.LineNo)
	}
	if !errors.Is(err, utils.ErrInsufficientStock) {
		t.Fatalf("cause = %v, want InsufficientStock", err)
	}

	// first line's consumption was rolled back with the transaction
	fresh, _ := GetLot(ctx, bigLot.ID)
	if !fresh.QtyAvailable.Equal(decimal.RequireFromString("10")) {
		t.Fatalf("big lot available = %s, want 10 after rollback", fresh.QtyAvailable)
	}
	current, _ := GetRequisition(ctx, requisition.ID)
	if current.Status != RequisitionStatusApproved {
		t.Fatalf("status after failed delivery = %s, want Approved", current.Status)
	}
}
