package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eppcloud/epp_backend/config"
	"github.com/eppcloud/epp_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Lot is a single purchased batch of a material in a warehouse. QtyPurchased
// is immutable after registration; QtyAvailable only moves through
// ConsumeLot/ReverseLot so 0 <= available <= purchased always holds.
type Lot struct {
	ID           int             `gorm:"primary_key" json:"id"`
	MaterialId   int             `gorm:"index;not null" json:"material_id"`
	WarehouseId  int             `gorm:"index;not null" json:"warehouse_id"`
	SupplierId   int             `gorm:"index;not null" json:"supplier_id"`
	PurchaseDate time.Time       `gorm:"not null;index" json:"purchase_date"`
	UnitPrice    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	QtyPurchased decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty_purchased"`
	QtyAvailable decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty_available"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewLot struct {
	MaterialId   int             `json:"material_id" binding:"required"`
	WarehouseId  int             `json:"warehouse_id" binding:"required"`
	SupplierId   int             `json:"supplier_id" binding:"required"`
	PurchaseDate time.Time       `json:"purchase_date" binding:"required"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Qty          decimal.Decimal `json:"qty" binding:"required"`
}

func (input *NewLot) validate(ctx context.Context) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if !input.Qty.IsPositive() {
		return errors.New("purchase qty must be positive")
	}
	if input.UnitPrice.IsNegative() {
		return errors.New("unit price cannot be negative")
	}
	if err := utils.ValidateResourceId[Material](ctx, input.MaterialId); err != nil {
		return errors.New("material not found")
	}
	if err := utils.ValidateResourceId[Warehouse](ctx, input.WarehouseId); err != nil {
		return errors.New("warehouse not found")
	}
	if err := utils.ValidateResourceId[Supplier](ctx, input.SupplierId); err != nil {
		return errors.New("supplier not found")
	}
	return nil
}

// RegisterLot records a purchase batch: creates the lot with
// available = purchased and adds the quantity to the aggregate stock record
// in the same transaction. Exceeding the maximum threshold produces an
// advisory warning, not an error.
func RegisterLot(ctx context.Context, input *NewLot) (*Lot, string, error) {
	if err := input.validate(ctx); err != nil {
		return nil, "", err
	}

	lot := Lot{
		MaterialId:   input.MaterialId,
		WarehouseId:  input.WarehouseId,
		SupplierId:   input.SupplierId,
		PurchaseDate: input.PurchaseDate,
		UnitPrice:    input.UnitPrice,
		QtyPurchased: input.Qty,
		QtyAvailable: input.Qty,
	}

	db := config.GetDB()
	var warning string
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&lot).Error; err != nil {
			return err
		}
		record, err := FirstOrCreateStockRecord(tx, lot.WarehouseId, lot.MaterialId)
		if err != nil {
			return err
		}
		if err := applyStockDelta(tx, record.ID, lot.QtyPurchased, lot.PurchaseDate); err != nil {
			return err
		}
		newExistence := record.Existence.Add(lot.QtyPurchased)
		if record.MaxThreshold.IsPositive() && newExistence.GreaterThan(record.MaxThreshold) {
			warning = fmt.Sprintf("stock for material %d in warehouse %d is %s, above the maximum threshold %s",
				lot.MaterialId, lot.WarehouseId, newExistence.String(), record.MaxThreshold.String())
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return &lot, warning, nil
}

// lockLot loads a lot under FOR UPDATE so concurrent consumers of the same
// lot serialize on the row and never both see a stale available quantity.
func lockLot(tx *gorm.DB, lotId int) (*Lot, error) {
	var lot Lot
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&lot, lotId).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &lot, nil
}

// ConsumeLot decrements a lot and its stock record by qty within the
// caller's transaction. Returns an advisory low-stock warning when the
// resulting existence is at or below the minimum threshold.
func ConsumeLot(tx *gorm.DB, lotId int, qty decimal.Decimal, movementDate time.Time) (string, error) {
	if !qty.IsPositive() {
		return "", errors.New("consume qty must be positive")
	}
	lot, err := lockLot(tx, lotId)
	if err != nil {
		return "", err
	}
	if qty.GreaterThan(lot.QtyAvailable) {
		return "", &utils.InsufficientStockError{
			LotId:     lot.ID,
			Requested: qty,
			Available: lot.QtyAvailable,
		}
	}
	if err := tx.Exec(
		"UPDATE lots SET qty_available = qty_available - ? WHERE id = ?",
		qty, lot.ID,
	).Error; err != nil {
		return "", err
	}

	record, err := FirstOrCreateStockRecord(tx, lot.WarehouseId, lot.MaterialId)
	if err != nil {
		return "", err
	}
	if err := applyStockDelta(tx, record.ID, qty.Neg(), movementDate); err != nil {
		return "", err
	}

	var warning string
	newExistence := record.Existence.Sub(qty)
	if record.MinThreshold.IsPositive() && newExistence.LessThanOrEqual(record.MinThreshold) {
		warning = fmt.Sprintf("stock for material %d in warehouse %d is %s, at or below the minimum threshold %s",
			lot.MaterialId, lot.WarehouseId, newExistence.String(), record.MinThreshold.String())
	}
	return warning, nil
}

// ReverseLot is the inverse of ConsumeLot, used when a delivery is deleted
// or amended. Pushing available above purchased is an over-reversal.
func ReverseLot(tx *gorm.DB, lotId int, qty decimal.Decimal, movementDate time.Time) error {
	if !qty.IsPositive() {
		return errors.New("reverse qty must be positive")
	}
	lot, err := lockLot(tx, lotId)
	if err != nil {
		return err
	}
	if lot.QtyAvailable.Add(qty).GreaterThan(lot.QtyPurchased) {
		return fmt.Errorf("lot %d: reversing %s would exceed purchased %s (available %s): %w",
			lot.ID, qty.String(), lot.QtyPurchased.String(), lot.QtyAvailable.String(), utils.ErrOverReversal)
	}
	if err := tx.Exec(
		"UPDATE lots SET qty_available = qty_available + ? WHERE id = ?",
		qty, lot.ID,
	).Error; err != nil {
		return err
	}

	record, err := FirstOrCreateStockRecord(tx, lot.WarehouseId, lot.MaterialId)
	if err != nil {
		return err
	}
	return applyStockDelta(tx, record.ID, qty, movementDate)
}

// AvailableLots pages through lots with remaining stock for a material in a
// warehouse, oldest purchase first. The ordering is advisory (FIFO by
// default for UI selection); the caller chooses which lot to draw from.
// Pass afterId=0 for the first page; the sequence restarts from any page.
func AvailableLots(ctx context.Context, materialId int, warehouseId int, afterId int, limit int) ([]*Lot, error) {
	if limit <= 0 || limit > 100 {
		limit = config.SearchLimit
	}
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).
		Where("material_id = ? AND warehouse_id = ? AND qty_available > 0", materialId, warehouseId)
	if afterId > 0 {
		var after Lot
		if err := db.WithContext(ctx).First(&after, afterId).Error; err != nil {
			return nil, utils.ErrorRecordNotFound
		}
		if after.MaterialId != materialId || after.WarehouseId != warehouseId {
			return nil, fmt.Errorf("cursor lot %d belongs to a different material/warehouse", afterId)
		}
		dbCtx = dbCtx.Where("(purchase_date > ?) OR (purchase_date = ? AND id > ?)",
			after.PurchaseDate, after.PurchaseDate, after.ID)
	}
	var lots []*Lot
	if err := dbCtx.Order("purchase_date, id").Limit(limit).Find(&lots).Error; err != nil {
		return nil, err
	}
	return lots, nil
}

// DeleteLot removes a purchase batch that was never touched: full quantity
// still available and no delivery or requisition line references it.
func DeleteLot(ctx context.Context, id int) (*Lot, error) {
	db := config.GetDB()
	var deleted Lot
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lot, err := lockLot(tx, id)
		if err != nil {
			return err
		}
		if !lot.QtyAvailable.Equal(lot.QtyPurchased) {
			return fmt.Errorf("lot %d is partially consumed: %w", lot.ID, utils.ErrLotInUse)
		}
		var refs int64
		if err := tx.Model(&Delivery{}).Where("lot_id = ?", lot.ID).Count(&refs).Error; err != nil {
			return err
		}
		if refs == 0 {
			if err := tx.Model(&RequisitionLine{}).Where("lot_id = ?", lot.ID).Count(&refs).Error; err != nil {
				return err
			}
		}
		if refs > 0 {
			return fmt.Errorf("lot %d has %d references: %w", lot.ID, refs, utils.ErrLotInUse)
		}

		record, err := FirstOrCreateStockRecord(tx, lot.WarehouseId, lot.MaterialId)
		if err != nil {
			return err
		}
		if err := applyStockDelta(tx, record.ID, lot.QtyPurchased.Neg(), time.Now().UTC()); err != nil {
			return err
		}
		if err := tx.Delete(&Lot{}, lot.ID).Error; err != nil {
			return err
		}
		deleted = *lot
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &deleted, nil
}

func GetLot(ctx context.Context, id int) (*Lot, error) {
	return fetchById[Lot](ctx, id)
}
