package models

import (
	"context"
	"fmt"
	"time"

	"github.com/eppcloud/epp_backend/config"
	"github.com/eppcloud/epp_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StockRecord is the aggregate stock position per (warehouse, material).
// Existence is maintained incrementally inside the same transaction as the
// lot mutation that caused it; it is never recomputed from a live join on
// the hot path. The (warehouse_id, material_id) pair is unique.
// IntegrityHold is set by the strict consistency check when existence
// diverges from the lots; while held, every ledger mutation is refused.
type StockRecord struct {
	ID             int             `gorm:"primary_key" json:"id"`
	WarehouseId    int             `gorm:"uniqueIndex:idx_stock_records_pair;not null" json:"warehouse_id"`
	MaterialId     int             `gorm:"uniqueIndex:idx_stock_records_pair;not null" json:"material_id"`
	Existence      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"existence"`
	MinThreshold   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"min_threshold"`
	MaxThreshold   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"max_threshold"`
	IntegrityHold  bool            `gorm:"not null;default:false" json:"integrity_hold"`
	LastMovementAt *time.Time      `json:"last_movement_at"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// FirstOrCreateStockRecord finds or lazily creates the aggregate row for a
// (warehouse, material) pair, holding it under a FOR UPDATE lock for the
// rest of the transaction. Every lot mutation goes through here so two
// concurrent consumes against the same pair serialize at the row.
func FirstOrCreateStockRecord(tx *gorm.DB, warehouseId int, materialId int) (*StockRecord, error) {
	stockRecord := StockRecord{
		WarehouseId: warehouseId,
		MaterialId:  materialId,
	}
	result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("warehouse_id = ? AND material_id = ?", warehouseId, materialId).
		FirstOrCreate(&stockRecord)
	if result.Error != nil {
		return nil, result.Error
	}
	if stockRecord.IntegrityHold {
		return nil, fmt.Errorf("stock record for warehouse %d material %d is on integrity hold: %w",
			warehouseId, materialId, utils.ErrLedgerInconsistent)
	}
	return &stockRecord, nil
}

// applyStockDelta shifts existence by delta and stamps the movement time.
// Caller must already hold the row lock via FirstOrCreateStockRecord.
func applyStockDelta(tx *gorm.DB, recordId int, delta decimal.Decimal, movementDate time.Time) error {
	return tx.Exec(
		"UPDATE stock_records SET existence = existence + ?, last_movement_at = ? WHERE id = ?",
		delta, movementDate, recordId,
	).Error
}

func GetStockRecord(ctx context.Context, warehouseId int, materialId int) (*StockRecord, error) {
	db := config.GetDB()
	var record StockRecord
	err := db.WithContext(ctx).
		Where("warehouse_id = ? AND material_id = ?", warehouseId, materialId).
		First(&record).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &record, nil
}

type StockThresholdInput struct {
	MinThreshold decimal.Decimal `json:"min_threshold"`
	MaxThreshold decimal.Decimal `json:"max_threshold"`
}

// UpdateStockThresholds sets the advisory min/max bounds on a stock record.
func UpdateStockThresholds(ctx context.Context, warehouseId int, materialId int, input *StockThresholdInput) (*StockRecord, error) {
	if input.MinThreshold.IsNegative() || input.MaxThreshold.IsNegative() {
		return nil, utils.ErrorRecordNotFound
	}
	record, err := GetStockRecord(ctx, warehouseId, materialId)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(record).Updates(map[string]interface{}{
		"MinThreshold": input.MinThreshold,
		"MaxThreshold": input.MaxThreshold,
	}).Error; err != nil {
		return nil, err
	}
	return record, nil
}

// GetLowStockRecords lists records at or below their minimum threshold.
func GetLowStockRecords(ctx context.Context, warehouseId *int) ([]*StockRecord, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).
		Where("min_threshold > 0 AND existence <= min_threshold")
	if warehouseId != nil && *warehouseId != 0 {
		dbCtx = dbCtx.Where("warehouse_id = ?", *warehouseId)
	}
	var records []*StockRecord
	if err := dbCtx.Order("warehouse_id, material_id").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
