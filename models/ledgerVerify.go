package models

import (
	"context"

	"github.com/eppcloud/epp_backend/config"
	"github.com/eppcloud/epp_backend/utils"
	"github.com/shopspring/decimal"
)

// LedgerMismatch is one (warehouse, material) pair whose aggregate existence
// disagrees with the sum of its lots' available quantities.
type LedgerMismatch struct {
	WarehouseId int             `json:"warehouse_id"`
	MaterialId  int             `json:"material_id"`
	Existence   decimal.Decimal `json:"existence"`
	LotsTotal   decimal.Decimal `json:"lots_total"`
	Difference  decimal.Decimal `json:"difference"`
	RecordId    int             `json:"record_id"`
}

const ledgerVerifyQuery = `
	SELECT sr.id AS record_id,
	       sr.warehouse_id,
	       sr.material_id,
	       sr.existence,
	       COALESCE(SUM(l.qty_available), 0) AS lots_total
	FROM stock_records sr
	LEFT JOIN lots l
	       ON l.warehouse_id = sr.warehouse_id AND l.material_id = sr.material_id
	{{if .ByWarehouse}}WHERE sr.warehouse_id = ?{{end}}
	GROUP BY sr.id, sr.warehouse_id, sr.material_id, sr.existence
	HAVING sr.existence <> COALESCE(SUM(l.qty_available), 0)`

// VerifyLedgerConsistency compares stock records against the lots that back
// them, optionally narrowed to one warehouse. Mismatches are reported, never
// repaired: a broken invariant means a bug or manual data surgery, and
// either deserves a human.
func VerifyLedgerConsistency(ctx context.Context, warehouseId *int) ([]LedgerMismatch, error) {
	db := config.GetDB()

	query, err := utils.ExecTemplate(ledgerVerifyQuery, map[string]interface{}{
		"ByWarehouse": warehouseId != nil,
	})
	if err != nil {
		return nil, err
	}
	var args []interface{}
	if warehouseId != nil {
		args = append(args, *warehouseId)
	}

	type row struct {
		RecordId    int
		WarehouseId int
		MaterialId  int
		Existence   decimal.Decimal
		LotsTotal   decimal.Decimal
	}
	var rows []row
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}

	mismatches := make([]LedgerMismatch, 0, len(rows))
	for _, r := range rows {
		mismatches = append(mismatches, LedgerMismatch{
			WarehouseId: r.WarehouseId,
			MaterialId:  r.MaterialId,
			Existence:   r.Existence,
			LotsTotal:   r.LotsTotal,
			Difference:  r.Existence.Sub(r.LotsTotal),
			RecordId:    r.RecordId,
		})
	}
	return mismatches, nil
}

// EnforceLedgerConsistency runs the verification and places every mismatched
// record on integrity hold so ledger mutations against it are refused, then
// lifts holds from records that no longer diverge (i.e. after repair).
// The mismatched data itself is never touched.
func EnforceLedgerConsistency(ctx context.Context) ([]LedgerMismatch, error) {
	mismatches, err := VerifyLedgerConsistency(ctx, nil)
	if err != nil {
		return nil, err
	}
	db := config.GetDB()

	if len(mismatches) == 0 {
		err := db.WithContext(ctx).Model(&StockRecord{}).
			Where("integrity_hold = ?", true).
			Update("integrity_hold", false).Error
		return mismatches, err
	}

	ids := make([]int, 0, len(mismatches))
	for _, m := range mismatches {
		ids = append(ids, m.RecordId)
	}
	if err := db.WithContext(ctx).Model(&StockRecord{}).
		Where("id IN ?", ids).
		Update("integrity_hold", true).Error; err != nil {
		return mismatches, err
	}
	err = db.WithContext(ctx).Model(&StockRecord{}).
		Where("integrity_hold = ? AND id NOT IN ?", true, ids).
		Update("integrity_hold", false).Error
	return mismatches, err
}
