package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StockEvent describes one stock-consuming movement (a direct delivery or a
// requisition delivery line). Every successful consume produces exactly one
// event for the anomaly evaluator.
type StockEvent struct {
	EmployeeId        int
	MaterialId        int
	WarehouseId       int
	Qty               decimal.Decimal
	UnitPrice         decimal.Decimal
	Date              time.Time
	DeliveryId        int
	RequisitionId     *int
	RequisitionLineId *int
}

// StockEventHook is invoked inside the same transaction as the stock
// mutation, after the delivery row exists. The anomaly detector registers
// itself here at startup; models cannot import the anomaly package directly.
type StockEventHook func(ctx context.Context, tx *gorm.DB, event StockEvent) error

var stockEventHook StockEventHook

func RegisterStockEventHook(hook StockEventHook) {
	stockEventHook = hook
}

func fireStockEvent(ctx context.Context, tx *gorm.DB, event StockEvent) error {
	if stockEventHook == nil {
		return nil
	}
	return stockEventHook(ctx, tx, event)
}
