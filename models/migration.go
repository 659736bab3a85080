package models

import (
	"github.com/eppcloud/epp_backend/config"
	"github.com/eppcloud/epp_backend/utils"
)

func MigrateTable() {
	db := config.GetDB()
	utils.ErrorPanic(db.AutoMigrate(
		&Material{},
		&Employee{},
		&Supplier{},
		&Warehouse{},
		&Project{},
		&Lot{},
		&StockRecord{},
		&Delivery{},
		&Requisition{},
		&RequisitionLine{},
		&MaterialThreshold{},
		&Alert{},
	))
}
