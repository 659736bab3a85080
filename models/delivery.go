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
)

// Delivery is one hand-over of material to an employee, always backed by a
// specific lot. Direct deliveries have a nil RequisitionLineId; deliveries
// produced by DeliverRequisition carry the line that originated them and can
// only be undone through the requisition.
type Delivery struct {
	ID                int             `gorm:"primary_key" json:"id"`
	EmployeeId        int             `gorm:"index;not null" json:"employee_id"`
	MaterialId        int             `gorm:"index;not null" json:"material_id"`
	SupplierId        int             `gorm:"index;not null" json:"supplier_id"`
	LotId             int             `gorm:"index;not null" json:"lot_id"`
	WarehouseId       int             `gorm:"index;not null" json:"warehouse_id"`
	Qty               decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty"`
	DeliveryDate      time.Time       `gorm:"not null;index" json:"delivery_date"`
	Size              *string         `gorm:"size:20" json:"size"`
	Notes             *string         `gorm:"size:500" json:"notes"`
	RequisitionLineId *int            `gorm:"index" json:"requisition_line_id"`
	CreatedBy         int             `json:"created_by"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewDelivery struct {
	EmployeeId   int             `json:"employee_id" binding:"required"`
	LotId        int             `json:"lot_id" binding:"required"`
	Qty          decimal.Decimal `json:"qty" binding:"required"`
	DeliveryDate time.Time       `json:"delivery_date" binding:"required"`
	Size         *string         `json:"size"`
	Notes        *string         `json:"notes"`
}

func (input *NewDelivery) validate(ctx context.Context) error {
	if !input.Qty.IsPositive() {
		return errors.New("delivery qty must be positive")
	}
	if err := utils.ValidateResourceId[Employee](ctx, input.EmployeeId); err != nil {
		return errors.New("employee not found")
	}
	return nil
}

// CreateDelivery records a direct hand-over against a chosen lot: consumes
// the lot, inserts the delivery row and fires the stock event, all in one
// transaction. The returned warning is the advisory low-stock message.
func CreateDelivery(ctx context.Context, input *NewDelivery) (*Delivery, string, error) {
	if err := input.validate(ctx); err != nil {
		return nil, "", err
	}
	userId, _ := utils.GetUserIdFromContext(ctx)

	db := config.GetDB()
	var delivery Delivery
	var warning string
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lot, err := lockLot(tx, input.LotId)
		if err != nil {
			return err
		}
		warning, err = ConsumeLot(tx, lot.ID, input.Qty, input.DeliveryDate)
		if err != nil {
			return err
		}
		delivery = Delivery{
			EmployeeId:   input.EmployeeId,
			MaterialId:   lot.MaterialId,
			SupplierId:   lot.SupplierId,
			LotId:        lot.ID,
			WarehouseId:  lot.WarehouseId,
			Qty:          input.Qty,
			DeliveryDate: input.DeliveryDate,
			Size:         input.Size,
			Notes:        input.Notes,
			CreatedBy:    userId,
		}
		if err := tx.Create(&delivery).Error; err != nil {
			return err
		}
		return fireStockEvent(ctx, tx, StockEvent{
			EmployeeId:  delivery.EmployeeId,
			MaterialId:  delivery.MaterialId,
			WarehouseId: delivery.WarehouseId,
			Qty:         delivery.Qty,
			UnitPrice:   lot.UnitPrice,
			Date:        delivery.DeliveryDate,
			DeliveryId:  delivery.ID,
		})
	})
	if err != nil {
		return nil, "", err
	}
	return &delivery, warning, nil
}

// DeleteDelivery undoes a direct delivery by reversing its quantity back
// into the lot. Requisition-backed deliveries must go through the
// requisition workflow instead.
func DeleteDelivery(ctx context.Context, id int) (*Delivery, error) {
	db := config.GetDB()
	var deleted Delivery
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var delivery Delivery
		if err := tx.First(&delivery, id).Error; err != nil {
			return utils.ErrorRecordNotFound
		}
		if delivery.RequisitionLineId != nil {
			return fmt.Errorf("delivery %d belongs to requisition line %d: %w",
				delivery.ID, *delivery.RequisitionLineId, utils.ErrInvalidTransition)
		}
		if err := ReverseLot(tx, delivery.LotId, delivery.Qty, time.Now().UTC()); err != nil {
			return err
		}
		if err := tx.Delete(&Delivery{}, delivery.ID).Error; err != nil {
			return err
		}
		deleted = delivery
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &deleted, nil
}

// AmendDelivery changes the quantity (and annotations) of a direct delivery
// by reversing the old amount and consuming the new one inside a single
// transaction, so the ledger never observes the intermediate state.
func AmendDelivery(ctx context.Context, id int, input *NewDelivery) (*Delivery, string, error) {
	if err := input.validate(ctx); err != nil {
		return nil, "", err
	}

	db := config.GetDB()
	var amended Delivery
	var warning string
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var delivery Delivery
		if err := tx.First(&delivery, id).Error; err != nil {
			return utils.ErrorRecordNotFound
		}
		if delivery.RequisitionLineId != nil {
			return fmt.Errorf("delivery %d belongs to requisition line %d: %w",
				delivery.ID, *delivery.RequisitionLineId, utils.ErrInvalidTransition)
		}
		if input.LotId != delivery.LotId {
			return errors.New("amendment cannot move a delivery to a different lot")
		}
		if err := ReverseLot(tx, delivery.LotId, delivery.Qty, input.DeliveryDate); err != nil {
			return err
		}
		var err error
		warning, err = ConsumeLot(tx, delivery.LotId, input.Qty, input.DeliveryDate)
		if err != nil {
			return err
		}
		if err := tx.Model(&delivery).Updates(map[string]interface{}{
			"EmployeeId":   input.EmployeeId,
			"Qty":          input.Qty,
			"DeliveryDate": input.DeliveryDate,
			"Size":         input.Size,
			"Notes":        input.Notes,
		}).Error; err != nil {
			return err
		}
		amended = delivery
		amended.EmployeeId = input.EmployeeId
		amended.Qty = input.Qty
		amended.DeliveryDate = input.DeliveryDate
		amended.Size = input.Size
		amended.Notes = input.Notes
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return &amended, warning, nil
}

func GetDelivery(ctx context.Context, id int) (*Delivery, error) {
	return fetchById[Delivery](ctx, id)
}

// GetDeliveriesByEmployee lists an employee's deliveries, newest first.
func GetDeliveriesByEmployee(ctx context.Context, employeeId int, limit int) ([]*Delivery, error) {
	if limit <= 0 || limit > 100 {
		limit = config.SearchLimit
	}
	db := config.GetDB()
	var deliveries []*Delivery
	err := db.WithContext(ctx).
		Where("employee_id = ?", employeeId).
		Order("delivery_date desc, id desc").
		Limit(limit).
		Find(&deliveries).Error
	if err != nil {
		return nil, err
	}
	return deliveries, nil
}
