package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eppcloud/epp_backend/config"
	"github.com/eppcloud/epp_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Requisition is an employee's request for materials. It moves through a
// fixed state machine; stock is only touched on delivery.
type Requisition struct {
	ID              int               `gorm:"primary_key" json:"id"`
	Number          string            `gorm:"size:30;uniqueIndex;not null" json:"number"`
	SequenceNo      int64             `gorm:"index;not null" json:"sequence_no"`
	EmployeeId      int               `gorm:"index;not null" json:"employee_id"`
	WarehouseId     int               `gorm:"index;not null" json:"warehouse_id"`
	Status          RequisitionStatus `gorm:"size:20;index;not null" json:"status"`
	RequestDate     time.Time         `gorm:"not null" json:"request_date"`
	Justification   *string           `gorm:"size:500" json:"justification"`
	RequestedBy     int               `gorm:"index;not null" json:"requested_by"`
	ApprovedBy      *int              `json:"approved_by"`
	ApprovedAt      *time.Time        `json:"approved_at"`
	RejectionReason *string           `gorm:"size:500" json:"rejection_reason"`
	DeliveredBy     *int              `json:"delivered_by"`
	DeliveredAt     *time.Time        `json:"delivered_at"`
	SignatureRef    *string           `gorm:"size:200" json:"signature_ref"`
	PhotoRef        *string           `gorm:"size:200" json:"photo_ref"`
	DeliveryNotes   *string           `gorm:"size:500" json:"delivery_notes"`
	CancelledBy     *int              `json:"cancelled_by"`
	CancelledAt     *time.Time        `json:"cancelled_at"`
	Lines           []RequisitionLine `gorm:"foreignKey:RequisitionId" json:"lines"`
	CreatedAt       time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// RequisitionLine is one requested material. LotId and DeliveryId are set
// when the requisition is delivered.
type RequisitionLine struct {
	ID            int              `gorm:"primary_key" json:"id"`
	RequisitionId int              `gorm:"index;not null" json:"requisition_id"`
	LineNo        int              `gorm:"not null" json:"line_no"`
	MaterialId    int              `gorm:"index;not null" json:"material_id"`
	Qty           decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"qty"`
	Size          *string          `gorm:"size:20" json:"size"`
	LotId         *int             `gorm:"index" json:"lot_id"`
	QtyDelivered  *decimal.Decimal `gorm:"type:decimal(20,4)" json:"qty_delivered"`
	DeliveryId    *int             `gorm:"index" json:"delivery_id"`
	CreatedAt     time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// allowedRequisitionTransitions is the single source of truth for the state
// machine. Rejected, Delivered and Cancelled are terminal.
var allowedRequisitionTransitions = map[RequisitionStatus][]RequisitionStatus{
	RequisitionStatusPending:  {RequisitionStatusApproved, RequisitionStatusRejected, RequisitionStatusCancelled},
	RequisitionStatusApproved: {RequisitionStatusDelivered, RequisitionStatusCancelled},
}

func transitionAllowed(from, to RequisitionStatus) bool {
	for _, next := range allowedRequisitionTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// transitionStatus performs the compare-and-swap status move. Zero affected
// rows means somebody else already moved the document; the caller re-reads
// to distinguish an illegal transition from a concurrent one.
func transitionStatus(tx *gorm.DB, requisitionId int, from, to RequisitionStatus, extra map[string]interface{}) error {
	if !transitionAllowed(from, to) {
		return fmt.Errorf("requisition %d: %s -> %s: %w", requisitionId, from, to, utils.ErrInvalidTransition)
	}
	updates := map[string]interface{}{"status": to}
	for k, v := range extra {
		updates[k] = v
	}
	result := tx.Model(&Requisition{}).
		Where("id = ? AND status = ?", requisitionId, from).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var current Requisition
		if err := tx.Select("status").First(&current, requisitionId).Error; err != nil {
			return utils.ErrorRecordNotFound
		}
		if transitionAllowed(current.Status, to) {
			return utils.ErrConcurrentModification
		}
		return fmt.Errorf("requisition %d: %s -> %s: %w", requisitionId, current.Status, to, utils.ErrInvalidTransition)
	}
	return nil
}

type NewRequisitionLine struct {
	MaterialId int             `json:"material_id" binding:"required"`
	Qty        decimal.Decimal `json:"qty" binding:"required"`
	Size       *string         `json:"size"`
}

type NewRequisition struct {
	EmployeeId    int                  `json:"employee_id" binding:"required"`
	WarehouseId   int                  `json:"warehouse_id" binding:"required"`
	RequestDate   time.Time            `json:"request_date" binding:"required"`
	Justification *string              `json:"justification"`
	Lines         []NewRequisitionLine `json:"lines" binding:"required,min=1,dive"`
}

func (input *NewRequisition) validate(ctx context.Context) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	materialIds := make([]int, 0, len(input.Lines))
	for i, line := range input.Lines {
		if !line.Qty.IsPositive() {
			return fmt.Errorf("line %d: qty must be positive", i+1)
		}
		materialIds = append(materialIds, line.MaterialId)
	}
	if err := utils.ValidateResourcesId[Material](ctx, materialIds); err != nil {
		return errors.New("one or more line materials not found")
	}
	if err := utils.ValidateResourceId[Employee](ctx, input.EmployeeId); err != nil {
		return errors.New("employee not found")
	}
	if err := utils.ValidateResourceId[Warehouse](ctx, input.WarehouseId); err != nil {
		return errors.New("warehouse not found")
	}
	return nil
}

const requisitionPrefixKey = "requisition_prefix"

// requisitionNumber builds the document number from the cached prefix, the
// request date and the sequence. Numbers are never reused, even across
// cancellations.
func requisitionNumber(date time.Time, seq int64) string {
	prefix, found, err := config.GetRedisValue(requisitionPrefixKey)
	if err != nil || !found || prefix == "" {
		prefix = "REQ"
		_ = config.SetRedisValue(requisitionPrefixKey, prefix, 0)
	}
	return fmt.Sprintf("%s-%s-%05d", strings.ToUpper(prefix), date.Format("20060102"), seq)
}

// CreateRequisition opens a Pending requisition with its lines.
func CreateRequisition(ctx context.Context, input *NewRequisition) (*Requisition, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}
	userId, _ := utils.GetUserIdFromContext(ctx)

	seq, err := utils.GetSequence[Requisition](ctx, "requisition")
	if err != nil {
		return nil, err
	}

	requisition := Requisition{
		Number:        requisitionNumber(input.RequestDate, seq),
		SequenceNo:    seq,
		EmployeeId:    input.EmployeeId,
		WarehouseId:   input.WarehouseId,
		Status:        RequisitionStatusPending,
		RequestDate:   input.RequestDate,
		Justification: input.Justification,
		RequestedBy:   userId,
	}
	for i, line := range input.Lines {
		requisition.Lines = append(requisition.Lines, RequisitionLine{
			LineNo:     i + 1,
			MaterialId: line.MaterialId,
			Qty:        line.Qty,
			Size:       line.Size,
		})
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&requisition).Error; err != nil {
		// two processes seeding a cold sequence counter can race to the same
		// number; the unique index catches it, the caller just retries
		if utils.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("requisition number %s already assigned: %w",
				requisition.Number, utils.ErrConcurrentModification)
		}
		return nil, err
	}
	return &requisition, nil
}

// ApproveRequisitionInput is the decision payload. An approval carries no
// rejection reason; a rejection requires one.
type ApproveRequisitionInput struct {
	Approved        bool    `json:"approved"`
	RejectionReason *string `json:"rejection_reason"`
}

// ApproveRequisition decides a Pending requisition one way or the other.
func ApproveRequisition(ctx context.Context, id int, input *ApproveRequisitionInput) (*Requisition, error) {
	userId, _ := utils.GetUserIdFromContext(ctx)
	now := time.Now().UTC()

	target := RequisitionStatusApproved
	extra := map[string]interface{}{
		"approved_by": userId,
		"approved_at": now,
	}
	if input.Approved {
		if input.RejectionReason != nil && *input.RejectionReason != "" {
			return nil, errors.New("an approval cannot carry a rejection reason")
		}
	} else {
		if input.RejectionReason == nil || strings.TrimSpace(*input.RejectionReason) == "" {
			return nil, errors.New("a rejection requires a reason")
		}
		target = RequisitionStatusRejected
		extra["rejection_reason"] = input.RejectionReason
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return transitionStatus(tx, id, RequisitionStatusPending, target, extra)
	})
	if err != nil {
		return nil, err
	}
	return GetRequisition(ctx, id)
}

// DeliverRequisitionLine assigns the lot that satisfies one line. Qty
// defaults to the requested quantity when omitted.
type DeliverRequisitionLine struct {
	LineId int              `json:"line_id" binding:"required"`
	LotId  int              `json:"lot_id" binding:"required"`
	Qty    *decimal.Decimal `json:"qty"`
}

type DeliverRequisitionInput struct {
	SignatureRef string                   `json:"signature_ref" binding:"required"`
	PhotoRef     *string                  `json:"photo_ref"`
	Observations *string                  `json:"observations"`
	DeliveryDate time.Time                `json:"delivery_date" binding:"required"`
	Lines        []DeliverRequisitionLine `json:"lines" binding:"required,min=1,dive"`
}

// DeliverRequisition fulfils an Approved requisition. Each line draws from
// exactly one assigned lot; lines are consumed in order inside a single
// transaction, so any shortfall rolls back every line and reports which one
// failed. Warnings are advisory low-stock messages, one per line at most.
func DeliverRequisition(ctx context.Context, id int, input *DeliverRequisitionInput) (*Requisition, []string, error) {
	userId, _ := utils.GetUserIdFromContext(ctx)

	requisition, err := GetRequisition(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if requisition.Status != RequisitionStatusApproved {
		return nil, nil, fmt.Errorf("requisition %d: %s -> %s: %w",
			id, requisition.Status, RequisitionStatusDelivered, utils.ErrInvalidTransition)
	}

	assignments := make(map[int]DeliverRequisitionLine, len(input.Lines))
	for _, assignment := range input.Lines {
		if _, dup := assignments[assignment.LineId]; dup {
			return nil, nil, fmt.Errorf("line %d assigned more than once", assignment.LineId)
		}
		if assignment.Qty != nil && !assignment.Qty.IsPositive() {
			return nil, nil, fmt.Errorf("line %d: delivered qty must be positive", assignment.LineId)
		}
		assignments[assignment.LineId] = assignment
	}
	for _, line := range requisition.Lines {
		if _, ok := assignments[line.ID]; !ok {
			return nil, nil, fmt.Errorf("line %d has no lot assigned", line.LineNo)
		}
	}
	if len(assignments) != len(requisition.Lines) {
		return nil, nil, errors.New("lot assignments do not match requisition lines")
	}

	release, err := utils.WarehouseStockLock(ctx, requisition.WarehouseId, "models", "DeliverRequisition")
	if err != nil {
		return nil, nil, err
	}
	defer release()

	var warnings []string
	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		if err := transitionStatus(tx, id, RequisitionStatusApproved, RequisitionStatusDelivered, map[string]interface{}{
			"delivered_by":   userId,
			"delivered_at":   now,
			"signature_ref":  input.SignatureRef,
			"photo_ref":      input.PhotoRef,
			"delivery_notes": input.Observations,
		}); err != nil {
			return err
		}

		for _, line := range requisition.Lines {
			assignment := assignments[line.ID]
			qty := line.Qty
			if assignment.Qty != nil {
				qty = *assignment.Qty
			}
			lot, err := lockLot(tx, assignment.LotId)
			if err != nil {
				return &utils.LineDeliveryError{LineNo: line.LineNo, LineId: line.ID, Err: err}
			}
			if lot.MaterialId != line.MaterialId || lot.WarehouseId != requisition.WarehouseId {
				return &utils.LineDeliveryError{LineNo: line.LineNo, LineId: line.ID,
					Err: fmt.Errorf("lot %d does not match line material/warehouse", assignment.LotId)}
			}
			warning, err := ConsumeLot(tx, assignment.LotId, qty, input.DeliveryDate)
			if err != nil {
				return &utils.LineDeliveryError{LineNo: line.LineNo, LineId: line.ID, Err: err}
			}
			if warning != "" {
				warnings = append(warnings, warning)
			}

			delivery := Delivery{
				EmployeeId:        requisition.EmployeeId,
				MaterialId:        line.MaterialId,
				SupplierId:        lot.SupplierId,
				LotId:             assignment.LotId,
				WarehouseId:       requisition.WarehouseId,
				Qty:               qty,
				DeliveryDate:      input.DeliveryDate,
				Size:              line.Size,
				RequisitionLineId: &line.ID,
				CreatedBy:         userId,
			}
			if err := tx.Create(&delivery).Error; err != nil {
				return err
			}
			if err := tx.Model(&RequisitionLine{}).Where("id = ?", line.ID).Updates(map[string]interface{}{
				"lot_id":        assignment.LotId,
				"qty_delivered": qty,
				"delivery_id":   delivery.ID,
			}).Error; err != nil {
				return err
			}

			lineId := line.ID
			if err := fireStockEvent(ctx, tx, StockEvent{
				EmployeeId:        requisition.EmployeeId,
				MaterialId:        line.MaterialId,
				WarehouseId:       requisition.WarehouseId,
				Qty:               qty,
				UnitPrice:         lot.UnitPrice,
				Date:              input.DeliveryDate,
				DeliveryId:        delivery.ID,
				RequisitionId:     &requisition.ID,
				RequisitionLineId: &lineId,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	delivered, err := GetRequisition(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return delivered, warnings, nil
}

// CancelRequisition closes a Pending or Approved requisition without any
// stock effect.
func CancelRequisition(ctx context.Context, id int) (*Requisition, error) {
	userId, _ := utils.GetUserIdFromContext(ctx)
	now := time.Now().UTC()
	extra := map[string]interface{}{
		"cancelled_by": userId,
		"cancelled_at": now,
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current Requisition
		if err := tx.Select("status").First(&current, id).Error; err != nil {
			return utils.ErrorRecordNotFound
		}
		if current.Status != RequisitionStatusPending && current.Status != RequisitionStatusApproved {
			return fmt.Errorf("requisition %d: %s -> %s: %w",
				id, current.Status, RequisitionStatusCancelled, utils.ErrInvalidTransition)
		}
		return transitionStatus(tx, id, current.Status, RequisitionStatusCancelled, extra)
	})
	if err != nil {
		return nil, err
	}
	return GetRequisition(ctx, id)
}

// CanViewRequisition grants access to the requester, to the user linked to
// the receiving employee, and to privileged roles.
func CanViewRequisition(ctx context.Context, requisitionId int, userId int) (bool, error) {
	if isAdmin, ok := utils.GetIsAdminFromContext(ctx); ok && isAdmin {
		return true, nil
	}
	requisition, err := GetRequisition(ctx, requisitionId)
	if err != nil {
		return false, err
	}
	if requisition.RequestedBy == userId {
		return true, nil
	}
	employee, err := GetEmployee(ctx, requisition.EmployeeId)
	if err != nil {
		return false, err
	}
	return employee.UserId == userId, nil
}

func GetRequisition(ctx context.Context, id int) (*Requisition, error) {
	db := config.GetDB()
	var requisition Requisition
	err := db.WithContext(ctx).Preload("Lines", func(db *gorm.DB) *gorm.DB {
		return db.Order("line_no")
	}).First(&requisition, id).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &requisition, nil
}

// GetRequisitionsByStatus pages requisitions in a given status, newest
// first, for the approval and delivery queues.
func GetRequisitionsByStatus(ctx context.Context, status RequisitionStatus, offset int, limit int) ([]*Requisition, error) {
	if limit <= 0 || limit > 100 {
		limit = config.SearchLimit
	}
	db := config.GetDB()
	var requisitions []*Requisition
	err := db.WithContext(ctx).
		Where("status = ?", status).
		Order("request_date desc, id desc").
		Offset(offset).Limit(limit).
		Preload("Lines").
		Find(&requisitions).Error
	if err != nil {
		return nil, err
	}
	return requisitions, nil
}
