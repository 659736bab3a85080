package utils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrorRecordNotFound = errors.New("record not found")

// Ledger / workflow error taxonomy. All are recoverable by the caller
// (pick another lot, correct input, retry) except integrity violations
// reported by the consistency checks.
var (
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrOverReversal           = errors.New("reversal exceeds consumed quantity")
	ErrLotInUse               = errors.New("lot is referenced or partially consumed")
	ErrInvalidTransition      = errors.New("invalid requisition state transition")
	ErrAlreadyReviewed        = errors.New("alert has already been reviewed")
	ErrConfigurationMissing   = errors.New("material threshold configuration missing")
	ErrConcurrentModification = errors.New("conflicting concurrent modification, retry")
)

// ErrLedgerInconsistent marks a stock record whose existence diverges from
// its lots. In strict mode the record is put on hold and every ledger
// mutation against it is refused until the divergence is repaired.
var ErrLedgerInconsistent = errors.New("stock record diverges from its lots")

// IsDuplicateKeyError recognizes a unique-index violation across the gorm
// translation and the raw mysql error text.
func IsDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "duplicate key")
}

// InsufficientStockError carries the offending quantities so the caller can
// pick a different lot without blind resubmission.
type InsufficientStockError struct {
	LotId     int
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock in lot %d: requested %s, available %s",
		e.LotId, e.Requested.String(), e.Available.String())
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// LineDeliveryError reports which requisition line failed during a delivery
// attempt. The whole delivery is rolled back when any line fails.
type LineDeliveryError struct {
	LineNo int
	LineId int
	Err    error
}

func (e *LineDeliveryError) Error() string {
	return fmt.Sprintf("requisition line %d (id=%d): %v", e.LineNo, e.LineId, e.Err)
}

func (e *LineDeliveryError) Unwrap() error { return e.Err }

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
