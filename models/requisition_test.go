package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTransitionTable(t *testing.T) {
	allowed := []struct{ from, to RequisitionStatus }{
		{RequisitionStatusPending, RequisitionStatusApproved},
		{RequisitionStatusPending, RequisitionStatusRejected},
		{RequisitionStatusPending, RequisitionStatusCancelled},
		{RequisitionStatusApproved, RequisitionStatusDelivered},
		{RequisitionStatusApproved, RequisitionStatusCancelled},
	}
	for _, tc := range allowed {
		assert.True(t, transitionAllowed(tc.from, tc.to), "%s -> %s should be allowed", tc.from, tc.to)
	}

	forbidden := []struct{ from, to RequisitionStatus }{
		{RequisitionStatusPending, RequisitionStatusDelivered},
		{RequisitionStatusApproved, RequisitionStatusRejected},
		{RequisitionStatusRejected, RequisitionStatusApproved},
		{RequisitionStatusDelivered, RequisitionStatusCancelled},
		{RequisitionStatusCancelled, RequisitionStatusPending},
		{RequisitionStatusDelivered, RequisitionStatusDelivered},
	}
	for _, tc := range forbidden {
		assert.False(t, transitionAllowed(tc.from, tc.to), "%s -> %s should be rejected", tc.from, tc.to)
	}
}

func TestTerminalStatesHaveNoOutgoingTransitions(t *testing.T) {
	for _, status := range []RequisitionStatus{
		RequisitionStatusRejected, RequisitionStatusDelivered, RequisitionStatusCancelled,
	} {
		assert.True(t, status.IsTerminal())
		assert.Empty(t, allowedRequisitionTransitions[status])
	}
	assert.False(t, RequisitionStatusPending.IsTerminal())
	assert.False(t, RequisitionStatusApproved.IsTerminal())
}

func TestParseRequisitionStatus(t *testing.T) {
	status, err := ParseRequisitionStatus("Approved")
	assert.NoError(t, err)
	assert.Equal(t, RequisitionStatusApproved, status)

	_, err = ParseRequisitionStatus("approved")
	assert.Error(t, err)
	_, err = ParseRequisitionStatus("")
	assert.Error(t, err)
}

func TestParseAlertReviewStateRejectsPending(t *testing.T) {
	for _, valid := range []string{"Confirmed", "Dismissed"} {
		state, err := ParseAlertReviewState(valid)
		assert.NoError(t, err)
		assert.Equal(t, AlertReviewState(valid), state)
	}
	_, err := ParseAlertReviewState("Pending")
	assert.Error(t, err)
}

func TestParseAlertKind(t *testing.T) {
	for _, valid := range []string{
		"PrematureRequest", "FrequencyExcess", "QuantityExcess",
		"PatternAnomaly", "BudgetDeviation", "TopConsumer",
	} {
		kind, err := ParseAlertKind(valid)
		assert.NoError(t, err)
		assert.Equal(t, AlertKind(valid), kind)
	}
	_, err := ParseAlertKind("patternanomaly")
	assert.Error(t, err)
	_, err = ParseAlertKind("")
	assert.Error(t, err)
}

func TestRequisitionNumberFormat(t *testing.T) {
	date := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	assert.Equal(t, "REQ-20260115-00007", requisitionNumber(date, 7))
	assert.Equal(t, "REQ-20261203-12345", requisitionNumber(time.Date(2026, 12, 3, 0, 0, 0, 0, time.UTC), 12345))
}

func TestNewRequisitionValidateRejectsEmptyLines(t *testing.T) {
	input := &NewRequisition{
		EmployeeId:  1,
		WarehouseId: 1,
		RequestDate: time.Now(),
	}
	assert.Error(t, input.validate(nil))
}
