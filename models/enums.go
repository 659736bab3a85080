package models

import "errors"

type RequisitionStatus string

const (
	RequisitionStatusPending   RequisitionStatus = "Pending"
	RequisitionStatusApproved  RequisitionStatus = "Approved"
	RequisitionStatusRejected  RequisitionStatus = "Rejected"
	RequisitionStatusDelivered RequisitionStatus = "Delivered"
	RequisitionStatusCancelled RequisitionStatus = "Cancelled"
)

func ParseRequisitionStatus(s string) (RequisitionStatus, error) {
	switch RequisitionStatus(s) {
	case RequisitionStatusPending, RequisitionStatusApproved, RequisitionStatusRejected,
		RequisitionStatusDelivered, RequisitionStatusCancelled:
		return RequisitionStatus(s), nil
	}
	return "", errors.New("invalid requisition status")
}

// IsTerminal reports whether no further transition is allowed from s.
func (s RequisitionStatus) IsTerminal() bool {
	return s == RequisitionStatusRejected || s == RequisitionStatusDelivered || s == RequisitionStatusCancelled
}

type AlertKind string

const (
	AlertKindPrematureRequest AlertKind = "PrematureRequest"
	AlertKindFrequencyExcess  AlertKind = "FrequencyExcess"
	AlertKindQuantityExcess   AlertKind = "QuantityExcess"
	// PatternAnomaly covers irregular consumption shapes no single-event
	// rule detects. The data model admits the kind; no rule emits it yet.
	AlertKindPatternAnomaly  AlertKind = "PatternAnomaly"
	AlertKindBudgetDeviation AlertKind = "BudgetDeviation"
	AlertKindTopConsumer     AlertKind = "TopConsumer"
)

func ParseAlertKind(s string) (AlertKind, error) {
	switch AlertKind(s) {
	case AlertKindPrematureRequest, AlertKindFrequencyExcess, AlertKindQuantityExcess,
		AlertKindPatternAnomaly, AlertKindBudgetDeviation, AlertKindTopConsumer:
		return AlertKind(s), nil
	}
	return "", errors.New("invalid alert kind")
}

type AlertSeverity string

const (
	AlertSeverityLow      AlertSeverity = "Low"
	AlertSeverityMedium   AlertSeverity = "Medium"
	AlertSeverityHigh     AlertSeverity = "High"
	AlertSeverityCritical AlertSeverity = "Critical"
)

type AlertReviewState string

const (
	AlertReviewStatePending   AlertReviewState = "Pending"
	AlertReviewStateConfirmed AlertReviewState = "Confirmed"
	AlertReviewStateDismissed AlertReviewState = "Dismissed"
)

func ParseAlertReviewState(s string) (AlertReviewState, error) {
	switch AlertReviewState(s) {
	case AlertReviewStateConfirmed, AlertReviewStateDismissed:
		return AlertReviewState(s), nil
	}
	// Pending is the initial state only; a review can never set it back.
	return "", errors.New("invalid alert review state")
}

type RiskBand string

const (
	RiskBandNormal   RiskBand = "Normal"
	RiskBandLow      RiskBand = "Low"
	RiskBandMedium   RiskBand = "Medium"
	RiskBandHigh     RiskBand = "High"
	RiskBandCritical RiskBand = "Critical"
)
