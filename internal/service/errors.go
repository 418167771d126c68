package service

import (
	"fmt"

	"stationledger/backend/internal/store"
)

// Reason codes carried by the structured errors.
const (
	ReasonShiftAlreadyOpen    = "ShiftAlreadyOpen"
	ReasonShiftNotOpen        = "ShiftNotOpen"
	ReasonNoManager           = "NoManager"
	ReasonNoAssignment        = "NoAssignment"
	ReasonCreditLimitExceeded = "CreditLimitExceeded"
	ReasonInsufficientFunds   = "InsufficientFunds"
	ReasonOverPayment         = "OverPayment"
	ReasonLoanSettled         = "LoanSettled"
	ReasonMeterRegression     = "MeterRegression"
	ReasonMeterOverflow       = "MeterOverflow"
	ReasonTimeRegression      = "TimeRegression"
	ReasonBalanceMismatch     = "BalanceMismatch"
	ReasonBrokenChain         = "BrokenChain"
)

type ConflictError struct {
	Reason string
	Detail string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s: %s", e.Reason, e.Detail)
}

func (e *ConflictError) Unwrap() error { return store.ErrConflict }

type NotFoundError struct {
	Reason string
	Detail string
}

func (e *NotFoundError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("not found: %s", e.Detail)
	}
	return fmt.Sprintf("not found: %s: %s", e.Reason, e.Detail)
}

func (e *NotFoundError) Unwrap() error { return store.ErrNotFound }

type PolicyError struct {
	Reason string
	Detail string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("policy: %s: %s", e.Reason, e.Detail)
}

func (e *PolicyError) Unwrap() error { return store.ErrPolicy }

// IntegrityError reports ledger or meter arithmetic that does not hold.
type IntegrityError struct {
	Reason string
	Detail string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity: %s: %s", e.Reason, e.Detail)
}

func (e *IntegrityError) Unwrap() error { return store.ErrIntegrity }

type ValidationError struct {
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Detail
	}
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Detail)
}

func (e *ValidationError) Unwrap() error { return store.ErrInvalidInput }

func conflict(reason, format string, args ...any) error {
	return &ConflictError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

func notFound(reason, format string, args ...any) error {
	return &NotFoundError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

func policy(reason, format string, args ...any) error {
	return &PolicyError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

func integrity(reason, format string, args ...any) error {
	return &IntegrityError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Detail: fmt.Sprintf(format, args...)}
}
