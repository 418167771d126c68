package service

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"stationledger/backend/internal/domain"
)

var validate = validator.New()

// checkStruct runs the validate tags of req and converts the first failure
// into a ValidationError.
func checkStruct(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return invalid("", "%v", err)
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required", "required_if":
		return invalid(fe.Field(), "is required")
	case "oneof":
		return invalid(fe.Field(), "must be one of: %s", fe.Param())
	case "min":
		return invalid(fe.Field(), "must have at least %s entries", fe.Param())
	default:
		return invalid(fe.Field(), "is invalid (%s)", fe.Tag())
	}
}

func checkTimestamp(at time.Time) error {
	if at.IsZero() {
		return invalid("Timestamp", "is required")
	}
	return nil
}

func checkPositive(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return invalid(field, "must be positive, got %s", amount)
	}
	return nil
}

func checkNotNegative(field string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return invalid(field, "must not be negative, got %s", amount)
	}
	return nil
}

// checkCents rejects amounts with more precision than the ledger keeps.
func checkCents(field string, amount decimal.Decimal) error {
	if !amount.Equal(money(amount)) {
		return invalid(field, "must have at most %d decimal places, got %s", domain.MoneyScale, amount)
	}
	return nil
}

func money(d decimal.Decimal) decimal.Decimal {
	return d.Round(domain.MoneyScale)
}
