package service

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Policy holds the tunable business rules of the engine.
type Policy struct {
	DepositThreshold   decimal.Decimal `yaml:"deposit_threshold"`
	DepositFloat       decimal.Decimal `yaml:"deposit_float"`
	EnforceCreditLimit bool            `yaml:"enforce_credit_limit"`
	LowStockRatio      decimal.Decimal `yaml:"low_stock_ratio"`
	RefillRatio        decimal.Decimal `yaml:"refill_ratio"`
	// VarianceAlert is the absolute cash variance above which a close is
	// logged at warn level.
	VarianceAlert decimal.Decimal `yaml:"variance_alert"`
}

func DefaultPolicy() Policy {
	return Policy{
		DepositThreshold:   decimal.NewFromInt(500000),
		DepositFloat:       decimal.NewFromInt(50000),
		EnforceCreditLimit: true,
		LowStockRatio:      decimal.RequireFromString("0.2"),
		RefillRatio:        decimal.RequireFromString("0.8"),
		VarianceAlert:      decimal.NewFromInt(1000),
	}
}

// policyFile mirrors Policy with optional fields so a file only overrides
// what it names.
type policyFile struct {
	DepositThreshold   *decimal.Decimal `yaml:"deposit_threshold"`
	DepositFloat       *decimal.Decimal `yaml:"deposit_float"`
	EnforceCreditLimit *bool            `yaml:"enforce_credit_limit"`
	LowStockRatio      *decimal.Decimal `yaml:"low_stock_ratio"`
	RefillRatio        *decimal.Decimal `yaml:"refill_ratio"`
	VarianceAlert      *decimal.Decimal `yaml:"variance_alert"`
}

// LoadPolicy reads a YAML policy file on top of DefaultPolicy. An empty path
// returns the defaults.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p, err
	}
	return parsePolicy(data)
}

func parsePolicy(data []byte) (Policy, error) {
	p := DefaultPolicy()
	var f policyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return p, fmt.Errorf("parse policy: %w", err)
	}
	if f.DepositThreshold != nil {
		p.DepositThreshold = *f.DepositThreshold
	}
	if f.DepositFloat != nil {
		p.DepositFloat = *f.DepositFloat
	}
	if f.EnforceCreditLimit != nil {
		p.EnforceCreditLimit = *f.EnforceCreditLimit
	}
	if f.LowStockRatio != nil {
		p.LowStockRatio = *f.LowStockRatio
	}
	if f.RefillRatio != nil {
		p.RefillRatio = *f.RefillRatio
	}
	if f.VarianceAlert != nil {
		p.VarianceAlert = *f.VarianceAlert
	}
	return p, p.Validate()
}

func (p Policy) Validate() error {
	if p.DepositFloat.IsNegative() {
		return fmt.Errorf("deposit_float must not be negative")
	}
	if p.DepositThreshold.LessThan(p.DepositFloat) {
		return fmt.Errorf("deposit_threshold must be at least deposit_float")
	}
	if p.LowStockRatio.IsNegative() || p.LowStockRatio.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("low_stock_ratio must be within [0, 1]")
	}
	if p.RefillRatio.LessThan(p.LowStockRatio) || p.RefillRatio.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("refill_ratio must be within [low_stock_ratio, 1]")
	}
	return nil
}
