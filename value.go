package core

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// CalcValue prices an asset quantity in USD.
func CalcValue(amount, price decimal.Decimal) decimal.Decimal {
	if amount.IsZero() {
		return decimal.Zero
	}
	return amount.Mul(price)
}

// CalcAmount converts a USD value back to an asset quantity.
func CalcAmount(value, price decimal.Decimal) (decimal.Decimal, error) {
	if price.IsZero() {
		return decimal.Zero, errors.New("price is zero")
	}
	return value.Div(price), nil
}

// HealthFactorRatio is the pure solvency ratio: collateral value discounted
// by the liquidation threshold, divided by outstanding debt. Zero debt is
// unconditionally solvent and maps to the maximal sentinel.
func HealthFactorRatio(collateralValue, debtMinted decimal.Decimal) decimal.Decimal {
	if debtMinted.IsZero() {
		return MaxHealthFactor
	}
	adjusted := collateralValue.Mul(LiquidationThreshold).Div(LiquidationPrecision)
	return adjusted.Div(debtMinted)
}
