package core

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// Oracle rounds report integer prices at this many decimal places.
	OracleDecimals = 8

	// Rounds older than this are rejected by the stale-checking adapter.
	DefaultOracleMaxAge = 3 * time.Hour
)

var (
	ONE = decimal.NewFromInt(1)

	// OraclePrecision converts a raw 8-decimal oracle price into USD per unit.
	OraclePrecision = decimal.New(1, OracleDecimals)

	// A position's collateral value is discounted by
	// LiquidationThreshold/LiquidationPrecision before being weighed against
	// its debt, so 50/100 requires 200% nominal overcollateralization.
	LiquidationThreshold = decimal.NewFromInt(50)
	LiquidationPrecision = decimal.NewFromInt(100)

	// Extra collateral awarded to a liquidator, as a percentage of the
	// debt-equivalent collateral amount.
	LiquidationBonus = decimal.NewFromInt(10)

	// An account is solvent iff its health factor is at least this.
	MinHealthFactor = ONE

	// Health factor reported for accounts with no minted debt. Matches the
	// largest 18-decimal fixed-point ratio a 256-bit word can carry.
	MaxHealthFactor = decimal.RequireFromString(
		"115792089237316195423570985008687907853269984665640564039457.584007913129639935")
)
