package core

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount           = errors.New("amount must be positive")
	ErrUnsupportedAsset        = errors.New("asset is not a supported collateral type")
	ErrTransferFailed          = errors.New("external transfer failed")
	ErrHealthFactorOk          = errors.New("health factor is not below minimum")
	ErrHealthFactorNotImproved = errors.New("liquidation did not improve health factor")
	ErrInsufficientDebt        = errors.New("burn amount exceeds minted debt")
	ErrInsufficientCollateral  = errors.New("withdraw amount exceeds collateral balance")
	ErrConfigMismatch          = errors.New("asset and price feed lists must have the same length")
	ErrStalePrice              = errors.New("oracle price is stale or non-positive")
	ErrReentrantCall           = errors.New("operation already in flight")
	ErrAccountNotFound         = errors.New("account not found")
)

// HealthFactorBrokenError reports the ratio that failed the solvency check.
type HealthFactorBrokenError struct {
	HealthFactor decimal.Decimal
}

func (e *HealthFactorBrokenError) Error() string {
	return fmt.Sprintf("health factor broken: %s", e.HealthFactor)
}

func IsHealthFactorBroken(err error) bool {
	var hfe *HealthFactorBrokenError
	return errors.As(err, &hfe)
}
