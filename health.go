package core

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ledgerDelta overlays not-yet-committed rows on top of stored state so a
// solvency check can price a pending mutation before anything is persisted.
type ledgerDelta struct {
	collateral map[string]*Collateral
	debt       *Debt
}

func newLedgerDelta() *ledgerDelta {
	return &ledgerDelta{collateral: make(map[string]*Collateral)}
}

func (d *ledgerDelta) stage(c *Collateral) {
	d.collateral[c.AssetId] = c
}

func (d *ledgerDelta) stageDebt(debt *Debt) {
	d.debt = debt
}

// collateralValue sums the account's holdings across the registry in
// registration order, priced by each asset's stale-checked feed.
func (e *Engine) collateralValue(ctx context.Context, accountId uuid.UUID, delta *ledgerDelta) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, asset := range e.registry.ordered {
		amount, err := e.stagedAmount(ctx, accountId, asset.AssetId, delta)
		if err != nil {
			return decimal.Zero, err
		}
		if amount.IsZero() {
			continue
		}
		price, err := asset.Feed.UsdPrice(ctx)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(CalcValue(amount, price))
	}
	return total, nil
}

func (e *Engine) stagedAmount(ctx context.Context, accountId uuid.UUID, assetId string, delta *ledgerDelta) (decimal.Decimal, error) {
	if delta != nil {
		if c, ok := delta.collateral[assetId]; ok && c.AccountId == accountId {
			return c.Amount, nil
		}
	}
	collateral, err := e.service.FindCollateral(ctx, accountId, assetId)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return collateral.Amount, nil
}

func (e *Engine) stagedDebt(ctx context.Context, accountId uuid.UUID, delta *ledgerDelta) (decimal.Decimal, error) {
	if delta != nil && delta.debt != nil && delta.debt.AccountId == accountId {
		return delta.debt.Minted, nil
	}
	debt, err := e.service.FindDebt(ctx, accountId)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return debt.Minted, nil
}

func (e *Engine) healthFactorWith(ctx context.Context, accountId uuid.UUID, delta *ledgerDelta) (decimal.Decimal, error) {
	debtMinted, err := e.stagedDebt(ctx, accountId, delta)
	if err != nil {
		return decimal.Zero, err
	}
	if debtMinted.IsZero() {
		return MaxHealthFactor, nil
	}
	value, err := e.collateralValue(ctx, accountId, delta)
	if err != nil {
		return decimal.Zero, err
	}
	return HealthFactorRatio(value, debtMinted), nil
}

func (e *Engine) checkHealth(ctx context.Context, accountId uuid.UUID, delta *ledgerDelta) error {
	hf, err := e.healthFactorWith(ctx, accountId, delta)
	if err != nil {
		return err
	}
	if hf.LessThan(MinHealthFactor) {
		return &HealthFactorBrokenError{HealthFactor: hf}
	}
	return nil
}

// HealthFactor is the account's current solvency ratio. Zero-debt accounts
// report MaxHealthFactor; the call never fails for reachable ledger states
// as long as the oracles answer.
func (e *Engine) HealthFactor(ctx context.Context, accountId uuid.UUID) (decimal.Decimal, error) {
	return e.healthFactorWith(ctx, accountId, nil)
}

// AccountInformation returns the account's minted debt and aggregate USD
// collateral value.
func (e *Engine) AccountInformation(ctx context.Context, accountId uuid.UUID) (debtMinted, collateralValue decimal.Decimal, err error) {
	debtMinted, err = e.stagedDebt(ctx, accountId, nil)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	collateralValue, err = e.collateralValue(ctx, accountId, nil)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return debtMinted, collateralValue, nil
}

// AccountCollateralValue prices the account's deposits across all supported
// assets.
func (e *Engine) AccountCollateralValue(ctx context.Context, accountId uuid.UUID) (decimal.Decimal, error) {
	return e.collateralValue(ctx, accountId, nil)
}
