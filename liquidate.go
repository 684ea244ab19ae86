package core

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type (
	LiquidateStore interface {
		StorageLiquidateResult(ctx context.Context, result *LiquidateResult) error
		DeleteLiquidateResult(ctx context.Context, resultId uuid.UUID) error
		ListLiquidateResults(ctx context.Context, accountId uuid.UUID) ([]*LiquidateResult, error)
	}

	// LiquidateResult records one completed liquidation for the audit trail.
	LiquidateResult struct {
		Id           uuid.UUID `json:"id"`
		LiquidatorId uuid.UUID `json:"liquidatorId"`
		LiquidateeId uuid.UUID `json:"liquidateeId"`
		AssetId      string    `json:"assetId"`

		DebtCovered  decimal.Decimal `json:"debtCovered"`
		SeizedAmount decimal.Decimal `json:"seizedAmount"`
		Bonus        decimal.Decimal `json:"bonus"`

		PreHealth  decimal.Decimal `json:"preHealth"`
		PostHealth decimal.Decimal `json:"postHealth"`

		CreatedAt int64 `json:"createdAt"`
	}
)

// Liquidate lets caller repay debtToCover of a distressed account's debt in
// exchange for the debt-equivalent amount of collateralAsset plus a bonus.
// Partial coverage is allowed. The distressed account's health factor must
// strictly improve, and the caller's own solvency is re-validated last.
//
// When the position has fallen under ~100% backing, the seizure can exceed
// the remaining collateral; that surfaces as ErrInsufficientCollateral and
// is an accepted boundary of the design, not recovered here.
func (e *Engine) Liquidate(ctx context.Context, callerId uuid.UUID, collateralAsset string, distressedId uuid.UUID, debtToCover decimal.Decimal) (*LiquidateResult, error) {
	if !e.guard.enter() {
		return nil, ErrReentrantCall
	}
	defer e.guard.exit()

	if !debtToCover.IsPositive() {
		return nil, ErrInvalidAmount
	}
	asset, ok := e.registry.get(collateralAsset)
	if !ok {
		return nil, ErrUnsupportedAsset
	}

	preHealth, err := e.healthFactorWith(ctx, distressedId, nil)
	if err != nil {
		return nil, err
	}
	if !preHealth.LessThan(MinHealthFactor) {
		return nil, ErrHealthFactorOk
	}

	price, err := asset.Feed.UsdPrice(ctx)
	if err != nil {
		return nil, err
	}
	tokenAmount, err := CalcAmount(debtToCover, price)
	if err != nil {
		return nil, err
	}
	bonus := tokenAmount.Mul(LiquidationBonus).Div(LiquidationPrecision)
	seized := tokenAmount.Add(bonus)

	s := newStaged()
	if err := e.stageCollateralChange(ctx, s, distressedId, collateralAsset, seized.Neg()); err != nil {
		return nil, err
	}
	if err := e.stageDebtChange(ctx, s, distressedId, debtToCover.Neg()); err != nil {
		return nil, err
	}

	postHealth, err := e.healthFactorWith(ctx, distressedId, s.delta)
	if err != nil {
		return nil, err
	}
	if !postHealth.GreaterThan(preHealth) {
		return nil, ErrHealthFactorNotImproved
	}
	if err := e.checkHealth(ctx, callerId, s.delta); err != nil {
		return nil, err
	}

	e.log.Info().Msgf("liquidate: %s covers %s debt of %s, seizing %s %s (bonus %s)",
		callerId, debtToCover, distressedId, seized, collateralAsset, bonus)
	e.stageOperate(s, callerId, ActionLiquidate, OperateDetail{
		AssetId:      collateralAsset,
		Amount:       debtToCover,
		Counterparty: distressedId,
	})

	result := &LiquidateResult{
		Id:           uuid.Must(uuid.NewV4()),
		LiquidatorId: callerId,
		LiquidateeId: distressedId,
		AssetId:      collateralAsset,
		DebtCovered:  debtToCover,
		SeizedAmount: seized,
		Bonus:        bonus,
		PreHealth:    preHealth,
		PostHealth:   postHealth,
		CreatedAt:    e.clk.Now().Unix(),
	}

	if err := e.commit(ctx, s); err != nil {
		return nil, err
	}
	if err := e.service.StorageLiquidateResult(ctx, result); err != nil {
		e.rollback(ctx, s)
		return nil, err
	}

	legs := append(e.burnLegs(ctx, callerId, debtToCover), leg{
		do: func() error { return e.transfer.Transfer(ctx, collateralAsset, callerId, seized) },
	})
	if err := e.interact(ctx, s, legs...); err != nil {
		if derr := e.service.DeleteLiquidateResult(ctx, result.Id); derr != nil {
			e.log.Error().Msgf("rollback liquidate result %s: %v", result.Id, derr)
		}
		return nil, err
	}

	return result, nil
}
