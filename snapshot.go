package core

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

// AccountSnapshot is the read-only view of one account's position: minted
// debt, per-asset balances in registry order, the aggregate USD value, and
// the resulting health factor.
type AccountSnapshot struct {
	AccountId uuid.UUID `json:"accountId"`

	DebtMinted      decimal.Decimal `json:"debtMinted"`
	CollateralValue decimal.Decimal `json:"collateralValue"`
	HealthFactor    decimal.Decimal `json:"healthFactor"`

	Collateral []*Collateral `json:"collateral"`

	CreatedAt int64 `json:"createdAt"`
}

// Snapshot assembles the account's current position. Zero balances are
// omitted, so a fully withdrawn asset reads the same as one never touched.
func (e *Engine) Snapshot(ctx context.Context, accountId uuid.UUID) (*AccountSnapshot, error) {
	debtMinted, collateralValue, err := e.AccountInformation(ctx, accountId)
	if err != nil {
		return nil, err
	}

	collateral := make([]*Collateral, 0, len(e.registry.ordered))
	for _, asset := range e.registry.ordered {
		amount, err := e.stagedAmount(ctx, accountId, asset.AssetId, nil)
		if err != nil {
			return nil, err
		}
		if !amount.IsPositive() {
			continue
		}
		collateral = append(collateral, &Collateral{
			AccountId: accountId,
			AssetId:   asset.AssetId,
			Amount:    amount,
		})
	}

	return &AccountSnapshot{
		AccountId:       accountId,
		DebtMinted:      debtMinted,
		CollateralValue: collateralValue,
		HealthFactor:    HealthFactorRatio(collateralValue, debtMinted),
		Collateral:      collateral,
		CreatedAt:       e.clk.Now().Unix(),
	}, nil
}
