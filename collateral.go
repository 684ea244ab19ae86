package core

import (
	"context"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type (
	CollateralStore interface {
		FindCollateral(ctx context.Context, accountId uuid.UUID, assetId string) (*Collateral, error)
		UpsertCollateral(ctx context.Context, collateral *Collateral) error
		ListCollateral(ctx context.Context, accountId uuid.UUID) ([]*Collateral, error)
	}

	// Collateral is one account's deposited balance of one asset, in the
	// asset's native unit. Amount never goes negative: a withdrawal past the
	// balance is rejected, not wrapped.
	Collateral struct {
		AccountId uuid.UUID       `json:"accountId"`
		AssetId   string          `json:"assetId"`
		Amount    decimal.Decimal `json:"amount"`

		LastUpdate int64 `json:"lastUpdate"`
	}
)

func NewCollateral(clk clock.Clock, accountId uuid.UUID, assetId string) *Collateral {
	return &Collateral{
		AccountId:  accountId,
		AssetId:    assetId,
		Amount:     decimal.Zero,
		LastUpdate: clk.Now().Unix(),
	}
}

func FindOrCreateCollateral(ctx context.Context, clk clock.Clock, store CollateralStore, accountId uuid.UUID, assetId string) (*Collateral, error) {
	collateral, err := store.FindCollateral(ctx, accountId, assetId)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			collateral = NewCollateral(clk, accountId, assetId)
			if err = store.UpsertCollateral(ctx, collateral); err != nil {
				return nil, err
			}
			return collateral, nil
		}
		return nil, err
	}
	return collateral, nil
}

func (c *Collateral) Clone() *Collateral {
	return &Collateral{
		AccountId:  c.AccountId,
		AssetId:    c.AssetId,
		Amount:     c.Amount,
		LastUpdate: c.LastUpdate,
	}
}

// Change applies a signed delta, rejecting results below zero.
func (c *Collateral) Change(clk clock.Clock, delta decimal.Decimal) error {
	amount := c.Amount.Add(delta)
	if amount.LessThan(decimal.Zero) {
		return ErrInsufficientCollateral
	}
	c.Amount = amount
	c.LastUpdate = clk.Now().Unix()
	return nil
}
