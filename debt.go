package core

import (
	"context"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type (
	DebtStore interface {
		FindDebt(ctx context.Context, accountId uuid.UUID) (*Debt, error)
		UpsertDebt(ctx context.Context, debt *Debt) error
	}

	// Debt tracks the synthetic units an account has caused to be minted.
	// It is mint accounting, not a token balance: the debt stands even after
	// the minted tokens are transferred away.
	Debt struct {
		AccountId uuid.UUID       `json:"accountId"`
		Minted    decimal.Decimal `json:"minted"`

		LastUpdate int64 `json:"lastUpdate"`
	}
)

func NewDebt(clk clock.Clock, accountId uuid.UUID) *Debt {
	return &Debt{
		AccountId:  accountId,
		Minted:     decimal.Zero,
		LastUpdate: clk.Now().Unix(),
	}
}

func FindOrCreateDebt(ctx context.Context, clk clock.Clock, store DebtStore, accountId uuid.UUID) (*Debt, error) {
	debt, err := store.FindDebt(ctx, accountId)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			debt = NewDebt(clk, accountId)
			if err = store.UpsertDebt(ctx, debt); err != nil {
				return nil, err
			}
			return debt, nil
		}
		return nil, err
	}
	return debt, nil
}

func (d *Debt) Clone() *Debt {
	return &Debt{
		AccountId:  d.AccountId,
		Minted:     d.Minted,
		LastUpdate: d.LastUpdate,
	}
}

// Change applies a signed delta, rejecting results below zero.
func (d *Debt) Change(clk clock.Clock, delta decimal.Decimal) error {
	minted := d.Minted.Add(delta)
	if minted.LessThan(decimal.Zero) {
		return ErrInsufficientDebt
	}
	d.Minted = minted
	d.LastUpdate = clk.Now().Unix()
	return nil
}
