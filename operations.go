package core

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// staged accumulates one operation's pending ledger writes together with the
// prior row images needed to undo them. Nothing is visible to readers until
// commit; a failed external transfer afterwards restores the priors, so the
// caller always sees all-or-nothing.
type staged struct {
	delta *ledgerDelta

	collateral      []*Collateral
	priorCollateral []*Collateral
	debts           []*Debt
	priorDebts      []*Debt
	operates        []*Operate
}

func newStaged() *staged {
	return &staged{delta: newLedgerDelta()}
}

func (e *Engine) stageCollateralChange(ctx context.Context, s *staged, accountId uuid.UUID, assetId string, change decimal.Decimal) error {
	collateral, err := e.service.FindCollateral(ctx, accountId, assetId)
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			return err
		}
		// First touch stays in memory until commit; a rejected operation
		// must not plant a row.
		collateral = NewCollateral(e.clk, accountId, assetId)
	}
	prior := collateral.Clone()
	if err := collateral.Change(e.clk, change); err != nil {
		return err
	}
	s.delta.stage(collateral)
	s.collateral = append(s.collateral, collateral)
	s.priorCollateral = append(s.priorCollateral, prior)
	return nil
}

func (e *Engine) stageDebtChange(ctx context.Context, s *staged, accountId uuid.UUID, change decimal.Decimal) error {
	debt, err := e.service.FindDebt(ctx, accountId)
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			return err
		}
		debt = NewDebt(e.clk, accountId)
	}
	prior := debt.Clone()
	if err := debt.Change(e.clk, change); err != nil {
		return err
	}
	s.delta.stageDebt(debt)
	s.debts = append(s.debts, debt)
	s.priorDebts = append(s.priorDebts, prior)
	return nil
}

func (e *Engine) stageOperate(s *staged, accountId uuid.UUID, action ActionType, extra OperateDetail) {
	s.operates = append(s.operates, NewOperate(e.clk, accountId, action, extra))
}

// commit persists the staged rows. A store refusing halfway leaves the
// earlier writes of this set behind; those are unwound before returning, so
// the caller still observes all-or-nothing.
func (e *Engine) commit(ctx context.Context, s *staged) error {
	if err := e.persist(ctx, s); err != nil {
		e.rollback(ctx, s)
		return err
	}
	return nil
}

func (e *Engine) persist(ctx context.Context, s *staged) error {
	for _, c := range s.collateral {
		if err := e.service.UpsertCollateral(ctx, c); err != nil {
			return err
		}
	}
	for _, d := range s.debts {
		if err := e.service.UpsertDebt(ctx, d); err != nil {
			return err
		}
	}
	for _, op := range s.operates {
		if err := e.service.CreateOperate(ctx, op); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) rollback(ctx context.Context, s *staged) {
	for _, c := range s.priorCollateral {
		if err := e.service.UpsertCollateral(ctx, c); err != nil {
			e.log.Error().Msgf("rollback collateral %s/%s: %v", c.AccountId, c.AssetId, err)
		}
	}
	for _, d := range s.priorDebts {
		if err := e.service.UpsertDebt(ctx, d); err != nil {
			e.log.Error().Msgf("rollback debt %s: %v", d.AccountId, err)
		}
	}
	for _, op := range s.operates {
		// A record the failed commit never reached reads as a miss here.
		if err := e.service.DeleteOperate(ctx, op.Id); err != nil && err != gorm.ErrRecordNotFound {
			e.log.Error().Msgf("rollback operate %s: %v", op.Id, err)
		}
	}
}

// leg is one external transfer of an operation. undo compensates a completed
// leg when a later one refuses; legs are ordered pulls-first so the common
// refusals (missing balance or allowance) happen before anything moved.
type leg struct {
	do   func() error
	undo func() error
}

// interact runs the external-transfer legs after a commit. If a leg refuses,
// completed legs are compensated in reverse and the commit is unwound, so
// the caller observes all-or-nothing.
func (e *Engine) interact(ctx context.Context, s *staged, legs ...leg) error {
	for i, l := range legs {
		err := l.do()
		if err == nil {
			continue
		}
		for j := i - 1; j >= 0; j-- {
			if legs[j].undo == nil {
				continue
			}
			if uerr := legs[j].undo(); uerr != nil {
				e.log.Error().Msgf("compensate transfer leg %d: %v", j, uerr)
			}
		}
		e.rollback(ctx, s)
		return errors.Wrapf(ErrTransferFailed, "%v", err)
	}
	return nil
}

// DepositCollateral locks amount of a supported asset under the account. No
// solvency check: a deposit can only raise the health factor.
func (e *Engine) DepositCollateral(ctx context.Context, accountId uuid.UUID, assetId string, amount decimal.Decimal) error {
	if !e.guard.enter() {
		return ErrReentrantCall
	}
	defer e.guard.exit()

	s := newStaged()
	if err := e.stageDeposit(ctx, s, accountId, assetId, amount); err != nil {
		return err
	}
	if err := e.commit(ctx, s); err != nil {
		return err
	}
	return e.interact(ctx, s, leg{
		do: func() error { return e.transfer.TransferFrom(ctx, assetId, accountId, e.id, amount) },
	})
}

func (e *Engine) stageDeposit(ctx context.Context, s *staged, accountId uuid.UUID, assetId string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if _, ok := e.registry.get(assetId); !ok {
		return ErrUnsupportedAsset
	}
	if err := e.stageCollateralChange(ctx, s, accountId, assetId, amount); err != nil {
		return err
	}
	e.log.Debug().Msgf("deposit: %s %s for %s", amount, assetId, accountId)
	e.stageOperate(s, accountId, ActionDeposit, OperateDetail{AssetId: assetId, Amount: amount})
	return nil
}

// Mint issues synthetic units against the account's collateral. The debt is
// recorded first and the solvency check runs against the recorded debt; a
// broken check aborts with nothing persisted.
func (e *Engine) Mint(ctx context.Context, accountId uuid.UUID, amount decimal.Decimal) error {
	if !e.guard.enter() {
		return ErrReentrantCall
	}
	defer e.guard.exit()

	s := newStaged()
	if err := e.stageMint(ctx, s, accountId, amount); err != nil {
		return err
	}
	if err := e.checkHealth(ctx, accountId, s.delta); err != nil {
		return err
	}
	if err := e.commit(ctx, s); err != nil {
		return err
	}
	return e.interact(ctx, s, leg{
		do: func() error { return e.synth.Mint(ctx, accountId, amount) },
	})
}

func (e *Engine) stageMint(ctx context.Context, s *staged, accountId uuid.UUID, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if err := e.stageDebtChange(ctx, s, accountId, amount); err != nil {
		return err
	}
	e.log.Debug().Msgf("mint: %s for %s", amount, accountId)
	e.stageOperate(s, accountId, ActionMint, OperateDetail{Amount: amount})
	return nil
}

// DepositAndMint composes a deposit and a mint as one atomic unit: if the
// mint leg fails its solvency check, the deposit leg does not persist.
func (e *Engine) DepositAndMint(ctx context.Context, accountId uuid.UUID, assetId string, collateralAmount, debtAmount decimal.Decimal) error {
	if !e.guard.enter() {
		return ErrReentrantCall
	}
	defer e.guard.exit()

	s := newStaged()
	if err := e.stageDeposit(ctx, s, accountId, assetId, collateralAmount); err != nil {
		return err
	}
	if err := e.stageMint(ctx, s, accountId, debtAmount); err != nil {
		return err
	}
	if err := e.checkHealth(ctx, accountId, s.delta); err != nil {
		return err
	}
	if err := e.commit(ctx, s); err != nil {
		return err
	}
	return e.interact(ctx, s,
		leg{
			do:   func() error { return e.transfer.TransferFrom(ctx, assetId, accountId, e.id, collateralAmount) },
			undo: func() error { return e.transfer.Transfer(ctx, assetId, accountId, collateralAmount) },
		},
		leg{
			do: func() error { return e.synth.Mint(ctx, accountId, debtAmount) },
		},
	)
}

// RedeemCollateral withdraws deposited collateral back to the account,
// then re-validates the account's solvency against its remaining debt.
func (e *Engine) RedeemCollateral(ctx context.Context, accountId uuid.UUID, assetId string, amount decimal.Decimal) error {
	if !e.guard.enter() {
		return ErrReentrantCall
	}
	defer e.guard.exit()

	s := newStaged()
	if err := e.stageRedeem(ctx, s, accountId, assetId, amount); err != nil {
		return err
	}
	if err := e.checkHealth(ctx, accountId, s.delta); err != nil {
		return err
	}
	if err := e.commit(ctx, s); err != nil {
		return err
	}
	return e.interact(ctx, s, leg{
		do: func() error { return e.transfer.Transfer(ctx, assetId, accountId, amount) },
	})
}

func (e *Engine) stageRedeem(ctx context.Context, s *staged, accountId uuid.UUID, assetId string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if _, ok := e.registry.get(assetId); !ok {
		return ErrUnsupportedAsset
	}
	if err := e.stageCollateralChange(ctx, s, accountId, assetId, amount.Neg()); err != nil {
		return err
	}
	e.log.Debug().Msgf("redeem: %s %s for %s", amount, assetId, accountId)
	e.stageOperate(s, accountId, ActionRedeem, OperateDetail{AssetId: assetId, Amount: amount})
	return nil
}

// Burn retires amount of the account's minted debt, paid from the account's
// own token balance. Burning cannot lower the health factor, but the check
// still runs so a rounding edge can never regress solvency.
func (e *Engine) Burn(ctx context.Context, accountId uuid.UUID, amount decimal.Decimal) error {
	if !e.guard.enter() {
		return ErrReentrantCall
	}
	defer e.guard.exit()

	s := newStaged()
	if err := e.stageBurn(ctx, s, accountId, accountId, amount); err != nil {
		return err
	}
	if err := e.checkHealth(ctx, accountId, s.delta); err != nil {
		return err
	}
	if err := e.commit(ctx, s); err != nil {
		return err
	}
	return e.interact(ctx, s, e.burnLegs(ctx, accountId, amount)...)
}

func (e *Engine) stageBurn(ctx context.Context, s *staged, onBehalfOf, payer uuid.UUID, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if err := e.stageDebtChange(ctx, s, onBehalfOf, amount.Neg()); err != nil {
		return err
	}
	e.log.Debug().Msgf("burn: %s of %s paid by %s", amount, onBehalfOf, payer)
	e.stageOperate(s, onBehalfOf, ActionBurn, OperateDetail{Amount: amount, Counterparty: payer})
	return nil
}

// burnLegs collects the tokens from the payer into engine escrow, then
// retires them from the supply.
func (e *Engine) burnLegs(ctx context.Context, payer uuid.UUID, amount decimal.Decimal) []leg {
	return []leg{
		{
			do:   func() error { return e.synth.TransferFrom(ctx, payer, e.id, amount) },
			undo: func() error { return e.synth.Transfer(ctx, payer, amount) },
		},
		{
			do:   func() error { return e.synth.Burn(ctx, amount) },
			undo: func() error { return e.synth.Mint(ctx, e.id, amount) },
		},
	}
}

// RedeemCollateralAndBurn retires debt first, then withdraws collateral,
// with the same atomicity contract as DepositAndMint.
func (e *Engine) RedeemCollateralAndBurn(ctx context.Context, accountId uuid.UUID, assetId string, collateralAmount, debtAmount decimal.Decimal) error {
	if !e.guard.enter() {
		return ErrReentrantCall
	}
	defer e.guard.exit()

	s := newStaged()
	if err := e.stageBurn(ctx, s, accountId, accountId, debtAmount); err != nil {
		return err
	}
	if err := e.stageRedeem(ctx, s, accountId, assetId, collateralAmount); err != nil {
		return err
	}
	if err := e.checkHealth(ctx, accountId, s.delta); err != nil {
		return err
	}
	if err := e.commit(ctx, s); err != nil {
		return err
	}
	legs := append(e.burnLegs(ctx, accountId, debtAmount), leg{
		do: func() error { return e.transfer.Transfer(ctx, assetId, accountId, collateralAmount) },
	})
	return e.interact(ctx, s, legs...)
}
