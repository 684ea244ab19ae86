package core

import (
	"context"
	"testing"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/pegstable/core/token"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestDepositCollateral(t *testing.T) {
	env := newTestEnv(t, map[string]int64{"weth": 2000})
	ctx := context.Background()
	accountId := env.newAccount(t, "alice")

	tests := []struct {
		name    string
		assetId string
		amount  decimal.Decimal
		wantErr error
	}{
		{name: "zero amount", assetId: "weth", amount: decimal.Zero, wantErr: ErrInvalidAmount},
		{name: "negative amount", assetId: "weth", amount: decimal.NewFromInt(-1), wantErr: ErrInvalidAmount},
		{name: "unsupported asset", assetId: "doge", amount: decimal.NewFromInt(1), wantErr: ErrUnsupportedAsset},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := env.engine.DepositCollateral(ctx, accountId, tt.assetId, tt.amount)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	env.transfer.credit("weth", accountId, decimal.NewFromInt(10))
	require.NoError(t, env.engine.DepositCollateral(ctx, accountId, "weth", decimal.NewFromInt(10)))

	balance, err := env.engine.CollateralBalanceOf(ctx, accountId, "weth")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(10)))
	// Collateral moved into the vault.
	assert.True(t, env.transfer.balanceOf("weth", accountId).IsZero())
	assert.True(t, env.transfer.balanceOf("weth", env.engineId).Equal(decimal.NewFromInt(10)))
}

func TestDepositRollsBackOnTransferFailure(t *testing.T) {
	env := newTestEnv(t, map[string]int64{"weth": 2000})
	ctx := context.Background()
	accountId := env.newAccount(t, "alice")

	// Wallet never funded, so the external pull must refuse.
	err := env.engine.DepositCollateral(ctx, accountId, "weth", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrTransferFailed)

	balance, err := env.engine.CollateralBalanceOf(ctx, accountId, "weth")
	require.NoError(t, err)
	assert.True(t, balance.IsZero())

	operates, err := env.store.ListOperates(ctx, accountId, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, operates)
}

func TestMint(t *testing.T) {
	env := newTestEnv(t, map[string]int64{"weth": 2000})
	ctx := context.Background()
	accountId := env.newAccount(t, "alice")

	env.deposit(t, accountId, "weth", decimal.NewFromInt(1))

	require.NoError(t, env.engine.Mint(ctx, accountId, decimal.NewFromInt(1000)))

	debt, value, err := env.engine.AccountInformation(ctx, accountId)
	require.NoError(t, err)
	assert.True(t, debt.Equal(decimal.NewFromInt(1000)))
	assert.True(t, value.Equal(decimal.NewFromInt(2000)))
	assert.True(t, env.synth.BalanceOf(accountId).Equal(decimal.NewFromInt(1000)))
	assert.True(t, env.synth.TotalSupply().Equal(decimal.NewFromInt(1000)))

	// Exactly at the 200% boundary now; one more unit must break.
	err = env.engine.Mint(ctx, accountId, ONE)
	require.Error(t, err)
	assert.True(t, IsHealthFactorBroken(err))

	debt, _, err = env.engine.AccountInformation(ctx, accountId)
	require.NoError(t, err)
	assert.True(t, debt.Equal(decimal.NewFromInt(1000)), "failed mint must not leave debt behind")
}

func TestMintZeroAmount(t *testing.T) {
	env := newTestEnv(t, map[string]int64{"weth": 2000})
	accountId := env.newAccount(t, "alice")

	err := env.engine.Mint(context.Background(), accountId, decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestMintAfterPriceDrop(t *testing.T) {
	env := newTestEnv(t, map[string]int64{"weth": 4000})
	ctx := context.Background()
	accountId := env.newAccount(t, "alice")

	// $300 of collateral, $100 of debt: comfortably solvent.
	env.deposit(t, accountId, "weth", decimal.NewFromFloat(0.075))
	require.NoError(t, env.engine.Mint(ctx, accountId, decimal.NewFromInt(100)))

	// Collateral halves to $150: health factor lands at 0.75.
	env.feeds["weth"].price = rawPrice(2000)

	hf, err := env.engine.HealthFactor(ctx, accountId)
	require.NoError(t, err)
	assert.True(t, hf.Equal(decimal.NewFromFloat(0.75)), "got %s", hf)

	// Any further mint must fail and report the would-be ratio.
	err = env.engine.Mint(ctx, accountId, ONE)
	require.Error(t, err)
	var hfe *HealthFactorBrokenError
	require.ErrorAs(t, err, &hfe)
	assert.True(t, hfe.HealthFactor.LessThan(decimal.NewFromFloat(0.75)))
}

func TestMintRollsBackOnIssueFailure(t *testing.T) {
	env := newTestEnv(t, map[string]int64{"weth": 2000})
	ctx := context.Background()
	accountId := env.newAccount(t, "alice")

	env.deposit(t, accountId, "weth", decimal.NewFromInt(1))

	// Strip the engine's mint authority so the token leg refuses.
	require.NoError(t, env.synth.TransferOwnership(env.engineId, uuid.Must(uuid.NewV4())))

	err := env.engine.Mint(ctx, accountId, decimal.NewFromInt(100))
	assert.ErrorIs(t, err, ErrTransferFailed)

	debt, _, err := env.engine.AccountInformation(ctx, accountId)
	require.NoError(t, err)
	assert.True(t, debt.IsZero(), "debt must roll back when issuance fails")
	operates, err := env.store.ListOperates(ctx, accountId, 0, 0)
	require.NoError(t, err)
	assert.Len(t, operates, 1, "only the deposit should remain on the trail")
}

func TestDepositAndMintAtomicity(t *testing.T) {
	env := newTestEnv(t, map[string]int64{"weth": 2000})
	ctx := context.Background()
	accountId := env.newAccount(t, "alice")
	env.transfer.credit("weth", accountId, decimal.NewFromInt(1))

	// 1 weth backs at most $1000; asking for more must undo the deposit leg.
	err := env.engine.DepositAndMint(ctx, accountId, "weth", decimal.NewFromInt(1), decimal.NewFromInt(1500))
	require.Error(t, err)
	assert.True(t, IsHealthFactorBroken(err))

	balance, err := env.engine.CollateralBalanceOf(ctx, accountId, "weth")
	require.NoError(t, err)
	assert.True(t, balance.IsZero(), "deposit leg must not survive a failed mint leg")
	debt, _, err := env.engine.AccountInformation(ctx, accountId)
	require.NoError(t, err)
	assert.True(t, debt.IsZero())

	require.NoError(t, env.engine.DepositAndMint(ctx, accountId, "weth", decimal.NewFromInt(1), decimal.NewFromInt(1000)))
	balance, err = env.engine.CollateralBalanceOf(ctx, accountId, "weth")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(1)))
	assert.True(t, env.synth.BalanceOf(accountId).Equal(decimal.NewFromInt(1000)))
}

func TestRedeemCollateral(t *testing.T) {
	env := newTestEnv(t, map[string]int64{"weth": 2000})
	ctx := context.Background()
	accountId := env.newAccount(t, "alice")

	env.deposit(t, accountId, "weth", decimal.NewFromInt(2))

	// Withdrawing more than deposited must fail, not wrap.
	err := env.engine.RedeemCollateral(ctx, accountId, "weth", decimal.NewFromInt(3))
	assert.ErrorIs(t, err, ErrInsufficientCollateral)

	require.NoError(t, env.engine.RedeemCollateral(ctx, accountId, "weth", decimal.NewFromInt(2)))
	balance, err := env.engine.CollateralBalanceOf(ctx, accountId, "weth")
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
	assert.True(t, env.transfer.balanceOf("weth", accountId).Equal(decimal.NewFromInt(2)))
}

func TestRedeemCollateralRespectsSolvency(t *testing.T) {
	env := newTestEnv(t, map[string]int64{"weth": 2000})
	ctx := context.Background()
	accountId := env.newAccount(t, "alice")

	env.deposit(t, accountId, "weth", decimal.NewFromInt(2))
	require.NoError(t, env.engine.Mint(ctx, accountId, decimal.NewFromInt(1000)))

	// Pulling half the collateral would leave $2000 backing $1000 at a
	// 50% threshold: exactly 1.0, still solvent.
	require.NoError(t, env.engine.RedeemCollateral(ctx, accountId, "weth", decimal.NewFromInt(1)))

	// Anything more breaks.
	err := env.engine.RedeemCollateral(ctx, accountId, "weth", decimal.NewFromFloat(0.5))
	require.Error(t, err)
	assert.True(t, IsHealthFactorBroken(err))

	balance, err := env.engine.CollateralBalanceOf(ctx, accountId, "weth")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(1)), "failed redeem must not move collateral")
}

func TestBurn(t *testing.T) {
	env := newTestEnv(t, map[string]int64{"weth": 2000})
	ctx := context.Background()
	accountId := env.newAccount(t, "alice")

	env.deposit(t, accountId, "weth", decimal.NewFromInt(1))
	require.NoError(t, env.engine.Mint(ctx, accountId, decimal.NewFromInt(500)))

	// Burning needs an allowance for the engine's escrow pull.
	require.NoError(t, env.synth.Approve(ctx, accountId, env.engineId, decimal.NewFromInt(500)))

	err := env.engine.Burn(ctx, accountId, decimal.NewFromInt(600))
	assert.ErrorIs(t, err, ErrInsufficientDebt)

	require.NoError(t, env.engine.Burn(ctx, accountId, decimal.NewFromInt(200)))

	debt, _, err := env.engine.AccountInformation(ctx, accountId)
	require.NoError(t, err)
	assert.True(t, debt.Equal(decimal.NewFromInt(300)))
	assert.True(t, env.synth.BalanceOf(accountId).Equal(decimal.NewFromInt(300)))
	assert.True(t, env.synth.TotalSupply().Equal(decimal.NewFromInt(300)))
}

func TestBurnWithoutAllowanceRollsBack(t *testing.T) {
	env := newTestEnv(t, map[string]int64{"weth": 2000})
	ctx := context.Background()
	accountId := env.newAccount(t, "alice")

	env.deposit(t, accountId, "weth", decimal.NewFromInt(1))
	require.NoError(t, env.engine.Mint(ctx, accountId, decimal.NewFromInt(500)))

	err := env.engine.Burn(ctx, accountId, decimal.NewFromInt(200))
	assert.ErrorIs(t, err, ErrTransferFailed)

	debt, _, err := env.engine.AccountInformation(ctx, accountId)
	require.NoError(t, err)
	assert.True(t, debt.Equal(decimal.NewFromInt(500)), "debt must roll back if escrow pull fails")
	assert.True(t, env.synth.TotalSupply().Equal(decimal.NewFromInt(500)))
}

func TestRedeemCollateralAndBurn(t *testing.T) {
	env := newTestEnv(t, map[string]int64{"weth": 2000})
	ctx := context.Background()
	accountId := env.newAccount(t, "alice")

	env.deposit(t, accountId, "weth", decimal.NewFromInt(2))
	require.NoError(t, env.engine.Mint(ctx, accountId, decimal.NewFromInt(1000)))
	require.NoError(t, env.synth.Approve(ctx, accountId, env.engineId, decimal.NewFromInt(1000)))

	require.NoError(t, env.engine.RedeemCollateralAndBurn(ctx, accountId, "weth",
		decimal.NewFromInt(2), decimal.NewFromInt(1000)))

	debt, value, err := env.engine.AccountInformation(ctx, accountId)
	require.NoError(t, err)
	assert.True(t, debt.IsZero())
	assert.True(t, value.IsZero())
	assert.True(t, env.synth.TotalSupply().IsZero())
	assert.True(t, env.transfer.balanceOf("weth", accountId).Equal(decimal.NewFromInt(2)))

	hf, err := env.engine.HealthFactor(ctx, accountId)
	require.NoError(t, err)
	assert.True(t, hf.Equal(MaxHealthFactor))
}

func TestRedeemAndBurnIsAtomic(t *testing.T) {
	env := newTestEnv(t, map[string]int64{"weth": 2000})
	ctx := context.Background()
	accountId := env.newAccount(t, "alice")

	env.deposit(t, accountId, "weth", decimal.NewFromInt(2))
	require.NoError(t, env.engine.Mint(ctx, accountId, decimal.NewFromInt(1000)))
	require.NoError(t, env.synth.Approve(ctx, accountId, env.engineId, decimal.NewFromInt(1000)))

	// Burning 100 but pulling all collateral still leaves $900 unbacked.
	err := env.engine.RedeemCollateralAndBurn(ctx, accountId, "weth",
		decimal.NewFromInt(2), decimal.NewFromInt(100))
	require.Error(t, err)
	assert.True(t, IsHealthFactorBroken(err))

	debt, value, err := env.engine.AccountInformation(ctx, accountId)
	require.NoError(t, err)
	assert.True(t, debt.Equal(decimal.NewFromInt(1000)))
	assert.True(t, value.Equal(decimal.NewFromInt(4000)))
}

func TestReentrantMutationRejected(t *testing.T) {
	env := newTestEnv(t, map[string]int64{"weth": 2000})
	ctx := context.Background()
	accountId := env.newAccount(t, "alice")
	env.transfer.credit("weth", accountId, decimal.NewFromInt(2))

	var nestedErr error
	var nestedHF decimal.Decimal
	env.transfer.onTransferFrom = func() {
		// A transfer callback re-entering the engine mid-operation.
		nestedErr = env.engine.Mint(ctx, accountId, decimal.NewFromInt(1))
		nestedHF, _ = env.engine.HealthFactor(ctx, accountId)
	}

	require.NoError(t, env.engine.DepositCollateral(ctx, accountId, "weth", decimal.NewFromInt(2)))
	assert.ErrorIs(t, nestedErr, ErrReentrantCall)
	// Reads stay available during the guarded section and already see the
	// committed deposit.
	assert.True(t, nestedHF.Equal(MaxHealthFactor))
}

// failingDebtStore refuses every debt upsert, standing in for a backing
// store that errors mid-write.
type failingDebtStore struct {
	DebtStore
}

func (s *failingDebtStore) UpsertDebt(ctx context.Context, debt *Debt) error {
	return errors.New("store refused")
}

func TestCommitUnwindsOnStoreFailure(t *testing.T) {
	clk := clock.NewMock()
	engineId := uuid.Must(uuid.NewV4())
	feed := &fakeFeed{desc: "weth/usd", price: rawPrice(2000), updatedAt: clk.Now().Unix()}
	synth := token.NewLedger("Pegstable USD", "PUSD", engineId)
	transfer := newFakeTransfer(engineId)
	store := NewMemoryStore()
	service := &LedgerService{
		AccountStore:    store,
		CollateralStore: store,
		DebtStore:       &failingDebtStore{DebtStore: store},
		OperateStore:    store,
		LiquidateStore:  store,
	}

	engine, err := New([]string{"weth"}, []PriceFeed{feed}, synth.Bind(engineId), transfer, service,
		WithClock(clk), WithId(engineId))
	require.NoError(t, err)

	ctx := context.Background()
	account, err := FindOrCreateAccount(ctx, clk, service, "alice")
	require.NoError(t, err)
	transfer.credit("weth", account.Id, decimal.NewFromInt(1))

	// The collateral upsert lands, then the debt upsert refuses; the
	// collateral row must be unwound with it.
	err = engine.DepositAndMint(ctx, account.Id, "weth", decimal.NewFromInt(1), decimal.NewFromInt(100))
	require.Error(t, err)

	balance, err := engine.CollateralBalanceOf(ctx, account.Id, "weth")
	require.NoError(t, err)
	assert.True(t, balance.IsZero(), "collateral must not survive a failed commit")
	assert.True(t, transfer.balanceOf("weth", account.Id).Equal(decimal.NewFromInt(1)),
		"no external transfer may run after a failed commit")
	assert.True(t, synth.TotalSupply().IsZero())

	operates, err := store.ListOperates(ctx, account.Id, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, operates)
}

func TestRejectedStagingPersistsNothing(t *testing.T) {
	env := newTestEnv(t, map[string]int64{"weth": 2000})
	ctx := context.Background()
	accountId := env.newAccount(t, "alice")

	// Withdrawing an asset the account never touched must not plant a row.
	err := env.engine.RedeemCollateral(ctx, accountId, "weth", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrInsufficientCollateral)
	_, err = env.store.FindCollateral(ctx, accountId, "weth")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	// Neither must a first mint that breaks the solvency check.
	err = env.engine.Mint(ctx, accountId, decimal.NewFromInt(100))
	require.Error(t, err)
	assert.True(t, IsHealthFactorBroken(err))
	_, err = env.store.FindDebt(ctx, accountId)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestOperateTrail(t *testing.T) {
	env := newTestEnv(t, map[string]int64{"weth": 2000})
	ctx := context.Background()
	accountId := env.newAccount(t, "alice")

	env.deposit(t, accountId, "weth", decimal.NewFromInt(1))
	require.NoError(t, env.engine.Mint(ctx, accountId, decimal.NewFromInt(100)))

	operates, err := env.store.ListOperates(ctx, accountId, 0, 0)
	require.NoError(t, err)
	require.Len(t, operates, 2)
	assert.Equal(t, ActionDeposit, operates[0].Action)
	assert.Equal(t, "weth", operates[0].Extra.AssetId)
	assert.Equal(t, ActionMint, operates[1].Action)
	assert.True(t, operates[1].Extra.Amount.Equal(decimal.NewFromInt(100)))
}
