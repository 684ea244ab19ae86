package core

import (
	"context"
	"time"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type (
	// SyntheticToken is the boundary to the unit-pegged token ledger the
	// engine governs. Mint and burn authority belongs to the engine alone;
	// a refused call surfaces as ErrTransferFailed.
	SyntheticToken interface {
		Mint(ctx context.Context, to uuid.UUID, amount decimal.Decimal) error
		Burn(ctx context.Context, amount decimal.Decimal) error
		Transfer(ctx context.Context, to uuid.UUID, amount decimal.Decimal) error
		TransferFrom(ctx context.Context, from, to uuid.UUID, amount decimal.Decimal) error
	}

	// AssetTransfer moves collateral assets between principals and the
	// engine's vault. Standard fungible transfer semantics: any failure
	// aborts the enclosing operation.
	AssetTransfer interface {
		TransferFrom(ctx context.Context, assetId string, from, to uuid.UUID, amount decimal.Decimal) error
		Transfer(ctx context.Context, assetId string, to uuid.UUID, amount decimal.Decimal) error
	}
)

// LedgerService bundles the stores the engine owns. Rows are mutated only
// through engine operations, never directly.
type LedgerService struct {
	AccountStore
	CollateralStore
	DebtStore
	OperateStore
	LiquidateStore
}

// Engine is the collateral accounting, health factor, and liquidation core.
// One state-mutating operation runs at a time; a nested attempt to mutate
// while one is in flight is rejected with ErrReentrantCall. Reads are always
// safe.
type Engine struct {
	id  uuid.UUID
	clk clock.Clock
	log Log

	registry *assetRegistry
	service  *LedgerService
	synth    SyntheticToken
	transfer AssetTransfer

	oracleMaxAge time.Duration
	guard        opGuard
}

type OptionFunc func(e *Engine)

func WithClock(clk clock.Clock) OptionFunc {
	return func(e *Engine) { e.clk = clk }
}

func WithLog(log Log) OptionFunc {
	return func(e *Engine) { e.log = log }
}

func WithId(id uuid.UUID) OptionFunc {
	return func(e *Engine) { e.id = id }
}

func WithOracleMaxAge(maxAge time.Duration) OptionFunc {
	return func(e *Engine) { e.oracleMaxAge = maxAge }
}

// New wires an engine over parallel lists of collateral asset ids and their
// price feeds. The lists must match element for element; nothing is created
// on a mismatch.
func New(assetIds []string, feeds []PriceFeed, synth SyntheticToken, transfer AssetTransfer, service *LedgerService, opts ...OptionFunc) (*Engine, error) {
	if len(assetIds) != len(feeds) {
		return nil, ErrConfigMismatch
	}

	e := &Engine{
		id:           uuid.Must(uuid.NewV4()),
		clk:          clock.New(),
		log:          NopLogger(),
		service:      service,
		synth:        synth,
		transfer:     transfer,
		oracleMaxAge: DefaultOracleMaxAge,
	}
	for _, opt := range opts {
		opt(e)
	}

	assets := make([]*Asset, 0, len(assetIds))
	for i, assetId := range assetIds {
		assets = append(assets, &Asset{
			AssetId: assetId,
			Symbol:  feeds[i].Description(),
			Feed:    NewStaleCheckedFeed(feeds[i], e.oracleMaxAge, e.clk),
		})
	}
	e.registry = newAssetRegistry(assets)

	return e, nil
}

// Id identifies the engine's vault principal: deposited collateral and
// escrowed synthetic tokens are held under it.
func (e *Engine) Id() uuid.UUID {
	return e.id
}

// SupportedAssets returns the registry in registration order.
func (e *Engine) SupportedAssets() []*Asset {
	return e.registry.list()
}

// PriceFeedFor returns the stale-checking feed bound to an asset.
func (e *Engine) PriceFeedFor(assetId string) (*StaleCheckedFeed, error) {
	asset, ok := e.registry.get(assetId)
	if !ok {
		return nil, ErrUnsupportedAsset
	}
	return asset.Feed, nil
}

// CollateralBalanceOf reads one account's deposited balance of one asset.
// Accounts that never deposited read as zero.
func (e *Engine) CollateralBalanceOf(ctx context.Context, accountId uuid.UUID, assetId string) (decimal.Decimal, error) {
	if _, ok := e.registry.get(assetId); !ok {
		return decimal.Zero, ErrUnsupportedAsset
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

// UsdValue converts an asset quantity to USD at the current oracle price.
func (e *Engine) UsdValue(ctx context.Context, assetId string, amount decimal.Decimal) (decimal.Decimal, error) {
	asset, ok := e.registry.get(assetId)
	if !ok {
		return decimal.Zero, ErrUnsupportedAsset
	}
	price, err := asset.Feed.UsdPrice(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return CalcValue(amount, price), nil
}

// TokenAmountFromUsd converts a USD value to an asset quantity at the
// current oracle price.
func (e *Engine) TokenAmountFromUsd(ctx context.Context, assetId string, usdValue decimal.Decimal) (decimal.Decimal, error) {
	asset, ok := e.registry.get(assetId)
	if !ok {
		return decimal.Zero, ErrUnsupportedAsset
	}
	price, err := asset.Feed.UsdPrice(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return CalcAmount(usdValue, price)
}
