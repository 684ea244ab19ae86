package core

import (
	"context"
	"time"

	"github.com/facebookgo/clock"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type (
	// PriceFeed is the raw oracle boundary: one feed per collateral asset,
	// reporting an integer price at OracleDecimals places.
	PriceFeed interface {
		LatestRound(ctx context.Context) (PriceRound, error)
		Description() string
	}

	PriceRound struct {
		Price     decimal.Decimal `json:"price"`
		UpdatedAt int64           `json:"updatedAt"`
	}
)

// StaleCheckedFeed wraps a PriceFeed and rejects rounds that are older than
// maxAge or carry a non-positive price. All engine valuation goes through it;
// the raw feed is never consumed directly.
type StaleCheckedFeed struct {
	feed   PriceFeed
	maxAge time.Duration
	clk    clock.Clock
}

func NewStaleCheckedFeed(feed PriceFeed, maxAge time.Duration, clk clock.Clock) *StaleCheckedFeed {
	if maxAge <= 0 {
		maxAge = DefaultOracleMaxAge
	}
	if clk == nil {
		clk = clock.New()
	}
	return &StaleCheckedFeed{feed: feed, maxAge: maxAge, clk: clk}
}

func (f *StaleCheckedFeed) Description() string {
	return f.feed.Description()
}

// UsdPrice returns the latest round normalized to USD per asset unit. The
// raw 8-decimal integer price is divided by OraclePrecision exactly once
// here; everything past this point works in plain USD decimals.
func (f *StaleCheckedFeed) UsdPrice(ctx context.Context) (decimal.Decimal, error) {
	round, err := f.feed.LatestRound(ctx)
	if err != nil {
		return decimal.Zero, errors.Wrapf(ErrStalePrice, "feed %s: %v", f.feed.Description(), err)
	}
	if !round.Price.IsPositive() {
		return decimal.Zero, errors.Wrapf(ErrStalePrice, "feed %s reported %s", f.feed.Description(), round.Price)
	}
	age := f.clk.Now().Sub(time.Unix(round.UpdatedAt, 0))
	if age > f.maxAge {
		return decimal.Zero, errors.Wrapf(ErrStalePrice, "feed %s round is %s old", f.feed.Description(), age)
	}
	return round.Price.Div(OraclePrecision), nil
}
