package token

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

// Bound fixes the acting principal of a ledger, matching the engine-side
// token interface where the caller is implicit. The engine binds the ledger
// to its own vault id after receiving ownership.
type Bound struct {
	ledger *Ledger
	as     uuid.UUID
}

func (l *Ledger) Bind(as uuid.UUID) *Bound {
	return &Bound{ledger: l, as: as}
}

func (b *Bound) Mint(ctx context.Context, to uuid.UUID, amount decimal.Decimal) error {
	return b.ledger.Mint(ctx, b.as, to, amount)
}

func (b *Bound) Burn(ctx context.Context, amount decimal.Decimal) error {
	return b.ledger.Burn(ctx, b.as, amount)
}

func (b *Bound) Transfer(ctx context.Context, to uuid.UUID, amount decimal.Decimal) error {
	return b.ledger.Transfer(ctx, b.as, to, amount)
}

func (b *Bound) TransferFrom(ctx context.Context, from, to uuid.UUID, amount decimal.Decimal) error {
	return b.ledger.TransferFrom(ctx, b.as, from, to, amount)
}
