// Package token is the fungible ledger for the synthetic dollar. Issuance
// and burning are gated on a single owner principal, which is handed to the
// collateral engine at deployment; everyone else only moves existing units.
package token

import (
	"context"
	"sync"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	ErrNotOwner              = errors.New("caller does not hold mint/burn authority")
	ErrNilAccount            = errors.New("nil account")
	ErrInvalidAmount         = errors.New("amount must be positive")
	ErrInsufficientBalance   = errors.New("balance too low")
	ErrInsufficientAllowance = errors.New("allowance too low")
)

type Ledger struct {
	mu sync.RWMutex

	name   string
	symbol string
	owner  uuid.UUID

	total      decimal.Decimal
	balances   map[uuid.UUID]decimal.Decimal
	allowances map[uuid.UUID]map[uuid.UUID]decimal.Decimal
}

func NewLedger(name, symbol string, owner uuid.UUID) *Ledger {
	return &Ledger{
		name:       name,
		symbol:     symbol,
		owner:      owner,
		total:      decimal.Zero,
		balances:   make(map[uuid.UUID]decimal.Decimal),
		allowances: make(map[uuid.UUID]map[uuid.UUID]decimal.Decimal),
	}
}

func (l *Ledger) Name() string   { return l.name }
func (l *Ledger) Symbol() string { return l.symbol }

func (l *Ledger) Owner() uuid.UUID {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.owner
}

func (l *Ledger) TotalSupply() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}

func (l *Ledger) BalanceOf(accountId uuid.UUID) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[accountId]
}

func (l *Ledger) Allowance(ownerId, spenderId uuid.UUID) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.allowances[ownerId][spenderId]
}

// TransferOwnership hands mint/burn authority to newOwner. Only the current
// owner may call it.
func (l *Ledger) TransferOwnership(caller, newOwner uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.owner {
		return ErrNotOwner
	}
	if newOwner == uuid.Nil {
		return ErrNilAccount
	}
	l.owner = newOwner
	return nil
}

// Mint issues amount to the recipient. Owner only.
func (l *Ledger) Mint(ctx context.Context, caller, to uuid.UUID, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.owner {
		return ErrNotOwner
	}
	if to == uuid.Nil {
		return ErrNilAccount
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	l.balances[to] = l.balances[to].Add(amount)
	l.total = l.total.Add(amount)
	return nil
}

// Burn retires amount from the caller's own balance. Owner only.
func (l *Ledger) Burn(ctx context.Context, caller uuid.UUID, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.owner {
		return ErrNotOwner
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	balance := l.balances[caller]
	if balance.LessThan(amount) {
		return ErrInsufficientBalance
	}
	l.balances[caller] = balance.Sub(amount)
	l.total = l.total.Sub(amount)
	return nil
}

func (l *Ledger) Approve(ctx context.Context, caller, spender uuid.UUID, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if spender == uuid.Nil {
		return ErrNilAccount
	}
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	spenders, ok := l.allowances[caller]
	if !ok {
		spenders = make(map[uuid.UUID]decimal.Decimal)
		l.allowances[caller] = spenders
	}
	spenders[spender] = amount
	return nil
}

func (l *Ledger) Transfer(ctx context.Context, caller, to uuid.UUID, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(caller, to, amount)
}

// TransferFrom spends the caller's allowance on the from account. A caller
// moving its own funds does not need an allowance.
func (l *Ledger) TransferFrom(ctx context.Context, caller, from, to uuid.UUID, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if caller != from {
		allowance := l.allowances[from][caller]
		if allowance.LessThan(amount) {
			return ErrInsufficientAllowance
		}
		l.allowances[from][caller] = allowance.Sub(amount)
	}
	return l.move(from, to, amount)
}

func (l *Ledger) move(from, to uuid.UUID, amount decimal.Decimal) error {
	if to == uuid.Nil {
		return ErrNilAccount
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	balance := l.balances[from]
	if balance.LessThan(amount) {
		return ErrInsufficientBalance
	}
	l.balances[from] = balance.Sub(amount)
	l.balances[to] = l.balances[to].Add(amount)
	return nil
}
