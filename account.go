package core

import (
	"context"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/pegstable/core/utils"
	"gorm.io/gorm"
)

type (
	AccountStore interface {
		GetAccountById(ctx context.Context, accountId uuid.UUID) (*Account, error)
		GetAccountByPubkey(ctx context.Context, pubkey string) (*Account, error)
		CreateAccount(ctx context.Context, account *Account) error
		ListAccounts(ctx context.Context) ([]*Account, error)
	}

	// Account is an address-like principal. Its ledger rows (collateral,
	// debt) are created lazily on first use and never destroyed.
	Account struct {
		Id     uuid.UUID `json:"id"`
		PubKey string    `json:"pubKey"`

		CreatedAt int64 `json:"createdAt"`
	}
)

func NewAccount(clk clock.Clock, pubKey string) *Account {
	return &Account{
		Id:        uuid.Must(uuid.FromString(utils.UuidFromStrings("account", pubKey))),
		PubKey:    pubKey,
		CreatedAt: clk.Now().Unix(),
	}
}

func FindOrCreateAccount(ctx context.Context, clk clock.Clock, store AccountStore, pubKey string) (*Account, error) {
	account, err := store.GetAccountByPubkey(ctx, pubKey)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			account = NewAccount(clk, pubKey)
			if err = store.CreateAccount(ctx, account); err != nil {
				return nil, err
			}
			return account, nil
		}
		return nil, err
	}
	return account, nil
}

// Account resolves a registered principal by id.
func (e *Engine) Account(ctx context.Context, accountId uuid.UUID) (*Account, error) {
	account, err := e.service.GetAccountById(ctx, accountId)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}
