package core

import (
	"context"
	"database/sql/driver"
	"encoding/json"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type ActionType string

const (
	ActionDeposit   ActionType = "deposit"
	ActionMint      ActionType = "mint"
	ActionRedeem    ActionType = "redeem"
	ActionBurn      ActionType = "burn"
	ActionLiquidate ActionType = "liquidate"
)

type (
	OperateStore interface {
		CreateOperate(ctx context.Context, operate *Operate) error
		DeleteOperate(ctx context.Context, operateId uuid.UUID) error
		ListOperates(ctx context.Context, accountId uuid.UUID, createdBeforeAt, limit int64) ([]Operate, error)
	}

	// Operate is the audit record of one committed state transition. Records
	// are written after the ledger mutation and before any external transfer
	// is attempted, so the trail is always at least as conservative as the
	// true post-operation state.
	Operate struct {
		Id        uuid.UUID     `json:"id"`
		AccountId uuid.UUID     `json:"accountId"`
		Action    ActionType    `json:"action"`
		Extra     OperateDetail `json:"extra"`
		CreatedAt int64         `json:"createdAt"`
	}

	OperateDetail struct {
		Action  ActionType      `json:"action"`
		AssetId string          `json:"assetId,omitempty"`
		Amount  decimal.Decimal `json:"amount"`

		Counterparty uuid.UUID `json:"counterparty,omitempty"`
	}
)

func NewOperate(clk clock.Clock, accountId uuid.UUID, action ActionType, extra OperateDetail) *Operate {
	extra.Action = action
	return &Operate{
		Id:        uuid.Must(uuid.NewV4()),
		AccountId: accountId,
		Action:    action,
		Extra:     extra,
		CreatedAt: clk.Now().Unix(),
	}
}

func (j OperateDetail) Value() (driver.Value, error) {
	valueString, err := json.Marshal(j)
	return string(valueString), err
}

func (j *OperateDetail) Scan(value any) error {
	if err := json.Unmarshal(value.([]byte), &j); err != nil {
		return err
	}
	return nil
}
