package core

import (
	"context"
	"sync"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

// MemoryStore is the in-process implementation of every store the engine
// consumes. It clones rows at the boundary so callers can never alias
// stored state, and reports misses with gorm.ErrRecordNotFound like any
// gorm-backed store would.
type MemoryStore struct {
	mu sync.RWMutex

	accounts   map[uuid.UUID]*Account
	collateral map[uuid.UUID]map[string]*Collateral
	// collateralOrder keeps first-touch order per account for listing.
	collateralOrder map[uuid.UUID][]string
	debts           map[uuid.UUID]*Debt
	operates        []*Operate
	liquidations    []*LiquidateResult
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:        make(map[uuid.UUID]*Account),
		collateral:      make(map[uuid.UUID]map[string]*Collateral),
		collateralOrder: make(map[uuid.UUID][]string),
		debts:           make(map[uuid.UUID]*Debt),
	}
}

// NewMemoryLedgerService wires a single MemoryStore behind every store
// interface of the service.
func NewMemoryLedgerService() *LedgerService {
	s := NewMemoryStore()
	return &LedgerService{
		AccountStore:    s,
		CollateralStore: s,
		DebtStore:       s,
		OperateStore:    s,
		LiquidateStore:  s,
	}
}

func (s *MemoryStore) GetAccountById(ctx context.Context, accountId uuid.UUID) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[accountId]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *account
	return &clone, nil
}

func (s *MemoryStore) GetAccountByPubkey(ctx context.Context, pubkey string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, account := range s.accounts {
		if account.PubKey == pubkey {
			clone := *account
			return &clone, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *MemoryStore) CreateAccount(ctx context.Context, account *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *account
	s.accounts[account.Id] = &clone
	return nil
}

func (s *MemoryStore) ListAccounts(ctx context.Context) ([]*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		clone := *account
		out = append(out, &clone)
	}
	return out, nil
}

func (s *MemoryStore) FindCollateral(ctx context.Context, accountId uuid.UUID, assetId string) (*Collateral, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, ok := s.collateral[accountId]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	collateral, ok := rows[assetId]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return collateral.Clone(), nil
}

func (s *MemoryStore) UpsertCollateral(ctx context.Context, collateral *Collateral) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, ok := s.collateral[collateral.AccountId]
	if !ok {
		rows = make(map[string]*Collateral)
		s.collateral[collateral.AccountId] = rows
	}
	if _, ok := rows[collateral.AssetId]; !ok {
		s.collateralOrder[collateral.AccountId] = append(s.collateralOrder[collateral.AccountId], collateral.AssetId)
	}
	rows[collateral.AssetId] = collateral.Clone()
	return nil
}

func (s *MemoryStore) ListCollateral(ctx context.Context, accountId uuid.UUID) ([]*Collateral, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.collateral[accountId]
	out := make([]*Collateral, 0, len(rows))
	for _, assetId := range s.collateralOrder[accountId] {
		if collateral, ok := rows[assetId]; ok {
			out = append(out, collateral.Clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) FindDebt(ctx context.Context, accountId uuid.UUID) (*Debt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	debt, ok := s.debts[accountId]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return debt.Clone(), nil
}

func (s *MemoryStore) UpsertDebt(ctx context.Context, debt *Debt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.debts[debt.AccountId] = debt.Clone()
	return nil
}

func (s *MemoryStore) CreateOperate(ctx context.Context, operate *Operate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *operate
	s.operates = append(s.operates, &clone)
	return nil
}

func (s *MemoryStore) DeleteOperate(ctx context.Context, operateId uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, operate := range s.operates {
		if operate.Id == operateId {
			s.operates = append(s.operates[:i], s.operates[i+1:]...)
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (s *MemoryStore) ListOperates(ctx context.Context, accountId uuid.UUID, createdBeforeAt, limit int64) ([]Operate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Operate, 0, len(s.operates))
	for _, operate := range s.operates {
		if accountId != uuid.Nil && operate.AccountId != accountId {
			continue
		}
		if createdBeforeAt > 0 && operate.CreatedAt >= createdBeforeAt {
			continue
		}
		out = append(out, *operate)
		if limit > 0 && int64(len(out)) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) StorageLiquidateResult(ctx context.Context, result *LiquidateResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *result
	s.liquidations = append(s.liquidations, &clone)
	return nil
}

func (s *MemoryStore) DeleteLiquidateResult(ctx context.Context, resultId uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, result := range s.liquidations {
		if result.Id == resultId {
			s.liquidations = append(s.liquidations[:i], s.liquidations[i+1:]...)
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (s *MemoryStore) ListLiquidateResults(ctx context.Context, accountId uuid.UUID) ([]*LiquidateResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*LiquidateResult, 0, len(s.liquidations))
	for _, result := range s.liquidations {
		if accountId != uuid.Nil && result.LiquidatorId != accountId && result.LiquidateeId != accountId {
			continue
		}
		clone := *result
		out = append(out, &clone)
	}
	return out, nil
}
