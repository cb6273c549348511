package mocked

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sand/storefront/backend/internal/entities"
)

// Memory is an in-process stand-in for the Postgres repositories. Every mutation is a
// compare-and-set under mu, so concurrent callers observe the same guarantees as the SQL
// statements they replace. Mutations made inside Transactor.WithinTransaction are undone
// when the unit of work fails.
type Memory struct {
	logger *slog.Logger

	mu        sync.Mutex
	orders    map[uuid.UUID]*entities.RechargeOrder
	accounts  map[int64]*entities.UserAccount
	items     map[string]*entities.CatalogItem
	units     map[string]*entities.InventoryUnit
	purchases map[uuid.UUID]*entities.PurchaseOrder
	flags     map[string]*entities.ReconciliationFlag
	flagSeq   int64
}

func NewMemory(logger *slog.Logger) *Memory {
	return &Memory{
		logger:    logger,
		orders:    make(map[uuid.UUID]*entities.RechargeOrder),
		accounts:  make(map[int64]*entities.UserAccount),
		items:     make(map[string]*entities.CatalogItem),
		units:     make(map[string]*entities.InventoryUnit),
		purchases: make(map[uuid.UUID]*entities.PurchaseOrder),
		flags:     make(map[string]*entities.ReconciliationFlag),
	}
}

// PutItem adds or replaces a catalog item.
func (m *Memory) PutItem(item entities.CatalogItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = &item
}

// PutUnits adds available units for an item.
func (m *Memory) PutUnits(units ...entities.InventoryUnit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range units {
		if u.State == "" {
			u.State = entities.UnitStateAvailable
		}
		m.units[u.ID] = &u
	}
}

// SetBalance overwrites a balance, creating the account if needed.
func (m *Memory) SetBalance(userID int64, balance decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.account(userID).Balance = balance
}

func (m *Memory) account(userID int64) *entities.UserAccount {
	acc, ok := m.accounts[userID]
	if !ok {
		acc = &entities.UserAccount{UserID: userID}
		m.accounts[userID] = acc
	}
	return acc
}
