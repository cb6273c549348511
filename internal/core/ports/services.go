package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sand/storefront/backend/internal/entities"
)

// OrderStore persists recharge orders. Transition is the only way to change a status and must be
// a single conditional update: it returns ErrConflict when the order is no longer in from.
// CreateOrder returns ErrAmountInUse when a pending order on the same address already expects the amount.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *entities.RechargeOrder) error
	GetOrder(ctx context.Context, id uuid.UUID) (*entities.RechargeOrder, error)
	Transition(ctx context.Context, id uuid.UUID, from, to entities.OrderStatus, fields entities.TransitionFields) error
	FindPendingByAddress(ctx context.Context, address string, now time.Time, limit int) ([]entities.RechargeOrder, error)
	FindExpiredCandidates(ctx context.Context, now time.Time, limit int) ([]entities.RechargeOrder, error)
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
	ExpectedAmountInUse(ctx context.Context, address string, expected decimal.Decimal, paidSince time.Time) (bool, error)
	FindUserOrders(ctx context.Context, userID int64, includeCanceled bool, limit int) ([]entities.RechargeOrder, error)
	FindRecentlyClosed(ctx context.Context, address string, since time.Time, limit int) ([]entities.RechargeOrder, error)
	IsTransferClaimed(ctx context.Context, txID string) (bool, error)
}

// AccountStore keeps balances. Debit must fail with ErrInsufficientBalance when the balance at
// the moment of the decrement is lower than amount.
type AccountStore interface {
	Credit(ctx context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error)
	Debit(ctx context.Context, userID int64, amount decimal.Decimal, units int) (decimal.Decimal, error)
	GetAccount(ctx context.Context, userID int64) (*entities.UserAccount, error)
}

// InventoryStore claims units with per-unit compare-and-set. ClaimUnits may return fewer ids than
// requested; the caller decides whether to keep them.
type InventoryStore interface {
	ClaimUnits(ctx context.Context, itemID string, quantity int, buyerID int64) ([]string, error)
	ReleaseUnits(ctx context.Context, unitIDs []string, buyerID int64) (int64, error)
	GetUnits(ctx context.Context, unitIDs []string) ([]entities.InventoryUnit, error)
	CountAvailable(ctx context.Context, itemID string) (int64, error)
}

type CatalogStore interface {
	GetItem(ctx context.Context, itemID string) (*entities.CatalogItem, error)
}

type PurchaseStore interface {
	InsertPurchase(ctx context.Context, purchase *entities.PurchaseOrder) error
	GetPurchase(ctx context.Context, id uuid.UUID) (*entities.PurchaseOrder, error)
	FindUserPurchases(ctx context.Context, buyerID int64, offset, limit int) ([]entities.PurchaseOrder, int64, error)
}

// ReviewQueue collects transfers that need manual reconciliation. Flag is idempotent per tx id
// and reports whether a new entry was created.
type ReviewQueue interface {
	Flag(ctx context.Context, flag *entities.ReconciliationFlag) (bool, error)
	ListOpen(ctx context.Context, limit int) ([]entities.ReconciliationFlag, error)
}

// LedgerClient fetches the latest incoming transfers for an address, newest first.
type LedgerClient interface {
	Fetch(ctx context.Context, address string, limit int) ([]entities.LedgerTransfer, error)
}

// NotificationSink is fire-and-forget; implementations must not block callers for long and
// their failures never undo a committed credit or sale.
type NotificationSink interface {
	NotifySettled(ctx context.Context, order *entities.RechargeOrder, balance decimal.Decimal)
	NotifyPurchased(ctx context.Context, purchase *entities.PurchaseOrder, balance decimal.Decimal)
	NotifyFlagged(ctx context.Context, flag *entities.ReconciliationFlag)
}

// DeliveryRequest describes the goods to hand over for a purchase.
type DeliveryRequest struct {
	PurchaseID uuid.UUID
	BuyerID    int64
	UnitIDs    []string
	Item       entities.CatalogItem
}

// DeliveryService hands sold units to the buyer and returns how many deliveries were made.
type DeliveryService interface {
	Deliver(ctx context.Context, req DeliveryRequest) (int, error)
}

// Transactor runs fn in a unit of work; stores reached through fn's ctx join it.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Clock is injected so expiry and grace windows can be tested.
type Clock func() time.Time
