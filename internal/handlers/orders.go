package handlers

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sand/storefront/backend/internal/entities"
	"github.com/sand/storefront/backend/internal/usecases"
)

var (
	_ RechargeService   = (*usecases.RechargeService)(nil)
	_ SettlementService = (*usecases.SettlementCoordinator)(nil)
	_ PurchaseService   = (*usecases.PurchaseCoordinator)(nil)
	_ StockService      = (*usecases.InventoryAllocator)(nil)
)

type RechargeService interface {
	CreateOrder(ctx context.Context, userID int64, base decimal.Decimal) (*entities.RechargeOrder, error)
	GetOrder(ctx context.Context, userID int64, orderID uuid.UUID) (*entities.RechargeOrder, error)
	ListOrders(ctx context.Context, userID int64, includeCanceled bool, limit int) ([]entities.RechargeOrder, error)
	CancelOrder(ctx context.Context, userID int64, orderID uuid.UUID) (*entities.RechargeOrder, error)
}

type SettlementService interface {
	VerifyOrder(ctx context.Context, userID int64, orderID uuid.UUID) (usecases.SettlementResult, *entities.RechargeOrder, error)
	OpenFlags(ctx context.Context, limit int) ([]entities.ReconciliationFlag, error)
}

type PurchaseService interface {
	Purchase(ctx context.Context, buyerID int64, itemID string, quantity int) (*usecases.PurchaseResult, error)
	Redeliver(ctx context.Context, buyerID int64, purchaseID uuid.UUID) (int, error)
	ListPurchases(ctx context.Context, buyerID int64, page, limit int) (*usecases.PurchasePage, error)
	Account(ctx context.Context, userID int64) (*entities.UserAccount, error)
}

type StockService interface {
	Stock(ctx context.Context, itemID string) (int64, error)
}
