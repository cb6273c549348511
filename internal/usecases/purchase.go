package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sand/storefront/backend/internal/core/ports"
	"github.com/sand/storefront/backend/internal/entities"
)

const maxPageSize = 50

// PurchaseResult is what the buyer sees after a sale.
type PurchaseResult struct {
	Purchase  *entities.PurchaseOrder `json:"purchase"`
	Delivered int                     `json:"delivered"`
	Balance   decimal.Decimal         `json:"balance"`
}

// PurchasePage is one page of a buyer's purchase history.
type PurchasePage struct {
	Purchases []entities.PurchaseOrder `json:"purchases"`
	Total     int64                    `json:"total"`
	Page      int                      `json:"page"`
	Limit     int                      `json:"limit"`
}

type PurchaseCoordinator struct {
	logger        *slog.Logger
	catalog       ports.CatalogStore
	allocator     *InventoryAllocator
	accounts      ports.AccountStore
	purchases     ports.PurchaseStore
	transactor    ports.Transactor
	delivery      ports.DeliveryService
	notifier      ports.NotificationSink
	clock         ports.Clock
	defaultMarkup decimal.Decimal
}

func NewPurchaseCoordinator(
	logger *slog.Logger,
	catalog ports.CatalogStore,
	allocator *InventoryAllocator,
	accounts ports.AccountStore,
	purchases ports.PurchaseStore,
	transactor ports.Transactor,
	delivery ports.DeliveryService,
	notifier ports.NotificationSink,
	clock ports.Clock,
	defaultMarkup decimal.Decimal,
) *PurchaseCoordinator {
	if clock == nil {
		clock = time.Now
	}
	return &PurchaseCoordinator{
		logger:        logger,
		catalog:       catalog,
		allocator:     allocator,
		accounts:      accounts,
		purchases:     purchases,
		transactor:    transactor,
		delivery:      delivery,
		notifier:      notifier,
		clock:         clock,
		defaultMarkup: defaultMarkup,
	}
}

// Purchase sells quantity units of itemID to buyerID. Allocation, debit and the purchase record
// commit together; delivery and notification happen after commit and never undo the sale.
func (c *PurchaseCoordinator) Purchase(ctx context.Context, buyerID int64, itemID string, quantity int) (*PurchaseResult, error) {
	if buyerID <= 0 {
		return nil, ports.NewValidationError("user_id", "must be positive")
	}
	if quantity < 1 {
		return nil, ports.NewValidationError("quantity", "must be at least 1")
	}

	item, err := c.catalog.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if !item.Active {
		return nil, ports.ErrItemUnavailable
	}

	unitPrice, markup := item.UnitPrice(c.defaultMarkup)
	qty := decimal.NewFromInt(int64(quantity))
	purchase := &entities.PurchaseOrder{
		ID:        uuid.New(),
		BuyerID:   buyerID,
		ItemID:    item.ID,
		ItemName:  item.Name,
		Category:  item.Category,
		Quantity:  quantity,
		BasePrice: item.BasePrice,
		Markup:    markup,
		UnitPrice: unitPrice,
		TotalCost: unitPrice.Mul(qty).Round(2),
		Profit:    markup.Mul(qty).Round(2),
		CreatedAt: c.clock().UTC(),
	}

	var balance decimal.Decimal
	err = c.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		unitIDs, err := c.allocator.Allocate(ctx, item.ID, quantity, buyerID)
		if err != nil {
			return err
		}

		balance, err = c.accounts.Debit(ctx, buyerID, purchase.TotalCost, quantity)
		if errors.Is(err, ports.ErrInsufficientBalance) {
			if _, relErr := c.allocator.Release(ctx, unitIDs, buyerID); relErr != nil {
				return errors.Join(err, relErr)
			}
			return err
		}
		if err != nil {
			return err
		}

		purchase.UnitIDs = unitIDs
		return c.purchases.InsertPurchase(ctx, purchase)
	})
	if err != nil {
		c.logger.InfoContext(ctx, "Purchase rejected",
			"user_id", buyerID, "item_id", itemID, "quantity", quantity, "error", err)
		return nil, err
	}

	c.logger.InfoContext(ctx, "Purchase completed",
		"purchase_id", purchase.ID, "user_id", buyerID, "item_id", item.ID, "quantity", quantity,
		"total", purchase.TotalCost.StringFixed(2), "profit", purchase.Profit.StringFixed(2))

	delivered := c.deliver(ctx, purchase, *item)
	c.notifier.NotifyPurchased(ctx, purchase, balance)

	return &PurchaseResult{Purchase: purchase, Delivered: delivered, Balance: balance}, nil
}

func (c *PurchaseCoordinator) deliver(ctx context.Context, purchase *entities.PurchaseOrder, item entities.CatalogItem) int {
	delivered, err := c.delivery.Deliver(ctx, ports.DeliveryRequest{
		PurchaseID: purchase.ID,
		BuyerID:    purchase.BuyerID,
		UnitIDs:    purchase.UnitIDs,
		Item:       item,
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "Delivery failed, sale stands",
			"purchase_id", purchase.ID, "user_id", purchase.BuyerID, "error", err)
		return 0
	}
	return delivered
}

// Redeliver repeats delivery of a buyer's own purchase.
func (c *PurchaseCoordinator) Redeliver(ctx context.Context, buyerID int64, purchaseID uuid.UUID) (int, error) {
	purchase, err := c.purchases.GetPurchase(ctx, purchaseID)
	if err != nil {
		return 0, err
	}
	if purchase.BuyerID != buyerID {
		return 0, ports.ErrNotFound
	}

	item, err := c.catalog.GetItem(ctx, purchase.ItemID)
	if errors.Is(err, ports.ErrNotFound) {
		item = &entities.CatalogItem{ID: purchase.ItemID, Name: purchase.ItemName, Category: purchase.Category}
	} else if err != nil {
		return 0, err
	}

	delivered, err := c.delivery.Deliver(ctx, ports.DeliveryRequest{
		PurchaseID: purchase.ID,
		BuyerID:    buyerID,
		UnitIDs:    purchase.UnitIDs,
		Item:       *item,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to redeliver purchase %s: %w", purchaseID, err)
	}
	return delivered, nil
}

func (c *PurchaseCoordinator) ListPurchases(ctx context.Context, buyerID int64, page, limit int) (*PurchasePage, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}

	purchases, total, err := c.purchases.FindUserPurchases(ctx, buyerID, (page-1)*limit, limit)
	if err != nil {
		return nil, err
	}
	if purchases == nil {
		purchases = []entities.PurchaseOrder{}
	}
	return &PurchasePage{Purchases: purchases, Total: total, Page: page, Limit: limit}, nil
}

// Account returns the buyer's balance, or an empty account before the first recharge.
func (c *PurchaseCoordinator) Account(ctx context.Context, userID int64) (*entities.UserAccount, error) {
	account, err := c.accounts.GetAccount(ctx, userID)
	if errors.Is(err, ports.ErrNotFound) {
		return &entities.UserAccount{UserID: userID}, nil
	}
	return account, err
}
