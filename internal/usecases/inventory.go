package usecases

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sand/storefront/backend/internal/core/ports"
)

// InventoryAllocator reserves units all-or-nothing.
type InventoryAllocator struct {
	logger    *slog.Logger
	inventory ports.InventoryStore
}

func NewInventoryAllocator(logger *slog.Logger, inventory ports.InventoryStore) *InventoryAllocator {
	return &InventoryAllocator{logger: logger, inventory: inventory}
}

// Allocate claims exactly quantity units of itemID for buyerID or none of them.
func (a *InventoryAllocator) Allocate(ctx context.Context, itemID string, quantity int, buyerID int64) ([]string, error) {
	if quantity < 1 {
		return nil, ports.NewValidationError("quantity", "must be at least 1")
	}

	claimed, err := a.inventory.ClaimUnits(ctx, itemID, quantity, buyerID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim units: %w", err)
	}
	if len(claimed) == quantity {
		return claimed, nil
	}

	if len(claimed) > 0 {
		if _, err = a.Release(ctx, claimed, buyerID); err != nil {
			return nil, err
		}
	}
	a.logger.InfoContext(ctx, "Not enough stock", "item_id", itemID, "requested", quantity, "claimed", len(claimed))
	return nil, ports.ErrInsufficientStock
}

// Release returns units still held by buyerID to the pool.
func (a *InventoryAllocator) Release(ctx context.Context, unitIDs []string, buyerID int64) (int64, error) {
	released, err := a.inventory.ReleaseUnits(ctx, unitIDs, buyerID)
	if err != nil {
		return 0, fmt.Errorf("failed to release units: %w", err)
	}
	if released != int64(len(unitIDs)) {
		a.logger.WarnContext(ctx, "Released fewer units than claimed", "claimed", len(unitIDs), "released", released)
	}
	return released, nil
}

func (a *InventoryAllocator) Stock(ctx context.Context, itemID string) (int64, error) {
	return a.inventory.CountAvailable(ctx, itemID)
}
