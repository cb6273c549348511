package mocked

import (
	"context"
	"sort"
	"time"

	"github.com/sand/storefront/backend/internal/core/ports"
	"github.com/sand/storefront/backend/internal/entities"
)

func (m *Memory) ClaimUnits(ctx context.Context, itemID string, quantity int, buyerID int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	candidates := make([]string, 0)
	for id, u := range m.units {
		if u.ItemID == itemID && u.State == entities.UnitStateAvailable {
			candidates = append(candidates, id)
		}
	}
	sort.Strings(candidates)

	now := time.Now()
	claimed := make([]string, 0, quantity)
	for _, id := range candidates {
		if len(claimed) == quantity {
			break
		}
		u := m.units[id]
		buyer := buyerID
		u.State = entities.UnitStateSold
		u.BuyerID = &buyer
		u.SoldAt = &now
		claimed = append(claimed, id)
	}

	remember(ctx, func() {
		for _, id := range claimed {
			u := m.units[id]
			if u.State != entities.UnitStateSold || u.BuyerID == nil || *u.BuyerID != buyerID {
				continue
			}
			u.State = entities.UnitStateAvailable
			u.BuyerID = nil
			u.SoldAt = nil
		}
	})
	return claimed, nil
}

func (m *Memory) ReleaseUnits(ctx context.Context, unitIDs []string, buyerID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var released int64
	for _, id := range unitIDs {
		u, ok := m.units[id]
		if !ok || u.State != entities.UnitStateSold || u.BuyerID == nil || *u.BuyerID != buyerID {
			continue
		}
		soldAt := u.SoldAt
		u.State = entities.UnitStateAvailable
		u.BuyerID = nil
		u.SoldAt = nil
		remember(ctx, func() {
			u := m.units[id]
			if u.State != entities.UnitStateAvailable {
				return
			}
			buyer := buyerID
			u.State = entities.UnitStateSold
			u.BuyerID = &buyer
			u.SoldAt = soldAt
		})
		released++
	}
	return released, nil
}

func (m *Memory) GetUnits(_ context.Context, unitIDs []string) ([]entities.InventoryUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]entities.InventoryUnit, 0, len(unitIDs))
	for _, id := range unitIDs {
		if u, ok := m.units[id]; ok {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CountAvailable(_ context.Context, itemID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for _, u := range m.units {
		if u.ItemID == itemID && u.State == entities.UnitStateAvailable {
			count++
		}
	}
	return count, nil
}

func (m *Memory) GetItem(_ context.Context, itemID string) (*entities.CatalogItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[itemID]
	if !ok {
		return nil, ports.ErrNotFound
	}
	out := *item
	return &out, nil
}
