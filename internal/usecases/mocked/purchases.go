package mocked

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/sand/storefront/backend/internal/core/ports"
	"github.com/sand/storefront/backend/internal/entities"
)

func (m *Memory) InsertPurchase(ctx context.Context, purchase *entities.PurchaseOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *purchase
	stored.UnitIDs = append([]string(nil), purchase.UnitIDs...)
	m.purchases[purchase.ID] = &stored
	remember(ctx, func() { delete(m.purchases, purchase.ID) })
	return nil
}

func (m *Memory) GetPurchase(_ context.Context, id uuid.UUID) (*entities.PurchaseOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.purchases[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	out := *p
	return &out, nil
}

func (m *Memory) FindUserPurchases(
	_ context.Context,
	buyerID int64,
	offset, limit int,
) ([]entities.PurchaseOrder, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := make([]entities.PurchaseOrder, 0)
	for _, p := range m.purchases {
		if p.BuyerID == buyerID {
			all = append(all, *p)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}
