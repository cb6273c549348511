package mocked

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sand/storefront/backend/internal/entities"
)

const demoUnitsPerItem = 25

// SeedDemoCatalog fills an empty memory store with a small catalog for local runs.
func (m *Memory) SeedDemoCatalog() {
	markup := decimal.RequireFromString("0.35")
	items := []entities.CatalogItem{
		{ID: "tg-aged-1y", Name: "Aged account, 1 year", Category: "accounts", BasePrice: decimal.RequireFromString("1.50"), Active: true},
		{ID: "tg-premium", Name: "Premium account", Category: "accounts", BasePrice: decimal.RequireFromString("4.00"), Markup: &markup, Active: true},
		{ID: "tg-session-pack", Name: "Session pack", Category: "sessions", BasePrice: decimal.RequireFromString("0.80"), Active: false},
	}

	now := time.Now()
	for _, item := range items {
		m.PutItem(item)
		for i := range demoUnitsPerItem {
			m.PutUnits(entities.InventoryUnit{
				ID:          fmt.Sprintf("%s-%04d", item.ID, i+1),
				ItemID:      item.ID,
				PayloadName: fmt.Sprintf("%s_%04d", item.ID, i+1),
				State:       entities.UnitStateAvailable,
				CreatedAt:   now,
			})
		}
	}

	m.logger.Info("Seeded demo catalog", "items", len(items), "units_per_item", demoUnitsPerItem)
}
