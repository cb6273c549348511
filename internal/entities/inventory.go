package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// UnitState is the sale state of an inventory unit.
type UnitState string

const (
	UnitStateAvailable UnitState = "available"
	UnitStateSold      UnitState = "sold"
)

// InventoryUnit is a single non-fungible record that can be sold exactly once.
type InventoryUnit struct {
	ID          string     `json:"id"           db:"id"`
	ItemID      string     `json:"item_id"      db:"item_id"`
	PayloadName string     `json:"payload_name" db:"payload_name"`
	State       UnitState  `json:"state"        db:"state"`
	BuyerID     *int64     `json:"buyer_id"     db:"buyer_id"`
	SoldAt      *time.Time `json:"sold_at"      db:"sold_at"`
	CreatedAt   time.Time  `json:"created_at"   db:"created_at"`
}

// CatalogItem is a sellable product; its units live in the inventory.
type CatalogItem struct {
	ID        string           `json:"id"         db:"id"`
	Name      string           `json:"name"       db:"name"`
	Category  string           `json:"category"   db:"category"`
	BasePrice decimal.Decimal  `json:"base_price" db:"base_price"`
	Markup    *decimal.Decimal `json:"markup"     db:"markup"`
	Active    bool             `json:"active"     db:"active"`
}

// UnitPrice returns the selling price rounded to cents, using defaultMarkup when the item has none.
func (c *CatalogItem) UnitPrice(defaultMarkup decimal.Decimal) (price, markup decimal.Decimal) {
	markup = defaultMarkup
	if c.Markup != nil {
		markup = *c.Markup
	}
	return c.BasePrice.Add(markup).Round(2), markup
}
