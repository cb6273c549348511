package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UserAccount holds the internal balance of a storefront user.
type UserAccount struct {
	UserID        int64           `json:"user_id"        db:"user_id"`
	Balance       decimal.Decimal `json:"balance"        db:"balance"`
	LifetimeSpend decimal.Decimal `json:"lifetime_spend" db:"lifetime_spend"`
	PurchaseCount int64           `json:"purchase_count" db:"purchase_count"`
	UpdatedAt     time.Time       `json:"updated_at"     db:"updated_at"`
}

// PurchaseOrder is the immutable record of a completed sale.
type PurchaseOrder struct {
	ID        uuid.UUID       `json:"id"         db:"id"`
	BuyerID   int64           `json:"buyer_id"   db:"buyer_id"`
	ItemID    string          `json:"item_id"    db:"item_id"`
	ItemName  string          `json:"item_name"  db:"item_name"`
	Category  string          `json:"category"   db:"category"`
	Quantity  int             `json:"quantity"   db:"quantity"`
	BasePrice decimal.Decimal `json:"base_price" db:"base_price"`
	Markup    decimal.Decimal `json:"markup"     db:"markup"`
	UnitPrice decimal.Decimal `json:"unit_price" db:"unit_price"`
	TotalCost decimal.Decimal `json:"total_cost" db:"total_cost"`
	Profit    decimal.Decimal `json:"profit"     db:"profit"`
	UnitIDs   []string        `json:"unit_ids"   db:"unit_ids"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// ReconciliationFlag is a transfer that needs a human decision, e.g. it paid an order after expiry.
type ReconciliationFlag struct {
	ID          int64           `json:"id"           db:"id"`
	TxID        string          `json:"tx_id"        db:"tx_id"`
	OrderID     uuid.UUID       `json:"order_id"     db:"order_id"`
	UserID      int64           `json:"user_id"      db:"user_id"`
	Address     string          `json:"address"      db:"address"`
	FromAddress string          `json:"from_address" db:"from_address"`
	Amount      decimal.Decimal `json:"amount"       db:"amount"`
	TransferAt  time.Time       `json:"transfer_at"  db:"transfer_at"`
	Reason      string          `json:"reason"       db:"reason"`
	Resolved    bool            `json:"resolved"     db:"resolved"`
	CreatedAt   time.Time       `json:"created_at"   db:"created_at"`
}

// Flag reasons.
const (
	FlagReasonPaidAfterExpiry = "paid_after_expiry"
	FlagReasonPaidAfterCancel = "paid_after_cancel"
)
