package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of a recharge order.
type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "pending"
	OrderStatusPaid     OrderStatus = "paid"
	OrderStatusExpired  OrderStatus = "expired"
	OrderStatusCanceled OrderStatus = "canceled"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s OrderStatus) IsTerminal() bool {
	return s != OrderStatusPending
}

// RechargeOrder is a request to top up a balance by transferring ExpectedAmount to Address.
type RechargeOrder struct {
	ID             uuid.UUID       `json:"id"              db:"id"`
	UserID         int64           `json:"user_id"         db:"user_id"`
	Network        string          `json:"network"         db:"network"`
	Token          string          `json:"token"           db:"token"`
	Address        string          `json:"address"         db:"address"`
	BaseAmount     decimal.Decimal `json:"base_amount"     db:"base_amount"`
	ExpectedAmount decimal.Decimal `json:"expected_amount" db:"expected_amount"`
	UniqueCode     int             `json:"unique_code"     db:"unique_code"`
	Status         OrderStatus     `json:"status"          db:"status"`
	CreatedAt      time.Time       `json:"created_at"      db:"created_at"`
	ExpireAt       time.Time       `json:"expire_at"       db:"expire_at"`
	PaidAt         *time.Time      `json:"paid_at"         db:"paid_at"`
	CanceledAt     *time.Time      `json:"canceled_at"     db:"canceled_at"`
	TxID           *string         `json:"tx_id"           db:"tx_id"`
	FromAddress    *string         `json:"from_address"    db:"from_address"`
}

// IsExpired reports whether the order can no longer be paid at now.
func (o *RechargeOrder) IsExpired(now time.Time) bool {
	return now.After(o.ExpireAt)
}

// TransitionFields carries the optional columns written together with a status change.
type TransitionFields struct {
	PaidAt      *time.Time
	CanceledAt  *time.Time
	TxID        *string
	FromAddress *string
}
