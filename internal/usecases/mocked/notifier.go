package mocked

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sand/storefront/backend/internal/core/ports"
	"github.com/sand/storefront/backend/internal/entities"
)

// Notifier records notifications instead of sending them.
type Notifier struct {
	mu        sync.Mutex
	Settled   []uuid.UUID
	Purchased []uuid.UUID
	Flagged   []string
}

func (n *Notifier) NotifySettled(_ context.Context, order *entities.RechargeOrder, _ decimal.Decimal) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Settled = append(n.Settled, order.ID)
}

func (n *Notifier) NotifyPurchased(_ context.Context, purchase *entities.PurchaseOrder, _ decimal.Decimal) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Purchased = append(n.Purchased, purchase.ID)
}

func (n *Notifier) NotifyFlagged(_ context.Context, flag *entities.ReconciliationFlag) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Flagged = append(n.Flagged, flag.TxID)
}

func (n *Notifier) SettledCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Settled)
}

func (n *Notifier) PurchasedCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Purchased)
}

func (n *Notifier) FlaggedCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Flagged)
}

// Delivery records delivery requests and optionally fails them.
type Delivery struct {
	mu       sync.Mutex
	Requests []ports.DeliveryRequest
	Err      error
}

func (d *Delivery) Deliver(_ context.Context, req ports.DeliveryRequest) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Requests = append(d.Requests, req)
	if d.Err != nil {
		return 0, d.Err
	}
	return 1, nil
}

func (d *Delivery) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Requests)
}
