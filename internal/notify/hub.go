package notify

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/sand/storefront/backend/internal/entities"
)

const writeTimeout = 5 * time.Second

// Event types pushed to subscribers.
const (
	EventRechargeSettled   = "recharge.settled"
	EventPurchaseCompleted = "purchase.completed"
	EventTransferFlagged   = "transfer.flagged"
)

// Event is the JSON frame sent over the socket.
type Event struct {
	Type     string                       `json:"type"`
	UserID   int64                        `json:"user_id"`
	Balance  *decimal.Decimal             `json:"balance,omitempty"`
	Order    *entities.RechargeOrder      `json:"order,omitempty"`
	Purchase *entities.PurchaseOrder      `json:"purchase,omitempty"`
	Flag     *entities.ReconciliationFlag `json:"flag,omitempty"`
	SentAt   time.Time                    `json:"sent_at"`
}

// Hub keeps per-user websocket subscribers and implements ports.NotificationSink.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu          sync.RWMutex
	subscribers map[int64]map[*websocket.Conn]*sync.Mutex
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		subscribers: make(map[int64]map[*websocket.Conn]*sync.Mutex),
	}
}

func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return h.upgrader.Upgrade(w, r, nil)
}

func (h *Hub) Subscribe(userID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.subscribers[userID]
	if !ok {
		conns = make(map[*websocket.Conn]*sync.Mutex)
		h.subscribers[userID] = conns
	}
	conns[conn] = &sync.Mutex{}
}

func (h *Hub) Unsubscribe(userID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.subscribers[userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.subscribers, userID)
		}
	}
	_ = conn.Close()
}

// Subscribers returns the number of open connections of a user.
func (h *Hub) Subscribers(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[userID])
}

func (h *Hub) publish(ctx context.Context, event Event) {
	event.SentAt = time.Now().UTC()

	h.mu.RLock()
	targets := make(map[*websocket.Conn]*sync.Mutex, len(h.subscribers[event.UserID]))
	for conn, lock := range h.subscribers[event.UserID] {
		targets[conn] = lock
	}
	h.mu.RUnlock()

	for conn, lock := range targets {
		lock.Lock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		err := conn.WriteJSON(event)
		lock.Unlock()
		if err != nil {
			h.logger.WarnContext(ctx, "Dropping websocket subscriber", "user_id", event.UserID, "error", err)
			h.Unsubscribe(event.UserID, conn)
		}
	}
	h.logger.DebugContext(ctx, "Event published", "type", event.Type, "user_id", event.UserID, "subscribers", len(targets))
}

func (h *Hub) NotifySettled(ctx context.Context, order *entities.RechargeOrder, balance decimal.Decimal) {
	h.publish(ctx, Event{Type: EventRechargeSettled, UserID: order.UserID, Order: order, Balance: &balance})
}

func (h *Hub) NotifyPurchased(ctx context.Context, purchase *entities.PurchaseOrder, balance decimal.Decimal) {
	h.publish(ctx, Event{Type: EventPurchaseCompleted, UserID: purchase.BuyerID, Purchase: purchase, Balance: &balance})
}

func (h *Hub) NotifyFlagged(ctx context.Context, flag *entities.ReconciliationFlag) {
	h.publish(ctx, Event{Type: EventTransferFlagged, UserID: flag.UserID, Flag: flag})
}
