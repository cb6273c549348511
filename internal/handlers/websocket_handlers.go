package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/sand/storefront/backend/internal/notify"
)

type WebSocketHandler struct {
	logger *slog.Logger
	hub    *notify.Hub
}

func NewWebSocketHandler(logger *slog.Logger, hub *notify.Hub) *WebSocketHandler {
	return &WebSocketHandler{logger: logger, hub: hub}
}

func (h *WebSocketHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/ws", h.HandleConnection)
}

func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		http.Error(w, "Invalid user ID format", http.StatusBadRequest)
		return
	}

	conn, err := h.hub.Upgrade(w, r)
	if err != nil {
		h.logger.Error("Error upgrading connection", "error", err)
		return
	}

	h.logger.Info("New WebSocket connection", "user_id", userID)
	h.hub.Subscribe(userID, conn)

	// Keep connection open and handle disconnection
	for {
		if _, _, readErr := conn.ReadMessage(); readErr != nil {
			h.logger.Debug("WebSocket connection closed", "user_id", userID, "error", readErr)
			h.hub.Unsubscribe(userID, conn)
			return
		}
	}
}
