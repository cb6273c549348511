package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/sand/storefront/backend/internal/core/ports"
)

const defaultFlagsLimit = 50

type HTTPHandler struct {
	logger     *slog.Logger
	validate   *validator.Validate
	recharges  RechargeService
	settlement SettlementService
	purchases  PurchaseService
	stock      StockService
}

func NewHTTPHandler(
	logger *slog.Logger,
	recharges RechargeService,
	settlement SettlementService,
	purchases PurchaseService,
	stock StockService,
) *HTTPHandler {
	return &HTTPHandler{
		logger:     logger,
		validate:   validator.New(),
		recharges:  recharges,
		settlement: settlement,
		purchases:  purchases,
		stock:      stock,
	}
}

type createRechargeRequest struct {
	UserID int64  `json:"user_id" validate:"required,gt=0"`
	Amount string `json:"amount"  validate:"required,numeric"`
}

type purchaseRequest struct {
	UserID   int64  `json:"user_id"  validate:"required,gt=0"`
	ItemID   string `json:"item_id"  validate:"required,max=64"`
	Quantity int    `json:"quantity" validate:"required,gte=1,lte=1000"`
}

func (h *HTTPHandler) RegisterRoutes(router *mux.Router) {
	// Recharges
	router.HandleFunc("/recharges", h.CreateRecharge).Methods("POST")
	router.HandleFunc("/recharges", h.ListRecharges).Methods("GET")
	router.HandleFunc("/recharges/{id}", h.GetRecharge).Methods("GET")
	router.HandleFunc("/recharges/{id}", h.CancelRecharge).Methods("DELETE")
	router.HandleFunc("/recharges/{id}/verify", h.VerifyRecharge).Methods("POST")

	// Purchases
	router.HandleFunc("/purchases", h.CreatePurchase).Methods("POST")
	router.HandleFunc("/purchases", h.ListPurchases).Methods("GET")
	router.HandleFunc("/purchases/{id}/redeliver", h.Redeliver).Methods("POST")

	router.HandleFunc("/catalog/{item_id}/stock", h.GetStock).Methods("GET")
	router.HandleFunc("/accounts/{user_id:[0-9]+}", h.GetAccount).Methods("GET")
	router.HandleFunc("/reconciliation/flags", h.ListFlags).Methods("GET")
}

func (h *HTTPHandler) CreateRecharge(w http.ResponseWriter, r *http.Request) {
	var req createRechargeRequest
	if !h.decode(w, r, &req) {
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		http.Error(w, "Invalid amount format", http.StatusBadRequest)
		return
	}

	order, err := h.recharges.CreateOrder(r.Context(), req.UserID, amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "[Create Recharge] Order created",
		"order_id", order.ID, "user_id", order.UserID, "expected", order.ExpectedAmount.StringFixed(4))
	writeJSON(w, http.StatusCreated, order)
}

func (h *HTTPHandler) ListRecharges(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	includeCanceled := r.URL.Query().Get("include_canceled") == "true"
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	orders, err := h.recharges.ListOrders(r.Context(), userID, includeCanceled, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *HTTPHandler) GetRecharge(w http.ResponseWriter, r *http.Request) {
	userID, orderID, ok := ownedID(w, r)
	if !ok {
		return
	}

	order, err := h.recharges.GetOrder(r.Context(), userID, orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *HTTPHandler) CancelRecharge(w http.ResponseWriter, r *http.Request) {
	userID, orderID, ok := ownedID(w, r)
	if !ok {
		return
	}

	order, err := h.recharges.CancelOrder(r.Context(), userID, orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *HTTPHandler) VerifyRecharge(w http.ResponseWriter, r *http.Request) {
	userID, orderID, ok := ownedID(w, r)
	if !ok {
		return
	}

	result, order, err := h.settlement.VerifyOrder(r.Context(), userID, orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"result": result,
		"order":  order,
	})
}

func (h *HTTPHandler) CreatePurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.purchases.Purchase(r.Context(), req.UserID, req.ItemID, req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *HTTPHandler) ListPurchases(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	result, err := h.purchases.ListPurchases(r.Context(), userID, page, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) Redeliver(w http.ResponseWriter, r *http.Request) {
	userID, purchaseID, ok := ownedID(w, r)
	if !ok {
		return
	}

	delivered, err := h.purchases.Redeliver(r.Context(), userID, purchaseID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"purchase_id": purchaseID, "delivered": delivered})
}

func (h *HTTPHandler) GetStock(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["item_id"]

	available, err := h.stock.Stock(r.Context(), itemID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item_id": itemID, "available": available})
}

func (h *HTTPHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(mux.Vars(r)["user_id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid user ID format", http.StatusBadRequest)
		return
	}

	account, err := h.purchases.Account(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *HTTPHandler) ListFlags(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = defaultFlagsLimit
	}

	flags, err := h.settlement.OpenFlags(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flags)
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "Malformed request body", http.StatusBadRequest)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			http.Error(w, "Invalid field: "+verrs[0].Field(), http.StatusBadRequest)
			return false
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// writeError maps domain errors to status codes. Unknown errors are logged and hidden.
func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var validation *ports.ValidationError
	switch {
	case errors.As(err, &validation):
		http.Error(w, validation.Error(), http.StatusBadRequest)
	case errors.Is(err, ports.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, ports.ErrConflict):
		http.Error(w, "Order is no longer pending", http.StatusConflict)
	case errors.Is(err, ports.ErrInsufficientStock), errors.Is(err, ports.ErrItemUnavailable):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ports.ErrInsufficientBalance):
		http.Error(w, err.Error(), http.StatusPaymentRequired)
	case errors.Is(err, ports.ErrCollisionExhaustion):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		h.logger.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func userIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.URL.Query().Get("user_id")
	if raw == "" {
		http.Error(w, "Missing required parameter: user_id", http.StatusBadRequest)
		return 0, false
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		http.Error(w, "Invalid user ID format", http.StatusBadRequest)
		return 0, false
	}
	return userID, true
}

// ownedID parses the {id} path variable together with the caller's user_id.
func ownedID(w http.ResponseWriter, r *http.Request) (int64, uuid.UUID, bool) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return 0, uuid.Nil, false
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid ID format", http.StatusBadRequest)
		return 0, uuid.Nil, false
	}
	return userID, id, true
}
