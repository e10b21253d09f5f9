package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cangre-pos/api/internal/database"
	"github.com/cangre-pos/api/internal/enum"
	"github.com/cangre-pos/api/internal/middleware"
	"github.com/cangre-pos/api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	Submit(ctx context.Context, req service.SubmitOrderRequest) (*service.OrderResult, error)
	AddItems(ctx context.Context, orderID uuid.UUID, items []service.SubmitOrderItem) (*service.OrderResult, error)
	MarkReady(ctx context.Context, orderID uuid.UUID) (*database.Order, error)
	Pay(ctx context.Context, orderID uuid.UUID, paymentMethod string) (*database.Order, error)
	Cancel(ctx context.Context, orderID uuid.UUID) (*database.Order, error)
}

// OrderReadStore defines the database methods needed by order read handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type OrderReadStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	ListPendingOrders(ctx context.Context) ([]database.Order, error)
	ListPendingOrderItems(ctx context.Context, orderIDs []uuid.UUID) ([]database.PendingOrderItem, error)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc   OrderServicer
	store OrderReadStore
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer, store OrderReadStore) *OrderHandler {
	return &OrderHandler{svc: svc, store: store}
}

// RegisterRoutes registers order endpoints on the given Chi router.
// Kitchen users only read orders and mark them ready; taking, paying and
// cancelling are till operations, and cancelling reverses stock so it is
// restricted to admins.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	sales := middleware.RequireRole(enum.UserRoleAdmin, enum.UserRoleCashier)

	r.With(sales).Post("/", h.Create)
	r.Get("/pending", h.ListPending)
	r.Get("/{id}", h.Get)
	r.With(sales).Post("/{id}/items", h.AddItems)
	r.Post("/{id}/ready", h.MarkReady)
	r.With(sales).Post("/{id}/pay", h.Pay)
	r.With(middleware.RequireRole(enum.UserRoleAdmin)).Post("/{id}/cancel", h.Cancel)
}

// --- Request / Response types ---

type createOrderRequest struct {
	CustomerName  string                   `json:"customer_name"`
	CustomerID    string                   `json:"customer_id"`
	Notes         string                   `json:"notes"`
	PaymentMethod string                   `json:"payment_method"`
	Items         []createOrderItemRequest `json:"items"`
}

type createOrderItemRequest struct {
	ProductID string   `json:"product_id"`
	Quantity  int32    `json:"quantity"`
	Sauces    []string `json:"sauces"`
}

type addItemsRequest struct {
	Items []createOrderItemRequest `json:"items"`
}

type payOrderRequest struct {
	PaymentMethod string `json:"payment_method"`
}

type orderResponse struct {
	ID            uuid.UUID           `json:"id"`
	CustomerID    *string             `json:"customer_id"`
	CustomerName  string              `json:"customer_name"`
	Total         string              `json:"total"`
	Notes         *string             `json:"notes"`
	Status        string              `json:"status"`
	PaymentMethod *string             `json:"payment_method"`
	UserID        uuid.UUID           `json:"user_id"`
	CreatedAt     time.Time           `json:"created_at"`
	Items         []orderItemResponse `json:"items,omitempty"`
}

type orderItemResponse struct {
	ID          uuid.UUID `json:"id"`
	ProductID   uuid.UUID `json:"product_id"`
	Quantity    int32     `json:"quantity"`
	PriceAtTime string    `json:"price_at_time"`
	Sauces      []string  `json:"sauces"`
}

type pendingOrderResponse struct {
	orderResponse
	PendingItems []pendingItemResponse `json:"pending_items"`
}

type pendingItemResponse struct {
	ProductName string   `json:"product_name"`
	Quantity    int32    `json:"quantity"`
	Sauces      []string `json:"sauces"`
}

// --- Handlers ---

// Create handles POST /api/orders.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if msg := validateItems(req.Items); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	result, err := h.svc.Submit(r.Context(), service.SubmitOrderRequest{
		CustomerName:  req.CustomerName,
		CustomerID:    req.CustomerID,
		Notes:         req.Notes,
		PaymentMethod: req.PaymentMethod,
		UserID:        claims.UserID,
		Items:         toServiceItems(req.Items),
	})
	if err != nil {
		h.writeOrderError(w, "create order", err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(result.Order, result.Items))
}

// Get handles GET /api/orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	order, err := h.store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		slog.Error("get order", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	items, err := h.store.ListOrderItemsByOrder(r.Context(), orderID)
	if err != nil {
		slog.Error("list order items", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order, items))
}

// ListPending handles GET /api/orders/pending. It backfills the kitchen
// display on reconnect; live updates arrive over the websocket.
func (h *OrderHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	orders, err := h.store.ListPendingOrders(r.Context())
	if err != nil {
		slog.Error("list pending orders", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]pendingOrderResponse, len(orders))
	for i, o := range orders {
		resp[i] = pendingOrderResponse{
			orderResponse: toOrderResponse(o, nil),
			PendingItems:  []pendingItemResponse{},
		}
	}

	if len(orders) > 0 {
		ids := make([]uuid.UUID, len(orders))
		byID := make(map[uuid.UUID]*pendingOrderResponse, len(orders))
		for i := range orders {
			ids[i] = orders[i].ID
			byID[orders[i].ID] = &resp[i]
		}

		items, err := h.store.ListPendingOrderItems(r.Context(), ids)
		if err != nil {
			slog.Error("list pending order items", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
		for _, it := range items {
			target, ok := byID[it.OrderID]
			if !ok {
				continue
			}
			target.PendingItems = append(target.PendingItems, pendingItemResponse{
				ProductName: it.ProductName,
				Quantity:    it.Quantity,
				Sauces:      decodeSauces(it.Sauces),
			})
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// AddItems handles POST /api/orders/{id}/items.
func (h *OrderHandler) AddItems(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req addItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if msg := validateItems(req.Items); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	result, err := h.svc.AddItems(r.Context(), orderID, toServiceItems(req.Items))
	if err != nil {
		h.writeOrderError(w, "add order items", err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(result.Order, result.Items))
}

// MarkReady handles POST /api/orders/{id}/ready.
func (h *OrderHandler) MarkReady(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	order, err := h.svc.MarkReady(r.Context(), orderID)
	if err != nil {
		h.writeOrderError(w, "mark order ready", err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(*order, nil))
}

// Pay handles POST /api/orders/{id}/pay.
func (h *OrderHandler) Pay(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req payOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	order, err := h.svc.Pay(r.Context(), orderID, req.PaymentMethod)
	if err != nil {
		h.writeOrderError(w, "pay order", err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(*order, nil))
}

// Cancel handles POST /api/orders/{id}/cancel.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	order, err := h.svc.Cancel(r.Context(), orderID)
	if err != nil {
		h.writeOrderError(w, "cancel order", err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(*order, nil))
}

// --- Helpers ---

func validateItems(items []createOrderItemRequest) string {
	if len(items) == 0 {
		return "items are required"
	}
	for i, item := range items {
		if item.ProductID == "" {
			return formatItemError(i, "product_id is required")
		}
		if item.Quantity <= 0 {
			return formatItemError(i, "quantity must be > 0")
		}
	}
	return ""
}

func toServiceItems(items []createOrderItemRequest) []service.SubmitOrderItem {
	out := make([]service.SubmitOrderItem, len(items))
	for i, item := range items {
		out[i] = service.SubmitOrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Sauces:    item.Sauces,
		}
	}
	return out
}

func formatItemError(idx int, msg string) string {
	return "items[" + strconv.Itoa(idx) + "]: " + msg
}

// writeOrderError maps the order service's errors to HTTP status codes.
func (h *OrderHandler) writeOrderError(w http.ResponseWriter, op string, err error) {
	var insufficient *service.InsufficientStockError
	var unsellable *service.UnsellableProductError

	switch {
	case isOrderValidationError(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrOrderNotFound),
		errors.Is(err, service.ErrProductNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":     err.Error(),
			"resource":  insufficient.Resource,
			"id":        insufficient.ID,
			"name":      insufficient.Name,
			"required":  insufficient.Required.String(),
			"available": insufficient.Available.String(),
		})
	case errors.As(err, &unsellable):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrDayClosed),
		errors.Is(err, service.ErrOrderNotPending),
		errors.Is(err, service.ErrOrderNotPayable),
		errors.Is(err, service.ErrOrderNotModifiable),
		errors.Is(err, service.ErrOrderNotCancellable),
		errors.Is(err, service.ErrOrderCancelled):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrLockTimeout):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	default:
		slog.Error(op, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

// isOrderValidationError checks if the error is a known validation error
// from the service layer that should result in 400 Bad Request.
func isOrderValidationError(err error) bool {
	return errors.Is(err, service.ErrEmptyItems) ||
		errors.Is(err, service.ErrInvalidQuantity) ||
		errors.Is(err, service.ErrInvalidProductID) ||
		errors.Is(err, service.ErrInvalidCustomerID) ||
		errors.Is(err, service.ErrMissingPayment)
}

func toOrderResponse(o database.Order, items []database.OrderItem) orderResponse {
	resp := orderResponse{
		ID:           o.ID,
		CustomerName: o.CustomerName,
		Total:        numericToString(o.Total),
		Status:       o.Status,
		UserID:       o.UserID,
		CreatedAt:    o.CreatedAt,
	}
	if o.CustomerID.Valid {
		s := uuid.UUID(o.CustomerID.Bytes).String()
		resp.CustomerID = &s
	}
	if o.Notes.Valid {
		resp.Notes = &o.Notes.String
	}
	if o.PaymentMethod.Valid {
		resp.PaymentMethod = &o.PaymentMethod.String
	}
	for _, it := range items {
		resp.Items = append(resp.Items, orderItemResponse{
			ID:          it.ID,
			ProductID:   it.ProductID,
			Quantity:    it.Quantity,
			PriceAtTime: numericToString(it.PriceAtTime),
			Sauces:      decodeSauces(it.Sauces),
		})
	}
	return resp
}

func decodeSauces(raw []byte) []string {
	sauces := []string{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &sauces); err != nil {
			return []string{}
		}
	}
	return sauces
}

func numericToString(n pgtype.Numeric) string {
	if !n.Valid {
		return "0.00"
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return "0.00"
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return "0.00"
	}
	return d.StringFixed(2)
}
