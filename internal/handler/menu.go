package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/cangre-pos/api/internal/database"
	"github.com/cangre-pos/api/internal/enum"
	"github.com/cangre-pos/api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// MenuStore defines the database methods needed by the menu handler.
// Satisfied by *database.Queries; narrow interface for testability.
type MenuStore interface {
	ListMenuProducts(ctx context.Context) ([]database.MenuProduct, error)
	ListCategories(ctx context.Context) ([]database.Category, error)
	ListSauces(ctx context.Context) ([]database.Sauce, error)
	ListPaymentMethods(ctx context.Context) ([]database.PaymentMethod, error)
	ListProductComponents(ctx context.Context, productIDs []uuid.UUID) ([]database.ProductComponent, error)
	ListIngredients(ctx context.Context) ([]database.Ingredient, error)
	SumLotRemaining(ctx context.Context, preparationIDs []uuid.UUID) (map[uuid.UUID]pgtype.Numeric, error)
}

// MenuHandler serves the cashier-facing menu with live availability.
type MenuHandler struct {
	store MenuStore
}

// NewMenuHandler creates a new MenuHandler.
func NewMenuHandler(store MenuStore) *MenuHandler {
	return &MenuHandler{store: store}
}

// RegisterRoutes registers the menu and lookup endpoints on the given Chi
// router. The lookups are also embedded in the menu payload; the standalone
// routes serve clients that only need one of them.
func (h *MenuHandler) RegisterRoutes(r chi.Router) {
	r.Get("/menu", h.Get)
	r.Get("/payment-methods", h.PaymentMethods)
	r.Get("/categories/ordered", h.OrderedCategories)
}

// --- Response types ---

type menuResponse struct {
	Categories     []menuCategoryResponse  `json:"categories"`
	Sauces         []sauceResponse         `json:"sauces"`
	PaymentMethods []paymentMethodResponse `json:"payment_methods"`
}

type menuCategoryResponse struct {
	ID             uuid.UUID             `json:"id"`
	Name           string                `json:"name"`
	DisplayName    string                `json:"display_name"`
	IsCustomizable bool                  `json:"is_customizable"`
	Products       []menuProductResponse `json:"products"`
}

type menuProductResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Price     string    `json:"price"`
	StockType string    `json:"stock_type"`
	Available int32     `json:"available"`
}

type sauceResponse struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type paymentMethodResponse struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// --- Handlers ---

// Get handles GET /api/menu. Availability numbers are advisory; the order
// transaction re-checks stock under row locks at submission time.
func (h *MenuHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	products, err := h.store.ListMenuProducts(ctx)
	if err != nil {
		slog.Error("list menu products", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	categories, err := h.store.ListCategories(ctx)
	if err != nil {
		slog.Error("list categories", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	sauces, err := h.store.ListSauces(ctx)
	if err != nil {
		slog.Error("list sauces", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	methods, err := h.store.ListPaymentMethods(ctx)
	if err != nil {
		slog.Error("list payment methods", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	availability, err := h.computeAvailability(ctx, products)
	if err != nil {
		slog.Error("compute availability", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := menuResponse{
		Categories:     []menuCategoryResponse{},
		Sauces:         make([]sauceResponse, len(sauces)),
		PaymentMethods: make([]paymentMethodResponse, len(methods)),
	}
	for i, s := range sauces {
		resp.Sauces[i] = sauceResponse{ID: s.ID, Name: s.Name}
	}
	for i, m := range methods {
		resp.PaymentMethods[i] = paymentMethodResponse{ID: m.ID, Name: m.Name}
	}

	byCategory := make(map[uuid.UUID][]menuProductResponse)
	for _, p := range products {
		byCategory[p.CategoryID] = append(byCategory[p.CategoryID], menuProductResponse{
			ID:        p.ID,
			Name:      p.Name,
			Price:     numericToString(p.Price),
			StockType: p.StockType,
			Available: availability[p.ID],
		})
	}
	for _, c := range categories {
		prods := byCategory[c.ID]
		if prods == nil {
			prods = []menuProductResponse{}
		}
		resp.Categories = append(resp.Categories, menuCategoryResponse{
			ID:             c.ID,
			Name:           c.Name,
			DisplayName:    c.DisplayName,
			IsCustomizable: c.IsCustomizable,
			Products:       prods,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// PaymentMethods handles GET /api/payment-methods.
func (h *MenuHandler) PaymentMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := h.store.ListPaymentMethods(r.Context())
	if err != nil {
		slog.Error("list payment methods", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]paymentMethodResponse, len(methods))
	for i, m := range methods {
		resp[i] = paymentMethodResponse{ID: m.ID, Name: m.Name}
	}
	writeJSON(w, http.StatusOK, resp)
}

// OrderedCategories handles GET /api/categories/ordered, returning categories
// sorted by display order for the sales screen.
func (h *MenuHandler) OrderedCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.store.ListCategories(r.Context())
	if err != nil {
		slog.Error("list categories", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]categoryResponse, len(categories))
	for i, c := range categories {
		resp[i] = toCategoryResponse(c)
	}
	writeJSON(w, http.StatusOK, resp)
}

// computeAvailability estimates how many units of each product can be sold
// from current stock, without taking any locks.
func (h *MenuHandler) computeAvailability(ctx context.Context, products []database.MenuProduct) (map[uuid.UUID]int32, error) {
	out := make(map[uuid.UUID]int32, len(products))

	var compoundIDs []uuid.UUID
	for _, p := range products {
		if p.StockType == enum.StockTypeSimple {
			out[p.ID] = p.Stock
		} else {
			compoundIDs = append(compoundIDs, p.ID)
		}
	}
	if len(compoundIDs) == 0 {
		return out, nil
	}

	components, err := h.store.ListProductComponents(ctx, compoundIDs)
	if err != nil {
		return nil, err
	}
	byProduct := make(map[uuid.UUID][]database.ProductComponent)
	var prepIDs []uuid.UUID
	seen := make(map[uuid.UUID]bool)
	for _, c := range components {
		byProduct[c.ProductID] = append(byProduct[c.ProductID], c)
		if c.ComponentType == enum.ComponentTypePreparation && !seen[c.ComponentID] {
			seen[c.ComponentID] = true
			prepIDs = append(prepIDs, c.ComponentID)
		}
	}

	ingredients, err := h.store.ListIngredients(ctx)
	if err != nil {
		return nil, err
	}
	ingredientStock := make(map[uuid.UUID]decimal.Decimal, len(ingredients))
	for _, ing := range ingredients {
		ingredientStock[ing.ID] = service.NumericToDecimal(ing.Stock)
	}

	lotRemaining := make(map[uuid.UUID]decimal.Decimal)
	if len(prepIDs) > 0 {
		sums, err := h.store.SumLotRemaining(ctx, prepIDs)
		if err != nil {
			return nil, err
		}
		for id, n := range sums {
			lotRemaining[id] = service.NumericToDecimal(n)
		}
	}

	for _, p := range products {
		if p.StockType != enum.StockTypeCompound {
			continue
		}
		out[p.ID] = service.ProductAvailability(p.Product, byProduct[p.ID], ingredientStock, lotRemaining)
	}
	return out, nil
}
