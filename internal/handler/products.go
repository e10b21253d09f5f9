package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cangre-pos/api/internal/database"
	"github.com/cangre-pos/api/internal/enum"
	"github.com/cangre-pos/api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ProductStore defines the database methods needed by product handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type ProductStore interface {
	ListMenuProducts(ctx context.Context) ([]database.MenuProduct, error)
	GetProduct(ctx context.Context, id uuid.UUID) (database.Product, error)
	CreateProduct(ctx context.Context, arg database.CreateProductParams) (database.Product, error)
	UpdateProduct(ctx context.Context, arg database.UpdateProductParams) (database.Product, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) (int64, error)
	ListProductComponents(ctx context.Context, productIDs []uuid.UUID) ([]database.ProductComponent, error)
	DeleteProductComponents(ctx context.Context, productID uuid.UUID) error
	CreateProductComponent(ctx context.Context, arg database.CreateProductComponentParams) error
	GetIngredient(ctx context.Context, id uuid.UUID) (database.Ingredient, error)
	GetPreparation(ctx context.Context, id uuid.UUID) (database.Preparation, error)
}

// NewProductStore builds a ProductStore bound to the given connection or
// transaction.
type NewProductStore func(db database.DBTX) ProductStore

// ProductHandler handles product catalog and recipe endpoints.
type ProductHandler struct {
	store    ProductStore
	pool     service.TxBeginner
	newStore NewProductStore
}

// NewProductHandler creates a new ProductHandler. Recipe replacement runs in
// its own transaction, so the handler also needs the pool and a store factory.
func NewProductHandler(store ProductStore, pool service.TxBeginner, newStore NewProductStore) *ProductHandler {
	return &ProductHandler{store: store, pool: pool, newStore: newStore}
}

// RegisterRoutes registers product endpoints on the given Chi router.
func (h *ProductHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Put("/{id}/recipe", h.ReplaceRecipe)
}

// --- Request / Response types ---

type productRequest struct {
	Name       string `json:"name"`
	Price      string `json:"price"`
	CategoryID string `json:"category_id"`
	StockType  string `json:"stock_type"`
	Stock      int32  `json:"stock"`
}

type recipeComponentRequest struct {
	ComponentType    string `json:"component_type"`
	ComponentID      string `json:"component_id"`
	QuantityRequired string `json:"quantity_required"`
}

type replaceRecipeRequest struct {
	Components []recipeComponentRequest `json:"components"`
}

type productResponse struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Price      string    `json:"price"`
	CategoryID uuid.UUID `json:"category_id"`
	StockType  string    `json:"stock_type"`
	Stock      int32     `json:"stock"`
}

type recipeComponentResponse struct {
	ComponentType    string    `json:"component_type"`
	ComponentID      uuid.UUID `json:"component_id"`
	QuantityRequired string    `json:"quantity_required"`
}

type productDetailResponse struct {
	productResponse
	Components []recipeComponentResponse `json:"components"`
}

func toProductResponse(p database.Product) productResponse {
	return productResponse{
		ID:         p.ID,
		Name:       p.Name,
		Price:      numericToString(p.Price),
		CategoryID: p.CategoryID,
		StockType:  p.StockType,
		Stock:      p.Stock,
	}
}

// --- Handlers ---

// List returns all products joined with their category.
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	products, err := h.store.ListMenuProducts(r.Context())
	if err != nil {
		slog.Error("list products", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]productResponse, len(products))
	for i, p := range products {
		resp[i] = toProductResponse(p.Product)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create adds a new product.
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	params, errMsg := buildProductParams(req)
	if errMsg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": errMsg})
		return
	}

	p, err := h.store.CreateProduct(r.Context(), params)
	if err != nil {
		slog.Error("create product", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusCreated, toProductResponse(p))
}

// Get returns a product together with its recipe components.
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	p, err := h.store.GetProduct(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		slog.Error("get product", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	components, err := h.store.ListProductComponents(r.Context(), []uuid.UUID{id})
	if err != nil {
		slog.Error("list product components", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := productDetailResponse{
		productResponse: toProductResponse(p),
		Components:      make([]recipeComponentResponse, len(components)),
	}
	for i, c := range components {
		resp.Components[i] = recipeComponentResponse{
			ComponentType:    c.ComponentType,
			ComponentID:      c.ComponentID,
			QuantityRequired: service.NumericToDecimal(c.QuantityRequired).String(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Update replaces a product's attributes.
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	params, errMsg := buildProductParams(req)
	if errMsg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": errMsg})
		return
	}

	p, err := h.store.UpdateProduct(r.Context(), database.UpdateProductParams{
		ID:         id,
		Name:       params.Name,
		Price:      params.Price,
		CategoryID: params.CategoryID,
		StockType:  params.StockType,
		Stock:      params.Stock,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		slog.Error("update product", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(p))
}

// Delete removes a product.
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	n, err := h.store.DeleteProduct(r.Context(), id)
	if err != nil {
		// FK violation from existing order items.
		writeJSON(w, http.StatusConflict, map[string]string{"error": "product has recorded sales"})
		return
	}
	if n == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReplaceRecipe swaps a COMPOUND product's component list wholesale.
// Every referenced ingredient and preparation must exist.
func (h *ProductHandler) ReplaceRecipe(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	p, err := h.store.GetProduct(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		slog.Error("get product", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if p.StockType != enum.StockTypeCompound {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "only COMPOUND products have recipes"})
		return
	}

	var req replaceRecipeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	parsed, errMsg := h.parseComponents(r.Context(), req.Components)
	if errMsg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": errMsg})
		return
	}

	// Delete-then-insert must be atomic: a half-written recipe would change
	// what the order engine decrements.
	tx, err := h.pool.Begin(r.Context())
	if err != nil {
		slog.Error("begin recipe tx", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	defer tx.Rollback(r.Context()) //nolint:errcheck

	store := h.newStore(tx)
	if err := store.DeleteProductComponents(r.Context(), id); err != nil {
		slog.Error("delete product components", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	for _, c := range parsed {
		if err := store.CreateProductComponent(r.Context(), database.CreateProductComponentParams{
			ProductID:        id,
			ComponentID:      c.ComponentID,
			ComponentType:    c.ComponentType,
			QuantityRequired: c.QuantityRequired,
		}); err != nil {
			slog.Error("create product component", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
	}
	if err := tx.Commit(r.Context()); err != nil {
		slog.Error("commit recipe tx", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"components": len(parsed)})
}

// --- Helpers ---

func buildProductParams(req productRequest) (database.CreateProductParams, string) {
	var params database.CreateProductParams

	if req.Name == "" {
		return params, "name is required"
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.IsNegative() {
		return params, "price must be a non-negative number"
	}
	categoryID, err := uuid.Parse(req.CategoryID)
	if err != nil {
		return params, "invalid category_id"
	}
	if req.StockType != enum.StockTypeSimple && req.StockType != enum.StockTypeCompound {
		return params, "stock_type must be SIMPLE or COMPOUND"
	}
	if req.Stock < 0 {
		return params, "stock must be >= 0"
	}

	params.Name = req.Name
	params.Price = service.DecimalToNumeric(price)
	params.CategoryID = categoryID
	params.StockType = req.StockType
	params.Stock = req.Stock
	return params, ""
}

func (h *ProductHandler) parseComponents(ctx context.Context, reqs []recipeComponentRequest) ([]database.CreateProductComponentParams, string) {
	out := make([]database.CreateProductComponentParams, 0, len(reqs))
	for i, c := range reqs {
		componentID, err := uuid.Parse(c.ComponentID)
		if err != nil {
			return nil, formatComponentError(i, "invalid component_id")
		}
		qty, err := decimal.NewFromString(c.QuantityRequired)
		if err != nil || qty.LessThanOrEqual(decimal.Zero) {
			return nil, formatComponentError(i, "quantity_required must be a positive number")
		}

		switch c.ComponentType {
		case enum.ComponentTypeIngredient:
			if _, err := h.store.GetIngredient(ctx, componentID); err != nil {
				return nil, formatComponentError(i, "ingredient not found")
			}
		case enum.ComponentTypePreparation:
			if _, err := h.store.GetPreparation(ctx, componentID); err != nil {
				return nil, formatComponentError(i, "preparation not found")
			}
		default:
			return nil, formatComponentError(i, "component_type must be ingredient or preparation")
		}

		out = append(out, database.CreateProductComponentParams{
			ComponentID:      componentID,
			ComponentType:    c.ComponentType,
			QuantityRequired: service.QuantityToNumeric(qty),
		})
	}
	return out, ""
}

func formatComponentError(idx int, msg string) string {
	return "components[" + strconv.Itoa(idx) + "]: " + msg
}
