package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cangre-pos/api/internal/database"
	"github.com/cangre-pos/api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// IngredientStore defines the database methods needed by ingredient handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type IngredientStore interface {
	ListIngredients(ctx context.Context) ([]database.Ingredient, error)
	GetIngredient(ctx context.Context, id uuid.UUID) (database.Ingredient, error)
	CreateIngredient(ctx context.Context, arg database.CreateIngredientParams) (database.Ingredient, error)
	UpdateIngredient(ctx context.Context, arg database.UpdateIngredientParams) (database.Ingredient, error)
	DeleteIngredient(ctx context.Context, id uuid.UUID) (int64, error)
	AdjustIngredientStock(ctx context.Context, arg database.AdjustIngredientStockParams) error
	ListUnitConversions(ctx context.Context, ingredientID uuid.UUID) ([]database.UnitConversion, error)
	UpsertUnitConversion(ctx context.Context, arg database.UpsertUnitConversionParams) (database.UnitConversion, error)
	DeleteUnitConversion(ctx context.Context, id uuid.UUID) (int64, error)
}

// IngredientHandler handles raw ingredient catalog and stock endpoints.
type IngredientHandler struct {
	store IngredientStore
}

// NewIngredientHandler creates a new IngredientHandler.
func NewIngredientHandler(store IngredientStore) *IngredientHandler {
	return &IngredientHandler{store: store}
}

// RegisterRoutes registers ingredient endpoints on the given Chi router.
func (h *IngredientHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Post("/{id}/purchases", h.RecordPurchase)
	r.Get("/{id}/conversions", h.ListConversions)
	r.Put("/{id}/conversions", h.UpsertConversion)
	r.Delete("/{id}/conversions/{cid}", h.DeleteConversion)
}

// --- Request / Response types ---

type ingredientRequest struct {
	Name                     string `json:"name"`
	StandardUnit             string `json:"standard_unit"`
	PurchaseUnitName         string `json:"purchase_unit_name"`
	PurchaseToStandardFactor string `json:"purchase_to_standard_factor"`
	Stock                    string `json:"stock"`
	CostPerPurchaseUnit      string `json:"cost_per_purchase_unit"`
}

type purchaseRequest struct {
	// Quantity is expressed in purchase units (bottles, sacks, crates).
	Quantity            string `json:"quantity"`
	CostPerPurchaseUnit string `json:"cost_per_purchase_unit"`
}

type conversionRequest struct {
	RecipeUnitName   string `json:"recipe_unit_name"`
	ConversionFactor string `json:"conversion_factor"`
}

type ingredientResponse struct {
	ID                       uuid.UUID `json:"id"`
	Name                     string    `json:"name"`
	StandardUnit             string    `json:"standard_unit"`
	PurchaseUnitName         *string   `json:"purchase_unit_name"`
	PurchaseToStandardFactor *string   `json:"purchase_to_standard_factor"`
	Stock                    string    `json:"stock"`
	CostPerPurchaseUnit      *string   `json:"cost_per_purchase_unit"`
	CostPerStandardUnit      *string   `json:"cost_per_standard_unit"`
}

type conversionResponse struct {
	ID               uuid.UUID `json:"id"`
	IngredientID     uuid.UUID `json:"ingredient_id"`
	RecipeUnitName   string    `json:"recipe_unit_name"`
	ConversionFactor string    `json:"conversion_factor"`
}

func toIngredientResponse(ing database.Ingredient) ingredientResponse {
	resp := ingredientResponse{
		ID:           ing.ID,
		Name:         ing.Name,
		StandardUnit: ing.StandardUnit,
		Stock:        service.NumericToDecimal(ing.Stock).String(),
	}
	if ing.PurchaseUnitName.Valid {
		resp.PurchaseUnitName = &ing.PurchaseUnitName.String
	}
	if ing.PurchaseToStandardFactor.Valid {
		s := service.NumericToDecimal(ing.PurchaseToStandardFactor).String()
		resp.PurchaseToStandardFactor = &s
	}
	if ing.CostPerPurchaseUnit.Valid {
		s := service.NumericToDecimal(ing.CostPerPurchaseUnit).StringFixed(2)
		resp.CostPerPurchaseUnit = &s
	}
	if ing.CostPerStandardUnit.Valid {
		s := service.NumericToDecimal(ing.CostPerStandardUnit).String()
		resp.CostPerStandardUnit = &s
	}
	return resp
}

func toConversionResponse(c database.UnitConversion) conversionResponse {
	return conversionResponse{
		ID:               c.ID,
		IngredientID:     c.IngredientID,
		RecipeUnitName:   c.RecipeUnitName,
		ConversionFactor: service.NumericToDecimal(c.ConversionFactor).String(),
	}
}

// --- Handlers ---

// List returns the full ingredient catalog with current stock levels.
func (h *IngredientHandler) List(w http.ResponseWriter, r *http.Request) {
	ingredients, err := h.store.ListIngredients(r.Context())
	if err != nil {
		slog.Error("list ingredients", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]ingredientResponse, len(ingredients))
	for i, ing := range ingredients {
		resp[i] = toIngredientResponse(ing)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create adds a new ingredient.
func (h *IngredientHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ingredientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	params, errMsg := h.buildIngredientParams(req)
	if errMsg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": errMsg})
		return
	}

	ing, err := h.store.CreateIngredient(r.Context(), params)
	if err != nil {
		slog.Error("create ingredient", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusCreated, toIngredientResponse(ing))
}

// Get returns a single ingredient.
func (h *IngredientHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid ingredient ID"})
		return
	}

	ing, err := h.store.GetIngredient(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "ingredient not found"})
			return
		}
		slog.Error("get ingredient", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, toIngredientResponse(ing))
}

// Update replaces an ingredient's attributes, including a manual stock set.
func (h *IngredientHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid ingredient ID"})
		return
	}

	var req ingredientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	params, errMsg := h.buildIngredientParams(req)
	if errMsg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": errMsg})
		return
	}

	ing, err := h.store.UpdateIngredient(r.Context(), database.UpdateIngredientParams{
		ID:                       id,
		Name:                     params.Name,
		StandardUnit:             params.StandardUnit,
		PurchaseUnitName:         params.PurchaseUnitName,
		PurchaseToStandardFactor: params.PurchaseToStandardFactor,
		Stock:                    params.Stock,
		CostPerPurchaseUnit:      params.CostPerPurchaseUnit,
		CostPerStandardUnit:      params.CostPerStandardUnit,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "ingredient not found"})
			return
		}
		slog.Error("update ingredient", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, toIngredientResponse(ing))
}

// Delete removes an ingredient that is not referenced by any recipe.
func (h *IngredientHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid ingredient ID"})
		return
	}

	n, err := h.store.DeleteIngredient(r.Context(), id)
	if err != nil {
		// FK violation from recipes referencing the ingredient.
		writeJSON(w, http.StatusConflict, map[string]string{"error": "ingredient is in use"})
		return
	}
	if n == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "ingredient not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RecordPurchase adds received goods to stock. The quantity arrives in
// purchase units and is converted to the standard unit before storage. A
// new unit cost, when provided, replaces the stored one.
func (h *IngredientHandler) RecordPurchase(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid ingredient ID"})
		return
	}

	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	qty, err := decimal.NewFromString(req.Quantity)
	if err != nil || qty.LessThanOrEqual(decimal.Zero) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "quantity must be a positive number"})
		return
	}

	ing, err := h.store.GetIngredient(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "ingredient not found"})
			return
		}
		slog.Error("get ingredient", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if req.CostPerPurchaseUnit != "" {
		cost, err := decimal.NewFromString(req.CostPerPurchaseUnit)
		if err != nil || cost.IsNegative() {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid cost_per_purchase_unit"})
			return
		}
		ing.CostPerPurchaseUnit = service.CostToNumeric(cost)
		unitCost, err := service.StandardCost(ing)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		ing, err = h.store.UpdateIngredient(r.Context(), database.UpdateIngredientParams{
			ID:                       ing.ID,
			Name:                     ing.Name,
			StandardUnit:             ing.StandardUnit,
			PurchaseUnitName:         ing.PurchaseUnitName,
			PurchaseToStandardFactor: ing.PurchaseToStandardFactor,
			Stock:                    ing.Stock,
			CostPerPurchaseUnit:      ing.CostPerPurchaseUnit,
			CostPerStandardUnit:      service.CostToNumeric(unitCost),
		})
		if err != nil {
			slog.Error("update ingredient cost", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
	}

	standardQty, err := service.PurchaseToStandard(ing, qty)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := h.store.AdjustIngredientStock(r.Context(), database.AdjustIngredientStockParams{
		ID:    ing.ID,
		Delta: service.QuantityToNumeric(standardQty),
	}); err != nil {
		slog.Error("adjust ingredient stock", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	ing, err = h.store.GetIngredient(r.Context(), ing.ID)
	if err != nil {
		slog.Error("reload ingredient", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, toIngredientResponse(ing))
}

// ListConversions returns the recipe-unit conversions for an ingredient.
func (h *IngredientHandler) ListConversions(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid ingredient ID"})
		return
	}

	conversions, err := h.store.ListUnitConversions(r.Context(), id)
	if err != nil {
		slog.Error("list unit conversions", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]conversionResponse, len(conversions))
	for i, c := range conversions {
		resp[i] = toConversionResponse(c)
	}
	writeJSON(w, http.StatusOK, resp)
}

// UpsertConversion creates or replaces a recipe-unit conversion.
func (h *IngredientHandler) UpsertConversion(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid ingredient ID"})
		return
	}

	var req conversionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.RecipeUnitName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "recipe_unit_name is required"})
		return
	}
	factor, err := decimal.NewFromString(req.ConversionFactor)
	if err != nil || factor.LessThanOrEqual(decimal.Zero) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "conversion_factor must be a positive number"})
		return
	}

	c, err := h.store.UpsertUnitConversion(r.Context(), database.UpsertUnitConversionParams{
		IngredientID:     id,
		RecipeUnitName:   req.RecipeUnitName,
		ConversionFactor: service.QuantityToNumeric(factor),
	})
	if err != nil {
		slog.Error("upsert unit conversion", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, toConversionResponse(c))
}

// DeleteConversion removes a recipe-unit conversion.
func (h *IngredientHandler) DeleteConversion(w http.ResponseWriter, r *http.Request) {
	cid, err := uuid.Parse(chi.URLParam(r, "cid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid conversion ID"})
		return
	}

	n, err := h.store.DeleteUnitConversion(r.Context(), cid)
	if err != nil {
		slog.Error("delete unit conversion", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if n == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "conversion not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// buildIngredientParams validates and converts the request's decimal fields.
func (h *IngredientHandler) buildIngredientParams(req ingredientRequest) (database.CreateIngredientParams, string) {
	var params database.CreateIngredientParams

	if req.Name == "" {
		return params, "name is required"
	}
	if req.StandardUnit == "" {
		return params, "standard_unit is required"
	}
	params.Name = req.Name
	params.StandardUnit = req.StandardUnit

	if req.PurchaseUnitName != "" {
		params.PurchaseUnitName = pgtype.Text{String: req.PurchaseUnitName, Valid: true}
	}
	if req.PurchaseToStandardFactor != "" {
		factor, err := decimal.NewFromString(req.PurchaseToStandardFactor)
		if err != nil || factor.LessThanOrEqual(decimal.Zero) {
			return params, "purchase_to_standard_factor must be a positive number"
		}
		params.PurchaseToStandardFactor = service.QuantityToNumeric(factor)
	}

	stock := decimal.Zero
	if req.Stock != "" {
		var err error
		stock, err = decimal.NewFromString(req.Stock)
		if err != nil || stock.IsNegative() {
			return params, "stock must be a non-negative number"
		}
	}
	params.Stock = service.QuantityToNumeric(stock)

	if req.CostPerPurchaseUnit != "" {
		cost, err := decimal.NewFromString(req.CostPerPurchaseUnit)
		if err != nil || cost.IsNegative() {
			return params, "cost_per_purchase_unit must be a non-negative number"
		}
		params.CostPerPurchaseUnit = service.CostToNumeric(cost)

		ing := database.Ingredient{
			PurchaseToStandardFactor: params.PurchaseToStandardFactor,
			CostPerPurchaseUnit:      params.CostPerPurchaseUnit,
		}
		unitCost, err := service.StandardCost(ing)
		if err == nil {
			params.CostPerStandardUnit = service.CostToNumeric(unitCost)
		}
	}

	return params, ""
}
