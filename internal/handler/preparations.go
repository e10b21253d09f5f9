package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cangre-pos/api/internal/database"
	"github.com/cangre-pos/api/internal/enum"
	"github.com/cangre-pos/api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// PreparationStore defines the database methods needed by preparation
// handlers. Satisfied by *database.Queries; narrow interface for testability.
type PreparationStore interface {
	ListPreparations(ctx context.Context) ([]database.Preparation, error)
	GetPreparation(ctx context.Context, id uuid.UUID) (database.Preparation, error)
	CreatePreparation(ctx context.Context, arg database.CreatePreparationParams) (database.Preparation, error)
	DeletePreparation(ctx context.Context, id uuid.UUID) (int64, error)
	ListPreparationComponents(ctx context.Context, preparationID uuid.UUID) ([]database.PreparationComponent, error)
	DeletePreparationComponents(ctx context.Context, preparationID uuid.UUID) error
	CreatePreparationComponent(ctx context.Context, arg database.CreatePreparationComponentParams) error
	ListPreparationLots(ctx context.Context, preparationID uuid.UUID) ([]database.PreparationLot, error)
	GetIngredient(ctx context.Context, id uuid.UUID) (database.Ingredient, error)
}

// LotProducer runs the lot production transaction.
// Satisfied by *service.LotService.
type LotProducer interface {
	ProduceLot(ctx context.Context, preparationID uuid.UUID, batches int32) (*database.PreparationLot, error)
}

// RecipeValidator checks a proposed component list for cycles.
// Satisfied by *service.RecipeResolver.
type RecipeValidator interface {
	ValidateComponents(ctx context.Context, ownerPrep uuid.UUID, refs []service.ComponentRef) error
}

// NewPreparationStore builds a PreparationStore bound to the given connection
// or transaction.
type NewPreparationStore func(db database.DBTX) PreparationStore

// PreparationHandler handles preparation, recipe and lot endpoints.
type PreparationHandler struct {
	store     PreparationStore
	producer  LotProducer
	validator RecipeValidator
	pool      service.TxBeginner
	newStore  NewPreparationStore
}

// NewPreparationHandler creates a new PreparationHandler. Recipe replacement
// runs in its own transaction, so the handler also needs the pool and a
// store factory.
func NewPreparationHandler(store PreparationStore, producer LotProducer, validator RecipeValidator, pool service.TxBeginner, newStore NewPreparationStore) *PreparationHandler {
	return &PreparationHandler{store: store, producer: producer, validator: validator, pool: pool, newStore: newStore}
}

// RegisterRoutes registers preparation endpoints on the given Chi router.
func (h *PreparationHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Delete("/{id}", h.Delete)
	r.Put("/{id}/recipe", h.ReplaceRecipe)
	r.Get("/{id}/lots", h.ListLots)
	r.Post("/{id}/lots", h.ProduceLot)
}

// --- Request / Response types ---

type createPreparationRequest struct {
	Name                string `json:"name"`
	UsageType           string `json:"usage_type"`
	UnitOfMeasure       string `json:"unit_of_measure"`
	EstimatedExpiryDays int32  `json:"estimated_expiry_days"`
	RecipeYield         string `json:"recipe_yield"`
}

type produceLotRequest struct {
	Batches int32 `json:"batches"`
}

type preparationResponse struct {
	ID                  uuid.UUID `json:"id"`
	Name                string    `json:"name"`
	UsageType           string    `json:"usage_type"`
	UnitOfMeasure       string    `json:"unit_of_measure"`
	EstimatedExpiryDays int32     `json:"estimated_expiry_days"`
	RecipeYield         string    `json:"recipe_yield"`
}

type preparationDetailResponse struct {
	preparationResponse
	Components []recipeComponentResponse `json:"components"`
}

type lotResponse struct {
	ID                uuid.UUID `json:"id"`
	PreparationID     uuid.UUID `json:"preparation_id"`
	QuantityProduced  string    `json:"quantity_produced"`
	QuantityRemaining string    `json:"quantity_remaining"`
	CostPerUnit       string    `json:"cost_per_unit"`
	ProductionDate    time.Time `json:"production_date"`
	ExpiryDate        time.Time `json:"expiry_date"`
}

func toPreparationResponse(p database.Preparation) preparationResponse {
	return preparationResponse{
		ID:                  p.ID,
		Name:                p.Name,
		UsageType:           p.UsageType,
		UnitOfMeasure:       p.UnitOfMeasure,
		EstimatedExpiryDays: p.EstimatedExpiryDays,
		RecipeYield:         service.NumericToDecimal(p.RecipeYield).String(),
	}
}

func toLotResponse(l database.PreparationLot) lotResponse {
	return lotResponse{
		ID:                l.ID,
		PreparationID:     l.PreparationID,
		QuantityProduced:  service.NumericToDecimal(l.QuantityProduced).String(),
		QuantityRemaining: service.NumericToDecimal(l.QuantityRemaining).String(),
		CostPerUnit:       service.NumericToDecimal(l.CostPerUnit).String(),
		ProductionDate:    l.ProductionDate,
		ExpiryDate:        l.ExpiryDate,
	}
}

// --- Handlers ---

// List returns all preparations.
func (h *PreparationHandler) List(w http.ResponseWriter, r *http.Request) {
	preparations, err := h.store.ListPreparations(r.Context())
	if err != nil {
		slog.Error("list preparations", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]preparationResponse, len(preparations))
	for i, p := range preparations {
		resp[i] = toPreparationResponse(p)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create adds a new preparation.
func (h *PreparationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createPreparationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}
	if req.UsageType != enum.PreparationUsageIngredient && req.UsageType != enum.PreparationUsageDressing {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "usage_type must be ingredient or dressing"})
		return
	}
	if req.UnitOfMeasure == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unit_of_measure is required"})
		return
	}
	if req.EstimatedExpiryDays <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "estimated_expiry_days must be > 0"})
		return
	}
	yield, err := decimal.NewFromString(req.RecipeYield)
	if err != nil || yield.LessThanOrEqual(decimal.Zero) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "recipe_yield must be a positive number"})
		return
	}

	p, err := h.store.CreatePreparation(r.Context(), database.CreatePreparationParams{
		Name:                req.Name,
		UsageType:           req.UsageType,
		UnitOfMeasure:       req.UnitOfMeasure,
		EstimatedExpiryDays: req.EstimatedExpiryDays,
		RecipeYield:         service.QuantityToNumeric(yield),
	})
	if err != nil {
		slog.Error("create preparation", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusCreated, toPreparationResponse(p))
}

// Get returns a preparation together with its recipe components.
func (h *PreparationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid preparation ID"})
		return
	}

	p, err := h.store.GetPreparation(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "preparation not found"})
			return
		}
		slog.Error("get preparation", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	components, err := h.store.ListPreparationComponents(r.Context(), id)
	if err != nil {
		slog.Error("list preparation components", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := preparationDetailResponse{
		preparationResponse: toPreparationResponse(p),
		Components:          make([]recipeComponentResponse, len(components)),
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

// Delete removes a preparation that is not referenced by any recipe or lot.
func (h *PreparationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid preparation ID"})
		return
	}

	n, err := h.store.DeletePreparation(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "preparation is in use"})
		return
	}
	if n == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "preparation not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReplaceRecipe swaps a preparation's component list wholesale. The new
// list is rejected if it would make the preparation contain itself,
// directly or through nested preparations.
func (h *PreparationHandler) ReplaceRecipe(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid preparation ID"})
		return
	}

	if _, err := h.store.GetPreparation(r.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "preparation not found"})
			return
		}
		slog.Error("get preparation", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	var req replaceRecipeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	parsed := make([]database.CreatePreparationComponentParams, 0, len(req.Components))
	refs := make([]service.ComponentRef, 0, len(req.Components))
	for i, c := range req.Components {
		componentID, err := uuid.Parse(c.ComponentID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": formatComponentError(i, "invalid component_id")})
			return
		}
		qty, err := decimal.NewFromString(c.QuantityRequired)
		if err != nil || qty.LessThanOrEqual(decimal.Zero) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": formatComponentError(i, "quantity_required must be a positive number")})
			return
		}

		switch c.ComponentType {
		case enum.ComponentTypeIngredient:
			if _, err := h.store.GetIngredient(r.Context(), componentID); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": formatComponentError(i, "ingredient not found")})
				return
			}
			refs = append(refs, service.IngredientRef(componentID))
		case enum.ComponentTypePreparation:
			if _, err := h.store.GetPreparation(r.Context(), componentID); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": formatComponentError(i, "preparation not found")})
				return
			}
			refs = append(refs, service.PreparationRef(componentID))
		default:
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": formatComponentError(i, "component_type must be ingredient or preparation")})
			return
		}

		parsed = append(parsed, database.CreatePreparationComponentParams{
			PreparationID:    id,
			ComponentID:      componentID,
			ComponentType:    c.ComponentType,
			QuantityRequired: service.QuantityToNumeric(qty),
		})
	}

	if err := h.validator.ValidateComponents(r.Context(), id, refs); err != nil {
		var cyclic *service.CyclicRecipeError
		if errors.As(err, &cyclic) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		slog.Error("validate recipe components", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	// Delete-then-insert must be atomic: a half-written recipe would change
	// what production consumes.
	tx, err := h.pool.Begin(r.Context())
	if err != nil {
		slog.Error("begin recipe tx", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	defer tx.Rollback(r.Context()) //nolint:errcheck

	store := h.newStore(tx)
	if err := store.DeletePreparationComponents(r.Context(), id); err != nil {
		slog.Error("delete preparation components", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	for _, c := range parsed {
		if err := store.CreatePreparationComponent(r.Context(), c); err != nil {
			slog.Error("create preparation component", "error", err)
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

// ListLots returns a preparation's lots, open ones first by expiry.
func (h *PreparationHandler) ListLots(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid preparation ID"})
		return
	}

	lots, err := h.store.ListPreparationLots(r.Context(), id)
	if err != nil {
		slog.Error("list preparation lots", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]lotResponse, len(lots))
	for i, l := range lots {
		resp[i] = toLotResponse(l)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ProduceLot runs a production batch, consuming component stock and
// registering a new lot with its computed unit cost.
func (h *PreparationHandler) ProduceLot(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid preparation ID"})
		return
	}

	var req produceLotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	lot, err := h.producer.ProduceLot(r.Context(), id, req.Batches)
	if err != nil {
		h.writeProductionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLotResponse(*lot))
}

// writeProductionError maps lot production errors to HTTP status codes.
func (h *PreparationHandler) writeProductionError(w http.ResponseWriter, err error) {
	var insufficient *service.InsufficientStockError
	var missing *service.MissingRecipeError

	switch {
	case errors.Is(err, service.ErrInvalidQuantity):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "batches must be > 0"})
	case errors.Is(err, service.ErrPreparationNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.As(err, &missing):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":     err.Error(),
			"resource":  insufficient.Resource,
			"id":        insufficient.ID,
			"name":      insufficient.Name,
			"required":  insufficient.Required.String(),
			"available": insufficient.Available.String(),
		})
	case errors.Is(err, service.ErrLockTimeout):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	default:
		slog.Error("produce lot", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}
