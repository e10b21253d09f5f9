package handler_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/cangre-pos/api/internal/database"
	"github.com/cangre-pos/api/internal/enum"
	"github.com/cangre-pos/api/internal/handler"
	"github.com/cangre-pos/api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type mockPreparationStore struct {
	preparations map[uuid.UUID]database.Preparation
	ingredients  map[uuid.UUID]database.Ingredient
	components   map[uuid.UUID][]database.PreparationComponent
	lots         map[uuid.UUID][]database.PreparationLot
	created      []database.CreatePreparationComponentParams

	// When set, CreatePreparationComponent fails once len(created) reaches
	// createComponentErrAt.
	createComponentErr   error
	createComponentErrAt int
}

func newMockPreparationStore() *mockPreparationStore {
	return &mockPreparationStore{
		preparations: make(map[uuid.UUID]database.Preparation),
		ingredients:  make(map[uuid.UUID]database.Ingredient),
		components:   make(map[uuid.UUID][]database.PreparationComponent),
		lots:         make(map[uuid.UUID][]database.PreparationLot),
	}
}

func (m *mockPreparationStore) ListPreparations(_ context.Context) ([]database.Preparation, error) {
	out := []database.Preparation{}
	for _, p := range m.preparations {
		out = append(out, p)
	}
	return out, nil
}

func (m *mockPreparationStore) GetPreparation(_ context.Context, id uuid.UUID) (database.Preparation, error) {
	p, ok := m.preparations[id]
	if !ok {
		return database.Preparation{}, pgx.ErrNoRows
	}
	return p, nil
}

func (m *mockPreparationStore) CreatePreparation(_ context.Context, arg database.CreatePreparationParams) (database.Preparation, error) {
	p := database.Preparation{
		ID:                  uuid.New(),
		Name:                arg.Name,
		UsageType:           arg.UsageType,
		UnitOfMeasure:       arg.UnitOfMeasure,
		EstimatedExpiryDays: arg.EstimatedExpiryDays,
		RecipeYield:         arg.RecipeYield,
	}
	m.preparations[p.ID] = p
	return p, nil
}

func (m *mockPreparationStore) DeletePreparation(_ context.Context, id uuid.UUID) (int64, error) {
	if _, ok := m.preparations[id]; !ok {
		return 0, nil
	}
	delete(m.preparations, id)
	return 1, nil
}

func (m *mockPreparationStore) ListPreparationComponents(_ context.Context, preparationID uuid.UUID) ([]database.PreparationComponent, error) {
	return m.components[preparationID], nil
}

func (m *mockPreparationStore) DeletePreparationComponents(_ context.Context, preparationID uuid.UUID) error {
	delete(m.components, preparationID)
	return nil
}

func (m *mockPreparationStore) CreatePreparationComponent(_ context.Context, arg database.CreatePreparationComponentParams) error {
	if m.createComponentErr != nil && len(m.created) >= m.createComponentErrAt {
		return m.createComponentErr
	}
	m.created = append(m.created, arg)
	m.components[arg.PreparationID] = append(m.components[arg.PreparationID], database.PreparationComponent{
		PreparationID:    arg.PreparationID,
		ComponentID:      arg.ComponentID,
		ComponentType:    arg.ComponentType,
		QuantityRequired: arg.QuantityRequired,
	})
	return nil
}

func (m *mockPreparationStore) ListPreparationLots(_ context.Context, preparationID uuid.UUID) ([]database.PreparationLot, error) {
	return m.lots[preparationID], nil
}

func (m *mockPreparationStore) GetIngredient(_ context.Context, id uuid.UUID) (database.Ingredient, error) {
	ing, ok := m.ingredients[id]
	if !ok {
		return database.Ingredient{}, pgx.ErrNoRows
	}
	return ing, nil
}

func (m *mockPreparationStore) addPreparation(name string) database.Preparation {
	p := database.Preparation{
		ID:                  uuid.New(),
		Name:                name,
		UsageType:           enum.PreparationUsageDressing,
		UnitOfMeasure:       "ml",
		EstimatedExpiryDays: 3,
		RecipeYield:         testNumeric("500"),
	}
	m.preparations[p.ID] = p
	return p
}

type mockLotProducer struct {
	produceFn func(ctx context.Context, preparationID uuid.UUID, batches int32) (*database.PreparationLot, error)
}

func (m *mockLotProducer) ProduceLot(ctx context.Context, preparationID uuid.UUID, batches int32) (*database.PreparationLot, error) {
	return m.produceFn(ctx, preparationID, batches)
}

type mockRecipeValidator struct {
	err error
}

func (m *mockRecipeValidator) ValidateComponents(_ context.Context, _ uuid.UUID, _ []service.ComponentRef) error {
	return m.err
}

func setupPreparationRouter(store *mockPreparationStore, producer *mockLotProducer, validator *mockRecipeValidator) *chi.Mux {
	router, _ := setupPreparationRouterTx(store, producer, validator)
	return router
}

// setupPreparationRouterTx also returns the transaction handed to recipe
// replacement so tests can assert on commit and rollback.
func setupPreparationRouterTx(store *mockPreparationStore, producer *mockLotProducer, validator *mockRecipeValidator) (*chi.Mux, *mockTx) {
	if producer == nil {
		producer = &mockLotProducer{}
	}
	if validator == nil {
		validator = &mockRecipeValidator{}
	}
	tx := &mockTx{}
	h := handler.NewPreparationHandler(store, producer, validator, &mockTxBeginner{tx: tx},
		func(database.DBTX) handler.PreparationStore { return store })
	r := chi.NewRouter()
	r.Route("/preparations", h.RegisterRoutes)
	return r, tx
}

func TestPreparationCreate_Success(t *testing.T) {
	store := newMockPreparationStore()
	router := setupPreparationRouter(store, nil, nil)

	rr := doRequest(t, router, "POST", "/preparations", map[string]interface{}{
		"name":                  "Salsa tartara",
		"usage_type":            "dressing",
		"unit_of_measure":       "ml",
		"estimated_expiry_days": 3,
		"recipe_yield":          "500",
	})

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["recipe_yield"] != "500" {
		t.Errorf("recipe_yield = %v, want 500", resp["recipe_yield"])
	}
}

func TestPreparationCreate_InvalidUsageType(t *testing.T) {
	router := setupPreparationRouter(newMockPreparationStore(), nil, nil)

	rr := doRequest(t, router, "POST", "/preparations", map[string]interface{}{
		"name":                  "Salsa",
		"usage_type":            "topping",
		"unit_of_measure":       "ml",
		"estimated_expiry_days": 3,
		"recipe_yield":          "500",
	})

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestPreparationReplaceRecipe_Success(t *testing.T) {
	store := newMockPreparationStore()
	prep := store.addPreparation("Salsa tartara")
	mayo := database.Ingredient{ID: uuid.New(), Name: "Mayonesa", StandardUnit: "ml"}
	store.ingredients[mayo.ID] = mayo

	router, tx := setupPreparationRouterTx(store, nil, nil)

	rr := doRequest(t, router, "PUT", "/preparations/"+prep.ID.String()+"/recipe", map[string]interface{}{
		"components": []map[string]interface{}{
			{"component_type": "ingredient", "component_id": mayo.ID.String(), "quantity_required": "300"},
		},
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	if len(store.created) != 1 {
		t.Fatalf("components created = %d, want 1", len(store.created))
	}
	if store.created[0].ComponentID != mayo.ID {
		t.Errorf("component id = %s, want %s", store.created[0].ComponentID, mayo.ID)
	}
	if !tx.committed {
		t.Error("recipe replacement did not commit its transaction")
	}
}

func TestPreparationReplaceRecipe_MidInsertFailureRollsBack(t *testing.T) {
	store := newMockPreparationStore()
	prep := store.addPreparation("Salsa tartara")
	mayo := database.Ingredient{ID: uuid.New(), Name: "Mayonesa", StandardUnit: "ml"}
	pickles := database.Ingredient{ID: uuid.New(), Name: "Pepinillos", StandardUnit: "g"}
	store.ingredients[mayo.ID] = mayo
	store.ingredients[pickles.ID] = pickles
	store.createComponentErr = errors.New("connection reset")
	store.createComponentErrAt = 1
	router, tx := setupPreparationRouterTx(store, nil, nil)

	rr := doRequest(t, router, "PUT", "/preparations/"+prep.ID.String()+"/recipe", map[string]interface{}{
		"components": []map[string]interface{}{
			{"component_type": "ingredient", "component_id": mayo.ID.String(), "quantity_required": "300"},
			{"component_type": "ingredient", "component_id": pickles.ID.String(), "quantity_required": "50"},
		},
	})

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusInternalServerError)
	}
	if tx.committed {
		t.Error("transaction committed despite a failed component insert")
	}
	if !tx.rolledBack {
		t.Error("transaction was not rolled back")
	}
}

func TestPreparationReplaceRecipe_UnknownComponent(t *testing.T) {
	store := newMockPreparationStore()
	prep := store.addPreparation("Salsa tartara")
	router := setupPreparationRouter(store, nil, nil)

	rr := doRequest(t, router, "PUT", "/preparations/"+prep.ID.String()+"/recipe", map[string]interface{}{
		"components": []map[string]interface{}{
			{"component_type": "ingredient", "component_id": uuid.NewString(), "quantity_required": "300"},
		},
	})

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestPreparationReplaceRecipe_CycleRejected(t *testing.T) {
	store := newMockPreparationStore()
	prep := store.addPreparation("Salsa madre")
	nested := store.addPreparation("Salsa hija")
	validator := &mockRecipeValidator{err: &service.CyclicRecipeError{PreparationID: prep.ID}}
	router := setupPreparationRouter(store, nil, validator)

	rr := doRequest(t, router, "PUT", "/preparations/"+prep.ID.String()+"/recipe", map[string]interface{}{
		"components": []map[string]interface{}{
			{"component_type": "preparation", "component_id": nested.ID.String(), "quantity_required": "100"},
		},
	})

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusConflict, rr.Body.String())
	}
	if len(store.created) != 0 {
		t.Errorf("components created = %d, want 0 after a rejected cycle", len(store.created))
	}
}

func TestProduceLot_Success(t *testing.T) {
	store := newMockPreparationStore()
	prep := store.addPreparation("Salsa tartara")
	lot := database.PreparationLot{
		ID:                uuid.New(),
		PreparationID:     prep.ID,
		QuantityProduced:  testNumeric("1000"),
		QuantityRemaining: testNumeric("1000"),
		CostPerUnit:       testNumeric("0.02"),
		ProductionDate:    time.Now(),
		ExpiryDate:        time.Now().AddDate(0, 0, 3),
	}
	var gotBatches int32
	producer := &mockLotProducer{
		produceFn: func(_ context.Context, _ uuid.UUID, batches int32) (*database.PreparationLot, error) {
			gotBatches = batches
			return &lot, nil
		},
	}
	router := setupPreparationRouter(store, producer, nil)

	rr := doRequest(t, router, "POST", "/preparations/"+prep.ID.String()+"/lots", map[string]interface{}{
		"batches": 2,
	})

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	if gotBatches != 2 {
		t.Errorf("batches = %d, want 2", gotBatches)
	}
	resp := decodeResponse(t, rr)
	if resp["quantity_remaining"] != "1000" {
		t.Errorf("quantity_remaining = %v, want 1000", resp["quantity_remaining"])
	}
}

func TestProduceLot_ZeroBatches(t *testing.T) {
	producer := &mockLotProducer{
		produceFn: func(_ context.Context, _ uuid.UUID, _ int32) (*database.PreparationLot, error) {
			return nil, service.ErrInvalidQuantity
		},
	}
	router := setupPreparationRouter(newMockPreparationStore(), producer, nil)

	rr := doRequest(t, router, "POST", "/preparations/"+uuid.NewString()+"/lots", map[string]interface{}{
		"batches": 0,
	})

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestProduceLot_MissingRecipe(t *testing.T) {
	producer := &mockLotProducer{
		produceFn: func(_ context.Context, id uuid.UUID, _ int32) (*database.PreparationLot, error) {
			return nil, &service.MissingRecipeError{ID: id, Name: "Salsa tartara"}
		},
	}
	router := setupPreparationRouter(newMockPreparationStore(), producer, nil)

	rr := doRequest(t, router, "POST", "/preparations/"+uuid.NewString()+"/lots", map[string]interface{}{
		"batches": 1,
	})

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusConflict)
	}
}

func TestProduceLot_InsufficientStock(t *testing.T) {
	producer := &mockLotProducer{
		produceFn: func(_ context.Context, _ uuid.UUID, _ int32) (*database.PreparationLot, error) {
			return nil, &service.InsufficientStockError{
				Resource:  "ingredient",
				ID:        uuid.New(),
				Name:      "Mayonesa",
				Available: decimal.NewFromInt(100),
				Required:  decimal.NewFromInt(300),
			}
		},
	}
	router := setupPreparationRouter(newMockPreparationStore(), producer, nil)

	rr := doRequest(t, router, "POST", "/preparations/"+uuid.NewString()+"/lots", map[string]interface{}{
		"batches": 1,
	})

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusConflict, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["name"] != "Mayonesa" {
		t.Errorf("name = %v, want Mayonesa", resp["name"])
	}
}

func TestPreparationDelete_NotFound(t *testing.T) {
	router := setupPreparationRouter(newMockPreparationStore(), nil, nil)

	rr := doRequest(t, router, "DELETE", "/preparations/"+uuid.NewString(), nil)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}
