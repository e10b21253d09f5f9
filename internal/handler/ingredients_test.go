package handler_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/cangre-pos/api/internal/database"
	"github.com/cangre-pos/api/internal/handler"
	"github.com/cangre-pos/api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type mockIngredientStore struct {
	ingredients map[uuid.UUID]database.Ingredient
	conversions map[uuid.UUID][]database.UnitConversion
	deleteErr   error
}

func newMockIngredientStore() *mockIngredientStore {
	return &mockIngredientStore{
		ingredients: make(map[uuid.UUID]database.Ingredient),
		conversions: make(map[uuid.UUID][]database.UnitConversion),
	}
}

func (m *mockIngredientStore) ListIngredients(_ context.Context) ([]database.Ingredient, error) {
	out := []database.Ingredient{}
	for _, ing := range m.ingredients {
		out = append(out, ing)
	}
	return out, nil
}

func (m *mockIngredientStore) GetIngredient(_ context.Context, id uuid.UUID) (database.Ingredient, error) {
	ing, ok := m.ingredients[id]
	if !ok {
		return database.Ingredient{}, pgx.ErrNoRows
	}
	return ing, nil
}

func (m *mockIngredientStore) CreateIngredient(_ context.Context, arg database.CreateIngredientParams) (database.Ingredient, error) {
	ing := database.Ingredient{
		ID:                       uuid.New(),
		Name:                     arg.Name,
		StandardUnit:             arg.StandardUnit,
		PurchaseUnitName:         arg.PurchaseUnitName,
		PurchaseToStandardFactor: arg.PurchaseToStandardFactor,
		Stock:                    arg.Stock,
		CostPerPurchaseUnit:      arg.CostPerPurchaseUnit,
		CostPerStandardUnit:      arg.CostPerStandardUnit,
	}
	m.ingredients[ing.ID] = ing
	return ing, nil
}

func (m *mockIngredientStore) UpdateIngredient(_ context.Context, arg database.UpdateIngredientParams) (database.Ingredient, error) {
	ing, ok := m.ingredients[arg.ID]
	if !ok {
		return database.Ingredient{}, pgx.ErrNoRows
	}
	ing.Name = arg.Name
	ing.StandardUnit = arg.StandardUnit
	ing.PurchaseUnitName = arg.PurchaseUnitName
	ing.PurchaseToStandardFactor = arg.PurchaseToStandardFactor
	ing.Stock = arg.Stock
	ing.CostPerPurchaseUnit = arg.CostPerPurchaseUnit
	ing.CostPerStandardUnit = arg.CostPerStandardUnit
	m.ingredients[arg.ID] = ing
	return ing, nil
}

func (m *mockIngredientStore) DeleteIngredient(_ context.Context, id uuid.UUID) (int64, error) {
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	if _, ok := m.ingredients[id]; !ok {
		return 0, nil
	}
	delete(m.ingredients, id)
	return 1, nil
}

func (m *mockIngredientStore) AdjustIngredientStock(_ context.Context, arg database.AdjustIngredientStockParams) error {
	ing, ok := m.ingredients[arg.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	total := service.NumericToDecimal(ing.Stock).Add(service.NumericToDecimal(arg.Delta))
	ing.Stock = service.QuantityToNumeric(total)
	m.ingredients[arg.ID] = ing
	return nil
}

func (m *mockIngredientStore) ListUnitConversions(_ context.Context, ingredientID uuid.UUID) ([]database.UnitConversion, error) {
	return m.conversions[ingredientID], nil
}

func (m *mockIngredientStore) UpsertUnitConversion(_ context.Context, arg database.UpsertUnitConversionParams) (database.UnitConversion, error) {
	c := database.UnitConversion{
		ID:               uuid.New(),
		IngredientID:     arg.IngredientID,
		RecipeUnitName:   arg.RecipeUnitName,
		ConversionFactor: arg.ConversionFactor,
	}
	m.conversions[arg.IngredientID] = append(m.conversions[arg.IngredientID], c)
	return c, nil
}

func (m *mockIngredientStore) DeleteUnitConversion(_ context.Context, _ uuid.UUID) (int64, error) {
	return 1, nil
}

func setupIngredientRouter(store *mockIngredientStore) *chi.Mux {
	h := handler.NewIngredientHandler(store)
	r := chi.NewRouter()
	r.Route("/ingredients", h.RegisterRoutes)
	return r
}

func TestIngredientCreate_DerivesStandardCost(t *testing.T) {
	store := newMockIngredientStore()
	router := setupIngredientRouter(store)

	rr := doRequest(t, router, "POST", "/ingredients", map[string]interface{}{
		"name":                        "Aceite",
		"standard_unit":               "ml",
		"purchase_unit_name":          "botella",
		"purchase_to_standard_factor": "1000",
		"stock":                       "0",
		"cost_per_purchase_unit":      "25.00",
	})

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	// 25.00 per 1000 ml bottle is 0.025 per ml.
	if resp["cost_per_standard_unit"] != "0.025" {
		t.Errorf("cost_per_standard_unit = %v, want 0.025", resp["cost_per_standard_unit"])
	}
}

func TestIngredientCreate_MissingName(t *testing.T) {
	router := setupIngredientRouter(newMockIngredientStore())

	rr := doRequest(t, router, "POST", "/ingredients", map[string]interface{}{
		"standard_unit": "g",
	})

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestRecordPurchase_ConvertsToStandardUnits(t *testing.T) {
	store := newMockIngredientStore()
	ing := database.Ingredient{
		ID:                       uuid.New(),
		Name:                     "Aceite",
		StandardUnit:             "ml",
		PurchaseUnitName:         pgtype.Text{String: "botella", Valid: true},
		PurchaseToStandardFactor: testNumeric("1000"),
		Stock:                    testNumeric("500"),
	}
	store.ingredients[ing.ID] = ing
	router := setupIngredientRouter(store)

	rr := doRequest(t, router, "POST", "/ingredients/"+ing.ID.String()+"/purchases", map[string]interface{}{
		"quantity": "2",
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	// 2 bottles of 1000 ml on top of 500 ml.
	if resp["stock"] != "2500" {
		t.Errorf("stock = %v, want 2500", resp["stock"])
	}
}

func TestRecordPurchase_UpdatesCost(t *testing.T) {
	store := newMockIngredientStore()
	ing := database.Ingredient{
		ID:                       uuid.New(),
		Name:                     "Aceite",
		StandardUnit:             "ml",
		PurchaseToStandardFactor: testNumeric("1000"),
		Stock:                    testNumeric("0"),
	}
	store.ingredients[ing.ID] = ing
	router := setupIngredientRouter(store)

	rr := doRequest(t, router, "POST", "/ingredients/"+ing.ID.String()+"/purchases", map[string]interface{}{
		"quantity":               "1",
		"cost_per_purchase_unit": "30.00",
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["cost_per_standard_unit"] != "0.03" {
		t.Errorf("cost_per_standard_unit = %v, want 0.03", resp["cost_per_standard_unit"])
	}
}

func TestRecordPurchase_UnknownIngredient(t *testing.T) {
	router := setupIngredientRouter(newMockIngredientStore())

	rr := doRequest(t, router, "POST", "/ingredients/"+uuid.NewString()+"/purchases", map[string]interface{}{
		"quantity": "1",
	})

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestIngredientDelete_InUse(t *testing.T) {
	store := newMockIngredientStore()
	store.deleteErr = errForeignKey{}
	router := setupIngredientRouter(store)

	rr := doRequest(t, router, "DELETE", "/ingredients/"+uuid.NewString(), nil)

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusConflict)
	}
}

type errForeignKey struct{}

func (errForeignKey) Error() string { return "violates foreign key constraint" }

func TestUpsertConversion_Success(t *testing.T) {
	store := newMockIngredientStore()
	ing := database.Ingredient{ID: uuid.New(), Name: "Sal", StandardUnit: "g", Stock: testNumeric("1000")}
	store.ingredients[ing.ID] = ing
	router := setupIngredientRouter(store)

	rr := doRequest(t, router, "PUT", "/ingredients/"+ing.ID.String()+"/conversions", map[string]interface{}{
		"recipe_unit_name":  "cucharada",
		"conversion_factor": "15",
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["recipe_unit_name"] != "cucharada" {
		t.Errorf("recipe_unit_name = %v, want cucharada", resp["recipe_unit_name"])
	}
}
