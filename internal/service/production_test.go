package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cangre-pos/api/internal/database"
	"github.com/cangre-pos/api/internal/enum"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// mockProductionStore implements ProductionStore over a world.
type mockProductionStore struct {
	w       *world
	prepIDs map[uuid.UUID][]database.PreparationComponent
	created []database.PreparationLot
}

func newProductionStore(w *world) *mockProductionStore {
	return &mockProductionStore{w: w, prepIDs: map[uuid.UUID][]database.PreparationComponent{}}
}

func (m *mockProductionStore) recipe(prepID, componentID uuid.UUID, componentType, qty string) {
	m.prepIDs[prepID] = append(m.prepIDs[prepID], database.PreparationComponent{
		PreparationID:    prepID,
		ComponentID:      componentID,
		ComponentType:    componentType,
		QuantityRequired: makeNumeric(qty),
	})
}

func (m *mockProductionStore) SetLocalLockTimeout(ctx context.Context, d time.Duration) error {
	return nil
}
func (m *mockProductionStore) GetPreparation(ctx context.Context, id uuid.UUID) (database.Preparation, error) {
	if p, ok := m.w.preparations[id]; ok {
		return p, nil
	}
	return database.Preparation{}, pgx.ErrNoRows
}
func (m *mockProductionStore) ListPreparationComponents(ctx context.Context, preparationID uuid.UUID) ([]database.PreparationComponent, error) {
	return m.prepIDs[preparationID], nil
}
func (m *mockProductionStore) LockIngredients(ctx context.Context, ids []uuid.UUID) ([]database.Ingredient, error) {
	var out []database.Ingredient
	for _, id := range ids {
		if ing, ok := m.w.ingredients[id]; ok {
			out = append(out, ing)
		}
	}
	return out, nil
}
func (m *mockProductionStore) LockOpenLots(ctx context.Context, preparationIDs []uuid.UUID) ([]database.PreparationLot, error) {
	want := map[uuid.UUID]bool{}
	for _, id := range preparationIDs {
		want[id] = true
	}
	var out []database.PreparationLot
	for _, lot := range m.w.lots {
		if want[lot.PreparationID] && NumericToDecimal(lot.QuantityRemaining).IsPositive() {
			out = append(out, *lot)
		}
	}
	return out, nil
}
func (m *mockProductionStore) AdjustIngredientStock(ctx context.Context, arg database.AdjustIngredientStockParams) error {
	ing := m.w.ingredients[arg.ID]
	ing.Stock = QuantityToNumeric(NumericToDecimal(ing.Stock).Add(NumericToDecimal(arg.Delta)))
	m.w.ingredients[arg.ID] = ing
	return nil
}
func (m *mockProductionStore) AdjustLotRemaining(ctx context.Context, arg database.AdjustLotRemainingParams) error {
	lot := m.w.lots[arg.ID]
	lot.QuantityRemaining = QuantityToNumeric(NumericToDecimal(lot.QuantityRemaining).Add(NumericToDecimal(arg.Delta)))
	return nil
}
func (m *mockProductionStore) CreatePreparationLot(ctx context.Context, arg database.CreatePreparationLotParams) (database.PreparationLot, error) {
	lot := database.PreparationLot{
		ID:                uuid.New(),
		PreparationID:     arg.PreparationID,
		QuantityProduced:  arg.QuantityProduced,
		QuantityRemaining: arg.QuantityRemaining,
		CostPerUnit:       arg.CostPerUnit,
		ProductionDate:    arg.ProductionDate.Time,
		ExpiryDate:        arg.ExpiryDate.Time,
	}
	m.created = append(m.created, lot)
	m.w.lots[lot.ID] = &lot
	return lot, nil
}

func newLotService(store *mockProductionStore) *LotService {
	pool := &mockTxBeginner{tx: &mockTx{}}
	newStore := func(db database.DBTX) ProductionStore { return store }
	svc := NewLotService(pool, newStore, 3*time.Second)
	svc.now = func() time.Time { return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC) }
	return svc
}

func (w *world) addCostedIngredient(name, stock, costPerStandard string) uuid.UUID {
	id := uuid.New()
	w.ingredients[id] = database.Ingredient{
		ID:                  id,
		Name:                name,
		StandardUnit:        "kg",
		Stock:               makeNumeric(stock),
		CostPerStandardUnit: makeNumeric(costPerStandard),
	}
	return id
}

func TestProduceLot_SingleBatch(t *testing.T) {
	w := newWorld()
	tomate := w.addCostedIngredient("Tomate", "10", "2.00")
	salsa := uuid.New()
	w.preparations[salsa] = database.Preparation{
		ID:                  salsa,
		Name:                "Salsa",
		EstimatedExpiryDays: 3,
		RecipeYield:         makeNumeric("4"),
	}
	store := newProductionStore(w)
	store.recipe(salsa, tomate, enum.ComponentTypeIngredient, "2")
	svc := newLotService(store)

	lot, err := svc.ProduceLot(context.Background(), salsa, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := NumericToDecimal(lot.QuantityProduced); !got.Equal(dec("4")) {
		t.Fatalf("produced = %s, want recipe yield 4", got)
	}
	if got := w.ingredientStock(tomate); !got.Equal(dec("8")) {
		t.Fatalf("tomate stock = %s, want 8", got)
	}
	// 2 kg at 2.00 spread over 4 output units.
	if got := NumericToDecimal(lot.CostPerUnit); !got.Equal(dec("1")) {
		t.Fatalf("cost per unit = %s, want 1", got)
	}
	wantExpiry := time.Date(2026, 3, 17, 10, 0, 0, 0, time.UTC)
	if !lot.ExpiryDate.Equal(wantExpiry) {
		t.Fatalf("expiry = %v, want %v", lot.ExpiryDate, wantExpiry)
	}
}

func TestProduceLot_ScalesByBatches(t *testing.T) {
	w := newWorld()
	tomate := w.addCostedIngredient("Tomate", "10", "2.00")
	salsa := uuid.New()
	w.preparations[salsa] = database.Preparation{ID: salsa, Name: "Salsa", EstimatedExpiryDays: 3, RecipeYield: makeNumeric("4")}
	store := newProductionStore(w)
	store.recipe(salsa, tomate, enum.ComponentTypeIngredient, "2")
	svc := newLotService(store)

	lot, err := svc.ProduceLot(context.Background(), salsa, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := NumericToDecimal(lot.QuantityProduced); !got.Equal(dec("12")) {
		t.Fatalf("produced = %s, want 12", got)
	}
	if got := w.ingredientStock(tomate); !got.Equal(dec("4")) {
		t.Fatalf("tomate stock = %s, want 4", got)
	}
}

func TestProduceLot_InsufficientIngredient(t *testing.T) {
	w := newWorld()
	tomate := w.addCostedIngredient("Tomate", "1", "2.00")
	salsa := uuid.New()
	w.preparations[salsa] = database.Preparation{ID: salsa, Name: "Salsa", EstimatedExpiryDays: 3, RecipeYield: makeNumeric("4")}
	store := newProductionStore(w)
	store.recipe(salsa, tomate, enum.ComponentTypeIngredient, "2")
	svc := newLotService(store)

	_, err := svc.ProduceLot(context.Background(), salsa, 1)
	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got: %v", err)
	}
	if stockErr.Name != "Tomate" {
		t.Fatalf("unexpected resource: %+v", stockErr)
	}
	if got := w.ingredientStock(tomate); !got.Equal(dec("1")) {
		t.Fatal("stock mutated on rejected production")
	}
}

func TestProduceLot_ConsumesNestedLotsByExpiry(t *testing.T) {
	w := newWorld()
	base := w.addPreparation("Base")
	soon := w.addLot(base, "2", time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))
	later := w.addLot(base, "10", time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC))
	salsa := uuid.New()
	w.preparations[salsa] = database.Preparation{ID: salsa, Name: "Salsa", EstimatedExpiryDays: 2, RecipeYield: makeNumeric("1")}
	store := newProductionStore(w)
	store.recipe(salsa, base, enum.ComponentTypePreparation, "3")
	svc := newLotService(store)

	lot, err := svc.ProduceLot(context.Background(), salsa, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := w.lotRemaining(soon); !got.Equal(dec("0")) {
		t.Fatalf("earliest lot = %s, want drained", got)
	}
	if got := w.lotRemaining(later); !got.Equal(dec("9")) {
		t.Fatalf("later lot = %s, want 9", got)
	}
	// 3 units consumed at 1.50 each, yield 1.
	if got := NumericToDecimal(lot.CostPerUnit); !got.Equal(dec("4.5")) {
		t.Fatalf("cost per unit = %s, want 4.5", got)
	}
}

func TestProduceLot_EmptyRecipe(t *testing.T) {
	w := newWorld()
	salsa := uuid.New()
	w.preparations[salsa] = database.Preparation{ID: salsa, Name: "Salsa", RecipeYield: makeNumeric("1")}
	svc := newLotService(newProductionStore(w))

	_, err := svc.ProduceLot(context.Background(), salsa, 1)
	var missing *MissingRecipeError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingRecipeError, got: %v", err)
	}
}

func TestProduceLot_UnknownPreparation(t *testing.T) {
	svc := newLotService(newProductionStore(newWorld()))

	if _, err := svc.ProduceLot(context.Background(), uuid.New(), 1); !errors.Is(err, ErrPreparationNotFound) {
		t.Fatalf("expected ErrPreparationNotFound, got: %v", err)
	}
}

func TestProduceLot_ZeroBatches(t *testing.T) {
	svc := newLotService(newProductionStore(newWorld()))

	if _, err := svc.ProduceLot(context.Background(), uuid.New(), 0); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got: %v", err)
	}
}
