package service

import (
	"errors"
	"testing"

	"github.com/cangre-pos/api/internal/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

func kgIngredient(factor string) database.Ingredient {
	ing := database.Ingredient{
		ID:                  uuid.New(),
		Name:                "Aceite",
		StandardUnit:        "ml",
		CostPerPurchaseUnit: makeNumeric("18.00"),
	}
	if factor != "" {
		ing.PurchaseUnitName = pgtype.Text{String: "botella", Valid: true}
		ing.PurchaseToStandardFactor = makeNumeric(factor)
	}
	return ing
}

func TestStandardCost_DividesByFactor(t *testing.T) {
	// A 900 ml bottle at 18.00 costs 0.02 per ml.
	cost, err := StandardCost(kgIngredient("900"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cost.Equal(dec("0.02")) {
		t.Fatalf("cost = %s, want 0.02", cost)
	}
}

func TestStandardCost_NoFactorMeansPurchaseIsStandard(t *testing.T) {
	cost, err := StandardCost(kgIngredient(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cost.Equal(dec("18.00")) {
		t.Fatalf("cost = %s, want 18.00", cost)
	}
}

func TestStandardCost_ZeroFactor(t *testing.T) {
	if _, err := StandardCost(kgIngredient("0")); !errors.Is(err, ErrNoPurchaseFactor) {
		t.Fatalf("expected ErrNoPurchaseFactor, got: %v", err)
	}
}

func TestPurchaseToStandard(t *testing.T) {
	qty, err := PurchaseToStandard(kgIngredient("900"), dec("2"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !qty.Equal(dec("1800")) {
		t.Fatalf("qty = %s, want 1800", qty)
	}
}

func TestRecipeToStandard_StandardUnitPassesThrough(t *testing.T) {
	ing := kgIngredient("900")
	qty, err := RecipeToStandard(ing, nil, "ml", dec("30"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !qty.Equal(dec("30")) {
		t.Fatalf("qty = %s, want 30", qty)
	}
}

func TestRecipeToStandard_UsesConversion(t *testing.T) {
	ing := kgIngredient("900")
	conversions := []database.UnitConversion{
		{ID: uuid.New(), IngredientID: ing.ID, RecipeUnitName: "cucharada", ConversionFactor: makeNumeric("15")},
	}
	qty, err := RecipeToStandard(ing, conversions, "cucharada", dec("2"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !qty.Equal(dec("30")) {
		t.Fatalf("qty = %s, want 30", qty)
	}
}

func TestRecipeToStandard_UnknownUnit(t *testing.T) {
	ing := kgIngredient("900")
	if _, err := RecipeToStandard(ing, nil, "pizca", dec("1")); !errors.Is(err, ErrUnknownRecipeUnit) {
		t.Fatalf("expected ErrUnknownRecipeUnit, got: %v", err)
	}
}
