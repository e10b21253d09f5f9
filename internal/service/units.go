package service

import (
	"github.com/cangre-pos/api/internal/database"
	"github.com/shopspring/decimal"
)

// StandardCost derives the cost of one standard unit of an ingredient from
// its purchase price. Ingredients bought directly in their standard unit
// (factor unset) cost their purchase price per unit.
func StandardCost(ing database.Ingredient) (decimal.Decimal, error) {
	purchaseCost := NumericToDecimal(ing.CostPerPurchaseUnit)
	if !ing.PurchaseToStandardFactor.Valid {
		return purchaseCost, nil
	}
	factor := NumericToDecimal(ing.PurchaseToStandardFactor)
	if factor.IsZero() {
		return decimal.Zero, ErrNoPurchaseFactor
	}
	return purchaseCost.DivRound(factor, 6), nil
}

// PurchaseToStandard converts a quantity expressed in the ingredient's
// purchase unit into standard units.
func PurchaseToStandard(ing database.Ingredient, qty decimal.Decimal) (decimal.Decimal, error) {
	if !ing.PurchaseToStandardFactor.Valid {
		return qty, nil
	}
	factor := NumericToDecimal(ing.PurchaseToStandardFactor)
	if factor.IsZero() {
		return decimal.Zero, ErrNoPurchaseFactor
	}
	return qty.Mul(factor), nil
}

// RecipeToStandard converts a quantity expressed in an arbitrary recipe unit
// (e.g. "cucharada") into the ingredient's standard unit using the
// ingredient's registered conversions. The standard unit itself needs no
// conversion row.
func RecipeToStandard(ing database.Ingredient, conversions []database.UnitConversion, unitName string, qty decimal.Decimal) (decimal.Decimal, error) {
	if unitName == "" || unitName == ing.StandardUnit {
		return qty, nil
	}
	for _, c := range conversions {
		if c.IngredientID == ing.ID && c.RecipeUnitName == unitName {
			return qty.Mul(NumericToDecimal(c.ConversionFactor)), nil
		}
	}
	return decimal.Zero, ErrUnknownRecipeUnit
}
