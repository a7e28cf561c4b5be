package service

import (
	"math"

	"kitarcycle/internal/model"

	"github.com/shopspring/decimal"
)

var (
	minMultiplier = decimal.NewFromInt(1)
	weightPlaces  = int32(2)
)

// Upper bounds for catalog and cart counters.
const (
	MaxCartQuantity   = 10_000
	MaxRewardStock    = 1_000_000_000
	MaxPointsRequired = 1_000_000_000
)

// CalculatePoints returns floor(floor(weight * pointsPerKg) * multiplier).
// Weights finer than the two decimals they are stored with are rejected, so a
// preview and the recorded completion always agree.
func CalculatePoints(weight, pointsPerKg, multiplier decimal.Decimal) (int64, error) {
	if err := checkWeight(weight); err != nil {
		return 0, err
	}
	if pointsPerKg.IsNegative() {
		return 0, validationf("points per kg must not be negative, got %s", pointsPerKg)
	}
	if multiplier.LessThan(minMultiplier) {
		return 0, validationf("multiplier must be at least 1, got %s", multiplier)
	}

	base := weight.Mul(pointsPerKg).Floor()
	return base.Mul(multiplier).Floor().IntPart(), nil
}

func checkWeight(weight decimal.Decimal) error {
	if weight.IsNegative() {
		return validationf("weight must not be negative, got %s", weight)
	}
	if !weight.Equal(weight.Truncate(weightPlaces)) {
		return validationf("weight allows at most %d decimal places, got %s", weightPlaces, weight)
	}
	return nil
}

// checkedMul returns a*b for non-negative operands, or false when the
// product does not fit in int64.
func checkedMul(a, b int64) (int64, bool) {
	if a < 0 || b < 0 {
		return 0, false
	}
	if a == 0 || b == 0 {
		return 0, true
	}
	if a > math.MaxInt64/b {
		return 0, false
	}
	return a * b, true
}

// checkedAdd returns a+b for non-negative operands, or false on overflow.
func checkedAdd(a, b int64) (int64, bool) {
	if a < 0 || b < 0 || a > math.MaxInt64-b {
		return 0, false
	}
	return a + b, true
}

// cartTotal sums quantity * points_required over the lines. costOf returns
// the unit price of a line and false when its reward is unknown.
func cartTotal(items []*model.CartItem, costOf func(*model.CartItem) (int64, bool)) (int64, error) {
	var total int64
	for _, it := range items {
		cost, ok := costOf(it)
		if !ok {
			continue
		}
		line, ok := checkedMul(it.Quantity, cost)
		if !ok {
			return 0, validationf("cart line for reward %d overflows the points total", it.RewardID)
		}
		if total, ok = checkedAdd(total, line); !ok {
			return 0, validationf("cart total overflows the points limit")
		}
	}
	return total, nil
}
