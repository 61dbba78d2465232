// Package billing computes invoices. The engine is a pure function of
// its inputs: no I/O, no clock, no shared state, so the UI can call it
// on every cart mutation and checkout can recompute it for
// verification with identical results.
package billing

import (
	"math"

	"dukaanpos/backend/internal/domain"
	"dukaanpos/backend/internal/money"
)

// Policy is the deployment's pricing policy. PointValue is rupees
// redeemed per loyalty point, EarnRate is rupees spent per point
// earned. These are configuration, never literals in the engine.
type Policy struct {
	PointValue float64
	EarnRate   float64
}

// DefaultPolicy: 1 point per 100 rupees spent, 1 point worth 5 rupees.
func DefaultPolicy() Policy {
	return Policy{PointValue: 5, EarnRate: 100}
}

type Engine struct {
	policy Policy
}

func NewEngine(policy Policy) *Engine {
	if policy.PointValue <= 0 {
		policy.PointValue = DefaultPolicy().PointValue
	}
	if policy.EarnRate <= 0 {
		policy.EarnRate = DefaultPolicy().EarnRate
	}
	return &Engine{policy: policy}
}

func (e *Engine) Policy() Policy {
	return e.policy
}

// Compute turns a cart, a discount spec, a loyalty redemption request
// and an optional customer into a consistent, rounded, tax-split
// invoice. Malformed numeric input is coerced to zero and out-of-range
// discounts and point requests are clamped; the only way to get an
// error out of a checkout is at commit time, never here.
func (e *Engine) Compute(cart []domain.LineItem, discount domain.DiscountSpec, pointsRequested int64, customer *domain.Customer) domain.Invoice {
	items := normalizeCart(cart)

	inv := domain.Invoice{Items: items}
	for _, item := range items {
		gross := item.PriceAtSale * item.Quantity
		inv.DisplaySubtotal += gross
		inv.MRPTotal += item.MRP * item.Quantity

		// Each line reverse-splits at its own rate; there is no
		// blended cart rate. Lines priced exclusive of GST carry no
		// tax inside the charged amount, so they split at rate 0.
		rate := item.GSTRate
		if !item.IsGSTInclusive {
			rate = 0
		}
		base, tax := money.SplitInclusiveTax(gross, rate)
		inv.SubTotalForDB += base
		inv.GSTForDB += tax
	}
	inv.ItemSavings = inv.MRPTotal - inv.DisplaySubtotal
	if inv.ItemSavings < 0 {
		inv.ItemSavings = 0
	}

	rawDiscount := 0.0
	switch discount.Type {
	case domain.DiscountPercentage:
		rawDiscount = inv.DisplaySubtotal * money.Sanitize(discount.Value) / 100
	case domain.DiscountFixed:
		rawDiscount = money.Sanitize(discount.Value)
	}
	// Clamp so the discount can never drive the cart negative.
	if rawDiscount > inv.DisplaySubtotal {
		rawDiscount = inv.DisplaySubtotal
	}
	inv.AdditionalDiscountAmount = rawDiscount

	amountBeforeLoyalty := inv.DisplaySubtotal - inv.AdditionalDiscountAmount

	pointsApplied := pointsRequested
	if pointsApplied < 0 {
		pointsApplied = 0
	}
	maxByBalance := int64(0)
	if customer != nil {
		maxByBalance = customer.LoyaltyPoints
	}
	maxByAmount := int64(math.Floor(amountBeforeLoyalty / e.policy.PointValue))
	if pointsApplied > maxByBalance {
		pointsApplied = maxByBalance
	}
	if pointsApplied > maxByAmount {
		pointsApplied = maxByAmount
	}
	inv.LoyaltyPointsUsed = pointsApplied
	inv.LoyaltyDiscountAmount = float64(pointsApplied) * e.policy.PointValue

	preRoundTotal := amountBeforeLoyalty - inv.LoyaltyDiscountAmount
	inv.TotalAmount = money.RoundRupees(preRoundTotal)
	inv.RoundOffAmount = inv.TotalAmount - preRoundTotal

	if customer != nil {
		inv.LoyaltyPointsEarned = int64(math.Floor(inv.TotalAmount / e.policy.EarnRate))
	}

	inv.SubTotalForDB = money.Round2(inv.SubTotalForDB)
	inv.GSTForDB = money.Round2(inv.GSTForDB)
	inv.MRPTotal = money.Round2(inv.MRPTotal)
	inv.ItemSavings = money.Round2(inv.ItemSavings)
	inv.DisplaySubtotal = money.Round2(inv.DisplaySubtotal)
	inv.AdditionalDiscountAmount = money.Round2(inv.AdditionalDiscountAmount)
	inv.LoyaltyDiscountAmount = money.Round2(inv.LoyaltyDiscountAmount)
	inv.RoundOffAmount = money.Round2(inv.RoundOffAmount)

	return inv
}

// normalizeCart applies the boundary coercions: drop zero/negative
// quantity lines, zero out malformed numbers, force free items to a
// zero price. Insertion order is preserved for receipt reproduction.
func normalizeCart(cart []domain.LineItem) []domain.LineItem {
	items := make([]domain.LineItem, 0, len(cart))
	for _, item := range cart {
		item.Quantity = money.Sanitize(item.Quantity)
		if item.Quantity <= 0 {
			continue
		}
		if item.UnitType == domain.UnitPiece {
			item.Quantity = math.Floor(item.Quantity)
			if item.Quantity <= 0 {
				continue
			}
		}
		item.MRP = money.Sanitize(item.MRP)
		item.PriceAtSale = money.Sanitize(item.PriceAtSale)
		item.CostPriceAtSale = money.Sanitize(item.CostPriceAtSale)
		item.GSTRate = money.Sanitize(item.GSTRate)
		if item.GSTRate > 100 {
			item.GSTRate = 100
		}
		if item.IsFreeItem {
			item.PriceAtSale = 0
		}
		if item.PriceAtSale > item.MRP && item.MRP > 0 {
			item.PriceAtSale = item.MRP
		}
		items = append(items, item)
	}
	return items
}
