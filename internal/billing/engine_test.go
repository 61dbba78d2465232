package billing

import (
	"math"
	"reflect"
	"testing"

	"dukaanpos/backend/internal/domain"
)

func testEngine() *Engine {
	return NewEngine(Policy{PointValue: 5, EarnRate: 100})
}

func pieceLine(price float64, qty float64, gstRate float64) domain.LineItem {
	return domain.LineItem{
		ProductID:      "prod-1",
		ProductName:    "Test Item",
		Quantity:       qty,
		MRP:            price,
		PriceAtSale:    price,
		GSTRate:        gstRate,
		UnitType:       domain.UnitPiece,
		IsGSTInclusive: true,
	}
}

func TestComputeReferenceExample(t *testing.T) {
	// 2 x 100 at 18% inclusive, no discount, no loyalty.
	inv := testEngine().Compute([]domain.LineItem{pieceLine(100, 2, 18)}, domain.DiscountSpec{}, 0, nil)

	if inv.DisplaySubtotal != 200 {
		t.Fatalf("display subtotal = %v, want 200", inv.DisplaySubtotal)
	}
	if inv.SubTotalForDB != 169.49 {
		t.Fatalf("db subtotal = %v, want 169.49", inv.SubTotalForDB)
	}
	if inv.GSTForDB != 30.51 {
		t.Fatalf("gst = %v, want 30.51", inv.GSTForDB)
	}
	if inv.TotalAmount != 200 {
		t.Fatalf("total = %v, want 200", inv.TotalAmount)
	}
	if inv.RoundOffAmount != 0 {
		t.Fatalf("round off = %v, want 0", inv.RoundOffAmount)
	}
}

func TestComputeDiscountAndLoyaltyExample(t *testing.T) {
	// Subtotal 500, 10% discount, 20-point balance, request 10 points.
	customer := &domain.Customer{ID: "cust-1", LoyaltyPoints: 20}
	inv := testEngine().Compute(
		[]domain.LineItem{pieceLine(100, 5, 0)},
		domain.DiscountSpec{Type: domain.DiscountPercentage, Value: 10},
		10,
		customer,
	)

	if inv.AdditionalDiscountAmount != 50 {
		t.Fatalf("discount = %v, want 50", inv.AdditionalDiscountAmount)
	}
	if inv.LoyaltyPointsUsed != 10 {
		t.Fatalf("points used = %d, want 10", inv.LoyaltyPointsUsed)
	}
	if inv.LoyaltyDiscountAmount != 50 {
		t.Fatalf("loyalty discount = %v, want 50", inv.LoyaltyDiscountAmount)
	}
	if inv.TotalAmount != 400 {
		t.Fatalf("total = %v, want 400", inv.TotalAmount)
	}
	if inv.RoundOffAmount != 0 {
		t.Fatalf("round off = %v, want 0", inv.RoundOffAmount)
	}
	if inv.LoyaltyPointsEarned != 4 {
		t.Fatalf("points earned = %d, want 4", inv.LoyaltyPointsEarned)
	}
}

func TestComputeIsIdempotent(t *testing.T) {
	cart := []domain.LineItem{
		pieceLine(99.5, 3, 18),
		pieceLine(45, 1, 5),
	}
	discount := domain.DiscountSpec{Type: domain.DiscountFixed, Value: 30}
	customer := &domain.Customer{ID: "cust-1", LoyaltyPoints: 12}

	first := testEngine().Compute(cart, discount, 8, customer)
	second := testEngine().Compute(cart, discount, 8, customer)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("identical inputs produced different invoices:\n%+v\n%+v", first, second)
	}
}

func TestComputeEmptyCart(t *testing.T) {
	inv := testEngine().Compute(nil, domain.DiscountSpec{Type: domain.DiscountFixed, Value: 100}, 50, &domain.Customer{LoyaltyPoints: 100})

	if inv.TotalAmount != 0 || inv.DisplaySubtotal != 0 || inv.GSTForDB != 0 {
		t.Fatalf("empty cart must produce zero invoice, got %+v", inv)
	}
	if inv.AdditionalDiscountAmount != 0 || inv.LoyaltyDiscountAmount != 0 {
		t.Fatalf("empty cart must not accrue discounts, got %+v", inv)
	}
}

func TestDiscountClampedToSubtotal(t *testing.T) {
	inv := testEngine().Compute(
		[]domain.LineItem{pieceLine(50, 2, 0)},
		domain.DiscountSpec{Type: domain.DiscountFixed, Value: 1000},
		0,
		nil,
	)
	if inv.AdditionalDiscountAmount != 100 {
		t.Fatalf("discount = %v, want clamp to subtotal 100", inv.AdditionalDiscountAmount)
	}
	if inv.TotalAmount != 0 {
		t.Fatalf("total = %v, want 0", inv.TotalAmount)
	}
	if inv.TotalAmount < 0 {
		t.Fatalf("total must never go negative")
	}
}

func TestLoyaltyCappedByBalanceAndPayable(t *testing.T) {
	customer := &domain.Customer{ID: "cust-1", LoyaltyPoints: 7}

	// Request far beyond balance.
	inv := testEngine().Compute([]domain.LineItem{pieceLine(100, 5, 0)}, domain.DiscountSpec{}, 500, customer)
	if inv.LoyaltyPointsUsed != 7 {
		t.Fatalf("points used = %d, want balance cap 7", inv.LoyaltyPointsUsed)
	}

	// Payable amount caps harder than balance: 12 rupees payable at
	// 5 rupees/point allows only 2 points.
	rich := &domain.Customer{ID: "cust-2", LoyaltyPoints: 1000}
	inv = testEngine().Compute([]domain.LineItem{pieceLine(12, 1, 0)}, domain.DiscountSpec{}, 1000, rich)
	if inv.LoyaltyPointsUsed != 2 {
		t.Fatalf("points used = %d, want payable cap 2", inv.LoyaltyPointsUsed)
	}
	if inv.LoyaltyDiscountAmount > inv.DisplaySubtotal {
		t.Fatalf("loyalty discount %v exceeds payable %v", inv.LoyaltyDiscountAmount, inv.DisplaySubtotal)
	}
	if inv.TotalAmount < 0 {
		t.Fatalf("total went negative: %v", inv.TotalAmount)
	}
}

func TestNoCustomerMeansNoLoyalty(t *testing.T) {
	inv := testEngine().Compute([]domain.LineItem{pieceLine(500, 1, 0)}, domain.DiscountSpec{}, 50, nil)
	if inv.LoyaltyPointsUsed != 0 || inv.LoyaltyDiscountAmount != 0 {
		t.Fatalf("loyalty applied without customer: %+v", inv)
	}
	if inv.LoyaltyPointsEarned != 0 {
		t.Fatalf("points earned without customer: %d", inv.LoyaltyPointsEarned)
	}
}

func TestRoundingConsistency(t *testing.T) {
	carts := [][]domain.LineItem{
		{pieceLine(99.99, 1, 18)},
		{pieceLine(33.33, 3, 12), pieceLine(7.5, 2, 5)},
		{pieceLine(249.49, 1, 28), pieceLine(10.01, 4, 0)},
	}
	for _, cart := range carts {
		inv := testEngine().Compute(cart, domain.DiscountSpec{Type: domain.DiscountPercentage, Value: 7.5}, 0, nil)
		preRound := inv.DisplaySubtotal - inv.AdditionalDiscountAmount - inv.LoyaltyDiscountAmount
		if diff := math.Abs(inv.TotalAmount - inv.RoundOffAmount - preRound); diff > 0.011 {
			t.Fatalf("rounding identity broken: total %v - roundoff %v != preround %v (diff %v)", inv.TotalAmount, inv.RoundOffAmount, preRound, diff)
		}
		if inv.TotalAmount != math.Trunc(inv.TotalAmount) {
			t.Fatalf("total %v is not a whole rupee amount", inv.TotalAmount)
		}
		if math.Abs(inv.RoundOffAmount) > 0.5 {
			t.Fatalf("round off %v outside half-rupee band", inv.RoundOffAmount)
		}
	}
}

func TestPerLineRatesAreNotBlended(t *testing.T) {
	inv := testEngine().Compute([]domain.LineItem{
		pieceLine(118, 1, 18),
		pieceLine(105, 1, 5),
	}, domain.DiscountSpec{}, 0, nil)

	// 118 at 18% -> 18 tax; 105 at 5% -> 5 tax.
	if inv.GSTForDB != 23 {
		t.Fatalf("gst = %v, want 23 from per-line splits", inv.GSTForDB)
	}
	if inv.SubTotalForDB != 200 {
		t.Fatalf("db subtotal = %v, want 200", inv.SubTotalForDB)
	}
}

func TestFreeItemContributesNothingButKeepsSavings(t *testing.T) {
	free := domain.LineItem{
		ProductID:      "prod-free",
		ProductName:    "Promo Pack",
		Quantity:       1,
		MRP:            40,
		PriceAtSale:    40, // engine must force this to 0
		GSTRate:        18,
		UnitType:       domain.UnitPiece,
		IsGSTInclusive: true,
		IsFreeItem:     true,
	}
	inv := testEngine().Compute([]domain.LineItem{pieceLine(100, 1, 18), free}, domain.DiscountSpec{}, 0, nil)

	if inv.DisplaySubtotal != 100 {
		t.Fatalf("display subtotal = %v, want 100 (free item contributes 0)", inv.DisplaySubtotal)
	}
	if len(inv.Items) != 2 {
		t.Fatalf("free item must stay on the invoice, got %d lines", len(inv.Items))
	}
	if inv.Items[1].PriceAtSale != 0 {
		t.Fatalf("free item price = %v, want 0", inv.Items[1].PriceAtSale)
	}
	if inv.ItemSavings != 40 {
		t.Fatalf("item savings = %v, want 40", inv.ItemSavings)
	}
}

func TestZeroQuantityLinesAreDropped(t *testing.T) {
	inv := testEngine().Compute([]domain.LineItem{
		pieceLine(100, 0, 18),
		pieceLine(50, -3, 18),
		pieceLine(50, 1, 18),
	}, domain.DiscountSpec{}, 0, nil)

	if len(inv.Items) != 1 {
		t.Fatalf("expected 1 surviving line, got %d", len(inv.Items))
	}
	if inv.DisplaySubtotal != 50 {
		t.Fatalf("display subtotal = %v, want 50", inv.DisplaySubtotal)
	}
}

func TestWeightItemsKeepFractionalQuantity(t *testing.T) {
	line := domain.LineItem{
		ProductID:      "prod-w",
		ProductName:    "Loose Rice",
		Quantity:       1.25,
		MRP:            80,
		PriceAtSale:    80,
		GSTRate:        5,
		UnitType:       domain.UnitWeight,
		IsGSTInclusive: true,
	}
	inv := testEngine().Compute([]domain.LineItem{line}, domain.DiscountSpec{}, 0, nil)
	if inv.DisplaySubtotal != 100 {
		t.Fatalf("display subtotal = %v, want 100", inv.DisplaySubtotal)
	}
	if inv.Items[0].Quantity != 1.25 {
		t.Fatalf("weight quantity must stay fractional, got %v", inv.Items[0].Quantity)
	}
}

func TestMalformedNumbersCoercedToZero(t *testing.T) {
	line := pieceLine(100, 1, 18)
	line.MRP = math.NaN()

	inv := testEngine().Compute([]domain.LineItem{line}, domain.DiscountSpec{Type: domain.DiscountFixed, Value: math.Inf(1)}, -5, nil)
	if inv.AdditionalDiscountAmount != 0 {
		t.Fatalf("infinite discount must coerce to 0, got %v", inv.AdditionalDiscountAmount)
	}
	if inv.LoyaltyPointsUsed != 0 {
		t.Fatalf("negative point request must clamp to 0")
	}
	if inv.TotalAmount < 0 {
		t.Fatalf("total went negative: %v", inv.TotalAmount)
	}
}
