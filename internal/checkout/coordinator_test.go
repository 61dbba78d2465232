package checkout

import (
	"context"
	"errors"
	"strings"
	"testing"

	"dukaanpos/backend/internal/billing"
	"dukaanpos/backend/internal/domain"
	"dukaanpos/backend/internal/store"
	"dukaanpos/backend/internal/store/memory"
)

func newTestCoordinator() (*Coordinator, *memory.Store) {
	repo := memory.New()
	engine := billing.NewEngine(billing.Policy{PointValue: 5, EarnRate: 100})
	return New(repo, engine, "main-store", "DPS"), repo
}

func seedProduct(t *testing.T, repo *memory.Store, id string, price float64, stock float64) {
	t.Helper()
	_, err := repo.CreateProduct(context.Background(), domain.Product{
		ID:       id,
		Name:     "Product " + id,
		Category: "grocery",
		MRP:      price,
		GSTRate:  5,
		UnitType: domain.UnitPiece,
		Active:   true,
	})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	if stock > 0 {
		if err := repo.IncreaseStock(context.Background(), []domain.StockAdjustment{{ProductID: id, Qty: stock}}); err != nil {
			t.Fatalf("seed stock: %v", err)
		}
	}
}

func seedCustomer(t *testing.T, repo *memory.Store, id string, points int64) *domain.Customer {
	t.Helper()
	customer, err := repo.CreateCustomer(context.Background(), domain.Customer{
		ID:            id,
		Name:          "Customer " + id,
		Phone:         "98" + id,
		LoyaltyPoints: points,
	})
	if err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	return customer
}

func line(productID string, price float64, qty float64) domain.LineItem {
	return domain.LineItem{
		ProductID:      productID,
		ProductName:    "Product " + productID,
		Quantity:       qty,
		MRP:            price,
		PriceAtSale:    price,
		GSTRate:        5,
		UnitType:       domain.UnitPiece,
		IsGSTInclusive: true,
	}
}

func TestSubmitDecrementsStock(t *testing.T) {
	coord, repo := newTestCoordinator()
	seedProduct(t, repo, "P1", 100, 10)

	sale, err := coord.Submit(context.Background(), SubmitRequest{
		Cart:           []domain.LineItem{line("P1", 100, 3)},
		PaymentMode:    domain.PaymentCash,
		AmountReceived: 300,
		SoldBy:         "asha",
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if sale.Invoice.TotalAmount != 300 {
		t.Fatalf("total = %v, want 300", sale.Invoice.TotalAmount)
	}

	product, err := repo.GetProductByID(context.Background(), "P1")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.StockQuantity != 7 {
		t.Fatalf("stock = %v, want 7", product.StockQuantity)
	}
}

func TestSubmitFailureLeavesStockUntouched(t *testing.T) {
	coord, repo := newTestCoordinator()
	seedProduct(t, repo, "P1", 100, 10)
	seedProduct(t, repo, "P2", 50, 1)

	// P1 alone would succeed; P2 overdraws, so the whole batch must
	// roll back and P1's stock stays at 10.
	_, err := coord.Submit(context.Background(), SubmitRequest{
		Cart: []domain.LineItem{
			line("P1", 100, 3),
			line("P2", 50, 5),
		},
		PaymentMode:    domain.PaymentCash,
		AmountReceived: 1000,
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	product, _ := repo.GetProductByID(context.Background(), "P1")
	if product.StockQuantity != 10 {
		t.Fatalf("stock = %v, want 10 after rollback", product.StockQuantity)
	}
}

func TestSubmitUnknownProductFailsAtomically(t *testing.T) {
	coord, repo := newTestCoordinator()
	seedProduct(t, repo, "P1", 100, 10)

	_, err := coord.Submit(context.Background(), SubmitRequest{
		Cart: []domain.LineItem{
			line("P1", 100, 1),
			line("P-missing", 40, 1),
		},
		PaymentMode:    domain.PaymentCash,
		AmountReceived: 200,
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	product, _ := repo.GetProductByID(context.Background(), "P1")
	if product.StockQuantity != 10 {
		t.Fatalf("stock = %v, want 10 after rollback", product.StockQuantity)
	}
}

func TestEditModeAppliesNetDelta(t *testing.T) {
	coord, repo := newTestCoordinator()
	seedProduct(t, repo, "P1", 100, 10)

	original, err := coord.Submit(context.Background(), SubmitRequest{
		Cart:           []domain.LineItem{line("P1", 100, 3)},
		PaymentMode:    domain.PaymentCash,
		AmountReceived: 300,
	})
	if err != nil {
		t.Fatalf("original submit: %v", err)
	}
	product, _ := repo.GetProductByID(context.Background(), "P1")
	if product.StockQuantity != 7 {
		t.Fatalf("stock = %v, want 7 before edit", product.StockQuantity)
	}

	edited, err := coord.Submit(context.Background(), SubmitRequest{
		Cart:           []domain.LineItem{line("P1", 100, 5)},
		PaymentMode:    domain.PaymentCash,
		AmountReceived: 500,
		Original:       original,
	})
	if err != nil {
		t.Fatalf("edit submit: %v", err)
	}

	product, _ = repo.GetProductByID(context.Background(), "P1")
	if product.StockQuantity != 5 {
		t.Fatalf("stock = %v, want 5 after net -2 edit", product.StockQuantity)
	}
	if edited.BillNumber != original.BillNumber {
		t.Fatalf("edit changed bill number: %s -> %s", original.BillNumber, edited.BillNumber)
	}
	if edited.ID != original.ID {
		t.Fatalf("edit changed sale id")
	}
	if edited.EditedAt == nil {
		t.Fatalf("edit must stamp EditedAt")
	}

	persisted, err := repo.GetSaleByID(context.Background(), original.ID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if persisted.Invoice.Items[0].Quantity != 5 {
		t.Fatalf("persisted quantity = %v, want 5", persisted.Invoice.Items[0].Quantity)
	}
}

func TestEditModeReleasesStockWhenQuantityDrops(t *testing.T) {
	coord, repo := newTestCoordinator()
	seedProduct(t, repo, "P1", 100, 4)

	original, err := coord.Submit(context.Background(), SubmitRequest{
		Cart:           []domain.LineItem{line("P1", 100, 4)},
		PaymentMode:    domain.PaymentCash,
		AmountReceived: 400,
	})
	if err != nil {
		t.Fatalf("original submit: %v", err)
	}

	// Stock is now 0. Dropping to qty 1 must succeed because the
	// reversal nets +3.
	_, err = coord.Submit(context.Background(), SubmitRequest{
		Cart:           []domain.LineItem{line("P1", 100, 1)},
		PaymentMode:    domain.PaymentCash,
		AmountReceived: 100,
		Original:       original,
	})
	if err != nil {
		t.Fatalf("edit submit: %v", err)
	}
	product, _ := repo.GetProductByID(context.Background(), "P1")
	if product.StockQuantity != 3 {
		t.Fatalf("stock = %v, want 3", product.StockQuantity)
	}
}

func TestSubmitAdjustsLoyaltyPointsNet(t *testing.T) {
	coord, repo := newTestCoordinator()
	seedProduct(t, repo, "P1", 100, 50)
	customer := seedCustomer(t, repo, "C1", 20)

	// 500 cart, redeem 10 points (50 off) -> total 450, earns 4.
	sale, err := coord.Submit(context.Background(), SubmitRequest{
		Cart:            []domain.LineItem{line("P1", 100, 5)},
		PointsRequested: 10,
		Customer:        customer,
		PaymentMode:     domain.PaymentUPI,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sale.Invoice.LoyaltyPointsUsed != 10 || sale.Invoice.LoyaltyPointsEarned != 4 {
		t.Fatalf("points used=%d earned=%d, want 10/4", sale.Invoice.LoyaltyPointsUsed, sale.Invoice.LoyaltyPointsEarned)
	}

	fresh, _ := repo.GetCustomerByID(context.Background(), "C1")
	if fresh.LoyaltyPoints != 14 {
		t.Fatalf("balance = %d, want 20 - 10 + 4 = 14", fresh.LoyaltyPoints)
	}
}

func TestSubmitCashChangeAndValidation(t *testing.T) {
	coord, repo := newTestCoordinator()
	seedProduct(t, repo, "P1", 180, 10)

	_, err := coord.Submit(context.Background(), SubmitRequest{
		Cart:           []domain.LineItem{line("P1", 180, 1)},
		PaymentMode:    domain.PaymentCash,
		AmountReceived: 100,
	})
	if !errors.Is(err, store.ErrInvalidSale) {
		t.Fatalf("expected ErrInvalidSale for short cash, got %v", err)
	}

	sale, err := coord.Submit(context.Background(), SubmitRequest{
		Cart:           []domain.LineItem{line("P1", 180, 1)},
		PaymentMode:    domain.PaymentCash,
		AmountReceived: 200,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sale.ChangeGiven != 20 {
		t.Fatalf("change = %v, want 20", sale.ChangeGiven)
	}
}

func TestSubmitRejectsEmptyCartAndBadPayment(t *testing.T) {
	coord, repo := newTestCoordinator()
	seedProduct(t, repo, "P1", 100, 10)

	if _, err := coord.Submit(context.Background(), SubmitRequest{PaymentMode: domain.PaymentCash}); !errors.Is(err, store.ErrInvalidSale) {
		t.Fatalf("expected ErrInvalidSale for empty cart, got %v", err)
	}

	_, err := coord.Submit(context.Background(), SubmitRequest{
		Cart:        []domain.LineItem{line("P1", 100, 1)},
		PaymentMode: "Cheque",
	})
	if !errors.Is(err, store.ErrInvalidSale) {
		t.Fatalf("expected ErrInvalidSale for payment mode, got %v", err)
	}
}

func TestBillNumbersSequencePerDay(t *testing.T) {
	coord, repo := newTestCoordinator()
	seedProduct(t, repo, "P1", 10, 100)

	var bills []string
	for i := 0; i < 3; i++ {
		sale, err := coord.Submit(context.Background(), SubmitRequest{
			Cart:           []domain.LineItem{line("P1", 10, 1)},
			PaymentMode:    domain.PaymentCash,
			AmountReceived: 10,
		})
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		bills = append(bills, sale.BillNumber)
	}

	for i, bill := range bills {
		if !strings.HasPrefix(bill, "DPS-") {
			t.Fatalf("bill %q missing prefix", bill)
		}
		wantSuffix := []string{"-0001", "-0002", "-0003"}[i]
		if !strings.HasSuffix(bill, wantSuffix) {
			t.Fatalf("bill %d = %q, want suffix %s", i, bill, wantSuffix)
		}
	}
}

func TestFreeItemsConsumeStock(t *testing.T) {
	coord, repo := newTestCoordinator()
	seedProduct(t, repo, "P1", 100, 10)
	seedProduct(t, repo, "PFREE", 40, 5)

	freeLine := line("PFREE", 40, 1)
	freeLine.IsFreeItem = true

	sale, err := coord.Submit(context.Background(), SubmitRequest{
		Cart:           []domain.LineItem{line("P1", 100, 1), freeLine},
		PaymentMode:    domain.PaymentCash,
		AmountReceived: 100,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sale.Invoice.TotalAmount != 100 {
		t.Fatalf("total = %v, want 100", sale.Invoice.TotalAmount)
	}

	free, _ := repo.GetProductByID(context.Background(), "PFREE")
	if free.StockQuantity != 4 {
		t.Fatalf("free item stock = %v, want 4", free.StockQuantity)
	}
}

func TestEditModeNetsLoyaltyPoints(t *testing.T) {
	coord, repo := newTestCoordinator()
	seedProduct(t, repo, "P1", 100, 50)
	customer := seedCustomer(t, repo, "C1", 20)

	// 500 cart, redeem 10 points (50 off) -> total 450, earns 4:
	// balance 20 - 10 + 4 = 14.
	original, err := coord.Submit(context.Background(), SubmitRequest{
		Cart:            []domain.LineItem{line("P1", 100, 5)},
		PointsRequested: 10,
		Customer:        customer,
		PaymentMode:     domain.PaymentUPI,
	})
	if err != nil {
		t.Fatalf("original submit: %v", err)
	}
	fresh, _ := repo.GetCustomerByID(context.Background(), "C1")
	if fresh.LoyaltyPoints != 14 {
		t.Fatalf("balance = %d, want 14 before edit", fresh.LoyaltyPoints)
	}

	// Re-bill as a 200 cart with no redemption: reverse the original
	// effect (+10 - 4) and apply the new earn (+2) as one net write,
	// so 14 + 6 + 2 = 22.
	edited, err := coord.Submit(context.Background(), SubmitRequest{
		Cart:        []domain.LineItem{line("P1", 100, 2)},
		Customer:    fresh,
		PaymentMode: domain.PaymentUPI,
		Original:    original,
	})
	if err != nil {
		t.Fatalf("edit submit: %v", err)
	}
	if edited.Invoice.LoyaltyPointsUsed != 0 || edited.Invoice.LoyaltyPointsEarned != 2 {
		t.Fatalf("edited points used=%d earned=%d, want 0/2", edited.Invoice.LoyaltyPointsUsed, edited.Invoice.LoyaltyPointsEarned)
	}

	fresh, _ = repo.GetCustomerByID(context.Background(), "C1")
	if fresh.LoyaltyPoints != 22 {
		t.Fatalf("balance = %d, want 14 + (10 - 4) + 2 = 22", fresh.LoyaltyPoints)
	}

	persisted, err := repo.GetSaleByID(context.Background(), original.ID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if persisted.Invoice.LoyaltyPointsEarned != 2 || persisted.Invoice.LoyaltyPointsUsed != 0 {
		t.Fatalf("persisted points earned=%d used=%d, want 2/0", persisted.Invoice.LoyaltyPointsEarned, persisted.Invoice.LoyaltyPointsUsed)
	}
}

func TestEditModeMovesPointsBetweenCustomers(t *testing.T) {
	coord, repo := newTestCoordinator()
	seedProduct(t, repo, "P1", 100, 50)
	first := seedCustomer(t, repo, "C1", 20)
	seedCustomer(t, repo, "C2", 0)

	// 300 cart earns 3 for C1: balance 23.
	original, err := coord.Submit(context.Background(), SubmitRequest{
		Cart:        []domain.LineItem{line("P1", 100, 3)},
		Customer:    first,
		PaymentMode: domain.PaymentCard,
	})
	if err != nil {
		t.Fatalf("original submit: %v", err)
	}

	// Re-bill the same cart onto C2: C1 gives the earn back, C2
	// receives it.
	second, _ := repo.GetCustomerByID(context.Background(), "C2")
	if _, err := coord.Submit(context.Background(), SubmitRequest{
		Cart:        []domain.LineItem{line("P1", 100, 3)},
		Customer:    second,
		PaymentMode: domain.PaymentCard,
		Original:    original,
	}); err != nil {
		t.Fatalf("edit submit: %v", err)
	}

	freshFirst, _ := repo.GetCustomerByID(context.Background(), "C1")
	if freshFirst.LoyaltyPoints != 20 {
		t.Fatalf("first balance = %d, want 20 after reversal", freshFirst.LoyaltyPoints)
	}
	freshSecond, _ := repo.GetCustomerByID(context.Background(), "C2")
	if freshSecond.LoyaltyPoints != 3 {
		t.Fatalf("second balance = %d, want 3", freshSecond.LoyaltyPoints)
	}
}
