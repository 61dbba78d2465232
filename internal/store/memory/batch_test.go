package memory

import (
	"context"
	"errors"
	"testing"

	"dukaanpos/backend/internal/domain"
	"dukaanpos/backend/internal/store"
)

func seedBatchProduct(t *testing.T, s *Store, id string, stock float64) {
	t.Helper()
	_, err := s.CreateProduct(context.Background(), domain.Product{
		ID:       id,
		Name:     "Product " + id,
		Category: "grocery",
		MRP:      100,
		GSTRate:  5,
		UnitType: domain.UnitPiece,
	})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	if stock > 0 {
		if err := s.IncreaseStock(context.Background(), []domain.StockAdjustment{{ProductID: id, Qty: stock}}); err != nil {
			t.Fatalf("seed stock: %v", err)
		}
	}
}

func TestCommitConflictsOnConcurrentStockWrite(t *testing.T) {
	s := New()
	seedBatchProduct(t, s, "P1", 10)

	batch, err := s.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	batch.AdjustStock("P1", -3)

	// A restock lands between stage and commit, moving the product
	// version past the one the batch captured.
	if err := s.IncreaseStock(context.Background(), []domain.StockAdjustment{{ProductID: "P1", Qty: 1}}); err != nil {
		t.Fatalf("concurrent restock: %v", err)
	}

	if err := batch.Commit(context.Background()); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("commit = %v, want ErrConflict", err)
	}

	product, err := s.GetProductByID(context.Background(), "P1")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.StockQuantity != 11 {
		t.Fatalf("stock = %v, want 11 (batch delta must not apply)", product.StockQuantity)
	}
}

func TestCommitConflictsOnConcurrentCustomerWrite(t *testing.T) {
	s := New()
	customer, err := s.CreateCustomer(context.Background(), domain.Customer{
		ID:            "C1",
		Name:          "Ravi",
		Phone:         "9812345671",
		LoyaltyPoints: 20,
	})
	if err != nil {
		t.Fatalf("seed customer: %v", err)
	}

	batch, err := s.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	batch.AdjustPoints("C1", -10)

	customer.Name = "Ravi Kumar"
	if _, err := s.UpdateCustomer(context.Background(), *customer); err != nil {
		t.Fatalf("concurrent customer update: %v", err)
	}

	if err := batch.Commit(context.Background()); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("commit = %v, want ErrConflict", err)
	}

	fresh, err := s.GetCustomerByID(context.Background(), "C1")
	if err != nil {
		t.Fatalf("get customer: %v", err)
	}
	if fresh.LoyaltyPoints != 20 {
		t.Fatalf("points = %d, want 20 (batch delta must not apply)", fresh.LoyaltyPoints)
	}
}

func TestCommitConflictAppliesNothing(t *testing.T) {
	s := New()
	seedBatchProduct(t, s, "P1", 10)
	seedBatchProduct(t, s, "P2", 5)

	batch, err := s.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	batch.AdjustStock("P1", -2)
	batch.AdjustStock("P2", -1)
	batch.PutSale(domain.Sale{ID: "sale-x", BillNumber: "DPS-20260901-0001", StoreID: "main-store"})

	// Only P2 moves concurrently; the clean P1 delta and the sale
	// write must still be discarded with it.
	if err := s.IncreaseStock(context.Background(), []domain.StockAdjustment{{ProductID: "P2", Qty: 3}}); err != nil {
		t.Fatalf("concurrent restock: %v", err)
	}

	if err := batch.Commit(context.Background()); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("commit = %v, want ErrConflict", err)
	}

	p1, _ := s.GetProductByID(context.Background(), "P1")
	if p1.StockQuantity != 10 {
		t.Fatalf("P1 stock = %v, want 10", p1.StockQuantity)
	}
	p2, _ := s.GetProductByID(context.Background(), "P2")
	if p2.StockQuantity != 8 {
		t.Fatalf("P2 stock = %v, want 8", p2.StockQuantity)
	}
	if _, err := s.GetSaleByID(context.Background(), "sale-x"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("sale lookup = %v, want ErrNotFound", err)
	}
}

func TestCommitRejectsReuse(t *testing.T) {
	s := New()
	seedBatchProduct(t, s, "P1", 10)

	batch, err := s.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	batch.AdjustStock("P1", -1)
	if err := batch.Commit(context.Background()); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	if err := batch.Commit(context.Background()); !errors.Is(err, store.ErrInvalidSale) {
		t.Fatalf("second commit = %v, want ErrInvalidSale", err)
	}
}
