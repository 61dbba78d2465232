package memory

import (
	"context"
	"math"
	"time"

	"dukaanpos/backend/internal/domain"
	"dukaanpos/backend/internal/store"
)

// stockEpsilon absorbs float drift when weighing fractional
// quantities against available stock.
const stockEpsilon = 1e-9

// batch emulates the optimistic transactional batch of a hosted
// document store: writes are staged, document versions are captured at
// stage time, and Commit re-checks them under the write lock. A
// version moved by a concurrent writer surfaces ErrConflict; any
// failed validation leaves the store untouched.
type batch struct {
	s *Store

	stockDeltas   map[string]float64
	stockOrder    []string
	pointDeltas   map[string]int64
	pointOrder    []string
	sales         []domain.Sale
	productReads  map[string]int64
	customerReads map[string]int64
	committed     bool
}

func (s *Store) Begin(_ context.Context) (store.AtomicBatch, error) {
	return &batch{
		s:             s,
		stockDeltas:   make(map[string]float64),
		pointDeltas:   make(map[string]int64),
		productReads:  make(map[string]int64),
		customerReads: make(map[string]int64),
	}, nil
}

func (b *batch) AdjustStock(productID string, delta float64) {
	if _, seen := b.stockDeltas[productID]; !seen {
		b.stockOrder = append(b.stockOrder, productID)
		b.s.mu.RLock()
		b.productReads[productID] = b.s.productVersions[productID]
		b.s.mu.RUnlock()
	}
	b.stockDeltas[productID] += delta
}

func (b *batch) AdjustPoints(customerID string, delta int64) {
	if _, seen := b.pointDeltas[customerID]; !seen {
		b.pointOrder = append(b.pointOrder, customerID)
		b.s.mu.RLock()
		b.customerReads[customerID] = b.s.customerVersions[customerID]
		b.s.mu.RUnlock()
	}
	b.pointDeltas[customerID] += delta
}

func (b *batch) PutSale(sale domain.Sale) {
	b.sales = append(b.sales, *cloneSale(sale))
}

func (b *batch) Commit(_ context.Context) error {
	if b.committed {
		return store.ErrInvalidSale
	}

	b.s.mu.Lock()
	defer b.s.mu.Unlock()

	// Validate everything before touching anything.
	for _, productID := range b.stockOrder {
		product, exists := b.s.products[productID]
		if !exists {
			return store.ErrNotFound
		}
		if b.s.productVersions[productID] != b.productReads[productID] {
			return store.ErrConflict
		}
		if product.StockQuantity+b.stockDeltas[productID] < -stockEpsilon {
			return store.ErrInsufficientStock
		}
	}
	for _, customerID := range b.pointOrder {
		if _, exists := b.s.customers[customerID]; !exists {
			return store.ErrNotFound
		}
		if b.s.customerVersions[customerID] != b.customerReads[customerID] {
			return store.ErrConflict
		}
	}

	now := time.Now().UTC()
	for _, productID := range b.stockOrder {
		product := b.s.products[productID]
		product.StockQuantity = roundStock(product.StockQuantity + b.stockDeltas[productID])
		product.UpdatedAt = now
		b.s.products[productID] = product
		b.s.productVersions[productID]++
	}
	for _, customerID := range b.pointOrder {
		customer := b.s.customers[customerID]
		customer.LoyaltyPoints += b.pointDeltas[customerID]
		if customer.LoyaltyPoints < 0 {
			customer.LoyaltyPoints = 0
		}
		b.s.customers[customerID] = customer
		b.s.customerVersions[customerID]++
	}
	for _, sale := range b.sales {
		b.s.sales[sale.ID] = *cloneSale(sale)
	}

	b.committed = true
	return nil
}

// roundStock keeps stock at weight precision (3 decimals) and clamps
// the float residue around zero.
func roundStock(qty float64) float64 {
	qty = math.Round(qty*1000) / 1000
	if qty < 0 && qty > -stockEpsilon {
		return 0
	}
	return qty
}
