// Package checkout applies a computed invoice to the persisted world:
// stock decrements, loyalty-point balance moves and the sale ledger
// write happen as one atomic batch or not at all.
package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dukaanpos/backend/internal/billing"
	"dukaanpos/backend/internal/domain"
	"dukaanpos/backend/internal/store"
	"dukaanpos/backend/internal/xid"
)

type Coordinator struct {
	repo       store.Repository
	engine     *billing.Engine
	storeID    string
	billPrefix string
}

func New(repo store.Repository, engine *billing.Engine, storeID string, billPrefix string) *Coordinator {
	if billPrefix == "" {
		billPrefix = "BILL"
	}
	return &Coordinator{
		repo:       repo,
		engine:     engine,
		storeID:    storeID,
		billPrefix: billPrefix,
	}
}

// SubmitRequest carries everything a checkout needs: resolved line
// snapshots, the discount and loyalty inputs, the customer snapshot
// (nil for walk-ins), payment and operator identity. Original is set
// when re-billing an existing sale (edit mode).
type SubmitRequest struct {
	Cart            []domain.LineItem
	Discount        domain.DiscountSpec
	PointsRequested int64
	Customer        *domain.Customer
	PaymentMode     string
	AmountReceived  float64
	SoldBy          string
	Original        *domain.Sale
}

// Submit recomputes the invoice from scratch (client totals are never
// trusted), stages the net stock/point/ledger writes on one atomic
// batch and commits. On any failure nothing is applied and the caller
// must recompute from fresh reads before retrying; Submit itself
// never retries.
func (c *Coordinator) Submit(ctx context.Context, req SubmitRequest) (*domain.Sale, error) {
	invoice := c.engine.Compute(req.Cart, req.Discount, req.PointsRequested, req.Customer)
	if len(invoice.Items) == 0 {
		return nil, fmt.Errorf("%w: empty cart", store.ErrInvalidSale)
	}

	sale := domain.Sale{
		StoreID:     c.storeID,
		Invoice:     invoice,
		PaymentMode: req.PaymentMode,
		SoldBy:      strings.TrimSpace(req.SoldBy),
	}
	if req.Customer != nil {
		sale.CustomerID = req.Customer.ID
		sale.CustomerName = req.Customer.Name
		sale.CustomerPhone = req.Customer.Phone
	}

	switch req.PaymentMode {
	case domain.PaymentCash:
		if req.AmountReceived < invoice.TotalAmount {
			return nil, fmt.Errorf("%w: cash received %.2f below total %.2f", store.ErrInvalidSale, req.AmountReceived, invoice.TotalAmount)
		}
		sale.AmountReceived = req.AmountReceived
		sale.ChangeGiven = req.AmountReceived - invoice.TotalAmount
	case domain.PaymentCard, domain.PaymentUPI:
		sale.AmountReceived = invoice.TotalAmount
		sale.ChangeGiven = 0
	default:
		return nil, fmt.Errorf("%w: unsupported payment mode %q", store.ErrInvalidSale, req.PaymentMode)
	}

	now := time.Now().UTC()
	if req.Original != nil {
		// Re-billing keeps the sale's identity and bill number; only
		// the content and the edit timestamp change.
		sale.ID = req.Original.ID
		sale.BillNumber = req.Original.BillNumber
		sale.CreatedAt = req.Original.CreatedAt
		sale.EditedAt = &now
	} else {
		seq, err := c.repo.NextBillSequence(ctx, c.storeID, now)
		if err != nil {
			return nil, err
		}
		sale.ID = xid.New("sale")
		sale.BillNumber = fmt.Sprintf("%s-%s-%04d", c.billPrefix, now.Format("20060102"), seq)
		sale.CreatedAt = now
	}

	batch, err := c.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}

	for productID, delta := range stockDeltas(req.Original, invoice.Items) {
		if delta != 0 {
			batch.AdjustStock(productID, delta)
		}
	}
	for customerID, delta := range pointDeltas(req.Original, sale.CustomerID, invoice) {
		if delta != 0 {
			batch.AdjustPoints(customerID, delta)
		}
	}
	batch.PutSale(sale)

	if err := batch.Commit(ctx); err != nil {
		return nil, err
	}
	return &sale, nil
}

// stockDeltas nets the original sale's quantities (re-incremented)
// against the new items (decremented), keyed by product id. A product
// present in both carts is adjusted once by the quantity delta, never
// by two independent full writes, so no transient over/under count is
// observable. Free items consume stock like any other line.
func stockDeltas(original *domain.Sale, items []domain.LineItem) map[string]float64 {
	deltas := make(map[string]float64, len(items))
	if original != nil {
		for _, item := range original.Invoice.Items {
			deltas[item.ProductID] += item.Quantity
		}
	}
	for _, item := range items {
		deltas[item.ProductID] -= item.Quantity
	}
	return deltas
}

// pointDeltas computes the net loyalty adjustment per customer: one
// write of (earned - used), with the original sale's effect reversed
// first in edit mode. Editing a sale onto a different customer
// adjusts both balances.
func pointDeltas(original *domain.Sale, customerID string, invoice domain.Invoice) map[string]int64 {
	deltas := make(map[string]int64, 2)
	if original != nil && original.CustomerID != "" {
		deltas[original.CustomerID] -= original.Invoice.LoyaltyPointsEarned - original.Invoice.LoyaltyPointsUsed
	}
	if customerID != "" {
		deltas[customerID] += invoice.LoyaltyPointsEarned - invoice.LoyaltyPointsUsed
	}
	return deltas
}
