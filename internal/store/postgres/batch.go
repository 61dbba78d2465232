package postgres

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"dukaanpos/backend/internal/domain"
	"dukaanpos/backend/internal/store"
)

const saleColumns = `id, bill_number, store_id, customer_id, customer_name, customer_phone,
	payment_mode, amount_received, change_given, sold_by,
	display_subtotal, sub_total, gst_total, mrp_total, item_savings,
	additional_discount, loyalty_discount, loyalty_points_used, loyalty_points_earned,
	round_off, total_amount, created_at, edited_at`

func scanSaleRow(row interface{ Scan(...any) error }) (domain.Sale, error) {
	var sale domain.Sale
	var customerID, customerName, customerPhone sql.NullString
	var editedAt sql.NullTime
	err := row.Scan(
		&sale.ID, &sale.BillNumber, &sale.StoreID, &customerID, &customerName, &customerPhone,
		&sale.PaymentMode, &sale.AmountReceived, &sale.ChangeGiven, &sale.SoldBy,
		&sale.Invoice.DisplaySubtotal, &sale.Invoice.SubTotalForDB, &sale.Invoice.GSTForDB,
		&sale.Invoice.MRPTotal, &sale.Invoice.ItemSavings,
		&sale.Invoice.AdditionalDiscountAmount, &sale.Invoice.LoyaltyDiscountAmount,
		&sale.Invoice.LoyaltyPointsUsed, &sale.Invoice.LoyaltyPointsEarned,
		&sale.Invoice.RoundOffAmount, &sale.Invoice.TotalAmount,
		&sale.CreatedAt, &editedAt,
	)
	if err != nil {
		return sale, err
	}
	sale.CustomerID = customerID.String
	sale.CustomerName = customerName.String
	sale.CustomerPhone = customerPhone.String
	sale.CreatedAt = sale.CreatedAt.UTC()
	if editedAt.Valid {
		t := editedAt.Time.UTC()
		sale.EditedAt = &t
	}
	return sale, nil
}

func (s *Store) scanSale(ctx context.Context, row *sql.Row) (*domain.Sale, error) {
	sale, err := scanSaleRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	items, err := s.loadSaleItems(ctx, sale.ID)
	if err != nil {
		return nil, err
	}
	sale.Invoice.Items = items
	return &sale, nil
}

func (s *Store) loadSaleItems(ctx context.Context, saleID string) ([]domain.LineItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, product_name, quantity, mrp, price_at_sale, cost_price_at_sale,
			gst_rate, unit_type, is_gst_inclusive, is_free_item
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY position
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.LineItem, 0, 8)
	for rows.Next() {
		var item domain.LineItem
		if err := rows.Scan(&item.ProductID, &item.ProductName, &item.Quantity, &item.MRP,
			&item.PriceAtSale, &item.CostPriceAtSale, &item.GSTRate, &item.UnitType,
			&item.IsGSTInclusive, &item.IsFreeItem); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// batch stages checkout writes and applies them inside a single
// serializable transaction on Commit. Row locks are taken in sorted
// key order so two concurrent checkouts over the same products cannot
// deadlock; serialization failures surface as ErrConflict and the
// caller retries from fresh reads.
type batch struct {
	s *Store

	stockDeltas map[string]float64
	pointDeltas map[string]int64
	sales       []domain.Sale
	committed   bool
}

func (s *Store) Begin(_ context.Context) (store.AtomicBatch, error) {
	return &batch{
		s:           s,
		stockDeltas: make(map[string]float64),
		pointDeltas: make(map[string]int64),
	}, nil
}

func (b *batch) AdjustStock(productID string, delta float64) {
	b.stockDeltas[productID] += delta
}

func (b *batch) AdjustPoints(customerID string, delta int64) {
	b.pointDeltas[customerID] += delta
}

func (b *batch) PutSale(sale domain.Sale) {
	b.sales = append(b.sales, sale)
}

func (b *batch) Commit(ctx context.Context) error {
	if b.committed {
		return store.ErrInvalidSale
	}

	tx, err := b.s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, productID := range sortedKeys(b.stockDeltas) {
		delta := b.stockDeltas[productID]
		var stock float64
		err := tx.QueryRowContext(ctx, `
			SELECT stock_quantity
			FROM products
			WHERE id = $1
			FOR UPDATE
		`, productID).Scan(&stock)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			if isSerializationFailure(err) {
				return store.ErrConflict
			}
			return err
		}
		if stock+delta < -stockEpsilon {
			return store.ErrInsufficientStock
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE products
			SET stock_quantity = ROUND((stock_quantity + $1)::numeric, 3), updated_at = now()
			WHERE id = $2
		`, delta, productID)
		if err != nil {
			if isSerializationFailure(err) {
				return store.ErrConflict
			}
			return err
		}
	}

	for _, customerID := range sortedKeys(b.pointDeltas) {
		delta := b.pointDeltas[customerID]
		var points int64
		err := tx.QueryRowContext(ctx, `
			SELECT loyalty_points
			FROM customers
			WHERE id = $1
			FOR UPDATE
		`, customerID).Scan(&points)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			if isSerializationFailure(err) {
				return store.ErrConflict
			}
			return err
		}
		points += delta
		if points < 0 {
			points = 0
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE customers
			SET loyalty_points = $1
			WHERE id = $2
		`, points, customerID)
		if err != nil {
			if isSerializationFailure(err) {
				return store.ErrConflict
			}
			return err
		}
	}

	for _, sale := range b.sales {
		if err := upsertSale(ctx, tx, sale); err != nil {
			if isSerializationFailure(err) {
				return store.ErrConflict
			}
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		if isSerializationFailure(err) {
			return store.ErrConflict
		}
		return err
	}

	b.committed = true
	return nil
}

func upsertSale(ctx context.Context, tx *sql.Tx, sale domain.Sale) error {
	inv := sale.Invoice
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sales (`+saleColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
		ON CONFLICT (id) DO UPDATE SET
			customer_id = EXCLUDED.customer_id,
			customer_name = EXCLUDED.customer_name,
			customer_phone = EXCLUDED.customer_phone,
			payment_mode = EXCLUDED.payment_mode,
			amount_received = EXCLUDED.amount_received,
			change_given = EXCLUDED.change_given,
			sold_by = EXCLUDED.sold_by,
			display_subtotal = EXCLUDED.display_subtotal,
			sub_total = EXCLUDED.sub_total,
			gst_total = EXCLUDED.gst_total,
			mrp_total = EXCLUDED.mrp_total,
			item_savings = EXCLUDED.item_savings,
			additional_discount = EXCLUDED.additional_discount,
			loyalty_discount = EXCLUDED.loyalty_discount,
			loyalty_points_used = EXCLUDED.loyalty_points_used,
			loyalty_points_earned = EXCLUDED.loyalty_points_earned,
			round_off = EXCLUDED.round_off,
			total_amount = EXCLUDED.total_amount,
			edited_at = EXCLUDED.edited_at
	`, sale.ID, sale.BillNumber, sale.StoreID,
		nullIfEmpty(sale.CustomerID), nullIfEmpty(sale.CustomerName), nullIfEmpty(sale.CustomerPhone),
		sale.PaymentMode, sale.AmountReceived, sale.ChangeGiven, sale.SoldBy,
		inv.DisplaySubtotal, inv.SubTotalForDB, inv.GSTForDB, inv.MRPTotal, inv.ItemSavings,
		inv.AdditionalDiscountAmount, inv.LoyaltyDiscountAmount,
		inv.LoyaltyPointsUsed, inv.LoyaltyPointsEarned,
		inv.RoundOffAmount, inv.TotalAmount, sale.CreatedAt, nullTime(sale.EditedAt))
	if err != nil {
		return err
	}

	// Edits replace the line set wholesale.
	if _, err := tx.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, sale.ID); err != nil {
		return err
	}
	for i, item := range inv.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sale_items (
				sale_id, position, product_id, product_name, quantity, mrp,
				price_at_sale, cost_price_at_sale, gst_rate, unit_type,
				is_gst_inclusive, is_free_item
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		`, sale.ID, i, item.ProductID, item.ProductName, item.Quantity, item.MRP,
			item.PriceAtSale, item.CostPriceAtSale, item.GSTRate, item.UnitType,
			item.IsGSTInclusive, item.IsFreeItem)
		if err != nil {
			return err
		}
	}
	return nil
}

// stockEpsilon mirrors the in-memory store's tolerance for float
// drift on fractional weight quantities.
const stockEpsilon = 1e-9

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
