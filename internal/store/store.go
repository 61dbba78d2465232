package store

import (
	"context"
	"errors"
	"time"

	"dukaanpos/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrConflict          = errors.New("concurrent modification")
	ErrInvalidSale       = errors.New("invalid sale")
)

// AtomicBatch stages stock, loyalty-point and ledger writes and
// applies them all-or-nothing on Commit. Nothing is visible to other
// readers until Commit returns nil; any validation failure
// (insufficient stock, missing document, conflicting concurrent
// write) rolls back every staged write.
type AtomicBatch interface {
	// AdjustStock stages a stock delta for a product. Negative deltas
	// that would take stock below zero fail the whole batch with
	// ErrInsufficientStock at Commit.
	AdjustStock(productID string, delta float64)
	// AdjustPoints stages a single net loyalty-point delta for a
	// customer. The balance floors at zero.
	AdjustPoints(customerID string, delta int64)
	// PutSale stages the sale document write (insert or replace).
	PutSale(sale domain.Sale)
	Commit(ctx context.Context) error
}

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	SearchProducts(ctx context.Context, query string, limit int) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	IncreaseStock(ctx context.Context, adjustments []domain.StockAdjustment) error
	CreatePriceHistory(ctx context.Context, entry domain.ProductPriceHistory) error
	ListPriceHistory(ctx context.Context, productID string, limit int) ([]domain.ProductPriceHistory, error)

	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error)
	GetCustomerByPhone(ctx context.Context, phone string) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	ListCustomers(ctx context.Context, query string, limit int) ([]domain.Customer, error)

	GetSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, storeID string, from time.Time, to time.Time, customerID string, limit int) ([]domain.Sale, error)
	// NextBillSequence returns the next sequence number for the given
	// operational day, starting at 1 and unique per store/day.
	NextBillSequence(ctx context.Context, storeID string, day time.Time) (int, error)
	// Begin opens an atomic batch for checkout writes.
	Begin(ctx context.Context) (AtomicBatch, error)
	GetDailyReport(ctx context.Context, storeID string, from time.Time, to time.Time) (domain.DailyReport, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
