package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"dukaanpos/backend/internal/domain"
	"dukaanpos/backend/internal/money"
	"dukaanpos/backend/internal/store"
	"dukaanpos/backend/internal/xid"
)

type Store struct {
	mu               sync.RWMutex
	products         map[string]domain.Product
	productVersions  map[string]int64
	customers        map[string]domain.Customer
	customerVersions map[string]int64
	customersByPhone map[string]string
	sales            map[string]domain.Sale
	priceHistory     map[string][]domain.ProductPriceHistory
	auditLogs        []domain.AuditLog
	billSequences    map[string]int
	usersByUsername  map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		products:         make(map[string]domain.Product),
		productVersions:  make(map[string]int64),
		customers:        make(map[string]domain.Customer),
		customerVersions: make(map[string]int64),
		customersByPhone: make(map[string]string),
		sales:            make(map[string]domain.Sale),
		priceHistory:     make(map[string][]domain.ProductPriceHistory),
		auditLogs:        make([]domain.AuditLog, 0, 128),
		billSequences:    make(map[string]int),
		usersByUsername:  make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the initial in-memory user accounts for dev/demo
// mode. Credentials come from SEED_ADMIN_PASSWORD and
// SEED_CASHIER_PASSWORD; hardcoded dev defaults otherwise, with a
// warning. Production deployments use PostgreSQL (DATABASE_URL set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	products := []domain.Product{
		{ID: "prod-atta-01", Barcode: "8901063001234", Name: "Aashirvaad Atta 5kg", Category: "grocery", MRP: 340, SellingPrice: 325, CostPrice: 290, GSTRate: 5, UnitType: domain.UnitPiece, StockQuantity: 60},
		{ID: "prod-rice-01", Barcode: "", Name: "Loose Basmati Rice", Category: "grocery", MRP: 110, CostPrice: 88, GSTRate: 5, UnitType: domain.UnitWeight, UnitValue: "kg", StockQuantity: 250},
		{ID: "prod-sugar-01", Barcode: "", Name: "Loose Sugar", Category: "grocery", MRP: 45, CostPrice: 39, GSTRate: 5, UnitType: domain.UnitWeight, UnitValue: "kg", StockQuantity: 180},
		{ID: "prod-oil-01", Barcode: "8901030701122", Name: "Fortune Oil 1L", Category: "grocery", MRP: 165, SellingPrice: 152, CostPrice: 138, GSTRate: 5, UnitType: domain.UnitPiece, StockQuantity: 90},
		{ID: "prod-biscuit-01", Barcode: "8901063092012", Name: "Parle-G 250g", Category: "snacks", MRP: 25, CostPrice: 20, GSTRate: 18, UnitType: domain.UnitPiece, StockQuantity: 200},
		{ID: "prod-soap-01", Barcode: "8901030343353", Name: "Lifebuoy Soap", Category: "household", MRP: 35, SellingPrice: 32, CostPrice: 26, GSTRate: 18, UnitType: domain.UnitPiece, StockQuantity: 140},
		{ID: "prod-tea-01", Barcode: "8901063151529", Name: "Tata Tea 500g", Category: "beverage", MRP: 290, SellingPrice: 275, CostPrice: 244, GSTRate: 5, UnitType: domain.UnitPiece, StockQuantity: 75},
		{ID: "prod-milk-01", Barcode: "8904031002331", Name: "Amul Milk 1L", Category: "dairy", MRP: 66, CostPrice: 60, GSTRate: 0, UnitType: domain.UnitPiece, StockQuantity: 110},
	}
	for _, p := range products {
		p.Active = true
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
	}

	customers := []domain.Customer{
		{ID: "cust-ravi-01", Name: "Ravi Kumar", Phone: "9812345670", Address: "14 Gandhi Nagar", LoyaltyPoints: 20, CreatedAt: now},
		{ID: "cust-meena-01", Name: "Meena Sharma", Phone: "9812345671", LoyaltyPoints: 4, CreatedAt: now},
	}
	for _, c := range customers {
		s.customers[c.ID] = c
		s.customersByPhone[c.Phone] = c.ID
	}

	s.usersByUsername = seedUsers()
	return s
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})

	return products, nil
}

func (s *Store) SearchProducts(_ context.Context, query string, limit int) ([]domain.Product, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if limit < 1 {
		limit = 20
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]domain.Product, 0, limit)
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		if query == "" || strings.Contains(strings.ToLower(p.Name), query) || p.Barcode == query {
			matches = append(matches, p)
		}
	}
	slices.SortFunc(matches, func(a, b domain.Product) int {
		return cmpString(a.Name, b.Name)
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" || product.Name == "" || product.MRP <= 0 {
		return nil, store.ErrInvalidSale
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrInvalidSale
	}

	product.Active = true
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := product
	return &copied, nil
}

func (s *Store) GetProductByBarcode(_ context.Context, barcode string) (*domain.Product, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return nil, store.ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.products {
		if p.Active && p.Barcode == barcode {
			copied := p
			return &copied, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	// Stock changes only through IncreaseStock and atomic batches.
	product.StockQuantity = existing.StockQuantity
	product.CreatedAt = existing.CreatedAt
	s.products[product.ID] = product
	s.productVersions[product.ID]++
	updated := product
	return &updated, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, exists := s.products[id]; exists {
			result[id] = p
		}
	}
	return result, nil
}

func (s *Store) IncreaseStock(_ context.Context, adjustments []domain.StockAdjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, adj := range adjustments {
		if adj.Qty <= 0 {
			return store.ErrInvalidSale
		}
		if _, exists := s.products[adj.ProductID]; !exists {
			return store.ErrNotFound
		}
	}
	for _, adj := range adjustments {
		p := s.products[adj.ProductID]
		p.StockQuantity += adj.Qty
		p.UpdatedAt = time.Now().UTC()
		s.products[adj.ProductID] = p
		s.productVersions[adj.ProductID]++
	}
	return nil
}

func (s *Store) CreatePriceHistory(_ context.Context, entry domain.ProductPriceHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.priceHistory[entry.ProductID] = append(s.priceHistory[entry.ProductID], entry)
	return nil
}

func (s *Store) ListPriceHistory(_ context.Context, productID string, limit int) ([]domain.ProductPriceHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.priceHistory[productID]
	entries := make([]domain.ProductPriceHistory, len(history))
	copy(entries, history)
	slices.SortFunc(entries, func(a, b domain.ProductPriceHistory) int {
		return b.ChangedAt.Compare(a.ChangedAt)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.ID == "" || customer.Phone == "" {
		return nil, store.ErrInvalidSale
	}
	if _, exists := s.customersByPhone[customer.Phone]; exists {
		return nil, store.ErrInvalidSale
	}

	s.customers[customer.ID] = customer
	s.customersByPhone[customer.Phone] = customer.ID
	created := customer
	return &created, nil
}

func (s *Store) GetCustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customers[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := customer
	return &copied, nil
}

func (s *Store) GetCustomerByPhone(_ context.Context, phone string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.customersByPhone[strings.TrimSpace(phone)]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := s.customers[id]
	return &copied, nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.customers[customer.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if customer.Phone != existing.Phone {
		if _, taken := s.customersByPhone[customer.Phone]; taken {
			return nil, store.ErrInvalidSale
		}
		delete(s.customersByPhone, existing.Phone)
		s.customersByPhone[customer.Phone] = customer.ID
	}
	// Point balances move only through atomic batches.
	customer.LoyaltyPoints = existing.LoyaltyPoints
	customer.CreatedAt = existing.CreatedAt
	s.customers[customer.ID] = customer
	s.customerVersions[customer.ID]++
	updated := customer
	return &updated, nil
}

func (s *Store) ListCustomers(_ context.Context, query string, limit int) ([]domain.Customer, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if limit < 1 {
		limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, limit)
	for _, c := range s.customers {
		if query == "" || strings.Contains(strings.ToLower(c.Name), query) || strings.Contains(c.Phone, query) {
			customers = append(customers, c)
		}
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return cmpString(a.Name, b.Name)
	})
	if len(customers) > limit {
		customers = customers[:limit]
	}
	return customers, nil
}

func (s *Store) GetSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.sales[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) ListSales(_ context.Context, storeID string, from time.Time, to time.Time, customerID string, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, limit)
	for _, sale := range s.sales {
		if storeID != "" && sale.StoreID != storeID {
			continue
		}
		if customerID != "" && sale.CustomerID != customerID {
			continue
		}
		if !from.IsZero() && sale.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !sale.CreatedAt.Before(to) {
			continue
		}
		sales = append(sales, *cloneSale(sale))
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if len(sales) > limit {
		sales = sales[:limit]
	}
	return sales, nil
}

func (s *Store) NextBillSequence(_ context.Context, storeID string, day time.Time) (int, error) {
	key := storeID + "|" + day.UTC().Format("2006-01-02")

	s.mu.Lock()
	defer s.mu.Unlock()

	s.billSequences[key]++
	return s.billSequences[key], nil
}

func (s *Store) GetDailyReport(_ context.Context, storeID string, from time.Time, to time.Time) (domain.DailyReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := domain.DailyReport{}
	byPayment := map[string]*domain.DailyReportPayment{}

	for _, sale := range s.sales {
		if storeID != "" && sale.StoreID != storeID {
			continue
		}
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		inv := sale.Invoice
		report.Sales++
		report.GrossSales += inv.DisplaySubtotal
		report.DiscountTotal += inv.AdditionalDiscountAmount
		report.LoyaltyDiscount += inv.LoyaltyDiscountAmount
		report.GSTTotal += inv.GSTForDB
		report.NetSales += inv.TotalAmount
		report.PointsEarned += inv.LoyaltyPointsEarned
		report.PointsRedeemed += inv.LoyaltyPointsUsed
		for _, item := range inv.Items {
			report.EstimatedMargin += (item.PriceAtSale - item.CostPriceAtSale) * item.Quantity
		}

		entry, exists := byPayment[sale.PaymentMode]
		if !exists {
			entry = &domain.DailyReportPayment{PaymentMode: sale.PaymentMode}
			byPayment[sale.PaymentMode] = entry
		}
		entry.Sales++
		entry.Total += inv.TotalAmount
	}

	report.GrossSales = money.Round2(report.GrossSales)
	report.DiscountTotal = money.Round2(report.DiscountTotal)
	report.LoyaltyDiscount = money.Round2(report.LoyaltyDiscount)
	report.GSTTotal = money.Round2(report.GSTTotal)
	report.NetSales = money.Round2(report.NetSales)
	report.EstimatedMargin = money.Round2(report.EstimatedMargin)

	modes := make([]string, 0, len(byPayment))
	for mode := range byPayment {
		modes = append(modes, mode)
	}
	slices.Sort(modes)
	for _, mode := range modes {
		entry := byPayment[mode]
		entry.Total = money.Round2(entry.Total)
		report.ByPayment = append(report.ByPayment, *entry)
	}

	return report, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.AuditLog, 0, limit)
	for _, entry := range s.auditLogs {
		if storeID != "" && entry.StoreID != storeID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		logs = append(logs, entry)
	}
	slices.SortFunc(logs, func(a, b domain.AuditLog) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidSale
	}
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrInvalidSale
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cloneSale(sale domain.Sale) *domain.Sale {
	copied := sale
	copied.Invoice.Items = make([]domain.LineItem, len(sale.Invoice.Items))
	copy(copied.Invoice.Items, sale.Invoice.Items)
	if sale.EditedAt != nil {
		at := *sale.EditedAt
		copied.EditedAt = &at
	}
	return &copied
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
