package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strings"
	"time"

	"dukaanpos/backend/internal/billing"
	"dukaanpos/backend/internal/cache"
	"dukaanpos/backend/internal/checkout"
	"dukaanpos/backend/internal/domain"
	"dukaanpos/backend/internal/receipt"
	"dukaanpos/backend/internal/store"
	"dukaanpos/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo           store.Repository
	engine         *billing.Engine
	coordinator    *checkout.Coordinator
	receipts       cache.ReceiptCache
	receiptTTL     time.Duration
	receiptWidth   int
	storeDetails   domain.StoreDetails
	defaultStoreID string
}

type Options struct {
	Receipts     cache.ReceiptCache
	ReceiptTTL   time.Duration
	ReceiptWidth int
	StoreDetails domain.StoreDetails
}

func New(repo store.Repository, engine *billing.Engine, coordinator *checkout.Coordinator, defaultStoreID string, opts Options) *Service {
	if defaultStoreID == "" {
		defaultStoreID = "main-store"
	}
	if opts.Receipts == nil {
		opts.Receipts = cache.NoopReceiptCache{}
	}
	if opts.ReceiptTTL < 1 {
		opts.ReceiptTTL = time.Hour
	}
	if opts.ReceiptWidth < 32 {
		opts.ReceiptWidth = receipt.DefaultWidth
	}

	return &Service{
		repo:           repo,
		engine:         engine,
		coordinator:    coordinator,
		receipts:       opts.Receipts,
		receiptTTL:     opts.ReceiptTTL,
		receiptWidth:   opts.ReceiptWidth,
		storeDetails:   opts.StoreDetails,
		defaultStoreID: defaultStoreID,
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) SearchProducts(ctx context.Context, query string, limit int) ([]domain.Product, error) {
	if strings.TrimSpace(query) == "" {
		return s.repo.ListProducts(ctx)
	}
	return s.repo.SearchProducts(ctx, query, limit)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProductByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) GetProductByBarcode(ctx context.Context, barcode string) (domain.Product, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return domain.Product{}, store.ErrInvalidSale
	}
	product, err := s.repo.GetProductByBarcode(ctx, barcode)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	req.Barcode = strings.TrimSpace(req.Barcode)

	if req.Name == "" || req.Category == "" {
		return domain.Product{}, store.ErrInvalidSale
	}
	if req.MRP <= 0 || req.SellingPrice < 0 || req.CostPrice < 0 || req.InitialStock < 0 {
		return domain.Product{}, store.ErrInvalidSale
	}
	if req.SellingPrice > req.MRP {
		return domain.Product{}, store.ErrInvalidSale
	}
	if req.GSTRate < 0 || req.GSTRate > 100 {
		return domain.Product{}, store.ErrInvalidSale
	}
	unitType := req.UnitType
	if unitType == "" {
		unitType = domain.UnitPiece
	}
	if unitType != domain.UnitPiece && unitType != domain.UnitWeight {
		return domain.Product{}, store.ErrInvalidSale
	}

	product := domain.Product{
		ID:           xid.New("prod"),
		Barcode:      req.Barcode,
		Name:         req.Name,
		Category:     req.Category,
		MRP:          req.MRP,
		SellingPrice: req.SellingPrice,
		CostPrice:    req.CostPrice,
		GSTRate:      req.GSTRate,
		UnitType:     unitType,
		UnitValue:    strings.TrimSpace(req.UnitValue),
		Active:       true,
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	if req.InitialStock > 0 {
		err := s.repo.IncreaseStock(ctx, []domain.StockAdjustment{{
			ProductID: created.ID,
			Qty:       req.InitialStock,
		}})
		if err != nil {
			return domain.Product{}, err
		}
		created.StockQuantity = req.InitialStock
	}

	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("name=%s,mrp=%.2f,stock=%.3f", created.Name, created.MRP, req.InitialStock))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, store.ErrInvalidSale
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidSale
		}
		updated.Name = name
	}
	if req.Category != nil {
		category := strings.TrimSpace(*req.Category)
		if category == "" {
			return domain.Product{}, store.ErrInvalidSale
		}
		updated.Category = category
	}
	if req.MRP != nil {
		if *req.MRP <= 0 {
			return domain.Product{}, store.ErrInvalidSale
		}
		updated.MRP = *req.MRP
	}
	if req.SellingPrice != nil {
		if *req.SellingPrice < 0 {
			return domain.Product{}, store.ErrInvalidSale
		}
		updated.SellingPrice = *req.SellingPrice
	}
	if req.CostPrice != nil {
		if *req.CostPrice < 0 {
			return domain.Product{}, store.ErrInvalidSale
		}
		updated.CostPrice = *req.CostPrice
	}
	if req.GSTRate != nil {
		if *req.GSTRate < 0 || *req.GSTRate > 100 {
			return domain.Product{}, store.ErrInvalidSale
		}
		updated.GSTRate = *req.GSTRate
	}
	if req.UnitValue != nil {
		updated.UnitValue = strings.TrimSpace(*req.UnitValue)
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}
	if updated.SellingPrice > updated.MRP {
		return domain.Product{}, store.ErrInvalidSale
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	if existing.MRP != saved.MRP {
		if err := s.repo.CreatePriceHistory(ctx, domain.ProductPriceHistory{
			ID:        xid.New("ph"),
			ProductID: saved.ID,
			OldMRP:    existing.MRP,
			NewMRP:    saved.MRP,
			ChangedBy: actor.Username,
			ChangedAt: time.Now().UTC(),
		}); err != nil {
			log.Printf("[service] WARN: failed to record price history product=%s: %v", saved.ID, err)
		}
	}

	s.logAudit(ctx, "product_update", "product", saved.ID, fmt.Sprintf("active=%t,mrp=%.2f,gst=%.1f", saved.Active, saved.MRP, saved.GSTRate))
	return *saved, nil
}

func (s *Service) ListPriceHistory(ctx context.Context, productID string, limit int) ([]domain.ProductPriceHistory, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, store.ErrInvalidSale
	}
	if limit < 1 {
		limit = 50
	}
	return s.repo.ListPriceHistory(ctx, productID, limit)
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Name == "" || !isValidPhone(req.Phone) {
		return domain.Customer{}, store.ErrInvalidSale
	}

	customer := domain.Customer{
		ID:      xid.New("cust"),
		Name:    req.Name,
		Phone:   req.Phone,
		Address: strings.TrimSpace(req.Address),
	}

	created, err := s.repo.CreateCustomer(ctx, customer)
	if err != nil {
		return domain.Customer{}, err
	}

	s.logAudit(ctx, "customer_create", "customer", created.ID, "phone="+created.Phone)
	return *created, nil
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	customer, err := s.repo.GetCustomerByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) GetCustomerByPhone(ctx context.Context, phone string) (domain.Customer, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return domain.Customer{}, store.ErrInvalidSale
	}
	customer, err := s.repo.GetCustomerByPhone(ctx, phone)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, id string, req domain.CustomerUpdateRequest) (domain.Customer, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Customer{}, store.ErrInvalidSale
	}

	existing, err := s.repo.GetCustomerByID(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Customer{}, store.ErrInvalidSale
		}
		updated.Name = name
	}
	if req.Phone != nil {
		phone := strings.TrimSpace(*req.Phone)
		if !isValidPhone(phone) {
			return domain.Customer{}, store.ErrInvalidSale
		}
		updated.Phone = phone
	}
	if req.Address != nil {
		updated.Address = strings.TrimSpace(*req.Address)
	}

	saved, err := s.repo.UpdateCustomer(ctx, updated)
	if err != nil {
		return domain.Customer{}, err
	}

	s.logAudit(ctx, "customer_update", "customer", saved.ID, "phone="+saved.Phone)
	return *saved, nil
}

func (s *Service) ListCustomers(ctx context.Context, query string, limit int) ([]domain.Customer, error) {
	if limit < 1 {
		limit = 50
	}
	return s.repo.ListCustomers(ctx, query, limit)
}

// resolveCart turns UI cart lines into immutable line snapshots. Price
// and GST data come from the catalog at this moment; the snapshot is
// what gets billed and persisted, regardless of later repricing.
func (s *Service) resolveCart(ctx context.Context, cart []domain.CartLine) ([]domain.LineItem, error) {
	if len(cart) == 0 {
		return nil, fmt.Errorf("%w: empty cart", store.ErrInvalidSale)
	}

	ids := make([]string, 0, len(cart))
	seen := make(map[string]struct{}, len(cart))
	for _, line := range cart {
		id := strings.TrimSpace(line.ProductID)
		if id == "" {
			return nil, fmt.Errorf("%w: missing product id", store.ErrInvalidSale)
		}
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]domain.LineItem, 0, len(cart))
	for _, line := range cart {
		product, exists := products[strings.TrimSpace(line.ProductID)]
		if !exists {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, line.ProductID)
		}
		if !product.Active {
			return nil, fmt.Errorf("%w: product %s inactive", store.ErrInvalidSale, product.ID)
		}
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for %s", store.ErrInvalidSale, product.ID)
		}

		price := product.EffectivePrice()
		if line.PriceOverride > 0 {
			if line.PriceOverride > product.MRP {
				return nil, fmt.Errorf("%w: price above MRP for %s", store.ErrInvalidSale, product.ID)
			}
			price = line.PriceOverride
		}
		if line.IsFreeItem {
			price = 0
		}

		items = append(items, domain.LineItem{
			ProductID:       product.ID,
			ProductName:     product.Name,
			Quantity:        line.Quantity,
			MRP:             product.MRP,
			PriceAtSale:     price,
			CostPriceAtSale: product.CostPrice,
			GSTRate:         product.GSTRate,
			UnitType:        product.UnitType,
			IsGSTInclusive:  true,
			IsFreeItem:      line.IsFreeItem,
		})
	}
	return items, nil
}

func (s *Service) resolveCustomer(ctx context.Context, customerID string) (*domain.Customer, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, nil
	}
	return s.repo.GetCustomerByID(ctx, customerID)
}

// PreviewInvoice computes the bill for the current cart without
// persisting anything. The POS calls this on every cart change.
func (s *Service) PreviewInvoice(ctx context.Context, req domain.InvoicePreviewRequest) (domain.Invoice, error) {
	items, err := s.resolveCart(ctx, req.Cart)
	if err != nil {
		return domain.Invoice{}, err
	}
	customer, err := s.resolveCustomer(ctx, req.CustomerID)
	if err != nil {
		return domain.Invoice{}, err
	}
	return s.engine.Compute(items, req.Discount, req.PointsRequested, customer), nil
}

func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutResponse, error) {
	items, err := s.resolveCart(ctx, req.Cart)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	customer, err := s.resolveCustomer(ctx, req.CustomerID)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	actor, _ := ActorFromContext(ctx)
	sale, err := s.coordinator.Submit(ctx, checkout.SubmitRequest{
		Cart:            items,
		Discount:        req.Discount,
		PointsRequested: req.PointsRequested,
		Customer:        customer,
		PaymentMode:     req.PaymentMode,
		AmountReceived:  req.AmountReceived,
		SoldBy:          actor.Username,
	})
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	s.logAudit(ctx, "checkout", "sale", sale.ID, fmt.Sprintf("bill=%s,total=%.2f,mode=%s", sale.BillNumber, sale.Invoice.TotalAmount, sale.PaymentMode))
	return domain.CheckoutResponse{Sale: *sale}, nil
}

// EditSale re-bills an existing sale with a corrected cart. Stock and
// loyalty move by the net difference; the bill number stays.
func (s *Service) EditSale(ctx context.Context, saleID string, req domain.CheckoutRequest) (domain.CheckoutResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.CheckoutResponse{}, fmt.Errorf("admin role required")
	}

	original, err := s.repo.GetSaleByID(ctx, strings.TrimSpace(saleID))
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	items, err := s.resolveCart(ctx, req.Cart)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	customer, err := s.resolveCustomer(ctx, req.CustomerID)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	sale, err := s.coordinator.Submit(ctx, checkout.SubmitRequest{
		Cart:            items,
		Discount:        req.Discount,
		PointsRequested: req.PointsRequested,
		Customer:        customer,
		PaymentMode:     req.PaymentMode,
		AmountReceived:  req.AmountReceived,
		SoldBy:          original.SoldBy,
		Original:        original,
	})
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	s.logAudit(ctx, "sale_edit", "sale", sale.ID, fmt.Sprintf("bill=%s,total=%.2f", sale.BillNumber, sale.Invoice.TotalAmount))
	return domain.CheckoutResponse{Sale: *sale}, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	sale, err := s.repo.GetSaleByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, date string, customerID string, limit int) (domain.SaleListResponse, error) {
	from, to, err := dayRange(date)
	if err != nil {
		return domain.SaleListResponse{}, err
	}
	if limit < 1 {
		limit = 50
	}

	sales, err := s.repo.ListSales(ctx, s.defaultStoreID, from, to, strings.TrimSpace(customerID), limit)
	if err != nil {
		return domain.SaleListResponse{}, err
	}
	return domain.SaleListResponse{Sales: sales}, nil
}

// GetReceipt renders the printable receipt for a sale. Unedited sales
// hit the cache on re-prints.
func (s *Service) GetReceipt(ctx context.Context, saleID string) (domain.ReceiptResponse, error) {
	sale, err := s.repo.GetSaleByID(ctx, strings.TrimSpace(saleID))
	if err != nil {
		return domain.ReceiptResponse{}, err
	}

	key := receiptCacheKey(sale)
	if cached, hit, err := s.receipts.Get(ctx, key); err == nil && hit {
		return *cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: receipt cache read sale=%s: %v", sale.ID, err)
	}

	text := receipt.Format(*sale, s.storeDetails, s.receiptWidth)
	resp := domain.ReceiptResponse{
		SaleID:       sale.ID,
		BillNumber:   sale.BillNumber,
		Text:         text,
		EscposBase64: base64.StdEncoding.EncodeToString(receipt.EscposEncode(text)),
		FileName:     fmt.Sprintf("receipt-%s.bin", sale.BillNumber),
	}

	if err := s.receipts.Set(ctx, key, &resp, s.receiptTTL); err != nil {
		log.Printf("[service] WARN: receipt cache write sale=%s: %v", sale.ID, err)
	}
	return resp, nil
}

func (s *Service) DailyReport(ctx context.Context, date string) (domain.DailyReport, error) {
	from, to, err := dayRange(date)
	if err != nil {
		return domain.DailyReport{}, err
	}

	report, err := s.repo.GetDailyReport(ctx, s.defaultStoreID, from, to)
	if err != nil {
		return domain.DailyReport{}, err
	}
	report.StoreID = s.defaultStoreID
	report.Date = from.Format("2006-01-02")
	return report, nil
}

func (s *Service) StockIn(ctx context.Context, req domain.StockInRequest) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("admin role required")
	}
	if len(req.Items) == 0 {
		return store.ErrInvalidSale
	}
	for _, item := range req.Items {
		if strings.TrimSpace(item.ProductID) == "" || item.Qty <= 0 {
			return store.ErrInvalidSale
		}
	}

	if err := s.repo.IncreaseStock(ctx, req.Items); err != nil {
		return err
	}

	for _, item := range req.Items {
		s.logAudit(ctx, "stock_in", "product", item.ProductID, fmt.Sprintf("qty=%.3f,note=%s", item.Qty, strings.TrimSpace(req.Note)))
	}
	return nil
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = time.Now().UTC().Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, store.ErrInvalidSale
		}
		from = parsed.UTC()
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, s.defaultStoreID, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		StoreID:       s.defaultStoreID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

// receiptCacheKey changes whenever the sale content can change, so an
// edited sale never serves the pre-edit render.
func receiptCacheKey(sale *domain.Sale) string {
	if sale.EditedAt != nil {
		return fmt.Sprintf("receipt:%s:%d", sale.ID, sale.EditedAt.Unix())
	}
	return "receipt:" + sale.ID
}

func dayRange(date string) (time.Time, time.Time, error) {
	var day time.Time
	if strings.TrimSpace(date) == "" {
		now := time.Now().UTC()
		day = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return time.Time{}, time.Time{}, store.ErrInvalidSale
		}
		day = parsed.UTC()
	}
	return day, day.Add(24 * time.Hour), nil
}

func isValidPhone(phone string) bool {
	if len(phone) != 10 {
		return false
	}
	for _, r := range phone {
		if r < '0' || r > '9' {
			return false
		}
	}
	return phone[0] >= '6'
}
