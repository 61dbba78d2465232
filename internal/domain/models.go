package domain

import "time"

type Product struct {
	ID            string    `json:"id"`
	Barcode       string    `json:"barcode"`
	Name          string    `json:"name"`
	Category      string    `json:"category"`
	MRP           float64   `json:"mrp"`
	SellingPrice  float64   `json:"selling_price,omitempty"`
	CostPrice     float64   `json:"cost_price"`
	GSTRate       float64   `json:"gst_rate"`
	UnitType      string    `json:"unit_type"`
	UnitValue     string    `json:"unit_value,omitempty"`
	StockQuantity float64   `json:"stock_quantity"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// EffectivePrice is the unit price charged at the counter: the selling
// price override when set, the MRP otherwise.
func (p Product) EffectivePrice() float64 {
	if p.SellingPrice > 0 {
		return p.SellingPrice
	}
	return p.MRP
}

type ProductCreateRequest struct {
	Barcode      string  `json:"barcode"`
	Name         string  `json:"name"`
	Category     string  `json:"category"`
	MRP          float64 `json:"mrp"`
	SellingPrice float64 `json:"selling_price"`
	CostPrice    float64 `json:"cost_price"`
	GSTRate      float64 `json:"gst_rate"`
	UnitType     string  `json:"unit_type"`
	UnitValue    string  `json:"unit_value"`
	InitialStock float64 `json:"initial_stock"`
}

type ProductUpdateRequest struct {
	Name         *string  `json:"name,omitempty"`
	Category     *string  `json:"category,omitempty"`
	MRP          *float64 `json:"mrp,omitempty"`
	SellingPrice *float64 `json:"selling_price,omitempty"`
	CostPrice    *float64 `json:"cost_price,omitempty"`
	GSTRate      *float64 `json:"gst_rate,omitempty"`
	UnitValue    *string  `json:"unit_value,omitempty"`
	Active       *bool    `json:"active,omitempty"`
}

type ProductPriceHistory struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	OldMRP    float64   `json:"old_mrp"`
	NewMRP    float64   `json:"new_mrp"`
	ChangedBy string    `json:"changed_by"`
	ChangedAt time.Time `json:"changed_at"`
}

type Customer struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Phone         string    `json:"phone"`
	Address       string    `json:"address,omitempty"`
	LoyaltyPoints int64     `json:"loyalty_points"`
	CreatedAt     time.Time `json:"created_at"`
}

type CustomerCreateRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type CustomerUpdateRequest struct {
	Name    *string `json:"name,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Address *string `json:"address,omitempty"`
}

// LineItem is a snapshot of a product at the moment it entered the
// cart. Once a sale is persisted these fields never change, even when
// the product is repriced or renamed later.
type LineItem struct {
	ProductID       string  `json:"product_id"`
	ProductName     string  `json:"product_name"`
	Quantity        float64 `json:"quantity"`
	MRP             float64 `json:"mrp"`
	PriceAtSale     float64 `json:"price_at_sale"`
	CostPriceAtSale float64 `json:"cost_price_at_sale"`
	GSTRate         float64 `json:"gst_rate"`
	UnitType        string  `json:"unit_type"`
	IsGSTInclusive  bool    `json:"is_gst_inclusive"`
	IsFreeItem      bool    `json:"is_free_item"`
}

type DiscountSpec struct {
	Type  string  `json:"type"`
	Value float64 `json:"value"`
}

// CartLine is what the UI sends: a product reference plus quantity.
// The service resolves it into a LineItem snapshot before anything
// touches the billing engine.
type CartLine struct {
	ProductID     string  `json:"product_id"`
	Quantity      float64 `json:"quantity"`
	PriceOverride float64 `json:"price_override,omitempty"`
	IsFreeItem    bool    `json:"is_free_item,omitempty"`
}

// Invoice is the output of the billing engine: a fully computed,
// rounded, tax-split bill. It carries no identity and no timestamps;
// the checkout coordinator wraps it into a Sale.
type Invoice struct {
	Items                    []LineItem `json:"items"`
	DisplaySubtotal          float64    `json:"display_subtotal"`
	SubTotalForDB            float64    `json:"sub_total_for_db"`
	GSTForDB                 float64    `json:"gst_for_db"`
	MRPTotal                 float64    `json:"mrp_total"`
	ItemSavings              float64    `json:"item_savings"`
	AdditionalDiscountAmount float64    `json:"additional_discount_amount"`
	LoyaltyDiscountAmount    float64    `json:"loyalty_discount_amount"`
	LoyaltyPointsUsed        int64      `json:"loyalty_points_used"`
	LoyaltyPointsEarned      int64      `json:"loyalty_points_earned"`
	RoundOffAmount           float64    `json:"round_off_amount"`
	TotalAmount              float64    `json:"total_amount"`
}

// Sale is the persisted, immutable record of a checked-out invoice.
type Sale struct {
	ID             string     `json:"id"`
	BillNumber     string     `json:"bill_number"`
	StoreID        string     `json:"store_id"`
	CustomerID     string     `json:"customer_id,omitempty"`
	CustomerName   string     `json:"customer_name,omitempty"`
	CustomerPhone  string     `json:"customer_phone,omitempty"`
	Invoice        Invoice    `json:"invoice"`
	PaymentMode    string     `json:"payment_mode"`
	AmountReceived float64    `json:"amount_received"`
	ChangeGiven    float64    `json:"change_given"`
	SoldBy         string     `json:"sold_by"`
	CreatedAt      time.Time  `json:"created_at"`
	EditedAt       *time.Time `json:"edited_at,omitempty"`
}

type InvoicePreviewRequest struct {
	Cart            []CartLine   `json:"cart"`
	Discount        DiscountSpec `json:"discount"`
	PointsRequested int64        `json:"points_requested"`
	CustomerID      string       `json:"customer_id,omitempty"`
}

type CheckoutRequest struct {
	Cart            []CartLine   `json:"cart"`
	Discount        DiscountSpec `json:"discount"`
	PointsRequested int64        `json:"points_requested"`
	CustomerID      string       `json:"customer_id,omitempty"`
	PaymentMode     string       `json:"payment_mode"`
	AmountReceived  float64      `json:"amount_received"`
}

type CheckoutResponse struct {
	Sale Sale `json:"sale"`
}

type SaleListResponse struct {
	Sales []Sale `json:"sales"`
}

type StockAdjustment struct {
	ProductID string  `json:"product_id"`
	Qty       float64 `json:"qty"`
}

type StockInRequest struct {
	Items []StockAdjustment `json:"items"`
	Note  string            `json:"note"`
}

type ReceiptResponse struct {
	SaleID       string `json:"sale_id"`
	BillNumber   string `json:"bill_number"`
	Text         string `json:"text"`
	EscposBase64 string `json:"escpos_base64"`
	FileName     string `json:"file_name"`
}

type StoreDetails struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
	GSTIN   string `json:"gstin,omitempty"`
	Footer  string `json:"footer,omitempty"`
}

type DailyReportPayment struct {
	PaymentMode string  `json:"payment_mode"`
	Sales       int64   `json:"sales"`
	Total       float64 `json:"total"`
}

type DailyReport struct {
	StoreID         string               `json:"store_id"`
	Date            string               `json:"date"`
	Sales           int64                `json:"sales"`
	GrossSales      float64              `json:"gross_sales"`
	DiscountTotal   float64              `json:"discount_total"`
	LoyaltyDiscount float64              `json:"loyalty_discount"`
	GSTTotal        float64              `json:"gst_total"`
	NetSales        float64              `json:"net_sales"`
	EstimatedMargin float64              `json:"estimated_margin"`
	PointsEarned    int64                `json:"points_earned"`
	PointsRedeemed  int64                `json:"points_redeemed"`
	ByPayment       []DailyReportPayment `json:"by_payment"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	StoreID       string    `json:"store_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	UnitPiece  = "piece"
	UnitWeight = "weight"
)

const (
	DiscountPercentage = "percentage"
	DiscountFixed      = "fixed"
)

const (
	PaymentCash = "Cash"
	PaymentCard = "Card"
	PaymentUPI  = "UPI"
)
