package domain

import "time"

// All monetary amounts are stored as int64 cents to avoid floating point
// rounding in totals and profit calculations.

const (
	ProductStatusAvailable    = "available"
	ProductStatusOutOfStock   = "out_of_stock"
	ProductStatusDiscontinued = "discontinued"
)

// ProductCategories is the closed set of catalog categories.
var ProductCategories = []string{
	"electronics", "clothing", "food", "beverages", "cleaning", "household", "other",
}

type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Barcode     string    `json:"barcode,omitempty"`
	Category    string    `json:"category"`
	PriceCents  int64     `json:"price_cents"`
	CostCents   int64     `json:"cost_cents"`
	StockQty    int       `json:"stock_qty"`
	MinStock    int       `json:"min_stock"`
	Supplier    string    `json:"supplier,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DeriveProductStatus recomputes a product's status from its stock level.
// A product at zero stock is always out_of_stock; a discontinued product
// stays discontinued until it is explicitly reactivated.
func DeriveProductStatus(stockQty int, current string) string {
	if stockQty <= 0 {
		return ProductStatusOutOfStock
	}
	if current == ProductStatusDiscontinued {
		return ProductStatusDiscontinued
	}
	return ProductStatusAvailable
}

type ProductCreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Barcode     string `json:"barcode"`
	Category    string `json:"category"`
	PriceCents  int64  `json:"price_cents"`
	CostCents   int64  `json:"cost_cents"`
	StockQty    int    `json:"stock_qty"`
	MinStock    int    `json:"min_stock"`
	Supplier    string `json:"supplier"`
}

type ProductUpdateRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Barcode     *string `json:"barcode,omitempty"`
	Category    *string `json:"category,omitempty"`
	PriceCents  *int64  `json:"price_cents,omitempty"`
	CostCents   *int64  `json:"cost_cents,omitempty"`
	MinStock    *int    `json:"min_stock,omitempty"`
	Supplier    *string `json:"supplier,omitempty"`
	Status      *string `json:"status,omitempty"`
}

const (
	StockAdjustAdd      = "add"
	StockAdjustSubtract = "subtract"
	StockAdjustSet      = "set"
)

type StockAdjustRequest struct {
	Quantity int    `json:"quantity"`
	Type     string `json:"type"`
}

type ProductQuery struct {
	Search   string
	Category string
	Page     int
	Limit    int
}

type Customer struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	Phone               string    `json:"phone"`
	Email               string    `json:"email,omitempty"`
	Address             string    `json:"address,omitempty"`
	LoyaltyPoints       int64     `json:"loyalty_points"`
	TotalPurchasesCents int64     `json:"total_purchases_cents"`
	Notes               string    `json:"notes,omitempty"`
	RegisteredAt        time.Time `json:"registered_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

type CustomerCreateRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Address string `json:"address"`
	Notes   string `json:"notes"`
}

type CustomerUpdateRequest struct {
	Name    *string `json:"name,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Email   *string `json:"email,omitempty"`
	Address *string `json:"address,omitempty"`
	Notes   *string `json:"notes,omitempty"`
}

type CustomerQuery struct {
	Search string
	Page   int
	Limit  int
}

const (
	EmployeeStatusActive   = "active"
	EmployeeStatusInactive = "inactive"
)

// EmployeePositions is the closed set of staff positions.
var EmployeePositions = []string{"manager", "accountant", "cashier", "assistant"}

type Employee struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Phone       string    `json:"phone"`
	Email       string    `json:"email,omitempty"`
	Position    string    `json:"position"`
	SalaryCents int64     `json:"salary_cents"`
	HireDate    time.Time `json:"hire_date"`
	Status      string    `json:"status"`
	Address     string    `json:"address,omitempty"`
	NationalID  string    `json:"national_id,omitempty"`
	UserID      string    `json:"user_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type EmployeeCreateRequest struct {
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	Position    string `json:"position"`
	SalaryCents int64  `json:"salary_cents"`
	HireDate    string `json:"hire_date"`
	Address     string `json:"address"`
	NationalID  string `json:"national_id"`
	UserID      string `json:"user_id"`
}

type EmployeeUpdateRequest struct {
	Name        *string `json:"name,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	Email       *string `json:"email,omitempty"`
	Position    *string `json:"position,omitempty"`
	SalaryCents *int64  `json:"salary_cents,omitempty"`
	Status      *string `json:"status,omitempty"`
	Address     *string `json:"address,omitempty"`
	NationalID  *string `json:"national_id,omitempty"`
	UserID      *string `json:"user_id,omitempty"`
}

type EmployeeQuery struct {
	Status   string
	Position string
}

const (
	InvoiceStatusCompleted = "completed"
	InvoiceStatusCancelled = "cancelled"
)

const (
	PaymentCash     = "cash"
	PaymentCard     = "card"
	PaymentTransfer = "transfer"
)

// FirstInvoiceNumber seeds the invoice sequence when no invoices exist yet.
const FirstInvoiceNumber = 1001

// InvoiceLine is an immutable snapshot of a product at sale time. Later
// changes to the product's name or price never affect committed invoices.
type InvoiceLine struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	LineTotalCents int64  `json:"line_total_cents"`
}

type Invoice struct {
	ID            string        `json:"id"`
	Number        int64         `json:"number"`
	CustomerID    string        `json:"customer_id,omitempty"`
	Items         []InvoiceLine `json:"items"`
	SubtotalCents int64         `json:"subtotal_cents"`
	DiscountCents int64         `json:"discount_cents"`
	TaxCents      int64         `json:"tax_cents"`
	TotalCents    int64         `json:"total_cents"`
	PaymentMethod string        `json:"payment_method"`
	Status        string        `json:"status"`
	CreatedBy     string        `json:"created_by"`
	Notes         string        `json:"notes,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	CancelledAt   *time.Time    `json:"cancelled_at,omitempty"`
}

type InvoiceItemInput struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type InvoiceCreateRequest struct {
	CustomerID    string             `json:"customer_id"`
	Items         []InvoiceItemInput `json:"items"`
	DiscountCents int64              `json:"discount_cents"`
	TaxCents      int64              `json:"tax_cents"`
	PaymentMethod string             `json:"payment_method"`
	Notes         string             `json:"notes"`
}

// InvoiceDraft is the validated input handed to the repository's
// transactional invoice write. Totals, line snapshots and the invoice
// number are computed inside the transaction, never trusted from input.
type InvoiceDraft struct {
	CustomerID    string
	Items         []InvoiceItemInput
	DiscountCents int64
	TaxCents      int64
	PaymentMethod string
	Notes         string
	CreatedBy     string
}

type InvoiceQuery struct {
	Status     string
	CustomerID string
	From       *time.Time
	To         *time.Time
	Page       int
	Limit      int
}

// Sale is the immutable reporting ledger entry written in lockstep with
// its invoice. ProfitCents = TotalCents - CostCents.
type Sale struct {
	ID            string        `json:"id"`
	InvoiceID     string        `json:"invoice_id"`
	Items         []InvoiceLine `json:"items"`
	TotalCents    int64         `json:"total_cents"`
	CostCents     int64         `json:"cost_cents"`
	ProfitCents   int64         `json:"profit_cents"`
	PaymentMethod string        `json:"payment_method"`
	OperatorID    string        `json:"operator_id"`
	SoldAt        time.Time     `json:"sold_at"`
}

type DashboardStats struct {
	TodaySaleCount    int   `json:"today_sale_count"`
	TodaySalesCents   int64 `json:"today_sales_cents"`
	ProductCount      int   `json:"product_count"`
	LowStockCount     int   `json:"low_stock_count"`
	CustomerCount     int   `json:"customer_count"`
	NewCustomersToday int   `json:"new_customers_today"`
	TotalSalesCents   int64 `json:"total_sales_cents"`
	TotalProfitCents  int64 `json:"total_profit_cents"`
	ProfitMarginPct   int64 `json:"profit_margin_pct"`
}

type DailySales struct {
	Date        string `json:"date"`
	SaleCount   int    `json:"sale_count"`
	TotalCents  int64  `json:"total_cents"`
	ProfitCents int64  `json:"profit_cents"`
}

type CategoryInventory struct {
	Category        string `json:"category"`
	ProductCount    int    `json:"product_count"`
	TotalUnits      int    `json:"total_units"`
	StockValueCents int64  `json:"stock_value_cents"`
}

type ProfitSummary struct {
	From            string `json:"from"`
	To              string `json:"to"`
	SaleCount       int    `json:"sale_count"`
	TotalSalesCents int64  `json:"total_sales_cents"`
	TotalCostCents  int64  `json:"total_cost_cents"`
	ProfitCents     int64  `json:"profit_cents"`
	ProfitMarginPct int64  `json:"profit_margin_pct"`
}

type TopProduct struct {
	ProductID    string `json:"product_id"`
	Name         string `json:"name"`
	QtySold      int    `json:"qty_sold"`
	RevenueCents int64  `json:"revenue_cents"`
}

type Actor struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
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
