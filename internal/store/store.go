package store

import (
	"context"
	"errors"
	"time"

	"retailpos/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidInput      = errors.New("invalid input")
	ErrAlreadyCancelled  = errors.New("invoice already cancelled")
	ErrUnavailable       = errors.New("storage unavailable")
)

// Repository is the single canonical storage interface. Every entity is
// persisted through it; the postgres implementation backs production and
// the seeded memory implementation backs dev mode and tests.
type Repository interface {
	ListProducts(ctx context.Context, q domain.ProductQuery) ([]domain.Product, int, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	AdjustStock(ctx context.Context, id string, qty int, mode string) (*domain.Product, error)
	ListLowStockProducts(ctx context.Context) ([]domain.Product, error)

	ListCustomers(ctx context.Context, q domain.CustomerQuery) ([]domain.Customer, int, error)
	GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	DeleteCustomer(ctx context.Context, id string) error
	ListCustomerPurchases(ctx context.Context, customerID string) ([]domain.Invoice, error)

	ListEmployees(ctx context.Context, q domain.EmployeeQuery) ([]domain.Employee, error)
	GetEmployeeByID(ctx context.Context, id string) (*domain.Employee, error)
	CreateEmployee(ctx context.Context, employee domain.Employee) (*domain.Employee, error)
	UpdateEmployee(ctx context.Context, employee domain.Employee) (*domain.Employee, error)
	DeleteEmployee(ctx context.Context, id string) error

	// CreateInvoice runs the whole sale as one atomic unit: stock
	// validation, line snapshots, gap-free invoice numbering, stock
	// decrement, sale ledger write and loyalty accrual all commit or
	// roll back together.
	CreateInvoice(ctx context.Context, draft domain.InvoiceDraft) (*domain.Invoice, error)
	GetInvoiceByID(ctx context.Context, id string) (*domain.Invoice, error)
	ListInvoices(ctx context.Context, q domain.InvoiceQuery) ([]domain.Invoice, int, error)
	// CancelInvoice restores line item stock and marks the invoice
	// cancelled. The sale ledger entry and loyalty points are left in
	// place on purpose; reporting treats cancellations as history.
	CancelInvoice(ctx context.Context, id string, at time.Time) (*domain.Invoice, error)
	GetSaleByInvoiceID(ctx context.Context, invoiceID string) (*domain.Sale, error)

	DashboardStats(ctx context.Context, now time.Time) (domain.DashboardStats, error)
	SalesByDay(ctx context.Context, from time.Time, to time.Time) ([]domain.DailySales, error)
	InventoryByCategory(ctx context.Context) ([]domain.CategoryInventory, error)
	ProfitSummary(ctx context.Context, from time.Time, to time.Time) (domain.ProfitSummary, error)
	TopProducts(ctx context.Context, limit int) ([]domain.TopProduct, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
