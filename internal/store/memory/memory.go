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

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	customers       map[string]domain.Customer
	employees       map[string]domain.Employee
	invoices        map[string]*domain.Invoice
	salesByInvoice  map[string]domain.Sale
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
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
	now := time.Now().UTC()
	products := []domain.Product{
		{ID: "prd-seed-01", Name: "Wireless Mouse", Barcode: "6291001000011", Category: "electronics", PriceCents: 4500, CostCents: 2800, StockQty: 40, MinStock: 5},
		{ID: "prd-seed-02", Name: "USB-C Charger 20W", Barcode: "6291001000028", Category: "electronics", PriceCents: 6900, CostCents: 4100, StockQty: 25, MinStock: 5},
		{ID: "prd-seed-03", Name: "Cotton T-Shirt", Barcode: "6291001000035", Category: "clothing", PriceCents: 3500, CostCents: 1900, StockQty: 80, MinStock: 10},
		{ID: "prd-seed-04", Name: "Rice 5kg", Barcode: "6291001000042", Category: "food", PriceCents: 5400, CostCents: 4300, StockQty: 60, MinStock: 8},
		{ID: "prd-seed-05", Name: "Olive Oil 1L", Barcode: "6291001000059", Category: "food", PriceCents: 7800, CostCents: 5900, StockQty: 35, MinStock: 5},
		{ID: "prd-seed-06", Name: "Mineral Water 12x600ml", Barcode: "6291001000066", Category: "beverages", PriceCents: 1800, CostCents: 1100, StockQty: 120, MinStock: 20},
		{ID: "prd-seed-07", Name: "Orange Juice 1L", Barcode: "6291001000073", Category: "beverages", PriceCents: 2400, CostCents: 1500, StockQty: 48, MinStock: 10},
		{ID: "prd-seed-08", Name: "Dish Soap 750ml", Barcode: "6291001000080", Category: "cleaning", PriceCents: 1600, CostCents: 900, StockQty: 55, MinStock: 8},
		{ID: "prd-seed-09", Name: "Laundry Detergent 3kg", Barcode: "6291001000097", Category: "cleaning", PriceCents: 4800, CostCents: 3100, StockQty: 30, MinStock: 5},
		{ID: "prd-seed-10", Name: "Frying Pan 26cm", Barcode: "6291001000103", Category: "household", PriceCents: 8900, CostCents: 5400, StockQty: 15, MinStock: 3},
		{ID: "prd-seed-11", Name: "Storage Box 40L", Barcode: "6291001000110", Category: "household", PriceCents: 5200, CostCents: 3000, StockQty: 22, MinStock: 5},
		{ID: "prd-seed-12", Name: "Gift Wrap Roll", Barcode: "6291001000127", Category: "other", PriceCents: 900, CostCents: 400, StockQty: 70, MinStock: 10},
	}

	productMap := make(map[string]domain.Product, len(products))
	for _, p := range products {
		p.Status = domain.DeriveProductStatus(p.StockQty, p.Status)
		p.CreatedAt = now
		p.UpdatedAt = now
		productMap[p.ID] = p
	}

	customers := map[string]domain.Customer{
		"cus-seed-01": {ID: "cus-seed-01", Name: "Walk-in Regular", Phone: "0500000001", RegisteredAt: now, UpdatedAt: now},
		"cus-seed-02": {ID: "cus-seed-02", Name: "Corner Cafe", Phone: "0500000002", Email: "orders@cornercafe.example", RegisteredAt: now, UpdatedAt: now},
	}

	return &Store{
		products:        productMap,
		customers:       customers,
		employees:       make(map[string]domain.Employee),
		invoices:        make(map[string]*domain.Invoice),
		salesByInvoice:  make(map[string]domain.Sale),
		usersByUsername: seedUsers(),
	}
}

func (s *Store) ListProducts(_ context.Context, q domain.ProductQuery) ([]domain.Product, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(q.Search))
	matched := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if q.Category != "" && p.Category != q.Category {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Name), search) &&
			!strings.Contains(strings.ToLower(p.Barcode), search) {
			continue
		}
		matched = append(matched, p)
	}

	slices.SortFunc(matched, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})

	total := len(matched)
	lo, hi := pageBounds(q.Page, q.Limit, total)
	return matched[lo:hi], total, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) GetProductByBarcode(_ context.Context, barcode string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.products {
		if p.Barcode != "" && p.Barcode == barcode {
			copyProduct := p
			return &copyProduct, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.Category == "" || product.PriceCents < 0 || product.CostCents < 0 || product.StockQty < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.Barcode != "" {
		for _, existing := range s.products {
			if existing.Barcode == product.Barcode {
				return nil, store.ErrInvalidInput
			}
		}
	}

	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.MinStock < 1 {
		product.MinStock = 5
	}
	now := time.Now().UTC()
	product.Status = domain.DeriveProductStatus(product.StockQty, product.Status)
	product.CreatedAt = now
	product.UpdatedAt = now

	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if product.Name == "" || product.Category == "" || product.PriceCents < 0 || product.CostCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.Barcode != "" {
		for id, other := range s.products {
			if id != product.ID && other.Barcode == product.Barcode {
				return nil, store.ErrInvalidInput
			}
		}
	}

	product.StockQty = existing.StockQty
	product.CreatedAt = existing.CreatedAt
	product.Status = domain.DeriveProductStatus(product.StockQty, product.Status)
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product

	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

func (s *Store) AdjustStock(_ context.Context, id string, qty int, mode string) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}

	switch mode {
	case domain.StockAdjustAdd:
		if qty < 1 {
			return nil, store.ErrInvalidInput
		}
		product.StockQty += qty
	case domain.StockAdjustSubtract:
		if qty < 1 {
			return nil, store.ErrInvalidInput
		}
		if product.StockQty < qty {
			return nil, store.ErrInsufficientStock
		}
		product.StockQty -= qty
	case domain.StockAdjustSet:
		if qty < 0 {
			return nil, store.ErrInvalidInput
		}
		product.StockQty = qty
	default:
		return nil, store.ErrInvalidInput
	}

	product.Status = domain.DeriveProductStatus(product.StockQty, product.Status)
	product.UpdatedAt = time.Now().UTC()
	s.products[id] = product

	adjusted := product
	return &adjusted, nil
}

func (s *Store) ListLowStockProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Product, 0, 16)
	for _, p := range s.products {
		if p.StockQty <= p.MinStock {
			result = append(result, p)
		}
	}
	slices.SortFunc(result, func(a, b domain.Product) int {
		if a.StockQty == b.StockQty {
			return cmpString(a.Name, b.Name)
		}
		return a.StockQty - b.StockQty
	})
	return result, nil
}

func (s *Store) ListCustomers(_ context.Context, q domain.CustomerQuery) ([]domain.Customer, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(q.Search))
	matched := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		if search != "" &&
			!strings.Contains(strings.ToLower(c.Name), search) &&
			!strings.Contains(c.Phone, search) {
			continue
		}
		matched = append(matched, c)
	}

	slices.SortFunc(matched, func(a, b domain.Customer) int {
		if a.RegisteredAt.Equal(b.RegisteredAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.RegisteredAt.After(b.RegisteredAt) {
			return -1
		}
		return 1
	})

	total := len(matched)
	lo, hi := pageBounds(q.Page, q.Limit, total)
	return matched[lo:hi], total, nil
}

func (s *Store) GetCustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customers[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyCustomer := customer
	return &copyCustomer, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.Name == "" || customer.Phone == "" {
		return nil, store.ErrInvalidInput
	}
	for _, existing := range s.customers {
		if existing.Phone == customer.Phone {
			return nil, store.ErrInvalidInput
		}
	}

	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	now := time.Now().UTC()
	if customer.RegisteredAt.IsZero() {
		customer.RegisteredAt = now
	}
	customer.UpdatedAt = now

	s.customers[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.customers[customer.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if customer.Name == "" || customer.Phone == "" {
		return nil, store.ErrInvalidInput
	}
	for id, other := range s.customers {
		if id != customer.ID && other.Phone == customer.Phone {
			return nil, store.ErrInvalidInput
		}
	}

	customer.LoyaltyPoints = existing.LoyaltyPoints
	customer.TotalPurchasesCents = existing.TotalPurchasesCents
	customer.RegisteredAt = existing.RegisteredAt
	customer.UpdatedAt = time.Now().UTC()
	s.customers[customer.ID] = customer

	updated := customer
	return &updated, nil
}

func (s *Store) DeleteCustomer(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.customers[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.customers, id)
	return nil
}

func (s *Store) ListCustomerPurchases(_ context.Context, customerID string) ([]domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.customers[customerID]; !exists {
		return nil, store.ErrNotFound
	}

	result := make([]domain.Invoice, 0, 8)
	for _, inv := range s.invoices {
		if inv.CustomerID == customerID {
			result = append(result, *cloneInvoice(inv))
		}
	}
	slices.SortFunc(result, compareInvoiceNewestFirst)
	return result, nil
}

func (s *Store) ListEmployees(_ context.Context, q domain.EmployeeQuery) ([]domain.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Employee, 0, len(s.employees))
	for _, e := range s.employees {
		if q.Status != "" && e.Status != q.Status {
			continue
		}
		if q.Position != "" && e.Position != q.Position {
			continue
		}
		result = append(result, e)
	}
	slices.SortFunc(result, func(a, b domain.Employee) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) GetEmployeeByID(_ context.Context, id string) (*domain.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	employee, exists := s.employees[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyEmployee := employee
	return &copyEmployee, nil
}

func (s *Store) CreateEmployee(_ context.Context, employee domain.Employee) (*domain.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if employee.Name == "" || employee.Phone == "" || employee.Position == "" || employee.SalaryCents < 0 {
		return nil, store.ErrInvalidInput
	}
	for _, existing := range s.employees {
		if existing.Phone == employee.Phone {
			return nil, store.ErrInvalidInput
		}
		if employee.NationalID != "" && existing.NationalID == employee.NationalID {
			return nil, store.ErrInvalidInput
		}
	}

	if employee.ID == "" {
		employee.ID = xid.New("emp")
	}
	now := time.Now().UTC()
	if employee.HireDate.IsZero() {
		employee.HireDate = nowDateUTC(now)
	}
	if employee.Status == "" {
		employee.Status = domain.EmployeeStatusActive
	}
	employee.CreatedAt = now
	employee.UpdatedAt = now

	s.employees[employee.ID] = employee
	created := employee
	return &created, nil
}

func (s *Store) UpdateEmployee(_ context.Context, employee domain.Employee) (*domain.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.employees[employee.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if employee.Name == "" || employee.Phone == "" || employee.Position == "" || employee.SalaryCents < 0 {
		return nil, store.ErrInvalidInput
	}
	for id, other := range s.employees {
		if id == employee.ID {
			continue
		}
		if other.Phone == employee.Phone {
			return nil, store.ErrInvalidInput
		}
		if employee.NationalID != "" && other.NationalID == employee.NationalID {
			return nil, store.ErrInvalidInput
		}
	}

	employee.HireDate = existing.HireDate
	employee.CreatedAt = existing.CreatedAt
	employee.UpdatedAt = time.Now().UTC()
	s.employees[employee.ID] = employee

	updated := employee
	return &updated, nil
}

func (s *Store) DeleteEmployee(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.employees[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.employees, id)
	return nil
}

func (s *Store) CreateInvoice(_ context.Context, draft domain.InvoiceDraft) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(draft.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	if draft.CustomerID != "" {
		if _, exists := s.customers[draft.CustomerID]; !exists {
			return nil, store.ErrNotFound
		}
	}

	subtotal := int64(0)
	totalCost := int64(0)
	lines := make([]domain.InvoiceLine, 0, len(draft.Items))
	for _, item := range draft.Items {
		if item.Qty < 1 {
			return nil, store.ErrInvalidInput
		}
		product, exists := s.products[item.ProductID]
		if !exists {
			return nil, store.ErrNotFound
		}
		if product.StockQty < item.Qty {
			return nil, store.ErrInsufficientStock
		}
		lineTotal := product.PriceCents * int64(item.Qty)
		lines = append(lines, domain.InvoiceLine{
			ProductID:      product.ID,
			Name:           product.Name,
			Qty:            item.Qty,
			UnitPriceCents: product.PriceCents,
			LineTotalCents: lineTotal,
		})
		subtotal += lineTotal
		totalCost += product.CostCents * int64(item.Qty)
	}

	if draft.DiscountCents < 0 || draft.DiscountCents > subtotal {
		return nil, store.ErrInvalidInput
	}
	if draft.TaxCents < 0 {
		return nil, store.ErrInvalidInput
	}

	// Tax is recorded for bookkeeping but not folded into the total; the
	// total a customer pays is subtotal minus discount.
	total := subtotal - draft.DiscountCents

	number := int64(domain.FirstInvoiceNumber)
	for _, inv := range s.invoices {
		if inv.Number >= number {
			number = inv.Number + 1
		}
	}

	now := time.Now().UTC()
	invoice := &domain.Invoice{
		ID:            xid.New("inv"),
		Number:        number,
		CustomerID:    draft.CustomerID,
		Items:         lines,
		SubtotalCents: subtotal,
		DiscountCents: draft.DiscountCents,
		TaxCents:      draft.TaxCents,
		TotalCents:    total,
		PaymentMethod: draft.PaymentMethod,
		Status:        domain.InvoiceStatusCompleted,
		CreatedBy:     draft.CreatedBy,
		Notes:         draft.Notes,
		CreatedAt:     now,
	}

	for _, line := range lines {
		product := s.products[line.ProductID]
		product.StockQty -= line.Qty
		product.Status = domain.DeriveProductStatus(product.StockQty, product.Status)
		product.UpdatedAt = now
		s.products[line.ProductID] = product
	}

	saleItems := make([]domain.InvoiceLine, len(lines))
	copy(saleItems, lines)
	s.salesByInvoice[invoice.ID] = domain.Sale{
		ID:            xid.New("sal"),
		InvoiceID:     invoice.ID,
		Items:         saleItems,
		TotalCents:    total,
		CostCents:     totalCost,
		ProfitCents:   total - totalCost,
		PaymentMethod: draft.PaymentMethod,
		OperatorID:    draft.CreatedBy,
		SoldAt:        now,
	}

	if draft.CustomerID != "" {
		customer := s.customers[draft.CustomerID]
		customer.LoyaltyPoints += total / 1000
		customer.TotalPurchasesCents += total
		customer.UpdatedAt = now
		s.customers[draft.CustomerID] = customer
	}

	s.invoices[invoice.ID] = invoice
	return cloneInvoice(invoice), nil
}

func (s *Store) GetInvoiceByID(_ context.Context, id string) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoice, exists := s.invoices[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneInvoice(invoice), nil
}

func (s *Store) ListInvoices(_ context.Context, q domain.InvoiceQuery) ([]domain.Invoice, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.Invoice, 0, len(s.invoices))
	for _, inv := range s.invoices {
		if q.Status != "" && inv.Status != q.Status {
			continue
		}
		if q.CustomerID != "" && inv.CustomerID != q.CustomerID {
			continue
		}
		if q.From != nil && inv.CreatedAt.Before(*q.From) {
			continue
		}
		if q.To != nil && !inv.CreatedAt.Before(*q.To) {
			continue
		}
		matched = append(matched, *cloneInvoice(inv))
	}
	slices.SortFunc(matched, compareInvoiceNewestFirst)

	total := len(matched)
	lo, hi := pageBounds(q.Page, q.Limit, total)
	return matched[lo:hi], total, nil
}

func (s *Store) CancelInvoice(_ context.Context, id string, at time.Time) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	invoice, exists := s.invoices[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if invoice.Status == domain.InvoiceStatusCancelled {
		return nil, store.ErrAlreadyCancelled
	}

	for _, line := range invoice.Items {
		product, ok := s.products[line.ProductID]
		if !ok {
			// Product hard-deleted after the sale; nothing to restore.
			continue
		}
		product.StockQty += line.Qty
		product.Status = domain.DeriveProductStatus(product.StockQty, product.Status)
		product.UpdatedAt = at
		s.products[line.ProductID] = product
	}

	cancelledAt := at.UTC()
	invoice.Status = domain.InvoiceStatusCancelled
	invoice.CancelledAt = &cancelledAt
	return cloneInvoice(invoice), nil
}

func (s *Store) GetSaleByInvoiceID(_ context.Context, invoiceID string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByInvoice[invoiceID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copySale := sale
	items := make([]domain.InvoiceLine, len(sale.Items))
	copy(items, sale.Items)
	copySale.Items = items
	return &copySale, nil
}

func (s *Store) DashboardStats(_ context.Context, now time.Time) (domain.DashboardStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	today := nowDateUTC(now)
	tomorrow := today.Add(24 * time.Hour)

	stats := domain.DashboardStats{
		ProductCount:  len(s.products),
		CustomerCount: len(s.customers),
	}
	for _, p := range s.products {
		if p.StockQty <= p.MinStock {
			stats.LowStockCount++
		}
	}
	for _, c := range s.customers {
		if !c.RegisteredAt.Before(today) && c.RegisteredAt.Before(tomorrow) {
			stats.NewCustomersToday++
		}
	}
	for _, sale := range s.salesByInvoice {
		stats.TotalSalesCents += sale.TotalCents
		stats.TotalProfitCents += sale.ProfitCents
		if !sale.SoldAt.Before(today) && sale.SoldAt.Before(tomorrow) {
			stats.TodaySaleCount++
			stats.TodaySalesCents += sale.TotalCents
		}
	}
	stats.ProfitMarginPct = marginPct(stats.TotalProfitCents, stats.TotalSalesCents)
	return stats, nil
}

func (s *Store) SalesByDay(_ context.Context, from time.Time, to time.Time) ([]domain.DailySales, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byDay := make(map[string]*domain.DailySales)
	for _, sale := range s.salesByInvoice {
		if sale.SoldAt.Before(from) || !sale.SoldAt.Before(to) {
			continue
		}
		day := nowDateUTC(sale.SoldAt).Format("2006-01-02")
		entry, ok := byDay[day]
		if !ok {
			entry = &domain.DailySales{Date: day}
			byDay[day] = entry
		}
		entry.SaleCount++
		entry.TotalCents += sale.TotalCents
		entry.ProfitCents += sale.ProfitCents
	}

	result := make([]domain.DailySales, 0, len(byDay))
	for _, entry := range byDay {
		result = append(result, *entry)
	}
	slices.SortFunc(result, func(a, b domain.DailySales) int {
		return cmpString(a.Date, b.Date)
	})
	return result, nil
}

func (s *Store) InventoryByCategory(_ context.Context) ([]domain.CategoryInventory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byCategory := make(map[string]*domain.CategoryInventory)
	for _, p := range s.products {
		entry, ok := byCategory[p.Category]
		if !ok {
			entry = &domain.CategoryInventory{Category: p.Category}
			byCategory[p.Category] = entry
		}
		entry.ProductCount++
		entry.TotalUnits += p.StockQty
		entry.StockValueCents += int64(p.StockQty) * p.CostCents
	}

	result := make([]domain.CategoryInventory, 0, len(byCategory))
	for _, entry := range byCategory {
		result = append(result, *entry)
	}
	slices.SortFunc(result, func(a, b domain.CategoryInventory) int {
		if a.StockValueCents == b.StockValueCents {
			return cmpString(a.Category, b.Category)
		}
		if a.StockValueCents > b.StockValueCents {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) ProfitSummary(_ context.Context, from time.Time, to time.Time) (domain.ProfitSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := domain.ProfitSummary{
		From: nowDateUTC(from).Format("2006-01-02"),
		To:   nowDateUTC(to.Add(-time.Nanosecond)).Format("2006-01-02"),
	}
	for _, sale := range s.salesByInvoice {
		if sale.SoldAt.Before(from) || !sale.SoldAt.Before(to) {
			continue
		}
		summary.SaleCount++
		summary.TotalSalesCents += sale.TotalCents
		summary.TotalCostCents += sale.CostCents
		summary.ProfitCents += sale.ProfitCents
	}
	summary.ProfitMarginPct = marginPct(summary.ProfitCents, summary.TotalSalesCents)
	return summary, nil
}

func (s *Store) TopProducts(_ context.Context, limit int) ([]domain.TopProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 10
	}

	byProduct := make(map[string]*domain.TopProduct)
	for _, sale := range s.salesByInvoice {
		for _, line := range sale.Items {
			entry, ok := byProduct[line.ProductID]
			if !ok {
				entry = &domain.TopProduct{ProductID: line.ProductID, Name: line.Name}
				byProduct[line.ProductID] = entry
			}
			entry.QtySold += line.Qty
			entry.RevenueCents += line.LineTotalCents
		}
	}

	result := make([]domain.TopProduct, 0, len(byProduct))
	for _, entry := range byProduct {
		result = append(result, *entry)
	}
	slices.SortFunc(result, func(a, b domain.TopProduct) int {
		if a.QtySold == b.QtySold {
			return cmpString(a.ProductID, b.ProductID)
		}
		return b.QtySold - a.QtySold
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidInput
	}
	user.Username = username
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[username] = user
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

func pageBounds(page int, limit int, total int) (int, int) {
	if limit < 1 {
		limit = 50
	}
	if page < 1 {
		page = 1
	}
	lo := (page - 1) * limit
	if lo > total {
		lo = total
	}
	hi := lo + limit
	if hi > total {
		hi = total
	}
	return lo, hi
}

func marginPct(profit int64, sales int64) int64 {
	if sales == 0 {
		return 0
	}
	// Round half away from zero, in integer math.
	scaled := profit * 100
	if scaled >= 0 {
		return (scaled + sales/2) / sales
	}
	return (scaled - sales/2) / sales
}

func compareInvoiceNewestFirst(a domain.Invoice, b domain.Invoice) int {
	if a.Number == b.Number {
		return cmpString(b.ID, a.ID)
	}
	if a.Number > b.Number {
		return -1
	}
	return 1
}

func nowDateUTC(t time.Time) time.Time {
	return time.Date(t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), 0, 0, 0, 0, time.UTC)
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneInvoice(src *domain.Invoice) *domain.Invoice {
	if src == nil {
		return nil
	}
	dup := *src
	items := make([]domain.InvoiceLine, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	if src.CancelledAt != nil {
		at := src.CancelledAt.UTC()
		dup.CancelledAt = &at
	}
	return &dup
}
