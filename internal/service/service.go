package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"retailpos/backend/internal/cache"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
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
	repo      store.Repository
	reports   cache.ReportCache
	reportTTL time.Duration
}

func New(repo store.Repository, reports cache.ReportCache, reportTTL time.Duration) *Service {
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	if reportTTL <= 0 {
		reportTTL = 20 * time.Second
	}

	return &Service{
		repo:      repo,
		reports:   reports,
		reportTTL: reportTTL,
	}
}

func (s *Service) ListProducts(ctx context.Context, q domain.ProductQuery) ([]domain.Product, int, error) {
	q.Search = strings.TrimSpace(q.Search)
	q.Category = strings.ToLower(strings.TrimSpace(q.Category))
	if q.Category != "" && !isSupportedCategory(q.Category) {
		return nil, 0, store.ErrInvalidInput
	}
	return s.repo.ListProducts(ctx, q)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, store.ErrInvalidInput
	}
	product, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) GetProductByBarcode(ctx context.Context, barcode string) (domain.Product, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return domain.Product{}, store.ErrInvalidInput
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
	req.Category = strings.ToLower(strings.TrimSpace(req.Category))
	req.Barcode = strings.TrimSpace(req.Barcode)
	if req.Category == "" {
		req.Category = "other"
	}

	if req.Name == "" || !isSupportedCategory(req.Category) {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.PriceCents < 0 || req.CostCents < 0 || req.StockQty < 0 || req.MinStock < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	product := domain.Product{
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
		Barcode:     req.Barcode,
		Category:    req.Category,
		PriceCents:  req.PriceCents,
		CostCents:   req.CostCents,
		StockQty:    req.StockQty,
		MinStock:    req.MinStock,
		Supplier:    strings.TrimSpace(req.Supplier),
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, store.ErrInvalidInput
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.Barcode != nil {
		updated.Barcode = strings.TrimSpace(*req.Barcode)
	}
	if req.Category != nil {
		category := strings.ToLower(strings.TrimSpace(*req.Category))
		if !isSupportedCategory(category) {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Category = category
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.PriceCents = *req.PriceCents
	}
	if req.CostCents != nil {
		if *req.CostCents < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.CostCents = *req.CostCents
	}
	if req.MinStock != nil {
		if *req.MinStock < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.MinStock = *req.MinStock
	}
	if req.Supplier != nil {
		updated.Supplier = strings.TrimSpace(*req.Supplier)
	}
	if req.Status != nil {
		status := strings.TrimSpace(*req.Status)
		if status != domain.ProductStatusAvailable && status != domain.ProductStatusDiscontinued {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Status = status
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("admin role required")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return store.ErrInvalidInput
	}
	return s.repo.DeleteProduct(ctx, id)
}

func (s *Service) AdjustStock(ctx context.Context, id string, req domain.StockAdjustRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	id = strings.TrimSpace(id)
	mode := strings.ToLower(strings.TrimSpace(req.Type))
	if id == "" {
		return domain.Product{}, store.ErrInvalidInput
	}
	if mode != domain.StockAdjustAdd && mode != domain.StockAdjustSubtract && mode != domain.StockAdjustSet {
		return domain.Product{}, store.ErrInvalidInput
	}

	product, err := s.repo.AdjustStock(ctx, id, req.Quantity, mode)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) ListLowStockProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListLowStockProducts(ctx)
}

func (s *Service) ListCustomers(ctx context.Context, q domain.CustomerQuery) ([]domain.Customer, int, error) {
	q.Search = strings.TrimSpace(q.Search)
	return s.repo.ListCustomers(ctx, q)
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Customer{}, store.ErrInvalidInput
	}
	customer, err := s.repo.GetCustomerByID(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	req.Name = strings.TrimSpace(req.Name)
	phone := normalizePhone(req.Phone)
	if req.Name == "" || phone == "" {
		return domain.Customer{}, store.ErrInvalidInput
	}

	customer := domain.Customer{
		Name:    req.Name,
		Phone:   phone,
		Email:   strings.ToLower(strings.TrimSpace(req.Email)),
		Address: strings.TrimSpace(req.Address),
		Notes:   strings.TrimSpace(req.Notes),
	}

	created, err := s.repo.CreateCustomer(ctx, customer)
	if err != nil {
		return domain.Customer{}, err
	}
	return *created, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, id string, req domain.CustomerUpdateRequest) (domain.Customer, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Customer{}, store.ErrInvalidInput
	}

	existing, err := s.repo.GetCustomerByID(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Customer{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Phone != nil {
		phone := normalizePhone(*req.Phone)
		if phone == "" {
			return domain.Customer{}, store.ErrInvalidInput
		}
		updated.Phone = phone
	}
	if req.Email != nil {
		updated.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.Address != nil {
		updated.Address = strings.TrimSpace(*req.Address)
	}
	if req.Notes != nil {
		updated.Notes = strings.TrimSpace(*req.Notes)
	}

	saved, err := s.repo.UpdateCustomer(ctx, updated)
	if err != nil {
		return domain.Customer{}, err
	}
	return *saved, nil
}

func (s *Service) DeleteCustomer(ctx context.Context, id string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("admin role required")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return store.ErrInvalidInput
	}
	return s.repo.DeleteCustomer(ctx, id)
}

func (s *Service) ListCustomerPurchases(ctx context.Context, customerID string) ([]domain.Invoice, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, store.ErrInvalidInput
	}
	return s.repo.ListCustomerPurchases(ctx, customerID)
}

func (s *Service) ListEmployees(ctx context.Context, q domain.EmployeeQuery) ([]domain.Employee, error) {
	q.Status = strings.ToLower(strings.TrimSpace(q.Status))
	q.Position = strings.ToLower(strings.TrimSpace(q.Position))
	if q.Status != "" && q.Status != domain.EmployeeStatusActive && q.Status != domain.EmployeeStatusInactive {
		return nil, store.ErrInvalidInput
	}
	if q.Position != "" && !isSupportedPosition(q.Position) {
		return nil, store.ErrInvalidInput
	}
	return s.repo.ListEmployees(ctx, q)
}

func (s *Service) GetEmployee(ctx context.Context, id string) (domain.Employee, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Employee{}, store.ErrInvalidInput
	}
	employee, err := s.repo.GetEmployeeByID(ctx, id)
	if err != nil {
		return domain.Employee{}, err
	}
	return *employee, nil
}

func (s *Service) CreateEmployee(ctx context.Context, req domain.EmployeeCreateRequest) (domain.Employee, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Employee{}, fmt.Errorf("admin role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	phone := normalizePhone(req.Phone)
	position := strings.ToLower(strings.TrimSpace(req.Position))
	if position == "" {
		position = "cashier"
	}

	if req.Name == "" || phone == "" || !isSupportedPosition(position) || req.SalaryCents < 0 {
		return domain.Employee{}, store.ErrInvalidInput
	}

	var hireDate time.Time
	if strings.TrimSpace(req.HireDate) != "" {
		parsed, err := time.Parse("2006-01-02", strings.TrimSpace(req.HireDate))
		if err != nil {
			return domain.Employee{}, store.ErrInvalidInput
		}
		hireDate = parsed
	}

	employee := domain.Employee{
		Name:        req.Name,
		Phone:       phone,
		Email:       strings.ToLower(strings.TrimSpace(req.Email)),
		Position:    position,
		SalaryCents: req.SalaryCents,
		HireDate:    hireDate,
		Address:     strings.TrimSpace(req.Address),
		NationalID:  strings.TrimSpace(req.NationalID),
		UserID:      strings.TrimSpace(req.UserID),
	}

	created, err := s.repo.CreateEmployee(ctx, employee)
	if err != nil {
		return domain.Employee{}, err
	}
	return *created, nil
}

func (s *Service) UpdateEmployee(ctx context.Context, id string, req domain.EmployeeUpdateRequest) (domain.Employee, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Employee{}, fmt.Errorf("admin role required")
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Employee{}, store.ErrInvalidInput
	}

	existing, err := s.repo.GetEmployeeByID(ctx, id)
	if err != nil {
		return domain.Employee{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Employee{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Phone != nil {
		phone := normalizePhone(*req.Phone)
		if phone == "" {
			return domain.Employee{}, store.ErrInvalidInput
		}
		updated.Phone = phone
	}
	if req.Email != nil {
		updated.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.Position != nil {
		position := strings.ToLower(strings.TrimSpace(*req.Position))
		if !isSupportedPosition(position) {
			return domain.Employee{}, store.ErrInvalidInput
		}
		updated.Position = position
	}
	if req.SalaryCents != nil {
		if *req.SalaryCents < 0 {
			return domain.Employee{}, store.ErrInvalidInput
		}
		updated.SalaryCents = *req.SalaryCents
	}
	if req.Status != nil {
		status := strings.ToLower(strings.TrimSpace(*req.Status))
		if status != domain.EmployeeStatusActive && status != domain.EmployeeStatusInactive {
			return domain.Employee{}, store.ErrInvalidInput
		}
		updated.Status = status
	}
	if req.Address != nil {
		updated.Address = strings.TrimSpace(*req.Address)
	}
	if req.NationalID != nil {
		updated.NationalID = strings.TrimSpace(*req.NationalID)
	}
	if req.UserID != nil {
		updated.UserID = strings.TrimSpace(*req.UserID)
	}

	saved, err := s.repo.UpdateEmployee(ctx, updated)
	if err != nil {
		return domain.Employee{}, err
	}
	return *saved, nil
}

func (s *Service) DeleteEmployee(ctx context.Context, id string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("admin role required")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return store.ErrInvalidInput
	}
	return s.repo.DeleteEmployee(ctx, id)
}

func (s *Service) CreateInvoice(ctx context.Context, req domain.InvoiceCreateRequest) (domain.Invoice, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Invoice{}, fmt.Errorf("authenticated operator required")
	}

	items, err := normalizeItems(req.Items)
	if err != nil {
		return domain.Invoice{}, err
	}
	if len(items) == 0 {
		return domain.Invoice{}, store.ErrInvalidInput
	}

	paymentMethod := strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if paymentMethod == "" {
		paymentMethod = domain.PaymentCash
	}
	if !isSupportedPaymentMethod(paymentMethod) {
		return domain.Invoice{}, store.ErrInvalidInput
	}
	if req.DiscountCents < 0 || req.TaxCents < 0 {
		return domain.Invoice{}, store.ErrInvalidInput
	}

	draft := domain.InvoiceDraft{
		CustomerID:    strings.TrimSpace(req.CustomerID),
		Items:         items,
		DiscountCents: req.DiscountCents,
		TaxCents:      req.TaxCents,
		PaymentMethod: paymentMethod,
		Notes:         strings.TrimSpace(req.Notes),
		CreatedBy:     actor.Username,
	}

	invoice, err := s.repo.CreateInvoice(ctx, draft)
	if err != nil {
		return domain.Invoice{}, err
	}
	return *invoice, nil
}

func (s *Service) GetInvoice(ctx context.Context, id string) (domain.Invoice, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Invoice{}, store.ErrInvalidInput
	}
	invoice, err := s.repo.GetInvoiceByID(ctx, id)
	if err != nil {
		return domain.Invoice{}, err
	}
	return *invoice, nil
}

func (s *Service) ListInvoices(ctx context.Context, q domain.InvoiceQuery) ([]domain.Invoice, int, error) {
	q.Status = strings.ToLower(strings.TrimSpace(q.Status))
	if q.Status != "" && q.Status != domain.InvoiceStatusCompleted && q.Status != domain.InvoiceStatusCancelled {
		return nil, 0, store.ErrInvalidInput
	}
	return s.repo.ListInvoices(ctx, q)
}

// CancelInvoice restores stock and marks the invoice cancelled. The sale
// ledger entry and any loyalty points stay untouched; cancellation is a
// stock correction, not a financial reversal.
func (s *Service) CancelInvoice(ctx context.Context, id string) (domain.Invoice, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Invoice{}, fmt.Errorf("admin role required")
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Invoice{}, store.ErrInvalidInput
	}

	invoice, err := s.repo.CancelInvoice(ctx, id, time.Now().UTC())
	if err != nil {
		return domain.Invoice{}, err
	}
	return *invoice, nil
}

func (s *Service) SaleForInvoice(ctx context.Context, invoiceID string) (domain.Sale, error) {
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return domain.Sale{}, store.ErrInvalidInput
	}
	sale, err := s.repo.GetSaleByInvoiceID(ctx, invoiceID)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) Dashboard(ctx context.Context) (domain.DashboardStats, error) {
	const key = "report:dashboard"
	if payload, ok, err := s.reports.Get(ctx, key); err == nil && ok {
		var stats domain.DashboardStats
		if json.Unmarshal(payload, &stats) == nil {
			return stats, nil
		}
	}

	stats, err := s.repo.DashboardStats(ctx, time.Now().UTC())
	if err != nil {
		return domain.DashboardStats{}, reportUnavailable(err)
	}

	s.cacheReport(ctx, key, stats)
	return stats, nil
}

func (s *Service) SalesByDay(ctx context.Context, fromRaw string, toRaw string) ([]domain.DailySales, error) {
	from, to, err := parseReportRange(fromRaw, toRaw)
	if err != nil {
		return nil, err
	}

	result, err := s.repo.SalesByDay(ctx, from, to)
	if err != nil {
		return nil, reportUnavailable(err)
	}
	return result, nil
}

func (s *Service) InventoryReport(ctx context.Context) ([]domain.CategoryInventory, error) {
	result, err := s.repo.InventoryByCategory(ctx)
	if err != nil {
		return nil, reportUnavailable(err)
	}
	return result, nil
}

func (s *Service) ProfitReport(ctx context.Context, fromRaw string, toRaw string) (domain.ProfitSummary, error) {
	from, to, err := parseReportRange(fromRaw, toRaw)
	if err != nil {
		return domain.ProfitSummary{}, err
	}

	summary, err := s.repo.ProfitSummary(ctx, from, to)
	if err != nil {
		return domain.ProfitSummary{}, reportUnavailable(err)
	}
	return summary, nil
}

func (s *Service) TopProducts(ctx context.Context, limit int) ([]domain.TopProduct, error) {
	if limit < 1 {
		limit = 10
	}

	key := fmt.Sprintf("report:top-products:%d", limit)
	if payload, ok, err := s.reports.Get(ctx, key); err == nil && ok {
		var result []domain.TopProduct
		if json.Unmarshal(payload, &result) == nil {
			return result, nil
		}
	}

	result, err := s.repo.TopProducts(ctx, limit)
	if err != nil {
		return nil, reportUnavailable(err)
	}

	s.cacheReport(ctx, key, result)
	return result, nil
}

func (s *Service) cacheReport(ctx context.Context, key string, value any) {
	payload, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.reports.Set(ctx, key, payload, s.reportTTL); err != nil {
		log.Printf("[service] WARN: failed to cache %s: %v", key, err)
	}
}

// reportUnavailable surfaces aggregate query failures as an explicit
// storage-unavailable error instead of degrading to placeholder data.
func reportUnavailable(err error) error {
	return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
}

// parseReportRange turns optional YYYY-MM-DD bounds into a half-open UTC
// interval. The default window is the trailing 30 days including today.
func parseReportRange(fromRaw string, toRaw string) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	from := today.AddDate(0, 0, -29)
	to := today.Add(24 * time.Hour)

	if strings.TrimSpace(fromRaw) != "" {
		parsed, err := time.Parse("2006-01-02", strings.TrimSpace(fromRaw))
		if err != nil {
			return time.Time{}, time.Time{}, store.ErrInvalidInput
		}
		from = parsed
	}
	if strings.TrimSpace(toRaw) != "" {
		parsed, err := time.Parse("2006-01-02", strings.TrimSpace(toRaw))
		if err != nil {
			return time.Time{}, time.Time{}, store.ErrInvalidInput
		}
		to = parsed.Add(24 * time.Hour)
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, store.ErrInvalidInput
	}
	return from, to, nil
}

// normalizeItems merges duplicate product lines while preserving first-seen
// order. A line with no product id or a quantity below one fails the whole
// request; the cashier fixes the cart rather than silently losing a line.
func normalizeItems(items []domain.InvoiceItemInput) ([]domain.InvoiceItemInput, error) {
	merged := make(map[string]int, len(items))
	order := make([]string, 0, len(items))
	for _, item := range items {
		id := strings.TrimSpace(item.ProductID)
		if id == "" || item.Qty < 1 {
			return nil, store.ErrInvalidInput
		}
		if _, seen := merged[id]; !seen {
			order = append(order, id)
		}
		merged[id] += item.Qty
	}

	result := make([]domain.InvoiceItemInput, 0, len(order))
	for _, id := range order {
		result = append(result, domain.InvoiceItemInput{ProductID: id, Qty: merged[id]})
	}
	return result, nil
}

func isSupportedCategory(category string) bool {
	for _, c := range domain.ProductCategories {
		if category == c {
			return true
		}
	}
	return false
}

func isSupportedPosition(position string) bool {
	for _, p := range domain.EmployeePositions {
		if position == p {
			return true
		}
	}
	return false
}

func isSupportedPaymentMethod(method string) bool {
	switch method {
	case domain.PaymentCash, domain.PaymentCard, domain.PaymentTransfer:
		return true
	}
	return false
}

func normalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(phone) {
		if r >= '0' && r <= '9' || r == '+' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
