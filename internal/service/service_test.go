package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"retailpos/backend/internal/cache"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/store/memory"
)

func newTestService() *Service {
	return New(memory.NewSeeded(), cache.NoopReportCache{}, 5*time.Second)
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "cashier", Role: "cashier"})
}

func TestCreateInvoiceInsufficientStockLeavesStockUnchanged(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	before, err := svc.GetProduct(ctx, "prd-seed-01")
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}

	_, err = svc.CreateInvoice(ctx, domain.InvoiceCreateRequest{
		Items: []domain.InvoiceItemInput{
			{ProductID: "prd-seed-01", Qty: before.StockQty + 1},
		},
		PaymentMethod: "cash",
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock error, got %v", err)
	}

	after, err := svc.GetProduct(ctx, "prd-seed-01")
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if after.StockQty != before.StockQty {
		t.Fatalf("stock changed after failed invoice: %d -> %d", before.StockQty, after.StockQty)
	}
}

func TestCreateInvoiceDecrementsStockAndRecordsProfit(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	// Wireless Mouse: price 4500, cost 2800, stock 40.
	invoice, err := svc.CreateInvoice(ctx, domain.InvoiceCreateRequest{
		Items: []domain.InvoiceItemInput{
			{ProductID: "prd-seed-01", Qty: 3},
		},
		PaymentMethod: "cash",
	})
	if err != nil {
		t.Fatalf("create invoice failed: %v", err)
	}
	if invoice.SubtotalCents != 13500 || invoice.TotalCents != 13500 {
		t.Fatalf("unexpected totals: subtotal %d, total %d", invoice.SubtotalCents, invoice.TotalCents)
	}
	if invoice.Status != domain.InvoiceStatusCompleted {
		t.Fatalf("expected completed status, got %s", invoice.Status)
	}
	if len(invoice.Items) != 1 || invoice.Items[0].Name != "Wireless Mouse" || invoice.Items[0].LineTotalCents != 13500 {
		t.Fatalf("unexpected line snapshot: %+v", invoice.Items)
	}

	product, err := svc.GetProduct(ctx, "prd-seed-01")
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if product.StockQty != 37 {
		t.Fatalf("expected stock 37 after selling 3 of 40, got %d", product.StockQty)
	}

	sale, err := svc.SaleForInvoice(ctx, invoice.ID)
	if err != nil {
		t.Fatalf("sale lookup failed: %v", err)
	}
	if sale.ProfitCents != 3*(4500-2800) {
		t.Fatalf("expected profit %d, got %d", 3*(4500-2800), sale.ProfitCents)
	}
	if sale.TotalCents != invoice.TotalCents {
		t.Fatalf("sale total %d does not match invoice total %d", sale.TotalCents, invoice.TotalCents)
	}
}

func TestCreateInvoiceRejectsInvalidLine(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	before, err := svc.GetProduct(ctx, "prd-seed-01")
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}

	// One bad line fails the whole request, even alongside valid lines.
	_, err = svc.CreateInvoice(ctx, domain.InvoiceCreateRequest{
		Items: []domain.InvoiceItemInput{
			{ProductID: "prd-seed-01", Qty: 2},
			{ProductID: "prd-seed-02", Qty: 0},
		},
		PaymentMethod: "cash",
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for zero quantity line, got %v", err)
	}

	_, err = svc.CreateInvoice(ctx, domain.InvoiceCreateRequest{
		Items: []domain.InvoiceItemInput{
			{ProductID: "prd-seed-01", Qty: 2},
			{ProductID: "  ", Qty: 1},
		},
		PaymentMethod: "cash",
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for blank product id, got %v", err)
	}

	after, err := svc.GetProduct(ctx, "prd-seed-01")
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if after.StockQty != before.StockQty {
		t.Fatalf("stock changed after rejected invoice: %d -> %d", before.StockQty, after.StockQty)
	}
}

func TestInvoiceNumbersAreSequentialFrom1001(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	for i := 0; i < 3; i++ {
		invoice, err := svc.CreateInvoice(ctx, domain.InvoiceCreateRequest{
			Items: []domain.InvoiceItemInput{
				{ProductID: "prd-seed-06", Qty: 1},
			},
			PaymentMethod: "cash",
		})
		if err != nil {
			t.Fatalf("invoice %d failed: %v", i+1, err)
		}
		want := int64(domain.FirstInvoiceNumber + i)
		if invoice.Number != want {
			t.Fatalf("expected invoice number %d, got %d", want, invoice.Number)
		}
	}
}

func TestCancelInvoiceRestoresStockExactlyOnce(t *testing.T) {
	svc := newTestService()

	invoice, err := svc.CreateInvoice(cashierCtx(), domain.InvoiceCreateRequest{
		Items: []domain.InvoiceItemInput{
			{ProductID: "prd-seed-03", Qty: 5},
		},
		PaymentMethod: "card",
	})
	if err != nil {
		t.Fatalf("create invoice failed: %v", err)
	}

	sold, _ := svc.GetProduct(cashierCtx(), "prd-seed-03")
	if sold.StockQty != 75 {
		t.Fatalf("expected stock 75 after sale, got %d", sold.StockQty)
	}

	cancelled, err := svc.CancelInvoice(adminCtx(), invoice.ID)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if cancelled.Status != domain.InvoiceStatusCancelled || cancelled.CancelledAt == nil {
		t.Fatalf("expected cancelled status with timestamp, got %+v", cancelled)
	}

	restored, _ := svc.GetProduct(cashierCtx(), "prd-seed-03")
	if restored.StockQty != 80 {
		t.Fatalf("expected stock restored to 80, got %d", restored.StockQty)
	}

	_, err = svc.CancelInvoice(adminCtx(), invoice.ID)
	if !errors.Is(err, store.ErrAlreadyCancelled) {
		t.Fatalf("expected already-cancelled error on second cancel, got %v", err)
	}

	again, _ := svc.GetProduct(cashierCtx(), "prd-seed-03")
	if again.StockQty != 80 {
		t.Fatalf("stock changed on repeated cancel: got %d", again.StockQty)
	}
}

func TestCancelInvoiceKeepsSaleAndLoyalty(t *testing.T) {
	svc := newTestService()

	invoice, err := svc.CreateInvoice(cashierCtx(), domain.InvoiceCreateRequest{
		CustomerID: "cus-seed-01",
		Items: []domain.InvoiceItemInput{
			{ProductID: "prd-seed-04", Qty: 2},
		},
		PaymentMethod: "cash",
	})
	if err != nil {
		t.Fatalf("create invoice failed: %v", err)
	}

	customerBefore, _ := svc.GetCustomer(cashierCtx(), "cus-seed-01")

	if _, err := svc.CancelInvoice(adminCtx(), invoice.ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	// Cancellation corrects stock only; the sale record and earned points stay.
	if _, err := svc.SaleForInvoice(cashierCtx(), invoice.ID); err != nil {
		t.Fatalf("expected sale record to survive cancellation: %v", err)
	}
	customerAfter, _ := svc.GetCustomer(cashierCtx(), "cus-seed-01")
	if customerAfter.LoyaltyPoints != customerBefore.LoyaltyPoints {
		t.Fatalf("loyalty points changed on cancel: %d -> %d", customerBefore.LoyaltyPoints, customerAfter.LoyaltyPoints)
	}
}

func TestLoyaltyPointsAndPurchaseHistory(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	// 4500 + 3500 + 1800 - 100 discount = 9700 total, which earns 9 points.
	invoice, err := svc.CreateInvoice(ctx, domain.InvoiceCreateRequest{
		CustomerID: "cus-seed-02",
		Items: []domain.InvoiceItemInput{
			{ProductID: "prd-seed-01", Qty: 1},
			{ProductID: "prd-seed-03", Qty: 1},
			{ProductID: "prd-seed-06", Qty: 1},
		},
		DiscountCents: 100,
		PaymentMethod: "transfer",
	})
	if err != nil {
		t.Fatalf("create invoice failed: %v", err)
	}
	if invoice.TotalCents != 9700 {
		t.Fatalf("expected total 9700, got %d", invoice.TotalCents)
	}

	customer, err := svc.GetCustomer(ctx, "cus-seed-02")
	if err != nil {
		t.Fatalf("get customer failed: %v", err)
	}
	if customer.LoyaltyPoints != 9 {
		t.Fatalf("expected 9 loyalty points for a 9700 total, got %d", customer.LoyaltyPoints)
	}
	if customer.TotalPurchasesCents != 9700 {
		t.Fatalf("expected total purchases 9700, got %d", customer.TotalPurchasesCents)
	}

	purchases, err := svc.ListCustomerPurchases(ctx, "cus-seed-02")
	if err != nil {
		t.Fatalf("list purchases failed: %v", err)
	}
	if len(purchases) != 1 || purchases[0].TotalCents != 9700 {
		t.Fatalf("expected one purchase of 9700, got %+v", purchases)
	}
}

func TestDiscountAboveSubtotalRejected(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateInvoice(cashierCtx(), domain.InvoiceCreateRequest{
		Items: []domain.InvoiceItemInput{
			{ProductID: "prd-seed-06", Qty: 1},
		},
		DiscountCents: 999999,
		PaymentMethod: "cash",
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for discount above subtotal, got %v", err)
	}
}

func TestCreateInvoiceUnknownProduct(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateInvoice(cashierCtx(), domain.InvoiceCreateRequest{
		Items: []domain.InvoiceItemInput{
			{ProductID: "prd-missing", Qty: 1},
		},
		PaymentMethod: "cash",
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for unknown product, got %v", err)
	}
}

func TestAdjustStockSubtractBelowZeroFails(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	_, err := svc.AdjustStock(ctx, "prd-seed-10", domain.StockAdjustRequest{
		Quantity: 1000,
		Type:     domain.StockAdjustSubtract,
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock on over-subtract, got %v", err)
	}

	product, err := svc.AdjustStock(ctx, "prd-seed-10", domain.StockAdjustRequest{
		Quantity: 5,
		Type:     domain.StockAdjustAdd,
	})
	if err != nil {
		t.Fatalf("stock add failed: %v", err)
	}
	if product.StockQty != 20 {
		t.Fatalf("expected stock 20 after adding 5 to 15, got %d", product.StockQty)
	}
}

func TestProductMutationsRequireAdmin(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateProduct(cashierCtx(), domain.ProductCreateRequest{
		Name:       "Desk Lamp",
		Category:   "household",
		PriceCents: 2500,
		CostCents:  1400,
	})
	if err == nil {
		t.Fatalf("expected cashier product creation to be rejected")
	}

	if err := svc.DeleteProduct(cashierCtx(), "prd-seed-01"); err == nil {
		t.Fatalf("expected cashier product deletion to be rejected")
	}
}

func TestInventoryReportSortedByStockValue(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	report, err := svc.InventoryReport(ctx)
	if err != nil {
		t.Fatalf("inventory report failed: %v", err)
	}
	if len(report) == 0 {
		t.Fatalf("expected at least one category row")
	}
	for i := 1; i < len(report); i++ {
		if report[i].StockValueCents > report[i-1].StockValueCents {
			t.Fatalf("report not sorted by stock value desc at index %d", i)
		}
	}

	products, _, err := svc.ListProducts(ctx, domain.ProductQuery{Limit: 100})
	if err != nil {
		t.Fatalf("list products failed: %v", err)
	}
	wantByCategory := make(map[string]int64)
	for _, p := range products {
		wantByCategory[p.Category] += int64(p.StockQty) * p.CostCents
	}
	for _, row := range report {
		if row.StockValueCents != wantByCategory[row.Category] {
			t.Fatalf("category %s stock value %d, want %d", row.Category, row.StockValueCents, wantByCategory[row.Category])
		}
	}
}

func TestProfitReportWithNoSalesHasZeroMargin(t *testing.T) {
	svc := newTestService()

	summary, err := svc.ProfitReport(adminCtx(), "", "")
	if err != nil {
		t.Fatalf("profit report failed: %v", err)
	}
	if summary.SaleCount != 0 || summary.TotalSalesCents != 0 {
		t.Fatalf("expected empty summary, got %+v", summary)
	}
	if summary.ProfitMarginPct != 0 {
		t.Fatalf("expected margin 0 with no sales, got %d", summary.ProfitMarginPct)
	}
}

func TestTopProductsRankedByQtySold(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	orders := []struct {
		productID string
		qty       int
	}{
		{"prd-seed-06", 10},
		{"prd-seed-01", 4},
		{"prd-seed-06", 7},
		{"prd-seed-03", 2},
	}
	for _, order := range orders {
		if _, err := svc.CreateInvoice(ctx, domain.InvoiceCreateRequest{
			Items:         []domain.InvoiceItemInput{{ProductID: order.productID, Qty: order.qty}},
			PaymentMethod: "cash",
		}); err != nil {
			t.Fatalf("create invoice failed: %v", err)
		}
	}

	top, err := svc.TopProducts(adminCtx(), 3)
	if err != nil {
		t.Fatalf("top products failed: %v", err)
	}
	if len(top) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(top))
	}
	if top[0].ProductID != "prd-seed-06" || top[0].QtySold != 17 {
		t.Fatalf("expected mineral water first with 17 sold, got %+v", top[0])
	}
	if top[1].ProductID != "prd-seed-01" || top[2].ProductID != "prd-seed-03" {
		t.Fatalf("unexpected ranking: %+v", top)
	}
}

func TestSalesByDayIncludesTodaysInvoices(t *testing.T) {
	svc := newTestService()

	if _, err := svc.CreateInvoice(cashierCtx(), domain.InvoiceCreateRequest{
		Items:         []domain.InvoiceItemInput{{ProductID: "prd-seed-07", Qty: 2}},
		PaymentMethod: "cash",
	}); err != nil {
		t.Fatalf("create invoice failed: %v", err)
	}

	days, err := svc.SalesByDay(adminCtx(), "", "")
	if err != nil {
		t.Fatalf("sales by day failed: %v", err)
	}

	today := time.Now().UTC().Format("2006-01-02")
	var found bool
	for _, day := range days {
		if day.Date == today {
			found = true
			if day.SaleCount != 1 || day.TotalCents != 4800 {
				t.Fatalf("unexpected day row: %+v", day)
			}
		}
	}
	if !found {
		t.Fatalf("expected a row for today (%s) in %+v", today, days)
	}
}

func TestReportRangeValidation(t *testing.T) {
	svc := newTestService()

	if _, err := svc.SalesByDay(adminCtx(), "not-a-date", ""); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for bad date, got %v", err)
	}
	if _, err := svc.ProfitReport(adminCtx(), "2026-02-01", "2026-01-01"); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for inverted range, got %v", err)
	}
}

type unavailableRepo struct {
	store.Repository
}

func (unavailableRepo) DashboardStats(_ context.Context, _ time.Time) (domain.DashboardStats, error) {
	return domain.DashboardStats{}, fmt.Errorf("connection refused")
}

func TestDashboardSurfacesUnavailableStorage(t *testing.T) {
	svc := New(unavailableRepo{Repository: memory.NewSeeded()}, cache.NoopReportCache{}, time.Second)

	_, err := svc.Dashboard(adminCtx())
	if !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected storage-unavailable error, got %v", err)
	}
}

func TestCustomerLifecycle(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	created, err := svc.CreateCustomer(ctx, domain.CustomerCreateRequest{
		Name:  "Night Market Stall",
		Phone: "050-123 4567",
	})
	if err != nil {
		t.Fatalf("create customer failed: %v", err)
	}
	if created.Phone != "0501234567" {
		t.Fatalf("expected normalized phone, got %q", created.Phone)
	}

	newName := "Night Market Stall #2"
	updated, err := svc.UpdateCustomer(ctx, created.ID, domain.CustomerUpdateRequest{Name: &newName})
	if err != nil {
		t.Fatalf("update customer failed: %v", err)
	}
	if updated.Name != newName {
		t.Fatalf("expected updated name, got %q", updated.Name)
	}

	if err := svc.DeleteCustomer(cashierCtx(), created.ID); err == nil {
		t.Fatalf("expected cashier customer deletion to be rejected")
	}
	if err := svc.DeleteCustomer(adminCtx(), created.ID); err != nil {
		t.Fatalf("admin delete customer failed: %v", err)
	}
	if _, err := svc.GetCustomer(ctx, created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestEmployeeValidation(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	_, err := svc.CreateEmployee(ctx, domain.EmployeeCreateRequest{
		Name:     "Dana Whitfield",
		Phone:    "0509999999",
		Position: "astronaut",
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for unknown position, got %v", err)
	}

	employee, err := svc.CreateEmployee(ctx, domain.EmployeeCreateRequest{
		Name:        "Dana Whitfield",
		Phone:       "0509999999",
		Position:    "accountant",
		SalaryCents: 450000,
		HireDate:    "2026-03-15",
	})
	if err != nil {
		t.Fatalf("create employee failed: %v", err)
	}
	if employee.Status != domain.EmployeeStatusActive {
		t.Fatalf("expected new employee to be active, got %s", employee.Status)
	}

	if _, err := svc.CreateEmployee(cashierCtx(), domain.EmployeeCreateRequest{
		Name:     "Someone Else",
		Phone:    "0508888888",
		Position: "cashier",
	}); err == nil {
		t.Fatalf("expected cashier employee creation to be rejected")
	}
}
