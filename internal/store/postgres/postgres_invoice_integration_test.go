package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
)

// Integration coverage for the transactional invoice write. Runs only when
// TEST_DATABASE_URL points at a database with schema.sql applied.
func TestInvoiceWriteAndCancelIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping postgres integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer repo.Close()

	product, err := repo.CreateProduct(ctx, domain.Product{
		Name:       "Integration Widget",
		Category:   "other",
		PriceCents: 4500,
		CostCents:  2800,
		StockQty:   10,
		MinStock:   2,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	customer, err := repo.CreateCustomer(ctx, domain.Customer{
		Name:  "Integration Customer",
		Phone: "0599" + time.Now().UTC().Format("150405.000"),
	})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}

	invoice, err := repo.CreateInvoice(ctx, domain.InvoiceDraft{
		CustomerID:    customer.ID,
		Items:         []domain.InvoiceItemInput{{ProductID: product.ID, Qty: 4}},
		PaymentMethod: "cash",
		CreatedBy:     "integration",
	})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if invoice.Number < domain.FirstInvoiceNumber {
		t.Fatalf("invoice number %d below sequence start", invoice.Number)
	}
	if invoice.TotalCents != 18000 {
		t.Fatalf("expected total 18000, got %d", invoice.TotalCents)
	}

	sold, err := repo.GetProductByID(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if sold.StockQty != 6 {
		t.Fatalf("expected stock 6 after selling 4 of 10, got %d", sold.StockQty)
	}

	sale, err := repo.GetSaleByInvoiceID(ctx, invoice.ID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if sale.ProfitCents != 4*(4500-2800) {
		t.Fatalf("expected profit %d, got %d", 4*(4500-2800), sale.ProfitCents)
	}

	if _, err := repo.CancelInvoice(ctx, invoice.ID, time.Now().UTC()); err != nil {
		t.Fatalf("cancel invoice: %v", err)
	}

	restored, err := repo.GetProductByID(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if restored.StockQty != 10 {
		t.Fatalf("expected stock restored to 10, got %d", restored.StockQty)
	}

	if _, err := repo.CancelInvoice(ctx, invoice.ID, time.Now().UTC()); !errors.Is(err, store.ErrAlreadyCancelled) {
		t.Fatalf("expected already-cancelled on second cancel, got %v", err)
	}

	// Sale and loyalty survive cancellation.
	if _, err := repo.GetSaleByInvoiceID(ctx, invoice.ID); err != nil {
		t.Fatalf("expected sale to survive cancellation: %v", err)
	}
	after, err := repo.GetCustomerByID(ctx, customer.ID)
	if err != nil {
		t.Fatalf("get customer: %v", err)
	}
	if after.LoyaltyPoints != 18 {
		t.Fatalf("expected 18 loyalty points for an 18000 total, got %d", after.LoyaltyPoints)
	}
}
