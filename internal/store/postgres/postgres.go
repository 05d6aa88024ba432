package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const productColumns = `id, name, description, barcode, category, price_cents, cost_cents, stock_qty, min_stock, supplier, status, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	var description, barcode, supplier sql.NullString
	err := row.Scan(&p.ID, &p.Name, &description, &barcode, &p.Category, &p.PriceCents, &p.CostCents,
		&p.StockQty, &p.MinStock, &supplier, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Product{}, err
	}
	p.Description = description.String
	p.Barcode = barcode.String
	p.Supplier = supplier.String
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context, q domain.ProductQuery) ([]domain.Product, int, error) {
	if q.Limit < 1 {
		q.Limit = 50
	}
	if q.Page < 1 {
		q.Page = 1
	}
	search := "%" + q.Search + "%"

	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*)
		FROM products
		WHERE ($1 = '%%' OR name ILIKE $1 OR barcode ILIKE $1)
		  AND ($2 = '' OR category = $2)
	`, search, q.Category).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE ($1 = '%%' OR name ILIKE $1 OR barcode ILIKE $1)
		  AND ($2 = '' OR category = $2)
		ORDER BY category, name
		LIMIT $3 OFFSET $4
	`, search, q.Category, q.Limit, (q.Page-1)*q.Limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, q.Limit)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return products, total, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE barcode = $1`, barcode)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Category == "" || product.PriceCents < 0 || product.CostCents < 0 || product.StockQty < 0 {
		return nil, store.ErrInvalidInput
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, description, barcode, category, price_cents, cost_cents, stock_qty, min_stock, supplier, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, product.ID, product.Name, nullIfEmpty(product.Description), nullIfEmpty(product.Barcode), product.Category,
		product.PriceCents, product.CostCents, product.StockQty, product.MinStock, nullIfEmpty(product.Supplier),
		product.Status, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Category == "" || product.PriceCents < 0 || product.CostCents < 0 {
		return nil, store.ErrInvalidInput
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, description = $3, barcode = $4, category = $5, price_cents = $6, cost_cents = $7,
		    min_stock = $8, supplier = $9,
		    status = CASE WHEN stock_qty <= 0 THEN 'out_of_stock' ELSE $10 END,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns+`
	`, product.ID, product.Name, nullIfEmpty(product.Description), nullIfEmpty(product.Barcode), product.Category,
		product.PriceCents, product.CostCents, product.MinStock, nullIfEmpty(product.Supplier), product.Status)

	updated, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) AdjustStock(ctx context.Context, id string, qty int, mode string) (*domain.Product, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var stockQty int
	var status string
	err = pgTx.QueryRowContext(ctx, `
		SELECT stock_qty, status
		FROM products
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&stockQty, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	switch mode {
	case domain.StockAdjustAdd:
		if qty < 1 {
			return nil, store.ErrInvalidInput
		}
		stockQty += qty
	case domain.StockAdjustSubtract:
		if qty < 1 {
			return nil, store.ErrInvalidInput
		}
		if stockQty < qty {
			return nil, store.ErrInsufficientStock
		}
		stockQty -= qty
	case domain.StockAdjustSet:
		if qty < 0 {
			return nil, store.ErrInvalidInput
		}
		stockQty = qty
	default:
		return nil, store.ErrInvalidInput
	}

	row := pgTx.QueryRowContext(ctx, `
		UPDATE products
		SET stock_qty = $2, status = $3, updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns+`
	`, id, stockQty, domain.DeriveProductStatus(stockQty, status))
	adjusted, err := scanProduct(row)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &adjusted, nil
}

func (s *Store) ListLowStockProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE stock_qty <= min_stock
		ORDER BY stock_qty, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 16)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

const customerColumns = `id, name, phone, email, address, loyalty_points, total_purchases_cents, notes, registered_at, updated_at`

func scanCustomer(row interface{ Scan(...any) error }) (domain.Customer, error) {
	var c domain.Customer
	var email, address, notes sql.NullString
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &email, &address, &c.LoyaltyPoints,
		&c.TotalPurchasesCents, &notes, &c.RegisteredAt, &c.UpdatedAt)
	if err != nil {
		return domain.Customer{}, err
	}
	c.Email = email.String
	c.Address = address.String
	c.Notes = notes.String
	c.RegisteredAt = c.RegisteredAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}

func (s *Store) ListCustomers(ctx context.Context, q domain.CustomerQuery) ([]domain.Customer, int, error) {
	if q.Limit < 1 {
		q.Limit = 50
	}
	if q.Page < 1 {
		q.Page = 1
	}
	search := "%" + q.Search + "%"

	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*)
		FROM customers
		WHERE ($1 = '%%' OR name ILIKE $1 OR phone LIKE $1)
	`, search).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE ($1 = '%%' OR name ILIKE $1 OR phone LIKE $1)
		ORDER BY registered_at DESC, id
		LIMIT $2 OFFSET $3
	`, search, q.Limit, (q.Page-1)*q.Limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, q.Limit)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return customers, total, nil
}

func (s *Store) GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)
	customer, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &customer, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.Name == "" || customer.Phone == "" {
		return nil, store.ErrInvalidInput
	}

	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	now := time.Now().UTC()
	if customer.RegisteredAt.IsZero() {
		customer.RegisteredAt = now
	}
	customer.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, email, address, loyalty_points, total_purchases_cents, notes, registered_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, customer.ID, customer.Name, customer.Phone, nullIfEmpty(customer.Email), nullIfEmpty(customer.Address),
		customer.LoyaltyPoints, customer.TotalPurchasesCents, nullIfEmpty(customer.Notes), customer.RegisteredAt, customer.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	created := customer
	return &created, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.Name == "" || customer.Phone == "" {
		return nil, store.ErrInvalidInput
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE customers
		SET name = $2, phone = $3, email = $4, address = $5, notes = $6, updated_at = now()
		WHERE id = $1
		RETURNING `+customerColumns+`
	`, customer.ID, customer.Name, customer.Phone, nullIfEmpty(customer.Email), nullIfEmpty(customer.Address), nullIfEmpty(customer.Notes))

	updated, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) DeleteCustomer(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListCustomerPurchases(ctx context.Context, customerID string) ([]domain.Invoice, error) {
	if _, err := s.GetCustomerByID(ctx, customerID); err != nil {
		return nil, err
	}

	invoices, _, err := s.ListInvoices(ctx, domain.InvoiceQuery{CustomerID: customerID, Limit: 500})
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

const employeeColumns = `id, name, phone, email, position, salary_cents, hire_date, status, address, national_id, user_id, created_at, updated_at`

func scanEmployee(row interface{ Scan(...any) error }) (domain.Employee, error) {
	var e domain.Employee
	var email, address, nationalID, userID sql.NullString
	err := row.Scan(&e.ID, &e.Name, &e.Phone, &email, &e.Position, &e.SalaryCents,
		&e.HireDate, &e.Status, &address, &nationalID, &userID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return domain.Employee{}, err
	}
	e.Email = email.String
	e.Address = address.String
	e.NationalID = nationalID.String
	e.UserID = userID.String
	e.HireDate = e.HireDate.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return e, nil
}

func (s *Store) ListEmployees(ctx context.Context, q domain.EmployeeQuery) ([]domain.Employee, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+employeeColumns+`
		FROM employees
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR position = $2)
		ORDER BY created_at DESC, id
	`, q.Status, q.Position)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	employees := make([]domain.Employee, 0, 16)
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return employees, nil
}

func (s *Store) GetEmployeeByID(ctx context.Context, id string) (*domain.Employee, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = $1`, id)
	employee, err := scanEmployee(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &employee, nil
}

func (s *Store) CreateEmployee(ctx context.Context, employee domain.Employee) (*domain.Employee, error) {
	if employee.Name == "" || employee.Phone == "" || employee.Position == "" || employee.SalaryCents < 0 {
		return nil, store.ErrInvalidInput
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employees (id, name, phone, email, position, salary_cents, hire_date, status, address, national_id, user_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, employee.ID, employee.Name, employee.Phone, nullIfEmpty(employee.Email), employee.Position,
		employee.SalaryCents, employee.HireDate, employee.Status, nullIfEmpty(employee.Address),
		nullIfEmpty(employee.NationalID), nullIfEmpty(employee.UserID), employee.CreatedAt, employee.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	created := employee
	return &created, nil
}

func (s *Store) UpdateEmployee(ctx context.Context, employee domain.Employee) (*domain.Employee, error) {
	if employee.Name == "" || employee.Phone == "" || employee.Position == "" || employee.SalaryCents < 0 {
		return nil, store.ErrInvalidInput
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE employees
		SET name = $2, phone = $3, email = $4, position = $5, salary_cents = $6, status = $7,
		    address = $8, national_id = $9, user_id = $10, updated_at = now()
		WHERE id = $1
		RETURNING `+employeeColumns+`
	`, employee.ID, employee.Name, employee.Phone, nullIfEmpty(employee.Email), employee.Position,
		employee.SalaryCents, employee.Status, nullIfEmpty(employee.Address), nullIfEmpty(employee.NationalID),
		nullIfEmpty(employee.UserID))

	updated, err := scanEmployee(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) DeleteEmployee(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM employees WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CreateInvoice commits the full sale atomically under serializable
// isolation. Serialization conflicts and invoice number collisions are
// retried a bounded number of times; the unique index on invoices.number
// is the backstop that keeps the sequence gap-free under concurrency.
func (s *Store) CreateInvoice(ctx context.Context, draft domain.InvoiceDraft) (*domain.Invoice, error) {
	if len(draft.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		invoice, err := s.createInvoiceTx(ctx, draft)
		if err == nil {
			return invoice, nil
		}
		if isSerializationFailure(err) || isUniqueViolation(err) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("invoice write did not settle after retries: %w", lastErr)
}

func (s *Store) createInvoiceTx(ctx context.Context, draft domain.InvoiceDraft) (*domain.Invoice, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	if draft.CustomerID != "" {
		var customerID string
		err := pgTx.QueryRowContext(ctx, `
			SELECT id FROM customers WHERE id = $1 FOR UPDATE
		`, draft.CustomerID).Scan(&customerID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
	}

	productIDs := uniqueProductIDs(draft.Items)
	if len(productIDs) == 0 {
		return nil, store.ErrInvalidInput
	}

	type lockedProduct struct {
		name       string
		priceCents int64
		costCents  int64
		stockQty   int
		status     string
	}
	productRows, err := pgTx.QueryContext(ctx, `
		SELECT id, name, price_cents, cost_cents, stock_qty, status
		FROM products
		WHERE id = ANY($1)
		FOR UPDATE
	`, productIDs)
	if err != nil {
		return nil, err
	}
	products := make(map[string]lockedProduct, len(productIDs))
	for productRows.Next() {
		var id string
		var p lockedProduct
		if err := productRows.Scan(&id, &p.name, &p.priceCents, &p.costCents, &p.stockQty, &p.status); err != nil {
			_ = productRows.Close()
			return nil, err
		}
		products[id] = p
	}
	if err := productRows.Err(); err != nil {
		_ = productRows.Close()
		return nil, err
	}
	_ = productRows.Close()

	subtotal := int64(0)
	totalCost := int64(0)
	lines := make([]domain.InvoiceLine, 0, len(draft.Items))
	for _, item := range draft.Items {
		if item.Qty < 1 {
			return nil, store.ErrInvalidInput
		}
		product, exists := products[item.ProductID]
		if !exists {
			return nil, store.ErrNotFound
		}
		if product.stockQty < item.Qty {
			return nil, store.ErrInsufficientStock
		}
		product.stockQty -= item.Qty
		products[item.ProductID] = product

		lineTotal := product.priceCents * int64(item.Qty)
		lines = append(lines, domain.InvoiceLine{
			ProductID:      item.ProductID,
			Name:           product.name,
			Qty:            item.Qty,
			UnitPriceCents: product.priceCents,
			LineTotalCents: lineTotal,
		})
		subtotal += lineTotal
		totalCost += product.costCents * int64(item.Qty)
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

	var number int64
	err = pgTx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(number), $1::bigint - 1) + 1 FROM invoices
	`, int64(domain.FirstInvoiceNumber)).Scan(&number)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	invoice := domain.Invoice{
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

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO invoices (id, number, customer_id, subtotal_cents, discount_cents, tax_cents, total_cents,
			payment_method, status, created_by, notes, created_at, cancelled_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NULL)
	`, invoice.ID, invoice.Number, nullIfEmpty(invoice.CustomerID), invoice.SubtotalCents, invoice.DiscountCents,
		invoice.TaxCents, invoice.TotalCents, invoice.PaymentMethod, invoice.Status, invoice.CreatedBy,
		nullIfEmpty(invoice.Notes), invoice.CreatedAt)
	if err != nil {
		return nil, err
	}

	for _, line := range lines {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO invoice_items (invoice_id, product_id, name, qty, unit_price_cents, line_total_cents)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, invoice.ID, line.ProductID, line.Name, line.Qty, line.UnitPriceCents, line.LineTotalCents)
		if err != nil {
			return nil, err
		}

		product := products[line.ProductID]
		_, err = pgTx.ExecContext(ctx, `
			UPDATE products
			SET stock_qty = $2, status = $3, updated_at = now()
			WHERE id = $1
		`, line.ProductID, product.stockQty, domain.DeriveProductStatus(product.stockQty, product.status))
		if err != nil {
			return nil, err
		}
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sales (id, invoice_id, total_cents, cost_cents, profit_cents, payment_method, operator_id, sold_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, xid.New("sal"), invoice.ID, total, totalCost, total-totalCost, invoice.PaymentMethod, invoice.CreatedBy, now)
	if err != nil {
		return nil, err
	}

	if draft.CustomerID != "" {
		_, err = pgTx.ExecContext(ctx, `
			UPDATE customers
			SET loyalty_points = loyalty_points + $2,
			    total_purchases_cents = total_purchases_cents + $3,
			    updated_at = now()
			WHERE id = $1
		`, draft.CustomerID, total/1000, total)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return &invoice, nil
}

const invoiceColumns = `id, number, customer_id, subtotal_cents, discount_cents, tax_cents, total_cents, payment_method, status, created_by, notes, created_at, cancelled_at`

func scanInvoice(row interface{ Scan(...any) error }) (domain.Invoice, error) {
	var inv domain.Invoice
	var customerID, notes sql.NullString
	var cancelledAt sql.NullTime
	err := row.Scan(&inv.ID, &inv.Number, &customerID, &inv.SubtotalCents, &inv.DiscountCents, &inv.TaxCents,
		&inv.TotalCents, &inv.PaymentMethod, &inv.Status, &inv.CreatedBy, &notes, &inv.CreatedAt, &cancelledAt)
	if err != nil {
		return domain.Invoice{}, err
	}
	inv.CustomerID = customerID.String
	inv.Notes = notes.String
	inv.CreatedAt = inv.CreatedAt.UTC()
	if cancelledAt.Valid {
		at := cancelledAt.Time.UTC()
		inv.CancelledAt = &at
	}
	return inv, nil
}

func (s *Store) loadInvoiceItems(ctx context.Context, invoiceIDs []string) (map[string][]domain.InvoiceLine, error) {
	itemsByInvoice := make(map[string][]domain.InvoiceLine, len(invoiceIDs))
	if len(invoiceIDs) == 0 {
		return itemsByInvoice, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT invoice_id, product_id, name, qty, unit_price_cents, line_total_cents
		FROM invoice_items
		WHERE invoice_id = ANY($1)
		ORDER BY invoice_id, product_id
	`, invoiceIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var invoiceID string
		var line domain.InvoiceLine
		if err := rows.Scan(&invoiceID, &line.ProductID, &line.Name, &line.Qty, &line.UnitPriceCents, &line.LineTotalCents); err != nil {
			return nil, err
		}
		itemsByInvoice[invoiceID] = append(itemsByInvoice[invoiceID], line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return itemsByInvoice, nil
}

func (s *Store) GetInvoiceByID(ctx context.Context, id string) (*domain.Invoice, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	invoice, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	items, err := s.loadInvoiceItems(ctx, []string{invoice.ID})
	if err != nil {
		return nil, err
	}
	invoice.Items = items[invoice.ID]
	return &invoice, nil
}

func (s *Store) ListInvoices(ctx context.Context, q domain.InvoiceQuery) ([]domain.Invoice, int, error) {
	if q.Limit < 1 {
		q.Limit = 50
	}
	if q.Page < 1 {
		q.Page = 1
	}

	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*)
		FROM invoices
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR customer_id = $2)
		  AND ($3::timestamptz IS NULL OR created_at >= $3)
		  AND ($4::timestamptz IS NULL OR created_at < $4)
	`, q.Status, q.CustomerID, nullTime(q.From), nullTime(q.To)).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR customer_id = $2)
		  AND ($3::timestamptz IS NULL OR created_at >= $3)
		  AND ($4::timestamptz IS NULL OR created_at < $4)
		ORDER BY number DESC
		LIMIT $5 OFFSET $6
	`, q.Status, q.CustomerID, nullTime(q.From), nullTime(q.To), q.Limit, (q.Page-1)*q.Limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	invoices := make([]domain.Invoice, 0, q.Limit)
	invoiceIDs := make([]string, 0, q.Limit)
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		invoices = append(invoices, inv)
		invoiceIDs = append(invoiceIDs, inv.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	itemsByInvoice, err := s.loadInvoiceItems(ctx, invoiceIDs)
	if err != nil {
		return nil, 0, err
	}
	for i := range invoices {
		invoices[i].Items = itemsByInvoice[invoices[i].ID]
	}
	return invoices, total, nil
}

func (s *Store) CancelInvoice(ctx context.Context, id string, at time.Time) (*domain.Invoice, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	row := pgTx.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id)
	invoice, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if invoice.Status == domain.InvoiceStatusCancelled {
		return nil, store.ErrAlreadyCancelled
	}

	itemRows, err := pgTx.QueryContext(ctx, `
		SELECT product_id, name, qty, unit_price_cents, line_total_cents
		FROM invoice_items
		WHERE invoice_id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	items := make([]domain.InvoiceLine, 0, 8)
	for itemRows.Next() {
		var line domain.InvoiceLine
		if err := itemRows.Scan(&line.ProductID, &line.Name, &line.Qty, &line.UnitPriceCents, &line.LineTotalCents); err != nil {
			_ = itemRows.Close()
			return nil, err
		}
		items = append(items, line)
	}
	if err := itemRows.Err(); err != nil {
		_ = itemRows.Close()
		return nil, err
	}
	_ = itemRows.Close()

	cancelledAt := at.UTC()
	_, err = pgTx.ExecContext(ctx, `
		UPDATE invoices
		SET status = $2, cancelled_at = $3
		WHERE id = $1 AND status = $4
	`, id, domain.InvoiceStatusCancelled, cancelledAt, domain.InvoiceStatusCompleted)
	if err != nil {
		return nil, err
	}

	for _, line := range items {
		// A product removed from the catalog after the sale is skipped;
		// there is no stock row left to restore.
		_, err := pgTx.ExecContext(ctx, `
			UPDATE products
			SET stock_qty = stock_qty + $2,
			    status = CASE WHEN status = 'discontinued' THEN 'discontinued' ELSE 'available' END,
			    updated_at = now()
			WHERE id = $1
		`, line.ProductID, line.Qty)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	invoice.Items = items
	invoice.Status = domain.InvoiceStatusCancelled
	invoice.CancelledAt = &cancelledAt
	return &invoice, nil
}

func (s *Store) GetSaleByInvoiceID(ctx context.Context, invoiceID string) (*domain.Sale, error) {
	var sale domain.Sale
	err := s.db.QueryRowContext(ctx, `
		SELECT id, invoice_id, total_cents, cost_cents, profit_cents, payment_method, operator_id, sold_at
		FROM sales
		WHERE invoice_id = $1
	`, invoiceID).Scan(&sale.ID, &sale.InvoiceID, &sale.TotalCents, &sale.CostCents, &sale.ProfitCents,
		&sale.PaymentMethod, &sale.OperatorID, &sale.SoldAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sale.SoldAt = sale.SoldAt.UTC()

	items, err := s.loadInvoiceItems(ctx, []string{invoiceID})
	if err != nil {
		return nil, err
	}
	sale.Items = items[invoiceID]
	return &sale, nil
}

func (s *Store) DashboardStats(ctx context.Context, now time.Time) (domain.DashboardStats, error) {
	today := nowDateUTC(now)
	tomorrow := today.Add(24 * time.Hour)

	var stats domain.DashboardStats
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*), count(*) FILTER (WHERE stock_qty <= min_stock)
		FROM products
	`).Scan(&stats.ProductCount, &stats.LowStockCount)
	if err != nil {
		return domain.DashboardStats{}, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT count(*), count(*) FILTER (WHERE registered_at >= $1 AND registered_at < $2)
		FROM customers
	`, today, tomorrow).Scan(&stats.CustomerCount, &stats.NewCustomersToday)
	if err != nil {
		return domain.DashboardStats{}, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_cents), 0), COALESCE(SUM(profit_cents), 0),
		       count(*) FILTER (WHERE sold_at >= $1 AND sold_at < $2),
		       COALESCE(SUM(total_cents) FILTER (WHERE sold_at >= $1 AND sold_at < $2), 0)
		FROM sales
	`, today, tomorrow).Scan(&stats.TotalSalesCents, &stats.TotalProfitCents, &stats.TodaySaleCount, &stats.TodaySalesCents)
	if err != nil {
		return domain.DashboardStats{}, err
	}

	stats.ProfitMarginPct = marginPct(stats.TotalProfitCents, stats.TotalSalesCents)
	return stats, nil
}

func (s *Store) SalesByDay(ctx context.Context, from time.Time, to time.Time) ([]domain.DailySales, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT to_char(date_trunc('day', sold_at AT TIME ZONE 'UTC'), 'YYYY-MM-DD'),
		       count(*), COALESCE(SUM(total_cents), 0), COALESCE(SUM(profit_cents), 0)
		FROM sales
		WHERE sold_at >= $1 AND sold_at < $2
		GROUP BY 1
		ORDER BY 1
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.DailySales, 0, 31)
	for rows.Next() {
		var entry domain.DailySales
		if err := rows.Scan(&entry.Date, &entry.SaleCount, &entry.TotalCents, &entry.ProfitCents); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) InventoryByCategory(ctx context.Context) ([]domain.CategoryInventory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, count(*), COALESCE(SUM(stock_qty), 0),
		       COALESCE(SUM(stock_qty::bigint * cost_cents), 0)
		FROM products
		GROUP BY category
		ORDER BY 4 DESC, 1
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.CategoryInventory, 0, 8)
	for rows.Next() {
		var entry domain.CategoryInventory
		if err := rows.Scan(&entry.Category, &entry.ProductCount, &entry.TotalUnits, &entry.StockValueCents); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) ProfitSummary(ctx context.Context, from time.Time, to time.Time) (domain.ProfitSummary, error) {
	summary := domain.ProfitSummary{
		From: nowDateUTC(from).Format("2006-01-02"),
		To:   nowDateUTC(to.Add(-time.Nanosecond)).Format("2006-01-02"),
	}
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*), COALESCE(SUM(total_cents), 0), COALESCE(SUM(cost_cents), 0), COALESCE(SUM(profit_cents), 0)
		FROM sales
		WHERE sold_at >= $1 AND sold_at < $2
	`, from, to).Scan(&summary.SaleCount, &summary.TotalSalesCents, &summary.TotalCostCents, &summary.ProfitCents)
	if err != nil {
		return domain.ProfitSummary{}, err
	}
	summary.ProfitMarginPct = marginPct(summary.ProfitCents, summary.TotalSalesCents)
	return summary, nil
}

func (s *Store) TopProducts(ctx context.Context, limit int) ([]domain.TopProduct, error) {
	if limit < 1 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT ii.product_id, MAX(ii.name), SUM(ii.qty), SUM(ii.line_total_cents)
		FROM invoice_items ii
		JOIN sales s ON s.invoice_id = ii.invoice_id
		GROUP BY ii.product_id
		ORDER BY 3 DESC, 1
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.TopProduct, 0, limit)
	for rows.Next() {
		var entry domain.TopProduct
		if err := rows.Scan(&entry.ProductID, &entry.Name, &entry.QtySold, &entry.RevenueCents); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.CreatedAt = u.CreatedAt.UTC()
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func uniqueProductIDs(items []domain.InvoiceItemInput) []string {
	seen := make(map[string]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if item.ProductID == "" {
			continue
		}
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001"
	}
	return false
}

func marginPct(profit int64, sales int64) int64 {
	if sales == 0 {
		return 0
	}
	scaled := profit * 100
	if scaled >= 0 {
		return (scaled + sales/2) / sales
	}
	return (scaled - sales/2) / sales
}

func nowDateUTC(t time.Time) time.Time {
	return time.Date(t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), 0, 0, 0, 0, time.UTC)
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
