package httpapi

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/service"
	"retailpos/backend/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	pinLimiter    *attemptLimiter
	csrfSecret    []byte
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string) *API {
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		// Fall back to a deterministic secret if crypto/rand fails (should not happen in practice).
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		pinLimiter:    newAttemptLimiter(8, time.Minute),
		csrfSecret:    csrfSecret,
	}
}

// csrfTokenForHour computes an HMAC-SHA256 token for the given hour bucket
// (expressed as Unix time truncated to the hour). The token is hex-encoded.
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

// generateCSRFToken returns a token valid for the current hour bucket.
func (a *API) generateCSRFToken() string {
	now := time.Now().UTC()
	bucket := now.Truncate(time.Hour).Unix()
	return a.csrfTokenForHour(bucket)
}

// validateCSRFToken checks whether the provided token matches the current or
// previous hour bucket, giving a 2-hour validity window.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	now := time.Now().UTC()
	currentBucket := now.Truncate(time.Hour).Unix()
	prevBucket := currentBucket - 3600

	expected1 := a.csrfTokenForHour(currentBucket)
	expected2 := a.csrfTokenForHour(prevBucket)

	return hmac.Equal([]byte(token), []byte(expected1)) ||
		hmac.Equal([]byte(token), []byte(expected2))
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("/api/v1/auth/csrf-token", a.handleCSRFToken)
	mux.HandleFunc("/api/v1/auth/me", a.requireAuth(a.handleMe, "cashier", "admin"))
	mux.HandleFunc("/api/v1/auth/users", a.requireAuth(a.handleUsers, "admin"))

	mux.HandleFunc("/api/v1/products", a.requireAuth(a.handleProducts, "cashier", "admin"))
	mux.HandleFunc("/api/v1/products/", a.requireAuth(a.handleProductActions, "cashier", "admin"))

	mux.HandleFunc("/api/v1/customers", a.requireAuth(a.handleCustomers, "cashier", "admin"))
	mux.HandleFunc("/api/v1/customers/", a.requireAuth(a.handleCustomerActions, "cashier", "admin"))

	mux.HandleFunc("/api/v1/employees", a.requireAuth(a.handleEmployees, "admin"))
	mux.HandleFunc("/api/v1/employees/", a.requireAuth(a.handleEmployeeActions, "admin"))

	mux.HandleFunc("/api/v1/invoices", a.requireAuth(a.handleInvoices, "cashier", "admin"))
	mux.HandleFunc("/api/v1/invoices/", a.requireAuth(a.handleInvoiceActions, "cashier", "admin"))

	mux.HandleFunc("/api/v1/reports/dashboard", a.requireAuth(a.handleDashboard, "admin"))
	mux.HandleFunc("/api/v1/reports/sales", a.requireAuth(a.handleSalesReport, "admin"))
	mux.HandleFunc("/api/v1/reports/inventory", a.requireAuth(a.handleInventoryReport, "admin"))
	mux.HandleFunc("/api/v1/reports/profit", a.requireAuth(a.handleProfitReport, "admin"))
	mux.HandleFunc("/api/v1/reports/top-products", a.requireAuth(a.handleTopProducts, "admin"))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeSuccess(w, http.StatusOK, resp)
}

// handleCSRFToken returns a stateless CSRF token valid for the current hour bucket.
// Clients must include this token in the X-CSRF-Token header for all mutating requests.
func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	actor, ok := service.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("missing actor"))
		return
	}
	writeSuccess(w, http.StatusOK, actor)
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		users := a.auth.ListCashiers()
		writeCollection(w, http.StatusOK, users, len(users))
	case http.MethodPost:
		var req domain.CashierCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		user, err := a.auth.CreateCashier(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		writeSuccess(w, http.StatusCreated, user)
	default:
		writeMethodNotAllowed(w)
	}
}

// csrfExemptPaths lists paths that are exempt from CSRF validation.
// Login is excluded because it is called without a prior CSRF token fetch.
var csrfExemptPaths = []string{
	"/api/v1/auth/login",
}

// checkCSRF enforces CSRF token validation for state-changing methods
// (POST/PUT/PATCH/DELETE). Returns false and writes an error response if
// validation fails.
func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return true
	}
	for _, exempt := range csrfExemptPaths {
		if r.URL.Path == exempt {
			return true
		}
	}
	token := strings.TrimSpace(r.Header.Get("X-CSRF-Token"))
	if !a.validateCSRFToken(token) {
		writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
		return false
	}
	return true
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := domain.ProductQuery{
			Search:   r.URL.Query().Get("search"),
			Category: r.URL.Query().Get("category"),
			Page:     parsePage(r.URL.Query().Get("page")),
			Limit:    parsePositiveLimit(r.URL.Query().Get("limit"), 20, 100),
		}

		products, total, err := a.service.ListProducts(r.Context(), q)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writePaginated(w, products, total, q.Page, q.Limit)
	case http.MethodPost:
		var req domain.ProductCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		product, err := a.service.CreateProduct(r.Context(), req)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeSuccess(w, http.StatusCreated, product)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleProductActions(w http.ResponseWriter, r *http.Request) {
	tail, ok := pathTail(w, r, "/api/v1/products/")
	if !ok {
		return
	}

	if tail == "low-stock" {
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		products, err := a.service.ListLowStockProducts(r.Context())
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeCollection(w, http.StatusOK, products, len(products))
		return
	}

	if barcode, found := strings.CutPrefix(tail, "barcode/"); found {
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		product, err := a.service.GetProductByBarcode(r.Context(), barcode)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeSuccess(w, http.StatusOK, product)
		return
	}

	if id, found := strings.CutSuffix(tail, "/stock"); found {
		if r.Method != http.MethodPut && r.Method != http.MethodPatch {
			writeMethodNotAllowed(w)
			return
		}
		var req domain.StockAdjustRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		product, err := a.service.AdjustStock(r.Context(), strings.Trim(id, "/"), req)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeSuccess(w, http.StatusOK, product)
		return
	}

	switch r.Method {
	case http.MethodGet:
		product, err := a.service.GetProduct(r.Context(), tail)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeSuccess(w, http.StatusOK, product)
	case http.MethodPut:
		var req domain.ProductUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		product, err := a.service.UpdateProduct(r.Context(), tail, req)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeSuccess(w, http.StatusOK, product)
	case http.MethodDelete:
		if err := a.service.DeleteProduct(r.Context(), tail); err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeMessage(w, http.StatusOK, "product deleted")
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCustomers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := domain.CustomerQuery{
			Search: r.URL.Query().Get("search"),
			Page:   parsePage(r.URL.Query().Get("page")),
			Limit:  parsePositiveLimit(r.URL.Query().Get("limit"), 20, 100),
		}

		customers, total, err := a.service.ListCustomers(r.Context(), q)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writePaginated(w, customers, total, q.Page, q.Limit)
	case http.MethodPost:
		var req domain.CustomerCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		customer, err := a.service.CreateCustomer(r.Context(), req)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeSuccess(w, http.StatusCreated, customer)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCustomerActions(w http.ResponseWriter, r *http.Request) {
	tail, ok := pathTail(w, r, "/api/v1/customers/")
	if !ok {
		return
	}

	if id, found := strings.CutSuffix(tail, "/purchases"); found {
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		purchases, err := a.service.ListCustomerPurchases(r.Context(), strings.Trim(id, "/"))
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeCollection(w, http.StatusOK, purchases, len(purchases))
		return
	}

	switch r.Method {
	case http.MethodGet:
		customer, err := a.service.GetCustomer(r.Context(), tail)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeSuccess(w, http.StatusOK, customer)
	case http.MethodPut:
		var req domain.CustomerUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		customer, err := a.service.UpdateCustomer(r.Context(), tail, req)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeSuccess(w, http.StatusOK, customer)
	case http.MethodDelete:
		if err := a.service.DeleteCustomer(r.Context(), tail); err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeMessage(w, http.StatusOK, "customer deleted")
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleEmployees(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := domain.EmployeeQuery{
			Status:   r.URL.Query().Get("status"),
			Position: r.URL.Query().Get("position"),
		}

		employees, err := a.service.ListEmployees(r.Context(), q)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeCollection(w, http.StatusOK, employees, len(employees))
	case http.MethodPost:
		var req domain.EmployeeCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		employee, err := a.service.CreateEmployee(r.Context(), req)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeSuccess(w, http.StatusCreated, employee)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleEmployeeActions(w http.ResponseWriter, r *http.Request) {
	tail, ok := pathTail(w, r, "/api/v1/employees/")
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		employee, err := a.service.GetEmployee(r.Context(), tail)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeSuccess(w, http.StatusOK, employee)
	case http.MethodPut:
		var req domain.EmployeeUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		employee, err := a.service.UpdateEmployee(r.Context(), tail, req)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeSuccess(w, http.StatusOK, employee)
	case http.MethodDelete:
		if err := a.service.DeleteEmployee(r.Context(), tail); err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeMessage(w, http.StatusOK, "employee deactivated")
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleInvoices(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := domain.InvoiceQuery{
			Status:     r.URL.Query().Get("status"),
			CustomerID: r.URL.Query().Get("customer_id"),
			Page:       parsePage(r.URL.Query().Get("page")),
			Limit:      parsePositiveLimit(r.URL.Query().Get("limit"), 20, 100),
		}

		var parseErr error
		if q.From, parseErr = parseDateParam(r.URL.Query().Get("from"), false); parseErr != nil {
			writeError(w, http.StatusBadRequest, parseErr)
			return
		}
		if q.To, parseErr = parseDateParam(r.URL.Query().Get("to"), true); parseErr != nil {
			writeError(w, http.StatusBadRequest, parseErr)
			return
		}

		invoices, total, err := a.service.ListInvoices(r.Context(), q)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writePaginated(w, invoices, total, q.Page, q.Limit)
	case http.MethodPost:
		var req domain.InvoiceCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		invoice, err := a.service.CreateInvoice(r.Context(), req)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeSuccess(w, http.StatusCreated, invoice)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleInvoiceActions(w http.ResponseWriter, r *http.Request) {
	tail, ok := pathTail(w, r, "/api/v1/invoices/")
	if !ok {
		return
	}

	if id, found := strings.CutSuffix(tail, "/print"); found {
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		invoice, err := a.service.GetInvoice(r.Context(), strings.Trim(id, "/"))
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(invoiceToPrintableHTML(invoice)))
		return
	}

	if id, found := strings.CutSuffix(tail, "/sale"); found {
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		sale, err := a.service.SaleForInvoice(r.Context(), strings.Trim(id, "/"))
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeSuccess(w, http.StatusOK, sale)
		return
	}

	switch r.Method {
	case http.MethodGet:
		invoice, err := a.service.GetInvoice(r.Context(), tail)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeSuccess(w, http.StatusOK, invoice)
	case http.MethodDelete:
		if !a.pinLimiter.Allow("pin:cancel:" + clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, errors.New("too many manager pin attempts"))
			return
		}
		if !a.auth.ValidateManagerPIN(r.Header.Get("X-Manager-PIN")) {
			writeError(w, http.StatusForbidden, errors.New("invalid manager pin"))
			return
		}

		invoice, err := a.service.CancelInvoice(r.Context(), tail)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeSuccess(w, http.StatusOK, invoice)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	stats, err := a.service.Dashboard(r.Context())
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeSuccess(w, http.StatusOK, stats)
}

func (a *API) handleSalesReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	result, err := a.service.SalesByDay(r.Context(), r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeCollection(w, http.StatusOK, result, len(result))
}

func (a *API) handleInventoryReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	result, err := a.service.InventoryReport(r.Context())
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeCollection(w, http.StatusOK, result, len(result))
}

func (a *API) handleProfitReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	summary, err := a.service.ProfitReport(r.Context(), r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeSuccess(w, http.StatusOK, summary)
}

func (a *API) handleTopProducts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 10, 50)
	result, err := a.service.TopProducts(r.Context(), limit)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeCollection(w, http.StatusOK, result, len(result))
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token, X-Manager-PIN")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		// Enforce CSRF protection for all state-changing requests.
		if !a.checkCSRF(w, r) {
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

// invoiceHTMLTmpl renders a printable invoice. All user-controlled fields are
// auto-escaped by html/template to prevent XSS.
var invoiceHTMLTmpl = template.Must(template.New("invoice").Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>Invoice #{{.Number}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border: 1px solid #ddd; padding: 6px; font-size: 13px; }
    h2, h3 { margin-bottom: 4px; }
  </style>
</head>
<body>
  <h2>Invoice #{{.Number}}</h2>
  <p>Date: {{.CreatedAt.Format "2006-01-02 15:04"}} UTC | Status: {{.Status}} | Cashier: {{.CreatedBy}}</p>

  <table>
    <thead><tr><th>Item</th><th>Qty</th><th>Unit Price</th><th>Line Total</th></tr></thead>
    <tbody>{{range .Items}}<tr><td>{{.Name}}</td><td style="text-align:right;">{{.Qty}}</td><td style="text-align:right;">{{.UnitPriceCents}}</td><td style="text-align:right;">{{.LineTotalCents}}</td></tr>{{end}}</tbody>
  </table>

  <p>Subtotal: {{.SubtotalCents}} | Discount: {{.DiscountCents}} | Tax: {{.TaxCents}}</p>
  <h3>Total: {{.TotalCents}}</h3>
  <p>Payment: {{.PaymentMethod}}</p>
</body>
</html>
`))

func invoiceToPrintableHTML(invoice domain.Invoice) string {
	var buf bytes.Buffer
	if err := invoiceHTMLTmpl.Execute(&buf, invoice); err != nil {
		// Fallback: return a plain-text error page rather than leaking internal details.
		return "<!doctype html><html><body><p>Invoice rendering error.</p></body></html>"
	}
	return buf.String()
}

// pathTail extracts the path segment(s) after prefix, writing a 400 response
// when the remainder is empty.
func pathTail(w http.ResponseWriter, r *http.Request, prefix string) (string, bool) {
	if !strings.HasPrefix(r.URL.Path, prefix) {
		writeError(w, http.StatusBadRequest, errors.New("invalid path"))
		return "", false
	}
	tail := strings.TrimSpace(strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/"))
	if tail == "" {
		writeError(w, http.StatusBadRequest, errors.New("resource id required"))
		return "", false
	}
	return tail, true
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, store.ErrAlreadyCancelled):
		return http.StatusConflict
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable
	}

	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "admin role required") {
		return http.StatusForbidden
	}
	if strings.Contains(lower, "authenticated operator required") {
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func parsePage(raw string) int {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 1
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil || parsed < 1 {
		return 1
	}
	return parsed
}

// parseDateParam parses an optional YYYY-MM-DD query parameter. Upper bounds
// are shifted to the end of the named day so the range stays inclusive.
func parseDateParam(raw string, endOfDay bool) (*time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", trimmed)
	}
	if endOfDay {
		parsed = parsed.Add(24*time.Hour - time.Nanosecond)
	}
	return &parsed, nil
}

type pagination struct {
	Total int `json:"total"`
	Pages int `json:"pages"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

type envelope struct {
	Success    bool        `json:"success"`
	Data       any         `json:"data,omitempty"`
	Message    string      `json:"message,omitempty"`
	Count      *int        `json:"count,omitempty"`
	Pagination *pagination `json:"pagination,omitempty"`
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: true, Message: message})
}

func writeCollection(w http.ResponseWriter, status int, data any, count int) {
	writeJSON(w, status, envelope{Success: true, Data: data, Count: &count})
}

func writePaginated(w http.ResponseWriter, data any, total int, page int, limit int) {
	if limit < 1 {
		limit = 1
	}
	pages := (total + limit - 1) / limit
	writeJSON(w, http.StatusOK, envelope{
		Success:    true,
		Data:       data,
		Pagination: &pagination{Total: total, Pages: pages, Page: page, Limit: limit},
	})
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// For 5xx responses, return a generic message to avoid leaking internal
	// implementation details (stack traces, SQL errors, file paths, etc.).
	// 4xx responses are user-facing so we return the original error message.
	msg := err.Error()
	if status == http.StatusServiceUnavailable {
		log.Printf("storage unavailable: %v", err)
		msg = "service temporarily unavailable"
	} else if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, envelope{Success: false, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
