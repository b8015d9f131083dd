package httpapi

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"kasirledger/internal/domain"
	"kasirledger/internal/pricing"
	"kasirledger/internal/service"
	"kasirledger/internal/store"
)

const (
	roleCashier = "cashier"
	roleAdmin   = "admin"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	pinLimiter    *attemptLimiter
	logger        *zap.Logger
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		pinLimiter:    newAttemptLimiter(8, time.Minute),
		logger:        logger,
	}
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
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(a.securityHeaders)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeMethodNotAllowed(w)
	})

	r.Get("/healthz", a.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth(roleCashier, roleAdmin))

			r.Post("/shifts/open", a.handleShiftOpen)
			r.Post("/shifts/close", a.handleShiftClose)
			r.Get("/shifts/active", a.handleShiftActive)

			r.Post("/sales", a.handleRecordSale)
			r.Get("/sales/{saleID}", a.handleGetSale)
			r.Post("/sales/{saleID}/void", a.handleVoidSale)
			r.Post("/sales/{saleID}/refund", a.handleRefundSale)
		})

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth(roleAdmin))

			r.Post("/inventory/adjustments", a.handleStockAdjust)
			r.Post("/inventory/low-stock/evaluate", a.handleLowStockEvaluate)
			r.Get("/inventory/{outletID}/{productID}", a.handleGetInventory)
			r.Get("/alerts/low-stock", a.handleLowStockAlerts)
			r.Get("/reports/daily", a.handleDailyReport)
			r.Get("/reports/weekly-trend", a.handleWeeklyTrend)
			r.Get("/audit-logs", a.handleAuditLogs)
		})
	})

	return r
}

func (a *API) requireAuth(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
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

			next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
		})
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

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleShiftOpen(w http.ResponseWriter, r *http.Request) {
	var req domain.ShiftOpenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	shift, err := a.service.OpenShift(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"shift": shift})
}

func (a *API) handleShiftClose(w http.ResponseWriter, r *http.Request) {
	var req domain.ShiftCloseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	shift, err := a.service.CloseShift(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shift": shift})
}

func (a *API) handleShiftActive(w http.ResponseWriter, r *http.Request) {
	shift, err := a.service.ActiveShift(r.Context(), r.URL.Query().Get("outlet_id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shift": shift})
}

func (a *API) handleRecordSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.RecordSale(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request) {
	sale, err := a.service.GetSale(r.Context(), chi.URLParam(r, "saleID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleVoidSale(w http.ResponseWriter, r *http.Request) {
	var req domain.VoidRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !a.checkManagerPIN(w, r, "void", req.ManagerPIN) {
		return
	}
	req.SaleID = chi.URLParam(r, "saleID")

	resp, err := a.service.VoidSale(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleRefundSale(w http.ResponseWriter, r *http.Request) {
	var req domain.RefundRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !a.checkManagerPIN(w, r, "refund", req.ManagerPIN) {
		return
	}
	req.SaleID = chi.URLParam(r, "saleID")

	resp, err := a.service.RefundSale(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) checkManagerPIN(w http.ResponseWriter, r *http.Request, action string, pin string) bool {
	if !a.pinLimiter.Allow("pin:" + action + ":" + clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many manager pin attempts"))
		return false
	}
	if !a.auth.ValidateManagerPIN(pin) {
		writeError(w, http.StatusForbidden, errors.New("invalid manager pin"))
		return false
	}
	return true
}

func (a *API) handleStockAdjust(w http.ResponseWriter, r *http.Request) {
	var req domain.StockAdjustRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	rec, err := a.service.AdjustStock(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"inventory": rec})
}

func (a *API) handleLowStockEvaluate(w http.ResponseWriter, r *http.Request) {
	var req domain.LowStockEvaluateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	outcome, err := a.service.EvaluateLowStock(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (a *API) handleGetInventory(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 500)
	view, err := a.service.GetInventory(r.Context(), chi.URLParam(r, "productID"), chi.URLParam(r, "outletID"), limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleLowStockAlerts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	openOnly, _ := strconv.ParseBool(query.Get("open"))
	limit := parsePositiveLimit(query.Get("limit"), 100, 500)

	alerts, err := a.service.ListLowStockAlerts(r.Context(), query.Get("outlet_id"), openOnly, limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (a *API) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	format := strings.ToLower(strings.TrimSpace(query.Get("format")))

	summary, err := a.service.DailySummary(r.Context(), query.Get("date"), query.Get("outlet_id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}

	if format == "csv" {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"daily-summary-%s.csv\"", summary.Date))
		if err := writeDailySummaryCSV(w, summary); err != nil {
			a.logger.Warn("write daily summary csv", zap.Error(err))
		}
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleWeeklyTrend(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	trend, err := a.service.WeeklyTrend(r.Context(), query.Get("outlet_id"), query.Get("payment_method"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trend)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := parsePositiveLimit(query.Get("limit"), 100, 500)

	logs, err := a.service.ListAuditLogs(r.Context(), query.Get("outlet_id"), query.Get("action"), query.Get("date"), limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (a *API) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *API) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		startedAt := time.Now()
		next.ServeHTTP(ww, r)
		a.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(startedAt)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// fail maps ledger errors to HTTP statuses. Calculation errors carry their
// figures so the client can correct the request.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		a.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		writeError(w, status, err)
		return
	}

	body := map[string]any{"error": err.Error()}
	var discountErr *pricing.DiscountExceededError
	var paymentErr *pricing.PaymentMismatchError
	var processedErr *service.AlreadyProcessedError
	switch {
	case errors.As(err, &discountErr):
		body["details"] = map[string]any{
			"gross":         discountErr.Gross,
			"discount":      discountErr.Discount,
			"limit_percent": discountErr.LimitPercent,
			"allowed":       discountErr.Allowed,
		}
	case errors.As(err, &paymentErr):
		body["details"] = map[string]any{
			"paid":       paymentErr.Paid,
			"total_net":  paymentErr.TotalNet,
			"difference": paymentErr.Difference,
		}
	case errors.As(err, &processedErr):
		body["details"] = map[string]any{"status": processedErr.Status}
	}
	writeJSON(w, status, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrAlreadyProcessed),
		errors.Is(err, store.ErrDuplicateReceipt),
		errors.Is(err, store.ErrRefundExists):
		return http.StatusConflict
	case errors.Is(err, service.ErrShiftNotActive):
		return http.StatusPreconditionFailed
	case errors.Is(err, pricing.ErrDiscountExceeded), errors.Is(err, pricing.ErrPaymentMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrInvalidTransaction), errors.Is(err, pricing.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeDailySummaryCSV(w http.ResponseWriter, summary domain.DailySummary) error {
	cw := csv.NewWriter(w)
	rows := [][]string{
		{"section", "key", "value"},
		{"summary", "date", summary.Date},
		{"summary", "outlet_id", summary.OutletID},
		{"summary", "sale_count", strconv.Itoa(summary.SaleCount)},
		{"summary", "total_gross", summary.TotalGross.String()},
		{"summary", "total_discount", summary.TotalDiscount.String()},
		{"summary", "total_tax", summary.TotalTax.String()},
		{"summary", "total_net", summary.TotalNet.String()},
		{"summary", "total_items", strconv.Itoa(summary.TotalItems)},
		{"summary", "cash_payments", summary.CashPayments.String()},
	}
	for _, sale := range summary.Sales {
		rows = append(rows, []string{"sale", sale.ReceiptNumber, sale.Status + " " + sale.TotalNet.String()})
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
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

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// writeError hides 5xx detail from clients; callers log the cause.
func writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
