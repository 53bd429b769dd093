package httpapi

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/cors"

	"github.com/facucarcelero/comandero/internal/service"
	"github.com/facucarcelero/comandero/internal/store"
)

const (
	maxJSONBody   = 1 << 20
	maxBackupBody = 64 << 20
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	pinLimiter    *attemptLimiter
	csrfSecret    []byte
	now           func() time.Time
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string) *API {
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		pinLimiter:    newAttemptLimiter(8, time.Minute),
		csrfSecret:    csrfSecret,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// csrfTokenForHour computes the hex HMAC-SHA256 token of one hour bucket.
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

func (a *API) generateCSRFToken() string {
	return a.csrfTokenForHour(a.now().Truncate(time.Hour).Unix())
}

// validateCSRFToken accepts the current and the previous hour bucket.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	current := a.now().Truncate(time.Hour).Unix()
	return hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(current))) ||
		hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(current-3600)))
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
	l.entries[key] = append(kept, now)
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
	anyRole := []string{service.RoleCashier, service.RoleAdmin}
	route := func(pattern string, h http.HandlerFunc, roles ...string) {
		mux.HandleFunc(pattern, a.requireAuth(h, roles...))
	}

	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.HandleFunc("POST /api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("GET /api/v1/auth/csrf-token", a.handleCSRFToken)

	route("GET /api/v1/products", a.handleListProducts, anyRole...)
	route("POST /api/v1/products", a.handleCreateProduct, anyRole...)
	route("GET /api/v1/products/categories", a.handleCategories, anyRole...)
	route("POST /api/v1/products/import", a.handleImportProducts, anyRole...)
	route("GET /api/v1/products/{id}", a.handleGetProduct, anyRole...)
	route("PATCH /api/v1/products/{id}", a.handleUpdateProduct, anyRole...)
	route("DELETE /api/v1/products/{id}", a.handleDeleteProduct, anyRole...)
	route("POST /api/v1/products/{id}/stock", a.handleAdjustStock, anyRole...)

	route("POST /api/v1/sessions/open", a.handleOpenSession, anyRole...)
	route("POST /api/v1/sessions/close", a.handleCloseSession, anyRole...)
	route("GET /api/v1/sessions/current", a.handleCurrentSession, anyRole...)
	route("GET /api/v1/sessions", a.handleSessionHistory, anyRole...)
	route("GET /api/v1/sessions/{id}", a.handleGetSession, anyRole...)
	route("GET /api/v1/sessions/{id}/close-summary", a.handleCloseSummary, anyRole...)

	route("POST /api/v1/orders", a.handleCreateOrder, anyRole...)
	route("GET /api/v1/orders", a.handleListOrders, anyRole...)
	route("GET /api/v1/orders/{id}", a.handleGetOrder, anyRole...)
	route("POST /api/v1/orders/{id}/status", a.handleOrderStatus, anyRole...)
	route("POST /api/v1/orders/{id}/void", a.handleVoidOrder, anyRole...)
	route("GET /api/v1/orders/{id}/payments", a.handleListPayments, anyRole...)
	route("POST /api/v1/orders/{id}/payments", a.handleAddPayment, anyRole...)
	route("GET /api/v1/orders/{id}/receipt", a.handleReceipt, anyRole...)
	route("GET /api/v1/orders/{id}/kitchen-ticket", a.handleKitchenTicket, anyRole...)

	route("GET /api/v1/reports/sales-by-date", a.handleSalesByDate, anyRole...)
	route("GET /api/v1/reports/sales-by-category", a.handleSalesByCategory, anyRole...)
	route("GET /api/v1/reports/top-products", a.handleTopProducts, anyRole...)
	route("GET /api/v1/reports/session-summary", a.handleSessionSummary, anyRole...)

	route("GET /api/v1/settings", a.handleGetSettings, anyRole...)
	route("PATCH /api/v1/settings", a.handleUpdateSettings, anyRole...)

	route("GET /api/v1/audit-logs", a.handleAuditLogs, service.RoleAdmin)
	route("GET /api/v1/users/cashiers", a.handleListCashiers, service.RoleAdmin)
	route("POST /api/v1/users/cashiers", a.handleCreateCashier, service.RoleAdmin)
	route("GET /api/v1/backup", a.handleExportBackup, service.RoleAdmin)
	route("POST /api/v1/backup/restore", a.handleImportBackup, service.RoleAdmin)
	route("POST /api/v1/hardware/cash-drawer/open", a.handleCashDrawerOpen, anyRole...)

	return a.withCORS(a.withMiddleware(mux))
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		actor, err := a.auth.ParseToken(strings.TrimSpace(authorization[len("Bearer "):]))
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

var csrfExemptPaths = []string{
	"/api/v1/auth/login",
}

// checkCSRF enforces the X-CSRF-Token header on state-changing methods and
// writes the error response itself.
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
	if !a.validateCSRFToken(strings.TrimSpace(r.Header.Get("X-CSRF-Token"))) {
		writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
		return false
	}
	return true
}

func (a *API) withCORS(next http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: []string{a.allowedOrigin},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-CSRF-Token"},
		MaxAge:         600,
	}).Handler(next)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")

		switch r.Method {
		case http.MethodPost, http.MethodPatch, http.MethodPut:
			limit := int64(maxJSONBody)
			if r.URL.Path == "/api/v1/backup/restore" {
				limit = maxBackupBody
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
		}

		if !a.checkCSRF(w, r) {
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

// statusFor maps core errors to HTTP statuses. Stock conflicts are checked
// before invalid orders because a ValidationError can match both.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound) && !errors.Is(err, store.ErrInvalidOrder):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInsufficientStock),
		errors.Is(err, store.ErrSessionAlreadyOpen),
		errors.Is(err, store.ErrNoOpenSession),
		errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, store.ErrInvalidOrder), errors.Is(err, store.ErrInvalidInput):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeServiceError renders a core error; rejected order lines are listed
// so the client can point at them.
func writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	var validation *store.ValidationError
	if status < 500 && errors.As(err, &validation) {
		lines := make([]map[string]any, 0, len(validation.Lines))
		for _, line := range validation.Lines {
			lines = append(lines, map[string]any{
				"line":       line.Line,
				"product_id": line.ProductID,
				"message":    line.Message,
			})
		}
		writeJSON(w, status, map[string]any{"error": err.Error(), "lines": lines})
		return
	}
	writeError(w, status, err)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	if trimmed := strings.TrimSpace(raw); trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid id %q", r.PathValue("id"))
	}
	return id, nil
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic; the cause only goes to the log.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
