package memory

import (
	"cmp"
	"context"
	"fmt"
	"log"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/facucarcelero/comandero/internal/domain"
	"github.com/facucarcelero/comandero/internal/store"
)

// Store keeps the whole dataset behind one RWMutex, so every write is a
// single critical section and check-then-act sequences cannot interleave.
type Store struct {
	mu            sync.RWMutex
	products      map[int64]domain.Product
	sessions      map[int64]domain.CashSession
	openSessionID int64
	orders        map[int64]domain.Order
	payments      map[int64][]domain.Payment
	settings      map[string]string
	auditLogs     []domain.AuditLog
	users         map[string]domain.UserAccount

	nextProductID int64
	nextSessionID int64
	nextOrderID   int64
	nextPaymentID int64
	nextAuditID   int64
}

var _ store.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		products:  make(map[int64]domain.Product),
		sessions:  make(map[int64]domain.CashSession),
		orders:    make(map[int64]domain.Order),
		payments:  make(map[int64][]domain.Payment),
		settings:  make(map[string]string),
		auditLogs: make([]domain.AuditLog, 0, 128),
		users:     make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store with a small restaurant menu and the dev users.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	for _, p := range []domain.Product{
		{Name: "Empanada de Carne", Category: "comidas", PriceCents: 2500, Stock: 80},
		{Name: "Arepa con Queso", Category: "comidas", PriceCents: 4500, Stock: 60},
		{Name: "Bandeja Paisa", Category: "comidas", PriceCents: 28000, Stock: 25},
		{Name: "Limonada de Coco", Category: "bebidas", PriceCents: 7000, Stock: 40},
		{Name: "Cafe Tinto", Category: "bebidas", PriceCents: 2000, Stock: 120},
		{Name: "Cerveza Club", Category: "bebidas", PriceCents: 6000, Stock: 96},
		{Name: "Arroz con Leche", Category: "postres", PriceCents: 5000, Stock: 30},
	} {
		s.nextProductID++
		p.ID = s.nextProductID
		p.Active = true
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
	}
	s.users = seedUsers()
	return s
}

// seedUsers builds the dev/demo accounts. Passwords come from
// SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD with a warning when the
// hardcoded fallbacks are used.
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

// ---- catalog ----

func (s *Store) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) ListProducts(_ context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active && !filter.IncludeInactive {
			continue
		}
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			if a.Name == b.Name {
				return cmp.Compare(a.ID, b.ID)
			}
			return cmp.Compare(a.Name, b.Name)
		}
		return cmp.Compare(a.Category, b.Category)
	})
	return products, nil
}

func (s *Store) ListCategories(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, p := range s.products {
		if p.Active && p.Category != "" {
			seen[p.Category] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(seen)), nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if err := store.ValidateProduct(product); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	created := s.insertProductLocked(product, time.Now().UTC())
	return &created, nil
}

func (s *Store) ImportProducts(_ context.Context, products []domain.Product) (int, error) {
	for i, p := range products {
		if err := store.ValidateProduct(p); err != nil {
			return 0, fmt.Errorf("row %d: %w", i+1, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, p := range products {
		s.insertProductLocked(p, now)
	}
	return len(products), nil
}

func (s *Store) insertProductLocked(product domain.Product, now time.Time) domain.Product {
	s.nextProductID++
	product.ID = s.nextProductID
	product.Active = true
	product.CreatedAt = now
	product.UpdatedAt = now
	s.products[product.ID] = product
	return product
}

func (s *Store) UpdateProduct(_ context.Context, id int64, edit store.ProductEdit) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	product := existing
	edit(&product)
	product.ID = id
	product.CreatedAt = existing.CreatedAt
	if err := store.ValidateProduct(product); err != nil {
		return nil, err
	}
	product.UpdatedAt = time.Now().UTC()
	s.products[id] = product
	return &product, nil
}

func (s *Store) SetProductActive(_ context.Context, id int64, active bool) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	product.Active = active
	product.UpdatedAt = time.Now().UTC()
	s.products[id] = product
	return &product, nil
}

func (s *Store) AdjustStock(_ context.Context, id int64, delta int) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if product.Stock+delta < 0 {
		return nil, store.ErrInsufficientStock
	}
	product.Stock += delta
	product.UpdatedAt = time.Now().UTC()
	s.products[id] = product
	return &product, nil
}

// ---- sessions ----

func (s *Store) CreateSession(_ context.Context, session domain.CashSession) (*domain.CashSession, error) {
	if strings.TrimSpace(session.Responsible) == "" || session.OpeningAmountCents < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.openSessionID != 0 {
		return nil, store.ErrSessionAlreadyOpen
	}
	if session.OpenedAt.IsZero() {
		session.OpenedAt = time.Now().UTC()
	}
	s.nextSessionID++
	session.ID = s.nextSessionID
	session.Status = domain.SessionStatusOpen
	session.ClosedAt = nil
	session.CountedAmountCents = nil
	session.ExpectedAmountCents = nil
	session.DifferenceCents = nil
	session.Summary = nil

	s.sessions[session.ID] = session
	s.openSessionID = session.ID
	return cloneSession(session), nil
}

func (s *Store) GetOpenSession(_ context.Context) (*domain.CashSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.openSessionID == 0 {
		return nil, store.ErrNoOpenSession
	}
	return cloneSession(s.sessions[s.openSessionID]), nil
}

func (s *Store) GetSession(_ context.Context, id int64) (*domain.CashSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneSession(session), nil
}

func (s *Store) ListSessions(_ context.Context, from time.Time, to time.Time) ([]domain.CashSession, error) {
	return s.sessionsBetween(from, to), nil
}

func (s *Store) SessionsOpenedBetween(_ context.Context, from time.Time, to time.Time) ([]domain.CashSession, error) {
	return s.sessionsBetween(from, to), nil
}

func (s *Store) sessionsBetween(from time.Time, to time.Time) []domain.CashSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CashSession, 0, 8)
	for _, session := range s.sessions {
		if inRange(session.OpenedAt, from, to) {
			result = append(result, *cloneSession(session))
		}
	}
	slices.SortFunc(result, func(a, b domain.CashSession) int {
		return -cmp.Compare(a.ID, b.ID)
	})
	return result
}

func (s *Store) CloseSession(_ context.Context, countedCents int64, notes string, closedAt time.Time, summarize store.SummaryFunc) (*domain.CashSession, error) {
	if countedCents < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.openSessionID == 0 {
		return nil, store.ErrNoOpenSession
	}
	session := s.sessions[s.openSessionID]
	expected, summary := summarize(*cloneSession(session), s.sessionOrdersLocked(session.ID))

	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}
	difference := countedCents - expected
	session.Status = domain.SessionStatusClosed
	session.ClosedAt = &closedAt
	session.CountedAmountCents = &countedCents
	session.ExpectedAmountCents = &expected
	session.DifferenceCents = &difference
	session.Notes = notes
	session.Summary = &summary

	s.sessions[session.ID] = session
	s.openSessionID = 0
	return cloneSession(session), nil
}

// ---- orders ----

func (s *Store) CreateOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	if len(order.Lines) == 0 {
		return nil, store.ErrInvalidOrder
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[order.SessionID]
	if !ok || session.Status != domain.SessionStatusOpen {
		return nil, store.ErrNoOpenSession
	}

	validation := &store.ValidationError{}
	reserved := make(map[int64]int, len(order.Lines))
	priced := make([]domain.OrderLine, 0, len(order.Lines))
	for i, line := range order.Lines {
		req := domain.OrderLineRequest{ProductID: line.ProductID, Qty: line.Qty}
		var product *domain.Product
		if p, exists := s.products[line.ProductID]; exists {
			p.Stock -= reserved[p.ID]
			product = &p
		}
		if lineErr := store.CheckLine(i, req, product); lineErr != nil {
			validation.Add(*lineErr)
			continue
		}
		reserved[product.ID] += line.Qty
		priced = append(priced, store.PriceLine(*product, line.Qty))
	}
	if err := validation.OrNil(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for _, line := range priced {
		product := s.products[line.ProductID]
		product.Stock -= line.Qty
		product.UpdatedAt = now
		s.products[line.ProductID] = product
	}

	s.nextOrderID++
	order.ID = s.nextOrderID
	order.Lines = priced
	order.SubtotalCents, order.TaxCents, order.TotalCents = domain.Totals(priced, order.TaxRateBP)
	order.Status = domain.OrderStatusPending
	order.Payments = nil
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = order.CreatedAt
	s.orders[order.ID] = order
	return s.orderLocked(order.ID), nil
}

func (s *Store) GetOrder(_ context.Context, id int64) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.orders[id]; !ok {
		return nil, store.ErrNotFound
	}
	return s.orderLocked(id), nil
}

func (s *Store) ListOrders(_ context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Order, 0, 32)
	for id, order := range s.orders {
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		if filter.TableRef != "" && order.TableRef != filter.TableRef {
			continue
		}
		if filter.SessionID != 0 && order.SessionID != filter.SessionID {
			continue
		}
		if filter.From != nil && order.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !order.CreatedAt.Before(*filter.To) {
			continue
		}
		result = append(result, *s.orderLocked(id))
	}
	slices.SortFunc(result, newestFirst)
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) SessionOrders(_ context.Context, sessionID int64) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sessionOrdersLocked(sessionID), nil
}

func (s *Store) sessionOrdersLocked(sessionID int64) []domain.Order {
	result := make([]domain.Order, 0, 32)
	for id, order := range s.orders {
		if order.SessionID == sessionID {
			result = append(result, *s.orderLocked(id))
		}
	}
	slices.SortFunc(result, func(a, b domain.Order) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return result
}

func (s *Store) UpdateOrderStatus(_ context.Context, id int64, status string, at time.Time) (*domain.Order, error) {
	if domain.IsReversal(status) {
		return nil, store.ErrInvalidTransition
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !domain.CanTransition(order.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, order.Status, status)
	}
	order.Status = status
	order.UpdatedAt = at
	s.orders[id] = order
	return s.orderLocked(id), nil
}

func (s *Store) ReverseOrder(_ context.Context, id int64, status string, reason string, at time.Time) (*domain.Order, error) {
	if !domain.IsReversal(status) {
		return nil, store.ErrInvalidTransition
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !domain.CanTransition(order.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, order.Status, status)
	}

	for _, line := range order.Lines {
		product, exists := s.products[line.ProductID]
		if !exists {
			continue
		}
		product.Stock += line.Qty
		product.UpdatedAt = at
		s.products[line.ProductID] = product
	}

	order.Status = status
	order.ReversalReason = reason
	order.ReversedAt = &at
	order.UpdatedAt = at
	s.orders[id] = order
	return s.orderLocked(id), nil
}

// ---- payments ----

func (s *Store) AddPayment(_ context.Context, payment domain.Payment) (*domain.Payment, error) {
	if payment.AmountCents <= 0 || !domain.IsPaymentMethod(payment.Method) {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[payment.OrderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if domain.IsReversal(order.Status) {
		return nil, fmt.Errorf("%w: order is %s", store.ErrInvalidTransition, order.Status)
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}
	s.nextPaymentID++
	payment.ID = s.nextPaymentID
	s.payments[payment.OrderID] = append(s.payments[payment.OrderID], payment)
	return &payment, nil
}

func (s *Store) ListPayments(_ context.Context, orderID int64) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.orders[orderID]; !ok {
		return nil, store.ErrNotFound
	}
	return slices.Clone(s.payments[orderID]), nil
}

// ---- reports ----

func (s *Store) CompletedOrders(_ context.Context, from time.Time, to time.Time) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Order, 0, 64)
	for id, order := range s.orders {
		if order.Status != domain.OrderStatusCompleted || !inRange(order.CreatedAt, from, to) {
			continue
		}
		result = append(result, *s.orderLocked(id))
	}
	slices.SortFunc(result, func(a, b domain.Order) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return result, nil
}

// ---- settings ----

func (s *Store) GetSettings(_ context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return maps.Clone(s.settings), nil
}

func (s *Store) PutSettings(_ context.Context, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	maps.Copy(s.settings, values)
	return nil
}

// ---- audit ----

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextAuditID++
	entry.ID = s.nextAuditID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0 && len(result) < limit; i-- {
		entry := s.auditLogs[i]
		if inRange(entry.CreatedAt, from, to) {
			result = append(result, entry)
		}
	}
	return result, nil
}

// ---- users ----

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[username]; exists {
		return fmt.Errorf("%w: username already exists", store.ErrInvalidInput)
	}
	user.Username = username
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.users[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := slices.Collect(maps.Values(s.users))
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmp.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.users[username] = user
	return nil
}

// ---- backup ----

func (s *Store) Snapshot(_ context.Context) (domain.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data := domain.Dataset{
		Products: slices.Collect(maps.Values(s.products)),
		Sessions: make([]domain.CashSession, 0, len(s.sessions)),
		Orders:   make([]domain.Order, 0, len(s.orders)),
	}
	slices.SortFunc(data.Products, func(a, b domain.Product) int { return cmp.Compare(a.ID, b.ID) })
	for _, session := range s.sessions {
		data.Sessions = append(data.Sessions, *cloneSession(session))
	}
	slices.SortFunc(data.Sessions, func(a, b domain.CashSession) int { return cmp.Compare(a.ID, b.ID) })
	for id := range s.orders {
		data.Orders = append(data.Orders, *s.orderLocked(id))
	}
	slices.SortFunc(data.Orders, func(a, b domain.Order) int { return cmp.Compare(a.ID, b.ID) })
	return data, nil
}

func (s *Store) Restore(_ context.Context, data domain.Dataset) error {
	products := make(map[int64]domain.Product, len(data.Products))
	sessions := make(map[int64]domain.CashSession, len(data.Sessions))
	orders := make(map[int64]domain.Order, len(data.Orders))
	payments := make(map[int64][]domain.Payment)
	var openID, maxProduct, maxSession, maxOrder, maxPayment int64

	for _, p := range data.Products {
		if err := store.ValidateProduct(p); err != nil {
			return err
		}
		products[p.ID] = p
		maxProduct = max(maxProduct, p.ID)
	}
	for _, session := range data.Sessions {
		if session.Status == domain.SessionStatusOpen {
			if openID != 0 {
				return fmt.Errorf("%w: backup holds more than one open session", store.ErrInvalidInput)
			}
			openID = session.ID
		}
		sessions[session.ID] = *cloneSession(session)
		maxSession = max(maxSession, session.ID)
	}
	for _, order := range data.Orders {
		for _, payment := range order.Payments {
			payments[order.ID] = append(payments[order.ID], payment)
			maxPayment = max(maxPayment, payment.ID)
		}
		order.Payments = nil
		order.Lines = slices.Clone(order.Lines)
		orders[order.ID] = order
		maxOrder = max(maxOrder, order.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.products, s.sessions, s.orders, s.payments = products, sessions, orders, payments
	if data.Settings != nil {
		maps.Copy(s.settings, data.Settings.Values())
	}
	s.openSessionID = openID
	s.nextProductID, s.nextSessionID, s.nextOrderID, s.nextPaymentID = maxProduct, maxSession, maxOrder, maxPayment
	return nil
}

// ---- helpers ----

// orderLocked returns a deep copy of the order with its payments attached.
func (s *Store) orderLocked(id int64) *domain.Order {
	order := s.orders[id]
	order.Lines = slices.Clone(order.Lines)
	order.Payments = slices.Clone(s.payments[id])
	if order.ReversedAt != nil {
		at := *order.ReversedAt
		order.ReversedAt = &at
	}
	return &order
}

func cloneSession(src domain.CashSession) *domain.CashSession {
	dst := src
	if src.ClosedAt != nil {
		v := *src.ClosedAt
		dst.ClosedAt = &v
	}
	if src.CountedAmountCents != nil {
		v := *src.CountedAmountCents
		dst.CountedAmountCents = &v
	}
	if src.ExpectedAmountCents != nil {
		v := *src.ExpectedAmountCents
		dst.ExpectedAmountCents = &v
	}
	if src.DifferenceCents != nil {
		v := *src.DifferenceCents
		dst.DifferenceCents = &v
	}
	if src.Summary != nil {
		summary := *src.Summary
		summary.CountsByStatus = maps.Clone(src.Summary.CountsByStatus)
		summary.PaymentsByMethod = maps.Clone(src.Summary.PaymentsByMethod)
		dst.Summary = &summary
	}
	return &dst
}

func newestFirst(a, b domain.Order) int {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return -cmp.Compare(a.ID, b.ID)
	}
	if a.CreatedAt.After(b.CreatedAt) {
		return -1
	}
	return 1
}

func inRange(at time.Time, from time.Time, to time.Time) bool {
	if !from.IsZero() && at.Before(from) {
		return false
	}
	if !to.IsZero() && !at.Before(to) {
		return false
	}
	return true
}
