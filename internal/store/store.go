package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/facucarcelero/comandero/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidOrder       = errors.New("invalid order")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrSessionAlreadyOpen = errors.New("a cash session is already open")
	ErrNoOpenSession      = errors.New("no open cash session")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrInvalidInput       = errors.New("invalid input")
	ErrStorage            = errors.New("storage error")
)

// Storage wraps a driver or commit failure so callers can match ErrStorage
// without losing the cause. Business-rule sentinels pass through untouched.
func Storage(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorage) || IsDomainError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorage, err)
}

type CatalogRepository interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)
	ListCategories(ctx context.Context) ([]string, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	ImportProducts(ctx context.Context, products []domain.Product) (int, error)
	// UpdateProduct applies edit to the stored row while it is held, so fields
	// the edit leaves alone keep their committed values.
	UpdateProduct(ctx context.Context, id int64, edit ProductEdit) (*domain.Product, error)
	SetProductActive(ctx context.Context, id int64, active bool) (*domain.Product, error)
	AdjustStock(ctx context.Context, id int64, delta int) (*domain.Product, error)
}

// ProductEdit mutates a copy of the current product. The store validates
// the result before saving it.
type ProductEdit func(product *domain.Product)

type SessionRepository interface {
	CreateSession(ctx context.Context, session domain.CashSession) (*domain.CashSession, error)
	GetOpenSession(ctx context.Context) (*domain.CashSession, error)
	GetSession(ctx context.Context, id int64) (*domain.CashSession, error)
	ListSessions(ctx context.Context, from time.Time, to time.Time) ([]domain.CashSession, error)
	// CloseSession freezes the open session. summarize runs against the
	// session's orders inside the same transaction so no order can slip in
	// between the computation and the status change.
	CloseSession(ctx context.Context, countedCents int64, notes string, closedAt time.Time, summarize SummaryFunc) (*domain.CashSession, error)
}

// SummaryFunc derives the expected cash and the frozen summary of a session.
type SummaryFunc func(session domain.CashSession, orders []domain.Order) (expectedCents int64, summary domain.SessionSummary)

type OrderRepository interface {
	// CreateOrder persists the order and decrements stock for every line in
	// one transaction. The order's session must still be open.
	CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)
	// SessionOrders returns every order of a session with lines and payments.
	SessionOrders(ctx context.Context, sessionID int64) ([]domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status string, at time.Time) (*domain.Order, error)
	// ReverseOrder moves the order to cancelled or voided and restores stock
	// for every line exactly once.
	ReverseOrder(ctx context.Context, id int64, status string, reason string, at time.Time) (*domain.Order, error)
}

type PaymentRepository interface {
	AddPayment(ctx context.Context, payment domain.Payment) (*domain.Payment, error)
	ListPayments(ctx context.Context, orderID int64) ([]domain.Payment, error)
}

type ReportRepository interface {
	// CompletedOrders returns completed orders created in [from, to) with lines.
	CompletedOrders(ctx context.Context, from time.Time, to time.Time) ([]domain.Order, error)
	SessionsOpenedBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.CashSession, error)
}

type SettingsRepository interface {
	GetSettings(ctx context.Context) (map[string]string, error)
	PutSettings(ctx context.Context, values map[string]string) error
}

type AuditRepository interface {
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}

type UserRepository interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type BackupRepository interface {
	Snapshot(ctx context.Context) (domain.Dataset, error)
	// Restore replaces products, sessions, orders and payments with the
	// dataset in a single transaction. Settings carried by the dataset are
	// written in that same transaction.
	Restore(ctx context.Context, data domain.Dataset) error
}

type Repository interface {
	CatalogRepository
	SessionRepository
	OrderRepository
	PaymentRepository
	ReportRepository
	SettingsRepository
	AuditRepository
	UserRepository
	BackupRepository
}
