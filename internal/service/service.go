package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/facucarcelero/comandero/internal/cache"
	"github.com/facucarcelero/comandero/internal/domain"
	"github.com/facucarcelero/comandero/internal/events"
	"github.com/facucarcelero/comandero/internal/printer"
	"github.com/facucarcelero/comandero/internal/store"
)

var ErrForbidden = errors.New("admin role required")

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != RoleAdmin {
		return ErrForbidden
	}
	return nil
}

type Options struct {
	Defaults     domain.Settings
	Events       events.Publisher
	ReportCache  cache.ReportCache
	ReportTTL    time.Duration
	Printer      printer.Printer
	PrinterWidth int
	Now          func() time.Time
}

// Service wires the transaction core together. Each component is usable on
// its own; Service only owns construction and the shared side effects.
type Service struct {
	repo     store.Repository
	recorder *recorder

	Catalog  *Catalog
	Sessions *SessionManager
	Orders   *OrderEngine
	Payments *PaymentLedger
	Reports  *Reporter
	Settings *SettingsManager
	Receipts *Receipts
}

func New(repo store.Repository, opts Options) *Service {
	if opts.Events == nil {
		opts.Events = events.NoopPublisher{}
	}
	if opts.ReportCache == nil {
		opts.ReportCache = cache.NoopReportCache{}
	}
	if opts.ReportTTL <= 0 {
		opts.ReportTTL = 30 * time.Second
	}
	if opts.Printer == nil {
		opts.Printer = printer.NullPrinter{}
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	rec := &recorder{audit: repo, events: opts.Events, cache: opts.ReportCache, now: opts.Now}
	settings := &SettingsManager{repo: repo, defaults: opts.Defaults, recorder: rec}
	sessions := &SessionManager{repo: repo, recorder: rec, now: opts.Now}

	return &Service{
		repo:     repo,
		recorder: rec,
		Catalog:  &Catalog{repo: repo, recorder: rec},
		Sessions: sessions,
		Orders:   &OrderEngine{repo: repo, sessions: sessions, settings: settings, recorder: rec, now: opts.Now},
		Payments: &PaymentLedger{repo: repo, recorder: rec, now: opts.Now},
		Reports:  &Reporter{repo: repo, cache: opts.ReportCache, ttl: opts.ReportTTL},
		Settings: settings,
		Receipts: &Receipts{repo: repo, settings: settings, printer: opts.Printer, width: opts.PrinterWidth},
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

// recorder owns the side effects that follow a committed change. None of
// them can fail the operation that triggered them.
type recorder struct {
	audit  store.AuditRepository
	events events.Publisher
	cache  cache.ReportCache
	now    func() time.Time
}

func (r *recorder) logAudit(ctx context.Context, action string, entityType string, entityID int64, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := r.audit.CreateAuditLog(ctx, domain.AuditLog{
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      fmt.Sprintf("%d", entityID),
		Detail:        detail,
		CreatedAt:     r.now(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%d: %v", action, entityType, entityID, err)
	}
}

// emit invalidates cached reports and publishes the event.
func (r *recorder) emit(ctx context.Context, event events.Event) {
	if actor, ok := ActorFromContext(ctx); ok {
		event.Actor = actor.Username
	}
	if err := r.cache.Invalidate(ctx); err != nil {
		log.Printf("[service] WARN: failed to invalidate report cache after %s: %v", event.Type, err)
	}
	if err := r.events.Publish(ctx, event); err != nil {
		log.Printf("[events] WARN: failed to publish %s %s/%d: %v", event.Type, event.EntityType, event.EntityID, err)
	}
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", store.ErrInvalidInput, fmt.Sprintf(format, args...))
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
