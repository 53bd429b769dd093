package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/facucarcelero/comandero/internal/domain"
	"github.com/facucarcelero/comandero/internal/events"
	"github.com/facucarcelero/comandero/internal/store"
	"github.com/facucarcelero/comandero/internal/store/memory"
)

const (
	empanadaID = int64(1)
	bandejaID  = int64(3)
	limonadaID = int64(4)
	cafeID     = int64(5)
)

var testDefaults = domain.Settings{
	TaxRateBP:        1900,
	Currency:         "COP",
	CurrencySymbol:   "$",
	CurrencyDecimals: 0,
	Locale:           "es-CO",
	BusinessName:     "Comandero",
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func newTestService() (*Service, *memory.Store) {
	repo := memory.NewSeeded()
	return New(repo, Options{Defaults: testDefaults}), repo
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: RoleAdmin})
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "cashier", Role: RoleCashier})
}

func openSession(t *testing.T, svc *Service, opening int64) domain.CashSession {
	t.Helper()
	session, err := svc.Sessions.Open(cashierCtx(), domain.SessionOpenRequest{OpeningAmountCents: opening, Responsible: "Ana"})
	if err != nil {
		t.Fatalf("open session failed: %v", err)
	}
	return session
}

func stockOf(t *testing.T, svc *Service, id int64) int {
	t.Helper()
	product, err := svc.Catalog.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get product %d: %v", id, err)
	}
	return product.Stock
}

func TestOpenSessionRequiresResponsible(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Sessions.Open(context.Background(), domain.SessionOpenRequest{OpeningAmountCents: 1000})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}

	session, err := svc.Sessions.Open(cashierCtx(), domain.SessionOpenRequest{OpeningAmountCents: 1000})
	if err != nil {
		t.Fatalf("open with actor failed: %v", err)
	}
	if session.Responsible != "cashier" {
		t.Fatalf("expected actor as responsible, got %q", session.Responsible)
	}
}

func TestOnlyOneSessionOpen(t *testing.T) {
	svc, _ := newTestService()
	openSession(t, svc, 10000)

	_, err := svc.Sessions.Open(cashierCtx(), domain.SessionOpenRequest{OpeningAmountCents: 0, Responsible: "Beto"})
	if !errors.Is(err, store.ErrSessionAlreadyOpen) {
		t.Fatalf("expected session already open, got %v", err)
	}
}

func TestConcurrentSessionOpensYieldOneSession(t *testing.T) {
	svc, _ := newTestService()

	var wg sync.WaitGroup
	var mu sync.Mutex
	opened, rejected := 0, 0
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Sessions.Open(cashierCtx(), domain.SessionOpenRequest{Responsible: "Ana"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				opened++
			case errors.Is(err, store.ErrSessionAlreadyOpen):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if opened != 1 || rejected != 11 {
		t.Fatalf("expected 1 opened and 11 rejected, got %d and %d", opened, rejected)
	}
}

func TestCurrentWithoutSession(t *testing.T) {
	svc, _ := newTestService()
	if _, err := svc.Sessions.Current(context.Background()); !errors.Is(err, store.ErrNoOpenSession) {
		t.Fatalf("expected no open session, got %v", err)
	}
	if _, err := svc.Sessions.Close(context.Background(), domain.SessionCloseRequest{}); !errors.Is(err, store.ErrNoOpenSession) {
		t.Fatalf("expected no open session on close, got %v", err)
	}
}

func TestCloseSessionReconcilesAndFreezesSummary(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierCtx()
	session := openSession(t, svc, 10000)

	completed, err := svc.Orders.Create(ctx, domain.OrderCreateRequest{Lines: []domain.OrderLineRequest{{ProductID: empanadaID, Qty: 2}}})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if _, err := svc.Orders.ChangeStatus(ctx, completed.ID, domain.OrderStatusRequest{Status: domain.OrderStatusCompleted}); err != nil {
		t.Fatalf("complete order: %v", err)
	}
	if _, err := svc.Payments.Add(ctx, completed.ID, domain.PaymentRequest{Method: "cash", AmountCents: 5950}); err != nil {
		t.Fatalf("add payment: %v", err)
	}
	pending, err := svc.Orders.Create(ctx, domain.OrderCreateRequest{Lines: []domain.OrderLineRequest{{ProductID: cafeID, Qty: 1}}})
	if err != nil {
		t.Fatalf("create pending order: %v", err)
	}
	voided, err := svc.Orders.Create(ctx, domain.OrderCreateRequest{Lines: []domain.OrderLineRequest{{ProductID: bandejaID, Qty: 1}}})
	if err != nil {
		t.Fatalf("create order to void: %v", err)
	}
	if _, err := svc.Orders.Void(ctx, voided.ID, "mesa equivocada"); err != nil {
		t.Fatalf("void order: %v", err)
	}

	result, err := svc.Sessions.Close(ctx, domain.SessionCloseRequest{CountedAmountCents: 18000, Notes: "faltante menor"})
	if err != nil {
		t.Fatalf("close session: %v", err)
	}
	if result.ExpectedCents != 18330 {
		t.Fatalf("expected 18330, got %d", result.ExpectedCents)
	}
	if result.DifferenceCents != -330 || result.CountedCents != 18000 {
		t.Fatalf("expected counted 18000 difference -330, got %d %d", result.CountedCents, result.DifferenceCents)
	}
	if result.ExpectedByPaymentsCents != 15950 {
		t.Fatalf("expected by payments 15950, got %d", result.ExpectedByPaymentsCents)
	}
	summary := result.Summary
	if summary.TotalSalesCents != 5950 || summary.OpenSalesCents != 2380 || summary.OrderCount != 3 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.CountsByStatus[domain.OrderStatusVoided] != 1 || summary.PaymentsByMethod["cash"] != 5950 {
		t.Fatalf("unexpected breakdown %+v", summary)
	}

	if _, err := svc.Orders.Void(ctx, pending.ID, "cliente se fue"); err != nil {
		t.Fatalf("void after close: %v", err)
	}
	reloaded, err := svc.Sessions.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if reloaded.Status != domain.SessionStatusClosed || reloaded.Summary == nil {
		t.Fatalf("expected closed session with summary, got %+v", reloaded)
	}
	if reloaded.Summary.OpenSalesCents != 2380 || *reloaded.ExpectedAmountCents != 18330 {
		t.Fatalf("frozen summary changed: %+v", reloaded.Summary)
	}

	if _, err := svc.Orders.Create(ctx, domain.OrderCreateRequest{Lines: []domain.OrderLineRequest{{ProductID: cafeID, Qty: 1}}}); !errors.Is(err, store.ErrNoOpenSession) {
		t.Fatalf("expected no open session after close, got %v", err)
	}
}

func TestCloseRejectsNegativeCount(t *testing.T) {
	svc, _ := newTestService()
	openSession(t, svc, 0)
	if _, err := svc.Sessions.Close(cashierCtx(), domain.SessionCloseRequest{CountedAmountCents: -1}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestSessionHistory(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	svc := New(memory.NewSeeded(), Options{Defaults: testDefaults, Now: clock.Now})
	ctx := cashierCtx()

	for day := 1; day <= 3; day++ {
		clock.Set(time.Date(2024, 5, day, 9, 0, 0, 0, time.UTC))
		openSession(t, svc, int64(day)*1000)
		if _, err := svc.Sessions.Close(ctx, domain.SessionCloseRequest{CountedAmountCents: int64(day) * 1000}); err != nil {
			t.Fatalf("close day %d: %v", day, err)
		}
	}

	history, err := svc.Sessions.History(ctx, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), time.Date(2024, 5, 4, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[0].OpeningAmountCents != 3000 || history[1].OpeningAmountCents != 2000 {
		t.Fatalf("expected days 3 and 2 newest first, got %+v", history)
	}

	if _, err := svc.Sessions.History(ctx, time.Date(2024, 5, 4, 0, 0, 0, 0, time.UTC), time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid range error, got %v", err)
	}
}

func TestCatalogMutationsRequireAdmin(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Catalog.Create(cashierCtx(), domain.ProductCreateRequest{Name: "Pandebono", PriceCents: 1500, Stock: 10})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	created, err := svc.Catalog.Create(adminCtx(), domain.ProductCreateRequest{Name: "  Pandebono ", Category: "Panaderia", PriceCents: 1500, Stock: 10})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if created.Name != "Pandebono" || created.Category != "panaderia" || !created.Active {
		t.Fatalf("unexpected product %+v", created)
	}

	if _, err := svc.Catalog.Create(adminCtx(), domain.ProductCreateRequest{Name: "Gratis", PriceCents: -1}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for negative price, got %v", err)
	}
}

func TestCatalogUpdateAndSoftDelete(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	price := int64(3000)
	updated, err := svc.Catalog.Update(ctx, empanadaID, domain.ProductUpdateRequest{PriceCents: &price})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.PriceCents != 3000 || updated.Name != "Empanada de Carne" {
		t.Fatalf("partial update lost fields: %+v", updated)
	}

	if _, err := svc.Catalog.SoftDelete(ctx, empanadaID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	products, err := svc.Catalog.List(ctx, domain.ProductFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, p := range products {
		if p.ID == empanadaID {
			t.Fatalf("inactive product listed")
		}
	}
	all, err := svc.Catalog.List(ctx, domain.ProductFilter{IncludeInactive: true})
	if err != nil {
		t.Fatalf("list inactive: %v", err)
	}
	if len(all) != len(products)+1 {
		t.Fatalf("expected inactive product with include_inactive, got %d vs %d", len(all), len(products))
	}

	openSession(t, svc, 0)
	_, err = svc.Orders.Create(cashierCtx(), domain.OrderCreateRequest{Lines: []domain.OrderLineRequest{{ProductID: empanadaID, Qty: 1}}})
	if !errors.Is(err, store.ErrInvalidOrder) {
		t.Fatalf("expected inactive product to be rejected, got %v", err)
	}
}

// orderDuringEditRepo commits whatever beforeEdit does between the moment
// the catalog asks for a product edit and the moment the store applies it.
type orderDuringEditRepo struct {
	*memory.Store
	beforeEdit func()
}

func (r *orderDuringEditRepo) UpdateProduct(ctx context.Context, id int64, edit store.ProductEdit) (*domain.Product, error) {
	if hook := r.beforeEdit; hook != nil {
		r.beforeEdit = nil
		hook()
	}
	return r.Store.UpdateProduct(ctx, id, edit)
}

func TestNameOnlyUpdateKeepsStockFromInterleavedOrder(t *testing.T) {
	repo := &orderDuringEditRepo{Store: memory.NewSeeded()}
	svc := New(repo, Options{Defaults: testDefaults})
	openSession(t, svc, 0)
	before := stockOf(t, svc, empanadaID)

	var order domain.Order
	repo.beforeEdit = func() {
		var err error
		order, err = svc.Orders.Create(cashierCtx(), domain.OrderCreateRequest{Lines: []domain.OrderLineRequest{{ProductID: empanadaID, Qty: 2}}})
		if err != nil {
			t.Errorf("create order during edit: %v", err)
		}
	}

	name := "Empanada de Pollo"
	updated, err := svc.Catalog.Update(adminCtx(), empanadaID, domain.ProductUpdateRequest{Name: &name})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != name || updated.Stock != before-2 {
		t.Fatalf("expected renamed product with stock %d, got %+v", before-2, updated)
	}

	if _, err := svc.Orders.Void(cashierCtx(), order.ID, "cliente se fue"); err != nil {
		t.Fatalf("void: %v", err)
	}
	if got := stockOf(t, svc, empanadaID); got != before {
		t.Fatalf("expected stock back at %d after void, got %d", before, got)
	}
}

func TestConcurrentEditsAndOrdersKeepStock(t *testing.T) {
	svc, _ := newTestService()
	openSession(t, svc, 0)
	before := stockOf(t, svc, cafeID)

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			price := int64(2000 + i)
			if _, err := svc.Catalog.Update(adminCtx(), cafeID, domain.ProductUpdateRequest{PriceCents: &price}); err != nil {
				t.Errorf("update: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := svc.Orders.Create(cashierCtx(), domain.OrderCreateRequest{Lines: []domain.OrderLineRequest{{ProductID: cafeID, Qty: 1}}}); err != nil {
				t.Errorf("order: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := stockOf(t, svc, cafeID); got != before-10 {
		t.Fatalf("expected stock %d after 10 orders, got %d", before-10, got)
	}
}

func TestUpdateRejectsNegativeStock(t *testing.T) {
	svc, _ := newTestService()
	stock := -1
	if _, err := svc.Catalog.Update(adminCtx(), cafeID, domain.ProductUpdateRequest{Stock: &stock}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if got := stockOf(t, svc, cafeID); got != 120 {
		t.Fatalf("stock changed by rejected edit: %d", got)
	}
}

func TestAdjustStock(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	product, err := svc.Catalog.AdjustStock(ctx, bandejaID, domain.StockAdjustRequest{Delta: -5, Reason: "merma"})
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if product.Stock != 20 {
		t.Fatalf("expected stock 20, got %d", product.Stock)
	}
	if _, err := svc.Catalog.AdjustStock(ctx, bandejaID, domain.StockAdjustRequest{Delta: -21}); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if _, err := svc.Catalog.AdjustStock(ctx, bandejaID, domain.StockAdjustRequest{Delta: 0}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for zero delta, got %v", err)
	}
	if stockOf(t, svc, bandejaID) != 20 {
		t.Fatalf("failed adjustments must not change stock")
	}
}

func TestImportIsAllOrNothing(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	before, _ := svc.Catalog.List(ctx, domain.ProductFilter{IncludeInactive: true})
	_, err := svc.Catalog.Import(ctx, []domain.ProductCreateRequest{
		{Name: "Aguapanela", Category: "bebidas", PriceCents: 2500, Stock: 10},
		{Name: "", Category: "bebidas", PriceCents: 2500, Stock: 10},
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	after, _ := svc.Catalog.List(ctx, domain.ProductFilter{IncludeInactive: true})
	if len(after) != len(before) {
		t.Fatalf("partial import happened: %d -> %d", len(before), len(after))
	}

	count, err := svc.Catalog.Import(ctx, []domain.ProductCreateRequest{
		{Name: "Aguapanela", Category: "bebidas", PriceCents: 2500, Stock: 10},
		{Name: "Buñuelo", Category: "panaderia", PriceCents: 1200, Stock: 30},
	})
	if err != nil || count != 2 {
		t.Fatalf("expected 2 imported, got %d %v", count, err)
	}
	categories, err := svc.Catalog.Categories(ctx)
	if err != nil {
		t.Fatalf("categories: %v", err)
	}
	if len(categories) != 4 || categories[2] != "panaderia" {
		t.Fatalf("unexpected categories %v", categories)
	}
}

func TestSettingsUpdateAffectsNewOrdersOnly(t *testing.T) {
	svc, _ := newTestService()
	openSession(t, svc, 0)
	ctx := cashierCtx()

	before, err := svc.Orders.Create(ctx, domain.OrderCreateRequest{Lines: []domain.OrderLineRequest{{ProductID: cafeID, Qty: 1}}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	rate := int64(800)
	if _, err := svc.Settings.Update(ctx, domain.SettingsUpdateRequest{TaxRateBP: &rate}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected cashier to be forbidden, got %v", err)
	}
	settings, err := svc.Settings.Update(adminCtx(), domain.SettingsUpdateRequest{TaxRateBP: &rate})
	if err != nil {
		t.Fatalf("update settings: %v", err)
	}
	if settings.TaxRateBP != 800 || settings.Currency != "COP" {
		t.Fatalf("unexpected settings %+v", settings)
	}

	after, err := svc.Orders.Create(ctx, domain.OrderCreateRequest{Lines: []domain.OrderLineRequest{{ProductID: cafeID, Qty: 1}}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if after.TaxCents != 160 || after.TaxRateBP != 800 {
		t.Fatalf("expected 8%% tax on new order, got %d at %d", after.TaxCents, after.TaxRateBP)
	}
	reloaded, _ := svc.Orders.Get(ctx, before.ID)
	if reloaded.TaxCents != 380 || reloaded.TaxRateBP != 1900 {
		t.Fatalf("existing order changed: %+v", reloaded)
	}

	bad := int64(10001)
	if _, err := svc.Settings.Update(adminCtx(), domain.SettingsUpdateRequest{TaxRateBP: &bad}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid tax rate, got %v", err)
	}
	locale := "not a locale!"
	if _, err := svc.Settings.Update(adminCtx(), domain.SettingsUpdateRequest{Locale: &locale}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid locale, got %v", err)
	}
}

func TestAuditAndEventsFollowCommittedChanges(t *testing.T) {
	publisher := &recordingPublisher{}
	svc := New(memory.NewSeeded(), Options{Defaults: testDefaults, Events: publisher})
	ctx := cashierCtx()

	openSession(t, svc, 5000)
	order, err := svc.Orders.Create(ctx, domain.OrderCreateRequest{Lines: []domain.OrderLineRequest{{ProductID: cafeID, Qty: 1}}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Orders.Create(ctx, domain.OrderCreateRequest{Lines: []domain.OrderLineRequest{{ProductID: cafeID, Qty: 999}}}); err == nil {
		t.Fatalf("expected oversized order to fail")
	}
	if _, err := svc.Payments.Add(ctx, order.ID, domain.PaymentRequest{Method: "card", AmountCents: 2380}); err != nil {
		t.Fatalf("payment: %v", err)
	}
	if _, err := svc.Orders.ChangeStatus(ctx, order.ID, domain.OrderStatusRequest{Status: domain.OrderStatusInProgress}); err != nil {
		t.Fatalf("status: %v", err)
	}
	if _, err := svc.Orders.ChangeStatus(ctx, order.ID, domain.OrderStatusRequest{Status: domain.OrderStatusCancelled}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := svc.Sessions.Close(ctx, domain.SessionCloseRequest{CountedAmountCents: 5000}); err != nil {
		t.Fatalf("close: %v", err)
	}

	want := []string{
		events.SessionOpened, events.OrderCreated, events.PaymentAdded,
		events.OrderStatusChanged, events.OrderCancelled, events.SessionClosed,
	}
	got := publisher.types()
	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, got)
		}
	}
	if publisher.events[1].Actor != "cashier" || publisher.events[1].EntityID != order.ID {
		t.Fatalf("unexpected order event %+v", publisher.events[1])
	}

	if _, err := svc.ListAuditLogs(ctx, time.Time{}, time.Time{}, 50); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected audit log to require admin, got %v", err)
	}
	logs, err := svc.ListAuditLogs(adminCtx(), time.Time{}, time.Time{}, 50)
	if err != nil {
		t.Fatalf("audit logs: %v", err)
	}
	if len(logs) != 6 {
		t.Fatalf("expected 6 audit rows, got %d", len(logs))
	}
	if logs[0].Action != "session_close" || logs[0].ActorUsername != "cashier" {
		t.Fatalf("expected newest audit row first, got %+v", logs[0])
	}
}
