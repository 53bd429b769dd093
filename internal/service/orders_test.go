package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/facucarcelero/comandero/internal/domain"
	"github.com/facucarcelero/comandero/internal/store"
)

func TestCreateOrderRequiresOpenSession(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Orders.Create(cashierCtx(), domain.OrderCreateRequest{
		Lines: []domain.OrderLineRequest{{ProductID: empanadaID, Qty: 2}},
	})
	if !errors.Is(err, store.ErrNoOpenSession) {
		t.Fatalf("expected no open session, got %v", err)
	}
	if stockOf(t, svc, empanadaID) != 80 {
		t.Fatalf("stock must not change without a session")
	}
}

func TestCreateOrderCapturesPricesAndTax(t *testing.T) {
	svc, _ := newTestService()
	session := openSession(t, svc, 10000)

	order, err := svc.Orders.Create(cashierCtx(), domain.OrderCreateRequest{
		Lines:    []domain.OrderLineRequest{{ProductID: empanadaID, Qty: 2}},
		TableRef: " Mesa 4 ",
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.SessionID != session.ID || order.Status != domain.OrderStatusPending || order.TableRef != "Mesa 4" {
		t.Fatalf("unexpected order header %+v", order)
	}
	if order.SubtotalCents != 5000 || order.TaxCents != 950 || order.TotalCents != 5950 {
		t.Fatalf("expected 5000/950/5950, got %d/%d/%d", order.SubtotalCents, order.TaxCents, order.TotalCents)
	}
	line := order.Lines[0]
	if line.ProductName != "Empanada de Carne" || line.UnitPriceCents != 2500 || line.LineSubtotalCents != 5000 {
		t.Fatalf("unexpected line %+v", line)
	}
	if stockOf(t, svc, empanadaID) != 78 {
		t.Fatalf("expected stock 78")
	}

	price := int64(9900)
	if _, err := svc.Catalog.Update(adminCtx(), empanadaID, domain.ProductUpdateRequest{PriceCents: &price}); err != nil {
		t.Fatalf("update price: %v", err)
	}
	reloaded, err := svc.Orders.Get(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if reloaded.Lines[0].UnitPriceCents != 2500 || reloaded.TotalCents != 5950 {
		t.Fatalf("captured price changed after catalog update: %+v", reloaded)
	}
}

func TestCreateOrderTwoAtFiveHundredAtNineteenPercent(t *testing.T) {
	svc, _ := newTestService()
	product, err := svc.Catalog.Create(adminCtx(), domain.ProductCreateRequest{Name: "Pandebono", PriceCents: 500, Stock: 10})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	openSession(t, svc, 0)

	order, err := svc.Orders.Create(cashierCtx(), domain.OrderCreateRequest{
		Lines: []domain.OrderLineRequest{{ProductID: product.ID, Qty: 2}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.SubtotalCents != 1000 || order.TaxCents != 190 || order.TotalCents != 1190 {
		t.Fatalf("expected 1000/190/1190, got %d/%d/%d", order.SubtotalCents, order.TaxCents, order.TotalCents)
	}
}

func TestCreateOrderRejectsWholeOrder(t *testing.T) {
	svc, _ := newTestService()
	openSession(t, svc, 0)

	_, err := svc.Orders.Create(cashierCtx(), domain.OrderCreateRequest{
		Lines: []domain.OrderLineRequest{
			{ProductID: empanadaID, Qty: 1},
			{ProductID: bandejaID, Qty: 26},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) || !errors.Is(err, store.ErrInvalidOrder) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	var validation *store.ValidationError
	if !errors.As(err, &validation) || len(validation.Lines) != 1 || validation.Lines[0].Line != 2 {
		t.Fatalf("expected line 2 to be reported, got %v", err)
	}
	if stockOf(t, svc, empanadaID) != 80 || stockOf(t, svc, bandejaID) != 25 {
		t.Fatalf("rejected order changed stock")
	}
}

func TestCreateOrderChecksSessionBeforeLines(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Orders.Create(cashierCtx(), domain.OrderCreateRequest{
		Lines: []domain.OrderLineRequest{{ProductID: cafeID, Qty: 0}},
	})
	if !errors.Is(err, store.ErrNoOpenSession) {
		t.Fatalf("expected no open session ahead of line errors, got %v", err)
	}

	openSession(t, svc, 0)
	_, err = svc.Orders.Create(cashierCtx(), domain.OrderCreateRequest{})
	if !errors.Is(err, store.ErrInvalidOrder) {
		t.Fatalf("expected invalid order for empty lines, got %v", err)
	}

	_, err = svc.Orders.Create(cashierCtx(), domain.OrderCreateRequest{
		Lines: []domain.OrderLineRequest{{ProductID: empanadaID, Qty: 1}, {ProductID: cafeID, Qty: 0}},
	})
	var validation *store.ValidationError
	if !errors.As(err, &validation) || validation.Lines[0].Line != 2 {
		t.Fatalf("expected line 2 quantity error, got %v", err)
	}
}

func TestCreateOrderMergesRepeatedProducts(t *testing.T) {
	svc, _ := newTestService()
	openSession(t, svc, 0)

	order, err := svc.Orders.Create(cashierCtx(), domain.OrderCreateRequest{
		Lines: []domain.OrderLineRequest{
			{ProductID: empanadaID, Qty: 1},
			{ProductID: cafeID, Qty: 2},
			{ProductID: empanadaID, Qty: 2},
		},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if len(order.Lines) != 2 || order.Lines[0].ProductID != empanadaID || order.Lines[0].Qty != 3 {
		t.Fatalf("expected merged empanada line, got %+v", order.Lines)
	}
	if stockOf(t, svc, empanadaID) != 77 || stockOf(t, svc, cafeID) != 118 {
		t.Fatalf("unexpected stock after merged order")
	}
}

func TestCreateOrderReportsRequestLineNumbers(t *testing.T) {
	svc, _ := newTestService()
	openSession(t, svc, 0)

	_, err := svc.Orders.Create(cashierCtx(), domain.OrderCreateRequest{
		Lines: []domain.OrderLineRequest{
			{ProductID: empanadaID, Qty: 1},
			{ProductID: empanadaID, Qty: 1},
			{ProductID: 999, Qty: 1},
		},
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	var validation *store.ValidationError
	if !errors.As(err, &validation) || validation.Lines[0].Line != 3 {
		t.Fatalf("expected request line 3, got %v", err)
	}
}

func TestConcurrentOrdersNeverOversell(t *testing.T) {
	svc, _ := newTestService()
	product, err := svc.Catalog.Create(adminCtx(), domain.ProductCreateRequest{Name: "Ultimo Postre", PriceCents: 1000, Stock: 5})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	openSession(t, svc, 0)

	var wg sync.WaitGroup
	var succeeded, short atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Orders.Create(cashierCtx(), domain.OrderCreateRequest{
				Lines: []domain.OrderLineRequest{{ProductID: product.ID, Qty: 1}},
			})
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, store.ErrInsufficientStock):
				short.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded.Load() != 5 || short.Load() != 15 {
		t.Fatalf("expected 5 sold and 15 rejected, got %d and %d", succeeded.Load(), short.Load())
	}
	if stockOf(t, svc, product.ID) != 0 {
		t.Fatalf("expected stock 0, got %d", stockOf(t, svc, product.ID))
	}
}

func TestVoidRestoresStockExactlyOnce(t *testing.T) {
	svc, _ := newTestService()
	openSession(t, svc, 0)
	ctx := cashierCtx()

	order, err := svc.Orders.Create(ctx, domain.OrderCreateRequest{
		Lines: []domain.OrderLineRequest{{ProductID: bandejaID, Qty: 3}, {ProductID: cafeID, Qty: 2}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Orders.ChangeStatus(ctx, order.ID, domain.OrderStatusRequest{Status: domain.OrderStatusCompleted}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if _, err := svc.Orders.Void(ctx, order.ID, ""); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected void without reason to fail, got %v", err)
	}
	voided, err := svc.Orders.Void(ctx, order.ID, "cobro duplicado")
	if err != nil {
		t.Fatalf("void: %v", err)
	}
	if voided.Status != domain.OrderStatusVoided || voided.ReversalReason != "cobro duplicado" || voided.ReversedAt == nil {
		t.Fatalf("unexpected voided order %+v", voided)
	}
	if stockOf(t, svc, bandejaID) != 25 || stockOf(t, svc, cafeID) != 120 {
		t.Fatalf("stock not restored")
	}

	if _, err := svc.Orders.Void(ctx, order.ID, "otra vez"); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected second void to fail, got %v", err)
	}
	if stockOf(t, svc, bandejaID) != 25 || stockOf(t, svc, cafeID) != 120 {
		t.Fatalf("stock restored twice")
	}
}

func TestCancelThroughChangeStatusRestoresStock(t *testing.T) {
	svc, _ := newTestService()
	openSession(t, svc, 0)
	ctx := cashierCtx()

	order, err := svc.Orders.Create(ctx, domain.OrderCreateRequest{Lines: []domain.OrderLineRequest{{ProductID: cafeID, Qty: 4}}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	cancelled, err := svc.Orders.ChangeStatus(ctx, order.ID, domain.OrderStatusRequest{Status: "CANCELLED"})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled || stockOf(t, svc, cafeID) != 120 {
		t.Fatalf("cancel did not restore stock: %+v", cancelled)
	}
}

func TestStatusMovesForwardOnly(t *testing.T) {
	svc, _ := newTestService()
	openSession(t, svc, 0)
	ctx := cashierCtx()

	order, err := svc.Orders.Create(ctx, domain.OrderCreateRequest{Lines: []domain.OrderLineRequest{{ProductID: cafeID, Qty: 1}}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	steps := []struct {
		status string
		ok     bool
	}{
		{domain.OrderStatusCompleted, true},
		{domain.OrderStatusInProgress, false},
		{domain.OrderStatusPending, false},
		{domain.OrderStatusCancelled, false},
		{"delivered", false},
		{domain.OrderStatusVoided, true},
		{domain.OrderStatusCompleted, false},
	}
	for _, step := range steps {
		_, err := svc.Orders.ChangeStatus(ctx, order.ID, domain.OrderStatusRequest{Status: step.status, Reason: "test"})
		if step.ok && err != nil {
			t.Fatalf("expected %s to succeed, got %v", step.status, err)
		}
		if !step.ok && !errors.Is(err, store.ErrInvalidTransition) {
			t.Fatalf("expected %s to be an invalid transition, got %v", step.status, err)
		}
	}

	if _, err := svc.Orders.ChangeStatus(ctx, 999, domain.OrderStatusRequest{Status: domain.OrderStatusCompleted}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListOrdersFilters(t *testing.T) {
	svc, _ := newTestService()
	openSession(t, svc, 0)
	ctx := cashierCtx()

	for _, table := range []string{"1", "2", "1"} {
		if _, err := svc.Orders.Create(ctx, domain.OrderCreateRequest{TableRef: table, Lines: []domain.OrderLineRequest{{ProductID: cafeID, Qty: 1}}}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if _, err := svc.Orders.ChangeStatus(ctx, 1, domain.OrderStatusRequest{Status: domain.OrderStatusCompleted}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	table1, err := svc.Orders.List(ctx, domain.OrderFilter{TableRef: "1"})
	if err != nil || len(table1) != 2 || table1[0].ID != 3 {
		t.Fatalf("expected orders 3 and 1 for table 1, got %v %v", table1, err)
	}
	pending, err := svc.Orders.List(ctx, domain.OrderFilter{Status: domain.OrderStatusPending, Limit: 1})
	if err != nil || len(pending) != 1 || pending[0].ID != 3 {
		t.Fatalf("expected newest pending order, got %v %v", pending, err)
	}
	if _, err := svc.Orders.List(ctx, domain.OrderFilter{Status: "bogus"}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid status filter, got %v", err)
	}
}

func TestPaymentLedger(t *testing.T) {
	svc, _ := newTestService()
	openSession(t, svc, 0)
	ctx := cashierCtx()

	order, err := svc.Orders.Create(ctx, domain.OrderCreateRequest{Lines: []domain.OrderLineRequest{{ProductID: cafeID, Qty: 1}}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Payments.Add(ctx, order.ID, domain.PaymentRequest{Method: "bitcoin", AmountCents: 100}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected unsupported method, got %v", err)
	}
	if _, err := svc.Payments.Add(ctx, order.ID, domain.PaymentRequest{Method: "cash", AmountCents: 0}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected non-positive amount to fail, got %v", err)
	}
	if _, err := svc.Payments.Add(ctx, 999, domain.PaymentRequest{Method: "cash", AmountCents: 100}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected unknown order, got %v", err)
	}

	if _, err := svc.Payments.Add(ctx, order.ID, domain.PaymentRequest{Method: " Cash ", AmountCents: 1000}); err != nil {
		t.Fatalf("cash payment: %v", err)
	}
	if _, err := svc.Payments.Add(ctx, order.ID, domain.PaymentRequest{Method: "transfer", AmountCents: 1380, Reference: "NEQUI-1"}); err != nil {
		t.Fatalf("transfer payment: %v", err)
	}
	payments, err := svc.Payments.List(ctx, order.ID)
	if err != nil || len(payments) != 2 || payments[0].Method != "cash" || payments[1].Reference != "NEQUI-1" {
		t.Fatalf("unexpected payments %+v %v", payments, err)
	}

	if _, err := svc.Orders.Void(ctx, order.ID, "error"); err != nil {
		t.Fatalf("void: %v", err)
	}
	if _, err := svc.Payments.Add(ctx, order.ID, domain.PaymentRequest{Method: "cash", AmountCents: 100}); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected payment on voided order to fail, got %v", err)
	}
}
