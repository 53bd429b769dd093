package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/facucarcelero/comandero/internal/domain"
	"github.com/facucarcelero/comandero/internal/store"
)

func TestVoidOrderRestocksProduct(t *testing.T) {
	databaseURL := os.Getenv("COMANDERO_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set COMANDERO_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	product, err := s.CreateProduct(ctx, domain.Product{
		Name:       fmt.Sprintf("Producto IT %d", time.Now().UnixNano()),
		Category:   "it",
		PriceCents: 12000,
		Stock:      10,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	session, err := s.GetOpenSession(ctx)
	if err != nil {
		session, err = s.CreateSession(ctx, domain.CashSession{OpeningAmountCents: 0, Responsible: "integration"})
		if err != nil {
			t.Fatalf("open session: %v", err)
		}
	}

	order, err := s.CreateOrder(ctx, domain.Order{
		SessionID: session.ID,
		TaxRateBP: 1900,
		Lines:     []domain.OrderLine{{ProductID: product.ID, Qty: 2}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.TotalCents != 28560 {
		t.Fatalf("expected total 28560, got %d", order.TotalCents)
	}

	at := time.Now().UTC()
	if _, err := s.ReverseOrder(ctx, order.ID, domain.OrderStatusVoided, "integration test void", at); err != nil {
		t.Fatalf("void order: %v", err)
	}
	if _, err := s.ReverseOrder(ctx, order.ID, domain.OrderStatusVoided, "again", at); err == nil {
		t.Fatalf("expected second void to fail")
	} else if !store.IsDomainError(err) {
		t.Fatalf("expected domain error, got %v", err)
	}

	reloaded, err := s.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if reloaded.Stock != 10 {
		t.Fatalf("expected stock restored to 10, got %d", reloaded.Stock)
	}
}
