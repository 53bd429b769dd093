package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/facucarcelero/comandero/internal/domain"
	"github.com/facucarcelero/comandero/internal/events"
	"github.com/facucarcelero/comandero/internal/store"
)

type PaymentLedger struct {
	repo     store.PaymentRepository
	recorder *recorder
	now      func() time.Time
}

func (l *PaymentLedger) Add(ctx context.Context, orderID int64, req domain.PaymentRequest) (domain.Payment, error) {
	method := strings.ToLower(strings.TrimSpace(req.Method))
	if !domain.IsPaymentMethod(method) {
		return domain.Payment{}, invalidInput("unsupported payment method %q", req.Method)
	}
	if req.AmountCents < 1 {
		return domain.Payment{}, invalidInput("payment amount must be positive")
	}

	saved, err := l.repo.AddPayment(ctx, domain.Payment{
		OrderID:     orderID,
		Method:      method,
		AmountCents: req.AmountCents,
		Reference:   strings.TrimSpace(req.Reference),
		CreatedAt:   l.now(),
	})
	if err != nil {
		return domain.Payment{}, err
	}

	l.recorder.logAudit(ctx, "payment_add", "order", orderID, fmt.Sprintf("method=%s,amount=%d", saved.Method, saved.AmountCents))
	l.recorder.emit(ctx, events.New(events.PaymentAdded, "order", orderID, saved))
	return *saved, nil
}

func (l *PaymentLedger) List(ctx context.Context, orderID int64) ([]domain.Payment, error) {
	return l.repo.ListPayments(ctx, orderID)
}
