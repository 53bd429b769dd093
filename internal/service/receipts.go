package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"

	"github.com/facucarcelero/comandero/internal/domain"
	"github.com/facucarcelero/comandero/internal/printer"
	"github.com/facucarcelero/comandero/internal/store"
)

const (
	KindReceipt       = "receipt"
	KindKitchenTicket = "kitchen_ticket"
	KindCloseSummary  = "close_summary"
)

type receiptRepository interface {
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	GetSession(ctx context.Context, id int64) (*domain.CashSession, error)
}

// Receipts renders fully resolved orders and sessions to ESC/POS and, when
// asked, sends them to the configured printer.
type Receipts struct {
	repo     receiptRepository
	settings *SettingsManager
	printer  printer.Printer
	width    int
}

func (r *Receipts) layout(ctx context.Context) (printer.Layout, error) {
	settings, err := r.settings.Current(ctx)
	if err != nil {
		return printer.Layout{}, err
	}
	return printer.LayoutFromSettings(settings, r.width), nil
}

func (r *Receipts) Receipt(ctx context.Context, orderID int64, send bool) (domain.ReceiptResponse, error) {
	return r.renderOrder(ctx, orderID, KindReceipt, send, printer.Receipt)
}

func (r *Receipts) KitchenTicket(ctx context.Context, orderID int64, send bool) (domain.ReceiptResponse, error) {
	return r.renderOrder(ctx, orderID, KindKitchenTicket, send, printer.KitchenTicket)
}

func (r *Receipts) renderOrder(ctx context.Context, orderID int64, kind string, send bool, render func(printer.Layout, domain.Order) *printer.Document) (domain.ReceiptResponse, error) {
	order, err := r.repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.ReceiptResponse{}, err
	}
	layout, err := r.layout(ctx)
	if err != nil {
		return domain.ReceiptResponse{}, err
	}

	doc := render(layout, *order)
	resp := domain.ReceiptResponse{
		OrderID:      order.ID,
		Kind:         kind,
		EscposBase64: base64.StdEncoding.EncodeToString(doc.Bytes()),
		PreviewText:  doc.Preview(),
		FileName:     fmt.Sprintf("%s-%d.bin", kind, order.ID),
	}
	if send {
		resp.Printed = r.send(ctx, kind, doc.Bytes())
	}
	return resp, nil
}

// CloseSummary prints the frozen snapshot of a closed session.
func (r *Receipts) CloseSummary(ctx context.Context, sessionID int64, send bool) (domain.ReceiptResponse, error) {
	session, err := r.repo.GetSession(ctx, sessionID)
	if err != nil {
		return domain.ReceiptResponse{}, err
	}
	if session.Status != domain.SessionStatusClosed {
		return domain.ReceiptResponse{}, fmt.Errorf("%w: session %d is still open", store.ErrInvalidTransition, session.ID)
	}
	layout, err := r.layout(ctx)
	if err != nil {
		return domain.ReceiptResponse{}, err
	}

	doc := printer.CloseSummary(layout, *session)
	resp := domain.ReceiptResponse{
		SessionID:    session.ID,
		Kind:         KindCloseSummary,
		EscposBase64: base64.StdEncoding.EncodeToString(doc.Bytes()),
		PreviewText:  doc.Preview(),
		FileName:     fmt.Sprintf("%s-%d.bin", KindCloseSummary, session.ID),
	}
	if send {
		resp.Printed = r.send(ctx, KindCloseSummary, doc.Bytes())
	}
	return resp, nil
}

// OpenCashDrawer returns the drawer kick command and fires it at the
// printer when one is configured.
func (r *Receipts) OpenCashDrawer(ctx context.Context) domain.CashDrawerOpenResponse {
	pulse := printer.DrawerPulse()
	return domain.CashDrawerOpenResponse{
		CommandBase64: base64.StdEncoding.EncodeToString(pulse),
		Printed:       r.send(ctx, "cash_drawer", pulse),
	}
}

func (r *Receipts) send(ctx context.Context, kind string, data []byte) bool {
	if !r.printer.Enabled() {
		return false
	}
	if err := r.printer.Print(ctx, data); err != nil {
		log.Printf("[printer] WARN: failed to print %s: %v", kind, err)
		return false
	}
	return true
}
