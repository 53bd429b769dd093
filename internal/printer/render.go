package printer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/facucarcelero/comandero/internal/domain"
)

const timeLayout = "2006-01-02 15:04"

var methodLabels = map[string]string{
	domain.PaymentMethodCash:     "Efectivo",
	domain.PaymentMethodCard:     "Tarjeta",
	domain.PaymentMethodTransfer: "Transferencia",
}

var statusLabels = map[string]string{
	domain.OrderStatusPending:    "Pendiente",
	domain.OrderStatusInProgress: "En preparacion",
	domain.OrderStatusCompleted:  "Entregada",
	domain.OrderStatusCancelled:  "Cancelada",
	domain.OrderStatusVoided:     "Anulada",
}

// Layout carries what every ticket needs besides the entity it prints.
type Layout struct {
	Width        int
	BusinessName string
	Money        Money
}

func LayoutFromSettings(settings domain.Settings, width int) Layout {
	return Layout{
		Width:        width,
		BusinessName: settings.BusinessName,
		Money:        NewMoney(settings.Locale, settings.CurrencySymbol, settings.CurrencyDecimals),
	}
}

func (l Layout) header(d *Document, title string) {
	d.Align(AlignCenter).Bold(true).Size(SizeDouble)
	d.Text(l.BusinessName)
	d.Size(SizeNormal)
	if title != "" {
		d.Text(title)
	}
	d.Bold(false).Align(AlignLeft)
	d.Separator('=')
}

func Receipt(layout Layout, order domain.Order) *Document {
	d := NewDocument(layout.Width)
	money := layout.Money
	layout.header(d, "")

	d.Textf("Pedido #%d", order.ID)
	d.Text("Fecha: " + order.CreatedAt.Format(timeLayout))
	if order.TableRef != "" {
		d.Text("Mesa: " + order.TableRef)
	}
	if order.Customer != "" {
		d.Text("Cliente: " + order.Customer)
	}
	d.Separator('-')

	for _, line := range order.Lines {
		d.Columns(fmt.Sprintf("%dx %s", line.Qty, line.ProductName), money.Format(line.LineSubtotalCents))
		if line.Qty > 1 {
			d.Text("   c/u " + money.Format(line.UnitPriceCents))
		}
	}
	d.Separator('-')
	d.Columns("Subtotal", money.Format(order.SubtotalCents))
	d.Columns("IVA "+Rate(order.TaxRateBP), money.Format(order.TaxCents))
	d.Bold(true).Columns("TOTAL", money.Format(order.TotalCents)).Bold(false)

	if len(order.Payments) > 0 {
		d.Separator('-')
		var paid int64
		for _, payment := range order.Payments {
			d.Columns(label(methodLabels, payment.Method), money.Format(payment.AmountCents))
			paid += payment.AmountCents
		}
		switch {
		case paid > order.TotalCents:
			d.Columns("Cambio", money.Format(paid-order.TotalCents))
		case paid < order.TotalCents:
			d.Columns("Saldo pendiente", money.Format(order.TotalCents-paid))
		}
	}

	if domain.IsReversal(order.Status) {
		d.Feed(1).Align(AlignCenter).Bold(true)
		d.Text("*** " + strings.ToUpper(label(statusLabels, order.Status)) + " ***")
		if order.ReversalReason != "" {
			d.Bold(false).Text(order.ReversalReason)
		}
		d.Bold(false).Align(AlignLeft)
	}

	d.Separator('=')
	d.Align(AlignCenter).Text("Gracias por su compra").Align(AlignLeft)
	d.Feed(3).Cut()
	return d
}

// KitchenTicket lists what to prepare. It never shows prices.
func KitchenTicket(layout Layout, order domain.Order) *Document {
	d := NewDocument(layout.Width)
	d.Align(AlignCenter).Bold(true).Size(SizeDouble)
	d.Text("COCINA")
	d.Size(SizeNormal).Textf("Pedido #%d", order.ID)
	d.Bold(false).Align(AlignLeft)
	if order.TableRef != "" {
		d.Text("Mesa: " + order.TableRef)
	}
	d.Text("Hora: " + order.CreatedAt.Format(timeLayout))
	d.Separator('-')

	d.Size(SizeTall)
	for _, line := range order.Lines {
		d.Textf("%dx %s", line.Qty, line.ProductName)
	}
	d.Size(SizeNormal)

	if order.Notes != "" {
		d.Separator('-')
		d.Bold(true).Text("Notas:").Bold(false)
		d.Text(order.Notes)
	}
	d.Feed(3).Cut()
	return d
}

// CloseSummary prints the frozen close snapshot of a session.
func CloseSummary(layout Layout, session domain.CashSession) *Document {
	d := NewDocument(layout.Width)
	money := layout.Money
	layout.header(d, "CIERRE DE CAJA")

	d.Textf("Sesion #%d", session.ID)
	d.Text("Responsable: " + session.Responsible)
	d.Text("Apertura: " + session.OpenedAt.Format(timeLayout))
	if session.ClosedAt != nil {
		d.Text("Cierre:   " + session.ClosedAt.Format(timeLayout))
	}
	d.Separator('-')
	d.Columns("Base inicial", money.Format(session.OpeningAmountCents))

	if summary := session.Summary; summary != nil {
		d.Columns("Ventas entregadas", money.Format(summary.TotalSalesCents))
		d.Columns("Ventas abiertas", money.Format(summary.OpenSalesCents))
		d.Columns("Pedidos", fmt.Sprintf("%d", summary.OrderCount))
		for _, status := range domain.OrderStatuses() {
			if n := summary.CountsByStatus[status]; n > 0 {
				d.Columns("  "+label(statusLabels, status), fmt.Sprintf("%d", n))
			}
		}
		d.Separator('-')
		methods := make([]string, 0, len(summary.PaymentsByMethod))
		for method := range summary.PaymentsByMethod {
			methods = append(methods, method)
		}
		sort.Strings(methods)
		for _, method := range methods {
			d.Columns(label(methodLabels, method), money.Format(summary.PaymentsByMethod[method]))
		}
		d.Columns("Total pagos", money.Format(summary.TotalPaymentsCents))
	}

	d.Separator('-')
	if session.ExpectedAmountCents != nil {
		d.Bold(true).Columns("Esperado", money.Format(*session.ExpectedAmountCents)).Bold(false)
	}
	if session.CountedAmountCents != nil {
		d.Columns("Contado", money.Format(*session.CountedAmountCents))
	}
	if session.DifferenceCents != nil {
		d.Bold(true).Columns("Diferencia", money.Format(*session.DifferenceCents)).Bold(false)
	}
	if session.Notes != "" {
		d.Separator('-')
		d.Text("Obs: " + session.Notes)
	}
	d.Feed(3).Cut()
	return d
}

func label(labels map[string]string, key string) string {
	if v, ok := labels[key]; ok {
		return v
	}
	return key
}
