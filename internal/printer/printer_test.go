package printer

import (
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facucarcelero/comandero/internal/domain"
)

func testLayout() Layout {
	return Layout{Width: 32, BusinessName: "Comandero", Money: NewMoney("en-US", "$", 2)}
}

func sampleOrder() domain.Order {
	return domain.Order{
		ID:       7,
		Status:   domain.OrderStatusCompleted,
		TableRef: "Mesa 4",
		Notes:    "sin cebolla",
		Lines: []domain.OrderLine{
			{ProductID: 1, ProductName: "Empanada", Qty: 2, UnitPriceCents: 500, LineSubtotalCents: 1000},
		},
		Payments:      []domain.Payment{{Method: domain.PaymentMethodCash, AmountCents: 2000}},
		SubtotalCents: 1000,
		TaxRateBP:     1900,
		TaxCents:      190,
		TotalCents:    1190,
		CreatedAt:     time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC),
	}
}

func TestDocumentFraming(t *testing.T) {
	d := NewDocument(32).Text("hola").Cut()
	data := d.Bytes()
	assert.True(t, bytes.HasPrefix(data, []byte{0x1b, '@'}))
	assert.True(t, bytes.HasSuffix(data, []byte{0x1d, 'V', 'A', 0x10}))
	assert.Equal(t, "hola", d.Preview())
}

func TestColumnsFitWidth(t *testing.T) {
	d := NewDocument(20).Columns("a very long product name", "$10.00")
	line := d.Preview()
	assert.Len(t, line, 20)
	assert.True(t, strings.HasSuffix(line, " $10.00"))
}

func TestTextFoldsDiacritics(t *testing.T) {
	d := NewDocument(32).Text("Jugo de Maracuyá ñ €")
	assert.Equal(t, "Jugo de Maracuya n ?", d.Preview())
}

func TestMoneyFormat(t *testing.T) {
	cases := []struct {
		name  string
		money Money
		cents int64
		want  string
	}{
		{"two decimals", NewMoney("en-US", "$", 2), 1190, "$11.90"},
		{"pads minor units", NewMoney("en-US", "$", 2), 105, "$1.05"},
		{"groups thousands", NewMoney("en-US", "$", 2), 123456789, "$1,234,567.89"},
		{"negative", NewMoney("en-US", "$", 2), -250, "-$2.50"},
		{"no decimals", NewMoney("en-US", "$", 0), 1190, "$1,190"},
		{"spanish marks", NewMoney("es-CO", "$", 2), 123456789, "$1.234.567,89"},
		{"bad locale falls back", NewMoney("??", "$", 2), 100, "$1.00"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.money.Format(tc.cents))
		})
	}
}

func TestRate(t *testing.T) {
	assert.Equal(t, "19%", Rate(1900))
	assert.Equal(t, "12.5%", Rate(1250))
	assert.Equal(t, "8.25%", Rate(825))
	assert.Equal(t, "0%", Rate(0))
}

func TestReceiptShowsTotalsAndChange(t *testing.T) {
	preview := Receipt(testLayout(), sampleOrder()).Preview()
	assert.Contains(t, preview, "Pedido #7")
	assert.Contains(t, preview, "Mesa: Mesa 4")
	assert.Contains(t, preview, "2x Empanada")
	assert.Contains(t, preview, "IVA 19%")
	assert.Contains(t, preview, "$11.90")
	assert.Contains(t, preview, "Cambio")
	assert.Contains(t, preview, "$8.10")
}

func TestReceiptMarksVoidedOrders(t *testing.T) {
	order := sampleOrder()
	order.Status = domain.OrderStatusVoided
	order.ReversalReason = "error de mesa"
	preview := Receipt(testLayout(), order).Preview()
	assert.Contains(t, preview, "*** ANULADA ***")
	assert.Contains(t, preview, "error de mesa")
}

func TestKitchenTicketHasNoPrices(t *testing.T) {
	preview := KitchenTicket(testLayout(), sampleOrder()).Preview()
	assert.Contains(t, preview, "COCINA")
	assert.Contains(t, preview, "2x Empanada")
	assert.Contains(t, preview, "sin cebolla")
	assert.NotContains(t, preview, "$")
}

func TestCloseSummary(t *testing.T) {
	expected, counted, diff := int64(11190), int64(11000), int64(-190)
	closedAt := time.Date(2024, 5, 1, 22, 0, 0, 0, time.UTC)
	session := domain.CashSession{
		ID:                  3,
		OpenedAt:            time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
		ClosedAt:            &closedAt,
		OpeningAmountCents:  10000,
		Responsible:         "Ana",
		ExpectedAmountCents: &expected,
		CountedAmountCents:  &counted,
		DifferenceCents:     &diff,
		Summary: &domain.SessionSummary{
			TotalSalesCents:    1190,
			OrderCount:         1,
			CountsByStatus:     map[string]int{domain.OrderStatusCompleted: 1},
			PaymentsByMethod:   map[string]int64{domain.PaymentMethodCash: 1190},
			TotalPaymentsCents: 1190,
		},
	}
	preview := CloseSummary(testLayout(), session).Preview()
	assert.Contains(t, preview, "CIERRE DE CAJA")
	assert.Contains(t, preview, "Sesion #3")
	assert.Contains(t, preview, "Efectivo")
	assert.Contains(t, preview, "$111.90")
	assert.Contains(t, preview, "-$1.90")
}

func TestDrawerPulseIsACopy(t *testing.T) {
	pulse := DrawerPulse()
	assert.Equal(t, []byte{0x1b, 0x70, 0x00, 0x19, 0xfa}, pulse)
	pulse[0] = 0
	assert.Equal(t, byte(0x1b), DrawerPulse()[0])
}

func TestNetworkPrinterSendsBytes(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		data, _ := io.ReadAll(conn)
		received <- data
	}()

	p := New(ln.Addr().String())
	require.True(t, p.Enabled())
	require.NoError(t, p.Print(context.Background(), DrawerPulse()))

	select {
	case data := <-received:
		assert.Equal(t, DrawerPulse(), data)
	case <-time.After(2 * time.Second):
		t.Fatal("printer server received nothing")
	}
}

func TestNetworkPrinterUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	err = NewNetworkPrinter(addr).Print(context.Background(), []byte("x"))
	assert.Error(t, err)
}

func TestNullPrinter(t *testing.T) {
	p := New("")
	assert.False(t, p.Enabled())
	assert.NoError(t, p.Print(context.Background(), []byte("x")))
}
