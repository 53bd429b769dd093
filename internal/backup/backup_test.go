package backup

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facucarcelero/comandero/internal/domain"
)

func sampleDataset() domain.Dataset {
	openedAt := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	return domain.Dataset{
		Products: []domain.Product{
			{ID: 1, Name: "Empanada", Category: "comidas", PriceCents: 500, Stock: 8, Active: true, CreatedAt: openedAt, UpdatedAt: openedAt},
		},
		Sessions: []domain.CashSession{
			{ID: 1, OpenedAt: openedAt, OpeningAmountCents: 10000, Responsible: "Ana", Status: domain.SessionStatusOpen},
		},
		Orders: []domain.Order{{
			ID: 1, SessionID: 1, Status: domain.OrderStatusCompleted,
			Lines:         []domain.OrderLine{{ProductID: 1, ProductName: "Empanada", Qty: 2, UnitPriceCents: 500, LineSubtotalCents: 1000}},
			Payments:      []domain.Payment{{ID: 1, OrderID: 1, Method: domain.PaymentMethodCash, AmountCents: 1190, CreatedAt: openedAt}},
			SubtotalCents: 1000, TaxRateBP: 1900, TaxCents: 190, TotalCents: 1190,
			CreatedAt: openedAt, UpdatedAt: openedAt,
		}},
		Settings: &domain.Settings{TaxRateBP: 1900, Currency: "COP", CurrencySymbol: "$", Locale: "es-CO", BusinessName: "Comandero"},
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	manifest, err := Write(&buf, sampleDataset())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(manifest.ID, "bk-"))
	assert.Equal(t, 1, manifest.Orders)
	assert.Len(t, manifest.SHA256, 64)

	data, read, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, manifest.SHA256, read.SHA256)
	assert.Equal(t, sampleDataset(), data)
}

func TestReadRejectsTamperedData(t *testing.T) {
	var buf bytes.Buffer
	_, err := Write(&buf, sampleDataset())
	require.NoError(t, err)

	tampered := strings.Replace(buf.String(), `"total_cents": 1190`, `"total_cents": 119`, 1)
	require.NotEqual(t, buf.String(), tampered)

	_, _, err = Read(strings.NewReader(tampered))
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestReadRejectsUnknownVersion(t *testing.T) {
	_, _, err := Read(strings.NewReader(`{"version": 9, "sha256": "", "data": {}}`))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestReadRejectsUnknownFields(t *testing.T) {
	_, _, err := Read(strings.NewReader(`{"version": 1, "sha256": "", "data": {"tables": []}}`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrChecksumMismatch)
}

func TestReadRejectsGarbage(t *testing.T) {
	_, _, err := Read(strings.NewReader("not json"))
	assert.Error(t, err)
}
