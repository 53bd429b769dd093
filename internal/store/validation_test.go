package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facucarcelero/comandero/internal/domain"
)

func TestValidationErrorMatchesEveryLineReason(t *testing.T) {
	cola := &domain.Product{ID: 1, Name: "Cola", Stock: 3, Active: true}
	retired := &domain.Product{ID: 2, Name: "Old Soup", Stock: 10, Active: false}

	v := &ValidationError{}
	for i, tc := range []struct {
		req     domain.OrderLineRequest
		product *domain.Product
	}{
		{domain.OrderLineRequest{ProductID: 1, Qty: 5}, cola},
		{domain.OrderLineRequest{ProductID: 2, Qty: 1}, retired},
		{domain.OrderLineRequest{ProductID: 9, Qty: 1}, nil},
		{domain.OrderLineRequest{ProductID: 1, Qty: 0}, cola},
	} {
		if lineErr := CheckLine(i, tc.req, tc.product); lineErr != nil {
			v.Add(*lineErr)
		}
	}

	err := v.OrNil()
	require.Error(t, err)
	assert.Len(t, v.Lines, 4)
	assert.True(t, errors.Is(err, ErrInvalidOrder))
	assert.True(t, errors.Is(err, ErrInsufficientStock))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrNoOpenSession))
	assert.Contains(t, err.Error(), `line 1: insufficient stock for product "Cola" (requested 5, available 3)`)
	assert.Contains(t, err.Error(), `line 2: product "Old Soup" is inactive`)
}

func TestValidationErrorOrNilWhenClean(t *testing.T) {
	product := &domain.Product{ID: 1, Name: "Cola", Stock: 3, Active: true}
	v := &ValidationError{}
	if lineErr := CheckLine(0, domain.OrderLineRequest{ProductID: 1, Qty: 3}, product); lineErr != nil {
		v.Add(*lineErr)
	}
	assert.NoError(t, v.OrNil())
}

func TestPriceLineCapturesSaleTimeValues(t *testing.T) {
	line := PriceLine(domain.Product{ID: 4, Name: "Empanada", Category: "food", PriceCents: 500}, 2)
	assert.Equal(t, int64(1000), line.LineSubtotalCents)
	assert.Equal(t, "Empanada", line.ProductName)
	assert.Equal(t, "food", line.Category)
}

func TestStorageWrapsOnce(t *testing.T) {
	cause := errors.New("disk I/O error")
	wrapped := Storage(Storage(cause))
	assert.True(t, errors.Is(wrapped, ErrStorage))
	assert.True(t, errors.Is(wrapped, cause))
	assert.Equal(t, "storage error: disk I/O error", wrapped.Error())
	assert.Nil(t, Storage(nil))
}

func TestStorageLeavesDomainErrorsAlone(t *testing.T) {
	short := fmt.Errorf("line 2: %w", ErrInsufficientStock)
	got := Storage(short)
	assert.Same(t, short, got)
	assert.False(t, errors.Is(got, ErrStorage))
	assert.Equal(t, ErrNotFound, Storage(ErrNotFound))
}

func TestIsDomainError(t *testing.T) {
	assert.True(t, IsDomainError(ErrNoOpenSession))
	assert.True(t, IsDomainError(RaceLost(0, domain.Product{ID: 1, Name: "Cola"}, 2)))
	assert.False(t, IsDomainError(errors.New("boom")))
}
