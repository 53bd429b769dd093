package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/facucarcelero/comandero/internal/domain"
)

// LineError describes why one order line was rejected. Line is 1-based.
type LineError struct {
	Line      int
	ProductID int64
	Reason    error
	Message   string
}

func (e LineError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// ValidationError aggregates every rejected line of an order. It matches
// ErrInvalidOrder and, when present among the lines, ErrInsufficientStock and
// ErrNotFound.
type ValidationError struct {
	Lines []LineError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Lines))
	for _, line := range e.Lines {
		parts = append(parts, line.Error())
	}
	return ErrInvalidOrder.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() []error {
	errs := []error{ErrInvalidOrder}
	for _, line := range e.Lines {
		if line.Reason == nil || line.Reason == ErrInvalidOrder {
			continue
		}
		seen := false
		for _, existing := range errs {
			if existing == line.Reason {
				seen = true
				break
			}
		}
		if !seen {
			errs = append(errs, line.Reason)
		}
	}
	return errs
}

// Add records a rejected line.
func (e *ValidationError) Add(line LineError) {
	e.Lines = append(e.Lines, line)
}

// OrNil returns nil when nothing was rejected so callers can return it directly.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Lines) == 0 {
		return nil
	}
	return e
}

// CheckLine validates one requested line against the product as currently
// stored. product is nil when the id did not resolve.
func CheckLine(index int, req domain.OrderLineRequest, product *domain.Product) *LineError {
	line := index + 1
	switch {
	case req.Qty < 1:
		return &LineError{Line: line, ProductID: req.ProductID, Reason: ErrInvalidOrder,
			Message: fmt.Sprintf("quantity must be positive, got %d", req.Qty)}
	case product == nil:
		return &LineError{Line: line, ProductID: req.ProductID, Reason: ErrNotFound,
			Message: fmt.Sprintf("product %d not found", req.ProductID)}
	case !product.Active:
		return &LineError{Line: line, ProductID: req.ProductID, Reason: ErrInvalidOrder,
			Message: fmt.Sprintf("product %q is inactive", product.Name)}
	case product.Stock < req.Qty:
		return &LineError{Line: line, ProductID: req.ProductID, Reason: ErrInsufficientStock,
			Message: fmt.Sprintf("insufficient stock for product %q (requested %d, available %d)", product.Name, req.Qty, product.Stock)}
	}
	return nil
}

// PriceLine captures name, category and unit price at the time of sale.
func PriceLine(product domain.Product, qty int) domain.OrderLine {
	return domain.OrderLine{
		ProductID:         product.ID,
		ProductName:       product.Name,
		Category:          product.Category,
		Qty:               qty,
		UnitPriceCents:    product.PriceCents,
		LineSubtotalCents: int64(qty) * product.PriceCents,
	}
}

// RaceLost builds the error for a guarded stock update that matched no row
// after validation passed, i.e. a concurrent order took the stock first.
func RaceLost(index int, product domain.Product, qty int) error {
	v := &ValidationError{}
	v.Add(LineError{
		Line:      index + 1,
		ProductID: product.ID,
		Reason:    ErrInsufficientStock,
		Message:   fmt.Sprintf("insufficient stock for product %q (requested %d)", product.Name, qty),
	})
	return v
}

// ValidateProduct checks the fields every store requires before writing.
func ValidateProduct(product domain.Product) error {
	if strings.TrimSpace(product.Name) == "" {
		return fmt.Errorf("%w: product name required", ErrInvalidInput)
	}
	if product.PriceCents < 0 {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	}
	if product.Stock < 0 {
		return fmt.Errorf("%w: stock must not be negative", ErrInvalidInput)
	}
	return nil
}

// IsDomainError reports whether err is one of the business-rule sentinels.
// Storage uses it so a sentinel returned from inside a transaction is never
// reported as ErrStorage.
func IsDomainError(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrInvalidOrder, ErrInsufficientStock, ErrSessionAlreadyOpen,
		ErrNoOpenSession, ErrInvalidTransition, ErrInvalidInput,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
