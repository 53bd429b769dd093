package service

import (
	"cmp"
	"context"
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	"github.com/facucarcelero/comandero/internal/cache"
	"github.com/facucarcelero/comandero/internal/domain"
	"github.com/facucarcelero/comandero/internal/store"
)

const (
	defaultReportDays = 7
	defaultTopLimit   = 10
	maxTopLimit       = 100
	uncategorized     = "uncategorized"
)

type reportRepository interface {
	store.ReportRepository
	SessionOrders(ctx context.Context, sessionID int64) ([]domain.Order, error)
}

// Reporter aggregates completed orders by UTC calendar day. It only reads.
type Reporter struct {
	repo  reportRepository
	cache cache.ReportCache
	ttl   time.Duration
}

// DayRange resolves inclusive YYYY-MM-DD bounds into a half-open UTC range.
// An empty to means today; an empty from means a week before to.
func DayRange(from string, to string, today time.Time) (time.Time, time.Time, error) {
	end := today.UTC().Truncate(24 * time.Hour)
	if strings.TrimSpace(to) != "" {
		parsed, err := time.Parse(time.DateOnly, strings.TrimSpace(to))
		if err != nil {
			return time.Time{}, time.Time{}, invalidInput("to must be YYYY-MM-DD")
		}
		end = parsed
	}
	start := end.AddDate(0, 0, -(defaultReportDays - 1))
	if strings.TrimSpace(from) != "" {
		parsed, err := time.Parse(time.DateOnly, strings.TrimSpace(from))
		if err != nil {
			return time.Time{}, time.Time{}, invalidInput("from must be YYYY-MM-DD")
		}
		start = parsed
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, invalidInput("from must not be after to")
	}
	return start, end.AddDate(0, 0, 1), nil
}

func rangeKey(kind string, from time.Time, to time.Time, extra ...any) string {
	key := fmt.Sprintf("%s:%s:%s", kind, from.Format(time.DateOnly), to.Format(time.DateOnly))
	for _, v := range extra {
		key += fmt.Sprintf(":%v", v)
	}
	return key
}

// cached runs compute on a miss and stores its result in the entry the
// miss resolved, never in one looked up afterwards. Cache failures only cost
// the recomputation.
func cached[T any](ctx context.Context, r *Reporter, key string, compute func() (T, error)) (T, error) {
	var hit T
	entry, found, err := r.cache.Get(ctx, key, &hit)
	if err != nil {
		log.Printf("[service] WARN: report cache read key=%s: %v", key, err)
	} else if found {
		return hit, nil
	}

	result, err := compute()
	if err != nil {
		return result, err
	}
	if entry == "" {
		return result, nil
	}
	if err := r.cache.Set(ctx, entry, result, r.ttl); err != nil {
		log.Printf("[service] WARN: report cache write key=%s: %v", key, err)
	}
	return result, nil
}

func (r *Reporter) SalesByDate(ctx context.Context, from time.Time, to time.Time) ([]domain.DateSales, error) {
	return cached(ctx, r, rangeKey("sales-by-date", from, to), func() ([]domain.DateSales, error) {
		orders, err := r.repo.CompletedOrders(ctx, from, to)
		if err != nil {
			return nil, err
		}
		byDate := make(map[string]*domain.DateSales)
		for _, order := range orders {
			day := order.CreatedAt.UTC().Format(time.DateOnly)
			row, ok := byDate[day]
			if !ok {
				row = &domain.DateSales{Date: day}
				byDate[day] = row
			}
			row.OrderCount++
			row.SubtotalCents += order.SubtotalCents
			row.TaxCents += order.TaxCents
			row.TotalCents += order.TotalCents
		}

		rows := make([]domain.DateSales, 0, len(byDate))
		for _, row := range byDate {
			rows = append(rows, *row)
		}
		slices.SortFunc(rows, func(a, b domain.DateSales) int { return strings.Compare(a.Date, b.Date) })
		return rows, nil
	})
}

// SalesByCategory uses the category captured on each line at sale time.
func (r *Reporter) SalesByCategory(ctx context.Context, from time.Time, to time.Time) ([]domain.CategorySales, error) {
	return cached(ctx, r, rangeKey("sales-by-category", from, to), func() ([]domain.CategorySales, error) {
		orders, err := r.repo.CompletedOrders(ctx, from, to)
		if err != nil {
			return nil, err
		}
		byCategory := make(map[string]*domain.CategorySales)
		for _, order := range orders {
			for _, line := range order.Lines {
				category := defaultString(line.Category, uncategorized)
				row, ok := byCategory[category]
				if !ok {
					row = &domain.CategorySales{Category: category}
					byCategory[category] = row
				}
				row.Qty += line.Qty
				row.AmountCents += line.LineSubtotalCents
			}
		}

		rows := make([]domain.CategorySales, 0, len(byCategory))
		for _, row := range byCategory {
			rows = append(rows, *row)
		}
		slices.SortFunc(rows, func(a, b domain.CategorySales) int {
			if c := cmp.Compare(b.AmountCents, a.AmountCents); c != 0 {
				return c
			}
			return strings.Compare(a.Category, b.Category)
		})
		return rows, nil
	})
}

// TopProducts ranks by quantity, then amount, then product id.
func (r *Reporter) TopProducts(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.ProductSales, error) {
	if limit < 1 {
		limit = defaultTopLimit
	}
	if limit > maxTopLimit {
		limit = maxTopLimit
	}
	return cached(ctx, r, rangeKey("top-products", from, to, limit), func() ([]domain.ProductSales, error) {
		orders, err := r.repo.CompletedOrders(ctx, from, to)
		if err != nil {
			return nil, err
		}
		byProduct := make(map[int64]*domain.ProductSales)
		for _, order := range orders {
			for _, line := range order.Lines {
				row, ok := byProduct[line.ProductID]
				if !ok {
					row = &domain.ProductSales{ProductID: line.ProductID}
					byProduct[line.ProductID] = row
				}
				row.ProductName = line.ProductName
				row.Category = line.Category
				row.Qty += line.Qty
				row.AmountCents += line.LineSubtotalCents
			}
		}

		rows := make([]domain.ProductSales, 0, len(byProduct))
		for _, row := range byProduct {
			rows = append(rows, *row)
		}
		slices.SortFunc(rows, func(a, b domain.ProductSales) int {
			if c := cmp.Compare(b.Qty, a.Qty); c != 0 {
				return c
			}
			if c := cmp.Compare(b.AmountCents, a.AmountCents); c != 0 {
				return c
			}
			return cmp.Compare(a.ProductID, b.ProductID)
		})
		if len(rows) > limit {
			rows = rows[:limit]
		}
		return rows, nil
	})
}

// SessionSummary recomputes the summary of every session opened on day from
// its current orders. Frozen close snapshots are left untouched.
func (r *Reporter) SessionSummary(ctx context.Context, day time.Time) ([]domain.SessionSummary, error) {
	start := day.UTC().Truncate(24 * time.Hour)
	return cached(ctx, r, "session-summary:"+start.Format(time.DateOnly), func() ([]domain.SessionSummary, error) {
		sessions, err := r.repo.SessionsOpenedBetween(ctx, start, start.AddDate(0, 0, 1))
		if err != nil {
			return nil, err
		}
		summaries := make([]domain.SessionSummary, 0, len(sessions))
		for _, session := range sessions {
			orders, err := r.repo.SessionOrders(ctx, session.ID)
			if err != nil {
				return nil, err
			}
			_, summary := summarizeSession(session, orders)
			summaries = append(summaries, summary)
		}
		slices.SortFunc(summaries, func(a, b domain.SessionSummary) int { return cmp.Compare(a.SessionID, b.SessionID) })
		return summaries, nil
	})
}
