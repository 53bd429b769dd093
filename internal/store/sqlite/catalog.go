package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/facucarcelero/comandero/internal/domain"
	"github.com/facucarcelero/comandero/internal/store"
)

const productColumns = "id, name, category, price_cents, stock, active, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	var createdAt, updatedAt string
	if err := row.Scan(&p.ID, &p.Name, &p.Category, &p.PriceCents, &p.Stock, &p.Active, &createdAt, &updatedAt); err != nil {
		return domain.Product{}, err
	}
	var err error
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.Product{}, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

func getProduct(ctx context.Context, q queryer, id int64) (*domain.Product, error) {
	p, err := scanProduct(q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, store.Storage(err)
	}
	return &p, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return getProduct(ctx, s.db, id)
}

func (s *Store) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	where := []string{"1 = 1"}
	args := make([]any, 0, 3)
	if !filter.IncludeInactive {
		where = append(where, "active = 1")
	}
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		where = append(where, "lower(name) LIKE ?")
		args = append(args, "%"+strings.ToLower(search)+"%")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY category, name, id
	`, args...)
	if err != nil {
		return nil, store.Storage(err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, store.Storage(err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Storage(err)
	}
	return products, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT category
		FROM products
		WHERE active = 1 AND category <> ''
		ORDER BY category
	`)
	if err != nil {
		return nil, store.Storage(err)
	}
	defer rows.Close()

	categories := make([]string, 0, 16)
	for rows.Next() {
		var category string
		if err := rows.Scan(&category); err != nil {
			return nil, store.Storage(err)
		}
		categories = append(categories, category)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Storage(err)
	}
	return categories, nil
}

func insertProduct(ctx context.Context, q queryer, product domain.Product, now time.Time) (domain.Product, error) {
	product.Active = true
	product.CreatedAt = now
	product.UpdatedAt = now
	res, err := q.ExecContext(ctx, `
		INSERT INTO products (name, category, price_cents, stock, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)
	`, product.Name, product.Category, product.PriceCents, product.Stock, formatTime(now), formatTime(now))
	if err != nil {
		return domain.Product{}, err
	}
	if product.ID, err = res.LastInsertId(); err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if err := store.ValidateProduct(product); err != nil {
		return nil, err
	}
	created, err := insertProduct(ctx, s.db, product, time.Now().UTC())
	if err != nil {
		return nil, store.Storage(err)
	}
	return &created, nil
}

func (s *Store) ImportProducts(ctx context.Context, products []domain.Product) (int, error) {
	for i, p := range products {
		if err := store.ValidateProduct(p); err != nil {
			return 0, fmt.Errorf("row %d: %w", i+1, err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, store.Storage(err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for _, p := range products {
		if _, err := insertProduct(ctx, tx, p, now); err != nil {
			return 0, store.Storage(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, store.Storage(err)
	}
	return len(products), nil
}

func (s *Store) UpdateProduct(ctx context.Context, id int64, edit store.ProductEdit) (*domain.Product, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, store.Storage(err)
	}
	defer func() { _ = tx.Rollback() }()

	product, err := getProduct(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	edit(product)
	product.ID = id
	if err := store.ValidateProduct(*product); err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE products
		SET name = ?, category = ?, price_cents = ?, stock = ?, active = ?, updated_at = ?
		WHERE id = ?
	`, product.Name, product.Category, product.PriceCents, product.Stock, product.Active,
		formatTime(time.Now()), id)
	if err != nil {
		return nil, store.Storage(err)
	}
	if err := expectOneRow(res, store.ErrNotFound); err != nil {
		return nil, err
	}

	updated, err := getProduct(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, store.Storage(err)
	}
	return updated, nil
}

func (s *Store) SetProductActive(ctx context.Context, id int64, active bool) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products SET active = ?, updated_at = ? WHERE id = ?
	`, active, formatTime(time.Now()), id)
	if err != nil {
		return nil, store.Storage(err)
	}
	if err := expectOneRow(res, store.ErrNotFound); err != nil {
		return nil, err
	}
	return getProduct(ctx, s.db, id)
}

// AdjustStock applies delta with a guard so stock never goes negative.
func (s *Store) AdjustStock(ctx context.Context, id int64, delta int) (*domain.Product, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, store.Storage(err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + ?, updated_at = ?
		WHERE id = ? AND stock + ? >= 0
	`, delta, formatTime(time.Now()), id, delta)
	if err != nil {
		return nil, store.Storage(err)
	}
	if err := expectOneRow(res, store.ErrInsufficientStock); err != nil {
		if errors.Is(err, store.ErrInsufficientStock) {
			if _, lookupErr := getProduct(ctx, tx, id); lookupErr != nil {
				return nil, lookupErr
			}
		}
		return nil, err
	}

	product, err := getProduct(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, store.Storage(err)
	}
	return product, nil
}

// expectOneRow returns missing when the statement matched no row.
func expectOneRow(res sql.Result, missing error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return store.Storage(err)
	}
	if affected == 0 {
		return missing
	}
	return nil
}
