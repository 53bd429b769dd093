package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/facucarcelero/comandero/internal/domain"
	"github.com/facucarcelero/comandero/internal/store"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

var _ store.Repository = (*Store)(nil)

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := newWithDB(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func newWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// ---- catalog ----

const productColumns = "id, name, category, price_cents, stock, active, created_at, updated_at"

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	if err := row.Scan(&p.ID, &p.Name, &p.Category, &p.PriceCents, &p.Stock, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return domain.Product{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func getProduct(ctx context.Context, q queryer, id int64, lock bool) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	p, err := scanProduct(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, store.Storage(err)
	}
	return &p, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return getProduct(ctx, s.db, id, false)
}

func (s *Store) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	var args argList
	where := []string{"true"}
	if !filter.IncludeInactive {
		where = append(where, "active = true")
	}
	if filter.Category != "" {
		where = append(where, "category = "+args.add(filter.Category))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		where = append(where, "name ILIKE "+args.add("%"+search+"%"))
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY category, name, id
	`, args.values...)
	if err != nil {
		return nil, store.Storage(err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
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
		WHERE active = true AND category <> ''
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
	err := q.QueryRowContext(ctx, `
		INSERT INTO products (name, category, price_cents, stock, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,true,$5,$5)
		RETURNING id
	`, product.Name, product.Category, product.PriceCents, product.Stock, now).Scan(&product.ID)
	if err != nil {
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

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
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

// UpdateProduct holds the row with FOR UPDATE so a concurrent order or void
// cannot change stock between the read and the write.
func (s *Store) UpdateProduct(ctx context.Context, id int64, edit store.ProductEdit) (*domain.Product, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, store.Storage(err)
	}
	defer func() { _ = tx.Rollback() }()

	product, err := getProduct(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}
	edit(product)
	product.ID = id
	if err := store.ValidateProduct(*product); err != nil {
		return nil, err
	}

	updated, err := scanProduct(tx.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, price_cents = $4, stock = $5, active = $6, updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns,
		id, product.Name, product.Category, product.PriceCents, product.Stock, product.Active))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, store.Storage(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, store.Storage(err)
	}
	return &updated, nil
}

func (s *Store) SetProductActive(ctx context.Context, id int64, active bool) (*domain.Product, error) {
	updated, err := scanProduct(s.db.QueryRowContext(ctx, `
		UPDATE products SET active = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns, id, active))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, store.Storage(err)
	}
	return &updated, nil
}

func (s *Store) AdjustStock(ctx context.Context, id int64, delta int) (*domain.Product, error) {
	updated, err := scanProduct(s.db.QueryRowContext(ctx, `
		UPDATE products SET stock = stock + $2, updated_at = now()
		WHERE id = $1 AND stock + $2 >= 0
		RETURNING `+productColumns, id, delta))
	if err == nil {
		return &updated, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, store.Storage(err)
	}
	if _, lookupErr := s.GetProduct(ctx, id); lookupErr != nil {
		return nil, lookupErr
	}
	return nil, store.ErrInsufficientStock
}

// ---- helpers ----

// argList numbers positional parameters while a query is assembled.
type argList struct {
	values []any
}

func (a *argList) add(v any) string {
	a.values = append(a.values, v)
	return fmt.Sprintf("$%d", len(a.values))
}

func (a *argList) timeRange(where []string, column string, from time.Time, to time.Time) []string {
	if !from.IsZero() {
		where = append(where, column+" >= "+a.add(from.UTC()))
	}
	if !to.IsZero() {
		where = append(where, column+" < "+a.add(to.UTC()))
	}
	return where
}

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

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func ptrInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func ptrTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}
