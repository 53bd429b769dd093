package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/facucarcelero/comandero/internal/domain"
	"github.com/facucarcelero/comandero/internal/store"
)

type Catalog struct {
	repo     store.CatalogRepository
	recorder *recorder
}

func (c *Catalog) Get(ctx context.Context, id int64) (domain.Product, error) {
	if id < 1 {
		return domain.Product{}, store.ErrNotFound
	}
	product, err := c.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (c *Catalog) List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	filter.Category = strings.TrimSpace(filter.Category)
	filter.Search = strings.TrimSpace(filter.Search)
	return c.repo.ListProducts(ctx, filter)
}

func (c *Catalog) Categories(ctx context.Context) ([]string, error) {
	return c.repo.ListCategories(ctx)
}

func normalizeProduct(req domain.ProductCreateRequest) (domain.Product, error) {
	product := domain.Product{
		Name:       strings.TrimSpace(req.Name),
		Category:   strings.ToLower(strings.TrimSpace(req.Category)),
		PriceCents: req.PriceCents,
		Stock:      req.Stock,
		Active:     true,
	}
	if err := store.ValidateProduct(product); err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

func (c *Catalog) Create(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	product, err := normalizeProduct(req)
	if err != nil {
		return domain.Product{}, err
	}

	created, err := c.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	c.recorder.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("name=%s,price=%d,stock=%d", created.Name, created.PriceCents, created.Stock))
	return *created, nil
}

func (c *Catalog) Update(ctx context.Context, id int64, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	// Only the fields present in the request are touched; stock in particular
	// keeps whatever concurrent orders and voids committed.
	saved, err := c.repo.UpdateProduct(ctx, id, func(p *domain.Product) {
		if req.Name != nil {
			p.Name = strings.TrimSpace(*req.Name)
		}
		if req.Category != nil {
			p.Category = strings.ToLower(strings.TrimSpace(*req.Category))
		}
		if req.PriceCents != nil {
			p.PriceCents = *req.PriceCents
		}
		if req.Stock != nil {
			p.Stock = *req.Stock
		}
		if req.Active != nil {
			p.Active = *req.Active
		}
	})
	if err != nil {
		return domain.Product{}, err
	}
	c.recorder.logAudit(ctx, "product_update", "product", saved.ID, fmt.Sprintf("active=%t,price=%d,stock=%d", saved.Active, saved.PriceCents, saved.Stock))
	return *saved, nil
}

// SoftDelete deactivates the product. Orders keep their captured lines.
func (c *Catalog) SoftDelete(ctx context.Context, id int64) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	saved, err := c.repo.SetProductActive(ctx, id, false)
	if err != nil {
		return domain.Product{}, err
	}
	c.recorder.logAudit(ctx, "product_delete", "product", saved.ID, saved.Name)
	return *saved, nil
}

// AdjustStock applies a manual correction. The result never goes negative.
func (c *Catalog) AdjustStock(ctx context.Context, id int64, req domain.StockAdjustRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	if req.Delta == 0 {
		return domain.Product{}, invalidInput("stock delta must not be zero")
	}

	saved, err := c.repo.AdjustStock(ctx, id, req.Delta)
	if err != nil {
		return domain.Product{}, err
	}
	c.recorder.logAudit(ctx, "stock_adjust", "product", saved.ID, fmt.Sprintf("delta=%d,stock=%d,reason=%s", req.Delta, saved.Stock, strings.TrimSpace(req.Reason)))
	return *saved, nil
}

// Import creates every product or none of them.
func (c *Catalog) Import(ctx context.Context, reqs []domain.ProductCreateRequest) (int, error) {
	if err := requireAdmin(ctx); err != nil {
		return 0, err
	}
	if len(reqs) == 0 {
		return 0, invalidInput("no products to import")
	}

	products := make([]domain.Product, 0, len(reqs))
	for i, req := range reqs {
		product, err := normalizeProduct(req)
		if err != nil {
			return 0, fmt.Errorf("row %d: %w", i+1, err)
		}
		products = append(products, product)
	}

	count, err := c.repo.ImportProducts(ctx, products)
	if err != nil {
		return 0, err
	}
	c.recorder.logAudit(ctx, "product_import", "product", 0, fmt.Sprintf("count=%d", count))
	return count, nil
}
