package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/pagesift/bookstore-scraper/internal/catalog"
	"github.com/pagesift/bookstore-scraper/internal/storage"
)

const upsertProductSQL = `
INSERT INTO products (source_id, category_id, title, author, price, original_price,
                      image_url, source_url, isbn, condition, publisher, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
ON CONFLICT (source_id) DO UPDATE SET
	category_id    = EXCLUDED.category_id,
	title          = EXCLUDED.title,
	author         = EXCLUDED.author,
	price          = EXCLUDED.price,
	original_price = EXCLUDED.original_price,
	image_url      = EXCLUDED.image_url,
	source_url     = EXCLUDED.source_url,
	isbn           = EXCLUDED.isbn,
	condition      = EXCLUDED.condition,
	publisher      = EXCLUDED.publisher,
	updated_at     = now()`

const upsertCategorySQL = `
INSERT INTO categories (slug, title, url, parent_slug, updated_at)
VALUES ($1, $2, $3, NULLIF($4, ''), now())
ON CONFLICT (slug) DO UPDATE SET
	title       = EXCLUDED.title,
	url         = EXCLUDED.url,
	parent_slug = EXCLUDED.parent_slug,
	updated_at  = now()`

// CatalogStore persists products and categories.
type CatalogStore struct {
	pool   DB
	logger *zap.Logger
}

// NewCatalogStore builds a CatalogStore on an existing pool.
func NewCatalogStore(pool DB, logger *zap.Logger) (*CatalogStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &CatalogStore{pool: pool, logger: logger}, nil
}

// UpsertBatch writes one page of products and refreshes the category's
// product count inside the same transaction. The count is recomputed
// from the table rather than incremented, so replays of the same page
// never inflate it.
func (s *CatalogStore) UpsertBatch(ctx context.Context, categoryID int64, products []catalog.Product) (int, error) {
	if len(products) == 0 {
		return s.CountProducts(ctx, categoryID)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin upsert batch: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Warn("rollback upsert batch", zap.Error(rbErr))
		}
	}()

	b := &pgx.Batch{}
	for _, p := range products {
		b.Queue(upsertProductSQL,
			p.SourceID, categoryID, p.Title, p.Author, p.Price, p.OriginalPrice,
			p.ImageURL, p.SourceURL, p.ISBN, p.Condition, p.Publisher)
	}
	br := tx.SendBatch(ctx, b)
	for range products {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return 0, fmt.Errorf("upsert product: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("close upsert batch: %w", err)
	}

	var count int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM products WHERE category_id = $1`, categoryID).Scan(&count); err != nil {
		return 0, fmt.Errorf("recount products: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE categories SET products_count = $2, updated_at = now() WHERE id = $1`,
		categoryID, count); err != nil {
		return 0, fmt.Errorf("update category count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit upsert batch: %w", err)
	}
	return count, nil
}

// CountProducts returns the stored product count of a category.
func (s *CatalogStore) CountProducts(ctx context.Context, categoryID int64) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM products WHERE category_id = $1`, categoryID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return count, nil
}

// UpsertCategories writes the navigation tree keyed by slug. Children
// carry their parent's slug so the hierarchy survives re-scrapes.
func (s *CatalogStore) UpsertCategories(ctx context.Context, nav catalog.Navigation) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin upsert categories: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Warn("rollback upsert categories", zap.Error(rbErr))
		}
	}()

	b := &pgx.Batch{}
	queued := 0
	for _, cat := range nav.Categories {
		b.Queue(upsertCategorySQL, cat.Slug, cat.Title, cat.URL, "")
		queued++
		for _, child := range cat.Children {
			b.Queue(upsertCategorySQL, child.Slug, child.Title, child.URL, cat.Slug)
			queued++
		}
	}
	br := tx.SendBatch(ctx, b)
	for i := 0; i < queued; i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return 0, fmt.Errorf("upsert category: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("close category batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit upsert categories: %w", err)
	}
	return queued, nil
}

// CountCategories returns the number of stored categories.
func (s *CatalogStore) CountCategories(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM categories`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count categories: %w", err)
	}
	return count, nil
}

// UpdateProductDetail enriches an existing product row with detail page
// data. A missing row returns storage.ErrNotFound.
func (s *CatalogStore) UpdateProductDetail(ctx context.Context, sourceID string, detail catalog.ProductDetail) error {
	specsJSON, err := json.Marshal(detail.Specs)
	if err != nil {
		return fmt.Errorf("marshal specs: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE products
SET description = $2,
    specs       = $3,
    image_url   = COALESCE(NULLIF($4, ''), image_url),
    updated_at  = now()
WHERE source_id = $1`,
		sourceID, detail.Description, specsJSON, detail.ImageURL)
	if err != nil {
		return fmt.Errorf("update product detail: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
