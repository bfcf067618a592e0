package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/ec-cart/internal/domain/cart"
	_ "github.com/lib/pq"
)

// Postgres reads products and stock from the products and stock tables.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (c *Postgres) GetProduct(ctx context.Context, id int) (*cart.Product, error) {
	var p cart.Product
	err := c.db.QueryRowContext(ctx,
		"SELECT id, title, price, image FROM products WHERE id = $1",
		id,
	).Scan(&p.ID, &p.Title, &p.Price, &p.Image)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cart.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product %d: %w", id, err)
	}
	return &p, nil
}

func (c *Postgres) GetStock(ctx context.Context, id int) (*cart.StockEntry, error) {
	var s cart.StockEntry
	err := c.db.QueryRowContext(ctx,
		"SELECT id, amount FROM stock WHERE id = $1",
		id,
	).Scan(&s.ID, &s.Amount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cart.ErrStockNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stock %d: %w", id, err)
	}
	return &s, nil
}

func (c *Postgres) ListProducts(ctx context.Context) ([]cart.Product, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT id, title, price, image FROM products ORDER BY id ASC",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []cart.Product
	for rows.Next() {
		var p cart.Product
		if err := rows.Scan(&p.ID, &p.Title, &p.Price, &p.Image); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (c *Postgres) ListStock(ctx context.Context) ([]cart.StockEntry, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT id, amount FROM stock ORDER BY id ASC",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list stock: %w", err)
	}
	defer rows.Close()

	var stock []cart.StockEntry
	for rows.Next() {
		var s cart.StockEntry
		if err := rows.Scan(&s.ID, &s.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan stock: %w", err)
		}
		stock = append(stock, s)
	}
	return stock, rows.Err()
}
