package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/example/ec-cart/internal/domain/cart"
	"github.com/sony/gobreaker/v2"
)

var errNotFound = errors.New("resource not found")

// HTTPClient reads the catalog from a REST API exposing /products and
// /stock collections. Calls go through a circuit breaker; 404 responses
// are not counted as failures.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
}

type HTTPOptions struct {
	Timeout          time.Duration
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

func NewHTTPClient(baseURL string, opts HTTPOptions) *HTTPClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = 5
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "catalog",
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("[Catalog] Circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: opts.Timeout},
		breaker: breaker,
	}
}

func (c *HTTPClient) GetProduct(ctx context.Context, id int) (*cart.Product, error) {
	var p cart.Product
	if err := c.getJSON(ctx, fmt.Sprintf("/products/%d", id), &p); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, cart.ErrProductNotFound
		}
		return nil, err
	}
	p.Amount = 0
	return &p, nil
}

func (c *HTTPClient) GetStock(ctx context.Context, id int) (*cart.StockEntry, error) {
	var s cart.StockEntry
	if err := c.getJSON(ctx, fmt.Sprintf("/stock/%d", id), &s); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, cart.ErrStockNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (c *HTTPClient) ListProducts(ctx context.Context) ([]cart.Product, error) {
	var products []cart.Product
	if err := c.getJSON(ctx, "/products", &products); err != nil {
		return nil, err
	}
	for i := range products {
		products[i].Amount = 0
	}
	return products, nil
}

func (c *HTTPClient) ListStock(ctx context.Context) ([]cart.StockEntry, error) {
	var stock []cart.StockEntry
	if err := c.getJSON(ctx, "/stock", &stock); err != nil {
		return nil, err
	}
	return stock, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, out any) error {
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.get(ctx, path)
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

func (c *HTTPClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return body, nil
}
