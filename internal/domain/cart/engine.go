package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Engine owns the authoritative cart. Operations are serialized; each one
// either commits a new snapshot to the store and then to memory, or leaves
// both untouched.
type Engine struct {
	mu        sync.Mutex
	catalog   Catalog
	store     Store
	publisher Publisher
	notifier  Notifier
	key       string
	items     []Product

	subMu  sync.Mutex
	subs   map[int]func([]Product)
	nextID int

	// events is drained by one goroutine outside mu. Enqueueing happens
	// under mu, so events leave in commit order.
	events    chan queuedEvent
	done      chan struct{}
	closed    bool
	closeOnce sync.Once
}

type queuedEvent struct {
	ctx   context.Context
	event Event
}

const publishQueueSize = 256

type Option func(*Engine)

func WithStorageKey(key string) Option {
	return func(e *Engine) { e.key = key }
}

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// NewEngine builds an engine and restores the cart from the store.
// A missing or unreadable snapshot yields an empty cart.
func NewEngine(ctx context.Context, catalog Catalog, store Store, opts ...Option) *Engine {
	e := &Engine{
		catalog:  catalog,
		store:    store,
		notifier: LogNotifier{},
		key:      DefaultStorageKey,
		items:    []Product{},
		subs:     make(map[int]func([]Product)),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.items = e.load(ctx)

	if e.publisher != nil {
		e.events = make(chan queuedEvent, publishQueueSize)
		e.done = make(chan struct{})
		go e.runPublisher()
	}
	return e
}

// Close stops accepting cart events and waits until the queued ones have
// been handed to the publisher. Cart operations keep working afterwards.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		if e.events != nil {
			close(e.events)
		}
		e.mu.Unlock()

		if e.done != nil {
			<-e.done
		}
	})
}

func (e *Engine) load(ctx context.Context) []Product {
	data, err := e.store.Read(ctx, e.key)
	if err != nil {
		if !errors.Is(err, ErrSnapshotNotFound) {
			log.Printf("[Cart] Failed to read snapshot %q, starting empty: %v", e.key, err)
		}
		return []Product{}
	}

	var stored []Product
	if err := json.Unmarshal(data, &stored); err != nil {
		log.Printf("[Cart] Failed to decode snapshot %q, starting empty: %v", e.key, err)
		return []Product{}
	}
	return sanitize(stored)
}

// sanitize drops entries that would break the cart invariants.
func sanitize(stored []Product) []Product {
	items := make([]Product, 0, len(stored))
	for _, p := range stored {
		if p.Amount < 1 {
			log.Printf("[Cart] Dropping product %d with amount %d from snapshot", p.ID, p.Amount)
			continue
		}
		if indexOf(items, p.ID) >= 0 {
			log.Printf("[Cart] Dropping duplicate product %d from snapshot", p.ID)
			continue
		}
		items = append(items, p)
	}
	return items
}

// Cart returns a copy of the current cart.
func (e *Engine) Cart() []Product {
	e.mu.Lock()
	defer e.mu.Unlock()
	return clone(e.items)
}

// Subscribe registers fn to receive every committed cart.
func (e *Engine) Subscribe(fn func([]Product)) (unsubscribe func()) {
	e.subMu.Lock()
	id := e.nextID
	e.nextID++
	e.subs[id] = fn
	e.subMu.Unlock()

	return func() {
		e.subMu.Lock()
		delete(e.subs, id)
		e.subMu.Unlock()
	}
}

func (e *Engine) AddProduct(ctx context.Context, productID int) error {
	err := e.mutate(ctx, EventProductAdded, func(current []Product) ([]Product, any, error) {
		product, err := e.lookupProduct(ctx, productID)
		if err != nil {
			return nil, nil, err
		}
		available, err := e.availableStock(ctx, productID)
		if err != nil {
			return nil, nil, err
		}

		if idx := indexOf(current, productID); idx >= 0 {
			newAmount := current[idx].Amount + 1
			if newAmount > available {
				return nil, nil, ErrInsufficientStock
			}
			next := clone(current)
			next[idx].Amount = newAmount
			return next, ProductAddedToCart{
				ProductID: productID,
				Title:     next[idx].Title,
				Amount:    newAmount,
				AddedAt:   time.Now(),
			}, nil
		}

		if available < 1 {
			return nil, nil, ErrInsufficientStock
		}
		entry := *product
		entry.Amount = 1
		next := append(clone(current), entry)
		return next, ProductAddedToCart{
			ProductID: productID,
			Title:     entry.Title,
			Amount:    1,
			AddedAt:   time.Now(),
		}, nil
	})
	if err != nil {
		e.notify(ctx, OpAddProduct, productID, err)
	}
	return err
}

func (e *Engine) RemoveProduct(ctx context.Context, productID int) error {
	err := e.mutate(ctx, EventProductRemoved, func(current []Product) ([]Product, any, error) {
		idx := indexOf(current, productID)
		if idx < 0 {
			return nil, nil, ErrProductNotInCart
		}
		next := make([]Product, 0, len(current)-1)
		next = append(next, current[:idx]...)
		next = append(next, current[idx+1:]...)
		return next, ProductRemovedFromCart{ProductID: productID, RemovedAt: time.Now()}, nil
	})
	if err != nil {
		e.notify(ctx, OpRemoveProduct, productID, err)
	}
	return err
}

// UpdateProductAmount sets the amount of a cart entry. Amounts below one
// are ignored without a notification.
func (e *Engine) UpdateProductAmount(ctx context.Context, productID, amount int) error {
	if amount < 1 {
		return nil
	}

	err := e.mutate(ctx, EventProductAmountUpdated, func(current []Product) ([]Product, any, error) {
		if _, err := e.lookupProduct(ctx, productID); err != nil {
			return nil, nil, err
		}
		available, err := e.availableStock(ctx, productID)
		if err != nil {
			return nil, nil, err
		}
		if amount > available {
			return nil, nil, ErrInsufficientStock
		}

		idx := indexOf(current, productID)
		if idx < 0 {
			return nil, nil, ErrProductNotInCart
		}
		next := clone(current)
		next[idx].Amount = amount
		return next, ProductAmountUpdated{ProductID: productID, Amount: amount, UpdatedAt: time.Now()}, nil
	})
	if err != nil {
		e.notify(ctx, OpUpdateProductAmount, productID, err)
	}
	return err
}

// mutate runs transition under the engine lock, writes the result to the
// store and only then swaps it into memory.
func (e *Engine) mutate(ctx context.Context, eventType string, transition func([]Product) ([]Product, any, error)) error {
	e.mu.Lock()

	next, payload, err := transition(e.items)
	if err == nil {
		err = e.persist(ctx, next)
	}
	if err != nil {
		e.mu.Unlock()
		return err
	}

	e.items = next
	e.enqueue(ctx, eventType, payload)
	committed := clone(next)
	e.mu.Unlock()

	e.broadcast(committed)
	return nil
}

func (e *Engine) persist(ctx context.Context, items []Product) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal cart: %w", ErrStorageFailure, err)
	}
	if err := e.store.Write(ctx, e.key, data); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}
	return nil
}

func (e *Engine) lookupProduct(ctx context.Context, productID int) (*Product, error) {
	product, err := e.catalog.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}
	return product, nil
}

// availableStock treats unknown stock as zero.
func (e *Engine) availableStock(ctx context.Context, productID int) (int, error) {
	stock, err := e.catalog.GetStock(ctx, productID)
	if err != nil {
		if errors.Is(err, ErrStockNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
	if stock == nil {
		return 0, nil
	}
	return stock.Amount, nil
}

// enqueue must be called with mu held.
func (e *Engine) enqueue(ctx context.Context, eventType string, payload any) {
	if e.events == nil || e.closed {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[Cart] Failed to marshal %s event: %v", eventType, err)
		return
	}
	event := Event{
		ID:        uuid.New().String(),
		CartKey:   e.key,
		EventType: eventType,
		Data:      data,
		Timestamp: time.Now(),
	}

	select {
	case e.events <- queuedEvent{ctx: context.WithoutCancel(ctx), event: event}:
	default:
		log.Printf("[Cart] Event queue full, dropping %s event %s", eventType, event.ID)
	}
}

func (e *Engine) runPublisher() {
	defer close(e.done)
	for q := range e.events {
		if err := e.publisher.Publish(q.ctx, e.key, q.event); err != nil {
			log.Printf("[Cart] Failed to publish %s event %s: %v", q.event.EventType, q.event.ID, err)
		}
	}
}

func (e *Engine) broadcast(items []Product) {
	e.subMu.Lock()
	subs := make([]func([]Product), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.subMu.Unlock()

	for _, fn := range subs {
		fn(clone(items))
	}
}

func (e *Engine) notify(ctx context.Context, op Operation, productID int, err error) {
	if e.notifier == nil {
		return
	}
	e.notifier.Notify(ctx, Notification{
		Op:        op,
		ProductID: productID,
		Message:   MessageFor(op, err),
		Err:       err,
		At:        time.Now(),
	})
}
