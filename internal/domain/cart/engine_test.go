package cart_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/ec-cart/internal/domain/cart"
	"github.com/example/ec-cart/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sneaker = cart.Product{ID: 1, Title: "Tênis de Caminhada Leve Confortável", Price: 179.9, Image: "https://example.com/1.jpg"}
var runner = cart.Product{ID: 2, Title: "Tênis VR Caminhada Confortável", Price: 139.9, Image: "https://example.com/2.jpg"}

type testEnv struct {
	engine    *cart.Engine
	catalog   *mocks.MockCatalog
	store     *mocks.MockStore
	publisher *mocks.MockPublisher
	notes     *cart.NotificationLog
}

func newTestEngine(t *testing.T, seed []cart.Product) testEnv {
	t.Helper()

	catalog := mocks.NewMockCatalog()
	catalog.AddProduct(sneaker, 5)
	catalog.AddProduct(runner, 10)

	store := mocks.NewMockStore()
	if seed != nil {
		data, err := json.Marshal(seed)
		require.NoError(t, err)
		store.Seed(cart.DefaultStorageKey, data)
	}

	publisher := mocks.NewMockPublisher()
	notes := cart.NewNotificationLog(10)
	engine := cart.NewEngine(context.Background(), catalog, store,
		cart.WithNotifier(notes),
		cart.WithPublisher(publisher),
	)
	t.Cleanup(engine.Close)
	return testEnv{engine: engine, catalog: catalog, store: store, publisher: publisher, notes: notes}
}

func withAmount(p cart.Product, amount int) cart.Product {
	p.Amount = amount
	return p
}

func storedCart(t *testing.T, store *mocks.MockStore) []cart.Product {
	t.Helper()
	data, ok := store.Value(cart.DefaultStorageKey)
	require.True(t, ok, "snapshot should be stored")
	var items []cart.Product
	require.NoError(t, json.Unmarshal(data, &items))
	return items
}

// ============================================
// Load Tests
// ============================================

func TestNewEngine_EmptyStore(t *testing.T) {
	env := newTestEngine(t, nil)

	assert.Empty(t, env.engine.Cart())
	assert.NotNil(t, env.engine.Cart())
}

func TestNewEngine_RestoresSnapshot(t *testing.T) {
	seed := []cart.Product{withAmount(runner, 3), withAmount(sneaker, 1)}
	env := newTestEngine(t, seed)

	assert.Equal(t, seed, env.engine.Cart())
}

func TestNewEngine_MalformedSnapshot(t *testing.T) {
	store := mocks.NewMockStore()
	store.Seed(cart.DefaultStorageKey, []byte("{not json"))

	engine := cart.NewEngine(context.Background(), mocks.NewMockCatalog(), store)

	assert.Empty(t, engine.Cart())
}

func TestNewEngine_StoreReadError(t *testing.T) {
	store := mocks.NewMockStore()
	store.ReadErr = errors.New("disk on fire")

	engine := cart.NewEngine(context.Background(), mocks.NewMockCatalog(), store)

	assert.Empty(t, engine.Cart())
}

func TestNewEngine_SanitizesSnapshot(t *testing.T) {
	seed := []cart.Product{
		withAmount(sneaker, 2),
		withAmount(runner, 0),
		withAmount(sneaker, 4),
	}
	env := newTestEngine(t, seed)

	assert.Equal(t, []cart.Product{withAmount(sneaker, 2)}, env.engine.Cart())
}

func TestNewEngine_CustomStorageKey(t *testing.T) {
	store := mocks.NewMockStore()
	catalog := mocks.NewMockCatalog()
	catalog.AddProduct(sneaker, 5)

	engine := cart.NewEngine(context.Background(), catalog, store, cart.WithStorageKey("cart:tests"))
	require.NoError(t, engine.AddProduct(context.Background(), sneaker.ID))

	_, ok := store.Value("cart:tests")
	assert.True(t, ok)
	_, ok = store.Value(cart.DefaultStorageKey)
	assert.False(t, ok)
}

// ============================================
// Add Product Tests
// ============================================

func TestEngine_AddProduct_NewEntry(t *testing.T) {
	env := newTestEngine(t, nil)

	err := env.engine.AddProduct(context.Background(), sneaker.ID)

	require.NoError(t, err)
	want := []cart.Product{withAmount(sneaker, 1)}
	assert.Equal(t, want, env.engine.Cart())
	assert.Equal(t, want, storedCart(t, env.store))
	assert.Empty(t, env.notes.Recent())
}

func TestEngine_AddProduct_IncrementsExisting(t *testing.T) {
	env := newTestEngine(t, []cart.Product{withAmount(sneaker, 2), withAmount(runner, 1)})

	err := env.engine.AddProduct(context.Background(), sneaker.ID)

	require.NoError(t, err)
	assert.Equal(t, []cart.Product{withAmount(sneaker, 3), withAmount(runner, 1)}, env.engine.Cart())
}

func TestEngine_AddProduct_PreservesInsertionOrder(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	require.NoError(t, env.engine.AddProduct(ctx, runner.ID))
	require.NoError(t, env.engine.AddProduct(ctx, sneaker.ID))
	require.NoError(t, env.engine.AddProduct(ctx, runner.ID))

	assert.Equal(t, []cart.Product{withAmount(runner, 2), withAmount(sneaker, 1)}, env.engine.Cart())
}

func TestEngine_AddProduct_AtStockLimit(t *testing.T) {
	seed := []cart.Product{withAmount(sneaker, 5)}
	env := newTestEngine(t, seed)

	err := env.engine.AddProduct(context.Background(), sneaker.ID)

	assert.ErrorIs(t, err, cart.ErrInsufficientStock)
	assert.Equal(t, seed, env.engine.Cart())
	assert.Empty(t, env.store.WriteCalls)

	notes := env.notes.Recent()
	require.Len(t, notes, 1)
	assert.Equal(t, cart.MsgOutOfStock, notes[0].Message)
	assert.Equal(t, cart.OpAddProduct, notes[0].Op)
	assert.Equal(t, sneaker.ID, notes[0].ProductID)
}

func TestEngine_AddProduct_ZeroStock(t *testing.T) {
	env := newTestEngine(t, nil)
	env.catalog.SetStock(sneaker.ID, 0)

	err := env.engine.AddProduct(context.Background(), sneaker.ID)

	assert.ErrorIs(t, err, cart.ErrInsufficientStock)
	assert.Empty(t, env.engine.Cart())
	assert.Empty(t, env.store.WriteCalls)
}

func TestEngine_AddProduct_MissingStockIsZero(t *testing.T) {
	env := newTestEngine(t, nil)
	env.catalog.AddProductWithoutStock(cart.Product{ID: 9, Title: "Ghost"})

	err := env.engine.AddProduct(context.Background(), 9)

	assert.ErrorIs(t, err, cart.ErrInsufficientStock)
	assert.Empty(t, env.engine.Cart())
}

func TestEngine_AddProduct_UnknownProduct(t *testing.T) {
	env := newTestEngine(t, nil)

	err := env.engine.AddProduct(context.Background(), 42)

	assert.ErrorIs(t, err, cart.ErrProductNotFound)
	assert.Empty(t, env.engine.Cart())

	notes := env.notes.Recent()
	require.Len(t, notes, 1)
	assert.Equal(t, cart.MsgAddFailed, notes[0].Message)
}

func TestEngine_AddProduct_CatalogFailure(t *testing.T) {
	env := newTestEngine(t, nil)
	env.catalog.StockErr = errors.New("connection refused")

	err := env.engine.AddProduct(context.Background(), sneaker.ID)

	assert.ErrorIs(t, err, cart.ErrServiceUnavailable)
	assert.Empty(t, env.engine.Cart())
	assert.Empty(t, env.store.WriteCalls)
}

func TestEngine_AddProduct_StorageFailure(t *testing.T) {
	seed := []cart.Product{withAmount(runner, 1)}
	env := newTestEngine(t, seed)
	env.store.WriteErr = errors.New("quota exceeded")

	err := env.engine.AddProduct(context.Background(), sneaker.ID)

	assert.ErrorIs(t, err, cart.ErrStorageFailure)
	assert.Equal(t, seed, env.engine.Cart())
	env.engine.Close()
	assert.Empty(t, env.publisher.Events())

	notes := env.notes.Recent()
	require.Len(t, notes, 1)
	assert.Equal(t, cart.MsgAddFailed, notes[0].Message)
}

func TestEngine_AddProduct_PublishesEvent(t *testing.T) {
	env := newTestEngine(t, nil)

	require.NoError(t, env.engine.AddProduct(context.Background(), sneaker.ID))
	env.engine.Close()

	events := env.publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, cart.EventProductAdded, events[0].EventType)
	assert.Equal(t, cart.DefaultStorageKey, events[0].CartKey)
	assert.NotEmpty(t, events[0].ID)

	var data cart.ProductAddedToCart
	require.NoError(t, json.Unmarshal(events[0].Data, &data))
	assert.Equal(t, sneaker.ID, data.ProductID)
	assert.Equal(t, 1, data.Amount)
}

func TestEngine_AddProduct_PublishFailureKeepsCommit(t *testing.T) {
	env := newTestEngine(t, nil)
	env.publisher.PublishErr = errors.New("broker down")

	err := env.engine.AddProduct(context.Background(), sneaker.ID)

	require.NoError(t, err)
	assert.Equal(t, []cart.Product{withAmount(sneaker, 1)}, env.engine.Cart())
}

// blockingPublisher holds every Publish call until release is closed.
type blockingPublisher struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	mu      sync.Mutex
	events  []cart.Event
}

func (p *blockingPublisher) Publish(ctx context.Context, key string, event any) error {
	p.once.Do(func() { close(p.started) })
	<-p.release
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event.(cart.Event))
	return nil
}

func TestEngine_SlowPublisherDoesNotBlockOperations(t *testing.T) {
	catalog := mocks.NewMockCatalog()
	catalog.AddProduct(sneaker, 5)
	catalog.AddProduct(runner, 10)
	publisher := &blockingPublisher{started: make(chan struct{}), release: make(chan struct{})}
	engine := cart.NewEngine(context.Background(), catalog, mocks.NewMockStore(), cart.WithPublisher(publisher))
	ctx := context.Background()

	require.NoError(t, engine.AddProduct(ctx, sneaker.ID))
	select {
	case <-publisher.started:
	case <-time.After(time.Second):
		t.Fatal("publisher was never called")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = engine.Cart()
		_ = engine.AddProduct(ctx, runner.ID)
		_ = engine.UpdateProductAmount(ctx, runner.ID, 3)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("cart operations blocked while an event was being published")
	}

	close(publisher.release)
	engine.Close()

	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	require.Len(t, publisher.events, 3)
	assert.Equal(t, cart.EventProductAdded, publisher.events[0].EventType)
	assert.Equal(t, cart.EventProductAdded, publisher.events[1].EventType)
	assert.Equal(t, cart.EventProductAmountUpdated, publisher.events[2].EventType)
}

func TestEngine_CloseStopsPublishing(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	require.NoError(t, env.engine.AddProduct(ctx, sneaker.ID))
	env.engine.Close()
	require.NoError(t, env.engine.AddProduct(ctx, sneaker.ID))
	env.engine.Close()

	assert.Len(t, env.publisher.Events(), 1)
	assert.Equal(t, []cart.Product{withAmount(sneaker, 2)}, env.engine.Cart())
}

// ============================================
// Remove Product Tests
// ============================================

func TestEngine_RemoveProduct_Success(t *testing.T) {
	env := newTestEngine(t, []cart.Product{withAmount(sneaker, 2)})

	err := env.engine.RemoveProduct(context.Background(), sneaker.ID)

	require.NoError(t, err)
	assert.Empty(t, env.engine.Cart())
	assert.Empty(t, storedCart(t, env.store))

	data, _ := env.store.Value(cart.DefaultStorageKey)
	assert.JSONEq(t, "[]", string(data))
}

func TestEngine_RemoveProduct_KeepsOthersInOrder(t *testing.T) {
	env := newTestEngine(t, []cart.Product{withAmount(runner, 1), withAmount(sneaker, 2), {ID: 3, Title: "Third", Amount: 1}})

	require.NoError(t, env.engine.RemoveProduct(context.Background(), sneaker.ID))

	assert.Equal(t, []cart.Product{withAmount(runner, 1), {ID: 3, Title: "Third", Amount: 1}}, env.engine.Cart())
}

func TestEngine_RemoveProduct_NotInCart(t *testing.T) {
	seed := []cart.Product{withAmount(runner, 1)}
	env := newTestEngine(t, seed)

	err := env.engine.RemoveProduct(context.Background(), sneaker.ID)

	assert.ErrorIs(t, err, cart.ErrProductNotInCart)
	assert.Equal(t, seed, env.engine.Cart())
	assert.Empty(t, env.store.WriteCalls)

	notes := env.notes.Recent()
	require.Len(t, notes, 1)
	assert.Equal(t, cart.MsgRemoveFailed, notes[0].Message)
}

func TestEngine_RemoveProduct_DoesNotQueryCatalog(t *testing.T) {
	env := newTestEngine(t, []cart.Product{withAmount(sneaker, 2)})

	require.NoError(t, env.engine.RemoveProduct(context.Background(), sneaker.ID))

	assert.Zero(t, env.catalog.ProductCalls)
	assert.Zero(t, env.catalog.StockCalls)
}

// ============================================
// Update Product Amount Tests
// ============================================

func TestEngine_UpdateProductAmount_Success(t *testing.T) {
	env := newTestEngine(t, []cart.Product{withAmount(runner, 2)})

	err := env.engine.UpdateProductAmount(context.Background(), runner.ID, 7)

	require.NoError(t, err)
	assert.Equal(t, []cart.Product{withAmount(runner, 7)}, env.engine.Cart())
	assert.Equal(t, []cart.Product{withAmount(runner, 7)}, storedCart(t, env.store))

	env.engine.Close()
	events := env.publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, cart.EventProductAmountUpdated, events[0].EventType)
}

func TestEngine_UpdateProductAmount_Decrease(t *testing.T) {
	env := newTestEngine(t, []cart.Product{withAmount(runner, 6)})

	require.NoError(t, env.engine.UpdateProductAmount(context.Background(), runner.ID, 1))

	assert.Equal(t, []cart.Product{withAmount(runner, 1)}, env.engine.Cart())
}

func TestEngine_UpdateProductAmount_BelowOneIsNoop(t *testing.T) {
	tests := []struct {
		name   string
		amount int
	}{
		{"zero", 0},
		{"negative", -1},
		{"very negative", -100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seed := []cart.Product{withAmount(runner, 2)}
			env := newTestEngine(t, seed)

			err := env.engine.UpdateProductAmount(context.Background(), runner.ID, tt.amount)

			require.NoError(t, err)
			assert.Equal(t, seed, env.engine.Cart())
			assert.Empty(t, env.store.WriteCalls)
			assert.Empty(t, env.notes.Recent())
			assert.Zero(t, env.catalog.ProductCalls)
		})
	}
}

func TestEngine_UpdateProductAmount_ExceedsStock(t *testing.T) {
	seed := []cart.Product{withAmount(sneaker, 2)}
	env := newTestEngine(t, seed)

	err := env.engine.UpdateProductAmount(context.Background(), sneaker.ID, 6)

	assert.ErrorIs(t, err, cart.ErrInsufficientStock)
	assert.Equal(t, seed, env.engine.Cart())

	notes := env.notes.Recent()
	require.Len(t, notes, 1)
	assert.Equal(t, cart.MsgOutOfStock, notes[0].Message)
	assert.Equal(t, cart.OpUpdateProductAmount, notes[0].Op)
}

func TestEngine_UpdateProductAmount_ExactlyStock(t *testing.T) {
	env := newTestEngine(t, []cart.Product{withAmount(sneaker, 2)})

	require.NoError(t, env.engine.UpdateProductAmount(context.Background(), sneaker.ID, 5))

	assert.Equal(t, []cart.Product{withAmount(sneaker, 5)}, env.engine.Cart())
}

func TestEngine_UpdateProductAmount_NotInCart(t *testing.T) {
	env := newTestEngine(t, nil)

	err := env.engine.UpdateProductAmount(context.Background(), sneaker.ID, 3)

	assert.ErrorIs(t, err, cart.ErrProductNotInCart)
	assert.Empty(t, env.engine.Cart())

	notes := env.notes.Recent()
	require.Len(t, notes, 1)
	assert.Equal(t, cart.MsgUpdateFailed, notes[0].Message)
}

func TestEngine_UpdateProductAmount_UnknownProduct(t *testing.T) {
	env := newTestEngine(t, nil)

	err := env.engine.UpdateProductAmount(context.Background(), 42, 1)

	assert.ErrorIs(t, err, cart.ErrProductNotFound)
}

func TestEngine_UpdateProductAmount_StorageFailure(t *testing.T) {
	seed := []cart.Product{withAmount(runner, 2)}
	env := newTestEngine(t, seed)
	env.store.WriteErr = errors.New("quota exceeded")

	err := env.engine.UpdateProductAmount(context.Background(), runner.ID, 4)

	assert.ErrorIs(t, err, cart.ErrStorageFailure)
	assert.Equal(t, seed, env.engine.Cart())
}

// ============================================
// Invariant and Subscription Tests
// ============================================

func TestEngine_RoundTripThroughStore(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	require.NoError(t, env.engine.AddProduct(ctx, runner.ID))
	require.NoError(t, env.engine.AddProduct(ctx, sneaker.ID))
	require.NoError(t, env.engine.UpdateProductAmount(ctx, runner.ID, 4))

	reloaded := cart.NewEngine(ctx, env.catalog, env.store)

	assert.Equal(t, env.engine.Cart(), reloaded.Cart())
}

func TestEngine_OperationSequenceKeepsInvariants(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()
	stock := map[int]int{sneaker.ID: 5, runner.ID: 10}

	ops := []func() error{
		func() error { return env.engine.AddProduct(ctx, sneaker.ID) },
		func() error { return env.engine.AddProduct(ctx, runner.ID) },
		func() error { return env.engine.AddProduct(ctx, sneaker.ID) },
		func() error { return env.engine.UpdateProductAmount(ctx, sneaker.ID, 9) },
		func() error { return env.engine.UpdateProductAmount(ctx, runner.ID, 10) },
		func() error { return env.engine.AddProduct(ctx, runner.ID) },
		func() error { return env.engine.RemoveProduct(ctx, sneaker.ID) },
		func() error { return env.engine.RemoveProduct(ctx, sneaker.ID) },
		func() error { return env.engine.AddProduct(ctx, sneaker.ID) },
	}

	for _, op := range ops {
		_ = op()

		seen := make(map[int]bool)
		for _, p := range env.engine.Cart() {
			assert.False(t, seen[p.ID], "duplicate product %d", p.ID)
			seen[p.ID] = true
			assert.GreaterOrEqual(t, p.Amount, 1)
			assert.LessOrEqual(t, p.Amount, stock[p.ID])
		}
		assert.Equal(t, env.engine.Cart(), storedCart(t, env.store))
	}
}

func TestEngine_Subscribe(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	var received [][]cart.Product
	unsubscribe := env.engine.Subscribe(func(items []cart.Product) {
		received = append(received, items)
	})

	require.NoError(t, env.engine.AddProduct(ctx, sneaker.ID))
	_ = env.engine.RemoveProduct(ctx, runner.ID) // rejected, no broadcast
	unsubscribe()
	require.NoError(t, env.engine.AddProduct(ctx, sneaker.ID))

	require.Len(t, received, 1)
	assert.Equal(t, []cart.Product{withAmount(sneaker, 1)}, received[0])
}

func TestEngine_SubscriberCanReadCart(t *testing.T) {
	env := newTestEngine(t, nil)

	var seen []cart.Product
	env.engine.Subscribe(func([]cart.Product) {
		seen = env.engine.Cart()
	})

	require.NoError(t, env.engine.AddProduct(context.Background(), sneaker.ID))
	assert.Equal(t, []cart.Product{withAmount(sneaker, 1)}, seen)
}

func TestEngine_ConcurrentAddsRespectStock(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = env.engine.AddProduct(ctx, sneaker.ID)
		}()
	}
	wg.Wait()

	assert.Equal(t, []cart.Product{withAmount(sneaker, 5)}, env.engine.Cart())
}

func TestEngine_CartReturnsCopy(t *testing.T) {
	env := newTestEngine(t, []cart.Product{withAmount(sneaker, 2)})

	items := env.engine.Cart()
	items[0].Amount = 99

	assert.Equal(t, 2, env.engine.Cart()[0].Amount)
}

func TestTotals(t *testing.T) {
	summary := cart.Totals([]cart.Product{
		{ID: 1, Price: 10.5, Amount: 2},
		{ID: 2, Price: 3, Amount: 1},
	})

	assert.Equal(t, 3, summary.Items)
	assert.InDelta(t, 24.0, summary.Subtotal, 0.0001)
}
