package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/example/ec-cart/internal/api"
	"github.com/example/ec-cart/internal/catalog"
	"github.com/example/ec-cart/internal/config"
	"github.com/example/ec-cart/internal/domain/cart"
	"github.com/example/ec-cart/internal/infrastructure/kafka"
	"github.com/example/ec-cart/internal/infrastructure/store"
	"github.com/redis/go-redis/v9"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Load()

	log.Println("[API] ========================================")
	log.Println("[API] Shopping Cart")
	log.Println("[API] ========================================")
	log.Printf("[API] Storage key: %s", cfg.StorageKey)
	log.Printf("[API] Store: %s", cfg.StoreDriver)
	log.Printf("[API] Catalog: %s", cfg.CatalogDriver)

	// Initialize catalog
	products, closeCatalog, err := openCatalog(cfg)
	if err != nil {
		log.Fatalf("[API] Failed to open catalog: %v", err)
	}
	defer closeCatalog()
	if cfg.CatalogCacheTTL > 0 {
		log.Printf("[API] Catalog cache TTL: %s", cfg.CatalogCacheTTL)
		products = catalog.NewCached(products, cfg.CatalogCacheTTL)
	}

	// Initialize snapshot store
	snapshots, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("[API] Failed to open store: %v", err)
	}
	defer closeStore()

	notes := cart.NewNotificationLog(cfg.Notifications)
	opts := []cart.Option{
		cart.WithStorageKey(cfg.StorageKey),
		cart.WithNotifier(cart.MultiNotifier{cart.LogNotifier{}, notes}),
	}

	// Cart events are optional
	if len(cfg.KafkaBrokers) > 0 {
		log.Printf("[API] Kafka: %v", cfg.KafkaBrokers)
		log.Printf("[API] Topic: %s", cfg.KafkaTopic)
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		opts = append(opts, cart.WithPublisher(producer))
	}

	engine := cart.NewEngine(ctx, products, snapshots, opts...)
	defer engine.Close()
	log.Printf("[API] Restored cart with %d products", len(engine.Cart()))

	handlers := api.NewHandlers(engine, products, notes)
	router := api.NewRouter(handlers)

	// Start HTTP server
	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	go func() {
		log.Printf("[API] Server started on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[API] Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[API] Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)
}

func openCatalog(cfg config.Config) (cart.Catalog, func(), error) {
	switch cfg.CatalogDriver {
	case "http":
		client := catalog.NewHTTPClient(cfg.CatalogURL, catalog.HTTPOptions{
			Timeout:          cfg.CatalogTimeout,
			FailureThreshold: uint32(cfg.BreakerThreshold),
		})
		return client, func() {}, nil
	case "postgres":
		db, err := store.ConnectPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return catalog.NewPostgres(db), func() { db.Close() }, nil
	case "memory":
		mem, err := catalog.LoadSeed(cfg.CatalogSeedPath)
		if err != nil {
			return nil, nil, err
		}
		return mem, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown catalog driver %q", cfg.CatalogDriver)
	}
}

func openStore(ctx context.Context, cfg config.Config) (cart.Store, func(), error) {
	switch cfg.StoreDriver {
	case "file":
		s, err := store.NewFileStore(cfg.FileStoreDir)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	case "memory":
		return store.NewMemoryStore(), func() {}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return store.NewRedisStore(client), func() { client.Close() }, nil
	case "postgres":
		db, err := store.ConnectPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		s := store.NewPostgresStore(db)
		if err := s.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return s, func() { db.Close() }, nil
	case "dynamodb":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if cfg.AWSEndpoint != "" {
				o.BaseEndpoint = aws.String(cfg.AWSEndpoint)
			}
		})
		return store.NewDynamoStore(client, cfg.DynamoTable), func() {}, nil
	case "mongodb":
		db, err := store.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, nil, err
		}
		return store.NewMongoStore(db), func() { db.Client().Disconnect(context.Background()) }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
