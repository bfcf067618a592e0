package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/ec-cart/internal/activity"
	"github.com/example/ec-cart/internal/config"
	"github.com/example/ec-cart/internal/infrastructure/kafka"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Load()
	if len(cfg.KafkaBrokers) == 0 {
		log.Fatal("[Activity] KAFKA_BROKERS environment variable is required")
	}

	log.Println("[Activity] ========================================")
	log.Println("[Activity] Cart Activity Consumer")
	log.Println("[Activity] ========================================")
	log.Printf("[Activity] Kafka: %v", cfg.KafkaBrokers)
	log.Printf("[Activity] Topic: %s", cfg.KafkaTopic)
	log.Printf("[Activity] Group: %s", cfg.KafkaGroupID)

	handler := activity.NewHandler()

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID)
	defer consumer.Close()

	go func() {
		log.Println("[Activity] Starting event consumer...")
		if err := consumer.Consume(ctx, handler.HandleEvent); err != nil && ctx.Err() == nil {
			log.Printf("[Activity] Consumer error: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[Activity] Shutting down...")
	cancel()
}
