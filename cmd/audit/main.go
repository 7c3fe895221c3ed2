package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/go-checkout-engine.git/internal/audit"
	"github.com/ariefcatur/go-checkout-engine.git/internal/config"
	"github.com/ariefcatur/go-checkout-engine.git/internal/events"
	kafkax "github.com/ariefcatur/go-checkout-engine.git/internal/kafka"
	"github.com/ariefcatur/go-checkout-engine.git/internal/postgres"
	"github.com/ariefcatur/go-checkout-engine.git/internal/redisx"
)

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &audit.Service{
		DB:          db,
		Redis:       rdb,
		ServiceName: cfg.ServiceName + "-audit",
	}

	group := getenv("AUDIT_GROUP", "audit-sink")
	workers := mustAtoi(os.Getenv("AUDIT_WORKERS"), "4")
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, events.TopicAudit, workers)

	go func() {
		log.Printf("audit consumer started: group=%s topic=%s workers=%d", group, events.TopicAudit, workers)
		if err := cons.Start(ctx, svc.HandleEvent); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down consumer...")
	cancel()
	time.Sleep(500 * time.Millisecond)
}
