package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/go-checkout-engine.git/internal/cart"
	"github.com/ariefcatur/go-checkout-engine.git/internal/cartlock"
	"github.com/ariefcatur/go-checkout-engine.git/internal/catalog"
	"github.com/ariefcatur/go-checkout-engine.git/internal/checkout"
	"github.com/ariefcatur/go-checkout-engine.git/internal/config"
	"github.com/ariefcatur/go-checkout-engine.git/internal/events"
	"github.com/ariefcatur/go-checkout-engine.git/internal/httpx"
	kafkax "github.com/ariefcatur/go-checkout-engine.git/internal/kafka"
	"github.com/ariefcatur/go-checkout-engine.git/internal/ledger"
	"github.com/ariefcatur/go-checkout-engine.git/internal/orders"
	"github.com/ariefcatur/go-checkout-engine.git/internal/payment"
	"github.com/ariefcatur/go-checkout-engine.git/internal/postgres"
	"github.com/ariefcatur/go-checkout-engine.git/internal/pricing"
	"github.com/ariefcatur/go-checkout-engine.git/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Schema dulu, baru pool.
	migDSN := strings.Replace(cfg.PostgresDSN, "postgres://", "pgx5://", 1)
	if err := postgres.Migrate("file://migrations", migDSN); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Event sink: satu topic audit, partition key = cart/order id.
	prod := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicAudit, 1024)
	prod.Start(ctx)
	emitter := &events.KafkaEmitter{Producer: prod, Service: cfg.ServiceName}

	// Ledger warm-load dari DB; selanjutnya in-memory otoritatif.
	ledgerRepo := &ledger.Repo{DB: db}
	batches, err := ledgerRepo.LoadAll(ctx)
	if err != nil {
		log.Fatalf("ledger load: %v", err)
	}
	led := ledger.New(ledgerRepo, emitter)
	led.Load(batches)
	log.Printf("ledger loaded: %d batches", len(batches))

	locks := cartlock.NewManager(cfg.LockLease, emitter)

	pricer := &pricing.Service{
		Catalog:  &catalog.Repo{DB: db},
		Currency: "CAD",
		Rules: []pricing.PromoRule{
			pricing.SubtotalPercentOff{PromoCode: "BULK10", ThresholdCents: 50000, BPS: 1000},
		},
		TaxBPS:            cfg.TaxBPS,
		ShippingFlatCents: cfg.ShippingFlatCents,
		FreeShippingCents: cfg.FreeShippingCents,
	}

	declineOver, _ := strconv.ParseInt(os.Getenv("GATEWAY_DECLINE_OVER_CENTS"), 10, 64)
	cartRepo := &cart.Repo{DB: db, TTL: cfg.CartTTL}
	orderRepo := &orders.Repo{DB: db}
	orch := &checkout.Orchestrator{
		Locks:       locks,
		Ledger:      led,
		Pricing:     pricer,
		Gateway:     &payment.StubGateway{DeclineOverCents: declineOver},
		Carts:       cartRepo,
		Orders:      orderRepo,
		Payments:    &payment.Repo{DB: db},
		Emitter:     emitter,
		LockTimeout: cfg.LockTimeout,
	}

	router := httpx.NewRouter()
	ch := &httpx.CheckoutHandler{
		Orchestrator: orch,
		Orders:       orderRepo,
		Carts:        cartRepo,
		Ledger:       led,
		Redis:        rdb,
	}
	ch.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close()      // tutup inbox -> flush & close writer
	prod.WaitClosed() // drain
}
