package main // Entry point of the API gateway

import (
	"context"
	"errors"
	"log" // Logging library
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bookfair/stallhub/internal/config" // Internal config loader
	"github.com/bookfair/stallhub/internal/gateway"
	"github.com/bookfair/stallhub/internal/ratelimit"
)

func main() {
	if err := config.LoadDotEnv(); err != nil { // .env is optional
		log.Fatalf("gateway: read .env: %v", err)
	}
	cfg, err := config.LoadGateway()
	if err != nil {
		log.Fatalf("gateway: config: %v", err)
	}

	// Redis is optional: shared counters and the stall cache need it,
	// otherwise each instance counts on its own
	rdb := config.NewRedisClient(cfg.Redis)
	var store ratelimit.CounterStore
	if rdb != nil {
		defer rdb.Close()
		store = ratelimit.NewRedisStore(rdb)
		log.Printf("gateway: rate-limit counters in redis %s", cfg.Redis.Addr)
	} else {
		mem := ratelimit.NewMemoryStore(time.Minute)
		defer mem.Close()
		store = mem
		log.Printf("gateway: rate-limit counters in memory")
	}

	srv := gateway.New(cfg, store, rdb)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := ":" + cfg.Port // Address string with port
	go func() {
		if err := srv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("gateway: server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("gateway: shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Printf("gateway: shutdown: %v", err)
	}
}
