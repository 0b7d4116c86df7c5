package main // Entry point of the identity service

import (
	"context"
	"errors"
	"log" // Logging library
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bookfair/stallhub/internal/config"   // Internal config loader
	"github.com/bookfair/stallhub/internal/database" // SQL connection + schema
	"github.com/bookfair/stallhub/internal/handler"
	"github.com/bookfair/stallhub/internal/queue" // auth events
	"github.com/bookfair/stallhub/internal/repository"
	"github.com/bookfair/stallhub/internal/repository/mongostore"
	"github.com/bookfair/stallhub/internal/router" // Internal router setup
	"github.com/bookfair/stallhub/internal/service"
	"github.com/bookfair/stallhub/internal/utils"
)

// stores bundles whichever credential store STORE_URL selected.
type stores struct {
	users  service.UserStore
	tokens service.TokenStore
	ping   handler.Pinger
	close  func(context.Context) error
}

func main() {
	if err := config.LoadDotEnv(); err != nil { // .env is optional
		log.Fatalf("auth: read .env: %v", err)
	}
	cfg, err := config.LoadAuth()
	if err != nil {
		log.Fatalf("auth: config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("auth: store: %v", err)
	}

	// Auth events go to the broker when one is configured
	var pub queue.Publisher = queue.Noop{}
	if cfg.BrokerURL != "" {
		p := queue.NewAMQPPublisher(cfg.BrokerURL)
		defer p.Close()
		// register and login never wait on the broker
		async := queue.NewAsync(p, 0)
		defer async.Close()
		pub = async
		if cfg.AuditLogPath != "" {
			go func() {
				if err := queue.RunAuditConsumer(ctx, cfg.BrokerURL, cfg.AuditLogPath); err != nil && !errors.Is(err, context.Canceled) {
					log.Printf("auth: audit consumer stopped: %v", err)
				}
			}()
		}
	}

	codec := utils.NewCodec(cfg.JWTSecret, cfg.JWTRefreshSecret, cfg.AccessTTL, cfg.RefreshTTL)
	sessions := service.NewSessions(st.users, st.tokens, codec, service.Options{
		BcryptCost: cfg.BcryptCost,
		Publisher:  pub,
	})
	go service.RunTokenSweeper(ctx, st.tokens, cfg.PurgeInterval, nil)

	e := router.NewAuthServer(router.Options{Dev: cfg.IsDevelopment()})
	router.RegisterAuth(e, handler.NewAuthHandler(sessions), sessions, st.ping)

	addr := ":" + cfg.Port                                      // Address string with port
	log.Printf("auth: listening on %s (env=%s)", addr, cfg.Env) // Print startup info
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("auth: server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("auth: shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(sctx); err != nil {
		log.Printf("auth: shutdown: %v", err)
	}
	if err := st.close(sctx); err != nil {
		log.Printf("auth: close store: %v", err)
	}
}

// openStore picks the backend from the STORE_URL scheme.
func openStore(ctx context.Context, cfg config.AuthConfig) (*stores, error) {
	if strings.HasPrefix(cfg.StoreURL, "mongodb://") || strings.HasPrefix(cfg.StoreURL, "mongodb+srv://") {
		ms, err := mongostore.Open(ctx, cfg.StoreURL, cfg.StoreDatabase)
		if err != nil {
			return nil, err
		}
		return &stores{users: ms, tokens: ms, ping: handler.PingFunc(ms.Ping), close: ms.Close}, nil
	}

	db, dialect, err := database.Open(cfg.StoreURL)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Printf("auth: %s store ready", dialect)
	return &stores{
		users:  repository.NewUserRepo(db),
		tokens: repository.NewTokenRepo(db),
		ping:   db,
		close:  func(context.Context) error { return db.Close() },
	}, nil
}
