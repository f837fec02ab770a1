package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/techaura/outreach-engine/internal/api"
	"github.com/techaura/outreach-engine/internal/config"
	"github.com/techaura/outreach-engine/internal/domain"
	"github.com/techaura/outreach-engine/internal/followup"
	"github.com/techaura/outreach-engine/internal/gating"
	"github.com/techaura/outreach-engine/internal/messaging"
	"github.com/techaura/outreach-engine/internal/pkg/logger"
	"github.com/techaura/outreach-engine/internal/policy"
	"github.com/techaura/outreach-engine/internal/repository/postgres"
	"github.com/techaura/outreach-engine/internal/sessionstore"
)

// checkPortAvailable verifies that the target port is not already in use.
// This prevents confusion from stale processes occupying the port.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	if cfg.Logging.RedactPII != nil {
		logger.SetRedactPII(*cfg.Logging.RedactPII)
	}

	if err := checkPortAvailable(cfg.Server.Host, cfg.Server.Port); err != nil {
		logger.Error("startup aborted", "error", err.Error())
		os.Exit(1)
	}

	// Postgres
	var db *sql.DB
	if cfg.Database.URL != "" {
		db, err = sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			logger.Error("failed to open database", "error", err.Error())
			os.Exit(1)
		}
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Minute)

		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := db.PingContext(pingCtx); err != nil {
			logger.Warn("database ping failed, continuing with degraded order checks", "error", err.Error())
		}
		pingCancel()
		defer db.Close()
	} else {
		logger.Warn("no DATABASE_URL configured, order suppression checks disabled")
	}

	// Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis ping failed, session and cooldown checks degraded", "addr", cfg.Redis.Addr, "error", err.Error())
	}
	pingCancel()
	defer rdb.Close()

	sessions := sessionstore.NewRedisStore(rdb)

	// Repositories
	var orderRepo *postgres.OrderRepo
	var customerRepo *postgres.CustomerRepo
	var events followup.EventTracker
	if db != nil {
		orderRepo = postgres.NewOrderRepo(db)
		customerRepo = postgres.NewCustomerRepo(db)
		events = postgres.NewEventSink(db)
	} else {
		events = noopEvents{}
	}

	// Gating chain
	var resolver *gating.Resolver
	var evaluator *gating.Evaluator
	validator := policy.NewValidator(cfg.Gates.MaxMessageLength, "techaura.com")
	if db != nil {
		resolver = gating.NewResolver(orderRepo, customerRepo, sessions)
		evaluator = gating.NewEvaluator(resolver, orderRepo, sessions, validator, cfg.Gates)
	} else {
		resolver = gating.NewResolver(nil, nil, sessions)
		evaluator = gating.NewEvaluator(resolver, nil, sessions, validator, cfg.Gates)
	}

	// Delivery
	composer := messaging.NewComposer()
	gateway := messaging.NewHTTPGateway(cfg.Gateway)

	scheduler := followup.NewScheduler(cfg.FollowUp, evaluator, sessions, composer, gateway, events)

	handlers := api.NewHandlers(scheduler, evaluator, resolver, db, rdb)
	server := api.NewServer(handlers)

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		logger.Info("starting server", "addr", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err.Error())
			os.Exit(1)
		}
	}()

	logger.Info("outreach engine ready")

	<-done
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err.Error())
	}

	logger.Info("server stopped")
}

// noopEvents drops audit events when no database is configured.
type noopEvents struct{}

func (noopEvents) TrackEvent(string, string, domain.FollowUpEvent, map[string]interface{}) {}
