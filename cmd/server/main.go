// Command server runs the HTTP API: event ingestion, ledger operations and
// the read endpoints.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/loyalty-core/internal/api"
	"github.com/ignite/loyalty-core/internal/config"
	"github.com/ignite/loyalty-core/internal/pkg/logger"
	"github.com/ignite/loyalty-core/internal/repository/postgres"
	"github.com/ignite/loyalty-core/internal/service/attribution"
	"github.com/ignite/loyalty-core/internal/service/frequency"
	"github.com/ignite/loyalty-core/internal/service/ledger"
	"github.com/ignite/loyalty-core/internal/service/pipeline"
	"github.com/ignite/loyalty-core/internal/service/scheduler"
	"github.com/ignite/loyalty-core/internal/service/trigger"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if os.Getenv("LOG_LEVEL") == "debug" {
		logger.SetLevel(logger.DEBUG)
	}

	db, err := openDB(cfg.Database)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to database")

	rdb := openRedis(cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
	}

	ledgerRepo := postgres.NewLedgerRepo(db)
	campaignRepo := postgres.NewCampaignRepo(db)
	programRepo := postgres.NewProgramRepo(db)
	profileRepo := postgres.NewProfileRepo(db)
	interactionRepo := postgres.NewInteractionRepo(db)
	conversionRepo := postgres.NewConversionRepo(db)

	ledgerSvc := ledger.NewService(ledgerRepo)
	cache := trigger.NewCache(campaignRepo, rdb, cfg.Redis.CacheTTL())
	evaluator := trigger.NewEvaluator(cache, profileRepo)
	guard := frequency.NewGuard(interactionRepo)
	sched := scheduler.NewScheduler(interactionRepo)
	engine := attribution.NewEngine(conversionRepo, cfg.Attribution.DormancyDays)
	processor := pipeline.NewProcessor(evaluator, guard, sched, ledgerSvc, engine, programRepo, profileRepo)

	srv := api.NewServer(ledgerSvc, processor, campaignRepo, cache, interactionRepo, conversionRepo, db, rdb)

	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.Routes(cfg.Server.AllowedOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Printf("API listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

func openDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database url is required")
	}
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}
	return db, nil
}

func openRedis(cfg config.RedisConfig) *redis.Client {
	if !cfg.Enabled || cfg.URL == "" {
		log.Println("Redis disabled; cache and locks fall back to Postgres")
		return nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		log.Printf("invalid redis url, continuing without redis: %v", err)
		return nil
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("redis unreachable, continuing without redis: %v", err)
		client.Close()
		return nil
	}
	log.Println("Connected to redis")
	return client
}
