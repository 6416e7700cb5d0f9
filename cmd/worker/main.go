// Command worker runs the background loops: the interaction dispatcher,
// the expiration sweeper and the daily clock ticker.
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

	"github.com/ignite/loyalty-core/internal/config"
	"github.com/ignite/loyalty-core/internal/delivery"
	"github.com/ignite/loyalty-core/internal/domain"
	"github.com/ignite/loyalty-core/internal/pkg/httpretry"
	"github.com/ignite/loyalty-core/internal/repository/postgres"
	"github.com/ignite/loyalty-core/internal/service/attribution"
	"github.com/ignite/loyalty-core/internal/service/frequency"
	"github.com/ignite/loyalty-core/internal/service/ledger"
	"github.com/ignite/loyalty-core/internal/service/pipeline"
	"github.com/ignite/loyalty-core/internal/service/scheduler"
	"github.com/ignite/loyalty-core/internal/service/trigger"
	"github.com/ignite/loyalty-core/internal/worker"
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

	transport := delivery.NewHTTPTransport(cfg.Delivery.BaseURL, cfg.Delivery.APIKey,
		httpretry.NewRetryClient(&http.Client{Timeout: cfg.Delivery.Timeout()}, 3))

	dispatcher := worker.NewInteractionDispatcher(interactionRepo, campaignRepo, profileRepo,
		transport, db, rdb, cfg.Delivery.Provider)
	dispatcher.SetPollInterval(cfg.Dispatcher.PollInterval())
	if rdb != nil {
		dispatcher.SetLimiter(worker.NewRateLimiter(rdb, map[string]worker.RateLimit{
			cfg.Delivery.Provider: {
				PerSecond: cfg.Delivery.PerSecond,
				PerMinute: cfg.Delivery.PerMinute,
				PerDay:    cfg.Delivery.PerDay,
			},
		}))
	}

	// Zero-offset interactions go out right after commit; the poll loop
	// still picks up anything this path drops.
	sched.OnImmediate = func(ctx context.Context, in *domain.Interaction) {
		if err := dispatcher.Dispatch(ctx, in); err != nil {
			log.Printf("immediate dispatch %s: %v", in.ID, err)
		}
	}

	sweeper := worker.NewExpirationSweeper(ledgerSvc, db, rdb)
	sweeper.SetInterval(cfg.Sweep.Interval())

	ticker := worker.NewClockTicker(campaignRepo, processor, cfg.Dispatcher.TickHour)

	if err := dispatcher.Start(); err != nil {
		log.Fatalf("dispatcher: %v", err)
	}
	if err := sweeper.Start(); err != nil {
		log.Fatalf("sweeper: %v", err)
	}
	if err := ticker.Start(); err != nil {
		log.Fatalf("ticker: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down workers...")
	ticker.Stop()
	sweeper.Stop()
	dispatcher.Stop()
	log.Println("Workers stopped")
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
		log.Println("Redis disabled; locks fall back to Postgres, sends unthrottled")
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
