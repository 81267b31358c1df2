// pipeline-orchestrator wires the Event Bus, State Store, Task Queue, Lock
// Service, Budget Gate, Approval Gate, Event→Task Mapper, Scheduler, and
// worker-facing HTTP API into one running replica.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/scenestack/pipeline/pkg/approval"
	"github.com/scenestack/pipeline/pkg/budget"
	"github.com/scenestack/pipeline/pkg/cleanup"
	"github.com/scenestack/pipeline/pkg/config"
	"github.com/scenestack/pipeline/pkg/database"
	"github.com/scenestack/pipeline/pkg/eventbus"
	"github.com/scenestack/pipeline/pkg/lockservice"
	"github.com/scenestack/pipeline/pkg/mapper"
	"github.com/scenestack/pipeline/pkg/masking"
	"github.com/scenestack/pipeline/pkg/orchestrator"
	"github.com/scenestack/pipeline/pkg/scheduler"
	"github.com/scenestack/pipeline/pkg/slack"
	"github.com/scenestack/pipeline/pkg/store"
	"github.com/scenestack/pipeline/pkg/taskqueue"
	"github.com/scenestack/pipeline/pkg/version"
	"github.com/scenestack/pipeline/pkg/worker"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// redisConfigFromEnv mirrors database.LoadConfigFromEnv's
// getEnvOrDefault-style reading for the Event Bus's and Lock Service's
// shared Redis connection.
func redisConfigFromEnv() *redis.Options {
	db, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	return &redis.Options{
		Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
	}
}

func podID() string {
	if id := os.Getenv("POD_ID"); id != "" {
		return id
	}
	host, err := os.Hostname()
	if err != nil {
		return "orchestrator-dev"
	}
	return host
}

func main() {
	log := slog.Default()

	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Warn("could not load .env file, continuing with existing environment", "path", envPath, "error", err)
	} else {
		log.Info("loaded environment", "path", envPath)
	}

	httpAddr := ":" + getEnv("HTTP_PORT", "8080")

	log.Info("starting pipeline orchestrator", "version", version.Full(), "pod_id", podID(), "config_dir", *configDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		log.Error("failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		log.Error("failed to load database config", "error", err)
		os.Exit(1)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			log.Error("error closing database client", "error", err)
		}
	}()
	log.Info("connected to postgres and ran migrations")

	redisClient := redis.NewClient(redisConfigFromEnv())
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Error("error closing redis client", "error", err)
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("failed to reach redis", "error", err)
		os.Exit(1)
	}

	locks := lockservice.New(redisClient, cfg.Lock.DefaultTTL, cfg.Lock.BlockingPollEvery)

	st := store.New(dbClient.Pool(), redisClient, locks)
	eventStore := eventbus.NewStore(dbClient.Pool())
	bus := eventbus.New(redisClient, eventStore, log)
	queue := taskqueue.New(dbClient.Pool())

	masker := masking.NewService(log)

	budgetGate := budget.New(cfg.Budget, bus, st, log)
	mapperSvc := mapper.New(cfg)

	var notifier approval.Notifier
	if cfg.Notify.Enabled {
		token := os.Getenv(cfg.Notify.TokenEnv)
		notifier = slack.NewService(slack.ServiceConfig{
			Token:        token,
			Channel:      cfg.Notify.Channel,
			DashboardURL: getEnv("DASHBOARD_URL", ""),
		})
		log.Info("slack approval notifications enabled", "channel", cfg.Notify.Channel)
	} else {
		log.Info("slack approval notifications disabled")
	}

	approvalGate := approval.New(cfg.Approval, st, bus, mapperSvc, queue, notifier, log)

	pod := podID()
	sched := scheduler.New(pod, cfg.Queue, queue, st, bus, budgetGate, locks, log)
	sched.SetMasker(masker)
	sched.SetTaskDefaults(cfg.TaskDefaults)

	orch := orchestrator.New(pod, st, bus, queue, mapperSvc, budgetGate, approvalGate, sched, log)

	server := worker.NewServer(st, bus, queue, locks, sched, budgetGate, orch, log)

	cleanupSvc := cleanup.NewService(cfg.Retention, st, eventStore, log)

	if err := orch.Start(ctx); err != nil {
		log.Error("failed to start orchestrator", "error", err)
		os.Exit(1)
	}
	cleanupSvc.Start(ctx)
	go approvalGate.Run(ctx, cfg.Approval.ScanInterval)

	go func() {
		log.Info("http server listening", "addr", httpAddr)
		if err := server.Start(httpAddr); err != nil {
			log.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error", "error", err)
	}
	cleanupSvc.Stop()
	orch.Stop()

	log.Info("pipeline orchestrator stopped")
}
