package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/trogers1052/portfolio-ledger-service/internal/analytics"
	"github.com/trogers1052/portfolio-ledger-service/internal/api"
	"github.com/trogers1052/portfolio-ledger-service/internal/config"
	"github.com/trogers1052/portfolio-ledger-service/internal/database"
	"github.com/trogers1052/portfolio-ledger-service/internal/dates"
	"github.com/trogers1052/portfolio-ledger-service/internal/kafka"
	"github.com/trogers1052/portfolio-ledger-service/internal/log"
	"github.com/trogers1052/portfolio-ledger-service/internal/portfolio"
	"github.com/trogers1052/portfolio-ledger-service/internal/prices"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "config file path, environment only when empty")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}
	if err := log.Configure(cfg.Log.Level, cfg.Log.Encoding); err != nil {
		log.Fatal("failed to configure logger", zap.Error(err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("init postgres...")
	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatal("postgres init failed", zap.Error(err))
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		log.Fatal("migrations failed", zap.Error(err))
	}

	var src prices.Source = db
	if cfg.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unavailable, serving prices without cache", zap.Error(err))
		} else {
			src = prices.NewCache(db, rdb, cfg.Redis.TTL, cfg.Redis.MissTTL)
		}
	}

	opts := []portfolio.Option{portfolio.WithJournal(db)}
	var producer *kafka.Producer
	brokers := cfg.Kafka.BrokerList()
	if len(brokers) > 0 {
		producer = kafka.NewProducer(brokers, cfg.Kafka.EventsTopic)
		defer producer.Close()
		opts = append(opts, portfolio.WithPublisher(producer))
	}

	manager := portfolio.NewManager(src, opts...)
	if err := manager.Restore(ctx, db); err != nil {
		log.Fatal("failed to restore portfolios", zap.Error(err))
	}

	if producer != nil {
		consumer := kafka.NewConsumer(brokers, cfg.Kafka.CommandsTopic, cfg.Kafka.GroupID, db, manager)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				log.Error("kafka consumer stopped", zap.Error(err))
			}
		}()
	}

	handler := api.NewHandler(manager, analytics.New(src, dates.SystemClock), db)
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.SetupRoutes(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", zap.Error(err))
		}
	}()

	log.Info("api listening", zap.String("addr", server.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server error", zap.Error(err))
	}
	log.Info("finish")
}
