package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/onemorebsmith/francpay-core/src/common"
	"github.com/onemorebsmith/francpay-core/src/postgres"
	"github.com/onemorebsmith/francpay-core/src/pricefeed"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

func main() {
	pwd, _ := os.Getwd()
	fullPath := path.Join(pwd, "config.yaml")
	log.Printf("loading config @ `%s`", fullPath)
	cfg, err := common.LoadConfig(fullPath, path.Join(pwd, ".env"))
	if err != nil {
		log.Printf("failed loading config: %s", err)
		os.Exit(1)
	}

	flag.BoolVar(&cfg.PriceWatch, "watch", cfg.PriceWatch, "keep running and fetch on every interval")
	flag.DurationVar(&cfg.PricePollInterval, "interval", cfg.PricePollInterval, "fetch interval in watch mode, default 5m")
	flag.StringVar(&cfg.PostgresConfig, "pg", cfg.PostgresConfig, `config string for the postgres connection"`)
	flag.StringVar(&cfg.RedisConfig, "redis", cfg.RedisConfig, `(optional) redis address for the snapshot cache`)
	flag.StringVar(&cfg.PromPort, "prom", cfg.PromPort, "address to serve prom stats, default `:2112`")
	flag.StringVar(&cfg.HealthCheckPort, "hcp", cfg.HealthCheckPort, `(rarely used) if defined will expose a health check on /readyz, default ""`)
	flag.StringVar(&cfg.LogLevel, "log", cfg.LogLevel, "log level, default `info`")
	flag.Parse()

	log.Println("----------------------------------")
	log.Printf("initializing price feed")
	log.Printf("\twatch:         %t", cfg.PriceWatch)
	log.Printf("\tinterval:      %s", cfg.PricePollInterval)
	log.Printf("\tredis:         %s", cfg.RedisConfig)
	log.Printf("\tprom:          %s", cfg.PromPort)
	log.Printf("\thealth check:  %s", cfg.HealthCheckPort)
	log.Println("----------------------------------")

	logger := common.ConfigureZap(common.ParseLevel(cfg.LogLevel))
	postgres.ConfigurePostgres(cfg.PostgresConfig)

	checks := []common.HealthCheck{{Name: "postgres", Check: postgres.Ping}}
	var cache *pricefeed.SnapshotCache
	if cfg.RedisConfig != "" {
		rd := redis.NewClient(&redis.Options{Addr: cfg.RedisConfig})
		defer rd.Close()
		checks = append(checks, common.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rd.Ping(ctx).Err()
		}})
		cache = pricefeed.NewSnapshotCache(rd, "")
	}

	job := pricefeed.NewJob(
		pricefeed.NewFetcher(pricefeed.FetcherConfig{}, nil),
		pricefeed.StoreFunc(postgres.PutPriceSnapshot),
		cache,
		logger,
	)

	if !cfg.PriceWatch {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := job.RunOnce(ctx); err != nil {
			logger.Error("price snapshot failed", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	if cfg.PromPort != "" {
		common.StartPromServer(logger, cfg.PromPort)
	}
	if cfg.HealthCheckPort != "" {
		common.BeginReadyzHandler(logger, cfg.HealthCheckPort, checks...)
	}

	scheduler := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	if _, err := scheduler.AddJob(fmt.Sprintf("@every %s", cfg.PricePollInterval), job); err != nil {
		logger.Fatal("invalid price poll interval", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	job.Run()
	scheduler.Start()
	logger.Info("watching FRE price", zap.Duration("interval", cfg.PricePollInterval))
	<-ctx.Done()
	<-scheduler.Stop().Done()
}
