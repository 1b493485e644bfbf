package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/onemorebsmith/francpay-core/src/common"
	"github.com/onemorebsmith/francpay-core/src/depositsync"
	"github.com/onemorebsmith/francpay-core/src/home"
	"github.com/onemorebsmith/francpay-core/src/model"
	"github.com/onemorebsmith/francpay-core/src/onchain"
	"github.com/onemorebsmith/francpay-core/src/postgres"
	"github.com/onemorebsmith/francpay-core/src/pricefeed"
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

	flag.StringVar(&cfg.TonWatchAddress, "wallet", cfg.TonWatchAddress, "TON address receiving deposits")
	flag.StringVar(&cfg.TonProvider, "provider", cfg.TonProvider, "primary transaction provider, `tonapi` or `toncenter`")
	flag.StringVar(&cfg.TonAPIBase, "api", cfg.TonAPIBase, "base url of the primary provider")
	flag.StringVar(&cfg.TonAPIKey, "apikey", cfg.TonAPIKey, "provider api key")
	flag.IntVar(&cfg.FetchLimit, "limit", cfg.FetchLimit, "transactions fetched per cycle, default 20")
	flag.DurationVar(&cfg.SyncInterval, "interval", cfg.SyncInterval, "deposit sync interval, default 5s")
	flag.StringVar(&cfg.UserID, "user", cfg.UserID, "session user id")
	flag.StringVar(&cfg.PostgresConfig, "pg", cfg.PostgresConfig, `config string for the postgres connection"`)
	flag.StringVar(&cfg.RedisConfig, "redis", cfg.RedisConfig, `(optional) redis address for the cached FRE rate`)
	flag.StringVar(&cfg.PromPort, "prom", cfg.PromPort, "address to serve prom stats, default `:2112`")
	flag.StringVar(&cfg.HealthCheckPort, "hcp", cfg.HealthCheckPort, `(rarely used) if defined will expose a health check on /readyz, default ""`)
	flag.StringVar(&cfg.LogLevel, "log", cfg.LogLevel, "log level, default `info`")
	flag.Parse()

	log.Println("----------------------------------")
	log.Printf("initializing deposit sync")
	log.Printf("\twallet:        %s", cfg.TonWatchAddress)
	log.Printf("\tprovider:      %s", cfg.TonProvider)
	log.Printf("\tapi:           %s", cfg.TonAPIBase)
	log.Printf("\tinterval:      %s", cfg.SyncInterval)
	log.Printf("\tlimit:         %d", cfg.FetchLimit)
	log.Printf("\tuser:          %s", cfg.UserID)
	log.Printf("\tredis:         %s", cfg.RedisConfig)
	log.Printf("\tprom:          %s", cfg.PromPort)
	log.Printf("\thealth check:  %s", cfg.HealthCheckPort)
	log.Println("----------------------------------")

	logger := common.ConfigureZap(common.ParseLevel(cfg.LogLevel))
	postgres.ConfigurePostgres(cfg.PostgresConfig)

	watcher, err := onchain.NewWatcher(onchain.Config{
		WatchAddress: cfg.TonWatchAddress,
		APIKey:       cfg.TonAPIKey,
		APIBase:      cfg.TonAPIBase,
		Provider:     cfg.TonProvider,
	}, logger)
	if err != nil {
		logger.Fatal("failed configuring watcher", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var session *home.Home
	syncer := depositsync.NewSyncer(watcher, postgres.Backend{}, func(tx model.ParsedTonTransaction) {
		session.HandleDeposit(tx)
	}, depositsync.Config{
		Interval:   cfg.SyncInterval,
		FetchLimit: cfg.FetchLimit,
	}, logger)
	session = home.New(postgres.Backend{}, syncer, logger)

	checks := []common.HealthCheck{{Name: "postgres", Check: postgres.Ping}}
	sources := []pricefeed.SnapshotSource{}
	if cfg.RedisConfig != "" {
		rd := redis.NewClient(&redis.Options{Addr: cfg.RedisConfig})
		defer rd.Close()
		checks = append(checks, common.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rd.Ping(ctx).Err()
		}})
		sources = append(sources, pricefeed.NewSnapshotCache(rd, ""))
	}
	sources = append(sources, pricefeed.SnapshotSourceFunc(postgres.GetLatestPriceSnapshot))

	if cfg.PromPort != "" {
		common.StartPromServer(logger, cfg.PromPort)
	}
	if cfg.HealthCheckPort != "" {
		common.BeginReadyzHandler(logger, cfg.HealthCheckPort, checks...)
	}

	rates := pricefeed.NewRateReader(logger, pricefeed.DefaultRefreshInterval, sources...)
	session.SetRateSource(rates)
	go rates.Start(ctx)
	go postgres.StreamChanges(ctx, postgres.DefaultChangeChannel, 5*time.Second, logger, func(ev model.ChangeEvent) {
		session.ApplyChange(ev)
	})

	if err := session.SetSession(ctx, cfg.UserID); err != nil {
		logger.Error("failed starting session", zap.Error(err))
	}
	if cfg.UserID == "" {
		// no session, sync the watch address without a home state
		syncer.Enable(ctx)
	}

	<-ctx.Done()
	logger.Info("shutting down")
	session.ClearSession()
	syncer.Disable()
}
