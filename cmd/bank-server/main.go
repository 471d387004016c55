// Package main is the entry point for the banking simulation server.
// It only handles dependency injection and server initialization.
// NO business logic belongs here.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/fracreserve/banksim/internal/api"
	"github.com/fracreserve/banksim/internal/directory"
	"github.com/fracreserve/banksim/internal/domain/agent"
	"github.com/fracreserve/banksim/internal/engine"
	"github.com/fracreserve/banksim/internal/events"
	"github.com/fracreserve/banksim/internal/infra/cache"
	"github.com/fracreserve/banksim/internal/infra/storage"
	"github.com/fracreserve/banksim/internal/network"
	"github.com/fracreserve/banksim/internal/platform/config"
	"github.com/fracreserve/banksim/internal/platform/logger"
	"github.com/fracreserve/banksim/internal/platform/metrics"
)

func main() {
	configPath := flag.String("config", os.Getenv("BANKSIM_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Mode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fedParams, err := cfg.FedParams()
	if err != nil {
		return err
	}
	fed, err := agent.NewFed(fedParams.Pool, fedParams.DiscountRate, fedParams.ReserveRatio)
	if err != nil {
		return err
	}

	m := metrics.Get()
	bus := events.NewBus()
	m.TrackEventDrops(bus.Dropped)

	log.Info("Bootstrapping engine", "profile", cfg.Profile, "tick_interval", cfg.Simulation.TickInterval)
	eng := engine.New(fed, directory.New(),
		engine.WithPublisher(bus),
		engine.WithLogger(log),
		engine.WithMetrics(m),
	)
	ticker := engine.NewTicker(eng, cfg.Simulation.TickInterval, log)

	g, gctx := errgroup.WithContext(ctx)

	log.Info("Bootstrapping WebSocket hub")
	hub := network.NewHub(eng, network.HubOptions{
		BroadcastBuffer:   cfg.Tuning.BroadcastChannelBuffer,
		ClientSendBuffer:  cfg.Tuning.ClientSendBuffer,
		MaxClients:        cfg.Tuning.MaxClients,
		MinActionInterval: cfg.Tuning.MinActionInterval,
	}, log, m)
	hubFeed, cancelHubFeed := bus.Subscribe(cfg.Tuning.EventSubscriberBuffer)
	defer cancelHubFeed()
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		hub.Forward(gctx, hubFeed)
		return nil
	})

	if cfg.Storage.Enabled {
		log.Info("Initializing SQLite snapshot export", "path", cfg.Storage.SQLitePath)
		db, err := storage.InitSQLite(cfg.Storage.SQLitePath, cfg.Tuning.DBMaxOpenConns)
		if err != nil {
			return err
		}
		defer db.Close()

		exporter := storage.NewExporter(
			storage.NewSQLiteSnapshotRepository(db),
			func() storage.Snapshot {
				ov := eng.Overview()
				return storage.Snapshot{Tick: ov.Tick, Fed: ov.Fed, Banks: ov.Banks, Households: ov.Households}
			},
			cfg.Storage.ExportInterval, log, m,
		)
		g.Go(func() error { return exporter.Run(gctx) })
	}

	if cfg.Redis.Enabled {
		log.Info("Connecting Redis cache", "addr", cfg.Redis.Addr)
		rdb := cache.NewGoRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Tuning.RedisPoolSize)
		defer rdb.Close()
		if err := rdb.Ping(ctx); err != nil {
			// The cache is optional; the simulation runs without it.
			log.Warn("Redis unreachable, cache disabled", "error", err)
		} else {
			refresher := cache.NewRefresher(cache.NewAgentCache(rdb, cfg.Redis.TTL), eng, log, m)
			cacheFeed, cancelCacheFeed := bus.Subscribe(cfg.Tuning.EventSubscriberBuffer)
			defer cancelCacheFeed()
			g.Go(func() error { return refresher.Run(gctx, cacheFeed) })
		}
	}

	if mode := strings.ToLower(cfg.Mode); mode == "prod" || mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.RouterConfig{
		SimulationHandler: api.NewSimulationHandler(gctx, eng, ticker),
		Metrics:           m,
		WebSocket:         hub.ServeWS,
		Logger:            log,
	})
	srv := api.NewServer(cfg.HTTPAddr, router)
	g.Go(func() error {
		log.Info("HTTP API & WS server listening", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	if cfg.Simulation.AutoStart {
		ticker.Start(gctx)
	}
	g.Go(func() error {
		<-gctx.Done()
		ticker.Stop()
		return nil
	})

	return g.Wait()
}
