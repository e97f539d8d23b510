// gophermedia server
//
// Entry point: wires all components together and manages graceful shutdown.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/mtiwari1/gophermedia/internal/cache"
	"github.com/mtiwari1/gophermedia/internal/config"
	"github.com/mtiwari1/gophermedia/internal/grpcserver"
	"github.com/mtiwari1/gophermedia/internal/inference"
	"github.com/mtiwari1/gophermedia/internal/orchestrator"
	"github.com/mtiwari1/gophermedia/internal/processor"
	"github.com/mtiwari1/gophermedia/internal/repository"
	"github.com/mtiwari1/gophermedia/internal/resilience"
	"github.com/mtiwari1/gophermedia/internal/restapi"
	"github.com/mtiwari1/gophermedia/internal/router"
	"github.com/mtiwari1/gophermedia/internal/storage"
	"github.com/mtiwari1/gophermedia/internal/toolprobe"
	"github.com/mtiwari1/gophermedia/internal/worker"
	pb "github.com/mtiwari1/gophermedia/proto"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadCfg(ctx)
	if err != nil {
		slog.Error("load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	logger.Info("starting gophermedia",
		slog.String("db_driver", cfg.Driver),
		slog.String("cache_backend", cfg.Backend),
		slog.String("inference_url", cfg.BaseURL),
	)

	disk, err := storage.NewDisk(cfg.StorageRoot)
	if err != nil {
		return err
	}

	db, repo, err := repository.Open(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()
	defer repo.Close()
	logger.Info("database connected", slog.String("driver", cfg.Driver))

	store, closeStore, err := openCacheStore(ctx, cfg.CacheCfg)
	if err != nil {
		return err
	}
	defer closeStore()

	policy := router.DefaultPolicy()
	if cfg.PolicyFile != "" {
		if policy, err = router.LoadPolicy(cfg.PolicyFile); err != nil {
			return err
		}
	}
	mediaRouter := router.New(policy, cfg.LocalPrefix)

	breakers := resilience.NewRegistry(resilience.BreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		RecoveryTimeout:  cfg.Breaker.RecoveryTimeout,
	}, nil, time.Now, logger)

	gateway := inference.NewGateway(cfg.InferenceCfg, inference.Deps{
		Cache:   cache.New(store, cfg.TTL, logger),
		Breaker: breakers.Get(inference.BreakerName),
		HTTP:    &http.Client{},
		Resolve: disk.Resolve,
		Logger:  logger,
	})

	probe := toolprobe.NewProbe()
	for _, st := range probe.Report(processor.ToolNames...) {
		if !st.Available {
			logger.Warn("external tool not installed, related metadata will be degraded", slog.String("tool", st.Name))
		}
	}
	processors := processor.NewSet(processor.NewTools(probe, cfg.ToolTimeout), disk, processor.Options{
		MaxTextBytes:      cfg.MaxTextBytes,
		MaxArchiveEntries: cfg.MaxArchiveEntries,
		ThumbnailWidth:    cfg.ThumbnailWidth,
	}, logger)

	orch := orchestrator.New(orchestrator.Deps{
		Store:      repo,
		Analyzer:   gateway,
		Processors: processors,
		Locator:    disk,
		Enabled:    cfg.Enabled,
		Logger:     logger,
	})

	// ── Worker pool ──
	pool := worker.NewPool(cfg.Workers, orch, logger)
	pool.Start()
	logger.Info("worker pool started", slog.Int("workers", cfg.Workers))

	resultsDone := make(chan struct{})
	go func() {
		defer close(resultsDone)
		handleResults(pool.Results(), logger)
	}()

	// ── gRPC server ──
	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(grpcserver.UnaryLogger(logger)))
	grpcImpl := grpcserver.NewServer(grpcserver.Deps{
		Repo:   repo,
		Router: mediaRouter,
		Runner: orch,
		Queue:  pool,
		Logger: logger,
	})
	pb.RegisterMediaServiceServer(grpcSrv, grpcImpl)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		pool.Shutdown()
		<-resultsDone
		return fmt.Errorf("listen gRPC: %w", err)
	}
	go func() {
		logger.Info("gRPC server listening", slog.String("addr", cfg.GRPCAddr))
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Error("gRPC serve", slog.String("error", err.Error()))
		}
	}()

	// ── REST API ──
	handler := restapi.NewHandler(restapi.Deps{
		Media:     grpcImpl,
		Storage:   disk,
		Router:    mediaRouter,
		MaxUpload: cfg.MaxUpload,
		DB:        repo,
		Circuit:   gateway.Circuit,
		Tools:     func() []toolprobe.Status { return probe.Report(processor.ToolNames...) },
		Logger:    logger,
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		logger.Info("HTTP server listening", slog.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP serve", slog.String("error", err.Error()))
		}
	}()

	// ── Graceful shutdown (SIGINT / SIGTERM) ──
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()
	logger.Info("shutdown signal received")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()

	// 1. Stop accepting new HTTP requests.
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("HTTP shutdown", slog.String("error", err.Error()))
	}
	logger.Info("HTTP server stopped")

	// 2. Stop gRPC server gracefully.
	grpcSrv.GracefulStop()
	logger.Info("gRPC server stopped")

	// 3. Drain the worker pool, aborting passes still running at the deadline.
	drained := make(chan struct{})
	go func() {
		pool.Shutdown()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutCtx.Done():
		logger.Warn("drain deadline reached, cancelling in-flight passes")
		pool.Abort()
		<-drained
	}
	logger.Info("worker pool drained")

	// 4. Wait for results handler to finish.
	<-resultsDone
	logger.Info("gophermedia shutdown complete")
	return nil
}

// openCacheStore selects the result cache backend.
func openCacheStore(ctx context.Context, cfg config.CacheCfg) (cache.Store, func(), error) {
	switch cfg.Backend {
	case "redis":
		rs, err := cache.NewRedisStore(ctx, cache.RedisConfig{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, nil, err
		}
		return rs, func() { rs.Close() }, nil
	default:
		return cache.NewMemoryStore(time.Now), func() {}, nil
	}
}

// handleResults logs the outcome of every pass. The orchestrator has
// already persisted it.
func handleResults(results <-chan worker.Result, logger *slog.Logger) {
	for res := range results {
		if res.Err != nil {
			logger.Error("processing pass did not run",
				slog.String("media_id", res.MediaID),
				slog.String("error", res.Err.Error()),
			)
			continue
		}
		logger.Info("media processed",
			slog.String("media_id", res.MediaID),
			slog.String("status", string(res.Status)),
			slog.Duration("latency", res.Latency),
		)
	}
}
