package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"qazna.org/authservice/internal/auth"
	"qazna.org/authservice/internal/breaker"
	"qazna.org/authservice/internal/config"
	"qazna.org/authservice/internal/httpapi"
	"qazna.org/authservice/internal/obs"
	"qazna.org/authservice/internal/profile"
	"qazna.org/authservice/internal/store/cache"
	"qazna.org/authservice/internal/store/pg"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "authservice: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := obs.NewLogger(obs.LogConfig{
		Level:        cfg.Log.Level,
		Dev:          cfg.Log.Development,
		File:         cfg.Log.File,
		MaxAge:       cfg.Log.MaxAge,
		RotationTime: cfg.Log.RotationTime,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	obs.SetLogger(logger)

	// Инициализация observability (регистрация метрик, build info)
	obs.Init()
	obs.InitBuildInfo()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hasher, err := auth.NewPasswordHasher(cfg.PasswordHashAlgorithm)
	if err != nil {
		return err
	}
	key, err := auth.ParseSigningKey(cfg.JWT.Secret)
	if err != nil {
		return err
	}
	codec, err := auth.NewTokenCodec(key,
		auth.WithAccessTTL(cfg.JWT.AccessTTL),
		auth.WithRefreshTTL(cfg.JWT.RefreshTTL),
		auth.WithIssuer(cfg.JWT.Issuer),
	)
	if err != nil {
		return err
	}

	store, closers, err := openStore(ctx, cfg, logger)
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()
	if err != nil {
		return err
	}

	cb, err := breaker.New(breaker.Settings{
		Name:                 "profile",
		FailureRateThreshold: cfg.UserService.BreakerFailureRate,
		WindowSize:           cfg.UserService.BreakerWindow,
		MinimumCalls:         cfg.UserService.BreakerMinCalls,
		OpenTimeout:          cfg.UserService.BreakerOpenTimeout,
		HalfOpenMaxCalls:     cfg.UserService.BreakerHalfOpenCalls,
		OnStateChange: func(name string, from, to breaker.State) {
			obs.ObserveBreaker(name, from.String(), to.String(), int(to))
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		},
	})
	if err != nil {
		return err
	}
	profiles, err := profile.NewClient(profile.Config{
		BaseURL: cfg.UserService.URL,
		Path:    cfg.UserService.Path,
		Timeout: cfg.UserService.Timeout,
		Breaker: cb,
		Logger:  logger.Named("profile"),
	})
	if err != nil {
		return err
	}

	svc, err := auth.NewService(store, hasher, codec, profiles, auth.WithLogger(logger.Named("auth")))
	if err != nil {
		return err
	}

	limiter := httpapi.NewRateLimiter(cfg.HTTP.RateBurst, cfg.HTTP.RatePerSec)
	api := httpapi.New(httpapi.Options{
		Service:      svc,
		Ready:        httpapi.ReadyFunc(svc.Ready),
		Version:      obs.Version,
		RateLimiter:  limiter,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
	})
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	grpcSrv := grpc.NewServer()
	health := httpapi.NewGRPCServer(httpapi.ReadyFunc(svc.Ready), map[string]httpapi.DependencyCheck{
		"profile": func() bool { return cb.State() != breaker.Open },
	})
	health.Register(grpcSrv)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		limiter.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", srv.Addr), zap.String("version", obs.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http listen: %w", err)
		}
		return nil
	})
	if cfg.GRPCAddr != "" {
		g.Go(func() error {
			lis, err := net.Listen("tcp", cfg.GRPCAddr)
			if err != nil {
				return fmt.Errorf("grpc listen: %w", err)
			}
			logger.Info("grpc listening", zap.String("addr", cfg.GRPCAddr))
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc serve: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		grpcSrv.GracefulStop()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("stopped")
	return nil
}

// openStore selects PostgreSQL when a DSN is configured, otherwise the in-memory store.
// A configured Redis URL adds the role cache in front of either.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (auth.Store, []io.Closer, error) {
	var (
		store   auth.Store
		closers []io.Closer
	)
	if cfg.DB.DSN == "" {
		logger.Warn("DB_DSN is empty, using in-memory credential store")
		store = auth.NewMemoryStore()
	} else {
		pgs, err := pg.Open(cfg.DB.DSN, pg.PoolOptions{MaxOpenConns: cfg.DB.MaxOpenConns})
		if err != nil {
			return nil, closers, fmt.Errorf("open db: %w", err)
		}
		closers = append(closers, pgs)
		if cfg.DB.AutoMigrate {
			if err := pg.Migrate(ctx, pgs.DB()); err != nil {
				return nil, closers, err
			}
			logger.Info("migrations applied")
		}
		store = pgs
	}

	if cfg.Redis.URL != "" {
		rc, err := cache.Dial(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, closers, fmt.Errorf("connect redis: %w", err)
		}
		closers = append(closers, rc)
		store = cache.Wrap(store, rc, cfg.Redis.RoleTTL, logger.Named("cache"))
	}
	return store, closers, nil
}
