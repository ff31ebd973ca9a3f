package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"achievements/internal/eventbus"
	"achievements/internal/eventbus/kafka"
	"achievements/internal/instance"
	jwttoken "achievements/internal/jwt_token"
	"achievements/internal/platform/config"
	"achievements/internal/platform/httpserver"
	"achievements/internal/platform/logger"
	"achievements/internal/platform/metrics"
	platformredis "achievements/internal/platform/redis"
	"achievements/internal/storage"
	"achievements/internal/storage/memory"
	redisstore "achievements/internal/storage/redis"
	"achievements/internal/storage/sqlstore"
	httptransport "achievements/internal/transport/http"
)

// main wires configuration, storage, the event bus and one achievement
// instance behind the HTTP router, then runs until SIGINT or SIGTERM.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log)

	if err := run(cfg, log); err != nil {
		log.Error("achievements server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	docs, closeDocs, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDocs()

	bus, err := openBus(ctx, cfg, log)
	if err != nil {
		return err
	}

	loc, err := cfg.Ledger.LoadLocation()
	if err != nil {
		return err
	}
	reg := metrics.New()
	inst, err := instance.New(instance.Config{
		ID:                 cfg.Instance,
		HostVersion:        cfg.HostVersion,
		DetectorEnabled:    cfg.Detector.Enabled,
		DetectorInterval:   cfg.Detector.Interval,
		LedgerDelay:        cfg.Ledger.Delay,
		LedgerFlushTimeout: cfg.Ledger.FlushTimeout,
		Location:           loc,
		Logger:             log,
		Registerer:         reg,
	}, docs, bus)
	if err != nil {
		_ = bus.Close()
		return err
	}

	handlerOpts := []httptransport.Option{
		httptransport.WithLogger(log),
		httptransport.WithMetricsHandler(reg.Handler()),
	}
	if hc, ok := docs.(storage.HealthChecker); ok {
		handlerOpts = append(handlerOpts, httptransport.WithHealthChecker(hc))
	}
	if cfg.Server.JWTSigningKey != "" {
		tokens := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer)
		handlerOpts = append(handlerOpts, httptransport.WithTokenValidator(tokens))
	}
	handler := httptransport.New(inst.Ledger, inst.Facts, inst.Bus, handlerOpts...)

	srv := httpserver.New(cfg.Server, handler.Router())

	instDone := make(chan error, 1)
	instCtx, cancelInst := context.WithCancel(ctx)
	defer cancelInst()
	go func() { instDone <- inst.Run(instCtx) }()

	srvErr := make(chan error, 1)
	go func() {
		log.Info("starting achievements server",
			"addr", cfg.Server.Addr,
			"instance", cfg.Instance,
			"storage", cfg.Storage.Backend,
			"bus", cfg.Storage.Bus,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case runErr = <-srvErr:
	case runErr = <-instDone:
		instDone = nil
		if runErr == nil {
			runErr = errors.New("instance stopped unexpectedly")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if runErr != nil {
		errs = append(errs, runErr)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	cancelInst()
	if instDone != nil {
		if err := <-instDone; err != nil {
			errs = append(errs, err)
		}
	}
	if err := inst.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func openStorage(ctx context.Context, cfg config.Config) (storage.Documents, func(), error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return memory.NewInMemoryStore(), func() {}, nil
	case config.BackendSQLite:
		s, err := sqlstore.OpenSQLite(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case config.BackendPostgres:
		s, err := sqlstore.OpenPostgres(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case config.BackendRedis:
		client, err := platformredis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return redisstore.NewRedisStore(client.Client), func() { _ = client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func openBus(ctx context.Context, cfg config.Config, log *slog.Logger) (eventbus.Bus, error) {
	switch cfg.Storage.Bus {
	case config.BusMemory:
		return eventbus.NewMemory(), nil
	case config.BusKafka:
		return kafka.New(ctx, kafka.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			Group:   cfg.Kafka.Group,
		}, kafka.WithLogger(log))
	default:
		return nil, fmt.Errorf("unknown event bus %q", cfg.Storage.Bus)
	}
}
