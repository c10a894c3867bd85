package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"elaqe.org/internal/audit"
	"elaqe.org/internal/auth"
	"elaqe.org/internal/config"
	"elaqe.org/internal/events"
	"elaqe.org/internal/gateway"
	"elaqe.org/internal/groups"
	"elaqe.org/internal/httpapi"
	"elaqe.org/internal/messaging"
	"elaqe.org/internal/migrate"
	"elaqe.org/internal/msgcrypt"
	"elaqe.org/internal/obs"
	"elaqe.org/internal/ratelimit"
	"elaqe.org/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		obs.Logger().Fatal("load config", zap.Error(err))
	}

	logger, err := obs.NewLogger(cfg.Env)
	if err != nil {
		obs.Logger().Fatal("build logger", zap.Error(err))
	}
	obs.SetLogger(logger)
	defer func() { _ = logger.Sync() }()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("service stopped with error", zap.Error(err))
	}
	logger.Info("stopped")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	if cfg.Database.DSN == "" {
		return errors.New("ELAQE_PG_DSN is required")
	}
	if cfg.Database.MigrateOnStart {
		if err := migrateUp(cfg.Database.DSN, logger); err != nil {
			return err
		}
	}

	store, err := pg.Open(cfg.Database.DSN, pg.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.Crypto.MessageKey == "" {
		logger.Warn("MESSAGE_ENCRYPTION_KEY is not set; using the built-in development key")
	}
	codec, err := msgcrypt.FromSecret(cfg.Crypto.MessageKey)
	if err != nil {
		return err
	}

	tokens, err := auth.NewTokens(cfg.Auth.Secret)
	if err != nil {
		return err
	}
	dir := store.Directory()

	var writerOpts []audit.WriterOption
	if len(cfg.Kafka.Brokers) > 0 {
		pub := events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
		defer func() {
			if err := pub.Close(); err != nil {
				logger.Warn("close kafka publisher", zap.Error(err))
			}
		}()
		writerOpts = append(writerOpts, audit.WithPublisher(pub))
		logger.Info("publishing message logs", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.AuditTopic))
	}
	auditWriter := audit.NewWriter(store.Audit(), writerOpts...)

	gw := gateway.NewClient(cfg.Gateway.URL,
		gateway.WithHTTPClient(&http.Client{Timeout: cfg.Gateway.Timeout}),
		gateway.WithDefaults(gateway.Credentials{UUID: cfg.Gateway.UUID, AccessToken: cfg.Gateway.AccessToken}),
		gateway.WithBreaker(cfg.Gateway.BreakerFailures, cfg.Gateway.BreakerCooldown),
	)

	engine := messaging.NewEngine(messaging.Deps{
		Groups:    store.Groups(),
		Directory: dir,
		Messages:  store.Messages(),
		Codec:     codec,
		Gateway:   gw,
		Audit:     auditWriter,
	}, messaging.WithReadTracking(cfg.Messaging.ReadTracking))

	limiter, closeLimiter := newLimiter(cfg, logger)
	defer closeLimiter()

	probe := httpapi.ReadyProbe{DB: store.DB()}
	api := httpapi.New(httpapi.Deps{
		Ready:        probe,
		Version:      version,
		Resolver:     auth.NewResolver(tokens, dir, cfg.Auth.ActorCacheSize, cfg.Auth.ActorCacheTTL),
		Groups:       groups.NewService(store.Groups(), dir),
		Engine:       engine,
		Logs:         audit.NewReader(store.Audit()),
		Limiter:      limiter,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	grpcSrv := grpc.NewServer()
	health := httpapi.NewHealthServer(probe)
	health.Register(grpcSrv)
	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http listening", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		logger.Info("grpc listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcSrv.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- err
		}
	}()
	go refreshHealth(ctx, health)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		logger.Error("listener failed", zap.Error(err))
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	grpcSrv.GracefulStop()
	return srv.Shutdown(shutdownCtx)
}

func migrateUp(dsn string, logger *zap.Logger) error {
	mgr, err := migrate.NewManager(dsn, migrate.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		if err := mgr.Close(); err != nil {
			logger.Warn("close migrator", zap.Error(err))
		}
	}()
	return mgr.Up()
}

// newLimiter prefers the shared Redis window when REDIS_ADDR is set.
func newLimiter(cfg *config.Config, logger *zap.Logger) (ratelimit.Limiter, func()) {
	if cfg.Redis.Addr == "" {
		l := ratelimit.NewLocal(cfg.RateLimit.Burst, float64(cfg.RateLimit.PerSecond))
		return l, l.Close
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	logger.Info("using redis rate limiter", zap.String("addr", cfg.Redis.Addr))
	return ratelimit.NewRedis(client, "elaqe:ratelimit", cfg.RateLimit.Burst, cfg.RateLimit.Window), func() {
		if err := client.Close(); err != nil {
			logger.Warn("close redis", zap.Error(err))
		}
	}
}

func refreshHealth(ctx context.Context, h *httpapi.HealthServer) {
	t := time.NewTicker(10 * time.Second)
	defer t.Stop()
	for {
		h.Refresh(ctx)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
