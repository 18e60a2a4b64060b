package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sso-identity-provider/internal/audit"
	auditrepo "sso-identity-provider/internal/audit/repository"
	"sso-identity-provider/internal/config"
	"sso-identity-provider/internal/db"
	exchangerepo "sso-identity-provider/internal/exchange/repository"
	exchangeservice "sso-identity-provider/internal/exchange/service"
	healthhandler "sso-identity-provider/internal/health/handler"
	identityhandler "sso-identity-provider/internal/identity/handler"
	identityservice "sso-identity-provider/internal/identity/service"
	refreshrepo "sso-identity-provider/internal/refresh/repository"
	refreshservice "sso-identity-provider/internal/refresh/service"
	rolerepo "sso-identity-provider/internal/role/repository"
	"sso-identity-provider/internal/security"
	"sso-identity-provider/internal/server"
	"sso-identity-provider/internal/server/middleware"
	sessionrepo "sso-identity-provider/internal/session/repository"
	sessionservice "sso-identity-provider/internal/session/service"
	systemrepo "sso-identity-provider/internal/system/repository"
	telemetry "sso-identity-provider/internal/telemetry/otel"
	userrepo "sso-identity-provider/internal/user/repository"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
	logger.Info("HTTP server stopped")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Development() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	secret, err := security.LoadSecret(cfg.JWTSecret)
	if err != nil {
		return err
	}
	tokens, err := security.NewTokenIssuer(security.IssuerConfig{
		Secret:   secret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	})
	if err != nil {
		return err
	}

	providers, err := telemetry.NewProviders(ctx, telemetry.Settings{
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: cfg.OTelServiceName,
		Environment: cfg.Env,
		Insecure:    cfg.OTelInsecure,
		SampleRatio: cfg.OTelSampleRatio,
	}, logger.Named("telemetry"))
	if err != nil {
		return err
	}
	providers.SetGlobal()
	metrics, err := telemetry.NewAuthMetrics(providers.MeterProvider.Meter("sso-identity-provider"))
	if err != nil {
		return err
	}

	conn, err := db.Open(ctx, cfg.DatabaseURL, db.PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	})
	if err != nil {
		return err
	}
	defer conn.Close()

	users := userrepo.NewPostgresRepository(conn)
	roles := rolerepo.NewPostgresRepository(conn)
	systemStore := systemrepo.NewPostgresRepository(conn)
	systems := systemrepo.NewCachedRepository(systemStore, cfg.SystemCacheSize, cfg.SystemCacheTTL)
	ledger := sessionservice.NewLedger(sessionrepo.NewPostgresRepository(conn),
		sessionservice.WithLogger(logger.Named("session")))
	refresh := refreshservice.NewManager(refreshrepo.NewPostgresRepository(conn), cfg.RefreshTokenTTL,
		refreshservice.WithLogger(logger.Named("refresh")))
	auditLogger := audit.NewLogger(auditrepo.NewPostgresRepository(conn), middleware.ClientIP, logger.Named("audit"))

	auth := identityservice.NewAuthService(identityservice.Deps{
		Users:         users,
		Verifier:      security.NewHasher(cfg.BcryptCost),
		Roles:         roles,
		Grants:        roles,
		Systems:       systems,
		SecretSystems: systemStore,
		Ledger:        ledger,
		Refresh:       refresh,
		Tokens:        tokens,
		Audit:         auditLogger,
	}, identityservice.Config{
		CentralTTL:           cfg.CentralTokenTTL,
		SystemTTL:            cfg.SystemTokenTTL,
		LogoutRevokesRefresh: cfg.LogoutRevokesRefresh,
		ReuseRevokesAll:      cfg.RefreshReuseRevokesAll,
	},
		identityservice.WithLogger(logger.Named("auth")),
		identityservice.WithMetrics(metrics),
	)
	exchange := exchangeservice.NewManager(exchangerepo.NewPostgresRepository(conn), systemStore, users, ledger,
		exchangeservice.WithLogger(logger.Named("exchange")),
		exchangeservice.WithTTL(cfg.ExchangeCodeTTL))
	exchange.SetPairIssuer(auth)
	auth.SetExchange(exchange)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.NewRouter(identityhandler.NewAuthHandlers(auth, tokens, logger.Named("http")), healthhandler.NewServer(conn), logger.Named("http")),
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.HTTPWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if terr := providers.Shutdown(shutdownCtx); terr != nil {
			logger.Warn("telemetry shutdown", zap.Error(terr))
		}
		return err
	})
	return g.Wait()
}
