package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"setup-scanner/config"
	"setup-scanner/internal/alerts"
	"setup-scanner/internal/api"
	"setup-scanner/internal/auth"
	"setup-scanner/internal/catalog"
	"setup-scanner/internal/database"
	"setup-scanner/internal/marketdata"
	"setup-scanner/internal/notify"
	"setup-scanner/internal/scanner"
)

func main() {
	configPath := flag.String("config", "", "path to config JSON (defaults apply when empty)")
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("configuration invalid")
	}

	logger := buildLogger(cfg.LoggingConfig)
	logger.Info().Msg("setup scanner starting")

	// Market data: mock for development, HTTP upstream otherwise, with an
	// optional Redis read-through cache in front.
	var provider marketdata.SnapshotProvider
	var quality marketdata.QualityProvider
	if cfg.MarketDataConfig.MockMode {
		mock := marketdata.NewMockProvider()
		provider, quality = mock, mock
		logger.Warn().Msg("market data running in mock mode")
	} else {
		httpProvider := marketdata.NewHTTPProvider(marketdata.HTTPConfig{
			BaseURL:        cfg.MarketDataConfig.BaseURL,
			APIKey:         cfg.MarketDataConfig.APIKey,
			Timeout:        time.Duration(cfg.MarketDataConfig.TimeoutSec) * time.Second,
			RequestsPerSec: cfg.MarketDataConfig.RequestsPerSec,
		}, logger)
		provider, quality = httpProvider, httpProvider
	}

	if cfg.RedisConfig.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Addr,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn().Err(err).Msg("redis unreachable, snapshot cache disabled")
		} else {
			provider = marketdata.NewCachedProvider(provider, rdb,
				time.Duration(cfg.RedisConfig.CacheTTLSec)*time.Second, logger)
			logger.Info().Str("addr", cfg.RedisConfig.Addr).Msg("snapshot cache enabled")
		}
	}

	// Alert audit sink is optional; the scanner runs fully in-memory
	// without it.
	var sink alerts.Sink
	var repo *database.Repository
	if cfg.DatabaseConfig.Enabled {
		db, err := database.NewDB(database.Config{
			Host:     cfg.DatabaseConfig.Host,
			Port:     cfg.DatabaseConfig.Port,
			User:     cfg.DatabaseConfig.User,
			Password: cfg.DatabaseConfig.Password,
			Database: cfg.DatabaseConfig.Database,
			SSLMode:  cfg.DatabaseConfig.SSLMode,
		}, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("database unavailable, alert audit disabled")
		} else {
			defer db.Close()
			if err := db.RunMigrations(context.Background()); err != nil {
				logger.Warn().Err(err).Msg("migrations failed, alert audit disabled")
			} else {
				repo = database.NewRepository(db)
				sink = repo
			}
		}
	}

	alertMgr := alerts.NewManager(alerts.Config{
		ProbabilityThreshold: cfg.ScannerConfig.AlertProbability,
		MaxActive:            cfg.ScannerConfig.MaxActiveAlerts,
		GraceMultiplier:      cfg.ScannerConfig.AlertGraceMultiplier,
	}, sink, logger)

	bus := notify.NewBus(0, logger)
	defer bus.Close()

	enabledTypes, err := parseEnabledTypes(cfg.ScannerConfig.EnabledSetupTypes)
	if err != nil {
		logger.Fatal().Err(err).Msg("configuration invalid")
	}

	sc := scanner.New(
		scanner.Config{
			MinScanInterval: time.Duration(cfg.ScannerConfig.MinScanIntervalSec) * time.Second,
			BatchSize:       cfg.ScannerConfig.BatchSize,
			BatchDelay:      time.Duration(cfg.ScannerConfig.BatchDelaySec) * time.Second,
			SnapshotTimeout: time.Duration(cfg.ScannerConfig.SnapshotTimeoutSec) * time.Second,
			MinProbability:  cfg.ScannerConfig.MinProbability,
			AlertThreshold:  cfg.ScannerConfig.AlertProbability,
			MaxTracked:      cfg.ScannerConfig.MaxTrackedSetups,
		},
		scanner.Settings{
			Watchlist:    cfg.ScannerConfig.Watchlist,
			EnabledTypes: enabledTypes,
			ScanInterval: time.Duration(cfg.ScannerConfig.ScanIntervalSec) * time.Second,
		},
		provider, quality, alertMgr, bus, logger,
	)

	var verifier *auth.Verifier
	if cfg.AuthConfig.JWTSecret != "" {
		verifier = auth.NewVerifier(cfg.AuthConfig.JWTSecret)
	} else {
		logger.Warn().Msg("no JWT secret configured, mutating endpoints are unauthenticated")
	}

	server := api.NewServer(api.Config{
		Host:           cfg.ServerConfig.Host,
		Port:           cfg.ServerConfig.Port,
		ProductionMode: cfg.ServerConfig.ProductionMode,
	}, sc, bus, verifier, repo, logger)

	if cfg.ScannerConfig.AutoStart {
		sc.Start()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("api server failed")
		}
	}

	sc.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("setup scanner stopped")
}

func buildLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func parseEnabledTypes(names []string) ([]catalog.SetupType, error) {
	var out []catalog.SetupType
	for _, name := range names {
		t, err := catalog.ParseSetupType(name)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
